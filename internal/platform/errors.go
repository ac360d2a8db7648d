package platform

import "errors"

var (
	// ErrPermissionDenied means the bot user lacks the room-management
	// rights needed for the requested operation. Callers that talk to an
	// administrator should surface this one distinctly; it has an
	// actionable fix (grant the bot the manage-rooms permission).
	ErrPermissionDenied = errors.New("platform: permission denied")

	// ErrNoAccess is the low-severity sibling of ErrPermissionDenied,
	// reported when the bot can no longer see a room at all. During
	// deletion cleanup it is expected noise, not an operational error.
	ErrNoAccess = errors.New("platform: no access to room")

	// ErrOperationFailed covers every other outbound failure.
	ErrOperationFailed = errors.New("platform: operation failed")
)
