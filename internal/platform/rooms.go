package platform

import "context"

// Permission bits accepted in access overwrites. The wire values match
// the platform's permission flags for voice rooms.
type Permission uint64

const (
	PermConnect    Permission = 1 << 20
	PermManageRoom Permission = 1 << 4
)

// TargetKind says what an overwrite's TargetID refers to.
type TargetKind string

const (
	TargetEveryone TargetKind = "everyone"
	TargetRole     TargetKind = "role"
	TargetMember   TargetKind = "member"
)

// Overwrite is a single access rule entry on a room. TargetID is empty
// for TargetEveryone; the client resolves it to the guild-wide
// principal.
type Overwrite struct {
	Target   TargetKind `json:"target"`
	TargetID string     `json:"targetId,omitempty"`
	Allow    Permission `json:"allow"`
	Deny     Permission `json:"deny"`
}

// CreateRoomParams describes a voice room to provision.
type CreateRoomParams struct {
	GuildID     string
	Name        string
	ParentGroup string // empty for top level
	UserLimit   int    // 0 means unlimited
	Overwrites  []Overwrite
	Reason      string
}

// RoomManager is the outbound room-management capability. All methods
// return ErrPermissionDenied, ErrNoAccess or ErrOperationFailed on
// failure; none of them retries.
type RoomManager interface {
	// CreateRoom provisions a new voice room and returns its id.
	CreateRoom(ctx context.Context, params CreateRoomParams) (roomID string, err error)

	// MoveMember places a connected member into the given room.
	MoveMember(ctx context.Context, guildID, memberID, roomID string) error

	// DeleteRoom removes a room. Reason ends up in the platform audit
	// log.
	DeleteRoom(ctx context.Context, roomID, reason string) error

	// UpdateRoomAccess replaces a room's user limit and access
	// overwrites. A nil userLimit leaves the limit untouched; an empty
	// overwrite slice resets the room to default-open.
	UpdateRoomAccess(ctx context.Context, roomID string, userLimit *int, overwrites []Overwrite) error

	// LiveOccupancy reports how many members are currently connected.
	LiveOccupancy(ctx context.Context, roomID string) (int, error)

	// RoomParent returns the id of the grouping the room sits under, or
	// empty for top level.
	RoomParent(ctx context.Context, roomID string) (string, error)

	// HasManageRights reports whether the bot user holds room-management
	// rights in the guild.
	HasManageRights(ctx context.Context, guildID string) (bool, error)
}
