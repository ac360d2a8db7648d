package platform

import "context"

// RoomKind is the platform's room discriminator; only voice-like rooms
// participate in the dynamic lifecycle.
type RoomKind string

const (
	RoomKindVoice RoomKind = "voice"
	RoomKindStage RoomKind = "stage"
	RoomKindText  RoomKind = "text"
)

// PresenceTransition is one observed change of a member's current voice
// room. Either room reference may be empty: empty OldRoomID means the
// member was not in a room before, empty NewRoomID means they
// disconnected. A move sets both.
type PresenceTransition struct {
	MemberID    string `json:"memberId"`
	GuildID     string `json:"guildId"`
	OldRoomID   string `json:"oldRoomId,omitempty"`
	NewRoomID   string `json:"newRoomId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Username    string `json:"username,omitempty"`
}

// RoomDeleted reports a room removed on the platform side through any
// path, including deletions this service requested itself.
type RoomDeleted struct {
	RoomID  string   `json:"roomId"`
	GuildID string   `json:"guildId"`
	Kind    RoomKind `json:"kind"`
}

// EventHandler consumes decoded feed events. Implementations must
// tolerate concurrent calls; the feed dispatches every event on its own
// goroutine.
type EventHandler interface {
	HandlePresenceTransition(ctx context.Context, ev PresenceTransition)
	HandleRoomDeleted(ctx context.Context, ev RoomDeleted)
}
