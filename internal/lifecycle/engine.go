package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/voicespawn/backend/internal/cctx"
	"github.com/voicespawn/backend/internal/platform"
	"github.com/voicespawn/backend/internal/registry"
)

const teardownReason = "last user left the dynamically created channel"

var _ platform.EventHandler = (*Engine)(nil)

// Engine runs the dynamic room lifecycle. It holds no state of its own;
// everything durable lives in the Registry, so a restart loses nothing
// and concurrently in-flight events only coordinate through idempotent
// store operations.
type Engine struct {
	registry  *registry.Registry
	rooms     platform.RoomManager
	botUserID string
}

func NewEngine(registry *registry.Registry, rooms platform.RoomManager, botUserID string) *Engine {
	return &Engine{
		registry:  registry,
		rooms:     rooms,
		botUserID: botUserID,
	}
}

// HandlePresenceTransition splits one observed transition into its join
// and leave halves and runs whichever apply. A move between rooms fires
// both; they touch different rooms and neither blocks the other.
// Nothing is ever re-raised to the feed: there is no caller waiting on
// a presence event's result.
func (e *Engine) HandlePresenceTransition(ctx context.Context, ev platform.PresenceTransition) {
	log := e.eventLogger(ctx).With(
		zap.String("member_id", ev.MemberID),
		zap.String("guild_id", ev.GuildID))

	if ev.NewRoomID != "" && ev.OldRoomID != ev.NewRoomID {
		if err := e.memberJoined(ctx, ev); err != nil {
			e.logFailure(log, "join handling failed", err)
		}
	}

	if ev.OldRoomID != "" && ev.OldRoomID != ev.NewRoomID {
		if err := e.memberLeft(ctx, ev); err != nil {
			e.logFailure(log, "leave handling failed", err)
		}
	}
}

// memberJoined spawns a personal room when the joined room is a
// configured creation channel. Every step before the registry write
// must succeed or the whole transition aborts with no partial effects
// beyond what the platform already applied.
func (e *Engine) memberJoined(ctx context.Context, ev platform.PresenceTransition) (err error) {
	def, err := e.registry.DefinitionByRoomID(ctx, ev.NewRoomID)
	if err != nil {
		return fmt.Errorf("definition lookup: %w", err)
	}
	if def == nil {
		// An ordinary room; nothing to do.
		return
	}

	log := e.eventLogger(ctx).With(
		zap.String("member_id", ev.MemberID),
		zap.String("creation_channel_id", def.ID))
	log.Info("member joined creation channel")

	var allowed bool
	if allowed, err = e.rooms.HasManageRights(ctx, ev.GuildID); err != nil {
		return fmt.Errorf("rights check: %w", err)
	}
	if !allowed {
		return fmt.Errorf("guild %s: %w", ev.GuildID, platform.ErrPermissionDenied)
	}

	// Placement under the spawner's grouping is best effort; a lookup
	// failure only costs the parent, not the room.
	parent, err := e.rooms.RoomParent(ctx, def.ID)
	if err != nil {
		log.Warn("failed to resolve spawner parent group", zap.Error(err))
		parent, err = "", nil
	}

	limit := 0
	if def.UserLimit != nil {
		limit = *def.UserLimit
	}

	var roomID string
	roomID, err = e.rooms.CreateRoom(ctx, platform.CreateRoomParams{
		GuildID:     ev.GuildID,
		Name:        spawnedRoomName(ev),
		ParentGroup: parent,
		UserLimit:   limit,
		Overwrites:  e.spawnOverwrites(ev.MemberID, def.RequiredRoleID, def.JoinRoleID),
		Reason:      "spawning personal voice room",
	})
	if err != nil {
		return fmt.Errorf("room creation: %w", err)
	}

	if err = e.rooms.MoveMember(ctx, ev.GuildID, ev.MemberID, roomID); err != nil {
		return fmt.Errorf("member move: %w", err)
	}

	if err = e.registry.TrackSpawnedChannel(ctx, roomID, ev.GuildID, ev.MemberID); err != nil {
		return fmt.Errorf("spawned room tracking: %w", err)
	}

	log.Info("spawned voice room", zap.String("room_id", roomID))
	return
}

// memberLeft tears a spawned room down once it is empty. The registry
// record goes first: if the platform then emits a deletion notification
// for our own delete, the handler finds no record and does nothing.
func (e *Engine) memberLeft(ctx context.Context, ev platform.PresenceTransition) (err error) {
	record, err := e.registry.SpawnedChannelByRoomID(ctx, ev.OldRoomID)
	if err != nil {
		return fmt.Errorf("spawned room lookup: %w", err)
	}
	if record == nil {
		return
	}

	var occupancy int
	if occupancy, err = e.rooms.LiveOccupancy(ctx, record.ID); err != nil {
		return fmt.Errorf("occupancy check: %w", err)
	}
	if occupancy > 0 {
		return
	}

	if err = e.registry.DeleteSpawnedChannel(ctx, record.ID); err != nil {
		return fmt.Errorf("spawned room untracking: %w", err)
	}

	log := e.eventLogger(ctx).With(zap.String("room_id", record.ID))

	if err := e.rooms.DeleteRoom(ctx, record.ID, teardownReason); err != nil {
		// The record is gone either way. Worst case an empty room
		// lingers until someone removes it by hand.
		e.logFailure(log, "failed to delete empty voice room", err)
		return nil
	}

	log.Info("deleted empty voice room")
	return
}

// HandleRoomDeleted reconciles the registry after a room vanished on
// the platform side, whether through this service's own delete, a
// manual deletion or a permission change. Both relations are checked
// independently; a missing record is the expected case, not an error.
func (e *Engine) HandleRoomDeleted(ctx context.Context, ev platform.RoomDeleted) {
	log := e.eventLogger(ctx).With(zap.String("room_id", ev.RoomID))

	def, err := e.registry.DefinitionByRoomID(ctx, ev.RoomID)
	if err != nil {
		e.logFailure(log, "definition lookup failed during deletion cleanup", err)
	} else if def != nil {
		if err := e.registry.DeleteDefinition(ctx, ev.RoomID); err != nil {
			e.logFailure(log, "failed to remove creation channel definition", err)
		} else {
			log.Info("removed creation channel definition after external deletion",
				zap.String("name", def.Name))
		}
	}

	record, err := e.registry.SpawnedChannelByRoomID(ctx, ev.RoomID)
	if err != nil {
		e.logFailure(log, "spawned room lookup failed during deletion cleanup", err)
	} else if record != nil {
		if err := e.registry.DeleteSpawnedChannel(ctx, ev.RoomID); err != nil {
			e.logFailure(log, "failed to untrack spawned room", err)
		} else {
			log.Info("untracked spawned room after external deletion")
		}
	}
}

// logFailure applies the severity taxonomy: no-access failures are
// informational (the room may have been deleted by a party whose
// permissions changed mid-flight), missing manage rights get the
// actionable message, everything else is an operational error.
func (e *Engine) logFailure(log *zap.Logger, msg string, err error) {
	switch {
	case errors.Is(err, platform.ErrNoAccess):
		log.Info(msg, zap.Error(err))
	case errors.Is(err, platform.ErrPermissionDenied):
		log.Error(msg+": bot lacks the manage-rooms permission", zap.Error(err))
	default:
		log.Error(msg, zap.Error(err))
	}
}

func (e *Engine) eventLogger(ctx context.Context) *zap.Logger {
	if eventID := cctx.EventIDFromContext(ctx); eventID != "" {
		return zap.L().With(zap.String("event_id", eventID))
	}
	return zap.L()
}

// spawnOverwrites assembles the full rule set for a spawned room: the
// creator may rename and manage their room, the role gate comes from
// the definition, and the bot always keeps connect and manage rights.
func (e *Engine) spawnOverwrites(creatorID string, requiredRoleID, joinRoleID *string) []platform.Overwrite {
	overwrites := []platform.Overwrite{
		{
			Target:   platform.TargetMember,
			TargetID: creatorID,
			Allow:    platform.PermManageRoom,
		},
	}

	policy := platform.SynthesizeAccess(requiredRoleID, joinRoleID, e.botUserID)
	if policy == nil {
		// Default-open room; still keep the bot in charge of it.
		policy = []platform.Overwrite{
			{
				Target:   platform.TargetMember,
				TargetID: e.botUserID,
				Allow:    platform.PermConnect | platform.PermManageRoom,
			},
		}
	}

	return append(overwrites, policy...)
}

func spawnedRoomName(ev platform.PresenceTransition) string {
	name := ev.DisplayName
	if name == "" {
		name = ev.Username
	}
	if name == "" {
		name = "User"
	}
	return fmt.Sprintf("%s's channel", name)
}
