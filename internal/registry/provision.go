package registry

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/voicespawn/backend/internal/database/models"
	"github.com/voicespawn/backend/internal/platform"
)

const provisionReason = "provisioning voice room creation channel"

// Provisioner implements the configuration-upsert boundary. Unlike the
// plain Registry it is not purely a data layer: ensuring a definition
// also means ensuring a real spawner room exists on the platform and
// matches the configured policy.
type Provisioner struct {
	registry  *Registry
	rooms     platform.RoomManager
	botUserID string
}

func NewProvisioner(registry *Registry, rooms platform.RoomManager, botUserID string) *Provisioner {
	return &Provisioner{
		registry:  registry,
		rooms:     rooms,
		botUserID: botUserID,
	}
}

// EnsureParams carries the policy fields of a creation channel. Nil
// optionals clear the corresponding gate.
type EnsureParams struct {
	GuildID        string
	Name           string
	RequiredRoleID *string
	JoinRoleID     *string
	UserLimit      *int
}

// EnsureCreationChannel looks up a definition by (guild, name). If one
// exists its policy fields are updated in place, keeping the room id,
// and the live spawner room is brought in line with the new policy.
// Otherwise a fresh room is provisioned first and a new definition is
// persisted for it.
//
// A platform.ErrPermissionDenied from provisioning propagates to the
// caller untouched so the administrator gets the distinct remediation
// hint.
func (p *Provisioner) EnsureCreationChannel(ctx context.Context, params EnsureParams) (def *models.CreationChannel, wasCreated bool, err error) {
	if def, err = p.registry.DefinitionByName(ctx, params.GuildID, params.Name); err != nil {
		err = fmt.Errorf("definition lookup: %w", err)
		return
	}

	if def != nil {
		err = p.updateExisting(ctx, def, params)
		return
	}

	def, err = p.createFresh(ctx, params)
	wasCreated = err == nil
	return
}

func (p *Provisioner) updateExisting(ctx context.Context, def *models.CreationChannel, params EnsureParams) (err error) {
	def.RequiredRoleID = params.RequiredRoleID
	def.JoinRoleID = params.JoinRoleID
	def.UserLimit = params.UserLimit

	if err = p.registry.updateDefinitionPolicy(ctx, def); err != nil {
		err = fmt.Errorf("definition update: %w", err)
		return
	}

	// Bring the live room in line with the new policy. The record is
	// already updated; a failure here leaves the room stale until the
	// next upsert, which is tolerable and logged.
	limit := 0
	if params.UserLimit != nil {
		limit = *params.UserLimit
	}
	overwrites := platform.SynthesizeAccess(params.RequiredRoleID, params.JoinRoleID, p.botUserID)

	if err := p.rooms.UpdateRoomAccess(ctx, def.ID, &limit, overwrites); err != nil {
		zap.L().Error("failed to update live spawner room",
			zap.String("room_id", def.ID),
			zap.Error(err))
	}

	return
}

func (p *Provisioner) createFresh(ctx context.Context, params EnsureParams) (def *models.CreationChannel, err error) {
	var allowed bool
	if allowed, err = p.rooms.HasManageRights(ctx, params.GuildID); err != nil {
		err = fmt.Errorf("rights check: %w", err)
		return
	}
	if !allowed {
		err = fmt.Errorf("guild %s: %w", params.GuildID, platform.ErrPermissionDenied)
		return
	}

	limit := 0
	if params.UserLimit != nil {
		limit = *params.UserLimit
	}

	var roomID string
	roomID, err = p.rooms.CreateRoom(ctx, platform.CreateRoomParams{
		GuildID:    params.GuildID,
		Name:       params.Name,
		UserLimit:  limit,
		Overwrites: platform.SynthesizeAccess(params.RequiredRoleID, params.JoinRoleID, p.botUserID),
		Reason:     provisionReason,
	})
	if err != nil {
		err = fmt.Errorf("spawner room creation: %w", err)
		return
	}

	def = &models.CreationChannel{
		ID:             roomID,
		GuildID:        params.GuildID,
		Name:           params.Name,
		RequiredRoleID: params.RequiredRoleID,
		JoinRoleID:     params.JoinRoleID,
		UserLimit:      params.UserLimit,
	}

	if err = p.registry.insertDefinition(ctx, def); err != nil {
		err = fmt.Errorf("definition insert: %w", err)
		def = nil
	}

	return
}
