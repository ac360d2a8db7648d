package registry

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/voicespawn/backend/internal/database/models"
)

// Registry is the durable store for creation-channel definitions and
// spawned-room tracking records. It is purely a data layer: every
// operation is a point lookup, scan, insert, update or delete, all of
// them idempotent on absence. Lookups return a nil record, not an
// error, when nothing matches.
type Registry struct {
	db *bun.DB
}

func New(db *bun.DB) *Registry {
	return &Registry{
		db: db,
	}
}

func (r *Registry) DefinitionsForGuild(ctx context.Context, guildID string) (defs []models.CreationChannel, err error) {
	defs = make([]models.CreationChannel, 0)
	err = r.db.NewSelect().
		Model(&defs).
		Where("guild_id = ?", guildID).
		Scan(ctx)
	return
}

func (r *Registry) DefinitionByRoomID(ctx context.Context, roomID string) (def *models.CreationChannel, err error) {
	def = new(models.CreationChannel)
	err = r.db.NewSelect().
		Model(def).
		Where("id = ?", roomID).
		Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		def, err = nil, nil
	}
	return
}

func (r *Registry) DefinitionByName(ctx context.Context, guildID, name string) (def *models.CreationChannel, err error) {
	def = new(models.CreationChannel)
	err = r.db.NewSelect().
		Model(def).
		Where("guild_id = ?", guildID).
		Where("name = ?", name).
		Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		def, err = nil, nil
	}
	return
}

func (r *Registry) DeleteDefinition(ctx context.Context, roomID string) (err error) {
	_, err = r.db.NewDelete().
		Model((*models.CreationChannel)(nil)).
		Where("id = ?", roomID).
		Exec(ctx)
	return
}

func (r *Registry) insertDefinition(ctx context.Context, def *models.CreationChannel) (err error) {
	now := time.Now()
	def.CreatedAt = now
	def.UpdatedAt = now

	_, err = r.db.NewInsert().
		Model(def).
		Exec(ctx)
	return
}

// updateDefinitionPolicy rewrites the policy fields of an existing
// definition in place, keeping its room id.
func (r *Registry) updateDefinitionPolicy(ctx context.Context, def *models.CreationChannel) (err error) {
	def.UpdatedAt = time.Now()

	_, err = r.db.NewUpdate().
		Model(def).
		Column("required_role_id", "join_role_id", "user_limit", "updated_at").
		Where("id = ?", def.ID).
		Exec(ctx)
	return
}

func (r *Registry) TrackSpawnedChannel(ctx context.Context, roomID, guildID, creatorID string) (err error) {
	record := models.SpawnedChannel{
		ID:        roomID,
		GuildID:   guildID,
		CreatorID: creatorID,
		CreatedAt: time.Now(),
	}

	_, err = r.db.NewInsert().
		Model(&record).
		Exec(ctx)
	return
}

func (r *Registry) SpawnedChannelByRoomID(ctx context.Context, roomID string) (record *models.SpawnedChannel, err error) {
	record = new(models.SpawnedChannel)
	err = r.db.NewSelect().
		Model(record).
		Where("id = ?", roomID).
		Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		record, err = nil, nil
	}
	return
}

func (r *Registry) DeleteSpawnedChannel(ctx context.Context, roomID string) (err error) {
	_, err = r.db.NewDelete().
		Model((*models.SpawnedChannel)(nil)).
		Where("id = ?", roomID).
		Exec(ctx)
	return
}
