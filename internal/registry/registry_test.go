package registry

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/voicespawn/backend/internal/database/models"
)

func testDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	// A pooled second connection would see its own empty :memory:
	// database.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.CreationChannel)(nil),
		(*models.SpawnedChannel)(nil),
	} {
		_, err := db.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}

	return db
}

func insertTestDefinition(t *testing.T, r *Registry, id, guildID, name string) *models.CreationChannel {
	t.Helper()

	def := &models.CreationChannel{
		ID:      id,
		GuildID: guildID,
		Name:    name,
	}
	require.NoError(t, r.insertDefinition(context.Background(), def))
	return def
}

func TestDefinitionLookups(t *testing.T) {
	ctx := context.Background()
	r := New(testDB(t))

	insertTestDefinition(t, r, "room-1", "guild-1", "Create a channel")
	insertTestDefinition(t, r, "room-2", "guild-1", "Create a staff channel")
	insertTestDefinition(t, r, "room-3", "guild-2", "Create a channel")

	defs, err := r.DefinitionsForGuild(ctx, "guild-1")
	require.NoError(t, err)
	assert.Len(t, defs, 2)

	def, err := r.DefinitionByRoomID(ctx, "room-3")
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "guild-2", def.GuildID)

	def, err = r.DefinitionByRoomID(ctx, "room-missing")
	require.NoError(t, err)
	assert.Nil(t, def)

	def, err = r.DefinitionByName(ctx, "guild-1", "Create a staff channel")
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "room-2", def.ID)

	def, err = r.DefinitionByName(ctx, "guild-2", "Create a staff channel")
	require.NoError(t, err)
	assert.Nil(t, def)
}

func TestDeleteDefinitionIdempotent(t *testing.T) {
	ctx := context.Background()
	r := New(testDB(t))

	insertTestDefinition(t, r, "room-1", "guild-1", "Create a channel")

	require.NoError(t, r.DeleteDefinition(ctx, "room-1"))
	require.NoError(t, r.DeleteDefinition(ctx, "room-1"))

	def, err := r.DefinitionByRoomID(ctx, "room-1")
	require.NoError(t, err)
	assert.Nil(t, def)
}

func TestSpawnedChannelRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := New(testDB(t))

	require.NoError(t, r.TrackSpawnedChannel(ctx, "room-1", "guild-1", "member-1"))

	record, err := r.SpawnedChannelByRoomID(ctx, "room-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "member-1", record.CreatorID)
	assert.False(t, record.CreatedAt.IsZero())

	record, err = r.SpawnedChannelByRoomID(ctx, "room-other")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestDeleteSpawnedChannelIdempotent(t *testing.T) {
	ctx := context.Background()
	r := New(testDB(t))

	require.NoError(t, r.TrackSpawnedChannel(ctx, "room-1", "guild-1", "member-1"))

	require.NoError(t, r.DeleteSpawnedChannel(ctx, "room-1"))
	require.NoError(t, r.DeleteSpawnedChannel(ctx, "room-1"))
	require.NoError(t, r.DeleteSpawnedChannel(ctx, "room-never-existed"))

	record, err := r.SpawnedChannelByRoomID(ctx, "room-1")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestUpdateDefinitionPolicyKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	r := New(testDB(t))

	def := insertTestDefinition(t, r, "room-1", "guild-1", "Create a channel")
	originalUpdatedAt := def.UpdatedAt

	time.Sleep(10 * time.Millisecond)

	limit := 5
	role := "role-1"
	def.UserLimit = &limit
	def.JoinRoleID = &role
	require.NoError(t, r.updateDefinitionPolicy(ctx, def))

	got, err := r.DefinitionByRoomID(ctx, "room-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "room-1", got.ID)
	require.NotNil(t, got.UserLimit)
	assert.Equal(t, 5, *got.UserLimit)
	require.NotNil(t, got.JoinRoleID)
	assert.Equal(t, "role-1", *got.JoinRoleID)
	assert.False(t, got.UpdatedAt.Before(originalUpdatedAt))
}
