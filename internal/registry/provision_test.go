package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicespawn/backend/internal/platform"
)

type fakeRooms struct {
	mu sync.Mutex

	manageRights bool
	nextRoomID   string
	createErr    error
	updateErr    error

	createCalls []platform.CreateRoomParams
	updateCalls []string
}

var _ platform.RoomManager = (*fakeRooms)(nil)

func (f *fakeRooms) CreateRoom(ctx context.Context, params platform.CreateRoomParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return "", f.createErr
	}
	f.createCalls = append(f.createCalls, params)
	return f.nextRoomID, nil
}

func (f *fakeRooms) MoveMember(ctx context.Context, guildID, memberID, roomID string) error {
	return nil
}

func (f *fakeRooms) DeleteRoom(ctx context.Context, roomID, reason string) error {
	return nil
}

func (f *fakeRooms) UpdateRoomAccess(ctx context.Context, roomID string, userLimit *int, overwrites []platform.Overwrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return f.updateErr
	}
	f.updateCalls = append(f.updateCalls, roomID)
	return nil
}

func (f *fakeRooms) LiveOccupancy(ctx context.Context, roomID string) (int, error) {
	return 0, nil
}

func (f *fakeRooms) RoomParent(ctx context.Context, roomID string) (string, error) {
	return "", nil
}

func (f *fakeRooms) HasManageRights(ctx context.Context, guildID string) (bool, error) {
	return f.manageRights, nil
}

func strPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}

func TestEnsureCreationChannelCreatesFresh(t *testing.T) {
	ctx := context.Background()
	r := New(testDB(t))
	rooms := &fakeRooms{manageRights: true, nextRoomID: "room-new"}
	p := NewProvisioner(r, rooms, "bot-1")

	def, wasCreated, err := p.EnsureCreationChannel(ctx, EnsureParams{
		GuildID:        "guild-1",
		Name:           "Create a channel",
		RequiredRoleID: strPtr("role-1"),
		UserLimit:      intPtr(10),
	})
	require.NoError(t, err)
	assert.True(t, wasCreated)
	require.NotNil(t, def)
	assert.Equal(t, "room-new", def.ID)

	// The backing room was provisioned with the synthesized policy.
	require.Len(t, rooms.createCalls, 1)
	created := rooms.createCalls[0]
	assert.Equal(t, "Create a channel", created.Name)
	assert.Equal(t, 10, created.UserLimit)
	require.Len(t, created.Overwrites, 3)
	assert.Equal(t, platform.TargetEveryone, created.Overwrites[0].Target)

	// And the record landed in the registry.
	got, err := r.DefinitionByRoomID(ctx, "room-new")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "guild-1", got.GuildID)
}

func TestEnsureCreationChannelUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	r := New(testDB(t))
	rooms := &fakeRooms{manageRights: true, nextRoomID: "room-1"}
	p := NewProvisioner(r, rooms, "bot-1")

	_, wasCreated, err := p.EnsureCreationChannel(ctx, EnsureParams{
		GuildID: "guild-1",
		Name:    "Create a channel",
	})
	require.NoError(t, err)
	require.True(t, wasCreated)

	def, wasCreated, err := p.EnsureCreationChannel(ctx, EnsureParams{
		GuildID:    "guild-1",
		Name:       "Create a channel",
		JoinRoleID: strPtr("role-join"),
		UserLimit:  intPtr(4),
	})
	require.NoError(t, err)
	assert.False(t, wasCreated)
	require.NotNil(t, def)
	assert.Equal(t, "room-1", def.ID, "upsert by name must keep the original room id")

	// Only one room was ever provisioned; the second call pushed the new
	// policy to the existing one instead.
	assert.Len(t, rooms.createCalls, 1)
	assert.Equal(t, []string{"room-1"}, rooms.updateCalls)

	got, err := r.DefinitionByRoomID(ctx, "room-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.JoinRoleID)
	assert.Equal(t, "role-join", *got.JoinRoleID)
}

func TestEnsureCreationChannelPermissionDenied(t *testing.T) {
	ctx := context.Background()
	r := New(testDB(t))
	rooms := &fakeRooms{manageRights: false}
	p := NewProvisioner(r, rooms, "bot-1")

	def, wasCreated, err := p.EnsureCreationChannel(ctx, EnsureParams{
		GuildID: "guild-1",
		Name:    "Create a channel",
	})
	require.ErrorIs(t, err, platform.ErrPermissionDenied)
	assert.False(t, wasCreated)
	assert.Nil(t, def)
	assert.Empty(t, rooms.createCalls)

	// No half-written definition either.
	defs, err := r.DefinitionsForGuild(ctx, "guild-1")
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestEnsureCreationChannelLiveUpdateFailureIsTolerated(t *testing.T) {
	ctx := context.Background()
	r := New(testDB(t))
	rooms := &fakeRooms{manageRights: true, nextRoomID: "room-1"}
	p := NewProvisioner(r, rooms, "bot-1")

	_, _, err := p.EnsureCreationChannel(ctx, EnsureParams{
		GuildID: "guild-1",
		Name:    "Create a channel",
	})
	require.NoError(t, err)

	rooms.updateErr = platform.ErrOperationFailed

	def, wasCreated, err := p.EnsureCreationChannel(ctx, EnsureParams{
		GuildID:   "guild-1",
		Name:      "Create a channel",
		UserLimit: intPtr(2),
	})
	require.NoError(t, err, "a stale live room is tolerable, the record still updates")
	assert.False(t, wasCreated)
	require.NotNil(t, def)

	got, err := r.DefinitionByRoomID(ctx, "room-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.UserLimit)
	assert.Equal(t, 2, *got.UserLimit)
}
