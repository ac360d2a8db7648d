package models

import (
	"time"

	"github.com/uptrace/bun"
)

// SpawnedChannel tracks a voice room this service created off a
// creation channel. A row exists exactly while the live room does; the
// row is removed just before the room is torn down, or when the
// platform reports an out-of-band deletion.
type SpawnedChannel struct {
	bun.BaseModel `bun:"table:spawned_channels"`

	ID        string `bun:",pk"`
	GuildID   string
	CreatorID string
	CreatedAt time.Time
}
