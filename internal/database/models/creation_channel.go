package models

import (
	"time"

	"github.com/uptrace/bun"
)

// CreationChannel is a configured spawner room: joining it triggers the
// creation of a personal voice room. At most one definition per
// (guild_id, name) is authoritative.
type CreationChannel struct {
	bun.BaseModel `bun:"table:creation_channels"`

	ID             string `bun:",pk"`
	GuildID        string
	Name           string
	RequiredRoleID *string
	JoinRoleID     *string
	UserLimit      *int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
