package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups for missing records.
var ErrNotFound = errors.New("store: not found")

// User represents an account.
type User struct {
	ID               string
	Username         string
	Discriminator    int
	PasswordHash     string
	GatewayConnected bool
	CreatedAt        time.Time
}

// Guild represents a guild (a named community of members and channels).
type Guild struct {
	ID        string
	Name      string
	OwnerID   string
	CreatedAt time.Time
}

// GuildMember represents guild membership.
type GuildMember struct {
	GuildID  string
	UserID   string
	JoinedAt time.Time
}

// ChannelKind discriminates where a channel lives.
type ChannelKind string

const (
	ChannelKindDM    ChannelKind = "dm"
	ChannelKindGuild ChannelKind = "guild"
)

// Channel represents a message container: a DM with an explicit member list,
// or a channel belonging to a guild.
type Channel struct {
	ID      string
	Name    string
	Kind    ChannelKind
	Members []string // dm only
	GuildID string   // guild only
}

// Message represents a persisted chat message.
type Message struct {
	ID        string
	ChannelID string
	AuthorID  string
	Content   string
	CreatedAt time.Time
}

// UserStore manages user persistence.
type UserStore interface {
	// CreateUser allocates a free discriminator for the username and inserts
	// the user. Returns ErrDiscriminatorsExhausted when no tag is available.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	// GetUserByTag looks a user up by username plus discriminator.
	GetUserByTag(ctx context.Context, username string, discriminator int) (*User, error)
	SetGatewayConnected(ctx context.Context, id string, connected bool) error
}

// ErrDiscriminatorsExhausted is returned when a username has no free discriminator left.
var ErrDiscriminatorsExhausted = errors.New("store: no free discriminator for username")

// GuildStore manages guild and membership persistence.
type GuildStore interface {
	CreateGuild(ctx context.Context, guild *Guild) error
	GetGuild(ctx context.Context, id string) (*Guild, error)
	// DeleteGuild removes the guild and its membership rows. Deleting a
	// missing guild is a no-op.
	DeleteGuild(ctx context.Context, id string) error
	AddGuildMember(ctx context.Context, guildID, userID string) error
	// GuildMemberIDs returns the user ids of every member of the guild.
	GuildMemberIDs(ctx context.Context, guildID string) ([]string, error)
	// GuildsForUser returns every guild the user is a member of.
	GuildsForUser(ctx context.Context, userID string) ([]Guild, error)
}

// ChannelStore manages channel persistence.
type ChannelStore interface {
	CreateChannel(ctx context.Context, channel *Channel) error
	GetChannel(ctx context.Context, id string) (*Channel, error)
}

// MessageStore manages message persistence. History queries lean on ULID ids
// being ordered by creation time.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	// MessagesBefore returns up to limit messages older than the given id,
	// oldest first.
	MessagesBefore(ctx context.Context, channelID, beforeID string, limit int) ([]Message, error)
	// MessagesAfter returns up to limit messages newer than the given id,
	// oldest first.
	MessagesAfter(ctx context.Context, channelID, afterID string, limit int) ([]Message, error)
}

// Store combines all storage interfaces.
type Store interface {
	UserStore
	GuildStore
	ChannelStore
	MessageStore
	Close(ctx context.Context) error
}
