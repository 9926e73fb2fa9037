package proto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// User is the public view of an account as embedded in events and API replies.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator int    `json:"discriminator"`
}

// Tag renders the user's display handle ("name#0042" style without padding).
func (u User) Tag() string {
	return fmt.Sprintf("%s:%d", u.Username, u.Discriminator)
}

// Guild is a named grouping of channels and members.
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChannelLocationKind discriminates where a channel lives.
type ChannelLocationKind string

const (
	ChannelLocationDM    ChannelLocationKind = "dm"
	ChannelLocationGuild ChannelLocationKind = "guild"
)

// ChannelLocation is either a direct-message member list or a guild reference.
// Wire shape: {"type":"dm","members":[...]} or {"type":"guild","id":"..."}.
type ChannelLocation struct {
	Kind    ChannelLocationKind
	Members []string // dm only
	GuildID string   // guild only
}

func (l ChannelLocation) MarshalJSON() ([]byte, error) {
	switch l.Kind {
	case ChannelLocationDM:
		return json.Marshal(struct {
			Type    string   `json:"type"`
			Members []string `json:"members"`
		}{Type: "dm", Members: l.Members})
	case ChannelLocationGuild:
		return json.Marshal(struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		}{Type: "guild", ID: l.GuildID})
	default:
		return nil, fmt.Errorf("proto: unknown channel location %q", l.Kind)
	}
}

func (l *ChannelLocation) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type    string   `json:"type"`
		Members []string `json:"members"`
		ID      string   `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case "dm":
		*l = ChannelLocation{Kind: ChannelLocationDM, Members: raw.Members}
	case "guild":
		if raw.ID == "" {
			return errors.New("proto: guild channel location requires id")
		}
		*l = ChannelLocation{Kind: ChannelLocationGuild, GuildID: raw.ID}
	default:
		return fmt.Errorf("proto: unknown channel location type %q", raw.Type)
	}
	return nil
}

// Channel is a message container, either a DM or part of a guild.
type Channel struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Location ChannelLocation `json:"location"`
}

// Message is a single chat message.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	AuthorID  string `json:"author_id,omitempty"`
	Content   string `json:"content"`
	Created   string `json:"created"` // RFC 3339
}

// MessageResponse is the self-contained payload announcing a message.
type MessageResponse struct {
	Message Message `json:"message"`
	Channel Channel `json:"channel"`
	Author  *User   `json:"author,omitempty"`
}

// ChannelResponse is the self-contained payload announcing a channel.
type ChannelResponse struct {
	Channel Channel `json:"channel"`
}

// GuildResponse is the self-contained payload announcing a guild.
type GuildResponse struct {
	Guild Guild `json:"guild"`
	Owner User  `json:"owner"`
}
