// Package chat orchestrates guild/channel/message creation: it validates
// input, persists through the store, computes the recipient set, and hands the
// resulting event to the gateway dispatcher.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/concord-im/concord/internal/core"
	"github.com/concord-im/concord/internal/proto"
	"github.com/concord-im/concord/internal/store"
	"github.com/concord-im/concord/internal/utils"
)

var (
	// ErrChannelNotFound is returned when a channel id resolves to nothing.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrGuildNotFound is returned when a guild id resolves to nothing.
	ErrGuildNotFound = errors.New("guild not found")
	// ErrMessageNotFound is returned when a message id resolves to nothing.
	ErrMessageNotFound = errors.New("message not found")
	// ErrAccessDenied is returned when the caller is not a member of the channel.
	ErrAccessDenied = errors.New("channel access denied")
	// ErrEmptyContent is returned for messages with no content.
	ErrEmptyContent = errors.New("message content is empty")
)

// Max page size for message history queries.
const maxHistoryLimit = 25

// Service implements the CRUD side of the system. The gateway consumes its
// events; it never computes recipient sets itself.
type Service struct {
	store    store.Store
	dispatch *core.Dispatcher
	log      *zerolog.Logger
}

// NewService creates the chat service.
func NewService(st store.Store, dispatch *core.Dispatcher, logger *zerolog.Logger) *Service {
	return &Service{store: st, dispatch: dispatch, log: logger}
}

// CreateGuild persists a guild with the creator as owner and first member, and
// announces it to the creator's live sessions.
func (s *Service) CreateGuild(ctx context.Context, owner proto.User, name string) (*proto.GuildResponse, error) {
	guild := &store.Guild{
		ID:        utils.NewID(),
		Name:      utils.SpacedName(name),
		OwnerID:   owner.ID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateGuild(ctx, guild); err != nil {
		return nil, fmt.Errorf("create guild: %w", err)
	}
	if err := s.store.AddGuildMember(ctx, guild.ID, owner.ID); err != nil {
		// Don't leave a guild nobody belongs to behind.
		if delErr := s.store.DeleteGuild(ctx, guild.ID); delErr != nil {
			s.log.Warn().Err(delErr).Str("guild_id", guild.ID).Msg("failed to roll back memberless guild")
		}
		return nil, fmt.Errorf("add owner membership: %w", err)
	}

	resp := proto.GuildResponse{
		Guild: proto.Guild{ID: guild.ID, Name: guild.Name},
		Owner: owner,
	}
	s.dispatch.ToUser(owner.ID, proto.GuildCreateEvent(resp))
	return &resp, nil
}

// ListGuilds returns every guild the user belongs to.
func (s *Service) ListGuilds(ctx context.Context, userID string) ([]proto.GuildResponse, error) {
	guilds, err := s.store.GuildsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}

	out := make([]proto.GuildResponse, 0, len(guilds))
	for _, guild := range guilds {
		resp := proto.GuildResponse{Guild: proto.Guild{ID: guild.ID, Name: guild.Name}}
		if owner, err := s.store.GetUser(ctx, guild.OwnerID); err == nil {
			resp.Owner = proto.User{ID: owner.ID, Username: owner.Username, Discriminator: owner.Discriminator}
		}
		out = append(out, resp)
	}
	return out, nil
}

// JoinGuild adds the user to a guild's member set.
func (s *Service) JoinGuild(ctx context.Context, userID, guildID string) error {
	if _, err := s.store.GetGuild(ctx, guildID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrGuildNotFound
		}
		return fmt.Errorf("fetch guild: %w", err)
	}
	if err := s.store.AddGuildMember(ctx, guildID, userID); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// CreateChannel persists a channel and announces it to all its members. DM
// channels always include the creator in the member list; guild channels
// require the creator to be a guild member.
func (s *Service) CreateChannel(ctx context.Context, creator proto.User, name string, location proto.ChannelLocation) (*proto.ChannelResponse, error) {
	channel := &store.Channel{
		ID:   utils.NewID(),
		Name: utils.DashedName(name),
	}

	switch location.Kind {
	case proto.ChannelLocationDM:
		channel.Kind = store.ChannelKindDM
		channel.Members = withMember(location.Members, creator.ID)
	case proto.ChannelLocationGuild:
		channel.Kind = store.ChannelKindGuild
		channel.GuildID = location.GuildID
		if _, err := s.store.GetGuild(ctx, location.GuildID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrGuildNotFound
			}
			return nil, fmt.Errorf("fetch guild: %w", err)
		}
		members, err := s.store.GuildMemberIDs(ctx, location.GuildID)
		if err != nil {
			return nil, fmt.Errorf("fetch guild members: %w", err)
		}
		if !contains(members, creator.ID) {
			return nil, ErrAccessDenied
		}
	default:
		return nil, fmt.Errorf("unknown channel location %q", location.Kind)
	}

	if err := s.store.CreateChannel(ctx, channel); err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}

	recipients, err := s.channelRecipients(ctx, channel)
	if err != nil {
		return nil, err
	}

	s.log.Debug().Str("channel_id", channel.ID).Int("recipients", len(recipients)).Msg("channel created")

	resp := proto.ChannelResponse{Channel: channelToProto(channel)}
	s.dispatch.ToUsers(recipients, proto.ChannelCreateEvent(resp))
	return &resp, nil
}

// GetChannel returns a channel to one of its members.
func (s *Service) GetChannel(ctx context.Context, userID, channelID string) (*proto.ChannelResponse, error) {
	channel, recipients, err := s.fetchChannelWithRecipients(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !contains(recipients, userID) {
		return nil, ErrAccessDenied
	}
	return &proto.ChannelResponse{Channel: channelToProto(channel)}, nil
}

// CreateMessage persists a message and fans it out to every member of the
// channel, including the author's own other sessions.
func (s *Service) CreateMessage(ctx context.Context, author proto.User, channelID, content string) (*proto.MessageResponse, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}

	channel, recipients, err := s.fetchChannelWithRecipients(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !contains(recipients, author.ID) {
		return nil, ErrAccessDenied
	}

	msg := &store.Message{
		ID:        utils.NewID(),
		ChannelID: channel.ID,
		AuthorID:  author.ID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	s.log.Debug().Str("message_id", msg.ID).Str("channel_id", channel.ID).Int("recipients", len(recipients)).Msg("message created")

	resp := proto.MessageResponse{
		Message: messageToProto(msg),
		Channel: channelToProto(channel),
		Author:  &author,
	}
	s.dispatch.ToUsers(recipients, proto.MessageCreateEvent(resp))
	return &resp, nil
}

// GetMessage returns one message to a member of its channel.
func (s *Service) GetMessage(ctx context.Context, userID, messageID string) (*proto.MessageResponse, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("fetch message: %w", err)
	}

	channel, recipients, err := s.fetchChannelWithRecipients(ctx, msg.ChannelID)
	if err != nil {
		return nil, err
	}
	if !contains(recipients, userID) {
		return nil, ErrAccessDenied
	}

	resp := s.messageResponse(ctx, msg, channel)
	return &resp, nil
}

// MessagesBefore pages backwards through a channel's history, oldest first.
// An empty beforeID means "from the newest message".
func (s *Service) MessagesBefore(ctx context.Context, userID, channelID, beforeID string, limit int) ([]proto.MessageResponse, error) {
	channel, recipients, err := s.fetchChannelWithRecipients(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !contains(recipients, userID) {
		return nil, ErrAccessDenied
	}

	if beforeID == "" {
		// "~" sorts after any ULID.
		beforeID = "~"
	}
	msgs, err := s.store.MessagesBefore(ctx, channelID, beforeID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return s.messageResponses(ctx, msgs, channel), nil
}

// MessagesAfter pages forwards through a channel's history, oldest first.
func (s *Service) MessagesAfter(ctx context.Context, userID, channelID, afterID string, limit int) ([]proto.MessageResponse, error) {
	channel, recipients, err := s.fetchChannelWithRecipients(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !contains(recipients, userID) {
		return nil, ErrAccessDenied
	}

	msgs, err := s.store.MessagesAfter(ctx, channelID, afterID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return s.messageResponses(ctx, msgs, channel), nil
}

func (s *Service) fetchChannelWithRecipients(ctx context.Context, channelID string) (*store.Channel, []string, error) {
	channel, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrChannelNotFound
		}
		return nil, nil, fmt.Errorf("fetch channel: %w", err)
	}
	recipients, err := s.channelRecipients(ctx, channel)
	if err != nil {
		return nil, nil, err
	}
	return channel, recipients, nil
}

// channelRecipients computes the user ids allowed to see a channel: the stored
// member list for DMs, the guild's member set otherwise.
func (s *Service) channelRecipients(ctx context.Context, channel *store.Channel) ([]string, error) {
	switch channel.Kind {
	case store.ChannelKindDM:
		return channel.Members, nil
	case store.ChannelKindGuild:
		members, err := s.store.GuildMemberIDs(ctx, channel.GuildID)
		if err != nil {
			return nil, fmt.Errorf("fetch guild members: %w", err)
		}
		return members, nil
	default:
		return nil, fmt.Errorf("unknown channel kind %q", channel.Kind)
	}
}

func (s *Service) messageResponses(ctx context.Context, msgs []store.Message, channel *store.Channel) []proto.MessageResponse {
	out := make([]proto.MessageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, s.messageResponse(ctx, &msgs[i], channel))
	}
	return out
}

func (s *Service) messageResponse(ctx context.Context, msg *store.Message, channel *store.Channel) proto.MessageResponse {
	resp := proto.MessageResponse{
		Message: messageToProto(msg),
		Channel: channelToProto(channel),
	}
	// Author lookup is best-effort; deleted accounts leave it unset.
	if msg.AuthorID != "" {
		if author, err := s.store.GetUser(ctx, msg.AuthorID); err == nil {
			resp.Author = &proto.User{
				ID:            author.ID,
				Username:      author.Username,
				Discriminator: author.Discriminator,
			}
		}
	}
	return resp
}

func channelToProto(channel *store.Channel) proto.Channel {
	out := proto.Channel{ID: channel.ID, Name: channel.Name}
	switch channel.Kind {
	case store.ChannelKindDM:
		out.Location = proto.ChannelLocation{Kind: proto.ChannelLocationDM, Members: channel.Members}
	case store.ChannelKindGuild:
		out.Location = proto.ChannelLocation{Kind: proto.ChannelLocationGuild, GuildID: channel.GuildID}
	}
	return out
}

func messageToProto(msg *store.Message) proto.Message {
	return proto.Message{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		AuthorID:  msg.AuthorID,
		Content:   msg.Content,
		Created:   msg.CreatedAt.Format(time.RFC3339),
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func withMember(members []string, id string) []string {
	if contains(members, id) {
		return members
	}
	return append(members, id)
}
