package memory

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/concord-im/concord/internal/store"
	"github.com/concord-im/concord/internal/utils"
)

// Store is an in-memory store.Store. It backs unit tests and the dev fallback
// when no MongoDB URI is configured.
type Store struct {
	mu sync.Mutex

	users    map[string]store.User
	guilds   map[string]store.Guild
	members  map[string]map[string]time.Time // guild id -> user id -> joined
	channels map[string]store.Channel
	messages map[string]store.Message
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:    make(map[string]store.User),
		guilds:   make(map[string]store.Guild),
		members:  make(map[string]map[string]time.Time),
		channels: make(map[string]store.Channel),
		messages: make(map[string]store.Message),
	}
}

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) CreateUser(_ context.Context, username, passwordHash string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	discriminator := rand.IntN(9999) + 1
	for attempts := 1; s.tagTakenLocked(username, discriminator); attempts++ {
		if attempts >= 9999 {
			return nil, store.ErrDiscriminatorsExhausted
		}
		discriminator = rand.IntN(9999) + 1
	}

	user := store.User{
		ID:            utils.NewID(),
		Username:      username,
		Discriminator: discriminator,
		PasswordHash:  passwordHash,
		CreatedAt:     time.Now().UTC(),
	}
	s.users[user.ID] = user
	return &user, nil
}

func (s *Store) tagTakenLocked(username string, discriminator int) bool {
	for _, u := range s.users {
		if u.Username == username && u.Discriminator == discriminator {
			return true
		}
	}
	return false
}

func (s *Store) GetUser(_ context.Context, id string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) GetUserByTag(_ context.Context, username string, discriminator int) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username && u.Discriminator == discriminator {
			user := u
			return &user, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) SetGatewayConnected(_ context.Context, id string, connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.GatewayConnected = connected
	s.users[id] = user
	return nil
}

func (s *Store) CreateGuild(_ context.Context, guild *store.Guild) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guilds[guild.ID] = *guild
	return nil
}

func (s *Store) GetGuild(_ context.Context, id string) (*store.Guild, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	guild, ok := s.guilds[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &guild, nil
}

func (s *Store) DeleteGuild(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guilds, id)
	delete(s.members, id)
	return nil
}

func (s *Store) AddGuildMember(_ context.Context, guildID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[guildID] == nil {
		s.members[guildID] = make(map[string]time.Time)
	}
	if _, ok := s.members[guildID][userID]; !ok {
		s.members[guildID][userID] = time.Now().UTC()
	}
	return nil
}

func (s *Store) GuildMemberIDs(_ context.Context, guildID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id := range s.members[guildID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) GuildsForUser(_ context.Context, userID string) ([]store.Guild, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var guilds []store.Guild
	for guildID, members := range s.members {
		if _, ok := members[userID]; !ok {
			continue
		}
		if guild, ok := s.guilds[guildID]; ok {
			guilds = append(guilds, guild)
		}
	}
	sort.Slice(guilds, func(i, j int) bool { return guilds[i].ID < guilds[j].ID })
	return guilds, nil
}

func (s *Store) CreateChannel(_ context.Context, channel *store.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channel.ID] = *channel
	return nil
}

func (s *Store) GetChannel(_ context.Context, id string) (*store.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	channel, ok := s.channels[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &channel, nil
}

func (s *Store) CreateMessage(_ context.Context, msg *store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = *msg
	return nil
}

func (s *Store) GetMessage(_ context.Context, id string) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &msg, nil
}

func (s *Store) MessagesBefore(_ context.Context, channelID, beforeID string, limit int) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.channelMessagesLocked(channelID, func(id string) bool { return id < beforeID })
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (s *Store) MessagesAfter(_ context.Context, channelID, afterID string, limit int) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.channelMessagesLocked(channelID, func(id string) bool { return id > afterID })
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// channelMessagesLocked returns the channel's messages matching the id filter,
// oldest first.
func (s *Store) channelMessagesLocked(channelID string, match func(id string) bool) []store.Message {
	var msgs []store.Message
	for _, msg := range s.messages {
		if msg.ChannelID == channelID && match(msg.ID) {
			msgs = append(msgs, msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs
}
