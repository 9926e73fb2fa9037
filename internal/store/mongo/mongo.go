package mongo

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/concord-im/concord/internal/store"
	"github.com/concord-im/concord/internal/utils"
)

// Store implements store.Store on top of a MongoDB database.
type Store struct {
	client *mongo.Client

	users        *mongo.Collection
	guilds       *mongo.Collection
	guildMembers *mongo.Collection
	channels     *mongo.Collection
	messages     *mongo.Collection
}

// New connects to MongoDB and prepares the collections and indexes.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:       client,
		users:        db.Collection("users"),
		guilds:       db.Collection("guilds"),
		guildMembers: db.Collection("guild_members"),
		channels:     db.Collection("channels"),
		messages:     db.Collection("messages"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}, {Key: "discriminator", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = s.guildMembers.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "guild_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "channel_id", Value: 1}, {Key: "_id", Value: 1}},
	})
	return err
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type userDoc struct {
	ID               string    `bson:"_id"`
	Username         string    `bson:"username"`
	Discriminator    int       `bson:"discriminator"`
	PasswordHash     string    `bson:"password_hash"`
	GatewayConnected bool      `bson:"gateway_connected"`
	CreatedAt        time.Time `bson:"created_at"`
}

func (d userDoc) toUser() *store.User {
	return &store.User{
		ID:               d.ID,
		Username:         d.Username,
		Discriminator:    d.Discriminator,
		PasswordHash:     d.PasswordHash,
		GatewayConnected: d.GatewayConnected,
		CreatedAt:        d.CreatedAt,
	}
}

// CreateUser rolls random discriminators until a free one is found for the
// username, then inserts the user.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	discriminator := rand.IntN(9999) + 1
	for attempts := 1; ; attempts++ {
		err := s.users.FindOne(ctx, bson.M{
			"username":      username,
			"discriminator": discriminator,
		}).Err()
		if errors.Is(err, mongo.ErrNoDocuments) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("probe discriminator: %w", err)
		}
		if attempts >= 9999 {
			return nil, store.ErrDiscriminatorsExhausted
		}
		discriminator = rand.IntN(9999) + 1
	}

	doc := userDoc{
		ID:            utils.NewID(),
		Username:      username,
		Discriminator: discriminator,
		PasswordHash:  passwordHash,
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return doc.toUser(), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*store.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, wrapNotFound(err, "fetch user")
	}
	return doc.toUser(), nil
}

func (s *Store) GetUserByTag(ctx context.Context, username string, discriminator int) (*store.User, error) {
	var doc userDoc
	filter := bson.M{"username": username, "discriminator": discriminator}
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, wrapNotFound(err, "fetch user by tag")
	}
	return doc.toUser(), nil
}

func (s *Store) SetGatewayConnected(ctx context.Context, id string, connected bool) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"gateway_connected": connected}})
	if err != nil {
		return fmt.Errorf("set gateway_connected: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

type guildDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	OwnerID   string    `bson:"owner_id"`
	CreatedAt time.Time `bson:"created_at"`
}

func (s *Store) CreateGuild(ctx context.Context, guild *store.Guild) error {
	doc := guildDoc{ID: guild.ID, Name: guild.Name, OwnerID: guild.OwnerID, CreatedAt: guild.CreatedAt}
	if _, err := s.guilds.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert guild: %w", err)
	}
	return nil
}

func (s *Store) GetGuild(ctx context.Context, id string) (*store.Guild, error) {
	var doc guildDoc
	if err := s.guilds.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, wrapNotFound(err, "fetch guild")
	}
	return &store.Guild{ID: doc.ID, Name: doc.Name, OwnerID: doc.OwnerID, CreatedAt: doc.CreatedAt}, nil
}

func (s *Store) DeleteGuild(ctx context.Context, id string) error {
	if _, err := s.guilds.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete guild: %w", err)
	}
	if _, err := s.guildMembers.DeleteMany(ctx, bson.M{"guild_id": id}); err != nil {
		return fmt.Errorf("delete guild members: %w", err)
	}
	return nil
}

type guildMemberDoc struct {
	GuildID  string    `bson:"guild_id"`
	UserID   string    `bson:"user_id"`
	JoinedAt time.Time `bson:"joined_at"`
}

func (s *Store) AddGuildMember(ctx context.Context, guildID, userID string) error {
	doc := guildMemberDoc{GuildID: guildID, UserID: userID, JoinedAt: time.Now().UTC()}
	if _, err := s.guildMembers.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert guild member: %w", err)
	}
	return nil
}

func (s *Store) GuildMemberIDs(ctx context.Context, guildID string) ([]string, error) {
	cur, err := s.guildMembers.Find(ctx, bson.M{"guild_id": guildID})
	if err != nil {
		return nil, fmt.Errorf("find guild members: %w", err)
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc guildMemberDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode guild member: %w", err)
		}
		ids = append(ids, doc.UserID)
	}
	return ids, cur.Err()
}

func (s *Store) GuildsForUser(ctx context.Context, userID string) ([]store.Guild, error) {
	cur, err := s.guildMembers.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("find memberships: %w", err)
	}
	defer cur.Close(ctx)

	var guildIDs []string
	for cur.Next(ctx) {
		var doc guildMemberDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode membership: %w", err)
		}
		guildIDs = append(guildIDs, doc.GuildID)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if len(guildIDs) == 0 {
		return nil, nil
	}

	gcur, err := s.guilds.Find(ctx, bson.M{"_id": bson.M{"$in": guildIDs}})
	if err != nil {
		return nil, fmt.Errorf("find guilds: %w", err)
	}
	defer gcur.Close(ctx)

	var guilds []store.Guild
	for gcur.Next(ctx) {
		var doc guildDoc
		if err := gcur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode guild: %w", err)
		}
		guilds = append(guilds, store.Guild{ID: doc.ID, Name: doc.Name, OwnerID: doc.OwnerID, CreatedAt: doc.CreatedAt})
	}
	return guilds, gcur.Err()
}

type channelDoc struct {
	ID      string   `bson:"_id"`
	Name    string   `bson:"name"`
	Kind    string   `bson:"kind"`
	Members []string `bson:"members,omitempty"`
	GuildID string   `bson:"guild_id,omitempty"`
}

func (s *Store) CreateChannel(ctx context.Context, channel *store.Channel) error {
	doc := channelDoc{
		ID:      channel.ID,
		Name:    channel.Name,
		Kind:    string(channel.Kind),
		Members: channel.Members,
		GuildID: channel.GuildID,
	}
	if _, err := s.channels.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

func (s *Store) GetChannel(ctx context.Context, id string) (*store.Channel, error) {
	var doc channelDoc
	if err := s.channels.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, wrapNotFound(err, "fetch channel")
	}
	return &store.Channel{
		ID:      doc.ID,
		Name:    doc.Name,
		Kind:    store.ChannelKind(doc.Kind),
		Members: doc.Members,
		GuildID: doc.GuildID,
	}, nil
}

type messageDoc struct {
	ID        string    `bson:"_id"`
	ChannelID string    `bson:"channel_id"`
	AuthorID  string    `bson:"author_id,omitempty"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
}

func (s *Store) CreateMessage(ctx context.Context, msg *store.Message) error {
	doc := messageDoc{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		AuthorID:  msg.AuthorID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	var doc messageDoc
	if err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, wrapNotFound(err, "fetch message")
	}
	return docToMessage(doc), nil
}

// MessagesBefore walks message ids backwards from beforeID; ULID ordering makes
// this a creation-time range scan.
func (s *Store) MessagesBefore(ctx context.Context, channelID, beforeID string, limit int) ([]store.Message, error) {
	filter := bson.M{"channel_id": channelID, "_id": bson.M{"$lt": beforeID}}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetLimit(int64(limit))

	msgs, err := s.findMessages(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	// Flip to oldest-first for the caller.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) MessagesAfter(ctx context.Context, channelID, afterID string, limit int) ([]store.Message, error) {
	filter := bson.M{"channel_id": channelID, "_id": bson.M{"$gt": afterID}}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(int64(limit))
	return s.findMessages(ctx, filter, opts)
}

func (s *Store) findMessages(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]store.Message, error) {
	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cur.Close(ctx)

	var out []store.Message
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, *docToMessage(doc))
	}
	return out, cur.Err()
}

func docToMessage(doc messageDoc) *store.Message {
	return &store.Message{
		ID:        doc.ID,
		ChannelID: doc.ChannelID,
		AuthorID:  doc.AuthorID,
		Content:   doc.Content,
		CreatedAt: doc.CreatedAt,
	}
}

func wrapNotFound(err error, op string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
