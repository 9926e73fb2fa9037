package auth

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/concord-im/concord/internal/proto"
	"github.com/concord-im/concord/internal/store"
	"github.com/concord-im/concord/internal/utils"
)

var (
	// ErrInvalidCredentials is returned when tag/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidUsername is returned when a username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when a password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Service provides account and token operations. ResolveToken makes it the
// user-lookup collaborator the gateway handshake depends on; the gateway
// itself never inspects tokens.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{store: userStore, jwtConfig: jwtConfig}
}

// Register creates a user (the store assigns a free discriminator for the
// username) and returns the user with a signed access token.
func (s *Service) Register(ctx context.Context, username, password string) (*store.User, string, error) {
	username = utils.SpacedName(username)
	if utf8.RuneCountInString(username) < 3 {
		return nil, "", ErrInvalidUsername
	}
	if len(password) < 6 {
		return nil, "", ErrInvalidPassword
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, username, hashed)
	if err != nil {
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	return user, token, nil
}

// Login validates a full tag (username plus discriminator) and password, and
// returns the user with a fresh access token.
func (s *Service) Login(ctx context.Context, username string, discriminator int, password string) (*store.User, string, error) {
	user, err := s.store.GetUserByTag(ctx, username, discriminator)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}
	if err := ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	return user, token, nil
}

// ResolveToken validates an access token and loads the account it names.
// Implements the gateway's core.TokenResolver; safe for concurrent use.
func (s *Service) ResolveToken(ctx context.Context, token string) (*proto.User, error) {
	claims, err := ValidateToken(s.jwtConfig, token)
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}

	user, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("fetch token user: %w", err)
	}
	return &proto.User{
		ID:            user.ID,
		Username:      user.Username,
		Discriminator: user.Discriminator,
	}, nil
}

// LookupUser loads an account by id and returns its public view.
func (s *Service) LookupUser(ctx context.Context, id string) (*proto.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return &proto.User{
		ID:            user.ID,
		Username:      user.Username,
		Discriminator: user.Discriminator,
	}, nil
}
