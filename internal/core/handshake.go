package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/concord-im/concord/internal/proto"
)

// TokenResolver resolves an opaque bearer token to a user identity. Any error
// is treated the same as an unknown token. Implementations must be safe for
// concurrent use by many connection loops.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (*proto.User, error)
}

// Handshake gates a session's one-time Unauthenticated -> Authenticated
// transition. A session that completed the transition permanently ignores
// further handshake attempts.
type Handshake struct {
	registry *Registry
	resolver TokenResolver
	log      *zerolog.Logger
}

// NewHandshake builds the handshake gate shared by all connection loops.
func NewHandshake(registry *Registry, resolver TokenResolver, logger *zerolog.Logger) *Handshake {
	return &Handshake{registry: registry, resolver: resolver, log: logger}
}

// Handle processes one handshake attempt for the session. On success the
// session is linked to the resolved user, the handshake-complete reply is
// enqueued, the session is inserted into the registry, and the reply event is
// returned for the caller's benefit. Duplicate attempts and resolution
// failures return nil: no state change, no reply.
func (h *Handshake) Handle(ctx context.Context, sess *Session, token string) *proto.Event {
	if sess.UserID() != "" {
		return nil
	}

	user, err := h.resolver.ResolveToken(ctx, token)
	if err != nil || user == nil {
		if err != nil {
			h.log.Debug().Err(err).Str("session_id", sess.ID).Msg("handshake token rejected")
		}
		return nil
	}

	// Handshake and disconnect are both driven by the session's own connection
	// loop, so nothing else can race this bind; the insert itself is what needs
	// the registry lock.
	sess.bind(user.ID)

	// Enqueue the reply before the registry insert so no dispatched event can
	// land ahead of the handshake-complete frame.
	ev := proto.HandshakeCompleteEvent(*user)
	if frame, err := ev.Encode(); err == nil {
		sess.Send(frame)
	}
	h.registry.Insert(user.ID, sess)

	h.log.Info().Str("session_id", sess.ID).Str("user_id", user.ID).Msg("session authenticated")
	return &ev
}
