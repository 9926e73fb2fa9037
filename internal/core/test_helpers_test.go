package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/concord-im/concord/internal/log"
	"github.com/concord-im/concord/internal/proto"
)

// mustFrame pops the next outbound frame or fails the test.
func mustFrame(t *testing.T, sess *Session) []byte {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	frame, err := sess.Next(ctx)
	if err != nil {
		t.Fatalf("expected frame, got error: %v", err)
	}
	return frame
}

// assertNoFrame asserts the session's queue stays empty for a short window.
func assertNoFrame(t *testing.T, sess *Session) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if frame, err := sess.Next(ctx); err == nil {
		t.Fatalf("expected no frame, got %s", frame)
	}
}

// staticResolver resolves tokens from a fixed map.
type staticResolver map[string]proto.User

func (r staticResolver) ResolveToken(_ context.Context, token string) (*proto.User, error) {
	user, ok := r[token]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// failingResolver always errors, simulating a broken lookup collaborator.
type failingResolver struct{}

func (failingResolver) ResolveToken(context.Context, string) (*proto.User, error) {
	return nil, errors.New("lookup unavailable")
}

func newTestHandshake(reg *Registry, resolver TokenResolver) *Handshake {
	return NewHandshake(reg, resolver, log.Nop())
}

func newTestDispatcher(reg *Registry) *Dispatcher {
	return NewDispatcher(reg, log.Nop())
}
