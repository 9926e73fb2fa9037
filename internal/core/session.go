package core

import (
	"context"
	"errors"
	"sync"
)

// ErrSessionClosed is returned by Next once a closed session's queue is drained.
var ErrSessionClosed = errors.New("core: session closed")

// Session is the server-side handle for one live gateway connection: a
// process-unique id, an unbounded outbound frame queue, and an optional link
// to an authenticated user.
//
// The queue never blocks producers; a dedicated drain goroutine consumes it
// via Next and writes to the transport. The user link is set at most once, by
// the session's own connection loop during handshake.
type Session struct {
	ID string

	mu     sync.Mutex
	frames [][]byte
	wake   chan struct{}
	closed bool
	userID string
}

// NewSession constructs an unauthenticated session.
func NewSession(id string) *Session {
	return &Session{
		ID:   id,
		wake: make(chan struct{}, 1),
	}
}

// Send enqueues an outbound frame. It never blocks; frames sent after Close
// are dropped.
func (s *Session) Send(frame []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.frames = append(s.frames, frame)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Next blocks until a frame is available, the session is closed, or the
// context is done. Frames come out in the order they were enqueued.
func (s *Session) Next(ctx context.Context) ([]byte, error) {
	for {
		s.mu.Lock()
		if len(s.frames) > 0 {
			frame := s.frames[0]
			s.frames = s.frames[1:]
			s.mu.Unlock()
			return frame, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return nil, ErrSessionClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.wake:
		}
	}
}

// Close marks the session's queue closed and wakes the drain goroutine.
// Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// UserID returns the linked user id, or "" while unauthenticated.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// bind links the session to a user. Only the handshake transition calls this,
// and only once.
func (s *Session) bind(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}
