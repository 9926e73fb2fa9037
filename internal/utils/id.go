package utils

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a new ULID string (26 chars, lexicographically sortable).
// Used for persisted entities so id order doubles as creation order; the
// monotonic entropy keeps ids within the same millisecond ordered too.
func NewID() string {
	idMu.Lock()
	defer idMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), idEntropy)
	if err != nil {
		// crypto/rand failing is unrecoverable for id generation.
		panic(err)
	}
	return id.String()
}

// NewSessionID returns a process-unique identifier for a gateway session.
// Session ids are never persisted, so a random UUID is enough.
func NewSessionID() string {
	return uuid.NewString()
}
