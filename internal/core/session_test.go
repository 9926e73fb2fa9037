package core

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"
)

func TestSessionQueueIsFIFO(t *testing.T) {
	sess := NewSession("s1")

	sess.Send([]byte("e1"))
	sess.Send([]byte("e2"))
	sess.Send([]byte("e3"))

	for _, want := range []string{"e1", "e2", "e3"} {
		if got := mustFrame(t, sess); string(got) != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}

func TestSessionSendNeverBlocks(t *testing.T) {
	sess := NewSession("s1")

	// No consumer; a bounded channel would wedge here.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10_000; i++ {
			sess.Send([]byte(fmt.Sprintf("frame-%d", i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer blocked on session queue")
	}

	if got := mustFrame(t, sess); string(got) != "frame-0" {
		t.Fatalf("expected frame-0 first, got %q", got)
	}
}

func TestSessionNextWaitsForFrame(t *testing.T) {
	sess := NewSession("s1")

	go func() {
		time.Sleep(20 * time.Millisecond)
		sess.Send([]byte("late"))
	}()

	if got := mustFrame(t, sess); string(got) != "late" {
		t.Fatalf("unexpected frame: %q", got)
	}
}

func TestSessionCloseDrainsThenErrors(t *testing.T) {
	sess := NewSession("s1")
	sess.Send([]byte("pending"))
	sess.Close()

	if got := mustFrame(t, sess); string(got) != "pending" {
		t.Fatalf("expected pending frame, got %q", got)
	}

	if _, err := sess.Next(context.Background()); err != ErrSessionClosed {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}

	// Sends after close are dropped.
	sess.Send([]byte("late"))
	if _, err := sess.Next(context.Background()); err != ErrSessionClosed {
		t.Fatalf("expected ErrSessionClosed after late send, got %v", err)
	}
}

func TestSessionIsolation(t *testing.T) {
	a := NewSession("a")
	b := NewSession("b")

	a.Send([]byte("for-a"))

	if got := mustFrame(t, a); !bytes.Equal(got, []byte("for-a")) {
		t.Fatalf("unexpected frame on a: %q", got)
	}
	assertNoFrame(t, b)
}
