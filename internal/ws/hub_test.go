package ws

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSubscriber struct {
	mu       sync.Mutex
	received chan []byte
	failWith error
	closed   bool
}

func newRecordingSubscriber() *recordingSubscriber {
	return &recordingSubscriber{received: make(chan []byte, 8)}
}

func (s *recordingSubscriber) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.received <- payload
	return nil
}

func (s *recordingSubscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *recordingSubscriber) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func expectPayload(t *testing.T, sub *recordingSubscriber, want string) {
	t.Helper()
	select {
	case got := <-sub.received:
		if string(got) != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func waitClosed(t *testing.T, sub interface{ isClosed() bool }) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !sub.isClosed() {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not closed in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// stalledSubscriber blocks every Send until release is closed.
type stalledSubscriber struct {
	release chan struct{}
	mu      sync.Mutex
	closed  bool
}

func (s *stalledSubscriber) Send([]byte) error {
	<-s.release
	return nil
}

func (s *stalledSubscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *stalledSubscriber) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestHubDeliversOnlyToOwner(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	alice := newRecordingSubscriber()
	bob := newRecordingSubscriber()
	hub.Register("alice", alice)
	hub.Register("bob", bob)

	hub.Broadcast("alice", []byte("for-alice"))
	hub.Broadcast("bob", []byte("for-bob"))

	expectPayload(t, alice, "for-alice")
	expectPayload(t, bob, "for-bob")
	select {
	case extra := <-alice.received:
		t.Fatalf("alice received foreign payload %q", extra)
	default:
	}
}

func TestHubDropsFailingSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	broken := newRecordingSubscriber()
	broken.failWith = errors.New("gone")
	healthy := newRecordingSubscriber()
	hub.Register("alice", broken)
	hub.Register("alice", healthy)

	hub.Broadcast("alice", []byte("one"))
	expectPayload(t, healthy, "one")
	waitClosed(t, broken)

	hub.Unregister("alice", healthy)
	hub.Broadcast("alice", []byte("two"))
	hub.Register("alice", newRecordingSubscriber())
	select {
	case extra := <-healthy.received:
		t.Fatalf("unregistered subscriber received %q", extra)
	default:
	}
}

func TestHubCloseClosesSubscribers(t *testing.T) {
	hub := NewHub()
	sub := newRecordingSubscriber()
	hub.Register("alice", sub)
	hub.Close()
	hub.Close()

	waitClosed(t, sub)
	// Calls after Close must not block.
	hub.Broadcast("alice", []byte("late"))
	late := newRecordingSubscriber()
	hub.Register("alice", late)
	if !late.isClosed() {
		t.Fatalf("registering on a closed hub should close the client")
	}
}

func TestHubStalledStreamDoesNotBlockOtherOwners(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	stalled := &stalledSubscriber{release: make(chan struct{})}
	defer close(stalled.release)
	alice := newRecordingSubscriber()
	hub.Register("bob", stalled)
	hub.Register("alice", alice)

	start := time.Now()
	for i := 0; i < subscriberQueueSize+broadcastBacklog+8; i++ {
		hub.Broadcast("bob", []byte("for-bob"))
	}
	hub.Broadcast("alice", []byte("for-alice"))
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("broadcast blocked for %s behind a stalled stream", elapsed)
	}
	expectPayload(t, alice, "for-alice")
	waitClosed(t, stalled)
}

func TestHubKeepsOrderPerStream(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	sub := newRecordingSubscriber()
	hub.Register("alice", sub)
	for _, p := range []string{"one", "two", "three"} {
		hub.Broadcast("alice", []byte(p))
	}
	expectPayload(t, sub, "one")
	expectPayload(t, sub, "two")
	expectPayload(t, sub, "three")
}
