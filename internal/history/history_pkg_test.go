package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (f *fakeSink) Send(_ context.Context, e Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestBroadcastDeliversToAllSinks(t *testing.T) {
	a := &fakeSink{}
	b := &fakeSink{}
	e := Event{Type: EventBackendReady, OccurredAt: time.Now().UTC(), Name: "api-server", Port: 8964, Attempts: 3}

	Broadcast(context.Background(), []Sink{a, b}, e)

	if a.count() != 1 || b.count() != 1 {
		t.Fatalf("delivery counts = %d/%d, want 1/1", a.count(), b.count())
	}
	if a.events[0].Type != EventBackendReady {
		t.Fatalf("event type = %q", a.events[0].Type)
	}
}

func TestBroadcastAbsorbsSinkFailure(t *testing.T) {
	broken := &fakeSink{err: errors.New("connection refused")}
	ok := &fakeSink{}

	Broadcast(context.Background(), []Sink{broken, ok, nil}, Event{Type: EventShutdown})

	if ok.count() != 1 {
		t.Fatalf("healthy sink got %d events, want 1", ok.count())
	}
}

func TestBroadcastEmpty(t *testing.T) {
	Broadcast(context.Background(), nil, Event{Type: EventLaunchStarted})
}
