package history

import (
	"context"
	"log/slog"
	"time"
)

// EventType identifies a launch lifecycle event.
type EventType string

const (
	EventLaunchStarted   EventType = "launch_started"
	EventSpawnFailed     EventType = "spawn_failed"
	EventBackendSpawned  EventType = "backend_spawned"
	EventBackendReady    EventType = "backend_ready"
	EventReadinessFailed EventType = "readiness_failed"
	EventBackendExit     EventType = "backend_exit"
	EventBackendRestart  EventType = "backend_restarted"
	EventShutdown        EventType = "shutdown"
)

// Event is one record in the launch audit trail.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Name       string    `json:"name"`
	PID        int       `json:"pid"`
	Port       int       `json:"port"`
	Attempts   int       `json:"attempts"`
	ExitCode   int       `json:"exit_code"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for launch events (audit/analytics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Broadcast delivers e to every sink. Individual failures are absorbed
// into debug logs: a broken sink must never stall the launch path.
func Broadcast(ctx context.Context, sinks []Sink, e Event) {
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, e); err != nil {
			slog.Debug("history sink send failed", "type", e.Type, "error", err)
		}
	}
}
