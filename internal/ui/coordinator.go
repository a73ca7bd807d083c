package ui

import (
	"log/slog"
	"sync"
)

// Phase is the coordinator's view of the startup handoff.
type Phase int

const (
	// Waiting means the splash is up and the backend is still probing.
	Waiting Phase = iota
	// Handed means the splash-to-main handoff already ran.
	Handed
	// Aborted means readiness failed; the splash stays up with the
	// diagnostic and no main window ever appears.
	Aborted
)

func (p Phase) String() string {
	switch p {
	case Waiting:
		return "waiting"
	case Handed:
		return "handed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Coordinator owns the one-shot transition from splash to main window.
// Ready and Failed are terminal: whichever arrives first wins, and
// repeated or conflicting calls are ignored.
type Coordinator struct {
	Splash Surface // may be nil (headless)
	Main   Surface // may be nil (headless)

	// OnFailure receives the readiness diagnostic; the fullscreen shell
	// routes it into the splash view, headless mode logs it.
	OnFailure func(msg string)

	mu    sync.Mutex
	phase Phase
}

// HandleReady closes the splash, then shows and focuses the main
// window, in that order. Only the first terminal call has any effect;
// the return value reports whether this call performed the handoff.
func (c *Coordinator) HandleReady() bool {
	c.mu.Lock()
	if c.phase != Waiting {
		c.mu.Unlock()
		return false
	}
	c.phase = Handed
	c.mu.Unlock()

	if c.Splash != nil {
		c.Splash.Close()
	}
	if c.Main != nil {
		c.Main.Show()
		c.Main.Focus()
	}
	slog.Debug("splash handoff complete")
	return true
}

// HandleFailed reports a readiness failure. The splash is left open so
// the diagnostic has somewhere to live; the main window is never shown.
func (c *Coordinator) HandleFailed(msg string) bool {
	c.mu.Lock()
	if c.phase != Waiting {
		c.mu.Unlock()
		return false
	}
	c.phase = Aborted
	c.mu.Unlock()

	if c.OnFailure != nil {
		c.OnFailure(msg)
	} else {
		slog.Error("backend readiness failed", "detail", msg)
	}
	return true
}

// Phase returns the current handoff state.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}
