package ui

// Surface is one capability-scoped window of the application shell.
// Implementations are best-effort: a surface that no longer exists
// ignores calls instead of failing the handoff.
type Surface interface {
	// Close hides the surface permanently.
	Close()
	// Show makes the surface visible.
	Show()
	// Focus raises the surface and gives it input focus.
	Focus()
}
