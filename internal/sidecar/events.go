package sidecar

// EventKind identifies what an Event carries.
type EventKind int

const (
	// Stdout is one line read from the backend's standard output.
	Stdout EventKind = iota
	// Stderr is one line read from the backend's standard error.
	Stderr
	// Exit reports that the backend process terminated. It is the last
	// event on the channel; the channel is closed right after it.
	Exit
)

func (k EventKind) String() string {
	switch k {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	case Exit:
		return "exit"
	default:
		return "unknown"
	}
}

// Event is one observation from the supervised backend. Line holds the
// raw bytes for Stdout/Stderr events; ExitCode and Err are set only on
// Exit.
type Event struct {
	Kind     EventKind
	Line     []byte
	ExitCode int
	Err      error
}
