package drain

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/openautonote/usher/internal/sidecar"
)

// Exit is the backend's terminal exit as observed on the event stream.
type Exit struct {
	Code int
	Err  error
}

// Drain is the sole consumer of a backend's event channel. Every output
// line is relayed exactly once: to the console with a per-stream prefix,
// to the optional per-stream file copy, and to the optional OnLine hook.
// Per-stream ordering is inherited from the channel.
type Drain struct {
	Console      io.Writer // defaults to os.Stdout
	StdoutPrefix string    // defaults to "[api]"
	StderrPrefix string    // defaults to "[api err]"

	// FileOut and FileErr receive raw line copies (no prefix); the
	// caller owns opening and closing them.
	FileOut io.Writer
	FileErr io.Writer

	// OnLine, when set, receives each decoded line; used to feed the UI.
	OnLine func(kind sidecar.EventKind, line string)
}

// Run consumes events until the channel closes and returns the exit
// report. Lines are decoded leniently: invalid UTF-8 byte sequences
// become U+FFFD instead of dropping the line.
func (d *Drain) Run(events <-chan sidecar.Event) Exit {
	console := d.Console
	if console == nil {
		console = os.Stdout
	}
	outPrefix := d.StdoutPrefix
	if outPrefix == "" {
		outPrefix = "[api]"
	}
	errPrefix := d.StderrPrefix
	if errPrefix == "" {
		errPrefix = "[api err]"
	}

	exit := Exit{Code: -1}
	for ev := range events {
		switch ev.Kind {
		case sidecar.Stdout, sidecar.Stderr:
			line := decode(ev.Line)
			prefix := outPrefix
			file := d.FileOut
			if ev.Kind == sidecar.Stderr {
				prefix = errPrefix
				file = d.FileErr
			}
			_, _ = fmt.Fprintf(console, "%s %s\n", prefix, line)
			if file != nil {
				_, _ = fmt.Fprintln(file, line)
			}
			if d.OnLine != nil {
				d.OnLine(ev.Kind, line)
			}
		case sidecar.Exit:
			exit = Exit{Code: ev.ExitCode, Err: ev.Err}
		}
	}
	return exit
}

func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
