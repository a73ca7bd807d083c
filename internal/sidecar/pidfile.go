package sidecar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type pidMeta struct {
	StartUnix int64 `json:"start_unix"`
}

// writePIDFile records pid, spec JSON and start-time meta, one per line.
// The meta line lets a later launch tell a reused PID apart from a
// backend we actually started.
func (p *Process) writePIDFile() {
	p.mu.Lock()
	path := p.spec.PIDFile
	pid := p.status.PID
	spec := p.spec
	p.mu.Unlock()

	if path == "" || pid == 0 {
		return
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o750)

	var b bytes.Buffer
	b.WriteString(strconv.Itoa(pid))
	b.WriteByte('\n')
	sj, err := json.Marshal(spec)
	if err != nil {
		sj = []byte("{}")
	}
	b.Write(sj)
	b.WriteByte('\n')
	if su := StartUnix(pid); su > 0 {
		if mj, err := json.Marshal(pidMeta{StartUnix: su}); err == nil {
			b.Write(mj)
			b.WriteByte('\n')
		}
	}
	_ = os.WriteFile(path, b.Bytes(), 0o600)
}

// removePIDFile best-effort
func (p *Process) removePIDFile() {
	p.mu.Lock()
	path := p.spec.PIDFile
	p.mu.Unlock()
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// ReadPIDFile reads a PID file written by a previous launch. It returns
// the PID, the recorded Spec when present, and the recorded process
// start time in Unix seconds (0 when absent). Files holding only a PID
// are accepted.
func ReadPIDFile(path string) (int, *Spec, int64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, 0, err
	}
	lines := strings.Split(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return 0, nil, 0, fmt.Errorf("empty pidfile: %s", path)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0, nil, 0, fmt.Errorf("invalid pid in %s: %w", path, err)
	}

	var spec *Spec
	if len(lines) >= 2 {
		var s Spec
		if json.Unmarshal([]byte(strings.TrimSpace(lines[1])), &s) == nil && s.Name != "" {
			spec = &s
		}
	}

	var start int64
	if len(lines) >= 3 {
		var m pidMeta
		if json.Unmarshal([]byte(strings.TrimSpace(lines[2])), &m) == nil {
			start = m.StartUnix
		}
	}
	if start == 0 && len(lines) >= 2 {
		// Tolerate meta on the second line when no spec was recorded.
		var m pidMeta
		if json.Unmarshal([]byte(strings.TrimSpace(lines[1])), &m) == nil {
			start = m.StartUnix
		}
	}
	return pid, spec, start, nil
}
