package reaper

import (
	"path/filepath"
	"strings"
)

// sameBaseName compares executable names ignoring case and a Windows
// .exe suffix.
func sameBaseName(got, want string) bool {
	g, w := normalizeName(got), normalizeName(want)
	return g != "" && g == w
}

func normalizeName(s string) string {
	s = strings.ToLower(filepath.Base(strings.TrimSpace(s)))
	return strings.TrimSuffix(s, ".exe")
}

// containsSequence reports whether argv contains the marker tokens
// consecutively.
func containsSequence(argv, marker []string) bool {
	if len(marker) == 0 || len(argv) < len(marker) {
		return false
	}
	for i := 0; i+len(marker) <= len(argv); i++ {
		ok := true
		for j := range marker {
			if argv[i+j] != marker[j] {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}
