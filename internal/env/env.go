package env

import (
	"os"
	"strings"
)

// Compose builds the environment for the spawned backend: the
// launcher's own environment as the base, per-backend KEY=VALUE
// overrides applied on top, and ${VAR} references expanded against the
// composed set. Expansion is a single pass, no recursion; unknown
// variables are left in place.
func Compose(overrides []string) []string {
	return composeFrom(os.Environ(), overrides)
}

func composeFrom(base, overrides []string) []string {
	m := make(map[string]string, len(base)+len(overrides))
	order := make([]string, 0, len(base)+len(overrides))
	put := func(kv string) {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			return // malformed entry or empty key
		}
		k, v := kv[:i], kv[i+1:]
		if _, seen := m[k]; !seen {
			order = append(order, k)
		}
		m[k] = v
	}
	for _, kv := range base {
		put(kv)
	}
	for _, kv := range overrides {
		put(kv)
	}
	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+expand(m[k], m))
	}
	return out
}

func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
