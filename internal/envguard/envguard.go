// Package envguard scrubs sensitive variables from the process environment while untrusted code runs.
package envguard

import (
	"os"
	"strings"
)

var sensitiveFragments = []string{"password", "username", "key"}

// Guard removes sensitive variables for the duration of Run and puts the full environment back afterwards.
type Guard struct {
	keys map[string]struct{}
}

// New returns a guard that removes the given variable names in addition to any name containing "password",
// "username" or "key".
func New(keys []string) *Guard {
	g := &Guard{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		g.keys[k] = struct{}{}
	}
	return g
}

// IsSensitive reports whether the variable would be removed.
func (g *Guard) IsSensitive(name string) bool {
	if _, ok := g.keys[name]; ok {
		return true
	}
	lower := strings.ToLower(name)
	for _, f := range sensitiveFragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// Run calls fn with the sensitive variables unset. The previous environment is restored exactly when fn returns,
// including when it panics.
func (g *Guard) Run(fn func() error) error {
	snapshot := os.Environ()
	defer restore(snapshot)

	for _, kv := range snapshot {
		name, _, _ := strings.Cut(kv, "=")
		if g.IsSensitive(name) {
			os.Unsetenv(name)
		}
	}
	return fn()
}

func restore(snapshot []string) {
	os.Clearenv()
	for _, kv := range snapshot {
		name, value, _ := strings.Cut(kv, "=")
		os.Setenv(name, value)
	}
}
