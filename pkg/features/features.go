// Package features provides a layered boolean flag resolver. Flags are named
// by dotted path ("retrieval.qa_pairs"); a flag is enabled only when every
// node along its path is enabled. Session overrides are layered over the
// environment defaults, and lookups go through an immutable Snapshot so a
// request sees one consistent view of the flags.
package features

import (
	"strings"
	"sync"
)

type Resolver struct {
	mu       sync.RWMutex
	defaults map[string]bool
}

func NewResolver(defaults map[string]bool) *Resolver {
	d := make(map[string]bool, len(defaults))
	for k, v := range defaults {
		d[k] = v
	}
	return &Resolver{defaults: d}
}

// SetDefault replaces an environment-level default. Subsequent snapshots
// observe the new value; existing snapshots do not.
func (r *Resolver) SetDefault(path string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults[path] = enabled
}

// Snapshot materializes the defaults with per-session overrides applied.
// overrides may be nil.
func (r *Resolver) Snapshot(overrides map[string]bool) Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flags := make(map[string]bool, len(r.defaults)+len(overrides))
	for k, v := range r.defaults {
		flags[k] = v
	}
	for k, v := range overrides {
		flags[k] = v
	}
	return Snapshot{flags: flags}
}

type Snapshot struct {
	flags map[string]bool
}

// Enabled reports whether path and all of its ancestors are enabled.
// Unknown nodes default to enabled, so only explicit false values gate.
func (s Snapshot) Enabled(path string) bool {
	if path == "" {
		return true
	}

	segments := strings.Split(path, ".")
	for i := 1; i <= len(segments); i++ {
		node := strings.Join(segments[:i], ".")
		if v, ok := s.flags[node]; ok && !v {
			return false
		}
	}
	return true
}
