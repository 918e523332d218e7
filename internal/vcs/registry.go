package vcs

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor opens a backend on a repository root.
type Constructor func(repoRoot string) (VCS, error)

var (
	backendsMu sync.RWMutex
	backends   = map[Type]Constructor{}
)

// Register makes a backend available to Open. Backend packages call it from
// init, so importing them for side effects is enough:
//
//	import _ "github.com/ddrkit/ddrsync/internal/vcs/jj"
//
// Registering nil or the same type twice panics.
func Register(t Type, ctor Constructor) {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	if ctor == nil {
		panic(fmt.Sprintf("vcs: nil constructor for %s", t))
	}
	if _, dup := backends[t]; dup {
		panic(fmt.Sprintf("vcs: %s registered twice", t))
	}
	backends[t] = ctor
}

func constructorFor(t Type) Constructor {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	return backends[t]
}

// IsRegistered reports whether a backend for t was imported.
func IsRegistered(t Type) bool {
	return constructorFor(t) != nil
}

// RegisteredTypes lists the imported backends, sorted.
func RegisteredTypes() []Type {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	types := make([]Type, 0, len(backends))
	for t := range backends {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// unregister undoes Register in tests.
func unregister(t Type) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	delete(backends, t)
}
