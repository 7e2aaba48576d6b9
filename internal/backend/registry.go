package backend

import (
	"fmt"
	"sort"
	"sync"
)

// Location tells a store constructor where to open its store.
type Location struct {
	// Path is a directory, a database file, or a DSN depending on the kind.
	Path string

	// Username and Password are used by stores that authenticate.
	Username string
	Password string

	// Options holds kind specific settings such as "readonly".
	Options map[string]string
}

// Option returns the named option, or "" if it is not set.
func (l Location) Option(name string) string {
	return l.Options[name]
}

// Constructor creates a store for a location.
// Implementations register themselves with the registry using Register().
type Constructor func(loc Location) (Store, error)

var (
	registry      = make(map[string]Constructor)
	registryMutex sync.RWMutex
)

// Register registers a store constructor for kind.
// This is called from init() functions in store packages.
//
// Example:
//
//	func init() {
//	    backend.Register(Kind, New)
//	}
func Register(kind string, constructor Constructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("backend: Register constructor is nil for kind %s", kind))
	}

	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("backend: Register called twice for kind %s", kind))
	}

	registry[kind] = constructor
}

// IsRegistered returns true if a constructor is registered for kind.
func IsRegistered(kind string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, exists := registry[kind]
	return exists
}

// RegisteredKinds returns all registered store kinds, sorted.
func RegisteredKinds() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// NewStore creates a store of the given kind.
func NewStore(kind string, loc Location) (Store, error) {
	registryMutex.RLock()
	constructor := registry[kind]
	registryMutex.RUnlock()

	if constructor == nil {
		return nil, fmt.Errorf("%w: %s (registered: %v)", ErrUnknownKind, kind, RegisteredKinds())
	}
	store, err := constructor(loc)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store at %s: %w", kind, loc.Path, err)
	}
	return store, nil
}
