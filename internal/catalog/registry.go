package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config carries the connection settings for any backend. Fields a backend
// does not use are ignored.
type Config struct {
	Kind      string
	DSN       string
	Name      string
	Database  string
	Location  string
	Region    string
	Workgroup string
	// OutputLocation is where Athena writes DDL/DML results.
	OutputLocation string
}

// Factory opens a catalog from Config.
type Factory func(ctx context.Context, cfg Config) (Catalog, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. Later registrations replace
// earlier ones.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open constructs the catalog registered for cfg.Kind.
func Open(ctx context.Context, cfg Config) (Catalog, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("catalog: unknown kind %q (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}
