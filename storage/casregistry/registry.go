// Package casregistry links CAS backends into binaries at build time.
//
// Backends register themselves in init():
//
//	casregistry.MustRegister(casregistry.Backend{ ... })
//
// A binary enables a backend by importing its package, usually as a blank
// import.
package casregistry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/pflag"

	"lumen.dev/sdk/storage"
)

// Flag is a backend setting. Its Name doubles as the command line flag name
// and as the key in a casconfig backend entry.
type Flag struct {
	Name    string
	Default string
	Usage   string
}

// OpenFunc opens a backend from resolved settings. Every declared flag is
// present in settings. The returned close function may be nil.
type OpenFunc func(ctx context.Context, settings map[string]string) (storage.CAS, func() error, error)

// Backend is a build-time plugin that can open a storage.CAS implementation.
type Backend struct {
	Name        string
	Description string
	Usage       Usage
	Flags       []Flag
	Open        OpenFunc
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("casregistry: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("casregistry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("casregistry: backend %q missing Usage", b.Name)
	}
	for _, f := range b.Flags {
		if !strings.HasPrefix(f.Name, b.Name+"-") {
			return fmt.Errorf("casregistry: backend %q flag %q must be prefixed %q", b.Name, f.Name, b.Name+"-")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("casregistry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// RegisterFlags adds the flags of every backend matching usage to fs.
func RegisterFlags(fs *pflag.FlagSet, usage Usage) {
	for _, b := range List(usage) {
		for _, f := range b.Flags {
			if fs.Lookup(f.Name) == nil {
				fs.String(f.Name, f.Default, f.Usage)
			}
		}
	}
}

func lookup(name string, usage Usage) (Backend, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return Backend{}, fmt.Errorf("unknown backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return Backend{}, fmt.Errorf("backend %q not supported in this binary", name)
	}
	return b, nil
}

// Open opens the named backend with settings read from fs. The flags must
// have been added with RegisterFlags.
func Open(ctx context.Context, fs *pflag.FlagSet, name string, usage Usage) (storage.CAS, func() error, error) {
	b, err := lookup(name, usage)
	if err != nil {
		return nil, nil, err
	}

	settings := make(map[string]string, len(b.Flags))
	for _, f := range b.Flags {
		v, err := fs.GetString(f.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("backend %q: %w", name, err)
		}
		settings[f.Name] = v
	}
	return b.Open(ctx, settings)
}

// OpenWithConfig opens the named backend from a settings map, as found in a
// casconfig file. Unknown keys are rejected; missing keys take the flag
// default.
func OpenWithConfig(ctx context.Context, name string, usage Usage, cfg map[string]string) (storage.CAS, func() error, error) {
	b, err := lookup(name, usage)
	if err != nil {
		return nil, nil, err
	}

	settings := make(map[string]string, len(b.Flags))
	for _, f := range b.Flags {
		settings[f.Name] = f.Default
	}
	for k, v := range cfg {
		if _, ok := settings[k]; !ok {
			return nil, nil, fmt.Errorf("backend %q: unknown setting %q", name, k)
		}
		settings[k] = v
	}
	return b.Open(ctx, settings)
}
