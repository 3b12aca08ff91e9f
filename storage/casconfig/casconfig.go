// Package casconfig opens one or more CAS backends from a config file.
//
// Example (YAML; JSON with the same keys is also accepted):
//
//	write_policy: all
//	min_replicas: 1
//	backends:
//	  - name: localfs
//	    config: {localfs-dir: /var/lib/lumen/cas}
//	  - name: grpc
//	    id: archive-eu
//	    config: {grpc-target: "cas.example:7777"}
//
// Backends must be linked into the binary with blank imports. Config keys
// mirror the backend's flag names.
package casconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"lumen.dev/sdk/storage"
	"lumen.dev/sdk/storage/casregistry"
)

// Write policies.
const (
	// WriteFirst writes only to the first backend; reads fall back in order.
	WriteFirst = "first"
	// WriteAll writes to every backend and requires CID equality.
	WriteAll = "all"
)

// Config describes how to open one or more CAS backends via casregistry.
type Config struct {
	WritePolicy string          `json:"write_policy,omitempty" yaml:"write_policy,omitempty"`
	Backends    []BackendConfig `json:"backends" yaml:"backends"`

	// MinReplicas is the number of backends that must accept a write under
	// WriteAll. Zero means every backend.
	MinReplicas int `json:"min_replicas,omitempty" yaml:"min_replicas,omitempty"`
}

type BackendConfig struct {
	// Name is the casregistry backend name to open (e.g. "grpc", "localfs", "ipfs", "ipfs-api").
	Name string `json:"name" yaml:"name"`
	// ID is an optional stable alias used for per-backend CID maps.
	// If empty, Name is used.
	ID     string            `json:"id,omitempty" yaml:"id,omitempty"`
	Config map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}

// LoadFile reads a JSON or YAML (.yaml, .yml) config file and validates it.
func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("casconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("casconfig: failed to read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("casconfig: failed to parse YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("casconfig: failed to parse JSON: %w", err)
		}
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("casconfig: at least one backend is required")
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.New("casconfig: backend name is required")
		}
		id := b.id()
		if _, ok := seen[id]; ok {
			return fmt.Errorf("casconfig: duplicate backend id %q", id)
		}
		seen[id] = struct{}{}
	}
	if c.MinReplicas < 0 || c.MinReplicas > len(c.Backends) {
		return fmt.Errorf("casconfig: min_replicas %d out of range 0..%d", c.MinReplicas, len(c.Backends))
	}
	if c.MinReplicas > 0 && c.WritePolicy != WriteAll {
		return fmt.Errorf("casconfig: min_replicas needs write_policy %q", WriteAll)
	}
	switch c.WritePolicy {
	case "", WriteFirst, WriteAll:
		return nil
	default:
		return fmt.Errorf("casconfig: invalid write_policy %q", c.WritePolicy)
	}
}

func (b BackendConfig) id() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

// Open opens a CAS per config.
//
// If preferredBackend is non-empty, the backend with that name or id is moved
// to the front (and thus receives writes under WriteFirst).
func (c Config) Open(ctx context.Context, usage casregistry.Usage, preferredBackend string) (storage.CAS, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	ordered := append([]BackendConfig(nil), c.Backends...)
	if preferredBackend != "" {
		idx := -1
		for i := range ordered {
			if ordered[i].Name == preferredBackend || ordered[i].ID == preferredBackend {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, fmt.Errorf("casconfig: preferred backend %q not found in config", preferredBackend)
		}
		if idx != 0 {
			b := ordered[idx]
			copy(ordered[1:idx+1], ordered[0:idx])
			ordered[0] = b
		}
	}

	named := make([]storage.NamedCAS, 0, len(ordered))
	closers := make([]func() error, 0, len(ordered))
	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, b := range ordered {
		cas, closeFn, err := casregistry.OpenWithConfig(ctx, b.Name, usage, b.Config)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("casconfig: backend %q: %w", b.id(), err)
		}
		named = append(named, storage.NamedCAS{Name: b.id(), CAS: cas})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	if len(named) == 1 {
		return named[0].CAS, closeAll, nil
	}

	if c.WritePolicy == WriteAll {
		return storage.ReplicatingCAS{Backends: named, MinReplicas: c.MinReplicas}, closeAll, nil
	}

	adapters := make([]storage.CAS, 0, len(named))
	for _, n := range named {
		adapters = append(adapters, n.CAS)
	}
	return storage.MultiCAS{Adapters: adapters}, closeAll, nil
}
