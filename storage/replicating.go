package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"

	"lumen.dev/sdk/cidutil"
)

// NamedCAS associates a CAS with a stable backend name.
type NamedCAS struct {
	Name string
	CAS  CAS
}

// Replica is the outcome of one backend write.
type Replica struct {
	CID cid.Cid
	Err error
}

// ReplicatingCAS writes every payload to all backends concurrently and reads
// with ordered fallback.
//
// A write succeeds when at least MinReplicas backends stored the payload
// under the CID computed from its bytes. MinReplicas <= 0 requires every
// backend. A backend answering a different CID always fails the write.
type ReplicatingCAS struct {
	Backends    []NamedCAS
	MinReplicas int
}

var _ CAS = ReplicatingCAS{}

// PutAll writes data to every backend and reports each backend's outcome by
// name, including on failure.
func (r ReplicatingCAS) PutAll(ctx context.Context, data []byte) (cid.Cid, map[string]Replica, error) {
	if len(r.Backends) == 0 {
		return cid.Undef, nil, ErrNoBackends
	}
	for _, b := range r.Backends {
		if b.CAS == nil {
			return cid.Undef, nil, fmt.Errorf("storage: nil CAS for backend %q", b.Name)
		}
	}

	want := cidutil.CID(data)
	results := make([]Replica, len(r.Backends))

	var wg sync.WaitGroup
	for i, b := range r.Backends {
		wg.Add(1)
		go func(i int, cas CAS) {
			defer wg.Done()
			id, err := cas.Put(ctx, data)
			if err == nil && !id.Equals(want) {
				err = ErrCIDMismatch
			}
			results[i] = Replica{CID: id, Err: err}
		}(i, b.CAS)
	}
	wg.Wait()

	per := make(map[string]Replica, len(r.Backends))
	var (
		stored int
		errs   []error
	)
	for i, b := range r.Backends {
		res := results[i]
		per[b.Name] = res
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("storage: backend %q: %w", b.Name, res.Err))
			continue
		}
		stored++
	}

	need := r.MinReplicas
	if need <= 0 || need > len(r.Backends) {
		need = len(r.Backends)
	}
	mismatch := false
	for _, res := range results {
		mismatch = mismatch || errors.Is(res.Err, ErrCIDMismatch)
	}
	if stored < need || mismatch {
		return cid.Undef, per, errors.Join(errs...)
	}
	return want, per, nil
}

func (r ReplicatingCAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(ctx, data)
	return id, err
}

func (r ReplicatingCAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	return getOrdered(ctx, id, r.adapters())
}

func (r ReplicatingCAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	return hasAny(ctx, id, r.adapters())
}

func (r ReplicatingCAS) adapters() []CAS {
	out := make([]CAS, 0, len(r.Backends))
	for _, b := range r.Backends {
		out = append(out, b.CAS)
	}
	return out
}
