package storage

import (
	"context"

	"github.com/ipfs/go-cid"
)

// MultiCAS provides deterministic, ordered fallback across multiple CAS adapters.
//
// Reads try Adapters in slice order; callers supply a fixed order.
// Put writes only to the first adapter.
type MultiCAS struct {
	Adapters []CAS
}

var _ CAS = MultiCAS{}

func (m MultiCAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if len(m.Adapters) == 0 {
		return cid.Undef, ErrNoBackends
	}
	return m.Adapters[0].Put(ctx, data)
}

func (m MultiCAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	return getOrdered(ctx, id, m.Adapters)
}

func (m MultiCAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	return hasAny(ctx, id, m.Adapters)
}

// getOrdered returns the first hit. A not-found answer moves on to the next
// backend; any other failure stops the search.
func getOrdered(ctx context.Context, id cid.Cid, backends []CAS) ([]byte, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}
	for _, cas := range backends {
		if cas == nil {
			continue
		}
		b, err := cas.Get(ctx, id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func hasAny(ctx context.Context, id cid.Cid, backends []CAS) (bool, error) {
	var firstErr error
	for _, cas := range backends {
		if cas == nil {
			continue
		}
		ok, err := cas.Has(ctx, id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, firstErr
}
