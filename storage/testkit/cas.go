// Package testkit provides a CAS conformance suite and an in-memory CAS for
// tests.
package testkit

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/ipfs/go-cid"

	"lumen.dev/sdk/cidutil"
	"lumen.dev/sdk/storage"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte(`{"kind":"heartbeat","v":"0.1"}`)

		id, err := cas.Put(ctx, want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if wantID := cidutil.CID(want); !id.Equals(wantID) {
			t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
		}

		got, err := cas.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
		if !cidutil.Verify(id, got) {
			t.Fatalf("Get returned bytes not matching requested CID")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")

		id1, err := cas.Put(ctx, b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := cas.Put(ctx, b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if !id1.Equals(id2) {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id := cidutil.CID(b)

		if ok, _ := cas.Has(ctx, id); ok {
			t.Fatalf("Has returned true for missing CID")
		}
		_, err := cas.Get(ctx, id)
		if !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		if _, err := cas.Put(ctx, b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		ok, err := cas.Has(ctx, id)
		if err != nil || !ok {
			t.Fatalf("Has after Put: got %v, %v", ok, err)
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		var undef cid.Cid
		if ok, _ := cas.Has(ctx, undef); ok {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := cas.Get(ctx, undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})
}

// Mem is an in-memory CAS. Its zero value is ready to use.
type Mem struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	failErr error
}

var _ storage.CAS = (*Mem)(nil)

// FailWith makes every subsequent call return err. Pass nil to recover.
func (m *Mem) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Puts returns the number of successful Put calls.
func (m *Mem) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// Corrupt replaces the stored bytes of id out of band.
func (m *Mem) Corrupt(id cid.Cid, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[id.KeyString()] = append([]byte(nil), data...)
}

func (m *Mem) Put(_ context.Context, data []byte) (cid.Cid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return cid.Undef, m.failErr
	}

	id := cidutil.CID(data)
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	if existing, ok := m.objects[id.KeyString()]; ok {
		if !bytes.Equal(existing, data) {
			return cid.Undef, storage.ErrImmutable
		}
		return id, nil
	}
	m.objects[id.KeyString()] = append([]byte(nil), data...)
	m.puts++
	return id, nil
}

func (m *Mem) Get(_ context.Context, id cid.Cid) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, ok := m.objects[id.KeyString()]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if !cidutil.Verify(id, b) {
		return nil, storage.ErrCIDMismatch
	}
	return append([]byte(nil), b...), nil
}

func (m *Mem) Has(_ context.Context, id cid.Cid) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return false, m.failErr
	}
	if !id.Defined() {
		return false, nil
	}
	_, ok := m.objects[id.KeyString()]
	return ok, nil
}
