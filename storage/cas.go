// Package storage archives canonical payload bytes in content-addressable
// stores.
//
// Objects are addressed by CIDv1 (raw codec, keccak-256 multihash) so the
// multihash digest of a stored payload's CID equals the payload digest
// committed on the ledger. A record seen on chain is enough to fetch and
// verify its payload.
package storage

import (
	"context"

	"github.com/ipfs/go-cid"
)

// CAS is a minimal content-addressable storage interface.
//
// Contract:
// - Put MUST be idempotent.
// - Stored objects MUST be immutable.
// - CIDs MUST be derived from the bytes written (cidutil.CID).
// - Get MUST return ErrNotFound when the CID is absent.
// - Get MUST NOT return bytes that do not hash to the requested CID.
type CAS interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) (bool, error)
}
