package storage

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"

	"lumen.dev/sdk/canon"
	"lumen.dev/sdk/cidutil"
	"lumen.dev/sdk/digest"
)

// Archive stores canonical payload bytes and checks that the returned CID
// addresses payloadDigest.
func Archive(ctx context.Context, cas CAS, canonical []byte, payloadDigest digest.Hash) (cid.Cid, error) {
	if got := digest.Payload(canonical); got != payloadDigest {
		return cid.Undef, fmt.Errorf("%w: payload hashes to %s, want %s", ErrCIDMismatch, got, payloadDigest)
	}

	want, err := cidutil.FromDigest(payloadDigest)
	if err != nil {
		return cid.Undef, err
	}

	id, err := cas.Put(ctx, canonical)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Equals(want) {
		return cid.Undef, ErrCIDMismatch
	}

	return id, nil
}

// Fetch retrieves the payload committed under payloadDigest. The bytes are
// verified against the digest and must be in canonical form.
func Fetch(ctx context.Context, cas CAS, payloadDigest digest.Hash) ([]byte, error) {
	id, err := cidutil.FromDigest(payloadDigest)
	if err != nil {
		return nil, err
	}

	b, err := cas.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if digest.Payload(b) != payloadDigest {
		return nil, ErrCIDMismatch
	}

	again, err := canon.CanonicalizeJSON(b)
	if err != nil || string(again) != string(b) {
		return nil, ErrNotCanonical
	}

	return b, nil
}
