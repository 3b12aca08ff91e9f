// Package cidutil addresses canonical payload bytes by CIDv1 (raw codec,
// keccak-256 multihash). The multihash digest of such a CID is the payload
// digest committed on the ledger, so a commitment doubles as a content
// address.
package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"lumen.dev/sdk/digest"
)

// CID returns the CIDv1 (raw + keccak-256) of data.
func CID(data []byte) cid.Cid {
	c, err := FromDigest(digest.Payload(data))
	if err != nil {
		// Encoding a 32-byte digest under a registered code cannot fail.
		panic(err)
	}
	return c
}

// String returns CID(data) in its default string form.
func String(data []byte) string {
	return CID(data).String()
}

// FromDigest wraps an existing payload digest in a CIDv1 without rehashing.
func FromDigest(d digest.Hash) (cid.Cid, error) {
	mh, err := multihash.Encode(d[:], multihash.KECCAK_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// DigestOf extracts the payload digest from a CID produced by this package.
func DigestOf(id cid.Cid) (digest.Hash, error) {
	var out digest.Hash
	if !id.Defined() {
		return out, fmt.Errorf("cidutil: undefined cid")
	}
	if id.Version() != 1 || id.Type() != cid.Raw {
		return out, fmt.Errorf("cidutil: want cidv1 raw, got v%d codec 0x%x", id.Version(), id.Type())
	}
	dmh, err := multihash.Decode(id.Hash())
	if err != nil {
		return out, err
	}
	if dmh.Code != multihash.KECCAK_256 || len(dmh.Digest) != digest.Size {
		return out, fmt.Errorf("cidutil: want keccak-256 multihash, got code 0x%x length %d", dmh.Code, len(dmh.Digest))
	}
	copy(out[:], dmh.Digest)
	return out, nil
}

// Verify reports whether id addresses data.
func Verify(id cid.Cid, data []byte) bool {
	d, err := DigestOf(id)
	if err != nil {
		return false
	}
	return d == digest.Payload(data)
}
