// Package localfs stores canonical payloads as read-only files under a root
// directory. Files are named by payload digest, so a digest read from a
// ledger record locates its payload without a CID:
//
//	<root>/<first two hex digits>/<64 hex digits>
package localfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"lumen.dev/sdk/cidutil"
	"lumen.dev/sdk/digest"
	"lumen.dev/sdk/storage"
)

// CAS is a filesystem payload archive.
//
// A payload is published by hard-linking a fully written temporary file to
// its final name, so readers never see a partial file and an existing file
// is never replaced. Get re-hashes the file and reports ErrCIDMismatch for
// anything altered on disk.
type CAS struct {
	root string
}

var _ storage.CAS = (*CAS)(nil)

// New returns an archive rooted at root, creating the directory if needed.
func New(root string) (*CAS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &CAS{root: root}, nil
}

// Root returns the archive directory.
func (c *CAS) Root() string { return c.root }

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}

	d := digest.Payload(data)
	id, err := cidutil.FromDigest(d)
	if err != nil {
		return cid.Undef, err
	}

	path := c.pathForDigest(d)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cid.Undef, err
	}

	tmp, err := writeTemp(dir, data)
	if err != nil {
		return cid.Undef, err
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, path); err != nil {
		if !errors.Is(err, os.ErrExist) {
			return cid.Undef, fmt.Errorf("localfs: publish %s: %w", d, err)
		}
		existing, rerr := c.read(path, id)
		if rerr != nil || !bytes.Equal(existing, data) {
			// Never repair in place.
			return cid.Undef, storage.ErrImmutable
		}
	}

	return id, nil
}

func writeTemp(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return "", err
	}
	name := f.Name()

	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(name, 0o444)
	}
	if err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := cidutil.DigestOf(id)
	if err != nil {
		// Only keccak-256 payload CIDs are ever stored.
		return nil, storage.ErrNotFound
	}
	return c.read(c.pathForDigest(d), id)
}

func (c *CAS) read(path string, id cid.Cid) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if !cidutil.Verify(id, b) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d, err := cidutil.DigestOf(id)
	if err != nil {
		return false, nil
	}
	_, err = os.Stat(c.pathForDigest(d))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (c *CAS) pathForDigest(d digest.Hash) string {
	h := d.Hex()[2:]
	return filepath.Join(c.root, h[:2], h)
}
