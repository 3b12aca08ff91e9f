// Package bundle moves archived payloads between stores as a deterministic
// TAR file, for offline verification of committed payloads.
//
// Layout:
//
//	blocks/<cid>   payload bytes
//	index.json     optional, non-authoritative listing (canonical JSON)
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"lumen.dev/sdk/canon"
	"lumen.dev/sdk/cidutil"
	"lumen.dev/sdk/digest"
	"lumen.dev/sdk/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

const (
	blocksDir = "blocks/"
	indexName = "index.json"
)

var epoch0 = time.Unix(0, 0).UTC()

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Labels is optional metadata naming payloads, typically by topic.
	Labels map[string]digest.Hash
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
}

// Export writes the payloads committed under digests as a TAR bundle.
//
// Entry order is lexicographic and TAR headers are normalized, so the same
// set of payloads always produces the same bytes. Every payload is verified
// against its digest before it is written.
func Export(ctx context.Context, w io.Writer, cas storage.CAS, digests []digest.Hash, opts ExportOptions) error {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}

	uniq := make(map[string]digest.Hash, len(digests))
	for _, d := range digests {
		id, err := cidutil.FromDigest(d)
		if err != nil {
			return err
		}
		uniq[id.String()] = d
	}

	names := make([]string, 0, len(uniq))
	for s := range uniq {
		names = append(names, s)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)

	blocks := make([]canon.Value, 0, len(names))
	for _, s := range names {
		d := uniq[s]
		b, err := storage.Fetch(ctx, cas, d)
		if err != nil {
			_ = tw.Close()
			return fmt.Errorf("bundle: payload %s: %w", d, err)
		}
		if err := writeFile(tw, blocksDir+s, b); err != nil {
			_ = tw.Close()
			return err
		}
		blocks = append(blocks, canon.Map{
			"cid":           canon.String(s),
			"payloadDigest": canon.String(d.Hex()),
			"size":          canon.Int(int64(len(b))),
		})
	}

	if opts.IncludeIndex {
		b, err := indexBytes(blocks, opts.Labels)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, indexName, b); err != nil {
			_ = tw.Close()
			return err
		}
	}

	return tw.Close()
}

func indexBytes(blocks []canon.Value, labels map[string]digest.Hash) ([]byte, error) {
	idx := canon.Map{
		"version":   canon.Int(FormatVersion),
		"cidCodec":  canon.String("raw"),
		"multihash": canon.String("keccak-256"),
		"blocks":    canon.Seq(blocks),
	}

	if len(labels) > 0 {
		m := make(canon.Map, len(labels))
		for k, v := range labels {
			if k == "" {
				return nil, fmt.Errorf("bundle: empty label key")
			}
			m[k] = canon.String(v.Hex())
		}
		idx["labels"] = m
	}

	b, err := canon.Canonicalize(idx)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown skips unknown TAR entries instead of failing.
	IgnoreUnknown bool
}

// Import reads a bundle from r and stores every block in cas. It returns the
// payload digests imported, in bundle order.
//
// Each block must hash to the CID in its file name. Unknown entries fail the
// import unless opts.IgnoreUnknown is set.
func Import(ctx context.Context, r io.Reader, cas storage.CAS, opts ImportOptions) ([]digest.Hash, error) {
	if cas == nil {
		return nil, fmt.Errorf("bundle: nil CAS")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var imported []digest.Hash

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return imported, nil
		}
		if err != nil {
			return imported, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return imported, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return imported, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		if name == indexName {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}

		if !strings.HasPrefix(name, blocksDir) {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return imported, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, derr := cid.Decode(strings.TrimPrefix(name, blocksDir))
		if derr != nil || !id.Defined() {
			return imported, storage.ErrInvalidCID
		}
		d, derr := cidutil.DigestOf(id)
		if derr != nil {
			return imported, fmt.Errorf("%w: %v", storage.ErrInvalidCID, derr)
		}

		payload, rerr := io.ReadAll(tr)
		if rerr != nil {
			return imported, rerr
		}
		if digest.Payload(payload) != d {
			return imported, storage.ErrCIDMismatch
		}

		key := id.String()
		if _, ok := seen[key]; ok {
			return imported, fmt.Errorf("bundle: duplicate block entry: %s", key)
		}
		seen[key] = struct{}{}

		if _, err := storage.Archive(ctx, cas, payload, d); err != nil {
			return imported, err
		}
		imported = append(imported, d)
	}
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
