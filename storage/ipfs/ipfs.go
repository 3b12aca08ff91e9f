// Package ipfs archives payloads as raw blocks in a local Kubo repository by
// running the ipfs CLI.
package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ipfs/go-cid"

	"lumen.dev/sdk/cidutil"
	"lumen.dev/sdk/storage"
)

// CAS is a payload archive backed by the Kubo "ipfs" CLI.
//
// Blocks are written with the raw codec and a keccak-256 multihash, so the
// CID Kubo reports is the payload CID and its multihash is the payload
// digest. Every read is re-hashed.
type CAS struct {
	bin     string
	env     []string
	pin     bool
	offline bool
}

var _ storage.CAS = (*CAS)(nil)

// Options configure the CLI invocation.
type Options struct {
	// Bin is the ipfs binary. Empty means "ipfs" on PATH.
	Bin string
	// Env replaces the command environment, e.g. to set IPFS_PATH. Nil keeps
	// the process environment.
	Env []string
	// Pin pins blocks on Put.
	Pin bool
	// Offline keeps Get and Has from asking the network for missing blocks.
	Offline bool
}

// New returns a CAS for opts.
func New(opts Options) *CAS {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &CAS{bin: bin, env: opts.Env, pin: opts.Pin, offline: opts.Offline}
}

// CommandError is a failed ipfs invocation.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ipfs %s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("ipfs %s: %s", strings.Join(e.Args, " "), e.Stderr)
}

func (e *CommandError) Unwrap() error { return e.Err }

// notFound reports whether Kubo said the block is not in the repository.
func notFound(err error) bool {
	var ce *CommandError
	if !errors.As(err, &ce) {
		return false
	}
	return strings.Contains(strings.ToLower(ce.Stderr), "not found")
}

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	want := cidutil.CID(data)

	out, err := c.run(ctx, data, "block", "put", "--quiet",
		"--cid-codec=raw", "--mhtype=keccak-256", "--mhlen=32",
		fmt.Sprintf("--pin=%t", c.pin))
	if err != nil {
		return cid.Undef, err
	}

	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return cid.Undef, fmt.Errorf("ipfs: unexpected block put output %q: %w", bytes.TrimSpace(out), err)
	}
	if !got.Equals(want) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return want, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}

	out, err := c.run(ctx, nil, c.readArgs("block", "get", id.String())...)
	switch {
	case notFound(err):
		return nil, storage.ErrNotFound
	case err != nil:
		return nil, err
	case !cidutil.Verify(id, out):
		return nil, storage.ErrCIDMismatch
	default:
		return out, nil
	}
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}

	_, err := c.run(ctx, nil, c.readArgs("block", "stat", id.String())...)
	switch {
	case err == nil:
		return true, nil
	case notFound(err):
		return false, nil
	default:
		return false, err
	}
}

func (c *CAS) readArgs(args ...string) []string {
	if c.offline {
		return append([]string{"--offline"}, args...)
	}
	return args
}

func (c *CAS) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.bin, args...)
	cmd.Env = c.env
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return nil, &CommandError{Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
}
