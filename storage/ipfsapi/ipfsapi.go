// Package ipfsapi archives payloads as raw blocks through the HTTP RPC API of
// a running Kubo daemon.
package ipfsapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	shell "github.com/ipfs/go-ipfs-api"

	"lumen.dev/sdk/cidutil"
	"lumen.dev/sdk/storage"
)

// DefaultAddr is the Kubo RPC listen address.
const DefaultAddr = "localhost:5001"

// CAS is a payload archive backed by a Kubo daemon.
type CAS struct {
	sh      *shell.Shell
	pin     bool
	offline bool
}

var _ storage.CAS = (*CAS)(nil)

// Options configure the daemon connection.
type Options struct {
	// Addr is the RPC address, host:port, a URL or a multiaddr. Empty means
	// DefaultAddr.
	Addr string
	// Timeout bounds each request when non-zero.
	Timeout time.Duration
	// Pin pins blocks on Put.
	Pin bool
	// Offline keeps Get and Has from asking the network for missing blocks.
	Offline bool
	// HTTPClient replaces the default HTTP client.
	HTTPClient *http.Client
}

// New returns a CAS for opts. It does not contact the daemon.
func New(opts Options) *CAS {
	addr := opts.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	sh := shell.NewShellWithClient(addr, hc)
	if opts.Timeout > 0 {
		sh.SetTimeout(opts.Timeout)
	}
	return &CAS{sh: sh, pin: opts.Pin, offline: opts.Offline}
}

// Ping reports whether the daemon answers.
func (c *CAS) Ping(ctx context.Context) error {
	if err := c.sh.Request("id").Exec(ctx, nil); err != nil {
		return fmt.Errorf("ipfsapi: daemon unreachable: %w", err)
	}
	return nil
}

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	want := cidutil.CID(data)

	key, err := c.sh.BlockPut(data, "raw", "keccak-256", 32)
	if err != nil {
		if strings.Contains(err.Error(), "command not found") {
			return cid.Undef, fmt.Errorf("ipfsapi: block put: %w (does this node accept writes?)", err)
		}
		return cid.Undef, fmt.Errorf("ipfsapi: block put: %w", err)
	}
	got, err := cid.Decode(key)
	if err != nil {
		return cid.Undef, fmt.Errorf("ipfsapi: unexpected block key %q: %w", key, err)
	}
	if !got.Equals(want) {
		return cid.Undef, storage.ErrCIDMismatch
	}

	if c.pin {
		if err := c.sh.Request("pin/add", want.String()).Exec(ctx, nil); err != nil {
			return cid.Undef, fmt.Errorf("ipfsapi: pin %s: %w", want, err)
		}
	}
	return want, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}

	resp, err := c.request("block/get", id).Send(ctx)
	if err != nil {
		return nil, fmt.Errorf("ipfsapi: block get: %w", err)
	}
	defer resp.Close()
	if resp.Error != nil {
		if notFound(resp.Error) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("ipfsapi: block get: %w", resp.Error)
	}

	b, err := io.ReadAll(resp.Output)
	if err != nil {
		return nil, fmt.Errorf("ipfsapi: read block: %w", err)
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

	var stat struct {
		Key  string
		Size int
	}
	err := c.request("block/stat", id).Exec(ctx, &stat)
	switch {
	case err == nil:
		return true, nil
	case notFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("ipfsapi: block stat: %w", err)
	}
}

func (c *CAS) request(command string, id cid.Cid) *shell.RequestBuilder {
	rb := c.sh.Request(command, id.String())
	if c.offline {
		rb.Option("offline", true)
	}
	return rb
}

// notFound reports whether the daemon said the block is missing. The client
// reports an unknown RPC command as "command not found", which is not.
func notFound(err error) bool {
	var e *shell.Error
	if !errors.As(err, &e) {
		return false
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "not found") && !strings.HasPrefix(msg, "command not found")
}
