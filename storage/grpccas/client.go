package grpccas

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"lumen.dev/sdk/cidutil"
	"lumen.dev/sdk/storage"
)

// Client implements storage.CAS over the CAS gRPC service. Every response is
// re-hashed locally; a daemon is never trusted for content.
type Client struct {
	cc     *grpc.ClientConn
	client CASClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ storage.CAS = (*Client)(nil)

// DialOptions tune the connection made by Dial.
type DialOptions struct {
	// Timeout bounds the initial connection when non-zero.
	Timeout time.Duration

	// MaxMsgBytes caps message size in both directions when non-zero.
	MaxMsgBytes int
}

// Dial connects to a CAS daemon at target.
func Dial(ctx context.Context, target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	if opts.Timeout > 0 {
		dialOpts = append(dialOpts, grpc.WithBlock())

		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

// NewClient wraps an existing connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewCASClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	reply, err := call(ctx, c.Timeout, c.client.Put, wrapperspb.Bytes(data))
	if err != nil {
		return cid.Undef, err
	}
	id, err := cid.Decode(reply.GetValue())
	switch {
	case err != nil || !id.Defined():
		return cid.Undef, storage.ErrInvalidCID
	case !id.Equals(cidutil.CID(data)):
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func (c *Client) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	reply, err := call(ctx, c.Timeout, c.client.Get, wrapperspb.String(id.String()))
	if err != nil {
		return nil, err
	}
	if !cidutil.Verify(id, reply.GetValue()) {
		return nil, storage.ErrCIDMismatch
	}
	return reply.GetValue(), nil
}

func (c *Client) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	reply, err := call(ctx, c.Timeout, c.client.Has, wrapperspb.String(id.String()))
	if err != nil {
		return false, err
	}
	return reply.GetValue(), nil
}

// call runs one RPC under the per-call timeout and maps its status back to
// storage errors.
func call[Req, Resp any](ctx context.Context, timeout time.Duration, rpc func(context.Context, *Req, ...grpc.CallOption) (*Resp, error), req *Req) (*Resp, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	reply, err := rpc(ctx, req)
	if err != nil {
		return nil, fromStatus(err)
	}
	return reply, nil
}
