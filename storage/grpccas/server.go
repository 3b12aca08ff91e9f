package grpccas

import (
	"bytes"
	"context"

	"github.com/ipfs/go-cid"
	"github.com/trustbloc/logutil-go/pkg/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"lumen.dev/sdk/canon"
	"lumen.dev/sdk/cidutil"
	"lumen.dev/sdk/internal/logfields"
	"lumen.dev/sdk/storage"
)

var logger = log.New("cas-grpc")

// Server exposes a storage.CAS over the CAS gRPC service.
type Server struct {
	CAS storage.CAS

	// RequireCanonical rejects Put bodies that are not canonical JSON
	// payloads.
	RequireCanonical bool
}

var _ CASServer = (*Server)(nil)

func (s *Server) backend() (storage.CAS, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.Unavailable, "no archive backend")
	}
	return s.CAS, nil
}

// Put stores the request bytes and answers their CID.
func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	cas, err := s.backend()
	if err != nil {
		return nil, err
	}

	b := in.GetValue()
	if s.RequireCanonical {
		c, err := canon.CanonicalizeJSON(b)
		if err != nil || !bytes.Equal(c, b) {
			return nil, toStatus(storage.ErrNotCanonical)
		}
	}

	want := cidutil.CID(b)
	id, err := cas.Put(ctx, b)
	if err != nil {
		logger.Warn("Put failed", logfields.WithCID(want), log.WithError(err))
		return nil, toStatus(err)
	}
	if !id.Equals(want) {
		return nil, toStatus(storage.ErrCIDMismatch)
	}

	logger.Debug("Stored payload", logfields.WithCID(id))

	return wrapperspb.String(id.String()), nil
}

// Get answers the bytes stored under a CID, re-hashed before they leave.
func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	cas, err := s.backend()
	if err != nil {
		return nil, err
	}
	id, err := parseCID(in.GetValue())
	if err != nil {
		return nil, err
	}

	b, err := cas.Get(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	if !cidutil.Verify(id, b) {
		logger.Error("Stored payload does not match its CID", logfields.WithCID(id))
		return nil, toStatus(storage.ErrCIDMismatch)
	}

	return wrapperspb.Bytes(b), nil
}

// Has reports whether a CID is stored.
func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	cas, err := s.backend()
	if err != nil {
		return nil, err
	}
	id, err := parseCID(in.GetValue())
	if err != nil {
		return nil, err
	}

	ok, err := cas.Has(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}

	return wrapperspb.Bool(ok), nil
}

func parseCID(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil || !id.Defined() {
		return cid.Undef, toStatus(storage.ErrInvalidCID)
	}
	return id, nil
}
