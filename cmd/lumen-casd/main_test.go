package main

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lumen.dev/sdk/cidutil"
	"lumen.dev/sdk/storage"
	"lumen.dev/sdk/storage/grpccas"
)

func TestListBackends(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--list-backends"})

	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "localfs")
	require.Contains(t, out.String(), "ipfs")
	require.Contains(t, out.String(), "ipfs-api")
}

func TestServe(t *testing.T) {
	t.Setenv(listenEnvKey, "")
	t.Setenv(backendEnvKey, "")

	addrs := make(chan net.Addr, 1)
	orig := onListen
	onListen = func(a net.Addr) { addrs <- a }
	t.Cleanup(func() { onListen = orig })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--listen", "127.0.0.1:0", "--backend", "localfs", "--localfs-dir", filepath.Join(t.TempDir(), "cas"), "--require-canonical"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	var addr net.Addr
	select {
	case addr = <-addrs:
	case err := <-done:
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not listen")
	}

	c, err := grpccas.Dial(ctx, addr.String(), grpccas.DialOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	payload := []byte(`{"kind":"heartbeat","v":"0.1"}`)
	id, err := c.Put(ctx, payload)
	require.NoError(t, err)
	require.True(t, id.Equals(cidutil.CID(payload)))

	got, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	_, err = c.Put(ctx, []byte(`{"v":"0.1","kind":"heartbeat"}`))
	require.ErrorIs(t, err, storage.ErrNotCanonical)

	_, err = c.Get(ctx, cidutil.CID([]byte("missing")))
	require.ErrorIs(t, err, storage.ErrNotFound)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestUnknownBackend(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--backend", "nope"})
	require.ErrorContains(t, cmd.ExecuteContext(context.Background()), "unknown backend")
}
