package casregistry

import (
	"context"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"lumen.dev/sdk/storage"
	"lumen.dev/sdk/storage/testkit"
)

func registerTest(t *testing.T, name string, usage Usage, got *map[string]string) {
	t.Helper()

	require.NoError(t, Register(Backend{
		Name:  name,
		Usage: usage,
		Flags: []Flag{
			{Name: name + "-dir", Default: "/var/lib/cas", Usage: "dir"},
			{Name: name + "-pin", Default: "false", Usage: "pin"},
		},
		Open: func(_ context.Context, settings map[string]string) (storage.CAS, func() error, error) {
			*got = settings
			return &testkit.Mem{}, nil, nil
		},
	}))

	t.Cleanup(func() {
		mu.Lock()
		delete(backends, name)
		mu.Unlock()
	})
}

func TestRegister_Validation(t *testing.T) {
	open := func(context.Context, map[string]string) (storage.CAS, func() error, error) { return nil, nil, nil }

	require.Error(t, Register(Backend{Usage: UsageCLI, Open: open}))
	require.Error(t, Register(Backend{Name: "x", Usage: UsageCLI}))
	require.Error(t, Register(Backend{Name: "x", Open: open}))
	require.Error(t, Register(Backend{Name: "x", Usage: UsageCLI, Open: open, Flags: []Flag{{Name: "dir"}}}))

	var got map[string]string
	registerTest(t, "dup", UsageCLI, &got)
	require.Error(t, Register(Backend{Name: "dup", Usage: UsageCLI, Open: open}))
}

func TestOpen_FromFlags(t *testing.T) {
	var got map[string]string
	registerTest(t, "memt", UsageCLI|UsageDaemon, &got)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, UsageCLI)
	require.NoError(t, fs.Parse([]string{"--memt-dir", "/tmp/x"}))

	cas, closeFn, err := Open(context.Background(), fs, "memt", UsageCLI)
	require.NoError(t, err)
	require.NotNil(t, cas)
	require.Nil(t, closeFn)
	require.Equal(t, map[string]string{"memt-dir": "/tmp/x", "memt-pin": "false"}, got)

	require.Contains(t, Names(UsageDaemon), "memt")

	_, _, err = Open(context.Background(), fs, "nope", UsageCLI)
	require.ErrorContains(t, err, "unknown backend")
}

func TestOpenWithConfig(t *testing.T) {
	var got map[string]string
	registerTest(t, "daemonly", UsageDaemon, &got)

	_, _, err := OpenWithConfig(context.Background(), "daemonly", UsageDaemon, map[string]string{"daemonly-pin": "true"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"daemonly-dir": "/var/lib/cas", "daemonly-pin": "true"}, got)

	_, _, err = OpenWithConfig(context.Background(), "daemonly", UsageDaemon, map[string]string{"daemonly-bogus": "1"})
	require.ErrorContains(t, err, "unknown setting")

	_, _, err = OpenWithConfig(context.Background(), "daemonly", UsageCLI, nil)
	require.ErrorContains(t, err, "not supported in this binary")
}
