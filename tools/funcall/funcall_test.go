package funcall

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"lumen.dev/sdk/tools"
)

func echo(_ context.Context, input string) (string, error) { return "got:" + input, nil }

func TestRegistry_Call(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("echo", "Echoes input.", echo))

	for _, tc := range []struct{ args, want string }{
		{args: `{"input":"hi"}`, want: "got:hi"},
		{args: `{}`, want: "got:"},
		{args: ``, want: "got:"},
		{args: `{"input":null}`, want: "got:"},
		{args: `{"other":"x"}`, want: "got:"},
		{args: `{"input":"héllo"}`, want: "got:héllo"},
	} {
		args, want := tc.args, tc.want
		out, err := r.Call(context.Background(), "echo", []byte(args))
		require.NoError(t, err, args)
		require.Equal(t, want, out, args)
	}
}

func TestRegistry_CallErrors(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("echo", "Echoes input.", echo))

	_, err := r.Call(context.Background(), "missing", nil)
	require.ErrorIs(t, err, ErrUnknownFunction)

	for _, args := range []string{`[1]`, `{"input":3}`, `not json`} {
		_, err = r.Call(context.Background(), "echo", []byte(args))
		require.ErrorIs(t, err, ErrInvalidArguments, args)
	}
}

func TestRegistry_Register(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("b", "second", echo))
	require.NoError(t, r.Register("a", "first", echo))
	require.ErrorIs(t, r.Register("a", "again", echo), tools.ErrInvalidRegistration)
	require.ErrorIs(t, r.Register("", "x", echo), tools.ErrInvalidRegistration)
	require.ErrorIs(t, r.Register("c", "x", nil), tools.ErrInvalidRegistration)

	defs := r.Definitions()
	require.Len(t, defs, 2)
	require.Equal(t, "a", defs[0].Name)
	require.Equal(t, "first", defs[0].Description)

	b, err := json.Marshal(defs[1])
	require.NoError(t, err)
	require.Contains(t, string(b), `"parameters":{"type":"object"`)
}
