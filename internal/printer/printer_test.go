package printer

import (
	"bytes"
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	noColor := color.NoColor
	color.NoColor = true

	var out, errOut bytes.Buffer
	SetOutput(&out, &errOut)

	t.Cleanup(func() {
		color.NoColor = noColor
		SetOutput(os.Stdout, os.Stderr)
	})

	return &out, &errOut
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		_, errOut := capture(t)

		err := Error("Credential required", "PRIVATE_KEY is not set", []string{})
		require.Error(t, err)
		require.Equal(t, "Credential required", err.Error())
		require.Contains(t, errOut.String(), "PRIVATE_KEY is not set")
	})

	t.Run("numbers multiple suggestions", func(t *testing.T) {
		_, errOut := capture(t)

		err := Error("Test Error", "Explanation", []string{
			"First option",
			"Second option",
		})
		require.Equal(t, "Test Error", err.Error())
		require.Contains(t, errOut.String(), "Either:")
		require.Contains(t, errOut.String(), "  2. Second option")
	})
}

func TestErrorWithContext(t *testing.T) {
	_, errOut := capture(t)

	err := ErrorWithContext("Submission conflict", "", map[string]string{"Sequence": "7"}, []string{"Retry"})
	require.Equal(t, "Submission conflict", err.Error())
	require.Contains(t, errOut.String(), "  Sequence: 7")
	require.Contains(t, errOut.String(), "Retry")
}

func TestOutput(t *testing.T) {
	out, errOut := capture(t)

	Success("wrote %d\n", 1)
	Field("Author", "0xabc")
	Raw([]byte(`{"a":1}`))
	Warning("careful\n")

	require.Contains(t, out.String(), "✓ wrote 1")
	require.Contains(t, out.String(), "Author:")
	require.Contains(t, out.String(), "0xabc")
	require.Contains(t, out.String(), `{"a":1}`)
	require.Contains(t, errOut.String(), "careful")
}

func TestJSON(t *testing.T) {
	out, _ := capture(t)

	require.NoError(t, JSON(map[string]string{"note": "<ok>"}))
	require.Contains(t, out.String(), `"note": "<ok>"`)
}
