package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"lumen.dev/sdk/canon"
	"lumen.dev/sdk/internal/printer"
)

// readInput reads the file named by args[0], or stdin when there is no
// argument or it is "-".
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return nil, printer.Error("Failed to read input", err.Error(), nil)
	}
	return b, nil
}

// readPayload reads a JSON payload and converts it to a canonical value.
func readPayload(cmd *cobra.Command, args []string) (canon.Value, error) {
	b, err := readInput(cmd, args)
	if err != nil {
		return nil, err
	}
	v, err := canon.ParseJSON(b)
	if err != nil {
		return nil, payloadError(err)
	}
	return v, nil
}

func payloadError(err error) error {
	explanation := err.Error()
	if rule := canon.RuleID(err); rule != "" {
		explanation = fmt.Sprintf("%s (rule %s)", explanation, rule)
	}
	return printer.Error("Payload cannot be canonicalized", explanation, []string{
		"Payloads may only contain objects, arrays, strings, integers, booleans and null. Encode fractional numbers as strings.",
	})
}
