package commands

import (
	"github.com/spf13/cobra"

	"lumen.dev/sdk/internal/printer"
	"lumen.dev/sdk/topics"
)

func newTopicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List the well-known topics and their ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all := topics.All()
			if wantJSON(cmd) {
				return printer.JSON(all)
			}
			for _, t := range all {
				printer.Printf("%s  %s\n", t.ID.Hex(), t.Name)
			}
			return nil
		},
	}
	cmd.Flags().Bool(jsonFlagName, false, "Print JSON")

	return cmd
}
