package commands

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"lumen.dev/sdk/client"
	"lumen.dev/sdk/internal/printer"
	"lumen.dev/sdk/keys"
	"lumen.dev/sdk/ledger"
)

func newNonceCmd() *cobra.Command {
	var authorHex string

	cmd := &cobra.Command{
		Use:   "nonce [--author <address>]",
		Short: "Print an author's current sequence on the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			author := c.Author()
			if authorHex != "" {
				if author, err = keys.ParseAddress(authorHex); err != nil {
					return printer.Error("Invalid author address", err.Error(), nil)
				}
			}
			if author == (common.Address{}) {
				return printer.Error("No author", "", []string{"Pass --author <address>.", "Set PRIVATE_KEY."})
			}

			n, err := c.Ledger().AuthorNonce(cmd.Context(), author)
			if err != nil {
				return printer.Error("Failed to read the author nonce", err.Error(), nil)
			}
			printer.Printf("%d\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&authorHex, "author", "", "Author address; defaults to the PRIVATE_KEY author")

	return cmd
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the configured author's standing on the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			st, err := c.Status(cmd.Context())
			if err != nil {
				return printer.Error("Failed to read status", err.Error(), nil)
			}
			if wantJSON(cmd) {
				return printer.JSON(st)
			}

			printer.Field("Head", st.Head)
			if !st.CanWrite {
				printer.Warning("No PRIVATE_KEY configured: read-only\n")
				return nil
			}
			printer.Field("Author", st.Author.Hex())
			printer.Field("Nonce", st.Nonce)
			printer.Field("Write fee (wei)", st.WriteFee)
			return nil
		},
	}
	cmd.Flags().Bool(jsonFlagName, false, "Print JSON")

	return cmd
}

func newWriteCmd() *cobra.Command {
	var topic string

	cmd := &cobra.Command{
		Use:   "write --topic <name> [file|-]",
		Short: "Commit a JSON payload to the ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, args)
			if err != nil {
				return err
			}

			c, err := connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Write(cmd.Context(), topic, payload)
			if err != nil {
				return writeError(res, err)
			}
			return printResult(cmd, res)
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "Topic name (required)")
	cmd.Flags().Bool(jsonFlagName, false, "Print JSON")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}

func newHeartbeatCmd() *cobra.Command {
	var (
		note     string
		interval time.Duration
		count    int
	)

	cmd := &cobra.Command{
		Use:   "heartbeat [--note <text>] [--interval <d> [--count <n>]]",
		Short: "Write a liveness heartbeat",
		Long: `Write a heartbeat on lumen.sys.heartbeat. With --interval the command keeps
beating until interrupted or until --count beats were attempted; failed beats
are reported and the next one is still sent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if interval <= 0 {
				res, err := c.Heartbeat(cmd.Context(), note)
				if err != nil {
					return writeError(res, err)
				}
				return printResult(cmd, res)
			}

			failed := 0
			err = c.Pacemaker(cmd.Context(), interval, count, note, func(b client.Beat) {
				if b.Err != nil {
					failed++
					printer.Warning("Heartbeat %d failed: %v\n", b.N, b.Err)
					return
				}
				printer.Success("Heartbeat %d confirmed. Tx: %s\n", b.N, b.Result.Handle)
			})
			if err != nil && !errors.Is(err, cmd.Context().Err()) {
				return writeError(nil, err)
			}
			if failed > 0 && count > 0 && failed == count {
				return printer.Error("Every heartbeat failed", "", nil)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", client.DefaultHeartbeatNote, "Heartbeat note")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Beat repeatedly at this interval, e.g. 30s")
	cmd.Flags().IntVar(&count, "count", 0, "With --interval, stop after this many beats (0 = until interrupted)")
	cmd.Flags().Bool(jsonFlagName, false, "Print JSON")

	return cmd
}

func writeError(res *client.Result, err error) error {
	switch {
	case errors.Is(err, ledger.ErrCredentialRequired):
		return printer.Error("No signing credential", "Writes are signed by the author key.", []string{
			"Set the PRIVATE_KEY environment variable to the author's hex private key.",
		})
	case errors.Is(err, ledger.ErrSubmissionConflict):
		return printer.Error("Sequence already used", err.Error(), []string{
			"Another write by this author landed first. Run the command again to build a new record.",
		})
	case res != nil && res.Handle != "":
		return printer.ErrorWithContext("Submitted, but the receipt was not confirmed", err.Error(),
			map[string]string{"Tx": string(res.Handle)}, nil)
	default:
		return printer.Error("Write failed", err.Error(), nil)
	}
}

func printResult(cmd *cobra.Command, res *client.Result) error {
	if wantJSON(cmd) {
		return printer.JSON(res)
	}

	printer.Success("Context written to LUMEN\n")
	printer.Field("Topic", res.Topic)
	printer.Field("Sequence", res.Record.Sequence)
	printer.Field("Payload digest", res.Record.PayloadDigest)
	printer.Field("Tx", res.Handle)
	if res.CID.Defined() {
		printer.Field("Archived as", res.CID)
	}
	if res.Receipt != nil {
		printer.Field("Block", res.Receipt.BlockNumber)
		if res.Receipt.Event != nil {
			printer.Field("Context ID", res.Receipt.Event.ContextID)
		}
	}
	return nil
}
