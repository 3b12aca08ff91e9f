package commands

import (
	"context"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"lumen.dev/sdk/commitment"
	"lumen.dev/sdk/internal/printer"
	"lumen.dev/sdk/keys"
)

// commitOutput is the JSON form of a built record.
type commitOutput struct {
	Topic     string            `json:"topic"`
	Author    common.Address    `json:"author"`
	Record    commitment.Record `json:"record"`
	Wire      string            `json:"wire"`
	RecordID  string            `json:"recordId"`
	Canonical string            `json:"canonical"`
}

func newCommitCmd() *cobra.Command {
	var (
		topic     string
		authorHex string
		seq       uint64
	)

	cmd := &cobra.Command{
		Use:   "commit --topic <name> [--seq <n> --author <address>] [file|-]",
		Short: "Build a commitment record without submitting it",
		Long: `Build the 136-byte commitment record for a payload. With --seq the record is
built offline; otherwise the author's sequence is read from the ledger.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, args)
			if err != nil {
				return err
			}

			var (
				author common.Address
				src    commitment.SequenceSource
			)
			if authorHex != "" {
				if author, err = keys.ParseAddress(authorHex); err != nil {
					return printer.Error("Invalid author address", err.Error(), nil)
				}
			}

			if cmd.Flags().Changed("seq") {
				src = commitment.SequenceSourceFunc(func(context.Context, common.Address) (uint64, error) {
					return seq, nil
				})
			} else {
				c, err := connect(cmd)
				if err != nil {
					return err
				}
				defer c.Close()

				if authorHex == "" {
					author = c.Author()
				}
				if author == (common.Address{}) {
					return printer.Error("No author", "Reading the sequence from the ledger needs an author.", []string{
						"Pass --author <address>.",
						"Set PRIVATE_KEY to commit as the signing author.",
						"Pass --seq <n> to build offline.",
					})
				}
				src = c.Ledger()
			}

			w := commitment.NewWrite(author, topic, payload)
			if err := w.Prepare(cmd.Context(), src); err != nil {
				return printer.Error("Failed to build the record", err.Error(), nil)
			}
			rec, _ := w.Record()
			wire, err := rec.MarshalBinary()
			if err != nil {
				return err
			}

			out := commitOutput{
				Topic:     topic,
				Author:    author,
				Record:    rec,
				Wire:      "0x" + hex.EncodeToString(wire),
				RecordID:  rec.ID().Hex(),
				Canonical: string(w.Canonical()),
			}
			if wantJSON(cmd) {
				return printer.JSON(out)
			}

			printer.Field("Topic", topic)
			printer.Field("Topic ID", rec.TopicID)
			printer.Field("Payload digest", rec.PayloadDigest)
			printer.Field("Sequence", rec.Sequence)
			printer.Field("Author", author.Hex())
			printer.Field("Record ID", out.RecordID)
			printer.Field("Wire", out.Wire)
			return nil
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Topic name (required)")
	cmd.Flags().StringVar(&authorHex, "author", "", "Author address; defaults to the PRIVATE_KEY author")
	cmd.Flags().Uint64Var(&seq, "seq", 0, "Sequence number; builds the record offline")
	cmd.Flags().Bool(jsonFlagName, false, "Print JSON")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}
