package commands

import (
	"github.com/spf13/cobra"

	"lumen.dev/sdk/canon"
	"lumen.dev/sdk/cidutil"
	"lumen.dev/sdk/digest"
	"lumen.dev/sdk/internal/printer"
)

func newCanonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "canon [file|-]",
		Short: "Print the canonical bytes of a JSON payload",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := readPayload(cmd, args)
			if err != nil {
				return err
			}
			b, err := canon.Canonicalize(v)
			if err != nil {
				return payloadError(err)
			}
			printer.Raw(b)
			return nil
		},
	}
}

func newDigestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Derive topic ids and payload digests",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "topic <name>",
			Short: "Print the keccak-256 topic id of a topic name",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				id, err := digest.TopicChecked(args[0])
				if err != nil {
					return printer.Error("Invalid topic name", err.Error(), nil)
				}
				printer.Println(id.Hex())
				return nil
			},
		},
		&cobra.Command{
			Use:   "payload [file|-]",
			Short: "Print the keccak-256 digest of a payload's canonical bytes",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := readPayload(cmd, args)
				if err != nil {
					return err
				}
				b, err := canon.Canonicalize(v)
				if err != nil {
					return payloadError(err)
				}
				printer.Println(digest.Payload(b).Hex())
				return nil
			},
		},
	)

	return cmd
}

func newCIDCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "cid [file|-]",
		Short: "Print the archive CID of a payload",
		Long: `Print the CIDv1 (raw codec, keccak-256 multihash) under which the payload
archive stores a payload. The input is canonicalized first unless --raw is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			if !raw {
				if b, err = canon.CanonicalizeJSON(b); err != nil {
					return payloadError(err)
				}
			}
			printer.Println(cidutil.String(b))
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Hash the input bytes as they are")

	return cmd
}
