package commands

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"lumen.dev/sdk/commitment"
	"lumen.dev/sdk/internal/printer"
	"lumen.dev/sdk/relay"
)

func newVerifyCmd() *cobra.Command {
	var (
		topic     string
		wireHex   string
		eventFile string
	)

	cmd := &cobra.Command{
		Use:   "verify --topic <name> (--wire <hex> | --event <file>) [payload file|-]",
		Short: "Check that a record commits to a topic and payload",
		Long: `Re-derive the topic id and payload digest and compare them with a record.
The record is given as its 136-byte wire encoding in hex, or as an event JSON
object as served by the relay's /events and /stream endpoints.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (wireHex == "") == (eventFile == "") {
				return printer.Error("No record given", "Exactly one of --wire and --event is required.", nil)
			}

			var rec commitment.Record
			if wireHex != "" {
				b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(wireHex), "0x"))
				if err != nil {
					return printer.Error("Invalid wire encoding", err.Error(), nil)
				}
				if rec, err = commitment.UnmarshalRecord(b); err != nil {
					return printer.Error("Invalid wire encoding", err.Error(), nil)
				}
			} else {
				row, err := readEvent(eventFile)
				if err != nil {
					return printer.Error("Invalid event", err.Error(), nil)
				}
				ev, err := row.Event()
				if err != nil {
					return printer.Error("Invalid event", err.Error(), nil)
				}
				rec = ev.Record()
				if topic == "" {
					topic = row.TopicName
				}
			}
			if topic == "" {
				return printer.Error("No topic given", "The topic name is needed to re-derive the topic id.", []string{"Pass --topic <name>."})
			}

			payload, err := readPayload(cmd, args)
			if err != nil {
				return err
			}

			if err := commitment.Verify(rec, topic, payload); err != nil {
				var mm *commitment.MismatchError
				if errors.As(err, &mm) {
					return printer.ErrorWithContext("Verification failed", "The record does not commit to this "+mm.Field+".",
						map[string]string{"Record": mm.Got.Hex(), "Derived": mm.Want.Hex()}, nil)
				}
				return payloadError(err)
			}

			printer.Success("Verified: record commits to topic %q and payload %s\n", topic, rec.PayloadDigest)
			return nil
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Topic name")
	cmd.Flags().StringVar(&wireHex, "wire", "", "Record wire encoding in hex")
	cmd.Flags().StringVar(&eventFile, "event", "", "File holding an event JSON object")

	return cmd
}

func readEvent(path string) (relay.Row, error) {
	var row relay.Row
	b, err := os.ReadFile(path)
	if err != nil {
		return row, err
	}
	err = json.Unmarshal(b, &row)
	return row, err
}
