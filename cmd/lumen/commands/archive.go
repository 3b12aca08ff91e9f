package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"lumen.dev/sdk/canon"
	"lumen.dev/sdk/digest"
	"lumen.dev/sdk/internal/printer"
	"lumen.dev/sdk/storage"
	"lumen.dev/sdk/storage/bundle"
	"lumen.dev/sdk/storage/casconfig"
	"lumen.dev/sdk/storage/casregistry"
)

const backendFlagName = "backend"

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Store and fetch payloads in the content-addressed archive",
		Long: `Payloads are archived under a CIDv1 whose keccak-256 multihash is the
payload digest, so the digest in a ledger record locates the payload.

The archive is chosen with --backend and its flags, or with the archive config
file (--cas-config or LUMEN_CAS_CONFIG).`,
	}

	pf := cmd.PersistentFlags()
	pf.String(backendFlagName, "", "Archive backend ("+strings.Join(casregistry.Names(casregistry.UsageCLI), ", ")+")")
	casregistry.RegisterFlags(pf, casregistry.UsageCLI)

	cmd.AddCommand(
		newArchivePutCmd(),
		newArchiveGetCmd(),
		newArchiveExportCmd(),
		newArchiveImportCmd(),
		&cobra.Command{
			Use:   "backends",
			Short: "List the available archive backends",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				for _, b := range casregistry.List(casregistry.UsageCLI) {
					printer.Printf("%s\t%s\n", b.Name, b.Description)
				}
				return nil
			},
		},
	)

	return cmd
}

func openArchive(cmd *cobra.Command) (storage.CAS, func(), error) {
	backend, _ := cmd.Flags().GetString(backendFlagName)

	var (
		cas     storage.CAS
		closeFn func() error
		err     error
	)
	if backend != "" {
		cas, closeFn, err = casregistry.Open(cmd.Context(), cmd.Flags(), backend, casregistry.UsageCLI)
	} else {
		cfg, cfgErr := loadConfig(cmd)
		if cfgErr != nil {
			return nil, nil, cfgErr
		}
		if cfg.CASConfig == "" {
			err = fmt.Errorf("no archive backend or archive config given")
		} else {
			var c casconfig.Config
			if c, err = casconfig.LoadFile(cfg.CASConfig); err == nil {
				cas, closeFn, err = c.Open(cmd.Context(), casregistry.UsageCLI, "")
			}
		}
	}
	if err != nil {
		return nil, nil, printer.Error("Failed to open the archive", err.Error(), []string{
			"Pass --backend with its flags, e.g. --backend localfs --localfs-dir ./cas.",
			"Point --cas-config or LUMEN_CAS_CONFIG at an archive config file.",
		})
	}

	return cas, func() {
		if closeFn != nil {
			_ = closeFn()
		}
	}, nil
}

func newArchivePutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put [file|-]",
		Short: "Canonicalize a JSON payload and archive it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, args)
			if err != nil {
				return err
			}
			b, err := canon.Canonicalize(payload)
			if err != nil {
				return payloadError(err)
			}

			cas, done, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer done()

			d := digest.Payload(b)
			id, err := storage.Archive(cmd.Context(), cas, b, d)
			if err != nil {
				return printer.Error("Failed to archive the payload", err.Error(), nil)
			}
			printer.Field("Payload digest", d)
			printer.Field("CID", id)
			return nil
		},
	}
}

func newArchiveGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <payload digest>",
		Short: "Print an archived payload's canonical bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := digest.ParseHash(args[0])
			if err != nil {
				return printer.Error("Invalid payload digest", err.Error(), nil)
			}

			cas, done, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer done()

			b, err := storage.Fetch(cmd.Context(), cas, d)
			if err != nil {
				if storage.IsNotFound(err) {
					return printer.Error("Payload not archived", d.Hex()+" is not in the archive.", nil)
				}
				return printer.Error("Failed to fetch the payload", err.Error(), nil)
			}
			printer.Raw(b)
			return nil
		},
	}
}

func newArchiveExportCmd() *cobra.Command {
	var (
		out    string
		labels []string
		index  bool
	)

	cmd := &cobra.Command{
		Use:   "export --out <bundle.tar> <payload digest>...",
		Short: "Export archived payloads as a deterministic TAR bundle",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			digests := make([]digest.Hash, 0, len(args))
			for _, a := range args {
				d, err := digest.ParseHash(a)
				if err != nil {
					return printer.Error("Invalid payload digest", err.Error(), nil)
				}
				digests = append(digests, d)
			}

			opts := bundle.ExportOptions{IncludeIndex: index || len(labels) > 0}
			if len(labels) > 0 {
				opts.Labels = make(map[string]digest.Hash, len(labels))
				for _, l := range labels {
					name, value, ok := strings.Cut(l, "=")
					d, err := digest.ParseHash(value)
					if !ok || name == "" || err != nil {
						return printer.Error("Invalid label", fmt.Sprintf("%q is not name=<payload digest>", l), nil)
					}
					opts.Labels[name] = d
				}
			}

			cas, done, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer done()

			f, err := os.Create(out)
			if err != nil {
				return printer.Error("Failed to create the bundle", err.Error(), nil)
			}
			if err := bundle.Export(cmd.Context(), f, cas, digests, opts); err != nil {
				_ = f.Close()
				_ = os.Remove(out)
				return printer.Error("Failed to export the bundle", err.Error(), nil)
			}
			if err := f.Close(); err != nil {
				return printer.Error("Failed to write the bundle", err.Error(), nil)
			}

			printer.Success("Exported %d payloads to %s\n", len(digests), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Bundle file to write (required)")
	cmd.Flags().StringArrayVar(&labels, "label", nil, "name=<payload digest> entry for the bundle index (repeatable)")
	cmd.Flags().BoolVar(&index, "index", false, "Include index.json")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func newArchiveImportCmd() *cobra.Command {
	var ignoreUnknown bool

	cmd := &cobra.Command{
		Use:   "import <bundle.tar>",
		Short: "Import a payload bundle into the archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return printer.Error("Failed to open the bundle", err.Error(), nil)
			}
			defer f.Close()

			cas, done, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer done()

			digests, err := bundle.Import(cmd.Context(), f, cas, bundle.ImportOptions{IgnoreUnknown: ignoreUnknown})
			if err != nil {
				return printer.Error("Failed to import the bundle", err.Error(), nil)
			}
			for _, d := range digests {
				printer.Println(d.Hex())
			}
			printer.Success("Imported %d payloads\n", len(digests))
			return nil
		},
	}
	cmd.Flags().BoolVar(&ignoreUnknown, "ignore-unknown", false, "Skip unknown bundle entries")

	return cmd
}
