// Command lumen-casd serves a payload archive backend over the CAS gRPC
// service, so that lumen clients can archive payloads with --backend grpc.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/trustbloc/logutil-go/pkg/log"
	"google.golang.org/grpc"

	"lumen.dev/sdk/internal/cmdutil"
	"lumen.dev/sdk/internal/logfields"
	"lumen.dev/sdk/storage/casregistry"
	"lumen.dev/sdk/storage/grpccas"

	_ "lumen.dev/sdk/storage/ipfs"
	_ "lumen.dev/sdk/storage/ipfsapi"
	_ "lumen.dev/sdk/storage/localfs"
)

var logger = log.New("lumen-casd")

const (
	listenFlagName       = "listen"
	listenEnvKey         = "LUMEN_CASD_LISTEN"
	backendFlagName      = "backend"
	backendEnvKey        = "LUMEN_CASD_BACKEND"
	listBackendsFlagName = "list-backends"
	canonicalFlagName    = "require-canonical"

	defaultListen  = "127.0.0.1:7777"
	defaultBackend = "localfs"
)

// onListen is called with the bound address once the daemon listens.
var onListen = func(net.Addr) {}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logger.Error("Failed to run lumen-casd", log.WithError(err))
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lumen-casd",
		Short:         "Serve a payload archive backend over gRPC",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cmdutil.SetLogLevels(cmdutil.GetUserSetOptionalVarFromString(cmd, cmdutil.LogLevelFlagName, cmdutil.LogLevelEnvKey), log.INFO)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if list, _ := cmd.Flags().GetBool(listBackendsFlagName); list {
				for _, b := range casregistry.List(casregistry.UsageDaemon) {
					if b.Description == "" {
						fmt.Fprintf(cmd.OutOrStdout(), "%s\n", b.Name)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", b.Name, b.Description)
				}
				return nil
			}

			listen, err := cmdutil.GetUserSetVarFromString(cmd, listenFlagName, listenEnvKey, true)
			if err != nil {
				return err
			}
			if listen == "" {
				listen = defaultListen
			}
			backend, err := cmdutil.GetUserSetVarFromString(cmd, backendFlagName, backendEnvKey, true)
			if err != nil {
				return err
			}
			if backend == "" {
				backend = defaultBackend
			}

			requireCanonical, _ := cmd.Flags().GetBool(canonicalFlagName)

			return serve(cmd, listen, backend, requireCanonical)
		},
	}

	f := cmd.Flags()
	f.StringP(cmdutil.LogLevelFlagName, cmdutil.LogLevelFlagShorthand, "", cmdutil.LogLevelFlagUsage)
	f.String(listenFlagName, "", "Listen address (default "+defaultListen+"). Alternatively, this can be set with the following environment variable: "+listenEnvKey)
	f.String(backendFlagName, "", "Archive backend ("+strings.Join(casregistry.Names(casregistry.UsageDaemon), ", ")+"; default "+defaultBackend+"). Alternatively, this can be set with the following environment variable: "+backendEnvKey)
	f.Bool(listBackendsFlagName, false, "List supported backends and exit")
	f.Bool(canonicalFlagName, false, "Reject payloads that are not canonical JSON")
	casregistry.RegisterFlags(f, casregistry.UsageDaemon)

	return cmd
}

func serve(cmd *cobra.Command, listen, backend string, requireCanonical bool) error {
	ctx := cmd.Context()

	cas, closeFn, err := casregistry.Open(ctx, cmd.Flags(), backend, casregistry.UsageDaemon)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer func() {
			if err := closeFn(); err != nil {
				logger.Warn("Failed to close backend", log.WithError(err))
			}
		}()
	}

	lis, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}

	s := grpc.NewServer()
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas, RequireCanonical: requireCanonical})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(lis) }()

	logger.Info("lumen-casd listening", logfields.WithAddress(lis.Addr().String()), logfields.WithBackend(backend))
	onListen(lis.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Stopping lumen-casd")
		s.GracefulStop()
		return nil
	}
}
