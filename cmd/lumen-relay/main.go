// Command lumen-relay indexes ContextWritten events and serves them over
// HTTP and server-sent events.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/trustbloc/logutil-go/pkg/log"

	"lumen.dev/sdk/cmd/lumen-relay/startcmd"
)

var logger = log.New("lumen-relay")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := startcmd.New().ExecuteContext(ctx); err != nil {
		logger.Error("Failed to run lumen-relay", log.WithError(err))
		stop()
		os.Exit(1)
	}
}
