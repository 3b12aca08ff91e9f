package main

import (
	"os"

	"lumen.dev/sdk/cmd/lumen/commands"

	_ "lumen.dev/sdk/storage/grpccas"
	_ "lumen.dev/sdk/storage/ipfs"
	_ "lumen.dev/sdk/storage/ipfsapi"
	_ "lumen.dev/sdk/storage/localfs"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// Errors are printed by the printer package.
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
