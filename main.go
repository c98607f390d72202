package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/rtbridge/cmd"
	"github.com/tphakala/rtbridge/internal/buildinfo"
)

// Set through -ldflags "-X main.version=... -X main.buildDate=... -X main.commit=...".
var (
	version   = "dev"
	buildDate = ""
	commit    = ""
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer cmd.Shutdown()

	rootCmd := cmd.RootCommand(buildinfo.New(version, buildDate, commit))
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
