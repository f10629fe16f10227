package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	apperrors "github.com/utafrali/urlrewrite/pkg/errors"
)

func main() {
	// Cancel the run on SIGINT or SIGTERM. Committed per-entity work stays.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(apperrors.ExitCode(err))
}
