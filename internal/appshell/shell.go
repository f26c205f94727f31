package appshell

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"scflow/internal/appcore"
)

// Main runs a RunContext-style entry point under SIGINT/SIGTERM cancellation
// and exits with its code.
func Main(run func(context.Context, []string, io.Writer, io.Writer) int) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	argv := os.Args[1:]
	if len(argv) == 0 {
		argv = []string{"-h"}
	}

	code := run(ctx, argv, os.Stdout, os.Stderr)
	// A signal that arrived after the last stage still counts.
	if ctx.Err() != nil && code == appcore.ExitOK {
		code = appcore.ExitCancelled
	}

	stop()
	os.Exit(code)
}
