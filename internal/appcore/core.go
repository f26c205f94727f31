// internal/appcore/core.go
package appcore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"scflow/internal/config"
	"scflow/internal/writers"
)

// Exit codes shared by every command.
const (
	ExitOK        = 0
	ExitUsage     = 2
	ExitRuntime   = 3
	ExitCancelled = 130
)

type Options struct {
	Quiet bool
	// NoResultExitCode is returned when the producer sent nothing.
	NoResultExitCode int
}

// Producer runs a workflow and emits its stdout results through send. It
// returns how many results were sent.
type Producer[T any] func(ctx context.Context, send func(T) error) (int, error)

type WriterFactory[T any] interface {
	Start(out io.Writer, bufSize int) (chan<- T, <-chan error)
}

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// Usage marks err as a usage or input problem (exit code 2).
func Usage(err error) error {
	if err == nil {
		return nil
	}
	return usageError{err}
}

// Usagef formats a usage error.
func Usagef(format string, a ...any) error { return Usage(fmt.Errorf(format, a...)) }

// ExitCode classifies err.
func ExitCode(err error) int {
	var ue usageError
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitCancelled
	case errors.As(err, &ue), errors.Is(err, config.ErrInvalid):
		return ExitUsage
	default:
		return ExitRuntime
	}
}

func Run[T any](
	parent context.Context,
	stdout, stderr io.Writer,
	o Options,
	produce Producer[T],
	wf WriterFactory[T],
) int {
	outw := bufio.NewWriter(stdout)

	inCh, writeErr := wf.Start(outw, 64)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	total, perr := produce(ctx, func(x T) error {
		select {
		case inCh <- x:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	close(inCh)

	if werr := <-writeErr; writers.IsBrokenPipe(werr) {
		return ExitOK
	} else if werr != nil {
		fmt.Fprintln(stderr, "error:", werr)
		return ExitRuntime
	}
	if e := outw.Flush(); writers.IsBrokenPipe(e) {
		return ExitOK
	} else if e != nil {
		fmt.Fprintln(stderr, "error:", e)
		return ExitRuntime
	}

	if perr != nil {
		code := ExitCode(perr)
		if code != ExitCancelled {
			fmt.Fprintln(stderr, "error:", perr)
		}
		return code
	}
	if total == 0 {
		return o.NoResultExitCode
	}
	return ExitOK
}
