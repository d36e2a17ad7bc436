// Package executor defines the command-execution capability the core
// dispatches ExecCommand bodies to, plus a small reference implementation
// used when no real executor is wired in (the standalone server binary,
// and tests).
//
// The core never parses command text; it treats the executor as opaque.
// Everything here lives outside the core on purpose.
package executor

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Func is the command executor capability: run command verbatim and
// return its textual output, or an error if execution failed. A Func must
// not block past the timeout WithTimeout wraps it in; it is the caller's
// job to make that true (e.g. by honoring ctx.Done()).
type Func func(ctx context.Context, command string) (string, error)

// ErrTimeout is returned by WithTimeout's wrapper when the wrapped Func
// does not return before the deadline.
var ErrTimeout = errors.New("executor: timed out")

// WithTimeout wraps next so every call is bounded by timeout. If next
// respects ctx, it can return early on cancellation; if it does not, the
// wrapped call still returns ErrTimeout at the deadline, but the
// underlying goroutine running next is leaked until next itself returns.
// Real executors should be ctx-aware to avoid that.
func WithTimeout(next Func, timeout time.Duration) Func {
	return func(ctx context.Context, command string) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		type result struct {
			out string
			err error
		}
		ch := make(chan result, 1)
		go func() {
			out, err := next(ctx, command)
			ch <- result{out, err}
		}()

		select {
		case r := <-ch:
			return r.out, r.err
		case <-ctx.Done():
			return "", ErrTimeout
		}
	}
}

// Echo is a reference executor. It supports exactly the "echo" command
// (with "help" as an alias), returning its arguments verbatim; any other
// command name, or an empty body, is also echoed back. It never errors
// and never blocks, so it needs no timeout in practice, but WithTimeout
// still composes over it like any other Func.
func Echo(_ context.Context, command string) (string, error) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return "", nil
	}

	parts := strings.SplitN(trimmed, " ", 2)
	name := strings.ToLower(parts[0])
	var args string
	if len(parts) > 1 {
		args = parts[1]
	}

	switch name {
	case "echo", "help":
		return args, nil
	default:
		// Unknown commands fall back to echo: their arguments are
		// returned without the command name, matching the reference
		// dispatcher's MVP fallback.
		return args, nil
	}
}
