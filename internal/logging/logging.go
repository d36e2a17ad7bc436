// Package logging builds the structured log sink and the fixed set of
// operator events the server emits. Call sites only ever have access to
// connection IDs, remote addresses, outcomes, and command names — never
// credentials or command bodies — so there is no code path that could
// leak a secret into these events.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config controls the sink's verbosity, encoding, and destination.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

// New builds a *slog.Logger per cfg. An empty Config produces an
// info-level, text-formatted logger on stderr.
func New(cfg Config) (*slog.Logger, error) {
	var w io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("logging: open %s: %w", cfg.Output, err)
		}
		w = f
	}

	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler), nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// --- Operator events (spec §6) ---
//
// Each helper emits exactly one log line at a fixed level with a fixed
// field set. Keep these as the only call sites that build these events so
// the field names stay consistent.

// Connect logs a newly accepted connection.
func Connect(l *slog.Logger, connID int64, remoteIP string, remotePort int) {
	l.Info("transport.connect",
		"connection_id", connID,
		"remote_ip", remoteIP,
		"remote_port", remotePort,
	)
}

// Disconnect logs a connection closing, with the reason and how long the
// TCP connection was open.
func Disconnect(l *slog.Logger, connID int64, reason string, sessionDuration time.Duration) {
	l.Info("transport.disconnect",
		"connection_id", connID,
		"reason", reason,
		"session_duration_ms", sessionDuration.Milliseconds(),
	)
}

// RateLimit logs a connection rejected because max_connections was
// reached.
func RateLimit(l *slog.Logger, remoteIP string) {
	l.Warn("transport.rate_limit", "remote_ip", remoteIP)
}

// PacketInvalid logs an unrecoverable frame violation.
func PacketInvalid(l *slog.Logger, connID int64, violation string) {
	l.Warn("protocol.packet.invalid",
		"connection_id", connID,
		"violation", violation,
	)
}

// Auth logs the outcome of an authentication attempt. result is "success"
// or "failure" — never the candidate or the stored digest.
func Auth(l *slog.Logger, connID int64, result string) {
	l.Info("protocol.auth", "connection_id", connID, "result", result)
}

// SessionStart logs a connection reaching the Authenticated state.
func SessionStart(l *slog.Logger, connID int64) {
	l.Info("application.session.start", "connection_id", connID)
}

// SessionEnd logs an authenticated session ending.
func SessionEnd(l *slog.Logger, connID int64, commandsExecuted int) {
	l.Info("application.session.end",
		"connection_id", connID,
		"commands_executed", commandsExecuted,
	)
}

// CommandExecute logs one command dispatch. commandName must already be
// reduced to the first whitespace-delimited token — never the full body —
// and result is "ok", "timeout", or "error".
func CommandExecute(l *slog.Logger, connID int64, commandName, result string, executionTime time.Duration) {
	l.Info("command.execute",
		"connection_id", connID,
		"command_name", commandName,
		"result", result,
		"execution_time_ms", executionTime.Milliseconds(),
	)
}

// CommandName reduces a full command body to its first
// whitespace-delimited token, for use in CommandExecute. The full body is
// never logged.
func CommandName(body string) string {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
