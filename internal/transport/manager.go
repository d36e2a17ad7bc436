// Package transport implements the TCP connection manager: the accept
// loop, the per-connection registry, and the idle reaper. It is the
// concurrent core the spec calls out alongside the frame codec and the
// session state machine — it is what keeps one slow or adversarial
// connection from affecting any other.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/opsrcon/rcond/internal/config"
	"github.com/opsrcon/rcond/internal/executor"
	"github.com/opsrcon/rcond/internal/logging"
)

// idleSweepInterval is how often the reaper walks the registry looking
// for connections that stopped reading or writing without the socket
// itself timing out.
const idleSweepInterval = 1 * time.Second

// Manager owns the listening socket, the connection registry, and the
// background idle reaper. Construct with New, run with Serve, and stop
// by cancelling Serve's context. A Manager is single-use: once Serve
// returns, construct a fresh Manager to restart.
type Manager struct {
	cfg    config.Config
	ln     *net.TCPListener
	logger *slog.Logger

	credParams connParams

	nextID           atomic.Int64
	totalCommandsRun atomic.Int64
	registry         *registry

	rejectLimiter *rate.Limiter

	wg sync.WaitGroup

	stopOnce sync.Once
	stopped  chan struct{}
}

// New builds a Manager bound to cfg.Host:cfg.Port. The listener is open
// and ready to Accept once New returns without error; call Serve to start
// the accept loop.
func New(cfg config.Config, logger *slog.Logger, exec executor.Func) (*Manager, error) {
	record, ok, err := cfg.CredentialRecord()
	if err != nil {
		return nil, fmt.Errorf("transport: credential: %w", err)
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	tcpLn, ok2 := ln.(*net.TCPListener)
	if !ok2 {
		ln.Close()
		return nil, fmt.Errorf("transport: expected *net.TCPListener, got %T", ln)
	}

	m := &Manager{
		cfg:      cfg,
		ln:       tcpLn,
		logger:   logger,
		registry: newRegistry(),
		// At most one rejection log line per second regardless of how
		// fast a peer retries; the rejection itself is never skipped.
		rejectLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		stopped:       make(chan struct{}),
	}
	m.credParams = connParams{
		maxFrameSize:   cfg.MaxFrameSize,
		readTimeout:    time.Duration(cfg.ReadTimeoutMs) * time.Millisecond,
		credential:     record,
		insecure:       !ok,
		exec:           exec,
		logger:         logger,
		commandCounter: &m.totalCommandsRun,
	}
	return m, nil
}

// Stats is a point-in-time snapshot of the manager's operational counters.
type Stats struct {
	ActiveConnections int
	TotalConnections  int64
	CommandsExecuted  int64
}

// Stats returns the manager's current counters. Safe to call
// concurrently with Serve.
func (m *Manager) Stats() Stats {
	return Stats{
		ActiveConnections: m.registry.count(),
		TotalConnections:  m.nextID.Load(),
		CommandsExecuted:  m.totalCommandsRun.Load(),
	}
}

// Addr returns the listener's bound address, including the actual port
// when cfg.Port was 0.
func (m *Manager) Addr() net.Addr {
	return m.ln.Addr()
}

// Serve runs the accept loop until ctx is cancelled or the listener
// fails, then performs an orderly shutdown and returns. The accept wait
// carries its own periodic deadline, independent of ctx, so shutdown is
// observed promptly even on a listener implementation that can't be
// interrupted any other way.
func (m *Manager) Serve(ctx context.Context) error {
	acceptTimeout := time.Duration(m.cfg.AcceptTimeoutMs) * time.Millisecond

	m.wg.Add(1)
	go m.reapIdle(ctx)

	var serveErr error
loop:
	for {
		select {
		case <-ctx.Done():
			serveErr = ctx.Err()
			break loop
		default:
		}

		m.ln.SetDeadline(time.Now().Add(acceptTimeout))
		raw, err := m.ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				serveErr = nil
				break loop
			}
			serveErr = err
			break loop
		}

		m.handleAccept(ctx, raw)
	}

	m.shutdown()
	return serveErr
}

func (m *Manager) handleAccept(ctx context.Context, raw net.Conn) {
	if m.registry.count() >= m.cfg.MaxConnections {
		ip, _, _ := net.SplitHostPort(raw.RemoteAddr().String())
		raw.Close()
		if m.rejectLimiter.Allow() {
			logging.RateLimit(m.logger, ip)
		}
		return
	}

	if tcpConn, ok := raw.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	id := m.nextID.Add(1)
	conn := newConnection(id, raw, m.credParams, m)
	m.registry.add(conn)

	ip, portStr, _ := net.SplitHostPort(raw.RemoteAddr().String())
	port := 0
	fmt.Sscanf(portStr, "%d", &port)
	logging.Connect(m.logger, id, ip, port)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		conn.run(ctx)
	}()
}

// reapIdle periodically closes connections whose last activity predates
// read_timeout_ms. The per-socket read deadline is the primary mechanism;
// this is the fallback for a connection that authenticated and then
// simply stopped sending or receiving anything, including its own read
// deadline being refreshed by partial activity elsewhere.
func (m *Manager) reapIdle(ctx context.Context) {
	defer m.wg.Done()

	idleTimeout := time.Duration(m.cfg.ReadTimeoutMs) * time.Millisecond
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopped:
			return
		case <-ticker.C:
			for _, c := range m.registry.snapshot() {
				if c.idleSince() > idleTimeout {
					c.close("idle timeout")
				}
			}
		}
	}
}

// shutdown closes the listener, closes every live connection with reason
// "server shutdown", and waits briefly for their read tasks to exit. Safe
// to call more than once.
func (m *Manager) shutdown() {
	m.stopOnce.Do(func() {
		close(m.stopped)
		m.ln.Close()

		for _, c := range m.registry.snapshot() {
			c.close("server shutdown")
		}

		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	})
}
