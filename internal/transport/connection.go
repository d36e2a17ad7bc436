package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/opsrcon/rcond/internal/auth"
	"github.com/opsrcon/rcond/internal/executor"
	"github.com/opsrcon/rcond/internal/logging"
	"github.com/opsrcon/rcond/internal/protocol"
	"github.com/opsrcon/rcond/internal/session"
)

// connParams is the read-only-after-construction configuration a
// Connection needs from its Manager. Passed by value at construction so a
// Connection never reaches back into the Manager for config.
type connParams struct {
	maxFrameSize   int
	readTimeout    time.Duration
	credential     auth.Record
	insecure       bool
	exec           executor.Func
	logger         *slog.Logger
	commandCounter *atomic.Int64
}

// Connection is one accepted TCP socket and everything owned by its read
// task: the receive buffer, the session state machine, the write
// semaphore, and activity bookkeeping. Nothing here is touched from
// another connection's goroutine; the only cross-connection shared state
// is the Manager's registry, which holds a pointer to this struct but
// never reaches into its fields except via the methods below.
type Connection struct {
	id     int64
	conn   net.Conn
	params connParams
	sess   *session.Machine

	recvBuf []byte

	writeSem *semaphore.Weighted

	lastActivity atomic.Int64 // unix nanoseconds
	startedAt    time.Time

	commandsExecuted int // owned by the read goroutine only

	closeOnce sync.Once
	closed    chan struct{}

	manager *Manager
}

func newConnection(id int64, raw net.Conn, params connParams, manager *Manager) *Connection {
	c := &Connection{
		id:        id,
		conn:      raw,
		params:    params,
		sess:      session.New(),
		recvBuf:   make([]byte, 0, params.maxFrameSize),
		writeSem:  semaphore.NewWeighted(1),
		startedAt: time.Now(),
		closed:    make(chan struct{}),
		manager:   manager,
	}
	c.touch()
	return c
}

func (c *Connection) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Connection) idleSince() time.Duration {
	return time.Since(time.Unix(0, c.lastActivity.Load()))
}

// run is the per-connection read task. It owns recvBuf and sess for its
// entire lifetime and returns only once the connection is closed.
func (c *Connection) run(ctx context.Context) {
	scratch := make([]byte, c.params.maxFrameSize)
	maxRecv := 2 * c.params.maxFrameSize

	for {
		select {
		case <-ctx.Done():
			c.close("server shutdown")
			return
		case <-c.closed:
			return
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(c.params.readTimeout))
		n, err := c.conn.Read(scratch)
		if err != nil {
			c.close(closeReasonForReadErr(err))
			return
		}
		if n == 0 {
			c.close("client disconnected")
			return
		}
		c.touch()

		if len(c.recvBuf)+n > maxRecv {
			logging.PacketInvalid(c.params.logger, c.id, "receive buffer overflow")
			c.close("receive buffer overflow")
			return
		}
		c.recvBuf = append(c.recvBuf, scratch[:n]...)

		if !c.drainFrames(ctx) {
			return
		}
	}
}

// drainFrames consumes every complete frame currently sitting in recvBuf.
// Returns false if the connection was closed while draining (so run must
// stop reading).
func (c *Connection) drainFrames(ctx context.Context) bool {
	for {
		result := protocol.TryDecodeOne(c.recvBuf, c.params.maxFrameSize)
		switch result.Outcome {
		case protocol.Need:
			return true
		case protocol.Invalid:
			logging.PacketInvalid(c.params.logger, c.id, result.Err.Error())
			c.close(fmt.Sprintf("protocol violation: %v", result.Err))
			return false
		case protocol.Frame:
			c.recvBuf = c.recvBuf[result.Consumed:]
			if !c.handlePacket(ctx, result.Packet) {
				return false
			}
		}
	}
}

// handlePacket classifies pkt against the session state and acts on it.
// Returns false if handling the packet closed the connection.
func (c *Connection) handlePacket(ctx context.Context, pkt protocol.Packet) bool {
	switch c.sess.Classify(pkt.Type) {
	case session.Authenticate:
		candidate := string(pkt.Body)
		success := c.params.insecure || auth.Verify(candidate, c.params.credential)

		if err := c.writeFrame(ctx, protocol.NewAuthResponse(pkt.RequestID, success)); err != nil {
			c.close(fmt.Sprintf("write error: %v", err))
			return false
		}

		if success {
			logging.Auth(c.params.logger, c.id, "success")
			c.sess.MarkAuthenticated()
			logging.SessionStart(c.params.logger, c.id)
			return true
		}
		logging.Auth(c.params.logger, c.id, "failure")
		c.close("authentication failed")
		return false

	case session.Execute:
		c.execute(ctx, pkt)
		return true

	case session.Ignore:
		return true

	case session.CloseUnauthenticated:
		c.close("command received before authentication")
		return false

	case session.CloseReauth:
		c.close("re-authentication attempt")
		return false

	default: // session.CloseViolation
		c.close("protocol state violation")
		return false
	}
}

func (c *Connection) execute(ctx context.Context, pkt protocol.Packet) {
	name := logging.CommandName(string(pkt.Body))
	start := time.Now()

	out, err := c.params.exec(ctx, string(pkt.Body))
	elapsed := time.Since(start)
	c.commandsExecuted++
	c.params.commandCounter.Add(1)

	var resp protocol.Packet
	switch {
	case errors.Is(err, executor.ErrTimeout):
		resp = protocol.NewResponseValue(pkt.RequestID, "error: command timed out")
		logging.CommandExecute(c.params.logger, c.id, name, "timeout", elapsed)
	case err != nil:
		resp = protocol.NewResponseValue(pkt.RequestID, "error: command failed")
		logging.CommandExecute(c.params.logger, c.id, name, "error", elapsed)
	default:
		resp = protocol.NewResponseValue(pkt.RequestID, out)
		logging.CommandExecute(c.params.logger, c.id, name, "ok", elapsed)
	}

	if err := c.writeFrame(ctx, resp); err != nil {
		c.close(fmt.Sprintf("write error: %v", err))
	}
}

// writeFrame encodes pkt and writes it under the connection's
// single-permit write semaphore, bounding in-flight writes per connection
// to one and preventing two responses from interleaving on the wire.
func (c *Connection) writeFrame(ctx context.Context, pkt protocol.Packet) error {
	if err := c.writeSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.writeSem.Release(1)

	frame, err := protocol.Encode(pkt, c.params.maxFrameSize)
	if err != nil {
		// An oversized response is an internal error, not a protocol
		// violation by the peer; it must not ship a partial frame.
		return fmt.Errorf("encode response: %w", err)
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.params.readTimeout))
	if _, err := c.conn.Write(frame); err != nil {
		return err
	}
	c.touch()
	return nil
}

// close is idempotent: the first call wins, removes the connection from
// the registry, logs the disconnect, and closes the socket; later calls
// are no-ops.
func (c *Connection) close(reason string) {
	c.closeOnce.Do(func() {
		wasAuthenticated := c.sess.State() == session.Authenticated
		c.sess.Close()
		close(c.closed)
		c.conn.Close()
		c.manager.registry.remove(c.id)

		logging.Disconnect(c.params.logger, c.id, reason, time.Since(c.startedAt))
		if wasAuthenticated {
			logging.SessionEnd(c.params.logger, c.id, c.commandsExecuted)
		}
	})
}

func closeReasonForReadErr(err error) string {
	if errors.Is(err, io.EOF) {
		return "client disconnected"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "idle timeout"
	}
	return fmt.Sprintf("read error: %v", err)
}
