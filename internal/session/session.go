// Package session implements the per-connection authentication state
// machine: Unauthenticated -> Authenticated -> Closed. State lives only on
// a single connection's Machine value — there is no process-global
// authenticated flag, and no state is ever indexed by anything derivable
// from the wire (see spec's "avoid a global authenticated flag" note).
package session

import "github.com/opsrcon/rcond/internal/protocol"

// State is one of the three states a connection's session can be in.
type State int

const (
	// Unauthenticated is the initial state of every new connection.
	Unauthenticated State = iota
	// Authenticated is reached after a successful Auth packet.
	Authenticated
	// Closed is terminal — no transition leads out of it.
	Closed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "Unauthenticated"
	case Authenticated:
		return "Authenticated"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Decision is what the connection manager should do with an inbound
// packet, as classified against the current state.
type Decision int

const (
	// Authenticate means: verify the packet's body against the
	// credential record, send an AuthResponse, then transition.
	Authenticate Decision = iota
	// Execute means: the command body may be forwarded to the executor.
	Execute
	// Ignore means: the packet is a ResponseValue used as a client-side
	// keepalive ping. Never forward it anywhere; do nothing.
	Ignore
	// CloseUnauthenticated means: a non-Auth packet arrived before
	// authentication. The connection must close without ever reaching
	// the executor.
	CloseUnauthenticated
	// CloseReauth means: an Auth packet arrived on an already
	// authenticated connection. Close immediately — do not send a
	// second AuthResponse. This is the spec's hardened resolution of
	// the re-auth Open Question: it avoids giving a peer a timing
	// side-channel on repeated auth attempts.
	CloseReauth
	// CloseViolation means: any other unexpected (state, type) pair.
	CloseViolation
)

// Machine is the per-connection session state. The zero value is in the
// Unauthenticated state, the same as a Machine returned by New.
type Machine struct {
	state State
}

// New returns a Machine in the initial Unauthenticated state.
func New() *Machine {
	return &Machine{state: Unauthenticated}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Classify maps the current state and an inbound packet's type to the
// action the connection manager must take. Classify never mutates state —
// callers apply the resulting transition explicitly via MarkAuthenticated
// or Close, after acting on the Decision (e.g. after the AuthResponse for
// a failed Auth has actually been written).
func (m *Machine) Classify(t protocol.Type) Decision {
	switch m.state {
	case Unauthenticated:
		if t == protocol.Auth {
			return Authenticate
		}
		return CloseUnauthenticated

	case Authenticated:
		switch t {
		case protocol.Auth:
			return CloseReauth
		case protocol.ResponseValue:
			return Ignore
		case protocol.ExecCommand:
			// Wire code 2. A client never sends AuthResponse (also
			// code 2, server -> client only), so receiving this code
			// from a client always means ExecCommand.
			return Execute
		default:
			return CloseViolation
		}

	default: // Closed
		return CloseViolation
	}
}

// MarkAuthenticated transitions Unauthenticated -> Authenticated. It is a
// no-op from any other state.
func (m *Machine) MarkAuthenticated() {
	if m.state == Unauthenticated {
		m.state = Authenticated
	}
}

// Close transitions to the terminal Closed state from any state.
func (m *Machine) Close() {
	m.state = Closed
}
