// Package control defines the boundary between the command layer (which
// parses and validates client IRC lines) and everything that is allowed
// to mutate shared server state: the event log and the live connection
// table. A command handler never touches either directly - it returns a
// slice of Actions, and the Dispatcher is the only thing that applies
// them. This keeps command parsing free of locking concerns and gives
// every state mutation a single choke point to log.
package control

import (
	"fmt"

	"github.com/meshircd/core/internal/event"
	"github.com/meshircd/core/internal/id"
	"github.com/meshircd/core/minilog"
)

var log = minilog.Named("control")

// Action is a single deferred effect a command handler asked the
// dispatcher to apply. The concrete types below are the complete set.
type Action interface {
	ActionKind() string
}

// RegisterClient asks the dispatcher to attempt to turn a connection that
// has now sent NICK/USER (or finished SASL) into a registered user, or
// attach it to an existing user's session if it authenticated as one
// already on the network.
type RegisterClient struct {
	ConnectionID string
}

func (RegisterClient) ActionKind() string { return "register_client" }

// UpdateConnectionCaps records the result of a CAP negotiation against a
// connection that has not necessarily registered yet.
type UpdateConnectionCaps struct {
	ConnectionID string
	Caps         []string
}

func (UpdateConnectionCaps) ActionKind() string { return "update_connection_caps" }

// DisconnectUser tears down every connection attached to a fully
// registered user, e.g. after a QUIT or a KILL.
type DisconnectUser struct {
	User id.UserID
}

func (DisconnectUser) ActionKind() string { return "disconnect_user" }

// CloseConnection closes a single connection that never finished
// registering, or that failed access checks.
type CloseConnection struct {
	ConnectionID string
}

func (CloseConnection) ActionKind() string { return "close_connection" }

// StateChange submits one network-state event: the canonical way a
// command handler expresses "this happened" without itself touching the
// reducer, event log, or gossip layer.
type StateChange struct {
	Target  id.ObjectID
	Details event.Details
}

func (StateChange) ActionKind() string { return "state_change" }

// Submitter is the event-log/gossip boundary. A single implementation
// (serverproc.Server) stamps an event, adds it to the event log that
// feeds the reducer, and gossips it to peers, in that order.
type Submitter interface {
	Submit(target id.ObjectID, details event.Details)
}

// Connections is the live, per-process connection table. It is never
// shared network state - it has no representation in the event log and
// does not survive a hot upgrade except via the upgrade package's saved
// fd table.
type Connections interface {
	// Register attempts to complete registration for a connection that
	// has collected enough of NICK/USER/CAP/SASL to proceed. It returns
	// false if the connection isn't ready yet or has already been
	// registered.
	Register(connID string) bool
	SetCaps(connID string, caps []string)
	RemoveUser(user id.UserID)
	Close(connID string)
}

// Dispatcher applies Actions returned by command handlers in order.
type Dispatcher struct {
	conns Connections
	sub   Submitter
}

// New builds a Dispatcher. conns and sub are typically the same
// concrete type on the main process (it owns both the connection table
// and the event log), kept as separate interfaces so command-layer tests
// can stub either independently.
func New(conns Connections, sub Submitter) *Dispatcher {
	return &Dispatcher{conns: conns, sub: sub}
}

// Apply runs every action in order. A failing action is logged and
// skipped; one bad action must never prevent the rest of a command's
// effects from landing (e.g. a JOIN that both submits a state change and
// asks to update caps should not lose the state change because cap
// tracking failed).
func (d *Dispatcher) Apply(actions []Action) {
	for _, a := range actions {
		if err := d.apply(a); err != nil {
			log.Error("applying action %s: %v", a.ActionKind(), err)
		}
	}
}

func (d *Dispatcher) apply(a Action) error {
	switch act := a.(type) {
	case RegisterClient:
		d.conns.Register(act.ConnectionID)
		return nil

	case UpdateConnectionCaps:
		d.conns.SetCaps(act.ConnectionID, act.Caps)
		return nil

	case DisconnectUser:
		d.conns.RemoveUser(act.User)
		return nil

	case CloseConnection:
		d.conns.Close(act.ConnectionID)
		return nil

	case StateChange:
		d.sub.Submit(act.Target, act.Details)
		return nil

	default:
		return fmt.Errorf("control: unknown action type %T", a)
	}
}
