// Package id defines the network's validated string primitives and the
// typed, per-server object identifiers built on top of them.
package id

import "fmt"

// ServerID identifies a server node. It is small and stable: configured
// once per node, not generated at runtime.
type ServerID int16

// EpochID identifies one incarnation (boot) of a server node. It is the
// wall-clock second at which the node booted; a restarted node picks a
// new, larger epoch so that events from its previous life are
// unambiguously distinguishable from its current one.
type EpochID int64

// EventID totally orders events, lexicographically by (Server, Epoch,
// Sequence). Sequence is produced by a per-epoch monotonic counter, so the
// triple is globally unique by construction.
type EventID struct {
	Server   ServerID
	Epoch    EpochID
	Sequence int64
}

// Less reports whether id sorts strictly before other in the total,
// lexicographic order over (Server, Epoch, Sequence).
func (id EventID) Less(other EventID) bool {
	if id.Server != other.Server {
		return id.Server < other.Server
	}
	if id.Epoch != other.Epoch {
		return id.Epoch < other.Epoch
	}
	return id.Sequence < other.Sequence
}

// Compare returns -1, 0 or 1 as id is less than, equal to, or greater than
// other, using the same order as Less.
func (id EventID) Compare(other EventID) int {
	switch {
	case id == other:
		return 0
	case id.Less(other):
		return -1
	default:
		return 1
	}
}

func (id EventID) String() string {
	return fmt.Sprintf("%d.%d.%d", id.Server, id.Epoch, id.Sequence)
}

// Zero reports whether this is the zero-value EventID (never emitted by a
// real generator; used as a sentinel for "no such event").
func (id EventID) Zero() bool {
	return id == EventID{}
}

// EventIDGenerator produces a strictly increasing sequence of EventIDs for
// one server incarnation. SetEpoch resets the sequence counter, exactly as
// spec.md describes for a restarting node.
type EventIDGenerator struct {
	server ServerID
	epoch  EpochID
	seq    int64
}

// NewEventIDGenerator returns a generator for the given server starting at
// the given epoch.
func NewEventIDGenerator(server ServerID, epoch EpochID) *EventIDGenerator {
	return &EventIDGenerator{server: server, epoch: epoch}
}

// Next returns the next EventID in sequence. Not safe for concurrent use;
// callers (the event log) serialize access to a single generator.
func (g *EventIDGenerator) Next() EventID {
	g.seq++
	return EventID{Server: g.server, Epoch: g.epoch, Sequence: g.seq}
}

// SetEpoch discards the current sequence state and begins a new sequence
// under the given epoch, for use when a node restarts.
func (g *EventIDGenerator) SetEpoch(epoch EpochID) {
	g.epoch = epoch
	g.seq = 0
}

// Epoch returns the generator's current epoch.
func (g *EventIDGenerator) Epoch() EpochID {
	return g.epoch
}

// Server returns the generator's server id.
func (g *EventIDGenerator) Server() ServerID {
	return g.server
}
