// Package eventlog implements the per-server event log described in
// spec.md §4.1: it stamps locally-created events, accepts both local and
// remote events in causal order, and answers range queries used by the
// gossip replicator to resync peers.
package eventlog

import (
	"sort"
	"sync"

	"github.com/meshircd/core/internal/clock"
	"github.com/meshircd/core/internal/event"
	"github.com/meshircd/core/internal/id"
	"github.com/meshircd/core/minilog"
)

var log = minilog.Named("eventlog")

// Log is a single server's event history: delivered events organized per
// originating server for efficient range queries, plus a pending set for
// events whose dependencies have not yet arrived.
type Log struct {
	mu sync.Mutex

	idGen *id.EventIDGenerator

	// history[server] is kept sorted by event id (epoch, then sequence);
	// binary search serves
	// Get and GetSince in O(log n), mirroring the BTreeMap<EventId,Event>
	// per server that ircd_sync's EventLog keeps.
	history map[id.ServerID][]event.Event
	pending map[id.EventID]event.Event

	clock clock.Clock

	// delivered receives every event as it becomes causally ready,
	// feeding the network state reducer. Sized generously since the
	// reducer is expected to drain it promptly; a full channel is not a
	// condition add() needs to react to (spec.md §4.1 "Failure
	// semantics").
	delivered chan event.Event
}

// New returns an empty Log that mints ids from gen and delivers ready
// events to the returned channel.
func New(gen *id.EventIDGenerator) (*Log, <-chan event.Event) {
	ch := make(chan event.Event, 4096)
	l := &Log{
		idGen:     gen,
		history:   make(map[id.ServerID][]event.Event),
		pending:   make(map[id.EventID]event.Event),
		clock:     clock.New(),
		delivered: ch,
	}
	return l, ch
}

// Create stamps a new event with the next local event id, the current
// timestamp and a copy of the log's current clock. It does not insert the
// event into the log; call Add separately (the caller may want to gossip
// it first).
func (l *Log) Create(now int64, target id.ObjectID, details event.Details) event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	return event.Event{
		ID:        l.idGen.Next(),
		Timestamp: now,
		Clock:     l.clock.Clone(),
		Target:    target,
		Details:   details,
	}
}

// Add inserts an event, local or remote. If the event's embedded clock is
// already satisfied by the log's current clock it is delivered
// immediately; otherwise it waits in the pending set until its
// dependencies arrive. A duplicate add (by event id) is a no-op.
func (l *Log) Add(e event.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.addLocked(e)
	l.checkPendingLocked()
}

func (l *Log) addLocked(e event.Event) {
	if l.getLocked(e.ID) != nil {
		return
	}
	if _, ok := l.pending[e.ID]; ok {
		return
	}

	if l.satisfiedLocked(e.Clock) {
		l.deliverLocked(e)
	} else {
		log.Info("deferring event %v; event clock=%v my clock=%v", e.ID, e.Clock, l.clock)
		l.pending[e.ID] = e
	}
}

// satisfiedLocked reports whether every dependency named in clk has
// already been delivered.
func (l *Log) satisfiedLocked(clk clock.Clock) bool {
	for _, server := range clk.Servers() {
		dep, _ := clk.Get(server)
		if !l.clock.Contains(dep) {
			return false
		}
	}
	return true
}

func (l *Log) deliverLocked(e event.Event) {
	list := l.history[e.ID.Server]
	// history is append-only per server in increasing Sequence order
	// because ids from the same server/epoch are minted monotonically
	// and a duplicate was already ruled out above.
	list = append(list, e)
	l.history[e.ID.Server] = list

	l.clock.UpdateWithID(e.ID)

	select {
	case l.delivered <- e:
	default:
		log.Error("delivered channel full, dropping notification for %v (event is still stored)", e.ID)
	}
}

// checkPendingLocked repeatedly scans the pending set for events that have
// become deliverable, until a fixed point - delivering one event may
// satisfy the dependency of another.
func (l *Log) checkPendingLocked() {
	for {
		progressed := false
		for eid, e := range l.pending {
			if l.satisfiedLocked(e.Clock) {
				delete(l.pending, eid)
				l.deliverLocked(e)
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

// Get performs an exact lookup by event id.
func (l *Log) Get(eid id.EventID) (event.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e := l.getLocked(eid); e != nil {
		return *e, true
	}
	return event.Event{}, false
}

func (l *Log) getLocked(eid id.EventID) *event.Event {
	list := l.history[eid.Server]
	i := sort.Search(len(list), func(i int) bool { return !list[i].ID.Less(eid) })
	if i < len(list) && list[i].ID == eid {
		return &list[i]
	}
	return nil
}

// GetSince returns, for each server in the log's history, every event
// strictly after the corresponding value in clk (or from the start of
// that server's history if clk has no entry for it), in event-id order.
func (l *Log) GetSince(clk clock.Clock) []event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []event.Event
	for server, list := range l.history {
		start := 0
		if dep, ok := clk.Get(server); ok {
			start = sort.Search(len(list), func(i int) bool { return dep.Less(list[i].ID) })
		}
		out = append(out, list[start:]...)
	}
	return out
}

// Clock returns a copy of the log's current clock (the pointwise supremum
// of every delivered event's id).
func (l *Log) Clock() clock.Clock {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.clock.Clone()
}

// PendingIDs returns the event ids currently waiting on unmet
// dependencies, for the gossip replicator's dependency-chasing GetEvent
// requests.
func (l *Log) PendingIDs() []id.EventID {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]id.EventID, 0, len(l.pending))
	for eid := range l.pending {
		out = append(out, eid)
	}
	return out
}

// MissingDependencies returns the specific unmet-dependency event ids
// referenced by the pending set's clocks - the ids spec.md §4.2 means by
// "an event whose clock contains IDs not in the log": each entry is an
// exact EventID a GetEvent request can resolve, not merely the id of a
// pending event itself. Callers are expected to poll this after every
// Add and issue gossip.GetEvent requests for whatever it returns.
func (l *Log) MissingDependencies() []id.EventID {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[id.EventID]bool)
	var out []id.EventID
	for _, e := range l.pending {
		for _, server := range e.Clock.Servers() {
			dep, _ := e.Clock.Get(server)
			if l.clock.Contains(dep) || seen[dep] {
				continue
			}
			seen[dep] = true
			out = append(out, dep)
		}
	}
	return out
}

// AdoptClock replaces the log's clock baseline with clk. Used when a
// freshly-joining node bootstraps from a peer's full network-state
// snapshot (spec.md §4.2 "Sync on join"): the local clock starts empty,
// and without adopting the snapshot's clock every event causally prior
// to it would look like an unmet dependency to satisfiedLocked forever.
func (l *Log) AdoptClock(clk clock.Clock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clk.Clone()
}

// SetEpoch resets the local id generator for a restarting node: local
// sequence state is discarded and a new sequence begins under the new
// epoch. Existing history is untouched.
func (l *Log) SetEpoch(epoch id.EpochID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.idGen.SetEpoch(epoch)
}
