// Package history implements the append-only message history log:
// every NewMessage change the reducer emits is appended here, indexed
// per recipient so a reconnecting client (or the services HISTORY
// command) can ask for its own backlog without scanning the whole log
// (spec.md §4.4, §6).
package history

import (
	"sync"

	"github.com/meshircd/core/internal/id"
	"github.com/meshircd/core/internal/netstate"
	"github.com/meshircd/core/minilog"
)

var log = minilog.Named("history")

// Entry is one recorded message, independent of any particular user's
// view of it.
type Entry struct {
	Serial   int64
	ID       id.MessageID
	Source   id.UserID
	Target   id.ObjectID
	Text     string
	IsNotice bool
	At       int64
}

// Log is an append-only message history with a per-object (user or
// channel) index. Safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	serial  int64
	byTarget map[id.ObjectID][]int // indexes into entries, in append order
}

// New returns an empty history log.
func New() *Log {
	return &Log{byTarget: make(map[id.ObjectID][]int)}
}

// Add appends a new message entry. at is the event's wall-clock
// timestamp, not a value read from the clock at call time (spec.md's
// determinism requirement extends to history: every replica must record
// the same timestamp for the same event).
func (l *Log) Add(msgID id.MessageID, source id.UserID, target id.ObjectID, text string, isNotice bool, at int64) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.serial++
	e := Entry{Serial: l.serial, ID: msgID, Source: source, Target: target, Text: text, IsNotice: isNotice, At: at}
	l.entries = append(l.entries, e)
	l.byTarget[target] = append(l.byTarget[target], len(l.entries)-1)
	return e
}

// Sink adapts a Log to a netstate.Sink, so it can be registered directly
// alongside the command layer's own sink and fed every Change the
// reducer produces.
func (l *Log) Sink(at func() int64) netstate.Sink {
	return func(c netstate.Change) {
		m, ok := c.(netstate.NewMessage)
		if !ok {
			return
		}
		l.Add(m.ID, m.Source, m.Target, m.Text, m.IsNotice, at())
	}
}

// EntriesForTarget returns every entry recorded for target, oldest
// first, limited to at most limit entries (0 means unlimited).
func (l *Log) EntriesForTarget(target id.ObjectID, limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idxs := l.byTarget[target]
	if limit > 0 && len(idxs) > limit {
		idxs = idxs[len(idxs)-limit:]
	}
	out := make([]Entry, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, l.entries[i])
	}
	return out
}

// EntriesForTargetReverse is EntriesForTarget but newest first, the
// order a client paging backward through its own history wants.
func (l *Log) EntriesForTargetReverse(target id.ObjectID, limit int) []Entry {
	fwd := l.EntriesForTarget(target, limit)
	out := make([]Entry, len(fwd))
	for i, e := range fwd {
		out[len(fwd)-1-i] = e
	}
	return out
}

// Since returns every entry with Serial > after, across all targets, in
// append order - used to answer a peer's catch-up sync after a brief
// partition, mirroring eventlog.GetSince.
func (l *Log) Since(after int64) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for _, e := range l.entries {
		if e.Serial > after {
			out = append(out, e)
		}
	}
	return out
}

// Prune discards every entry older than cutoff (unix seconds), keeping
// memory bounded. Callers run this periodically; it is not automatic.
func (l *Log) Prune(cutoff int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	removed := 0
	for _, e := range l.entries {
		if e.At < cutoff {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept
	l.rebuildIndexLocked()
	log.Debug("pruned %d entries older than %d", removed, cutoff)
	return removed
}

func (l *Log) rebuildIndexLocked() {
	l.byTarget = make(map[id.ObjectID][]int, len(l.byTarget))
	for i, e := range l.entries {
		l.byTarget[e.Target] = append(l.byTarget[e.Target], i)
	}
}
