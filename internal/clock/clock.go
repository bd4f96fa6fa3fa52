// Package clock implements the event vector clock described in spec.md
// §3: a mapping from ServerID to the latest EventID seen from that server,
// with the partial order used to decide whether an event's dependencies
// have been satisfied.
package clock

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/meshircd/core/internal/id"
)

// Order is the result of comparing two clocks.
type Order int

const (
	Incomparable Order = iota
	Equal
	Less
	Greater
)

// Clock is a vector clock: for each server, the most recent EventID from
// that server which has been processed. The zero value is an empty clock.
type Clock struct {
	entries map[id.ServerID]id.EventID
}

// New returns a new, empty clock.
func New() Clock {
	return Clock{entries: make(map[id.ServerID]id.EventID)}
}

// Clone returns a deep copy of c, suitable for stamping onto an outgoing
// event (the clock embedded in an event must not alias the log's live
// clock).
func (c Clock) Clone() Clock {
	out := New()
	for k, v := range c.entries {
		out.entries[k] = v
	}
	return out
}

// Get returns the latest EventID known for the given server, and whether
// one is present at all.
func (c Clock) Get(server id.ServerID) (id.EventID, bool) {
	v, ok := c.entries[server]
	return v, ok
}

// Len returns the number of servers this clock has an entry for.
func (c Clock) Len() int {
	return len(c.entries)
}

// Servers returns the set of servers this clock has an entry for.
func (c Clock) Servers() []id.ServerID {
	out := make([]id.ServerID, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	return out
}

// UpdateWithID mutates c to reflect receipt of the given event id: if c
// has no entry for the id's server, or the entry it has is older, it is
// replaced.
func (c *Clock) UpdateWithID(eid id.EventID) {
	if c.entries == nil {
		c.entries = make(map[id.ServerID]id.EventID)
	}
	current, ok := c.entries[eid.Server]
	if !ok || current.Less(eid) {
		c.entries[eid.Server] = eid
	}
}

// UpdateWithClock mutates c to be the pointwise supremum of c and other.
func (c *Clock) UpdateWithClock(other Clock) {
	for _, v := range other.entries {
		c.UpdateWithID(v)
	}
}

// Contains reports whether eid has already been reflected in this clock:
// the clock has an entry for eid's server, and that entry is >= eid.
func (c Clock) Contains(eid id.EventID) bool {
	local, ok := c.entries[eid.Server]
	if !ok {
		return false
	}
	return !local.Less(eid)
}

// keysSubset reports whether every key of a also appears in b.
func keysSubset(a, b map[id.ServerID]id.EventID) bool {
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// Compare computes the partial-order relationship between c and other, as
// described in spec.md §3: c <= other iff every key in c also appears in
// other with a value >= c's.
func Compare(a, b Clock) Order {
	aLEb := keysSubset(a.entries, b.entries)
	bLEa := keysSubset(b.entries, a.entries)

	switch {
	case aLEb && bLEa:
		someLess, someMore := false, false
		for k, av := range a.entries {
			bv := b.entries[k]
			if av.Less(bv) {
				someLess = true
			} else if bv.Less(av) {
				someMore = true
			}
		}
		switch {
		case someLess && someMore:
			return Incomparable
		case someLess:
			return Less
		case someMore:
			return Greater
		default:
			return Equal
		}
	case aLEb:
		for k, av := range a.entries {
			if bv, ok := b.entries[k]; !ok || bv.Less(av) {
				return Incomparable
			}
		}
		return Less
	case bLEa:
		for k, bv := range b.entries {
			if av, ok := a.entries[k]; !ok || av.Less(bv) {
				return Incomparable
			}
		}
		return Greater
	default:
		return Incomparable
	}
}

// LessEq reports whether a <= b under the partial order.
func LessEq(a, b Clock) bool {
	o := Compare(a, b)
	return o == Less || o == Equal
}

// Less reports whether a < b under the partial order.
func Less(a, b Clock) bool {
	return Compare(a, b) == Less
}

func (c Clock) String() string {
	return fmt.Sprintf("Clock%v", c.entries)
}

// GobEncode and GobDecode let Clock travel over gob-encoded gossip
// messages and the upgrade saved-state blob despite keeping its map
// field unexported.
func (c Clock) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c.entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Clock) GobDecode(data []byte) error {
	c.entries = make(map[id.ServerID]id.EventID)
	return gob.NewDecoder(bytes.NewReader(data)).Decode(&c.entries)
}
