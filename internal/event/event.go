// Package event defines the event record exchanged between the event log,
// the gossip replicator and the network state reducer, as described in
// spec.md §3-§4.
package event

import (
	"fmt"

	"github.com/meshircd/core/internal/clock"
	"github.com/meshircd/core/internal/id"
)

// Event is a single causally-ordered change proposed by one node. The
// clock field records exactly the set of events the originator had
// processed just before emitting this one - its causal dependencies.
type Event struct {
	ID        id.EventID
	Timestamp int64 // unix seconds
	Clock     clock.Clock
	Target    id.ObjectID
	Details   Details
}

func (e Event) String() string {
	return fmt.Sprintf("Event{%v %v %T->%v}", e.ID, e.Timestamp, e.Details, e.Target)
}

// Details is the tagged-union payload of an event. Every concrete type
// implementing it must be registered with encoding/gob (see init() in
// details.go) so that it can travel over the gossip wire and the upgrade
// saved-state blob inside the Details interface field.
type Details interface {
	// DetailKind identifies which concrete Details variant this is, for
	// reducer dispatch and logging.
	DetailKind() Kind
}
