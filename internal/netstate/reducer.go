package netstate

import (
	"sync"

	"github.com/meshircd/core/internal/event"
	"github.com/meshircd/core/minilog"
)

var log = minilog.Named("netstate")

// Reducer owns a NetworkState under a RWMutex (spec.md §5: "Network
// state: RwLock. Only the reducer writes."). Apply is the only write
// path; View hands out a read-locked snapshot for the command layer and
// gossip's GetNetworkState responses.
type Reducer struct {
	mu    sync.RWMutex
	state *NetworkState
}

// NewReducer returns a Reducer wrapping an empty NetworkState.
func NewReducer() *Reducer {
	return &Reducer{state: New()}
}

// Apply applies one event to the network state, dispatching on its
// details tag, and emits every resulting Change to sink, finishing with
// an EventComplete marker. Handlers that fail validation make no mutation
// and emit no change (besides EventComplete): the reducer never panics on
// bad event content (spec.md §7).
func (r *Reducer) Apply(e event.Event, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sink == nil {
		sink = func(Change) {}
	}

	if err := dispatch(r.state, e, sink); err != nil {
		log.Info("event %v not applied: %v", e.ID, err)
	}
	sink(EventComplete{})
}

// View runs fn with a read lock held over the network state, for queries
// that must observe a consistent snapshot across several lookups.
func (r *Reducer) View(fn func(*NetworkState)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn(r.state)
}

// ReplaceState swaps in a freshly deserialized NetworkState, used when
// bootstrapping from a peer's GetNetworkState response or restoring from
// an upgrade snapshot.
func (r *Reducer) ReplaceState(s *NetworkState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = s
}

// Snapshot returns a reference to the current state for serialization.
// Callers must not mutate it; use Apply for all writes. The reducer's own
// lock is not held across the caller's use of the snapshot, so callers
// that need a consistent point-in-time copy should take it from within a
// View callback instead (this accessor exists for the upgrade path, which
// already holds the world stopped via its own coordination).
func (r *Reducer) Snapshot() *NetworkState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.state
}

func dispatch(s *NetworkState, e event.Event, sink Sink) error {
	switch d := e.Details.(type) {
	case event.NewUser:
		return applyNewUser(s, e, d, sink)
	case event.BindNickname:
		return applyBindNickname(s, e, d, sink)
	case event.UserQuit:
		return applyUserQuit(s, e, d, sink)
	case event.UserModeChange:
		return applyUserModeChange(s, e, d, sink)
	case event.UserAwayChange:
		return applyUserAwayChange(s, e, d, sink)
	case event.UserLoginChange:
		return applyUserLoginChange(s, e, d, sink)
	case event.NewChannel:
		return applyNewChannel(s, e, d, sink)
	case event.ChannelJoin:
		return applyChannelJoin(s, e, d, sink)
	case event.ChannelPart:
		return applyChannelPart(s, e, d, sink)
	case event.ChannelKick:
		return applyChannelKick(s, e, d, sink)
	case event.ChannelInvite:
		return applyChannelInvite(s, e, d, sink)
	case event.ChannelModeChange:
		return applyChannelModeChange(s, e, d, sink)
	case event.NewChannelTopic:
		return applyNewChannelTopic(s, e, d, sink)
	case event.MembershipFlagChange:
		return applyMembershipFlagChange(s, e, d, sink)
	case event.NewListModeEntry:
		return applyNewListModeEntry(s, e, d, sink)
	case event.RemoveListModeEntry:
		return applyRemoveListModeEntry(s, e, d, sink)
	case event.NewMessage:
		return applyNewMessage(s, e, d, sink)
	case event.NewServer:
		return applyNewServer(s, e, d, sink)
	case event.ServerPing:
		return applyServerPing(s, e, d, sink)
	case event.ServerQuit:
		return applyServerQuit(s, e, d, sink)
	case event.IntroduceServicesServer:
		return applyIntroduceServicesServer(s, e, d, sink)
	case event.NewNetworkBan:
		return applyNewNetworkBan(s, e, d, sink)
	case event.RemoveNetworkBan:
		return applyRemoveNetworkBan(s, e, d, sink)
	case event.AccountUpdate:
		return applyAccountUpdate(s, e, d, sink)
	case event.NickRegistrationUpdate:
		return applyNickRegistrationUpdate(s, e, d, sink)
	case event.ChannelRegistrationUpdate:
		return applyChannelRegistrationUpdate(s, e, d, sink)
	case event.ChannelAccessUpdate:
		return applyChannelAccessUpdate(s, e, d, sink)
	case event.ChannelRoleUpdate:
		return applyChannelRoleUpdate(s, e, d, sink)
	case event.NewAuditLogEntry:
		return applyNewAuditLogEntry(s, e, d, sink)
	default:
		return unknownDetailsError{e}
	}
}

type unknownDetailsError struct{ e event.Event }

func (u unknownDetailsError) Error() string {
	return "event carries unrecognized details: " + u.e.String()
}
