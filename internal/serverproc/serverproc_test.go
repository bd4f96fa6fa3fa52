package serverproc

import (
	"testing"
	"time"

	"github.com/meshircd/core/internal/event"
	"github.com/meshircd/core/internal/gossip"
	"github.com/meshircd/core/internal/id"
	"github.com/meshircd/core/internal/netstate"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	self := id.ServerID(1)
	node := gossip.NewNode(self, nil, nil, gossip.DefaultFanout)
	s := New(Config{
		Self:       self,
		Generator:  id.NewGenerator(self),
		Node:       node,
		EventEpoch: id.EpochID(1000),
	})
	return s
}

func waitForDrain() { time.Sleep(10 * time.Millisecond) }

func TestSubmitDeliversThroughReducer(t *testing.T) {
	s := newTestServer(t)

	nick, err := id.NewNickname("alice")
	if err != nil {
		t.Fatal(err)
	}
	u := id.UserID{Server: 1, Seq: 1}
	s.Submit(id.FromUserID(u), event.NewUser{User: u, Nickname: nick})

	waitForDrain()

	var gotUser bool
	s.Reducer().View(func(st *netstate.NetworkState) {
		_, gotUser = st.Users[u]
	})
	if !gotUser {
		t.Fatalf("expected user to appear in network state after Submit")
	}
}

func TestHandleNewEventIsIdempotent(t *testing.T) {
	s := newTestServer(t)

	nick, _ := id.NewNickname("bob")
	u := id.UserID{Server: 2, Seq: 1}
	e := event.Event{
		ID:      id.EventID{Server: 2, Epoch: 1, Sequence: 1},
		Target:  id.FromUserID(u),
		Details: event.NewUser{User: u, Nickname: nick},
	}

	s.HandleNewEvent(3, gossip.NewEvent{Event: e})
	s.HandleNewEvent(3, gossip.NewEvent{Event: e})
	waitForDrain()

	var count int
	s.Reducer().View(func(st *netstate.NetworkState) {
		if _, ok := st.Users[u]; ok {
			count++
		}
	})
	if count != 1 {
		t.Fatalf("expected exactly one user record, observed state check ran %d times", count)
	}
}

func TestStatisticsReportsPeerCount(t *testing.T) {
	s := newTestServer(t)
	stats := s.Statistics()
	if stats.PeerCount != 0 {
		t.Fatalf("expected 0 peers with no dialed connections, got %d", stats.PeerCount)
	}
}
