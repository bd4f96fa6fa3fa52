package servicesd

import (
	"testing"

	"github.com/meshircd/core/internal/clock"
	"github.com/meshircd/core/internal/event"
	"github.com/meshircd/core/internal/history"
	"github.com/meshircd/core/internal/id"
	"github.com/meshircd/core/internal/netstate"
	"github.com/meshircd/core/internal/services"
)

// directSubmitter applies submitted events straight to the reducer,
// standing in for the event log / gossip broadcast path in these tests.
type directSubmitter struct {
	reducer *netstate.Reducer
	seq     int64
}

func (d *directSubmitter) Submit(target id.ObjectID, details event.Details) {
	d.seq++
	d.reducer.Apply(event.Event{
		ID:        id.EventID{Server: 1, Epoch: 1, Sequence: d.seq},
		Timestamp: 1000,
		Clock:     clock.New(),
		Target:    target,
		Details:   details,
	}, func(netstate.Change) {})
}

func TestRegisterThenLoginRoundTrip(t *testing.T) {
	reducer := netstate.NewReducer()
	sub := &directSubmitter{reducer: reducer}
	gen := id.NewGenerator(1)
	h := New(gen, reducer, history.New(), sub, func() int64 { return 1000 })

	resp := h.Handle(services.Register{Account: "alice", Password: "hunter2"})
	if _, ok := resp.(services.Success); !ok {
		t.Fatalf("Register: expected Success, got %#v", resp)
	}

	resp = h.Handle(services.Register{Account: "alice", Password: "other"})
	if _, ok := resp.(services.Failure); !ok {
		t.Fatalf("duplicate Register: expected Failure, got %#v", resp)
	}

	resp = h.Handle(services.Login{Account: "alice", Password: "hunter2"})
	if _, ok := resp.(services.Success); !ok {
		t.Fatalf("Login: expected Success, got %#v", resp)
	}

	resp = h.Handle(services.Login{Account: "alice", Password: "wrong"})
	if _, ok := resp.(services.Failure); !ok {
		t.Fatalf("bad-password Login: expected Failure, got %#v", resp)
	}
}

func TestChannelRegisterGrantsFounderAccess(t *testing.T) {
	reducer := netstate.NewReducer()
	sub := &directSubmitter{reducer: reducer}
	gen := id.NewGenerator(1)
	h := New(gen, reducer, history.New(), sub, func() int64 { return 1000 })

	h.Handle(services.Register{Account: "alice", Password: "hunter2"})

	resp := h.Handle(services.ChannelRegister{Channel: "#test", Account: "alice"})
	if _, ok := resp.(services.Success); !ok {
		t.Fatalf("ChannelRegister: expected Success, got %#v", resp)
	}

	var foundAccess bool
	reducer.View(func(s *netstate.NetworkState) {
		for _, a := range s.ChannelAccess {
			for _, role := range a.Roles {
				if role == "founder" {
					foundAccess = true
				}
			}
		}
	})
	if !foundAccess {
		t.Fatalf("expected a founder access record to have been created")
	}

	resp = h.Handle(services.ChannelRegister{Channel: "#test", Account: "alice"})
	if _, ok := resp.(services.Failure); !ok {
		t.Fatalf("duplicate ChannelRegister: expected Failure, got %#v", resp)
	}
}
