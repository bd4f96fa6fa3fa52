package control

import (
	"testing"

	"github.com/meshircd/core/internal/event"
	"github.com/meshircd/core/internal/id"
)

type fakeConns struct {
	registered []string
	capsSet    map[string][]string
	removed    []id.UserID
	closed     []string
}

func newFakeConns() *fakeConns {
	return &fakeConns{capsSet: make(map[string][]string)}
}

func (f *fakeConns) Register(connID string) bool {
	f.registered = append(f.registered, connID)
	return true
}
func (f *fakeConns) SetCaps(connID string, caps []string) { f.capsSet[connID] = caps }
func (f *fakeConns) RemoveUser(user id.UserID)            { f.removed = append(f.removed, user) }
func (f *fakeConns) Close(connID string)                  { f.closed = append(f.closed, connID) }

type fakeSubmitter struct {
	submitted []id.ObjectID
}

func (f *fakeSubmitter) Submit(target id.ObjectID, details event.Details) {
	f.submitted = append(f.submitted, target)
}

func TestDispatcherAppliesEveryAction(t *testing.T) {
	conns := newFakeConns()
	sub := &fakeSubmitter{}
	d := New(conns, sub)

	u := id.UserID{Server: 1, Seq: 1}
	nick, err := id.NewNickname("bob")
	if err != nil {
		t.Fatalf("NewNickname: %v", err)
	}
	d.Apply([]Action{
		RegisterClient{ConnectionID: "c1"},
		UpdateConnectionCaps{ConnectionID: "c1", Caps: []string{"server-time"}},
		StateChange{Target: id.FromUserID(u), Details: event.NewUser{User: u, Nickname: nick}},
		DisconnectUser{User: u},
		CloseConnection{ConnectionID: "c2"},
	})

	if len(conns.registered) != 1 || conns.registered[0] != "c1" {
		t.Fatalf("expected c1 registered, got %v", conns.registered)
	}
	if len(conns.capsSet["c1"]) != 1 || conns.capsSet["c1"][0] != "server-time" {
		t.Fatalf("expected caps set, got %v", conns.capsSet)
	}
	if len(sub.submitted) != 1 {
		t.Fatalf("expected 1 submitted event, got %d", len(sub.submitted))
	}
	if len(conns.removed) != 1 || conns.removed[0] != u {
		t.Fatalf("expected user removed, got %v", conns.removed)
	}
	if len(conns.closed) != 1 || conns.closed[0] != "c2" {
		t.Fatalf("expected c2 closed, got %v", conns.closed)
	}
}

type unknownAction struct{}

func (unknownAction) ActionKind() string { return "unknown" }

func TestDispatcherSkipsUnknownActionWithoutPanicking(t *testing.T) {
	conns := newFakeConns()
	sub := &fakeSubmitter{}
	d := New(conns, sub)

	d.Apply([]Action{unknownAction{}, RegisterClient{ConnectionID: "c1"}})
	if len(conns.registered) != 1 {
		t.Fatalf("expected subsequent valid actions to still apply")
	}
}
