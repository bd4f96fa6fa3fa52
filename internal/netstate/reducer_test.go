package netstate

import (
	"testing"

	"github.com/meshircd/core/internal/event"
	"github.com/meshircd/core/internal/id"
)

func ev(seq int64, target id.ObjectID, at int64, d event.Details) event.Event {
	return event.Event{
		ID:        id.EventID{Server: 1, Epoch: 1, Sequence: seq},
		Timestamp: at,
		Target:    target,
		Details:   d,
	}
}

func collectChanges(r *Reducer, e event.Event) []Change {
	var out []Change
	r.Apply(e, func(c Change) { out = append(out, c) })
	return out
}

func mustNick(t *testing.T, s string) id.Nickname {
	t.Helper()
	n, err := id.NewNickname(s)
	if err != nil {
		t.Fatalf("NewNickname(%q): %v", s, err)
	}
	return n
}

func TestApplyNewUserAndJoin(t *testing.T) {
	r := NewReducer()
	u := id.UserID{Server: 1, Seq: 1}
	ch := id.ChannelID{Server: 1, Seq: 1}

	changes := collectChanges(r, ev(1, id.FromUserID(u), 100, event.NewUser{
		User: u, Nickname: mustNick(t, "alice"), Username: "alice", Hostname: "host.example",
	}))
	if len(changes) != 3 { // NewUser, NewUserConnection, EventComplete
		t.Fatalf("expected 3 changes, got %d: %#v", len(changes), changes)
	}

	collectChanges(r, ev(2, id.FromChannelID(ch), 101, event.NewChannel{
		Channel: ch, Name: "#test", Created: 101,
	}))

	changes = collectChanges(r, ev(3, id.FromUserID(u), 102, event.ChannelJoin{User: u, Channel: ch}))
	var join *ChannelJoin
	for _, c := range changes {
		if j, ok := c.(ChannelJoin); ok {
			join = &j
		}
	}
	if join == nil {
		t.Fatalf("expected a ChannelJoin change, got %#v", changes)
	}
	if !join.GrantedOp {
		t.Fatalf("expected first joiner to be granted op")
	}

	r.View(func(s *NetworkState) {
		cv, ok := s.Channel(ch)
		if !ok {
			t.Fatalf("expected channel to exist")
		}
		if cv.MemberCount() != 1 {
			t.Fatalf("expected 1 member, got %d", cv.MemberCount())
		}
	})
}

func TestNicknameCollisionRenamesLoser(t *testing.T) {
	r := NewReducer()
	u1 := id.UserID{Server: 1, Seq: 1}
	u2 := id.UserID{Server: 2, Seq: 1}

	collectChanges(r, ev(1, id.FromUserID(u1), 100, event.NewUser{
		User: u1, Nickname: mustNick(t, "bob"), Username: "bob", Hostname: "host.example",
	}))
	// u2 claims the same nickname later (higher timestamp): u2 should lose
	// and be renamed instead.
	collectChanges(r, ev(2, id.FromUserID(u2), 200, event.NewUser{
		User: u2, Nickname: mustNick(t, "bob"), Username: "bob", Hostname: "host.example",
	}))

	r.View(func(s *NetworkState) {
		u1v, _ := s.User(u1)
		u2v, _ := s.User(u2)
		if u1v.Nickname() != "bob" {
			t.Fatalf("expected earlier claimant to keep the nickname, got %v", u1v.Nickname())
		}
		if u2v.Nickname() == "bob" {
			t.Fatalf("expected later claimant to be renamed away from the collision")
		}
	})
}

func TestUserQuitRemovesMemberships(t *testing.T) {
	r := NewReducer()
	u := id.UserID{Server: 1, Seq: 1}
	ch := id.ChannelID{Server: 1, Seq: 1}

	collectChanges(r, ev(1, id.FromUserID(u), 100, event.NewUser{
		User: u, Nickname: mustNick(t, "carol"), Username: "carol", Hostname: "host.example",
	}))
	collectChanges(r, ev(2, id.FromChannelID(ch), 101, event.NewChannel{Channel: ch, Name: "#a", Created: 101}))
	collectChanges(r, ev(3, id.FromUserID(u), 102, event.ChannelJoin{User: u, Channel: ch}))

	changes := collectChanges(r, ev(4, id.FromUserID(u), 103, event.UserQuit{User: u, Reason: "bye"}))
	var quit *UserQuit
	for _, c := range changes {
		if q, ok := c.(UserQuit); ok {
			quit = &q
		}
	}
	if quit == nil || len(quit.Memberships) != 1 {
		t.Fatalf("expected UserQuit to report 1 membership, got %#v", quit)
	}

	r.View(func(s *NetworkState) {
		if _, ok := s.Users[u]; ok {
			t.Fatalf("expected user to be removed")
		}
		cv, _ := s.Channel(ch)
		if cv.MemberCount() != 0 {
			t.Fatalf("expected channel to be empty after quit")
		}
	})
}

func TestDuplicateJoinIsNoop(t *testing.T) {
	r := NewReducer()
	u := id.UserID{Server: 1, Seq: 1}
	ch := id.ChannelID{Server: 1, Seq: 1}

	collectChanges(r, ev(1, id.FromUserID(u), 100, event.NewUser{
		User: u, Nickname: mustNick(t, "dan"), Username: "dan", Hostname: "host.example",
	}))
	collectChanges(r, ev(2, id.FromChannelID(ch), 101, event.NewChannel{Channel: ch, Name: "#a", Created: 101}))
	collectChanges(r, ev(3, id.FromUserID(u), 102, event.ChannelJoin{User: u, Channel: ch}))
	changes := collectChanges(r, ev(4, id.FromUserID(u), 103, event.ChannelJoin{User: u, Channel: ch}))

	for _, c := range changes {
		if _, ok := c.(ChannelJoin); ok {
			t.Fatalf("expected duplicate join to produce no ChannelJoin change")
		}
	}
}

func TestPersistentUserSurvivesServerQuit(t *testing.T) {
	r := NewReducer()
	srvName, err := id.NewServerName("splitnode.example")
	if err != nil {
		t.Fatal(err)
	}
	srv := event.ServerInfo{ID: 2, Name: srvName, Epoch: 1}
	collectChanges(r, ev(1, id.ObjectID{}, 99, event.NewServer{Server: srv}))

	resumable := id.UserID{Server: 2, Seq: 1}
	ephemeral := id.UserID{Server: 2, Seq: 2}
	collectChanges(r, ev(2, id.FromUserID(resumable), 100, event.NewUser{
		User: resumable, Nickname: mustNick(t, "erin"), Username: "erin", Hostname: "host.example",
		SessionKeyHash: "deadbeef", Persistent: true,
	}))
	collectChanges(r, ev(3, id.FromUserID(ephemeral), 100, event.NewUser{
		User: ephemeral, Nickname: mustNick(t, "frank"), Username: "frank", Hostname: "host.example",
	}))

	collectChanges(r, ev(4, id.ObjectID{}, 103, event.ServerQuit{Server: 2, Reason: "*.net *.split"}))

	r.View(func(s *NetworkState) {
		if _, ok := s.Users[resumable]; !ok {
			t.Fatalf("expected persistent user to survive its introducing server's quit")
		}
		if _, ok := s.Users[ephemeral]; ok {
			t.Fatalf("expected non-persistent user to be removed with its server")
		}
	})
}
