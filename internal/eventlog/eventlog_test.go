package eventlog

import (
	"testing"
	"time"

	"github.com/meshircd/core/internal/clock"
	"github.com/meshircd/core/internal/event"
	"github.com/meshircd/core/internal/id"
)

func newTestLog(server id.ServerID) (*Log, <-chan event.Event) {
	return New(id.NewEventIDGenerator(server, id.EpochID(1)))
}

func TestCreateAndGet(t *testing.T) {
	l, ch := newTestLog(1)

	u := id.UserID{Server: 1, Seq: 1}
	e := l.Create(time.Now().Unix(), id.FromUserID(u), event.NewUser{User: u})
	l.Add(e)

	got, ok := l.Get(e.ID)
	if !ok {
		t.Fatalf("expected to find event %v", e.ID)
	}
	if got.ID != e.ID {
		t.Fatalf("Get returned wrong event")
	}

	select {
	case delivered := <-ch:
		if delivered.ID != e.ID {
			t.Fatalf("delivered wrong event")
		}
	default:
		t.Fatalf("expected event to be delivered")
	}
}

func TestDuplicateAddIsNoop(t *testing.T) {
	l, ch := newTestLog(1)
	u := id.UserID{Server: 1, Seq: 1}
	e := l.Create(1, id.FromUserID(u), event.NewUser{User: u})
	l.Add(e)
	l.Add(e)

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			if count != 1 {
				t.Fatalf("expected exactly one delivery, got %d", count)
			}
			return
		}
	}
}

// TestReorderBuffering reproduces scenario S3: an event E2 whose clock
// depends on E1 arrives first and must be buffered until E1 arrives.
func TestReorderBuffering(t *testing.T) {
	l, ch := newTestLog(2) // this log belongs to a different node than the events' origin

	u := id.UserID{Server: 1, Seq: 1}
	e1 := event.Event{
		ID:        id.EventID{Server: 1, Epoch: 1, Sequence: 1},
		Timestamp: 1,
		Clock:     clock.New(),
		Target:    id.FromUserID(u),
		Details:   event.NewUser{User: u},
	}

	c2 := clock.New()
	c2.UpdateWithID(e1.ID)
	e2 := event.Event{
		ID:        id.EventID{Server: 1, Epoch: 1, Sequence: 2},
		Timestamp: 2,
		Clock:     c2,
		Target:    id.FromUserID(u),
		Details:   event.UserQuit{User: u},
	}

	l.Add(e2) // arrives first; must be deferred
	if _, ok := l.Get(e2.ID); ok {
		t.Fatalf("e2 should not be delivered before its dependency e1")
	}
	if len(l.PendingIDs()) != 1 {
		t.Fatalf("expected e2 to be pending, got %d pending", len(l.PendingIDs()))
	}

	l.Add(e1)

	var order []id.EventID
	for i := 0; i < 2; i++ {
		select {
		case e := <-ch:
			order = append(order, e.ID)
		default:
			t.Fatalf("expected 2 deliveries, got %d", i)
		}
	}
	if order[0] != e1.ID || order[1] != e2.ID {
		t.Fatalf("expected delivery order [e1, e2], got %v", order)
	}
}

func TestGetSince(t *testing.T) {
	l, _ := newTestLog(1)
	u := id.UserID{Server: 1, Seq: 1}

	var last event.Event
	for i := 0; i < 3; i++ {
		e := l.Create(int64(i), id.FromUserID(u), event.NewUser{User: u})
		l.Add(e)
		last = e
	}

	c := clock.New()
	c.UpdateWithID(id.EventID{Server: 1, Epoch: 1, Sequence: 1})

	since := l.GetSince(c)
	if len(since) != 2 {
		t.Fatalf("expected 2 events since seq 1, got %d", len(since))
	}
	if since[len(since)-1].ID != last.ID {
		t.Fatalf("expected last event to be the most recent")
	}

	// A clock with no entry at all for this server yields full history.
	full := l.GetSince(clock.New())
	if len(full) != 3 {
		t.Fatalf("expected full history of 3 events, got %d", len(full))
	}
}

func TestSetEpoch(t *testing.T) {
	l, _ := newTestLog(1)
	u := id.UserID{Server: 1, Seq: 1}
	e1 := l.Create(1, id.FromUserID(u), event.NewUser{User: u})
	if e1.ID.Epoch != 1 {
		t.Fatalf("expected epoch 1, got %v", e1.ID.Epoch)
	}

	l.SetEpoch(2)
	e2 := l.Create(2, id.FromUserID(u), event.NewUser{User: u})
	if e2.ID.Epoch != 2 {
		t.Fatalf("expected epoch 2 after restart, got %v", e2.ID.Epoch)
	}
	if e2.ID.Sequence != 1 {
		t.Fatalf("expected sequence to restart at 1, got %v", e2.ID.Sequence)
	}
}
