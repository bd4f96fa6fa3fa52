package history

import (
	"testing"

	"github.com/meshircd/core/internal/id"
)

func TestAddAndEntriesForTarget(t *testing.T) {
	l := New()
	target := id.FromUserID(id.UserID{Server: 1, Seq: 1})
	source := id.UserID{Server: 1, Seq: 2}

	l.Add(id.MessageID{Server: 1, Seq: 1}, source, target, "hi", false, 100)
	l.Add(id.MessageID{Server: 1, Seq: 2}, source, target, "there", false, 101)

	entries := l.EntriesForTarget(target, 0)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Text != "hi" || entries[1].Text != "there" {
		t.Fatalf("expected entries in append order, got %#v", entries)
	}
}

func TestEntriesForTargetReverseAndLimit(t *testing.T) {
	l := New()
	target := id.FromChannelID(id.ChannelID{Server: 1, Seq: 1})
	source := id.UserID{Server: 1, Seq: 1}

	for i := 0; i < 5; i++ {
		l.Add(id.MessageID{Server: 1, Seq: int64(i)}, source, target, string(rune('a'+i)), false, int64(100+i))
	}

	rev := l.EntriesForTargetReverse(target, 2)
	if len(rev) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(rev))
	}
	if rev[0].Text != "e" || rev[1].Text != "d" {
		t.Fatalf("expected newest-first order, got %#v", rev)
	}
}

func TestSince(t *testing.T) {
	l := New()
	target := id.FromUserID(id.UserID{Server: 1, Seq: 1})
	source := id.UserID{Server: 1, Seq: 2}

	e1 := l.Add(id.MessageID{Server: 1, Seq: 1}, source, target, "a", false, 100)
	l.Add(id.MessageID{Server: 1, Seq: 2}, source, target, "b", false, 101)

	since := l.Since(e1.Serial)
	if len(since) != 1 || since[0].Text != "b" {
		t.Fatalf("expected only entries after serial %d, got %#v", e1.Serial, since)
	}
}

func TestPruneDropsOldEntries(t *testing.T) {
	l := New()
	target := id.FromUserID(id.UserID{Server: 1, Seq: 1})
	source := id.UserID{Server: 1, Seq: 2}

	l.Add(id.MessageID{Server: 1, Seq: 1}, source, target, "old", false, 100)
	l.Add(id.MessageID{Server: 1, Seq: 2}, source, target, "new", false, 200)

	removed := l.Prune(150)
	if removed != 1 {
		t.Fatalf("expected 1 entry pruned, got %d", removed)
	}
	entries := l.EntriesForTarget(target, 0)
	if len(entries) != 1 || entries[0].Text != "new" {
		t.Fatalf("expected only the new entry to remain, got %#v", entries)
	}
}
