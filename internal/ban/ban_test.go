package ban

import (
	"testing"

	"github.com/meshircd/core/internal/id"
)

func TestMatchAndRemove(t *testing.T) {
	r := NewRepository()
	banID := id.NetworkBanID{Server: 1, Seq: 1}

	err := r.Add(Entry{
		ID:      banID,
		Pattern: "evil!*@*.bad.example",
		Reason:  "spamming",
		SetBy:   "oper",
		SetAt:   1000,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	matching := Descriptor{Nick: "evil", User: "u", Host: "host.bad.example"}
	notMatching := Descriptor{Nick: "evil", User: "u", Host: "host.good.example"}

	if len(r.Matches(matching, 2000)) != 1 {
		t.Fatalf("expected matching descriptor to match the ban")
	}
	if len(r.Matches(notMatching, 2000)) != 0 {
		t.Fatalf("expected non-matching descriptor to not match the ban")
	}

	r.Remove(banID)
	if len(r.Matches(matching, 2000)) != 0 {
		t.Fatalf("expected match to disappear after removal")
	}
}

func TestExpiry(t *testing.T) {
	r := NewRepository()
	r.Add(Entry{
		ID:        id.NetworkBanID{Server: 1, Seq: 1},
		Pattern:   "*!*@bad.example",
		SetAt:     1000,
		ExpiresAt: 1500,
	})

	d := Descriptor{Nick: "x", User: "y", Host: "bad.example"}
	if len(r.Matches(d, 1400)) != 1 {
		t.Fatalf("expected ban to still be active before expiry")
	}
	if len(r.Matches(d, 1600)) != 0 {
		t.Fatalf("expected ban to be inactive after expiry")
	}
}

func TestDuplicateResolutionByTimestamp(t *testing.T) {
	r := NewRepository()
	earlier := id.NetworkBanID{Server: 1, Seq: 1}
	later := id.NetworkBanID{Server: 2, Seq: 1}

	r.Add(Entry{ID: earlier, Pattern: "*!*@bad.example", SetBy: "oper1", SetAt: 1000})
	r.Add(Entry{ID: later, Pattern: "*!*@bad.example", SetBy: "oper2", SetAt: 2000})

	if _, ok := r.Get(earlier); !ok {
		t.Fatalf("expected earlier ban to win over later duplicate")
	}
	if _, ok := r.Get(later); ok {
		t.Fatalf("expected later duplicate to have been rejected")
	}
}
