package clock

import (
	"testing"

	"github.com/meshircd/core/internal/id"
)

func ev(server id.ServerID, seq int64) id.EventID {
	return id.EventID{Server: server, Epoch: 1, Sequence: seq}
}

func TestOrderLaws(t *testing.T) {
	a := New()
	a.UpdateWithID(ev(1, 1))

	b := New()
	b.UpdateWithID(ev(1, 1))
	b.UpdateWithID(ev(2, 1))

	c := New()
	c.UpdateWithID(ev(1, 2))
	c.UpdateWithID(ev(2, 1))

	if !LessEq(a, b) {
		t.Fatalf("expected a <= b")
	}
	if !LessEq(b, c) {
		t.Fatalf("expected b <= c")
	}
	if !LessEq(a, c) {
		t.Fatalf("transitivity failed: a <= c should hold")
	}

	// A <= B and B <= A implies A == B.
	d := a.Clone()
	if !LessEq(a, d) || !LessEq(d, a) {
		t.Fatalf("clone should be mutually <=")
	}
	if Compare(a, d) != Equal {
		t.Fatalf("expected a == d, got %v", Compare(a, d))
	}

	// Incomparable clocks are neither <= nor >=.
	x := New()
	x.UpdateWithID(ev(1, 1))
	y := New()
	y.UpdateWithID(ev(2, 1))
	if Compare(x, y) != Incomparable {
		t.Fatalf("expected incomparable, got %v", Compare(x, y))
	}
	if LessEq(x, y) || LessEq(y, x) {
		t.Fatalf("incomparable clocks must not satisfy <= in either direction")
	}
}

func TestContainsAndUpdate(t *testing.T) {
	c := New()
	c.UpdateWithID(ev(1, 5))

	if !c.Contains(ev(1, 3)) {
		t.Fatalf("clock at seq 5 should contain seq 3")
	}
	if c.Contains(ev(1, 6)) {
		t.Fatalf("clock at seq 5 should not contain seq 6")
	}
	if c.Contains(ev(2, 1)) {
		t.Fatalf("clock with no entry for server 2 should not contain its events")
	}
}

func TestUpdateWithClock(t *testing.T) {
	a := New()
	a.UpdateWithID(ev(1, 1))

	b := New()
	b.UpdateWithID(ev(1, 5))
	b.UpdateWithID(ev(2, 2))

	a.UpdateWithClock(b)

	if v, _ := a.Get(1); v != ev(1, 5) {
		t.Fatalf("expected server 1 to advance to seq 5, got %v", v)
	}
	if v, _ := a.Get(2); v != ev(2, 2) {
		t.Fatalf("expected server 2 entry to be adopted, got %v", v)
	}
}
