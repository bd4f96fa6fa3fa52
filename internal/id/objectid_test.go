package id

import "testing"

func TestObjectIDRoundTrip(t *testing.T) {
	g := NewGenerator(ServerID(1))
	u := g.NextUserID()

	oid := FromUserID(u)
	if oid.Kind != KindUser {
		t.Fatalf("Kind = %v, want KindUser", oid.Kind)
	}

	got, err := oid.AsUserID()
	if err != nil {
		t.Fatalf("AsUserID: %v", err)
	}
	if got != u {
		t.Fatalf("AsUserID() = %v, want %v", got, u)
	}

	if _, err := oid.AsChannelID(); err == nil {
		t.Fatalf("AsChannelID() on a user id should fail")
	}
}

func TestGeneratorMonotonic(t *testing.T) {
	g := NewGenerator(ServerID(3))
	a := g.NextChannelID()
	b := g.NextChannelID()
	if a == b {
		t.Fatalf("generator produced duplicate ids: %v", a)
	}
	if a.Server != 3 || b.Server != 3 {
		t.Fatalf("generator stamped wrong server id")
	}
}
