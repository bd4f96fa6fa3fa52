package id

import "testing"

func TestNewNickname(t *testing.T) {
	var tests = []struct {
		in  string
		ok  bool
	}{
		{"alice", true},
		{"alice-99", true},
		{"_alice", true},
		{"9alice", false},
		{"-alice", false},
		{"", false},
		{"way-too-long-for-a-nick", false},
		{"al ice", false},
	}

	for _, v := range tests {
		_, err := NewNickname(v.in)
		if v.ok && err != nil {
			t.Errorf("NewNickname(%q) = %v, want ok", v.in, err)
		}
		if !v.ok && err == nil {
			t.Errorf("NewNickname(%q) = nil, want error", v.in)
		}
	}
}

func TestFoldNickname(t *testing.T) {
	n, err := NewNickname("Alice")
	if err != nil {
		t.Fatal(err)
	}
	if got := FoldNickname(n); got != "alice" {
		t.Errorf("FoldNickname(Alice) = %q, want alice", got)
	}

	n2, err := NewNickname("Bob{}|^")
	if err != nil {
		t.Fatalf("NewNickname(Bob{}|^): %v", err)
	}
	if got := FoldNickname(n2); got != "bob[]\\~" {
		t.Errorf("FoldNickname(Bob{}|^) = %q, want bob[]\\~", got)
	}
}

func TestNewChannelName(t *testing.T) {
	if _, err := NewChannelName("#test"); err != nil {
		t.Errorf("#test should be valid: %v", err)
	}
	if _, err := NewChannelName("test"); err == nil {
		t.Errorf("test (no #) should be invalid")
	}
}

func TestUsernameCoerce(t *testing.T) {
	got := NewUsernameCoerce("verylongusername[withbracket]")
	if len(got) > 10 {
		t.Errorf("coerced username too long: %q", got)
	}
	for _, c := range got {
		if c == '[' {
			t.Errorf("coerced username still has '[': %q", got)
		}
	}
}

func TestServerName(t *testing.T) {
	if _, err := NewServerName("irc.example.net"); err != nil {
		t.Errorf("irc.example.net should be valid: %v", err)
	}
	if _, err := NewServerName("1irc.example.net"); err == nil {
		t.Errorf("leading digit should be invalid")
	}
}
