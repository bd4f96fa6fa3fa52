package upgrade

import (
	"testing"

	"github.com/meshircd/core/internal/clock"
	"github.com/meshircd/core/internal/netstate"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	state := &State{
		Network: netstate.New(),
		Clock:   clock.New(),
		Listeners: SavedListenerCollection{
			Listeners:   []SavedListener{{ID: "l1", Address: "0.0.0.0:6667", FD: 3}},
			Connections: []SavedConnection{{ID: "c1", ListenerID: "l1", RemoteAddr: "1.2.3.4:5555", FD: 4}},
		},
		PerConnectionAuth: map[string]ConnectionAuthState{
			"c1": {NickSeen: true},
		},
	}

	f, err := Save(state)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	defer f.Close()

	got, err := Load(int(f.Fd()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(got.Listeners.Listeners) != 1 || got.Listeners.Listeners[0].ID != "l1" {
		t.Fatalf("expected 1 saved listener, got %#v", got.Listeners.Listeners)
	}
	if len(got.Listeners.Connections) != 1 || got.Listeners.Connections[0].ID != "c1" {
		t.Fatalf("expected 1 saved connection, got %#v", got.Listeners.Connections)
	}
	if !got.PerConnectionAuth["c1"].NickSeen {
		t.Fatalf("expected per-connection auth state to round-trip")
	}
}
