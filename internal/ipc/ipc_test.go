package ipc

import (
	"path/filepath"
	"testing"
)

func TestControlRoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ircd-ipc.sock")

	srv, err := Listen(sock)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	cli, err := Dial(sock)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cli.Close()

	want := ControlCommand{Kind: CmdAddListener, ListenerID: "l1", Address: "0.0.0.0:6667"}
	if err := cli.SendControl(want, nil); err != nil {
		t.Fatalf("SendControl: %v", err)
	}

	got, fd, err := srv.RecvControl()
	if err != nil {
		t.Fatalf("RecvControl: %v", err)
	}
	if fd != nil {
		t.Fatalf("expected no fd to be passed")
	}
	if got.Kind != want.Kind || got.ListenerID != want.ListenerID || got.Address != want.Address {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestEventRoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ircd-ipc-evt.sock")

	srv, err := Listen(sock)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	cli, err := Dial(sock)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cli.Close()

	want := Event{Kind: EvtMessage, ConnectionID: "c1", Data: []byte("PING :x\r\n")}
	if err := cli.SendEvent(want, nil); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}

	got, _, err := srv.RecvEvent()
	if err != nil {
		t.Fatalf("RecvEvent: %v", err)
	}
	if got.ConnectionID != want.ConnectionID || string(got.Data) != string(want.Data) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}
