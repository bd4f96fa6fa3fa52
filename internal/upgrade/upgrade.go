// Package upgrade implements hot code upgrade for the main server
// process: serialize everything that can't be reconstructed from the
// event log, write it to an anonymous memory file, then exec the new
// binary with that fd inherited so it can pick the state back up without
// any client connection being dropped (spec.md §4, §6.4).
package upgrade

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/meshircd/core/internal/clock"
	"github.com/meshircd/core/internal/netstate"
	"github.com/meshircd/core/minilog"
)

var log = minilog.Named("upgrade")

// SavedListener describes one listening socket the new process should
// resume operating, by the fd number it will inherit.
type SavedListener struct {
	ID      string
	Address string
	FD      int
}

// SavedConnection describes one still-open client TCP connection handed
// across the upgrade, by the fd number it will inherit.
type SavedConnection struct {
	ID         string
	ListenerID string
	RemoteAddr string
	FD         int
}

// SavedListenerCollection is the subset of upgrade state concerning the
// listener process's sockets - everything the new main process needs to
// keep talking to the same listener process and the same client
// connections without a reconnect.
type SavedListenerCollection struct {
	Listeners   []SavedListener
	Connections []SavedConnection
}

// State is everything a restarting node needs that it cannot rebuild by
// replaying the event log alone (spec.md §6.4): the current network
// state (so there's no need to wait for a full resync before serving
// reads), the vector clock, the listener/connection fd table, and any
// in-flight auth state the command layer tracks per connection.
// Negotiated client capabilities are not part of the saved state.
type State struct {
	Network           *netstate.NetworkState
	Clock             clock.Clock
	Listeners         SavedListenerCollection
	PerConnectionAuth map[string]ConnectionAuthState
}

// ConnectionAuthState is the pre-registration state a connection was in
// (nick/user received but not yet a full client, SASL in progress, ...)
// that would otherwise be lost across the exec.
type ConnectionAuthState struct {
	NickSeen   bool
	UserSeen   bool
	SaslActive bool
}

// Save gob-encodes state and writes it into a freshly created memfd,
// returning the fd. The fd has the close-on-exec flag cleared so it
// survives into the child process; callers are responsible for listing
// it (and every inherited connection/listener fd) in ExtraFiles /
// os.StartProcess's Files when execing the new binary.
func Save(state *State) (*os.File, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, fmt.Errorf("upgrade: encoding saved state: %w", err)
	}

	fd, err := unix.MemfdCreate("ircd-upgrade-state", 0)
	if err != nil {
		return nil, fmt.Errorf("upgrade: memfd_create: %w", err)
	}
	f := os.NewFile(uintptr(fd), "ircd-upgrade-state")

	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return nil, fmt.Errorf("upgrade: writing saved state: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("upgrade: rewinding saved state: %w", err)
	}

	// Clear FD_CLOEXEC so the fd survives the exec in Exec below, and
	// equally a child process started some other way (tests, manual
	// restart tooling).
	if _, _, errno := syscall.Syscall(syscall.SYS_FCNTL, f.Fd(), syscall.F_SETFD, 0); errno != 0 {
		f.Close()
		return nil, fmt.Errorf("upgrade: clearing FD_CLOEXEC: %w", errno)
	}

	return f, nil
}

// Load decodes a State previously written by Save from an inherited fd
// number (as named by the --upgrade-state-fd flag).
func Load(fdNum int) (*State, error) {
	f := os.NewFile(uintptr(fdNum), "ircd-upgrade-state")
	defer f.Close()

	var state State
	if err := gob.NewDecoder(f).Decode(&state); err != nil {
		return nil, fmt.Errorf("upgrade: decoding saved state: %w", err)
	}
	return &state, nil
}

// Exec replaces the current process image with a new copy of the
// running binary, passing stateFD (plus every fd in extraFDs, the
// listener and connection fds handed over by the listener process)
// through as inherited, numbered file
// descriptors starting at 3. args should include the new
// --upgrade-state-fd flag pointing at stateFD's post-exec number.
func Exec(stateFD *os.File, extraFDs []*os.File, args []string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("upgrade: resolving own executable: %w", err)
	}

	files := []*os.File{os.Stdin, os.Stdout, os.Stderr, stateFD}
	files = append(files, extraFDs...)

	log.Info("exec-ing %s with %d inherited fds for hot upgrade", self, len(files)-3)

	env := os.Environ()
	return syscall.Exec(self, append([]string{self}, args...), append(env, "IRCD_UPGRADE_STATE_FD="+fdFlagValue(stateFD)))
}

func fdFlagValue(f *os.File) string {
	return strconv.Itoa(int(f.Fd()))
}
