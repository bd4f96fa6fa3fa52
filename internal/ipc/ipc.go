// Package ipc implements the protocol between the main server process
// and the listener process that owns client TCP connections (spec.md
// §4, "connection-preserving hot upgrade via a split listener process").
// Keeping listener sockets in a separate process means the main process
// can exec a new binary over itself without dropping a single client: the
// listener process just needs to hand its connection fds to whichever
// main process is currently alive, which it does over this protocol.
package ipc

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/meshircd/core/minilog"
)

var log = minilog.Named("ipc")

// Size limits from spec.md §6: control messages (which may carry a
// SaveForUpgrade snapshot) are allowed to be much larger than ordinary
// per-connection traffic.
const (
	MaxEventMessageSize   = 1024
	MaxControlMessageSize = 10 * 1024 * 1024
)

// ControlCommand is a request the main process sends to the listener
// process.
type ControlCommand struct {
	Kind           ControlKind
	ListenerID     string
	Address        string // for AddListener
	ConnectionID   string // for Send/CloseConnection
	Data           []byte // for Send
	TlsCertPEM     []byte // for LoadTlsSettings
	TlsKeyPEM      []byte
}

type ControlKind int

const (
	CmdAddListener ControlKind = iota
	CmdCloseListener
	CmdLoadTlsSettings
	CmdSend
	CmdCloseConnection
	CmdSaveForUpgrade
	CmdShutdown
)

// Event is a notification the listener process sends back to the main
// process.
type Event struct {
	Kind         EventKind
	ConnectionID string
	ListenerID   string
	Data         []byte // for Message
	Error        string // for ConnectionError/ListenerError
	RemoteAddr   string // for NewConnection
}

type EventKind int

const (
	EvtNewConnection EventKind = iota
	EvtMessage
	EvtConnectionError
	EvtListenerError
)

// Conn wraps a Unix datagram socket carrying gob-encoded ControlCommand/
// Event frames, one per datagram (a datagram socket preserves message
// boundaries, so no length prefix is needed - unlike the stream-oriented
// gossip and gossip-adjacent connections elsewhere in this codebase).
type Conn struct {
	uc *net.UnixConn
}

// Dial connects to a listening Unix datagram socket at path.
func Dial(path string) (*Conn, error) {
	addr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		return nil, err
	}
	uc, err := net.DialUnix("unixgram", nil, addr)
	if err != nil {
		return nil, err
	}
	return &Conn{uc: uc}, nil
}

// Listen creates (replacing any stale socket file) a Unix datagram
// socket at path.
func Listen(path string) (*Conn, error) {
	os.Remove(path)
	addr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		return nil, err
	}
	uc, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, err
	}
	return &Conn{uc: uc}, nil
}

func (c *Conn) Close() error { return c.uc.Close() }

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SendControl writes a ControlCommand, optionally passing an open file
// descriptor alongside it (e.g. handing a client connection's underlying
// fd to the new main process during an upgrade).
func (c *Conn) SendControl(cmd ControlCommand, fd *os.File) error {
	payload, err := gobEncode(cmd)
	if err != nil {
		return err
	}
	if len(payload) > MaxControlMessageSize {
		return fmt.Errorf("ipc: control message too large: %d bytes", len(payload))
	}
	return c.writeWithFD(payload, fd)
}

// RecvControl reads the next ControlCommand, returning any fd that was
// passed alongside it. Callers must close the returned file when done
// with it.
func (c *Conn) RecvControl() (ControlCommand, *os.File, error) {
	var cmd ControlCommand
	payload, fd, err := c.readWithFD(MaxControlMessageSize)
	if err != nil {
		return cmd, nil, err
	}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&cmd); err != nil {
		return cmd, nil, err
	}
	return cmd, fd, nil
}

// SendEvent writes an Event, optionally passing an fd (a freshly
// accepted client connection being handed up to the main process).
func (c *Conn) SendEvent(evt Event, fd *os.File) error {
	payload, err := gobEncode(evt)
	if err != nil {
		return err
	}
	if len(payload) > MaxEventMessageSize && evt.Kind != EvtMessage {
		return fmt.Errorf("ipc: event message too large: %d bytes", len(payload))
	}
	return c.writeWithFD(payload, fd)
}

// RecvEvent reads the next Event, and any fd passed alongside it.
func (c *Conn) RecvEvent() (Event, *os.File, error) {
	var evt Event
	payload, fd, err := c.readWithFD(MaxControlMessageSize)
	if err != nil {
		return evt, nil, err
	}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&evt); err != nil {
		return evt, nil, err
	}
	return evt, fd, nil
}

func (c *Conn) writeWithFD(payload []byte, fd *os.File) error {
	var oob []byte
	if fd != nil {
		oob = syscall.UnixRights(int(fd.Fd()))
	}
	if c.uc.RemoteAddr() == nil {
		_, _, err := c.uc.WriteMsgUnix(payload, oob, nil)
		return err
	}
	// A connected datagram socket refuses WriteMsgUnix, so a dialed Conn
	// sends on the raw socket instead.
	raw, err := c.uc.SyscallConn()
	if err != nil {
		return err
	}
	var sendErr error
	if err := raw.Write(func(s uintptr) bool {
		sendErr = syscall.Sendmsg(int(s), payload, oob, nil, 0)
		return sendErr != syscall.EAGAIN
	}); err != nil {
		return err
	}
	return sendErr
}

func (c *Conn) readWithFD(maxSize int) ([]byte, *os.File, error) {
	buf := make([]byte, maxSize)
	oob := make([]byte, syscall.CmsgSpace(4))

	n, oobn, _, _, err := c.uc.ReadMsgUnix(buf, oob)
	if err != nil {
		return nil, nil, err
	}

	var fd *os.File
	if oobn > 0 {
		cmsgs, err := syscall.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			log.Warn("ipc: parsing control message: %v", err)
		} else {
			for _, cmsg := range cmsgs {
				fds, err := syscall.ParseUnixRights(&cmsg)
				if err != nil {
					continue
				}
				for _, rawFD := range fds {
					if fd == nil {
						fd = os.NewFile(uintptr(rawFD), "ipc-fd")
					} else {
						syscall.Close(rawFD)
					}
				}
			}
		}
	}

	return buf[:n], fd, nil
}
