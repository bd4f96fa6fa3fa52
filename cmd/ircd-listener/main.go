// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

// Command ircd-listener owns client-facing TCP sockets so the main
// server process can exec a new binary over itself without dropping a
// single connection. It never parses IRC traffic; it just shuttles raw
// lines and connection lifecycle events to whichever main process is
// currently dialed in over the IPC socket, and obeys the control
// commands that process sends back.
package main

import (
	"bufio"
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/meshircd/core/internal/ipc"
	"github.com/meshircd/core/minilog"
)

var f_ipcSocket = flag.String("ipc-socket", "", "path of the Unix datagram socket the main process dials to reach this listener")

const banner = `ircd-listener, the connection-owning half of a split ircd node.`

// maxLineLen bounds a single client line: 1024 bytes of content, an
// extra byte of slack so a line that's exactly too long is still
// detected instead of silently truncated.
const maxLineLen = 1024

func usage() {
	fmt.Println(banner)
	fmt.Println("usage: ircd-listener -ipc-socket PATH")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	minilog.Init()

	if *f_ipcSocket == "" {
		usage()
		os.Exit(1)
	}

	conn, err := ipc.Listen(*f_ipcSocket)
	if err != nil {
		minilog.Fatal("listening on ipc socket %s: %v", *f_ipcSocket, err)
	}

	l := newListenerProc(conn)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		minilog.Info("shutting down on signal")
		l.shutdown()
		os.Exit(0)
	}()

	l.run()
}

// clientConn is one accepted client connection this process still owns
// the read side of.
type clientConn struct {
	id         string
	listenerID string
	remoteAddr string
	conn       net.Conn
}

// listenerProc holds every live TCP listener and client connection, and
// the single IPC conn back to whichever main process is currently
// attached.
type listenerProc struct {
	ipc *ipc.Conn

	mu        sync.Mutex
	listeners map[string]net.Listener
	tlsConfig *tls.Config
	conns     map[string]*clientConn
}

func newListenerProc(c *ipc.Conn) *listenerProc {
	return &listenerProc{
		ipc:       c,
		listeners: make(map[string]net.Listener),
		conns:     make(map[string]*clientConn),
	}
}

// run processes ControlCommands from the main process until the IPC
// connection breaks.
func (l *listenerProc) run() {
	for {
		cmd, fd, err := l.ipc.RecvControl()
		if err != nil {
			minilog.Error("ipc connection lost: %v", err)
			return
		}
		if fd != nil {
			fd.Close()
		}
		l.handleControl(cmd)
	}
}

func (l *listenerProc) handleControl(cmd ipc.ControlCommand) {
	switch cmd.Kind {
	case ipc.CmdAddListener:
		l.addListener(cmd.ListenerID, cmd.Address)
	case ipc.CmdCloseListener:
		l.closeListener(cmd.ListenerID)
	case ipc.CmdLoadTlsSettings:
		l.loadTLS(cmd.TlsCertPEM, cmd.TlsKeyPEM)
	case ipc.CmdSend:
		l.send(cmd.ConnectionID, cmd.Data)
	case ipc.CmdCloseConnection:
		l.closeConnection(cmd.ConnectionID)
	case ipc.CmdSaveForUpgrade:
		l.saveForUpgrade()
	case ipc.CmdShutdown:
		l.shutdown()
		os.Exit(0)
	default:
		minilog.Warn("ipc: unrecognized control command %v", cmd.Kind)
	}
}

func (l *listenerProc) loadTLS(certPEM, keyPEM []byte) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		minilog.Error("loading client TLS certificate: %v", err)
		return
	}
	l.mu.Lock()
	l.tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	l.mu.Unlock()
}

func (l *listenerProc) addListener(id, address string) {
	l.mu.Lock()
	tlsConfig := l.tlsConfig
	l.mu.Unlock()

	var ln net.Listener
	var err error
	if tlsConfig != nil {
		ln, err = tls.Listen("tcp", address, tlsConfig)
	} else {
		ln, err = net.Listen("tcp", address)
	}
	if err != nil {
		l.ipc.SendEvent(ipc.Event{Kind: ipc.EvtListenerError, ListenerID: id, Error: err.Error()}, nil)
		return
	}

	l.mu.Lock()
	l.listeners[id] = ln
	l.mu.Unlock()

	minilog.Info("listener %s accepting on %s", id, address)
	go l.acceptLoop(id, ln)
}

func (l *listenerProc) closeListener(id string) {
	l.mu.Lock()
	ln, ok := l.listeners[id]
	delete(l.listeners, id)
	l.mu.Unlock()
	if ok {
		ln.Close()
	}
}

func (l *listenerProc) acceptLoop(listenerID string, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			l.mu.Lock()
			_, stillOurs := l.listeners[listenerID]
			l.mu.Unlock()
			if stillOurs {
				l.ipc.SendEvent(ipc.Event{Kind: ipc.EvtListenerError, ListenerID: listenerID, Error: err.Error()}, nil)
			}
			return
		}
		go l.acceptOne(listenerID, conn)
	}
}

// acceptOne registers a freshly accepted connection, hands a duplicate
// of its fd up to the main process for bookkeeping (so a later
// CmdSaveForUpgrade already finds this connection in the set it knows
// about), and starts reading lines from it.
func (l *listenerProc) acceptOne(listenerID string, conn net.Conn) {
	id := uuid.NewString()
	remote := conn.RemoteAddr().String()

	cc := &clientConn{id: id, listenerID: listenerID, remoteAddr: remote, conn: conn}
	l.mu.Lock()
	l.conns[id] = cc
	l.mu.Unlock()

	if tcp, ok := underlyingTCPConn(conn); ok {
		if dup, err := tcp.File(); err == nil {
			l.ipc.SendEvent(ipc.Event{Kind: ipc.EvtNewConnection, ConnectionID: id, ListenerID: listenerID, RemoteAddr: remote}, dup)
			dup.Close()
		} else {
			l.ipc.SendEvent(ipc.Event{Kind: ipc.EvtNewConnection, ConnectionID: id, ListenerID: listenerID, RemoteAddr: remote}, nil)
		}
	} else {
		l.ipc.SendEvent(ipc.Event{Kind: ipc.EvtNewConnection, ConnectionID: id, ListenerID: listenerID, RemoteAddr: remote}, nil)
	}

	l.readLines(cc)
}

// underlyingTCPConn unwraps a *tls.Conn down to the *net.TCPConn File()
// needs, since tls.Conn doesn't itself expose a File method.
func underlyingTCPConn(conn net.Conn) (*net.TCPConn, bool) {
	type netConner interface {
		NetConn() net.Conn
	}
	if nc, ok := conn.(netConner); ok {
		conn = nc.NetConn()
	}
	tcp, ok := conn.(*net.TCPConn)
	return tcp, ok
}

// readLines owns the connection's read side for as long as the
// listener process is the one serving it: CRLF-delimited lines up to
// maxLineLen bytes are forwarded as EvtMessage; a longer line produces
// InputLineTooLong and the connection is torn down, matching spec.md's
// line-size enforcement.
func (l *listenerProc) readLines(cc *clientConn) {
	defer l.removeConn(cc.id)

	r := bufio.NewReaderSize(cc.conn, maxLineLen+1)
	for {
		line, err := readBoundedLine(r, maxLineLen)
		if err != nil {
			if err == errLineTooLong {
				l.ipc.SendEvent(ipc.Event{Kind: ipc.EvtConnectionError, ConnectionID: cc.id, Error: "InputLineTooLong"}, nil)
			} else {
				l.ipc.SendEvent(ipc.Event{Kind: ipc.EvtConnectionError, ConnectionID: cc.id, Error: err.Error()}, nil)
			}
			cc.conn.Close()
			return
		}
		l.ipc.SendEvent(ipc.Event{Kind: ipc.EvtMessage, ConnectionID: cc.id, Data: line}, nil)
	}
}

func (l *listenerProc) removeConn(id string) {
	l.mu.Lock()
	delete(l.conns, id)
	l.mu.Unlock()
}

func (l *listenerProc) send(connID string, data []byte) {
	l.mu.Lock()
	cc, ok := l.conns[connID]
	l.mu.Unlock()
	if !ok {
		return
	}
	if _, err := cc.conn.Write(data); err != nil {
		l.ipc.SendEvent(ipc.Event{Kind: ipc.EvtConnectionError, ConnectionID: connID, Error: err.Error()}, nil)
	}
}

func (l *listenerProc) closeConnection(connID string) {
	l.mu.Lock()
	cc, ok := l.conns[connID]
	delete(l.conns, connID)
	l.mu.Unlock()
	if !ok {
		minilog.Warn("close requested for unknown connection %s (listener process has no user-id mapping)", connID)
		return
	}
	cc.conn.Close()
}

// saveForUpgrade streams every listener and connection this process
// currently owns to the main process, one Event per fd, terminated by
// a sentinel with no fd. A listener or connection with no underlying
// plain TCP fd (a TLS listener) is skipped with a warning. The main
// process bundles these fds into its
// own upgrade.State and execs a new binary carrying them forward -
// this process itself never restarts, so it keeps serving the same
// sockets across any number of main-process upgrades.
func (l *listenerProc) saveForUpgrade() {
	l.mu.Lock()
	listeners := make(map[string]net.Listener, len(l.listeners))
	for id, ln := range l.listeners {
		listeners[id] = ln
	}
	conns := make(map[string]*clientConn, len(l.conns))
	for id, cc := range l.conns {
		conns[id] = cc
	}
	l.mu.Unlock()

	for id, ln := range listeners {
		tl, ok := ln.(*net.TCPListener)
		if !ok {
			minilog.Warn("listener %s is not a plain TCP listener, cannot hand it across an upgrade", id)
			continue
		}
		f, err := tl.File()
		if err != nil {
			minilog.Error("duplicating fd for listener %s: %v", id, err)
			continue
		}
		l.ipc.SendEvent(ipc.Event{Kind: ipc.EvtNewConnection, ListenerID: id, RemoteAddr: tl.Addr().String()}, f)
		f.Close()
	}

	for id, cc := range conns {
		tcp, ok := underlyingTCPConn(cc.conn)
		if !ok {
			minilog.Warn("connection %s has no underlying TCP fd, cannot hand it across an upgrade", id)
			continue
		}
		f, err := tcp.File()
		if err != nil {
			minilog.Error("duplicating fd for connection %s: %v", id, err)
			continue
		}
		l.ipc.SendEvent(ipc.Event{Kind: ipc.EvtNewConnection, ConnectionID: id, ListenerID: cc.listenerID, RemoteAddr: cc.remoteAddr}, f)
		f.Close()
	}

	l.ipc.SendEvent(ipc.Event{Kind: ipc.EvtMessage, Data: []byte("DONE")}, nil)
}

func (l *listenerProc) shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ln := range l.listeners {
		ln.Close()
	}
	for _, cc := range l.conns {
		cc.conn.Close()
	}
	l.ipc.Close()
}
