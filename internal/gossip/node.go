package gossip

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/gob"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"

	"github.com/meshircd/core/internal/id"
	"github.com/meshircd/core/minilog"
)

// DefaultFanout is used when a network is configured with no explicit
// fanout, or a fanout below the testable minimum of 2 (spec.md §4.2,
// testable property 8: "fanout F >= 2").
const DefaultFanout = 3

var log = minilog.Named("gossip")

// Fingerprint is the SHA-256 digest of a peer's DER certificate, the
// pinning key used instead of a CA-validated chain: every node is
// configured with the exact fingerprints of the peers it's willing to
// talk to (spec.md §6, "mutually authenticated, certificate-pinned
// gossip transport").
type Fingerprint [sha256.Size]byte

func FingerprintOf(cert *x509.Certificate) Fingerprint {
	return sha256.Sum256(cert.Raw)
}

func (f Fingerprint) String() string { return fmt.Sprintf("%x", f[:]) }

// peer is one live connection to another server node, mirroring the
// teacher's meshage client: a gob encoder/decoder pair wrapped around a
// single TLS connection, serialized by a mutex since gob.Encoder is not
// safe for concurrent use.
type peer struct {
	server id.ServerID
	conn   net.Conn
	enc    *gob.Encoder
	dec    *gob.Decoder
	mu     sync.Mutex
}

func (p *peer) send(m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(&m)
}

// Handler processes messages this node receives, after routing
// determined the message (or its targeted-message payload) is meant for
// us.
type Handler interface {
	HandleNewEvent(from id.ServerID, m NewEvent)
	HandleBulkEvents(from id.ServerID, m BulkEvents)
	HandleSyncRequest(from id.ServerID, m SyncRequest)
	HandleGetEvent(from id.ServerID, m GetEvent)
	HandleGetNetworkState(from id.ServerID, m GetNetworkState)
	HandleNetworkState(from id.ServerID, m NetworkState)
	HandleTargetedMessage(from id.ServerID, m TargetedMessage)
	HandleTargetedMessageResponse(from id.ServerID, m TargetedMessageResponse)
	HandleMessageRejected(from id.ServerID, m MessageRejected)
}

// Node is this server's gossip endpoint: it accepts inbound peer
// connections, dials outbound ones, sends NewEvent traffic to a random
// fanout of connected peers and routes TargetedMessage traffic toward
// its target.
type Node struct {
	self   id.ServerID
	fanout int

	tlsConfig *tls.Config
	handler   Handler

	mu    sync.RWMutex
	peers map[id.ServerID]*peer
}

// NewNode returns a Node that identifies itself as self and dispatches
// received messages to handler. tlsConfig must already be configured
// with this node's own certificate and a VerifyPeerCertificate callback
// that checks the remote fingerprint against the allowed set (see
// PinnedTLSConfig). fanout is the per-network F from spec.md §4.2 ("the
// fanout parameter F is configured per network"); values below 2 are
// raised to DefaultFanout since the gossip eventual-consistency property
// (testable property 8) assumes F >= 2.
func NewNode(self id.ServerID, tlsConfig *tls.Config, handler Handler, fanout int) *Node {
	if fanout < 2 {
		fanout = DefaultFanout
	}
	return &Node{self: self, tlsConfig: tlsConfig, handler: handler, fanout: fanout, peers: make(map[id.ServerID]*peer)}
}

// SetHandler rebinds the Node's message handler. Used when the handler
// itself needs a reference to the Node to be constructed first (the
// handler dials/broadcasts through the same Node that delivers messages
// to it) - construct with a nil handler, build the handler, then call
// this before Listen/Dial.
func (n *Node) SetHandler(handler Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = handler
}

// PinnedTLSConfig builds a tls.Config for mutual authentication where
// the peer is accepted purely by certificate fingerprint, not by chain
// validation - appropriate for a closed mesh of known server nodes.
func PinnedTLSConfig(cert tls.Certificate, allowed map[Fingerprint]bool) *tls.Config {
	cfg := &tls.Config{
		Certificates:          []tls.Certificate{cert},
		ClientAuth:            tls.RequireAnyClientCert,
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verifyFingerprint(allowed),
	}
	return cfg
}

func verifyFingerprint(allowed map[Fingerprint]bool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				continue
			}
			if allowed[FingerprintOf(cert)] {
				return nil
			}
		}
		return errors.New("gossip: peer certificate fingerprint not in the pinned set")
	}
}

// Listen accepts inbound peer connections on addr until the listener is
// closed.
func (n *Node) Listen(addr string) error {
	ln, err := tls.Listen("tcp", addr, n.tlsConfig)
	if err != nil {
		return err
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				log.Error("gossip listener: %v", err)
				return
			}
			go n.handshakeInbound(conn)
		}
	}()
	return nil
}

// handshake is the one message every new connection exchanges before
// joining the peer table: each side announces its ServerID.
type handshake struct {
	Server id.ServerID
}

func (n *Node) handshakeInbound(conn net.Conn) {
	enc := gob.NewEncoder(conn)
	dec := gob.NewDecoder(conn)

	if err := enc.Encode(handshake{Server: n.self}); err != nil {
		conn.Close()
		return
	}
	var hs handshake
	if err := dec.Decode(&hs); err != nil {
		conn.Close()
		return
	}

	n.addPeer(hs.Server, conn, enc, dec)
}

// Dial opens an outbound connection to a peer already known by address,
// performing the handshake and registering it exactly as an inbound
// connection would be.
func (n *Node) Dial(addr string) (id.ServerID, error) {
	conn, err := tls.Dial("tcp", addr, n.tlsConfig)
	if err != nil {
		return 0, err
	}

	enc := gob.NewEncoder(conn)
	dec := gob.NewDecoder(conn)
	if err := enc.Encode(handshake{Server: n.self}); err != nil {
		conn.Close()
		return 0, err
	}
	var hs handshake
	if err := dec.Decode(&hs); err != nil {
		conn.Close()
		return 0, err
	}

	n.addPeer(hs.Server, conn, enc, dec)
	return hs.Server, nil
}

func (n *Node) addPeer(server id.ServerID, conn net.Conn, enc *gob.Encoder, dec *gob.Decoder) {
	p := &peer{server: server, conn: conn, enc: enc, dec: dec}

	n.mu.Lock()
	if old, ok := n.peers[server]; ok {
		old.conn.Close()
	}
	n.peers[server] = p
	n.mu.Unlock()

	log.Info("peer connected: %v", server)
	go n.readLoop(p)
}

func (n *Node) readLoop(p *peer) {
	defer func() {
		n.mu.Lock()
		if n.peers[p.server] == p {
			delete(n.peers, p.server)
		}
		n.mu.Unlock()
		p.conn.Close()
		log.Info("peer disconnected: %v", p.server)
	}()

	for {
		var m Message
		if err := p.dec.Decode(&m); err != nil {
			return
		}
		n.dispatch(p.server, m)
	}
}

func (n *Node) dispatch(from id.ServerID, m Message) {
	switch body := m.Body.(type) {
	case NewEvent:
		n.handler.HandleNewEvent(from, body)
	case BulkEvents:
		n.handler.HandleBulkEvents(from, body)
	case SyncRequest:
		n.handler.HandleSyncRequest(from, body)
	case GetEvent:
		n.handler.HandleGetEvent(from, body)
	case GetNetworkState:
		n.handler.HandleGetNetworkState(from, body)
	case NetworkState:
		n.handler.HandleNetworkState(from, body)
	case TargetedMessage:
		n.routeTargeted(from, body)
	case TargetedMessageResponse:
		n.handler.HandleTargetedMessageResponse(from, body)
	case MessageRejected:
		n.handler.HandleMessageRejected(from, body)
	default:
		log.Warn("gossip: unrecognized message body %T from %v", body, from)
	}
}

// routeTargeted forwards a TargetedMessage toward its destination,
// handling it locally if this node is the target, and rejecting it if
// MaxHops would be exceeded (spec.md REDESIGN FLAGS item on hop-bounding
// targeted RPC).
func (n *Node) routeTargeted(from id.ServerID, m TargetedMessage) {
	if m.Target == n.self {
		n.handler.HandleTargetedMessage(from, m)
		return
	}
	if len(m.Via) >= m.MaxHops {
		n.Send(from, Message{Source: n.self, Command: CmdMessageRejected, Body: MessageRejected{
			ID: m.ID, Reason: "max hops exceeded",
		}})
		return
	}
	m.Via = append(append([]id.ServerID{}, m.Via...), n.self)
	if err := n.Send(m.Target, Message{Source: n.self, Command: CmdTargetedMessage, Body: m}); err != nil {
		n.Send(from, Message{Source: n.self, Command: CmdMessageRejected, Body: MessageRejected{
			ID: m.ID, Reason: err.Error(),
		}})
	}
}

// Send delivers m directly to one connected peer, returning an error if
// no direct connection to that server exists - callers needing
// multi-hop delivery should use Broadcast/flood semantics or route
// through TargetedMessage.
func (n *Node) Send(to id.ServerID, m Message) error {
	n.mu.RLock()
	p, ok := n.peers[to]
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("gossip: no connection to server %v", to)
	}
	return p.send(m)
}

// Broadcast floods m to every directly connected peer except those
// already listed in skip (used to avoid sending an event back to the
// peer it was just received from).
func (n *Node) Broadcast(m Message, skip ...id.ServerID) {
	skipSet := make(map[id.ServerID]bool, len(skip))
	for _, s := range skip {
		skipSet[s] = true
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	for server, p := range n.peers {
		if skipSet[server] {
			continue
		}
		go func(p *peer, server id.ServerID) {
			if err := p.send(m); err != nil {
				log.Error("gossip: broadcast to %v: %v", server, err)
			}
		}(p, server)
	}
}

// GossipNewEvent implements spec.md §4.2's fanout policy: select F
// distinct peers uniformly at random (excluding skip) and send m to
// just those, rather than flooding every connected peer. Both the
// original submitter and a node re-gossiping an event it just accepted
// call this, so an event's total spread stays probabilistic fanout
// rather than full-mesh flood at every hop.
func (n *Node) GossipNewEvent(m NewEvent, skip ...id.ServerID) {
	skipSet := make(map[id.ServerID]bool, len(skip))
	for _, s := range skip {
		skipSet[s] = true
	}

	targets := n.selectFanoutPeers(skipSet)
	msg := Message{Source: n.self, Command: CmdNewEvent, Body: m}
	for _, to := range targets {
		go func(to id.ServerID) {
			if err := n.Send(to, msg); err != nil {
				log.Error("gossip: fanout send to %v: %v", to, err)
			}
		}(to)
	}
}

// selectFanoutPeers picks up to n.fanout peer ids uniformly at random
// from currently connected peers not in skip.
func (n *Node) selectFanoutPeers(skip map[id.ServerID]bool) []id.ServerID {
	n.mu.RLock()
	candidates := make([]id.ServerID, 0, len(n.peers))
	for s := range n.peers {
		if !skip[s] {
			candidates = append(candidates, s)
		}
	}
	n.mu.RUnlock()

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > n.fanout {
		candidates = candidates[:n.fanout]
	}
	return candidates
}

// Peers returns the server ids of every currently connected peer.
func (n *Node) Peers() []id.ServerID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]id.ServerID, 0, len(n.peers))
	for s := range n.peers {
		out = append(out, s)
	}
	return out
}
