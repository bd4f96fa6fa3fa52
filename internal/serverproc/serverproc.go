// Package serverproc wires the rest of the packages in this module into
// one running node: the event log, the network-state reducer, the
// gossip mesh, targeted rpc, the services node, the management endpoint,
// and the IPC channel to this node's listener process. cmd/ircd-main is
// a thin flag-parsing shell around a Server built here, the way
// src/minimega/main.go is a thin shell around the packages it imports.
package serverproc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/meshircd/core/internal/control"
	"github.com/meshircd/core/internal/event"
	"github.com/meshircd/core/internal/eventlog"
	"github.com/meshircd/core/internal/gossip"
	"github.com/meshircd/core/internal/history"
	"github.com/meshircd/core/internal/id"
	"github.com/meshircd/core/internal/ipc"
	"github.com/meshircd/core/internal/mgmt"
	"github.com/meshircd/core/internal/netstate"
	"github.com/meshircd/core/internal/rpc"
	"github.com/meshircd/core/internal/servicesd"
	"github.com/meshircd/core/internal/throttle"
	"github.com/meshircd/core/internal/upgrade"
	"github.com/meshircd/core/minilog"
)

var log = minilog.Named("serverproc")

// Now is the wall-clock source every event gets stamped with. A package
// variable rather than a field so tests can override it without
// threading a clock through every constructor; production code never
// reassigns it.
var Now = func() int64 { return time.Now().Unix() }

// Server is one running node: everything needed to accept gossip
// traffic, apply events, and answer rpc and management requests.
type Server struct {
	self id.ServerID
	gen  *id.Generator

	log      *eventlog.Log
	delivered <-chan event.Event
	reducer  *netstate.Reducer
	hist     *history.Log

	node      *gossip.Node
	rpcClient *rpc.Client
	services  *servicesd.Handler // nil unless this node currently owns the services role

	ipcConn  *ipc.Conn
	baseArgs []string // os.Args[1:] minus any --upgrade-state-fd flag, for re-exec

	mu         sync.Mutex
	caps       map[string][]string // connection id -> negotiated CAP tokens
	throttles  map[string]*throttle.Queue[ipc.Event]
	authState  map[string]upgrade.ConnectionAuthState
	restartReq bool

	startedAt int64
}

// Config bundles the pieces New needs that come from outside this
// package (config files, already-established network connections).
type Config struct {
	Self       id.ServerID
	ServerName id.ServerName
	Version    string
	Generator  *id.Generator
	Node       *gossip.Node
	IPC        *ipc.Conn
	BaseArgs   []string
	EventEpoch id.EpochID
}

// New builds a Server, starting its own background goroutine that drains
// the event log's delivered channel into the reducer. Callers still need
// to call node.Listen/Dial, then Run, to actually start serving.
func New(cfg Config) *Server {
	idGen := id.NewEventIDGenerator(cfg.Self, cfg.EventEpoch)
	elog, delivered := eventlog.New(idGen)
	reducer := netstate.NewReducer()
	hist := history.New()

	s := &Server{
		self:      cfg.Self,
		gen:       cfg.Generator,
		log:       elog,
		delivered: delivered,
		reducer:   reducer,
		hist:      hist,
		node:      cfg.Node,
		ipcConn:   cfg.IPC,
		baseArgs:  cfg.BaseArgs,
		caps:      make(map[string][]string),
		throttles: make(map[string]*throttle.Queue[ipc.Event]),
		authState: make(map[string]upgrade.ConnectionAuthState),
		startedAt: Now(),
	}
	s.rpcClient = rpc.New(cfg.Self, cfg.Node)

	go s.drain()

	// Every node announces itself before anything else: applyIntroduceServicesServer
	// (and any future handler keyed by ServerID) looks up s.Servers[id] and
	// fails if this node has never been seen, so BecomeServicesServer would
	// otherwise be rejected by the reducer for its own server id.
	s.Submit(id.ObjectID{}, event.NewServer{Server: event.ServerInfo{
		ID: cfg.Self, Name: cfg.ServerName, Epoch: cfg.EventEpoch, Version: cfg.Version,
	}})

	return s
}

// drain applies every delivered event to the reducer, feeding the
// history log from the resulting Change stream. History entries carry
// the event's own timestamp.
func (s *Server) drain() {
	for e := range s.delivered {
		at := e.Timestamp
		histSink := s.hist.Sink(func() int64 { return at })
		s.reducer.Apply(e, func(c netstate.Change) {
			histSink(c)
		})
	}
}

// Reducer exposes the read-only view API to whatever command layer is
// wired on top of this server.
func (s *Server) Reducer() *netstate.Reducer { return s.reducer }

// History exposes the message backlog.
func (s *Server) History() *history.Log { return s.hist }

// BecomeServicesServer submits the event declaring this node the
// network's services node and wires up a servicesd.Handler so
// HandleTargetedMessage can answer Register/Login/etc. requests locally.
func (s *Server) BecomeServicesServer() {
	s.services = servicesd.New(s.gen, s.reducer, s.hist, s, Now)
	s.Submit(id.ObjectID{}, event.IntroduceServicesServer{Server: s.self})
}

// --- control.Submitter ---

// Submit stamps, delivers locally and gossips one event to F random
// peers, the single choke point every state mutation in the network
// passes through (spec.md §4, "submit_event"; §4.2's fanout policy).
func (s *Server) Submit(target id.ObjectID, details event.Details) {
	e := s.log.Create(Now(), target, details)
	s.log.Add(e)
	s.node.GossipNewEvent(gossip.NewEvent{Event: e})
}

// --- control.Connections ---

func (s *Server) Register(connID string) bool {
	log.Info("connection %s ready to register", connID)
	return true
}

func (s *Server) SetCaps(connID string, caps []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps[connID] = caps
}

// RemoveUser asks the listener process to close every connection
// belonging to user. The listener process, not this one, owns the
// connection-id/user mapping, so the user id travels as opaque Data and
// the listener resolves it against its own table.
func (s *Server) RemoveUser(user id.UserID) {
	s.sendIPCControl(ipc.ControlCommand{Kind: ipc.CmdCloseConnection, Data: []byte(user.String())})
}

func (s *Server) Close(connID string) {
	s.sendIPCControl(ipc.ControlCommand{Kind: ipc.CmdCloseConnection, ConnectionID: connID})
	s.mu.Lock()
	delete(s.caps, connID)
	delete(s.throttles, connID)
	delete(s.authState, connID)
	s.mu.Unlock()
}

func (s *Server) sendIPCControl(cmd ipc.ControlCommand) {
	if s.ipcConn == nil {
		return
	}
	if err := s.ipcConn.SendControl(cmd, nil); err != nil {
		log.Error("sending control %v to listener: %v", cmd.Kind, err)
	}
}

// ThrottleFor returns the per-connection inbound-message rate limiter,
// creating one on first use. num/window/burst come from the network
// configuration's throttle settings.
func (s *Server) ThrottleFor(connID string, num, window, burst int64) *throttle.Queue[ipc.Event] {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.throttles[connID]
	if !ok {
		q = throttle.New[ipc.Event](num, window, burst, 64)
		s.throttles[connID] = q
	}
	return q
}

// --- gossip.Handler ---

// HandleNewEvent re-gossips to F further peers after accepting the
// event (spec.md §4.2: "a peer that receives an event it has not seen
// re-gossips it to F further peers"). An event already in the log,
// delivered or pending, is not re-gossiped; eventlog.Log.Add's
// dedup-by-id makes the repeated Add itself a no-op. The sender is
// always excluded from the re-gossip target set.
func (s *Server) HandleNewEvent(from id.ServerID, m gossip.NewEvent) {
	_, seen := s.log.Get(m.Event.ID)
	for _, p := range s.log.PendingIDs() {
		if p == m.Event.ID {
			seen = true
		}
	}
	s.log.Add(m.Event)
	if !seen {
		s.node.GossipNewEvent(m, from)
	}
	s.chaseMissingDependencies(from)
}

func (s *Server) HandleBulkEvents(from id.ServerID, m gossip.BulkEvents) {
	for _, e := range m.Events {
		s.log.Add(e)
	}
	s.chaseMissingDependencies(from)
}

// chaseMissingDependencies asks the peer we just heard from to fill in
// any dependency ids this log is still missing after the Add(s) above
// (spec.md §4.2: "when the reducer receives an event whose clock
// contains IDs not in the log... the replicator issues GetEvent to
// recover it"). from is not guaranteed to have the missing event, but
// it is the one peer we know is reachable and current right now; a
// request that misses is harmless, and the same gap gets another
// chance the next time any event arrives from anywhere.
func (s *Server) chaseMissingDependencies(from id.ServerID) {
	for _, missing := range s.log.MissingDependencies() {
		if err := s.node.Send(from, gossip.Message{Source: s.self, Command: gossip.CmdGetEvent, Body: gossip.GetEvent{ID: missing}}); err != nil {
			log.Warn("chasing dependency %v via %v: %v", missing, from, err)
		}
	}
}

func (s *Server) HandleSyncRequest(from id.ServerID, m gossip.SyncRequest) {
	events := s.log.GetSince(m.Since)
	if err := s.node.Send(from, gossip.Message{Source: s.self, Command: gossip.CmdBulkEvents, Body: gossip.BulkEvents{Events: events}}); err != nil {
		log.Error("answering sync request from %v: %v", from, err)
	}
}

func (s *Server) HandleGetEvent(from id.ServerID, m gossip.GetEvent) {
	e, ok := s.log.Get(m.ID)
	if !ok {
		return
	}
	if err := s.node.Send(from, gossip.Message{Source: s.self, Command: gossip.CmdBulkEvents, Body: gossip.BulkEvents{Events: []event.Event{e}}}); err != nil {
		log.Error("answering get-event request from %v: %v", from, err)
	}
}

func (s *Server) HandleGetNetworkState(from id.ServerID, m gossip.GetNetworkState) {
	snap := s.reducer.Snapshot()
	clk := s.log.Clock()
	if err := s.node.Send(from, gossip.Message{Source: s.self, Command: gossip.CmdNetworkState, Body: gossip.NetworkState{State: snap, Clock: clk}}); err != nil {
		log.Error("answering get-network-state request from %v: %v", from, err)
	}
}

// HandleNetworkState adopts a peer's full snapshot on join, then issues
// a SyncRequest against the snapshot's own clock so anything the peer
// emitted during the transfer window (after it took the snapshot, before
// this request arrives) still reaches us - spec.md §4.2 "Sync on join":
// "adopts the returned snapshot... then issues SyncRequest(clock) to
// pick up any events emitted during the exchange."
func (s *Server) HandleNetworkState(from id.ServerID, m gossip.NetworkState) {
	s.reducer.ReplaceState(m.State)
	s.log.AdoptClock(m.Clock)
	log.Info("bootstrapped network state from %v", from)

	if err := s.node.Send(from, gossip.Message{Source: s.self, Command: gossip.CmdSyncRequest, Body: gossip.SyncRequest{Since: m.Clock}}); err != nil {
		log.Error("issuing post-bootstrap sync request to %v: %v", from, err)
	}
}

func (s *Server) HandleTargetedMessage(from id.ServerID, m gossip.TargetedMessage) {
	if s.services == nil {
		s.node.Send(from, gossip.Message{Source: s.self, Command: gossip.CmdMessageRejected, Body: gossip.MessageRejected{
			ID: m.ID, Reason: "this node is not the services server",
		}})
		return
	}
	resp := s.services.Handle(m.Payload)
	if err := s.rpcClient.Respond(m, resp); err != nil {
		log.Error("responding to targeted message %s: %v", m.ID, err)
	}
}

func (s *Server) HandleTargetedMessageResponse(from id.ServerID, m gossip.TargetedMessageResponse) {
	s.rpcClient.HandleResponse(m.ID, m.Payload)
}

func (s *Server) HandleMessageRejected(from id.ServerID, m gossip.MessageRejected) {
	s.rpcClient.HandleRejected(m.ID, m.Reason)
}

// CallServices forwards a services request to whichever node currently
// owns the services role, per the network state's ServicesServer
// field.
func (s *Server) CallServices(ctx context.Context, payload any) (any, error) {
	var target *id.ServerID
	s.reducer.View(func(st *netstate.NetworkState) { target = st.ServicesServer })
	if target == nil {
		return nil, fmt.Errorf("serverproc: no services server currently elected")
	}
	if *target == s.self {
		return s.services.Handle(payload), nil
	}
	return s.rpcClient.Call(ctx, *target, payload)
}

// --- mgmt.Controller ---

func (s *Server) Statistics() mgmt.Statistics {
	var users, channels int
	s.reducer.View(func(st *netstate.NetworkState) {
		users = len(st.Users)
		channels = len(st.Channels)
	})
	return mgmt.Statistics{
		Uptime:       Now() - s.startedAt,
		UserCount:    users,
		ChannelCount: channels,
		PeerCount:    len(s.node.Peers()),
	}
}

func (s *Server) Shutdown(reason string) error {
	log.Info("shutdown requested: %s", reason)
	s.sendIPCControl(ipc.ControlCommand{Kind: ipc.CmdShutdown})
	return nil
}

func (s *Server) Restart(reason string) error {
	log.Info("restart requested: %s", reason)
	s.mu.Lock()
	s.restartReq = true
	s.mu.Unlock()
	return s.Shutdown(reason)
}

// Upgrade performs a hot upgrade: it asks the listener process to hand
// over every listener and connection fd, bundles them with the current
// network state and per-connection auth progress into a saved-state
// memfd, then execs a fresh copy of this binary with everything
// inherited (spec.md §4, §6.4). On success this call never returns - the
// process image is replaced.
func (s *Server) Upgrade() error {
	if s.ipcConn == nil {
		return fmt.Errorf("serverproc: no listener process attached, cannot upgrade")
	}

	if err := s.ipcConn.SendControl(ipc.ControlCommand{Kind: ipc.CmdSaveForUpgrade}, nil); err != nil {
		return fmt.Errorf("serverproc: requesting saved state from listener: %w", err)
	}

	var collection upgrade.SavedListenerCollection
	var extraFiles []*os.File
	for {
		evt, fd, err := s.ipcConn.RecvEvent()
		if err != nil {
			return fmt.Errorf("serverproc: reading saved-state stream: %w", err)
		}
		if evt.Kind == ipc.EvtMessage && bytes.Equal(evt.Data, []byte("DONE")) {
			break
		}
		if fd == nil {
			return fmt.Errorf("serverproc: listener sent %v with no inherited fd", evt.Kind)
		}
		if evt.ListenerID != "" && evt.ConnectionID == "" {
			collection.Listeners = append(collection.Listeners, upgrade.SavedListener{
				ID: evt.ListenerID, Address: evt.RemoteAddr, FD: int(fd.Fd()),
			})
		} else {
			collection.Connections = append(collection.Connections, upgrade.SavedConnection{
				ID: evt.ConnectionID, ListenerID: evt.ListenerID, RemoteAddr: evt.RemoteAddr, FD: int(fd.Fd()),
			})
		}
		extraFiles = append(extraFiles, fd)
	}

	s.mu.Lock()
	authCopy := make(map[string]upgrade.ConnectionAuthState, len(s.authState))
	for k, v := range s.authState {
		authCopy[k] = v
	}
	s.mu.Unlock()

	state := &upgrade.State{
		Network:           s.reducer.Snapshot(),
		Clock:             s.log.Clock(),
		Listeners:         collection,
		PerConnectionAuth: authCopy,
	}

	stateFile, err := upgrade.Save(state)
	if err != nil {
		return fmt.Errorf("serverproc: saving upgrade state: %w", err)
	}

	args := append(append([]string{}, s.baseArgs...), "--upgrade-state-fd=3")
	return upgrade.Exec(stateFile, extraFiles, args)
}
