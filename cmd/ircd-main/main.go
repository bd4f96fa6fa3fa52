// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

package main

import (
	"crypto/tls"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meshircd/core/internal/config"
	"github.com/meshircd/core/internal/gossip"
	"github.com/meshircd/core/internal/id"
	"github.com/meshircd/core/internal/ipc"
	"github.com/meshircd/core/internal/mgmt"
	"github.com/meshircd/core/internal/serverproc"
	"github.com/meshircd/core/internal/upgrade"
	"github.com/meshircd/core/minilog"
)

var (
	f_networkConf = flag.String("network-conf", "", "path to the network-wide TOML config shared by every node")
	f_serverConf  = flag.String("server-conf", "", "path to this node's own TOML config")
	f_upgradeFD   = flag.Int("upgrade-state-fd", -1, "inherited fd holding saved state from a hot upgrade; set automatically when a hot upgrade re-execs this binary, never by hand")
	f_bootstrap   = flag.Bool("bootstrap-network", false, "this node is the first on the network; don't wait for a peer to sync from")
	f_foreground  = flag.Bool("foreground", false, "accepted for CLI compatibility; this process never daemonizes, so it always stays attached to the controlling terminal")
)

const banner = `ircd-main, a gossip-replicated IRC network node.`

func usage() {
	fmt.Println(banner)
	fmt.Println("usage: ircd-main -network-conf FILE -server-conf FILE [option]...")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	minilog.Init()

	if *f_networkConf == "" || *f_serverConf == "" {
		usage()
		os.Exit(1)
	}

	netConf, err := config.LoadNetworkConfig(*f_networkConf)
	if err != nil {
		minilog.Fatal("%v", err)
	}
	srvConf, err := config.LoadServerConfig(*f_serverConf)
	if err != nil {
		minilog.Fatal("%v", err)
	}

	self := id.ServerID(srvConf.ServerID)

	var upgraded *upgrade.State
	if *f_upgradeFD >= 0 {
		upgraded, err = upgrade.Load(*f_upgradeFD)
		if err != nil {
			minilog.Fatal("loading upgrade state from fd %d: %v", *f_upgradeFD, err)
		}
		minilog.Info("resumed from hot upgrade: %d saved listeners, %d saved connections",
			len(upgraded.Listeners.Listeners), len(upgraded.Listeners.Connections))
	}

	cert, err := tls.LoadX509KeyPair(srvConf.TlsCertFile, srvConf.TlsKeyFile)
	if err != nil {
		minilog.Fatal("loading gossip TLS certificate: %v", err)
	}

	allowed := make(map[gossip.Fingerprint]bool, len(netConf.Peers))
	peerAddr := make(map[id.ServerID]string)
	for i, peer := range netConf.Peers {
		raw, err := hex.DecodeString(peer.Fingerprint)
		if err != nil || len(raw) != len(gossip.Fingerprint{}) {
			minilog.Fatal("peer %q has an invalid fingerprint: %v", peer.Name, err)
		}
		var fp gossip.Fingerprint
		copy(fp[:], raw)
		allowed[fp] = true
		// Peers are configured in the order every node lists them, so the
		// index doubles as a stable per-network server id (index+1).
		peerAddr[id.ServerID(i+1)] = peer.Address
	}

	tlsConfig := gossip.PinnedTLSConfig(cert, allowed)
	node := gossip.NewNode(self, tlsConfig, nil, netConf.Fanout)

	ipcConn, err := ipc.Dial(srvConf.IpcSocketPath)
	if err != nil {
		minilog.Fatal("connecting to listener process at %s: %v", srvConf.IpcSocketPath, err)
	}

	serverName, err := id.NewServerName(srvConf.ServerName)
	if err != nil {
		minilog.Fatal("server-conf server_name: %v", err)
	}

	baseArgs := stripUpgradeFlag(os.Args[1:])

	srv := serverproc.New(serverproc.Config{
		Self:       self,
		ServerName: serverName,
		Version:    srvConf.ServerVersion,
		Generator:  id.NewGenerator(self),
		Node:       node,
		IPC:        ipcConn,
		BaseArgs:   baseArgs,
		EventEpoch: id.EpochID(serverproc.Now()),
	})
	node.SetHandler(srv)

	if upgraded != nil {
		srv.Reducer().ReplaceState(upgraded.Network)
	}

	if srvConf.ServicesServer && upgraded == nil {
		srv.BecomeServicesServer()
	}

	if err := node.Listen(srvConf.GossipListen); err != nil {
		minilog.Fatal("listening for gossip on %s: %v", srvConf.GossipListen, err)
	}

	for serverID, addr := range peerAddr {
		if serverID == self {
			continue
		}
		go dialPeerUntilConnected(node, addr)
	}

	if !*f_bootstrap && upgraded == nil {
		bootstrapFromPeers(node)
	}

	if srvConf.MgmtListen != "" {
		mgmtSrv := mgmt.New(srvConf.MgmtListen, cert, allowed, srv)
		go func() {
			if err := mgmtSrv.ListenAndServeTLS(); err != nil {
				minilog.Error("management listener stopped: %v", err)
			}
		}()
	}

	go pumpListenerEvents(srv, ipcConn, netConf)

	minilog.Info("%s (server id %d) ready", srvConf.ServerName, self)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	minilog.Info("shutting down on signal")
}

// dialPeerUntilConnected keeps retrying a peer dial forever in the
// background; gossip traffic from a peer that's up will simply arrive
// once the connection succeeds, matching the mesh's "eventually connects"
// model rather than failing node startup over a peer that hasn't booted
// yet.
func dialPeerUntilConnected(node *gossip.Node, addr string) {
	for {
		if _, err := node.Dial(addr); err != nil {
			minilog.Warn("dialing peer %s: %v", addr, err)
			continue
		}
		return
	}
}

// bootstrapFromPeers asks the first peer to connect for a full network
// state snapshot, used when this node has no local event history at all.
func bootstrapFromPeers(node *gossip.Node) {
	for i := 0; i < 50; i++ {
		if peers := node.Peers(); len(peers) > 0 {
			node.Send(peers[0], gossip.Message{Command: gossip.CmdGetNetworkState, Body: gossip.GetNetworkState{}})
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	minilog.Warn("no peers connected yet; starting with empty network state")
}

// pumpListenerEvents drains connection lifecycle and raw-line events
// from the listener process. Parsing and acting on IRC command lines is
// the command layer's job and out of scope here; this loop's
// responsibility ends at per-connection rate limiting (internal/throttle)
// and logging, which is as far as the node process itself needs to care
// about a client connection's traffic.
func pumpListenerEvents(srv *serverproc.Server, conn *ipc.Conn, netConf *config.NetworkConfig) {
	for {
		evt, fd, err := conn.RecvEvent()
		if err != nil {
			minilog.Error("listener process connection lost: %v", err)
			return
		}
		if fd != nil {
			fd.Close()
		}

		switch evt.Kind {
		case ipc.EvtNewConnection:
			minilog.Info("new connection %s from %s", evt.ConnectionID, evt.RemoteAddr)
		case ipc.EvtMessage:
			q := srv.ThrottleFor(evt.ConnectionID, netConf.ThrottleNum, netConf.ThrottleTime, netConf.ThrottleBurst)
			if err := q.Push(evt); err != nil {
				minilog.Warn("dropping message from %s: %v", evt.ConnectionID, err)
			}
		case ipc.EvtConnectionError:
			minilog.Info("connection %s closed: %s", evt.ConnectionID, evt.Error)
			srv.Close(evt.ConnectionID)
		case ipc.EvtListenerError:
			minilog.Error("listener %s failed: %s", evt.ListenerID, evt.Error)
		}
	}
}

func stripUpgradeFlag(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "-upgrade-state-fd" || a == "--upgrade-state-fd" {
			i++ // skip its value
			continue
		}
		if len(a) > len("-upgrade-state-fd=") && a[:len("-upgrade-state-fd=")] == "-upgrade-state-fd=" {
			continue
		}
		out = append(out, a)
	}
	return out
}
