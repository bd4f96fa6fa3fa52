// Package config decodes the two TOML documents a node is started with
// (spec.md §6.5): --network-conf (shared across every node on the
// network) and --server-conf (this node's own identity and local
// settings).
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// PeerConfig names one other server node this node gossips with,
// pinned by certificate fingerprint rather than CA trust.
type PeerConfig struct {
	Name        string `toml:"name"`
	Address     string `toml:"address"`
	Fingerprint string `toml:"fingerprint"`
}

// NetworkConfig is the document every node on the network is configured
// with identically: network name, the peer set, and default limits.
type NetworkConfig struct {
	NetworkName   string       `toml:"network_name"`
	Peers         []PeerConfig `toml:"peer"`
	MaxNickLen    int          `toml:"max_nick_length"`
	MaxChannelLen int          `toml:"max_channel_length"`
	MaxTopicLen   int          `toml:"max_topic_length"`
	HistoryLength int          `toml:"history_length"`

	ThrottleNum   int64 `toml:"throttle_num"`
	ThrottleTime  int64 `toml:"throttle_time_seconds"`
	ThrottleBurst int64 `toml:"throttle_burst"`

	// Fanout is F from spec.md §4.2: the number of peers selected
	// uniformly at random for each outbound/re-gossiped NewEvent. Values
	// below 2 are raised to gossip.DefaultFanout by gossip.NewNode.
	Fanout int `toml:"fanout"`
}

// ServerConfig is the document specific to this one node.
type ServerConfig struct {
	ServerName   string   `toml:"server_name"`
	ServerID     int16    `toml:"server_id"`
	ClientListen []string `toml:"client_listen"`
	GossipListen string   `toml:"gossip_listen"`
	MgmtListen   string   `toml:"mgmt_listen"`

	TlsCertFile string `toml:"tls_cert_file"`
	TlsKeyFile  string `toml:"tls_key_file"`

	IpcSocketPath  string `toml:"ipc_socket_path"`
	ServicesServer bool   `toml:"services_server"`
	ServerVersion  string `toml:"server_version"`
}

// LoadNetworkConfig decodes a network-conf TOML document from path.
func LoadNetworkConfig(path string) (*NetworkConfig, error) {
	var c NetworkConfig
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("config: decoding network-conf %s: %w", path, err)
	}
	return &c, nil
}

// LoadServerConfig decodes a server-conf TOML document from path.
func LoadServerConfig(path string) (*ServerConfig, error) {
	var c ServerConfig
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("config: decoding server-conf %s: %w", path, err)
	}
	if c.ServerName == "" {
		return nil, fmt.Errorf("config: server-conf %s: server_name is required", path)
	}
	return &c, nil
}
