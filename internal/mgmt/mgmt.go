// Package mgmt implements the operator-facing HTTPS management endpoint:
// read-only statistics, and shutdown/restart/upgrade control, gated by a
// client-certificate fingerprint allowlist rather than a password
// (spec.md §6.6).
package mgmt

import (
	"crypto/tls"
	"encoding/json"
	"net/http"

	"github.com/meshircd/core/internal/gossip"
	"github.com/meshircd/core/minilog"
)

var log = minilog.Named("mgmt")

// Statistics is the payload returned by GET /statistics.
type Statistics struct {
	ServerName   string `json:"server_name"`
	Uptime       int64  `json:"uptime_seconds"`
	UserCount    int    `json:"user_count"`
	ChannelCount int    `json:"channel_count"`
	PeerCount    int    `json:"peer_count"`
}

// Controller is implemented by whatever owns the server's lifecycle;
// the mgmt endpoint only ever calls into it, it holds no state of its
// own.
type Controller interface {
	Statistics() Statistics
	Shutdown(reason string) error
	Restart(reason string) error
	Upgrade() error
}

// Server is the management HTTPS listener.
type Server struct {
	ctrl    Controller
	allowed map[gossip.Fingerprint]bool
	srv     *http.Server
}

// New builds a management Server. cert is this node's own TLS
// certificate; allowed is the set of client-certificate fingerprints
// permitted to call any endpoint: GET /statistics and the mutating POST
// /shutdown, /restart and /upgrade all require a client certificate
// whose fingerprint is in allowed.
func New(addr string, cert tls.Certificate, allowed map[gossip.Fingerprint]bool, ctrl Controller) *Server {
	s := &Server{ctrl: ctrl, allowed: allowed}

	mux := http.NewServeMux()
	mux.HandleFunc("/statistics", s.handleStatistics)
	mux.HandleFunc("/shutdown", s.handleMutating(func(reason string) error { return ctrl.Shutdown(reason) }))
	mux.HandleFunc("/restart", s.handleMutating(func(reason string) error { return ctrl.Restart(reason) }))
	mux.HandleFunc("/upgrade", s.handleMutating(func(string) error { return ctrl.Upgrade() }))

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
		TLSConfig: &tls.Config{
			Certificates:       []tls.Certificate{cert},
			ClientAuth:         tls.RequireAnyClientCert,
			InsecureSkipVerify: true,
		},
	}
	return s
}

// ListenAndServeTLS starts serving, blocking until the listener fails or
// is shut down.
func (s *Server) ListenAndServeTLS() error {
	return s.srv.ListenAndServeTLS("", "")
}

func (s *Server) Close() error { return s.srv.Close() }

func (s *Server) authorized(r *http.Request) bool {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return false
	}
	for _, cert := range r.TLS.PeerCertificates {
		if s.allowed[gossip.FingerprintOf(cert)] {
			return true
		}
	}
	return false
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.ctrl.Statistics())
}

func (s *Server) handleMutating(action func(reason string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		reason := r.URL.Query().Get("reason")
		if err := action(reason); err != nil {
			log.Error("mgmt action failed: %v", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
