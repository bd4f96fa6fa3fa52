// Package services defines the closed set of requests the network's
// services node handles (account registration/login, channel
// registration, access changes, history queries) and their responses
// (spec.md §4.9, §6 "services payloads"). Requests travel as the
// Payload of an internal/rpc call targeted at the current services
// server.
package services

import (
	"encoding/gob"

	"golang.org/x/crypto/bcrypt"

	"github.com/meshircd/core/internal/id"
)

// Register asks the services node to create a new account.
type Register struct {
	Nickname id.Nickname
	Account  string
	Password string
}

// Login asks the services node to authenticate an existing account.
type Login struct {
	Account  string
	Password string
}

// SaslStep carries one step of a multi-round SASL exchange (PLAIN
// reduces to a single step; mechanisms like SCRAM need more).
type SaslStep struct {
	Mechanism string
	Data      []byte
}

// ChannelRegister asks the services node to register a channel to an
// account.
type ChannelRegister struct {
	Channel id.ChannelName
	Account string
}

// ChannelAccessChange asks the services node to grant or revoke a role
// on a registered channel.
type ChannelAccessChange struct {
	Channel  id.ChannelName
	Target   string // account name being granted/revoked
	RoleName string
	Revoke   bool
}

// HistoryQuery asks for backlog for a target (user's own history, or a
// channel's history if the caller has access).
type HistoryQuery struct {
	Target id.ObjectID
	Since  int64
	Limit  int
}

// Success wraps a services call's successful result; Detail is a short
// human-readable confirmation, the concrete data (if any) goes in the
// request-specific response type below.
type Success struct {
	Detail string
}

// Failure wraps a services call's rejection.
type Failure struct {
	Reason string
}

// HistoryResult answers a HistoryQuery with the matching entries,
// represented generically to avoid importing internal/history from this
// low-level wire package (gossip payloads must stay free of the
// reducer/history implementation types).
type HistoryResult struct {
	Entries []HistoryEntry
}

type HistoryEntry struct {
	Source   id.UserID
	Text     string
	IsNotice bool
	At       int64
}

func init() {
	gob.Register(Register{})
	gob.Register(Login{})
	gob.Register(SaslStep{})
	gob.Register(ChannelRegister{})
	gob.Register(ChannelAccessChange{})
	gob.Register(HistoryQuery{})
	gob.Register(Success{})
	gob.Register(Failure{})
	gob.Register(HistoryResult{})
}

// HashPassword returns a bcrypt hash suitable for storing in
// netstate.AccountRecord.PassHash.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword reports whether password matches the given bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
