package event

import (
	"encoding/gob"

	"github.com/meshircd/core/internal/id"
)

// Kind tags which concrete Details variant an Event carries, dispatched on
// by the network state reducer (spec.md §4.3).
type Kind uint8

const (
	KindNewUser Kind = iota
	KindBindNickname
	KindUserQuit
	KindUserModeChange
	KindUserAwayChange
	KindUserLoginChange
	KindNewChannel
	KindChannelJoin
	KindChannelPart
	KindChannelKick
	KindChannelInvite
	KindChannelModeChange
	KindNewChannelTopic
	KindMembershipFlagChange
	KindNewListModeEntry
	KindRemoveListModeEntry
	KindNewMessage
	KindNewServer
	KindServerPing
	KindServerQuit
	KindIntroduceServicesServer
	KindNewNetworkBan
	KindRemoveNetworkBan
	KindAccountUpdate
	KindNickRegistrationUpdate
	KindChannelRegistrationUpdate
	KindChannelAccessUpdate
	KindChannelRoleUpdate
	KindNewAuditLogEntry
)

// ListModeType distinguishes the four per-channel list modes.
type ListModeType uint8

const (
	ListModeBan ListModeType = iota
	ListModeExcept
	ListModeInvex
	ListModeQuiet
)

func (k Kind) DetailKind() Kind { return k }

// NewUser introduces a user to the network. If Nickname collides with an
// existing binding, the reducer resolves it per spec.md §4.3.
type NewUser struct {
	User     id.UserID
	Nickname id.Nickname
	Username id.Username
	Hostname id.Hostname
	Realname string
	Account  *id.AccountID

	// SessionKeyHash is the optional session-resume key hash (spec.md
	// §3, "optional session-resume key hash"); empty if the connection
	// did not request resume capability.
	SessionKeyHash string
	// Persistent marks a user who survives its introducing server's
	// ServerQuit rather than being removed with the rest of that
	// server's users (spec.md §3, §4.3 "ServerQuit").
	Persistent bool
}

func (NewUser) DetailKind() Kind { return KindNewUser }

// BindNickname (re)binds a nickname to a user - initial NICK on connect,
// or a later NICK change.
type BindNickname struct {
	User      id.UserID
	Nickname  id.Nickname
	Timestamp int64
}

func (BindNickname) DetailKind() Kind { return KindBindNickname }

// UserQuit removes a user and every membership/binding that refers to it.
type UserQuit struct {
	User   id.UserID
	Reason string
}

func (UserQuit) DetailKind() Kind { return KindUserQuit }

type UserModeChange struct {
	User    id.UserID
	Added   string
	Removed string
}

func (UserModeChange) DetailKind() Kind { return KindUserModeChange }

type UserAwayChange struct {
	User   id.UserID
	Reason *string // nil clears away status
}

func (UserAwayChange) DetailKind() Kind { return KindUserAwayChange }

// UserLoginChange logs a user in to (or out of, with Account == nil) a
// services account.
type UserLoginChange struct {
	User    id.UserID
	Account *id.AccountID
}

func (UserLoginChange) DetailKind() Kind { return KindUserLoginChange }

type NewChannel struct {
	Channel id.ChannelID
	Name    id.ChannelName
	Created int64
}

func (NewChannel) DetailKind() Kind { return KindNewChannel }

type ChannelJoin struct {
	User    id.UserID
	Channel id.ChannelID
}

func (ChannelJoin) DetailKind() Kind { return KindChannelJoin }

type ChannelPart struct {
	User    id.UserID
	Channel id.ChannelID
	Reason  string
}

func (ChannelPart) DetailKind() Kind { return KindChannelPart }

type ChannelKick struct {
	Kicker  id.UserID
	User    id.UserID
	Channel id.ChannelID
	Reason  string
}

func (ChannelKick) DetailKind() Kind { return KindChannelKick }

type ChannelInvite struct {
	Source  id.UserID
	User    id.UserID
	Channel id.ChannelID
}

func (ChannelInvite) DetailKind() Kind { return KindChannelInvite }

type ChannelModeChange struct {
	Source  id.UserID
	Channel id.ChannelID
	Added   string
	Removed string
	Key     *string
	Limit   *int
}

func (ChannelModeChange) DetailKind() Kind { return KindChannelModeChange }

type NewChannelTopic struct {
	Source  id.UserID
	Channel id.ChannelID
	Text    string
	SetAt   int64
}

func (NewChannelTopic) DetailKind() Kind { return KindNewChannelTopic }

type MembershipFlagChange struct {
	Source     id.UserID
	Membership id.MembershipID
	Added      string
	Removed    string
}

func (MembershipFlagChange) DetailKind() Kind { return KindMembershipFlagChange }

type NewListModeEntry struct {
	Channel id.ChannelID
	Type    ListModeType
	Pattern string
	SetBy   string
	SetAt   int64
}

func (NewListModeEntry) DetailKind() Kind { return KindNewListModeEntry }

type RemoveListModeEntry struct {
	Channel id.ChannelID
	Type    ListModeType
	Pattern string
}

func (RemoveListModeEntry) DetailKind() Kind { return KindRemoveListModeEntry }

type NewMessage struct {
	ID      id.MessageID
	Source  id.UserID
	Target  id.ObjectID // UserID for PRIVMSG, ChannelID for channel messages
	Text    string
	IsNotice bool
}

func (NewMessage) DetailKind() Kind { return KindNewMessage }

type NewServer struct {
	Server ServerInfo
}

func (NewServer) DetailKind() Kind { return KindNewServer }

// ServerInfo describes a server node as tracked in network state.
type ServerInfo struct {
	ID      id.ServerID
	Name    id.ServerName
	Epoch   id.EpochID
	Version string
}

type ServerPing struct {
	Server id.ServerID
	SentAt int64
}

func (ServerPing) DetailKind() Kind { return KindServerPing }

type ServerQuit struct {
	Server id.ServerID
	Reason string
}

func (ServerQuit) DetailKind() Kind { return KindServerQuit }

// IntroduceServicesServer designates the one node responsible for
// targeted-RPC service operations (spec.md §9 "global services-node
// routing").
type IntroduceServicesServer struct {
	Server id.ServerID
}

func (IntroduceServicesServer) DetailKind() Kind { return KindIntroduceServicesServer }

type NewNetworkBan struct {
	Ban       id.NetworkBanID
	Pattern   string
	Reason    string
	SetBy     string
	SetAt     int64
	ExpiresAt int64 // zero means no expiry
}

func (NewNetworkBan) DetailKind() Kind { return KindNewNetworkBan }

type RemoveNetworkBan struct {
	Ban id.NetworkBanID
}

func (RemoveNetworkBan) DetailKind() Kind { return KindRemoveNetworkBan }

type AccountUpdate struct {
	Account    id.AccountID
	Name       string
	PassHash   string
	Deleted    bool
}

func (AccountUpdate) DetailKind() Kind { return KindAccountUpdate }

type NickRegistrationUpdate struct {
	Account  id.AccountID
	Nickname id.Nickname
	Deleted  bool
}

func (NickRegistrationUpdate) DetailKind() Kind { return KindNickRegistrationUpdate }

type ChannelRegistrationUpdate struct {
	Registration id.ChannelRegistrationID
	Name         id.ChannelName
	FoundedAt    int64
	Deleted      bool
}

func (ChannelRegistrationUpdate) DetailKind() Kind { return KindChannelRegistrationUpdate }

type ChannelAccessUpdate struct {
	Access  id.ChannelAccessID
	Roles   []string
	Deleted bool
}

func (ChannelAccessUpdate) DetailKind() Kind { return KindChannelAccessUpdate }

type ChannelRoleUpdate struct {
	Registration id.ChannelRegistrationID
	RoleName     string
	Flags        string
	Deleted      bool
}

func (ChannelRoleUpdate) DetailKind() Kind { return KindChannelRoleUpdate }

type NewAuditLogEntry struct {
	Entry    id.AuditLogEntryID
	Category string
	Actor    string
	Text     string
	At       int64
}

func (NewAuditLogEntry) DetailKind() Kind { return KindNewAuditLogEntry }

func init() {
	gob.Register(NewUser{})
	gob.Register(BindNickname{})
	gob.Register(UserQuit{})
	gob.Register(UserModeChange{})
	gob.Register(UserAwayChange{})
	gob.Register(UserLoginChange{})
	gob.Register(NewChannel{})
	gob.Register(ChannelJoin{})
	gob.Register(ChannelPart{})
	gob.Register(ChannelKick{})
	gob.Register(ChannelInvite{})
	gob.Register(ChannelModeChange{})
	gob.Register(NewChannelTopic{})
	gob.Register(MembershipFlagChange{})
	gob.Register(NewListModeEntry{})
	gob.Register(RemoveListModeEntry{})
	gob.Register(NewMessage{})
	gob.Register(NewServer{})
	gob.Register(ServerPing{})
	gob.Register(ServerQuit{})
	gob.Register(IntroduceServicesServer{})
	gob.Register(NewNetworkBan{})
	gob.Register(RemoveNetworkBan{})
	gob.Register(AccountUpdate{})
	gob.Register(NickRegistrationUpdate{})
	gob.Register(ChannelRegistrationUpdate{})
	gob.Register(ChannelAccessUpdate{})
	gob.Register(ChannelRoleUpdate{})
	gob.Register(NewAuditLogEntry{})
}
