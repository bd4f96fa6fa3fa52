package netstate

import "github.com/meshircd/core/internal/id"

// Change is the reducer's secondary output: a tagged, observable delta
// consumed by the client command layer and the history log (spec.md
// §4.4). Unlike Details, Change values are never replicated - only the
// Event that produced them crosses the wire.
type Change interface {
	ChangeKind() string
}

// Sink receives Change values as the reducer produces them, in the order
// the events that caused them were applied. The command layer and history
// log are typical sinks.
type Sink func(Change)

type NewUser struct {
	User     id.UserID
	Nickname id.Nickname
	Username id.Username
	Hostname id.Hostname
	Realname string
}

func (NewUser) ChangeKind() string { return "NewUser" }

type NewUserConnection struct {
	User id.UserID
}

func (NewUserConnection) ChangeKind() string { return "NewUserConnection" }

type UserConnectionDisconnected struct {
	User   id.UserID
	Reason string
}

func (UserConnectionDisconnected) ChangeKind() string { return "UserConnectionDisconnected" }

type UserNickChange struct {
	User         id.UserID
	OldNickname  id.Nickname
	NewNickname  id.Nickname
	WasCollision bool
}

func (UserNickChange) ChangeKind() string { return "UserNickChange" }

type UserModeChange struct {
	User    id.UserID
	Added   string
	Removed string
}

func (UserModeChange) ChangeKind() string { return "UserModeChange" }

type UserAwayChange struct {
	User   id.UserID
	Reason *string
}

func (UserAwayChange) ChangeKind() string { return "UserAwayChange" }

type UserLoginChange struct {
	User    id.UserID
	Account *id.AccountID
}

func (UserLoginChange) ChangeKind() string { return "UserLoginChange" }

// UserQuit carries the affected memberships so the command layer can
// notify every channel the user was in without a further state lookup -
// by the time this Change is observed, the membership rows are already
// gone from NetworkState.
type UserQuit struct {
	User        id.UserID
	Historic    HistoricUser
	Reason      string
	Memberships []id.MembershipID
}

func (UserQuit) ChangeKind() string { return "UserQuit" }

type NewChannel struct {
	Channel id.ChannelID
	Name    id.ChannelName
}

func (NewChannel) ChangeKind() string { return "NewChannel" }

type ChannelRename struct {
	Channel id.ChannelID
	OldName id.ChannelName
	NewName id.ChannelName
}

func (ChannelRename) ChangeKind() string { return "ChannelRename" }

type ChannelJoin struct {
	User       id.UserID
	Channel    id.ChannelID
	Membership id.MembershipID
	GrantedOp  bool
}

func (ChannelJoin) ChangeKind() string { return "ChannelJoin" }

type ChannelPart struct {
	User    id.UserID
	Channel id.ChannelID
	Reason  string
}

func (ChannelPart) ChangeKind() string { return "ChannelPart" }

type ChannelKick struct {
	Kicker  id.UserID
	User    id.UserID
	Channel id.ChannelID
	Reason  string
}

func (ChannelKick) ChangeKind() string { return "ChannelKick" }

type ChannelInvite struct {
	Source  id.UserID
	User    id.UserID
	Channel id.ChannelID
}

func (ChannelInvite) ChangeKind() string { return "ChannelInvite" }

type ChannelModeChange struct {
	Source  id.UserID
	Channel id.ChannelID
	Added   string
	Removed string
}

func (ChannelModeChange) ChangeKind() string { return "ChannelModeChange" }

type ChannelTopicChange struct {
	Channel id.ChannelID
	Source  id.UserID
	Text    string
}

func (ChannelTopicChange) ChangeKind() string { return "ChannelTopicChange" }

type ListModeAdded struct {
	Channel id.ChannelID
	Type    int
	Pattern string
	SetBy   string
}

func (ListModeAdded) ChangeKind() string { return "ListModeAdded" }

type ListModeRemoved struct {
	Channel id.ChannelID
	Type    int
	Pattern string
}

func (ListModeRemoved) ChangeKind() string { return "ListModeRemoved" }

type MembershipFlagChange struct {
	Membership id.MembershipID
	Added      string
	Removed    string
}

func (MembershipFlagChange) ChangeKind() string { return "MembershipFlagChange" }

type NewMessage struct {
	ID       id.MessageID
	Source   id.UserID
	Target   id.ObjectID
	Text     string
	IsNotice bool
}

func (NewMessage) ChangeKind() string { return "NewMessage" }

type NewServer struct {
	Server id.ServerID
	Name   string
}

func (NewServer) ChangeKind() string { return "NewServer" }

type ServerQuit struct {
	Server  id.ServerID
	Reason  string
	Removed []id.UserID // users removed as a side effect
}

func (ServerQuit) ChangeKind() string { return "ServerQuit" }

type NewAuditLogEntry struct {
	Entry    id.AuditLogEntryID
	Category string
	Text     string
}

func (NewAuditLogEntry) ChangeKind() string { return "NewAuditLogEntry" }

type ServicesUpdate struct {
	Server *id.ServerID
}

func (ServicesUpdate) ChangeKind() string { return "ServicesUpdate" }

type NewNetworkBan struct {
	Ban     id.NetworkBanID
	Pattern string
	Reason  string
}

func (NewNetworkBan) ChangeKind() string { return "NewNetworkBan" }

type RemoveNetworkBan struct {
	Ban id.NetworkBanID
}

func (RemoveNetworkBan) ChangeKind() string { return "RemoveNetworkBan" }

type AccountUpdate struct {
	Account id.AccountID
	Name    string
	Deleted bool
}

func (AccountUpdate) ChangeKind() string { return "AccountUpdate" }

type NickRegistrationUpdate struct {
	Account  id.AccountID
	Nickname id.Nickname
	Deleted  bool
}

func (NickRegistrationUpdate) ChangeKind() string { return "NickRegistrationUpdate" }

type ChannelRegistrationUpdate struct {
	Registration id.ChannelRegistrationID
	Name         id.ChannelName
	Deleted      bool
}

func (ChannelRegistrationUpdate) ChangeKind() string { return "ChannelRegistrationUpdate" }

type ChannelAccessUpdate struct {
	Access  id.ChannelAccessID
	Roles   []string
	Deleted bool
}

func (ChannelAccessUpdate) ChangeKind() string { return "ChannelAccessUpdate" }

type ChannelRoleUpdate struct {
	Registration id.ChannelRegistrationID
	RoleName     string
	Deleted      bool
}

func (ChannelRoleUpdate) ChangeKind() string { return "ChannelRoleUpdate" }

// EventComplete is always emitted last for a given event, after any other
// Change values it produced, so that subscribers who only care about
// "did this event finish" don't need to inspect every variant.
type EventComplete struct{}

func (EventComplete) ChangeKind() string { return "EventComplete" }
