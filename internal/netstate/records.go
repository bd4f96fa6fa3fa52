// Package netstate implements the network state reducer: the
// deterministic function that applies one event to the shared network
// model (spec.md §3, §4.3) and emits the state-change stream (§4.4).
package netstate

import (
	"github.com/meshircd/core/internal/ban"
	"github.com/meshircd/core/internal/event"
	"github.com/meshircd/core/internal/id"
)

// ModeSet is a set of single-character mode flags, e.g. channel modes
// "nt" or user modes "io".
type ModeSet map[byte]bool

func NewModeSet(chars string) ModeSet {
	m := make(ModeSet, len(chars))
	for i := 0; i < len(chars); i++ {
		m[chars[i]] = true
	}
	return m
}

func (m ModeSet) Apply(added, removed string) {
	for i := 0; i < len(removed); i++ {
		delete(m, removed[i])
	}
	for i := 0; i < len(added); i++ {
		m[added[i]] = true
	}
}

func (m ModeSet) Has(c byte) bool { return m[c] }

func (m ModeSet) String() string {
	out := make([]byte, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	return string(out)
}

// Membership permission flags.
const (
	FlagOp     = 'o'
	FlagVoice  = 'v'
	FlagHalfOp = 'h'
)

// HistoricUser is a point-in-time snapshot of the identity a user
// presented, retained after they change nick, log in/out or quit so that
// messages generated before the change (e.g. a QUIT line) still carry a
// consistent source identity. Spec.md §3, "History of user-visible
// snapshots".
type HistoricUser struct {
	Serial   int64
	User     id.UserID
	Nickname id.Nickname
	Username id.Username
	Hostname id.Hostname
	Account  *id.AccountID
}

// UserRecord is a live user on the network.
type UserRecord struct {
	ID               id.UserID
	Nickname         id.Nickname
	Username         id.Username
	Hostname         id.Hostname
	Realname         string
	Modes            ModeSet
	Away             *string
	Account          *id.AccountID
	SessionKeyHash   string // for connection resumption; empty if none
	Persistent       bool   // survives its introducing server's departure
	NickSetAt        int64
	NickSetByEvent   id.EventID
	LatestHistoric   int64 // serial of the most recent HistoricUser snapshot
}

// NickBinding records which user currently holds a nickname.
type NickBinding struct {
	User      id.UserID
	Timestamp int64
	SetByEvent id.EventID
}

// ChannelRecord is a live channel.
type ChannelRecord struct {
	ID             id.ChannelID
	Name           id.ChannelName
	Created        int64
	CreatedByEvent id.EventID
	Modes          ModeSet
	Key            *string
	Limit          *int
	Topic          *TopicInfo
}

type TopicInfo struct {
	Text   string
	SetBy  id.UserID
	SetAt  int64
}

// MembershipRecord is a live (user, channel) membership.
type MembershipRecord struct {
	ID    id.MembershipID
	Flags ModeSet
}

// ListModeEntry is one entry in a channel's ban/except/invex/quiet list.
type ListModeEntry struct {
	Pattern string
	SetBy   string
	SetAt   int64
}

type AccountRecord struct {
	ID       id.AccountID
	Name     string
	PassHash string
	Nicks    map[id.Nickname]bool
}

type ChannelRegistrationRecord struct {
	ID        id.ChannelRegistrationID
	Name      id.ChannelName
	FoundedAt int64
	Roles     map[string]RoleRecord
}

type RoleRecord struct {
	Name  string
	Flags string
}

type ChannelAccessRecord struct {
	ID    id.ChannelAccessID
	Roles []string
}

// NetworkState is the authoritative, value-typed representation of the
// network on this node (spec.md §3). All mutation happens through the
// Reducer; readers should go through a View, not this struct directly,
// though the fields are exported for serialization.
type NetworkState struct {
	Servers     map[id.ServerID]event.ServerInfo
	Users       map[id.UserID]*UserRecord
	Nicks       map[id.CasefoldedNickname]NickBinding
	Channels    map[id.ChannelID]*ChannelRecord
	ChannelByName map[id.CasefoldedChannelName]id.ChannelID
	Memberships map[id.MembershipID]*MembershipRecord
	// MembersOf/ChannelsOf are derived indexes kept in lockstep with
	// Memberships so channel->members and user->channels navigation
	// doesn't require a full scan.
	MembersOf  map[id.ChannelID]map[id.UserID]bool
	ChannelsOf map[id.UserID]map[id.ChannelID]bool

	ListModes map[id.ChannelID]map[event.ListModeType]map[string]ListModeEntry

	Bans *ban.Repository

	Accounts             map[id.AccountID]*AccountRecord
	ChannelRegistrations map[id.ChannelRegistrationID]*ChannelRegistrationRecord
	ChannelAccess        map[id.ChannelAccessID]*ChannelAccessRecord

	ServicesServer *id.ServerID

	Historic     map[id.UserID][]HistoricUser
	historySerial int64
}

// New returns an empty NetworkState.
func New() *NetworkState {
	return &NetworkState{
		Servers:              make(map[id.ServerID]event.ServerInfo),
		Users:                make(map[id.UserID]*UserRecord),
		Nicks:                make(map[id.CasefoldedNickname]NickBinding),
		Channels:             make(map[id.ChannelID]*ChannelRecord),
		ChannelByName:        make(map[id.CasefoldedChannelName]id.ChannelID),
		Memberships:          make(map[id.MembershipID]*MembershipRecord),
		MembersOf:            make(map[id.ChannelID]map[id.UserID]bool),
		ChannelsOf:           make(map[id.UserID]map[id.ChannelID]bool),
		ListModes:            make(map[id.ChannelID]map[event.ListModeType]map[string]ListModeEntry),
		Bans:                 ban.NewRepository(),
		Accounts:             make(map[id.AccountID]*AccountRecord),
		ChannelRegistrations: make(map[id.ChannelRegistrationID]*ChannelRegistrationRecord),
		ChannelAccess:        make(map[id.ChannelAccessID]*ChannelAccessRecord),
		Historic:             make(map[id.UserID][]HistoricUser),
	}
}

func (s *NetworkState) snapshotHistoric(u *UserRecord) {
	s.historySerial++
	s.Historic[u.ID] = append(s.Historic[u.ID], HistoricUser{
		Serial:   s.historySerial,
		User:     u.ID,
		Nickname: u.Nickname,
		Username: u.Username,
		Hostname: u.Hostname,
		Account:  u.Account,
	})
}

func (s *NetworkState) addMembership(m *MembershipRecord) {
	s.Memberships[m.ID] = m
	if s.MembersOf[m.ID.Channel] == nil {
		s.MembersOf[m.ID.Channel] = make(map[id.UserID]bool)
	}
	s.MembersOf[m.ID.Channel][m.ID.User] = true
	if s.ChannelsOf[m.ID.User] == nil {
		s.ChannelsOf[m.ID.User] = make(map[id.ChannelID]bool)
	}
	s.ChannelsOf[m.ID.User][m.ID.Channel] = true
}

func (s *NetworkState) removeMembership(mid id.MembershipID) {
	delete(s.Memberships, mid)
	delete(s.MembersOf[mid.Channel], mid.User)
	delete(s.ChannelsOf[mid.User], mid.Channel)
}
