package id

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync/atomic"
)

// Each network-visible object type has its own ID struct carrying the
// ServerID that minted it plus a per-server sequence number, matching the
// (ServerId, sequence) shape the teacher's object-id generators produce
// for every "sequential" id kind.

type UserID struct {
	Server ServerID
	Seq    int64
}

type ChannelID struct {
	Server ServerID
	Seq    int64
}

type NetworkBanID struct {
	Server ServerID
	Seq    int64
}

type AccountID struct {
	Server ServerID
	Seq    int64
}

type ChannelRegistrationID struct {
	Server ServerID
	Seq    int64
}

type MessageID struct {
	Server ServerID
	Seq    int64
}

type AuditLogEntryID struct {
	Server ServerID
	Seq    int64
}

// MembershipID and ChannelAccessID are composite: they name an existing
// pair of objects rather than minting a fresh sequence number.

type MembershipID struct {
	User    UserID
	Channel ChannelID
}

type ChannelAccessID struct {
	Account      AccountID
	Registration ChannelRegistrationID
}

func (i UserID) String() string       { return fmt.Sprintf("U:%d.%d", i.Server, i.Seq) }
func (i ChannelID) String() string    { return fmt.Sprintf("C:%d.%d", i.Server, i.Seq) }
func (i NetworkBanID) String() string { return fmt.Sprintf("B:%d.%d", i.Server, i.Seq) }
func (i AccountID) String() string    { return fmt.Sprintf("A:%d.%d", i.Server, i.Seq) }
func (i ChannelRegistrationID) String() string {
	return fmt.Sprintf("R:%d.%d", i.Server, i.Seq)
}
func (i MessageID) String() string      { return fmt.Sprintf("M:%d.%d", i.Server, i.Seq) }
func (i AuditLogEntryID) String() string { return fmt.Sprintf("L:%d.%d", i.Server, i.Seq) }
func (i MembershipID) String() string   { return fmt.Sprintf("%v@%v", i.User, i.Channel) }
func (i ChannelAccessID) String() string {
	return fmt.Sprintf("%v/%v", i.Account, i.Registration)
}

// Kind tags the variant held by an ObjectID.
type Kind uint8

const (
	KindUser Kind = iota
	KindChannel
	KindMembership
	KindNetworkBan
	KindAccount
	KindChannelRegistration
	KindChannelAccess
	KindMessage
	KindAuditLogEntry
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "User"
	case KindChannel:
		return "Channel"
	case KindMembership:
		return "Membership"
	case KindNetworkBan:
		return "NetworkBan"
	case KindAccount:
		return "Account"
	case KindChannelRegistration:
		return "ChannelRegistration"
	case KindChannelAccess:
		return "ChannelAccess"
	case KindMessage:
		return "Message"
	case KindAuditLogEntry:
		return "AuditLogEntry"
	default:
		return "Unknown"
	}
}

// WrongKindError is returned when converting an ObjectID to a concrete
// variant whose Kind does not match the one it actually holds.
type WrongKindError struct {
	Want, Have Kind
}

func (e WrongKindError) Error() string {
	return fmt.Sprintf("object id holds a %v, not a %v", e.Have, e.Want)
}

// ObjectID is a closed sum type over every network-visible object id.
// Exactly one of its fields is meaningful, selected by Kind; use the As*
// accessors rather than reading fields directly.
type ObjectID struct {
	Kind Kind

	user       UserID
	channel    ChannelID
	membership MembershipID
	ban        NetworkBanID
	account    AccountID
	chanReg    ChannelRegistrationID
	chanAccess ChannelAccessID
	message    MessageID
	audit      AuditLogEntryID
}

func FromUserID(v UserID) ObjectID             { return ObjectID{Kind: KindUser, user: v} }
func FromChannelID(v ChannelID) ObjectID        { return ObjectID{Kind: KindChannel, channel: v} }
func FromMembershipID(v MembershipID) ObjectID  { return ObjectID{Kind: KindMembership, membership: v} }
func FromNetworkBanID(v NetworkBanID) ObjectID  { return ObjectID{Kind: KindNetworkBan, ban: v} }
func FromAccountID(v AccountID) ObjectID        { return ObjectID{Kind: KindAccount, account: v} }
func FromChannelRegistrationID(v ChannelRegistrationID) ObjectID {
	return ObjectID{Kind: KindChannelRegistration, chanReg: v}
}
func FromChannelAccessID(v ChannelAccessID) ObjectID {
	return ObjectID{Kind: KindChannelAccess, chanAccess: v}
}
func FromMessageID(v MessageID) ObjectID       { return ObjectID{Kind: KindMessage, message: v} }
func FromAuditLogEntryID(v AuditLogEntryID) ObjectID {
	return ObjectID{Kind: KindAuditLogEntry, audit: v}
}

func (o ObjectID) AsUserID() (UserID, error) {
	if o.Kind != KindUser {
		return UserID{}, WrongKindError{KindUser, o.Kind}
	}
	return o.user, nil
}

func (o ObjectID) AsChannelID() (ChannelID, error) {
	if o.Kind != KindChannel {
		return ChannelID{}, WrongKindError{KindChannel, o.Kind}
	}
	return o.channel, nil
}

func (o ObjectID) AsMembershipID() (MembershipID, error) {
	if o.Kind != KindMembership {
		return MembershipID{}, WrongKindError{KindMembership, o.Kind}
	}
	return o.membership, nil
}

func (o ObjectID) AsNetworkBanID() (NetworkBanID, error) {
	if o.Kind != KindNetworkBan {
		return NetworkBanID{}, WrongKindError{KindNetworkBan, o.Kind}
	}
	return o.ban, nil
}

func (o ObjectID) AsAccountID() (AccountID, error) {
	if o.Kind != KindAccount {
		return AccountID{}, WrongKindError{KindAccount, o.Kind}
	}
	return o.account, nil
}

func (o ObjectID) AsChannelRegistrationID() (ChannelRegistrationID, error) {
	if o.Kind != KindChannelRegistration {
		return ChannelRegistrationID{}, WrongKindError{KindChannelRegistration, o.Kind}
	}
	return o.chanReg, nil
}

func (o ObjectID) AsChannelAccessID() (ChannelAccessID, error) {
	if o.Kind != KindChannelAccess {
		return ChannelAccessID{}, WrongKindError{KindChannelAccess, o.Kind}
	}
	return o.chanAccess, nil
}

func (o ObjectID) AsMessageID() (MessageID, error) {
	if o.Kind != KindMessage {
		return MessageID{}, WrongKindError{KindMessage, o.Kind}
	}
	return o.message, nil
}

func (o ObjectID) AsAuditLogEntryID() (AuditLogEntryID, error) {
	if o.Kind != KindAuditLogEntry {
		return AuditLogEntryID{}, WrongKindError{KindAuditLogEntry, o.Kind}
	}
	return o.audit, nil
}

func (o ObjectID) String() string {
	switch o.Kind {
	case KindUser:
		return o.user.String()
	case KindChannel:
		return o.channel.String()
	case KindMembership:
		return o.membership.String()
	case KindNetworkBan:
		return o.ban.String()
	case KindAccount:
		return o.account.String()
	case KindChannelRegistration:
		return o.chanReg.String()
	case KindChannelAccess:
		return o.chanAccess.String()
	case KindMessage:
		return o.message.String()
	case KindAuditLogEntry:
		return o.audit.String()
	default:
		return "ObjectID(?)"
	}
}

// Generator mints fresh object ids for every sequential id kind, scoped to
// one server. One Generator is created per node at startup and shared by
// every handler that needs to create a new object.
type Generator struct {
	server ServerID

	userSeq    atomic.Int64
	channelSeq atomic.Int64
	banSeq     atomic.Int64
	accountSeq atomic.Int64
	chanRegSeq atomic.Int64
	messageSeq atomic.Int64
	auditSeq   atomic.Int64
}

// NewGenerator returns a Generator that mints ids stamped with the given
// server id.
func NewGenerator(server ServerID) *Generator {
	return &Generator{server: server}
}

func (g *Generator) NextUserID() UserID {
	return UserID{Server: g.server, Seq: g.userSeq.Add(1)}
}

func (g *Generator) NextChannelID() ChannelID {
	return ChannelID{Server: g.server, Seq: g.channelSeq.Add(1)}
}

func (g *Generator) NextNetworkBanID() NetworkBanID {
	return NetworkBanID{Server: g.server, Seq: g.banSeq.Add(1)}
}

func (g *Generator) NextAccountID() AccountID {
	return AccountID{Server: g.server, Seq: g.accountSeq.Add(1)}
}

func (g *Generator) NextChannelRegistrationID() ChannelRegistrationID {
	return ChannelRegistrationID{Server: g.server, Seq: g.chanRegSeq.Add(1)}
}

func (g *Generator) NextMessageID() MessageID {
	return MessageID{Server: g.server, Seq: g.messageSeq.Add(1)}
}

func (g *Generator) NextAuditLogEntryID() AuditLogEntryID {
	return AuditLogEntryID{Server: g.server, Seq: g.auditSeq.Add(1)}
}

// gobObjectID mirrors ObjectID with exported fields so it can round-trip
// through encoding/gob, which cannot see unexported struct fields.
type gobObjectID struct {
	Kind       Kind
	User       UserID
	Channel    ChannelID
	Membership MembershipID
	Ban        NetworkBanID
	Account    AccountID
	ChanReg    ChannelRegistrationID
	ChanAccess ChannelAccessID
	Message    MessageID
	Audit      AuditLogEntryID
}

func (o ObjectID) GobEncode() ([]byte, error) {
	g := gobObjectID{
		Kind: o.Kind, User: o.user, Channel: o.channel, Membership: o.membership,
		Ban: o.ban, Account: o.account, ChanReg: o.chanReg, ChanAccess: o.chanAccess,
		Message: o.message, Audit: o.audit,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *ObjectID) GobDecode(data []byte) error {
	var g gobObjectID
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return err
	}
	*o = ObjectID{
		Kind: g.Kind, user: g.User, channel: g.Channel, membership: g.Membership,
		ban: g.Ban, account: g.Account, chanReg: g.ChanReg, chanAccess: g.ChanAccess,
		message: g.Message, audit: g.Audit,
	}
	return nil
}
