package netstate

import (
	"github.com/meshircd/core/internal/event"
	"github.com/meshircd/core/internal/id"
)

// A view wraps a borrow of the NetworkState plus a borrow of one entity,
// giving read-only navigation from that entity to its neighbors without
// exposing the backing maps (spec.md §3, "ownership model for read
// access"). Views are only valid for the lifetime of the Reducer.View
// callback that produced them.

type UserView struct {
	state *NetworkState
	rec   *UserRecord
}

func (s *NetworkState) User(u id.UserID) (UserView, bool) {
	rec, ok := s.Users[u]
	if !ok {
		return UserView{}, false
	}
	return UserView{state: s, rec: rec}, true
}

func (v UserView) ID() id.UserID          { return v.rec.ID }
func (v UserView) Nickname() id.Nickname  { return v.rec.Nickname }
func (v UserView) Username() id.Username  { return v.rec.Username }
func (v UserView) Hostname() id.Hostname  { return v.rec.Hostname }
func (v UserView) Realname() string       { return v.rec.Realname }
func (v UserView) Away() *string          { return v.rec.Away }
func (v UserView) Account() *id.AccountID { return v.rec.Account }
func (v UserView) Modes() ModeSet         { return v.rec.Modes }

// Channels returns every channel this user currently has a membership
// in.
func (v UserView) Channels() []ChannelView {
	out := make([]ChannelView, 0, len(v.state.ChannelsOf[v.rec.ID]))
	for ch := range v.state.ChannelsOf[v.rec.ID] {
		if cv, ok := v.state.Channel(ch); ok {
			out = append(out, cv)
		}
	}
	return out
}

// Membership returns this user's membership record in ch, if any.
func (v UserView) Membership(ch id.ChannelID) (MembershipRecord, bool) {
	m, ok := v.state.Memberships[id.MembershipID{User: v.rec.ID, Channel: ch}]
	if !ok {
		return MembershipRecord{}, false
	}
	return *m, true
}

type ChannelView struct {
	state *NetworkState
	rec   *ChannelRecord
}

func (s *NetworkState) Channel(c id.ChannelID) (ChannelView, bool) {
	rec, ok := s.Channels[c]
	if !ok {
		return ChannelView{}, false
	}
	return ChannelView{state: s, rec: rec}, true
}

// ChannelByCasefoldedName looks a channel up by its current casefolded name.
func (s *NetworkState) ChannelByCasefoldedName(name id.CasefoldedChannelName) (ChannelView, bool) {
	cid, ok := s.ChannelByName[name]
	if !ok {
		return ChannelView{}, false
	}
	return s.Channel(cid)
}

func (v ChannelView) ID() id.ChannelID   { return v.rec.ID }
func (v ChannelView) Name() id.ChannelName { return v.rec.Name }
func (v ChannelView) Created() int64     { return v.rec.Created }
func (v ChannelView) Modes() ModeSet     { return v.rec.Modes }
func (v ChannelView) Key() *string       { return v.rec.Key }
func (v ChannelView) Limit() *int        { return v.rec.Limit }
func (v ChannelView) Topic() *TopicInfo  { return v.rec.Topic }

// Members returns the users currently joined to this channel. Order is
// unspecified.
func (v ChannelView) Members() []UserView {
	out := make([]UserView, 0, len(v.state.MembersOf[v.rec.ID]))
	for u := range v.state.MembersOf[v.rec.ID] {
		if uv, ok := v.state.User(u); ok {
			out = append(out, uv)
		}
	}
	return out
}

func (v ChannelView) MemberCount() int {
	return len(v.state.MembersOf[v.rec.ID])
}

func (v ChannelView) ListEntries(t event.ListModeType) []ListModeEntry {
	byType := v.state.ListModes[v.rec.ID]
	if byType == nil {
		return nil
	}
	entries := byType[t]
	out := make([]ListModeEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	return out
}
