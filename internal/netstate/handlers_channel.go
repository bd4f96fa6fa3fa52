package netstate

import (
	"strings"

	"github.com/meshircd/core/internal/event"
	"github.com/meshircd/core/internal/id"
)

func applyNewChannel(s *NetworkState, e event.Event, d event.NewChannel, sink Sink) error {
	if _, exists := s.Channels[d.Channel]; exists {
		return conflictError{"Channel", d.Channel.String()}
	}
	ch := &ChannelRecord{
		ID:             d.Channel,
		Name:           d.Name,
		Created:        d.Created,
		CreatedByEvent: e.ID,
		Modes:          NewModeSet("nt"),
	}
	s.Channels[d.Channel] = ch
	bindChannelName(s, ch, d.Name, d.Created, e.ID, sink)

	sink(NewChannel{Channel: d.Channel, Name: ch.Name})
	return nil
}

// bindChannelName resolves a channel's claim to name under the same
// (timestamp ascending, event id ascending) rule used for nicknames
// (spec.md §4.3).
func bindChannelName(s *NetworkState, ch *ChannelRecord, name id.ChannelName, at int64, evID id.EventID, sink Sink) {
	folded := id.FoldChannelName(name)

	if existingID, ok := s.ChannelByName[folded]; ok && existingID != ch.ID {
		existing := s.Channels[existingID]
		if winsCollision(at, evID, existing.Created, existing.CreatedByEvent) {
			oldName := existing.Name
			newName := collisionChannelName(existing.ID)
			delete(s.ChannelByName, folded)
			existing.Name = newName
			s.ChannelByName[id.FoldChannelName(newName)] = existing.ID
			sink(ChannelRename{Channel: existing.ID, OldName: oldName, NewName: newName})
		} else {
			name = collisionChannelName(ch.ID)
			folded = id.FoldChannelName(name)
		}
	}

	ch.Name = name
	s.ChannelByName[folded] = ch.ID
}

func applyChannelJoin(s *NetworkState, e event.Event, d event.ChannelJoin, sink Sink) error {
	if _, ok := s.Channels[d.Channel]; !ok {
		return lookupError{"Channel", d.Channel.String()}
	}
	if _, ok := s.Users[d.User]; !ok {
		return lookupError{"User", d.User.String()}
	}

	mid := id.MembershipID{User: d.User, Channel: d.Channel}
	if _, exists := s.Memberships[mid]; exists {
		return nil
	}

	grantedOp := len(s.MembersOf[d.Channel]) == 0
	flags := NewModeSet("")
	if grantedOp {
		flags.Apply(string(FlagOp), "")
	}
	s.addMembership(&MembershipRecord{ID: mid, Flags: flags})

	sink(ChannelJoin{User: d.User, Channel: d.Channel, Membership: mid, GrantedOp: grantedOp})
	return nil
}

func applyChannelPart(s *NetworkState, e event.Event, d event.ChannelPart, sink Sink) error {
	mid := id.MembershipID{User: d.User, Channel: d.Channel}
	if _, ok := s.Memberships[mid]; !ok {
		return lookupError{"Membership", mid.String()}
	}
	s.removeMembership(mid)
	sink(ChannelPart{User: d.User, Channel: d.Channel, Reason: d.Reason})
	return nil
}

func applyChannelKick(s *NetworkState, e event.Event, d event.ChannelKick, sink Sink) error {
	mid := id.MembershipID{User: d.User, Channel: d.Channel}
	if _, ok := s.Memberships[mid]; !ok {
		return lookupError{"Membership", mid.String()}
	}
	s.removeMembership(mid)
	sink(ChannelKick{Kicker: d.Kicker, User: d.User, Channel: d.Channel, Reason: d.Reason})
	return nil
}

func applyChannelInvite(s *NetworkState, e event.Event, d event.ChannelInvite, sink Sink) error {
	if _, ok := s.Channels[d.Channel]; !ok {
		return lookupError{"Channel", d.Channel.String()}
	}
	sink(ChannelInvite{Source: d.Source, User: d.User, Channel: d.Channel})
	return nil
}

func applyChannelModeChange(s *NetworkState, e event.Event, d event.ChannelModeChange, sink Sink) error {
	ch, ok := s.Channels[d.Channel]
	if !ok {
		return lookupError{"Channel", d.Channel.String()}
	}
	ch.Modes.Apply(d.Added, d.Removed)
	if strings.ContainsRune(d.Removed, 'k') {
		ch.Key = nil
	}
	if d.Key != nil {
		ch.Key = d.Key
	}
	if strings.ContainsRune(d.Removed, 'l') {
		ch.Limit = nil
	}
	if d.Limit != nil {
		ch.Limit = d.Limit
	}
	sink(ChannelModeChange{Source: d.Source, Channel: d.Channel, Added: d.Added, Removed: d.Removed})
	return nil
}

func applyNewChannelTopic(s *NetworkState, e event.Event, d event.NewChannelTopic, sink Sink) error {
	ch, ok := s.Channels[d.Channel]
	if !ok {
		return lookupError{"Channel", d.Channel.String()}
	}
	ch.Topic = &TopicInfo{Text: d.Text, SetBy: d.Source, SetAt: d.SetAt}
	sink(ChannelTopicChange{Channel: d.Channel, Source: d.Source, Text: d.Text})
	return nil
}

func applyMembershipFlagChange(s *NetworkState, e event.Event, d event.MembershipFlagChange, sink Sink) error {
	m, ok := s.Memberships[d.Membership]
	if !ok {
		return lookupError{"Membership", d.Membership.String()}
	}
	m.Flags.Apply(d.Added, d.Removed)
	sink(MembershipFlagChange{Membership: d.Membership, Added: d.Added, Removed: d.Removed})
	return nil
}

func applyNewListModeEntry(s *NetworkState, e event.Event, d event.NewListModeEntry, sink Sink) error {
	if _, ok := s.Channels[d.Channel]; !ok {
		return lookupError{"Channel", d.Channel.String()}
	}
	if s.ListModes[d.Channel] == nil {
		s.ListModes[d.Channel] = make(map[event.ListModeType]map[string]ListModeEntry)
	}
	if s.ListModes[d.Channel][d.Type] == nil {
		s.ListModes[d.Channel][d.Type] = make(map[string]ListModeEntry)
	}
	s.ListModes[d.Channel][d.Type][d.Pattern] = ListModeEntry{Pattern: d.Pattern, SetBy: d.SetBy, SetAt: d.SetAt}

	sink(ListModeAdded{Channel: d.Channel, Type: int(d.Type), Pattern: d.Pattern, SetBy: d.SetBy})
	return nil
}

func applyRemoveListModeEntry(s *NetworkState, e event.Event, d event.RemoveListModeEntry, sink Sink) error {
	if s.ListModes[d.Channel] == nil || s.ListModes[d.Channel][d.Type] == nil {
		return nil
	}
	delete(s.ListModes[d.Channel][d.Type], d.Pattern)
	sink(ListModeRemoved{Channel: d.Channel, Type: int(d.Type), Pattern: d.Pattern})
	return nil
}

func applyNewMessage(s *NetworkState, e event.Event, d event.NewMessage, sink Sink) error {
	sink(NewMessage{ID: d.ID, Source: d.Source, Target: d.Target, Text: d.Text, IsNotice: d.IsNotice})
	return nil
}
