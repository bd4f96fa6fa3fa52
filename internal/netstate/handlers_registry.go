package netstate

import (
	"github.com/meshircd/core/internal/ban"
	"github.com/meshircd/core/internal/event"
	"github.com/meshircd/core/internal/id"
)

// applyNewNetworkBan inserts a ban, resolving duplicate patterns per
// ban.Repository's timestamp/creator rule. A losing duplicate mutates
// nothing and is silently dropped, matching the Add contract.
func applyNewNetworkBan(s *NetworkState, e event.Event, d event.NewNetworkBan, sink Sink) error {
	err := s.Bans.Add(ban.Entry{
		ID: d.Ban, Pattern: d.Pattern, Reason: d.Reason,
		SetBy: d.SetBy, SetAt: d.SetAt, ExpiresAt: d.ExpiresAt,
	})
	if err != nil {
		return err
	}
	if _, ok := s.Bans.Get(d.Ban); !ok {
		return nil
	}
	sink(NewNetworkBan{Ban: d.Ban, Pattern: d.Pattern, Reason: d.Reason})
	return nil
}

func applyRemoveNetworkBan(s *NetworkState, e event.Event, d event.RemoveNetworkBan, sink Sink) error {
	s.Bans.Remove(d.Ban)
	sink(RemoveNetworkBan{Ban: d.Ban})
	return nil
}

func applyAccountUpdate(s *NetworkState, e event.Event, d event.AccountUpdate, sink Sink) error {
	if d.Deleted {
		delete(s.Accounts, d.Account)
		sink(AccountUpdate{Account: d.Account, Deleted: true})
		return nil
	}
	rec, ok := s.Accounts[d.Account]
	if !ok {
		rec = &AccountRecord{ID: d.Account, Nicks: make(map[id.Nickname]bool)}
		s.Accounts[d.Account] = rec
	}
	rec.Name = d.Name
	rec.PassHash = d.PassHash
	sink(AccountUpdate{Account: d.Account, Name: d.Name})
	return nil
}

func applyNickRegistrationUpdate(s *NetworkState, e event.Event, d event.NickRegistrationUpdate, sink Sink) error {
	acc, ok := s.Accounts[d.Account]
	if !ok {
		return lookupError{"Account", d.Account.String()}
	}
	if d.Deleted {
		delete(acc.Nicks, d.Nickname)
	} else {
		acc.Nicks[d.Nickname] = true
	}
	sink(NickRegistrationUpdate{Account: d.Account, Nickname: d.Nickname, Deleted: d.Deleted})
	return nil
}

func applyChannelRegistrationUpdate(s *NetworkState, e event.Event, d event.ChannelRegistrationUpdate, sink Sink) error {
	if d.Deleted {
		delete(s.ChannelRegistrations, d.Registration)
		sink(ChannelRegistrationUpdate{Registration: d.Registration, Deleted: true})
		return nil
	}
	rec, ok := s.ChannelRegistrations[d.Registration]
	if !ok {
		rec = &ChannelRegistrationRecord{ID: d.Registration, Roles: make(map[string]RoleRecord)}
		s.ChannelRegistrations[d.Registration] = rec
	}
	rec.Name = d.Name
	rec.FoundedAt = d.FoundedAt
	sink(ChannelRegistrationUpdate{Registration: d.Registration, Name: d.Name})
	return nil
}

func applyChannelAccessUpdate(s *NetworkState, e event.Event, d event.ChannelAccessUpdate, sink Sink) error {
	if d.Deleted {
		delete(s.ChannelAccess, d.Access)
		sink(ChannelAccessUpdate{Access: d.Access, Deleted: true})
		return nil
	}
	rec, ok := s.ChannelAccess[d.Access]
	if !ok {
		rec = &ChannelAccessRecord{ID: d.Access}
		s.ChannelAccess[d.Access] = rec
	}
	rec.Roles = d.Roles
	sink(ChannelAccessUpdate{Access: d.Access, Roles: d.Roles})
	return nil
}

func applyChannelRoleUpdate(s *NetworkState, e event.Event, d event.ChannelRoleUpdate, sink Sink) error {
	reg, ok := s.ChannelRegistrations[d.Registration]
	if !ok {
		return lookupError{"ChannelRegistration", d.Registration.String()}
	}
	if d.Deleted {
		delete(reg.Roles, d.RoleName)
	} else {
		reg.Roles[d.RoleName] = RoleRecord{Name: d.RoleName, Flags: d.Flags}
	}
	sink(ChannelRoleUpdate{Registration: d.Registration, RoleName: d.RoleName, Deleted: d.Deleted})
	return nil
}

func applyNewAuditLogEntry(s *NetworkState, e event.Event, d event.NewAuditLogEntry, sink Sink) error {
	sink(NewAuditLogEntry{Entry: d.Entry, Category: d.Category, Text: d.Text})
	return nil
}
