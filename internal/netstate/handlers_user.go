package netstate

import (
	"fmt"

	"github.com/meshircd/core/internal/event"
	"github.com/meshircd/core/internal/id"
)

func applyNewUser(s *NetworkState, e event.Event, d event.NewUser, sink Sink) error {
	if _, exists := s.Users[d.User]; exists {
		return fmt.Errorf("duplicate user %v", d.User)
	}

	user := &UserRecord{
		ID:             d.User,
		Username:       d.Username,
		Hostname:       d.Hostname,
		Realname:       d.Realname,
		Modes:          NewModeSet(""),
		Account:        d.Account,
		SessionKeyHash: d.SessionKeyHash,
		Persistent:     d.Persistent,
		NickSetAt:      e.Timestamp,
		NickSetByEvent: e.ID,
	}
	s.Users[d.User] = user
	bindNickname(s, user, d.Nickname, e.Timestamp, e.ID, sink)

	sink(NewUser{
		User:     d.User,
		Nickname: user.Nickname,
		Username: d.Username,
		Hostname: d.Hostname,
		Realname: d.Realname,
	})
	sink(NewUserConnection{User: d.User})
	return nil
}

func applyBindNickname(s *NetworkState, e event.Event, d event.BindNickname, sink Sink) error {
	user, ok := s.Users[d.User]
	if !ok {
		return lookupError{"User", d.User.String()}
	}
	old := user.Nickname
	bindNickname(s, user, d.Nickname, d.Timestamp, e.ID, sink)
	if user.Nickname != old {
		sink(UserNickChange{
			User:         d.User,
			OldNickname:  old,
			NewNickname:  user.Nickname,
			WasCollision: user.Nickname != d.Nickname,
		})
	}
	return nil
}

// bindNickname resolves d's request to hold nickname, applying the
// (timestamp ascending, event id ascending) collision rule against
// whoever currently holds it (spec.md §4.3 "Collision resolution for
// nicknames"). user.Nickname is left holding whatever name it ends up
// with - nickname itself, or a collision-renamed fallback.
func bindNickname(s *NetworkState, user *UserRecord, nickname id.Nickname, at int64, evID id.EventID, sink Sink) {
	folded := id.FoldNickname(nickname)

	if existing, ok := s.Nicks[folded]; ok && existing.User != user.ID {
		if winsCollision(at, evID, existing.Timestamp, existing.SetByEvent) {
			if loser, ok := s.Users[existing.User]; ok {
				oldNick := loser.Nickname
				newNick := collisionNickname(loser.ID)
				delete(s.Nicks, folded)
				loser.Nickname = newNick
				loser.NickSetAt = at
				loser.NickSetByEvent = evID
				s.Nicks[id.FoldNickname(newNick)] = NickBinding{User: loser.ID, Timestamp: at, SetByEvent: evID}
				sink(UserNickChange{User: loser.ID, OldNickname: oldNick, NewNickname: newNick, WasCollision: true})
			}
		} else {
			nickname = collisionNickname(user.ID)
			folded = id.FoldNickname(nickname)
		}
	}

	if old, ok := s.Nicks[id.FoldNickname(user.Nickname)]; ok && old.User == user.ID {
		delete(s.Nicks, id.FoldNickname(user.Nickname))
	}
	user.Nickname = nickname
	user.NickSetAt = at
	user.NickSetByEvent = evID
	s.Nicks[folded] = NickBinding{User: user.ID, Timestamp: at, SetByEvent: evID}
}

func applyUserQuit(s *NetworkState, e event.Event, d event.UserQuit, sink Sink) error {
	user, ok := s.Users[d.User]
	if !ok {
		return lookupError{"User", d.User.String()}
	}

	s.snapshotHistoric(user)
	hist := s.Historic[d.User][len(s.Historic[d.User])-1]

	var memberships []id.MembershipID
	for ch := range s.ChannelsOf[d.User] {
		mid := id.MembershipID{User: d.User, Channel: ch}
		memberships = append(memberships, mid)
		s.removeMembership(mid)
	}
	delete(s.ChannelsOf, d.User)

	if nb, ok := s.Nicks[id.FoldNickname(user.Nickname)]; ok && nb.User == d.User {
		delete(s.Nicks, id.FoldNickname(user.Nickname))
	}
	delete(s.Users, d.User)

	sink(UserQuit{User: d.User, Historic: hist, Reason: d.Reason, Memberships: memberships})
	return nil
}

func applyUserModeChange(s *NetworkState, e event.Event, d event.UserModeChange, sink Sink) error {
	user, ok := s.Users[d.User]
	if !ok {
		return lookupError{"User", d.User.String()}
	}
	user.Modes.Apply(d.Added, d.Removed)
	sink(UserModeChange{User: d.User, Added: d.Added, Removed: d.Removed})
	return nil
}

func applyUserAwayChange(s *NetworkState, e event.Event, d event.UserAwayChange, sink Sink) error {
	user, ok := s.Users[d.User]
	if !ok {
		return lookupError{"User", d.User.String()}
	}
	user.Away = d.Reason
	sink(UserAwayChange{User: d.User, Reason: d.Reason})
	return nil
}

func applyUserLoginChange(s *NetworkState, e event.Event, d event.UserLoginChange, sink Sink) error {
	user, ok := s.Users[d.User]
	if !ok {
		return lookupError{"User", d.User.String()}
	}
	user.Account = d.Account
	sink(UserLoginChange{User: d.User, Account: d.Account})
	return nil
}
