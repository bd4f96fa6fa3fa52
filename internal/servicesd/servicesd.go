// Package servicesd implements the logic behind the network's services
// node: the one server elected to own the "services" pseudo-client that
// client connections address rpc calls to for account registration,
// login, channel registration and access changes, and history replay
// (spec.md §4.9). Exactly one node runs a Handler at a time, tracked by
// the network state's ServicesServer field (event.IntroduceServicesServer).
package servicesd

import (
	"fmt"

	"github.com/meshircd/core/internal/control"
	"github.com/meshircd/core/internal/event"
	"github.com/meshircd/core/internal/history"
	"github.com/meshircd/core/internal/id"
	"github.com/meshircd/core/internal/netstate"
	"github.com/meshircd/core/internal/services"
	"github.com/meshircd/core/minilog"
)

var log = minilog.Named("servicesd")

// Handler answers services rpc requests. It never mutates network state
// directly - like every other part of the command layer, it expresses
// its effects as events submitted through sub, and reads through the
// reducer's read-only view.
type Handler struct {
	gen     *id.Generator
	reducer *netstate.Reducer
	hist    *history.Log
	sub     control.Submitter
	now     func() int64
}

// New builds a services Handler.
func New(gen *id.Generator, reducer *netstate.Reducer, hist *history.Log, sub control.Submitter, now func() int64) *Handler {
	return &Handler{gen: gen, reducer: reducer, hist: hist, sub: sub, now: now}
}

// Handle dispatches one decoded services request payload (the Payload of
// a targeted rpc call) and returns the response payload to send back.
func (h *Handler) Handle(req any) any {
	switch r := req.(type) {
	case services.Register:
		return h.register(r)
	case services.Login:
		return h.login(r)
	case services.ChannelRegister:
		return h.channelRegister(r)
	case services.ChannelAccessChange:
		return h.channelAccessChange(r)
	case services.HistoryQuery:
		return h.historyQuery(r)
	default:
		log.Warn("servicesd: unrecognized request type %T", req)
		return services.Failure{Reason: "unrecognized request"}
	}
}

func (h *Handler) findAccountByName(name string) (*netstate.AccountRecord, bool) {
	var found *netstate.AccountRecord
	h.reducer.View(func(s *netstate.NetworkState) {
		for _, acct := range s.Accounts {
			if acct.Name == name {
				found = acct
				return
			}
		}
	})
	return found, found != nil
}

func (h *Handler) register(r services.Register) any {
	if _, exists := h.findAccountByName(r.Account); exists {
		return services.Failure{Reason: fmt.Sprintf("account %q already registered", r.Account)}
	}

	hash, err := services.HashPassword(r.Password)
	if err != nil {
		log.Error("hashing password for new account %q: %v", r.Account, err)
		return services.Failure{Reason: "internal error"}
	}

	acctID := h.gen.NextAccountID()
	h.sub.Submit(id.FromAccountID(acctID), event.AccountUpdate{
		Account:  acctID,
		Name:     r.Account,
		PassHash: hash,
	})
	if r.Nickname != "" {
		h.sub.Submit(id.FromAccountID(acctID), event.NickRegistrationUpdate{
			Account:  acctID,
			Nickname: r.Nickname,
		})
	}
	return services.Success{Detail: fmt.Sprintf("account %q registered", r.Account)}
}

func (h *Handler) login(r services.Login) any {
	acct, ok := h.findAccountByName(r.Account)
	if !ok || !services.CheckPassword(acct.PassHash, r.Password) {
		return services.Failure{Reason: "invalid account or password"}
	}
	return services.Success{Detail: fmt.Sprintf("logged in as %q", r.Account)}
}

func (h *Handler) channelRegister(r services.ChannelRegister) any {
	acct, ok := h.findAccountByName(r.Account)
	if !ok {
		return services.Failure{Reason: "account not found"}
	}

	var already bool
	h.reducer.View(func(s *netstate.NetworkState) {
		for _, reg := range s.ChannelRegistrations {
			if reg.Name == r.Channel {
				already = true
				return
			}
		}
	})
	if already {
		return services.Failure{Reason: fmt.Sprintf("channel %q already registered", r.Channel)}
	}

	regID := h.gen.NextChannelRegistrationID()
	h.sub.Submit(id.FromChannelRegistrationID(regID), event.ChannelRegistrationUpdate{
		Registration: regID,
		Name:         r.Channel,
		FoundedAt:    h.now(),
	})
	h.sub.Submit(id.FromChannelRegistrationID(regID), event.ChannelRoleUpdate{
		Registration: regID,
		RoleName:     "founder",
		Flags:        "oivtq",
	})
	access := id.ChannelAccessID{Account: acct.ID, Registration: regID}
	h.sub.Submit(id.FromChannelAccessID(access), event.ChannelAccessUpdate{
		Access: access,
		Roles:  []string{"founder"},
	})
	return services.Success{Detail: fmt.Sprintf("channel %q registered", r.Channel)}
}

func (h *Handler) channelAccessChange(r services.ChannelAccessChange) any {
	target, ok := h.findAccountByName(r.Target)
	if !ok {
		return services.Failure{Reason: "target account not found"}
	}

	var regID id.ChannelRegistrationID
	var found bool
	h.reducer.View(func(s *netstate.NetworkState) {
		for _, reg := range s.ChannelRegistrations {
			if reg.Name == r.Channel {
				regID, found = reg.ID, true
				return
			}
		}
	})
	if !found {
		return services.Failure{Reason: "channel not registered"}
	}

	access := id.ChannelAccessID{Account: target.ID, Registration: regID}
	roles := []string{r.RoleName}
	if r.Revoke {
		roles = nil
	}
	h.sub.Submit(id.FromChannelAccessID(access), event.ChannelAccessUpdate{
		Access:  access,
		Roles:   roles,
		Deleted: r.Revoke,
	})
	return services.Success{Detail: "access updated"}
}

func (h *Handler) historyQuery(r services.HistoryQuery) any {
	entries := h.hist.EntriesForTarget(r.Target, 0)
	out := make([]services.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.At < r.Since {
			continue
		}
		if r.Limit > 0 && len(out) >= r.Limit {
			break
		}
		out = append(out, services.HistoryEntry{
			Source:   e.Source,
			Text:     e.Text,
			IsNotice: e.IsNotice,
			At:       e.At,
		})
	}
	return services.HistoryResult{Entries: out}
}
