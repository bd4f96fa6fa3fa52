package netstate

import (
	"github.com/meshircd/core/internal/event"
	"github.com/meshircd/core/internal/id"
)

func applyNewServer(s *NetworkState, e event.Event, d event.NewServer, sink Sink) error {
	if _, exists := s.Servers[d.Server.ID]; exists {
		return conflictError{"Server", d.Server.Name.String()}
	}
	s.Servers[d.Server.ID] = d.Server
	sink(NewServer{Server: d.Server.ID, Name: d.Server.Name.String()})
	return nil
}

// applyServerPing has no state effect; liveness tracking lives in the
// gossip layer, not network state.
func applyServerPing(s *NetworkState, e event.Event, d event.ServerPing, sink Sink) error {
	return nil
}

func applyServerQuit(s *NetworkState, e event.Event, d event.ServerQuit, sink Sink) error {
	if _, ok := s.Servers[d.Server]; !ok {
		return lookupError{"Server", "?"}
	}

	var removed []id.UserID
	for uid, u := range s.Users {
		if uid.Server != d.Server || u.Persistent {
			continue
		}
		removed = append(removed, uid)
	}
	for _, uid := range removed {
		applyUserQuit(s, e, event.UserQuit{User: uid, Reason: "*.net *.split"}, sink)
	}

	delete(s.Servers, d.Server)
	if s.ServicesServer != nil && *s.ServicesServer == d.Server {
		s.ServicesServer = nil
		sink(ServicesUpdate{Server: nil})
	}

	sink(ServerQuit{Server: d.Server, Reason: d.Reason, Removed: removed})
	return nil
}

func applyIntroduceServicesServer(s *NetworkState, e event.Event, d event.IntroduceServicesServer, sink Sink) error {
	if _, ok := s.Servers[d.Server]; !ok {
		return lookupError{"Server", "?"}
	}
	server := d.Server
	s.ServicesServer = &server
	sink(ServicesUpdate{Server: &server})
	return nil
}
