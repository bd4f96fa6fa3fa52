// Package rpc implements targeted request/response calls carried over
// the gossip mesh (spec.md §4, "Targeted RPC over gossip"): one server
// asks another specific server to do something and waits for a single
// reply, instead of broadcasting an event to the whole network.
package rpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/meshircd/core/internal/gossip"
	"github.com/meshircd/core/internal/id"
)

// DefaultMaxHops bounds how many times a TargetedMessage may be
// forwarded before a node rejects it outright (spec.md REDESIGN FLAGS).
const DefaultMaxHops = 16

// Client issues targeted calls and correlates their replies. One Client
// is shared by every caller on a node; it owns no network connection of
// its own, instead using the gossip.Node passed to New to send and
// receive.
type Client struct {
	self id.ServerID
	node *gossip.Node

	mu      sync.Mutex
	pending map[string]chan any
}

// New returns an RPC client that sends through node, identifying itself
// as self.
func New(self id.ServerID, node *gossip.Node) *Client {
	return &Client{self: self, node: node, pending: make(map[string]chan any)}
}

// Call sends payload to target and blocks until a response arrives, ctx
// is done, or the call is rejected (e.g. hop limit, unknown target).
func (c *Client) Call(ctx context.Context, target id.ServerID, payload any) (any, error) {
	callID := uuid.NewString()
	reply := make(chan any, 1)

	c.mu.Lock()
	c.pending[callID] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, callID)
		c.mu.Unlock()
	}()

	msg := gossip.Message{
		Source:  c.self,
		Command: gossip.CmdTargetedMessage,
		Body: gossip.TargetedMessage{
			// The via-list starts with this node, so the target's
			// Respond has a path back to the caller.
			ID: callID, Target: target, Via: []id.ServerID{c.self}, MaxHops: DefaultMaxHops, Payload: payload,
		},
	}
	if target == c.self {
		return nil, fmt.Errorf("rpc: cannot target self")
	}
	if err := c.node.Send(target, msg); err != nil {
		return nil, err
	}

	select {
	case r := <-reply:
		if rej, ok := r.(error); ok {
			return nil, rej
		}
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HandleResponse delivers a TargetedMessageResponse (or MessageRejected,
// wrapped as an error) to the goroutine blocked in the matching Call.
// The owning gossip.Handler implementation calls this from
// HandleTargetedMessageResponse/HandleMessageRejected.
func (c *Client) HandleResponse(callID string, payload any) {
	c.mu.Lock()
	ch, ok := c.pending[callID]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- payload:
	default:
	}
}

// HandleRejected delivers a rejection reason to the matching Call as an
// error.
func (c *Client) HandleRejected(callID, reason string) {
	c.HandleResponse(callID, fmt.Errorf("rpc: call rejected: %s", reason))
}

// Respond replies to an inbound TargetedMessage, addressed back to the
// original caller via the via-list the message accumulated while being
// routed.
func (c *Client) Respond(m gossip.TargetedMessage, payload any) error {
	resp := gossip.Message{
		Source:  c.self,
		Command: gossip.CmdTargetedMessageResponse,
		Body:    gossip.TargetedMessageResponse{ID: m.ID, Via: m.Via, Payload: payload},
	}
	if len(m.Via) == 0 {
		return fmt.Errorf("rpc: cannot respond, no via path recorded")
	}
	last := m.Via[len(m.Via)-1]
	return c.node.Send(last, resp)
}
