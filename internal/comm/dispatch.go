package comm

import (
	"context"

	"github.com/HsiangNianian/framelink/internal/codec"
	"github.com/HsiangNianian/framelink/internal/protocol"
)

// processMessage is the frame's message listener. gen pins the listener to
// the Initialize call that installed it, so a listener that fires after
// Uninitialize does nothing.
func (c *Communicator) processMessage(gen uint64, ev MessageEvent) {
	if len(ev.Data) == 0 {
		return
	}
	var msg protocol.Message
	if err := c.codec.Unmarshal(ev.Data, &msg); err != nil {
		c.log.Debug("dropping undecodable message", "origin", ev.Origin, "err", err)
		return
	}

	if !c.shouldProcessMessage(gen, ev) {
		c.log.Debug("dropping message from unaccepted source", "origin", ev.Origin, "id", protocol.IDString(msg.ID))
		return
	}

	c.mu.Lock()
	if gen != c.generation || c.currentWindow == nil {
		c.mu.Unlock()
		return
	}
	c.updateRelationshipsLocked(ev.Source, ev.Origin)

	var deferred []func()
	switch {
	case ev.Source != nil && ev.Source == c.parentWindow:
		deferred = c.handleParentMessageLocked(&msg)
	case ev.Source != nil && ev.Source == c.childWindow:
		deferred = c.handleChildMessageLocked(&msg)
	}
	c.mu.Unlock()

	for _, fn := range deferred {
		fn()
	}
}

// handleNativeMessage receives envelopes from the native bridge. Everything
// arriving there comes from the parent, so no origin check applies.
func (c *Communicator) handleNativeMessage(gen uint64, message string) {
	var msg protocol.Message
	if err := codec.JSON.Unmarshal([]byte(message), &msg); err != nil {
		c.log.Debug("dropping undecodable native message", "err", err)
		return
	}

	c.mu.Lock()
	if gen != c.generation || c.currentWindow == nil {
		c.mu.Unlock()
		return
	}
	deferred := c.handleParentMessageLocked(&msg)
	c.mu.Unlock()

	for _, fn := range deferred {
		fn()
	}
}

// shouldProcessMessage drops messages the frame posted to itself and accepts
// same-origin messages, messages from a pinned peer origin, and any origin
// the validator allows.
func (c *Communicator) shouldProcessMessage(gen uint64, ev MessageEvent) bool {
	c.mu.Lock()
	if gen != c.generation || c.currentWindow == nil {
		c.mu.Unlock()
		return false
	}
	self := c.currentWindow.Self()
	ownOrigin := c.currentWindow.Origin()
	pinned := (ev.Source != nil && ev.Source == c.parentWindow && ev.Origin == c.parentOrigin) ||
		(ev.Source != nil && ev.Source == c.childWindow && ev.Origin == c.childOrigin)
	validator := c.validator
	c.mu.Unlock()

	if ev.Source != nil && ev.Source == self {
		return false
	}
	if ev.Origin != "" && ev.Origin == ownOrigin {
		return true
	}
	if pinned && ev.Origin != "" {
		return true
	}
	if validator == nil {
		return false
	}
	return validator.Validate(context.Background(), ev.Origin)
}

// updateRelationshipsLocked decides whether source is the parent or the child,
// pins its origin, forgets closed windows and flushes both queues.
func (c *Communicator) updateRelationshipsLocked(source Window, origin string) {
	if !c.frameless && (c.parentWindow == nil || c.parentWindow.Closed() || source == c.parentWindow) {
		c.parentWindow = source
		c.parentOrigin = origin
	} else if c.childWindow == nil || c.childWindow.Closed() || source == c.childWindow {
		c.childWindow = source
		c.childOrigin = origin
	}

	if c.parentWindow != nil && c.parentWindow.Closed() {
		c.parentWindow = nil
		c.parentOrigin = ""
	}
	if c.childWindow != nil && c.childWindow.Closed() {
		c.childWindow = nil
		c.childOrigin = ""
	}

	c.flushLocked(PeerParent)
	c.flushLocked(PeerChild)
}

// handleParentMessageLocked routes a parent envelope: one with an id is a
// response for the correlation table, one with only a func is an event for the
// handler registry. Completions are returned to run after unlocking.
func (c *Communicator) handleParentMessageLocked(msg *protocol.Message) []func() {
	switch {
	case msg.HasID():
		id := *msg.ID
		entry, ok := c.pending.take(id, msg.IsPartialResponse)
		if !ok {
			c.log.Debug("dropping response with no pending request", "id", id)
			return nil
		}
		args := msg.Args
		if args == nil {
			args = []any{}
		}
		c.log.Debug("received response from parent", "id", id, "partial", msg.IsPartialResponse)
		if entry.callback != nil {
			partial := msg.IsPartialResponse
			return []func(){func() { entry.callback(args, partial) }}
		}
		return []func(){func() { entry.future.resolve(args) }}

	case msg.HasFunc():
		name := msg.FuncName()
		args := msg.Args
		c.log.Debug("received action message from parent", "func", name)
		if c.handlers.Exists(name) {
			return []func(){func() { c.handlers.Call(name, args) }}
		}
		if c.childWindow != nil {
			c.sendMessageEventToChildLocked(name, args)
			return nil
		}
		c.log.Debug("no handler for action message", "func", name)
		return nil

	default:
		c.log.Debug("received unknown message from parent")
		return nil
	}
}
