package comm

import "github.com/HsiangNianian/framelink/internal/protocol"

// handleChildMessageLocked serves a request from the embedded child. A local
// handler that returns a value answers directly; otherwise the request is
// relayed to the parent under a fresh id and the parent's answer is passed
// back with the child's id.
func (c *Communicator) handleChildMessageLocked(msg *protocol.Message) []func() {
	if !msg.HasID() || !msg.HasFunc() {
		return nil
	}
	childID := *msg.ID
	childUUID := msg.UUID
	name := msg.FuncName()
	args := msg.Args
	tag := msg.APIVersionTag

	return []func(){func() {
		called, result := c.handlers.Call(name, args)
		if called && result != nil {
			c.log.Debug("answering child from local handler", "id", childID, "func", name)
			c.sendMessageResponseToChild(childID, childUUID, resultArgs(result), false)
			return
		}

		c.log.Debug("relaying child message to parent", "child_id", childID, "func", name)
		c.sendWithResponseFunc(tag, name, args, func(respArgs []any, partial bool) {
			c.sendMessageResponseToChild(childID, childUUID, respArgs, partial)
		}, true)
	}}
}

func resultArgs(result any) []any {
	if list, ok := result.([]any); ok {
		return list
	}
	return []any{result}
}

// sendMessageResponseToChild answers a child request. Responses are dropped
// when the child is gone or its origin is unknown.
func (c *Communicator) sendMessageResponseToChild(id protocol.MessageID, requestUUID string, args []any, partial bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.childWindow == nil || c.childOrigin == "" {
		c.log.Debug("dropping response for departed child", "id", id)
		return
	}
	c.postLocked(c.childWindow, c.childOrigin, protocol.NewResponse(id, requestUUID, args, partial))
}

// SendMessageEventToChild pushes an id-less event to the child, queueing it
// until the child's origin is known.
func (c *Communicator) SendMessageEventToChild(fn string, args []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendMessageEventToChildLocked(fn, args)
}

func (c *Communicator) sendMessageEventToChildLocked(fn string, args []any) {
	ev := protocol.NewEvent(fn, args)
	if c.childWindow != nil && c.childOrigin != "" {
		c.postLocked(c.childWindow, c.childOrigin, ev)
		return
	}
	c.log.Debug("queueing event for child", "func", fn)
	c.childQueue.push(ev)
}

// HasChild reports whether a child window is attached.
func (c *Communicator) HasChild() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.childWindow != nil
}
