package comm

import "github.com/HsiangNianian/framelink/internal/protocol"

// messageQueue holds envelopes for a peer whose window or origin is not yet
// known. It is guarded by the owning Communicator's mutex.
type messageQueue struct {
	items []*protocol.Request
}

func (q *messageQueue) push(req *protocol.Request) {
	q.items = append(q.items, req)
}

func (q *messageQueue) pop() (*protocol.Request, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	req := q.items[0]
	// Drop the reference so flushed envelopes can be collected.
	q.items[0] = nil
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return req, true
}

func (q *messageQueue) len() int { return len(q.items) }

func (q *messageQueue) clear() { q.items = nil }

// ids lists queued envelope ids for logs.
func (q *messageQueue) ids() []string {
	out := make([]string, 0, len(q.items))
	for _, req := range q.items {
		out = append(out, protocol.IDString(req.ID))
	}
	return out
}
