package comm

import (
	"context"
	"sync"

	"github.com/HsiangNianian/framelink/internal/protocol"
)

// Callback receives the args of a response, in order.
type Callback func(args ...any)

// responseFunc is the internal completion shape; partial tells whether more
// responses for the same id will follow.
type responseFunc func(args []any, partial bool)

// Future is the pending result of a correlated request.
type Future struct {
	id   protocol.MessageID
	done chan struct{}
	once sync.Once
	args []any
	err  error
}

func newFuture(id protocol.MessageID) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// ID is the request id the future is waiting on.
func (f *Future) ID() protocol.MessageID { return f.id }

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the response arrives, the communicator is torn down, or
// ctx is done. Abandoning a wait does not remove the pending entry; use
// Communicator.Await for that.
func (f *Future) Wait(ctx context.Context) ([]any, error) {
	select {
	case <-f.done:
		return f.args, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) resolve(args []any) {
	f.once.Do(func() {
		f.args = args
		close(f.done)
	})
}

func (f *Future) fail(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// pendingEntry is one correlation table slot. Exactly one of callback and
// future is set.
type pendingEntry struct {
	callback responseFunc
	future   *Future
}

// correlationTable maps outstanding request ids to their completions. It is
// guarded by the owning Communicator's mutex.
type correlationTable struct {
	entries map[protocol.MessageID]pendingEntry
}

func newCorrelationTable() *correlationTable {
	return &correlationTable{entries: make(map[protocol.MessageID]pendingEntry)}
}

func (t *correlationTable) addCallback(id protocol.MessageID, cb responseFunc) {
	t.entries[id] = pendingEntry{callback: cb}
}

func (t *correlationTable) addFuture(id protocol.MessageID) *Future {
	f := newFuture(id)
	t.entries[id] = pendingEntry{future: f}
	return f
}

// take returns the completion for id. Callback entries stay registered while
// responses are partial; future entries are always removed.
func (t *correlationTable) take(id protocol.MessageID, partial bool) (pendingEntry, bool) {
	entry, ok := t.entries[id]
	if !ok {
		return pendingEntry{}, false
	}
	if entry.future != nil || !partial {
		delete(t.entries, id)
	}
	return entry, true
}

// removeFuture deletes f's entry only if the slot still belongs to f. Ids
// restart at zero after a reset, so a stale future may share an id with a
// live request.
func (t *correlationTable) removeFuture(f *Future) {
	if entry, ok := t.entries[f.id]; ok && entry.future == f {
		delete(t.entries, f.id)
	}
}

func (t *correlationTable) len() int { return len(t.entries) }

// reset empties the table and returns the futures that were still waiting.
// Callbacks are dropped without being invoked.
func (t *correlationTable) reset() []*Future {
	var futures []*Future
	for _, entry := range t.entries {
		if entry.future != nil {
			futures = append(futures, entry.future)
		}
	}
	t.entries = make(map[protocol.MessageID]pendingEntry)
	return futures
}
