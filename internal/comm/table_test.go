package comm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HsiangNianian/framelink/internal/protocol"
)

func TestMessageQueue_FIFO(t *testing.T) {
	var q messageQueue
	for i := 0; i < 3; i++ {
		q.push(protocol.NewRequest(protocol.MessageID(i), "", "f", nil))
	}
	assert.Equal(t, []string{"0", "1", "2"}, q.ids())

	for i := 0; i < 3; i++ {
		req, ok := q.pop()
		require.True(t, ok)
		assert.Equal(t, protocol.MessageID(i), *req.ID)
	}
	_, ok := q.pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.len())
}

func TestMessageQueue_Clear(t *testing.T) {
	var q messageQueue
	q.push(protocol.NewEvent("themeChange", nil))
	q.clear()
	assert.Equal(t, 0, q.len())
}

func TestCorrelationTable_FutureRemovedOnFirstResponse(t *testing.T) {
	tbl := newCorrelationTable()
	f := tbl.addFuture(4)

	entry, ok := tbl.take(4, true)
	require.True(t, ok)
	assert.Same(t, f, entry.future)

	_, ok = tbl.take(4, false)
	assert.False(t, ok, "futures never survive a response, partial or not")
}

func TestCorrelationTable_CallbackKeptWhilePartial(t *testing.T) {
	tbl := newCorrelationTable()
	tbl.addCallback(1, func([]any, bool) {})

	_, ok := tbl.take(1, true)
	require.True(t, ok)
	assert.Equal(t, 1, tbl.len())

	_, ok = tbl.take(1, false)
	require.True(t, ok)
	assert.Equal(t, 0, tbl.len())
}

func TestCorrelationTable_ResetReturnsFutures(t *testing.T) {
	tbl := newCorrelationTable()
	f := tbl.addFuture(0)
	tbl.addCallback(1, func([]any, bool) { t.Fatal("callback must not run on reset") })

	abandoned := tbl.reset()
	require.Len(t, abandoned, 1)
	assert.Same(t, f, abandoned[0])
	assert.Equal(t, 0, tbl.len())
}

func TestFuture_SettlesOnce(t *testing.T) {
	f := newFuture(0)
	f.resolve([]any{"first"})
	f.resolve([]any{"second"})
	f.fail(ErrCommunicationClosed)

	args, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"first"}, args)
}

func TestFuture_WaitHonorsContext(t *testing.T) {
	f := newFuture(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistry_SingleSlot(t *testing.T) {
	r := NewRegistry(nil)

	r.Register("save", func(...any) any { return "first" })
	r.Register("save", func(...any) any { return "second" })

	called, result := r.Call("save", nil)
	assert.True(t, called)
	assert.Equal(t, "second", result, "newest registration wins")

	r.Remove("save")
	called, result = r.Call("save", nil)
	assert.False(t, called)
	assert.Nil(t, result)

	r.Register("load", func(args ...any) any { return len(args) })
	r.Register("load", nil)
	assert.False(t, r.Exists("load"), "registering nil clears the slot")

	r.Register("a", func(...any) any { return nil })
	r.Reset()
	assert.False(t, r.Exists("a"))
}

func TestStatusAndReason(t *testing.T) {
	assert.NoError(t, statusAndReason([]any{true, "reason text"}, ""))

	err := statusAndReason([]any{false, "reason text"}, "")
	require.Error(t, err)
	assert.Equal(t, "reason text", err.Error())

	err = statusAndReason([]any{false}, "default message")
	require.Error(t, err)
	assert.Equal(t, "default message", err.Error())

	err = statusAndReason([]any{false, "explicit"}, "default message")
	require.Error(t, err)
	assert.Equal(t, "explicit", err.Error())
}

func TestResultArgs(t *testing.T) {
	assert.Equal(t, []any{"x"}, resultArgs("x"))
	assert.Equal(t, []any{1, 2}, resultArgs([]any{1, 2}))
}
