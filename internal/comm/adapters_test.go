package comm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HsiangNianian/framelink/internal/comm"
	"github.com/HsiangNianian/framelink/internal/protocol"
)

func readyApp(t *testing.T, host *fakeHost) *comm.Communicator {
	t.Helper()
	host.answer(protocol.FuncInitialize, initArgs...)
	c, _ := newFramedApp(t, host, comm.Options{})
	initialize(t, c)
	return c
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestFacade_RequiresInitialization(t *testing.T) {
	host := newFakeHost(t)
	c, _ := newFramedApp(t, host, comm.Options{})

	assert.ErrorIs(t, c.Send("", "x"), comm.ErrNotInitialized)
	assert.ErrorIs(t, c.SendWithCallback("", "x", nil, func(...any) {}), comm.ErrNotInitialized)
	_, err := c.SendAsync(testCtx(t), "", "x")
	assert.ErrorIs(t, err, comm.ErrNotInitialized)
	assert.Equal(t, "The library has not yet been initialized", err.Error())

	_, err = comm.SendAndUnwrap[string](testCtx(t), c, "", "x")
	assert.ErrorIs(t, err, comm.ErrNotInitialized)
	assert.Equal(t, 0, c.QueueLen(comm.PeerParent), "rejected sends are never queued")
}

func TestSendWithCallback_SpreadsArgs(t *testing.T) {
	host := newFakeHost(t)
	c := readyApp(t, host)
	host.answer("getPair", "left", "right")

	got := make(chan []any, 1)
	require.NoError(t, c.SendWithCallback("", "getPair", nil, func(args ...any) { got <- args }))

	select {
	case args := <-got:
		assert.Equal(t, []any{"left", "right"}, args)
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestSend_FireAndForget(t *testing.T) {
	host := newFakeHost(t)
	c := readyApp(t, host)
	host.answer("notify", "ignored")

	require.NoError(t, c.Send("v1_notify", "notify", "a", float64(1)))

	msgs := host.waitMessages(2)
	assert.Equal(t, "notify", msgs[1].FuncName())
	assert.Equal(t, []any{"a", float64(1)}, msgs[1].Args)
	require.Eventually(t, func() bool { return c.PendingLen() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSendAsync_TimeoutDropsPendingEntry(t *testing.T) {
	host := newFakeHost(t)
	c := readyApp(t, host)

	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		_, err := c.SendAsync(ctx, "", "unanswered")
		cancel()
		require.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.Equal(t, 0, c.PendingLen())

	host.answer("late", "value")
	v, err := comm.SendAndUnwrap[string](testCtx(t), c, "", "late")
	require.NoError(t, err)
	assert.Equal(t, "value", v)
	assert.Equal(t, 0, c.PendingLen())
}

func TestAwait_StaleFutureKeepsReusedID(t *testing.T) {
	host := newFakeHost(t)
	c := readyApp(t, host)

	stale := c.SendMessageToParentAsync("", "unanswered", nil)
	c.Uninitialize()

	host.answer(protocol.FuncInitialize, initArgs...)
	initialize(t, c)
	fresh := c.SendMessageToParentAsync("", "unanswered", nil)
	require.Equal(t, stale.ID(), fresh.ID(), "ids restart after teardown")

	_, err := c.Await(testCtx(t), stale)
	require.ErrorIs(t, err, comm.ErrCommunicationClosed)
	assert.Equal(t, 1, c.PendingLen(), "the live request keeps its slot")
}

func TestSendAndUnwrap(t *testing.T) {
	host := newFakeHost(t)
	c := readyApp(t, host)
	host.answer("getValue", "hello")
	host.answerWith("getEmpty", func(protocol.Message) []any { return []any{} })

	v, err := comm.SendAndUnwrap[string](testCtx(t), c, "", "getValue")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	v, err = comm.SendAndUnwrap[string](testCtx(t), c, "", "getEmpty")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestSendAndHandleStatusAndReason(t *testing.T) {
	host := newFakeHost(t)
	c := readyApp(t, host)
	host.answer("ok", true, "")
	host.answer("okWithReason", true, "reason text")
	host.answer("denied", false, "nope")
	host.answer("silent", false)

	assert.NoError(t, comm.SendAndHandleStatusAndReason(testCtx(t), c, "", "ok"))
	assert.NoError(t, comm.SendAndHandleStatusAndReason(testCtx(t), c, "", "okWithReason"))

	err := comm.SendAndHandleStatusAndReason(testCtx(t), c, "", "denied")
	require.Error(t, err)
	assert.Equal(t, "nope", err.Error())

	err = comm.SendAndHandleStatusAndReasonWithDefaultError(testCtx(t), c, "", "silent", "default message")
	require.Error(t, err)
	assert.Equal(t, "default message", err.Error())
}

type meeting struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func TestSendAndHandleSdkError(t *testing.T) {
	host := newFakeHost(t)
	c := readyApp(t, host)
	host.answer("fails", map[string]any{"errorCode": 500, "message": "boom"}, nil)
	host.answer("works", nil, map[string]any{"id": "m-1", "count": 3})
	host.answer("rejects", true)
	host.answer("payload", nil, "payload")
	host.answer("code1", map[string]any{"errorCode": 1}, nil)

	_, err := comm.SendAndHandleSdkError[meeting](testCtx(t), c, "", "fails")
	var sdkErr *protocol.SdkError
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, protocol.ErrorCodeInternalError, sdkErr.ErrorCode)
	assert.Equal(t, "boom", sdkErr.Message)

	m, err := comm.SendAndHandleSdkError[meeting](testCtx(t), c, "", "works")
	require.NoError(t, err)
	assert.Equal(t, meeting{ID: "m-1", Count: 3}, m)

	s, err := comm.SendAndHandleSdkError[string](testCtx(t), c, "", "payload")
	require.NoError(t, err)
	assert.Equal(t, "payload", s)

	_, err = comm.SendAndHandleSdkError[string](testCtx(t), c, "", "code1")
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, protocol.ErrorCode(1), sdkErr.ErrorCode)

	_, err = comm.SendAndHandleSdkError[meeting](testCtx(t), c, "", "rejects")
	require.Error(t, err)
	assert.True(t, comm.IsRejection(err))
	var rej *comm.RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, true, rej.Value)
}
