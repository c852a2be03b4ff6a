package comm_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/HsiangNianian/framelink/internal/comm"
	"github.com/HsiangNianian/framelink/internal/frame"
	"github.com/HsiangNianian/framelink/internal/origin"
	"github.com/HsiangNianian/framelink/internal/protocol"
)

const (
	hostOrigin  = "https://host.example.com"
	appOrigin   = "https://app.example.com"
	childOrigin = "https://child.example.com"
)

var initArgs = []any{"content", "web", "{}", "2.0.0"}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newValidator() *origin.Validator {
	return origin.NewValidator([]string{"host.example.com", "child.example.com"}, nil, quietLogger())
}

// fakeHost plays the embedding window: it records every envelope it receives
// and answers the ones it has a responder for.
type fakeHost struct {
	t   *testing.T
	win *frame.Window

	mu         sync.Mutex
	received   []protocol.Message
	responders map[string]func(msg protocol.Message) []any
}

func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()
	h := &fakeHost{
		t:          t,
		win:        frame.New(hostOrigin),
		responders: make(map[string]func(protocol.Message) []any),
	}
	h.win.AddMessageListener(h.onMessage)
	t.Cleanup(h.win.Close)
	return h
}

// answer makes the host respond to fn with fixed args.
func (h *fakeHost) answer(fn string, args ...any) {
	h.answerWith(fn, func(protocol.Message) []any { return args })
}

func (h *fakeHost) answerWith(fn string, responder func(protocol.Message) []any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responders[fn] = responder
}

func (h *fakeHost) onMessage(ev comm.MessageEvent) {
	var msg protocol.Message
	if err := json.Unmarshal(ev.Data, &msg); err != nil {
		return
	}
	h.mu.Lock()
	h.received = append(h.received, msg)
	responder := h.responders[msg.FuncName()]
	h.mu.Unlock()

	if responder == nil || !msg.HasID() {
		return
	}
	if args := responder(msg); args != nil {
		h.postResponse(ev.Source, *msg.ID, args, false)
	}
}

func (h *fakeHost) postResponse(to comm.Window, id protocol.MessageID, args []any, partial bool) {
	data, err := json.Marshal(protocol.NewResponse(id, "", args, partial))
	require.NoError(h.t, err)
	require.NoError(h.t, to.PostMessage(data, "*"))
}

func (h *fakeHost) postEvent(to comm.Window, fn string, args ...any) {
	data, err := json.Marshal(protocol.NewEvent(fn, args))
	require.NoError(h.t, err)
	require.NoError(h.t, to.PostMessage(data, "*"))
}

// refTo is the host's handle on an embedded window.
func (h *fakeHost) refTo(w *frame.Window) comm.Window {
	return h.win.RefTo(w)
}

func (h *fakeHost) messages() []protocol.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.Message(nil), h.received...)
}

func (h *fakeHost) waitMessages(n int) []protocol.Message {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return len(h.messages()) >= n }, 2*time.Second, 5*time.Millisecond,
		"host expected %d messages", n)
	return h.messages()
}

func funcs(msgs []protocol.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.FuncName())
	}
	return out
}

func ids(msgs []protocol.Message) []protocol.MessageID {
	out := make([]protocol.MessageID, 0, len(msgs))
	for _, m := range msgs {
		if m.ID != nil {
			out = append(out, *m.ID)
		}
	}
	return out
}

// newFramedApp embeds an app window in host and returns its communicator.
func newFramedApp(t *testing.T, host *fakeHost, opts comm.Options) (*comm.Communicator, *frame.Window) {
	t.Helper()
	app := frame.NewChild(host.win, appOrigin)
	t.Cleanup(app.Close)
	if opts.Validator == nil {
		opts.Validator = newValidator()
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return comm.New(app, opts), app
}

// callRecorder collects callback invocations.
type callRecorder struct {
	mu    sync.Mutex
	calls [][]any
}

func (r *callRecorder) callback(args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, args)
}

func (r *callRecorder) snapshot() [][]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]any(nil), r.calls...)
}
