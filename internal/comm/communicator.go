// Package comm implements the messaging core between an embedded app and the
// host window that embeds it.
//
// A Communicator owns one relationship: the frame it runs in, the parent (or
// opener, or native bridge) it talks to, and optionally a child window it
// embeds itself. Requests carry ids that increase by one from zero; responses
// are matched back to their request by id. Messages sent before the peer's
// origin is known wait in a per-peer FIFO queue and are flushed, in order, as
// soon as a message from that peer is accepted.
//
// State changes happen under one mutex. Handlers, callbacks and future
// completions always run after the mutex is released, so they may send.
package comm

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/HsiangNianian/framelink/internal/codec"
	"github.com/HsiangNianian/framelink/internal/protocol"
)

// DefaultQueuePollInterval is how often WaitForMessageQueue rechecks a queue.
const DefaultQueuePollInterval = 100 * time.Millisecond

// State is the handshake state of a Communicator.
type State int

const (
	StateUnstarted State = iota
	StateHandshaking
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unstarted"
	}
}

// OriginValidator decides whether messages from an origin may be processed.
// *origin.Validator satisfies it.
type OriginValidator interface {
	Validate(ctx context.Context, origin string) bool
	SetAdditional(patterns []string)
}

type Options struct {
	// Codec encodes envelopes posted to windows. Defaults to JSON. The native
	// bridge always uses JSON.
	Codec     codec.Codec
	Validator OriginValidator
	Handlers  *Registry
	Logger    *slog.Logger

	QueuePollInterval time.Duration
	// HandshakeTimeout bounds Initialize. Zero waits until ctx is done.
	HandshakeTimeout time.Duration

	SDKVersion        string
	RuntimeAPIVersion int
}

// InitializeResponse is the host's answer to the initialize handshake.
type InitializeResponse struct {
	Context                   protocol.FrameContext
	ClientType                protocol.HostClientType
	RuntimeConfig             string
	ClientSupportedSDKVersion string
}

type Communicator struct {
	frame     Frame
	codec     codec.Codec
	validator OriginValidator
	handlers  *Registry
	log       *slog.Logger
	opts      Options

	mu             sync.Mutex
	state          State
	generation     uint64
	currentWindow  Frame
	parentWindow   Window
	parentOrigin   string
	childWindow    Window
	childOrigin    string
	frameless      bool
	parentQueue    messageQueue
	childQueue     messageQueue
	nextMessageID  protocol.MessageID
	pending        *correlationTable
	removeListener func()
	drained        chan struct{}
	initResponse   *InitializeResponse
}

// New returns a Communicator for frame. Nothing is sent until Initialize.
func New(frame Frame, opts Options) *Communicator {
	if opts.Codec == nil {
		opts.Codec = codec.JSON
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Handlers == nil {
		opts.Handlers = NewRegistry(opts.Logger)
	}
	if opts.QueuePollInterval <= 0 {
		opts.QueuePollInterval = DefaultQueuePollInterval
	}
	if opts.SDKVersion == "" {
		opts.SDKVersion = protocol.SDKVersion
	}
	if opts.RuntimeAPIVersion == 0 {
		opts.RuntimeAPIVersion = protocol.LatestRuntimeAPIVersion
	}
	return &Communicator{
		frame:     frame,
		codec:     opts.Codec,
		validator: opts.Validator,
		handlers:  opts.Handlers,
		log:       opts.Logger.With("component", "comm"),
		opts:      opts,
		pending:   newCorrelationTable(),
		drained:   make(chan struct{}, 1),
	}
}

// Handlers returns the registry inbound events are dispatched to.
func (c *Communicator) Handlers() *Registry { return c.handlers }

func (c *Communicator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsFrameless reports whether the parent is reached through the native bridge.
func (c *Communicator) IsFrameless() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameless
}

// InitializeResponse returns the handshake result once Ready, else nil.
func (c *Communicator) InitializeResponse() *InitializeResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initResponse
}

// ParentOrigin is the origin pinned for the parent, "" while unknown.
func (c *Communicator) ParentOrigin() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parentOrigin
}

// ChildOrigin is the origin pinned for the child, "" while unknown.
func (c *Communicator) ChildOrigin() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.childOrigin
}

// QueueLen reports how many envelopes are waiting for peer.
func (c *Communicator) QueueLen(peer Peer) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue(peer).len()
}

// PendingLen reports how many requests are waiting for a response.
func (c *Communicator) PendingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.len()
}

// Initialize finds the peer, starts listening, and runs the initialize
// handshake. validMessageOrigins adds origin patterns the frame accepts
// messages from; when non-nil the frame listens for window messages even
// without a parent (a native host with an embedded child).
//
// Without a parent, opener or native bridge Initialize fails at once with
// ErrNoParentWindow. Otherwise it waits for the host's response, ctx, or
// Options.HandshakeTimeout.
func (c *Communicator) Initialize(ctx context.Context, validMessageOrigins []string) (*InitializeResponse, error) {
	future, err := c.startHandshake(validMessageOrigins)
	if err != nil {
		return nil, err
	}

	waitCtx := ctx
	if c.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.opts.HandshakeTimeout)
		defer cancel()
	}

	args, err := future.Wait(waitCtx)
	if err != nil {
		c.abandonHandshake(future)
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = ErrHandshakeTimeout
		}
		c.log.Warn("initialize handshake failed", "err", err)
		return nil, err
	}

	resp := &InitializeResponse{}
	if len(args) > 0 {
		s, _ := protocol.DecodeArg[string](args[0])
		resp.Context = protocol.FrameContext(s)
	}
	if len(args) > 1 {
		s, _ := protocol.DecodeArg[string](args[1])
		resp.ClientType = protocol.HostClientType(s)
	}
	if len(args) > 2 {
		resp.RuntimeConfig, _ = protocol.DecodeArg[string](args[2])
	}
	if len(args) > 3 {
		resp.ClientSupportedSDKVersion, _ = protocol.DecodeArg[string](args[3])
	}

	c.mu.Lock()
	if c.state == StateHandshaking {
		c.state = StateReady
		c.initResponse = resp
	}
	c.mu.Unlock()

	c.log.Info("initialize handshake complete", "context", resp.Context, "client_type", resp.ClientType)
	return resp, nil
}

func (c *Communicator) startHandshake(validMessageOrigins []string) (*Future, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateHandshaking || c.state == StateReady {
		return nil, ErrAlreadyInitialized
	}

	if c.removeListener != nil {
		c.removeListener()
		c.removeListener = nil
	}

	c.currentWindow = c.frame
	c.parentWindow = c.frame.Parent()
	if c.parentWindow == nil {
		c.parentWindow = c.frame.Opener()
	}

	if validMessageOrigins != nil && c.validator != nil {
		c.validator.SetAdditional(validMessageOrigins)
	}

	// Listen before sending anything so no response can be missed.
	if c.parentWindow != nil || validMessageOrigins != nil {
		gen := c.generation
		c.removeListener = c.frame.AddMessageListener(func(ev MessageEvent) {
			c.processMessage(gen, ev)
		})
	}

	if c.parentWindow == nil {
		native := c.frame.NativeInterface()
		if native == nil {
			if c.removeListener != nil {
				c.removeListener()
				c.removeListener = nil
			}
			c.state = StateFailed
			c.log.Error("initialize failed: no parent window or native bridge")
			return nil, ErrNoParentWindow
		}
		c.frameless = true
		gen := c.generation
		native.SetOnNativeMessage(func(message string) {
			c.handleNativeMessage(gen, message)
		})
	}

	c.state = StateHandshaking

	// The parent's origin is unknown until it answers, and the initialize
	// payload carries nothing sensitive, so this one message goes to "*".
	c.parentOrigin = "*"
	defer func() { c.parentOrigin = "" }()

	tag := protocol.APIVersionTag(protocol.APIVersion2, "app.initialize")
	req := c.newRequestLocked(tag, protocol.FuncInitialize, []any{c.opts.SDKVersion, c.opts.RuntimeAPIVersion})
	future := c.pending.addFuture(*req.ID)
	c.sendToParentLocked(req)
	return future, nil
}

// abandonHandshake marks a handshake that got no answer as failed and stops
// listening, so a late reply cannot pin the parent origin or flush queues.
func (c *Communicator) abandonHandshake(f *Future) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.removeFuture(f)
	if c.state != StateHandshaking {
		return
	}
	c.state = StateFailed
	if c.removeListener != nil {
		c.removeListener()
		c.removeListener = nil
	}
	if c.frameless {
		if native := c.frame.NativeInterface(); native != nil {
			native.SetOnNativeMessage(nil)
		}
	}
	c.generation++
}

// Uninitialize tears the relationship down: it stops listening, forgets both
// peers, clears both queues, resets ids to zero and empties the correlation
// table. Pending futures fail with ErrCommunicationClosed; pending callbacks
// are dropped and never invoked.
func (c *Communicator) Uninitialize() {
	c.mu.Lock()
	if c.removeListener != nil {
		c.removeListener()
		c.removeListener = nil
	}
	if c.frameless {
		if native := c.frame.NativeInterface(); native != nil {
			native.SetOnNativeMessage(nil)
		}
	}
	c.generation++
	c.state = StateUnstarted
	c.currentWindow = nil
	c.parentWindow = nil
	c.parentOrigin = ""
	c.childWindow = nil
	c.childOrigin = ""
	c.frameless = false
	c.parentQueue.clear()
	c.childQueue.clear()
	c.nextMessageID = 0
	c.initResponse = nil
	abandoned := c.pending.reset()
	c.mu.Unlock()

	for _, f := range abandoned {
		f.fail(ErrCommunicationClosed)
	}
	c.log.Info("communication uninitialized", "abandoned_futures", len(abandoned))
}

// SendMessageToParent sends fn to the parent and returns the request id. When
// cb is non-nil it is invoked with the response args; otherwise any response
// is dropped. Envelopes sent before the parent's origin is known are queued.
func (c *Communicator) SendMessageToParent(tag, fn string, args []any, cb Callback) protocol.MessageID {
	var rf responseFunc
	if cb != nil {
		rf = func(args []any, _ bool) { cb(args...) }
	}
	return c.sendWithResponseFunc(tag, fn, args, rf, false)
}

// SendMessageToParentAsync sends fn to the parent and returns a future for
// its response.
func (c *Communicator) SendMessageToParentAsync(tag, fn string, args []any) *Future {
	c.mu.Lock()
	req := c.newRequestLocked(tag, fn, args)
	future := c.pending.addFuture(*req.ID)
	c.sendToParentLocked(req)
	c.mu.Unlock()
	return future
}

func (c *Communicator) sendWithResponseFunc(tag, fn string, args []any, rf responseFunc, proxied bool) protocol.MessageID {
	c.mu.Lock()
	defer c.mu.Unlock()
	req := c.newRequestLocked(tag, fn, args)
	req.IsProxiedFromChild = proxied
	if rf != nil {
		c.pending.addCallback(*req.ID, rf)
	}
	c.sendToParentLocked(req)
	return *req.ID
}

func (c *Communicator) newRequestLocked(tag, fn string, args []any) *protocol.Request {
	id := c.nextMessageID
	c.nextMessageID++
	return protocol.NewRequest(id, tag, fn, args)
}

func (c *Communicator) sendToParentLocked(req *protocol.Request) {
	if c.frameless {
		native := c.frame.NativeInterface()
		if native == nil {
			c.log.Warn("frameless send without native bridge", "id", protocol.IDString(req.ID), "func", req.Func)
			return
		}
		data, err := codec.JSON.Marshal(req)
		if err != nil {
			c.log.Error("encode request failed", "id", protocol.IDString(req.ID), "func", req.Func, "err", err)
			return
		}
		c.log.Debug("sending message via native bridge", "id", protocol.IDString(req.ID), "func", req.Func)
		if err := native.FramelessPostMessage(string(data)); err != nil {
			c.log.Warn("native bridge post failed", "id", protocol.IDString(req.ID), "err", err)
		}
		return
	}

	if c.parentWindow != nil && c.parentOrigin != "" {
		c.log.Debug("sending message to parent", "id", protocol.IDString(req.ID), "func", req.Func, "origin", c.parentOrigin)
		c.postLocked(c.parentWindow, c.parentOrigin, req)
		return
	}
	c.log.Debug("queueing message for parent", "id", protocol.IDString(req.ID), "func", req.Func)
	c.parentQueue.push(req)
}

func (c *Communicator) postLocked(target Window, targetOrigin string, v any) {
	data, err := c.codec.Marshal(v)
	if err != nil {
		c.log.Error("encode envelope failed", "err", err)
		return
	}
	if err := target.PostMessage(data, targetOrigin); err != nil {
		c.log.Warn("post message failed", "origin", targetOrigin, "err", err)
	}
}

func (c *Communicator) queue(peer Peer) *messageQueue {
	if peer == PeerChild {
		return &c.childQueue
	}
	return &c.parentQueue
}

// flushLocked drains the queue for peer, in order, while its window and
// origin are known.
func (c *Communicator) flushLocked(peer Peer) {
	target, targetOrigin := c.parentWindow, c.parentOrigin
	if peer == PeerChild {
		target, targetOrigin = c.childWindow, c.childOrigin
	}
	q := c.queue(peer)
	if q.len() == 0 {
		return
	}
	if target == nil || targetOrigin == "" {
		return
	}
	c.log.Debug("flushing message queue", "peer", peer.String(), "ids", q.ids())
	for {
		req, ok := q.pop()
		if !ok {
			break
		}
		c.postLocked(target, targetOrigin, req)
	}
	select {
	case c.drained <- struct{}{}:
	default:
	}
}

// WaitForMessageQueue returns once the queue for peer is empty. The queue is
// rechecked whenever a flush completes and every Options.QueuePollInterval.
func (c *Communicator) WaitForMessageQueue(ctx context.Context, peer Peer) error {
	ticker := time.NewTicker(c.opts.QueuePollInterval)
	defer ticker.Stop()
	for {
		if c.QueueLen(peer) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-c.drained:
		}
	}
}

// RegisterHandler stores h for name and, when notifyParent is set and h is
// non-nil, tells the parent so it starts pushing that event.
func (c *Communicator) RegisterHandler(tag, name string, h Handler, notifyParent bool, args ...any) {
	c.handlers.Register(name, h)
	if h != nil && notifyParent {
		c.SendMessageToParent(tag, protocol.FuncRegisterHandler, append([]any{name}, args...), nil)
	}
}

func (c *Communicator) RemoveHandler(name string) {
	c.handlers.Remove(name)
}
