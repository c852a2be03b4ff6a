// Package ws carries the messaging protocol over websockets. Hub is the host
// end: it accepts app connections, answers the initialize handshake, serves
// requests from registered handlers and pushes events to subscribed apps.
// Dial is the app end: it turns a websocket connection into a frame whose
// parent window is the remote host.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HsiangNianian/framelink/internal/codec"
	"github.com/HsiangNianian/framelink/internal/protocol"
	"github.com/HsiangNianian/framelink/internal/store"
)

// SubprotocolPrefix prefixes the codec name in the negotiated websocket
// subprotocol, e.g. "framelink.cbor".
const SubprotocolPrefix = "framelink."

// DefaultProcessedTTL is how long a handled request uuid is remembered.
const DefaultProcessedTTL = 24 * time.Hour

// DefaultWriteTimeout bounds a single websocket write.
const DefaultWriteTimeout = 10 * time.Second

// Subprotocol returns the websocket subprotocol for c.
func Subprotocol(c codec.Codec) string { return SubprotocolPrefix + c.Name() }

func codecForSubprotocol(p string) (codec.Codec, error) {
	return codec.ByName(strings.TrimPrefix(p, SubprotocolPrefix))
}

// InitializeReply is what the hub answers to an initialize request.
type InitializeReply struct {
	FrameContext              protocol.FrameContext
	ClientType                protocol.HostClientType
	RuntimeConfig             string
	ClientSupportedSDKVersion string
}

func (r InitializeReply) args() []any {
	return []any{string(r.FrameContext), string(r.ClientType), r.RuntimeConfig, r.ClientSupportedSDKVersion}
}

// Call is one request from an app.
type Call struct {
	ID               protocol.MessageID
	UUID             string
	Func             string
	Args             []any
	APIVersionTag    string
	ProxiedFromChild bool
	Remote           string

	app *appConn
}

// SendPartial streams an intermediate response. The final response is the
// handler's return value.
func (c *Call) SendPartial(args ...any) error {
	return c.app.write(protocol.NewResponse(c.ID, c.UUID, args, true))
}

// HostHandler serves one action. Returned args are sent back as the response.
// A returned error is reported as [SdkError]: an *protocol.SdkError is passed
// through and anything else becomes an internal error.
type HostHandler func(ctx context.Context, call *Call) ([]any, error)

type HubOptions struct {
	Store        store.Store
	AuthToken    string
	Initialize   InitializeReply
	ProcessedTTL time.Duration
	Logger       *slog.Logger
}

type appConn struct {
	conn   *websocket.Conn
	codec  codec.Codec
	remote string

	mu sync.Mutex

	subMu         sync.RWMutex
	subscriptions map[string]struct{}
}

func (a *appConn) write(v any) error {
	data, err := a.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	messageType := websocket.TextMessage
	if a.codec.Binary() {
		messageType = websocket.BinaryMessage
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
	return a.conn.WriteMessage(messageType, data)
}

func (a *appConn) subscribe(name string) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	a.subscriptions[name] = struct{}{}
}

func (a *appConn) subscribed(name string) bool {
	a.subMu.RLock()
	defer a.subMu.RUnlock()
	_, ok := a.subscriptions[name]
	return ok
}

type Hub struct {
	store        store.Store
	authToken    string
	initialize   InitializeReply
	processedTTL time.Duration
	log          *slog.Logger

	upgrader websocket.Upgrader

	appMu sync.RWMutex
	apps  map[*appConn]struct{}

	handlerMu sync.RWMutex
	handlers  map[string]HostHandler
}

func NewHub(opts HubOptions) *Hub {
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}
	if opts.ProcessedTTL <= 0 {
		opts.ProcessedTTL = DefaultProcessedTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Hub{
		store:        opts.Store,
		authToken:    opts.AuthToken,
		initialize:   opts.Initialize,
		processedTTL: opts.ProcessedTTL,
		log:          opts.Logger.With("component", "hub"),
		upgrader: websocket.Upgrader{
			CheckOrigin:  func(_ *http.Request) bool { return true },
			Subprotocols: []string{Subprotocol(codec.JSON), Subprotocol(codec.CBOR)},
		},
		apps:     make(map[*appConn]struct{}),
		handlers: make(map[string]HostHandler),
	}
}

// HandleFunc registers fn for action name, replacing any previous handler.
func (h *Hub) HandleFunc(name string, fn HostHandler) {
	h.handlerMu.Lock()
	defer h.handlerMu.Unlock()
	if fn == nil {
		delete(h.handlers, name)
		return
	}
	h.handlers[name] = fn
}

func (h *Hub) handler(name string) HostHandler {
	h.handlerMu.RLock()
	defer h.handlerMu.RUnlock()
	return h.handlers[name]
}

// AppCount is the number of connected apps.
func (h *Hub) AppCount() int {
	h.appMu.RLock()
	defer h.appMu.RUnlock()
	return len(h.apps)
}

// HandleApp upgrades an app connection and serves it until it closes.
func (h *Hub) HandleApp(w http.ResponseWriter, r *http.Request) {
	if h.authToken != "" && r.Header.Get("Authorization") != "Bearer "+h.authToken {
		h.log.Warn("app unauthorized", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade app ws failed", "err", err)
		return
	}
	c, err := codecForSubprotocol(conn.Subprotocol())
	if err != nil {
		h.log.Warn("unsupported subprotocol", "subprotocol", conn.Subprotocol())
		_ = conn.Close()
		return
	}
	app := &appConn{
		conn:          conn,
		codec:         c,
		remote:        r.RemoteAddr,
		subscriptions: make(map[string]struct{}),
	}

	h.appMu.Lock()
	h.apps[app] = struct{}{}
	appCount := len(h.apps)
	h.appMu.Unlock()

	h.log.Info("app connected", "remote", r.RemoteAddr, "codec", c.Name(), "active_apps", appCount)
	h.readApp(r.Context(), app)
}

func (h *Hub) readApp(ctx context.Context, app *appConn) {
	defer func() {
		h.appMu.Lock()
		delete(h.apps, app)
		appCount := len(h.apps)
		h.appMu.Unlock()
		_ = app.conn.Close()
		h.log.Info("app disconnected", "remote", app.remote, "active_apps", appCount)
	}()

	for {
		_, data, err := app.conn.ReadMessage()
		if err != nil {
			h.log.Debug("recv app->host failed", "remote", app.remote, "err", err)
			return
		}
		var msg protocol.Message
		if err := app.codec.Unmarshal(data, &msg); err != nil {
			h.log.Warn("dropping undecodable envelope", "remote", app.remote, "err", err)
			continue
		}
		h.logEnvelope("recv app->host", &msg)
		if !msg.HasID() || !msg.HasFunc() {
			h.log.Debug("ignoring envelope without id or func", "remote", app.remote)
			continue
		}
		if err := h.handleRequest(ctx, app, &msg); err != nil {
			h.log.Warn("handle request failed", "id", *msg.ID, "func", msg.FuncName(), "err", err)
		}
	}
}

func (h *Hub) handleRequest(ctx context.Context, app *appConn, msg *protocol.Message) error {
	if msg.UUID != "" {
		seen, err := h.store.IsProcessed(ctx, msg.UUID)
		if err != nil {
			h.log.Warn("processed lookup failed", "uuid", msg.UUID, "err", err)
		} else if seen {
			h.log.Info("duplicate ignored", "id", *msg.ID, "uuid", msg.UUID, "func", msg.FuncName())
			return nil
		}
	}

	call := &Call{
		ID:               *msg.ID,
		UUID:             msg.UUID,
		Func:             msg.FuncName(),
		Args:             msg.Args,
		APIVersionTag:    msg.APIVersionTag,
		ProxiedFromChild: msg.IsProxiedFromChild,
		Remote:           app.remote,
		app:              app,
	}

	var reply []any
	respond := true
	switch call.Func {
	case protocol.FuncInitialize:
		reply = h.initialize.args()
	case protocol.FuncRegisterHandler:
		respond = false
		if len(call.Args) > 0 {
			if name, err := protocol.DecodeArg[string](call.Args[0]); err == nil && name != "" {
				app.subscribe(name)
				h.log.Debug("app subscribed", "remote", app.remote, "event", name)
			}
		}
	default:
		reply = h.dispatch(ctx, call)
	}

	if msg.UUID != "" {
		if err := h.store.MarkProcessed(ctx, msg.UUID, h.processedTTL); err != nil {
			h.log.Warn("mark processed failed", "uuid", msg.UUID, "err", err)
		}
	}
	if !respond {
		return nil
	}
	resp := protocol.NewResponse(call.ID, call.UUID, reply, false)
	if err := app.write(resp); err != nil {
		return fmt.Errorf("send host->app: %w", err)
	}
	h.log.Debug("send host->app", "id", call.ID, "func", call.Func)
	return nil
}

func (h *Hub) dispatch(ctx context.Context, call *Call) []any {
	fn := h.handler(call.Func)
	if fn == nil {
		h.log.Info("no handler for action", "func", call.Func)
		return []any{&protocol.SdkError{
			ErrorCode: protocol.ErrorCodeNotSupportedInCurrentContext,
			Message:   fmt.Sprintf("%s is not supported by this host", call.Func),
		}}
	}
	args, err := fn(ctx, call)
	if err != nil {
		var sdkErr *protocol.SdkError
		if !errors.As(err, &sdkErr) {
			sdkErr = &protocol.SdkError{ErrorCode: protocol.ErrorCodeInternalError, Message: err.Error()}
		}
		return []any{sdkErr}
	}
	return args
}

// Broadcast pushes an event to every app that registered a handler for fn and
// returns how many apps it reached.
func (h *Hub) Broadcast(fn string, args ...any) int {
	h.appMu.RLock()
	targets := make([]*appConn, 0, len(h.apps))
	for app := range h.apps {
		if app.subscribed(fn) {
			targets = append(targets, app)
		}
	}
	h.appMu.RUnlock()

	ev := protocol.NewEvent(fn, args)
	sent := 0
	for _, app := range targets {
		if err := app.write(ev); err != nil {
			h.log.Warn("broadcast to app failed", "remote", app.remote, "func", fn, "err", err)
			continue
		}
		sent++
	}
	h.log.Debug("broadcast to apps", "func", fn, "count", sent)
	return sent
}

// Close disconnects every app.
func (h *Hub) Close() {
	h.appMu.RLock()
	defer h.appMu.RUnlock()
	for app := range h.apps {
		_ = app.conn.Close()
	}
}

func (h *Hub) logEnvelope(prefix string, msg *protocol.Message) {
	h.log.Debug(prefix, "id", protocol.IDString(msg.ID), "uuid", msg.UUID, "func", msg.FuncName(), "timestamp", msg.Timestamp)
}
