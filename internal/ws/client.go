package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HsiangNianian/framelink/internal/codec"
	"github.com/HsiangNianian/framelink/internal/comm"
)

// DefaultAppOrigin is the origin a dialed frame reports for itself.
const DefaultAppOrigin = "app://framelink"

var ErrConnClosed = errors.New("websocket connection closed")

type DialOptions struct {
	// Codec must match what the communicator using the frame encodes with.
	Codec     codec.Codec
	AuthToken string
	Origin    string
	Dialer    *websocket.Dialer
	Logger    *slog.Logger
	// WriteTimeout bounds each write to the host. Defaults to
	// DefaultWriteTimeout.
	WriteTimeout time.Duration
}

type listener struct {
	id int
	fn func(comm.MessageEvent)
}

// Frame is a comm.Frame whose parent is a host reached over a websocket.
// Messages read from the socket are delivered to listeners on the frame's
// read goroutine, in arrival order.
type Frame struct {
	conn       *websocket.Conn
	codec      codec.Codec
	origin     string
	hostOrigin string
	log        *slog.Logger
	writeWait  time.Duration

	parent *remoteWindow
	self   *selfWindow

	writeMu sync.Mutex

	mu        sync.Mutex
	listeners []listener
	nextID    int
	closed    bool
	done      chan struct{}
}

// Dial connects to a hub at rawURL. The host's origin is derived from the
// URL: ws becomes http and wss becomes https.
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*Frame, error) {
	hostOrigin, err := OriginFromURL(rawURL)
	if err != nil {
		return nil, err
	}
	if opts.Codec == nil {
		opts.Codec = codec.JSON
	}
	if opts.Origin == "" {
		opts.Origin = DefaultAppOrigin
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	dialer := opts.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		dialer = &d
	}
	dialer.Subprotocols = []string{Subprotocol(opts.Codec)}

	header := http.Header{}
	if opts.AuthToken != "" {
		header.Set("Authorization", "Bearer "+opts.AuthToken)
	}
	opts.Logger.Debug("dial host", "url", rawURL, "codec", opts.Codec.Name())
	conn, _, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial host %s: %w", rawURL, err)
	}

	f := &Frame{
		conn:       conn,
		codec:      opts.Codec,
		origin:     opts.Origin,
		hostOrigin: hostOrigin,
		log:        opts.Logger.With("component", "ws-frame", "host", hostOrigin),
		writeWait:  opts.WriteTimeout,
		done:       make(chan struct{}),
	}
	f.parent = &remoteWindow{f: f}
	f.self = &selfWindow{f: f}
	go f.readLoop()
	return f, nil
}

// OriginFromURL maps a websocket URL to the origin of the page serving it.
func OriginFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse host url: %w", err)
	}
	scheme := u.Scheme
	switch scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported host url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("host url %q has no host", rawURL)
	}
	return scheme + "://" + u.Host, nil
}

// HostOrigin is the origin messages from the host arrive with.
func (f *Frame) HostOrigin() string { return f.hostOrigin }

func (f *Frame) Self() comm.Window                     { return f.self }
func (f *Frame) Origin() string                        { return f.origin }
func (f *Frame) Parent() comm.Window                   { return f.parent }
func (f *Frame) Opener() comm.Window                   { return nil }
func (f *Frame) NativeInterface() comm.NativeInterface { return nil }

func (f *Frame) AddMessageListener(fn func(comm.MessageEvent)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners = append(f.listeners, listener{id: id, fn: fn})
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			for i, l := range f.listeners {
				if l.id == id {
					f.listeners = append(f.listeners[:i], f.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Done is closed when the connection ends.
func (f *Frame) Done() <-chan struct{} { return f.done }

// Close closes the connection and waits for the read loop to exit.
func (f *Frame) Close() error {
	f.writeMu.Lock()
	_ = f.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	f.writeMu.Unlock()
	err := f.conn.Close()
	<-f.done
	return err
}

func (f *Frame) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Frame) readLoop() {
	defer func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.done)
	}()
	for {
		_, data, err := f.conn.ReadMessage()
		if err != nil {
			f.log.Debug("recv host->app ended", "err", err)
			return
		}
		f.deliver(comm.MessageEvent{Data: data, Origin: f.hostOrigin, Source: f.parent})
	}
}

func (f *Frame) deliver(ev comm.MessageEvent) {
	f.mu.Lock()
	listeners := append([]listener(nil), f.listeners...)
	f.mu.Unlock()
	for _, l := range listeners {
		l.fn(ev)
	}
}

func (f *Frame) write(data []byte) error {
	if f.isClosed() {
		return ErrConnClosed
	}
	messageType := websocket.TextMessage
	if f.codec.Binary() {
		messageType = websocket.BinaryMessage
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_ = f.conn.SetWriteDeadline(time.Now().Add(f.writeWait))
	return f.conn.WriteMessage(messageType, data)
}

// remoteWindow is the frame's handle on the host.
type remoteWindow struct {
	f *Frame
}

func (w *remoteWindow) PostMessage(data []byte, targetOrigin string) error {
	if targetOrigin != "*" && targetOrigin != w.f.hostOrigin {
		w.f.log.Debug("dropping message for mismatched target origin", "target_origin", targetOrigin)
		return nil
	}
	return w.f.write(data)
}

func (w *remoteWindow) Closed() bool { return w.f.isClosed() }

// selfWindow loops messages back to the frame's own listeners.
type selfWindow struct {
	f *Frame
}

func (w *selfWindow) PostMessage(data []byte, targetOrigin string) error {
	if targetOrigin != "*" && targetOrigin != w.f.origin {
		return nil
	}
	if w.f.isClosed() {
		return ErrConnClosed
	}
	ev := comm.MessageEvent{Data: append([]byte(nil), data...), Origin: w.f.origin, Source: w}
	go w.f.deliver(ev)
	return nil
}

func (w *selfWindow) Closed() bool { return w.f.isClosed() }
