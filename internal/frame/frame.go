// Package frame is an in-process window system. Windows have an origin, an
// optional parent and opener, and deliver posted messages asynchronously on
// their own goroutine, in post order, the way a browser event loop does.
//
// One window's view of another is a *Ref. Refs are memoized per (viewer,
// target) pair, so the Ref a child holds for its parent is the same value the
// child sees as the Source of messages from that parent.
package frame

import (
	"errors"
	"sync"

	"github.com/HsiangNianian/framelink/internal/comm"
)

var ErrClosed = errors.New("window closed")

type listener struct {
	id int
	fn func(comm.MessageEvent)
}

type Window struct {
	origin string
	parent *Window
	opener *Window

	mu        sync.Mutex
	native    comm.NativeInterface
	listeners []listener
	nextID    int
	refs      map[*Window]*Ref
	inbox     []comm.MessageEvent
	closed    bool

	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

// New creates a top level window.
func New(origin string) *Window {
	w := &Window{
		origin: origin,
		refs:   make(map[*Window]*Ref),
		signal: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// NewChild creates a window embedded in parent, like an iframe.
func NewChild(parent *Window, origin string) *Window {
	w := New(origin)
	w.parent = parent
	return w
}

// NewPopup creates a window opened by opener.
func NewPopup(opener *Window, origin string) *Window {
	w := New(origin)
	w.opener = opener
	return w
}

// SetNativeInterface attaches a host bridge to the window.
func (w *Window) SetNativeInterface(n comm.NativeInterface) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.native = n
}

func (w *Window) Origin() string { return w.origin }

func (w *Window) Self() comm.Window { return w.RefTo(w) }

func (w *Window) Parent() comm.Window {
	if w.parent == nil {
		return nil
	}
	return w.RefTo(w.parent)
}

func (w *Window) Opener() comm.Window {
	if w.opener == nil {
		return nil
	}
	return w.RefTo(w.opener)
}

func (w *Window) NativeInterface() comm.NativeInterface {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.native
}

func (w *Window) AddMessageListener(fn func(comm.MessageEvent)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.listeners = append(w.listeners, listener{id: id, fn: fn})
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			for i, l := range w.listeners {
				if l.id == id {
					w.listeners = append(w.listeners[:i], w.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// ListenerCount is the number of registered message listeners.
func (w *Window) ListenerCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.listeners)
}

// RefTo returns this window's view of target.
func (w *Window) RefTo(target *Window) *Ref {
	w.mu.Lock()
	defer w.mu.Unlock()
	ref, ok := w.refs[target]
	if !ok {
		ref = &Ref{viewer: w, target: target}
		w.refs[target] = ref
	}
	return ref
}

// Close stops delivery. Pending messages are discarded.
func (w *Window) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.inbox = nil
	w.mu.Unlock()
	close(w.stop)
	<-w.done
}

func (w *Window) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Window) enqueue(ev comm.MessageEvent) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.inbox = append(w.inbox, ev)
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
	return nil
}

func (w *Window) next() (comm.MessageEvent, []listener, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.inbox) == 0 || w.closed {
		return comm.MessageEvent{}, nil, false
	}
	ev := w.inbox[0]
	w.inbox[0] = comm.MessageEvent{}
	w.inbox = w.inbox[1:]
	return ev, append([]listener(nil), w.listeners...), true
}

func (w *Window) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-w.signal:
		}
		for {
			ev, listeners, ok := w.next()
			if !ok {
				break
			}
			for _, l := range listeners {
				l.fn(ev)
			}
		}
	}
}

// Ref is one window's handle on another.
type Ref struct {
	viewer *Window
	target *Window
}

// PostMessage queues data on the target window. Messages whose targetOrigin
// does not match the target's origin are silently discarded.
func (r *Ref) PostMessage(data []byte, targetOrigin string) error {
	if targetOrigin != "*" && targetOrigin != r.target.origin {
		return nil
	}
	return r.target.enqueue(comm.MessageEvent{
		Data:   append([]byte(nil), data...),
		Origin: r.viewer.origin,
		Source: r.target.RefTo(r.viewer),
	})
}

func (r *Ref) Closed() bool { return r.target.Closed() }

// Window returns the window the ref points at.
func (r *Ref) Window() *Window { return r.target }
