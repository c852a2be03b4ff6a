package comm

// Window is a reference to another window that messages can be posted to.
//
// Implementations must be comparable pointer types: the communicator tells
// its parent and child apart by comparing Window values. PostMessage must not
// deliver synchronously into the receiving communicator on the caller's
// goroutine. The communicator calls PostMessage while holding its lock, so
// inbound processing waits for the call to return; implementations backed by
// a network connection must bound each write.
type Window interface {
	// PostMessage delivers data to the window if its origin matches
	// targetOrigin ("*" matches any origin). Delivery is best effort.
	PostMessage(data []byte, targetOrigin string) error
	Closed() bool
}

// MessageEvent is one inbound message as seen by the receiving frame.
type MessageEvent struct {
	Data   []byte
	Origin string
	Source Window
}

// Frame is the window the communicator runs in.
type Frame interface {
	// Self is the frame as other windows see it; messages whose source is
	// Self are ignored.
	Self() Window
	Origin() string
	// Parent returns the embedding window, or nil when the frame is top level.
	Parent() Window
	// Opener returns the window that opened this one, or nil.
	Opener() Window
	// NativeInterface returns the host provided bridge, or nil when the frame
	// is not running inside a native webview.
	NativeInterface() NativeInterface
	// AddMessageListener registers fn for every message posted to the frame
	// and returns a func that removes it.
	AddMessageListener(fn func(MessageEvent)) (remove func())
}

// NativeInterface is the bridge object a native host exposes when there is no
// parent window to post to.
type NativeInterface interface {
	// FramelessPostMessage is called with the communicator's lock held, like
	// Window.PostMessage.
	FramelessPostMessage(message string) error
	// SetOnNativeMessage installs the callback the host invokes with each
	// inbound envelope. A nil fn detaches it.
	SetOnNativeMessage(fn func(message string))
}

// Peer selects one of the two channels a communicator maintains.
type Peer int

const (
	PeerParent Peer = iota
	PeerChild
)

func (p Peer) String() string {
	if p == PeerChild {
		return "child"
	}
	return "parent"
}
