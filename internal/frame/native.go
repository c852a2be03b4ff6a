package frame

import "sync"

// NativeBridge is an in-process stand-in for a webview host bridge. It records
// what the app posts and lets the host push messages back.
type NativeBridge struct {
	mu        sync.Mutex
	posted    []string
	onMessage func(string)
	onPost    func(string)
}

// NewNativeBridge returns a bridge. onPost, if non-nil, is called on a new
// goroutine for every message the app posts.
func NewNativeBridge(onPost func(message string)) *NativeBridge {
	return &NativeBridge{onPost: onPost}
}

func (b *NativeBridge) FramelessPostMessage(message string) error {
	b.mu.Lock()
	b.posted = append(b.posted, message)
	onPost := b.onPost
	b.mu.Unlock()
	if onPost != nil {
		go onPost(message)
	}
	return nil
}

func (b *NativeBridge) SetOnNativeMessage(fn func(message string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onMessage = fn
}

// Deliver invokes the app's native message callback. It reports false when
// no callback is installed.
func (b *NativeBridge) Deliver(message string) bool {
	b.mu.Lock()
	fn := b.onMessage
	b.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(message)
	return true
}

// Posted returns a copy of everything the app has posted.
func (b *NativeBridge) Posted() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.posted...)
}
