// Package native carries frameless traffic over a byte stream, one JSON
// envelope per line. It lets an app that has no parent window talk to a host
// process over stdio or a pipe.
package native

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// MaxLineSize bounds a single envelope read from the stream.
const MaxLineSize = 1 << 20

var ErrBridgeClosed = errors.New("native bridge closed")

// Bridge implements comm.NativeInterface over r and w.
type Bridge struct {
	r   io.Reader
	log *slog.Logger

	wmu    sync.Mutex
	w      io.Writer
	closed bool

	mu        sync.Mutex
	onMessage func(string)
}

func NewBridge(r io.Reader, w io.Writer, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{r: r, w: w, log: logger.With("component", "native")}
}

// FramelessPostMessage writes message followed by a newline. Messages that
// contain a newline would split the framing and are rejected.
func (b *Bridge) FramelessPostMessage(message string) error {
	if strings.ContainsRune(message, '\n') {
		return errors.New("native message contains a newline")
	}
	b.wmu.Lock()
	defer b.wmu.Unlock()
	if b.closed {
		return ErrBridgeClosed
	}
	if _, err := io.WriteString(b.w, message+"\n"); err != nil {
		return fmt.Errorf("write native message: %w", err)
	}
	return nil
}

func (b *Bridge) SetOnNativeMessage(fn func(message string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onMessage = fn
}

// Run reads lines until the stream ends or ctx is cancelled and hands each
// non-empty one to the installed callback. Lines that arrive while no callback
// is installed are dropped. A clean EOF returns nil.
func (b *Bridge) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(b.r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					if err != nil {
						return fmt.Errorf("read native stream: %w", err)
					}
				default:
				}
				return nil
			}
			if line == "" {
				continue
			}
			b.mu.Lock()
			fn := b.onMessage
			b.mu.Unlock()
			if fn == nil {
				b.log.Debug("dropping native message with no listener")
				continue
			}
			fn(line)
		}
	}
}

// Close stops further writes. It does not close the underlying streams.
func (b *Bridge) Close() {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	b.closed = true
}
