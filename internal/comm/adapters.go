package comm

import (
	"context"
	"errors"

	"github.com/HsiangNianian/framelink/internal/protocol"
)

// EnsureInitialized returns ErrNotInitialized unless the handshake completed.
func (c *Communicator) EnsureInitialized() error {
	if c.State() != StateReady {
		c.log.Debug("send rejected before initialization", "state", c.State().String())
		return ErrNotInitialized
	}
	return nil
}

// Send is a fire-and-forget request; any response is dropped.
func (c *Communicator) Send(tag, fn string, args ...any) error {
	if err := c.EnsureInitialized(); err != nil {
		return err
	}
	c.SendMessageToParent(tag, fn, args, nil)
	return nil
}

// SendWithCallback invokes cb with the response args spread positionally.
func (c *Communicator) SendWithCallback(tag, fn string, args []any, cb Callback) error {
	if err := c.EnsureInitialized(); err != nil {
		return err
	}
	c.SendMessageToParent(tag, fn, args, cb)
	return nil
}

// SendAsync returns the raw response args.
func (c *Communicator) SendAsync(ctx context.Context, tag, fn string, args ...any) ([]any, error) {
	if err := c.EnsureInitialized(); err != nil {
		return nil, err
	}
	return c.Await(ctx, c.SendMessageToParentAsync(tag, fn, args))
}

// Await waits for f like Future.Wait. If ctx ends first the pending entry is
// dropped, so a response that arrives later is ignored.
func (c *Communicator) Await(ctx context.Context, f *Future) ([]any, error) {
	args, err := f.Wait(ctx)
	if err != nil {
		c.mu.Lock()
		c.pending.removeFuture(f)
		c.mu.Unlock()
	}
	return args, err
}

// SendAndUnwrap expects a response of the form [value] and returns value.
func SendAndUnwrap[T any](ctx context.Context, c *Communicator, tag, fn string, args ...any) (T, error) {
	var zero T
	resp, err := c.SendAsync(ctx, tag, fn, args...)
	if err != nil {
		return zero, err
	}
	if len(resp) == 0 {
		return zero, nil
	}
	return protocol.DecodeArg[T](resp[0])
}

// SendAndHandleStatusAndReason expects [wasSuccessful, reason]. A false status
// becomes an error carrying reason.
func SendAndHandleStatusAndReason(ctx context.Context, c *Communicator, tag, fn string, args ...any) error {
	resp, err := c.SendAsync(ctx, tag, fn, args...)
	if err != nil {
		return err
	}
	return statusAndReason(resp, "")
}

// SendAndHandleStatusAndReasonWithDefaultError is SendAndHandleStatusAndReason
// with defaultError used when the host gives no reason.
func SendAndHandleStatusAndReasonWithDefaultError(ctx context.Context, c *Communicator, tag, fn, defaultError string, args ...any) error {
	resp, err := c.SendAsync(ctx, tag, fn, args...)
	if err != nil {
		return err
	}
	return statusAndReason(resp, defaultError)
}

func statusAndReason(resp []any, defaultError string) error {
	var status any
	if len(resp) > 0 {
		status = resp[0]
	}
	if protocol.Truthy(status) {
		return nil
	}
	var reason string
	if len(resp) > 1 {
		reason, _ = protocol.DecodeArg[string](resp[1])
	}
	if reason == "" && defaultError != "" {
		reason = defaultError
	}
	return errors.New(reason)
}

// SendAndHandleSdkError expects [error, result]. Any truthy first element
// fails the call, including values that are not error objects such as a bare
// true; those come back as *RejectionError.
func SendAndHandleSdkError[T any](ctx context.Context, c *Communicator, tag, fn string, args ...any) (T, error) {
	var zero T
	resp, err := c.SendAsync(ctx, tag, fn, args...)
	if err != nil {
		return zero, err
	}
	if len(resp) > 0 && protocol.Truthy(resp[0]) {
		if sdkErr, ok := protocol.AsSdkError(resp[0]); ok {
			return zero, sdkErr
		}
		if e, ok := resp[0].(error); ok {
			return zero, e
		}
		return zero, &RejectionError{Value: resp[0]}
	}
	if len(resp) < 2 {
		return zero, nil
	}
	return protocol.DecodeArg[T](resp[1])
}
