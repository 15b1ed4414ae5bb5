package scriptbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/danderson/scriptbus/arena"
	"github.com/danderson/scriptbus/cesu"
	"github.com/danderson/scriptbus/value"
)

// DefaultTimeout is how long a method call waits for a reply, if the
// caller doesn't say otherwise.
const DefaultTimeout = 60 * time.Second

// A Connection sends method calls to a DBus peer.
type Connection interface {
	// SendWithReply sends m and waits up to timeout for the peer's
	// reply. If m doesn't expect a reply, SendWithReply returns a nil
	// Message once m is sent.
	//
	// The caller owns the returned Message, and must Release it.
	SendWithReply(ctx context.Context, m *Message, timeout time.Duration) (*Message, error)
}

// Call invokes method on the given interface of the object at path,
// offered by destination, and returns the reply's values.
//
// The four names, and all string-like values in args and in the
// result, are in the script's modified UTF-8 encoding. Call returns
// a nil slice if the method replied with no values.
//
// Errors reported by the peer, and failures to deliver the call or
// receive its reply, are returned as [RemoteError].
func Call(ctx context.Context, conn Connection, timeout time.Duration, destination, path, iface, method string, args []value.Value) ([]value.Value, error) {
	return call(ctx, arena.New(), conn, timeout, destination, path, iface, method, args)
}

func call(ctx context.Context, a *arena.Arena, conn Connection, timeout time.Duration, destination, path, iface, method string, args []value.Value) ([]value.Value, error) {
	defer a.Release()

	names := [4]string{destination, path, iface, method}
	for i, n := range names {
		bs, err := cesu.ToUTF8(a, n)
		if err != nil {
			return nil, err
		}
		names[i] = string(bs)
	}

	msg, err := NewMethodCall(names[0], names[1], names[2], names[3])
	if err != nil {
		return nil, TypeError{"method call", err}
	}
	defer msg.Release()

	w := msg.AppendArgs()
	for i, arg := range args {
		if err := EncodeAny(a, w, arg); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
	}

	reply, err := conn.SendWithReply(ctx, msg, timeout)
	if err != nil {
		return nil, asRemoteError(err)
	}
	if reply == nil {
		return nil, nil
	}
	defer reply.Release()
	if err := reply.Err(); err != nil {
		return nil, err
	}

	it, ok := reply.Args()
	if !ok {
		return nil, nil
	}
	return decodeAll(a, it)
}

// asRemoteError converts a local delivery failure into a
// RemoteError.
func asRemoteError(err error) error {
	var re RemoteError
	switch {
	case errors.As(err, &re):
		return re
	case errors.Is(err, context.DeadlineExceeded):
		return RemoteError{Name: ErrNameNoReply, Message: "did not receive a reply before the deadline", Err: err}
	case errors.Is(err, net.ErrClosed):
		return RemoteError{Name: ErrNameDisconnected, Message: "connection is closed", Err: err}
	default:
		return RemoteError{Name: ErrNameFailed, Message: err.Error(), Err: err}
	}
}
