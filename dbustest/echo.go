package dbustest

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/danderson/scriptbus"
)

// Echo is an in-memory [scriptbus.Connection] that answers every
// method call with a copy of the call's arguments.
//
// Reply, if set, is consulted first. It may return a reply of its
// own, or nil to fall back to echoing.
type Echo struct {
	Reply func(call *scriptbus.Message) (*scriptbus.Message, error)

	mu     sync.Mutex
	calls  []string
	closed bool
}

// Calls returns the "interface.method" of each call received so far.
func (e *Echo) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Close makes subsequent calls fail.
func (e *Echo) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *Echo) SendWithReply(ctx context.Context, m *scriptbus.Message, timeout time.Duration) (*scriptbus.Message, error) {
	e.mu.Lock()
	closed := e.closed
	e.calls = append(e.calls, m.Interface+"."+m.Member)
	e.mu.Unlock()
	if closed {
		return nil, net.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.Seal(); err != nil {
		return nil, err
	}
	if !m.WantReply() {
		return nil, nil
	}

	if e.Reply != nil {
		ret, err := e.Reply(m)
		if err != nil || ret != nil {
			if ret != nil {
				if err := ret.Seal(); err != nil {
					ret.Release()
					return nil, err
				}
			}
			return ret, err
		}
	}

	ret := scriptbus.NewMethodReturn(m)
	if it, ok := m.Args(); ok {
		if err := CopyArgs(ret.AppendArgs(), it); err != nil {
			ret.Release()
			return nil, err
		}
	}
	if err := ret.Seal(); err != nil {
		ret.Release()
		return nil, err
	}
	return ret, nil
}

// CopyArgs appends every remaining value of it to w, preserving
// exact types.
func CopyArgs(w scriptbus.Appender, it scriptbus.Iter) error {
	for it.ArgType() != scriptbus.TypeInvalid {
		if err := copyValue(w, it); err != nil {
			return err
		}
		it.Next()
	}
	return it.Err()
}

func copyValue(w scriptbus.Appender, it scriptbus.Iter) error {
	code := it.ArgType()
	if code.IsBasic() {
		v, err := it.Basic()
		if err != nil {
			return err
		}
		if code == scriptbus.TypeUnixFD {
			// AppendBasic takes its own copy.
			defer unix.Close(v.(int))
		}
		return w.AppendBasic(code, v)
	}

	var sig scriptbus.Signature
	if code == scriptbus.TypeArray {
		sig = it.Signature().Elem()
	}
	sub, err := it.Recurse()
	if err != nil {
		return err
	}
	if code == scriptbus.TypeVariant {
		sig = sub.Signature()
	}
	sw, err := w.OpenContainer(code, sig)
	if err != nil {
		return err
	}
	if err := CopyArgs(sw, sub); err != nil {
		w.AbandonContainer(sw)
		return err
	}
	return w.CloseContainer(sw)
}
