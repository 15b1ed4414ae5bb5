package scriptbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/danderson/scriptbus/arena"
	"github.com/danderson/scriptbus/cesu"
	"github.com/danderson/scriptbus/value"
	"github.com/kr/pretty"
)

// A Client makes method calls over a Connection.
//
// The zero value is not usable, Conn must be set. A Client is safe
// for concurrent use if its Connection is.
type Client struct {
	// Conn is the connection that carries method calls.
	Conn Connection
	// Timeout is how long calls wait for a reply. If zero,
	// DefaultTimeout is used.
	Timeout time.Duration
	// Logger receives debug dumps of calls, if Debug is set. If nil,
	// slog.Default() is used.
	Logger *slog.Logger
	// Debug, if true, logs every call's arguments and reply.
	Debug bool
}

// NewClient returns a Client that calls methods over conn, with the
// default timeout.
func NewClient(conn Connection) *Client {
	return &Client{Conn: conn}
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Call invokes a method. See [Call] for details.
func (c *Client) Call(ctx context.Context, destination, path, iface, method string, args ...value.Value) ([]value.Value, error) {
	if c.Debug {
		c.logger().Debug("dbus call",
			"destination", destination,
			"path", path,
			"method", iface+"."+method,
			"args", pretty.Sprint(value.ToMaps(args)))
	}
	ret, err := Call(ctx, c.Conn, c.timeout(), destination, path, iface, method, args)
	if c.Debug {
		if err != nil {
			c.logger().Debug("dbus call failed", "method", iface+"."+method, "err", err)
		} else {
			c.logger().Debug("dbus reply", "method", iface+"."+method, "values", pretty.Sprint(value.ToMaps(ret)))
		}
	}
	return ret, err
}

// Peer returns a Peer for the given bus name.
//
// The returned value is a purely local handle. It does not indicate
// that the requested peer exists, or that it is currently reachable.
func (c *Client) Peer(name string) Peer {
	return Peer{
		c:    c,
		name: name,
	}
}

// GoString returns the standard UTF-8 form of a decoded string-like
// value.
func GoString(v value.Value) (string, error) {
	var s string
	switch v := v.(type) {
	case value.String:
		s = string(v)
	case value.ObjectPath:
		s = string(v)
	case value.Signature:
		s = string(v)
	default:
		return "", fmt.Errorf("got %s value, want a string", kindName(v))
	}
	a := arena.New()
	defer a.Release()
	bs, err := cesu.ToUTF8(a, s)
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

func kindName(v value.Value) string {
	if v == nil {
		return "nil"
	}
	return v.Kind().String()
}

// single returns the only value of a reply.
func single(vs []value.Value, err error) (value.Value, error) {
	if err != nil {
		return nil, err
	}
	if len(vs) != 1 {
		return nil, DecodeError{Reason: fmt.Errorf("got %d reply values, want 1", len(vs))}
	}
	return vs[0], nil
}

func singleString(vs []value.Value, err error) (string, error) {
	v, err := single(vs, err)
	if err != nil {
		return "", err
	}
	return GoString(v)
}

func singleStrings(vs []value.Value, err error) ([]string, error) {
	v, err := single(vs, err)
	if err != nil {
		return nil, err
	}
	arr, ok := v.(value.Array)
	if !ok {
		return nil, DecodeError{Reason: fmt.Errorf("got %s reply, want ARRAY", kindName(v))}
	}
	ret := make([]string, 0, len(arr.Items))
	for _, it := range arr.Items {
		s, err := GoString(it)
		if err != nil {
			return nil, err
		}
		ret = append(ret, s)
	}
	return ret, nil
}

func singleUint32(vs []value.Value, err error) (uint32, error) {
	v, err := single(vs, err)
	if err != nil {
		return 0, err
	}
	u, ok := v.(value.Uint32)
	if !ok {
		return 0, DecodeError{Reason: fmt.Errorf("got %s reply, want UINT32", kindName(v))}
	}
	return uint32(u), nil
}

func singleBool(vs []value.Value, err error) (bool, error) {
	v, err := single(vs, err)
	if err != nil {
		return false, err
	}
	b, ok := v.(value.Boolean)
	if !ok {
		return false, DecodeError{Reason: fmt.Errorf("got %s reply, want BOOLEAN", kindName(v))}
	}
	return bool(b), nil
}
