package scriptbus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/danderson/scriptbus/arena"
	"github.com/danderson/scriptbus/transport"
	"github.com/danderson/scriptbus/value"
)

// BusType identifies one of the well-known message buses.
type BusType int

const (
	BusSession BusType = iota
	BusSystem
	BusStarter
)

func (b BusType) String() string {
	switch b {
	case BusSession:
		return "session"
	case BusSystem:
		return "system"
	case BusStarter:
		return "starter"
	default:
		return fmt.Sprintf("BusType(%d)", int(b))
	}
}

// ParseBusType parses a bus name as accepted by BusType.String.
func ParseBusType(s string) (BusType, error) {
	switch strings.ToLower(s) {
	case "session", "":
		return BusSession, nil
	case "system":
		return BusSystem, nil
	case "starter":
		return BusStarter, nil
	default:
		return 0, fmt.Errorf("unknown bus type %q", s)
	}
}

const defaultSystemBus = "unix:path=/run/dbus/system_bus_socket"

// Open connects to a well-known bus.
func Open(ctx context.Context, bus BusType) (*Conn, error) {
	switch bus {
	case BusSession:
		return SessionBus(ctx)
	case BusSystem:
		return SystemBus(ctx)
	case BusStarter:
		return StarterBus(ctx)
	default:
		return nil, fmt.Errorf("unknown bus type %d", int(bus))
	}
}

// SystemBus connects to the system bus.
func SystemBus(ctx context.Context) (*Conn, error) {
	addr := os.Getenv("DBUS_SYSTEM_BUS_ADDRESS")
	if addr == "" {
		addr = defaultSystemBus
	}
	return Dial(ctx, addr)
}

// SessionBus connects to the current user's session bus.
func SessionBus(ctx context.Context) (*Conn, error) {
	addr := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	if addr == "" {
		return nil, errors.New("session bus not available")
	}
	return Dial(ctx, addr)
}

// StarterBus connects to the bus that started the current process,
// if it was started by bus activation.
func StarterBus(ctx context.Context) (*Conn, error) {
	addr := os.Getenv("DBUS_STARTER_ADDRESS")
	if addr == "" {
		return nil, errors.New("starter bus not available")
	}
	return Dial(ctx, addr)
}

// Dial connects to the bus at address, a DBus server address such as
// "unix:path=/run/dbus/system_bus_socket".
func Dial(ctx context.Context, address string) (*Conn, error) {
	t, err := transport.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	return newConn(ctx, t)
}

func newConn(ctx context.Context, t transport.Transport) (*Conn, error) {
	ret := &Conn{
		t:        t,
		logger:   slog.Default().With("component", "dbus"),
		calls:    map[uint32]*pendingCall{},
		handlers: map[interfaceMember]HandlerFunc{},
	}

	go ret.readLoop()

	id, err := singleString(NewClient(ret).bus().Call(ctx, "Hello"))
	if err != nil {
		ret.Close()
		return nil, fmt.Errorf("getting DBus client ID: %w", err)
	}
	ret.clientID = id

	// Implement the Peer interface, on all objects.
	ret.Handle(ifacePeer, "Ping", func(context.Context, string, []value.Value) ([]value.Value, error) {
		return nil, nil
	})
	uuid := sync.OnceValues(func() (string, error) {
		bs, err := os.ReadFile("/etc/machine-id")
		if errors.Is(err, fs.ErrNotExist) {
			bs, err = os.ReadFile("/var/lib/dbus/machine-id")
		}
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bs)), nil
	})
	ret.Handle(ifacePeer, "GetMachineId", func(context.Context, string, []value.Value) ([]value.Value, error) {
		id, err := uuid()
		if err != nil {
			return nil, err
		}
		return []value.Value{value.String(id)}, nil
	})

	return ret, nil
}

// Conn is a DBus connection.
//
// Conn implements [Connection], and is safe for concurrent use.
type Conn struct {
	t        transport.Transport
	clientID string
	logger   *slog.Logger

	writeMu sync.Mutex

	mu         sync.Mutex
	closed     bool
	calls      map[uint32]*pendingCall
	lastSerial uint32
	handlers   map[interfaceMember]HandlerFunc
}

type interfaceMember struct {
	Interface string
	Member    string
}

func (im interfaceMember) String() string {
	return im.Interface + "." + im.Member
}

type pendingCall struct {
	notify chan struct{}
	reply  *Message
	err    error
}

// A HandlerFunc handles an incoming method call on the object at
// path. args are the call's arguments. The returned values are sent
// back to the caller.
//
// If the returned error is a [RemoteError], its name and message are
// sent to the caller. Other errors are sent as
// org.freedesktop.DBus.Error.Failed.
type HandlerFunc func(ctx context.Context, path string, args []value.Value) ([]value.Value, error)

// Close closes the DBus connection. Calls waiting for a reply fail
// with a RemoteError wrapping net.ErrClosed.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pend := c.calls
	c.calls = nil
	for _, p := range pend {
		p.err = net.ErrClosed
		close(p.notify)
	}
	c.mu.Unlock()
	return c.t.Close()
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// LocalName returns the connection's unique bus name.
func (c *Conn) LocalName() string {
	return c.clientID
}

// Handle calls fn to handle incoming method calls to methodName on
// interfaceName, on any object path.
func (c *Conn) Handle(interfaceName, methodName string, fn HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[interfaceMember{interfaceName, methodName}] = fn
}

// SendWithReply sends m, and waits up to timeout for its reply. A
// timeout of zero waits until ctx is done.
//
// If no reply arrives in time, SendWithReply returns a RemoteError
// named org.freedesktop.DBus.Error.NoReply.
func (c *Conn) SendWithReply(ctx context.Context, m *Message, timeout time.Duration) (*Message, error) {
	wantReply := m.WantReply()
	serial, pending, err := func() (uint32, *pendingCall, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return 0, nil, net.ErrClosed
		}
		c.lastSerial++
		if c.lastSerial == 0 {
			c.lastSerial++
		}
		var pend *pendingCall
		if wantReply {
			pend = &pendingCall{notify: make(chan struct{})}
			c.calls[c.lastSerial] = pend
		}
		return c.lastSerial, pend, nil
	}()
	if err != nil {
		return nil, err
	}

	m.Serial = serial
	if err := c.writeMsg(m); err != nil {
		if pending != nil {
			c.abandon(serial, pending)
		}
		return nil, err
	}
	if pending == nil {
		return nil, nil
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-pending.notify:
		return pending.reply, pending.err
	case <-ctx.Done():
		err = ctx.Err()
	case <-expired:
		err = RemoteError{
			Name:    ErrNameNoReply,
			Message: fmt.Sprintf("did not receive a reply within %v", timeout),
		}
	}
	c.abandon(serial, pending)
	return nil, err
}

// abandon forgets a pending call that nobody is waiting for any more.
func (c *Conn) abandon(serial uint32, p *pendingCall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls[serial] == p {
		delete(c.calls, serial)
		return
	}
	// Reply was delivered after the caller gave up.
	if p.reply != nil {
		p.reply.Release()
		p.reply = nil
	}
}

func (c *Conn) writeMsg(m *Message) error {
	hdr, body, err := m.marshal()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.t.WriteWithFiles(hdr, m.files); err != nil {
		return err
	}
	if _, err := c.t.Write(body); err != nil {
		return err
	}
	return nil
}

func (c *Conn) readLoop() {
	for {
		m, err := readMessage(c.t, c.t.GetFiles)
		if err != nil {
			if c.isClosed() {
				// Conn was shut down.
				return
			}
			// The stream is no longer aligned on message boundaries,
			// which is fatal to the Conn.
			c.logger.Warn("read error, closing connection", "err", err)
			c.Close()
			return
		}
		c.dispatch(m)
	}
}

func (c *Conn) dispatch(m *Message) {
	switch m.Type {
	case msgTypeReturn, msgTypeError:
		c.dispatchReply(m)
	case msgTypeCall:
		go c.dispatchCall(m)
	default:
		c.logger.Debug("ignoring message", "msg", m)
		m.Release()
	}
}

func (c *Conn) dispatchReply(m *Message) {
	delivered := func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		p := c.calls[m.ReplySerial]
		if p == nil {
			return false
		}
		delete(c.calls, m.ReplySerial)
		p.reply = m
		close(p.notify)
		return true
	}()
	if !delivered {
		// Response to a canceled call
		c.logger.Debug("dropping reply to abandoned call", "msg", m)
		m.Release()
	}
}

func (c *Conn) dispatchCall(call *Message) {
	defer call.Release()
	handler := func() HandlerFunc {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.handlers[interfaceMember{call.Interface, call.Member}]
	}()

	ctx := withContextSender(context.Background(), call.Sender)
	reply, err := c.handleCall(ctx, handler, call)
	if err != nil {
		c.logger.Warn("building reply failed", "call", call, "err", err)
		return
	}
	if !call.WantReply() {
		reply.Release()
		return
	}
	defer reply.Release()
	if _, err := c.SendWithReply(ctx, reply, 0); err != nil {
		c.logger.Warn("sending reply failed", "call", call, "err", err)
	}
}

func (c *Conn) handleCall(ctx context.Context, handler HandlerFunc, call *Message) (*Message, error) {
	if handler == nil {
		return errorReply(call, ErrNameUnknownMethod, fmt.Sprintf("no method %s.%s on object %s", call.Interface, call.Member, call.Path))
	}

	a := arena.New()
	defer a.Release()

	var args []value.Value
	if it, ok := call.Args(); ok {
		var err error
		if args, err = decodeAll(a, it); err != nil {
			return errorReply(call, ErrNameInvalidArgs, err.Error())
		}
	}

	ret, err := handler(ctx, call.Path, args)
	if err != nil {
		var re RemoteError
		if errors.As(err, &re) {
			return errorReply(call, re.Name, re.Message)
		}
		return errorReply(call, ErrNameFailed, err.Error())
	}

	reply := NewMethodReturn(call)
	w := reply.AppendArgs()
	for i, v := range ret {
		if err := EncodeAny(a, w, v); err != nil {
			reply.Release()
			return errorReply(call, ErrNameFailed, fmt.Sprintf("encoding reply value %d: %v", i, err))
		}
	}
	return reply, nil
}

func errorReply(call *Message, name, msg string) (*Message, error) {
	return NewError(call, name, strings.ToValidUTF8(msg, "\uFFFD"))
}
