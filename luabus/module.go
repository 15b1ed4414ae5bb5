package luabus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Shopify/go-lua"
	"github.com/danderson/scriptbus"
	"github.com/danderson/scriptbus/arena"
	"github.com/danderson/scriptbus/value"
)

// Options configure the dbus module.
type Options struct {
	// Timeout is the initial method call timeout. Scripts can change
	// it with set_timeout. If zero, scriptbus.DefaultTimeout is used.
	Timeout time.Duration
	// Debug enables call dumps. Scripts can change it with
	// set_debug.
	Debug bool
	// Logger receives call dumps. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Open connects to a bus. If nil, connections are made with
	// scriptbus.Open.
	Open func(ctx context.Context, bus scriptbus.BusType) (scriptbus.Connection, error)
}

type module struct {
	ctx     context.Context
	timeout time.Duration
	debug   bool
	logger  *slog.Logger
	open    func(context.Context, scriptbus.BusType) (scriptbus.Connection, error)
}

// Open makes the dbus module available to scripts running in l,
// through require("dbus"). Blocking calls made by scripts are bound
// to ctx.
func Open(ctx context.Context, l *lua.State, opts Options) {
	m := &module{
		ctx:     ctx,
		timeout: opts.Timeout,
		debug:   opts.Debug,
		logger:  opts.Logger,
		open:    opts.Open,
	}
	if m.timeout <= 0 {
		m.timeout = scriptbus.DefaultTimeout
	}
	if m.open == nil {
		m.open = func(ctx context.Context, bus scriptbus.BusType) (scriptbus.Connection, error) {
			return scriptbus.Open(ctx, bus)
		}
	}
	lua.Require(l, "dbus", m.load, false)
	l.Pop(1)
}

func (m *module) load(l *lua.State) int {
	lua.NewLibrary(l, []lua.RegistryFunction{
		{Name: "open", Function: m.openBus},
		{Name: "close", Function: m.close},
		{Name: "call", Function: m.call},
		{Name: "call_typed", Function: m.callTyped},
		{Name: "set_timeout", Function: m.setTimeout},
		{Name: "set_debug", Function: m.setDebug},
		{Name: "signature", Function: m.signature},
		{Name: "get_children", Function: m.getChildren},
		{Name: "implements", Function: m.implements},
		{Name: "get_properties", Function: m.getProperties},
		{Name: "set_property", Function: m.setProperty},
	})
	for _, b := range []struct {
		name string
		bus  scriptbus.BusType
	}{
		{"BUS_SESSION", scriptbus.BusSession},
		{"BUS_SYSTEM", scriptbus.BusSystem},
		{"BUS_STARTER", scriptbus.BusStarter},
	} {
		l.PushInteger(int(b.bus))
		l.SetField(-2, b.name)
	}
	registerTypes(l)
	registerConnType(l)
	return 1
}

const connTypeName = "dbus.connection"

// connection is the userdata behind a script's connection handle.
type connection struct {
	bus    scriptbus.BusType
	conn   scriptbus.Connection
	closed bool
}

func registerConnType(l *lua.State) {
	lua.NewMetaTable(l, connTypeName)
	l.PushGoFunction(func(l *lua.State) int {
		c := lua.CheckUserData(l, 1, connTypeName).(*connection)
		state := "open"
		if c.closed {
			state = "closed"
		}
		l.PushString(fmt.Sprintf("DBusConnection(%s, %s)", c.bus, state))
		return 1
	})
	l.SetField(-2, "__tostring")
	l.PushString("DBusConnection")
	l.SetField(-2, "is_a")
	l.Pop(1)
}

func (m *module) checkConn(l *lua.State, index int) *connection {
	c, ok := lua.CheckUserData(l, index, connTypeName).(*connection)
	if !ok || c == nil {
		lua.ArgumentError(l, index, "DBus connection expected")
		return nil
	}
	if c.closed {
		lua.ArgumentError(l, index, "DBus connection is closed")
		return nil
	}
	return c
}

func (m *module) client(c *connection) *scriptbus.Client {
	return &scriptbus.Client{
		Conn:    c.conn,
		Timeout: m.timeout,
		Logger:  m.logger,
		Debug:   m.debug,
	}
}

// open(bus_type) opens a connection to one of the well-known buses.
func (m *module) openBus(l *lua.State) int {
	bus := scriptbus.BusType(lua.OptInteger(l, 1, int(scriptbus.BusSession)))
	conn, err := m.open(m.ctx, bus)
	if err != nil {
		raise(l, err)
		return 0
	}
	l.PushUserData(&connection{bus: bus, conn: conn})
	lua.SetMetaTableNamed(l, connTypeName)
	return 1
}

// close(conn) closes a connection.
func (m *module) close(l *lua.State) int {
	c := m.checkConn(l, 1)
	c.closed = true
	if cl, ok := c.conn.(io.Closer); ok {
		if err := cl.Close(); err != nil {
			raise(l, err)
		}
	}
	return 0
}

// set_timeout(ms) sets the call timeout.
func (m *module) setTimeout(l *lua.State) int {
	ms := lua.CheckInteger(l, 1)
	if ms <= 0 {
		lua.ArgumentError(l, 1, "timeout must be positive")
		return 0
	}
	m.timeout = time.Duration(ms) * time.Millisecond
	return 0
}

// set_debug(enabled) turns call dumps on or off.
func (m *module) setDebug(l *lua.State) int {
	m.debug = l.ToBoolean(1)
	return 0
}

// signature(descriptor) compiles a type descriptor.
func (m *module) signature(l *lua.State) int {
	d := lua.CheckString(l, 1)
	sig, err := scriptbus.Compile(value.Descriptor(d))
	if err != nil {
		raise(l, err)
		return 0
	}
	l.PushString(sig.String())
	return 1
}

// checkArgs converts the call arguments starting at index. They are
// either one list of typed values, or the typed values themselves as
// trailing arguments.
func checkArgs(l *lua.State, index int) []value.Value {
	if l.IsNoneOrNil(index) {
		return nil
	}
	lua.CheckType(l, index, lua.TypeTable)
	var raw []any
	if isTypedValue(l, index) {
		for i := index; i <= l.Top(); i++ {
			if !isTypedValue(l, i) {
				lua.ArgumentError(l, i, "typed value expected")
				return nil
			}
			x, err := toGo(l, i)
			if err != nil {
				raise(l, fmt.Errorf("argument %d: %w", i-index+1, err))
				return nil
			}
			raw = append(raw, x)
		}
	} else {
		x, err := toGo(l, index)
		if err != nil {
			raise(l, fmt.Errorf("args%w", err))
			return nil
		}
		list, ok := x.([]any)
		if !ok {
			lua.ArgumentError(l, index, "list of typed values expected")
			return nil
		}
		raw = list
	}
	ret := make([]value.Value, 0, len(raw))
	for i, x := range raw {
		v, err := value.FromAny(x)
		if err != nil {
			raise(l, fmt.Errorf("argument %d: %w", i+1, err))
			return nil
		}
		ret = append(ret, v)
	}
	return ret
}

// isTypedValue reports whether the value at index is a typed value
// table, as made by the type constructors.
func isTypedValue(l *lua.State, index int) bool {
	if typedName(l, index) != "" {
		return true
	}
	if l.TypeOf(index) != lua.TypeTable {
		return false
	}
	l.Field(index, "is_a")
	_, ok := l.ToString(-1)
	l.Pop(1)
	return ok
}

type target struct {
	conn        *connection
	destination string
	path        string
	iface       string
}

func (m *module) checkTarget(l *lua.State, withIface bool) target {
	t := target{
		conn:        m.checkConn(l, 1),
		destination: lua.CheckString(l, 2),
		path:        lua.CheckString(l, 3),
	}
	if withIface {
		t.iface = lua.CheckString(l, 4)
	}
	return t
}

func (m *module) doCall(l *lua.State) []value.Value {
	t := m.checkTarget(l, true)
	method := lua.CheckString(l, 5)
	args := checkArgs(l, 6)
	ret, err := m.client(t.conn).Call(m.ctx, t.destination, t.path, t.iface, method, args...)
	if err != nil {
		raise(l, err)
		return nil
	}
	return ret
}

// call(conn, destination, path, interface, method, args...) calls a
// method, and returns the reply as plain values. args is a list of
// typed values, or the typed values as separate arguments.
func (m *module) call(l *lua.State) int {
	ret := m.doCall(l)
	var out any
	switch len(ret) {
	case 0:
	case 1:
		out = value.Plain(ret[0])
	default:
		vals := make([]any, 0, len(ret))
		for _, v := range ret {
			vals = append(vals, value.Plain(v))
		}
		out = vals
	}
	return m.push(l, out)
}

// call_typed is like call, but returns the list of typed reply
// values.
func (m *module) callTyped(l *lua.State) int {
	ret := m.doCall(l)
	return m.push(l, value.ToMaps(ret))
}

// push pushes x, converting strings back to standard UTF-8.
func (m *module) push(l *lua.State, x any) int {
	a := arena.New()
	defer a.Release()
	if err := (pusher{l, a}).push(x); err != nil {
		raise(l, err)
		return 0
	}
	return 1
}

// get_children(conn, destination, path) lists an object's children.
func (m *module) getChildren(l *lua.State) int {
	t := m.checkTarget(l, false)
	obj := m.client(t.conn).Peer(t.destination).Object(t.path)
	names, err := obj.Children(m.ctx)
	if err != nil {
		raise(l, err)
		return 0
	}
	return m.push(l, names)
}

// implements(conn, destination, path, interface) reports whether an
// object implements an interface.
func (m *module) implements(l *lua.State) int {
	t := m.checkTarget(l, true)
	obj := m.client(t.conn).Peer(t.destination).Object(t.path)
	ok, err := obj.Implements(m.ctx, t.iface)
	if err != nil {
		raise(l, err)
		return 0
	}
	l.PushBoolean(ok)
	return 1
}

// get_properties(conn, destination, path, interface) returns all
// properties of an interface, as plain values keyed by name.
func (m *module) getProperties(l *lua.State) int {
	t := m.checkTarget(l, true)
	iface := m.client(t.conn).Peer(t.destination).Object(t.path).Interface(t.iface)
	props, err := iface.GetAllProperties(m.ctx)
	if err != nil {
		raise(l, err)
		return 0
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = value.Plain(v)
	}
	return m.push(l, out)
}

// set_property(conn, destination, path, interface, name, value) sets
// a property to a typed value.
func (m *module) setProperty(l *lua.State) int {
	t := m.checkTarget(l, true)
	name := lua.CheckString(l, 5)
	lua.CheckType(l, 6, lua.TypeTable)
	x, err := toGo(l, 6)
	if err != nil {
		raise(l, err)
		return 0
	}
	v, err := value.FromAny(x)
	if err != nil {
		raise(l, err)
		return 0
	}
	iface := m.client(t.conn).Peer(t.destination).Object(t.path).Interface(t.iface)
	if err := iface.SetProperty(m.ctx, name, v); err != nil {
		raise(l, err)
	}
	return 0
}
