package luabus_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Shopify/go-lua"

	"github.com/danderson/scriptbus"
	"github.com/danderson/scriptbus/arena"
	"github.com/danderson/scriptbus/cesu"
	"github.com/danderson/scriptbus/dbustest"
	"github.com/danderson/scriptbus/luabus"
	"github.com/danderson/scriptbus/value"
)

const propsXML = `<node>
  <interface name="org.freedesktop.DBus.Properties"/>
  <interface name="org.test.Speaker">
    <property name="Volume" type="u" access="readwrite"/>
    <property name="Name" type="s" access="read"/>
  </interface>
  <node name="left"/>
  <node name="right"/>
</node>`

const bareXML = `<node><interface name="org.test.Speaker"/></node>`

// fakePeer answers introspection, property and failing calls, and
// leaves everything else to be echoed.
func fakePeer(call *scriptbus.Message) (*scriptbus.Message, error) {
	switch call.Member {
	case "Introspect":
		doc := bareXML
		if call.Path == "/props" {
			doc = propsXML
		}
		ret := scriptbus.NewMethodReturn(call)
		if err := ret.AppendArgs().AppendBasic(scriptbus.TypeString, doc); err != nil {
			return nil, err
		}
		return ret, nil
	case "GetAll":
		props, err := value.Dict("STRING", "VARIANT",
			value.String("Volume"), value.Variant{Value: value.Uint32(11)},
			value.String("Name"), value.Variant{Value: value.String("speaker")},
		)
		if err != nil {
			return nil, err
		}
		a := arena.New()
		defer a.Release()
		ret := scriptbus.NewMethodReturn(call)
		if err := scriptbus.EncodeAny(a, ret.AppendArgs(), props); err != nil {
			return nil, err
		}
		return ret, nil
	case "Fail":
		return scriptbus.NewError(call, "org.test.Error.Fail", "failed on purpose")
	case "FailLoudly":
		return scriptbus.NewError(call, "org.test.Error.Fail", "failed \U0001F600")
	}
	return nil, nil
}

func newState(t *testing.T, echo *dbustest.Echo) *lua.State {
	t.Helper()
	return luabus.NewState(context.Background(), "", luabus.Options{
		Open: func(ctx context.Context, bus scriptbus.BusType) (scriptbus.Connection, error) {
			return echo, nil
		},
	})
}

func runScript(t *testing.T, echo *dbustest.Echo, src string) {
	t.Helper()
	if err := luabus.RunString(newState(t, echo), src); err != nil {
		t.Fatalf("script failed: %v", err)
	}
}

func TestConstructors(t *testing.T) {
	runScript(t, &dbustest.Echo{}, `
local dbus = require("dbus")

local i = dbus.INT32(5)
assert(i.type == "INT32" and i.value == 5, "INT32")

local b = dbus.BOOLEAN(nil)
assert(b.type == "BOOLEAN" and b.value == false, "BOOLEAN")

local arr = dbus.ARRAY(dbus.STRING, {"a", "b"})
assert(arr.type == "ARRAY", "ARRAY type")
assert(arr.item_type == "STRING", "ARRAY item_type")
assert(#arr.items == 2, "ARRAY length")
assert(arr.items[2].type == "STRING" and arr.items[2].value == "b", "ARRAY item")

local nested = dbus.ARRAY(dbus.ARRAY, {dbus.ARRAY(dbus.BYTE, {1, 2})})
assert(nested.item_type == nil, "bare ARRAY is not an item type")

local typed = dbus.ARRAY("UINT16", {7})
assert(typed.item_type == "UINT16" and typed.items[1].type == "UINT16", "descriptor item type")

local d = dbus.DICT(dbus.STRING, dbus.VARIANT, {"k", dbus.INT32(1)})
assert(d.item_type == "DICT_ENTRY<STRING,VARIANT>", "DICT item_type")
local e = d.items[1]
assert(e.key.type == "STRING" and e.key.value == "k", "DICT key")
assert(e.value.type == "VARIANT" and e.value.value.type == "INT32", "DICT value")

local s = dbus.STRUCT({dbus.INT32(1), dbus.STRING("x")})
assert(s.type == "STRUCT<INT32,STRING>", "STRUCT type: " .. s.type)
assert(#s.values == 2, "STRUCT values")

assert(tostring(dbus.UINT64) == "UINT64", "constructor tostring")
assert(dbus.signature("ARRAY<DICT_ENTRY<STRING,VARIANT>>") == "a{sv}", "signature")

local ok, err = pcall(dbus.signature, "ARRAY<")
assert(not ok and err.kind == "TypeError", "bad descriptor")

ok, err = pcall(dbus.DICT, dbus.STRING, dbus.INT32, {"odd"})
assert(not ok, "odd DICT")

ok, err = pcall(dbus.STRUCT, {})
assert(not ok, "empty STRUCT")
`)
}

func TestCall(t *testing.T) {
	echo := &dbustest.Echo{Reply: fakePeer}
	runScript(t, echo, `
local dbus = require("dbus")
local conn = dbus.open(dbus.BUS_SESSION)
assert(tostring(conn) == "DBusConnection(session, open)", tostring(conn))

local function echo(args)
  return dbus.call(conn, "org.test", "/org/test", "org.test.Echo", "Echo", args)
end

assert(echo({dbus.INT32(42)}) == 42, "single value")
assert(echo() == nil, "no values")

local two = echo({dbus.STRING("a"), dbus.DOUBLE(1.5)})
assert(two[1] == "a" and two[2] == 1.5, "multiple values")

local dict = echo({dbus.DICT(dbus.STRING, dbus.VARIANT, {"k", dbus.INT32(1), "l", dbus.STRING("v")})})
assert(dict.k == 1 and dict.l == "v", "dict becomes a keyed table")

local st = echo({dbus.STRUCT({dbus.BYTE(1), dbus.ARRAY(dbus.STRING, {"x"})})})
assert(st[1] == 1 and st[2][1] == "x", "struct becomes a list")

local emoji = "\240\159\152\128"
assert(echo({dbus.STRING(emoji)}) == emoji, "non-BMP string round trip")

local va = dbus.call(conn, "org.test", "/org/test", "org.test.Echo", "Echo", dbus.STRING("x"), dbus.INT32(5))
assert(va[1] == "x" and va[2] == 5, "trailing typed arguments")
assert(dbus.call(conn, "org.test", "/org/test", "org.test.Echo", "Echo", dbus.STRING("solo")) == "solo", "one trailing argument")
local ok = pcall(dbus.call, conn, "org.test", "/org/test", "org.test.Echo", "Echo", dbus.STRING("x"), 5)
assert(not ok, "untyped trailing argument accepted")

local big = echo({dbus.UINT64(9007199254740992)})
assert(big == 9007199254740992, "uint64")

local typed = dbus.call_typed(conn, "org.test", "/org/test", "org.test.Echo", "Echo",
  {dbus.UINT32(7), dbus.VARIANT(dbus.INT16(-2))})
assert(#typed == 2, "call_typed length")
assert(typed[1].type == "UINT32" and typed[1].value == 7, "call_typed first")
assert(typed[2].type == "INT16" and typed[2].value == -2, "call_typed unwraps variants")

dbus.set_timeout(250)
dbus.set_debug(false)
dbus.close(conn)
assert(tostring(conn) == "DBusConnection(session, closed)", tostring(conn))
`)
}

func TestStringEncoding(t *testing.T) {
	var (
		body []byte
		got  value.Value
	)
	echo := &dbustest.Echo{Reply: func(call *scriptbus.Message) (*scriptbus.Message, error) {
		if call.Member != "Capture" {
			return fakePeer(call)
		}
		_, b := call.Body()
		body = bytes.Clone(b)
		it, ok := call.Args()
		if !ok {
			return nil, errors.New("Capture called without arguments")
		}
		a := arena.New()
		defer a.Release()
		v, err := scriptbus.DecodeAny(a, it)
		if err != nil {
			return nil, err
		}
		got = v
		return nil, nil
	}}
	runScript(t, echo, `
local dbus = require("dbus")
local conn = dbus.open()
local s = "\240\159\152\128"
assert(dbus.call(conn, "org.test", "/", "org.test.Echo", "Capture", dbus.STRING(s)) == s, "round trip")
`)

	if !bytes.Contains(body, []byte("\U0001F600")) {
		t.Errorf("wire body lacks the standard UTF-8 encoding: % x", body)
	}
	want := value.String(cesu.AppendSurrogates(nil, 0x1F600))
	if got != want {
		t.Errorf("decoded %#v, want %#v", got, want)
	}
}

func TestErrors(t *testing.T) {
	echo := &dbustest.Echo{Reply: fakePeer}
	runScript(t, echo, `
local dbus = require("dbus")
local conn = dbus.open(dbus.BUS_SESSION)

local ok, err = pcall(dbus.call, conn, "org.test", "/", "org.test.Echo", "Fail")
assert(not ok, "Fail succeeded")
assert(err.kind == "RemoteError", "kind " .. tostring(err.kind))
assert(err.name == "org.test.Error.Fail", "name " .. tostring(err.name))
assert(err.message == "failed on purpose", "message " .. tostring(err.message))
assert(tostring(err) == "RemoteError: failed on purpose (org.test.Error.Fail)", tostring(err))

ok, err = pcall(dbus.call, conn, "org.test", "/", "org.test.Echo", "FailLoudly")
assert(not ok and err.message == "failed \240\159\152\128", "non-BMP error message: " .. tostring(err))

ok, err = pcall(dbus.call, conn, "org.test", "not a path", "org.test.Echo", "Echo")
assert(not ok and err.kind == "TypeError", "bad path: " .. tostring(err))

ok, err = pcall(dbus.call, conn, "org.test", "/", "org.test.Echo", "Echo", {dbus.STRING("\237\160\128")})
assert(not ok and err.kind == "EncodingError", "lone surrogate: " .. tostring(err))

ok, err = pcall(dbus.call, conn, "org.test", "/", "org.test.Echo", "Echo", {{type = "FROB", value = 1}})
assert(not ok and err.kind == "TypeError", "unknown type: " .. tostring(err))

ok, err = pcall(dbus.call, conn, "org.test", "/", "org.test.Echo", "Echo", {dbus.BYTE(256)})
assert(not ok and err.kind == "TypeError", "out of range: " .. tostring(err))

ok, err = pcall(dbus.call, conn, "org.test", "/", "org.test.Echo", "Echo", {dbus.ARRAY(dbus.ARRAY, {})})
assert(not ok and err.kind == "TypeError", "untyped empty array: " .. tostring(err))

ok, err = pcall(dbus.set_timeout, 0)
assert(not ok, "zero timeout accepted")

dbus.close(conn)
ok, err = pcall(dbus.call, conn, "org.test", "/", "org.test.Echo", "Echo")
assert(not ok and type(err) == "string", "call on a closed connection")
`)
}

func TestUncaughtError(t *testing.T) {
	echo := &dbustest.Echo{Reply: fakePeer}
	err := luabus.RunString(newState(t, echo), `
local dbus = require("dbus")
local conn = dbus.open()
dbus.call(conn, "org.test", "/", "org.test.Echo", "Fail")
`)
	var se *luabus.ScriptError
	if !errors.As(err, &se) {
		t.Fatalf("RunString error = %v, want ScriptError", err)
	}
	if se.Kind != luabus.KindRemoteError || se.Name != "org.test.Error.Fail" {
		t.Errorf("got %#v, want a RemoteError named org.test.Error.Fail", se)
	}
}

func TestProperties(t *testing.T) {
	echo := &dbustest.Echo{Reply: fakePeer}
	runScript(t, echo, `
local dbus = require("dbus")
local conn = dbus.open()

local props = dbus.get_properties(conn, "org.test", "/props", "org.test.Speaker")
assert(props.Volume == 11, "Volume " .. tostring(props.Volume))
assert(props.Name == "speaker", "Name " .. tostring(props.Name))

dbus.set_property(conn, "org.test", "/props", "org.test.Speaker", "Volume", dbus.UINT32(3))

local ok, err = pcall(dbus.set_property, conn, "org.test", "/props", "org.test.Speaker", "Volume", dbus.STRING("loud"))
assert(not ok and err.kind == "TypeError", "set_property with the wrong type: " .. tostring(err))
ok, err = pcall(dbus.set_property, conn, "org.test", "/props", "org.test.Speaker", "Name", dbus.STRING("x"))
assert(not ok and err.name == "org.freedesktop.DBus.Error.PropertyReadOnly", "set_property on a read-only property: " .. tostring(err))

ok, err = pcall(dbus.get_properties, conn, "org.test", "/bare", "org.test.Speaker")
assert(not ok and err.kind == "RemoteError", "get_properties without Properties: " .. tostring(err))
assert(err.name == "org.freedesktop.DBus.Error.UnknownInterface", err.name)

ok, err = pcall(dbus.set_property, conn, "org.test", "/bare", "org.test.Speaker", "Volume", dbus.UINT32(3))
assert(not ok and err.kind == "RemoteError", "set_property without Properties")

assert(dbus.implements(conn, "org.test", "/props", "org.freedesktop.DBus.Properties"), "implements")
assert(not dbus.implements(conn, "org.test", "/bare", "org.freedesktop.DBus.Properties"), "not implements")

local kids = dbus.get_children(conn, "org.test", "/props")
assert(#kids == 2 and kids[1] == "left" and kids[2] == "right", "children")
`)

	var sets int
	for _, c := range echo.Calls() {
		if c == "org.freedesktop.DBus.Properties.Set" {
			sets++
		}
	}
	if sets != 1 {
		t.Errorf("Properties.Set called %d times, want 1. Calls: %v", sets, echo.Calls())
	}
}

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "lib")
	if err := os.Mkdir(lib, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(lib, "helper.lua"), []byte(`return {double = function(x) return x * 2 end}`), 0o644); err != nil {
		t.Fatal(err)
	}
	script := filepath.Join(dir, "main.lua")
	if err := os.WriteFile(script, []byte(`
local helper = require("helper")
assert(arg[0]:sub(-8) == "main.lua", "arg[0] " .. arg[0])
assert(arg[1] == "21", "arg[1]")
assert(helper.double(tonumber(arg[1])) == 42, "helper")
`), 0o644); err != nil {
		t.Fatal(err)
	}

	l := luabus.NewState(context.Background(), lib, luabus.Options{})
	if err := luabus.RunFile(l, script, []string{"21"}); err != nil {
		t.Fatalf("RunFile failed: %v", err)
	}

	if err := luabus.RunFile(l, filepath.Join(dir, "missing.lua"), nil); err == nil {
		t.Error("RunFile of a missing script succeeded")
	}
	if err := luabus.RunString(l, "this is not lua"); err == nil {
		t.Error("RunString of a syntax error succeeded")
	}
}
