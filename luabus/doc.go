// Package luabus exposes the DBus engine to Lua scripts.
//
// Scripts load the module with require("dbus"). It provides bus
// connections, method calls, type constructors that build typed
// values, and a few introspection and property helpers:
//
//	local dbus = require("dbus")
//	local conn = dbus.open(dbus.BUS_SESSION)
//	local names = dbus.call(conn, "org.freedesktop.DBus",
//	    "/org/freedesktop/DBus", "org.freedesktop.DBus", "ListNames")
//	dbus.call(conn, "org.example.Foo", "/", "org.example.Foo", "Set",
//	    {dbus.STRING("answer"), dbus.VARIANT(dbus.INT32(42))})
//	dbus.close(conn)
//
// Call replies are converted to plain Lua values: variants are
// unwrapped, arrays of dict entries become keyed tables, and a reply
// with a single value is returned as that value. call_typed returns
// the typed form instead.
//
// Errors are raised as tables with the fields kind, message, and
// where applicable name (the DBus error name) and code (an errno).
package luabus
