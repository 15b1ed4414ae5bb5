package luabus

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/Shopify/go-lua"
)

// NewState returns a Lua state with the standard libraries and the
// dbus module loaded. If libDir is not empty, scripts can require
// Lua modules from it.
func NewState(ctx context.Context, libDir string, opts Options) *lua.State {
	l := lua.NewState()
	lua.OpenLibraries(l)
	if libDir != "" {
		l.Global("package")
		l.Field(-1, "path")
		cur, _ := l.ToString(-1)
		l.Pop(1)
		path := filepath.Join(libDir, "?.lua") + ";" + filepath.Join(libDir, "?", "init.lua")
		if cur != "" {
			path += ";" + cur
		}
		l.PushString(path)
		l.SetField(-2, "path")
		l.Pop(1)
	}
	Open(ctx, l, opts)
	return l
}

// RunFile runs the script at path. args are made available to the
// script in the global table arg, as arg[1]..arg[n], with the script
// path in arg[0].
func RunFile(l *lua.State, path string, args []string) error {
	l.CreateTable(len(args), 1)
	l.PushString(path)
	l.RawSetInt(-2, 0)
	for i, a := range args {
		l.PushString(a)
		l.RawSetInt(-2, i+1)
	}
	l.SetGlobal("arg")

	if err := lua.LoadFile(l, path, ""); err != nil {
		return fmt.Errorf("loading %s: %w", path, scriptErr(l, err))
	}
	return run(l, path)
}

// RunString runs the Lua chunk src.
func RunString(l *lua.State, src string) error {
	if err := lua.LoadString(l, src); err != nil {
		return fmt.Errorf("loading chunk: %w", scriptErr(l, err))
	}
	return run(l, "chunk")
}

func run(l *lua.State, name string) error {
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return fmt.Errorf("running %s: %w", name, scriptErr(l, err))
	}
	return nil
}

// scriptErr converts the error object left on the stack by a failed
// load or call, and pops it.
func scriptErr(l *lua.State, err error) error {
	if l.Top() == 0 {
		return err
	}
	defer l.Pop(1)
	if l.TypeOf(-1) == lua.TypeTable {
		if e := errorFromTable(l, -1); e.Kind != "" {
			return e
		}
	}
	if msg, ok := l.ToString(-1); ok {
		return errors.New(msg)
	}
	return err
}
