package luabus

import (
	"errors"
	"fmt"

	"github.com/Shopify/go-lua"
	"github.com/danderson/scriptbus"
	"github.com/danderson/scriptbus/value"
)

// Error kinds, as found in the kind field of raised error tables.
const (
	KindEncodingError = "EncodingError"
	KindTypeError     = "TypeError"
	KindDecodeError   = "DecodeError"
	KindRemoteError   = "RemoteError"
	KindSyscallError  = "SyscallError"
	KindError         = "Error"
)

// ScriptError is a structured error raised by the dbus module and
// not caught by the script.
type ScriptError struct {
	Kind    string
	Message string
	// Name is the DBus error name of a RemoteError.
	Name string
	// Code is the errno of a SyscallError.
	Code int
}

func (e *ScriptError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Name)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// classify returns the ScriptError describing err.
func classify(err error) *ScriptError {
	ret := &ScriptError{Kind: KindError, Message: err.Error()}
	var (
		encErr   *scriptbus.EncodingError
		typeErr  scriptbus.TypeError
		shapeErr *value.ShapeError
		decErr   scriptbus.DecodeError
		remErr   scriptbus.RemoteError
		sysErr   scriptbus.SyscallError
	)
	switch {
	case errors.As(err, &remErr):
		ret.Kind = KindRemoteError
		ret.Name = remErr.Name
		if remErr.Message != "" {
			ret.Message = remErr.Message
		}
	case errors.As(err, &sysErr):
		ret.Kind = KindSyscallError
		ret.Code = sysErr.Code()
	case errors.As(err, &encErr):
		ret.Kind = KindEncodingError
	case errors.As(err, &typeErr), errors.As(err, &shapeErr):
		ret.Kind = KindTypeError
	case errors.As(err, &decErr):
		ret.Kind = KindDecodeError
	}
	return ret
}

// raise raises err as a Lua error table. It does not return.
func raise(l *lua.State, err error) {
	e := classify(err)
	l.CreateTable(0, 4)
	l.PushString(e.Kind)
	l.SetField(-2, "kind")
	l.PushString(toLuaString(e.Message))
	l.SetField(-2, "message")
	if e.Name != "" {
		l.PushString(e.Name)
		l.SetField(-2, "name")
	}
	if e.Kind == KindSyscallError {
		l.PushInteger(e.Code)
		l.SetField(-2, "code")
	}
	setErrorMeta(l)
	l.Error()
}

const errorTypeName = "dbus.error"

// setErrorMeta gives the error table on top of the stack a
// __tostring metamethod, so that uncaught errors print usefully.
func setErrorMeta(l *lua.State) {
	if lua.NewMetaTable(l, errorTypeName) {
		l.PushGoFunction(func(l *lua.State) int {
			e := errorFromTable(l, 1)
			l.PushString(e.Error())
			return 1
		})
		l.SetField(-2, "__tostring")
	}
	l.SetMetaTable(-2)
}

// errorFromTable reads an error table raised by raise.
func errorFromTable(l *lua.State, index int) *ScriptError {
	index = l.AbsIndex(index)
	var ret ScriptError
	l.Field(index, "kind")
	ret.Kind, _ = l.ToString(-1)
	l.Field(index, "message")
	ret.Message, _ = l.ToString(-1)
	l.Field(index, "name")
	ret.Name, _ = l.ToString(-1)
	l.Field(index, "code")
	ret.Code, _ = l.ToInteger(-1)
	l.Pop(4)
	return &ret
}
