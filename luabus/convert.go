package luabus

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/Shopify/go-lua"
	"github.com/danderson/scriptbus/arena"
	"github.com/danderson/scriptbus/cesu"
)

// toGo converts the Lua value at index to a Go value. Tables whose
// keys are 1..n become []any, other tables map[string]any. Numbers
// are float64. Strings are converted from standard UTF-8 to the
// engine's modified encoding.
func toGo(l *lua.State, index int) (any, error) {
	switch l.TypeOf(index) {
	case lua.TypeString:
		s, _ := l.ToString(index)
		return fromLuaString(s)
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		return n, nil
	case lua.TypeBoolean:
		return l.ToBoolean(index), nil
	case lua.TypeTable:
		return tableToGo(l, index)
	case lua.TypeUserData:
		return l.ToUserData(index), nil
	default:
		return nil, nil
	}
}

func tableToGo(l *lua.State, index int) (any, error) {
	index = l.AbsIndex(index)
	isArray := true
	maxIndex, count := 0, 0
	l.PushNil()
	for l.Next(index) {
		if isArray {
			if l.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := l.ToInteger(-2); ok && idx > 0 {
				count++
				maxIndex = max(maxIndex, idx)
			} else {
				isArray = false
			}
		}
		l.Pop(1)
	}

	if isArray && maxIndex == count {
		ret := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			l.RawGetInt(index, i)
			v, err := toGo(l, -1)
			l.Pop(1)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			ret = append(ret, v)
		}
		return ret, nil
	}

	ret := map[string]any{}
	l.PushNil()
	for l.Next(index) {
		if l.TypeOf(-2) == lua.TypeString {
			k, _ := l.ToString(-2)
			v, err := toGo(l, -1)
			if err != nil {
				l.Pop(2)
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			ret[k] = v
		}
		l.Pop(1)
	}
	return ret, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// fromLuaString converts a script string to the modified encoding.
func fromLuaString(s string) (string, error) {
	if isASCII(s) {
		return s, nil
	}
	a := arena.New()
	defer a.Release()
	bs, err := cesu.FromUTF8(a, []byte(s))
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

// toLuaString converts s from the modified encoding to standard
// UTF-8. Malformed input is returned unchanged.
func toLuaString(s string) string {
	if isASCII(s) {
		return s
	}
	a := arena.New()
	defer a.Release()
	bs, err := cesu.ToUTF8(a, s)
	if err != nil {
		return s
	}
	return string(bs)
}

// A pusher pushes Go values produced by the engine onto the Lua
// stack. Strings are converted from the engine's modified UTF-8 to
// standard UTF-8.
type pusher struct {
	l *lua.State
	a *arena.Arena
}

func (p pusher) push(x any) error {
	l := p.l
	switch x := x.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(x)
	case int64:
		l.PushInteger(int(x))
	case uint64:
		if x <= math.MaxInt64 {
			l.PushInteger(int(x))
		} else {
			l.PushNumber(float64(x))
		}
	case float64:
		l.PushNumber(x)
	case string:
		bs, err := cesu.ToUTF8(p.a, x)
		if err != nil {
			return err
		}
		l.PushString(string(bs))
	case []any:
		l.CreateTable(len(x), 0)
		for i, v := range x {
			if err := p.push(v); err != nil {
				l.Pop(1)
				return err
			}
			l.RawSetInt(-2, i+1)
		}
	case []string:
		l.CreateTable(len(x), 0)
		for i, v := range x {
			l.PushString(v)
			l.RawSetInt(-2, i+1)
		}
	case map[string]any:
		l.CreateTable(0, len(x))
		for _, k := range slices.Sorted(maps.Keys(x)) {
			if err := p.push(x[k]); err != nil {
				l.Pop(1)
				return err
			}
			l.SetField(-2, k)
		}
	case map[any]any:
		l.CreateTable(0, len(x))
		for k, v := range x {
			if err := p.push(k); err != nil {
				l.Pop(1)
				return err
			}
			if err := p.push(v); err != nil {
				l.Pop(2)
				return err
			}
			l.RawSet(-3)
		}
	default:
		return fmt.Errorf("cannot convert %T to a Lua value", x)
	}
	return nil
}
