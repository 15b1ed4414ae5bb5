package luabus

import (
	"strings"

	"github.com/Shopify/go-lua"
	"github.com/danderson/scriptbus"
	"github.com/danderson/scriptbus/value"
)

const typeTypeName = "dbus.type"

// registerTypes adds a constructor for every kind, plus DICT, to the
// module table on top of the stack.
//
// Constructors are callable tables with a name field, so that ARRAY
// and DICT can derive descriptors from the constructors they are
// given, e.g. dbus.ARRAY(dbus.STRING, {"a", "b"}).
func registerTypes(l *lua.State) {
	lua.NewMetaTable(l, typeTypeName)
	l.PushGoFunction(construct)
	l.SetField(-2, "__call")
	l.PushGoFunction(func(l *lua.State) int {
		l.PushString(typeName(l, 1))
		return 1
	})
	l.SetField(-2, "__tostring")
	l.Pop(1)

	names := make([]string, 0, len(value.Kinds())+1)
	for _, k := range value.Kinds() {
		names = append(names, k.String())
	}
	names = append(names, "DICT")
	for _, n := range names {
		l.CreateTable(0, 1)
		l.PushString(n)
		l.SetField(-2, "name")
		lua.SetMetaTableNamed(l, typeTypeName)
		l.SetField(-2, n)
	}
}

func typeName(l *lua.State, index int) string {
	l.Field(index, "name")
	ret, _ := l.ToString(-1)
	l.Pop(1)
	return ret
}

// construct is the __call metamethod of constructors. Argument 1 is
// the constructor itself.
func construct(l *lua.State) int {
	name := typeName(l, 1)
	switch name {
	case "ARRAY":
		return constructArray(l)
	case "DICT":
		return constructDict(l)
	case "STRUCT":
		return constructStruct(l)
	case "DICT_ENTRY":
		newTyped(l, name)
		l.PushValue(2)
		l.SetField(-2, value.FieldKey)
		l.PushValue(3)
		l.SetField(-2, value.FieldValue)
		return 1
	case "BOOLEAN":
		newTyped(l, name)
		l.PushBoolean(l.ToBoolean(2))
		l.SetField(-2, value.FieldValue)
		return 1
	default:
		// Basic kinds and VARIANT.
		newTyped(l, name)
		l.PushValue(2)
		l.SetField(-2, value.FieldValue)
		return 1
	}
}

// newTyped pushes a new typed value table of the given type.
func newTyped(l *lua.State, typ string) {
	l.CreateTable(0, 3)
	l.PushString(typ)
	l.SetField(-2, value.FieldType)
}

// descriptorOf returns the descriptor named by the constructor or
// descriptor string at index.
func descriptorOf(l *lua.State, index int) string {
	if l.TypeOf(index) == lua.TypeString {
		s, _ := l.ToString(index)
		return s
	}
	lua.CheckType(l, index, lua.TypeTable)
	name := typeName(l, index)
	if name == "" {
		lua.ArgumentError(l, index, "type constructor or descriptor expected")
	}
	return name
}

// wrap pushes the typed form of the value at index, by calling the
// constructor at ctorIndex with it. If ctorIndex holds a descriptor
// string, tables are assumed to be typed already, and other values
// are wrapped as the descriptor's type.
//
// Typed values are passed through as is, except that the VARIANT
// constructor wraps anything that isn't already a variant.
func wrap(l *lua.State, ctorIndex, index int) {
	if typ := typedName(l, index); typ != "" {
		if l.TypeOf(ctorIndex) != lua.TypeTable || typeName(l, ctorIndex) != "VARIANT" || typ == "VARIANT" {
			l.PushValue(index)
			return
		}
	}
	if l.TypeOf(ctorIndex) == lua.TypeString {
		if l.TypeOf(index) == lua.TypeTable {
			l.PushValue(index)
			return
		}
		d, _ := l.ToString(ctorIndex)
		newTyped(l, d)
		l.PushValue(index)
		l.SetField(-2, value.FieldValue)
		return
	}
	l.PushValue(ctorIndex)
	l.PushValue(index)
	l.Call(1, 1)
}

// typedName returns the type field of the typed value at index, or
// "" if it isn't one.
func typedName(l *lua.State, index int) string {
	if l.TypeOf(index) != lua.TypeTable {
		return ""
	}
	l.Field(index, value.FieldType)
	ret, _ := l.ToString(-1)
	l.Pop(1)
	return ret
}

// usableItemType reports whether d can be used as an array item
// type. Bare container names like ARRAY and STRUCT can't, and are
// left for the encoder to infer from the first item.
func usableItemType(d string) bool {
	_, err := scriptbus.Compile(value.Descriptor(d))
	return err == nil
}

// ARRAY(item_type, items)
func constructArray(l *lua.State) int {
	itemType := descriptorOf(l, 2)
	lua.CheckType(l, 3, lua.TypeTable)
	n := l.RawLength(3)

	newTyped(l, "ARRAY")
	if usableItemType(itemType) {
		l.PushString(itemType)
		l.SetField(-2, value.FieldItemType)
	}
	l.CreateTable(n, 0)
	for i := 1; i <= n; i++ {
		l.RawGetInt(3, i)
		wrap(l, 2, l.Top())
		l.Remove(-2)
		l.RawSetInt(-2, i)
	}
	l.SetField(-2, value.FieldItems)
	return 1
}

// DICT(key_type, value_type, entries), where entries is a flat list
// of alternating keys and values.
func constructDict(l *lua.State) int {
	keyType := descriptorOf(l, 2)
	valType := descriptorOf(l, 3)
	lua.CheckType(l, 4, lua.TypeTable)
	n := l.RawLength(4)
	if n%2 != 0 {
		lua.ArgumentError(l, 4, "entries list length must be even")
		return 0
	}
	entryType := "DICT_ENTRY<" + keyType + "," + valType + ">"

	newTyped(l, "ARRAY")
	l.PushString(entryType)
	l.SetField(-2, value.FieldItemType)
	l.CreateTable(n/2, 0)
	for i := 1; i <= n; i += 2 {
		newTyped(l, entryType)
		l.RawGetInt(4, i)
		wrap(l, 2, l.Top())
		l.Remove(-2)
		l.SetField(-2, value.FieldKey)
		l.RawGetInt(4, i+1)
		wrap(l, 3, l.Top())
		l.Remove(-2)
		l.SetField(-2, value.FieldValue)
		l.RawSetInt(-2, (i+1)/2)
	}
	l.SetField(-2, value.FieldItems)
	return 1
}

// STRUCT(values), where values are typed values.
func constructStruct(l *lua.State) int {
	lua.CheckType(l, 2, lua.TypeTable)
	n := l.RawLength(2)
	if n == 0 {
		lua.ArgumentError(l, 2, "STRUCT needs at least one value")
		return 0
	}
	fields := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		l.RawGetInt(2, i)
		if l.TypeOf(-1) != lua.TypeTable {
			lua.ArgumentError(l, 2, "values must be typed values")
			return 0
		}
		l.Field(-1, value.FieldType)
		t, _ := l.ToString(-1)
		fields = append(fields, t)
		l.Pop(2)
	}
	newTyped(l, "STRUCT<"+strings.Join(fields, ",")+">")
	l.PushValue(2)
	l.SetField(-2, value.FieldValues)
	return 1
}
