// Package value defines the typed value model exchanged between the
// scripting runtime and the bus.
//
// A [Value] is one of a closed set of concrete types, one per
// [Kind]. String-like values hold their text in the scripting
// runtime's modified UTF-8 encoding. Conversion to the bus's standard
// UTF-8 happens at encode time.
package value

// Value is a typed value that can be sent over the bus.
//
//sumtype:decl
type Value interface {
	// Kind returns the value's kind.
	Kind() Kind

	isValue()
}

type (
	Boolean    bool
	Byte       uint8
	Double     float64
	Int16      int16
	Int32      int32
	Int64      int64
	Uint16     uint16
	Uint32     uint32
	Uint64     uint64
	String     string
	ObjectPath string
	Signature  string
	// UnixFD is a file descriptor number. When sending, the
	// descriptor is duplicated into the message. When receiving, the
	// value is a descriptor owned by the caller.
	UnixFD int32
)

// Array is a homogeneous sequence of values.
type Array struct {
	// ItemType describes the element type. It may be empty if Items
	// is non-empty, in which case the element type is taken from the
	// first item. Decoded arrays leave ItemType empty.
	ItemType Descriptor
	Items    []Value
}

// Struct is a fixed sequence of heterogeneous values.
type Struct struct {
	Values []Value
}

// DictEntry is a key/value pair. Dict entries only appear as array
// elements.
type DictEntry struct {
	Key   Value
	Value Value
}

// Variant is a value carrying its own type.
type Variant struct {
	Value Value
}

func (Boolean) Kind() Kind    { return KindBoolean }
func (Byte) Kind() Kind       { return KindByte }
func (Double) Kind() Kind     { return KindDouble }
func (Int16) Kind() Kind      { return KindInt16 }
func (Int32) Kind() Kind      { return KindInt32 }
func (Int64) Kind() Kind      { return KindInt64 }
func (Uint16) Kind() Kind     { return KindUint16 }
func (Uint32) Kind() Kind     { return KindUint32 }
func (Uint64) Kind() Kind     { return KindUint64 }
func (String) Kind() Kind     { return KindString }
func (ObjectPath) Kind() Kind { return KindObjectPath }
func (Signature) Kind() Kind  { return KindSignature }
func (UnixFD) Kind() Kind     { return KindUnixFD }
func (Array) Kind() Kind      { return KindArray }
func (Struct) Kind() Kind     { return KindStruct }
func (DictEntry) Kind() Kind  { return KindDictEntry }
func (Variant) Kind() Kind    { return KindVariant }

func (Boolean) isValue()    {}
func (Byte) isValue()       {}
func (Double) isValue()     {}
func (Int16) isValue()      {}
func (Int32) isValue()      {}
func (Int64) isValue()      {}
func (Uint16) isValue()     {}
func (Uint32) isValue()     {}
func (Uint64) isValue()     {}
func (String) isValue()     {}
func (ObjectPath) isValue() {}
func (Signature) isValue()  {}
func (UnixFD) isValue()     {}
func (Array) isValue()      {}
func (Struct) isValue()     {}
func (DictEntry) isValue()  {}
func (Variant) isValue()    {}

// Dict returns an array of dict entries with the given key and value
// types. entries holds alternating keys and values, and must have an
// even length.
func Dict(key, val Descriptor, entries ...Value) (Array, error) {
	if len(entries)%2 != 0 {
		return Array{}, &ShapeError{Path: "DICT", Reason: "entries must be key/value pairs"}
	}
	ret := Array{
		ItemType: DictEntryOf(key, val),
		Items:    make([]Value, 0, len(entries)/2),
	}
	for i := 0; i < len(entries); i += 2 {
		ret.Items = append(ret.Items, DictEntry{entries[i], entries[i+1]})
	}
	return ret, nil
}
