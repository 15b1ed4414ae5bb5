package value

import (
	"fmt"
	"strings"
)

// Descriptor is a textual type descriptor, as used by scripts to name
// D-Bus types.
//
// The grammar is:
//
//	T := BASIC | "ARRAY" | "ARRAY<" T ">" | "VARIANT"
//	   | "DICT_ENTRY<" T "," T ">"
//	   | "STRUCT<" T ("," T)* ">"
//
// where BASIC is the name of a basic [Kind], e.g. "INT32".
type Descriptor string

// ArrayOf returns the descriptor of an array of elem.
func ArrayOf(elem Descriptor) Descriptor {
	return Descriptor("ARRAY<" + string(elem) + ">")
}

// DictEntryOf returns the descriptor of a dict entry.
func DictEntryOf(key, val Descriptor) Descriptor {
	return Descriptor("DICT_ENTRY<" + string(key) + "," + string(val) + ">")
}

// StructOf returns the descriptor of a struct with the given fields.
func StructOf(fields ...Descriptor) Descriptor {
	var b strings.Builder
	b.WriteString("STRUCT<")
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(string(f))
	}
	b.WriteByte('>')
	return Descriptor(b.String())
}

// DescriptorOf returns the descriptor for v's type.
//
// The element type of an array is its ItemType if set, or else the
// type of its first item. DescriptorOf fails for empty arrays without
// an ItemType.
func DescriptorOf(v Value) (Descriptor, error) {
	switch v := v.(type) {
	case nil:
		return "", &ShapeError{Reason: "nil value has no type"}
	case Array:
		if v.ItemType != "" {
			return ArrayOf(v.ItemType), nil
		}
		if len(v.Items) == 0 {
			return "", &ShapeError{Path: "ARRAY", Reason: "empty array needs an item_type"}
		}
		elem, err := DescriptorOf(v.Items[0])
		if err != nil {
			return "", err
		}
		return ArrayOf(elem), nil
	case Struct:
		fs := make([]Descriptor, 0, len(v.Values))
		for i, f := range v.Values {
			d, err := DescriptorOf(f)
			if err != nil {
				return "", fmt.Errorf("STRUCT field %d: %w", i, err)
			}
			fs = append(fs, d)
		}
		return StructOf(fs...), nil
	case DictEntry:
		k, err := DescriptorOf(v.Key)
		if err != nil {
			return "", fmt.Errorf("DICT_ENTRY key: %w", err)
		}
		val, err := DescriptorOf(v.Value)
		if err != nil {
			return "", fmt.Errorf("DICT_ENTRY value: %w", err)
		}
		return DictEntryOf(k, val), nil
	default:
		return Descriptor(v.Kind().String()), nil
	}
}

// ShapeError is the error returned for values that do not have the
// shape their kind requires.
type ShapeError struct {
	// Path locates the offending value, e.g. "ARRAY[2].key".
	Path string
	// Reason describes the problem.
	Reason string
}

func (e *ShapeError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return e.Path + ": " + e.Reason
}
