package scriptbus

import (
	"fmt"

	"github.com/danderson/scriptbus/arena"
	"github.com/danderson/scriptbus/cesu"
	"github.com/danderson/scriptbus/value"
)

// EncodeAny writes v to w.
//
// String-like values are converted from the script's modified UTF-8
// encoding to standard UTF-8, using a for temporary storage. a must
// not be nil.
//
// Every container EncodeAny opens on w is either closed or abandoned
// before EncodeAny returns, so that a failed encode leaves w as it
// was before the call.
func EncodeAny(a *arena.Arena, w Appender, v value.Value) error {
	switch v := v.(type) {
	case nil:
		return typeErr("", "cannot encode nil value")
	case value.Boolean:
		return w.AppendBasic(TypeBoolean, bool(v))
	case value.Byte:
		return w.AppendBasic(TypeByte, uint8(v))
	case value.Double:
		return w.AppendBasic(TypeDouble, float64(v))
	case value.Int16:
		return w.AppendBasic(TypeInt16, int16(v))
	case value.Int32:
		return w.AppendBasic(TypeInt32, int32(v))
	case value.Int64:
		return w.AppendBasic(TypeInt64, int64(v))
	case value.Uint16:
		return w.AppendBasic(TypeUint16, uint16(v))
	case value.Uint32:
		return w.AppendBasic(TypeUint32, uint32(v))
	case value.Uint64:
		return w.AppendBasic(TypeUint64, uint64(v))
	case value.String:
		return appendString(a, w, TypeString, string(v))
	case value.ObjectPath:
		return appendString(a, w, TypeObjectPath, string(v))
	case value.Signature:
		return appendString(a, w, TypeSignature, string(v))
	case value.UnixFD:
		return w.AppendBasic(TypeUnixFD, int(v))
	case value.Array:
		elem := v.ItemType
		if elem == "" {
			if len(v.Items) == 0 {
				return typeErr("ARRAY", "empty array needs an item type")
			}
			d, err := value.DescriptorOf(v.Items[0])
			if err != nil {
				return TypeError{"ARRAY", err}
			}
			elem = d
		}
		sig, err := Compile(elem)
		if err != nil {
			return err
		}
		return withContainer(w, TypeArray, sig, func(sub Appender) error {
			for i, it := range v.Items {
				if err := EncodeAny(a, sub, it); err != nil {
					return fmt.Errorf("ARRAY item %d: %w", i, err)
				}
			}
			return nil
		})
	case value.Struct:
		return withContainer(w, TypeStruct, "", func(sub Appender) error {
			for i, f := range v.Values {
				if err := EncodeAny(a, sub, f); err != nil {
					return fmt.Errorf("STRUCT field %d: %w", i, err)
				}
			}
			return nil
		})
	case value.DictEntry:
		return withContainer(w, TypeDictEntry, "", func(sub Appender) error {
			if err := EncodeAny(a, sub, v.Key); err != nil {
				return fmt.Errorf("DICT_ENTRY key: %w", err)
			}
			if err := EncodeAny(a, sub, v.Value); err != nil {
				return fmt.Errorf("DICT_ENTRY value: %w", err)
			}
			return nil
		})
	case value.Variant:
		d, err := value.DescriptorOf(v.Value)
		if err != nil {
			return TypeError{"VARIANT", err}
		}
		sig, err := Compile(d)
		if err != nil {
			return err
		}
		return withContainer(w, TypeVariant, sig, func(sub Appender) error {
			return EncodeAny(a, sub, v.Value)
		})
	default:
		return typeErr(fmt.Sprintf("%T", v), "unknown value type")
	}
}

func appendString(a *arena.Arena, w Appender, code TypeCode, s string) error {
	bs, err := cesu.ToUTF8(a, s)
	if err != nil {
		return err
	}
	return w.AppendBasic(code, string(bs))
}

// withContainer opens a container on w, fills it with fill, and
// closes it. If fill fails or panics, the container is abandoned.
func withContainer(w Appender, code TypeCode, sig Signature, fill func(Appender) error) error {
	sub, err := w.OpenContainer(code, sig)
	if err != nil {
		return err
	}
	done := false
	defer func() {
		if !done {
			w.AbandonContainer(sub)
		}
	}()
	if err := fill(sub); err != nil {
		return err
	}
	done = true
	return w.CloseContainer(sub)
}
