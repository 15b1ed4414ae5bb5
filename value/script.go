package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// The script boundary represents a Value as a map with a "type" (or
// legacy "is_a") entry naming its Kind, and kind-specific fields:
//
//	basic kinds:  "value"
//	ARRAY:        "items", optional "item_type"
//	STRUCT:       "values"
//	DICT_ENTRY:   "key", "value"
//	VARIANT:      "value"
const (
	FieldType     = "type"
	FieldIsA      = "is_a"
	FieldValue    = "value"
	FieldItems    = "items"
	FieldItemType = "item_type"
	FieldKey      = "key"
	FieldValues   = "values"
)

// FromMap converts a script-side value to a Value.
func FromMap(m map[string]any) (Value, error) {
	return fromMap(m, "")
}

// FromAny converts x to a Value. x must be a Value or a
// map[string]any in the form accepted by [FromMap].
func FromAny(x any) (Value, error) {
	return fromAny(x, "")
}

func fromAny(x any, path string) (Value, error) {
	switch x := x.(type) {
	case Value:
		return x, nil
	case map[string]any:
		return fromMap(x, path)
	default:
		return nil, shapeErr(path, "expected a typed value, got %T", x)
	}
}

func shapeErr(path, reason string, args ...any) error {
	return &ShapeError{Path: path, Reason: fmt.Sprintf(reason, args...)}
}

func join(path, elem string) string {
	if path == "" {
		return elem
	}
	return path + "." + elem
}

func fromMap(m map[string]any, path string) (Value, error) {
	name, ok := m[FieldType].(string)
	if !ok {
		name, ok = m[FieldIsA].(string)
	}
	if !ok {
		return nil, shapeErr(path, "missing %q field", FieldType)
	}
	// Container types may be spelled as full descriptors, e.g.
	// "STRUCT<INT32,STRING>".
	kindName, args, _ := strings.Cut(name, "<")
	args = strings.TrimSuffix(args, ">")
	k, ok := ParseKind(kindName)
	if !ok {
		return nil, shapeErr(path, "unknown type %q", name)
	}
	if path == "" {
		path = name
	}

	switch k {
	case KindArray:
		var ret Array
		if it, ok := m[FieldItemType]; ok && it != nil {
			s, ok := it.(string)
			if !ok {
				return nil, shapeErr(path, "item_type must be a string, got %T", it)
			}
			ret.ItemType = Descriptor(s)
		} else if args != "" {
			ret.ItemType = Descriptor(args)
		}
		items, err := list(m[FieldItems], path, FieldItems)
		if err != nil {
			return nil, err
		}
		for i, x := range items {
			v, err := fromAny(x, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			ret.Items = append(ret.Items, v)
		}
		return ret, nil
	case KindStruct:
		vals, err := list(m[FieldValues], path, FieldValues)
		if err != nil {
			return nil, err
		}
		var ret Struct
		for i, x := range vals {
			v, err := fromAny(x, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			ret.Values = append(ret.Values, v)
		}
		return ret, nil
	case KindDictEntry:
		key, err := fromAny(m[FieldKey], join(path, FieldKey))
		if err != nil {
			return nil, err
		}
		val, err := fromAny(m[FieldValue], join(path, FieldValue))
		if err != nil {
			return nil, err
		}
		return DictEntry{key, val}, nil
	case KindVariant:
		inner, err := fromAny(m[FieldValue], join(path, FieldValue))
		if err != nil {
			return nil, err
		}
		return Variant{inner}, nil
	default:
		raw, ok := m[FieldValue]
		if !ok {
			return nil, shapeErr(path, "missing %q field", FieldValue)
		}
		return Basic(k, raw)
	}
}

func list(x any, path, field string) ([]any, error) {
	switch x := x.(type) {
	case nil:
		return nil, nil
	case []any:
		return x, nil
	case []map[string]any:
		ret := make([]any, len(x))
		for i, m := range x {
			ret[i] = m
		}
		return ret, nil
	default:
		return nil, shapeErr(path, "%q must be a list, got %T", field, x)
	}
}

// Basic returns a basic Value of kind k holding raw.
//
// Numeric kinds accept any Go integer or float type, as long as the
// number is integral (for integer kinds) and within the kind's range.
func Basic(k Kind, raw any) (Value, error) {
	path := k.String()
	switch k {
	case KindBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, shapeErr(path, "expected a boolean, got %T", raw)
		}
		return Boolean(b), nil
	case KindString, KindObjectPath, KindSignature:
		s, ok := raw.(string)
		if !ok {
			return nil, shapeErr(path, "expected a string, got %T", raw)
		}
		switch k {
		case KindString:
			return String(s), nil
		case KindObjectPath:
			return ObjectPath(s), nil
		default:
			return Signature(s), nil
		}
	case KindDouble:
		f, ok := toFloat(raw)
		if !ok {
			return nil, shapeErr(path, "expected a number, got %T", raw)
		}
		return Double(f), nil
	case KindByte, KindInt16, KindInt32, KindInt64, KindUint16, KindUint32, KindUint64, KindUnixFD:
		return integer(k, raw)
	default:
		return nil, shapeErr(path, "not a basic type")
	}
}

var intRanges = map[Kind]struct{ lo, hi float64 }{
	KindByte:   {0, math.MaxUint8},
	KindInt16:  {math.MinInt16, math.MaxInt16},
	KindInt32:  {math.MinInt32, math.MaxInt32},
	KindUint16: {0, math.MaxUint16},
	KindUint32: {0, math.MaxUint32},
	KindUnixFD: {0, math.MaxInt32},
}

func integer(k Kind, raw any) (Value, error) {
	path := k.String()
	var (
		i        int64
		u        uint64
		negative bool
	)
	switch x := raw.(type) {
	case int:
		i, negative = int64(x), x < 0
		u = uint64(x)
	case int8:
		i, negative, u = int64(x), x < 0, uint64(x)
	case int16:
		i, negative, u = int64(x), x < 0, uint64(x)
	case int32:
		i, negative, u = int64(x), x < 0, uint64(x)
	case int64:
		i, negative, u = x, x < 0, uint64(x)
	case uint:
		i, u = int64(x), uint64(x)
	case uint8:
		i, u = int64(x), uint64(x)
	case uint16:
		i, u = int64(x), uint64(x)
	case uint32:
		i, u = int64(x), uint64(x)
	case uint64:
		i, u = int64(x), x
		if x > math.MaxInt64 && k != KindUint64 {
			return nil, shapeErr(path, "%d out of range", x)
		}
	case float32, float64:
		f, _ := toFloat(x)
		if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, shapeErr(path, "%v is not an integer", f)
		}
		// 2^63 and 2^64 are exactly representable, so these bounds
		// are exact.
		switch {
		case f < 0:
			if f < math.MinInt64 {
				return nil, shapeErr(path, "%v out of range", f)
			}
			i, negative = int64(f), true
		case f >= 1<<64:
			return nil, shapeErr(path, "%v out of range", f)
		case f >= 1<<63:
			u = uint64(f)
			if k != KindUint64 {
				return nil, shapeErr(path, "%v out of range", f)
			}
		default:
			i, u = int64(f), uint64(f)
		}
	default:
		return nil, shapeErr(path, "expected a number, got %T", raw)
	}

	switch k {
	case KindInt64:
		return Int64(i), nil
	case KindUint64:
		if negative {
			return nil, shapeErr(path, "%d out of range", i)
		}
		return Uint64(u), nil
	}
	r := intRanges[k]
	if float64(i) < r.lo || float64(i) > r.hi {
		return nil, shapeErr(path, "%d out of range", i)
	}
	switch k {
	case KindByte:
		return Byte(i), nil
	case KindInt16:
		return Int16(i), nil
	case KindInt32:
		return Int32(i), nil
	case KindUint16:
		return Uint16(i), nil
	case KindUint32:
		return Uint32(i), nil
	default:
		return UnixFD(i), nil
	}
}

func toFloat(x any) (float64, bool) {
	switch x := x.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

// ToMap converts v to its script-side representation.
//
// Integer kinds other than UINT64 are returned as int64, UINT64 as
// uint64, DOUBLE as float64, BOOLEAN as bool, and string-like kinds
// as string.
func ToMap(v Value) map[string]any {
	ret := map[string]any{FieldType: v.Kind().String()}
	switch v := v.(type) {
	case Boolean:
		ret[FieldValue] = bool(v)
	case Byte:
		ret[FieldValue] = int64(v)
	case Double:
		ret[FieldValue] = float64(v)
	case Int16:
		ret[FieldValue] = int64(v)
	case Int32:
		ret[FieldValue] = int64(v)
	case Int64:
		ret[FieldValue] = int64(v)
	case Uint16:
		ret[FieldValue] = int64(v)
	case Uint32:
		ret[FieldValue] = int64(v)
	case Uint64:
		ret[FieldValue] = uint64(v)
	case String:
		ret[FieldValue] = string(v)
	case ObjectPath:
		ret[FieldValue] = string(v)
	case Signature:
		ret[FieldValue] = string(v)
	case UnixFD:
		ret[FieldValue] = int64(v)
	case Array:
		items := make([]any, 0, len(v.Items))
		for _, it := range v.Items {
			items = append(items, ToMap(it))
		}
		ret[FieldItems] = items
		if v.ItemType != "" {
			ret[FieldItemType] = string(v.ItemType)
		}
	case Struct:
		vals := make([]any, 0, len(v.Values))
		for _, f := range v.Values {
			vals = append(vals, ToMap(f))
		}
		ret[FieldValues] = vals
	case DictEntry:
		ret[FieldKey] = ToMap(v.Key)
		ret[FieldValue] = ToMap(v.Value)
	case Variant:
		ret[FieldValue] = ToMap(v.Value)
	}
	return ret
}

// ToMaps converts a list of values with [ToMap].
func ToMaps(vs []Value) []any {
	ret := make([]any, 0, len(vs))
	for _, v := range vs {
		ret = append(ret, ToMap(v))
	}
	return ret
}

// Plain converts v to a plain script value without type information.
//
// Basic kinds convert as in [ToMap]. Variants are unwrapped, structs
// become []any, and arrays become []any, except that arrays of dict
// entries become a map[any]any keyed by the entries' plain keys. A
// dict entry outside an array keeps its [ToMap] form.
func Plain(v Value) any {
	switch v := v.(type) {
	case nil:
		return nil
	case Variant:
		return Plain(v.Value)
	case Struct:
		ret := make([]any, 0, len(v.Values))
		for _, f := range v.Values {
			ret = append(ret, Plain(f))
		}
		return ret
	case Array:
		if len(v.Items) > 0 {
			if _, ok := v.Items[0].(DictEntry); ok {
				ret := make(map[any]any, len(v.Items))
				for _, it := range v.Items {
					ent, ok := it.(DictEntry)
					if !ok {
						continue
					}
					ret[Plain(ent.Key)] = Plain(ent.Value)
				}
				return ret
			}
		}
		ret := make([]any, 0, len(v.Items))
		for _, it := range v.Items {
			ret = append(ret, Plain(it))
		}
		return ret
	case DictEntry:
		return ToMap(v)
	default:
		return ToMap(v)[FieldValue]
	}
}
