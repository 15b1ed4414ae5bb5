package scriptbus

import (
	"errors"
	"fmt"

	"github.com/danderson/scriptbus/arena"
	"github.com/danderson/scriptbus/cesu"
	"github.com/danderson/scriptbus/value"
)

// DecodeAny reads the value at the current position of it.
//
// String-like values are converted to the script's modified UTF-8
// encoding, using a for temporary storage. a must not be nil.
//
// Arrays are decoded structurally: the resulting [value.Array] has
// no ItemType. Variants are unwrapped, the result is the contained
// value.
func DecodeAny(a *arena.Arena, it Iter) (value.Value, error) {
	code := it.ArgType()
	switch code {
	case TypeInvalid:
		if err := it.Err(); err != nil {
			return nil, err
		}
		return nil, DecodeError{Reason: errors.New("no value to decode")}
	case TypeArray:
		sub, err := it.Recurse()
		if err != nil {
			return nil, err
		}
		items, err := decodeAll(a, sub)
		if err != nil {
			return nil, err
		}
		return value.Array{Items: items}, nil
	case TypeStruct:
		sub, err := it.Recurse()
		if err != nil {
			return nil, err
		}
		vals, err := decodeAll(a, sub)
		if err != nil {
			return nil, err
		}
		return value.Struct{Values: vals}, nil
	case TypeDictEntry:
		sub, err := it.Recurse()
		if err != nil {
			return nil, err
		}
		key, err := DecodeAny(a, sub)
		if err != nil {
			return nil, fmt.Errorf("DICT_ENTRY key: %w", err)
		}
		if !sub.Next() {
			if err := sub.Err(); err != nil {
				return nil, err
			}
			return nil, DecodeError{Signature: it.Signature(), Reason: errors.New("dict entry has no value")}
		}
		val, err := DecodeAny(a, sub)
		if err != nil {
			return nil, fmt.Errorf("DICT_ENTRY value: %w", err)
		}
		return value.DictEntry{Key: key, Value: val}, nil
	case TypeVariant:
		sub, err := it.Recurse()
		if err != nil {
			return nil, err
		}
		return DecodeAny(a, sub)
	}

	raw, err := it.Basic()
	if err != nil {
		return nil, err
	}
	switch code {
	case TypeString, TypeObjectPath, TypeSignature:
		s, err := toModified(a, raw)
		if err != nil {
			return nil, err
		}
		switch code {
		case TypeString:
			return value.String(s), nil
		case TypeObjectPath:
			return value.ObjectPath(s), nil
		default:
			return value.Signature(s), nil
		}
	}
	switch x := raw.(type) {
	case bool:
		return value.Boolean(x), nil
	case uint8:
		return value.Byte(x), nil
	case int16:
		return value.Int16(x), nil
	case uint16:
		return value.Uint16(x), nil
	case int32:
		return value.Int32(x), nil
	case uint32:
		return value.Uint32(x), nil
	case int64:
		return value.Int64(x), nil
	case uint64:
		return value.Uint64(x), nil
	case float64:
		return value.Double(x), nil
	case int:
		if code == TypeUnixFD {
			return value.UnixFD(x), nil
		}
	}
	return nil, DecodeError{Signature: it.Signature(), Reason: fmt.Errorf("unsupported type code %q", code)}
}

func toModified(a *arena.Arena, raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", DecodeError{Reason: fmt.Errorf("string value has Go type %T", raw)}
	}
	bs, err := cesu.FromUTF8(a, []byte(s))
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

// decodeAll decodes every remaining value of it.
func decodeAll(a *arena.Arena, it Iter) ([]value.Value, error) {
	var ret []value.Value
	for it.ArgType() != TypeInvalid {
		v, err := DecodeAny(a, it)
		if err != nil {
			return nil, err
		}
		ret = append(ret, v)
		it.Next()
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}
