package scriptbus

import (
	"errors"
	"fmt"
	"strings"
)

// TypeCode is a DBus type code, the first byte of the signature of a
// single complete type.
type TypeCode byte

const (
	TypeInvalid    TypeCode = 0
	TypeByte       TypeCode = 'y'
	TypeBoolean    TypeCode = 'b'
	TypeInt16      TypeCode = 'n'
	TypeUint16     TypeCode = 'q'
	TypeInt32      TypeCode = 'i'
	TypeUint32     TypeCode = 'u'
	TypeInt64      TypeCode = 'x'
	TypeUint64     TypeCode = 't'
	TypeDouble     TypeCode = 'd'
	TypeString     TypeCode = 's'
	TypeObjectPath TypeCode = 'o'
	TypeSignature  TypeCode = 'g'
	TypeUnixFD     TypeCode = 'h'
	TypeArray      TypeCode = 'a'
	TypeVariant    TypeCode = 'v'
	// TypeStruct and TypeDictEntry are the type codes libdbus uses
	// for structs and dict entries. They never appear in signatures,
	// which use the bracket characters instead.
	TypeStruct    TypeCode = 'r'
	TypeDictEntry TypeCode = 'e'
)

const (
	maxSignatureLen = 255
	maxDepth        = 32
)

func (c TypeCode) String() string {
	if c == TypeInvalid {
		return "INVALID"
	}
	return string(rune(c))
}

// IsBasic reports whether c is a basic type code. Only basic types
// can be dict entry keys.
func (c TypeCode) IsBasic() bool {
	switch c {
	case TypeByte, TypeBoolean, TypeInt16, TypeUint16, TypeInt32, TypeUint32,
		TypeInt64, TypeUint64, TypeDouble, TypeString, TypeObjectPath,
		TypeSignature, TypeUnixFD:
		return true
	}
	return false
}

// IsContainer reports whether c is a container type code.
func (c TypeCode) IsContainer() bool {
	switch c {
	case TypeArray, TypeVariant, TypeStruct, TypeDictEntry:
		return true
	}
	return false
}

// Align returns the wire alignment of values of type c.
func (c TypeCode) Align() int {
	switch c {
	case TypeByte, TypeSignature, TypeVariant:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeBoolean, TypeInt32, TypeUint32, TypeString, TypeObjectPath, TypeUnixFD, TypeArray:
		return 4
	case TypeInt64, TypeUint64, TypeDouble, TypeStruct, TypeDictEntry:
		return 8
	}
	return 1
}

// A Signature describes the type of a sequence of DBus values, in the
// compact string encoding described in the DBus specification.
//
// The empty Signature describes no values.
type Signature string

// String returns the string encoding of the Signature, as described
// in the DBus specification.
func (s Signature) String() string { return string(s) }

// IsZero reports whether the signature is empty.
func (s Signature) IsZero() bool { return s == "" }

// Code returns the type code of the first complete type in s.
func (s Signature) Code() TypeCode {
	if s == "" {
		return TypeInvalid
	}
	switch s[0] {
	case '(':
		return TypeStruct
	case '{':
		return TypeDictEntry
	}
	return TypeCode(s[0])
}

// IsSingle reports whether s is exactly one complete type.
func (s Signature) IsSingle() bool {
	first, rest := s.split()
	return first != "" && rest == ""
}

// split returns the first complete type in s and the remainder. s
// must be valid.
func (s Signature) split() (first, rest Signature) {
	if s == "" {
		return "", ""
	}
	n := completeLen(string(s))
	return s[:n], s[n:]
}

// completeLen returns the length of the complete type at the start
// of the valid signature sig.
func completeLen(sig string) int {
	depth := 0
	for i := 0; i < len(sig); i++ {
		switch sig[i] {
		case 'a':
			continue
		case '(', '{':
			depth++
		case ')', '}':
			depth--
		}
		if depth == 0 {
			return i + 1
		}
	}
	return len(sig)
}

// Types splits s into its complete types.
func (s Signature) Types() []Signature {
	var ret []Signature
	for s != "" {
		var first Signature
		first, s = s.split()
		ret = append(ret, first)
	}
	return ret
}

// Elem returns the element type of the array signature s.
func (s Signature) Elem() Signature {
	if s.Code() != TypeArray {
		return ""
	}
	first, _ := s[1:].split()
	return first
}

// Fields returns the member types of the struct or dict entry
// signature s.
func (s Signature) Fields() []Signature {
	switch s.Code() {
	case TypeStruct, TypeDictEntry:
		first, _ := s.split()
		return first[1 : len(first)-1].Types()
	}
	return nil
}

var strToSignature = cache[string, Signature]{limit: 1024}

// ParseSignature parses and validates a DBus type signature string.
func ParseSignature(sig string) (Signature, error) {
	if ret, found := strToSignature.Get(sig); found {
		return ret, nil
	}
	ret, err := parseSignature(sig)
	if err != nil {
		return "", fmt.Errorf("invalid type signature %q: %w", sig, err)
	}
	strToSignature.Set(sig, ret)
	return ret, nil
}

func mustParseSignature(sig string) Signature {
	ret, err := ParseSignature(sig)
	if err != nil {
		panic(err)
	}
	return ret
}

func parseSignature(sig string) (Signature, error) {
	if len(sig) > maxSignatureLen {
		return "", fmt.Errorf("signature is %d bytes, maximum is %d", len(sig), maxSignatureLen)
	}
	rest := sig
	for rest != "" {
		var err error
		rest, err = parseOne(rest, parseState{})
		if err != nil {
			return "", err
		}
	}
	return Signature(sig), nil
}

// parseState tracks nesting while validating a signature.
type parseState struct {
	arrays, structs int
	// inArray is whether the type being parsed is an array element.
	inArray bool
	// loose permits dict entries outside arrays.
	loose bool
}

// parseOne validates the first complete type at the front of sig,
// and returns the remainder of the type string.
func parseOne(sig string, st parseState) (rest string, err error) {
	if sig == "" {
		return "", errors.New("missing type")
	}
	c := TypeCode(sig[0])
	if c.IsBasic() || c == TypeVariant {
		return sig[1:], nil
	}
	inArray := st.inArray
	st.inArray = false

	switch sig[0] {
	case 'a':
		st.arrays++
		if st.arrays > maxDepth {
			return "", fmt.Errorf("arrays nested more than %d deep", maxDepth)
		}
		if len(sig) == 1 {
			return "", errors.New("array is missing element type")
		}
		st.inArray = true
		return parseOne(sig[1:], st)
	case '(':
		st.structs++
		if st.structs > maxDepth {
			return "", fmt.Errorf("structs nested more than %d deep", maxDepth)
		}
		rest = sig[1:]
		if strings.HasPrefix(rest, ")") {
			return "", errors.New("empty struct")
		}
		for rest != "" && rest[0] != ')' {
			rest, err = parseOne(rest, st)
			if err != nil {
				return "", err
			}
		}
		if rest == "" {
			return "", errors.New("missing closing ) in struct definition")
		}
		return rest[1:], nil
	case '{':
		if !inArray && !st.loose {
			return "", errors.New("dict entry type found outside array")
		}
		st.structs++
		if st.structs > maxDepth {
			return "", fmt.Errorf("structs nested more than %d deep", maxDepth)
		}
		if len(sig) < 2 || !TypeCode(sig[1]).IsBasic() {
			return "", errors.New("dict entry key must be a basic type")
		}
		rest, err = parseOne(sig[2:], st)
		if err != nil {
			return "", err
		}
		if rest == "" || rest[0] != '}' {
			return "", errors.New("dict entry must have exactly one key and one value, and a closing }")
		}
		return rest[1:], nil
	case ')', '}':
		return "", fmt.Errorf("unexpected %q", sig[0])
	default:
		return "", fmt.Errorf("unknown type specifier %q", sig[0])
	}
}
