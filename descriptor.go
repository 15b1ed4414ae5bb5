package scriptbus

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danderson/scriptbus/value"
)

// kindCodes maps script type names to DBus type codes.
//
// ARRAY is listed so that the name is recognized, but a bare ARRAY
// descriptor does not compile, because it doesn't say what the array
// contains. Use ARRAY<T>.
var kindCodes = map[value.Kind]TypeCode{
	value.KindArray:      TypeArray,
	value.KindBoolean:    TypeBoolean,
	value.KindByte:       TypeByte,
	value.KindDouble:     TypeDouble,
	value.KindInt16:      TypeInt16,
	value.KindInt32:      TypeInt32,
	value.KindInt64:      TypeInt64,
	value.KindObjectPath: TypeObjectPath,
	value.KindSignature:  TypeSignature,
	value.KindString:     TypeString,
	value.KindUint16:     TypeUint16,
	value.KindUint32:     TypeUint32,
	value.KindUint64:     TypeUint64,
	value.KindUnixFD:     TypeUnixFD,
	value.KindVariant:    TypeVariant,
	value.KindStruct:     TypeStruct,
	value.KindDictEntry:  TypeDictEntry,
}

var codeKinds = func() map[TypeCode]value.Kind {
	ret := make(map[TypeCode]value.Kind, len(kindCodes))
	for k, c := range kindCodes {
		ret[c] = k
	}
	return ret
}()

// KindOf returns the value kind corresponding to a type code.
func KindOf(c TypeCode) (value.Kind, bool) {
	k, ok := codeKinds[c]
	return k, ok
}

// Descriptors come from scripts, so the memo is bounded.
var compiled = cache[value.Descriptor, Signature]{limit: 1024}

// Compile compiles a type descriptor into a DBus signature of a
// single complete type.
//
// For example, "STRUCT<DICT_ENTRY<STRING,STRING>,INT32>" compiles to
// "({ss}i)". A dict entry may be compiled on its own, for use as an
// array item type, even though "{..}" is only valid inside an array
// in a full signature.
func Compile(d value.Descriptor) (Signature, error) {
	if ret, found := compiled.Get(d); found {
		return ret, nil
	}
	ret, err := compile(d)
	if err != nil {
		return "", err
	}
	compiled.Set(d, ret)
	return ret, nil
}

func compile(d value.Descriptor) (Signature, error) {
	var b strings.Builder
	if err := compileInto(&b, string(d)); err != nil {
		return "", TypeError{string(d), err}
	}
	sig := b.String()
	if len(sig) > maxSignatureLen {
		return "", typeErr(string(d), "signature is %d bytes, maximum is %d", len(sig), maxSignatureLen)
	}
	// Dict entries are allowed anywhere here. Placement is enforced
	// when values are written to a message.
	rest, err := parseOne(sig, parseState{loose: true})
	if err != nil {
		return "", TypeError{string(d), err}
	}
	if rest != "" {
		return "", typeErr(string(d), "compiles to more than one complete type")
	}
	return Signature(sig), nil
}

func compileInto(b *strings.Builder, d string) error {
	name, args, hasArgs, err := splitGeneric(d)
	if err != nil {
		return err
	}
	switch name {
	case "ARRAY":
		if !hasArgs {
			return errors.New("ARRAY needs an item type, e.g. ARRAY<STRING>")
		}
		parts, err := splitList(args)
		if err != nil {
			return err
		}
		if len(parts) != 1 {
			return fmt.Errorf("ARRAY takes exactly one item type, got %d", len(parts))
		}
		b.WriteByte(byte(TypeArray))
		return compileInto(b, parts[0])
	case "STRUCT":
		if !hasArgs {
			return errors.New("STRUCT needs field types, e.g. STRUCT<INT32,STRING>")
		}
		parts, err := splitList(args)
		if err != nil {
			return err
		}
		b.WriteByte('(')
		for _, p := range parts {
			if err := compileInto(b, p); err != nil {
				return err
			}
		}
		b.WriteByte(')')
		return nil
	case "DICT_ENTRY":
		if !hasArgs {
			return errors.New("DICT_ENTRY needs key and value types, e.g. DICT_ENTRY<STRING,VARIANT>")
		}
		parts, err := splitList(args)
		if err != nil {
			return err
		}
		if len(parts) != 2 {
			return fmt.Errorf("DICT_ENTRY takes a key and a value type, got %d types", len(parts))
		}
		var key strings.Builder
		if err := compileInto(&key, parts[0]); err != nil {
			return err
		}
		if k := key.String(); len(k) != 1 || !TypeCode(k[0]).IsBasic() {
			return fmt.Errorf("DICT_ENTRY key type %s is not a basic type", parts[0])
		}
		b.WriteByte('{')
		b.WriteString(key.String())
		if err := compileInto(b, parts[1]); err != nil {
			return err
		}
		b.WriteByte('}')
		return nil
	}

	k, ok := value.ParseKind(name)
	if !ok {
		return fmt.Errorf("unknown type name %q", name)
	}
	if hasArgs {
		return fmt.Errorf("%s does not take type parameters", name)
	}
	b.WriteByte(byte(kindCodes[k]))
	return nil
}

// splitGeneric splits "NAME<ARGS>" into its name and arguments.
func splitGeneric(d string) (name, args string, hasArgs bool, err error) {
	d = strings.TrimSpace(d)
	if d == "" {
		return "", "", false, errors.New("empty type descriptor")
	}
	i := strings.IndexByte(d, '<')
	if i < 0 {
		if strings.ContainsAny(d, ">,") {
			return "", "", false, fmt.Errorf("malformed type descriptor %q", d)
		}
		return d, "", false, nil
	}
	if !strings.HasSuffix(d, ">") {
		return "", "", false, fmt.Errorf("missing closing > in %q", d)
	}
	name = strings.TrimSpace(d[:i])
	if name == "" {
		return "", "", false, fmt.Errorf("missing type name in %q", d)
	}
	return name, d[i+1 : len(d)-1], true, nil
}

// splitList splits a comma-separated list of descriptors, ignoring
// commas nested inside angle brackets.
func splitList(s string) ([]string, error) {
	var (
		ret   []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced > in %q", s)
			}
		case ',':
			if depth == 0 {
				ret = append(ret, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced < in %q", s)
	}
	ret = append(ret, s[start:])
	for _, p := range ret {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("empty type in list %q", s)
		}
	}
	return ret, nil
}

// SignatureOf returns the signature of v's type.
func SignatureOf(v value.Value) (Signature, error) {
	d, err := value.DescriptorOf(v)
	if err != nil {
		return "", TypeError{"", err}
	}
	return Compile(d)
}

// Describe returns the type descriptor for the single complete type
// sig. It is the inverse of [Compile].
func Describe(sig Signature) (value.Descriptor, error) {
	rest, err := parseOne(string(sig), parseState{loose: true})
	if err != nil {
		return "", fmt.Errorf("invalid type signature %q: %w", sig, err)
	}
	if rest != "" {
		return "", fmt.Errorf("signature %q is not a single complete type", sig)
	}
	return describe(sig), nil
}

func describe(sig Signature) value.Descriptor {
	switch c := sig.Code(); c {
	case TypeArray:
		return value.ArrayOf(describe(sig.Elem()))
	case TypeStruct:
		var fs []value.Descriptor
		for _, f := range sig.Fields() {
			fs = append(fs, describe(f))
		}
		return value.StructOf(fs...)
	case TypeDictEntry:
		fs := sig.Fields()
		return value.DictEntryOf(describe(fs[0]), describe(fs[1]))
	default:
		return value.Descriptor(codeKinds[c].String())
	}
}
