package scriptbus

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/danderson/scriptbus/fragments"
	"golang.org/x/sys/unix"
)

// appendIter is the Appender for an outbound Message.
type appendIter struct {
	m      *Message
	parent *appendIter
	// code is the container type, or TypeInvalid for the message
	// body.
	code TypeCode
	// elem is the element signature of an array, or the contained
	// signature of a variant.
	elem Signature
	// expect is the list of types the container must hold, for
	// structs and dict entries whose type is known in advance. nil
	// means unconstrained.
	expect []Signature
	// n is the number of values written so far.
	n int
	// sig accumulates the signatures of values written so far.
	sig strings.Builder

	// start is the output offset at which the container begins,
	// including leading padding. nfiles is the number of message
	// files at that point.
	start  int
	nfiles int
	mark   fragments.ArrayMark

	child  *appendIter
	closed bool
}

func (it *appendIter) usable() error {
	switch {
	case it.m == nil || it.m.enc == nil:
		return errors.New("message is no longer writable")
	case it.closed:
		return errors.New("container is already closed")
	case it.child != nil:
		return errors.New("cannot write to a container while one of its children is open")
	}
	return nil
}

// expected returns the type the next value must have, or "" if any
// type is permitted.
func (it *appendIter) expected() (Signature, error) {
	switch it.code {
	case TypeArray:
		return it.elem, nil
	case TypeVariant:
		if it.n > 0 {
			return "", errors.New("variant can only hold one value")
		}
		return it.elem, nil
	}
	if it.expect == nil {
		return "", nil
	}
	if it.n >= len(it.expect) {
		return "", fmt.Errorf("too many values for %s, want %d", it.describe(), len(it.expect))
	}
	return it.expect[it.n], nil
}

func (it *appendIter) describe() string {
	switch it.code {
	case TypeStruct:
		return "struct"
	case TypeDictEntry:
		return "dict entry"
	case TypeArray:
		return "array"
	case TypeVariant:
		return "variant"
	}
	return "message body"
}

func (it *appendIter) check(got Signature) error {
	want, err := it.expected()
	if err != nil {
		return TypeError{string(got), err}
	}
	if want != "" && want != got {
		return typeErr(string(got), "%s expects a value of type %q", it.describe(), want)
	}
	return nil
}

func (it *appendIter) record(sig Signature) {
	it.n++
	it.sig.WriteString(string(sig))
}

func (it *appendIter) AppendBasic(code TypeCode, v any) error {
	if err := it.usable(); err != nil {
		return err
	}
	if !code.IsBasic() {
		return typeErr(code.String(), "not a basic type")
	}
	sig := Signature(code.String())
	if err := it.check(sig); err != nil {
		return err
	}
	if err := it.m.writeBasic(code, v); err != nil {
		return err
	}
	it.record(sig)
	return nil
}

func (m *Message) writeBasic(code TypeCode, v any) error {
	e := m.enc
	bad := func() error {
		return typeErr(code.String(), "cannot write Go value of type %T", v)
	}
	switch code {
	case TypeByte:
		x, ok := v.(uint8)
		if !ok {
			return bad()
		}
		e.Uint8(x)
	case TypeBoolean:
		x, ok := v.(bool)
		if !ok {
			return bad()
		}
		var u uint32
		if x {
			u = 1
		}
		e.Uint32(u)
	case TypeInt16:
		x, ok := v.(int16)
		if !ok {
			return bad()
		}
		e.Uint16(uint16(x))
	case TypeUint16:
		x, ok := v.(uint16)
		if !ok {
			return bad()
		}
		e.Uint16(x)
	case TypeInt32:
		x, ok := v.(int32)
		if !ok {
			return bad()
		}
		e.Uint32(uint32(x))
	case TypeUint32:
		x, ok := v.(uint32)
		if !ok {
			return bad()
		}
		e.Uint32(x)
	case TypeInt64:
		x, ok := v.(int64)
		if !ok {
			return bad()
		}
		e.Uint64(uint64(x))
	case TypeUint64:
		x, ok := v.(uint64)
		if !ok {
			return bad()
		}
		e.Uint64(x)
	case TypeDouble:
		x, ok := v.(float64)
		if !ok {
			return bad()
		}
		e.Uint64(math.Float64bits(x))
	case TypeString, TypeObjectPath, TypeSignature:
		x, ok := v.(string)
		if !ok {
			return bad()
		}
		if err := validString(code, x); err != nil {
			return err
		}
		if code == TypeSignature {
			e.Signature(x)
		} else {
			e.String(x)
		}
	case TypeUnixFD:
		x, ok := v.(int)
		if !ok {
			return bad()
		}
		if len(m.files) >= math.MaxUint8 {
			return errors.New("too many file descriptors in message")
		}
		fd, err := unix.Dup(x)
		if err != nil {
			return syscallErr("dup", err)
		}
		unix.CloseOnExec(fd)
		m.files = append(m.files, os.NewFile(uintptr(fd), fmt.Sprintf("fd%d", x)))
		e.Uint32(uint32(len(m.files) - 1))
	default:
		return typeErr(code.String(), "not a basic type")
	}
	return nil
}

// validString checks that s is a valid value for the string-like type
// code.
func validString(code TypeCode, s string) error {
	if !utf8.ValidString(s) {
		return typeErr(code.String(), "string is not valid UTF-8")
	}
	if strings.IndexByte(s, 0) >= 0 {
		return typeErr(code.String(), "string contains a NUL byte")
	}
	switch code {
	case TypeObjectPath:
		if err := validObjectPath(s); err != nil {
			return TypeError{code.String(), err}
		}
	case TypeSignature:
		if _, err := ParseSignature(s); err != nil {
			return TypeError{code.String(), err}
		}
	}
	return nil
}

func (it *appendIter) OpenContainer(code TypeCode, sig Signature) (Appender, error) {
	if err := it.usable(); err != nil {
		return nil, err
	}
	child := &appendIter{
		m:      it.m,
		parent: it,
		code:   code,
		start:  it.m.enc.Len(),
		nfiles: len(it.m.files),
	}
	want, err := it.expected()
	if err != nil {
		return nil, TypeError{code.String(), err}
	}

	switch code {
	case TypeArray:
		if _, err := parseOne(string(sig), parseState{inArray: true}); err != nil || !sig.IsSingle() {
			return nil, typeErr("a"+string(sig), "invalid array element type")
		}
		if want != "" && want != "a"+sig {
			return nil, typeErr("a"+string(sig), "%s expects a value of type %q", it.describe(), want)
		}
		child.elem = sig
		child.mark = it.m.enc.BeginArray(sig.Code().Align())
	case TypeVariant:
		if _, err := ParseSignature(string(sig)); err != nil || !sig.IsSingle() {
			return nil, typeErr(string(sig), "variant must contain a single complete type")
		}
		if want != "" && want != "v" {
			return nil, typeErr("v", "%s expects a value of type %q", it.describe(), want)
		}
		child.elem = sig
		it.m.enc.Signature(string(sig))
	case TypeStruct:
		if sig != "" {
			return nil, typeErr("struct", "struct signature is derived from its contents, got %q", sig)
		}
		if want != "" {
			if want.Code() != TypeStruct {
				return nil, typeErr("struct", "%s expects a value of type %q", it.describe(), want)
			}
			child.expect = want.Fields()
		}
		it.m.enc.Pad(8)
	case TypeDictEntry:
		if sig != "" {
			return nil, typeErr("dict entry", "dict entry signature is derived from its contents, got %q", sig)
		}
		if it.code != TypeArray || want.Code() != TypeDictEntry {
			return nil, typeErr("dict entry", "dict entries can only be written into arrays of dict entries")
		}
		child.expect = want.Fields()
		it.m.enc.Pad(8)
	default:
		return nil, typeErr(code.String(), "not a container type")
	}

	it.child = child
	return child, nil
}

func (it *appendIter) own(sub Appender) (*appendIter, error) {
	child, ok := sub.(*appendIter)
	if !ok || child.parent != it || it.child != child {
		return nil, errors.New("container was not opened on this appender")
	}
	return child, nil
}

func (it *appendIter) CloseContainer(sub Appender) error {
	child, err := it.own(sub)
	if err != nil {
		return err
	}
	if err := child.finish(); err != nil {
		it.AbandonContainer(sub)
		return err
	}
	child.closed = true
	it.child = nil
	it.record(child.signature())
	return nil
}

// finish validates that the container is complete, and finalizes its
// encoding.
func (it *appendIter) finish() error {
	if it.child != nil {
		return fmt.Errorf("%s has an unclosed container", it.describe())
	}
	switch it.code {
	case TypeArray:
		return it.m.enc.EndArray(it.mark)
	case TypeVariant:
		if it.n != 1 {
			return TypeError{"v", errors.New("variant must hold exactly one value")}
		}
	case TypeStruct:
		if it.n == 0 {
			return TypeError{"()", errors.New("empty struct")}
		}
		if it.expect != nil && it.n != len(it.expect) {
			return typeErr("struct", "got %d fields, want %d", it.n, len(it.expect))
		}
	case TypeDictEntry:
		if it.n != 2 {
			return typeErr("dict entry", "must hold exactly a key and a value, got %d values", it.n)
		}
	}
	return nil
}

// signature returns the complete signature of the closed container.
func (it *appendIter) signature() Signature {
	switch it.code {
	case TypeArray:
		return "a" + it.elem
	case TypeVariant:
		return "v"
	case TypeStruct:
		return Signature("(" + it.sig.String() + ")")
	case TypeDictEntry:
		return Signature("{" + it.sig.String() + "}")
	}
	return Signature(it.sig.String())
}

func (it *appendIter) AbandonContainer(sub Appender) {
	child, err := it.own(sub)
	if err != nil {
		return
	}
	child.abandon()
	it.child = nil
}

func (it *appendIter) abandon() {
	if it.child != nil {
		it.child.abandon()
		it.child = nil
	}
	it.closed = true
	if it.m.enc == nil {
		return
	}
	it.m.enc.Truncate(it.start)
	for _, f := range it.m.files[it.nfiles:] {
		f.Close()
	}
	it.m.files = it.m.files[:it.nfiles]
}
