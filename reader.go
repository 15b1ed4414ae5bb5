package scriptbus

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/danderson/scriptbus/fragments"
	"golang.org/x/sys/unix"
)

// maxValueDepth bounds the nesting of received values, including
// variants, which signatures alone do not limit.
const maxValueDepth = 64

// readIter is the Iter for an inbound Message.
type readIter struct {
	m *Message
	// sigs is the sequence of types at this level. For arrays, it is
	// nil and every element has type elem.
	sigs []Signature
	elem Signature
	// pos is the offset of the current element, before alignment
	// padding. end is the offset at which this level's data ends.
	pos, end int
	idx      int
	depth    int
	err      error
}

func (it *readIter) decoder() *fragments.Decoder {
	return &fragments.Decoder{
		Order:  it.m.Order,
		In:     it.m.body[:it.end],
		Offset: it.pos,
	}
}

func (it *readIter) decodeErr(sig Signature, off int, err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = errors.New("value extends past end of data")
	}
	return DecodeError{sig, off, err}
}

func (it *readIter) exhausted() bool {
	if it.err != nil {
		return true
	}
	if it.sigs == nil {
		return it.pos >= it.end
	}
	return it.idx >= len(it.sigs)
}

func (it *readIter) Signature() Signature {
	if it.exhausted() {
		return ""
	}
	if it.sigs == nil {
		return it.elem
	}
	return it.sigs[it.idx]
}

func (it *readIter) ArgType() TypeCode {
	return it.Signature().Code()
}

func (it *readIter) Err() error { return it.err }

func (it *readIter) Next() bool {
	if it.exhausted() {
		return false
	}
	d := it.decoder()
	if err := skipValue(d, it.Signature(), it.depth); err != nil {
		it.err = it.decodeErr(it.Signature(), it.pos, err)
		return false
	}
	it.pos = d.Offset
	it.idx++
	return !it.exhausted()
}

func (it *readIter) Basic() (any, error) {
	sig := it.Signature()
	if sig == "" {
		return nil, DecodeError{"", it.pos, errors.New("read past end of values")}
	}
	code := sig.Code()
	if !code.IsBasic() {
		return nil, DecodeError{sig, it.pos, errors.New("not a basic type")}
	}
	d := it.decoder()
	v, err := readBasic(d, code)
	if err != nil {
		return nil, it.decodeErr(sig, it.pos, err)
	}
	if code == TypeUnixFD {
		idx := v.(uint32)
		if int(idx) >= len(it.m.files) {
			return nil, DecodeError{sig, it.pos, fmt.Errorf("file descriptor index %d out of range, message has %d", idx, len(it.m.files))}
		}
		fd, err := unix.Dup(int(it.m.files[idx].Fd()))
		if err != nil {
			return nil, syscallErr("dup", err)
		}
		unix.CloseOnExec(fd)
		return fd, nil
	}
	return v, nil
}

func (it *readIter) Recurse() (Iter, error) {
	sig := it.Signature()
	if sig == "" {
		return nil, DecodeError{"", it.pos, errors.New("read past end of values")}
	}
	if it.depth+1 > maxValueDepth {
		return nil, DecodeError{sig, it.pos, fmt.Errorf("values nested more than %d deep", maxValueDepth)}
	}
	d := it.decoder()
	sub := &readIter{m: it.m, depth: it.depth + 1}
	switch sig.Code() {
	case TypeArray:
		elem := sig.Elem()
		end, err := d.ArrayHeader(elem.Code().Align())
		if err != nil {
			return nil, it.decodeErr(sig, it.pos, err)
		}
		sub.elem = elem
		sub.pos, sub.end = d.Offset, end
	case TypeStruct, TypeDictEntry:
		if err := d.Pad(8); err != nil {
			return nil, it.decodeErr(sig, it.pos, err)
		}
		sub.sigs = sig.Fields()
		sub.pos, sub.end = d.Offset, it.end
	case TypeVariant:
		inner, err := readVariantSignature(d)
		if err != nil {
			return nil, it.decodeErr(sig, it.pos, err)
		}
		sub.sigs = []Signature{inner}
		sub.pos, sub.end = d.Offset, it.end
	default:
		return nil, DecodeError{sig, it.pos, errors.New("not a container type")}
	}
	return sub, nil
}

func readVariantSignature(d *fragments.Decoder) (Signature, error) {
	s, err := d.Signature()
	if err != nil {
		return "", err
	}
	sig, err := ParseSignature(s)
	if err != nil {
		return "", err
	}
	if !sig.IsSingle() {
		return "", fmt.Errorf("variant signature %q is not a single complete type", sig)
	}
	return sig, nil
}

// readBasic reads a basic value of type code. File descriptors are
// returned as their uint32 index into the message's files.
func readBasic(d *fragments.Decoder, code TypeCode) (any, error) {
	switch code {
	case TypeByte:
		return d.Uint8()
	case TypeBoolean:
		u, err := d.Uint32()
		if err != nil {
			return nil, err
		}
		if u > 1 {
			return nil, fmt.Errorf("invalid boolean value %d", u)
		}
		return u == 1, nil
	case TypeInt16:
		u, err := d.Uint16()
		return int16(u), err
	case TypeUint16:
		return d.Uint16()
	case TypeInt32:
		u, err := d.Uint32()
		return int32(u), err
	case TypeUint32, TypeUnixFD:
		return d.Uint32()
	case TypeInt64:
		u, err := d.Uint64()
		return int64(u), err
	case TypeUint64:
		return d.Uint64()
	case TypeDouble:
		u, err := d.Uint64()
		return math.Float64frombits(u), err
	case TypeString, TypeObjectPath:
		return d.String()
	case TypeSignature:
		return d.Signature()
	}
	return nil, fmt.Errorf("unsupported type code %q", code)
}

// skipValue advances d past one value of type sig.
func skipValue(d *fragments.Decoder, sig Signature, depth int) error {
	if depth > maxValueDepth {
		return fmt.Errorf("values nested more than %d deep", maxValueDepth)
	}
	switch c := sig.Code(); c {
	case TypeArray:
		end, err := d.ArrayHeader(sig.Elem().Code().Align())
		if err != nil {
			return err
		}
		d.Offset = end
		return nil
	case TypeStruct, TypeDictEntry:
		if err := d.Pad(8); err != nil {
			return err
		}
		for _, f := range sig.Fields() {
			if err := skipValue(d, f, depth+1); err != nil {
				return err
			}
		}
		return nil
	case TypeVariant:
		inner, err := readVariantSignature(d)
		if err != nil {
			return err
		}
		return skipValue(d, inner, depth+1)
	default:
		if !c.IsBasic() {
			return fmt.Errorf("unsupported type code %q", c)
		}
		_, err := readBasic(d, c)
		return err
	}
}
