package fragments

import (
	"errors"
	"fmt"
	"io"
)

// A Decoder provides utilities to read a DBus wire format message
// from a byte slice.
//
// Methods advance the read cursor as needed to account for the
// padding required by DBus alignment rules, except for [Decoder.Read]
// which reads bytes verbatim.
type Decoder struct {
	// Order is the byte order to use when reading multi-byte values.
	Order ByteOrder
	// In is the input to read.
	In []byte
	// Offset is the read cursor within In. Alignment is computed
	// relative to the start of In, so In must begin at an 8-byte
	// aligned position of the message being read.
	Offset int
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.In) - d.Offset
}

// Pad consumes padding bytes as needed to make the next read happen
// at a multiple of align bytes. If the decoder is already correctly
// aligned, no bytes are consumed.
func (d *Decoder) Pad(align int) error {
	extra := d.Offset % align
	if extra == 0 {
		return nil
	}
	_, err := d.Read(align - extra)
	return err
}

// Read reads n bytes, with no framing or padding.
func (d *Decoder) Read(n int) ([]byte, error) {
	if n < 0 || n > d.Remaining() {
		return nil, io.ErrUnexpectedEOF
	}
	ret := d.In[d.Offset : d.Offset+n]
	d.Offset += n
	return ret, nil
}

// Bytes reads a DBus byte array.
func (d *Decoder) Bytes() ([]byte, error) {
	ln, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	return d.Read(int(ln))
}

// String reads a DBus string or object path.
func (d *Decoder) String() (string, error) {
	ln, err := d.Uint32()
	if err != nil {
		return "", err
	}
	ret, err := d.Read(int(ln) + 1)
	if err != nil {
		return "", err
	}
	if ret[len(ret)-1] != 0 {
		return "", errors.New("string is missing NUL terminator")
	}
	return string(ret[:len(ret)-1]), nil
}

// Signature reads a DBus type signature.
func (d *Decoder) Signature() (string, error) {
	ln, err := d.Uint8()
	if err != nil {
		return "", err
	}
	ret, err := d.Read(int(ln) + 1)
	if err != nil {
		return "", err
	}
	if ret[len(ret)-1] != 0 {
		return "", errors.New("signature is missing NUL terminator")
	}
	return string(ret[:len(ret)-1]), nil
}

// Uint8 reads a uint8.
func (d *Decoder) Uint8() (uint8, error) {
	bs, err := d.Read(1)
	if err != nil {
		return 0, err
	}
	return bs[0], nil
}

// Uint16 reads a uint16.
func (d *Decoder) Uint16() (uint16, error) {
	if err := d.Pad(2); err != nil {
		return 0, err
	}
	bs, err := d.Read(2)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint16(bs), nil
}

// Uint32 reads a uint32.
func (d *Decoder) Uint32() (uint32, error) {
	if err := d.Pad(4); err != nil {
		return 0, err
	}
	bs, err := d.Read(4)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint32(bs), nil
}

// Uint64 reads a uint64.
func (d *Decoder) Uint64() (uint64, error) {
	if err := d.Pad(8); err != nil {
		return 0, err
	}
	bs, err := d.Read(8)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint64(bs), nil
}

// ArrayHeader reads an array's length and the padding that precedes
// its first element, and returns the offset at which the array's
// elements end.
//
// elemAlign is the alignment of the array's element type, so that
// the decoder consumes header padding appropriately even if the
// array contains no elements.
func (d *Decoder) ArrayHeader(elemAlign int) (end int, err error) {
	ln, err := d.Uint32()
	if err != nil {
		return 0, err
	}
	if ln > MaxArrayLen {
		return 0, fmt.Errorf("array length %d exceeds maximum of %d bytes", ln, MaxArrayLen)
	}
	if err := d.Pad(elemAlign); err != nil {
		return 0, err
	}
	if int(ln) > d.Remaining() {
		return 0, io.ErrUnexpectedEOF
	}
	return d.Offset + int(ln), nil
}

// Array reads an array.
//
// readElement is called repeatedly while there is array data
// remaining to process, passing in the array index of the element to
// be decoded. readElement must consume at least one byte per call,
// and must not read beyond the end of the array data.
//
// Array returns the total number of array elements that were
// processed.
func (d *Decoder) Array(elemAlign int, readElement func(int) error) (int, error) {
	end, err := d.ArrayHeader(elemAlign)
	if err != nil {
		return 0, err
	}
	idx := 0
	for d.Offset < end {
		before := d.Offset
		if err := readElement(idx); err != nil {
			return idx, err
		}
		if d.Offset == before {
			return idx, errors.New("array element decoder made no progress")
		}
		idx++
	}
	if d.Offset != end {
		return idx, fmt.Errorf("array element overran array end by %d bytes", d.Offset-end)
	}
	return idx, nil
}

// Struct reads a struct.
//
// Struct fields must be read within the provided fields function.
func (d *Decoder) Struct(fields func() error) error {
	if err := d.Pad(8); err != nil {
		return err
	}
	return fields()
}

// ByteOrderFlag reads a DBus byte order flag byte, and sets
// [Decoder.Order] to match it.
func (d *Decoder) ByteOrderFlag() error {
	v, err := d.Uint8()
	if err != nil {
		return err
	}
	switch v {
	case 'B':
		d.Order = BigEndian
	case 'l':
		d.Order = LittleEndian
	default:
		return fmt.Errorf("unknown byte order flag %q", v)
	}
	return nil
}
