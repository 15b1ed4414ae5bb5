package fragments

import (
	"fmt"
)

// MaxArrayLen is the maximum byte length of a DBus array.
const MaxArrayLen = 1 << 26

// An Encoder provides utilities to write a DBus wire format message
// to a byte slice.
//
// Methods insert padding as needed to conform to DBus alignment
// rules, except for [Encoder.Write] which outputs bytes verbatim.
//
// Alignment is computed relative to the start of Out, so Out must
// begin at an 8-byte aligned position of the message being built.
type Encoder struct {
	// Order is the byte order to use when encoding multi-byte values.
	Order ByteOrder
	// Out is the encoded output.
	Out []byte
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int { return len(e.Out) }

// Truncate discards all output past the first n bytes.
func (e *Encoder) Truncate(n int) {
	if n < len(e.Out) {
		e.Out = e.Out[:n]
	}
}

// Pad inserts padding bytes as needed to make the message a multiple
// of align bytes. If the message is already correctly aligned, no
// padding is inserted.
func (e *Encoder) Pad(align int) {
	extra := len(e.Out) % align
	if extra == 0 {
		return
	}
	var pad [8]byte
	e.Out = append(e.Out, pad[:align-extra]...)
}

// Write writes bs as-is to the output. It is the caller's
// responsibility to ensure correct padding and encoding.
func (e *Encoder) Write(bs []byte) {
	e.Out = append(e.Out, bs...)
}

// Bytes writes bs to the output as a DBus byte array.
func (e *Encoder) Bytes(bs []byte) {
	e.Pad(4)
	e.Uint32(uint32(len(bs)))
	e.Out = append(e.Out, bs...)
}

// String writes s to the output. It is used for DBus strings and
// object paths.
func (e *Encoder) String(s string) {
	e.Pad(4)
	e.Uint32(uint32(len(s)))
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
}

// Signature writes a DBus type signature to the output. Signatures
// use a single byte length prefix.
func (e *Encoder) Signature(s string) {
	e.Uint8(uint8(len(s)))
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
}

// Uint8 writes a uint8.
func (e *Encoder) Uint8(u8 uint8) {
	e.Out = append(e.Out, u8)
}

// Uint16 writes uint16.
func (e *Encoder) Uint16(u16 uint16) {
	e.Pad(2)
	e.Out = e.Order.AppendUint16(e.Out, u16)
}

// Uint32 writes uint32.
func (e *Encoder) Uint32(u32 uint32) {
	e.Pad(4)
	e.Out = e.Order.AppendUint32(e.Out, u32)
}

// Uint64 writes uint64.
func (e *Encoder) Uint64(u64 uint64) {
	e.Pad(8)
	e.Out = e.Order.AppendUint64(e.Out, u64)
}

// An ArrayMark records the position of an array that is being
// written incrementally with [Encoder.BeginArray].
type ArrayMark struct {
	// Start is the offset of the array's length word.
	Start int
	// Elements is the offset of the first array element.
	Elements int
}

// BeginArray writes an array header with a placeholder length, and
// pads to elemAlign so that the first element is correctly aligned
// even if the array ends up empty.
//
// The array must be finished with [Encoder.EndArray] once all
// elements are written.
func (e *Encoder) BeginArray(elemAlign int) ArrayMark {
	e.Pad(4)
	start := len(e.Out)
	e.Uint32(0)
	e.Pad(elemAlign)
	return ArrayMark{start, len(e.Out)}
}

// EndArray backpatches the length of the array started at m.
func (e *Encoder) EndArray(m ArrayMark) error {
	n := len(e.Out) - m.Elements
	if n > MaxArrayLen {
		return fmt.Errorf("array length %d exceeds maximum of %d bytes", n, MaxArrayLen)
	}
	e.Order.PutUint32(e.Out[m.Start:], uint32(n))
	return nil
}

// Array writes an array to the output.
//
// Array elements must be added within the provided elements
// function. The elements function is responsible for padding each
// array element to the correct alignment for the element type.
//
// elemAlign is the alignment of the array's element type, so that
// the array header can be padded accordingly.
func (e *Encoder) Array(elemAlign int, elements func() error) error {
	m := e.BeginArray(elemAlign)
	if err := elements(); err != nil {
		return err
	}
	return e.EndArray(m)
}

// Struct writes a struct to the output.
//
// Struct fields must be added within the provided elements function.
func (e *Encoder) Struct(elements func() error) error {
	e.Pad(8)
	return elements()
}

// ByteOrderFlag writes the DBus byte order flag byte ('l' or 'B')
// that matches [Encoder.Order].
func (e *Encoder) ByteOrderFlag() {
	e.Write([]byte{e.Order.dbusFlag()})
}
