package fragments_test

import (
	"bytes"
	"testing"

	"github.com/danderson/scriptbus/fragments"
)

type mustDecoder struct {
	t *testing.T
	*fragments.Decoder
}

func (d *mustDecoder) MustRead(n int, want []byte) {
	got, err := d.Read(n)
	if err != nil {
		d.t.Fatalf("Read(%d) got err: %v", n, err)
	}
	if !bytes.Equal(got, want) {
		d.t.Fatalf("Read(%d) wrong output:\n  got: % x\n want: % x", n, got, want)
	}
	if testing.Verbose() {
		d.t.Logf("Read(%d) = % x", n, got)
	}
}

func (d *mustDecoder) MustBytes(want []byte) {
	got, err := d.Bytes()
	if err != nil {
		d.t.Fatalf("Bytes() got err: %v", err)
	}
	if !bytes.Equal(got, want) {
		d.t.Fatalf("Bytes() wrong output:\n  got: % x\n want: % x", got, want)
	}
	if testing.Verbose() {
		d.t.Logf("Bytes() = % x", got)
	}
}

func (d *mustDecoder) MustString(want string) {
	got, err := d.String()
	if err != nil {
		d.t.Fatalf("String() got err: %v", err)
	}
	if got != want {
		d.t.Fatalf("String() got %q, want %q", got, want)
	}
	if testing.Verbose() {
		d.t.Logf("String() = %q", got)
	}
}

func (d *mustDecoder) MustSignature(want string) {
	got, err := d.Signature()
	if err != nil {
		d.t.Fatalf("Signature() got err: %v", err)
	}
	if got != want {
		d.t.Fatalf("Signature() got %q, want %q", got, want)
	}
}

func (d *mustDecoder) MustUint8(want uint8) {
	got, err := d.Uint8()
	if err != nil {
		d.t.Fatalf("Uint8() got err: %v", err)
	}
	if got != want {
		d.t.Fatalf("Uint8() got %d, want %d", got, want)
	}
}

func (d *mustDecoder) MustUint16(want uint16) {
	got, err := d.Uint16()
	if err != nil {
		d.t.Fatalf("Uint16() got err: %v", err)
	}
	if got != want {
		d.t.Fatalf("Uint16() got %d, want %d", got, want)
	}
}

func (d *mustDecoder) MustUint32(want uint32) {
	got, err := d.Uint32()
	if err != nil {
		d.t.Fatalf("Uint32() got err: %v", err)
	}
	if got != want {
		d.t.Fatalf("Uint32() got %d, want %d", got, want)
	}
}

func (d *mustDecoder) MustUint64(want uint64) {
	got, err := d.Uint64()
	if err != nil {
		d.t.Fatalf("Uint64() got err: %v", err)
	}
	if got != want {
		d.t.Fatalf("Uint64() got %d, want %d", got, want)
	}
}

func (d *mustDecoder) MustStruct() {
	if err := d.Struct(func() error { return nil }); err != nil {
		d.t.Fatalf("Struct() got err: %v", err)
	}
}

func (d *mustDecoder) MustArray(elemAlign int, wantLen int) {
	end, err := d.ArrayHeader(elemAlign)
	if err != nil {
		d.t.Fatalf("ArrayHeader() got err: %v", err)
	}
	if gotLen := end - d.Offset; gotLen != wantLen {
		d.t.Fatalf("ArrayHeader() got byte length %d, want %d", gotLen, wantLen)
	}
	if testing.Verbose() {
		d.t.Logf("ArrayHeader(%d) = %d bytes", elemAlign, wantLen)
	}
}

func (d *mustDecoder) MustByteOrderFlag(want fragments.ByteOrder) {
	if err := d.ByteOrderFlag(); err != nil {
		d.t.Fatalf("ByteOrderFlag() got err: %v", err)
	}
	if got := d.Order; got != want {
		d.t.Fatalf("ByteOrderFlag() set byte order %s, want %s", got, want)
	}
}

func TestDecoder(t *testing.T) {
	tests := []struct {
		name   string
		in     []byte
		decode func(d *mustDecoder)
	}{
		{
			"raw bytes",
			[]byte{0x01, 0x02, 0x03},
			func(d *mustDecoder) {
				d.MustRead(3, []byte{1, 2, 3})
			},
		},

		{
			"byte array",
			[]byte{
				0x00, 0x00, 0x00, 0x03,
				0x01, 0x02, 0x03,
			},
			func(d *mustDecoder) {
				d.MustBytes([]byte{1, 2, 3})
			},
		},

		{
			"string",
			[]byte{
				0x00, 0x00, 0x00, 0x03,
				0x66, 0x6f, 0x6f,
				0x00,
			},
			func(d *mustDecoder) {
				d.MustString("foo")
			},
		},

		{
			"signature",
			[]byte{
				0x02,
				0x61, 0x73,
				0x00,
			},
			func(d *mustDecoder) {
				d.MustSignature("as")
			},
		},

		{
			"uints",
			[]byte{
				0x2a,
				0x00, // pad
				0x00, 0x42,
				0x00, 0x00, 0x00, 0x2a,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x42,
			},
			func(d *mustDecoder) {
				d.MustUint8(42)
				d.MustUint16(66)
				d.MustUint32(42)
				d.MustUint64(66)
			},
		},

		{
			"uints padding",
			[]byte{
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x42,
				0x00,             // raw
				0x00, 0x00, 0x00, // pad
				0x00, 0x00, 0x00, 0x2a,
				0x00, // raw
				0x00, // pad
				0x00, 0x42,
				0x00, // raw
				0x2a,
			},
			func(d *mustDecoder) {
				d.MustUint64(66)
				d.MustRead(1, []byte{0})
				d.MustUint32(42)
				d.MustRead(1, []byte{0})
				d.MustUint16(66)
				d.MustRead(1, []byte{0})
				d.MustUint8(42)
			},
		},

		{
			"struct padding",
			[]byte{
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x42,
				0x00, 0x00, 0x00, 0x2a,
				0x00, 0x00, 0x00, 0x00, // pad
				0x00, 0x42,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // pad
				0x2a,
			},
			func(d *mustDecoder) {
				d.MustStruct()
				d.MustUint64(66)
				d.MustStruct()
				d.MustUint32(42)
				d.MustStruct()
				d.MustUint16(66)
				d.MustStruct()
				d.MustUint8(42)
			},
		},

		{
			"array",
			[]byte{
				0x00, 0x00, 0x00, 0x04, // length
				0x00, 0x01,
				0x00, 0x02,
			},
			func(d *mustDecoder) {
				d.MustArray(2, 4)
				d.MustUint16(1)
				d.MustUint16(2)
			},
		},

		{
			"empty array",
			[]byte{
				0x00, 0x00, 0x00, 0x00, // length
			},
			func(d *mustDecoder) {
				d.MustArray(4, 0)
			},
		},

		{
			"struct array",
			[]byte{
				0x00, 0x00, 0x00, 0x0a, // length
				0x00, 0x00, 0x00, 0x00, // pad
				0x00, 0x01,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // pad
				0x00, 0x02,
			},
			func(d *mustDecoder) {
				d.MustArray(8, 10)
				d.MustStruct()
				d.MustUint16(1)
				d.MustStruct()
				d.MustUint16(2)
			},
		},

		{
			"empty struct array",
			[]byte{
				0x00, 0x00, 0x00, 0x00, // length
				0x00, 0x00, 0x00, 0x00, // pad
			},
			func(d *mustDecoder) {
				d.MustArray(8, 0)
			},
		},

		{
			"byte order flag",
			[]byte{'B', 'l', '?'},
			func(d *mustDecoder) {
				d.MustByteOrderFlag(fragments.BigEndian)
				d.MustByteOrderFlag(fragments.LittleEndian)
				if err := d.ByteOrderFlag(); err == nil {
					d.t.Fatalf("ByteOrderFlag did not error on invalid byte order")
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := mustDecoder{
				t: t,
				Decoder: &fragments.Decoder{
					Order: fragments.BigEndian,
					In:    tc.in,
				},
			}
			tc.decode(&d)
			if remain := d.Remaining(); remain > 0 {
				t.Fatalf("decoder failed to consume %d trailing bytes", remain)
			}
		})
	}
}

func TestDecoderArrayCallback(t *testing.T) {
	in := []byte{
		0x00, 0x00, 0x00, 0x06, // length
		0x00, 0x01,
		0x00, 0x02,
		0x00, 0x03,
	}
	d := &fragments.Decoder{Order: fragments.BigEndian, In: in}
	var got []uint16
	n, err := d.Array(2, func(int) error {
		v, err := d.Uint16()
		got = append(got, v)
		return err
	})
	if err != nil {
		t.Fatalf("Array() got err: %v", err)
	}
	if n != 3 || len(got) != 3 || got[2] != 3 {
		t.Fatalf("Array() = %d elements %v, want 3 elements [1 2 3]", n, got)
	}
}

func TestDecoderShortInput(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		fn   func(*fragments.Decoder) error
	}{
		{"uint32", []byte{0, 0, 1}, func(d *fragments.Decoder) error { _, err := d.Uint32(); return err }},
		{"string body", []byte{0, 0, 0, 5, 'a', 'b'}, func(d *fragments.Decoder) error { _, err := d.String(); return err }},
		{"unterminated string", []byte{0, 0, 0, 1, 'a', 'b'}, func(d *fragments.Decoder) error { _, err := d.String(); return err }},
		{"array past end", []byte{0, 0, 0, 9, 1, 2}, func(d *fragments.Decoder) error { _, err := d.ArrayHeader(1); return err }},
		{"huge array", []byte{0x7f, 0, 0, 0}, func(d *fragments.Decoder) error { _, err := d.ArrayHeader(1); return err }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := &fragments.Decoder{Order: fragments.BigEndian, In: tc.in}
			if err := tc.fn(d); err == nil {
				t.Fatal("decode of short input succeeded, want error")
			}
		})
	}
}
