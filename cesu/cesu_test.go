package cesu_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danderson/scriptbus/arena"
	"github.com/danderson/scriptbus/cesu"
	"github.com/google/go-cmp/cmp"
)

var (
	grinMod  = []byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}
	grinUTF8 = []byte{0xF0, 0x9F, 0x98, 0x80}
)

func TestToUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"empty", nil, []byte{}},
		{"ascii", []byte("hello"), []byte("hello")},
		{"two byte", []byte("héllo"), []byte("héllo")},
		{"hangul", []byte("한국어"), []byte("한국어")},
		{"surrogate pair", grinMod, grinUTF8},
		{"mixed", append(append([]byte("a"), grinMod...), 'b'), append(append([]byte("a"), grinUTF8...), 'b')},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := arena.New()
			defer a.Release()

			n, err := cesu.DecodedLength(tc.in)
			if err != nil {
				t.Fatalf("DecodedLength(% x) got err: %v", tc.in, err)
			}
			if n != len(tc.want) {
				t.Errorf("DecodedLength(% x) = %d, want %d", tc.in, n, len(tc.want))
			}

			got, err := cesu.ToUTF8(a, string(tc.in))
			if err != nil {
				t.Fatalf("ToUTF8(% x) got err: %v", tc.in, err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Fatalf("ToUTF8(% x) wrong output:\n  got: % x\n want: % x", tc.in, got, tc.want)
			}
			if got, want := a.Len(), 1; got != want {
				t.Errorf("arena holds %d blocks, want %d", got, want)
			}

			back, err := cesu.FromUTF8(a, got)
			if err != nil {
				t.Fatalf("FromUTF8(% x) got err: %v", got, err)
			}
			if diff := cmp.Diff(back, tc.in, cmp.Comparer(bytes.Equal)); diff != "" {
				t.Errorf("FromUTF8 did not restore input (-got+want):\n%s", diff)
			}
		})
	}
}

func TestConvertTerminates(t *testing.T) {
	out := make([]byte, 8)
	for i := range out {
		out[i] = 0xFF
	}
	n, err := cesu.Convert(grinMod, out)
	if err != nil {
		t.Fatalf("Convert got err: %v", err)
	}
	if n != 4 {
		t.Fatalf("Convert wrote %d bytes, want 4", n)
	}
	if !bytes.Equal(out[:5], append(append([]byte{}, grinUTF8...), 0)) {
		t.Fatalf("Convert output % x, want % x 00", out[:5], grinUTF8)
	}

	if _, err := cesu.Convert(grinMod, make([]byte, 4)); err == nil {
		t.Fatal("Convert into short buffer succeeded, want error")
	}
}

func TestStopsAtNUL(t *testing.T) {
	n, err := cesu.DecodedLength([]byte{'a', 'b', 0, 0xED})
	if err != nil {
		t.Fatalf("DecodedLength got err: %v", err)
	}
	if n != 2 {
		t.Fatalf("DecodedLength = %d, want 2", n)
	}

	a := arena.New()
	defer a.Release()
	if _, err := cesu.ToUTF8(a, "a\x00b"); err == nil {
		t.Fatal("ToUTF8 accepted embedded NUL")
	}
}

func TestMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"lone high surrogate", []byte{0xED, 0xA0, 0xBD}},
		{"high surrogate then ascii", []byte{0xED, 0xA0, 0xBD, 'a', 'b', 'c'}},
		{"lone low surrogate", []byte{0xED, 0xB8, 0x80}},
		{"reversed pair", []byte{0xED, 0xB8, 0x80, 0xED, 0xA0, 0xBD}},
		{"two high surrogates", []byte{0xED, 0xA0, 0xBD, 0xED, 0xA0, 0xBD}},
		{"truncated pair", grinMod[:5]},
		{"truncated 2-byte", []byte{'x', 0xC3}},
		{"bad continuation", []byte{0xE2, 0x28, 0xA1}},
		{"stray continuation", []byte{0x80}},
		{"invalid lead", []byte{0xFF}},
		{"overlong NUL", []byte{'a', 0xC0, 0x80, 'b'}},
		{"overlong 2-byte", []byte{0xC1, 0xBF}},
		{"overlong 3-byte", []byte{0xE0, 0x80, 0xAF}},
		{"overlong 4-byte", []byte{0xF0, 0x8F, 0xBF, 0xBF}},
		{"above U+10FFFF", []byte{0xF4, 0x90, 0x80, 0x80}},
		{"F5 lead", []byte{0xF5, 0x80, 0x80, 0x80}},
		{"F7 lead", []byte{0xF7, 0xBF, 0xBF, 0xBF}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := cesu.DecodedLength(tc.in)
			var encErr *cesu.EncodingError
			if !errors.As(err, &encErr) {
				t.Fatalf("DecodedLength(% x) err = %v, want EncodingError", tc.in, err)
			}
			if encErr.Offset < 0 || encErr.Offset >= len(tc.in) {
				t.Errorf("error offset %d outside input of length %d", encErr.Offset, len(tc.in))
			}
			if testing.Verbose() {
				t.Log(err)
			}

			a := arena.New()
			defer a.Release()
			if _, err := cesu.ToUTF8(a, string(tc.in)); !errors.As(err, &encErr) {
				t.Fatalf("ToUTF8(% x) err = %v, want EncodingError", tc.in, err)
			}
		})
	}
}

func TestFromUTF8Invalid(t *testing.T) {
	a := arena.New()
	defer a.Release()
	for _, in := range [][]byte{
		{0xF0, 0x9F, 0x98},
		{0xC3},
		{0xFF, 'a'},
	} {
		if _, err := cesu.FromUTF8(a, in); err == nil {
			t.Errorf("FromUTF8(% x) succeeded, want error", in)
		}
	}
}

func TestCodePoints(t *testing.T) {
	const grin = rune(0x1F600)
	if got := cesu.AppendSurrogates(nil, grin); !bytes.Equal(got, grinMod) {
		t.Errorf("AppendSurrogates(U+1F600) = % x, want % x", got, grinMod)
	}
	if got := cesu.AppendUTF8(nil, grin); !bytes.Equal(got, grinUTF8) {
		t.Errorf("AppendUTF8(U+1F600) = % x, want % x", got, grinUTF8)
	}
	if got, err := cesu.DecodeSurrogates(grinMod); err != nil || got != grin {
		t.Errorf("DecodeSurrogates = %U, %v, want %U", got, err, grin)
	}
	if got, err := cesu.DecodeUTF8(grinUTF8); err != nil || got != grin {
		t.Errorf("DecodeUTF8 = %U, %v, want %U", got, err, grin)
	}

	for _, r := range []rune{0x10000, 0x1F600, 0x10FFFF} {
		got, err := cesu.DecodeSurrogates(cesu.AppendSurrogates(nil, r))
		if err != nil || got != r {
			t.Errorf("surrogate round trip of %U = %U, %v", r, got, err)
		}
	}
}
