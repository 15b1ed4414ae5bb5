// Package cesu converts strings between the scripting runtime's
// modified UTF-8 encoding and standard UTF-8.
//
// The modified encoding stores code points above U+FFFF as a UTF-16
// surrogate pair, each half encoded as its own 3-byte sequence, for
// a total of 6 bytes. Standard UTF-8 stores the same code points as
// a single 4-byte sequence. All other code points are encoded
// identically in both forms.
//
// Only a 0xED lead byte followed by 0xA0..0xAF introduces a
// surrogate pair. A 0xED lead followed by 0x80..0x9F is an ordinary
// 3-byte character and is copied unchanged.
package cesu

import (
	"fmt"
	"unicode/utf8"

	"github.com/danderson/scriptbus/arena"
)

// EncodingError is the error returned for malformed input.
type EncodingError struct {
	// Offset is the byte offset in the input where the malformed
	// sequence starts.
	Offset int
	// Reason describes what is wrong with the sequence.
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("malformed string at byte %d: %s", e.Offset, e.Reason)
}

func encErr(off int, reason string, args ...any) error {
	return &EncodingError{off, fmt.Sprintf(reason, args...)}
}

const (
	surrLead   = 0xED
	surrHighLo = 0xD800
	surrLowLo  = 0xDC00
	surrEnd    = 0xE000
)

func isCont(b byte) bool { return b&0xC0 == 0x80 }

// seqLen returns the length of the sequence starting with lead byte
// b, or 0 if b cannot start a sequence.
func seqLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b&0xE0 == 0xC0:
		return 2
	case b&0xF0 == 0xE0:
		return 3
	case b&0xF8 == 0xF0:
		return 4
	default:
		return 0
	}
}

// checkSeq verifies that s[off:] starts with a complete sequence, and
// returns its length.
func checkSeq(s []byte, off int) (int, error) {
	n := seqLen(s[off])
	if n == 0 {
		return 0, encErr(off, "invalid lead byte 0x%02x", s[off])
	}
	if off+n > len(s) {
		return 0, encErr(off, "truncated %d-byte sequence", n)
	}
	for i := 1; i < n; i++ {
		if !isCont(s[off+i]) {
			return 0, encErr(off, "invalid continuation byte 0x%02x", s[off+i])
		}
	}
	if n == 1 {
		return 1, nil
	}
	r := rune(s[off] & (0x7F >> n))
	for _, b := range s[off+1 : off+n] {
		r = r<<6 | rune(b&0x3F)
	}
	switch {
	case r < minRune[n]:
		return 0, encErr(off, "overlong %d-byte encoding of U+%04X", n, r)
	case r > utf8.MaxRune:
		return 0, encErr(off, "code point U+%04X out of range", r)
	}
	return n, nil
}

// minRune is the smallest code point that needs a sequence of each
// length.
var minRune = [5]rune{2: 0x80, 3: 0x800, 4: 0x10000}

// isHighSurrogate reports whether s[off:] starts with the encoding of
// a high surrogate.
func isHighSurrogate(s []byte, off int) bool {
	return s[off] == surrLead && off+1 < len(s) && s[off+1] >= 0xA0 && s[off+1] <= 0xAF
}

func isLowSurrogate(s []byte, off int) bool {
	return s[off] == surrLead && off+1 < len(s) && s[off+1] >= 0xB0 && s[off+1] <= 0xBF
}

// DecodedLength returns the number of bytes needed to hold the
// standard UTF-8 form of s, not counting a terminator. Conversion
// stops at the first NUL byte, if any.
func DecodedLength(s []byte) (int, error) {
	ret := 0
	for off := 0; off < len(s) && s[off] != 0; {
		switch {
		case isHighSurrogate(s, off):
			if _, err := DecodeSurrogates(s[off:]); err != nil {
				return 0, offsetErr(err, off)
			}
			ret += 4
			off += 6
		case isLowSurrogate(s, off):
			return 0, encErr(off, "unpaired low surrogate")
		default:
			n, err := checkSeq(s, off)
			if err != nil {
				return 0, err
			}
			ret += n
			off += n
		}
	}
	return ret, nil
}

// Convert writes the standard UTF-8 form of s into out, followed by
// a NUL terminator, and returns the number of bytes written
// excluding the terminator. out must be at least DecodedLength(s)+1
// bytes long.
func Convert(s, out []byte) (int, error) {
	w := 0
	put := func(bs ...byte) error {
		if w+len(bs) > len(out) {
			return encErr(0, "output buffer too small")
		}
		w += copy(out[w:], bs)
		return nil
	}
	for off := 0; off < len(s) && s[off] != 0; {
		switch {
		case isHighSurrogate(s, off):
			r, err := DecodeSurrogates(s[off:])
			if err != nil {
				return 0, offsetErr(err, off)
			}
			if err := put(AppendUTF8(nil, r)...); err != nil {
				return 0, err
			}
			off += 6
		case isLowSurrogate(s, off):
			return 0, encErr(off, "unpaired low surrogate")
		default:
			n, err := checkSeq(s, off)
			if err != nil {
				return 0, err
			}
			if err := put(s[off : off+n]...); err != nil {
				return 0, err
			}
			off += n
		}
	}
	if err := put(0); err != nil {
		return 0, err
	}
	return w - 1, nil
}

// ToUTF8 converts s from the modified encoding to standard UTF-8.
// The returned bytes live in a block allocated from a, and are only
// valid until a is released.
//
// D-Bus strings cannot contain NUL, so ToUTF8 rejects strings with
// embedded NUL bytes.
func ToUTF8(a *arena.Arena, s string) ([]byte, error) {
	bs := []byte(s)
	for i, b := range bs {
		if b == 0 {
			return nil, encErr(i, "embedded NUL byte")
		}
	}
	n, err := DecodedLength(bs)
	if err != nil {
		return nil, err
	}
	blk := a.Alloc(n + 1)
	if _, err := Convert(bs, blk.Data); err != nil {
		return nil, err
	}
	return blk.Data[:n], nil
}

// EncodedLength returns the number of bytes needed to hold the
// modified form of the standard UTF-8 string s.
func EncodedLength(s []byte) (int, error) {
	ret := 0
	for off := 0; off < len(s); {
		r, n := utf8.DecodeRune(s[off:])
		if r == utf8.RuneError && n <= 1 {
			return 0, encErr(off, "invalid UTF-8 sequence")
		}
		if n == 4 {
			ret += 6
		} else {
			ret += n
		}
		off += n
	}
	return ret, nil
}

// FromUTF8 converts the standard UTF-8 string s to the modified
// encoding. The returned bytes live in a block allocated from a, and
// are only valid until a is released.
func FromUTF8(a *arena.Arena, s []byte) ([]byte, error) {
	n, err := EncodedLength(s)
	if err != nil {
		return nil, err
	}
	blk := a.Alloc(n)
	out := blk.Data[:0]
	for off := 0; off < len(s); {
		sz := seqLen(s[off])
		if sz == 4 {
			r, err := DecodeUTF8(s[off : off+4])
			if err != nil {
				return nil, offsetErr(err, off)
			}
			out = AppendSurrogates(out, r)
		} else {
			out = append(out, s[off:off+sz]...)
		}
		off += sz
	}
	return out, nil
}

// AppendUTF8 appends the standard UTF-8 encoding of r to dst.
func AppendUTF8(dst []byte, r rune) []byte {
	return utf8.AppendRune(dst, r)
}

// AppendSurrogates appends the 6-byte surrogate pair encoding of r to
// dst. r must be a supplementary code point (U+10000..U+10FFFF).
func AppendSurrogates(dst []byte, r rune) []byte {
	v := r - 0x10000
	hi := surrHighLo + (v>>10)&0x3FF
	lo := surrLowLo + v&0x3FF
	return append(dst,
		byte(0xE0|hi>>12), byte(0x80|(hi>>6)&0x3F), byte(0x80|hi&0x3F),
		byte(0xE0|lo>>12), byte(0x80|(lo>>6)&0x3F), byte(0x80|lo&0x3F),
	)
}

func decode3(b []byte) rune {
	return rune(b[0]&0x0F)<<12 | rune(b[1]&0x3F)<<6 | rune(b[2]&0x3F)
}

// DecodeSurrogates decodes the surrogate pair at the start of b,
// returning the supplementary code point it represents.
func DecodeSurrogates(b []byte) (rune, error) {
	if len(b) < 6 {
		return 0, encErr(0, "truncated surrogate pair")
	}
	for i, c := range b[:6] {
		if i%3 == 0 {
			if c != surrLead {
				return 0, encErr(i, "expected surrogate lead byte, got 0x%02x", c)
			}
		} else if !isCont(c) {
			return 0, encErr(i, "invalid continuation byte 0x%02x", c)
		}
	}
	hi, lo := decode3(b[0:3]), decode3(b[3:6])
	if hi < surrHighLo || hi >= surrLowLo {
		return 0, encErr(0, "expected high surrogate, got U+%04X", hi)
	}
	if lo < surrLowLo || lo >= surrEnd {
		return 0, encErr(3, "expected low surrogate, got U+%04X", lo)
	}
	return 0x10000 + (hi-surrHighLo)<<10 + (lo - surrLowLo), nil
}

// DecodeUTF8 decodes the 4-byte standard UTF-8 sequence at the start
// of b.
func DecodeUTF8(b []byte) (rune, error) {
	if len(b) < 4 {
		return 0, encErr(0, "truncated 4-byte sequence")
	}
	if seqLen(b[0]) != 4 {
		return 0, encErr(0, "invalid lead byte 0x%02x for 4-byte sequence", b[0])
	}
	for i := 1; i < 4; i++ {
		if !isCont(b[i]) {
			return 0, encErr(i, "invalid continuation byte 0x%02x", b[i])
		}
	}
	r := rune(b[0]&0x07)<<18 | rune(b[1]&0x3F)<<12 | rune(b[2]&0x3F)<<6 | rune(b[3]&0x3F)
	if r < 0x10000 || r > utf8.MaxRune {
		return 0, encErr(0, "code point U+%04X out of range for 4-byte sequence", r)
	}
	return r, nil
}

func offsetErr(err error, off int) error {
	if e, ok := err.(*EncodingError); ok {
		return &EncodingError{e.Offset + off, e.Reason}
	}
	return err
}
