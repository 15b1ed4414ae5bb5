package scriptbus

import (
	"errors"
	"fmt"
	"io"

	"github.com/danderson/scriptbus/fragments"
)

// msgType is the type of a DBus message.
type msgType byte

const (
	msgTypeCall msgType = iota + 1
	msgTypeReturn
	msgTypeError
	msgTypeSignal
)

func (t msgType) String() string {
	switch t {
	case msgTypeCall:
		return "call"
	case msgTypeReturn:
		return "return"
	case msgTypeError:
		return "error"
	case msgTypeSignal:
		return "signal"
	}
	return fmt.Sprintf("msgType(%d)", byte(t))
}

// Header field codes.
const (
	fieldPath        = 1
	fieldInterface   = 2
	fieldMember      = 3
	fieldErrName     = 4
	fieldReplySerial = 5
	fieldDestination = 6
	fieldSender      = 7
	fieldSignature   = 8
	fieldNumFDs      = 9
)

const (
	flagNoReplyExpected  = 0x1
	flagNoAutoStart      = 0x2
	flagAllowInteractive = 0x4
)

const (
	protocolVersion = 1
	// fixedHeaderLen is the length of the header up to and
	// including the length of the header field array.
	fixedHeaderLen = 16
	maxMessageLen  = 1 << 27
)

// header is a DBus message header
type header struct {
	// Order is the message's byte order.
	Order fragments.ByteOrder
	// Type is the message's type.
	Type msgType
	// Flags is the message's flag byte.
	Flags byte
	// Version is the DBus protocol version
	Version uint8
	// Length is the length of the message body, not including the
	// header or padding between header and body.
	Length uint32
	// Serial is the serial for this message. It must be non-zero.
	Serial uint32

	// Path is the target object for a call, or the source object
	// for a signal. Required for msgTypeCall and msgTypeSignal.
	Path string
	// Interface is the interface to target for a call, or the
	// source interface for a signal. Required for msgTypeSignal.
	Interface string
	// Member is the method name for a call, or signal name for a
	// signal. Required for msgTypeCall and msgTypeSignal.
	Member string
	// ErrName is the name of the error that occurred. Required
	// for msgTypeError.
	ErrName string
	// ReplySerial is the message serial to which this message is
	// replying. Required for msgTypeReturn and msgTypeError.
	ReplySerial uint32
	// Destination is the target for a message. Optional: messages
	// sent on a peer-to-peer connection have no destination.
	Destination string
	// Sender is the client ID of the message sender. The message
	// bus populates this value itself, any sent value is ignored
	// and removed.
	Sender string
	// Signature is the type signature of the message body.
	// Required if a message body is present.
	Signature Signature
	// NumFDs is the number of file descriptors attached to this
	// message. Required if file descriptors are attached to the
	// message.
	NumFDs uint32
}

// Valid checks that the message header is valid for its message type.
func (h *header) Valid() error {
	if h.Serial == 0 {
		return errors.New("invalid message with zero Serial")
	}
	switch h.Type {
	case 0:
		return errors.New("invalid message with Type 0")
	case msgTypeCall:
		if h.Path == "" {
			return errors.New("missing required header field Path")
		}
		if h.Member == "" {
			return errors.New("missing required header field Member")
		}
	case msgTypeReturn:
		if h.ReplySerial == 0 {
			return errors.New("missing required header field ReplySerial")
		}
	case msgTypeError:
		if h.ReplySerial == 0 {
			return errors.New("missing required header field ReplySerial")
		}
		if h.ErrName == "" {
			return errors.New("missing required header field ErrName")
		}
	case msgTypeSignal:
		if h.Path == "" {
			return errors.New("missing required header field Path")
		}
		if h.Interface == "" {
			return errors.New("missing required header field Interface")
		}
		if h.Member == "" {
			return errors.New("missing required header field Member")
		}
	default:
		// Unknown message types are suspect, but the DBus spec requires us to
		// gracefully allow them.
	}
	return nil
}

// WantReply reports whether this message requires a response.
func (h *header) WantReply() bool {
	return h.Type == msgTypeCall && h.Flags&flagNoReplyExpected == 0
}

// encode writes the header, including the trailing padding that
// precedes the body.
func (h *header) encode(e *fragments.Encoder) error {
	e.Order = h.Order
	e.ByteOrderFlag()
	e.Uint8(uint8(h.Type))
	e.Uint8(h.Flags)
	e.Uint8(h.Version)
	e.Uint32(h.Length)
	e.Uint32(h.Serial)

	field := func(code uint8, sig string, write func()) {
		e.Struct(func() error {
			e.Uint8(code)
			e.Signature(sig)
			write()
			return nil
		})
	}
	str := func(code uint8, sig, v string) {
		if v != "" {
			field(code, sig, func() { e.String(v) })
		}
	}
	u32 := func(code uint8, v uint32) {
		if v != 0 {
			field(code, "u", func() { e.Uint32(v) })
		}
	}
	err := e.Array(8, func() error {
		str(fieldPath, "o", h.Path)
		str(fieldInterface, "s", h.Interface)
		str(fieldMember, "s", h.Member)
		str(fieldErrName, "s", h.ErrName)
		u32(fieldReplySerial, h.ReplySerial)
		str(fieldDestination, "s", h.Destination)
		str(fieldSender, "s", h.Sender)
		if h.Signature != "" {
			field(fieldSignature, "g", func() { e.Signature(string(h.Signature)) })
		}
		u32(fieldNumFDs, h.NumFDs)
		return nil
	})
	if err != nil {
		return err
	}
	e.Pad(8)
	return nil
}

// readHeader reads one complete message header, including trailing
// padding, from r.
func readHeader(r io.Reader) (*header, error) {
	fixed := make([]byte, fixedHeaderLen)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, err
	}
	d := fragments.Decoder{In: fixed}
	if err := d.ByteOrderFlag(); err != nil {
		return nil, err
	}
	fieldsLen := d.Order.Uint32(fixed[12:])
	if fieldsLen > maxMessageLen {
		return nil, fmt.Errorf("header field array length %d exceeds maximum message size", fieldsLen)
	}
	total := fixedHeaderLen + int(fieldsLen)
	if pad := total % 8; pad != 0 {
		total += 8 - pad
	}
	raw := make([]byte, total)
	copy(raw, fixed)
	if _, err := io.ReadFull(r, raw[fixedHeaderLen:]); err != nil {
		return nil, err
	}
	return decodeHeader(raw)
}

var headerFieldTypes = map[uint8]Signature{
	fieldPath:        "o",
	fieldInterface:   "s",
	fieldMember:      "s",
	fieldErrName:     "s",
	fieldReplySerial: "u",
	fieldDestination: "s",
	fieldSender:      "s",
	fieldSignature:   "g",
	fieldNumFDs:      "u",
}

func decodeHeader(raw []byte) (*header, error) {
	d := &fragments.Decoder{In: raw}
	if err := d.ByteOrderFlag(); err != nil {
		return nil, err
	}
	h := &header{Order: d.Order}
	t, err := d.Uint8()
	if err != nil {
		return nil, err
	}
	h.Type = msgType(t)
	if h.Flags, err = d.Uint8(); err != nil {
		return nil, err
	}
	if h.Version, err = d.Uint8(); err != nil {
		return nil, err
	}
	if h.Version != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version %d", h.Version)
	}
	if h.Length, err = d.Uint32(); err != nil {
		return nil, err
	}
	if h.Length > maxMessageLen {
		return nil, fmt.Errorf("body length %d exceeds maximum message size", h.Length)
	}
	if h.Serial, err = d.Uint32(); err != nil {
		return nil, err
	}

	_, err = d.Array(8, func(int) error {
		return d.Struct(func() error {
			code, err := d.Uint8()
			if err != nil {
				return err
			}
			s, err := d.Signature()
			if err != nil {
				return err
			}
			sig, err := ParseSignature(s)
			if err != nil {
				return err
			}
			want := headerFieldTypes[code]
			if want == "" {
				// Unknown header fields must be ignored.
				return skipValue(d, sig, 0)
			}
			if sig != want {
				return fmt.Errorf("header field %d has type %q, want %q", code, sig, want)
			}
			switch code {
			case fieldReplySerial:
				h.ReplySerial, err = d.Uint32()
			case fieldNumFDs:
				h.NumFDs, err = d.Uint32()
			case fieldSignature:
				var s string
				if s, err = d.Signature(); err == nil {
					h.Signature, err = ParseSignature(s)
				}
			default:
				var s string
				if s, err = d.String(); err != nil {
					return err
				}
				switch code {
				case fieldPath:
					h.Path = s
				case fieldInterface:
					h.Interface = s
				case fieldMember:
					h.Member = s
				case fieldErrName:
					h.ErrName = s
				case fieldDestination:
					h.Destination = s
				case fieldSender:
					h.Sender = s
				}
			}
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading header fields: %w", err)
	}
	if err := d.Pad(8); err != nil {
		return nil, err
	}
	return h, nil
}
