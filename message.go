package scriptbus

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/danderson/scriptbus/arena"
	"github.com/danderson/scriptbus/cesu"
	"github.com/danderson/scriptbus/fragments"
)

// A Message is a DBus message.
//
// Outbound messages are built by creating them with a constructor
// such as [NewMethodCall] and writing the body with the [Appender]
// returned by [Message.AppendArgs]. Inbound message bodies are read
// with the [Iter] returned by [Message.Args].
//
// A Message owns the file descriptors attached to it. Release closes
// them.
type Message struct {
	header
	body  []byte
	files []*os.File

	enc  *fragments.Encoder
	root *appendIter
}

func newMessage(t msgType) *Message {
	return &Message{
		header: header{
			Order:   fragments.NativeEndian,
			Type:    t,
			Version: protocolVersion,
		},
		enc: &fragments.Encoder{Order: fragments.NativeEndian},
	}
}

// NewMethodCall returns a new method call message. destination may
// be empty, for calls on peer-to-peer connections.
func NewMethodCall(destination, path, iface, method string) (*Message, error) {
	if destination != "" {
		if err := validBusName(destination); err != nil {
			return nil, err
		}
	}
	if err := validObjectPath(path); err != nil {
		return nil, err
	}
	if iface != "" {
		if err := validInterfaceName(iface); err != nil {
			return nil, err
		}
	}
	if err := validMemberName(method); err != nil {
		return nil, err
	}
	m := newMessage(msgTypeCall)
	m.Destination = destination
	m.Path = path
	m.Interface = iface
	m.Member = method
	return m, nil
}

// NewMethodReturn returns a new, empty reply to call.
func NewMethodReturn(call *Message) *Message {
	m := newMessage(msgTypeReturn)
	m.ReplySerial = call.Serial
	m.Destination = call.Sender
	m.Flags = flagNoReplyExpected
	return m
}

// NewError returns a new error reply to call, with the given DBus
// error name and an optional human-readable message.
func NewError(call *Message, name, message string) (*Message, error) {
	if err := validInterfaceName(name); err != nil {
		return nil, fmt.Errorf("invalid error name: %w", err)
	}
	m := newMessage(msgTypeError)
	m.ReplySerial = call.Serial
	m.Destination = call.Sender
	m.ErrName = name
	m.Flags = flagNoReplyExpected
	if message != "" {
		if err := m.AppendArgs().AppendBasic(TypeString, message); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SetNoReply sets whether the sender expects a reply to this message.
func (m *Message) SetNoReply(noReply bool) {
	if noReply {
		m.Flags |= flagNoReplyExpected
	} else {
		m.Flags &^= flagNoReplyExpected
	}
}

// SetAutoStart sets whether the bus may start the destination service
// to deliver this message.
func (m *Message) SetAutoStart(autoStart bool) {
	if autoStart {
		m.Flags &^= flagNoAutoStart
	} else {
		m.Flags |= flagNoAutoStart
	}
}

// AppendArgs returns an Appender that writes to the end of the
// message body.
func (m *Message) AppendArgs() Appender {
	if m.root == nil {
		m.root = &appendIter{m: m, start: -1}
	}
	return m.root
}

// Seal finishes an outbound message body. No more arguments can be
// appended afterwards, and Args reads back what was written.
//
// Messages are sealed automatically when sent. Seal is for
// Connections that hand messages over without serializing them.
func (m *Message) Seal() error {
	return m.finish()
}

// Args returns an iterator over the message body. ok is false if the
// message has no body, or is an outbound message that hasn't been
// sealed.
func (m *Message) Args() (it Iter, ok bool) {
	if m.Signature == "" {
		return nil, false
	}
	return &readIter{
		m:    m,
		sigs: m.Signature.Types(),
		end:  len(m.body),
	}, true
}

// Body returns the message's signature and raw body bytes.
func (m *Message) Body() (Signature, []byte) {
	if m.enc != nil {
		return m.bodySignature(), m.enc.Out
	}
	return m.Signature, m.body
}

// IsError reports whether m is an error reply.
func (m *Message) IsError() bool { return m.Type == msgTypeError }

// ErrorName returns the DBus error name of an error reply.
func (m *Message) ErrorName() string { return m.ErrName }

// ErrorMessage returns the human-readable message of an error
// reply, if it has one.
func (m *Message) ErrorMessage() string {
	if m.Signature.Code() != TypeString {
		return ""
	}
	it, ok := m.Args()
	if !ok {
		return ""
	}
	v, err := it.Basic()
	if err != nil {
		return fmt.Sprintf("got error while decoding error detail: %v", err)
	}
	s, _ := v.(string)
	return s
}

// Err returns the RemoteError for an error reply, or nil if m is not
// an error. The error message is converted to the modified encoding,
// like every other string decoded from a message.
func (m *Message) Err() error {
	if !m.IsError() {
		return nil
	}
	return RemoteError{Name: m.ErrName, Message: toModified(m.ErrorMessage())}
}

// toModified converts the standard UTF-8 string s to the modified
// encoding. Malformed input is returned unchanged.
func toModified(s string) string {
	a := arena.New()
	defer a.Release()
	bs, err := cesu.FromUTF8(a, []byte(s))
	if err != nil {
		return s
	}
	return string(bs)
}

// Release closes the file descriptors attached to m. m must not be
// used afterwards.
func (m *Message) Release() {
	for _, f := range m.files {
		f.Close()
	}
	m.files = nil
	m.body = nil
	m.enc = nil
	m.root = nil
}

// Files returns the files attached to the message.
func (m *Message) Files() []*os.File { return m.files }

func (m *Message) bodySignature() Signature {
	if m.root == nil {
		return ""
	}
	return Signature(m.root.sig.String())
}

// finish seals an outbound message body and fills in the header
// fields that describe it.
func (m *Message) finish() error {
	if m.enc == nil {
		return nil
	}
	if m.root != nil && m.root.child != nil {
		return errors.New("message has an unclosed container")
	}
	sig := m.bodySignature()
	if _, err := ParseSignature(string(sig)); err != nil {
		return fmt.Errorf("message body: %w", err)
	}
	if len(m.enc.Out) > maxMessageLen {
		return fmt.Errorf("message body is %d bytes, exceeds maximum message size", len(m.enc.Out))
	}
	m.Signature = sig
	m.body = m.enc.Out
	m.Length = uint32(len(m.body))
	m.NumFDs = uint32(len(m.files))
	m.enc = nil
	m.root = nil
	return nil
}

// marshal returns the wire encoding of the message header and body.
// The message cannot be appended to afterwards.
func (m *Message) marshal() (hdr, body []byte, err error) {
	if err := m.finish(); err != nil {
		return nil, nil, err
	}
	if err := m.Valid(); err != nil {
		return nil, nil, err
	}
	e := fragments.Encoder{Order: m.Order}
	if err := m.header.encode(&e); err != nil {
		return nil, nil, err
	}
	return e.Out, m.body, nil
}

// readMessage reads one complete message from r. getFiles is called
// to collect the file descriptors that the header says are attached.
func readMessage(r io.Reader, getFiles func(int) ([]*os.File, error)) (*Message, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	m := &Message{header: *h}
	m.body = make([]byte, h.Length)
	if _, err := io.ReadFull(r, m.body); err != nil {
		return nil, err
	}
	if h.NumFDs > 0 {
		if getFiles == nil {
			return nil, errors.New("message has file descriptors, but the transport cannot carry them")
		}
		m.files, err = getFiles(int(h.NumFDs))
		if err != nil {
			return nil, err
		}
	}
	if err := m.Valid(); err != nil {
		m.Release()
		return nil, fmt.Errorf("received invalid header: %w", err)
	}
	if m.Signature == "" && len(m.body) > 0 {
		m.Release()
		return nil, errors.New("received message with a body but no signature")
	}
	return m, nil
}

func (m *Message) String() string {
	switch m.Type {
	case msgTypeCall:
		return fmt.Sprintf("call %d %s %s.%s(%s) to %q", m.Serial, m.Path, m.Interface, m.Member, m.Signature, m.Destination)
	case msgTypeReturn:
		return fmt.Sprintf("return %d for %d (%s)", m.Serial, m.ReplySerial, m.Signature)
	case msgTypeError:
		return fmt.Sprintf("error %d for %d: %s", m.Serial, m.ReplySerial, m.ErrName)
	default:
		return fmt.Sprintf("%s %d %s %s.%s", m.Type, m.Serial, m.Path, m.Interface, m.Member)
	}
}
