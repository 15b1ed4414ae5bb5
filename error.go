package scriptbus

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/danderson/scriptbus/cesu"
)

// EncodingError is the error returned for malformed strings, in
// either the script's modified UTF-8 encoding or standard UTF-8.
type EncodingError = cesu.EncodingError

// TypeError is the error returned when a type descriptor or value
// cannot be represented in the DBus wire format.
type TypeError struct {
	// Type is the descriptor or type that caused the error.
	Type string
	// Reason is an explanation of why the type isn't representable by
	// DBus.
	Reason error
}

func (e TypeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("dbus cannot represent value: %s", e.Reason)
	}
	return fmt.Sprintf("dbus cannot represent %s: %s", e.Type, e.Reason)
}

func (e TypeError) Unwrap() error {
	return e.Reason
}

func typeErr(t string, reason string, args ...any) error {
	return TypeError{t, fmt.Errorf(reason, args...)}
}

// DecodeError is the error returned when a received message cannot be
// decoded.
type DecodeError struct {
	// Signature is the signature of the value being decoded, if known.
	Signature Signature
	// Offset is the offset in the message body where decoding failed.
	Offset int
	// Reason is what went wrong.
	Reason error
}

func (e DecodeError) Error() string {
	if e.Signature == "" {
		return fmt.Sprintf("decoding message body at offset %d: %s", e.Offset, e.Reason)
	}
	return fmt.Sprintf("decoding %q at offset %d: %s", e.Signature, e.Offset, e.Reason)
}

func (e DecodeError) Unwrap() error {
	return e.Reason
}

// RemoteError is the error returned from failed DBus method calls,
// either because the peer replied with an error, or because the call
// could not be completed.
type RemoteError struct {
	// Name is the DBus error name, e.g.
	// "org.freedesktop.DBus.Error.ServiceUnknown".
	Name string
	// Message is the human-readable explanation of what went wrong,
	// in the modified encoding used by string Values.
	Message string
	// Err is the underlying local error, if the call failed locally
	// rather than with an error reply.
	Err error
}

func (e RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("call error %s", e.Name)
	}
	return fmt.Sprintf("call error %s: %s", e.Name, e.Message)
}

func (e RemoteError) Unwrap() error {
	return e.Err
}

// Well known DBus error names.
const (
	ErrNameFailed           = "org.freedesktop.DBus.Error.Failed"
	ErrNameNoReply          = "org.freedesktop.DBus.Error.NoReply"
	ErrNameDisconnected     = "org.freedesktop.DBus.Error.Disconnected"
	ErrNameUnknownMethod    = "org.freedesktop.DBus.Error.UnknownMethod"
	ErrNameUnknownInterface = "org.freedesktop.DBus.Error.UnknownInterface"
	ErrNameInvalidArgs      = "org.freedesktop.DBus.Error.InvalidArgs"
	ErrNamePropertyReadOnly = "org.freedesktop.DBus.Error.PropertyReadOnly"
	ErrNameServiceUnknown   = "org.freedesktop.DBus.Error.ServiceUnknown"
)

// SyscallError is the error returned when an operating system call
// made on behalf of a script fails.
type SyscallError struct {
	// Op is the failed operation.
	Op    string
	Errno syscall.Errno
}

func (e SyscallError) Error() string {
	return fmt.Sprintf("syscall error %d: %s: %s", int(e.Errno), e.Op, e.Errno.Error())
}

func (e SyscallError) Unwrap() error {
	return e.Errno
}

// Code returns the numeric errno.
func (e SyscallError) Code() int { return int(e.Errno) }

func syscallErr(op string, err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return SyscallError{op, errno}
	}
	return fmt.Errorf("%s: %w", op, err)
}
