package scriptbus

// An Appender writes values into a message body, in the style of
// libdbus's append iterators.
//
// Basic values are written with AppendBasic. Containers are written
// by opening a sub-Appender with OpenContainer, writing the
// container's contents into it, and then either closing it with
// CloseContainer, or discarding everything written into it with
// AbandonContainer. Every opened container must be closed or
// abandoned before anything else is written to its parent.
type Appender interface {
	// AppendBasic writes a basic value of type code. v must have the
	// Go type that corresponds to code:
	//
	//	y: uint8     b: bool     n: int16    q: uint16
	//	i: int32     u: uint32   x: int64    t: uint64
	//	d: float64   s, o, g: string (standard UTF-8)
	//	h: int (a file descriptor, duplicated into the message)
	AppendBasic(code TypeCode, v any) error
	// OpenContainer opens a container of type code. sig is the
	// element type for arrays and the contained type for
	// variants. It must be empty for structs and dict entries.
	OpenContainer(code TypeCode, sig Signature) (Appender, error)
	// CloseContainer finishes sub, which must be the container most
	// recently opened on this Appender. sub is unusable afterwards,
	// even if CloseContainer returns an error.
	CloseContainer(sub Appender) error
	// AbandonContainer discards sub and everything written to it.
	AbandonContainer(sub Appender)
}

// An Iter reads values out of a message body, in the style of
// libdbus's read iterators.
//
// An Iter is positioned on one element of a sequence. ArgType reports
// the element's type, Basic and Recurse read it, and Next advances to
// the following element.
type Iter interface {
	// ArgType returns the type code of the current element, or
	// TypeInvalid if the iterator is exhausted.
	ArgType() TypeCode
	// Signature returns the signature of the current element.
	Signature() Signature
	// Basic returns the current element, which must be of a basic
	// type. Values have the Go types listed in [Appender]. File
	// descriptors are duplicated, and the caller owns the returned
	// descriptor.
	Basic() (any, error)
	// Recurse returns an iterator over the contents of the current
	// element, which must be a container.
	Recurse() (Iter, error)
	// Next advances to the next element, and reports whether there is
	// one.
	Next() bool
	// Err returns the error, if any, that stopped iteration.
	Err() error
}
