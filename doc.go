// Package scriptbus is a DBus client engine built for scripting
// runtimes.
//
// Values cross the boundary between a script and the bus as
// [value.Value] trees, a closed set of types that mirror the DBus
// type system one to one. [EncodeAny] writes a Value into a message
// body and [DecodeAny] reads one back out. [Call] wraps both around a
// complete method call, and [Client], [Peer], [Object] and
// [Interface] offer a friendlier handle-based API on top.
//
// EncodeAny maps Values to DBus types as follows:
//
// BOOLEAN, BYTE, INT16, UINT16, INT32, UINT32, INT64, UINT64, DOUBLE
// and UNIX_FD values encode to the corresponding DBus basic type.
// UNIX_FD values are file descriptors, which are duplicated into the
// message.
//
// STRING, OBJECT_PATH and SIGNATURE values carry text in the
// scripting runtime's modified UTF-8, where code points above U+FFFF
// are stored as surrogate pairs. They are converted to standard UTF-8
// on the way out, and malformed text fails with an [EncodingError].
//
// ARRAY values encode as DBus arrays. The element type is the array's
// ItemType descriptor if set, or else the type of its first item. An
// empty array with no ItemType cannot be encoded.
//
// STRUCT values encode as DBus structs, and must have at least one
// field. DICT_ENTRY values encode as dict entries, and can only
// appear directly inside an array. VARIANT values encode as DBus
// variants, with the contained value's type as the variant
// signature.
//
// If any part of a value fails to encode, every container opened
// for it is abandoned, and the message body is left as it was before
// the call.
//
// DecodeAny applies the inverse mapping, with two differences:
// decoded arrays have no ItemType, and variants are unwrapped, so
// that the caller sees the contained value directly.
//
// Type descriptors such as "ARRAY<DICT_ENTRY<STRING,VARIANT>>" are
// the script-side spelling of DBus types. [Compile] turns a
// descriptor into a [Signature], and [Describe] goes the other way.
package scriptbus
