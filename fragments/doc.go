// package fragments provides low-level encoding and decoding helpers
// to construct and parse DBus messages.
//
// The provided encoder and decoder are very low level, and do not
// encode any DBus semantics beyond alignment and framing. It is the
// caller's responsibility to produce valid DBus messages using these
// tools. The message iterators in the scriptbus package are built on
// top of them.
package fragments
