package value

import "github.com/creachadair/mds/mapset"

// Kind identifies the variant of a [Value].
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBoolean
	KindByte
	KindDouble
	KindInt16
	KindInt32
	KindInt64
	KindUint16
	KindUint32
	KindUint64
	KindString
	KindObjectPath
	KindSignature
	KindUnixFD
	KindArray
	KindStruct
	KindDictEntry
	KindVariant
)

var kindNames = [...]string{
	KindInvalid:    "INVALID",
	KindBoolean:    "BOOLEAN",
	KindByte:       "BYTE",
	KindDouble:     "DOUBLE",
	KindInt16:      "INT16",
	KindInt32:      "INT32",
	KindInt64:      "INT64",
	KindUint16:     "UINT16",
	KindUint32:     "UINT32",
	KindUint64:     "UINT64",
	KindString:     "STRING",
	KindObjectPath: "OBJECT_PATH",
	KindSignature:  "SIGNATURE",
	KindUnixFD:     "UNIX_FD",
	KindArray:      "ARRAY",
	KindStruct:     "STRUCT",
	KindDictEntry:  "DICT_ENTRY",
	KindVariant:    "VARIANT",
}

var kindByName = func() map[string]Kind {
	ret := make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		if Kind(k) != KindInvalid {
			ret[n] = Kind(k)
		}
	}
	return ret
}()

// String returns the script-facing name of the kind, e.g. "INT32".
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "INVALID"
}

// ParseKind returns the Kind with the given script-facing name.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindByName[name]
	return k, ok
}

// Kinds returns all valid kinds, in declaration order.
func Kinds() []Kind {
	ret := make([]Kind, 0, len(kindNames)-1)
	for k := KindBoolean; k <= KindVariant; k++ {
		ret = append(ret, k)
	}
	return ret
}

// IsBasic reports whether k is a basic (non-container) kind. Only
// basic kinds can be dict entry keys.
func (k Kind) IsBasic() bool {
	return k >= KindBoolean && k <= KindUnixFD
}

var stringKinds = mapset.New(KindString, KindObjectPath, KindSignature)

// IsStringLike reports whether values of kind k carry string
// payloads.
func (k Kind) IsStringLike() bool {
	return stringKinds.Has(k)
}
