package value

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromMap(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want Value
	}{
		{"int32", map[string]any{"type": "INT32", "value": 42}, Int32(42)},
		{"legacy is_a", map[string]any{"is_a": "BYTE", "value": 7.0}, Byte(7)},
		{"uint64 max", map[string]any{"type": "UINT64", "value": uint64(math.MaxUint64)}, Uint64(math.MaxUint64)},
		{"double from int", map[string]any{"type": "DOUBLE", "value": 3}, Double(3)},
		{"string", map[string]any{"type": "STRING", "value": "hi"}, String("hi")},
		{
			"array",
			map[string]any{"type": "ARRAY", "item_type": "INT16", "items": []any{
				map[string]any{"type": "INT16", "value": -1},
			}},
			Array{ItemType: "INT16", Items: []Value{Int16(-1)}},
		},
		{
			"array descriptor",
			map[string]any{"type": "ARRAY<STRING>"},
			Array{ItemType: "STRING"},
		},
		{
			"struct",
			map[string]any{"type": "STRUCT", "values": []any{
				map[string]any{"type": "BOOLEAN", "value": true},
				Int32(5),
			}},
			Struct{Values: []Value{Boolean(true), Int32(5)}},
		},
		{
			"dict entry",
			map[string]any{
				"type":  "DICT_ENTRY",
				"key":   map[string]any{"type": "STRING", "value": "k"},
				"value": map[string]any{"type": "VARIANT", "value": map[string]any{"type": "UINT32", "value": 1}},
			},
			DictEntry{Key: String("k"), Value: Variant{Value: Uint32(1)}},
		},
	}
	for _, tc := range tests {
		got, err := FromMap(tc.in)
		if err != nil {
			t.Errorf("%s: FromMap failed: %v", tc.name, err)
			continue
		}
		if diff := cmp.Diff(got, tc.want); diff != "" {
			t.Errorf("%s: FromMap wrong result (-got+want):\n%s", tc.name, diff)
		}
	}
}

func TestFromMapErrors(t *testing.T) {
	tests := []struct {
		name     string
		in       map[string]any
		wantPath string
	}{
		{"no type", map[string]any{"value": 1}, ""},
		{"unknown type", map[string]any{"type": "INT", "value": 1}, ""},
		{"missing value", map[string]any{"type": "INT32"}, "INT32"},
		{"out of range", map[string]any{"type": "BYTE", "value": 256}, "BYTE"},
		{"negative unsigned", map[string]any{"type": "UINT32", "value": -1}, "UINT32"},
		{"fractional", map[string]any{"type": "INT64", "value": 1.5}, "INT64"},
		{"wrong go type", map[string]any{"type": "BOOLEAN", "value": "yes"}, "BOOLEAN"},
		{"items not a list", map[string]any{"type": "ARRAY", "items": 3}, "ARRAY"},
		{
			"bad nested item",
			map[string]any{"type": "ARRAY", "items": []any{
				map[string]any{"type": "INT32", "value": 1},
				"bare",
			}},
			"ARRAY[1]",
		},
		{
			"bad dict key",
			map[string]any{"type": "DICT_ENTRY", "key": 1, "value": map[string]any{"type": "INT32", "value": 1}},
			"DICT_ENTRY.key",
		},
	}
	for _, tc := range tests {
		got, err := FromMap(tc.in)
		if err == nil {
			t.Errorf("%s: FromMap = %#v, want error", tc.name, got)
			continue
		}
		var se *ShapeError
		if !errors.As(err, &se) {
			t.Errorf("%s: error %v is not a ShapeError", tc.name, err)
			continue
		}
		if se.Path != tc.wantPath {
			t.Errorf("%s: error path %q, want %q", tc.name, se.Path, tc.wantPath)
		}
		if testing.Verbose() {
			t.Logf("%s: %v", tc.name, err)
		}
	}
}

func TestToMap(t *testing.T) {
	v := Struct{Values: []Value{
		Uint64(math.MaxUint64),
		Uint32(7),
		Array{ItemType: "STRING", Items: []Value{String("a")}},
		Variant{Value: Boolean(false)},
	}}
	want := map[string]any{
		"type": "STRUCT",
		"values": []any{
			map[string]any{"type": "UINT64", "value": uint64(math.MaxUint64)},
			map[string]any{"type": "UINT32", "value": int64(7)},
			map[string]any{"type": "ARRAY", "item_type": "STRING", "items": []any{
				map[string]any{"type": "STRING", "value": "a"},
			}},
			map[string]any{"type": "VARIANT", "value": map[string]any{"type": "BOOLEAN", "value": false}},
		},
	}
	got := ToMap(v)
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("ToMap wrong result (-got+want):\n%s", diff)
	}

	back, err := FromMap(got)
	if err != nil {
		t.Fatalf("FromMap(ToMap(v)) failed: %v", err)
	}
	if diff := cmp.Diff(back, Value(v)); diff != "" {
		t.Errorf("FromMap(ToMap(v)) wrong result (-got+want):\n%s", diff)
	}
}

func TestPlain(t *testing.T) {
	dict, err := Dict("STRING", "VARIANT",
		String("a"), Variant{Value: Int32(1)},
		String("b"), Variant{Value: Array{Items: []Value{Double(0.5)}}},
	)
	if err != nil {
		t.Fatal(err)
	}
	got := Plain(Struct{Values: []Value{dict, String("x")}})
	want := []any{
		map[any]any{"a": int64(1), "b": []any{0.5}},
		"x",
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Plain wrong result (-got+want):\n%s", diff)
	}
	if got := Plain(nil); got != nil {
		t.Errorf("Plain(nil) = %v, want nil", got)
	}
}

func TestDict(t *testing.T) {
	if _, err := Dict("STRING", "INT32", String("odd")); err == nil {
		t.Error("Dict with an odd number of entries succeeded")
	}
	d, err := Dict("STRING", "INT32")
	if err != nil {
		t.Fatalf("empty Dict failed: %v", err)
	}
	if d.ItemType != "DICT_ENTRY<STRING,INT32>" || len(d.Items) != 0 {
		t.Errorf("empty Dict = %#v", d)
	}
}

func TestDescriptorOf(t *testing.T) {
	tests := []struct {
		in      Value
		want    Descriptor
		wantErr bool
	}{
		{Int32(1), "INT32", false},
		{UnixFD(3), "UNIX_FD", false},
		{Variant{Value: Int32(1)}, "VARIANT", false},
		{Array{Items: []Value{String("x")}}, "ARRAY<STRING>", false},
		{Array{ItemType: "BYTE"}, "ARRAY<BYTE>", false},
		{Struct{Values: []Value{Int16(1), Array{ItemType: "STRING"}}}, "STRUCT<INT16,ARRAY<STRING>>", false},
		{DictEntry{Key: String("k"), Value: Double(1)}, "DICT_ENTRY<STRING,DOUBLE>", false},
		{nil, "", true},
		{Array{}, "", true},
		{Struct{Values: []Value{Array{}}}, "", true},
	}
	for _, tc := range tests {
		got, err := DescriptorOf(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("DescriptorOf(%#v) = %q, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("DescriptorOf(%#v) failed: %v", tc.in, err)
		} else if got != tc.want {
			t.Errorf("DescriptorOf(%#v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestKinds(t *testing.T) {
	for _, k := range Kinds() {
		back, ok := ParseKind(k.String())
		if !ok || back != k {
			t.Errorf("ParseKind(%q) = %v, %v, want %v", k.String(), back, ok, k)
		}
	}
	for _, k := range []Kind{KindString, KindObjectPath, KindSignature} {
		if !k.IsStringLike() || !k.IsBasic() {
			t.Errorf("%v: IsStringLike=%v IsBasic=%v, want both true", k, k.IsStringLike(), k.IsBasic())
		}
	}
	for _, k := range []Kind{KindArray, KindStruct, KindDictEntry, KindVariant} {
		if k.IsBasic() {
			t.Errorf("%v.IsBasic() = true", k)
		}
	}
	if KindInt32.IsStringLike() {
		t.Error("INT32 is string-like")
	}
}
