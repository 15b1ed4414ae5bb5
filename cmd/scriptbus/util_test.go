package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/danderson/scriptbus"
	"github.com/danderson/scriptbus/value"
)

func TestParseArg(t *testing.T) {
	tests := []struct {
		in      string
		want    value.Value
		wantErr bool
	}{
		{"hello", value.String("hello"), false},
		{"INT32:42", value.Int32(42), false},
		{"UINT64:18446744073709551615", value.Uint64(18446744073709551615), false},
		{"BOOLEAN:true", value.Boolean(true), false},
		{"DOUBLE:1.5", value.Double(1.5), false},
		{"OBJECT_PATH:/org/example", value.ObjectPath("/org/example"), false},
		{"STRING:a:b", value.String("a:b"), false},
		{"http://example.com", value.String("http://example.com"), false},
		{"BYTE:300", nil, true},
		{"INT32:x", nil, true},
		{
			"{type: ARRAY, item_type: STRING, items: [{type: STRING, value: a}, {type: STRING, value: b}]}",
			value.Array{ItemType: "STRING", Items: []value.Value{value.String("a"), value.String("b")}},
			false,
		},
		{
			`{"type": "VARIANT", "value": {"type": "UINT32", "value": 7}}`,
			value.Variant{Value: value.Uint32(7)},
			false,
		},
		{"{type: FROB, value: 1}", nil, true},
	}
	for _, tc := range tests {
		got, err := parseArg(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseArg(%q) = %v, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseArg(%q) failed: %v", tc.in, err)
			continue
		}
		if diff := cmp.Diff(got, tc.want); diff != "" {
			t.Errorf("parseArg(%q) wrong value (-got+want):\n%s", tc.in, diff)
		}
	}
}

func TestParseArgs(t *testing.T) {
	say := &scriptbus.MethodDescription{
		Name: "Say",
		In: []scriptbus.ArgumentDescription{
			{Name: "text", Type: "STRING"},
			{Name: "count", Type: "UINT32"},
			{Name: "path", Type: "OBJECT_PATH"},
			{Name: "hint", Type: "VARIANT"},
		},
	}
	tests := []struct {
		name    string
		m       *scriptbus.MethodDescription
		in      []string
		want    []value.Value
		wantErr bool
	}{
		{
			"untyped without description",
			nil,
			[]string{"a", "3"},
			[]value.Value{value.String("a"), value.String("3")},
			false,
		},
		{
			"typed by description",
			say,
			[]string{"a:b", "3", "/org/x", "{type: VARIANT, value: {type: INT32, value: 1}}"},
			[]value.Value{value.String("a:b"), value.Uint32(3), value.ObjectPath("/org/x"), value.Variant{Value: value.Int32(1)}},
			false,
		},
		{
			"explicit kind wins",
			say,
			[]string{"x", "INT32:3", "/", "{type: VARIANT, value: {type: INT32, value: 1}}"},
			nil,
			true,
		},
		{"bad literal for described type", say, []string{"x", "many", "/", "y"}, nil, true},
		{"wrong count", say, []string{"x"}, nil, true},
	}
	for _, tc := range tests {
		got, err := parseArgs(tc.in, tc.m)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%s: parseArgs(%q) = %v, want error", tc.name, tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: parseArgs(%q) failed: %v", tc.name, tc.in, err)
			continue
		}
		if diff := cmp.Diff(got, tc.want); diff != "" {
			t.Errorf("%s: parseArgs(%q) wrong values (-got+want):\n%s", tc.name, tc.in, diff)
		}
	}
}
