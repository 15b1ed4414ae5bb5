package transport

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseAddresses(t *testing.T) {
	tests := []struct {
		in      string
		want    []Address
		wantErr bool
	}{
		{
			in:   "unix:path=/run/dbus/system_bus_socket",
			want: []Address{{Kind: "unix", Params: map[string]string{"path": "/run/dbus/system_bus_socket"}}},
		},
		{
			in: "unix:abstract=/tmp/dbus-x,guid=0123abcd;unix:path=/tmp/a%20b",
			want: []Address{
				{Kind: "unix", Params: map[string]string{"abstract": "/tmp/dbus-x", "guid": "0123abcd"}},
				{Kind: "unix", Params: map[string]string{"path": "/tmp/a b"}},
			},
		},
		{
			in:   ";tcp:;",
			want: []Address{{Kind: "tcp", Params: map[string]string{}}},
		},
		{in: "", wantErr: true},
		{in: "path=/foo", wantErr: true},
		{in: ":path=/foo", wantErr: true},
		{in: "unix:path", wantErr: true},
		{in: "unix:path=/a,path=/b", wantErr: true},
		{in: "unix:path=/a%2", wantErr: true},
		{in: "unix:path=/a%zz", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseAddresses(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseAddresses(%q) = %v, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAddresses(%q) failed: %v", tc.in, err)
			continue
		}
		if diff := cmp.Diff(got, tc.want); diff != "" {
			t.Errorf("ParseAddresses(%q) wrong result (-got+want):\n%s", tc.in, diff)
		}
	}
}

func TestAddressString(t *testing.T) {
	tests := []struct {
		in   Address
		want string
	}{
		{Address{Kind: "unix", Params: map[string]string{"path": "/run/bus"}}, "unix:path=/run/bus"},
		{Address{Kind: "unix", Params: map[string]string{"guid": "ab", "abstract": "x y"}}, "unix:abstract=x%20y,guid=ab"},
		{Address{Kind: "unix", Params: map[string]string{"path": "/a,b;c=d"}}, "unix:path=/a%2cb%3bc%3dd"},
	}
	for _, tc := range tests {
		got := tc.in.String()
		if got != tc.want {
			t.Errorf("%#v.String() = %q, want %q", tc.in, got, tc.want)
		}
		back, err := ParseAddresses(got)
		if err != nil {
			t.Errorf("ParseAddresses(%q) failed: %v", got, err)
			continue
		}
		if diff := cmp.Diff(back, []Address{tc.in}); diff != "" {
			t.Errorf("ParseAddresses(%q) didn't round trip (-got+want):\n%s", got, diff)
		}
	}
}

func TestDialErrors(t *testing.T) {
	ctx := context.Background()
	for _, addr := range []string{
		"tcp:host=localhost,port=1234",
		"unix:guid=abcd",
		"unix:path=/nonexistent/scriptbus-test.sock",
	} {
		if tr, err := Dial(ctx, addr); err == nil {
			tr.Close()
			t.Errorf("Dial(%q) succeeded, want error", addr)
		} else if testing.Verbose() {
			t.Logf("Dial(%q): %v", addr, err)
		}
	}
}
