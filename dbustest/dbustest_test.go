package dbustest_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/danderson/scriptbus"
	"github.com/danderson/scriptbus/dbustest"
	"github.com/danderson/scriptbus/value"
)

func TestBus(t *testing.T) {
	b := dbustest.New(t, true)
	c := scriptbus.NewClient(b.MustConn(t))
	if err := c.Peer("org.freedesktop.DBus").Ping(context.Background()); err != nil {
		t.Fatalf("failed to ping test bus: %v", err)
	}
}

func TestEcho(t *testing.T) {
	echo := &dbustest.Echo{}
	c := scriptbus.NewClient(echo)
	ctx := context.Background()

	dict, err := value.Dict("STRING", "VARIANT", value.String("k"), value.Variant{Value: value.Uint16(9)})
	if err != nil {
		t.Fatal(err)
	}
	args := []value.Value{
		value.Byte(1),
		value.Int64(-5),
		value.ObjectPath("/x"),
		value.Array{ItemType: "INT16", Items: []value.Value{value.Int16(1), value.Int16(2)}},
		value.Struct{Values: []value.Value{value.Boolean(true), value.Double(0.25)}},
		dict,
	}
	got, err := c.Call(ctx, "org.test", "/org/test", "org.test.Echo", "Echo", args...)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	want := []value.Value{
		value.Byte(1),
		value.Int64(-5),
		value.ObjectPath("/x"),
		value.Array{Items: []value.Value{value.Int16(1), value.Int16(2)}},
		value.Struct{Values: []value.Value{value.Boolean(true), value.Double(0.25)}},
		value.Array{Items: []value.Value{value.DictEntry{Key: value.String("k"), Value: value.Uint16(9)}}},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("echo returned wrong values (-got+want):\n%s", diff)
	}

	got, err = c.Call(ctx, "", "/", "", "Empty")
	if err != nil {
		t.Fatalf("Call with no args failed: %v", err)
	}
	if got != nil {
		t.Errorf("Call with no args = %v, want nil", got)
	}

	if diff := cmp.Diff(echo.Calls(), []string{"org.test.Echo.Echo", ".Empty"}); diff != "" {
		t.Errorf("wrong calls (-got+want):\n%s", diff)
	}

	echo.Close()
	_, err = c.Call(ctx, "", "/", "", "Late")
	var re scriptbus.RemoteError
	if !errors.As(err, &re) || re.Name != scriptbus.ErrNameDisconnected {
		t.Errorf("Call after Close: error = %v, want %s", err, scriptbus.ErrNameDisconnected)
	}
	if !errors.Is(err, net.ErrClosed) {
		t.Errorf("Call after Close: error = %v, does not wrap net.ErrClosed", err)
	}
}

func TestEchoReplyHook(t *testing.T) {
	echo := &dbustest.Echo{
		Reply: func(call *scriptbus.Message) (*scriptbus.Message, error) {
			if call.Member == "Nope" {
				return scriptbus.NewError(call, "org.test.Error.Nope", "nope")
			}
			return nil, nil
		},
	}
	c := scriptbus.NewClient(echo)
	ctx := context.Background()

	_, err := c.Call(ctx, "", "/", "org.test", "Nope", value.String("x"))
	var re scriptbus.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("Nope() error = %v, want RemoteError", err)
	}
	if diff := cmp.Diff(re, scriptbus.RemoteError{Name: "org.test.Error.Nope", Message: "nope"}); diff != "" {
		t.Errorf("wrong error (-got+want):\n%s", diff)
	}

	got, err := c.Call(ctx, "", "/", "org.test", "Other", value.String("x"))
	if err != nil {
		t.Fatalf("Other() failed: %v", err)
	}
	if diff := cmp.Diff(got, []value.Value{value.String("x")}); diff != "" {
		t.Errorf("Other() wrong result (-got+want):\n%s", diff)
	}
}
