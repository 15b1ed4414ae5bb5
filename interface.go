package scriptbus

import (
	"context"
	"fmt"

	"github.com/danderson/scriptbus/value"
)

// Interface is a set of methods and properties offered by an
// [Object].
type Interface struct {
	o    Object
	name string
}

// Client returns the client used to call the interface.
func (f Interface) Client() *Client { return f.o.Client() }

// Peer returns the Peer that is offering the interface.
func (f Interface) Peer() Peer { return f.o.Peer() }

// Object returns the Object that implements the interface.
func (f Interface) Object() Object { return f.o }

// Name returns the name of the interface.
func (f Interface) Name() string { return f.name }

func (f Interface) String() string {
	if f.name == "" {
		return fmt.Sprintf("%s:<no interface>", f.Object())
	}
	return fmt.Sprintf("%s:%s", f.Object(), f.name)
}

// Call calls method on the interface with the given arguments, and
// returns the reply's values.
//
// It is the caller's responsibility to match the arguments to the
// signature of the method being invoked.
func (f Interface) Call(ctx context.Context, method string, args ...value.Value) ([]value.Value, error) {
	return f.Client().Call(ctx, f.Peer().Name(), f.Object().Path(), f.name, method, args...)
}

func (f Interface) props() Interface {
	return f.Object().Interface(ifaceProps)
}

// GetProperty returns the value of the named property.
func (f Interface) GetProperty(ctx context.Context, name string) (value.Value, error) {
	return single(f.props().Call(ctx, "Get", value.String(f.name), value.String(name)))
}

// SetProperty sets the named property to v.
//
// SetProperty fails without calling Set if the object does not
// implement the Properties interface, or if the introspection data
// describes the property as read-only or of a different type.
func (f Interface) SetProperty(ctx context.Context, name string, v value.Value) error {
	desc, err := f.Object().propsDescription(ctx)
	if err != nil {
		return err
	}
	if iface, ok := desc.Interfaces[f.name]; ok {
		if p, ok := iface.Properties[name]; ok {
			if err := p.CheckValue(v); err != nil {
				return err
			}
		}
	}
	_, err = f.props().Call(ctx, "Set", value.String(f.name), value.String(name), value.Variant{Value: v})
	return err
}

// Description returns the introspection data of the interface. ok is
// false if the object's introspection data does not list it.
func (f Interface) Description(ctx context.Context) (desc *InterfaceDescription, ok bool, err error) {
	od, err := f.Object().Description(ctx)
	if err != nil {
		return nil, false, err
	}
	desc, ok = od.Interfaces[f.name]
	return desc, ok, nil
}

// GetAllProperties returns all the properties exported by the
// interface.
//
// GetAllProperties fails without calling GetAll if the object does
// not implement the Properties interface.
func (f Interface) GetAllProperties(ctx context.Context) (map[string]value.Value, error) {
	if _, err := f.Object().propsDescription(ctx); err != nil {
		return nil, err
	}
	v, err := single(f.props().Call(ctx, "GetAll", value.String(f.name)))
	if err != nil {
		return nil, err
	}
	arr, ok := v.(value.Array)
	if !ok {
		return nil, DecodeError{Reason: fmt.Errorf("GetAll returned %s, want ARRAY", kindName(v))}
	}
	ret := make(map[string]value.Value, len(arr.Items))
	for _, it := range arr.Items {
		ent, ok := it.(value.DictEntry)
		if !ok {
			return nil, DecodeError{Reason: fmt.Errorf("GetAll returned an array of %s, want DICT_ENTRY", kindName(it))}
		}
		k, err := GoString(ent.Key)
		if err != nil {
			return nil, err
		}
		ret[k] = ent.Value
	}
	return ret, nil
}
