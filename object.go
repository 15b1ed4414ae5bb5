package scriptbus

import (
	"cmp"
	"context"
	"fmt"
)

const (
	ifacePeer           = "org.freedesktop.DBus.Peer"
	ifaceIntrospectable = "org.freedesktop.DBus.Introspectable"
	ifaceProps          = "org.freedesktop.DBus.Properties"
	ifaceBus            = "org.freedesktop.DBus"
)

// Object is a handle to an object offered by a [Peer].
type Object struct {
	p    Peer
	path string
}

func (o Object) Client() *Client { return o.p.Client() }
func (o Object) Peer() Peer      { return o.p }
func (o Object) Path() string    { return o.path }

func (o Object) String() string {
	return fmt.Sprintf("%s:%s", o.p, o.path)
}

// Child returns a handle to the object at the relative path rel
// under o.
func (o Object) Child(rel string) Object {
	if o.path == "/" {
		return o.p.Object("/" + rel)
	}
	return o.p.Object(o.path + "/" + rel)
}

// Compare orders objects by peer name, then by path.
func (o Object) Compare(other Object) int {
	return cmp.Or(cmp.Compare(o.p.name, other.p.name), cmp.Compare(o.path, other.path))
}

// Interface returns a handle to the named interface on the object.
func (o Object) Interface(name string) Interface {
	return Interface{
		o:    o,
		name: name,
	}
}

// Introspect returns the object's introspection XML document.
func (o Object) Introspect(ctx context.Context) (string, error) {
	return singleString(o.Client().Call(ctx, o.p.name, o.path, ifaceIntrospectable, "Introspect"))
}

// Description returns the parsed introspection data of the object.
func (o Object) Description(ctx context.Context) (*ObjectDescription, error) {
	doc, err := o.Introspect(ctx)
	if err != nil {
		return nil, err
	}
	ret, err := ParseIntrospection(doc)
	if err != nil {
		return nil, fmt.Errorf("parsing introspection data of %s: %w", o, err)
	}
	return ret, nil
}

// Children returns the names of the object's direct children, as
// reported by introspection.
func (o Object) Children(ctx context.Context) ([]string, error) {
	desc, err := o.Description(ctx)
	if err != nil {
		return nil, err
	}
	return desc.Children, nil
}

// Implements reports whether the object's introspection data lists
// the named interface.
func (o Object) Implements(ctx context.Context, iface string) (bool, error) {
	desc, err := o.Description(ctx)
	if err != nil {
		return false, err
	}
	_, ok := desc.Interfaces[iface]
	return ok, nil
}

// propsDescription returns the object's description, or an error if
// the object does not implement the Properties interface.
func (o Object) propsDescription(ctx context.Context) (*ObjectDescription, error) {
	desc, err := o.Description(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := desc.Interfaces[ifaceProps]; !ok {
		return nil, RemoteError{
			Name:    ErrNameUnknownInterface,
			Message: fmt.Sprintf("object %s at %s does not support properties", o.p.name, o.path),
		}
	}
	return desc, nil
}
