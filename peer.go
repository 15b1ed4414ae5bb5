package scriptbus

import (
	"context"
)

// Peer is a handle to a bus name.
type Peer struct {
	c    *Client
	name string
}

// Ping checks that the peer is reachable.
func (p Peer) Ping(ctx context.Context) error {
	_, err := p.c.Call(ctx, p.name, "/", ifacePeer, "Ping")
	return err
}

// MachineID returns the ID of the machine the peer is running on.
func (p Peer) MachineID(ctx context.Context) (string, error) {
	return singleString(p.c.Call(ctx, p.name, "/", ifacePeer, "GetMachineId"))
}

func (p Peer) Client() *Client { return p.c }
func (p Peer) Name() string    { return p.name }

func (p Peer) String() string {
	if p.c == nil {
		return "<no peer>"
	}
	return p.name
}

// Object returns a handle to the object at path.
func (p Peer) Object(path string) Object {
	return Object{
		p:    p,
		path: path,
	}
}
