package scriptbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/danderson/scriptbus/value"
)

// NameRequestFlags modify the behavior of RequestName.
type NameRequestFlags byte

const (
	NameRequestAllowReplacement NameRequestFlags = 1 << iota
	NameRequestReplace
	NameRequestNoQueue
)

// bus returns the message bus's own interface.
func (c *Client) bus() Interface {
	return c.Peer(ifaceBus).Object("/org/freedesktop/DBus").Interface(ifaceBus)
}

// RequestName asks the bus to assign name to the connection.
func (c *Client) RequestName(ctx context.Context, name string, flags NameRequestFlags) (isPrimaryOwner bool, err error) {
	resp, err := singleUint32(c.bus().Call(ctx, "RequestName", value.String(name), value.Uint32(flags)))
	if err != nil {
		return false, err
	}
	switch resp {
	case 1:
		// Became primary owner.
		return true, nil
	case 2:
		// Placed in queue, but not primary.
		return false, nil
	case 3:
		return false, errors.New("requested name not available")
	case 4:
		// Already the primary owner.
		return true, nil
	default:
		return false, fmt.Errorf("unknown response code %d to RequestName", resp)
	}
}

// ReleaseName gives up ownership of name.
func (c *Client) ReleaseName(ctx context.Context, name string) error {
	_, err := c.bus().Call(ctx, "ReleaseName", value.String(name))
	return err
}

// ListNames returns the names currently owned on the bus.
func (c *Client) ListNames(ctx context.Context) ([]string, error) {
	return singleStrings(c.bus().Call(ctx, "ListNames"))
}

// ListActivatableNames returns the names that the bus can start on
// demand.
func (c *Client) ListActivatableNames(ctx context.Context) ([]string, error) {
	return singleStrings(c.bus().Call(ctx, "ListActivatableNames"))
}

// NameHasOwner reports whether name currently has an owner.
func (c *Client) NameHasOwner(ctx context.Context, name string) (bool, error) {
	return singleBool(c.bus().Call(ctx, "NameHasOwner", value.String(name)))
}

// GetNameOwner returns the unique name of the owner of name.
func (c *Client) GetNameOwner(ctx context.Context, name string) (string, error) {
	return singleString(c.bus().Call(ctx, "GetNameOwner", value.String(name)))
}

// GetPeerUID returns the Unix user ID of the process owning name.
func (c *Client) GetPeerUID(ctx context.Context, name string) (uint32, error) {
	return singleUint32(c.bus().Call(ctx, "GetConnectionUnixUser", value.String(name)))
}

// GetPeerPID returns the process ID of the process owning name.
func (c *Client) GetPeerPID(ctx context.Context, name string) (uint32, error) {
	return singleUint32(c.bus().Call(ctx, "GetConnectionUnixProcessID", value.String(name)))
}

// GetBusID returns the bus's unique ID.
func (c *Client) GetBusID(ctx context.Context) (string, error) {
	return singleString(c.bus().Call(ctx, "GetId"))
}

// Not implemented:
//  - StartServiceByName, deprecated in favor of auto-start.
//  - UpdateActivationEnvironment, which is locked down on modern
//    buses.
//  - GetConnectionCredentials, whose a{sv} reply scripts can get
//    with a plain call.
//  - AddMatch/RemoveMatch: connections don't dispatch signals.
