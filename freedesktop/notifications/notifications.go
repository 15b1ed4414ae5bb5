// Package notifications provides an interface to the Freedesktop
// notifications API.
//
// This corresponds to the org.freedesktop.Notifications service on
// the session bus.
package notifications

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/danderson/scriptbus"
	"github.com/danderson/scriptbus/value"
)

const ifaceName = "org.freedesktop.Notifications"

type Notification struct{ iface scriptbus.Interface }

// New returns an interface to the session's notification service.
func New(c *scriptbus.Client) Notification {
	obj := c.Peer("org.freedesktop.Notifications").Object("/org/freedesktop/Notifications")
	return Interface(obj)
}

// Interface returns a Notification on the given object.
func Interface(obj scriptbus.Object) Notification {
	return Notification{
		iface: obj.Interface(ifaceName),
	}
}

func (iface Notification) CloseNotification(ctx context.Context, id uint32) error {
	_, err := iface.iface.Call(ctx, "CloseNotification", value.Uint32(id))
	return err
}

// Capabilities supported by various DEs
//
// Actions supported by Gnome
// ==========================
// actions
// body
// body-markup
// icon-static
// persistence
// sound
//
// Actions supported by KDE
// ========================
// actions
// body
// body-hyperlinks
// body-images
// body-markup
// icon-static
// inhibitions
// inline-reply
// persistence
// x-kde-display-appname
// x-kde-origin-name
// x-kde-urls
//
// Not mentioned in standards
// ==========================
// inhibitions
// inline-reply
//
// In standard but nobody implements?
// ==================================
// action-icons
// icon-multi

// Capabilities enumerates the optional capabilities of a notification
// service.
type Capabilities struct {
	// Actions reports whether notifications can have actions attached
	// to them. Actions trigger a signal back to the notification's
	// sender when interacted with.
	Actions bool
	// ActionIcons reports notification actions can use icons to
	// describe actions instead of text.
	ActionIcons bool
	// Body reports whether notifications can have a body, in addition
	// to a short title.
	//
	// Most notification services support bodies, but clients should
	// not assume that all do.
	Body bool
	// BodyLinks reports whether notification bodies can include
	// hyperlinks.
	BodyLinks bool
	// BodyImages reports whether notification bodies can include
	// images.
	BodyImages bool
	// BodyMarkup reports whether notification bodies can contain
	// notification markup, a small subset of HTML.
	BodyMarkup bool
	// Icon reports whether notifications can have an icon.
	Icon bool
	// IconAnimation reports whether the notification icon can be
	// multiple frames of animation, or just a single static frame.
	IconAnimation bool
	// Persistence reports whether notifications can be
	// persistent. Persistent notifications remain on screen until
	// explicitly dismissed by the user.
	Persistence bool
	// Sound reports whether notifications can play a sound.
	Sound bool

	// Inhibitions reports whether the notification service supports
	// the Inhibit call, for controlled suppression of notifications.
	//
	// Inhibitions is a KDE-only extension to the notifications API.
	Inhibitions bool
	// InlineReply reports whether notifications can prompt for text
	// reply within the notification.
	//
	// InlineReply is a KDE-only extension to the notifications API.
	InlineReply bool
	// ContextURLs reports whether notifications can include URL
	// hints, to enrich the notification's interaction options. For
	// example, a file:// URL adds a context menu to interact with the
	// file, whereas https:// URLs show a site preview.
	//
	// ContextURLs is a KDE-only extension to the notifications API.
	ContextURLs bool
	// DisplayAppName reports whether notifications can show a pretty
	// name for the sending application.
	//
	// DisplayAppName is a KDE-only extension to the notifications API.
	DisplayAppName bool
	// DisplayOriginName reports whether notifications can show an
	// additional "origin" for notification, e.g. a website domain or
	// a message's sender in chat apps.
	//
	// DisplayOriginName is a KDE-only extension to the notifications
	// API.
	DisplayOriginName bool

	// Unknown collects the capability strings that aren't known to
	// this package.
	Unknown []string
}

// Capabilities reports the capabilities of the notification service.
func (iface Notification) Capabilities(ctx context.Context) (caps Capabilities, err error) {
	cs, err := stringsReply(iface.iface.Call(ctx, "GetCapabilities"))
	if err != nil {
		return Capabilities{}, err
	}
	for _, c := range cs {
		switch c {
		case "actions":
			caps.Actions = true
		case "action-icons":
			caps.ActionIcons = true
		case "body":
			caps.Body = true
		case "body-hyperlinks":
			caps.BodyLinks = true
		case "body-images":
			caps.BodyImages = true
		case "body-markup":
			caps.BodyMarkup = true
		case "icon-static":
			caps.Icon = true
		case "icon-multi":
			caps.Icon = true
			caps.IconAnimation = true
		case "persistence":
			caps.Persistence = true
		case "sound":
			caps.Sound = true

		case "inhibitions":
			caps.Inhibitions = true
		case "inline-reply":
			caps.InlineReply = true
		case "x-kde-display-appname":
			caps.DisplayAppName = true
		case "x-kde-origin-name":
			caps.DisplayOriginName = true
		case "x-kde-urls":
			caps.ContextURLs = true

		default:
			caps.Unknown = append(caps.Unknown, c)
		}
	}
	return caps, nil
}

type GetServerInformationResponse struct {
	Name        string
	Vendor      string
	Version     string
	SpecVersion string
}

func (iface Notification) GetServerInformation(ctx context.Context) (resp GetServerInformationResponse, err error) {
	vs, err := iface.iface.Call(ctx, "GetServerInformation")
	if err != nil {
		return resp, err
	}
	if len(vs) != 4 {
		return resp, fmt.Errorf("GetServerInformation returned %d values, want 4", len(vs))
	}
	out := []*string{&resp.Name, &resp.Vendor, &resp.Version, &resp.SpecVersion}
	for i, v := range vs {
		if *out[i], err = scriptbus.GoString(v); err != nil {
			return GetServerInformationResponse{}, err
		}
	}
	return resp, nil
}

func (iface Notification) Inhibit(ctx context.Context, desktopEntry string, reason string, hints map[string]value.Value) (uint32, error) {
	h, err := hintDict(hints)
	if err != nil {
		return 0, err
	}
	return uint32Reply(iface.iface.Call(ctx, "Inhibit", value.String(desktopEntry), value.String(reason), h))
}

type NotifyRequest struct {
	AppName    string
	ReplacesID uint32
	AppIcon    string
	Summary    string
	Body       string
	Actions    []string
	Hints      map[string]value.Value
	Timeout    int32
}

func (iface Notification) Notify(ctx context.Context, req NotifyRequest) (uint32, error) {
	actions := value.Array{ItemType: value.Descriptor(value.KindString.String())}
	for _, a := range req.Actions {
		actions.Items = append(actions.Items, value.String(a))
	}
	hints, err := hintDict(req.Hints)
	if err != nil {
		return 0, err
	}
	return uint32Reply(iface.iface.Call(ctx, "Notify",
		value.String(req.AppName),
		value.Uint32(req.ReplacesID),
		value.String(req.AppIcon),
		value.String(req.Summary),
		value.String(req.Body),
		actions,
		hints,
		value.Int32(req.Timeout)))
}

func (iface Notification) UnInhibit(ctx context.Context, arg0 uint32) error {
	_, err := iface.iface.Call(ctx, "UnInhibit", value.Uint32(arg0))
	return err
}

// Inhibited returns the value of the property "Inhibited".
func (iface Notification) Inhibited(ctx context.Context) (bool, error) {
	v, err := iface.iface.GetProperty(ctx, "Inhibited")
	if err != nil {
		return false, err
	}
	b, ok := v.(value.Boolean)
	if !ok {
		return false, fmt.Errorf("Inhibited property is %v, want BOOLEAN", v)
	}
	return bool(b), nil
}

// hintDict returns hints as an a{sv} dict, in key order.
func hintDict(hints map[string]value.Value) (value.Array, error) {
	entries := make([]value.Value, 0, 2*len(hints))
	for _, k := range slices.Sorted(maps.Keys(hints)) {
		entries = append(entries, value.String(k), value.Variant{Value: hints[k]})
	}
	return value.Dict(
		value.Descriptor(value.KindString.String()),
		value.Descriptor(value.KindVariant.String()),
		entries...)
}

func stringsReply(vs []value.Value, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	if len(vs) != 1 {
		return nil, fmt.Errorf("got %d reply values, want 1", len(vs))
	}
	arr, ok := vs[0].(value.Array)
	if !ok {
		return nil, fmt.Errorf("got %v reply, want ARRAY", vs[0].Kind())
	}
	ret := make([]string, 0, len(arr.Items))
	for _, v := range arr.Items {
		s, err := scriptbus.GoString(v)
		if err != nil {
			return nil, err
		}
		ret = append(ret, s)
	}
	return ret, nil
}

func uint32Reply(vs []value.Value, err error) (uint32, error) {
	if err != nil {
		return 0, err
	}
	if len(vs) != 1 {
		return 0, fmt.Errorf("got %d reply values, want 1", len(vs))
	}
	u, ok := vs[0].(value.Uint32)
	if !ok {
		return 0, fmt.Errorf("got %v reply, want UINT32", vs[0].Kind())
	}
	return uint32(u), nil
}
