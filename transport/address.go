package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// An Address is one entry of a DBus server address, such as
// "unix:path=/run/dbus/system_bus_socket".
type Address struct {
	// Kind is the transport name, e.g. "unix".
	Kind string
	// Params are the address's key/value pairs, unescaped.
	Params map[string]string
}

func (a Address) String() string {
	var ret strings.Builder
	ret.WriteString(a.Kind)
	ret.WriteByte(':')
	first := true
	for _, k := range []string{"path", "abstract", "guid"} {
		v, ok := a.Params[k]
		if !ok {
			continue
		}
		if !first {
			ret.WriteByte(',')
		}
		first = false
		ret.WriteString(k)
		ret.WriteByte('=')
		ret.WriteString(escape(v))
	}
	return ret.String()
}

// ParseAddresses parses a semicolon-separated list of DBus server
// addresses.
func ParseAddresses(s string) ([]Address, error) {
	var ret []Address
	for _, entry := range strings.Split(s, ";") {
		if entry == "" {
			continue
		}
		kind, rest, ok := strings.Cut(entry, ":")
		if !ok || kind == "" {
			return nil, fmt.Errorf("invalid bus address %q: missing transport name", entry)
		}
		addr := Address{
			Kind:   kind,
			Params: map[string]string{},
		}
		if rest != "" {
			for _, kv := range strings.Split(rest, ",") {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return nil, fmt.Errorf("invalid bus address %q: malformed parameter %q", entry, kv)
				}
				if _, dup := addr.Params[k]; dup {
					return nil, fmt.Errorf("invalid bus address %q: duplicate parameter %q", entry, k)
				}
				uv, err := unescape(v)
				if err != nil {
					return nil, fmt.Errorf("invalid bus address %q: %w", entry, err)
				}
				addr.Params[k] = uv
			}
		}
		ret = append(ret, addr)
	}
	if len(ret) == 0 {
		return nil, errors.New("empty bus address")
	}
	return ret, nil
}

func unescape(s string) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}
	var ret strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			ret.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("truncated escape in %q", s)
		}
		b, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
		if err != nil {
			return "", fmt.Errorf("invalid escape %q", s[i:i+3])
		}
		ret.WriteByte(byte(b))
		i += 2
	}
	return ret.String(), nil
}

func escape(s string) string {
	var ret strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			ret.WriteByte(c)
		case strings.IndexByte("-_/.\\*", c) >= 0:
			ret.WriteByte(c)
		default:
			fmt.Fprintf(&ret, "%%%02x", c)
		}
	}
	return ret.String()
}

// Dial connects to the first reachable server in a DBus address list.
func Dial(ctx context.Context, address string) (Transport, error) {
	addrs, err := ParseAddresses(address)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, addr := range addrs {
		t, err := DialAddress(ctx, addr)
		if err == nil {
			return t, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", addr, err))
	}
	return nil, errors.Join(errs...)
}

// DialAddress connects to the server at addr.
func DialAddress(ctx context.Context, addr Address) (Transport, error) {
	if addr.Kind != "unix" {
		return nil, fmt.Errorf("unsupported transport %q", addr.Kind)
	}
	if p, ok := addr.Params["path"]; ok {
		return DialUnix(ctx, p)
	}
	if p, ok := addr.Params["abstract"]; ok {
		return DialUnix(ctx, "@"+p)
	}
	return nil, errors.New("unix address has neither path nor abstract parameter")
}
