package scriptbus

import (
	"errors"
	"fmt"
	"strings"
)

const maxNameLen = 255

func isNameChar(c byte, allowHyphen bool) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '_' ||
		allowHyphen && c == '-'
}

// validObjectPath checks that p is a valid DBus object path.
func validObjectPath(p string) error {
	if p == "" {
		return errors.New("empty object path")
	}
	if p == "/" {
		return nil
	}
	if p[0] != '/' {
		return fmt.Errorf("object path %q does not start with /", p)
	}
	if strings.HasSuffix(p, "/") {
		return fmt.Errorf("object path %q has a trailing /", p)
	}
	for _, elem := range strings.Split(p[1:], "/") {
		if elem == "" {
			return fmt.Errorf("object path %q has an empty element", p)
		}
		for i := 0; i < len(elem); i++ {
			if !isNameChar(elem[i], false) {
				return fmt.Errorf("object path %q contains invalid character %q", p, elem[i])
			}
		}
	}
	return nil
}

// validDottedName checks the rules common to interface and bus names.
func validDottedName(kind, n string, allowHyphen, allowDigitStart bool) error {
	if n == "" {
		return fmt.Errorf("empty %s", kind)
	}
	if len(n) > maxNameLen {
		return fmt.Errorf("%s %q is longer than %d bytes", kind, n, maxNameLen)
	}
	elems := strings.Split(n, ".")
	if len(elems) < 2 {
		return fmt.Errorf("%s %q must have at least two elements", kind, n)
	}
	for _, elem := range elems {
		if elem == "" {
			return fmt.Errorf("%s %q has an empty element", kind, n)
		}
		if !allowDigitStart && elem[0] >= '0' && elem[0] <= '9' {
			return fmt.Errorf("%s %q has an element starting with a digit", kind, n)
		}
		for i := 0; i < len(elem); i++ {
			if !isNameChar(elem[i], allowHyphen) {
				return fmt.Errorf("%s %q contains invalid character %q", kind, n, elem[i])
			}
		}
	}
	return nil
}

// validInterfaceName checks that n is a valid interface or error
// name.
func validInterfaceName(n string) error {
	return validDottedName("interface name", n, false, false)
}

// validBusName checks that n is a valid well-known or unique bus
// name.
func validBusName(n string) error {
	if strings.HasPrefix(n, ":") {
		return validDottedName("unique bus name", n[1:], true, true)
	}
	return validDottedName("bus name", n, true, false)
}

// validMemberName checks that n is a valid method or signal name.
func validMemberName(n string) error {
	if n == "" {
		return errors.New("empty member name")
	}
	if len(n) > maxNameLen {
		return fmt.Errorf("member name %q is longer than %d bytes", n, maxNameLen)
	}
	if n[0] >= '0' && n[0] <= '9' {
		return fmt.Errorf("member name %q starts with a digit", n)
	}
	for i := 0; i < len(n); i++ {
		if !isNameChar(n[i], false) {
			return fmt.Errorf("member name %q contains invalid character %q", n, n[i])
		}
	}
	return nil
}
