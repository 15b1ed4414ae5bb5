package scriptbus

import (
	"encoding/xml"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/danderson/scriptbus/value"
)

// ObjectDescription is the parsed introspection data of an object.
//
// Descriptions come from the peer hosting the object, and may not
// match what it actually accepts.
type ObjectDescription struct {
	// Interfaces maps interface names to their descriptions.
	Interfaces map[string]*InterfaceDescription
	// Children are the relative paths of child objects, in document
	// order.
	Children []string
}

// InterfaceDescription describes the methods and properties of an
// interface. Argument and property types are given as descriptors.
type InterfaceDescription struct {
	Name       string
	Methods    map[string]*MethodDescription
	Properties map[string]*PropertyDescription
}

// MethodDescription describes a method's input and output arguments.
type MethodDescription struct {
	Name string
	In   []ArgumentDescription
	Out  []ArgumentDescription
}

// ArgumentDescription is a method argument. Name may be empty.
type ArgumentDescription struct {
	Name string
	Type value.Descriptor
}

// PropertyDescription describes a property's type and access.
type PropertyDescription struct {
	Name     string
	Type     value.Descriptor
	Readable bool
	Writable bool
}

// Raw shapes of the introspection document.
type (
	xmlNode struct {
		Interfaces []xmlInterface `xml:"interface"`
		Children   []struct {
			Name string `xml:"name,attr"`
		} `xml:"node"`
	}
	xmlInterface struct {
		Name       string        `xml:"name,attr"`
		Methods    []xmlMethod   `xml:"method"`
		Properties []xmlProperty `xml:"property"`
	}
	xmlMethod struct {
		Name string `xml:"name,attr"`
		Args []struct {
			Name      string `xml:"name,attr"`
			Type      string `xml:"type,attr"`
			Direction string `xml:"direction,attr"`
		} `xml:"arg"`
	}
	xmlProperty struct {
		Name   string `xml:"name,attr"`
		Type   string `xml:"type,attr"`
		Access string `xml:"access,attr"`
	}
)

// ParseIntrospection parses an introspection XML document, as
// returned by org.freedesktop.DBus.Introspectable.Introspect.
func ParseIntrospection(doc string) (*ObjectDescription, error) {
	var raw xmlNode
	if err := xml.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, err
	}
	ret := &ObjectDescription{
		Interfaces: make(map[string]*InterfaceDescription, len(raw.Interfaces)),
		Children:   make([]string, 0, len(raw.Children)),
	}
	for _, c := range raw.Children {
		ret.Children = append(ret.Children, c.Name)
	}
	for _, ri := range raw.Interfaces {
		iface := &InterfaceDescription{
			Name:       ri.Name,
			Methods:    make(map[string]*MethodDescription, len(ri.Methods)),
			Properties: make(map[string]*PropertyDescription, len(ri.Properties)),
		}
		for _, rm := range ri.Methods {
			m := &MethodDescription{Name: rm.Name}
			for _, arg := range rm.Args {
				d, err := describeXMLType(arg.Type)
				if err != nil {
					return nil, fmt.Errorf("%s.%s arg %q: %w", ri.Name, rm.Name, arg.Name, err)
				}
				ad := ArgumentDescription{Name: arg.Name, Type: d}
				// Method args default to "in".
				if arg.Direction == "out" {
					m.Out = append(m.Out, ad)
				} else {
					m.In = append(m.In, ad)
				}
			}
			iface.Methods[m.Name] = m
		}
		for _, rp := range ri.Properties {
			d, err := describeXMLType(rp.Type)
			if err != nil {
				return nil, fmt.Errorf("%s property %q: %w", ri.Name, rp.Name, err)
			}
			p := &PropertyDescription{Name: rp.Name, Type: d}
			switch rp.Access {
			case "read":
				p.Readable = true
			case "write":
				p.Writable = true
			case "readwrite":
				p.Readable, p.Writable = true, true
			default:
				return nil, fmt.Errorf("%s property %q: unknown access %q", ri.Name, rp.Name, rp.Access)
			}
			iface.Properties[p.Name] = p
		}
		ret.Interfaces[iface.Name] = iface
	}
	return ret, nil
}

// describeXMLType converts the single complete type sig into a
// descriptor.
func describeXMLType(sig string) (value.Descriptor, error) {
	s, err := ParseSignature(sig)
	if err != nil {
		return "", err
	}
	if !s.IsSingle() {
		return "", fmt.Errorf("type %q is not a single complete type", sig)
	}
	return Describe(s)
}

func (d InterfaceDescription) String() string {
	var ret strings.Builder
	fmt.Fprintf(&ret, "interface %s {\n", d.Name)
	for _, k := range slices.Sorted(maps.Keys(d.Methods)) {
		fmt.Fprintf(&ret, "  %s\n", d.Methods[k])
	}
	for _, k := range slices.Sorted(maps.Keys(d.Properties)) {
		fmt.Fprintf(&ret, "  %s\n", d.Properties[k])
	}
	ret.WriteString("}")
	return ret.String()
}

func (m MethodDescription) String() string {
	var ret strings.Builder
	fmt.Fprintf(&ret, "func %s(%s)", m.Name, argList(m.In))
	if len(m.Out) > 0 {
		fmt.Fprintf(&ret, " (%s)", argList(m.Out))
	}
	return ret.String()
}

func argList(args []ArgumentDescription) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}

func (a ArgumentDescription) String() string {
	if a.Name == "" {
		return string(a.Type)
	}
	// Older interfaces use hyphenated arg names.
	return strings.ReplaceAll(a.Name, "-", "_") + " " + string(a.Type)
}

func (p PropertyDescription) String() string {
	access := "readwrite"
	switch {
	case !p.Writable:
		access = "readonly"
	case !p.Readable:
		access = "writeonly"
	}
	return fmt.Sprintf("property %s %s [%s]", p.Name, p.Type, access)
}

// CheckArgs reports whether args match the method's input types.
func (m MethodDescription) CheckArgs(args []value.Value) error {
	if len(args) != len(m.In) {
		return typeErr(m.Name, "method takes %d arguments, got %d", len(m.In), len(args))
	}
	for i, arg := range m.In {
		if err := checkType(arg.Type, args[i]); err != nil {
			return fmt.Errorf("argument %d of %s: %w", i+1, m.Name, err)
		}
	}
	return nil
}

// CheckValue reports whether v can be written to the property.
func (p PropertyDescription) CheckValue(v value.Value) error {
	if !p.Writable {
		return RemoteError{
			Name:    ErrNamePropertyReadOnly,
			Message: fmt.Sprintf("property %s is not writable", p.Name),
		}
	}
	return checkType(p.Type, v)
}

// checkType returns a TypeError if v does not encode as type d.
func checkType(d value.Descriptor, v value.Value) error {
	want, err := Compile(d)
	if err != nil {
		return err
	}
	got, err := SignatureOf(v)
	if err != nil {
		return err
	}
	if got != want {
		gotD, _ := Describe(got)
		return typeErr(string(d), "got a value of type %s", gotD)
	}
	return nil
}
