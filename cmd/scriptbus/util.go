package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/creachadair/mds/heapq"
	"gopkg.in/yaml.v3"

	"github.com/danderson/scriptbus"
	"github.com/danderson/scriptbus/value"
)

type indenter struct {
	prefix     string
	indentNext bool
}

func (i *indenter) v(v any) {
	fmt.Fprintf(i, "%v\n", v)
}

func (i *indenter) Write(bs []byte) (int, error) {
	ret := 0
	for len(bs) > 0 {
		if i.indentNext {
			i.indentNext = false
			_, err := io.WriteString(os.Stdout, i.prefix)
			if err != nil {
				return ret, err
			}
		}

		wr := bs
		idx := bytes.IndexByte(bs, '\n')
		if idx >= 0 {
			i.indentNext = true
			wr, bs = bs[:idx+1], bs[idx+1:]
		} else {
			bs = nil
		}

		n, err := os.Stdout.Write(wr)
		ret += n
		if err != nil {
			return ret, err
		}
	}
	return ret, nil
}

func (i *indenter) indent(n int) {
	i.prefix = strings.Repeat("  ", n)
}

type objectInterface struct {
	scriptbus.Interface
	Desc *scriptbus.InterfaceDescription
}

// listInterfaces walks peer's object tree in path order, yielding the
// interfaces whose object path and name match the filters.
func listInterfaces(ctx context.Context, peer scriptbus.Peer, objectFilter, interfaceFilter string) iter.Seq2[objectInterface, error] {
	return func(yield func(objectInterface, error) bool) {
		om, err := regexp.Compile(objectFilter)
		if err != nil {
			yield(objectInterface{}, err)
			return
		}
		im, err := regexp.Compile(interfaceFilter)
		if err != nil {
			yield(objectInterface{}, err)
			return
		}

		objs := heapq.New(scriptbus.Object.Compare)
		objs.Add(peer.Object("/"))
		for !objs.IsEmpty() {
			obj, _ := objs.Pop()
			desc, err := obj.Description(ctx)
			if err != nil {
				if !yield(objectInterface{}, fmt.Errorf("introspecting %s: %w", obj, err)) {
					return
				}
				continue
			}
			for _, child := range desc.Children {
				objs.Add(obj.Child(child))
			}
			if !om.MatchString(obj.Path()) {
				continue
			}
			for _, k := range slices.Sorted(maps.Keys(desc.Interfaces)) {
				if !im.MatchString(k) {
					continue
				}
				if !yield(objectInterface{obj.Interface(k), desc.Interfaces[k]}, nil) {
					return
				}
			}
		}
	}
}

func growTo(s []string, n int) []string {
	for len(s) < n {
		s = append(s, "")
	}
	return s
}

// parseArgs parses command-line method arguments. If m is not nil,
// arguments without an explicit kind take the basic type m declares
// for them, and the result is checked against m.
func parseArgs(raws []string, m *scriptbus.MethodDescription) ([]value.Value, error) {
	ret := make([]value.Value, 0, len(raws))
	for i, raw := range raws {
		if m != nil && i < len(m.In) && !hasKind(raw) {
			if k, ok := value.ParseKind(string(m.In[i].Type)); ok && k.IsBasic() {
				raw = k.String() + ":" + raw
			}
		}
		v, err := parseArg(raw)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		ret = append(ret, v)
	}
	if m != nil {
		if err := m.CheckArgs(ret); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// hasKind reports whether raw spells out its own type.
func hasKind(raw string) bool {
	if strings.HasPrefix(raw, "{") {
		return true
	}
	name, _, ok := strings.Cut(raw, ":")
	if !ok {
		return false
	}
	k, ok := value.ParseKind(name)
	return ok && k.IsBasic()
}

// parseArg parses a command-line method argument.
func parseArg(raw string) (value.Value, error) {
	if strings.HasPrefix(raw, "{") {
		var m map[string]any
		if err := yaml.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", raw, err)
		}
		return value.FromMap(m)
	}

	name, lit, ok := strings.Cut(raw, ":")
	if !ok {
		return value.String(raw), nil
	}
	k, ok := value.ParseKind(name)
	if !ok || !k.IsBasic() {
		return value.String(raw), nil
	}
	if k.IsStringLike() {
		return value.Basic(k, lit)
	}
	var x any
	if err := yaml.Unmarshal([]byte(lit), &x); err != nil {
		return nil, fmt.Errorf("parsing %s literal %q: %w", name, lit, err)
	}
	return value.Basic(k, x)
}
