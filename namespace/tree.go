// Package namespace implements the nested call surface a client exposes:
// a tree whose branches are namespace segments and whose leaves are values
// (service stubs on the client).
//
// Trees are built by merging single-leaf fragments into an accumulating root.
// Merge never mutates its inputs, so a tree is immutable once built and may be
// shared between goroutines without locking.
package namespace

import (
	"sort"
	"strings"
)

// Node is either a *Leaf or a *Branch.
type Node interface {
	node()
}

// Leaf holds a value at the end of a path.
type Leaf struct {
	Value any
}

// Branch maps path segments to child nodes.
type Branch struct {
	children map[string]Node
}

func (*Leaf) node()   {}
func (*Branch) node() {}

// NewBranch returns an empty branch.
func NewBranch() *Branch {
	return &Branch{children: make(map[string]Node)}
}

// Child returns the node stored under key.
func (b *Branch) Child(key string) (Node, bool) {
	if b == nil {
		return nil, false
	}
	n, ok := b.children[key]
	return n, ok
}

// Keys returns the child keys in sorted order.
func (b *Branch) Keys() []string {
	if b == nil {
		return nil
	}
	keys := make([]string, 0, len(b.children))
	for k := range b.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of direct children.
func (b *Branch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.children)
}

func (b *Branch) clone() *Branch {
	out := &Branch{children: make(map[string]Node, b.Len()+1)}
	if b != nil {
		for k, v := range b.children {
			out.children[k] = v
		}
	}
	return out
}

// Fragment builds a tree holding value at path + name, with a branch for every
// path segment.
//
//	Fragment([]string{"api", "greeting"}, "hello", v)  →  {api: {greeting: {hello: v}}}
func Fragment(path []string, name string, value any) *Branch {
	var n Node = &Leaf{Value: value}
	key := name
	for i := len(path) - 1; i >= 0; i-- {
		n = &Branch{children: map[string]Node{key: n}}
		key = path[i]
	}
	return &Branch{children: map[string]Node{key: n}}
}

// Lookup follows path from root and returns the node at its end.
func Lookup(root *Branch, path ...string) (Node, bool) {
	var n Node = root
	for _, seg := range path {
		b, ok := n.(*Branch)
		if !ok {
			return nil, false
		}
		if n, ok = b.Child(seg); !ok {
			return nil, false
		}
	}
	return n, root != nil
}

// Walk calls fn for every leaf under root in sorted path order. The path slice
// passed to fn must not be retained. Walk stops at the first error.
func Walk(root *Branch, fn func(path []string, leaf *Leaf) error) error {
	return walk(nil, root, fn)
}

func walk(path []string, b *Branch, fn func([]string, *Leaf) error) error {
	for _, k := range b.Keys() {
		at := append(path, k)
		switch n := b.children[k].(type) {
		case *Leaf:
			if err := fn(at, n); err != nil {
				return err
			}
		case *Branch:
			if err := walk(at, n, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Paths lists every leaf as a dot-joined path, sorted. Two trees with equal
// Paths have the same shape.
func Paths(root *Branch) []string {
	var out []string
	_ = Walk(root, func(path []string, _ *Leaf) error {
		out = append(out, strings.Join(path, "."))
		return nil
	})
	return out
}
