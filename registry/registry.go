// Package registry implements the method registry: a rooted tree keyed by
// dotted path components, whose leaves are either a locally-implemented
// function or a weak reference to the provider session that published the
// method remotely.
//
// # Usage
//
// Construct an empty registry and add local methods to it at startup:
//
//	reg := registry.New()
//	reg.InsertLocal("bbus.bbusd.echo", echoFunc)
//
// A provider session registers a remote method when it sends SRVREG:
//
//	err := reg.InsertRemote("bbus.foo.bar", provider, "bar")
//
// Looking up a call path returns the entry that should handle it:
//
//	entry, ok := reg.Lookup("bbus.foo.bar")
//
// When a provider session disconnects, every remote entry it owns is
// removed in one sweep:
//
//	reg.RemoveByProvider(provider)
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bbgo/busybus/object"
)

// LocalFunc is the signature of a locally-implemented method: it takes the
// caller's argument object and returns a result object, or fails.
type LocalFunc func(arg *object.Object) (*object.Object, error)

// Entry is a method registry leaf: either Local is set (a function
// pointer) or Provider is set (a weak reference to the publishing
// session, identified by pointer/value identity — the registry never
// dereferences it, only compares it).
type Entry struct {
	Local LocalFunc

	Provider any    // identity of the owning session; nil for local entries
	LeafName string // the provider's own name for the method, used as SRVCALL meta
}

// IsLocal reports whether e is a locally-implemented method.
func (e *Entry) IsLocal() bool { return e.Local != nil }

// node is one level of the path tree.
type node struct {
	children map[string]*node
	methods  map[string]*Entry
}

func newNode() *node {
	return &node{children: make(map[string]*node), methods: make(map[string]*Entry)}
}

// Registry is the dotted-path method tree. The zero value is not usable;
// construct one with New.
type Registry struct {
	mu   sync.Mutex
	root *node
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{root: newNode()}
}

// splitPath splits a dotted method path into its components, rejecting
// empty paths and empty components (e.g. leading, trailing, or doubled
// dots).
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("registry: empty method path")
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("registry: empty path component in %q", path)
		}
	}
	return parts, nil
}

// insert descends the tree from the root, creating intermediate nodes as
// needed, and stores e at the leaf named by the last component of path.
// It fails if that leaf is already occupied.
func (r *Registry) insert(path string, e *Entry) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.root
	for _, comp := range parts[:len(parts)-1] {
		if _, isMethod := n.methods[comp]; isMethod {
			return fmt.Errorf("registry: %q: path component %q is already a method", path, comp)
		}
		child, ok := n.children[comp]
		if !ok {
			child = newNode()
			n.children[comp] = child
		}
		n = child
	}
	leaf := parts[len(parts)-1]
	if _, ok := n.children[leaf]; ok {
		return fmt.Errorf("registry: %q: path component %q is already a service", path, leaf)
	}
	if _, ok := n.methods[leaf]; ok {
		return fmt.Errorf("registry: %q: already registered", path)
	}
	n.methods[leaf] = e
	return nil
}

// InsertLocal registers a locally-implemented method at path. It fails if
// path is already registered.
func (r *Registry) InsertLocal(path string, fn LocalFunc) error {
	return r.insert(path, &Entry{Local: fn})
}

// InsertRemote registers a remote method at path, owned by provider and
// known to that provider by leafName (the name forwarded as SRVCALL
// meta). It fails if path is already registered.
func (r *Registry) InsertRemote(path string, provider any, leafName string) error {
	return r.insert(path, &Entry{Provider: provider, LeafName: leafName})
}

// Lookup splits path on '.' and descends the tree, returning the method
// entry at the leaf, or ok=false if no such method is registered.
func (r *Registry) Lookup(path string) (*Entry, bool) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.root
	for _, comp := range parts[:len(parts)-1] {
		child, ok := n.children[comp]
		if !ok {
			return nil, false
		}
		n = child
	}
	e, ok := n.methods[parts[len(parts)-1]]
	return e, ok
}

// Remove removes the method registered at path, if any. It reports
// whether an entry was found and removed.
func (r *Registry) Remove(path string) bool {
	parts, err := splitPath(path)
	if err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.root
	for _, comp := range parts[:len(parts)-1] {
		child, ok := n.children[comp]
		if !ok {
			return false
		}
		n = child
	}
	leaf := parts[len(parts)-1]
	if _, ok := n.methods[leaf]; !ok {
		return false
	}
	delete(n.methods, leaf)
	return true
}

// RemoveByProvider removes every remote entry owned by provider, pruning
// any service node left with no children and no methods. It reports the
// full paths that were removed.
func (r *Registry) RemoveByProvider(provider any) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	pruneByProvider(r.root, nil, provider, &removed)
	return removed
}

func pruneByProvider(n *node, prefix []string, provider any, removed *[]string) {
	for name, e := range n.methods {
		if e.Provider != nil && e.Provider == provider {
			delete(n.methods, name)
			*removed = append(*removed, strings.Join(append(append([]string{}, prefix...), name), "."))
		}
	}
	for name, child := range n.children {
		pruneByProvider(child, append(prefix, name), provider, removed)
		if len(child.children) == 0 && len(child.methods) == 0 {
			delete(n.children, name)
		}
	}
}

// Paths returns every registered method path, for the control surface's
// enumerate-methods command. The result is not sorted.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	collectPaths(r.root, nil, &out)
	return out
}

func collectPaths(n *node, prefix []string, out *[]string) {
	for name := range n.methods {
		*out = append(*out, strings.Join(append(append([]string{}, prefix...), name), "."))
	}
	for name, child := range n.children {
		collectPaths(child, append(prefix, name), out)
	}
}

// NormalizeServicePath builds the full registry path for a provider's
// SRVREG meta, bbus.<service-path>.<method-name>, rejecting an empty
// service-path component per the decision recorded for top-level
// registration.
func NormalizeServicePath(servicePath, methodName string) (string, error) {
	if servicePath == "" {
		return "", fmt.Errorf("registry: empty service path for method %q", methodName)
	}
	if methodName == "" {
		return "", fmt.Errorf("registry: empty method name for service %q", servicePath)
	}
	return "bbus." + servicePath + "." + methodName, nil
}
