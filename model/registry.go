package model

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps object type names to their descriptors and resolves the
// type hierarchy: abstract types (those with at least one registered
// subtype), concrete leaf types, transitive subtype sets, and relation
// lookup across the hierarchy.
//
// A Registry is immutable after the registration phase and safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	types    map[string]*Descriptor
	children map[string][]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:    make(map[string]*Descriptor),
		children: make(map[string][]string),
	}
}

// Register adds a type descriptor. It fails with ErrDuplicateType when a
// descriptor with the same name is already present.
func (r *Registry) Register(d *Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.types[d.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, d.Name)
	}
	r.types[d.Name] = d
	if d.Parent != "" {
		r.children[d.Parent] = append(r.children[d.Parent], d.Name)
		sort.Strings(r.children[d.Parent])
	}
	return nil
}

// MustRegister registers a descriptor and panics on failure. Registration
// is a startup-time step; a duplicate name is a programmer error.
func (r *Registry) MustRegister(d *Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Resolve returns the descriptor for a type name, failing with
// ErrTypeNotFound when the name is unknown.
func (r *Registry) Resolve(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, name)
	}
	return d, nil
}

// IsRegistered reports whether a type name is known.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[name]
	return ok
}

// IsConcrete reports whether the type is a registered leaf type. A type
// with registered subtypes is abstract; a type appears in exactly one of
// the two sets.
func (r *Registry) IsConcrete(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[name]
	return ok && len(r.children[name]) == 0
}

// ConcreteTypes returns the sorted names of all leaf types.
func (r *Registry) ConcreteTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name := range r.types {
		if len(r.children[name]) == 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// AbstractTypes returns the sorted names of all types with at least one
// registered subtype.
func (r *Registry) AbstractTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name := range r.types {
		if len(r.children[name]) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// SubtypesOf returns the transitive closure of registered subtypes of the
// given type, indirect subtypes included, sorted by name.
func (r *Registry) SubtypesOf(name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.types[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, name)
	}

	var out []string
	queue := append([]string(nil), r.children[name]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		out = append(out, next)
		queue = append(queue, r.children[next]...)
	}
	sort.Strings(out)
	return out, nil
}

// ToConcrete expands every abstract type in the input into its concrete
// leaves; concrete types pass through unchanged. The result is sorted and
// deduplicated. This must be applied before issuing storage-layer queries,
// since the storage layer only understands concrete type tags.
func (r *Registry) ToConcrete(names []string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, name := range names {
		if name == AnyObjectType {
			for _, concrete := range r.ConcreteTypes() {
				seen[concrete] = struct{}{}
			}
			continue
		}
		if r.IsConcrete(name) {
			seen[name] = struct{}{}
			continue
		}
		subtypes, err := r.SubtypesOf(name)
		if err != nil {
			return nil, err
		}
		for _, sub := range subtypes {
			if r.IsConcrete(sub) {
				seen[sub] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// IsSubtype reports whether sub equals ancestor or descends from it.
func (r *Registry) IsSubtype(sub, ancestor string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name := sub; name != ""; {
		if name == ancestor {
			return true
		}
		d, ok := r.types[name]
		if !ok {
			return false
		}
		name = d.Parent
	}
	return false
}

// RelationsOf returns the relation table of a type.
func (r *Registry) RelationsOf(name string) (map[string]Relation, error) {
	d, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	return d.Relations, nil
}

// ResolveRelation looks up a relation by property name on the given type,
// falling back to the type's concrete subtypes when the property is only
// declared on a specialization. The boolean is false when the property is
// not a relation anywhere in the subtree.
func (r *Registry) ResolveRelation(name, property string) (Relation, bool) {
	d, err := r.Resolve(name)
	if err != nil {
		return Relation{}, false
	}
	if rel, ok := d.Relations[property]; ok {
		return rel, true
	}
	subtypes, err := r.SubtypesOf(name)
	if err != nil {
		return Relation{}, false
	}
	for _, sub := range subtypes {
		if sd, err := r.Resolve(sub); err == nil {
			if rel, ok := sd.Relations[property]; ok {
				return rel, true
			}
		}
	}
	return Relation{}, false
}

// New returns a zero value of the named concrete type, for decoding stored
// documents.
func (r *Registry) New(name string) (Object, error) {
	d, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if d.New == nil {
		return nil, fmt.Errorf("%w: %s is abstract", ErrTypeNotFound, name)
	}
	return d.New(), nil
}

// HumanReadable formats a reference for display using the type-specific
// formatter when one is registered, falling back to the raw reference
// string.
func (r *Registry) HumanReadable(ref Reference) string {
	d, err := r.Resolve(ref.ObjectType())
	if err != nil || d.HumanReadable == nil {
		return string(ref)
	}
	return d.HumanReadable(r, ref)
}
