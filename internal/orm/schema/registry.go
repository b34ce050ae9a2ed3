package schema

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Registry collects entity definitions and builds each type's metadata on
// first use. Construction happens at most once per type even under concurrent
// first access; afterwards lookups only take a read lock.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
	metadata    map[string]*Metadata
	group       singleflight.Group
	builds      atomic.Int64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[string]*Definition),
		metadata:    make(map[string]*Metadata),
	}
}

// Register adds an entity definition. Only single-type checks run here so
// that definitions may reference types registered after them.
func (r *Registry) Register(def Definition) error {
	if err := ValidateStructural(&def); err != nil {
		return err
	}

	def.Columns = append([]Column(nil), def.Columns...)
	def.Relations = append([]RelationDefinition(nil), def.Relations...)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[def.Name]; exists {
		return definitionErrorf(def.Name, "entity type is already registered")
	}
	r.definitions[def.Name] = &def
	return nil
}

// MustRegister registers every definition and panics on the first error.
// Intended for package-level initialization.
func (r *Registry) MustRegister(defs ...Definition) *Registry {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}

// Metadata returns the metadata of an entity type, building it on first use
func (r *Registry) Metadata(name string) (*Metadata, error) {
	r.mu.RLock()
	md, ok := r.metadata[name]
	r.mu.RUnlock()
	if ok {
		return md, nil
	}

	v, err, _ := r.group.Do(name, func() (interface{}, error) {
		r.mu.RLock()
		if md, ok := r.metadata[name]; ok {
			r.mu.RUnlock()
			return md, nil
		}
		def, ok := r.definitions[name]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
		}

		builder := &Builder{lookup: r.definition, resolver: r, graph: r.EagerGraph}
		md, err := builder.Build(def)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.metadata[name] = md
		r.mu.Unlock()
		r.builds.Add(1)
		return md, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Metadata), nil
}

// MustMetadata is Metadata for callers that validated the registry at startup
func (r *Registry) MustMetadata(name string) *Metadata {
	md, err := r.Metadata(name)
	if err != nil {
		panic(err)
	}
	return md
}

// ValidateAll builds the metadata of every registered type so definition
// errors surface at startup. All failures are joined into one error.
func (r *Registry) ValidateAll() error {
	var errs []error
	for _, name := range r.Names() {
		if _, err := r.Metadata(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Names returns the registered entity type names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exists reports whether an entity type is registered
func (r *Registry) Exists(name string) bool {
	_, ok := r.definition(name)
	return ok
}

// Count returns the number of registered entity types
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.definitions)
}

// EagerGraph returns the eager-loading graph over all registered definitions
func (r *Registry) EagerGraph() *EagerGraph {
	r.mu.RLock()
	defs := make(map[string]*Definition, len(r.definitions))
	for k, v := range r.definitions {
		defs[k] = v
	}
	r.mu.RUnlock()

	return NewEagerGraph(defs)
}

func (r *Registry) definition(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[name]
	return def, ok
}
