// Package null provides a resource kind with no remote side: objects
// live in an in-process store. It exists to exercise deployment wiring
// in demos and tests without credentials.
package null

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/zsec-io/zdeploy/deploy"
)

const TypeTag = "null:Resource"

// Store is the stand-in for the remote service, shared by every null
// resource built against it.
type Store struct {
	mu      sync.Mutex
	objects map[string]map[string]any
}

func NewStore() *Store {
	return &Store{objects: make(map[string]map[string]any)}
}

func (s *Store) get(name string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[name]
	return obj, ok
}

func (s *Store) put(name string, attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = attrs
}

func (s *Store) remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, name)
}

// Len reports how many objects currently exist.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Config is the null resource's config surface. Triggers is arbitrary
// data stored verbatim, including realized resources referenced from
// other nodes.
type Config struct {
	Triggers map[string]any `mapstructure:"triggers"`
}

// Kind returns the null resource kind bound to a store.
func Kind(store *Store) deploy.Kind {
	return deploy.Kind{
		Tag: TypeTag,
		Build: func(ctx context.Context, in deploy.BuildInput) (deploy.Resource, error) {
			return &resource{store: store, in: in}, nil
		},
	}
}

type resource struct {
	store *Store
	in    deploy.BuildInput
	cfg   *Config // decoded on first use, after attribute projections settle
}

func (r *resource) config() (*Config, error) {
	if r.cfg == nil {
		if r.in.Config == nil {
			return nil, fmt.Errorf("null resource %q was built without config", r.in.Name)
		}
		cfg := &Config{}
		if err := mapstructure.Decode(r.in.Config, cfg); err != nil {
			return nil, fmt.Errorf("decode null config: %w", err)
		}
		r.cfg = cfg
	}
	return r.cfg, nil
}

func (r *resource) ZTID() uuid.UUID { return r.in.ZTID }
func (r *resource) Name() string    { return r.in.Name }
func (r *resource) IndexID() string { return r.in.IndexID }
func (r *resource) Region() string  { return r.in.Region }
func (r *resource) TypeTag() string { return TypeTag }

func (r *resource) Exists(ctx context.Context) (bool, error) {
	_, ok := r.store.get(r.in.Name)
	return ok, nil
}

func (r *resource) Put(ctx context.Context, force bool) error {
	cfg, err := r.config()
	if err != nil {
		return err
	}
	attrs := map[string]any{"id": r.id()}
	for k, v := range cfg.Triggers {
		attrs[k] = v
	}
	r.store.put(r.in.Name, attrs)
	return nil
}

func (r *resource) Delete(ctx context.Context, notExistsOK bool) error {
	if _, ok := r.store.get(r.in.Name); !ok {
		if notExistsOK {
			return nil
		}
		return fmt.Errorf("null resource %q does not exist", r.in.Name)
	}
	r.store.remove(r.in.Name)
	return nil
}

func (r *resource) ResourceAttribute(name string) (any, error) {
	switch name {
	case "id":
		return r.id(), nil
	case "name":
		return r.in.Name, nil
	default:
		return nil, fmt.Errorf("null resource has no attribute %q", name)
	}
}

func (r *resource) id() string {
	return fmt.Sprintf("null-%s", r.in.Name)
}
