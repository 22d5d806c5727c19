package deploy

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps type tags to kinds. Records store only the tag, so
// rehydrating a record back into a deletable resource needs the kind
// registered under the same tag it was recorded with.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]Kind)}
}

// Register adds kinds to the registry. Registering a tag twice is an
// error; tags are the rehydration key and must stay unambiguous.
func (r *Registry) Register(kinds ...Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range kinds {
		if k.Tag == "" {
			return fmt.Errorf("register kind: empty type tag")
		}
		if k.Build == nil {
			return fmt.Errorf("register kind %q: nil build func", k.Tag)
		}
		if _, ok := r.kinds[k.Tag]; ok {
			return fmt.Errorf("register kind %q: already registered", k.Tag)
		}
		r.kinds[k.Tag] = k
	}
	return nil
}

// Get returns the kind registered under tag.
func (r *Registry) Get(tag string) (Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[tag]
	if !ok {
		return Kind{}, &UnknownKindError{Tag: tag}
	}
	return k, nil
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.kinds))
	for tag := range r.kinds {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
