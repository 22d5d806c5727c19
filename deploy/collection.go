package deploy

import (
	"github.com/google/uuid"
)

// Collection accumulates realized resources in completion order. It is
// the memo for lazy completion: the first realization of a ztid wins and
// every later lookup returns that same object. Completion order is the
// dependency order the apply pass and the recorder rely on.
type Collection struct {
	byID    map[uuid.UUID]Resource
	order   []uuid.UUID
	managed map[uuid.UUID]bool
}

func NewCollection() *Collection {
	return &Collection{
		byID:    make(map[uuid.UUID]Resource),
		managed: make(map[uuid.UUID]bool),
	}
}

// Add inserts an already realized resource the caller manages. If the
// identity is present the existing entry is kept and returned.
func (c *Collection) Add(res Resource) Resource {
	return c.add(res, true)
}

func (c *Collection) add(res Resource, managed bool) Resource {
	id := res.ZTID()
	if existing, ok := c.byID[id]; ok {
		return existing
	}
	c.byID[id] = res
	c.order = append(c.order, id)
	c.managed[id] = managed
	return res
}

// Get returns the realized resource for a ztid, if any run completed it.
func (c *Collection) Get(ztid uuid.UUID) (Resource, bool) {
	res, ok := c.byID[ztid]
	return res, ok
}

func (c *Collection) Has(ztid uuid.UUID) bool {
	_, ok := c.byID[ztid]
	return ok
}

func (c *Collection) Len() int {
	return len(c.order)
}

// Managed reports whether the entry is owned by this deployment. Entries
// realized from a node without config are only references to something
// that already exists; the apply pass must not put or record them.
func (c *Collection) Managed(ztid uuid.UUID) bool {
	return c.managed[ztid]
}

// Ordered returns the resources in completion order. The slice is a copy;
// the underlying entries are not.
func (c *Collection) Ordered() []Resource {
	out := make([]Resource, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}
