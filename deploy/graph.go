// Package deploy models a deployment as a graph of partially specified
// resources. A node declares a resource's identity, kind, and config
// before any account, region, or session is known; completing the graph
// under a run context realizes every node into a concrete resource,
// resolving cross-node references lazily and at most once per identity.
// The realized collection preserves completion order, which is the order
// the apply pass and the record keeper treat as dependency order.
package deploy

import (
	"context"

	"github.com/google/uuid"
)

// Graph is an ordered set of declared partials keyed by identity.
type Graph struct {
	nodes map[uuid.UUID]Partial
	order []uuid.UUID
}

func NewGraph() *Graph {
	return &Graph{nodes: make(map[uuid.UUID]Partial)}
}

// Add declares a partial. Two declarations with the same ztid are always
// a bug; the second one is rejected.
func (g *Graph) Add(p Partial) error {
	id := p.Identity()
	if _, ok := g.nodes[id]; ok {
		return &DuplicateIdentityError{ZTID: id, Name: partialName(p)}
	}
	g.nodes[id] = p
	g.order = append(g.order, id)
	return nil
}

// AddAll declares partials in order, stopping at the first duplicate.
func (g *Graph) AddAll(ps ...Partial) error {
	for _, p := range ps {
		if err := g.Add(p); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the declared partial for a ztid.
func (g *Graph) Get(ztid uuid.UUID) (Partial, bool) {
	p, ok := g.nodes[ztid]
	return p, ok
}

func (g *Graph) Len() int {
	return len(g.order)
}

// Complete realizes every declared node under one run context. Nodes are
// visited in declaration order, but a node referenced by an earlier
// node's config is completed at the point of reference, so the resulting
// collection order is the dependency order of the graph. Attribute
// projections are evaluated after all nodes are realized.
func (g *Graph) Complete(ctx context.Context, rc RunContext) (*Collection, error) {
	coll := NewCollection()
	c := newCompleter(coll, rc)
	for _, id := range g.order {
		if coll.Has(id) {
			continue
		}
		if _, err := c.completePartial(ctx, g.nodes[id]); err != nil {
			return nil, err
		}
	}
	if err := c.applyProjections(); err != nil {
		return nil, err
	}
	return coll, nil
}

func partialName(p Partial) string {
	switch t := p.(type) {
	case *Node:
		return t.Name
	case *ActionNode:
		return t.Name
	default:
		return ""
	}
}
