package deploy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Partial is a declared but not yet realized member of a deployment graph.
// The two implementations are Node for provider resources and ActionNode
// for one-shot actions. The interface is sealed; completion owns the
// dispatch.
type Partial interface {
	// Identity returns the caller-assigned ztid.
	Identity() uuid.UUID

	build(ctx context.Context, c *completer) (Resource, bool, error)
}

// Node declares a resource before any session or region is known. The
// same node value can be completed under different run contexts; each
// collection realizes it at most once.
//
// Config nil means the resource is assumed to exist already: completion
// builds it without resolving anything, the apply pass never calls Put on
// it, and it is never recorded.
type Node struct {
	ZTID    uuid.UUID
	Kind    Kind
	Name    string
	IndexID string

	Config Map

	// Extra carries kind-specific construction overrides. Values here
	// take precedence over the run context ("region" overrides the run
	// region) but can never override the node's own identity fields.
	Extra map[string]any
}

func (n *Node) Identity() uuid.UUID { return n.ZTID }

// Attr returns a projection of one attribute of this node's realized
// resource, for embedding in another node's config.
func (n *Node) Attr(name string) Value {
	return Attr{Node: n, Name: name}
}

func (n *Node) build(ctx context.Context, c *completer) (Resource, bool, error) {
	in := BuildInput{
		AWS:     c.rc.AWS,
		Region:  c.rc.Region,
		Account: c.rc.Account,
		Manager: c.rc.Manager,
		ZTID:    n.ZTID,
		Name:    n.Name,
		IndexID: n.IndexID,
		Extra:   n.Extra,
	}
	if r, ok := n.Extra["region"].(string); ok && r != "" {
		in.Region = r
	}

	if n.Config != nil {
		resolved, err := c.resolveValue(ctx, n.Config)
		if err != nil {
			return nil, false, fmt.Errorf("resolve config for %s: %w", nodeLabel(n.Name, n.ZTID), err)
		}
		in.Config = resolved.(map[string]any)
	}

	res, err := n.Kind.Build(ctx, in)
	if err != nil {
		return nil, false, fmt.Errorf("build %s %s: %w", n.Kind.Tag, nodeLabel(n.Name, n.ZTID), err)
	}
	return res, n.Config != nil, nil
}

// ActionNode declares a deferred action that participates in the graph
// like a resource: it has an identity, its arguments may reference other
// nodes, and applying the collection runs it exactly once. Realized
// actions carry no type tag and are never recorded.
type ActionNode struct {
	ZTID uuid.UUID
	Name string

	Args     []Value
	Keywords map[string]Value

	Run func(ctx context.Context, args []any, kw map[string]any) error
}

func (n *ActionNode) Identity() uuid.UUID { return n.ZTID }

func (n *ActionNode) build(ctx context.Context, c *completer) (Resource, bool, error) {
	args := make([]any, len(n.Args))
	for i, av := range n.Args {
		rv, err := c.resolveValue(ctx, av)
		if err != nil {
			return nil, false, fmt.Errorf("resolve argument %d for %s: %w", i, nodeLabel(n.Name, n.ZTID), err)
		}
		args[i] = rv
		c.noteSlicePatch(args, i, rv)
	}

	var kw map[string]any
	if len(n.Keywords) > 0 {
		kw = make(map[string]any, len(n.Keywords))
		for k, kv := range n.Keywords {
			rv, err := c.resolveValue(ctx, kv)
			if err != nil {
				return nil, false, fmt.Errorf("resolve keyword %q for %s: %w", k, nodeLabel(n.Name, n.ZTID), err)
			}
			kw[k] = rv
			c.noteMapPatch(kw, k, rv)
		}
	}

	return &actionResource{
		ztid: n.ZTID,
		name: n.Name,
		run:  n.Run,
		args: args,
		kw:   kw,
	}, true, nil
}

// actionResource adapts a deferred action to the Resource interface. Put
// runs the action once; forcing reruns it. There is nothing remote to
// tear down, so Delete is a no-op.
type actionResource struct {
	ztid uuid.UUID
	name string
	run  func(ctx context.Context, args []any, kw map[string]any) error
	args []any
	kw   map[string]any
	done bool
}

func (a *actionResource) ZTID() uuid.UUID { return a.ztid }
func (a *actionResource) Name() string    { return a.name }
func (a *actionResource) IndexID() string { return "" }
func (a *actionResource) Region() string  { return "" }

func (a *actionResource) Exists(ctx context.Context) (bool, error) {
	return a.done, nil
}

func (a *actionResource) Put(ctx context.Context, force bool) error {
	if a.done && !force {
		return nil
	}
	if a.run == nil {
		return fmt.Errorf("action %s has no run func", nodeLabel(a.name, a.ztid))
	}
	if err := a.run(ctx, a.args, a.kw); err != nil {
		return fmt.Errorf("run action %s: %w", nodeLabel(a.name, a.ztid), err)
	}
	a.done = true
	return nil
}

func (a *actionResource) Delete(ctx context.Context, notExistsOK bool) error {
	return nil
}

func nodeLabel(name string, ztid uuid.UUID) string {
	if name != "" {
		return fmt.Sprintf("%s (ztid=%s)", name, ztid)
	}
	return fmt.Sprintf("ztid=%s", ztid)
}
