package deploy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"
)

// RunContext carries the per-run inputs every completion shares: the
// session to build clients from, the default region, the account the
// session resolves to, and the manager namespace records are scoped by.
// Node extras may override the region; identity fields they may not.
type RunContext struct {
	AWS     aws.Config
	Region  string
	Account string
	Manager string
	Logger  *slog.Logger
}

func (rc RunContext) logger() *slog.Logger {
	if rc.Logger != nil {
		return rc.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Complete realizes one partial into the collection, first completing
// anything its config references that no run has completed yet. Attribute
// projections reached from p are evaluated before Complete returns, once
// every node involved is fully constructed.
func Complete(ctx context.Context, p Partial, coll *Collection, rc RunContext) (Resource, error) {
	c := newCompleter(coll, rc)
	res, err := c.completePartial(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := c.applyProjections(); err != nil {
		return nil, err
	}
	return res, nil
}

// completer walks partials depth-first, memoizing through the collection.
// A node is marked in progress for the duration of its own build; meeting
// a marked node again is a cycle, reported with the full path.
type completer struct {
	coll       *Collection
	rc         RunContext
	inProgress map[uuid.UUID]int
	stack      []uuid.UUID
	pending    []projection
}

// projection is a placeholder location recorded during phase one. The
// value at m[key] (or s[idx]) is a *deferredAttr until applyProjections
// overwrites it.
type projection struct {
	m   map[string]any
	key string
	s   []any
	idx int
	def *deferredAttr
}

func newCompleter(coll *Collection, rc RunContext) *completer {
	return &completer{
		coll:       coll,
		rc:         rc,
		inProgress: make(map[uuid.UUID]int),
	}
}

func (c *completer) completePartial(ctx context.Context, p Partial) (Resource, error) {
	id := p.Identity()
	if res, ok := c.coll.Get(id); ok {
		return res, nil
	}
	if pos, busy := c.inProgress[id]; busy {
		path := make([]uuid.UUID, 0, len(c.stack)-pos+1)
		path = append(path, c.stack[pos:]...)
		path = append(path, id)
		return nil, &CycleError{Path: path}
	}
	c.inProgress[id] = len(c.stack)
	c.stack = append(c.stack, id)
	defer func() {
		delete(c.inProgress, id)
		c.stack = c.stack[:len(c.stack)-1]
	}()

	c.rc.logger().Debug("completing node", "ztid", id)
	res, managed, err := p.build(ctx, c)
	if err != nil {
		return nil, err
	}
	return c.coll.add(res, managed), nil
}

// resolveValue turns a config value into the plain Go value a kind
// receives. Maps and lists keep their shape, references complete their
// node and substitute the realized object, attribute projections leave a
// placeholder for phase two, and scalars pass through untouched. Map keys
// are walked in sorted order so sibling completions land in the same
// order every run.
func (c *completer) resolveValue(ctx context.Context, v Value) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case Map:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(t))
		for _, k := range keys {
			rv, err := c.resolveValue(ctx, t[k])
			if err != nil {
				return nil, err
			}
			out[k] = rv
			c.noteMapPatch(out, k, rv)
		}
		return out, nil
	case List:
		out := make([]any, len(t))
		for i, vv := range t {
			rv, err := c.resolveValue(ctx, vv)
			if err != nil {
				return nil, err
			}
			out[i] = rv
			c.noteSlicePatch(out, i, rv)
		}
		return out, nil
	case Ref:
		if t.Node == nil {
			return nil, fmt.Errorf("reference to nil node")
		}
		return c.completePartial(ctx, t.Node)
	case Attr:
		if t.Node == nil {
			return nil, fmt.Errorf("attribute projection of nil node")
		}
		owner, err := c.completePartial(ctx, t.Node)
		if err != nil {
			return nil, err
		}
		return &deferredAttr{owner: owner, kind: t.Node.Kind.Tag, name: t.Name}, nil
	case literal:
		return t.v, nil
	default:
		return nil, fmt.Errorf("unhandled config value %T", v)
	}
}

func (c *completer) noteMapPatch(m map[string]any, key string, v any) {
	if def, ok := v.(*deferredAttr); ok {
		c.pending = append(c.pending, projection{m: m, key: key, def: def})
	}
}

func (c *completer) noteSlicePatch(s []any, idx int, v any) {
	if def, ok := v.(*deferredAttr); ok {
		c.pending = append(c.pending, projection{s: s, idx: idx, def: def})
	}
}

// applyProjections is phase two: every placeholder recorded during
// resolution is evaluated against the finished collection and written
// over in place. The containers being patched are the same maps and
// slices the realized resources hold, so the substitution is visible to
// them without another pass.
func (c *completer) applyProjections() error {
	for _, p := range c.pending {
		carrier, ok := p.def.owner.(AttributeCarrier)
		if !ok {
			return &AttributeError{Kind: p.def.kind, Name: p.def.name}
		}
		val, err := carrier.ResourceAttribute(p.def.name)
		if err != nil {
			return fmt.Errorf("project attribute %q of %s: %w", p.def.name, p.def.kind, err)
		}
		if p.m != nil {
			p.m[p.key] = val
		} else {
			p.s[p.idx] = val
		}
	}
	c.pending = c.pending[:0]
	return nil
}
