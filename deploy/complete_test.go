package deploy

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResource records the BuildInput it was constructed from and counts
// lifecycle calls.
type fakeResource struct {
	in       BuildInput
	present  bool
	putCalls int
	delCalls int
}

func (r *fakeResource) ZTID() uuid.UUID { return r.in.ZTID }
func (r *fakeResource) Name() string    { return r.in.Name }
func (r *fakeResource) IndexID() string { return r.in.IndexID }
func (r *fakeResource) Region() string  { return r.in.Region }

func (r *fakeResource) Exists(ctx context.Context) (bool, error) { return r.present, nil }

func (r *fakeResource) Put(ctx context.Context, force bool) error {
	r.putCalls++
	r.present = true
	return nil
}

func (r *fakeResource) Delete(ctx context.Context, notExistsOK bool) error {
	r.delCalls++
	r.present = false
	return nil
}

func (r *fakeResource) TypeTag() string { return "test:Thing" }

func (r *fakeResource) ResourceAttribute(name string) (any, error) {
	switch name {
	case "arn":
		return "arn:fake:" + r.in.Name, nil
	default:
		return nil, fmt.Errorf("no attribute %q", name)
	}
}

// bareResource has no type tag and no attributes.
type bareResource struct {
	in BuildInput
}

func (r *bareResource) ZTID() uuid.UUID                           { return r.in.ZTID }
func (r *bareResource) Name() string                              { return r.in.Name }
func (r *bareResource) IndexID() string                           { return r.in.IndexID }
func (r *bareResource) Region() string                            { return r.in.Region }
func (r *bareResource) Exists(ctx context.Context) (bool, error)  { return false, nil }
func (r *bareResource) Put(ctx context.Context, force bool) error { return nil }
func (r *bareResource) Delete(ctx context.Context, ok bool) error { return nil }

func fakeKind() Kind {
	return Kind{
		Tag: "test:Thing",
		Build: func(ctx context.Context, in BuildInput) (Resource, error) {
			return &fakeResource{in: in}, nil
		},
	}
}

func bareKind() Kind {
	return Kind{
		Tag: "test:Bare",
		Build: func(ctx context.Context, in BuildInput) (Resource, error) {
			return &bareResource{in: in}, nil
		},
	}
}

func TestGraphCompleteOrdersDependenciesFirst(t *testing.T) {
	dep := &Node{
		ZTID:   uuid.New(),
		Kind:   fakeKind(),
		Name:   "storage",
		Config: Map{},
	}
	top := &Node{
		ZTID: uuid.New(),
		Kind: fakeKind(),
		Name: "consumer",
		Config: Map{
			"target": Ref{Node: dep},
		},
	}

	g := NewGraph()
	require.NoError(t, g.Add(top))
	require.NoError(t, g.Add(dep))

	coll, err := g.Complete(context.Background(), RunContext{Region: "us-east-1"})
	require.NoError(t, err)

	ordered := coll.Ordered()
	require.Len(t, ordered, 2)
	assert.Equal(t, dep.ZTID, ordered[0].ZTID(), "referenced node completes first")
	assert.Equal(t, top.ZTID, ordered[1].ZTID())

	realized := ordered[1].(*fakeResource)
	assert.Same(t, ordered[0], realized.in.Config["target"], "config holds the realized object itself")
}

func TestCompleteMemoizesByIdentity(t *testing.T) {
	shared := &Node{ZTID: uuid.New(), Kind: fakeKind(), Name: "shared", Config: Map{}}
	first := &Node{
		ZTID: uuid.New(), Kind: fakeKind(), Name: "first",
		Config: Map{"dep": Ref{Node: shared}},
	}
	second := &Node{
		ZTID: uuid.New(), Kind: fakeKind(), Name: "second",
		Config: Map{"dep": Ref{Node: shared}},
	}

	g := NewGraph()
	require.NoError(t, g.AddAll(first, second, shared))

	coll, err := g.Complete(context.Background(), RunContext{})
	require.NoError(t, err)
	require.Equal(t, 3, coll.Len())

	f := mustGet(t, coll, first.ZTID).(*fakeResource)
	s := mustGet(t, coll, second.ZTID).(*fakeResource)
	assert.Same(t, f.in.Config["dep"], s.in.Config["dep"], "both configs hold the same realized object")
}

func TestCompleteLeavesStructureIntact(t *testing.T) {
	n := &Node{
		ZTID: uuid.New(),
		Kind: fakeKind(),
		Name: "shaped",
		Config: Map{
			"name":  V("shaped"),
			"count": V(3),
			"tags": Map{
				"team": V("infra"),
			},
			"rules": List{
				V("a"),
				Map{"deep": V(true)},
			},
		},
	}

	g := NewGraph()
	require.NoError(t, g.Add(n))

	coll, err := g.Complete(context.Background(), RunContext{})
	require.NoError(t, err)

	cfg := mustGet(t, coll, n.ZTID).(*fakeResource).in.Config
	assert.Equal(t, "shaped", cfg["name"])
	assert.Equal(t, 3, cfg["count"])
	assert.Equal(t, map[string]any{"team": "infra"}, cfg["tags"])
	rules, ok := cfg["rules"].([]any)
	require.True(t, ok)
	require.Len(t, rules, 2)
	assert.Equal(t, "a", rules[0])
	assert.Equal(t, map[string]any{"deep": true}, rules[1])
}

func TestCompleteNilConfigIsReferenceMode(t *testing.T) {
	n := &Node{ZTID: uuid.New(), Kind: fakeKind(), Name: "preexisting"}

	g := NewGraph()
	require.NoError(t, g.Add(n))

	coll, err := g.Complete(context.Background(), RunContext{})
	require.NoError(t, err)
	require.Equal(t, 1, coll.Len())

	res := mustGet(t, coll, n.ZTID).(*fakeResource)
	assert.Nil(t, res.in.Config)
	assert.False(t, coll.Managed(n.ZTID), "reference-mode entries are not managed")
}

func TestGraphRejectsDuplicateIdentity(t *testing.T) {
	id := uuid.New()
	g := NewGraph()
	require.NoError(t, g.Add(&Node{ZTID: id, Kind: fakeKind(), Name: "one", Config: Map{}}))

	err := g.Add(&Node{ZTID: id, Kind: fakeKind(), Name: "two", Config: Map{}})
	var dup *DuplicateIdentityError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, id, dup.ZTID)
	assert.Equal(t, "two", dup.Name)
}

func TestCompleteDetectsCycle(t *testing.T) {
	a := &Node{ZTID: uuid.New(), Kind: fakeKind(), Name: "a"}
	b := &Node{ZTID: uuid.New(), Kind: fakeKind(), Name: "b"}
	a.Config = Map{"peer": Ref{Node: b}}
	b.Config = Map{"peer": Ref{Node: a}}

	g := NewGraph()
	require.NoError(t, g.AddAll(a, b))

	_, err := g.Complete(context.Background(), RunContext{})
	var cyc *CycleError
	require.ErrorAs(t, err, &cyc)
	require.GreaterOrEqual(t, len(cyc.Path), 3)
	assert.Equal(t, cyc.Path[0], cyc.Path[len(cyc.Path)-1], "path closes on the re-entered node")
}

func TestAttrProjectionResolvesAfterCompletion(t *testing.T) {
	owner := &Node{ZTID: uuid.New(), Kind: fakeKind(), Name: "role", Config: Map{}}
	user := &Node{
		ZTID: uuid.New(),
		Kind: fakeKind(),
		Name: "fn",
		Config: Map{
			"role": owner.Attr("arn"),
			"env": Map{
				"ROLE": owner.Attr("arn"),
			},
		},
	}

	g := NewGraph()
	require.NoError(t, g.AddAll(user, owner))

	coll, err := g.Complete(context.Background(), RunContext{})
	require.NoError(t, err)

	cfg := mustGet(t, coll, user.ZTID).(*fakeResource).in.Config
	assert.Equal(t, "arn:fake:role", cfg["role"])
	env := cfg["env"].(map[string]any)
	assert.Equal(t, "arn:fake:role", env["ROLE"], "nested projections are patched in place")
}

func TestAttrProjectionRequiresCarrier(t *testing.T) {
	owner := &Node{ZTID: uuid.New(), Kind: bareKind(), Name: "opaque", Config: Map{}}
	user := &Node{
		ZTID:   uuid.New(),
		Kind:   fakeKind(),
		Name:   "needy",
		Config: Map{"val": owner.Attr("arn")},
	}

	g := NewGraph()
	require.NoError(t, g.AddAll(user, owner))

	_, err := g.Complete(context.Background(), RunContext{})
	var attrErr *AttributeError
	require.ErrorAs(t, err, &attrErr)
	assert.Equal(t, "test:Bare", attrErr.Kind)
	assert.Equal(t, "arn", attrErr.Name)
}

func TestActionNodeRunsOnceAndIsNeverTagged(t *testing.T) {
	dep := &Node{ZTID: uuid.New(), Kind: fakeKind(), Name: "dep", Config: Map{}}

	var calls int
	var gotArgs []any
	var gotKW map[string]any
	action := &ActionNode{
		ZTID:     uuid.New(),
		Name:     "announce",
		Args:     []Value{Ref{Node: dep}, V("hello")},
		Keywords: map[string]Value{"count": V(2), "arn": dep.Attr("arn")},
		Run: func(ctx context.Context, args []any, kw map[string]any) error {
			calls++
			gotArgs = args
			gotKW = kw
			return nil
		},
	}

	g := NewGraph()
	require.NoError(t, g.AddAll(action, dep))

	coll, err := g.Complete(context.Background(), RunContext{})
	require.NoError(t, err)

	res := mustGet(t, coll, action.ZTID)
	_, tagged := res.(Tagged)
	assert.False(t, tagged, "actions carry no type tag")
	assert.True(t, coll.Managed(action.ZTID))

	require.NoError(t, res.Put(context.Background(), false))
	require.NoError(t, res.Put(context.Background(), false))
	assert.Equal(t, 1, calls, "second put is a no-op without force")

	require.Len(t, gotArgs, 2)
	assert.Same(t, mustGet(t, coll, dep.ZTID), gotArgs[0])
	assert.Equal(t, "hello", gotArgs[1])
	assert.Equal(t, 2, gotKW["count"])
	assert.Equal(t, "arn:fake:dep", gotKW["arn"], "projections in keywords resolve too")

	require.NoError(t, res.Put(context.Background(), true))
	assert.Equal(t, 2, calls, "force reruns the action")
}

func TestExtraRegionOverridesRunContext(t *testing.T) {
	n := &Node{
		ZTID:   uuid.New(),
		Kind:   fakeKind(),
		Name:   "pinned",
		Config: Map{},
		Extra:  map[string]any{"region": "eu-west-1"},
	}

	g := NewGraph()
	require.NoError(t, g.Add(n))

	rc := RunContext{AWS: aws.Config{Region: "us-east-1"}, Region: "us-east-1"}
	coll, err := g.Complete(context.Background(), rc)
	require.NoError(t, err)

	res := mustGet(t, coll, n.ZTID).(*fakeResource)
	assert.Equal(t, "eu-west-1", res.in.Region)
	assert.Equal(t, "us-east-1", res.in.AWS.Region, "session itself is untouched")
}

func TestCompleteSingleNodeIsIdempotent(t *testing.T) {
	n := &Node{ZTID: uuid.New(), Kind: fakeKind(), Name: "solo", Config: Map{}}
	coll := NewCollection()

	first, err := Complete(context.Background(), n, coll, RunContext{})
	require.NoError(t, err)
	second, err := Complete(context.Background(), n, coll, RunContext{})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, coll.Len())
}

func mustGet(t *testing.T, coll *Collection, ztid uuid.UUID) Resource {
	t.Helper()
	res, ok := coll.Get(ztid)
	require.True(t, ok, "collection is missing %s", ztid)
	return res
}
