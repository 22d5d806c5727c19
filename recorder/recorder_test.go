package recorder

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsec-io/zdeploy/deploy"
	"github.com/zsec-io/zdeploy/session"
)

// widget is a minimal tagged resource for recorder tests.
type widget struct {
	ztid    uuid.UUID
	name    string
	region  string
	indexID string
	config  map[string]any
}

func (w *widget) ZTID() uuid.UUID { return w.ztid }
func (w *widget) Name() string    { return w.name }
func (w *widget) IndexID() string { return w.indexID }
func (w *widget) Region() string  { return w.region }
func (w *widget) TypeTag() string { return "aws:Test.Widget" }

func (w *widget) Exists(ctx context.Context) (bool, error) { return true, nil }

func (w *widget) Put(ctx context.Context, force bool) error {
	if w.config == nil {
		return fmt.Errorf("widget %s built without config", w.name)
	}
	return nil
}

func (w *widget) Delete(ctx context.Context, notExistsOK bool) error { return nil }

func TestZRNFormat(t *testing.T) {
	id := uuid.MustParse("C08DA06C-9877-41A3-BD41-CFF66D35DFE4")
	got := ZRN("123456789012", "us-east-1", id)
	assert.Equal(t, "zrn:aws:123456789012:us-east-1:c08da06c-9877-41a3-bd41-cff66d35dfe4", got)
}

func TestDescribeTaggedResource(t *testing.T) {
	w := &widget{ztid: uuid.New(), name: "w1", region: "eu-west-1", indexID: "idx-9"}

	rec, ok := Describe(w, "210987654321", "team-infra")
	require.True(t, ok)
	assert.Equal(t, ZRN("210987654321", "eu-west-1", w.ztid), rec.ZRN)
	assert.Equal(t, "210987654321", rec.Account)
	assert.Equal(t, "eu-west-1", rec.Region)
	assert.Equal(t, w.ztid, rec.ZTID)
	assert.Equal(t, "w1", rec.Name)
	assert.Equal(t, "idx-9", rec.IndexID)
	assert.Equal(t, "aws:Test.Widget", rec.Type)
	assert.Equal(t, "team-infra", rec.Manager)
	assert.Equal(t, uuid.Nil, rec.DeploymentID, "deployment id is assigned by the caller")
}

func TestDescribeRefusesUntaggedResource(t *testing.T) {
	n := &deploy.ActionNode{ZTID: uuid.New(), Name: "one-shot", Run: func(ctx context.Context, args []any, kw map[string]any) error { return nil }}
	coll := deploy.NewCollection()
	res, err := deploy.Complete(context.Background(), n, coll, deploy.RunContext{})
	require.NoError(t, err)

	_, ok := Describe(res, "123456789012", "team-infra")
	assert.False(t, ok, "actions are never recorded")
}

type fakeMutator struct {
	puts       []Record
	deletes    []Record
	deleteZRNs []string
}

func (m *fakeMutator) PutRecord(ctx context.Context, rec Record) error {
	m.puts = append(m.puts, rec)
	return nil
}

func (m *fakeMutator) DeleteRecord(ctx context.Context, rec Record) error {
	m.deletes = append(m.deletes, rec)
	return nil
}

func (m *fakeMutator) DeleteRecordByZRN(ctx context.Context, zrn string) error {
	m.deleteZRNs = append(m.deleteZRNs, zrn)
	return nil
}

type fakeQuery struct {
	unmarkedCalls int
	updates       map[string]int
	results       []UnmarkedRecord
}

func (q *fakeQuery) Unmarked(ctx context.Context, scope Scope, deploymentID uuid.UUID, highToLow bool) ([]UnmarkedRecord, error) {
	q.unmarkedCalls++
	return q.results, nil
}

func (q *fakeQuery) UpdateDependencyOrder(ctx context.Context, zrn string, order int) error {
	if q.updates == nil {
		q.updates = make(map[string]int)
	}
	q.updates[zrn] = order
	return nil
}

func TestCompositeRoutesWritesAndReads(t *testing.T) {
	w := &fakeMutator{}
	r := &fakeQuery{}
	c := Composite{Writes: w, Reads: r}
	ctx := context.Background()

	rec := Record{ZRN: "zrn:aws:1:r:x"}
	require.NoError(t, c.PutRecord(ctx, rec))
	require.NoError(t, c.DeleteRecord(ctx, rec))
	require.NoError(t, c.DeleteRecordByZRN(ctx, rec.ZRN))
	_, err := c.Unmarked(ctx, Scope{Manager: "m"}, uuid.New(), false)
	require.NoError(t, err)
	require.NoError(t, c.UpdateDependencyOrder(ctx, rec.ZRN, 7))

	assert.Len(t, w.puts, 1)
	assert.Len(t, w.deletes, 1)
	assert.Equal(t, []string{rec.ZRN}, w.deleteZRNs)
	assert.Equal(t, 1, r.unmarkedCalls)
	assert.Equal(t, 7, r.updates[rec.ZRN])
}

func TestRehydratorBuildsConfiglessResource(t *testing.T) {
	reg := deploy.NewRegistry()
	require.NoError(t, reg.Register(deploy.Kind{
		Tag: "aws:Test.Widget",
		Build: func(ctx context.Context, in deploy.BuildInput) (deploy.Resource, error) {
			return &widget{ztid: in.ZTID, name: in.Name, region: in.Region, indexID: in.IndexID, config: in.Config}, nil
		},
	}))

	rh := &Rehydrator{Registry: reg, Sessions: session.Static{Cfg: aws.Config{}}}
	rec := Record{
		ZRN:     "zrn:aws:123456789012:us-east-1:abc",
		Account: "123456789012",
		Region:  "us-east-1",
		ZTID:    uuid.New(),
		Name:    "w1",
		IndexID: "idx",
		Type:    "aws:Test.Widget",
		Manager: "team-infra",
	}

	res, err := rh.Rehydrate(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, rec.ZTID, res.ZTID())
	assert.Equal(t, "w1", res.Name())
	assert.Error(t, res.Put(context.Background(), false), "rehydrated resources refuse put")
}

func TestRehydratorUnknownType(t *testing.T) {
	rh := &Rehydrator{Registry: deploy.NewRegistry(), Sessions: session.Static{}}
	_, err := rh.Rehydrate(context.Background(), Record{ZRN: "zrn:aws:1:r:x", Type: "aws:Gone.Kind"})
	var unknown *deploy.UnknownKindError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "aws:Gone.Kind", unknown.Tag)
}
