package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDDB struct {
	tables  map[string]bool
	created []*dynamodb.CreateTableInput
}

func newFakeDDB() *fakeDDB {
	return &fakeDDB{tables: make(map[string]bool)}
}

func (f *fakeDDB) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if !f.tables[aws.ToString(in.TableName)] {
		return nil, apiErr("ResourceNotFoundException")
	}
	return &dynamodb.DescribeTableOutput{
		Table: &dbtypes.TableDescription{TableStatus: dbtypes.TableStatusActive},
	}, nil
}

func (f *fakeDDB) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.created = append(f.created, in)
	f.tables[aws.ToString(in.TableName)] = true
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeDDB) DeleteTable(ctx context.Context, in *dynamodb.DeleteTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	name := aws.ToString(in.TableName)
	if !f.tables[name] {
		return nil, apiErr("ResourceNotFoundException")
	}
	delete(f.tables, name)
	return &dynamodb.DeleteTableOutput{}, nil
}

func TestTableCreate(t *testing.T) {
	ctx := context.Background()
	api := newFakeDDB()
	tb := &table{api: api, in: testInput("records"), cfg: &TableConfig{
		HashKey:      "zrn",
		RangeKey:     "order",
		RangeKeyType: "N",
	}}

	exists, err := tb.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, tb.Put(ctx, false))
	require.Len(t, api.created, 1)
	created := api.created[0]
	assert.Equal(t, dbtypes.BillingModePayPerRequest, created.BillingMode)
	require.Len(t, created.KeySchema, 2)
	assert.Equal(t, "zrn", aws.ToString(created.KeySchema[0].AttributeName))
	assert.Equal(t, dbtypes.KeyTypeHash, created.KeySchema[0].KeyType)
	assert.Equal(t, dbtypes.KeyTypeRange, created.KeySchema[1].KeyType)
	require.Len(t, created.AttributeDefinitions, 2)
	assert.Equal(t, dbtypes.ScalarAttributeTypeS, created.AttributeDefinitions[0].AttributeType)
	assert.Equal(t, dbtypes.ScalarAttributeTypeN, created.AttributeDefinitions[1].AttributeType)

	// Second put sees the table and does not create again.
	require.NoError(t, tb.Put(ctx, false))
	assert.Len(t, api.created, 1)

	require.NoError(t, tb.Delete(ctx, false))
	require.NoError(t, tb.Delete(ctx, true))
	assert.Error(t, tb.Delete(ctx, false))
}

func TestTableConfigNeedsHashKey(t *testing.T) {
	in := testInput("records")
	in.Config = map[string]any{"range_key": "order"}
	tb := &table{api: newFakeDDB(), in: in}

	err := tb.Put(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash_key")
}

func TestTableAttributes(t *testing.T) {
	tb := &table{in: testInput("records")}
	arn, err := tb.ResourceAttribute("arn")
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:dynamodb:eu-west-1:123456789012:table/records", arn)

	name, err := tb.ResourceAttribute("name")
	require.NoError(t, err)
	assert.Equal(t, "records", name)
}

func TestScalarType(t *testing.T) {
	assert.Equal(t, dbtypes.ScalarAttributeTypeS, scalarType(""))
	assert.Equal(t, dbtypes.ScalarAttributeTypeS, scalarType("S"))
	assert.Equal(t, dbtypes.ScalarAttributeTypeN, scalarType("N"))
	assert.Equal(t, dbtypes.ScalarAttributeTypeB, scalarType("B"))
}
