package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/zsec-io/zdeploy/deploy"
)

const (
	// How long to keep polling a freshly created table before giving up.
	tableActiveMaxRetries    = 30
	tableActiveSleepDuration = 10 * time.Second
)

// DynamoAPI is the slice of the DynamoDB client the table backend uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// RehydrateFunc rebuilds a deletable resource from a record.
type RehydrateFunc func(ctx context.Context, rec Record) (deploy.Resource, error)

// Table is the DynamoDB recorder backend. One item per record, zrn as
// the hash key.
type Table struct {
	api       DynamoAPI
	name      string
	rehydrate RehydrateFunc
	logger    *slog.Logger
}

// NewTable wraps a DynamoDB table as a recorder. rehydrate may be nil for
// callers that only write or only preview; Unmarked then returns records
// with nil resources.
func NewTable(api DynamoAPI, name string, rehydrate RehydrateFunc, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Table{api: api, name: name, rehydrate: rehydrate, logger: logger}
}

var _ Recorder = (*Table)(nil)

func (t *Table) PutRecord(ctx context.Context, rec Record) error {
	item := map[string]dbtypes.AttributeValue{
		"zrn":              &dbtypes.AttributeValueMemberS{Value: rec.ZRN},
		"account":          &dbtypes.AttributeValueMemberS{Value: rec.Account},
		"region":           &dbtypes.AttributeValueMemberS{Value: rec.Region},
		"ztid":             &dbtypes.AttributeValueMemberS{Value: rec.ZTID.String()},
		"name":             &dbtypes.AttributeValueMemberS{Value: rec.Name},
		"type":             &dbtypes.AttributeValueMemberS{Value: rec.Type},
		"manager":          &dbtypes.AttributeValueMemberS{Value: rec.Manager},
		"deployment_id":    &dbtypes.AttributeValueMemberS{Value: rec.DeploymentID.String()},
		"dependency_order": &dbtypes.AttributeValueMemberN{Value: strconv.Itoa(rec.DependencyOrder)},
	}
	if rec.IndexID != "" {
		item["index_id"] = &dbtypes.AttributeValueMemberS{Value: rec.IndexID}
	}

	_, err := t.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.name),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put record %s: %w", rec.ZRN, err)
	}
	t.logger.Debug("recorded resource", "zrn", rec.ZRN, "deployment_id", rec.DeploymentID)
	return nil
}

func (t *Table) DeleteRecord(ctx context.Context, rec Record) error {
	return t.DeleteRecordByZRN(ctx, rec.ZRN)
}

func (t *Table) DeleteRecordByZRN(ctx context.Context, zrn string) error {
	_, err := t.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(t.name),
		Key: map[string]dbtypes.AttributeValue{
			"zrn": &dbtypes.AttributeValueMemberS{Value: zrn},
		},
	})
	if err != nil {
		return fmt.Errorf("delete record %s: %w", zrn, err)
	}
	t.logger.Debug("deleted record", "zrn", zrn)
	return nil
}

func (t *Table) UpdateDependencyOrder(ctx context.Context, zrn string, order int) error {
	_, err := t.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(t.name),
		Key: map[string]dbtypes.AttributeValue{
			"zrn": &dbtypes.AttributeValueMemberS{Value: zrn},
		},
		UpdateExpression:         aws.String("SET #o = :o"),
		ExpressionAttributeNames: map[string]string{"#o": "dependency_order"},
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":o": &dbtypes.AttributeValueMemberN{Value: strconv.Itoa(order)},
		},
	})
	if err != nil {
		return fmt.Errorf("update dependency order for %s: %w", zrn, err)
	}
	return nil
}

func (t *Table) Unmarked(ctx context.Context, scope Scope, deploymentID uuid.UUID, highToLow bool) ([]UnmarkedRecord, error) {
	filter := "#manager = :manager AND #deployment_id <> :deployment_id"
	names := map[string]string{
		"#manager":       "manager",
		"#deployment_id": "deployment_id",
	}
	values := map[string]dbtypes.AttributeValue{
		":manager":       &dbtypes.AttributeValueMemberS{Value: scope.Manager},
		":deployment_id": &dbtypes.AttributeValueMemberS{Value: deploymentID.String()},
	}
	if scope.Account != "" {
		filter += " AND #account = :account"
		names["#account"] = "account"
		values[":account"] = &dbtypes.AttributeValueMemberS{Value: scope.Account}
	}

	out, err := t.api.Scan(ctx, &dynamodb.ScanInput{
		TableName:                 aws.String(t.name),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return nil, fmt.Errorf("scan table %q: %w", t.name, err)
	}
	if len(out.LastEvaluatedKey) > 0 {
		return nil, &TruncatedScanError{Table: t.name}
	}

	recs := make([]Record, 0, len(out.Items))
	for _, item := range out.Items {
		rec, err := recordFromItem(item)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", t.name, err)
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].DependencyOrder != recs[j].DependencyOrder {
			if highToLow {
				return recs[i].DependencyOrder > recs[j].DependencyOrder
			}
			return recs[i].DependencyOrder < recs[j].DependencyOrder
		}
		return recs[i].ZRN < recs[j].ZRN
	})

	unmarked := make([]UnmarkedRecord, 0, len(recs))
	for _, rec := range recs {
		var res deploy.Resource
		if t.rehydrate != nil {
			res, err = t.rehydrate(ctx, rec)
			if err != nil {
				return nil, fmt.Errorf("rehydrate %s: %w", rec.ZRN, err)
			}
		}
		unmarked = append(unmarked, UnmarkedRecord{Record: rec, Resource: res})
	}
	return unmarked, nil
}

// EnsureTable creates the records table if it does not exist and waits
// for it to become active. Losing a creation race to another writer is
// fine; both end up waiting on the same table.
func (t *Table) EnsureTable(ctx context.Context) error {
	exists, err := t.tableExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	t.logger.Info("creating records table", "table", t.name)
	_, err = t.api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(t.name),
		BillingMode: dbtypes.BillingModePayPerRequest,
		AttributeDefinitions: []dbtypes.AttributeDefinition{
			{AttributeName: aws.String("zrn"), AttributeType: dbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []dbtypes.KeySchemaElement{
			{AttributeName: aws.String("zrn"), KeyType: dbtypes.KeyTypeHash},
		},
	})
	if err != nil {
		var inUse *dbtypes.ResourceInUseException
		if !errors.As(err, &inUse) {
			return fmt.Errorf("create table %q: %w", t.name, err)
		}
	}
	return t.waitForTableActive(ctx)
}

func (t *Table) tableExists(ctx context.Context) (bool, error) {
	_, err := t.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.name)})
	if err == nil {
		return true, nil
	}
	var notFound *dbtypes.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("describe table %q: %w", t.name, err)
}

func (t *Table) waitForTableActive(ctx context.Context) error {
	for i := 0; i < tableActiveMaxRetries; i++ {
		out, err := t.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.name)})
		if err != nil {
			var notFound *dbtypes.ResourceNotFoundException
			if !errors.As(err, &notFound) {
				return fmt.Errorf("describe table %q: %w", t.name, err)
			}
		} else if out.Table != nil && out.Table.TableStatus == dbtypes.TableStatusActive {
			return nil
		}

		t.logger.Debug("waiting for records table to become active", "table", t.name)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(tableActiveSleepDuration):
		}
	}
	return fmt.Errorf("table %q still not active after %d checks", t.name, tableActiveMaxRetries)
}

func recordFromItem(item map[string]dbtypes.AttributeValue) (Record, error) {
	zrn := itemString(item, "zrn")
	if zrn == "" {
		return Record{}, fmt.Errorf("item has no zrn key")
	}

	ztid, err := uuid.Parse(itemString(item, "ztid"))
	if err != nil {
		return Record{}, fmt.Errorf("record %s: bad ztid: %w", zrn, err)
	}
	deploymentID, err := uuid.Parse(itemString(item, "deployment_id"))
	if err != nil {
		return Record{}, fmt.Errorf("record %s: bad deployment_id: %w", zrn, err)
	}

	order := 0
	if n, ok := item["dependency_order"].(*dbtypes.AttributeValueMemberN); ok {
		order, err = strconv.Atoi(n.Value)
		if err != nil {
			return Record{}, fmt.Errorf("record %s: bad dependency_order: %w", zrn, err)
		}
	}

	return Record{
		ZRN:             zrn,
		Account:         itemString(item, "account"),
		Region:          itemString(item, "region"),
		ZTID:            ztid,
		Name:            itemString(item, "name"),
		IndexID:         itemString(item, "index_id"),
		Type:            itemString(item, "type"),
		Manager:         itemString(item, "manager"),
		DeploymentID:    deploymentID,
		DependencyOrder: order,
	}, nil
}

func itemString(item map[string]dbtypes.AttributeValue, key string) string {
	if v, ok := item[key].(*dbtypes.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
