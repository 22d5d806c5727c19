package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/zsec-io/zdeploy/deploy"
)

const (
	tableActiveChecks       = 30
	tableActivePollInterval = 10 * time.Second
)

// TableConfig is the config surface of aws:DynamoDB.Table. Billing is
// always on-demand; key types default to S.
type TableConfig struct {
	HashKey      string `mapstructure:"hash_key"`
	HashKeyType  string `mapstructure:"hash_key_type"`
	RangeKey     string `mapstructure:"range_key"`
	RangeKeyType string `mapstructure:"range_key_type"`
}

type ddbAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
}

func TableKind() deploy.Kind {
	return deploy.Kind{Tag: TableTag, Build: buildTable}
}

func buildTable(ctx context.Context, in deploy.BuildInput) (deploy.Resource, error) {
	return &table{api: dynamodb.NewFromConfig(clientConfig(in)), in: in}, nil
}

type table struct {
	api ddbAPI
	in  deploy.BuildInput
	cfg *TableConfig // decoded on first use
}

func (t *table) config() (*TableConfig, error) {
	if t.cfg == nil {
		if t.in.Config == nil {
			return nil, fmt.Errorf("table %q was built without config", t.in.Name)
		}
		cfg := &TableConfig{}
		if err := decodeConfig(TableTag, t.in, cfg); err != nil {
			return nil, err
		}
		if cfg.HashKey == "" {
			return nil, fmt.Errorf("table %q config needs a hash_key", t.in.Name)
		}
		t.cfg = cfg
	}
	return t.cfg, nil
}

func (t *table) ZTID() uuid.UUID { return t.in.ZTID }
func (t *table) Name() string    { return t.in.Name }
func (t *table) IndexID() string { return t.in.IndexID }
func (t *table) Region() string  { return t.in.Region }
func (t *table) TypeTag() string { return TableTag }

func (t *table) Exists(ctx context.Context) (bool, error) {
	_, err := t.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.in.Name)})
	if err != nil {
		if isErrorCode(err, "ResourceNotFoundException") {
			return false, nil
		}
		return false, fmt.Errorf("describe table %q: %w", t.in.Name, err)
	}
	return true, nil
}

func (t *table) Put(ctx context.Context, force bool) error {
	cfg, err := t.config()
	if err != nil {
		return err
	}

	exists, err := t.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	attrs := []dbtypes.AttributeDefinition{{
		AttributeName: aws.String(cfg.HashKey),
		AttributeType: scalarType(cfg.HashKeyType),
	}}
	schema := []dbtypes.KeySchemaElement{{
		AttributeName: aws.String(cfg.HashKey),
		KeyType:       dbtypes.KeyTypeHash,
	}}
	if cfg.RangeKey != "" {
		attrs = append(attrs, dbtypes.AttributeDefinition{
			AttributeName: aws.String(cfg.RangeKey),
			AttributeType: scalarType(cfg.RangeKeyType),
		})
		schema = append(schema, dbtypes.KeySchemaElement{
			AttributeName: aws.String(cfg.RangeKey),
			KeyType:       dbtypes.KeyTypeRange,
		})
	}

	_, err = t.api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            aws.String(t.in.Name),
		BillingMode:          dbtypes.BillingModePayPerRequest,
		AttributeDefinitions: attrs,
		KeySchema:            schema,
	})
	if err != nil && !isErrorCode(err, "ResourceInUseException") {
		return fmt.Errorf("create table %q: %w", t.in.Name, err)
	}
	return t.waitActive(ctx)
}

func (t *table) waitActive(ctx context.Context) error {
	for i := 0; i < tableActiveChecks; i++ {
		out, err := t.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.in.Name)})
		if err != nil {
			if !isErrorCode(err, "ResourceNotFoundException") {
				return fmt.Errorf("describe table %q: %w", t.in.Name, err)
			}
		} else if out.Table != nil && out.Table.TableStatus == dbtypes.TableStatusActive {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(tableActivePollInterval):
		}
	}
	return fmt.Errorf("table %q still not active after %d checks", t.in.Name, tableActiveChecks)
}

func (t *table) Delete(ctx context.Context, notExistsOK bool) error {
	_, err := t.api.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(t.in.Name)})
	if err != nil {
		if notExistsOK && isErrorCode(err, "ResourceNotFoundException") {
			return nil
		}
		return fmt.Errorf("delete table %q: %w", t.in.Name, err)
	}
	return nil
}

func (t *table) ResourceAttribute(name string) (any, error) {
	switch name {
	case "arn":
		region, err := requireRegion(t.in, "table arn")
		if err != nil {
			return nil, err
		}
		account, err := requireAccount(t.in, "table arn")
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("arn:aws:dynamodb:%s:%s:table/%s", region, account, t.in.Name), nil
	case "name":
		return t.in.Name, nil
	default:
		return nil, fmt.Errorf("table has no attribute %q", name)
	}
}

func scalarType(s string) dbtypes.ScalarAttributeType {
	switch s {
	case "N":
		return dbtypes.ScalarAttributeTypeN
	case "B":
		return dbtypes.ScalarAttributeTypeB
	default:
		return dbtypes.ScalarAttributeTypeS
	}
}
