package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"github.com/zsec-io/zdeploy/deploy"
)

// QueueConfig is the config surface of aws:SQS.Queue. Attributes are
// passed straight to CreateQueue.
type QueueConfig struct {
	Attributes map[string]string `mapstructure:"attributes"`
}

type sqsAPI interface {
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	DeleteQueue(ctx context.Context, params *sqs.DeleteQueueInput, optFns ...func(*sqs.Options)) (*sqs.DeleteQueueOutput, error)
}

func QueueKind() deploy.Kind {
	return deploy.Kind{Tag: QueueTag, Build: buildQueue}
}

func buildQueue(ctx context.Context, in deploy.BuildInput) (deploy.Resource, error) {
	return &queue{api: sqs.NewFromConfig(clientConfig(in)), in: in}, nil
}

type queue struct {
	api sqsAPI
	in  deploy.BuildInput
	cfg *QueueConfig // decoded on first use
}

func (q *queue) config() (*QueueConfig, error) {
	if q.cfg == nil {
		if q.in.Config == nil {
			return nil, fmt.Errorf("queue %q was built without config", q.in.Name)
		}
		cfg := &QueueConfig{}
		if err := decodeConfig(QueueTag, q.in, cfg); err != nil {
			return nil, err
		}
		q.cfg = cfg
	}
	return q.cfg, nil
}

func (q *queue) ZTID() uuid.UUID { return q.in.ZTID }
func (q *queue) Name() string    { return q.in.Name }
func (q *queue) IndexID() string { return q.in.IndexID }
func (q *queue) Region() string  { return q.in.Region }
func (q *queue) TypeTag() string { return QueueTag }

func (q *queue) url(ctx context.Context) (string, bool, error) {
	out, err := q.api.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(q.in.Name)})
	if err != nil {
		if isErrorCode(err, "QueueDoesNotExist", "AWS.SimpleQueueService.NonExistentQueue") {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get url of queue %q: %w", q.in.Name, err)
	}
	return aws.ToString(out.QueueUrl), true, nil
}

func (q *queue) Exists(ctx context.Context) (bool, error) {
	_, ok, err := q.url(ctx)
	return ok, err
}

func (q *queue) Put(ctx context.Context, force bool) error {
	cfg, err := q.config()
	if err != nil {
		return err
	}
	input := &sqs.CreateQueueInput{QueueName: aws.String(q.in.Name)}
	if len(cfg.Attributes) > 0 {
		input.Attributes = cfg.Attributes
	}
	// CreateQueue is idempotent as long as the attributes match.
	if _, err := q.api.CreateQueue(ctx, input); err != nil {
		return fmt.Errorf("create queue %q: %w", q.in.Name, err)
	}
	return nil
}

func (q *queue) Delete(ctx context.Context, notExistsOK bool) error {
	url, ok, err := q.url(ctx)
	if err != nil {
		return err
	}
	if !ok {
		if notExistsOK {
			return nil
		}
		return fmt.Errorf("queue %q does not exist", q.in.Name)
	}
	if _, err := q.api.DeleteQueue(ctx, &sqs.DeleteQueueInput{QueueUrl: aws.String(url)}); err != nil {
		return fmt.Errorf("delete queue %q: %w", q.in.Name, err)
	}
	return nil
}

func (q *queue) ResourceAttribute(name string) (any, error) {
	switch name {
	case "url":
		region, err := requireRegion(q.in, "queue url")
		if err != nil {
			return nil, err
		}
		account, err := requireAccount(q.in, "queue url")
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("https://sqs.%s.amazonaws.com/%s/%s", region, account, q.in.Name), nil
	case "arn":
		region, err := requireRegion(q.in, "queue arn")
		if err != nil {
			return nil, err
		}
		account, err := requireAccount(q.in, "queue arn")
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("arn:aws:sqs:%s:%s:%s", region, account, q.in.Name), nil
	case "name":
		return q.in.Name, nil
	default:
		return nil, fmt.Errorf("queue has no attribute %q", name)
	}
}

// TopicConfig is the config surface of aws:SNS.Topic.
type TopicConfig struct {
	DisplayName string `mapstructure:"display_name"`
}

type snsAPI interface {
	CreateTopic(ctx context.Context, params *sns.CreateTopicInput, optFns ...func(*sns.Options)) (*sns.CreateTopicOutput, error)
	DeleteTopic(ctx context.Context, params *sns.DeleteTopicInput, optFns ...func(*sns.Options)) (*sns.DeleteTopicOutput, error)
	GetTopicAttributes(ctx context.Context, params *sns.GetTopicAttributesInput, optFns ...func(*sns.Options)) (*sns.GetTopicAttributesOutput, error)
}

func TopicKind() deploy.Kind {
	return deploy.Kind{Tag: TopicTag, Build: buildTopic}
}

func buildTopic(ctx context.Context, in deploy.BuildInput) (deploy.Resource, error) {
	return &topic{api: sns.NewFromConfig(clientConfig(in)), in: in}, nil
}

type topic struct {
	api snsAPI
	in  deploy.BuildInput
	cfg *TopicConfig // decoded on first use
}

func (t *topic) config() (*TopicConfig, error) {
	if t.cfg == nil {
		if t.in.Config == nil {
			return nil, fmt.Errorf("topic %q was built without config", t.in.Name)
		}
		cfg := &TopicConfig{}
		if err := decodeConfig(TopicTag, t.in, cfg); err != nil {
			return nil, err
		}
		t.cfg = cfg
	}
	return t.cfg, nil
}

func (t *topic) ZTID() uuid.UUID { return t.in.ZTID }
func (t *topic) Name() string    { return t.in.Name }
func (t *topic) IndexID() string { return t.in.IndexID }
func (t *topic) Region() string  { return t.in.Region }
func (t *topic) TypeTag() string { return TopicTag }

// arn derives the topic ARN; SNS has no lookup-by-name call.
func (t *topic) arn() (string, error) {
	region, err := requireRegion(t.in, "topic arn")
	if err != nil {
		return "", err
	}
	account, err := requireAccount(t.in, "topic arn")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("arn:aws:sns:%s:%s:%s", region, account, t.in.Name), nil
}

func (t *topic) Exists(ctx context.Context) (bool, error) {
	arn, err := t.arn()
	if err != nil {
		return false, err
	}
	_, err = t.api.GetTopicAttributes(ctx, &sns.GetTopicAttributesInput{TopicArn: aws.String(arn)})
	if err != nil {
		if isErrorCode(err, "NotFound", "NotFoundException") {
			return false, nil
		}
		return false, fmt.Errorf("get attributes of topic %q: %w", t.in.Name, err)
	}
	return true, nil
}

func (t *topic) Put(ctx context.Context, force bool) error {
	cfg, err := t.config()
	if err != nil {
		return err
	}
	input := &sns.CreateTopicInput{Name: aws.String(t.in.Name)}
	if cfg.DisplayName != "" {
		input.Attributes = map[string]string{"DisplayName": cfg.DisplayName}
	}
	// CreateTopic returns the existing topic when attributes match.
	if _, err := t.api.CreateTopic(ctx, input); err != nil {
		return fmt.Errorf("create topic %q: %w", t.in.Name, err)
	}
	return nil
}

func (t *topic) Delete(ctx context.Context, notExistsOK bool) error {
	arn, err := t.arn()
	if err != nil {
		return err
	}
	if _, err := t.api.DeleteTopic(ctx, &sns.DeleteTopicInput{TopicArn: aws.String(arn)}); err != nil {
		if notExistsOK && isErrorCode(err, "NotFound", "NotFoundException") {
			return nil
		}
		return fmt.Errorf("delete topic %q: %w", t.in.Name, err)
	}
	return nil
}

func (t *topic) ResourceAttribute(name string) (any, error) {
	switch name {
	case "arn":
		return t.arn()
	case "name":
		return t.in.Name, nil
	default:
		return nil, fmt.Errorf("topic has no attribute %q", name)
	}
}
