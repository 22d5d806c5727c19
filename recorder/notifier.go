package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// notification is the payload every notifier sends. Deletes carry either
// the full record or, when only the key survives, just the zrn.
type notification struct {
	Action string  `json:"action"`
	Record *Record `json:"record,omitempty"`
	ZRN    string  `json:"zrn,omitempty"`
}

const (
	actionPut    = "put"
	actionDelete = "delete"
)

// LambdaAPI is the slice of the Lambda client notifiers use.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaNotifier hands record mutations to a function that owns the
// actual store. Invocations are asynchronous; an accepted event counts as
// success.
type LambdaNotifier struct {
	api      LambdaAPI
	function string
	logger   *slog.Logger
}

// NewLambdaNotifier wraps a function name or ARN as a record mutator.
func NewLambdaNotifier(api LambdaAPI, function string, logger *slog.Logger) *LambdaNotifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LambdaNotifier{api: api, function: function, logger: logger}
}

var _ Mutator = (*LambdaNotifier)(nil)

func (n *LambdaNotifier) PutRecord(ctx context.Context, rec Record) error {
	return n.send(ctx, notification{Action: actionPut, Record: &rec})
}

func (n *LambdaNotifier) DeleteRecord(ctx context.Context, rec Record) error {
	return n.send(ctx, notification{Action: actionDelete, Record: &rec})
}

func (n *LambdaNotifier) DeleteRecordByZRN(ctx context.Context, zrn string) error {
	return n.send(ctx, notification{Action: actionDelete, ZRN: zrn})
}

func (n *LambdaNotifier) send(ctx context.Context, ev notification) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", ev.Action, err)
	}
	out, err := n.api.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(n.function),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("notify %q: %w", n.function, err)
	}
	if out.FunctionError != nil {
		return fmt.Errorf("notify %q: function error %s", n.function, *out.FunctionError)
	}
	n.logger.Debug("sent record notification", "function", n.function, "action", ev.Action)
	return nil
}

// SNSAPI is the slice of the SNS client notifiers use.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// TopicNotifier publishes record mutations to an SNS topic. Subscribers
// apply them to whatever store they keep; the action rides along as a
// message attribute so they can filter without parsing the body.
type TopicNotifier struct {
	api      SNSAPI
	topicARN string
	logger   *slog.Logger
}

func NewTopicNotifier(api SNSAPI, topicARN string, logger *slog.Logger) *TopicNotifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &TopicNotifier{api: api, topicARN: topicARN, logger: logger}
}

var _ Mutator = (*TopicNotifier)(nil)

func (n *TopicNotifier) PutRecord(ctx context.Context, rec Record) error {
	return n.publish(ctx, notification{Action: actionPut, Record: &rec})
}

func (n *TopicNotifier) DeleteRecord(ctx context.Context, rec Record) error {
	return n.publish(ctx, notification{Action: actionDelete, Record: &rec})
}

func (n *TopicNotifier) DeleteRecordByZRN(ctx context.Context, zrn string) error {
	return n.publish(ctx, notification{Action: actionDelete, ZRN: zrn})
}

func (n *TopicNotifier) publish(ctx context.Context, ev notification) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", ev.Action, err)
	}
	_, err = n.api.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"action": {
				DataType:    aws.String("String"),
				StringValue: aws.String(ev.Action),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish to %q: %w", n.topicARN, err)
	}
	n.logger.Debug("published record notification", "topic", n.topicARN, "action", ev.Action)
	return nil
}
