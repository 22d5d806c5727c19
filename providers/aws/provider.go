// Package aws implements deployable resource kinds for AWS services.
// Each kind builds its service client from the session in the build
// input, so the same kind works across accounts and regions, including
// when rehydrating recorded resources for garbage collection.
package aws

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/smithy-go"
	"github.com/mitchellh/mapstructure"

	"github.com/zsec-io/zdeploy/deploy"
)

// Type tags for the kinds this package provides.
const (
	BucketTag   = "aws:S3.Bucket"
	RoleTag     = "aws:IAM.Role"
	QueueTag    = "aws:SQS.Queue"
	TopicTag    = "aws:SNS.Topic"
	FunctionTag = "aws:Lambda.Function"
	TableTag    = "aws:DynamoDB.Table"
)

// Kinds returns every kind this package provides, ready for a registry.
func Kinds() []deploy.Kind {
	return []deploy.Kind{
		BucketKind(),
		RoleKind(),
		QueueKind(),
		TopicKind(),
		FunctionKind(),
		TableKind(),
	}
}

// clientConfig rebinds the build's session to its effective region.
func clientConfig(in deploy.BuildInput) aws.Config {
	cfg := in.AWS.Copy()
	if in.Region != "" {
		cfg.Region = in.Region
	}
	return cfg
}

// isErrorCode reports whether err is an API error carrying one of the
// given codes.
func isErrorCode(err error, codes ...string) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	for _, code := range codes {
		if ae.ErrorCode() == code {
			return true
		}
	}
	return false
}

// decodeConfig maps a raw node config onto a kind's typed config.
// Kinds call it when they act, never at build time: attribute
// projections land in the raw config only after the whole graph has
// completed.
func decodeConfig(tag string, in deploy.BuildInput, out any) error {
	if err := mapstructure.Decode(in.Config, out); err != nil {
		return fmt.Errorf("decode %s config: %w", tag, err)
	}
	return nil
}

// requireAccount guards ARN derivations that need the account number.
func requireAccount(in deploy.BuildInput, what string) (string, error) {
	if in.Account == "" {
		return "", fmt.Errorf("%s needs the account number, which this run did not resolve", what)
	}
	return in.Account, nil
}

// requireRegion guards derivations that need an effective region.
func requireRegion(in deploy.BuildInput, what string) (string, error) {
	if in.Region == "" {
		return "", fmt.Errorf("%s needs a region, and neither the node nor the run set one", what)
	}
	return in.Region, nil
}
