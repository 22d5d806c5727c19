// Package session resolves AWS sessions for account numbers. Deployments
// and record rehydration both need a session per account; the Source
// interface keeps the mapping strategy out of the engine.
package session

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Source yields a session scoped to one account.
type Source interface {
	Config(ctx context.Context, account string) (aws.Config, error)
}

// ProfileSource maps each account number to the shared-config profile of
// the same name. An empty account loads the ambient default chain.
type ProfileSource struct {
	Region string
}

func (s ProfileSource) Config(ctx context.Context, account string) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if account != "" {
		opts = append(opts, config.WithSharedConfigProfile(account))
	}
	if s.Region != "" {
		opts = append(opts, config.WithRegion(s.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config for account %q: %w", account, err)
	}
	return cfg, nil
}

// AssumeRoleSource reaches target accounts by assuming one fixed role
// name in each of them from a base session.
type AssumeRoleSource struct {
	Base        aws.Config
	RoleName    string
	SessionName string
	ExternalID  string
}

func (s AssumeRoleSource) Config(ctx context.Context, account string) (aws.Config, error) {
	if account == "" {
		return aws.Config{}, fmt.Errorf("assume role: account number required")
	}
	if s.RoleName == "" {
		return aws.Config{}, fmt.Errorf("assume role: role name required")
	}
	roleARN := fmt.Sprintf("arn:aws:iam::%s:role/%s", account, s.RoleName)
	provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(s.Base), roleARN, func(o *stscreds.AssumeRoleOptions) {
		if s.SessionName != "" {
			o.RoleSessionName = s.SessionName
		}
		if s.ExternalID != "" {
			o.ExternalID = aws.String(s.ExternalID)
		}
	})

	cfg := s.Base.Copy()
	cfg.Credentials = aws.NewCredentialsCache(provider)
	return cfg, nil
}

// Static serves the same session for every account. Single-account
// deployments and tests use it.
type Static struct {
	Cfg aws.Config
}

func (s Static) Config(ctx context.Context, account string) (aws.Config, error) {
	return s.Cfg, nil
}

type stsAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// AccountID returns the account number the session's credentials belong
// to.
func AccountID(ctx context.Context, cfg aws.Config) (string, error) {
	return accountID(ctx, sts.NewFromConfig(cfg))
}

func accountID(ctx context.Context, api stsAPI) (string, error) {
	out, err := api.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("resolve caller identity: %w", err)
	}
	return aws.ToString(out.Account), nil
}
