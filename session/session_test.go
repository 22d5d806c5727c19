package session

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssumeRoleSourceSwapsCredentials(t *testing.T) {
	base := aws.Config{Region: "us-west-2"}
	src := AssumeRoleSource{Base: base, RoleName: "deployer"}

	cfg, err := src.Config(context.Background(), "123456789012")
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", cfg.Region, "region follows the base session")
	assert.NotNil(t, cfg.Credentials)
	assert.NotEqual(t, base.Credentials, cfg.Credentials)
}

func TestAssumeRoleSourceRequiresAccount(t *testing.T) {
	src := AssumeRoleSource{RoleName: "deployer"}
	_, err := src.Config(context.Background(), "")
	assert.Error(t, err)
}

func TestStaticIgnoresAccount(t *testing.T) {
	cfg := aws.Config{Region: "eu-central-1"}
	src := Static{Cfg: cfg}

	got, err := src.Config(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "eu-central-1", got.Region)
}

type fakeSTS struct {
	account string
	err     error
}

func (f *fakeSTS) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sts.GetCallerIdentityOutput{Account: aws.String(f.account)}, nil
}

func TestAccountID(t *testing.T) {
	got, err := accountID(context.Background(), &fakeSTS{account: "123456789012"})
	require.NoError(t, err)
	assert.Equal(t, "123456789012", got)

	_, err = accountID(context.Background(), &fakeSTS{err: errors.New("expired token")})
	assert.ErrorContains(t, err, "expired token")
}
