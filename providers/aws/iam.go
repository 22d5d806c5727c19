package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/google/uuid"

	"github.com/zsec-io/zdeploy/deploy"
)

// RoleConfig is the config surface of aws:IAM.Role. Policies lists
// managed policy ARNs to keep attached.
type RoleConfig struct {
	AssumeRolePolicy string            `mapstructure:"assume_role_policy"`
	Policies         []string          `mapstructure:"policies"`
	Path             string            `mapstructure:"path"`
	Tags             map[string]string `mapstructure:"tags"`
}

type iamAPI interface {
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	DeleteRole(ctx context.Context, params *iam.DeleteRoleInput, optFns ...func(*iam.Options)) (*iam.DeleteRoleOutput, error)
	AttachRolePolicy(ctx context.Context, params *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error)
	DetachRolePolicy(ctx context.Context, params *iam.DetachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error)
	ListAttachedRolePolicies(ctx context.Context, params *iam.ListAttachedRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error)
}

func RoleKind() deploy.Kind {
	return deploy.Kind{Tag: RoleTag, Build: buildRole}
}

func buildRole(ctx context.Context, in deploy.BuildInput) (deploy.Resource, error) {
	return &role{api: iam.NewFromConfig(clientConfig(in)), in: in}, nil
}

type role struct {
	api iamAPI
	in  deploy.BuildInput
	cfg *RoleConfig // decoded on first use
}

func (r *role) config() (*RoleConfig, error) {
	if r.cfg == nil {
		if r.in.Config == nil {
			return nil, fmt.Errorf("role %q was built without config", r.in.Name)
		}
		cfg := &RoleConfig{}
		if err := decodeConfig(RoleTag, r.in, cfg); err != nil {
			return nil, err
		}
		r.cfg = cfg
	}
	return r.cfg, nil
}

func (r *role) ZTID() uuid.UUID { return r.in.ZTID }
func (r *role) Name() string    { return r.in.Name }
func (r *role) IndexID() string { return r.in.IndexID }
func (r *role) Region() string  { return r.in.Region }
func (r *role) TypeTag() string { return RoleTag }

func (r *role) Exists(ctx context.Context) (bool, error) {
	_, err := r.api.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(r.in.Name)})
	if err != nil {
		if isErrorCode(err, "NoSuchEntity") {
			return false, nil
		}
		return false, fmt.Errorf("get role %q: %w", r.in.Name, err)
	}
	return true, nil
}

func (r *role) Put(ctx context.Context, force bool) error {
	cfg, err := r.config()
	if err != nil {
		return err
	}

	input := &iam.CreateRoleInput{
		RoleName:                 aws.String(r.in.Name),
		AssumeRolePolicyDocument: aws.String(cfg.AssumeRolePolicy),
	}
	if cfg.Path != "" {
		input.Path = aws.String(cfg.Path)
	}
	for k, v := range cfg.Tags {
		input.Tags = append(input.Tags, iamtypes.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	if _, err := r.api.CreateRole(ctx, input); err != nil {
		if !isErrorCode(err, "EntityAlreadyExists") {
			return fmt.Errorf("create role %q: %w", r.in.Name, err)
		}
	}

	// Attaching an already attached policy is a no-op.
	for _, policyARN := range cfg.Policies {
		_, err := r.api.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  aws.String(r.in.Name),
			PolicyArn: aws.String(policyARN),
		})
		if err != nil {
			return fmt.Errorf("attach policy %s to role %q: %w", policyARN, r.in.Name, err)
		}
	}
	return nil
}

func (r *role) Delete(ctx context.Context, notExistsOK bool) error {
	_, err := r.api.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(r.in.Name)})
	if err != nil {
		if notExistsOK && isErrorCode(err, "NoSuchEntity") {
			return nil
		}
		return fmt.Errorf("delete role %q: %w", r.in.Name, err)
	}
	return nil
}

// PrepareTeardown detaches every managed policy so DeleteRole does not
// fail with a DeleteConflict.
func (r *role) PrepareTeardown(ctx context.Context) error {
	var marker *string
	for {
		out, err := r.api.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{
			RoleName: aws.String(r.in.Name),
			Marker:   marker,
		})
		if err != nil {
			if isErrorCode(err, "NoSuchEntity") {
				return nil
			}
			return fmt.Errorf("list attached policies of role %q: %w", r.in.Name, err)
		}
		for _, p := range out.AttachedPolicies {
			_, err := r.api.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
				RoleName:  aws.String(r.in.Name),
				PolicyArn: p.PolicyArn,
			})
			if err != nil {
				return fmt.Errorf("detach policy %s from role %q: %w", aws.ToString(p.PolicyArn), r.in.Name, err)
			}
		}
		if !out.IsTruncated {
			return nil
		}
		marker = out.Marker
	}
}

func (r *role) ResourceAttribute(name string) (any, error) {
	switch name {
	case "arn":
		account, err := requireAccount(r.in, "role arn")
		if err != nil {
			return nil, err
		}
		// Reference-mode roles project under the default path.
		path := "/"
		if r.cfg != nil || r.in.Config != nil {
			cfg, err := r.config()
			if err != nil {
				return nil, err
			}
			if cfg.Path != "" {
				path = cfg.Path
			}
		}
		return fmt.Sprintf("arn:aws:iam::%s:role%s%s", account, path, r.in.Name), nil
	case "name":
		return r.in.Name, nil
	default:
		return nil, fmt.Errorf("role has no attribute %q", name)
	}
}
