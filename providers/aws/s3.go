package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/zsec-io/zdeploy/deploy"
)

// BucketConfig is the config surface of aws:S3.Bucket. The bucket name
// is the node name.
type BucketConfig struct {
	Versioning bool              `mapstructure:"versioning"`
	Tags       map[string]string `mapstructure:"tags"`
}

type s3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
	PutBucketVersioning(ctx context.Context, params *s3.PutBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error)
	PutBucketTagging(ctx context.Context, params *s3.PutBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.PutBucketTaggingOutput, error)
}

func BucketKind() deploy.Kind {
	return deploy.Kind{Tag: BucketTag, Build: buildBucket}
}

func buildBucket(ctx context.Context, in deploy.BuildInput) (deploy.Resource, error) {
	return &bucket{api: s3.NewFromConfig(clientConfig(in)), in: in}, nil
}

type bucket struct {
	api s3API
	in  deploy.BuildInput
	cfg *BucketConfig // decoded on first use
}

func (b *bucket) config() (*BucketConfig, error) {
	if b.cfg == nil {
		if b.in.Config == nil {
			return nil, fmt.Errorf("bucket %q was built without config", b.in.Name)
		}
		cfg := &BucketConfig{}
		if err := decodeConfig(BucketTag, b.in, cfg); err != nil {
			return nil, err
		}
		b.cfg = cfg
	}
	return b.cfg, nil
}

func (b *bucket) ZTID() uuid.UUID { return b.in.ZTID }
func (b *bucket) Name() string    { return b.in.Name }
func (b *bucket) IndexID() string { return b.in.IndexID }
func (b *bucket) Region() string  { return b.in.Region }
func (b *bucket) TypeTag() string { return BucketTag }

func (b *bucket) Exists(ctx context.Context) (bool, error) {
	_, err := b.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.in.Name)})
	if err != nil {
		if isErrorCode(err, "NotFound", "NoSuchBucket") {
			return false, nil
		}
		return false, fmt.Errorf("head bucket %q: %w", b.in.Name, err)
	}
	return true, nil
}

func (b *bucket) Put(ctx context.Context, force bool) error {
	cfg, err := b.config()
	if err != nil {
		return err
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(b.in.Name)}
	if b.in.Region != "" && b.in.Region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(b.in.Region),
		}
	}
	if _, err := b.api.CreateBucket(ctx, input); err != nil {
		// Re-creating a bucket we already own is fine.
		if !isErrorCode(err, "BucketAlreadyOwnedByYou") {
			return fmt.Errorf("create bucket %q: %w", b.in.Name, err)
		}
	}

	if cfg.Versioning {
		_, err := b.api.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
			Bucket: aws.String(b.in.Name),
			VersioningConfiguration: &s3types.VersioningConfiguration{
				Status: s3types.BucketVersioningStatusEnabled,
			},
		})
		if err != nil {
			return fmt.Errorf("enable versioning on bucket %q: %w", b.in.Name, err)
		}
	}

	if len(cfg.Tags) > 0 {
		tags := make([]s3types.Tag, 0, len(cfg.Tags))
		for k, v := range cfg.Tags {
			tags = append(tags, s3types.Tag{Key: aws.String(k), Value: aws.String(v)})
		}
		_, err := b.api.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
			Bucket:  aws.String(b.in.Name),
			Tagging: &s3types.Tagging{TagSet: tags},
		})
		if err != nil {
			return fmt.Errorf("tag bucket %q: %w", b.in.Name, err)
		}
	}
	return nil
}

func (b *bucket) Delete(ctx context.Context, notExistsOK bool) error {
	_, err := b.api.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(b.in.Name)})
	if err != nil {
		if notExistsOK && isErrorCode(err, "NoSuchBucket", "NotFound") {
			return nil
		}
		return fmt.Errorf("delete bucket %q: %w", b.in.Name, err)
	}
	return nil
}

func (b *bucket) ResourceAttribute(name string) (any, error) {
	switch name {
	case "arn":
		return fmt.Sprintf("arn:aws:s3:::%s", b.in.Name), nil
	case "name":
		return b.in.Name, nil
	default:
		return nil, fmt.Errorf("bucket has no attribute %q", name)
	}
}
