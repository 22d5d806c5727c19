package aws

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/google/uuid"

	"github.com/zsec-io/zdeploy/deploy"
)

// FunctionConfig is the config surface of aws:Lambda.Function. Role is
// an execution role ARN, usually an attribute projection of an
// aws:IAM.Role node. Zip carries the deployment package inline.
type FunctionConfig struct {
	Runtime     string            `mapstructure:"runtime"`
	Handler     string            `mapstructure:"handler"`
	Role        string            `mapstructure:"role"`
	Timeout     int32             `mapstructure:"timeout"`
	MemorySize  int32             `mapstructure:"memory_size"`
	Environment map[string]string `mapstructure:"environment"`
	Zip         []byte            `mapstructure:"zip"`
	Layers      []string          `mapstructure:"layers"`
}

type lambdaAPI interface {
	GetFunction(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error)
	CreateFunction(ctx context.Context, params *lambda.CreateFunctionInput, optFns ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error)
	UpdateFunctionCode(ctx context.Context, params *lambda.UpdateFunctionCodeInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionCodeOutput, error)
	DeleteFunction(ctx context.Context, params *lambda.DeleteFunctionInput, optFns ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error)
}

func FunctionKind() deploy.Kind {
	return deploy.Kind{Tag: FunctionTag, Build: buildFunction}
}

func buildFunction(ctx context.Context, in deploy.BuildInput) (deploy.Resource, error) {
	return &function{api: lambda.NewFromConfig(clientConfig(in)), in: in}, nil
}

type function struct {
	api lambdaAPI
	in  deploy.BuildInput
	cfg *FunctionConfig // decoded on first use
}

func (f *function) config() (*FunctionConfig, error) {
	if f.cfg == nil {
		if f.in.Config == nil {
			return nil, fmt.Errorf("function %q was built without config", f.in.Name)
		}
		cfg := &FunctionConfig{}
		if err := decodeConfig(FunctionTag, f.in, cfg); err != nil {
			return nil, err
		}
		f.cfg = cfg
	}
	return f.cfg, nil
}

func (f *function) ZTID() uuid.UUID { return f.in.ZTID }
func (f *function) Name() string    { return f.in.Name }
func (f *function) IndexID() string { return f.in.IndexID }
func (f *function) Region() string  { return f.in.Region }
func (f *function) TypeTag() string { return FunctionTag }

func (f *function) Exists(ctx context.Context) (bool, error) {
	_, err := f.api.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(f.in.Name)})
	if err != nil {
		if isErrorCode(err, "ResourceNotFoundException") {
			return false, nil
		}
		return false, fmt.Errorf("get function %q: %w", f.in.Name, err)
	}
	return true, nil
}

func (f *function) Put(ctx context.Context, force bool) error {
	cfg, err := f.config()
	if err != nil {
		return err
	}

	exists, err := f.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		if len(cfg.Zip) == 0 {
			return nil
		}
		_, err := f.api.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
			FunctionName: aws.String(f.in.Name),
			ZipFile:      cfg.Zip,
		})
		if err != nil {
			return fmt.Errorf("update code of function %q: %w", f.in.Name, err)
		}
		return nil
	}

	input := &lambda.CreateFunctionInput{
		FunctionName: aws.String(f.in.Name),
		Role:         aws.String(cfg.Role),
		Runtime:      lambdatypes.Runtime(cfg.Runtime),
		Handler:      aws.String(cfg.Handler),
		Code:         &lambdatypes.FunctionCode{ZipFile: cfg.Zip},
		Layers:       cfg.Layers,
	}
	if cfg.Timeout > 0 {
		input.Timeout = aws.Int32(cfg.Timeout)
	}
	if cfg.MemorySize > 0 {
		input.MemorySize = aws.Int32(cfg.MemorySize)
	}
	if len(cfg.Environment) > 0 {
		input.Environment = &lambdatypes.Environment{Variables: cfg.Environment}
	}
	if _, err := f.api.CreateFunction(ctx, input); err != nil {
		return fmt.Errorf("create function %q: %w", f.in.Name, err)
	}
	return nil
}

func (f *function) Delete(ctx context.Context, notExistsOK bool) error {
	_, err := f.api.DeleteFunction(ctx, &lambda.DeleteFunctionInput{FunctionName: aws.String(f.in.Name)})
	if err != nil {
		if notExistsOK && isErrorCode(err, "ResourceNotFoundException") {
			return nil
		}
		return fmt.Errorf("delete function %q: %w", f.in.Name, err)
	}
	return nil
}

func (f *function) ResourceAttribute(name string) (any, error) {
	switch name {
	case "arn":
		region, err := requireRegion(f.in, "function arn")
		if err != nil {
			return nil, err
		}
		account, err := requireAccount(f.in, "function arn")
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s", region, account, f.in.Name), nil
	case "name":
		return f.in.Name, nil
	default:
		return nil, fmt.Errorf("function has no attribute %q", name)
	}
}

// ZipBytes builds a single-file zip archive in memory, for handing
// inline code to FunctionConfig.Zip.
func ZipBytes(filename string, contents []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	entry, err := w.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create zip entry %q: %w", filename, err)
	}
	if _, err := entry.Write(contents); err != nil {
		return nil, fmt.Errorf("write zip entry %q: %w", filename, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finish zip: %w", err)
	}
	return buf.Bytes(), nil
}

// LayersAPI is the slice of the Lambda client the layer helper uses.
type LayersAPI interface {
	ListLayerVersions(ctx context.Context, params *lambda.ListLayerVersionsInput, optFns ...func(*lambda.Options)) (*lambda.ListLayerVersionsOutput, error)
}

// LatestLayerVersionARN returns the ARN of the newest version of a
// layer, for wiring into FunctionConfig.Layers.
func LatestLayerVersionARN(ctx context.Context, api LayersAPI, layerName string) (string, error) {
	out, err := api.ListLayerVersions(ctx, &lambda.ListLayerVersionsInput{LayerName: aws.String(layerName)})
	if err != nil {
		return "", fmt.Errorf("list versions of layer %q: %w", layerName, err)
	}
	var best *lambdatypes.LayerVersionsListItem
	for i := range out.LayerVersions {
		v := &out.LayerVersions[i]
		if best == nil || v.Version > best.Version {
			best = v
		}
	}
	if best == nil {
		return "", fmt.Errorf("layer %q has no versions", layerName)
	}
	return aws.ToString(best.LayerVersionArn), nil
}
