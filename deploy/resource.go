package deploy

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"
)

// Resource is a realized resource: a node bound to a session and region,
// ready to be inspected, applied, or deleted. Implementations live in the
// provider packages; the engine and the collector only see this interface.
type Resource interface {
	// ZTID is the caller-assigned identity the resource was declared with.
	ZTID() uuid.UUID
	// Name is the provider-facing name.
	Name() string
	// IndexID is an opaque provider-side discriminator carried through
	// records untouched. Implementations may return "".
	IndexID() string
	// Region is the region the resource was bound to, or "" when the
	// kind has no regional dimension.
	Region() string

	// Exists reports whether the remote object is present.
	Exists(ctx context.Context) (bool, error)
	// Put creates or reconciles the remote object.
	Put(ctx context.Context, force bool) error
	// Delete removes the remote object. When notExistsOK is true a
	// missing object is not an error.
	Delete(ctx context.Context, notExistsOK bool) error
}

// Tagged marks resources that carry a stable type tag and therefore may be
// recorded and later rehydrated from a record. Resources without a tag,
// such as realized actions, are applied but never recorded.
type Tagged interface {
	TypeTag() string
}

// TeardownPreparer is implemented by resources that must shed attachments
// before deletion can succeed, for example an IAM role detaching its
// managed policies.
type TeardownPreparer interface {
	PrepareTeardown(ctx context.Context) error
}

// AttributeCarrier exposes named attributes for projection into dependent
// configs. Attribute values must be derivable from the constructed
// resource alone; reading one never requires the resource to have been
// applied first.
type AttributeCarrier interface {
	ResourceAttribute(name string) (any, error)
}

// BuildInput is everything a kind receives to construct a realized
// resource. Config is nil when the resource is assumed to already exist,
// in which case the construction must not require it and Put must refuse
// to run.
type BuildInput struct {
	AWS     aws.Config
	Region  string
	Account string
	Manager string

	ZTID    uuid.UUID
	Name    string
	IndexID string
	Config  map[string]any
	Extra   map[string]any
}

// Kind binds a type tag to a constructor for realized resources.
type Kind struct {
	Tag   string
	Build func(ctx context.Context, in BuildInput) (Resource, error)
}
