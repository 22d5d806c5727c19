package recorder

import (
	"context"
	"fmt"

	"github.com/zsec-io/zdeploy/deploy"
	"github.com/zsec-io/zdeploy/session"
)

// Rehydrator rebuilds deletable resources from records. The record only
// stores identity, so the rebuilt resource has no config: it supports
// existence checks and deletion, and its Put refuses to run.
type Rehydrator struct {
	Registry *deploy.Registry
	Sessions session.Source
}

// Rehydrate looks up the record's type tag in the registry and constructs
// the resource under a session for the record's account.
func (r *Rehydrator) Rehydrate(ctx context.Context, rec Record) (deploy.Resource, error) {
	kind, err := r.Registry.Get(rec.Type)
	if err != nil {
		return nil, fmt.Errorf("rehydrate %s: %w", rec.ZRN, err)
	}
	cfg, err := r.Sessions.Config(ctx, rec.Account)
	if err != nil {
		return nil, fmt.Errorf("rehydrate %s: session for account %q: %w", rec.ZRN, rec.Account, err)
	}

	res, err := kind.Build(ctx, deploy.BuildInput{
		AWS:     cfg,
		Region:  rec.Region,
		Account: rec.Account,
		Manager: rec.Manager,
		ZTID:    rec.ZTID,
		Name:    rec.Name,
		IndexID: rec.IndexID,
	})
	if err != nil {
		return nil, fmt.Errorf("rehydrate %s as %s: %w", rec.ZRN, rec.Type, err)
	}
	return res, nil
}
