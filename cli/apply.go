package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zsec-io/zdeploy/recorder"
)

func newApplyCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Realize the graph and put every managed resource",
		RunE:  r.runApply,
	}
	cmd.Flags().BoolVarP(&r.force, "force", "f", false,
		"take ownership and apply resource configs even if not initially owned")
	addCommonFlags(cmd, r)
	return cmd
}

func (r *runner) runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	only, err := r.onlyFilter()
	if err != nil {
		return err
	}
	deploymentID, err := r.deployment()
	if err != nil {
		return err
	}

	rc, account, err := r.runContext(ctx)
	if err != nil {
		return err
	}
	coll, err := r.opts.Graph.Complete(ctx, rc)
	if err != nil {
		return err
	}

	// The put order is the completion order, and the index within it is
	// the dependency order recorded with each resource. Skipped entries
	// still advance the order so it stays stable across filtered runs.
	maxOrder := 0
	for i, res := range coll.Ordered() {
		maxOrder = i
		if only != nil && !only[res.ZTID()] {
			continue
		}
		if !coll.Managed(res.ZTID()) {
			r.log.Debug("skipping unmanaged reference", "name", res.Name(), "ztid", res.ZTID())
			continue
		}

		fmt.Fprintf(out, "applying: %s\n", label(res))
		if err := res.Put(ctx, r.force); err != nil {
			return fmt.Errorf("apply %s: %w", res.Name(), err)
		}

		if r.opts.Recorder == nil {
			continue
		}
		rec, ok := recorder.Describe(res, account, r.opts.Manager)
		if !ok {
			continue
		}
		// Record only once the resource is confirmed to exist, so a
		// crash between put and confirm leaves at worst an unrecorded
		// resource, never a record without one.
		exists, err := res.Exists(ctx)
		if err != nil {
			return fmt.Errorf("confirm %s: %w", res.Name(), err)
		}
		if !exists {
			r.log.Warn("resource absent after put, not recording", "name", res.Name())
			continue
		}
		rec.DeploymentID = deploymentID
		rec.DependencyOrder = i
		if err := r.opts.Recorder.PutRecord(ctx, rec); err != nil {
			return fmt.Errorf("record %s: %w", res.Name(), err)
		}
	}

	return r.collectGarbage(ctx, out, deploymentID, maxOrder)
}
