package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zsec-io/zdeploy/deploy"
	"github.com/zsec-io/zdeploy/recorder"
)

// ErrForcedDestroyUnsupported rejects destroy --force. Deleting
// resources the manager does not own would need an ownership check that
// does not exist yet.
var ErrForcedDestroyUnsupported = errors.New("forced destroy is not supported: deletion does not check managers")

func newDestroyCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete every managed resource in the graph",
		RunE:  r.runDestroy,
	}
	cmd.Flags().BoolVarP(&r.force, "force", "f", false,
		"destroy resources even if not owned")
	addCommonFlags(cmd, r)
	return cmd
}

func (r *runner) runDestroy(cmd *cobra.Command, args []string) error {
	if r.force {
		return ErrForcedDestroyUnsupported
	}

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

	// Reverse completion order: dependents go before what they depend
	// on, mirroring the order the apply pass created them in.
	ordered := coll.Ordered()
	for i := len(ordered) - 1; i >= 0; i-- {
		res := ordered[i]
		if only != nil && !only[res.ZTID()] {
			continue
		}
		if !coll.Managed(res.ZTID()) {
			continue
		}

		exists, err := res.Exists(ctx)
		if err != nil {
			return fmt.Errorf("check %s: %w", res.Name(), err)
		}
		if !exists {
			fmt.Fprintf(out, "does not exist: %s\n", label(res))
			continue
		}

		if prep, ok := res.(deploy.TeardownPreparer); ok {
			r.log.Info("preparing teardown", "name", res.Name())
			if err := prep.PrepareTeardown(ctx); err != nil {
				return fmt.Errorf("prepare teardown of %s: %w", res.Name(), err)
			}
		}
		fmt.Fprintf(out, "deleting: %s\n", label(res))
		if err := res.Delete(ctx, false); err != nil {
			return fmt.Errorf("delete %s: %w", res.Name(), err)
		}

		if r.opts.Recorder == nil {
			continue
		}
		rec, ok := recorder.Describe(res, account, r.opts.Manager)
		if !ok {
			continue
		}
		// Forget the record only after the resource is confirmed gone.
		exists, err = res.Exists(ctx)
		if err != nil {
			return fmt.Errorf("confirm %s: %w", res.Name(), err)
		}
		if exists {
			r.log.Warn("resource still exists after delete, keeping record", "name", res.Name())
			continue
		}
		if err := r.opts.Recorder.DeleteRecord(ctx, rec); err != nil {
			return fmt.Errorf("forget record of %s: %w", res.Name(), err)
		}
	}

	// Destroy marks nothing, so the sweep sees every remaining record
	// in scope as stale.
	return r.collectGarbage(ctx, out, deploymentID, 0)
}
