// Package gc removes resources whose records were not marked by the
// current deployment. Marking is the apply pass stamping every record
// with the run's deployment id; sweeping deletes what is left over from
// earlier runs, in descending dependency order so dependents go before
// their dependencies.
package gc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/zsec-io/zdeploy/deploy"
	"github.com/zsec-io/zdeploy/recorder"
)

// UnsafeScopeError reports a sweep attempted without a manager bound.
// An unscoped sweep would consider every record in the table, including
// other managers' resources.
type UnsafeScopeError struct{}

func (e *UnsafeScopeError) Error() string {
	return "refusing to sweep without a manager scope"
}

// Item is one record a sweep considered.
type Item struct {
	Record recorder.Record
	// NewOrder is the rebased dependency order a dry run assigned.
	NewOrder int
	Err      error
}

// Report lists what a sweep deleted, or for a dry run, would delete.
type Report struct {
	Dry   bool
	Items []Item
}

// Err joins the per-item failures. Nil when every item succeeded.
func (r *Report) Err() error {
	var errs []error
	for _, it := range r.Items {
		if it.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", it.Record.ZRN, it.Err))
		}
	}
	return errors.Join(errs...)
}

// Collector sweeps stale records through a recorder backend.
type Collector struct {
	Recorder recorder.Recorder
	Logger   *slog.Logger
}

// Sweep removes everything in scope that deploymentID did not mark.
// maxMarkedOrder is the highest dependency order the marking pass
// assigned this run.
//
// A dry run deletes nothing. It rewrites the stale records' dependency
// orders to sit above maxMarkedOrder, preserving their relative order,
// so the records read as a preview of the deletion plan and a later real
// sweep deletes the same set in a consistent order. One failed item does
// not stop the sweep; the report carries every per-item error.
func (c *Collector) Sweep(ctx context.Context, scope recorder.Scope, deploymentID uuid.UUID, maxMarkedOrder int, dry bool) (*Report, error) {
	if scope.Manager == "" {
		return nil, &UnsafeScopeError{}
	}
	if dry {
		return c.dryRun(ctx, scope, deploymentID, maxMarkedOrder)
	}

	unmarked, err := c.Recorder.Unmarked(ctx, scope, deploymentID, true)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, u := range unmarked {
		item := Item{Record: u.Record}
		if u.Resource == nil {
			item.Err = fmt.Errorf("no resource rehydrated for %s", u.Record.ZRN)
		} else {
			c.logger().Info("collecting stale resource",
				"zrn", u.Record.ZRN, "name", u.Record.Name, "type", u.Record.Type)
			item.Err = c.deleteOne(ctx, u)
		}
		if item.Err != nil {
			c.logger().Error("failed to collect resource", "zrn", u.Record.ZRN, "error", item.Err)
		}
		report.Items = append(report.Items, item)
	}
	return report, nil
}

// deleteOne tears down the resource and only then forgets its record, so
// a failed deletion stays visible to the next sweep.
func (c *Collector) deleteOne(ctx context.Context, u recorder.UnmarkedRecord) error {
	if prep, ok := u.Resource.(deploy.TeardownPreparer); ok {
		if err := prep.PrepareTeardown(ctx); err != nil {
			return fmt.Errorf("prepare teardown: %w", err)
		}
	}
	if err := u.Resource.Delete(ctx, true); err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	if err := c.Recorder.DeleteRecordByZRN(ctx, u.Record.ZRN); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

func (c *Collector) dryRun(ctx context.Context, scope recorder.Scope, deploymentID uuid.UUID, maxMarkedOrder int) (*Report, error) {
	unmarked, err := c.Recorder.Unmarked(ctx, scope, deploymentID, false)
	if err != nil {
		return nil, err
	}

	// The delta is fixed by the first (lowest-order) stale record, which
	// lands at maxMarkedOrder+1. Applying the same delta to the rest
	// shifts the whole block above the marked range without reordering
	// it.
	report := &Report{Dry: true}
	delta, haveDelta := 0, false
	for _, u := range unmarked {
		if !haveDelta {
			delta = maxMarkedOrder + 1 - u.Record.DependencyOrder
			haveDelta = true
		}
		item := Item{Record: u.Record, NewOrder: u.Record.DependencyOrder + delta}
		if err := c.Recorder.UpdateDependencyOrder(ctx, u.Record.ZRN, item.NewOrder); err != nil {
			item.Err = fmt.Errorf("update dependency order: %w", err)
			c.logger().Error("failed to rebase record order", "zrn", u.Record.ZRN, "error", item.Err)
		}
		report.Items = append(report.Items, item)
	}
	return report, nil
}

func (c *Collector) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
