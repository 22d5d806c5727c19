package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/zsec-io/zdeploy/deploy"
	"github.com/zsec-io/zdeploy/gc"
	"github.com/zsec-io/zdeploy/internal/logging"
	"github.com/zsec-io/zdeploy/recorder"
	"github.com/zsec-io/zdeploy/session"
)

func (r *runner) validate() error {
	if r.opts.Graph == nil {
		return errors.New("options: a graph is required")
	}
	if r.opts.Manager == "" && (r.opts.Recorder != nil || r.opts.SupportGC) {
		return errors.New("options: a manager is required when recording or gc is enabled")
	}
	return nil
}

func (r *runner) logger() *slog.Logger {
	if r.opts.Logger != nil {
		return r.opts.Logger
	}
	level := "info"
	if r.verbose {
		level = "debug"
	}
	return logging.New(level)
}

func (r *runner) sessions() session.Source {
	if r.opts.Sessions != nil {
		return r.opts.Sessions
	}
	return session.ProfileSource{Region: r.opts.Region}
}

// runContext builds the per-run completion context. The account number
// is resolved from the session only when records will be written, so
// credential-less runs (demo kinds, no recorder) stay offline.
func (r *runner) runContext(ctx context.Context) (deploy.RunContext, string, error) {
	cfg, err := r.sessions().Config(ctx, r.opts.Account)
	if err != nil {
		return deploy.RunContext{}, "", err
	}

	account := r.opts.Account
	if account == "" && r.opts.Recorder != nil {
		account, err = session.AccountID(ctx, cfg)
		if err != nil {
			return deploy.RunContext{}, "", err
		}
		r.log.Debug("resolved account from caller identity", "account", account)
	}

	region := r.opts.Region
	if region == "" {
		region = cfg.Region
	}
	return deploy.RunContext{
		AWS:     cfg,
		Region:  region,
		Account: account,
		Manager: r.opts.Manager,
		Logger:  r.log,
	}, account, nil
}

// onlyFilter parses --only-ztids into a membership set, nil when the
// flag was not given.
func (r *runner) onlyFilter() (map[uuid.UUID]bool, error) {
	if len(r.onlyZTIDs) == 0 {
		return nil, nil
	}
	only := make(map[uuid.UUID]bool, len(r.onlyZTIDs))
	for _, s := range r.onlyZTIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("--only-ztids: %q is not a uuid: %w", s, err)
		}
		only[id] = true
	}
	return only, nil
}

// deployment returns the --deployment-id value, or a fresh id.
func (r *runner) deployment() (uuid.UUID, error) {
	if r.deploymentID == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(r.deploymentID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--deployment-id: %q is not a uuid: %w", r.deploymentID, err)
	}
	return id, nil
}

// collectGarbage sweeps stale records after a pass when the options call
// for it. --only-ztids disables the sweep: a narrowed pass has not
// marked the full graph, so everything outside the filter would read as
// stale.
func (r *runner) collectGarbage(ctx context.Context, out io.Writer, deploymentID uuid.UUID, maxOrder int) error {
	if !r.opts.SupportGC || r.opts.Recorder == nil {
		fmt.Fprintln(out, "no gc")
		return nil
	}
	if len(r.onlyZTIDs) > 0 {
		r.log.Debug("skipping gc: --only-ztids narrows the pass")
		return nil
	}

	suffix := ""
	if r.dryGC {
		suffix = " (dry)"
	}
	fmt.Fprintf(out, "collecting garbage%s\n", suffix)

	collector := &gc.Collector{Recorder: r.opts.Recorder, Logger: r.log}
	scope := recorder.Scope{Manager: r.opts.Manager, Account: r.opts.GCAccount}
	report, err := collector.Sweep(ctx, scope, deploymentID, maxOrder, r.dryGC)
	if err != nil {
		return err
	}
	for _, item := range report.Items {
		switch {
		case report.Dry:
			fmt.Fprintf(out, "would delete: %s(ztid=%s) : %s\n",
				item.Record.Name, item.Record.ZTID, item.Record.Type)
		case item.Err == nil:
			fmt.Fprintf(out, "deleted: %s(ztid=%s) : %s\n",
				item.Record.Name, item.Record.ZTID, item.Record.Type)
		}
	}
	return report.Err()
}

func label(res deploy.Resource) string {
	return fmt.Sprintf("%s(ztid=%s)", res.Name(), res.ZTID())
}
