// Package recorder keeps deployment records: one row per resource a
// manager has applied, keyed by zrn. The write side and the read side are
// separate interfaces because some backends are notification queues that
// can accept mutations but cannot answer queries; a Composite pairs such
// a backend with a table for reads.
package recorder

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/zsec-io/zdeploy/deploy"
)

// Record is one row of deployment state. Field names mirror the table
// schema and the notifier payload.
type Record struct {
	ZRN             string    `json:"zrn"`
	Account         string    `json:"account"`
	Region          string    `json:"region"`
	ZTID            uuid.UUID `json:"ztid"`
	Name            string    `json:"name"`
	IndexID         string    `json:"index_id,omitempty"`
	Type            string    `json:"type"`
	Manager         string    `json:"manager"`
	DeploymentID    uuid.UUID `json:"deployment_id"`
	DependencyOrder int       `json:"dependency_order"`
}

// ZRN formats the canonical resource name for a resource in an account
// and region. uuid.UUID renders as lowercase hex, which is what the key
// format requires.
func ZRN(account, region string, ztid uuid.UUID) string {
	return fmt.Sprintf("zrn:aws:%s:%s:%s", account, region, ztid)
}

// Describe derives the record for a realized resource, minus the
// deployment id and dependency order the caller assigns. It reports false
// when the resource carries no type tag and therefore can never be
// recorded or rehydrated.
func Describe(res deploy.Resource, account, manager string) (Record, bool) {
	tagged, ok := res.(deploy.Tagged)
	if !ok {
		return Record{}, false
	}
	return Record{
		ZRN:     ZRN(account, res.Region(), res.ZTID()),
		Account: account,
		Region:  res.Region(),
		ZTID:    res.ZTID(),
		Name:    res.Name(),
		IndexID: res.IndexID(),
		Type:    tagged.TypeTag(),
		Manager: manager,
	}, true
}

// Scope bounds which records a query may consider. Manager is mandatory
// for any sweep; Account optionally narrows further.
type Scope struct {
	Manager string
	Account string
}

// Mutator is the write side of record keeping.
type Mutator interface {
	PutRecord(ctx context.Context, rec Record) error
	DeleteRecord(ctx context.Context, rec Record) error
	DeleteRecordByZRN(ctx context.Context, zrn string) error
}

// UnmarkedRecord pairs a stale record with the resource rehydrated from
// it. Resource is nil when the backend has no rehydrator configured.
type UnmarkedRecord struct {
	Record   Record
	Resource deploy.Resource
}

// Query is the read side of record keeping. Unmarked returns every record
// in scope whose deployment id differs from the given one, sorted by
// dependency order.
type Query interface {
	Unmarked(ctx context.Context, scope Scope, deploymentID uuid.UUID, highToLow bool) ([]UnmarkedRecord, error)
	UpdateDependencyOrder(ctx context.Context, zrn string, order int) error
}

// Recorder is a backend that supports both sides.
type Recorder interface {
	Mutator
	Query
}

// TruncatedScanError reports a table scan that did not fit in one page.
// Sweeping from a partial view could delete resources that are in fact
// still marked, so the scan is fatal rather than resumed.
type TruncatedScanError struct {
	Table string
}

func (e *TruncatedScanError) Error() string {
	return fmt.Sprintf("scan of table %q returned a truncated page; refusing to sweep from a partial view", e.Table)
}
