package recorder

import (
	"context"

	"github.com/google/uuid"
)

// Composite pairs a write-only backend with a readable one: mutations go
// through the notifier, queries hit the table the notifier's consumer
// maintains.
type Composite struct {
	Writes Mutator
	Reads  Query
}

var _ Recorder = Composite{}

func (c Composite) PutRecord(ctx context.Context, rec Record) error {
	return c.Writes.PutRecord(ctx, rec)
}

func (c Composite) DeleteRecord(ctx context.Context, rec Record) error {
	return c.Writes.DeleteRecord(ctx, rec)
}

func (c Composite) DeleteRecordByZRN(ctx context.Context, zrn string) error {
	return c.Writes.DeleteRecordByZRN(ctx, zrn)
}

func (c Composite) Unmarked(ctx context.Context, scope Scope, deploymentID uuid.UUID, highToLow bool) ([]UnmarkedRecord, error) {
	return c.Reads.Unmarked(ctx, scope, deploymentID, highToLow)
}

func (c Composite) UpdateDependencyOrder(ctx context.Context, zrn string, order int) error {
	return c.Reads.UpdateDependencyOrder(ctx, zrn, order)
}
