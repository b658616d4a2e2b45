package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries. Since is
// inclusive, Until exclusive.
type ListOpts struct {
	Limit     int
	Offset    int
	Since     *time.Time
	Until     *time.Time
	Ascending bool
}

// ActionJournal persists an append-only record of submitted actions. It is
// write-mostly: nothing read back from it feeds a trading decision.
type ActionJournal interface {
	Record(ctx context.Context, action Action) error
	List(ctx context.Context, opts ListOpts) ([]Action, error)
}
