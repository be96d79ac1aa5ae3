package result

import (
	"context"
	"time"

	"github.com/xraph/verity/id"
)

type Store interface {
	// CreateResult fails with an already-exists error if the event has a result.
	CreateResult(ctx context.Context, r *Result) error
	GetResult(ctx context.Context, eventID id.EventID) (*Result, error)
	UpdateResult(ctx context.Context, r *Result) error
	ListResults(ctx context.Context, opts ListOpts) ([]*Result, error)
}

type ListOpts struct {
	Status     Status
	ProducerID id.ProducerID
	// DeadlineBefore, when set, keeps results whose deadline is at or before it.
	DeadlineBefore time.Time
	Limit          int
	Offset         int
}
