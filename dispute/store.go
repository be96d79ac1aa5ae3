package dispute

import (
	"context"

	"github.com/xraph/verity/id"
	"github.com/xraph/verity/types"
)

type Store interface {
	CreateDispute(ctx context.Context, d *Dispute) error
	GetDispute(ctx context.Context, disputeID id.DisputeID) (*Dispute, error)
	UpdateDispute(ctx context.Context, d *Dispute) error
	ListDisputes(ctx context.Context, opts ListOpts) ([]*Dispute, error)
}

type ListOpts struct {
	EventID        id.EventID
	Challenger     types.Principal
	UnresolvedOnly bool
	Limit          int
	Offset         int
}
