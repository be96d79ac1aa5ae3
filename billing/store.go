package billing

import (
	"context"

	"github.com/xraph/verity/id"
	"github.com/xraph/verity/types"
)

type Store interface {
	GetAccount(ctx context.Context, consumer types.Principal) (*Account, error)
	// PutAccount inserts or replaces the account keyed by consumer.
	PutAccount(ctx context.Context, a *Account) error

	GetGrant(ctx context.Context, consumer types.Principal, eventID id.EventID) (*Grant, error)
	CreateGrant(ctx context.Context, g *Grant) error

	GetEarnings(ctx context.Context, producerID id.ProducerID) (*Earnings, error)
	PutEarnings(ctx context.Context, e *Earnings) error

	// GetPools returns zero balances when nothing was ever credited.
	GetPools(ctx context.Context, currency string) (*Pools, error)
	PutPools(ctx context.Context, p *Pools) error

	CreateCharge(ctx context.Context, c *Charge) error
	ListCharges(ctx context.Context, consumer types.Principal, opts ListOpts) ([]*Charge, error)
	CreateDeposit(ctx context.Context, d *Deposit) error
	CreateWithdrawal(ctx context.Context, w *Withdrawal) error
	CreatePayout(ctx context.Context, p *Payout) error
}

type ListOpts struct {
	Limit  int
	Offset int
}
