// Package store defines the persistence contract shared by every backend.
package store

import (
	"context"

	"github.com/xraph/verity/billing"
	"github.com/xraph/verity/dispute"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/producer"
	"github.com/xraph/verity/result"
)

// Store is the unified storage interface for all verity ledgers.
type Store interface {
	producer.Store
	result.Store
	dispute.Store
	billing.Store
	params.Store

	// RunInTx runs fn in a transaction. Store calls made with the context
	// passed to fn join the transaction; if fn returns an error every write
	// it made is discarded.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
