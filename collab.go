package verity

import (
	"context"

	"github.com/xraph/verity/types"
)

// Transferer moves value out of the engine to a principal: earnings and
// stake withdrawals, challenger rewards, pool payouts. It is called inside
// the operation's transaction after every state change; returning an error
// rolls those changes back.
//
// Implementations must pass ctx (or a context derived from it) to any
// engine call they make, so re-entry is detected instead of deadlocking.
type Transferer interface {
	Transfer(ctx context.Context, to types.Principal, amount types.Money, memo string) error
}

// TransferFunc adapts a function to Transferer.
type TransferFunc func(ctx context.Context, to types.Principal, amount types.Money, memo string) error

func (f TransferFunc) Transfer(ctx context.Context, to types.Principal, amount types.Money, memo string) error {
	return f(ctx, to, amount, memo)
}

// NopTransferer accepts every transfer. Useful when settlement happens
// outside the engine from withdrawal receipts.
type NopTransferer struct{}

func (NopTransferer) Transfer(context.Context, types.Principal, types.Money, string) error {
	return nil
}

// Collector pulls value into the engine from a principal: producer stakes,
// challenge stakes and consumer deposits. It is called inside the
// operation's transaction after every state change; returning an error
// rolls those changes back, so no balance exists that was not collected.
type Collector interface {
	Collect(ctx context.Context, from types.Principal, amount types.Money, memo string) error
}

// CollectFunc adapts a function to Collector.
type CollectFunc func(ctx context.Context, from types.Principal, amount types.Money, memo string) error

func (f CollectFunc) Collect(ctx context.Context, from types.Principal, amount types.Money, memo string) error {
	return f(ctx, from, amount, memo)
}

// NopCollector accepts every collection. It pairs with NopTransferer when
// the engine only keeps books and settlement happens elsewhere; Start
// refuses it next to a real Transferer.
type NopCollector struct{}

func (NopCollector) Collect(context.Context, types.Principal, types.Money, string) error {
	return nil
}

// SchemaValidator is the external format-validation service. The engine
// never parses payloads itself.
type SchemaValidator interface {
	Validate(ctx context.Context, declaredSchema string, payload []byte) (bool, error)
}

// MetadataStore persists opaque descriptive strings keyed by record id.
type MetadataStore interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
}
