package producer

import (
	"context"

	"github.com/xraph/verity/id"
	"github.com/xraph/verity/types"
)

type Store interface {
	CreateProducer(ctx context.Context, p *Producer) error
	GetProducer(ctx context.Context, producerID id.ProducerID) (*Producer, error)
	UpdateProducer(ctx context.Context, p *Producer) error
	ListProducers(ctx context.Context, opts ListOpts) ([]*Producer, error)

	CreateEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, eventID id.EventID) (*Event, error)
	UpdateEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, producerID id.ProducerID, opts ListOpts) ([]*Event, error)
}

type ListOpts struct {
	Owner      types.Principal
	ActiveOnly bool
	Limit      int
	Offset     int
}
