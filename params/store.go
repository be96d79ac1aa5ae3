package params

import "context"

type Store interface {
	// GetParams returns the latest version.
	GetParams(ctx context.Context) (*Params, error)
	// SaveParams persists p as a new version; earlier versions are kept.
	SaveParams(ctx context.Context, p *Params) error
	ListParamsVersions(ctx context.Context) ([]*Params, error)
}
