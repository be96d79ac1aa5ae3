package verity

import (
	"context"
	"fmt"
	"slices"

	"github.com/xraph/verity/params"
	"github.com/xraph/verity/types"
)

// Params returns the parameters in force.
func (e *Engine) Params(ctx context.Context) (*params.Params, error) {
	return e.currentParams(ctx)
}

// ParamsHistory lists every persisted parameter version, oldest first.
func (e *Engine) ParamsHistory(ctx context.Context) ([]*params.Params, error) {
	return e.store.ListParamsVersions(ctx)
}

// UpdateParams persists next as a new parameter version. The currency of an
// existing deployment cannot change. Administrators only.
func (e *Engine) UpdateParams(ctx context.Context, admin types.Principal, next *params.Params) (*params.Params, error) {
	var saved *params.Params
	err := e.mutateParams(ctx, admin, func(cur *params.Params) (*params.Params, error) {
		if next.Currency != cur.Currency {
			return nil, fmt.Errorf("%w: currency %q cannot replace %q", ErrInvalidParams, next.Currency, cur.Currency)
		}
		saved = next.Clone()
		return saved, nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// AddResolver allow-lists a dispute resolver.
func (e *Engine) AddResolver(ctx context.Context, admin, resolver types.Principal) error {
	return e.editList(ctx, admin, resolver, func(p *params.Params) error {
		if !slices.Contains(p.Resolvers, resolver) {
			p.Resolvers = append(p.Resolvers, resolver)
		}
		return nil
	})
}

// RemoveResolver drops a resolver from the allow-list.
func (e *Engine) RemoveResolver(ctx context.Context, admin, resolver types.Principal) error {
	return e.editList(ctx, admin, resolver, func(p *params.Params) error {
		p.Resolvers = slices.DeleteFunc(p.Resolvers, func(r types.Principal) bool { return r == resolver })
		return nil
	})
}

// AddAdmin grants administrative rights.
func (e *Engine) AddAdmin(ctx context.Context, admin, principal types.Principal) error {
	return e.editList(ctx, admin, principal, func(p *params.Params) error {
		if !slices.Contains(p.Admins, principal) {
			p.Admins = append(p.Admins, principal)
		}
		return nil
	})
}

// RemoveAdmin revokes administrative rights. The last administrator cannot
// be removed.
func (e *Engine) RemoveAdmin(ctx context.Context, admin, principal types.Principal) error {
	return e.editList(ctx, admin, principal, func(p *params.Params) error {
		if p.IsAdmin(principal) && len(p.Admins) == 1 {
			return ErrLastAdmin
		}
		p.Admins = slices.DeleteFunc(p.Admins, func(a types.Principal) bool { return a == principal })
		return nil
	})
}

func (e *Engine) editList(ctx context.Context, admin, target types.Principal, edit func(*params.Params) error) error {
	if err := requirePrincipal(target); err != nil {
		return err
	}
	return e.mutateParams(ctx, admin, func(cur *params.Params) (*params.Params, error) {
		next := cur.Clone()
		if err := edit(next); err != nil {
			return nil, err
		}
		return next, nil
	})
}

// mutateParams derives and saves the next version from the current one.
func (e *Engine) mutateParams(ctx context.Context, admin types.Principal, derive func(cur *params.Params) (*params.Params, error)) error {
	var saved *params.Params
	err := e.run(ctx, func(ctx context.Context, cur *params.Params, out *outbox) error {
		if !cur.IsAdmin(admin) {
			return ErrNotAdmin
		}
		next, err := derive(cur)
		if err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if len(next.Admins) == 0 {
			return ErrLastAdmin
		}
		next.Version = cur.Version + 1
		next.UpdatedAt = e.now().UTC()
		next.UpdatedBy = admin
		if err := e.store.SaveParams(ctx, next); err != nil {
			return err
		}
		if next.MinStake.GreaterThan(cur.MinStake) {
			if err := e.deactivateUnderStaked(ctx, next, out); err != nil {
				return err
			}
		}
		saved = next.Clone()
		out.add(func(ctx context.Context) { e.plugins.EmitParamsUpdated(ctx, saved) })
		return nil
	})
	if err == nil {
		e.logger.Info("params updated", "version", saved.Version, "by", admin)
	}
	return err
}
