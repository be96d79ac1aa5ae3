package verity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/verity/billing"
	"github.com/xraph/verity/id"
	"github.com/xraph/verity/metadata"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/producer"
	"github.com/xraph/verity/result"
	"github.com/xraph/verity/types"
)

// ──────────────────────────────────────────────────
// Registry ledger
// ──────────────────────────────────────────────────

// Register creates an active producer owned by owner with the given stake.
func (e *Engine) Register(ctx context.Context, owner types.Principal, stake types.Money) (*producer.Producer, error) {
	var pr *producer.Producer
	err := e.run(ctx, func(ctx context.Context, p *params.Params, out *outbox) error {
		if err := requirePrincipal(owner); err != nil {
			return err
		}
		if err := requireMoney(p, "stake", stake); err != nil {
			return err
		}
		if stake.LessThan(p.MinStake) {
			return fmt.Errorf("%w: %s < %s", ErrStakeBelowMinimum, stake, p.MinStake)
		}

		pr = &producer.Producer{
			Entity:     types.NewEntity(e.now()),
			ID:         id.NewProducerID(),
			Owner:      owner,
			Stake:      stake,
			Reputation: producer.InitialReputation,
			Active:     true,
		}
		if err := e.store.CreateProducer(ctx, pr); err != nil {
			return fmt.Errorf("verity: create producer: %w", err)
		}
		if err := e.fund(ctx, owner, stake, "producer stake"); err != nil {
			return err
		}
		out.add(func(ctx context.Context) { e.plugins.EmitProducerRegistered(ctx, pr) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("producer registered", "producer_id", pr.ID.String(), "owner", owner, "stake", stake.String())
	return pr, nil
}

// ScheduleEvent records a future event for the caller's producer. Metadata is
// stored as given and never interpreted.
func (e *Engine) ScheduleEvent(ctx context.Context, caller types.Principal, producerID id.ProducerID, at time.Time, meta []byte) (*producer.Event, error) {
	var ev *producer.Event
	err := e.run(ctx, func(ctx context.Context, p *params.Params, out *outbox) error {
		pr, err := e.store.GetProducer(ctx, producerID)
		if err != nil {
			return err
		}
		if !pr.OwnedBy(caller) {
			return ErrNotOwner
		}
		if err := usable(p, pr); err != nil {
			return err
		}
		now := e.now()
		if !at.After(now) {
			return fmt.Errorf("%w: %s is not after %s", ErrEventNotInFuture, at.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
		}

		ev = &producer.Event{
			Entity:      types.NewEntity(now),
			ID:          id.NewEventID(),
			ProducerID:  pr.ID,
			ScheduledAt: at,
			Metadata:    append([]byte(nil), meta...),
		}
		if err := e.store.CreateEvent(ctx, ev); err != nil {
			return fmt.Errorf("verity: create event: %w", err)
		}
		pr.EventCount++
		pr.Touch(now)
		if err := e.store.UpdateProducer(ctx, pr); err != nil {
			return err
		}
		out.add(func(ctx context.Context) { e.plugins.EmitEventScheduled(ctx, ev) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// SlashStake removes up to amount from a producer's stake and credits what
// was actually taken to the challenger pool. Administrators only.
func (e *Engine) SlashStake(ctx context.Context, admin types.Principal, producerID id.ProducerID, amount types.Money, reason string) (types.Money, error) {
	var slashed types.Money
	err := e.run(ctx, func(ctx context.Context, p *params.Params, out *outbox) error {
		if !p.IsAdmin(admin) {
			return ErrNotAdmin
		}
		if err := requireMoney(p, "amount", amount); err != nil {
			return err
		}
		pr, err := e.store.GetProducer(ctx, producerID)
		if err != nil {
			return err
		}
		slashed, err = e.slash(ctx, p, pr, amount, reason, out)
		if err != nil {
			return err
		}
		return e.creditPool(ctx, p, billing.PoolChallenger, slashed)
	})
	if err != nil {
		return types.Money{}, err
	}
	e.logger.Warn("stake slashed", "producer_id", producerID.String(), "slashed", slashed.String(), "reason", reason)
	return slashed, nil
}

// slash takes min(amount, stake) from pr, deactivating it when the remaining
// stake drops below the minimum. The caller redistributes the result.
func (e *Engine) slash(ctx context.Context, p *params.Params, pr *producer.Producer, amount types.Money, reason string, out *outbox) (types.Money, error) {
	slashed := amount.Min(pr.Stake)
	pr.Stake = pr.Stake.Subtract(slashed)

	deactivated := false
	if pr.Active && pr.Stake.LessThan(p.MinStake) {
		pr.Active = false
		deactivated = true
	}
	pr.Touch(e.now())
	if err := e.store.UpdateProducer(ctx, pr); err != nil {
		return types.Money{}, err
	}

	snapshot := *pr
	out.add(func(ctx context.Context) { e.plugins.EmitStakeSlashed(ctx, &snapshot, slashed, reason) })
	if deactivated {
		out.add(func(ctx context.Context) { e.plugins.EmitProducerStatusChanged(ctx, &snapshot, "stake below minimum") })
	}
	return slashed, nil
}

// UpdateReputation sets a producer's reputation. Administrators only.
func (e *Engine) UpdateReputation(ctx context.Context, admin types.Principal, producerID id.ProducerID, value int) error {
	return e.run(ctx, func(ctx context.Context, p *params.Params, out *outbox) error {
		if !p.IsAdmin(admin) {
			return ErrNotAdmin
		}
		if value < producer.MinReputation || value > producer.MaxReputation {
			return fmt.Errorf("%w: %d", ErrInvalidReputation, value)
		}
		pr, err := e.store.GetProducer(ctx, producerID)
		if err != nil {
			return err
		}
		return e.setReputation(ctx, pr, value, out)
	})
}

func (e *Engine) setReputation(ctx context.Context, pr *producer.Producer, value int, out *outbox) error {
	previous := pr.Reputation
	pr.Reputation = producer.ClampReputation(value)
	pr.Touch(e.now())
	if err := e.store.UpdateProducer(ctx, pr); err != nil {
		return err
	}
	if pr.Reputation != previous {
		snapshot := *pr
		out.add(func(ctx context.Context) { e.plugins.EmitReputationChanged(ctx, &snapshot, previous) })
	}
	return nil
}

// markResultSubmitted flags the event as having a result. Repeated calls are
// harmless.
func (e *Engine) markResultSubmitted(ctx context.Context, ev *producer.Event) error {
	if ev.HasResult {
		return nil
	}
	ev.HasResult = true
	ev.Touch(e.now())
	return e.store.UpdateEvent(ctx, ev)
}

// AddStake tops up the caller's producer. A deactivated producer that is not
// banned becomes active again once its stake reaches the minimum.
func (e *Engine) AddStake(ctx context.Context, caller types.Principal, producerID id.ProducerID, amount types.Money) (*producer.Producer, error) {
	var pr *producer.Producer
	err := e.run(ctx, func(ctx context.Context, p *params.Params, out *outbox) error {
		if err := requireMoney(p, "amount", amount); err != nil {
			return err
		}
		var err error
		pr, err = e.store.GetProducer(ctx, producerID)
		if err != nil {
			return err
		}
		if !pr.OwnedBy(caller) {
			return ErrNotOwner
		}
		pr.Stake = pr.Stake.Add(amount)
		reactivated := !pr.Active && !pr.Banned && !pr.Stake.LessThan(p.MinStake)
		if reactivated {
			pr.Active = true
		}
		pr.Touch(e.now())
		if err := e.store.UpdateProducer(ctx, pr); err != nil {
			return err
		}
		if err := e.fund(ctx, caller, amount, "producer stake"); err != nil {
			return err
		}
		if reactivated {
			snapshot := *pr
			out.add(func(ctx context.Context) { e.plugins.EmitProducerStatusChanged(ctx, &snapshot, "stake restored") })
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pr, nil
}

// WithdrawStake returns part of the stake to the owner. An active producer
// must keep at least the minimum, and no stake leaves while one of its
// results can still be disputed.
func (e *Engine) WithdrawStake(ctx context.Context, caller types.Principal, producerID id.ProducerID, amount types.Money) (*billing.Withdrawal, error) {
	var w *billing.Withdrawal
	err := e.run(ctx, func(ctx context.Context, p *params.Params, out *outbox) error {
		if err := requireMoney(p, "amount", amount); err != nil {
			return err
		}
		pr, err := e.store.GetProducer(ctx, producerID)
		if err != nil {
			return err
		}
		if !pr.OwnedBy(caller) {
			return ErrNotOwner
		}
		if amount.GreaterThan(pr.Stake) {
			return fmt.Errorf("%w: requested %s, staked %s", ErrInsufficientStake, amount, pr.Stake)
		}
		remaining := pr.Stake.Subtract(amount)
		if pr.Active && remaining.LessThan(p.MinStake) {
			return fmt.Errorf("%w: %s would remain", ErrStakeBelowMinimum, remaining)
		}
		if err := e.checkNoOpenResults(ctx, pr.ID); err != nil {
			return err
		}

		pr.Stake = remaining
		pr.Touch(e.now())
		if err := e.store.UpdateProducer(ctx, pr); err != nil {
			return err
		}
		w = &billing.Withdrawal{
			ID:         id.NewWithdrawalID(),
			Kind:       billing.WithdrawStake,
			ProducerID: pr.ID,
			To:         caller,
			Amount:     amount,
			CreatedAt:  e.now(),
		}
		if err := e.store.CreateWithdrawal(ctx, w); err != nil {
			return err
		}
		if err := e.pay(ctx, caller, amount, "stake withdrawal "+pr.ID.String()); err != nil {
			return err
		}
		out.add(func(ctx context.Context) { e.plugins.EmitWithdrawal(ctx, w) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (e *Engine) checkNoOpenResults(ctx context.Context, producerID id.ProducerID) error {
	for _, status := range []result.Status{result.StatusSubmitted, result.StatusDisputed} {
		open, err := e.store.ListResults(ctx, result.ListOpts{Status: status, ProducerID: producerID, Limit: 1})
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return ErrPendingResults
		}
	}
	return nil
}

// BanProducer permanently deactivates a producer. Administrators only.
func (e *Engine) BanProducer(ctx context.Context, admin types.Principal, producerID id.ProducerID, reason string) error {
	return e.setStatus(ctx, producerID, reason, func(p *params.Params, pr *producer.Producer) error {
		if !p.IsAdmin(admin) {
			return ErrNotAdmin
		}
		pr.Banned = true
		pr.Active = false
		return nil
	})
}

// UnbanProducer lifts a ban. The producer is reactivated only if its stake
// still meets the minimum.
func (e *Engine) UnbanProducer(ctx context.Context, admin types.Principal, producerID id.ProducerID, reason string) error {
	return e.setStatus(ctx, producerID, reason, func(p *params.Params, pr *producer.Producer) error {
		if !p.IsAdmin(admin) {
			return ErrNotAdmin
		}
		pr.Banned = false
		pr.Active = !pr.Stake.LessThan(p.MinStake)
		return nil
	})
}

// DeactivateProducer stops a producer from scheduling and submitting. The
// owner or an administrator may call it.
func (e *Engine) DeactivateProducer(ctx context.Context, caller types.Principal, producerID id.ProducerID, reason string) error {
	return e.setStatus(ctx, producerID, reason, func(p *params.Params, pr *producer.Producer) error {
		if !pr.OwnedBy(caller) && !p.IsAdmin(caller) {
			return ErrNotOwner
		}
		pr.Active = false
		return nil
	})
}

func (e *Engine) setStatus(ctx context.Context, producerID id.ProducerID, reason string, apply func(*params.Params, *producer.Producer) error) error {
	return e.run(ctx, func(ctx context.Context, p *params.Params, out *outbox) error {
		pr, err := e.store.GetProducer(ctx, producerID)
		if err != nil {
			return err
		}
		active, banned := pr.Active, pr.Banned
		if err := apply(p, pr); err != nil {
			return err
		}
		if pr.Active == active && pr.Banned == banned {
			return nil
		}
		pr.Touch(e.now())
		if err := e.store.UpdateProducer(ctx, pr); err != nil {
			return err
		}
		snapshot := *pr
		out.add(func(ctx context.Context) { e.plugins.EmitProducerStatusChanged(ctx, &snapshot, reason) })
		return nil
	})
}

// usable rejects producers that may not publish.
// deactivateUnderStaked deactivates every active producer whose stake is
// below p.MinStake.
func (e *Engine) deactivateUnderStaked(ctx context.Context, p *params.Params, out *outbox) error {
	active, err := e.store.ListProducers(ctx, producer.ListOpts{ActiveOnly: true})
	if err != nil {
		return err
	}
	for _, pr := range active {
		if !pr.Stake.LessThan(p.MinStake) {
			continue
		}
		pr.Active = false
		pr.Touch(e.now())
		if err := e.store.UpdateProducer(ctx, pr); err != nil {
			return err
		}
		snapshot := *pr
		out.add(func(ctx context.Context) { e.plugins.EmitProducerStatusChanged(ctx, &snapshot, "minimum stake raised") })
	}
	return nil
}

// usable reports whether pr may schedule events and submit results under p.
func usable(p *params.Params, pr *producer.Producer) error {
	if pr.Banned {
		return ErrProducerBanned
	}
	if !pr.Active {
		return ErrProducerInactive
	}
	if pr.Stake.LessThan(p.MinStake) {
		return fmt.Errorf("%w: stake %s below minimum %s", ErrProducerInactive, pr.Stake, p.MinStake)
	}
	return nil
}

// GetProducer returns a producer by id.
func (e *Engine) GetProducer(ctx context.Context, producerID id.ProducerID) (*producer.Producer, error) {
	return e.store.GetProducer(ctx, producerID)
}

// ListProducers lists producers.
func (e *Engine) ListProducers(ctx context.Context, opts producer.ListOpts) ([]*producer.Producer, error) {
	return e.store.ListProducers(ctx, opts)
}

// GetEvent returns an event by id.
func (e *Engine) GetEvent(ctx context.Context, eventID id.EventID) (*producer.Event, error) {
	return e.store.GetEvent(ctx, eventID)
}

// ListEvents lists a producer's events.
func (e *Engine) ListEvents(ctx context.Context, producerID id.ProducerID, opts producer.ListOpts) ([]*producer.Event, error) {
	return e.store.ListEvents(ctx, producerID, opts)
}

// ──────────────────────────────────────────────────
// Descriptive metadata
// ──────────────────────────────────────────────────

// DescribeProducer stores a free-form description for a producer the caller
// owns.
func (e *Engine) DescribeProducer(ctx context.Context, caller types.Principal, producerID id.ProducerID, description string) error {
	return e.run(ctx, func(ctx context.Context, _ *params.Params, _ *outbox) error {
		pr, err := e.store.GetProducer(ctx, producerID)
		if err != nil {
			return err
		}
		if !pr.OwnedBy(caller) {
			return ErrNotOwner
		}
		return e.metadata.Put(ctx, metadata.ProducerKey(producerID.String()), description)
	})
}

// DescribeEvent stores a free-form description for an event of a producer
// the caller owns.
func (e *Engine) DescribeEvent(ctx context.Context, caller types.Principal, eventID id.EventID, description string) error {
	return e.run(ctx, func(ctx context.Context, _ *params.Params, _ *outbox) error {
		ev, err := e.store.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		pr, err := e.store.GetProducer(ctx, ev.ProducerID)
		if err != nil {
			return err
		}
		if !pr.OwnedBy(caller) {
			return ErrNotOwner
		}
		return e.metadata.Put(ctx, metadata.EventKey(eventID.String()), description)
	})
}

// ProducerDescription returns the stored description, or "" if none.
func (e *Engine) ProducerDescription(ctx context.Context, producerID id.ProducerID) (string, error) {
	return e.describe(ctx, metadata.ProducerKey(producerID.String()))
}

// EventDescription returns the stored description, or "" if none.
func (e *Engine) EventDescription(ctx context.Context, eventID id.EventID) (string, error) {
	return e.describe(ctx, metadata.EventKey(eventID.String()))
}

func (e *Engine) describe(ctx context.Context, key string) (string, error) {
	v, err := e.metadata.Get(ctx, key)
	if errors.Is(err, metadata.ErrNotFound) {
		return "", nil
	}
	return v, err
}
