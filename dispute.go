package verity

import (
	"context"
	"fmt"
	"strings"

	"github.com/xraph/verity/billing"
	"github.com/xraph/verity/dispute"
	"github.com/xraph/verity/id"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/result"
	"github.com/xraph/verity/types"
)

// ──────────────────────────────────────────────────
// Dispute engine
// ──────────────────────────────────────────────────

// CreateDispute challenges a result inside its window. The challenger posts
// exactly the configured challenge stake, which the engine holds until the
// dispute is resolved.
func (e *Engine) CreateDispute(ctx context.Context, challenger types.Principal, eventID id.EventID, stake types.Money, reason, evidenceRef string) (*dispute.Dispute, error) {
	var d *dispute.Dispute
	err := e.run(ctx, func(ctx context.Context, p *params.Params, out *outbox) error {
		if err := requirePrincipal(challenger); err != nil {
			return err
		}
		res, err := e.store.GetResult(ctx, eventID)
		if err != nil {
			return err
		}
		pr, err := e.store.GetProducer(ctx, res.ProducerID)
		if err != nil {
			return err
		}
		now := e.now()
		switch {
		case pr.OwnedBy(challenger):
			return ErrSelfChallenge
		case res.Status == result.StatusFinalized:
			return ErrAlreadyFinalized
		case res.Status == result.StatusInvalidated:
			return ErrResultInvalidated
		case res.Disputed():
			return ErrAlreadyDisputed
		case res.WindowElapsed(now):
			return ErrWindowClosed
		case !stake.Equal(p.ChallengeStake):
			return fmt.Errorf("%w: posted %s, required %s", ErrWrongStakeAmount, stake, p.ChallengeStake)
		case strings.TrimSpace(reason) == "":
			return ValidationError{Field: "reason", Message: "must not be empty"}
		}

		d = &dispute.Dispute{
			Entity:      types.NewEntity(now),
			ID:          id.NewDisputeID(),
			EventID:     res.EventID,
			ProducerID:  res.ProducerID,
			Challenger:  challenger,
			Stake:       stake,
			EvidenceRef: evidenceRef,
			Reason:      reason,
			Outcome:     dispute.OutcomePending,
		}
		if err := e.store.CreateDispute(ctx, d); err != nil {
			return err
		}
		res.Status = result.StatusDisputed
		res.DisputeID = d.ID
		res.Touch(now)
		if err := e.store.UpdateResult(ctx, res); err != nil {
			return err
		}
		if err := e.fund(ctx, challenger, stake, "challenge stake"); err != nil {
			return err
		}
		created := *d
		out.add(func(ctx context.Context) { e.plugins.EmitDisputeCreated(ctx, &created) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("dispute created",
		"dispute_id", d.ID.String(),
		"event_id", eventID.String(),
		"challenger", challenger,
	)
	return d, nil
}

// ResolveDispute applies an allow-listed resolver's verdict.
//
// Accepted: the producer is slashed by the configured penalty,
// rewardPercent of the slashed amount goes to the challenger together with
// the returned stake, the rest goes to the challenger pool, and the result
// is invalidated.
//
// Rejected: the challenge stake is forfeited and the result is finalized.
func (e *Engine) ResolveDispute(ctx context.Context, resolver types.Principal, disputeID id.DisputeID, accepted bool, rewardPercent int) (*dispute.Dispute, error) {
	var d *dispute.Dispute
	err := e.run(ctx, func(ctx context.Context, p *params.Params, out *outbox) error {
		if !p.IsResolver(resolver) {
			return ErrNotResolver
		}
		if rewardPercent < 0 || rewardPercent > 100 {
			return fmt.Errorf("%w: %d", ErrInvalidRewardPercent, rewardPercent)
		}
		var err error
		d, err = e.store.GetDispute(ctx, disputeID)
		if err != nil {
			return err
		}
		if d.Resolved {
			return ErrDisputeResolved
		}
		res, err := e.store.GetResult(ctx, d.EventID)
		if err != nil {
			return err
		}
		pr, err := e.store.GetProducer(ctx, d.ProducerID)
		if err != nil {
			return err
		}

		now := e.now()
		d.Resolved = true
		d.Resolver = resolver
		d.RewardPercent = rewardPercent
		d.ResolvedAt = &now
		d.Touch(now)

		if accepted {
			d.Outcome = dispute.OutcomeAccepted
			slashed, err := e.slash(ctx, p, pr, p.SlashAmount, "dispute "+d.ID.String()+" accepted", out)
			if err != nil {
				return err
			}
			reward := slashed.Percent(int64(rewardPercent))
			d.Slashed = slashed
			d.ChallengerReward = reward
			if err := e.creditPool(ctx, p, billing.PoolChallenger, slashed.Subtract(reward)); err != nil {
				return err
			}
			if err := e.setReputation(ctx, pr, pr.Reputation-p.ReputationOnSlash, out); err != nil {
				return err
			}
			if err := e.settleResult(ctx, res, result.StatusInvalidated); err != nil {
				return err
			}
			if err := e.store.UpdateDispute(ctx, d); err != nil {
				return err
			}
			if err := e.pay(ctx, d.Challenger, reward.Add(d.Stake), "dispute "+d.ID.String()+" reward"); err != nil {
				return err
			}
			invalidated := res.Clone()
			out.add(func(ctx context.Context) { e.plugins.EmitResultInvalidated(ctx, invalidated) })
		} else {
			d.Outcome = dispute.OutcomeRejected
			d.Slashed = types.Zero(p.Currency)
			d.ChallengerReward = types.Zero(p.Currency)
			if err := e.forfeit(ctx, p, pr.ID, d.Stake); err != nil {
				return err
			}
			if err := e.setReputation(ctx, pr, pr.Reputation+p.ReputationOnUpheld, out); err != nil {
				return err
			}
			if err := e.settleResult(ctx, res, result.StatusFinalized); err != nil {
				return err
			}
			if err := e.store.UpdateDispute(ctx, d); err != nil {
				return err
			}
			finalized := res.Clone()
			out.add(func(ctx context.Context) { e.plugins.EmitResultFinalized(ctx, finalized) })
		}

		resolved := *d
		out.add(func(ctx context.Context) { e.plugins.EmitDisputeResolved(ctx, &resolved) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("dispute resolved",
		"dispute_id", disputeID.String(),
		"outcome", string(d.Outcome),
		"slashed", d.Slashed.String(),
		"reward", d.ChallengerReward.String(),
	)
	return d, nil
}

// forfeit routes a rejected challenger's stake per the forfeit policy.
func (e *Engine) forfeit(ctx context.Context, p *params.Params, producerID id.ProducerID, stake types.Money) error {
	if p.Forfeit == params.ForfeitToProducer {
		earn, err := e.earnings(ctx, p, producerID)
		if err != nil {
			return err
		}
		earn.TotalEarned = earn.TotalEarned.Add(stake)
		earn.Pending = earn.Pending.Add(stake)
		earn.Touch(e.now())
		return e.store.PutEarnings(ctx, earn)
	}
	return e.creditPool(ctx, p, billing.PoolChallenger, stake)
}

// GetDispute returns a dispute by id.
func (e *Engine) GetDispute(ctx context.Context, disputeID id.DisputeID) (*dispute.Dispute, error) {
	return e.store.GetDispute(ctx, disputeID)
}

// ListDisputes lists disputes.
func (e *Engine) ListDisputes(ctx context.Context, opts dispute.ListOpts) ([]*dispute.Dispute, error) {
	return e.store.ListDisputes(ctx, opts)
}
