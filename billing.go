package verity

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/verity/billing"
	"github.com/xraph/verity/id"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/result"
	"github.com/xraph/verity/types"
)

const quotaDayLayout = "2006-01-02"

// ──────────────────────────────────────────────────
// Deposits
// ──────────────────────────────────────────────────

// DepositBalance credits cash to a consumer account, creating it on first
// use, together with the volume bonus for the deposit's tier. A referrer may
// be named on the first deposit only; both parties then receive a capped
// bonus credit.
func (e *Engine) DepositBalance(ctx context.Context, consumer types.Principal, amount types.Money, referrer types.Principal) (*billing.Deposit, error) {
	var dep *billing.Deposit
	err := e.run(ctx, func(ctx context.Context, p *params.Params, out *outbox) error {
		if err := requirePrincipal(consumer); err != nil {
			return err
		}
		if err := requireMoney(p, "amount", amount); err != nil {
			return err
		}
		if !referrer.IsZero() && referrer == consumer {
			return ErrSelfReferral
		}
		now := e.now()
		acct, err := e.account(ctx, p, consumer)
		if err != nil {
			return err
		}

		dep = &billing.Deposit{
			ID:            id.NewDepositID(),
			Consumer:      consumer,
			Amount:        amount,
			VolumeBonus:   amount.Bps(p.BonusBps(amount.Amount)),
			ReferralBonus: types.Zero(p.Currency),
			ReferrerBonus: types.Zero(p.Currency),
			CreatedAt:     now,
		}

		if !referrer.IsZero() {
			first := acct.Deposited.IsZero() && !acct.ReferralClaimed
			if !p.ReferralEnabled || !first {
				return ErrReferralIneligible
			}
			dep.Referrer = referrer
			dep.ReferralBonus = amount.Bps(p.RefereeBps).Min(p.ReferralCap)
			dep.ReferrerBonus = amount.Bps(p.ReferrerBps).Min(p.ReferralCap)

			ref, err := e.account(ctx, p, referrer)
			if err != nil {
				return err
			}
			ref.Bonus = ref.Bonus.Add(dep.ReferrerBonus)
			ref.Touch(now)
			if err := e.store.PutAccount(ctx, ref); err != nil {
				return err
			}
			acct.ReferredBy = referrer
			acct.ReferralClaimed = true
		}

		acct.Cash = acct.Cash.Add(amount)
		acct.Bonus = acct.Bonus.Add(dep.VolumeBonus).Add(dep.ReferralBonus)
		acct.Deposited = acct.Deposited.Add(amount)
		acct.Touch(now)
		if err := e.store.PutAccount(ctx, acct); err != nil {
			return err
		}
		if err := e.store.CreateDeposit(ctx, dep); err != nil {
			return err
		}
		if err := e.fund(ctx, consumer, amount, "deposit"); err != nil {
			return err
		}
		out.add(func(ctx context.Context) { e.plugins.EmitBalanceDeposited(ctx, dep) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("balance deposited",
		"consumer", consumer,
		"amount", amount.String(),
		"volume_bonus", dep.VolumeBonus.String(),
		"referral_bonus", dep.ReferralBonus.String(),
	)
	return dep, nil
}

// account loads a consumer account, or returns a fresh unsaved one.
func (e *Engine) account(ctx context.Context, p *params.Params, consumer types.Principal) (*billing.Account, error) {
	acct, err := e.store.GetAccount(ctx, consumer)
	if IsNotFound(err) {
		return billing.NewAccount(consumer, p.Currency, e.now()), nil
	}
	return acct, err
}

// ──────────────────────────────────────────────────
// Charging
// ──────────────────────────────────────────────────

// ChargeQuery grants a consumer access to a finalized result of producerID
// without reading it. Reads of the same event afterwards are free.
func (e *Engine) ChargeQuery(ctx context.Context, consumer types.Principal, producerID id.ProducerID, eventID id.EventID) (*billing.Grant, error) {
	var grant *billing.Grant
	err := e.run(ctx, func(ctx context.Context, p *params.Params, out *outbox) error {
		res, err := e.readable(ctx, consumer, eventID)
		if err != nil {
			return err
		}
		if res.ProducerID.String() != producerID.String() {
			return ValidationError{Field: "producer_id", Message: "event belongs to another producer"}
		}
		grant, err = e.chargeQuery(ctx, p, consumer, res, out)
		return err
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// chargeQuery settles access to res for consumer: an existing grant costs
// nothing, then free quota is used, then the fee is debited bonus-first and
// split between the producer, the treasury and the challenger pool.
func (e *Engine) chargeQuery(ctx context.Context, p *params.Params, consumer types.Principal, res *result.Result, out *outbox) (*billing.Grant, error) {
	grant, err := e.store.GetGrant(ctx, consumer, res.EventID)
	if err == nil {
		return grant, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	now := e.now()
	acct, err := e.account(ctx, p, consumer)
	if err != nil {
		return nil, err
	}

	zero := types.Zero(p.Currency)
	charge := &billing.Charge{
		ID:              id.NewChargeID(),
		Consumer:        consumer,
		EventID:         res.EventID,
		ProducerID:      res.ProducerID,
		Fee:             zero,
		FromBonus:       zero,
		FromCash:        zero,
		ProducerShare:   zero,
		ProtocolShare:   zero,
		ChallengerShare: zero,
		ChargedAt:       now,
	}

	if useFreeQuota(p, acct, now) {
		charge.Free = true
	} else {
		if acct.Total().LessThan(p.QueryFee) {
			return nil, fmt.Errorf("%w: have %s, fee %s", ErrInsufficientBalance, acct.Total(), p.QueryFee)
		}
		charge.Fee = p.QueryFee
		charge.FromBonus, charge.FromCash = acct.Debit(p.QueryFee)
		shares := p.QueryFee.SplitBps(p.ProducerBps, p.ProtocolBps, p.ChallengerBps)
		charge.ProducerShare, charge.ProtocolShare, charge.ChallengerShare = shares[0], shares[1], shares[2]

		earn, err := e.earnings(ctx, p, res.ProducerID)
		if err != nil {
			return nil, err
		}
		earn.TotalEarned = earn.TotalEarned.Add(charge.ProducerShare)
		earn.Pending = earn.Pending.Add(charge.ProducerShare)
		earn.QueryCount++
		earn.Touch(now)
		if err := e.store.PutEarnings(ctx, earn); err != nil {
			return nil, err
		}
		if err := e.creditPool(ctx, p, billing.PoolTreasury, charge.ProtocolShare); err != nil {
			return nil, err
		}
		if err := e.creditPool(ctx, p, billing.PoolChallenger, charge.ChallengerShare); err != nil {
			return nil, err
		}
	}

	acct.Touch(now)
	if err := e.store.PutAccount(ctx, acct); err != nil {
		return nil, err
	}
	if err := e.store.CreateCharge(ctx, charge); err != nil {
		return nil, err
	}
	grant = &billing.Grant{
		Consumer:  consumer,
		EventID:   res.EventID,
		ChargeID:  charge.ID,
		Free:      charge.Free,
		GrantedAt: now,
	}
	if err := e.store.CreateGrant(ctx, grant); err != nil {
		return nil, err
	}
	out.add(func(ctx context.Context) { e.plugins.EmitQueryCharged(ctx, charge) })
	return grant, nil
}

// useFreeQuota consumes one free read if the account has one left.
func useFreeQuota(p *params.Params, acct *billing.Account, now time.Time) bool {
	switch p.QuotaPolicy {
	case params.QuotaLifetime:
		if acct.LifetimeFreeUsed >= p.FreeQuota {
			return false
		}
		acct.LifetimeFreeUsed++
	default:
		day := now.UTC().Format(quotaDayLayout)
		if acct.QuotaDay != day {
			acct.QuotaDay = day
			acct.QuotaUsed = 0
		}
		if acct.QuotaUsed >= p.FreeQuota {
			return false
		}
		acct.QuotaUsed++
	}
	return true
}

// ──────────────────────────────────────────────────
// Earnings and pools
// ──────────────────────────────────────────────────

// WithdrawEarnings pays out all pending earnings to the producer's owner.
func (e *Engine) WithdrawEarnings(ctx context.Context, caller types.Principal, producerID id.ProducerID) (*billing.Withdrawal, error) {
	var w *billing.Withdrawal
	err := e.run(ctx, func(ctx context.Context, p *params.Params, out *outbox) error {
		pr, err := e.store.GetProducer(ctx, producerID)
		if err != nil {
			return err
		}
		if !pr.OwnedBy(caller) {
			return ErrNotOwner
		}
		earn, err := e.earnings(ctx, p, producerID)
		if err != nil {
			return err
		}
		if !earn.Pending.IsPositive() {
			return ErrNothingToWithdraw
		}

		now := e.now()
		amount := earn.Pending
		earn.Pending = types.Zero(p.Currency)
		earn.Withdrawn = earn.Withdrawn.Add(amount)
		earn.Touch(now)
		if err := e.store.PutEarnings(ctx, earn); err != nil {
			return err
		}
		w = &billing.Withdrawal{
			ID:         id.NewWithdrawalID(),
			Kind:       billing.WithdrawEarnings,
			ProducerID: producerID,
			To:         caller,
			Amount:     amount,
			CreatedAt:  now,
		}
		if err := e.store.CreateWithdrawal(ctx, w); err != nil {
			return err
		}
		if err := e.pay(ctx, caller, amount, "earnings "+producerID.String()); err != nil {
			return err
		}
		out.add(func(ctx context.Context) { e.plugins.EmitWithdrawal(ctx, w) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("earnings withdrawn", "producer_id", producerID.String(), "amount", w.Amount.String())
	return w, nil
}

// PayoutTreasury transfers protocol treasury funds. Administrators only.
func (e *Engine) PayoutTreasury(ctx context.Context, admin, to types.Principal, amount types.Money, memo string) (*billing.Payout, error) {
	return e.payout(ctx, admin, billing.PoolTreasury, to, amount, memo)
}

// PayoutChallengerPool transfers challenger-pool funds, typically as a
// bounty. Administrators only.
func (e *Engine) PayoutChallengerPool(ctx context.Context, admin, to types.Principal, amount types.Money, memo string) (*billing.Payout, error) {
	return e.payout(ctx, admin, billing.PoolChallenger, to, amount, memo)
}

func (e *Engine) payout(ctx context.Context, admin types.Principal, pool billing.Pool, to types.Principal, amount types.Money, memo string) (*billing.Payout, error) {
	var po *billing.Payout
	err := e.run(ctx, func(ctx context.Context, p *params.Params, out *outbox) error {
		if !p.IsAdmin(admin) {
			return ErrNotAdmin
		}
		if err := requirePrincipal(to); err != nil {
			return err
		}
		if err := requireMoney(p, "amount", amount); err != nil {
			return err
		}
		pools, err := e.store.GetPools(ctx, p.Currency)
		if err != nil {
			return err
		}
		balance := &pools.Treasury
		if pool == billing.PoolChallenger {
			balance = &pools.ChallengerPool
		}
		if balance.LessThan(amount) {
			return fmt.Errorf("%w: %s pool holds %s", ErrInsufficientPool, pool, *balance)
		}
		now := e.now()
		*balance = balance.Subtract(amount)
		pools.UpdatedAt = now
		if err := e.store.PutPools(ctx, pools); err != nil {
			return err
		}
		po = &billing.Payout{
			ID:        id.NewPayoutID(),
			Pool:      pool,
			To:        to,
			Amount:    amount,
			Memo:      memo,
			CreatedAt: now,
		}
		if err := e.store.CreatePayout(ctx, po); err != nil {
			return err
		}
		if err := e.pay(ctx, to, amount, string(pool)+" payout"); err != nil {
			return err
		}
		out.add(func(ctx context.Context) { e.plugins.EmitPoolPayout(ctx, po) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("pool payout", "pool", string(pool), "to", to, "amount", amount.String())
	return po, nil
}

func (e *Engine) creditPool(ctx context.Context, p *params.Params, pool billing.Pool, amount types.Money) error {
	if !amount.IsPositive() {
		return nil
	}
	pools, err := e.store.GetPools(ctx, p.Currency)
	if err != nil {
		return err
	}
	switch pool {
	case billing.PoolTreasury:
		pools.Treasury = pools.Treasury.Add(amount)
	default:
		pools.ChallengerPool = pools.ChallengerPool.Add(amount)
	}
	pools.UpdatedAt = e.now()
	return e.store.PutPools(ctx, pools)
}

func (e *Engine) earnings(ctx context.Context, p *params.Params, producerID id.ProducerID) (*billing.Earnings, error) {
	earn, err := e.store.GetEarnings(ctx, producerID)
	if IsNotFound(err) {
		return billing.NewEarnings(producerID, p.Currency, e.now()), nil
	}
	return earn, err
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// GetAccount returns a consumer account.
func (e *Engine) GetAccount(ctx context.Context, consumer types.Principal) (*billing.Account, error) {
	return e.store.GetAccount(ctx, consumer)
}

// GetEarnings returns a producer's earnings, zero if it has none yet.
func (e *Engine) GetEarnings(ctx context.Context, producerID id.ProducerID) (*billing.Earnings, error) {
	p, err := e.currentParams(ctx)
	if err != nil {
		return nil, err
	}
	return e.earnings(ctx, p, producerID)
}

// GetPools returns the treasury and challenger pool balances.
func (e *Engine) GetPools(ctx context.Context) (*billing.Pools, error) {
	p, err := e.currentParams(ctx)
	if err != nil {
		return nil, err
	}
	return e.store.GetPools(ctx, p.Currency)
}

// ListCharges lists a consumer's charge receipts.
func (e *Engine) ListCharges(ctx context.Context, consumer types.Principal, opts billing.ListOpts) ([]*billing.Charge, error) {
	return e.store.ListCharges(ctx, consumer, opts)
}

// HasAccess reports whether consumer already holds a grant for eventID.
func (e *Engine) HasAccess(ctx context.Context, consumer types.Principal, eventID id.EventID) (bool, error) {
	_, err := e.store.GetGrant(ctx, consumer, eventID)
	if IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}
