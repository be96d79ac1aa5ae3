package verity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/verity"
	"github.com/xraph/verity/billing"
	"github.com/xraph/verity/id"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/result"
	"github.com/xraph/verity/types"
)

func TestScenarioWindowedFinalization(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	pr := h.producer(t)
	ev, err := h.eng.ScheduleEvent(ctx, owner, pr.ID, t0.Add(3600*time.Second), []byte("kickoff"))
	require.NoError(t, err)

	h.clock.Advance(3700 * time.Second)
	h.submit(t, ev.ID)

	h.clock.Advance(time.Second)
	_, err = h.eng.FinalizeResult(ctx, ev.ID)
	require.ErrorIs(t, err, verity.ErrWindowNotElapsed)
	assert.ErrorIs(t, err, verity.ErrWindow)
	assert.True(t, verity.IsRetryable(err))

	h.clock.Advance(900 * time.Second)
	ok, err := h.eng.FinalizeResult(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.eng.FinalizeResult(ctx, ev.ID)
	require.NoError(t, err)
	assert.False(t, ok, "second finalize is a no-op")

	got, err := h.eng.GetProducer(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, 501, got.Reputation)
}

func TestScenarioFreeQuotaThenPaid(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pr, ids := h.published(t, 4)

	for _, eventID := range ids[:3] {
		v, err := h.eng.GetResultField(ctx, reader, eventID, "winner")
		require.NoError(t, err)
		assert.Equal(t, "home", v)
	}

	_, err := h.eng.GetResultField(ctx, reader, ids[3], "winner")
	require.ErrorIs(t, err, verity.ErrInsufficientBalance)
	assert.Equal(t, verity.KindEconomic, verity.KindOf(err))

	_, err = h.eng.DepositBalance(ctx, reader, types.USD(100), "")
	require.NoError(t, err)

	v, err := h.eng.GetResultField(ctx, reader, ids[3], "winner")
	require.NoError(t, err)
	assert.Equal(t, "home", v)

	acct, err := h.eng.GetAccount(ctx, reader)
	require.NoError(t, err)
	assert.True(t, acct.Total().IsZero(), "exactly the fee was debited")

	earn, err := h.eng.GetEarnings(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(80), earn.Pending.Amount)
	assert.Equal(t, int64(1), earn.QueryCount)

	pools, err := h.eng.GetPools(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(15), pools.Treasury.Amount)
	assert.Equal(t, int64(5), pools.ChallengerPool.Amount)
}

func TestScenarioAcceptedDispute(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pr := h.producer(t)
	ids := h.events(t, pr, 1)
	h.clock.Advance(time.Hour)
	h.submit(t, ids[0])

	h.clock.Advance(10 * time.Second)
	d, err := h.eng.CreateDispute(ctx, watchdog, ids[0], types.USD(10000), "score is wrong", "ipfs://evidence")
	require.NoError(t, err)

	status, err := h.eng.ResultStatus(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, result.StatusDisputed, status.Status)
	assert.Nil(t, status.Payload)

	resolved, err := h.eng.ResolveDispute(ctx, resolver, d.ID, true, 50)
	require.NoError(t, err)
	assert.Equal(t, types.USD(25000), resolved.ChallengerReward)
	assert.Equal(t, types.USD(50000), resolved.Slashed)
	assert.Equal(t, types.USD(35000), h.bank.received(watchdog), "reward plus returned stake")

	got, err := h.eng.GetProducer(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, 450, got.Reputation)
	assert.Equal(t, types.USD(50000), got.Stake)
	assert.False(t, got.Active, "stake fell below the minimum")

	pools, err := h.eng.GetPools(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.USD(25000), pools.ChallengerPool)

	_, err = h.eng.GetFullResult(ctx, reader, ids[0])
	assert.ErrorIs(t, err, verity.ErrResultInvalidated)

	_, err = h.eng.ResolveDispute(ctx, resolver, d.ID, false, 0)
	assert.ErrorIs(t, err, verity.ErrDisputeResolved)
}

func TestRejectedDispute(t *testing.T) {
	tests := []struct {
		name       string
		forfeit    params.ForfeitPolicy
		wantPool   int64
		wantEarned int64
	}{
		{"to pool", params.ForfeitToPool, 10000, 0},
		{"to producer", params.ForfeitToProducer, 0, 10000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			p := params.Default()
			p.Forfeit = tt.forfeit
			h := newHarness(t, verity.WithParams(p))
			pr := h.producer(t)
			ids := h.events(t, pr, 1)
			h.clock.Advance(time.Hour)
			h.submit(t, ids[0])

			d, err := h.eng.CreateDispute(ctx, watchdog, ids[0], types.USD(10000), "looks off", "")
			require.NoError(t, err)
			resolved, err := h.eng.ResolveDispute(ctx, resolver, d.ID, false, 0)
			require.NoError(t, err)
			assert.Equal(t, "rejected", string(resolved.Outcome))
			assert.True(t, h.bank.received(watchdog).IsZero())

			got, err := h.eng.GetProducer(ctx, pr.ID)
			require.NoError(t, err)
			assert.Equal(t, 510, got.Reputation)
			assert.Equal(t, types.USD(100000), got.Stake)

			pools, err := h.eng.GetPools(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPool, pools.ChallengerPool.Amount)
			earn, err := h.eng.GetEarnings(ctx, pr.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantEarned, earn.Pending.Amount)

			_, err = h.eng.GetFullResult(ctx, reader, ids[0])
			assert.NoError(t, err, "upheld result is readable")
		})
	}
}

func TestCreateDisputePreconditions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pr := h.producer(t)
	ids := h.events(t, pr, 2)
	h.clock.Advance(time.Hour)
	h.submit(t, ids[0])
	h.submit(t, ids[1])
	stake := types.USD(10000)

	_, err := h.eng.CreateDispute(ctx, owner, ids[0], stake, "mine", "")
	assert.ErrorIs(t, err, verity.ErrSelfChallenge)

	_, err = h.eng.CreateDispute(ctx, watchdog, ids[0], types.USD(9999), "cheap", "")
	assert.ErrorIs(t, err, verity.ErrWrongStakeAmount)
	assert.ErrorIs(t, err, verity.ErrEconomic)

	_, err = h.eng.CreateDispute(ctx, watchdog, ids[0], stake, "  ", "")
	assert.ErrorIs(t, err, verity.ErrValidation)

	_, err = h.eng.CreateDispute(ctx, watchdog, id.NewEventID(), stake, "missing", "")
	assert.True(t, verity.IsNotFound(err))

	_, err = h.eng.CreateDispute(ctx, watchdog, ids[0], stake, "wrong", "")
	require.NoError(t, err)
	_, err = h.eng.CreateDispute(ctx, "other", ids[0], stake, "also wrong", "")
	assert.ErrorIs(t, err, verity.ErrAlreadyDisputed)

	h.clock.Advance(15 * time.Minute)
	_, err = h.eng.CreateDispute(ctx, watchdog, ids[1], stake, "late", "")
	assert.ErrorIs(t, err, verity.ErrWindowClosed)
	assert.False(t, verity.IsRetryable(err))
}

func TestFinalizeAndDisputeOrdering(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pr := h.producer(t)
	ids := h.events(t, pr, 2)
	h.clock.Advance(time.Hour)
	h.submit(t, ids[0])
	h.submit(t, ids[1])

	_, err := h.eng.CreateDispute(ctx, watchdog, ids[0], types.USD(10000), "wrong", "")
	require.NoError(t, err)

	h.clock.Advance(15 * time.Minute)
	_, err = h.eng.FinalizeResult(ctx, ids[0])
	assert.ErrorIs(t, err, verity.ErrResultDisputed)

	ok, err := h.eng.FinalizeResult(ctx, ids[1])
	require.NoError(t, err)
	require.True(t, ok)
	_, err = h.eng.CreateDispute(ctx, watchdog, ids[1], types.USD(10000), "too late", "")
	assert.ErrorIs(t, err, verity.ErrAlreadyFinalized)
}

func TestSubmitResultOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pr := h.producer(t)
	ids := h.events(t, pr, 1)

	_, err := h.eng.SubmitResult(ctx, owner, ids[0], verity.Submission{Payload: []byte("x")})
	require.ErrorIs(t, err, verity.ErrEventNotStarted)
	assert.True(t, verity.IsRetryable(err))

	h.clock.Advance(time.Hour)
	_, err = h.eng.SubmitResult(ctx, "mallory", ids[0], verity.Submission{Payload: []byte("x")})
	assert.ErrorIs(t, err, verity.ErrNotOwner)

	_, err = h.eng.SubmitResult(ctx, owner, ids[0], verity.Submission{})
	assert.ErrorIs(t, err, verity.ErrEmptyPayload)

	res, err := h.eng.SubmitResult(ctx, owner, ids[0], verity.Submission{Payload: []byte("first")})
	require.NoError(t, err)
	assert.Equal(t, verity.Fingerprint([]byte("first")), res.Fingerprint)
	assert.Equal(t, h.clock.Now().Add(15*time.Minute), res.FinalizeDeadline)

	for range 3 {
		_, err = h.eng.SubmitResult(ctx, owner, ids[0], verity.Submission{Payload: []byte("second")})
		require.ErrorIs(t, err, verity.ErrAlreadySubmitted)
		assert.ErrorIs(t, err, verity.ErrState)
	}

	ev, err := h.eng.GetEvent(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, ev.HasResult)
}

func TestSubmitResultSchema(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pr := h.producer(t)
	ids := h.events(t, pr, 1)
	h.clock.Advance(time.Hour)

	declared := `{"type":"object","required":["home","away"]}`
	_, err := h.eng.SubmitResult(ctx, owner, ids[0], verity.Submission{Payload: []byte(`{"home":1}`), Schema: declared})
	assert.ErrorIs(t, err, verity.ErrPayloadRejected)

	_, err = h.eng.SubmitResult(ctx, owner, ids[0], verity.Submission{Payload: []byte(`{}`), Schema: `{"type":`})
	assert.ErrorIs(t, err, verity.ErrValidation)

	_, err = h.eng.SubmitResult(ctx, owner, ids[0], verity.Submission{Payload: []byte(`{"home":1,"away":0}`), Schema: declared})
	assert.NoError(t, err)
}

func TestBatchFinalizeResults(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pr := h.producer(t)
	ids := h.events(t, pr, 3)
	h.clock.Advance(time.Hour)
	for _, eventID := range ids {
		h.submit(t, eventID)
	}
	_, err := h.eng.CreateDispute(ctx, watchdog, ids[2], types.USD(10000), "wrong", "")
	require.NoError(t, err)

	h.clock.Advance(15 * time.Minute)
	_, err = h.eng.FinalizeResult(ctx, ids[0])
	require.NoError(t, err)

	pending, err := h.eng.ListPendingResults(ctx, h.clock.Now(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ids[1], pending[0].EventID)

	n, err := h.eng.BatchFinalizeResults(ctx, append(ids, id.NewEventID()))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	status, err := h.eng.ResultStatus(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, result.StatusFinalized, status.Status)
}

func TestSlashStakeClamps(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pr, err := h.eng.Register(ctx, owner, types.USD(150000))
	require.NoError(t, err)

	_, err = h.eng.SlashStake(ctx, owner, pr.ID, types.USD(1), "nope")
	assert.ErrorIs(t, err, verity.ErrNotAdmin)

	slashed, err := h.eng.SlashStake(ctx, admin, pr.ID, types.USD(10000), "late result")
	require.NoError(t, err)
	assert.Equal(t, types.USD(10000), slashed)
	got, _ := h.eng.GetProducer(ctx, pr.ID)
	assert.Equal(t, types.USD(140000), got.Stake)
	assert.True(t, got.Active)

	slashed, err = h.eng.SlashStake(ctx, admin, pr.ID, types.USD(1000000), "fraud")
	require.NoError(t, err)
	assert.Equal(t, types.USD(140000), slashed)
	got, _ = h.eng.GetProducer(ctx, pr.ID)
	assert.True(t, got.Stake.IsZero())
	assert.False(t, got.Active)

	pools, err := h.eng.GetPools(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.USD(150000), pools.ChallengerPool)
}

func TestRegistryChecks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.eng.Register(ctx, owner, types.USD(99999))
	assert.ErrorIs(t, err, verity.ErrStakeBelowMinimum)
	_, err = h.eng.Register(ctx, owner, types.New(100000, "eur"))
	assert.ErrorIs(t, err, verity.ErrCurrencyMismatch)
	_, err = h.eng.Register(ctx, "", types.USD(100000))
	assert.ErrorIs(t, err, verity.ErrMissingPrincipal)

	pr := h.producer(t)
	assert.Equal(t, 500, pr.Reputation)
	assert.True(t, pr.Active)

	_, err = h.eng.ScheduleEvent(ctx, "mallory", pr.ID, t0.Add(time.Hour), nil)
	assert.ErrorIs(t, err, verity.ErrNotOwner)
	_, err = h.eng.ScheduleEvent(ctx, owner, pr.ID, t0, nil)
	assert.ErrorIs(t, err, verity.ErrEventNotInFuture)

	require.NoError(t, h.eng.UpdateReputation(ctx, admin, pr.ID, 900))
	assert.ErrorIs(t, h.eng.UpdateReputation(ctx, admin, pr.ID, 1001), verity.ErrInvalidReputation)
	assert.ErrorIs(t, h.eng.UpdateReputation(ctx, owner, pr.ID, 1000), verity.ErrNotAdmin)

	require.NoError(t, h.eng.BanProducer(ctx, admin, pr.ID, "abuse"))
	_, err = h.eng.ScheduleEvent(ctx, owner, pr.ID, t0.Add(time.Hour), nil)
	assert.ErrorIs(t, err, verity.ErrProducerBanned)

	require.NoError(t, h.eng.UnbanProducer(ctx, admin, pr.ID, "appeal"))
	require.NoError(t, h.eng.DeactivateProducer(ctx, owner, pr.ID, "pause"))
	_, err = h.eng.ScheduleEvent(ctx, owner, pr.ID, t0.Add(time.Hour), nil)
	assert.ErrorIs(t, err, verity.ErrProducerInactive)

	got, err := h.eng.AddStake(ctx, owner, pr.ID, types.USD(1))
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, 900, got.Reputation)
	assert.Equal(t, int64(0), got.EventCount)
}

func TestWithdrawStake(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pr, err := h.eng.Register(ctx, owner, types.USD(150000))
	require.NoError(t, err)
	ids := h.events(t, pr, 1)
	h.clock.Advance(time.Hour)
	h.submit(t, ids[0])

	_, err = h.eng.WithdrawStake(ctx, owner, pr.ID, types.USD(50000))
	assert.ErrorIs(t, err, verity.ErrPendingResults)

	h.clock.Advance(15 * time.Minute)
	_, err = h.eng.FinalizeResult(ctx, ids[0])
	require.NoError(t, err)

	_, err = h.eng.WithdrawStake(ctx, owner, pr.ID, types.USD(50001))
	assert.ErrorIs(t, err, verity.ErrStakeBelowMinimum)

	w, err := h.eng.WithdrawStake(ctx, owner, pr.ID, types.USD(50000))
	require.NoError(t, err)
	assert.Equal(t, billing.WithdrawStake, w.Kind)
	assert.Equal(t, types.USD(50000), h.bank.received(owner))
}

func TestChargeQueryOncePerPair(t *testing.T) {
	ctx := context.Background()
	p := params.Default()
	p.FreeQuota = 0
	h := newHarness(t, verity.WithParams(p))
	pr, ids := h.published(t, 1)

	_, err := h.eng.DepositBalance(ctx, reader, types.USD(1000), "")
	require.NoError(t, err)

	for range 5 {
		res, err := h.eng.GetFullResult(ctx, reader, ids[0])
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"home":2,"away":1}`), res.Payload)
		_, err = h.eng.GetResultField(ctx, reader, ids[0], "winner")
		require.NoError(t, err)
	}
	grant, err := h.eng.ChargeQuery(ctx, reader, pr.ID, ids[0])
	require.NoError(t, err)
	assert.False(t, grant.Free)

	acct, err := h.eng.GetAccount(ctx, reader)
	require.NoError(t, err)
	assert.Equal(t, types.USD(900), acct.Cash)

	charges, err := h.eng.ListCharges(ctx, reader, billing.ListOpts{})
	require.NoError(t, err)
	require.Len(t, charges, 1)
	c := charges[0]
	assert.Equal(t, c.Fee, types.Sum("usd", c.ProducerShare, c.ProtocolShare, c.ChallengerShare))
}

func TestReadFailsBeforeDisclosure(t *testing.T) {
	ctx := context.Background()
	p := params.Default()
	p.FreeQuota = 0
	h := newHarness(t, verity.WithParams(p))
	pr := h.producer(t)
	ids := h.events(t, pr, 1)
	h.clock.Advance(time.Hour)
	h.submit(t, ids[0])

	_, err := h.eng.GetFullResult(ctx, reader, ids[0])
	assert.ErrorIs(t, err, verity.ErrResultNotFinalized)

	h.clock.Advance(15 * time.Minute)
	_, err = h.eng.FinalizeResult(ctx, ids[0])
	require.NoError(t, err)

	_, err = h.eng.GetResultField(ctx, reader, ids[0], "missing")
	assert.ErrorIs(t, err, verity.ErrFieldNotFound)
	res, err := h.eng.GetFullResult(ctx, reader, ids[0])
	assert.ErrorIs(t, err, verity.ErrInsufficientBalance)
	assert.Nil(t, res)

	ok, err := h.eng.HasAccess(ctx, reader, ids[0])
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = h.eng.GetAccount(ctx, reader)
	assert.True(t, verity.IsNotFound(err), "failed read leaves no account behind")
}

func TestDailyQuotaResets(t *testing.T) {
	ctx := context.Background()
	p := params.Default()
	p.FreeQuota = 1
	h := newHarness(t, verity.WithParams(p))
	_, ids := h.published(t, 2)

	_, err := h.eng.GetResultField(ctx, reader, ids[0], "winner")
	require.NoError(t, err)
	_, err = h.eng.GetResultField(ctx, reader, ids[1], "winner")
	require.ErrorIs(t, err, verity.ErrInsufficientBalance)

	h.clock.Advance(24 * time.Hour)
	_, err = h.eng.GetResultField(ctx, reader, ids[1], "winner")
	require.NoError(t, err)
}

func TestLifetimeQuotaDoesNotReset(t *testing.T) {
	ctx := context.Background()
	p := params.Default()
	p.FreeQuota = 1
	p.QuotaPolicy = params.QuotaLifetime
	h := newHarness(t, verity.WithParams(p))
	_, ids := h.published(t, 2)

	_, err := h.eng.GetResultField(ctx, reader, ids[0], "winner")
	require.NoError(t, err)
	h.clock.Advance(48 * time.Hour)
	_, err = h.eng.GetResultField(ctx, reader, ids[1], "winner")
	require.ErrorIs(t, err, verity.ErrInsufficientBalance)
}

func TestDepositBonuses(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	tests := []struct {
		amount int64
		bonus  int64
	}{
		{9999, 0},
		{10000, 500},
		{50000, 5000},
		{100000, 15000},
	}
	for i, tt := range tests {
		consumer := types.Principal("c" + string(rune('a'+i)))
		dep, err := h.eng.DepositBalance(ctx, consumer, types.USD(tt.amount), "")
		require.NoError(t, err)
		assert.Equal(t, tt.bonus, dep.VolumeBonus.Amount, "deposit %d", tt.amount)
	}

	dep, err := h.eng.DepositBalance(ctx, reader, types.USD(50000), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), dep.ReferralBonus.Amount)
	assert.Equal(t, int64(2500), dep.ReferrerBonus.Amount)

	acct, err := h.eng.GetAccount(ctx, reader)
	require.NoError(t, err)
	assert.Equal(t, types.USD(50000), acct.Cash)
	assert.Equal(t, types.USD(7500), acct.Bonus)
	alice, err := h.eng.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.USD(2500), alice.Bonus)

	_, err = h.eng.DepositBalance(ctx, reader, types.USD(100), "bob")
	assert.ErrorIs(t, err, verity.ErrReferralIneligible)
	_, err = h.eng.DepositBalance(ctx, "carol", types.USD(100), "carol")
	assert.ErrorIs(t, err, verity.ErrSelfReferral)

	dep, err = h.eng.DepositBalance(ctx, "dave", types.USD(1000000), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), dep.ReferralBonus.Amount, "capped")
}

func TestWithdrawEarnings(t *testing.T) {
	ctx := context.Background()
	p := params.Default()
	p.FreeQuota = 0
	h := newHarness(t, verity.WithParams(p))
	pr, ids := h.published(t, 1)

	_, err := h.eng.WithdrawEarnings(ctx, owner, pr.ID)
	assert.ErrorIs(t, err, verity.ErrNothingToWithdraw)

	_, err = h.eng.DepositBalance(ctx, reader, types.USD(100), "")
	require.NoError(t, err)
	_, err = h.eng.GetFullResult(ctx, reader, ids[0])
	require.NoError(t, err)

	_, err = h.eng.WithdrawEarnings(ctx, "mallory", pr.ID)
	assert.ErrorIs(t, err, verity.ErrNotOwner)

	w, err := h.eng.WithdrawEarnings(ctx, owner, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, types.USD(80), w.Amount)
	assert.Equal(t, types.USD(80), h.bank.received(owner))

	earn, err := h.eng.GetEarnings(ctx, pr.ID)
	require.NoError(t, err)
	assert.True(t, earn.Pending.IsZero())
	assert.Equal(t, types.USD(80), earn.Withdrawn)
}

func TestFailedTransferRollsBack(t *testing.T) {
	ctx := context.Background()
	p := params.Default()
	p.FreeQuota = 0
	h := newHarness(t, verity.WithParams(p))
	pr, ids := h.published(t, 1)
	_, err := h.eng.DepositBalance(ctx, reader, types.USD(100), "")
	require.NoError(t, err)
	_, err = h.eng.GetFullResult(ctx, reader, ids[0])
	require.NoError(t, err)

	h.bank.fail = errBankDown
	_, err = h.eng.WithdrawEarnings(ctx, owner, pr.ID)
	require.ErrorIs(t, err, verity.ErrTransferFailed)

	earn, err := h.eng.GetEarnings(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, types.USD(80), earn.Pending)
	assert.True(t, earn.Withdrawn.IsZero())
	assert.Empty(t, h.store.Withdrawals())

	_, err = h.eng.PayoutTreasury(ctx, admin, "grants", types.USD(15), "q1")
	require.ErrorIs(t, err, verity.ErrTransferFailed)
	pools, err := h.eng.GetPools(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.USD(15), pools.Treasury)

	h.bank.fail = nil
	_, err = h.eng.PayoutTreasury(ctx, admin, "grants", types.USD(16), "q1")
	assert.ErrorIs(t, err, verity.ErrInsufficientPool)
	_, err = h.eng.PayoutTreasury(ctx, admin, "grants", types.USD(15), "q1")
	require.NoError(t, err)

	_, err = h.eng.PayoutChallengerPool(ctx, owner, watchdog, types.USD(5), "bounty")
	assert.ErrorIs(t, err, verity.ErrNotAdmin)
	po, err := h.eng.PayoutChallengerPool(ctx, admin, watchdog, types.USD(5), "bounty")
	require.NoError(t, err)
	assert.Equal(t, types.USD(5), po.Amount)
	assert.Equal(t, types.USD(5), h.bank.received(watchdog))
}

func TestReentrantCallRejected(t *testing.T) {
	ctx := context.Background()
	p := params.Default()
	p.FreeQuota = 0

	var eng *verity.Engine
	var reentryErr error
	evil := verity.TransferFunc(func(ctx context.Context, to types.Principal, amount types.Money, memo string) error {
		_, reentryErr = eng.WithdrawEarnings(ctx, owner, id.NewProducerID())
		return reentryErr
	})
	h := newHarness(t, verity.WithParams(p))
	eng = verity.New(h.store,
		verity.WithParams(p),
		verity.WithAdmins(admin),
		verity.WithClock(h.clock.Now),
		verity.WithTransferer(evil),
	)
	pr, ids := h.published(t, 1)
	_, err := h.eng.DepositBalance(ctx, reader, types.USD(100), "")
	require.NoError(t, err)
	_, err = h.eng.GetFullResult(ctx, reader, ids[0])
	require.NoError(t, err)

	_, err = eng.WithdrawEarnings(ctx, owner, pr.ID)
	require.ErrorIs(t, err, verity.ErrReentrantCall)
	assert.ErrorIs(t, reentryErr, verity.ErrReentrantCall)

	earn, err := eng.GetEarnings(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, types.USD(80), earn.Pending, "nothing left the ledger")
}

func TestUpdateParams(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	cur, err := h.eng.Params(ctx)
	require.NoError(t, err)
	next := cur.Clone()
	next.QueryFee = types.USD(250)

	_, err = h.eng.UpdateParams(ctx, owner, next)
	assert.ErrorIs(t, err, verity.ErrNotAdmin)

	saved, err := h.eng.UpdateParams(ctx, admin, next)
	require.NoError(t, err)
	assert.Equal(t, cur.Version+1, saved.Version)
	assert.Equal(t, admin, saved.UpdatedBy)

	bad := saved.Clone()
	bad.ProducerBps = 9000
	_, err = h.eng.UpdateParams(ctx, admin, bad)
	assert.ErrorIs(t, err, verity.ErrInvalidParams)

	eur := saved.Clone()
	eur.Currency = "eur"
	_, err = h.eng.UpdateParams(ctx, admin, eur)
	assert.ErrorIs(t, err, verity.ErrInvalidParams)

	require.NoError(t, h.eng.AddResolver(ctx, admin, "judge"))
	require.NoError(t, h.eng.AddAdmin(ctx, admin, "ops2"))
	require.NoError(t, h.eng.RemoveAdmin(ctx, "ops2", admin))
	assert.ErrorIs(t, h.eng.RemoveAdmin(ctx, "ops2", "ops2"), verity.ErrLastAdmin)
	require.NoError(t, h.eng.RemoveResolver(ctx, "ops2", "judge"))

	history, err := h.eng.ParamsHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 6)
	latest, err := h.eng.Params(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.USD(250), latest.QueryFee)
	assert.False(t, latest.IsResolver("judge"))
}

func TestRaisedMinStakeBlocksUnderStaked(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pr := h.producer(t)
	ids := h.events(t, pr, 1)
	rich, err := h.eng.Register(ctx, "bigco", types.USD(200000))
	require.NoError(t, err)

	cur, err := h.eng.Params(ctx)
	require.NoError(t, err)
	next := cur.Clone()
	next.MinStake = types.USD(200000)
	_, err = h.eng.UpdateParams(ctx, admin, next)
	require.NoError(t, err)

	got, err := h.eng.GetProducer(ctx, pr.ID)
	require.NoError(t, err)
	assert.False(t, got.Active, "stake is below the new minimum")
	rich, err = h.eng.GetProducer(ctx, rich.ID)
	require.NoError(t, err)
	assert.True(t, rich.Active)

	_, err = h.eng.ScheduleEvent(ctx, owner, pr.ID, h.clock.Now().Add(time.Hour), nil)
	assert.ErrorIs(t, err, verity.ErrProducerInactive)

	h.clock.Advance(time.Hour)
	_, err = h.eng.SubmitResult(ctx, owner, ids[0], verity.Submission{Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, verity.ErrProducerInactive)

	got, err = h.eng.AddStake(ctx, owner, pr.ID, types.USD(100000))
	require.NoError(t, err)
	assert.True(t, got.Active)
	h.submit(t, ids[0])
	h.events(t, pr, 1)

	// A record left active below the minimum is still refused.
	stale := *rich
	stale.Stake = types.USD(1)
	require.NoError(t, h.store.UpdateProducer(ctx, &stale))
	_, err = h.eng.ScheduleEvent(ctx, "bigco", rich.ID, h.clock.Now().Add(time.Hour), nil)
	assert.ErrorIs(t, err, verity.ErrProducerInactive)
}

func TestDescriptions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pr := h.producer(t)
	ids := h.events(t, pr, 1)

	desc, err := h.eng.EventDescription(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, desc)

	require.NoError(t, h.eng.DescribeProducer(ctx, owner, pr.ID, "Acme sports feed"))
	require.NoError(t, h.eng.DescribeEvent(ctx, owner, ids[0], "Final, home vs away"))
	assert.ErrorIs(t, h.eng.DescribeEvent(ctx, "mallory", ids[0], "spam"), verity.ErrNotOwner)

	desc, err = h.eng.ProducerDescription(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme sports feed", desc)
	desc, err = h.eng.EventDescription(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Final, home vs away", desc)
}

func TestDescribeIsGuarded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pr := h.producer(t)
	ids := h.events(t, pr, 1)

	var eng *verity.Engine
	var producerErr, eventErr error
	sneaky := verity.CollectFunc(func(ctx context.Context, from types.Principal, amount types.Money, memo string) error {
		producerErr = eng.DescribeProducer(ctx, owner, pr.ID, "rewritten mid-deposit")
		eventErr = eng.DescribeEvent(ctx, owner, ids[0], "rewritten mid-deposit")
		return nil
	})
	eng = verity.New(h.store,
		verity.WithAdmins(admin),
		verity.WithClock(h.clock.Now),
		verity.WithCollector(sneaky),
	)

	_, err := eng.DepositBalance(ctx, reader, types.USD(100), "")
	require.NoError(t, err)
	assert.ErrorIs(t, producerErr, verity.ErrReentrantCall)
	assert.ErrorIs(t, eventErr, verity.ErrReentrantCall)

	desc, err := eng.ProducerDescription(ctx, pr.ID)
	require.NoError(t, err)
	assert.Empty(t, desc)
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		kind verity.Kind
	}{
		{verity.ErrEventNotFound, verity.KindValidation},
		{verity.ErrNotResolver, verity.KindAuthorization},
		{verity.ErrAlreadyFinalized, verity.KindState},
		{verity.ErrInsufficientBalance, verity.KindEconomic},
		{verity.ErrWindowClosed, verity.KindWindow},
		{verity.ErrAmountTooLarge, verity.KindValidation},
		{verity.ErrCollectionFailed, verity.KindEconomic},
		{verity.ErrUnfundedPayouts, verity.KindInternal},
		{errors.New("boom"), verity.KindInternal},
		{verity.ValidationError{Field: "x", Message: "bad"}, verity.KindValidation},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, verity.KindOf(tt.err), tt.err.Error())
	}
	assert.NotErrorIs(t, verity.ErrAlreadyFinalized, verity.ErrAlreadyDisputed)
}
