package verity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/verity"
	"github.com/xraph/verity/dispute"
	"github.com/xraph/verity/producer"
	"github.com/xraph/verity/result"
	"github.com/xraph/verity/types"
)

func TestRegisterCollectsStake(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.bank.refuse = errBankDown
	_, err := h.eng.Register(ctx, owner, types.USD(100000))
	assert.ErrorIs(t, err, verity.ErrCollectionFailed)
	assert.ErrorIs(t, err, verity.ErrEconomic)
	assert.Contains(t, err.Error(), errBankDown.Error())

	all, err := h.eng.ListProducers(ctx, producer.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, all, "no producer without its stake")

	h.bank.refuse = nil
	pr, err := h.eng.Register(ctx, owner, types.USD(150000))
	require.NoError(t, err)
	assert.Equal(t, types.USD(150000), h.bank.collected(owner))
	assert.Equal(t, types.USD(150000), pr.Stake)
}

func TestAddStakeCollects(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pr := h.producer(t)

	h.bank.refuse = errBankDown
	_, err := h.eng.AddStake(ctx, owner, pr.ID, types.USD(5000))
	assert.ErrorIs(t, err, verity.ErrCollectionFailed)

	got, err := h.eng.GetProducer(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, types.USD(100000), got.Stake)

	h.bank.refuse = nil
	got, err = h.eng.AddStake(ctx, owner, pr.ID, types.USD(5000))
	require.NoError(t, err)
	assert.Equal(t, types.USD(105000), got.Stake)
	assert.Equal(t, types.USD(105000), h.bank.collected(owner))
}

func TestDepositCollects(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.bank.refuse = errBankDown
	_, err := h.eng.DepositBalance(ctx, reader, types.USD(50000), "alice")
	assert.ErrorIs(t, err, verity.ErrCollectionFailed)

	_, err = h.eng.GetAccount(ctx, reader)
	assert.True(t, verity.IsNotFound(err), "no account without funds")
	_, err = h.eng.GetAccount(ctx, "alice")
	assert.True(t, verity.IsNotFound(err), "no referral bonus either")

	h.bank.refuse = nil
	_, err = h.eng.DepositBalance(ctx, reader, types.USD(50000), "")
	require.NoError(t, err)
	assert.Equal(t, types.USD(50000), h.bank.collected(reader))
}

func TestCreateDisputeCollectsStake(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pr := h.producer(t)
	ids := h.events(t, pr, 1)
	h.clock.Advance(time.Hour)
	h.submit(t, ids[0])

	h.bank.refuse = errBankDown
	_, err := h.eng.CreateDispute(ctx, watchdog, ids[0], types.USD(10000), "score is wrong", "")
	assert.ErrorIs(t, err, verity.ErrCollectionFailed)

	status, err := h.eng.ResultStatus(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, result.StatusSubmitted, status.Status)
	open, err := h.eng.ListDisputes(ctx, dispute.ListOpts{EventID: ids[0]})
	require.NoError(t, err)
	assert.Empty(t, open)

	h.bank.refuse = nil
	_, err = h.eng.CreateDispute(ctx, watchdog, ids[0], types.USD(10000), "score is wrong", "")
	require.NoError(t, err)
	assert.Equal(t, types.USD(10000), h.bank.collected(watchdog))
}

// Everything paid back out of a stake was first collected.
func TestStakeRoundTripMatchesCollection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pr := h.producer(t)

	require.NoError(t, h.eng.DeactivateProducer(ctx, owner, pr.ID, "retiring"))
	_, err := h.eng.WithdrawStake(ctx, owner, pr.ID, types.USD(100000))
	require.NoError(t, err)

	assert.Equal(t, h.bank.collected(owner), h.bank.received(owner))

	_, err = h.eng.WithdrawStake(ctx, owner, pr.ID, types.USD(1))
	assert.ErrorIs(t, err, verity.ErrInsufficientStake)
}

func TestRejectedDisputeReturnsOnlyCollectedStake(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pr := h.producer(t)
	ids := h.events(t, pr, 1)
	h.clock.Advance(time.Hour)
	h.submit(t, ids[0])

	d, err := h.eng.CreateDispute(ctx, watchdog, ids[0], types.USD(10000), "score is wrong", "")
	require.NoError(t, err)
	_, err = h.eng.ResolveDispute(ctx, resolver, d.ID, false, 0)
	require.NoError(t, err)

	assert.LessOrEqual(t, h.bank.received(watchdog).Amount, h.bank.collected(watchdog).Amount,
		"a losing challenger gets back no more than it posted")
}

func TestAmountLimits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	dep, err := h.eng.DepositBalance(ctx, reader, types.USD(types.MaxAmount), "")
	require.NoError(t, err)
	assert.Equal(t, types.USD(types.MaxAmount/10000*1500), dep.VolumeBonus)
	assert.True(t, dep.VolumeBonus.IsPositive())

	for _, amount := range []int64{types.MaxAmount + 1, 7_000_000_000_000_000} {
		_, err = h.eng.DepositBalance(ctx, "whale", types.USD(amount), "")
		assert.ErrorIs(t, err, verity.ErrAmountTooLarge, "deposit %d", amount)
		assert.ErrorIs(t, err, verity.ErrValidation)
	}
	_, err = h.eng.GetAccount(ctx, "whale")
	assert.True(t, verity.IsNotFound(err))

	_, err = h.eng.Register(ctx, owner, types.USD(types.MaxAmount+1))
	assert.ErrorIs(t, err, verity.ErrAmountTooLarge)
}
