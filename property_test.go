//go:build property
// +build property

package verity_test

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/xraph/verity"
	"github.com/xraph/verity/billing"
	"github.com/xraph/verity/store/memory"
	"github.com/xraph/verity/types"
)

func propEngine() (*verity.Engine, *memory.Store, *clock) {
	s := memory.New()
	c := &clock{now: t0}
	eng := verity.New(s, verity.WithAdmins(admin), verity.WithClock(c.Now))
	if err := eng.Start(context.Background()); err != nil {
		panic(err)
	}
	return eng, s, c
}

func TestSlashNeverExceedsStake(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("slashed plus remaining equals the prior stake", prop.ForAll(
		func(stake, amount int64) bool {
			ctx := context.Background()
			eng, _, _ := propEngine()
			defer eng.Stop()

			pr, err := eng.Register(ctx, owner, types.USD(stake))
			if err != nil {
				return false
			}
			slashed, err := eng.SlashStake(ctx, admin, pr.ID, types.USD(amount), "property")
			if err != nil {
				return false
			}
			after, err := eng.GetProducer(ctx, pr.ID)
			if err != nil {
				return false
			}
			pools, err := eng.GetPools(ctx)
			if err != nil {
				return false
			}
			return !slashed.GreaterThan(types.USD(stake)) &&
				slashed.Add(after.Stake).Equal(types.USD(stake)) &&
				pools.ChallengerPool.Equal(slashed)
		},
		gen.Int64Range(100000, 1<<32),
		gen.Int64Range(1, 1<<33),
	))

	properties.TestingRun(t)
}

func TestReadsChargeOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("repeat reads never charge twice", prop.ForAll(
		func(reads int) bool {
			ctx := context.Background()
			eng, s, c := propEngine()
			defer eng.Stop()

			pr, err := eng.Register(ctx, owner, types.USD(100000))
			if err != nil {
				return false
			}
			ev, err := eng.ScheduleEvent(ctx, owner, pr.ID, t0.Add(time.Minute), nil)
			if err != nil {
				return false
			}
			c.Advance(time.Minute)
			if _, err := eng.SubmitResult(ctx, owner, ev.ID, verity.Submission{Payload: []byte(`{"home":1}`)}); err != nil {
				return false
			}
			c.Advance(time.Hour)
			if _, err := eng.FinalizeResult(ctx, ev.ID); err != nil {
				return false
			}
			if _, err := eng.DepositBalance(ctx, reader, types.USD(1000), ""); err != nil {
				return false
			}
			for range reads {
				if _, err := eng.GetFullResult(ctx, reader, ev.ID); err != nil {
					return false
				}
			}
			charges, err := s.ListCharges(ctx, reader, billing.ListOpts{})
			return err == nil && len(charges) == 1
		},
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
