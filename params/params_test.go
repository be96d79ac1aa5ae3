package params

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/verity/types"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
		want   string
	}{
		{"zero fee", func(p *Params) { p.QueryFee = types.USD(0) }, "query_fee must be positive"},
		{"mixed currency", func(p *Params) { p.MinStake = types.New(100, "eur") }, "min_stake currency"},
		{"no window", func(p *Params) { p.ChallengeWindow = 0 }, "challenge_window"},
		{"split", func(p *Params) { p.ProtocolBps = 1000 }, "split must sum"},
		{"tiers out of order", func(p *Params) {
			p.BonusTiers = []BonusTier{{50000, 1000}, {10000, 500}}
		}, "thresholds must increase"},
		{"tier rate drops", func(p *Params) {
			p.BonusTiers = []BonusTier{{10000, 1000}, {50000, 500}}
		}, "must not decrease"},
		{"quota", func(p *Params) { p.FreeQuota = -1 }, "free_quota"},
		{"policy", func(p *Params) { p.QuotaPolicy = "weekly" }, "unknown quota policy"},
		{"forfeit", func(p *Params) { p.Forfeit = "burn" }, "unknown forfeit policy"},
		{"reputation", func(p *Params) { p.ReputationOnSlash = -5 }, "magnitudes"},
		{"huge stake", func(p *Params) { p.MinStake = types.USD(types.MaxAmount + 1) }, "min_stake exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Default()
			tt.mutate(p)
			err := p.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBonusBps(t *testing.T) {
	p := Default()
	assert.Equal(t, int64(0), p.BonusBps(9999))
	assert.Equal(t, int64(500), p.BonusBps(10000))
	assert.Equal(t, int64(1000), p.BonusBps(75000))
	assert.Equal(t, int64(1500), p.BonusBps(1_000_000))
}

func TestCloneIsDeep(t *testing.T) {
	p := Default()
	p.Admins = []types.Principal{"ops"}
	c := p.Clone()
	c.Admins[0] = "mallory"
	c.BonusTiers[0].Bps = 1
	c.ChallengeWindow = time.Hour

	assert.True(t, p.IsAdmin("ops"))
	assert.False(t, p.IsAdmin("mallory"))
	assert.Equal(t, int64(500), p.BonusTiers[0].Bps)
	assert.False(t, p.IsAdmin(""))
}

func TestDiff(t *testing.T) {
	p := Default()
	p.Admins = []types.Principal{"ops"}

	same := p.Clone()
	same.Version = 7
	same.UpdatedAt = time.Now()
	same.UpdatedBy = "ops"
	same.Admins = append([]types.Principal(nil), "ops")
	assert.Empty(t, p.Diff(same))

	other := p.Clone()
	other.MinStake = types.USD(1)
	other.ProtocolBps++
	other.Resolvers = []types.Principal{"arbiter"}
	assert.Equal(t, []string{"min_stake", "fee_split", "resolvers"}, p.Diff(other))
}
