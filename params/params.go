// Package params holds the versioned protocol parameters: stakes, fees, the
// challenge window, revenue split, bonus tiers, quota policy and the
// administrative allow-lists.
package params

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/xraph/verity/types"
)

// QuotaPolicy selects how free reads are replenished.
type QuotaPolicy string

const (
	QuotaDaily    QuotaPolicy = "daily"
	QuotaLifetime QuotaPolicy = "lifetime"
)

// ForfeitPolicy selects who receives a rejected challenger's stake.
type ForfeitPolicy string

const (
	ForfeitToPool     ForfeitPolicy = "pool"
	ForfeitToProducer ForfeitPolicy = "producer"
)

// BonusTier grants Bps of a deposit as bonus credit when the deposit is at
// least Threshold minor units.
type BonusTier struct {
	Threshold int64 `json:"threshold" toml:"threshold"`
	Bps       int64 `json:"bps" toml:"bps"`
}

type Params struct {
	Version  int    `json:"version"`
	Currency string `json:"currency"`

	MinStake        types.Money   `json:"min_stake"`
	ChallengeStake  types.Money   `json:"challenge_stake"`
	SlashAmount     types.Money   `json:"slash_amount"`
	QueryFee        types.Money   `json:"query_fee"`
	ChallengeWindow time.Duration `json:"challenge_window"`

	ProducerBps   int64 `json:"producer_bps"`
	ProtocolBps   int64 `json:"protocol_bps"`
	ChallengerBps int64 `json:"challenger_bps"`

	BonusTiers []BonusTier `json:"bonus_tiers"`

	ReferralEnabled bool        `json:"referral_enabled"`
	ReferrerBps     int64       `json:"referrer_bps"`
	RefereeBps      int64       `json:"referee_bps"`
	ReferralCap     types.Money `json:"referral_cap"`

	FreeQuota   int         `json:"free_quota"`
	QuotaPolicy QuotaPolicy `json:"quota_policy"`

	ReputationOnFinalize int `json:"reputation_on_finalize"`
	ReputationOnSlash    int `json:"reputation_on_slash"`
	ReputationOnUpheld   int `json:"reputation_on_upheld"`

	Forfeit ForfeitPolicy `json:"forfeit"`

	Admins    []types.Principal `json:"admins"`
	Resolvers []types.Principal `json:"resolvers"`

	UpdatedAt time.Time       `json:"updated_at"`
	UpdatedBy types.Principal `json:"updated_by,omitempty"`
}

// Default returns the stock parameter set in USD minor units.
func Default() *Params {
	const cur = "usd"
	return &Params{
		Version:              1,
		Currency:             cur,
		MinStake:             types.New(100000, cur),
		ChallengeStake:       types.New(10000, cur),
		SlashAmount:          types.New(50000, cur),
		QueryFee:             types.New(100, cur),
		ChallengeWindow:      900 * time.Second,
		ProducerBps:          8000,
		ProtocolBps:          1500,
		ChallengerBps:        500,
		BonusTiers:           []BonusTier{{10000, 500}, {50000, 1000}, {100000, 1500}},
		ReferralEnabled:      true,
		ReferrerBps:          500,
		RefereeBps:           500,
		ReferralCap:          types.New(5000, cur),
		FreeQuota:            3,
		QuotaPolicy:          QuotaDaily,
		ReputationOnFinalize: 1,
		ReputationOnSlash:    50,
		ReputationOnUpheld:   10,
		Forfeit:              ForfeitToPool,
	}
}

// Validate checks internal consistency.
func (p *Params) Validate() error {
	var errs []error
	for name, m := range map[string]types.Money{
		"min_stake":       p.MinStake,
		"challenge_stake": p.ChallengeStake,
		"slash_amount":    p.SlashAmount,
		"query_fee":       p.QueryFee,
	} {
		if !m.IsPositive() {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
		if m.Amount > types.MaxAmount {
			errs = append(errs, fmt.Errorf("%s exceeds %d", name, types.MaxAmount))
		}
		if m.Currency != p.Currency {
			errs = append(errs, fmt.Errorf("%s currency %q differs from %q", name, m.Currency, p.Currency))
		}
	}
	if p.ChallengeWindow <= 0 {
		errs = append(errs, errors.New("challenge_window must be positive"))
	}
	if p.ProducerBps < 0 || p.ProtocolBps < 0 || p.ChallengerBps < 0 {
		errs = append(errs, errors.New("split shares must not be negative"))
	}
	if p.ProducerBps+p.ProtocolBps+p.ChallengerBps != types.BpsDenominator {
		errs = append(errs, fmt.Errorf("split must sum to %d bps", types.BpsDenominator))
	}
	for i := 1; i < len(p.BonusTiers); i++ {
		prev, cur := p.BonusTiers[i-1], p.BonusTiers[i]
		if cur.Threshold <= prev.Threshold {
			errs = append(errs, errors.New("bonus tier thresholds must increase"))
		}
		if cur.Bps < prev.Bps {
			errs = append(errs, errors.New("bonus tier bps must not decrease"))
		}
	}
	if p.ReferralCap.Currency != p.Currency || p.ReferralCap.IsNegative() {
		errs = append(errs, errors.New("referral_cap must be a non-negative amount in the params currency"))
	}
	if p.FreeQuota < 0 {
		errs = append(errs, errors.New("free_quota must not be negative"))
	}
	if p.QuotaPolicy != QuotaDaily && p.QuotaPolicy != QuotaLifetime {
		errs = append(errs, fmt.Errorf("unknown quota policy %q", p.QuotaPolicy))
	}
	if p.Forfeit != ForfeitToPool && p.Forfeit != ForfeitToProducer {
		errs = append(errs, fmt.Errorf("unknown forfeit policy %q", p.Forfeit))
	}
	if p.ReputationOnFinalize < 0 || p.ReputationOnSlash < 0 || p.ReputationOnUpheld < 0 {
		errs = append(errs, errors.New("reputation adjustments are magnitudes and must not be negative"))
	}
	return errors.Join(errs...)
}

// BonusBps returns the bonus rate for a deposit of amount minor units: the
// rate of the highest tier whose threshold the amount reaches.
func (p *Params) BonusBps(amount int64) int64 {
	var bps int64
	for _, t := range p.BonusTiers {
		if amount >= t.Threshold {
			bps = t.Bps
		}
	}
	return bps
}

func (p *Params) IsAdmin(pr types.Principal) bool {
	return !pr.IsZero() && slices.Contains(p.Admins, pr)
}

func (p *Params) IsResolver(pr types.Principal) bool {
	return !pr.IsZero() && slices.Contains(p.Resolvers, pr)
}

// Diff names the settings that differ between p and o. Version and audit
// fields are ignored.
func (p *Params) Diff(o *Params) []string {
	var d []string
	add := func(name string, same bool) {
		if !same {
			d = append(d, name)
		}
	}
	add("currency", p.Currency == o.Currency)
	add("min_stake", p.MinStake == o.MinStake)
	add("challenge_stake", p.ChallengeStake == o.ChallengeStake)
	add("slash_amount", p.SlashAmount == o.SlashAmount)
	add("query_fee", p.QueryFee == o.QueryFee)
	add("challenge_window", p.ChallengeWindow == o.ChallengeWindow)
	add("fee_split", p.ProducerBps == o.ProducerBps && p.ProtocolBps == o.ProtocolBps && p.ChallengerBps == o.ChallengerBps)
	add("bonus_tiers", slices.Equal(p.BonusTiers, o.BonusTiers))
	add("referral", p.ReferralEnabled == o.ReferralEnabled && p.ReferrerBps == o.ReferrerBps &&
		p.RefereeBps == o.RefereeBps && p.ReferralCap == o.ReferralCap)
	add("free_quota", p.FreeQuota == o.FreeQuota && p.QuotaPolicy == o.QuotaPolicy)
	add("reputation", p.ReputationOnFinalize == o.ReputationOnFinalize &&
		p.ReputationOnSlash == o.ReputationOnSlash && p.ReputationOnUpheld == o.ReputationOnUpheld)
	add("forfeit", p.Forfeit == o.Forfeit)
	add("admins", slices.Equal(p.Admins, o.Admins))
	add("resolvers", slices.Equal(p.Resolvers, o.Resolvers))
	return d
}

// Clone returns a deep copy.
func (p *Params) Clone() *Params {
	c := *p
	c.BonusTiers = slices.Clone(p.BonusTiers)
	c.Admins = slices.Clone(p.Admins)
	c.Resolvers = slices.Clone(p.Resolvers)
	return &c
}
