// Package billing defines the Billing Engine records: consumer accounts,
// per-(consumer, event) access grants, producer earnings and the shared pools.
package billing

import (
	"time"

	"github.com/xraph/verity/id"
	"github.com/xraph/verity/types"
)

// Account is a consumer's prepaid balance. Bonus credit is spent before cash.
type Account struct {
	types.Entity
	Consumer types.Principal `json:"consumer"`
	Cash     types.Money     `json:"cash"`
	Bonus    types.Money     `json:"bonus"`
	// Daily quota: QuotaUsed reads on QuotaDay (UTC, YYYY-MM-DD).
	QuotaDay  string `json:"quota_day,omitempty"`
	QuotaUsed int    `json:"quota_used"`
	// Lifetime quota: free reads consumed since the account was created.
	LifetimeFreeUsed int             `json:"lifetime_free_used"`
	Deposited        types.Money     `json:"deposited"`
	ReferredBy       types.Principal `json:"referred_by,omitempty"`
	ReferralClaimed  bool            `json:"referral_claimed"`
}

// NewAccount returns an empty account in currency.
func NewAccount(consumer types.Principal, currency string, now time.Time) *Account {
	return &Account{
		Entity:    types.NewEntity(now),
		Consumer:  consumer,
		Cash:      types.Zero(currency),
		Bonus:     types.Zero(currency),
		Deposited: types.Zero(currency),
	}
}

// Total returns cash plus bonus.
func (a *Account) Total() types.Money { return a.Cash.Add(a.Bonus) }

// Debit takes amount from bonus first, then cash. The caller checks Total.
func (a *Account) Debit(amount types.Money) (fromBonus, fromCash types.Money) {
	fromBonus = a.Bonus.Min(amount)
	fromCash = amount.Subtract(fromBonus)
	a.Bonus = a.Bonus.Subtract(fromBonus)
	a.Cash = a.Cash.Subtract(fromCash)
	return fromBonus, fromCash
}

// Grant records that a consumer may read an event's result. A pair gets at
// most one grant, whether it was paid for or served from free quota.
type Grant struct {
	Consumer  types.Principal `json:"consumer"`
	EventID   id.EventID      `json:"event_id"`
	ChargeID  id.ChargeID     `json:"charge_id"`
	Free      bool            `json:"free"`
	GrantedAt time.Time       `json:"granted_at"`
}

// Earnings accumulates a producer's revenue share.
type Earnings struct {
	types.Entity
	ProducerID  id.ProducerID `json:"producer_id"`
	TotalEarned types.Money   `json:"total_earned"`
	Pending     types.Money   `json:"pending"`
	Withdrawn   types.Money   `json:"withdrawn"`
	QueryCount  int64         `json:"query_count"`
}

// NewEarnings returns a zeroed earnings record.
func NewEarnings(producerID id.ProducerID, currency string, now time.Time) *Earnings {
	return &Earnings{
		Entity:      types.NewEntity(now),
		ProducerID:  producerID,
		TotalEarned: types.Zero(currency),
		Pending:     types.Zero(currency),
		Withdrawn:   types.Zero(currency),
	}
}

// Pools are the aggregate protocol balances.
type Pools struct {
	Treasury       types.Money `json:"treasury"`
	ChallengerPool types.Money `json:"challenger_pool"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Pool names a shared balance.
type Pool string

const (
	PoolTreasury   Pool = "treasury"
	PoolChallenger Pool = "challenger"
)

// Charge is the receipt of one chargeQuery decision.
type Charge struct {
	ID              id.ChargeID     `json:"id"`
	Consumer        types.Principal `json:"consumer"`
	EventID         id.EventID      `json:"event_id"`
	ProducerID      id.ProducerID   `json:"producer_id"`
	Fee             types.Money     `json:"fee"`
	FromBonus       types.Money     `json:"from_bonus"`
	FromCash        types.Money     `json:"from_cash"`
	ProducerShare   types.Money     `json:"producer_share"`
	ProtocolShare   types.Money     `json:"protocol_share"`
	ChallengerShare types.Money     `json:"challenger_share"`
	Free            bool            `json:"free"`
	ChargedAt       time.Time       `json:"charged_at"`
}

type Deposit struct {
	ID            id.DepositID    `json:"id"`
	Consumer      types.Principal `json:"consumer"`
	Amount        types.Money     `json:"amount"`
	VolumeBonus   types.Money     `json:"volume_bonus"`
	ReferralBonus types.Money     `json:"referral_bonus"`
	Referrer      types.Principal `json:"referrer,omitempty"`
	ReferrerBonus types.Money     `json:"referrer_bonus"`
	CreatedAt     time.Time       `json:"created_at"`
}

// WithdrawalKind distinguishes earnings from stake withdrawals.
type WithdrawalKind string

const (
	WithdrawEarnings WithdrawalKind = "earnings"
	WithdrawStake    WithdrawalKind = "stake"
)

type Withdrawal struct {
	ID         id.WithdrawalID `json:"id"`
	Kind       WithdrawalKind  `json:"kind"`
	ProducerID id.ProducerID   `json:"producer_id"`
	To         types.Principal `json:"to"`
	Amount     types.Money     `json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
}

type Payout struct {
	ID        id.PayoutID     `json:"id"`
	Pool      Pool            `json:"pool"`
	To        types.Principal `json:"to"`
	Amount    types.Money     `json:"amount"`
	Memo      string          `json:"memo,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
