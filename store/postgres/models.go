package postgres

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/verity/billing"
	"github.com/xraph/verity/dispute"
	"github.com/xraph/verity/id"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/producer"
	"github.com/xraph/verity/result"
	"github.com/xraph/verity/types"
)

// Every money column of a row shares the row's currency column.

// parseID parses an optional identifier column; "" yields id.Nil.
func parseID(s string) (id.ID, error) {
	var out id.ID
	err := out.UnmarshalText([]byte(s))
	return out, err
}

// ==================== Registry models ====================

type producerModel struct {
	grove.BaseModel `grove:"table:verity_producers"`

	ID         string    `grove:"id,pk"`
	Owner      string    `grove:"owner"`
	Currency   string    `grove:"currency"`
	Stake      int64     `grove:"stake"`
	Reputation int       `grove:"reputation"`
	Active     bool      `grove:"active"`
	Banned     bool      `grove:"banned"`
	EventCount int64     `grove:"event_count"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
}

func toProducerModel(p *producer.Producer) *producerModel {
	return &producerModel{
		ID:         p.ID.String(),
		Owner:      string(p.Owner),
		Currency:   p.Stake.Currency,
		Stake:      p.Stake.Amount,
		Reputation: p.Reputation,
		Active:     p.Active,
		Banned:     p.Banned,
		EventCount: p.EventCount,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func fromProducerModel(m *producerModel) (*producer.Producer, error) {
	producerID, err := id.ParseProducerID(m.ID)
	if err != nil {
		return nil, err
	}
	return &producer.Producer{
		Entity:     types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:         producerID,
		Owner:      types.Principal(m.Owner),
		Stake:      types.New(m.Stake, m.Currency),
		Reputation: m.Reputation,
		Active:     m.Active,
		Banned:     m.Banned,
		EventCount: m.EventCount,
	}, nil
}

type eventModel struct {
	grove.BaseModel `grove:"table:verity_events"`

	ID          string    `grove:"id,pk"`
	ProducerID  string    `grove:"producer_id"`
	ScheduledAt time.Time `grove:"scheduled_at"`
	Metadata    []byte    `grove:"metadata"`
	HasResult   bool      `grove:"has_result"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
}

func toEventModel(e *producer.Event) *eventModel {
	return &eventModel{
		ID:          e.ID.String(),
		ProducerID:  e.ProducerID.String(),
		ScheduledAt: e.ScheduledAt,
		Metadata:    e.Metadata,
		HasResult:   e.HasResult,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func fromEventModel(m *eventModel) (*producer.Event, error) {
	eventID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, err
	}
	producerID, err := id.ParseProducerID(m.ProducerID)
	if err != nil {
		return nil, err
	}
	return &producer.Event{
		Entity:      types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          eventID,
		ProducerID:  producerID,
		ScheduledAt: m.ScheduledAt,
		Metadata:    m.Metadata,
		HasResult:   m.HasResult,
	}, nil
}

// ==================== Submission models ====================

type resultModel struct {
	grove.BaseModel `grove:"table:verity_results"`

	EventID          string            `grove:"event_id,pk"`
	ProducerID       string            `grove:"producer_id"`
	Submitter        string            `grove:"submitter"`
	Payload          []byte            `grove:"payload"`
	DecodeHint       string            `grove:"decode_hint"`
	Schema           string            `grove:"schema"`
	QuickFields      map[string]string `grove:"quick_fields,type:jsonb"`
	Fingerprint      string            `grove:"fingerprint"`
	Status           string            `grove:"status"`
	DisputeID        string            `grove:"dispute_id"`
	SubmittedAt      time.Time         `grove:"submitted_at"`
	FinalizeDeadline time.Time         `grove:"finalize_deadline"`
	FinalizedAt      *time.Time        `grove:"finalized_at"`
	CreatedAt        time.Time         `grove:"created_at"`
	UpdatedAt        time.Time         `grove:"updated_at"`
}

func toResultModel(r *result.Result) *resultModel {
	fields := r.QuickFields
	if fields == nil {
		fields = map[string]string{}
	}
	return &resultModel{
		EventID:          r.EventID.String(),
		ProducerID:       r.ProducerID.String(),
		Submitter:        string(r.Submitter),
		Payload:          r.Payload,
		DecodeHint:       r.DecodeHint,
		Schema:           r.Schema,
		QuickFields:      fields,
		Fingerprint:      r.Fingerprint,
		Status:           string(r.Status),
		DisputeID:        r.DisputeID.String(),
		SubmittedAt:      r.SubmittedAt,
		FinalizeDeadline: r.FinalizeDeadline,
		FinalizedAt:      r.FinalizedAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func fromResultModel(m *resultModel) (*result.Result, error) {
	eventID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, err
	}
	producerID, err := id.ParseProducerID(m.ProducerID)
	if err != nil {
		return nil, err
	}
	disputeID, err := parseID(m.DisputeID)
	if err != nil {
		return nil, err
	}
	return &result.Result{
		Entity:           types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		EventID:          eventID,
		ProducerID:       producerID,
		Submitter:        types.Principal(m.Submitter),
		Payload:          m.Payload,
		DecodeHint:       m.DecodeHint,
		Schema:           m.Schema,
		QuickFields:      m.QuickFields,
		Fingerprint:      m.Fingerprint,
		Status:           result.Status(m.Status),
		DisputeID:        disputeID,
		SubmittedAt:      m.SubmittedAt,
		FinalizeDeadline: m.FinalizeDeadline,
		FinalizedAt:      m.FinalizedAt,
	}, nil
}

// ==================== Dispute models ====================

type disputeModel struct {
	grove.BaseModel `grove:"table:verity_disputes"`

	ID               string     `grove:"id,pk"`
	EventID          string     `grove:"event_id"`
	ProducerID       string     `grove:"producer_id"`
	Challenger       string     `grove:"challenger"`
	Currency         string     `grove:"currency"`
	Stake            int64      `grove:"stake"`
	EvidenceRef      string     `grove:"evidence_ref"`
	Reason           string     `grove:"reason"`
	Resolved         bool       `grove:"resolved"`
	Outcome          string     `grove:"outcome"`
	Resolver         string     `grove:"resolver"`
	RewardPercent    int        `grove:"reward_percent"`
	Slashed          int64      `grove:"slashed"`
	ChallengerReward int64      `grove:"challenger_reward"`
	ResolvedAt       *time.Time `grove:"resolved_at"`
	CreatedAt        time.Time  `grove:"created_at"`
	UpdatedAt        time.Time  `grove:"updated_at"`
}

func toDisputeModel(d *dispute.Dispute) *disputeModel {
	return &disputeModel{
		ID:               d.ID.String(),
		EventID:          d.EventID.String(),
		ProducerID:       d.ProducerID.String(),
		Challenger:       string(d.Challenger),
		Currency:         d.Stake.Currency,
		Stake:            d.Stake.Amount,
		EvidenceRef:      d.EvidenceRef,
		Reason:           d.Reason,
		Resolved:         d.Resolved,
		Outcome:          string(d.Outcome),
		Resolver:         string(d.Resolver),
		RewardPercent:    d.RewardPercent,
		Slashed:          d.Slashed.Amount,
		ChallengerReward: d.ChallengerReward.Amount,
		ResolvedAt:       d.ResolvedAt,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func fromDisputeModel(m *disputeModel) (*dispute.Dispute, error) {
	disputeID, err := id.ParseDisputeID(m.ID)
	if err != nil {
		return nil, err
	}
	eventID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, err
	}
	producerID, err := id.ParseProducerID(m.ProducerID)
	if err != nil {
		return nil, err
	}
	return &dispute.Dispute{
		Entity:           types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:               disputeID,
		EventID:          eventID,
		ProducerID:       producerID,
		Challenger:       types.Principal(m.Challenger),
		Stake:            types.New(m.Stake, m.Currency),
		EvidenceRef:      m.EvidenceRef,
		Reason:           m.Reason,
		Resolved:         m.Resolved,
		Outcome:          dispute.Outcome(m.Outcome),
		Resolver:         types.Principal(m.Resolver),
		RewardPercent:    m.RewardPercent,
		Slashed:          types.New(m.Slashed, m.Currency),
		ChallengerReward: types.New(m.ChallengerReward, m.Currency),
		ResolvedAt:       m.ResolvedAt,
	}, nil
}

// ==================== Billing models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:verity_accounts"`

	Consumer         string    `grove:"consumer,pk"`
	Currency         string    `grove:"currency"`
	Cash             int64     `grove:"cash"`
	Bonus            int64     `grove:"bonus"`
	QuotaDay         string    `grove:"quota_day"`
	QuotaUsed        int       `grove:"quota_used"`
	LifetimeFreeUsed int       `grove:"lifetime_free_used"`
	Deposited        int64     `grove:"deposited"`
	ReferredBy       string    `grove:"referred_by"`
	ReferralClaimed  bool      `grove:"referral_claimed"`
	CreatedAt        time.Time `grove:"created_at"`
	UpdatedAt        time.Time `grove:"updated_at"`
}

func toAccountModel(a *billing.Account) *accountModel {
	return &accountModel{
		Consumer:         string(a.Consumer),
		Currency:         a.Cash.Currency,
		Cash:             a.Cash.Amount,
		Bonus:            a.Bonus.Amount,
		QuotaDay:         a.QuotaDay,
		QuotaUsed:        a.QuotaUsed,
		LifetimeFreeUsed: a.LifetimeFreeUsed,
		Deposited:        a.Deposited.Amount,
		ReferredBy:       string(a.ReferredBy),
		ReferralClaimed:  a.ReferralClaimed,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) *billing.Account {
	return &billing.Account{
		Entity:           types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		Consumer:         types.Principal(m.Consumer),
		Cash:             types.New(m.Cash, m.Currency),
		Bonus:            types.New(m.Bonus, m.Currency),
		QuotaDay:         m.QuotaDay,
		QuotaUsed:        m.QuotaUsed,
		LifetimeFreeUsed: m.LifetimeFreeUsed,
		Deposited:        types.New(m.Deposited, m.Currency),
		ReferredBy:       types.Principal(m.ReferredBy),
		ReferralClaimed:  m.ReferralClaimed,
	}
}

type grantModel struct {
	grove.BaseModel `grove:"table:verity_grants"`

	Consumer  string    `grove:"consumer,pk"`
	EventID   string    `grove:"event_id,pk"`
	ChargeID  string    `grove:"charge_id"`
	Free      bool      `grove:"free"`
	GrantedAt time.Time `grove:"granted_at"`
}

func toGrantModel(g *billing.Grant) *grantModel {
	return &grantModel{
		Consumer:  string(g.Consumer),
		EventID:   g.EventID.String(),
		ChargeID:  g.ChargeID.String(),
		Free:      g.Free,
		GrantedAt: g.GrantedAt,
	}
}

func fromGrantModel(m *grantModel) (*billing.Grant, error) {
	eventID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, err
	}
	chargeID, err := parseID(m.ChargeID)
	if err != nil {
		return nil, err
	}
	return &billing.Grant{
		Consumer:  types.Principal(m.Consumer),
		EventID:   eventID,
		ChargeID:  chargeID,
		Free:      m.Free,
		GrantedAt: m.GrantedAt,
	}, nil
}

type earningsModel struct {
	grove.BaseModel `grove:"table:verity_earnings"`

	ProducerID  string    `grove:"producer_id,pk"`
	Currency    string    `grove:"currency"`
	TotalEarned int64     `grove:"total_earned"`
	Pending     int64     `grove:"pending"`
	Withdrawn   int64     `grove:"withdrawn"`
	QueryCount  int64     `grove:"query_count"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
}

func toEarningsModel(e *billing.Earnings) *earningsModel {
	return &earningsModel{
		ProducerID:  e.ProducerID.String(),
		Currency:    e.Pending.Currency,
		TotalEarned: e.TotalEarned.Amount,
		Pending:     e.Pending.Amount,
		Withdrawn:   e.Withdrawn.Amount,
		QueryCount:  e.QueryCount,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func fromEarningsModel(m *earningsModel) (*billing.Earnings, error) {
	producerID, err := id.ParseProducerID(m.ProducerID)
	if err != nil {
		return nil, err
	}
	return &billing.Earnings{
		Entity:      types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ProducerID:  producerID,
		TotalEarned: types.New(m.TotalEarned, m.Currency),
		Pending:     types.New(m.Pending, m.Currency),
		Withdrawn:   types.New(m.Withdrawn, m.Currency),
		QueryCount:  m.QueryCount,
	}, nil
}

type poolsModel struct {
	grove.BaseModel `grove:"table:verity_pools"`

	Currency       string    `grove:"currency,pk"`
	Treasury       int64     `grove:"treasury"`
	ChallengerPool int64     `grove:"challenger_pool"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toPoolsModel(p *billing.Pools) *poolsModel {
	return &poolsModel{
		Currency:       p.Treasury.Currency,
		Treasury:       p.Treasury.Amount,
		ChallengerPool: p.ChallengerPool.Amount,
		UpdatedAt:      p.UpdatedAt,
	}
}

func fromPoolsModel(m *poolsModel) *billing.Pools {
	return &billing.Pools{
		Treasury:       types.New(m.Treasury, m.Currency),
		ChallengerPool: types.New(m.ChallengerPool, m.Currency),
		UpdatedAt:      m.UpdatedAt,
	}
}

type chargeModel struct {
	grove.BaseModel `grove:"table:verity_charges"`

	ID              string    `grove:"id,pk"`
	Consumer        string    `grove:"consumer"`
	EventID         string    `grove:"event_id"`
	ProducerID      string    `grove:"producer_id"`
	Currency        string    `grove:"currency"`
	Fee             int64     `grove:"fee"`
	FromBonus       int64     `grove:"from_bonus"`
	FromCash        int64     `grove:"from_cash"`
	ProducerShare   int64     `grove:"producer_share"`
	ProtocolShare   int64     `grove:"protocol_share"`
	ChallengerShare int64     `grove:"challenger_share"`
	Free            bool      `grove:"free"`
	ChargedAt       time.Time `grove:"charged_at"`
}

func toChargeModel(c *billing.Charge) *chargeModel {
	return &chargeModel{
		ID:              c.ID.String(),
		Consumer:        string(c.Consumer),
		EventID:         c.EventID.String(),
		ProducerID:      c.ProducerID.String(),
		Currency:        c.Fee.Currency,
		Fee:             c.Fee.Amount,
		FromBonus:       c.FromBonus.Amount,
		FromCash:        c.FromCash.Amount,
		ProducerShare:   c.ProducerShare.Amount,
		ProtocolShare:   c.ProtocolShare.Amount,
		ChallengerShare: c.ChallengerShare.Amount,
		Free:            c.Free,
		ChargedAt:       c.ChargedAt,
	}
}

func fromChargeModel(m *chargeModel) (*billing.Charge, error) {
	chargeID, err := id.ParseWithPrefix(m.ID, id.PrefixCharge)
	if err != nil {
		return nil, err
	}
	eventID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, err
	}
	producerID, err := id.ParseProducerID(m.ProducerID)
	if err != nil {
		return nil, err
	}
	money := func(v int64) types.Money { return types.New(v, m.Currency) }
	return &billing.Charge{
		ID:              chargeID,
		Consumer:        types.Principal(m.Consumer),
		EventID:         eventID,
		ProducerID:      producerID,
		Fee:             money(m.Fee),
		FromBonus:       money(m.FromBonus),
		FromCash:        money(m.FromCash),
		ProducerShare:   money(m.ProducerShare),
		ProtocolShare:   money(m.ProtocolShare),
		ChallengerShare: money(m.ChallengerShare),
		Free:            m.Free,
		ChargedAt:       m.ChargedAt,
	}, nil
}

type depositModel struct {
	grove.BaseModel `grove:"table:verity_deposits"`

	ID            string    `grove:"id,pk"`
	Consumer      string    `grove:"consumer"`
	Currency      string    `grove:"currency"`
	Amount        int64     `grove:"amount"`
	VolumeBonus   int64     `grove:"volume_bonus"`
	ReferralBonus int64     `grove:"referral_bonus"`
	Referrer      string    `grove:"referrer"`
	ReferrerBonus int64     `grove:"referrer_bonus"`
	CreatedAt     time.Time `grove:"created_at"`
}

func toDepositModel(d *billing.Deposit) *depositModel {
	return &depositModel{
		ID:            d.ID.String(),
		Consumer:      string(d.Consumer),
		Currency:      d.Amount.Currency,
		Amount:        d.Amount.Amount,
		VolumeBonus:   d.VolumeBonus.Amount,
		ReferralBonus: d.ReferralBonus.Amount,
		Referrer:      string(d.Referrer),
		ReferrerBonus: d.ReferrerBonus.Amount,
		CreatedAt:     d.CreatedAt,
	}
}

type withdrawalModel struct {
	grove.BaseModel `grove:"table:verity_withdrawals"`

	ID         string    `grove:"id,pk"`
	Kind       string    `grove:"kind"`
	ProducerID string    `grove:"producer_id"`
	Recipient  string    `grove:"recipient"`
	Currency   string    `grove:"currency"`
	Amount     int64     `grove:"amount"`
	CreatedAt  time.Time `grove:"created_at"`
}

func toWithdrawalModel(w *billing.Withdrawal) *withdrawalModel {
	return &withdrawalModel{
		ID:         w.ID.String(),
		Kind:       string(w.Kind),
		ProducerID: w.ProducerID.String(),
		Recipient:  string(w.To),
		Currency:   w.Amount.Currency,
		Amount:     w.Amount.Amount,
		CreatedAt:  w.CreatedAt,
	}
}

type payoutModel struct {
	grove.BaseModel `grove:"table:verity_payouts"`

	ID        string    `grove:"id,pk"`
	Pool      string    `grove:"pool"`
	Recipient string    `grove:"recipient"`
	Currency  string    `grove:"currency"`
	Amount    int64     `grove:"amount"`
	Memo      string    `grove:"memo"`
	CreatedAt time.Time `grove:"created_at"`
}

func toPayoutModel(p *billing.Payout) *payoutModel {
	return &payoutModel{
		ID:        p.ID.String(),
		Pool:      string(p.Pool),
		Recipient: string(p.To),
		Currency:  p.Amount.Currency,
		Amount:    p.Amount.Amount,
		Memo:      p.Memo,
		CreatedAt: p.CreatedAt,
	}
}

// ==================== Params models ====================

// paramsModel stores each version whole; the body is the JSON encoding of
// params.Params.
type paramsModel struct {
	grove.BaseModel `grove:"table:verity_params"`

	Version   int             `grove:"version,pk"`
	Currency  string          `grove:"currency"`
	Body      json.RawMessage `grove:"body,type:jsonb"`
	UpdatedBy string          `grove:"updated_by"`
	UpdatedAt time.Time       `grove:"updated_at"`
}

func toParamsModel(p *params.Params) (*paramsModel, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return &paramsModel{
		Version:   p.Version,
		Currency:  p.Currency,
		Body:      body,
		UpdatedBy: string(p.UpdatedBy),
		UpdatedAt: p.UpdatedAt,
	}, nil
}

func fromParamsModel(m *paramsModel) (*params.Params, error) {
	p := new(params.Params)
	if err := json.Unmarshal(m.Body, p); err != nil {
		return nil, err
	}
	return p, nil
}
