package mongo

import (
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

// Amounts are stored in minor units next to a single currency field per
// document.

// parseID parses an optional identifier field; "" yields id.Nil.
func parseID(s string) (id.ID, error) {
	var out id.ID
	err := out.UnmarshalText([]byte(s))
	return out, err
}

// ==================== Registry models ====================

type producerModel struct {
	grove.BaseModel `grove:"table:verity_producers"`

	ID         string    `grove:"id,pk"       bson:"_id"`
	Owner      string    `grove:"owner"       bson:"owner"`
	Currency   string    `grove:"currency"    bson:"currency"`
	Stake      int64     `grove:"stake"       bson:"stake"`
	Reputation int       `grove:"reputation"  bson:"reputation"`
	Active     bool      `grove:"active"      bson:"active"`
	Banned     bool      `grove:"banned"      bson:"banned"`
	EventCount int64     `grove:"event_count" bson:"event_count"`
	CreatedAt  time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"  bson:"updated_at"`
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

	ID          string    `grove:"id,pk"        bson:"_id"`
	ProducerID  string    `grove:"producer_id"  bson:"producer_id"`
	ScheduledAt time.Time `grove:"scheduled_at" bson:"scheduled_at"`
	Metadata    []byte    `grove:"metadata"     bson:"metadata,omitempty"`
	HasResult   bool      `grove:"has_result"   bson:"has_result"`
	CreatedAt   time.Time `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"   bson:"updated_at"`
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

	EventID          string            `grove:"event_id,pk"       bson:"_id"`
	ProducerID       string            `grove:"producer_id"       bson:"producer_id"`
	Submitter        string            `grove:"submitter"         bson:"submitter"`
	Payload          []byte            `grove:"payload"           bson:"payload"`
	DecodeHint       string            `grove:"decode_hint"       bson:"decode_hint"`
	Schema           string            `grove:"schema"            bson:"schema"`
	QuickFields      map[string]string `grove:"quick_fields"      bson:"quick_fields,omitempty"`
	Fingerprint      string            `grove:"fingerprint"       bson:"fingerprint"`
	Status           string            `grove:"status"            bson:"status"`
	DisputeID        string            `grove:"dispute_id"        bson:"dispute_id"`
	SubmittedAt      time.Time         `grove:"submitted_at"      bson:"submitted_at"`
	FinalizeDeadline time.Time         `grove:"finalize_deadline" bson:"finalize_deadline"`
	FinalizedAt      *time.Time        `grove:"finalized_at"      bson:"finalized_at,omitempty"`
	CreatedAt        time.Time         `grove:"created_at"        bson:"created_at"`
	UpdatedAt        time.Time         `grove:"updated_at"        bson:"updated_at"`
}

func toResultModel(r *result.Result) *resultModel {
	return &resultModel{
		EventID:          r.EventID.String(),
		ProducerID:       r.ProducerID.String(),
		Submitter:        string(r.Submitter),
		Payload:          r.Payload,
		DecodeHint:       r.DecodeHint,
		Schema:           r.Schema,
		QuickFields:      r.QuickFields,
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

	ID               string     `grove:"id,pk"             bson:"_id"`
	EventID          string     `grove:"event_id"          bson:"event_id"`
	ProducerID       string     `grove:"producer_id"       bson:"producer_id"`
	Challenger       string     `grove:"challenger"        bson:"challenger"`
	Currency         string     `grove:"currency"          bson:"currency"`
	Stake            int64      `grove:"stake"             bson:"stake"`
	EvidenceRef      string     `grove:"evidence_ref"      bson:"evidence_ref"`
	Reason           string     `grove:"reason"            bson:"reason"`
	Resolved         bool       `grove:"resolved"          bson:"resolved"`
	Outcome          string     `grove:"outcome"           bson:"outcome"`
	Resolver         string     `grove:"resolver"          bson:"resolver"`
	RewardPercent    int        `grove:"reward_percent"    bson:"reward_percent"`
	Slashed          int64      `grove:"slashed"           bson:"slashed"`
	ChallengerReward int64      `grove:"challenger_reward" bson:"challenger_reward"`
	ResolvedAt       *time.Time `grove:"resolved_at"       bson:"resolved_at,omitempty"`
	CreatedAt        time.Time  `grove:"created_at"        bson:"created_at"`
	UpdatedAt        time.Time  `grove:"updated_at"        bson:"updated_at"`
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

	Consumer         string    `grove:"consumer,pk"        bson:"_id"`
	Currency         string    `grove:"currency"           bson:"currency"`
	Cash             int64     `grove:"cash"               bson:"cash"`
	Bonus            int64     `grove:"bonus"              bson:"bonus"`
	QuotaDay         string    `grove:"quota_day"          bson:"quota_day"`
	QuotaUsed        int       `grove:"quota_used"         bson:"quota_used"`
	LifetimeFreeUsed int       `grove:"lifetime_free_used" bson:"lifetime_free_used"`
	Deposited        int64     `grove:"deposited"          bson:"deposited"`
	ReferredBy       string    `grove:"referred_by"        bson:"referred_by"`
	ReferralClaimed  bool      `grove:"referral_claimed"   bson:"referral_claimed"`
	CreatedAt        time.Time `grove:"created_at"         bson:"created_at"`
	UpdatedAt        time.Time `grove:"updated_at"         bson:"updated_at"`
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

// grantModel is keyed by "consumer|event" so the _id index enforces one
// grant per pair.
type grantModel struct {
	grove.BaseModel `grove:"table:verity_grants"`

	Key       string    `grove:"key,pk"     bson:"_id"`
	Consumer  string    `grove:"consumer"   bson:"consumer"`
	EventID   string    `grove:"event_id"   bson:"event_id"`
	ChargeID  string    `grove:"charge_id"  bson:"charge_id"`
	Free      bool      `grove:"free"       bson:"free"`
	GrantedAt time.Time `grove:"granted_at" bson:"granted_at"`
}

func grantKey(consumer types.Principal, eventID id.EventID) string {
	return string(consumer) + "|" + eventID.String()
}

func toGrantModel(g *billing.Grant) *grantModel {
	return &grantModel{
		Key:       grantKey(g.Consumer, g.EventID),
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

	ProducerID  string    `grove:"producer_id,pk" bson:"_id"`
	Currency    string    `grove:"currency"       bson:"currency"`
	TotalEarned int64     `grove:"total_earned"   bson:"total_earned"`
	Pending     int64     `grove:"pending"        bson:"pending"`
	Withdrawn   int64     `grove:"withdrawn"      bson:"withdrawn"`
	QueryCount  int64     `grove:"query_count"    bson:"query_count"`
	CreatedAt   time.Time `grove:"created_at"     bson:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"     bson:"updated_at"`
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

	Currency       string    `grove:"currency,pk"     bson:"_id"`
	Treasury       int64     `grove:"treasury"        bson:"treasury"`
	ChallengerPool int64     `grove:"challenger_pool" bson:"challenger_pool"`
	UpdatedAt      time.Time `grove:"updated_at"      bson:"updated_at"`
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

	ID              string    `grove:"id,pk"            bson:"_id"`
	Consumer        string    `grove:"consumer"         bson:"consumer"`
	EventID         string    `grove:"event_id"         bson:"event_id"`
	ProducerID      string    `grove:"producer_id"      bson:"producer_id"`
	Currency        string    `grove:"currency"         bson:"currency"`
	Fee             int64     `grove:"fee"              bson:"fee"`
	FromBonus       int64     `grove:"from_bonus"       bson:"from_bonus"`
	FromCash        int64     `grove:"from_cash"        bson:"from_cash"`
	ProducerShare   int64     `grove:"producer_share"   bson:"producer_share"`
	ProtocolShare   int64     `grove:"protocol_share"   bson:"protocol_share"`
	ChallengerShare int64     `grove:"challenger_share" bson:"challenger_share"`
	Free            bool      `grove:"free"             bson:"free"`
	ChargedAt       time.Time `grove:"charged_at"       bson:"charged_at"`
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

	ID            string    `grove:"id,pk"          bson:"_id"`
	Consumer      string    `grove:"consumer"       bson:"consumer"`
	Currency      string    `grove:"currency"       bson:"currency"`
	Amount        int64     `grove:"amount"         bson:"amount"`
	VolumeBonus   int64     `grove:"volume_bonus"   bson:"volume_bonus"`
	ReferralBonus int64     `grove:"referral_bonus" bson:"referral_bonus"`
	Referrer      string    `grove:"referrer"       bson:"referrer,omitempty"`
	ReferrerBonus int64     `grove:"referrer_bonus" bson:"referrer_bonus"`
	CreatedAt     time.Time `grove:"created_at"     bson:"created_at"`
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

	ID         string    `grove:"id,pk"       bson:"_id"`
	Kind       string    `grove:"kind"        bson:"kind"`
	ProducerID string    `grove:"producer_id" bson:"producer_id"`
	Recipient  string    `grove:"recipient"   bson:"recipient"`
	Currency   string    `grove:"currency"    bson:"currency"`
	Amount     int64     `grove:"amount"      bson:"amount"`
	CreatedAt  time.Time `grove:"created_at"  bson:"created_at"`
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

	ID        string    `grove:"id,pk"      bson:"_id"`
	Pool      string    `grove:"pool"       bson:"pool"`
	Recipient string    `grove:"recipient"  bson:"recipient"`
	Currency  string    `grove:"currency"   bson:"currency"`
	Amount    int64     `grove:"amount"     bson:"amount"`
	Memo      string    `grove:"memo"       bson:"memo,omitempty"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
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

type bonusTierModel struct {
	Threshold int64 `bson:"threshold"`
	Bps       int64 `bson:"bps"`
}

type paramsModel struct {
	grove.BaseModel `grove:"table:verity_params"`

	Version              int              `grove:"version,pk" bson:"_id"`
	Currency             string           `grove:"currency"   bson:"currency"`
	MinStake             int64            `bson:"min_stake"`
	ChallengeStake       int64            `bson:"challenge_stake"`
	SlashAmount          int64            `bson:"slash_amount"`
	QueryFee             int64            `bson:"query_fee"`
	ChallengeWindowMS    int64            `bson:"challenge_window_ms"`
	ProducerBps          int64            `bson:"producer_bps"`
	ProtocolBps          int64            `bson:"protocol_bps"`
	ChallengerBps        int64            `bson:"challenger_bps"`
	BonusTiers           []bonusTierModel `bson:"bonus_tiers"`
	ReferralEnabled      bool             `bson:"referral_enabled"`
	ReferrerBps          int64            `bson:"referrer_bps"`
	RefereeBps           int64            `bson:"referee_bps"`
	ReferralCap          int64            `bson:"referral_cap"`
	FreeQuota            int              `bson:"free_quota"`
	QuotaPolicy          string           `bson:"quota_policy"`
	ReputationOnFinalize int              `bson:"reputation_on_finalize"`
	ReputationOnSlash    int              `bson:"reputation_on_slash"`
	ReputationOnUpheld   int              `bson:"reputation_on_upheld"`
	Forfeit              string           `bson:"forfeit"`
	Admins               []string         `bson:"admins"`
	Resolvers            []string         `bson:"resolvers"`
	UpdatedAt            time.Time        `grove:"updated_at" bson:"updated_at"`
	UpdatedBy            string           `grove:"updated_by" bson:"updated_by"`
}

func principals(in []types.Principal) []string {
	out := make([]string, len(in))
	for i, p := range in {
		out[i] = string(p)
	}
	return out
}

func toParamsModel(p *params.Params) *paramsModel {
	tiers := make([]bonusTierModel, len(p.BonusTiers))
	for i, t := range p.BonusTiers {
		tiers[i] = bonusTierModel{Threshold: t.Threshold, Bps: t.Bps}
	}
	return &paramsModel{
		Version:              p.Version,
		Currency:             p.Currency,
		MinStake:             p.MinStake.Amount,
		ChallengeStake:       p.ChallengeStake.Amount,
		SlashAmount:          p.SlashAmount.Amount,
		QueryFee:             p.QueryFee.Amount,
		ChallengeWindowMS:    p.ChallengeWindow.Milliseconds(),
		ProducerBps:          p.ProducerBps,
		ProtocolBps:          p.ProtocolBps,
		ChallengerBps:        p.ChallengerBps,
		BonusTiers:           tiers,
		ReferralEnabled:      p.ReferralEnabled,
		ReferrerBps:          p.ReferrerBps,
		RefereeBps:           p.RefereeBps,
		ReferralCap:          p.ReferralCap.Amount,
		FreeQuota:            p.FreeQuota,
		QuotaPolicy:          string(p.QuotaPolicy),
		ReputationOnFinalize: p.ReputationOnFinalize,
		ReputationOnSlash:    p.ReputationOnSlash,
		ReputationOnUpheld:   p.ReputationOnUpheld,
		Forfeit:              string(p.Forfeit),
		Admins:               principals(p.Admins),
		Resolvers:            principals(p.Resolvers),
		UpdatedAt:            p.UpdatedAt,
		UpdatedBy:            string(p.UpdatedBy),
	}
}

func fromParamsModel(m *paramsModel) *params.Params {
	money := func(v int64) types.Money { return types.New(v, m.Currency) }
	tiers := make([]params.BonusTier, len(m.BonusTiers))
	for i, t := range m.BonusTiers {
		tiers[i] = params.BonusTier{Threshold: t.Threshold, Bps: t.Bps}
	}
	admins := make([]types.Principal, len(m.Admins))
	for i, a := range m.Admins {
		admins[i] = types.Principal(a)
	}
	resolvers := make([]types.Principal, len(m.Resolvers))
	for i, r := range m.Resolvers {
		resolvers[i] = types.Principal(r)
	}
	return &params.Params{
		Version:              m.Version,
		Currency:             m.Currency,
		MinStake:             money(m.MinStake),
		ChallengeStake:       money(m.ChallengeStake),
		SlashAmount:          money(m.SlashAmount),
		QueryFee:             money(m.QueryFee),
		ChallengeWindow:      time.Duration(m.ChallengeWindowMS) * time.Millisecond,
		ProducerBps:          m.ProducerBps,
		ProtocolBps:          m.ProtocolBps,
		ChallengerBps:        m.ChallengerBps,
		BonusTiers:           tiers,
		ReferralEnabled:      m.ReferralEnabled,
		ReferrerBps:          m.ReferrerBps,
		RefereeBps:           m.RefereeBps,
		ReferralCap:          money(m.ReferralCap),
		FreeQuota:            m.FreeQuota,
		QuotaPolicy:          params.QuotaPolicy(m.QuotaPolicy),
		ReputationOnFinalize: m.ReputationOnFinalize,
		ReputationOnSlash:    m.ReputationOnSlash,
		ReputationOnUpheld:   m.ReputationOnUpheld,
		Forfeit:              params.ForfeitPolicy(m.Forfeit),
		Admins:               admins,
		Resolvers:            resolvers,
		UpdatedAt:            m.UpdatedAt,
		UpdatedBy:            types.Principal(m.UpdatedBy),
	}
}
