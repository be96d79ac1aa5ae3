package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/verity"
	"github.com/xraph/verity/billing"
	"github.com/xraph/verity/dispute"
	"github.com/xraph/verity/id"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/producer"
	"github.com/xraph/verity/result"
	veritystore "github.com/xraph/verity/store"
	"github.com/xraph/verity/types"
)

// Collection name constants.
const (
	colProducers   = "verity_producers"
	colEvents      = "verity_events"
	colResults     = "verity_results"
	colDisputes    = "verity_disputes"
	colAccounts    = "verity_accounts"
	colGrants      = "verity_grants"
	colEarnings    = "verity_earnings"
	colPools       = "verity_pools"
	colCharges     = "verity_charges"
	colDeposits    = "verity_deposits"
	colWithdrawals = "verity_withdrawals"
	colPayouts     = "verity_payouts"
	colParams      = "verity_params"
)

// compile-time interface check
var _ veritystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM. RunInTx needs a
// replica set or sharded cluster.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all verity collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("verity/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Transactions ====================

type txKey struct{}

// querier is satisfied by both *mongodriver.MongoDB and *mongodriver.MongoTx.
type querier interface {
	NewFind(model ...any) *mongodriver.FindQuery
	NewInsert(model any) *mongodriver.InsertQuery
	NewUpdate(model any) *mongodriver.UpdateQuery
	NewDelete(model any) *mongodriver.DeleteQuery
}

func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*mongodriver.MongoTx); ok {
		return tx
	}
	return s.mdb
}

// RunInTx runs fn inside a session transaction. Nested calls join the outer
// transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*mongodriver.MongoTx); ok {
		return fn(ctx)
	}
	gtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("verity/mongo: begin: %w", err)
	}
	tx, ok := gtx.Raw().(*mongodriver.MongoTx)
	if !ok {
		_ = gtx.Rollback() //nolint:errcheck // unusable transaction
		return fmt.Errorf("verity/mongo: unexpected transaction type %T", gtx.Raw())
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("verity/mongo: rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("verity/mongo: commit: %w", err)
	}
	return nil
}

// ==================== Producer Store ====================

func (s *Store) CreateProducer(ctx context.Context, p *producer.Producer) error {
	if _, err := s.q(ctx).NewInsert(toProducerModel(p)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return verity.ErrAlreadyExists
		}
		return fmt.Errorf("verity/mongo: create producer: %w", err)
	}
	return nil
}

func (s *Store) GetProducer(ctx context.Context, producerID id.ProducerID) (*producer.Producer, error) {
	var m producerModel
	err := s.q(ctx).NewFind(&m).
		Filter(bson.M{"_id": producerID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, verity.ErrProducerNotFound
		}
		return nil, fmt.Errorf("verity/mongo: get producer: %w", err)
	}
	return fromProducerModel(&m)
}

func (s *Store) UpdateProducer(ctx context.Context, p *producer.Producer) error {
	m := toProducerModel(p)
	res, err := s.q(ctx).NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("verity/mongo: update producer: %w", err)
	}
	if res.MatchedCount() == 0 {
		return verity.ErrProducerNotFound
	}
	return nil
}

func (s *Store) ListProducers(ctx context.Context, opts producer.ListOpts) ([]*producer.Producer, error) {
	var models []producerModel

	filter := bson.M{}
	if opts.Owner != "" {
		filter["owner"] = string(opts.Owner)
	}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	q := s.q(ctx).NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})
	q = paginate(q, opts.Limit, opts.Offset)

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("verity/mongo: list producers: %w", err)
	}

	out := make([]*producer.Producer, 0, len(models))
	for i := range models {
		p, err := fromProducerModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) CreateEvent(ctx context.Context, e *producer.Event) error {
	if _, err := s.q(ctx).NewInsert(toEventModel(e)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return verity.ErrAlreadyExists
		}
		return fmt.Errorf("verity/mongo: create event: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*producer.Event, error) {
	var m eventModel
	err := s.q(ctx).NewFind(&m).
		Filter(bson.M{"_id": eventID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, verity.ErrEventNotFound
		}
		return nil, fmt.Errorf("verity/mongo: get event: %w", err)
	}
	return fromEventModel(&m)
}

func (s *Store) UpdateEvent(ctx context.Context, e *producer.Event) error {
	m := toEventModel(e)
	res, err := s.q(ctx).NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("verity/mongo: update event: %w", err)
	}
	if res.MatchedCount() == 0 {
		return verity.ErrEventNotFound
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, producerID id.ProducerID, opts producer.ListOpts) ([]*producer.Event, error) {
	var models []eventModel
	q := s.q(ctx).NewFind(&models).
		Filter(bson.M{"producer_id": producerID.String()}).
		Sort(bson.D{{Key: "scheduled_at", Value: 1}})
	q = paginate(q, opts.Limit, opts.Offset)

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("verity/mongo: list events: %w", err)
	}

	out := make([]*producer.Event, 0, len(models))
	for i := range models {
		e, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ==================== Result Store ====================

// CreateResult keys the document by event id, so a second insert for the
// same event collides on _id.
func (s *Store) CreateResult(ctx context.Context, r *result.Result) error {
	if _, err := s.q(ctx).NewInsert(toResultModel(r)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return verity.ErrAlreadySubmitted
		}
		return fmt.Errorf("verity/mongo: create result: %w", err)
	}
	return nil
}

func (s *Store) GetResult(ctx context.Context, eventID id.EventID) (*result.Result, error) {
	var m resultModel
	err := s.q(ctx).NewFind(&m).
		Filter(bson.M{"_id": eventID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, verity.ErrResultNotFound
		}
		return nil, fmt.Errorf("verity/mongo: get result: %w", err)
	}
	return fromResultModel(&m)
}

func (s *Store) UpdateResult(ctx context.Context, r *result.Result) error {
	m := toResultModel(r)
	res, err := s.q(ctx).NewUpdate(m).
		Filter(bson.M{"_id": m.EventID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("verity/mongo: update result: %w", err)
	}
	if res.MatchedCount() == 0 {
		return verity.ErrResultNotFound
	}
	return nil
}

func (s *Store) ListResults(ctx context.Context, opts result.ListOpts) ([]*result.Result, error) {
	var models []resultModel

	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if !opts.ProducerID.IsNil() {
		filter["producer_id"] = opts.ProducerID.String()
	}
	if !opts.DeadlineBefore.IsZero() {
		filter["finalize_deadline"] = bson.M{"$lte": opts.DeadlineBefore}
	}

	q := s.q(ctx).NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "finalize_deadline", Value: 1}})
	q = paginate(q, opts.Limit, opts.Offset)

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("verity/mongo: list results: %w", err)
	}

	out := make([]*result.Result, 0, len(models))
	for i := range models {
		r, err := fromResultModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ==================== Dispute Store ====================

func (s *Store) CreateDispute(ctx context.Context, d *dispute.Dispute) error {
	if _, err := s.q(ctx).NewInsert(toDisputeModel(d)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return verity.ErrAlreadyDisputed
		}
		return fmt.Errorf("verity/mongo: create dispute: %w", err)
	}
	return nil
}

func (s *Store) GetDispute(ctx context.Context, disputeID id.DisputeID) (*dispute.Dispute, error) {
	var m disputeModel
	err := s.q(ctx).NewFind(&m).
		Filter(bson.M{"_id": disputeID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, verity.ErrDisputeNotFound
		}
		return nil, fmt.Errorf("verity/mongo: get dispute: %w", err)
	}
	return fromDisputeModel(&m)
}

func (s *Store) UpdateDispute(ctx context.Context, d *dispute.Dispute) error {
	m := toDisputeModel(d)
	res, err := s.q(ctx).NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("verity/mongo: update dispute: %w", err)
	}
	if res.MatchedCount() == 0 {
		return verity.ErrDisputeNotFound
	}
	return nil
}

func (s *Store) ListDisputes(ctx context.Context, opts dispute.ListOpts) ([]*dispute.Dispute, error) {
	var models []disputeModel

	filter := bson.M{}
	if !opts.EventID.IsNil() {
		filter["event_id"] = opts.EventID.String()
	}
	if opts.Challenger != "" {
		filter["challenger"] = string(opts.Challenger)
	}
	if opts.UnresolvedOnly {
		filter["resolved"] = false
	}

	q := s.q(ctx).NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})
	q = paginate(q, opts.Limit, opts.Offset)

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("verity/mongo: list disputes: %w", err)
	}

	out := make([]*dispute.Dispute, 0, len(models))
	for i := range models {
		d, err := fromDisputeModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// ==================== Billing Store ====================

func (s *Store) GetAccount(ctx context.Context, consumer types.Principal) (*billing.Account, error) {
	var m accountModel
	err := s.q(ctx).NewFind(&m).
		Filter(bson.M{"_id": string(consumer)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, verity.ErrAccountNotFound
		}
		return nil, fmt.Errorf("verity/mongo: get account: %w", err)
	}
	return fromAccountModel(&m), nil
}

func (s *Store) PutAccount(ctx context.Context, a *billing.Account) error {
	m := toAccountModel(a)
	_, err := s.q(ctx).NewUpdate(m).
		Filter(bson.M{"_id": m.Consumer}).
		SetUpdate(bson.M{"$set": bson.M{
			"currency":           m.Currency,
			"cash":               m.Cash,
			"bonus":              m.Bonus,
			"quota_day":          m.QuotaDay,
			"quota_used":         m.QuotaUsed,
			"lifetime_free_used": m.LifetimeFreeUsed,
			"deposited":          m.Deposited,
			"referred_by":        m.ReferredBy,
			"referral_claimed":   m.ReferralClaimed,
			"created_at":         m.CreatedAt,
			"updated_at":         m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("verity/mongo: put account: %w", err)
	}
	return nil
}

func (s *Store) GetGrant(ctx context.Context, consumer types.Principal, eventID id.EventID) (*billing.Grant, error) {
	var m grantModel
	err := s.q(ctx).NewFind(&m).
		Filter(bson.M{"_id": grantKey(consumer, eventID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, verity.ErrNotFound
		}
		return nil, fmt.Errorf("verity/mongo: get grant: %w", err)
	}
	return fromGrantModel(&m)
}

func (s *Store) CreateGrant(ctx context.Context, g *billing.Grant) error {
	if _, err := s.q(ctx).NewInsert(toGrantModel(g)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return verity.ErrAlreadyExists
		}
		return fmt.Errorf("verity/mongo: create grant: %w", err)
	}
	return nil
}

func (s *Store) GetEarnings(ctx context.Context, producerID id.ProducerID) (*billing.Earnings, error) {
	var m earningsModel
	err := s.q(ctx).NewFind(&m).
		Filter(bson.M{"_id": producerID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, verity.ErrNotFound
		}
		return nil, fmt.Errorf("verity/mongo: get earnings: %w", err)
	}
	return fromEarningsModel(&m)
}

func (s *Store) PutEarnings(ctx context.Context, e *billing.Earnings) error {
	m := toEarningsModel(e)
	_, err := s.q(ctx).NewUpdate(m).
		Filter(bson.M{"_id": m.ProducerID}).
		SetUpdate(bson.M{"$set": bson.M{
			"currency":     m.Currency,
			"total_earned": m.TotalEarned,
			"pending":      m.Pending,
			"withdrawn":    m.Withdrawn,
			"query_count":  m.QueryCount,
			"created_at":   m.CreatedAt,
			"updated_at":   m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("verity/mongo: put earnings: %w", err)
	}
	return nil
}

func (s *Store) GetPools(ctx context.Context, currency string) (*billing.Pools, error) {
	var m poolsModel
	err := s.q(ctx).NewFind(&m).
		Filter(bson.M{"_id": currency}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return &billing.Pools{Treasury: types.Zero(currency), ChallengerPool: types.Zero(currency)}, nil
		}
		return nil, fmt.Errorf("verity/mongo: get pools: %w", err)
	}
	return fromPoolsModel(&m), nil
}

func (s *Store) PutPools(ctx context.Context, p *billing.Pools) error {
	_, err := s.q(ctx).NewUpdate((*poolsModel)(nil)).
		Filter(bson.M{"_id": p.Treasury.Currency}).
		SetUpdate(bson.M{"$set": bson.M{
			"treasury":        p.Treasury.Amount,
			"challenger_pool": p.ChallengerPool.Amount,
			"updated_at":      p.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("verity/mongo: put pools: %w", err)
	}
	return nil
}

func (s *Store) CreateCharge(ctx context.Context, c *billing.Charge) error {
	if _, err := s.q(ctx).NewInsert(toChargeModel(c)).Exec(ctx); err != nil {
		return fmt.Errorf("verity/mongo: create charge: %w", err)
	}
	return nil
}

func (s *Store) ListCharges(ctx context.Context, consumer types.Principal, opts billing.ListOpts) ([]*billing.Charge, error) {
	var models []chargeModel
	q := s.q(ctx).NewFind(&models).
		Filter(bson.M{"consumer": string(consumer)}).
		Sort(bson.D{{Key: "charged_at", Value: 1}, {Key: "_id", Value: 1}})
	q = paginate(q, opts.Limit, opts.Offset)

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("verity/mongo: list charges: %w", err)
	}

	out := make([]*billing.Charge, 0, len(models))
	for i := range models {
		c, err := fromChargeModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) CreateDeposit(ctx context.Context, d *billing.Deposit) error {
	if _, err := s.q(ctx).NewInsert(toDepositModel(d)).Exec(ctx); err != nil {
		return fmt.Errorf("verity/mongo: create deposit: %w", err)
	}
	return nil
}

func (s *Store) CreateWithdrawal(ctx context.Context, w *billing.Withdrawal) error {
	if _, err := s.q(ctx).NewInsert(toWithdrawalModel(w)).Exec(ctx); err != nil {
		return fmt.Errorf("verity/mongo: create withdrawal: %w", err)
	}
	return nil
}

func (s *Store) CreatePayout(ctx context.Context, p *billing.Payout) error {
	if _, err := s.q(ctx).NewInsert(toPayoutModel(p)).Exec(ctx); err != nil {
		return fmt.Errorf("verity/mongo: create payout: %w", err)
	}
	return nil
}

// ==================== Params Store ====================

func (s *Store) GetParams(ctx context.Context) (*params.Params, error) {
	var m paramsModel
	err := s.q(ctx).NewFind(&m).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: -1}}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, verity.ErrNotFound
		}
		return nil, fmt.Errorf("verity/mongo: get params: %w", err)
	}
	return fromParamsModel(&m), nil
}

func (s *Store) SaveParams(ctx context.Context, p *params.Params) error {
	if _, err := s.q(ctx).NewInsert(toParamsModel(p)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return verity.ErrAlreadyExists
		}
		return fmt.Errorf("verity/mongo: save params: %w", err)
	}
	return nil
}

func (s *Store) ListParamsVersions(ctx context.Context) ([]*params.Params, error) {
	var models []paramsModel
	err := s.q(ctx).NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("verity/mongo: list params: %w", err)
	}
	out := make([]*params.Params, 0, len(models))
	for i := range models {
		out = append(out, fromParamsModel(&models[i]))
	}
	return out, nil
}

// ==================== Helpers ====================

func paginate(q *mongodriver.FindQuery, limit, offset int) *mongodriver.FindQuery {
	if limit > 0 {
		q = q.Limit(int64(limit))
	}
	if offset > 0 {
		q = q.Skip(int64(offset))
	}
	return q
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all verity collections.
// Documents keyed by a natural id (results by event, grants by pair, params
// by version) rely on the built-in _id index for uniqueness.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colProducers: {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
			{Keys: bson.D{{Key: "active", Value: 1}}},
		},
		colEvents: {
			{Keys: bson.D{{Key: "producer_id", Value: 1}, {Key: "scheduled_at", Value: 1}}},
		},
		colResults: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "finalize_deadline", Value: 1}}},
			{Keys: bson.D{{Key: "producer_id", Value: 1}}},
		},
		colDisputes: {
			{
				Keys:    bson.D{{Key: "event_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "challenger", Value: 1}}},
		},
		colAccounts: {},
		colGrants: {
			{Keys: bson.D{{Key: "event_id", Value: 1}}},
		},
		colEarnings: {},
		colPools:    {},
		colCharges: {
			{Keys: bson.D{{Key: "consumer", Value: 1}, {Key: "charged_at", Value: 1}}},
		},
		colDeposits: {
			{Keys: bson.D{{Key: "consumer", Value: 1}}},
		},
		colWithdrawals: {
			{Keys: bson.D{{Key: "producer_id", Value: 1}}},
		},
		colPayouts: {
			{Keys: bson.D{{Key: "pool", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colParams: {},
	}
}
