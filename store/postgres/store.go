package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

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

// compile-time interface check
var _ veritystore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("verity/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("verity/postgres: migration failed: %w", err)
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

// querier is satisfied by both *pgdriver.PgDB and *pgdriver.PgTx.
type querier interface {
	NewSelect(model ...any) *pgdriver.SelectQuery
	NewInsert(model any) *pgdriver.InsertQuery
	NewUpdate(model any) *pgdriver.UpdateQuery
	NewDelete(model any) *pgdriver.DeleteQuery
}

// q returns the transaction carried by ctx, or the pool.
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*pgdriver.PgTx); ok {
		return tx
	}
	return s.pg
}

// RunInTx runs fn in a serializable transaction. Nested calls join the
// outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*pgdriver.PgTx); ok {
		return fn(ctx)
	}
	tx, err := s.pg.BeginTxQuery(ctx, &driver.TxOptions{IsolationLevel: driver.LevelSerializable})
	if err != nil {
		return fmt.Errorf("verity/postgres: begin: %w", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("verity/postgres: rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("verity/postgres: commit: %w", err)
	}
	return nil
}

// ==================== Producer Store ====================

func (s *Store) CreateProducer(ctx context.Context, p *producer.Producer) error {
	_, err := s.q(ctx).NewInsert(toProducerModel(p)).Exec(ctx)
	return err
}

func (s *Store) GetProducer(ctx context.Context, producerID id.ProducerID) (*producer.Producer, error) {
	m := new(producerModel)
	err := s.q(ctx).NewSelect(m).
		Where("id = $1", producerID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, verity.ErrProducerNotFound
		}
		return nil, err
	}
	return fromProducerModel(m)
}

func (s *Store) UpdateProducer(ctx context.Context, p *producer.Producer) error {
	res, err := s.q(ctx).NewUpdate(toProducerModel(p)).WherePK().Exec(ctx)
	return affected(res, err, verity.ErrProducerNotFound)
}

func (s *Store) ListProducers(ctx context.Context, opts producer.ListOpts) ([]*producer.Producer, error) {
	var models []producerModel
	q := s.q(ctx).NewSelect(&models)

	argIdx := 0
	if opts.Owner != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("owner = $%d", argIdx), string(opts.Owner))
	}
	if opts.ActiveOnly {
		q = q.Where("active = TRUE")
	}
	q = q.OrderExpr("id ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	_, err := s.q(ctx).NewInsert(toEventModel(e)).Exec(ctx)
	return err
}

func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*producer.Event, error) {
	m := new(eventModel)
	err := s.q(ctx).NewSelect(m).
		Where("id = $1", eventID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, verity.ErrEventNotFound
		}
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) UpdateEvent(ctx context.Context, e *producer.Event) error {
	res, err := s.q(ctx).NewUpdate(toEventModel(e)).WherePK().Exec(ctx)
	return affected(res, err, verity.ErrEventNotFound)
}

func (s *Store) ListEvents(ctx context.Context, producerID id.ProducerID, opts producer.ListOpts) ([]*producer.Event, error) {
	var models []eventModel
	q := s.q(ctx).NewSelect(&models).
		Where("producer_id = $1", producerID.String()).
		OrderExpr("scheduled_at ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
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

func (s *Store) CreateResult(ctx context.Context, r *result.Result) error {
	res, err := s.q(ctx).NewInsert(toResultModel(r)).
		OnConflict("(event_id) DO NOTHING").
		Exec(ctx)
	return affected(res, err, verity.ErrAlreadySubmitted)
}

func (s *Store) GetResult(ctx context.Context, eventID id.EventID) (*result.Result, error) {
	m := new(resultModel)
	err := s.q(ctx).NewSelect(m).
		Where("event_id = $1", eventID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, verity.ErrResultNotFound
		}
		return nil, err
	}
	return fromResultModel(m)
}

func (s *Store) UpdateResult(ctx context.Context, r *result.Result) error {
	res, err := s.q(ctx).NewUpdate(toResultModel(r)).WherePK().Exec(ctx)
	return affected(res, err, verity.ErrResultNotFound)
}

func (s *Store) ListResults(ctx context.Context, opts result.ListOpts) ([]*result.Result, error) {
	var models []resultModel
	q := s.q(ctx).NewSelect(&models)

	argIdx := 0
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if !opts.ProducerID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("producer_id = $%d", argIdx), opts.ProducerID.String())
	}
	if !opts.DeadlineBefore.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("finalize_deadline <= $%d", argIdx), opts.DeadlineBefore)
	}
	q = q.OrderExpr("finalize_deadline ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
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

// CreateDispute relies on the unique event_id index: an event is challenged
// at most once.
func (s *Store) CreateDispute(ctx context.Context, d *dispute.Dispute) error {
	res, err := s.q(ctx).NewInsert(toDisputeModel(d)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	return affected(res, err, verity.ErrAlreadyDisputed)
}

func (s *Store) GetDispute(ctx context.Context, disputeID id.DisputeID) (*dispute.Dispute, error) {
	m := new(disputeModel)
	err := s.q(ctx).NewSelect(m).
		Where("id = $1", disputeID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, verity.ErrDisputeNotFound
		}
		return nil, err
	}
	return fromDisputeModel(m)
}

func (s *Store) UpdateDispute(ctx context.Context, d *dispute.Dispute) error {
	res, err := s.q(ctx).NewUpdate(toDisputeModel(d)).WherePK().Exec(ctx)
	return affected(res, err, verity.ErrDisputeNotFound)
}

func (s *Store) ListDisputes(ctx context.Context, opts dispute.ListOpts) ([]*dispute.Dispute, error) {
	var models []disputeModel
	q := s.q(ctx).NewSelect(&models)

	argIdx := 0
	if !opts.EventID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("event_id = $%d", argIdx), opts.EventID.String())
	}
	if opts.Challenger != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("challenger = $%d", argIdx), string(opts.Challenger))
	}
	if opts.UnresolvedOnly {
		q = q.Where("resolved = FALSE")
	}
	q = q.OrderExpr("id ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	m := new(accountModel)
	err := s.q(ctx).NewSelect(m).
		Where("consumer = $1", string(consumer)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, verity.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m), nil
}

func (s *Store) PutAccount(ctx context.Context, a *billing.Account) error {
	_, err := s.q(ctx).NewInsert(toAccountModel(a)).
		OnConflict("(consumer) DO UPDATE").
		Set("cash = EXCLUDED.cash").
		Set("bonus = EXCLUDED.bonus").
		Set("quota_day = EXCLUDED.quota_day").
		Set("quota_used = EXCLUDED.quota_used").
		Set("lifetime_free_used = EXCLUDED.lifetime_free_used").
		Set("deposited = EXCLUDED.deposited").
		Set("referred_by = EXCLUDED.referred_by").
		Set("referral_claimed = EXCLUDED.referral_claimed").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetGrant(ctx context.Context, consumer types.Principal, eventID id.EventID) (*billing.Grant, error) {
	m := new(grantModel)
	err := s.q(ctx).NewSelect(m).
		Where("consumer = $1", string(consumer)).
		Where("event_id = $2", eventID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, verity.ErrNotFound
		}
		return nil, err
	}
	return fromGrantModel(m)
}

func (s *Store) CreateGrant(ctx context.Context, g *billing.Grant) error {
	res, err := s.q(ctx).NewInsert(toGrantModel(g)).
		OnConflict("(consumer, event_id) DO NOTHING").
		Exec(ctx)
	return affected(res, err, verity.ErrAlreadyExists)
}

func (s *Store) GetEarnings(ctx context.Context, producerID id.ProducerID) (*billing.Earnings, error) {
	m := new(earningsModel)
	err := s.q(ctx).NewSelect(m).
		Where("producer_id = $1", producerID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, verity.ErrNotFound
		}
		return nil, err
	}
	return fromEarningsModel(m)
}

func (s *Store) PutEarnings(ctx context.Context, e *billing.Earnings) error {
	_, err := s.q(ctx).NewInsert(toEarningsModel(e)).
		OnConflict("(producer_id) DO UPDATE").
		Set("total_earned = EXCLUDED.total_earned").
		Set("pending = EXCLUDED.pending").
		Set("withdrawn = EXCLUDED.withdrawn").
		Set("query_count = EXCLUDED.query_count").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetPools(ctx context.Context, currency string) (*billing.Pools, error) {
	m := new(poolsModel)
	err := s.q(ctx).NewSelect(m).
		Where("currency = $1", currency).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return &billing.Pools{Treasury: types.Zero(currency), ChallengerPool: types.Zero(currency)}, nil
		}
		return nil, err
	}
	return fromPoolsModel(m), nil
}

func (s *Store) PutPools(ctx context.Context, p *billing.Pools) error {
	_, err := s.q(ctx).NewInsert(toPoolsModel(p)).
		OnConflict("(currency) DO UPDATE").
		Set("treasury = EXCLUDED.treasury").
		Set("challenger_pool = EXCLUDED.challenger_pool").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) CreateCharge(ctx context.Context, c *billing.Charge) error {
	_, err := s.q(ctx).NewInsert(toChargeModel(c)).Exec(ctx)
	return err
}

func (s *Store) ListCharges(ctx context.Context, consumer types.Principal, opts billing.ListOpts) ([]*billing.Charge, error) {
	var models []chargeModel
	q := s.q(ctx).NewSelect(&models).
		Where("consumer = $1", string(consumer)).
		OrderExpr("charged_at ASC, id ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	_, err := s.q(ctx).NewInsert(toDepositModel(d)).Exec(ctx)
	return err
}

func (s *Store) CreateWithdrawal(ctx context.Context, w *billing.Withdrawal) error {
	_, err := s.q(ctx).NewInsert(toWithdrawalModel(w)).Exec(ctx)
	return err
}

func (s *Store) CreatePayout(ctx context.Context, p *billing.Payout) error {
	_, err := s.q(ctx).NewInsert(toPayoutModel(p)).Exec(ctx)
	return err
}

// ==================== Params Store ====================

func (s *Store) GetParams(ctx context.Context) (*params.Params, error) {
	m := new(paramsModel)
	err := s.q(ctx).NewSelect(m).
		OrderExpr("version DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, verity.ErrNotFound
		}
		return nil, err
	}
	return fromParamsModel(m)
}

func (s *Store) SaveParams(ctx context.Context, p *params.Params) error {
	m, err := toParamsModel(p)
	if err != nil {
		return fmt.Errorf("verity/postgres: encode params: %w", err)
	}
	res, err := s.q(ctx).NewInsert(m).
		OnConflict("(version) DO NOTHING").
		Exec(ctx)
	return affected(res, err, verity.ErrAlreadyExists)
}

func (s *Store) ListParamsVersions(ctx context.Context) ([]*params.Params, error) {
	var models []paramsModel
	if err := s.q(ctx).NewSelect(&models).OrderExpr("version ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*params.Params, 0, len(models))
	for i := range models {
		p, err := fromParamsModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ==================== Helpers ====================

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// affected maps a write that touched no row to sentinel.
func affected(res driver.Result, err error, sentinel error) error {
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sentinel
	}
	return nil
}
