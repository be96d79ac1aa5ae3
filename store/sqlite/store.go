// Package sqlite is a single-file store on the pure-Go modernc.org/sqlite
// driver, suited to development and single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

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

// Store implements store.Store on database/sql.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New wraps an open database. The caller keeps ownership of db until Close.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Open opens dsn with the sqlite driver. In-memory databases are limited to
// one connection so every query sees the same database.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("verity/sqlite: open: %w", err)
	}
	if dsn == ":memory:" || dsn == "file::memory:" {
		db.SetMaxOpenConns(1)
	}
	return New(db), nil
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Transactions ====================

type txKey struct{}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) x(ctx context.Context) execer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// RunInTx runs fn in a transaction. Nested calls join the outer one.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("verity/sqlite: begin: %w", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("verity/sqlite: rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("verity/sqlite: commit: %w", err)
	}
	return nil
}

// ==================== Producer Store ====================

const producerCols = `id, owner, currency, stake, reputation, active, banned, event_count, created_at, updated_at`

func (s *Store) CreateProducer(ctx context.Context, p *producer.Producer) error {
	res, err := s.x(ctx).ExecContext(ctx,
		`INSERT INTO verity_producers (`+producerCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID.String(), string(p.Owner), p.Stake.Currency, p.Stake.Amount, p.Reputation,
		p.Active, p.Banned, p.EventCount, ts(p.CreatedAt), ts(p.UpdatedAt),
	)
	return affected(res, err, verity.ErrAlreadyExists)
}

func scanProducer(sc scanner) (*producer.Producer, error) {
	var (
		p                 producer.Producer
		rawID, owner, cur string
		created, updated  string
	)
	if err := sc.Scan(&rawID, &owner, &cur, &p.Stake.Amount, &p.Reputation,
		&p.Active, &p.Banned, &p.EventCount, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if p.ID, err = id.ParseProducerID(rawID); err != nil {
		return nil, err
	}
	p.Owner = types.Principal(owner)
	p.Stake.Currency = cur
	if p.Entity, err = entity(created, updated); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProducer(ctx context.Context, producerID id.ProducerID) (*producer.Producer, error) {
	row := s.x(ctx).QueryRowContext(ctx,
		`SELECT `+producerCols+` FROM verity_producers WHERE id = ?`, producerID.String())
	p, err := scanProducer(row)
	if err != nil {
		if isNoRows(err) {
			return nil, verity.ErrProducerNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) UpdateProducer(ctx context.Context, p *producer.Producer) error {
	res, err := s.x(ctx).ExecContext(ctx,
		`UPDATE verity_producers SET owner = ?, currency = ?, stake = ?, reputation = ?, active = ?,
		 banned = ?, event_count = ?, updated_at = ? WHERE id = ?`,
		string(p.Owner), p.Stake.Currency, p.Stake.Amount, p.Reputation, p.Active,
		p.Banned, p.EventCount, ts(p.UpdatedAt), p.ID.String(),
	)
	return affected(res, err, verity.ErrProducerNotFound)
}

func (s *Store) ListProducers(ctx context.Context, opts producer.ListOpts) ([]*producer.Producer, error) {
	query := `SELECT ` + producerCols + ` FROM verity_producers WHERE 1 = 1`
	var args []any
	if opts.Owner != "" {
		query += ` AND owner = ?`
		args = append(args, string(opts.Owner))
	}
	if opts.ActiveOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY id ASC`
	query, args = paged(query, args, opts.Limit, opts.Offset)

	return queryAll(ctx, s.x(ctx), query, args, scanProducer)
}

const eventCols = `id, producer_id, scheduled_at, metadata, has_result, created_at, updated_at`

func (s *Store) CreateEvent(ctx context.Context, e *producer.Event) error {
	res, err := s.x(ctx).ExecContext(ctx,
		`INSERT INTO verity_events (`+eventCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID.String(), e.ProducerID.String(), ts(e.ScheduledAt), e.Metadata, e.HasResult,
		ts(e.CreatedAt), ts(e.UpdatedAt),
	)
	return affected(res, err, verity.ErrAlreadyExists)
}

func scanEvent(sc scanner) (*producer.Event, error) {
	var (
		e                         producer.Event
		rawID, rawProducer, sched string
		created, updated          string
	)
	if err := sc.Scan(&rawID, &rawProducer, &sched, &e.Metadata, &e.HasResult, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if e.ID, err = id.ParseEventID(rawID); err != nil {
		return nil, err
	}
	if e.ProducerID, err = id.ParseProducerID(rawProducer); err != nil {
		return nil, err
	}
	if e.ScheduledAt, err = parseTS(sched); err != nil {
		return nil, err
	}
	if e.Entity, err = entity(created, updated); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*producer.Event, error) {
	row := s.x(ctx).QueryRowContext(ctx,
		`SELECT `+eventCols+` FROM verity_events WHERE id = ?`, eventID.String())
	e, err := scanEvent(row)
	if err != nil {
		if isNoRows(err) {
			return nil, verity.ErrEventNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *Store) UpdateEvent(ctx context.Context, e *producer.Event) error {
	res, err := s.x(ctx).ExecContext(ctx,
		`UPDATE verity_events SET scheduled_at = ?, metadata = ?, has_result = ?, updated_at = ? WHERE id = ?`,
		ts(e.ScheduledAt), e.Metadata, e.HasResult, ts(e.UpdatedAt), e.ID.String(),
	)
	return affected(res, err, verity.ErrEventNotFound)
}

func (s *Store) ListEvents(ctx context.Context, producerID id.ProducerID, opts producer.ListOpts) ([]*producer.Event, error) {
	query, args := paged(
		`SELECT `+eventCols+` FROM verity_events WHERE producer_id = ? ORDER BY scheduled_at ASC`,
		[]any{producerID.String()}, opts.Limit, opts.Offset)
	return queryAll(ctx, s.x(ctx), query, args, scanEvent)
}

// ==================== Result Store ====================

const resultCols = `event_id, producer_id, submitter, payload, decode_hint, schema, quick_fields, fingerprint,
	status, dispute_id, submitted_at, finalize_deadline, finalized_at, created_at, updated_at`

func (s *Store) CreateResult(ctx context.Context, r *result.Result) error {
	fields, err := json.Marshal(r.QuickFields)
	if err != nil {
		return fmt.Errorf("verity/sqlite: encode quick fields: %w", err)
	}
	res, err := s.x(ctx).ExecContext(ctx,
		`INSERT INTO verity_results (`+resultCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (event_id) DO NOTHING`,
		r.EventID.String(), r.ProducerID.String(), string(r.Submitter), r.Payload, r.DecodeHint, r.Schema,
		string(fields), r.Fingerprint, string(r.Status), r.DisputeID.String(),
		ts(r.SubmittedAt), ts(r.FinalizeDeadline), nullTS(r.FinalizedAt), ts(r.CreatedAt), ts(r.UpdatedAt),
	)
	return affected(res, err, verity.ErrAlreadySubmitted)
}

func scanResult(sc scanner) (*result.Result, error) {
	var (
		r                                        result.Result
		rawEvent, rawProducer, submitter, fields string
		status, rawDispute, submitted, deadline  string
		finalized                                sql.NullString
		created, updated                         string
	)
	if err := sc.Scan(&rawEvent, &rawProducer, &submitter, &r.Payload, &r.DecodeHint, &r.Schema,
		&fields, &r.Fingerprint, &status, &rawDispute, &submitted, &deadline, &finalized,
		&created, &updated); err != nil {
		return nil, err
	}
	var err error
	if r.EventID, err = id.ParseEventID(rawEvent); err != nil {
		return nil, err
	}
	if r.ProducerID, err = id.ParseProducerID(rawProducer); err != nil {
		return nil, err
	}
	if err = r.DisputeID.UnmarshalText([]byte(rawDispute)); err != nil {
		return nil, err
	}
	if fields != "" && fields != "null" {
		if err = json.Unmarshal([]byte(fields), &r.QuickFields); err != nil {
			return nil, fmt.Errorf("verity/sqlite: decode quick fields: %w", err)
		}
	}
	r.Submitter = types.Principal(submitter)
	r.Status = result.Status(status)
	if r.SubmittedAt, err = parseTS(submitted); err != nil {
		return nil, err
	}
	if r.FinalizeDeadline, err = parseTS(deadline); err != nil {
		return nil, err
	}
	if r.FinalizedAt, err = parseNullTS(finalized); err != nil {
		return nil, err
	}
	if r.Entity, err = entity(created, updated); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetResult(ctx context.Context, eventID id.EventID) (*result.Result, error) {
	row := s.x(ctx).QueryRowContext(ctx,
		`SELECT `+resultCols+` FROM verity_results WHERE event_id = ?`, eventID.String())
	r, err := scanResult(row)
	if err != nil {
		if isNoRows(err) {
			return nil, verity.ErrResultNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *Store) UpdateResult(ctx context.Context, r *result.Result) error {
	fields, err := json.Marshal(r.QuickFields)
	if err != nil {
		return fmt.Errorf("verity/sqlite: encode quick fields: %w", err)
	}
	res, err := s.x(ctx).ExecContext(ctx,
		`UPDATE verity_results SET payload = ?, decode_hint = ?, schema = ?, quick_fields = ?, fingerprint = ?,
		 status = ?, dispute_id = ?, finalize_deadline = ?, finalized_at = ?, updated_at = ? WHERE event_id = ?`,
		r.Payload, r.DecodeHint, r.Schema, string(fields), r.Fingerprint,
		string(r.Status), r.DisputeID.String(), ts(r.FinalizeDeadline), nullTS(r.FinalizedAt), ts(r.UpdatedAt),
		r.EventID.String(),
	)
	return affected(res, err, verity.ErrResultNotFound)
}

// ListResults compares deadlines as text; ts writes fixed-width UTC so
// lexical order matches time order.
func (s *Store) ListResults(ctx context.Context, opts result.ListOpts) ([]*result.Result, error) {
	query := `SELECT ` + resultCols + ` FROM verity_results WHERE 1 = 1`
	var args []any
	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}
	if !opts.ProducerID.IsNil() {
		query += ` AND producer_id = ?`
		args = append(args, opts.ProducerID.String())
	}
	if !opts.DeadlineBefore.IsZero() {
		query += ` AND finalize_deadline <= ?`
		args = append(args, ts(opts.DeadlineBefore))
	}
	query += ` ORDER BY finalize_deadline ASC`
	query, args = paged(query, args, opts.Limit, opts.Offset)

	return queryAll(ctx, s.x(ctx), query, args, scanResult)
}

// ==================== Dispute Store ====================

const disputeCols = `id, event_id, producer_id, challenger, currency, stake, evidence_ref, reason, resolved,
	outcome, resolver, reward_percent, slashed, challenger_reward, resolved_at, created_at, updated_at`

func (s *Store) CreateDispute(ctx context.Context, d *dispute.Dispute) error {
	res, err := s.x(ctx).ExecContext(ctx,
		`INSERT INTO verity_disputes (`+disputeCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		d.ID.String(), d.EventID.String(), d.ProducerID.String(), string(d.Challenger), d.Stake.Currency,
		d.Stake.Amount, d.EvidenceRef, d.Reason, d.Resolved, string(d.Outcome), string(d.Resolver),
		d.RewardPercent, d.Slashed.Amount, d.ChallengerReward.Amount, nullTS(d.ResolvedAt),
		ts(d.CreatedAt), ts(d.UpdatedAt),
	)
	return affected(res, err, verity.ErrAlreadyDisputed)
}

func scanDispute(sc scanner) (*dispute.Dispute, error) {
	var (
		d                                        dispute.Dispute
		rawID, rawEvent, rawProducer, challenger string
		cur, outcome, resolver                   string
		resolvedAt                               sql.NullString
		created, updated                         string
	)
	if err := sc.Scan(&rawID, &rawEvent, &rawProducer, &challenger, &cur, &d.Stake.Amount,
		&d.EvidenceRef, &d.Reason, &d.Resolved, &outcome, &resolver, &d.RewardPercent,
		&d.Slashed.Amount, &d.ChallengerReward.Amount, &resolvedAt, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if d.ID, err = id.ParseDisputeID(rawID); err != nil {
		return nil, err
	}
	if d.EventID, err = id.ParseEventID(rawEvent); err != nil {
		return nil, err
	}
	if d.ProducerID, err = id.ParseProducerID(rawProducer); err != nil {
		return nil, err
	}
	d.Challenger = types.Principal(challenger)
	d.Outcome = dispute.Outcome(outcome)
	d.Resolver = types.Principal(resolver)
	d.Stake.Currency = cur
	d.Slashed.Currency = cur
	d.ChallengerReward.Currency = cur
	if d.ResolvedAt, err = parseNullTS(resolvedAt); err != nil {
		return nil, err
	}
	if d.Entity, err = entity(created, updated); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) GetDispute(ctx context.Context, disputeID id.DisputeID) (*dispute.Dispute, error) {
	row := s.x(ctx).QueryRowContext(ctx,
		`SELECT `+disputeCols+` FROM verity_disputes WHERE id = ?`, disputeID.String())
	d, err := scanDispute(row)
	if err != nil {
		if isNoRows(err) {
			return nil, verity.ErrDisputeNotFound
		}
		return nil, err
	}
	return d, nil
}

func (s *Store) UpdateDispute(ctx context.Context, d *dispute.Dispute) error {
	res, err := s.x(ctx).ExecContext(ctx,
		`UPDATE verity_disputes SET resolved = ?, outcome = ?, resolver = ?, reward_percent = ?, slashed = ?,
		 challenger_reward = ?, resolved_at = ?, updated_at = ? WHERE id = ?`,
		d.Resolved, string(d.Outcome), string(d.Resolver), d.RewardPercent, d.Slashed.Amount,
		d.ChallengerReward.Amount, nullTS(d.ResolvedAt), ts(d.UpdatedAt), d.ID.String(),
	)
	return affected(res, err, verity.ErrDisputeNotFound)
}

func (s *Store) ListDisputes(ctx context.Context, opts dispute.ListOpts) ([]*dispute.Dispute, error) {
	query := `SELECT ` + disputeCols + ` FROM verity_disputes WHERE 1 = 1`
	var args []any
	if !opts.EventID.IsNil() {
		query += ` AND event_id = ?`
		args = append(args, opts.EventID.String())
	}
	if opts.Challenger != "" {
		query += ` AND challenger = ?`
		args = append(args, string(opts.Challenger))
	}
	if opts.UnresolvedOnly {
		query += ` AND resolved = 0`
	}
	query += ` ORDER BY id ASC`
	query, args = paged(query, args, opts.Limit, opts.Offset)

	return queryAll(ctx, s.x(ctx), query, args, scanDispute)
}

// ==================== Billing Store ====================

const accountCols = `consumer, currency, cash, bonus, quota_day, quota_used, lifetime_free_used, deposited,
	referred_by, referral_claimed, created_at, updated_at`

func (s *Store) GetAccount(ctx context.Context, consumer types.Principal) (*billing.Account, error) {
	var (
		a                          billing.Account
		rawConsumer, cur, referrer string
		created, updated           string
	)
	err := s.x(ctx).QueryRowContext(ctx,
		`SELECT `+accountCols+` FROM verity_accounts WHERE consumer = ?`, string(consumer),
	).Scan(&rawConsumer, &cur, &a.Cash.Amount, &a.Bonus.Amount, &a.QuotaDay, &a.QuotaUsed,
		&a.LifetimeFreeUsed, &a.Deposited.Amount, &referrer, &a.ReferralClaimed, &created, &updated)
	if err != nil {
		if isNoRows(err) {
			return nil, verity.ErrAccountNotFound
		}
		return nil, err
	}
	a.Consumer = types.Principal(rawConsumer)
	a.ReferredBy = types.Principal(referrer)
	a.Cash.Currency, a.Bonus.Currency, a.Deposited.Currency = cur, cur, cur
	if a.Entity, err = entity(created, updated); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) PutAccount(ctx context.Context, a *billing.Account) error {
	_, err := s.x(ctx).ExecContext(ctx,
		`INSERT INTO verity_accounts (`+accountCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (consumer) DO UPDATE SET
		   cash = excluded.cash,
		   bonus = excluded.bonus,
		   quota_day = excluded.quota_day,
		   quota_used = excluded.quota_used,
		   lifetime_free_used = excluded.lifetime_free_used,
		   deposited = excluded.deposited,
		   referred_by = excluded.referred_by,
		   referral_claimed = excluded.referral_claimed,
		   updated_at = excluded.updated_at`,
		string(a.Consumer), a.Cash.Currency, a.Cash.Amount, a.Bonus.Amount, a.QuotaDay, a.QuotaUsed,
		a.LifetimeFreeUsed, a.Deposited.Amount, string(a.ReferredBy), a.ReferralClaimed,
		ts(a.CreatedAt), ts(a.UpdatedAt),
	)
	return err
}

func (s *Store) GetGrant(ctx context.Context, consumer types.Principal, eventID id.EventID) (*billing.Grant, error) {
	var (
		g                  billing.Grant
		rawCharge, granted string
	)
	err := s.x(ctx).QueryRowContext(ctx,
		`SELECT charge_id, free, granted_at FROM verity_grants WHERE consumer = ? AND event_id = ?`,
		string(consumer), eventID.String(),
	).Scan(&rawCharge, &g.Free, &granted)
	if err != nil {
		if isNoRows(err) {
			return nil, verity.ErrNotFound
		}
		return nil, err
	}
	g.Consumer = consumer
	g.EventID = eventID
	if err = g.ChargeID.UnmarshalText([]byte(rawCharge)); err != nil {
		return nil, err
	}
	if g.GrantedAt, err = parseTS(granted); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) CreateGrant(ctx context.Context, g *billing.Grant) error {
	res, err := s.x(ctx).ExecContext(ctx,
		`INSERT INTO verity_grants (consumer, event_id, charge_id, free, granted_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (consumer, event_id) DO NOTHING`,
		string(g.Consumer), g.EventID.String(), g.ChargeID.String(), g.Free, ts(g.GrantedAt),
	)
	return affected(res, err, verity.ErrAlreadyExists)
}

func (s *Store) GetEarnings(ctx context.Context, producerID id.ProducerID) (*billing.Earnings, error) {
	var (
		e                     billing.Earnings
		cur, created, updated string
	)
	err := s.x(ctx).QueryRowContext(ctx,
		`SELECT currency, total_earned, pending, withdrawn, query_count, created_at, updated_at
		 FROM verity_earnings WHERE producer_id = ?`, producerID.String(),
	).Scan(&cur, &e.TotalEarned.Amount, &e.Pending.Amount, &e.Withdrawn.Amount, &e.QueryCount, &created, &updated)
	if err != nil {
		if isNoRows(err) {
			return nil, verity.ErrNotFound
		}
		return nil, err
	}
	e.ProducerID = producerID
	e.TotalEarned.Currency, e.Pending.Currency, e.Withdrawn.Currency = cur, cur, cur
	if e.Entity, err = entity(created, updated); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) PutEarnings(ctx context.Context, e *billing.Earnings) error {
	_, err := s.x(ctx).ExecContext(ctx,
		`INSERT INTO verity_earnings (producer_id, currency, total_earned, pending, withdrawn, query_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (producer_id) DO UPDATE SET
		   total_earned = excluded.total_earned,
		   pending = excluded.pending,
		   withdrawn = excluded.withdrawn,
		   query_count = excluded.query_count,
		   updated_at = excluded.updated_at`,
		e.ProducerID.String(), e.Pending.Currency, e.TotalEarned.Amount, e.Pending.Amount, e.Withdrawn.Amount,
		e.QueryCount, ts(e.CreatedAt), ts(e.UpdatedAt),
	)
	return err
}

func (s *Store) GetPools(ctx context.Context, currency string) (*billing.Pools, error) {
	p := &billing.Pools{Treasury: types.Zero(currency), ChallengerPool: types.Zero(currency)}
	var updated string
	err := s.x(ctx).QueryRowContext(ctx,
		`SELECT treasury, challenger_pool, updated_at FROM verity_pools WHERE currency = ?`, currency,
	).Scan(&p.Treasury.Amount, &p.ChallengerPool.Amount, &updated)
	if err != nil {
		if isNoRows(err) {
			return p, nil
		}
		return nil, err
	}
	if p.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) PutPools(ctx context.Context, p *billing.Pools) error {
	_, err := s.x(ctx).ExecContext(ctx,
		`INSERT INTO verity_pools (currency, treasury, challenger_pool, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (currency) DO UPDATE SET
		   treasury = excluded.treasury,
		   challenger_pool = excluded.challenger_pool,
		   updated_at = excluded.updated_at`,
		p.Treasury.Currency, p.Treasury.Amount, p.ChallengerPool.Amount, ts(p.UpdatedAt),
	)
	return err
}

const chargeCols = `id, consumer, event_id, producer_id, currency, fee, from_bonus, from_cash,
	producer_share, protocol_share, challenger_share, free, charged_at`

func (s *Store) CreateCharge(ctx context.Context, c *billing.Charge) error {
	_, err := s.x(ctx).ExecContext(ctx,
		`INSERT INTO verity_charges (`+chargeCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), string(c.Consumer), c.EventID.String(), c.ProducerID.String(), c.Fee.Currency,
		c.Fee.Amount, c.FromBonus.Amount, c.FromCash.Amount, c.ProducerShare.Amount, c.ProtocolShare.Amount,
		c.ChallengerShare.Amount, c.Free, ts(c.ChargedAt),
	)
	return err
}

func scanCharge(sc scanner) (*billing.Charge, error) {
	var (
		c                                      billing.Charge
		rawID, consumer, rawEvent, rawProducer string
		cur, charged                           string
	)
	if err := sc.Scan(&rawID, &consumer, &rawEvent, &rawProducer, &cur, &c.Fee.Amount,
		&c.FromBonus.Amount, &c.FromCash.Amount, &c.ProducerShare.Amount, &c.ProtocolShare.Amount,
		&c.ChallengerShare.Amount, &c.Free, &charged); err != nil {
		return nil, err
	}
	var err error
	if c.ID, err = id.ParseWithPrefix(rawID, id.PrefixCharge); err != nil {
		return nil, err
	}
	if c.EventID, err = id.ParseEventID(rawEvent); err != nil {
		return nil, err
	}
	if c.ProducerID, err = id.ParseProducerID(rawProducer); err != nil {
		return nil, err
	}
	c.Consumer = types.Principal(consumer)
	for _, m := range []*types.Money{&c.Fee, &c.FromBonus, &c.FromCash, &c.ProducerShare, &c.ProtocolShare, &c.ChallengerShare} {
		m.Currency = cur
	}
	if c.ChargedAt, err = parseTS(charged); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCharges(ctx context.Context, consumer types.Principal, opts billing.ListOpts) ([]*billing.Charge, error) {
	query, args := paged(
		`SELECT `+chargeCols+` FROM verity_charges WHERE consumer = ? ORDER BY charged_at ASC, id ASC`,
		[]any{string(consumer)}, opts.Limit, opts.Offset)
	return queryAll(ctx, s.x(ctx), query, args, scanCharge)
}

func (s *Store) CreateDeposit(ctx context.Context, d *billing.Deposit) error {
	_, err := s.x(ctx).ExecContext(ctx,
		`INSERT INTO verity_deposits (id, consumer, currency, amount, volume_bonus, referral_bonus, referrer, referrer_bonus, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID.String(), string(d.Consumer), d.Amount.Currency, d.Amount.Amount, d.VolumeBonus.Amount,
		d.ReferralBonus.Amount, string(d.Referrer), d.ReferrerBonus.Amount, ts(d.CreatedAt),
	)
	return err
}

func (s *Store) CreateWithdrawal(ctx context.Context, w *billing.Withdrawal) error {
	_, err := s.x(ctx).ExecContext(ctx,
		`INSERT INTO verity_withdrawals (id, kind, producer_id, recipient, currency, amount, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID.String(), string(w.Kind), w.ProducerID.String(), string(w.To), w.Amount.Currency,
		w.Amount.Amount, ts(w.CreatedAt),
	)
	return err
}

func (s *Store) CreatePayout(ctx context.Context, p *billing.Payout) error {
	_, err := s.x(ctx).ExecContext(ctx,
		`INSERT INTO verity_payouts (id, pool, recipient, currency, amount, memo, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), string(p.Pool), string(p.To), p.Amount.Currency, p.Amount.Amount, p.Memo, ts(p.CreatedAt),
	)
	return err
}

// ==================== Params Store ====================

func scanParams(sc scanner) (*params.Params, error) {
	var body string
	if err := sc.Scan(&body); err != nil {
		return nil, err
	}
	p := new(params.Params)
	if err := json.Unmarshal([]byte(body), p); err != nil {
		return nil, fmt.Errorf("verity/sqlite: decode params: %w", err)
	}
	return p, nil
}

func (s *Store) GetParams(ctx context.Context) (*params.Params, error) {
	row := s.x(ctx).QueryRowContext(ctx, `SELECT body FROM verity_params ORDER BY version DESC LIMIT 1`)
	p, err := scanParams(row)
	if err != nil {
		if isNoRows(err) {
			return nil, verity.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) SaveParams(ctx context.Context, p *params.Params) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("verity/sqlite: encode params: %w", err)
	}
	res, err := s.x(ctx).ExecContext(ctx,
		`INSERT INTO verity_params (version, currency, body, updated_by, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (version) DO NOTHING`,
		p.Version, p.Currency, string(body), string(p.UpdatedBy), ts(p.UpdatedAt),
	)
	return affected(res, err, verity.ErrAlreadyExists)
}

func (s *Store) ListParamsVersions(ctx context.Context) ([]*params.Params, error) {
	return queryAll(ctx, s.x(ctx), `SELECT body FROM verity_params ORDER BY version ASC`, nil, scanParams)
}

// ==================== Helpers ====================

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func queryAll[T any](ctx context.Context, x execer, query string, args []any, scan func(scanner) (T, error)) ([]T, error) {
	rows, err := x.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func paged(query string, args []any, limit, offset int) (string, []any) {
	if limit <= 0 && offset <= 0 {
		return query, args
	}
	if limit <= 0 {
		limit = -1
	}
	query += ` LIMIT ? OFFSET ?`
	return query, append(args, limit, offset)
}

const tsLayout = "2006-01-02T15:04:05.000000000Z"

// ts renders t as fixed-width UTC text.
func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("verity/sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}

func nullTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

func parseNullTS(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil //nolint:nilnil // NULL column
	}
	t, err := parseTS(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func entity(created, updated string) (types.Entity, error) {
	c, err := parseTS(created)
	if err != nil {
		return types.Entity{}, err
	}
	u, err := parseTS(updated)
	if err != nil {
		return types.Entity{}, err
	}
	return types.Entity{CreatedAt: c, UpdatedAt: u}, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// affected maps a write that touched no row to sentinel.
func affected(res sql.Result, err error, sentinel error) error {
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
