package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/verity"
	"github.com/xraph/verity/billing"
	"github.com/xraph/verity/dispute"
	"github.com/xraph/verity/id"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/producer"
	"github.com/xraph/verity/result"
	"github.com/xraph/verity/store/sqlite"
	"github.com/xraph/verity/types"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seed(t *testing.T, s *sqlite.Store) (*producer.Producer, *producer.Event) {
	t.Helper()
	ctx := context.Background()
	pr := &producer.Producer{
		Entity:     types.NewEntity(t0),
		ID:         id.NewProducerID(),
		Owner:      "acme",
		Stake:      types.USD(100000),
		Reputation: producer.InitialReputation,
		Active:     true,
	}
	require.NoError(t, s.CreateProducer(ctx, pr))
	ev := &producer.Event{
		Entity:      types.NewEntity(t0),
		ID:          id.NewEventID(),
		ProducerID:  pr.ID,
		ScheduledAt: t0.Add(time.Hour),
		Metadata:    []byte(`{"league":"premier"}`),
	}
	require.NoError(t, s.CreateEvent(ctx, ev))
	return pr, ev
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestProducerAndEvent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	pr, ev := seed(t, s)

	got, err := s.GetProducer(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, pr.Owner, got.Owner)
	assert.True(t, got.Stake.Equal(types.USD(100000)))
	assert.True(t, got.Active)
	assert.True(t, got.CreatedAt.Equal(t0))

	got.Banned = true
	got.EventCount = 1
	require.NoError(t, s.UpdateProducer(ctx, got))
	again, err := s.GetProducer(ctx, pr.ID)
	require.NoError(t, err)
	assert.True(t, again.Banned)
	assert.Equal(t, int64(1), again.EventCount)

	gotEv, err := s.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.Metadata, gotEv.Metadata)
	assert.True(t, gotEv.ScheduledAt.Equal(ev.ScheduledAt))

	list, err := s.ListEvents(ctx, pr.ID, producer.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.GetProducer(ctx, id.NewProducerID())
	assert.ErrorIs(t, err, verity.ErrProducerNotFound)
	assert.ErrorIs(t, s.UpdateEvent(ctx, &producer.Event{ID: id.NewEventID()}), verity.ErrEventNotFound)
}

func TestResultUniquePerEvent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	pr, ev := seed(t, s)

	r := &result.Result{
		Entity:           types.NewEntity(t0),
		EventID:          ev.ID,
		ProducerID:       pr.ID,
		Submitter:        pr.Owner,
		Payload:          []byte(`{"home":2,"away":1}`),
		QuickFields:      map[string]string{"winner": "home"},
		Fingerprint:      "fp",
		Status:           result.StatusSubmitted,
		SubmittedAt:      t0,
		FinalizeDeadline: t0.Add(15 * time.Minute),
	}
	require.NoError(t, s.CreateResult(ctx, r))
	assert.ErrorIs(t, s.CreateResult(ctx, r), verity.ErrAlreadySubmitted)

	got, err := s.GetResult(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, got.DisputeID.IsNil())
	assert.Nil(t, got.FinalizedAt)
	assert.Equal(t, "home", got.QuickFields["winner"])

	pending, err := s.ListResults(ctx, result.ListOpts{Status: result.StatusSubmitted, DeadlineBefore: t0})
	require.NoError(t, err)
	assert.Empty(t, pending)
	pending, err = s.ListResults(ctx, result.ListOpts{Status: result.StatusSubmitted, DeadlineBefore: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	done := t0.Add(20 * time.Minute)
	got.Status = result.StatusFinalized
	got.FinalizedAt = &done
	require.NoError(t, s.UpdateResult(ctx, got))
	got, err = s.GetResult(ctx, ev.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FinalizedAt)
	assert.True(t, got.FinalizedAt.Equal(done))
}

func TestOneDisputePerEvent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	pr, ev := seed(t, s)

	d := &dispute.Dispute{
		Entity:     types.NewEntity(t0),
		ID:         id.NewDisputeID(),
		EventID:    ev.ID,
		ProducerID: pr.ID,
		Challenger: "watchdog",
		Stake:      types.USD(10000),
		Reason:     "wrong score",
		Outcome:    dispute.OutcomePending,
	}
	require.NoError(t, s.CreateDispute(ctx, d))

	second := *d
	second.ID = id.NewDisputeID()
	assert.ErrorIs(t, s.CreateDispute(ctx, &second), verity.ErrAlreadyDisputed)

	open, err := s.ListDisputes(ctx, dispute.ListOpts{UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestBillingUpserts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	pr, ev := seed(t, s)

	_, err := s.GetAccount(ctx, "reader")
	assert.ErrorIs(t, err, verity.ErrAccountNotFound)

	a := billing.NewAccount("reader", "usd", t0)
	a.Cash = types.USD(500)
	require.NoError(t, s.PutAccount(ctx, a))
	a.Cash = types.USD(400)
	a.QuotaDay, a.QuotaUsed = "2026-03-01", 2
	require.NoError(t, s.PutAccount(ctx, a))
	got, err := s.GetAccount(ctx, "reader")
	require.NoError(t, err)
	assert.True(t, got.Cash.Equal(types.USD(400)))
	assert.Equal(t, 2, got.QuotaUsed)

	pools, err := s.GetPools(ctx, "usd")
	require.NoError(t, err)
	assert.True(t, pools.Treasury.IsZero())
	pools.Treasury = types.USD(15)
	require.NoError(t, s.PutPools(ctx, pools))
	pools, err = s.GetPools(ctx, "usd")
	require.NoError(t, err)
	assert.True(t, pools.Treasury.Equal(types.USD(15)))

	g := &billing.Grant{Consumer: "reader", EventID: ev.ID, ChargeID: id.NewChargeID(), GrantedAt: t0}
	require.NoError(t, s.CreateGrant(ctx, g))
	assert.ErrorIs(t, s.CreateGrant(ctx, g), verity.ErrAlreadyExists)

	c := &billing.Charge{
		ID: g.ChargeID, Consumer: "reader", EventID: ev.ID, ProducerID: pr.ID,
		Fee: types.USD(100), FromBonus: types.USD(0), FromCash: types.USD(100),
		ProducerShare: types.USD(80), ProtocolShare: types.USD(15), ChallengerShare: types.USD(5),
		ChargedAt: t0,
	}
	require.NoError(t, s.CreateCharge(ctx, c))
	charges, err := s.ListCharges(ctx, "reader", billing.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.True(t, charges[0].ProducerShare.Equal(types.USD(80)))
}

func TestParamsVersions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.GetParams(ctx)
	assert.ErrorIs(t, err, verity.ErrNotFound)

	p := params.Default()
	p.Admins = []types.Principal{"ops"}
	require.NoError(t, s.SaveParams(ctx, p))
	assert.ErrorIs(t, s.SaveParams(ctx, p), verity.ErrAlreadyExists)

	next := p.Clone()
	next.Version = 2
	next.ChallengeWindow = time.Hour
	require.NoError(t, s.SaveParams(ctx, next))

	cur, err := s.GetParams(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cur.Version)
	assert.Equal(t, time.Hour, cur.ChallengeWindow)
	assert.True(t, cur.QueryFee.Equal(types.USD(100)))

	all, err := s.ListParamsVersions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRunInTxRollsBack(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.PutAccount(ctx, billing.NewAccount("reader", "usd", t0)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetAccount(ctx, "reader")
	assert.ErrorIs(t, err, verity.ErrAccountNotFound)
}

func TestRunInTxRollbackOnDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO verity_pools").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	s := sqlite.New(db)
	err = s.RunInTx(context.Background(), func(ctx context.Context) error {
		return s.PutPools(ctx, &billing.Pools{Treasury: types.USD(1), ChallengerPool: types.USD(0), UpdatedAt: t0})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngineOverSQLite(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := t0
	eng := verity.New(s,
		verity.WithAdmins("ops"),
		verity.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, eng.Start(ctx))

	pr, err := eng.Register(ctx, "acme", types.USD(100000))
	require.NoError(t, err)
	ev, err := eng.ScheduleEvent(ctx, "acme", pr.ID, now.Add(time.Hour), nil)
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = eng.SubmitResult(ctx, "acme", ev.ID, verity.Submission{Payload: []byte(`{"home":2}`)})
	require.NoError(t, err)

	now = now.Add(16 * time.Minute)
	ok, err := eng.FinalizeResult(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = eng.DepositBalance(ctx, "reader", types.USD(1000), "")
	require.NoError(t, err)
	for range 4 {
		_, err = eng.GetFullResult(ctx, "reader", ev.ID)
		require.NoError(t, err)
	}
	charges, err := s.ListCharges(ctx, "reader", billing.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, charges, 1, "one grant per consumer and event")
}
