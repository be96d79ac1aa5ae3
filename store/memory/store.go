// Package memory is an in-process store for tests and single-node use.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/verity"
	"github.com/xraph/verity/billing"
	"github.com/xraph/verity/dispute"
	"github.com/xraph/verity/id"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/producer"
	"github.com/xraph/verity/result"
	"github.com/xraph/verity/store"
	"github.com/xraph/verity/types"
)

var _ store.Store = (*Store)(nil)

type txKey struct{}

// Store keeps every record by value; callers always receive copies.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data tables
}

type tables struct {
	producers   map[string]producer.Producer
	events      map[string]producer.Event
	results     map[string]*result.Result
	disputes    map[string]dispute.Dispute
	accounts    map[types.Principal]billing.Account
	grants      map[string]billing.Grant
	earnings    map[string]billing.Earnings
	pools       map[string]billing.Pools
	charges     []billing.Charge
	deposits    []billing.Deposit
	withdrawals []billing.Withdrawal
	payouts     []billing.Payout
	params      []*params.Params
}

func New() *Store {
	return &Store{data: tables{
		producers: make(map[string]producer.Producer),
		events:    make(map[string]producer.Event),
		results:   make(map[string]*result.Result),
		disputes:  make(map[string]dispute.Dispute),
		accounts:  make(map[types.Principal]billing.Account),
		grants:    make(map[string]billing.Grant),
		earnings:  make(map[string]billing.Earnings),
		pools:     make(map[string]billing.Pools),
	}}
}

// undoLog reverses the writes of one transaction.
type undoLog struct{ ops []func() }

func undoFrom(ctx context.Context) *undoLog {
	u, _ := ctx.Value(txKey{}).(*undoLog)
	return u
}

// put sets m[k], remembering the previous entry when u is non-nil.
func put[K comparable, V any](u *undoLog, m map[K]V, k K, v V) {
	if u != nil {
		prev, had := m[k]
		u.ops = append(u.ops, func() {
			if had {
				m[k] = prev
			} else {
				delete(m, k)
			}
		})
	}
	m[k] = v
}

func push[T any](u *undoLog, items *[]T, v T) {
	if u != nil {
		n := len(*items)
		u.ops = append(u.ops, func() { *items = (*items)[:n] })
	}
	*items = append(*items, v)
}

// RunInTx serializes transactions and replays the undo log of a failed fn in
// reverse.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	u := &undoLog{}
	if err := fn(context.WithValue(ctx, txKey{}, u)); err != nil {
		s.mu.Lock()
		for i := len(u.ops) - 1; i >= 0; i-- {
			u.ops[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Migrate(context.Context) error { return nil }
func (s *Store) Ping(context.Context) error    { return nil }
func (s *Store) Close() error                  { return nil }

func page[T any](items []T, limit, offset int) []T {
	if offset > len(items) {
		offset = len(items)
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// ──────────────────────────────────────────────────
// Producers and events
// ──────────────────────────────────────────────────

func (s *Store) CreateProducer(ctx context.Context, p *producer.Producer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.producers[p.ID.String()]; ok {
		return verity.ErrAlreadyExists
	}
	put(undoFrom(ctx), s.data.producers, p.ID.String(), *p)
	return nil
}

func (s *Store) GetProducer(_ context.Context, producerID id.ProducerID) (*producer.Producer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.producers[producerID.String()]
	if !ok {
		return nil, verity.ErrProducerNotFound
	}
	return &p, nil
}

func (s *Store) UpdateProducer(ctx context.Context, p *producer.Producer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.producers[p.ID.String()]; !ok {
		return verity.ErrProducerNotFound
	}
	put(undoFrom(ctx), s.data.producers, p.ID.String(), *p)
	return nil
}

func (s *Store) ListProducers(_ context.Context, opts producer.ListOpts) ([]*producer.Producer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*producer.Producer, 0)
	for _, p := range s.data.producers {
		if opts.Owner != "" && p.Owner != opts.Owner {
			continue
		}
		if opts.ActiveOnly && !p.Active {
			continue
		}
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return page(out, opts.Limit, opts.Offset), nil
}

func (s *Store) CreateEvent(ctx context.Context, e *producer.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.events[e.ID.String()]; ok {
		return verity.ErrAlreadyExists
	}
	put(undoFrom(ctx), s.data.events, e.ID.String(), copyEvent(e))
	return nil
}

func (s *Store) GetEvent(_ context.Context, eventID id.EventID) (*producer.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data.events[eventID.String()]
	if !ok {
		return nil, verity.ErrEventNotFound
	}
	c := copyEvent(&e)
	return &c, nil
}

func (s *Store) UpdateEvent(ctx context.Context, e *producer.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.events[e.ID.String()]; !ok {
		return verity.ErrEventNotFound
	}
	put(undoFrom(ctx), s.data.events, e.ID.String(), copyEvent(e))
	return nil
}

func (s *Store) ListEvents(_ context.Context, producerID id.ProducerID, opts producer.ListOpts) ([]*producer.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*producer.Event, 0)
	for _, e := range s.data.events {
		if e.ProducerID.String() != producerID.String() {
			continue
		}
		c := copyEvent(&e)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return page(out, opts.Limit, opts.Offset), nil
}

func copyEvent(e *producer.Event) producer.Event {
	c := *e
	c.Metadata = append([]byte(nil), e.Metadata...)
	return c
}

// ──────────────────────────────────────────────────
// Results
// ──────────────────────────────────────────────────

func (s *Store) CreateResult(ctx context.Context, r *result.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.results[r.EventID.String()]; ok {
		return verity.ErrAlreadySubmitted
	}
	put(undoFrom(ctx), s.data.results, r.EventID.String(), r.Clone())
	return nil
}

func (s *Store) GetResult(_ context.Context, eventID id.EventID) (*result.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data.results[eventID.String()]
	if !ok {
		return nil, verity.ErrResultNotFound
	}
	return r.Clone(), nil
}

func (s *Store) UpdateResult(ctx context.Context, r *result.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.results[r.EventID.String()]; !ok {
		return verity.ErrResultNotFound
	}
	put(undoFrom(ctx), s.data.results, r.EventID.String(), r.Clone())
	return nil
}

func (s *Store) ListResults(_ context.Context, opts result.ListOpts) ([]*result.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*result.Result, 0)
	for _, r := range s.data.results {
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		if !opts.ProducerID.IsNil() && r.ProducerID.String() != opts.ProducerID.String() {
			continue
		}
		if !opts.DeadlineBefore.IsZero() && r.FinalizeDeadline.After(opts.DeadlineBefore) {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinalizeDeadline.Before(out[j].FinalizeDeadline) })
	return page(out, opts.Limit, opts.Offset), nil
}

// ──────────────────────────────────────────────────
// Disputes
// ──────────────────────────────────────────────────

func (s *Store) CreateDispute(ctx context.Context, d *dispute.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.disputes[d.ID.String()]; ok {
		return verity.ErrAlreadyExists
	}
	for _, existing := range s.data.disputes {
		if existing.EventID.String() == d.EventID.String() {
			return verity.ErrAlreadyDisputed
		}
	}
	put(undoFrom(ctx), s.data.disputes, d.ID.String(), *d)
	return nil
}

func (s *Store) GetDispute(_ context.Context, disputeID id.DisputeID) (*dispute.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.data.disputes[disputeID.String()]
	if !ok {
		return nil, verity.ErrDisputeNotFound
	}
	return &d, nil
}

func (s *Store) UpdateDispute(ctx context.Context, d *dispute.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.disputes[d.ID.String()]; !ok {
		return verity.ErrDisputeNotFound
	}
	put(undoFrom(ctx), s.data.disputes, d.ID.String(), *d)
	return nil
}

func (s *Store) ListDisputes(_ context.Context, opts dispute.ListOpts) ([]*dispute.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*dispute.Dispute, 0)
	for _, d := range s.data.disputes {
		if !opts.EventID.IsNil() && d.EventID.String() != opts.EventID.String() {
			continue
		}
		if opts.Challenger != "" && d.Challenger != opts.Challenger {
			continue
		}
		if opts.UnresolvedOnly && d.Resolved {
			continue
		}
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return page(out, opts.Limit, opts.Offset), nil
}

// ──────────────────────────────────────────────────
// Billing
// ──────────────────────────────────────────────────

func (s *Store) GetAccount(_ context.Context, consumer types.Principal) (*billing.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.data.accounts[consumer]
	if !ok {
		return nil, verity.ErrAccountNotFound
	}
	return &a, nil
}

func (s *Store) PutAccount(ctx context.Context, a *billing.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(undoFrom(ctx), s.data.accounts, a.Consumer, *a)
	return nil
}

func grantKey(consumer types.Principal, eventID id.EventID) string {
	return string(consumer) + "|" + eventID.String()
}

func (s *Store) GetGrant(_ context.Context, consumer types.Principal, eventID id.EventID) (*billing.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.data.grants[grantKey(consumer, eventID)]
	if !ok {
		return nil, verity.ErrNotFound
	}
	return &g, nil
}

func (s *Store) CreateGrant(ctx context.Context, g *billing.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := grantKey(g.Consumer, g.EventID)
	if _, ok := s.data.grants[key]; ok {
		return verity.ErrAlreadyExists
	}
	put(undoFrom(ctx), s.data.grants, key, *g)
	return nil
}

func (s *Store) GetEarnings(_ context.Context, producerID id.ProducerID) (*billing.Earnings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data.earnings[producerID.String()]
	if !ok {
		return nil, verity.ErrNotFound
	}
	return &e, nil
}

func (s *Store) PutEarnings(ctx context.Context, e *billing.Earnings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(undoFrom(ctx), s.data.earnings, e.ProducerID.String(), *e)
	return nil
}

func (s *Store) GetPools(_ context.Context, currency string) (*billing.Pools, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.pools[currency]
	if !ok {
		return &billing.Pools{Treasury: types.Zero(currency), ChallengerPool: types.Zero(currency)}, nil
	}
	return &p, nil
}

func (s *Store) PutPools(ctx context.Context, p *billing.Pools) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(undoFrom(ctx), s.data.pools, p.Treasury.Currency, *p)
	return nil
}

func (s *Store) CreateCharge(ctx context.Context, c *billing.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	push(undoFrom(ctx), &s.data.charges, *c)
	return nil
}

func (s *Store) ListCharges(_ context.Context, consumer types.Principal, opts billing.ListOpts) ([]*billing.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*billing.Charge, 0)
	for _, c := range s.data.charges {
		if c.Consumer == consumer {
			out = append(out, &c)
		}
	}
	return page(out, opts.Limit, opts.Offset), nil
}

func (s *Store) CreateDeposit(ctx context.Context, d *billing.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	push(undoFrom(ctx), &s.data.deposits, *d)
	return nil
}

func (s *Store) CreateWithdrawal(ctx context.Context, w *billing.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	push(undoFrom(ctx), &s.data.withdrawals, *w)
	return nil
}

func (s *Store) CreatePayout(ctx context.Context, p *billing.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	push(undoFrom(ctx), &s.data.payouts, *p)
	return nil
}

// Withdrawals returns recorded withdrawals, oldest first.
func (s *Store) Withdrawals() []billing.Withdrawal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]billing.Withdrawal(nil), s.data.withdrawals...)
}

// ──────────────────────────────────────────────────
// Params
// ──────────────────────────────────────────────────

func (s *Store) GetParams(_ context.Context) (*params.Params, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.data.params) == 0 {
		return nil, verity.ErrNotFound
	}
	return s.data.params[len(s.data.params)-1].Clone(), nil
}

func (s *Store) SaveParams(ctx context.Context, p *params.Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.params {
		if existing.Version == p.Version {
			return verity.ErrAlreadyExists
		}
	}
	push(undoFrom(ctx), &s.data.params, p.Clone())
	return nil
}

func (s *Store) ListParamsVersions(_ context.Context) ([]*params.Params, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*params.Params, 0, len(s.data.params))
	for _, p := range s.data.params {
		out = append(out, p.Clone())
	}
	return out, nil
}
