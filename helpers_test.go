package verity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/verity"
	"github.com/xraph/verity/id"
	"github.com/xraph/verity/producer"
	"github.com/xraph/verity/store/memory"
	"github.com/xraph/verity/types"
)

const (
	owner    types.Principal = "acme"
	admin    types.Principal = "ops"
	resolver types.Principal = "arbiter"
	reader   types.Principal = "reader"
	watchdog types.Principal = "watchdog"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type transfer struct {
	To     types.Principal
	Amount types.Money
	Memo   string
}

// bank records transfers in both directions and fails them on demand.
type bank struct {
	mu          sync.Mutex
	transfers   []transfer
	collections []transfer
	fail        error
	refuse      error
}

func (b *bank) Collect(_ context.Context, from types.Principal, amount types.Money, memo string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refuse != nil {
		return b.refuse
	}
	b.collections = append(b.collections, transfer{To: from, Amount: amount, Memo: memo})
	return nil
}

func (b *bank) collected(p types.Principal) types.Money {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := types.Zero("usd")
	for _, c := range b.collections {
		if c.To == p {
			total = total.Add(c.Amount)
		}
	}
	return total
}

func (b *bank) Transfer(_ context.Context, to types.Principal, amount types.Money, memo string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.transfers = append(b.transfers, transfer{To: to, Amount: amount, Memo: memo})
	return nil
}

func (b *bank) received(p types.Principal) types.Money {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := types.Zero("usd")
	for _, tr := range b.transfers {
		if tr.To == p {
			total = total.Add(tr.Amount)
		}
	}
	return total
}

var errBankDown = errors.New("bank unavailable")

type harness struct {
	eng   *verity.Engine
	store *memory.Store
	clock *clock
	bank  *bank
}

func newHarness(t *testing.T, opts ...verity.Option) *harness {
	t.Helper()
	h := &harness{
		store: memory.New(),
		clock: &clock{now: t0},
		bank:  &bank{},
	}
	opts = append(opts,
		verity.WithAdmins(admin),
		verity.WithResolvers(resolver),
		verity.WithClock(h.clock.Now),
		verity.WithTransferer(h.bank),
		verity.WithCollector(h.bank),
	)
	h.eng = verity.New(h.store, opts...)
	require.NoError(t, h.eng.Start(context.Background()))
	t.Cleanup(func() { _ = h.eng.Stop() })
	return h
}

// producer registers owner with the minimum stake.
func (h *harness) producer(t *testing.T) *producer.Producer {
	t.Helper()
	pr, err := h.eng.Register(context.Background(), owner, types.USD(100000))
	require.NoError(t, err)
	return pr
}

// events schedules n events an hour ahead.
func (h *harness) events(t *testing.T, pr *producer.Producer, n int) []id.EventID {
	t.Helper()
	ids := make([]id.EventID, 0, n)
	for range n {
		ev, err := h.eng.ScheduleEvent(context.Background(), owner, pr.ID, h.clock.Now().Add(time.Hour), nil)
		require.NoError(t, err)
		ids = append(ids, ev.ID)
	}
	return ids
}

func (h *harness) submit(t *testing.T, eventID id.EventID) {
	t.Helper()
	_, err := h.eng.SubmitResult(context.Background(), owner, eventID, verity.Submission{
		Payload:     []byte(`{"home":2,"away":1}`),
		DecodeHint:  "json",
		QuickFields: map[string]string{"winner": "home"},
	})
	require.NoError(t, err)
}

// published schedules, submits and finalizes n results.
func (h *harness) published(t *testing.T, n int) (*producer.Producer, []id.EventID) {
	t.Helper()
	pr := h.producer(t)
	ids := h.events(t, pr, n)
	h.clock.Advance(time.Hour)
	for _, eventID := range ids {
		h.submit(t, eventID)
	}
	h.clock.Advance(15 * time.Minute)
	for _, eventID := range ids {
		ok, err := h.eng.FinalizeResult(context.Background(), eventID)
		require.NoError(t, err)
		require.True(t, ok)
	}
	return pr, ids
}
