package verity_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/verity"
	"github.com/xraph/verity/result"
	"github.com/xraph/verity/store/memory"
	"github.com/xraph/verity/types"
)

// finalizedLogger counts finalized results.
type finalizedLogger struct{ n int }

func (*finalizedLogger) Name() string { return "finalized-logger" }

func (f *finalizedLogger) OnResultFinalized(_ context.Context, r *result.Result) error {
	f.n++
	log.Printf("finalized %s (%s)", r.EventID, r.Fingerprint)
	return nil
}

// TestDocumentationExamples verifies that the README examples compile and run.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
		hook := &finalizedLogger{}

		// Memory store for demo; use postgres, mongo or sqlite in production.
		eng := verity.New(memory.New(),
			verity.WithLogger(slog.Default()),
			verity.WithAdmins("ops"),
			verity.WithResolvers("arbiter"),
			verity.WithPlugin(hook),
			verity.WithClock(func() time.Time { return now }),
		)

		ctx := context.Background()
		if err := eng.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer eng.Stop()

		// A producer stakes to publish.
		pr, err := eng.Register(ctx, "acme", types.USD(100000)) // $1,000.00
		if err != nil {
			t.Fatal(err)
		}

		ev, err := eng.ScheduleEvent(ctx, "acme", pr.ID, now.Add(time.Hour), []byte(`{"match":"A vs B"}`))
		if err != nil {
			t.Fatal(err)
		}

		// Results are accepted once the event has started.
		now = now.Add(time.Hour)
		res, err := eng.SubmitResult(ctx, "acme", ev.ID, verity.Submission{
			Payload:     []byte(`{"home":2,"away":1}`),
			DecodeHint:  "json",
			QuickFields: map[string]string{"winner": "home"},
		})
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("open to disputes until %s", res.FinalizeDeadline)

		// After the challenge window anyone may finalize.
		now = now.Add(15 * time.Minute)
		if _, err := eng.FinalizeResult(ctx, ev.ID); err != nil {
			t.Fatal(err)
		}

		// Consumers prepay and read; the first reads of the day are free.
		if _, err := eng.DepositBalance(ctx, "reader", types.USD(500), ""); err != nil {
			t.Fatal(err)
		}
		winner, err := eng.GetResultField(ctx, "reader", ev.ID, "winner")
		if err != nil {
			t.Fatal(err)
		}
		if winner != "home" {
			t.Fatalf("winner = %q", winner)
		}

		earnings, err := eng.GetEarnings(ctx, pr.ID)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("producer pending earnings: %s", earnings.Pending)

		if hook.n != 1 {
			t.Fatalf("finalized hook fired %d times", hook.n)
		}
	})

	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = types.USD(4900)       // $49.00
		_ = types.New(100, "eur") // €1.00
		_ = types.Zero("usd")     // $0.00

		// Arithmetic
		m1 := types.USD(100)
		m2 := types.USD(200)
		_ = m1.Add(m2)     // $3.00
		_ = m1.Multiply(3) // $3.00
		_ = m1.Bps(8000)   // $0.80
		_ = m1.Percent(50) // $0.50

		// Splits always sum to the original amount.
		parts := types.USD(101).SplitBps(8000, 1500, 500)
		if !types.Sum("usd", parts...).Equal(types.USD(101)) {
			t.Fatal("split lost value")
		}

		// Comparison
		if !m1.LessThan(m2) {
			t.Fatal("expected m1 < m2")
		}

		// Formatting
		_ = m1.String()      // "$1.00"
		_ = m1.FormatMajor() // "1.00"
	})
}
