// Package verity is a verifiable data-publication engine with built-in
// economic security.
//
// Producers stake value to register and publish one result per scheduled
// event. Each result sits in a challenge window during which anyone may
// dispute it by posting a fixed counter-stake. An allow-listed resolver
// settles disputes: an accepted dispute slashes the producer and rewards the
// challenger, a rejected one forfeits the challenger's stake. Consumers pay
// to read finalized results, and every fee is split between the producer,
// a protocol treasury and a challenger-reward pool.
//
// Verity is a library. Embed it in a Go service, or run cmd/verityd for the
// bundled HTTP API.
//
// # Quick Start
//
//	s := memory.New()
//	eng := verity.New(s,
//	    verity.WithAdmins("ops"),
//	    verity.WithResolvers("arbiter"),
//	)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
//	pr, _ := eng.Register(ctx, "acme", verity.USD(100000))
//	ev, _ := eng.ScheduleEvent(ctx, "acme", pr.ID, kickoff, nil)
//
//	// after kickoff
//	eng.SubmitResult(ctx, "acme", ev.ID, verity.Submission{
//	    Payload:     []byte(`{"home":2,"away":1}`),
//	    QuickFields: map[string]string{"winner": "home"},
//	})
//
//	// after the challenge window
//	eng.FinalizeResult(ctx, ev.ID)
//	winner, err := eng.GetResultField(ctx, "reader", ev.ID, "winner")
//
// # Ledgers
//
// The engine coordinates four ledgers that share one transactional store:
//
//   - Registry: producers, stake, reputation, events
//   - Submission pipeline: one result per event and its finalization
//   - Dispute engine: challenges and resolver verdicts
//   - Billing engine: consumer balances, charge-once reads, earnings, pools
//
// Every public operation runs as a single transaction behind a
// non-reentrant guard. Outbound value transfers go through a Transferer
// and inbound stakes and deposits through a Collector, both inside that
// transaction; a failed transfer or collection rolls back the whole
// operation.
//
// # Errors
//
// Failures are *Error values classified by Kind (validation, authorization,
// state, economic, window). Use errors.Is with a specific sentinel such as
// ErrWindowNotElapsed, or with a category such as ErrWindow, and
// IsRetryable to tell transient conditions from terminal ones.
//
// # Storage
//
// Backends live under store/: memory, postgres (grove), mongo (grove) and
// sqlite.
//
// # Plugins
//
// Lifecycle hooks are delivered after commit to plugins registered with
// WithPlugin. See the plugin, audit_hook, observability, stream and archive
// packages.
package verity
