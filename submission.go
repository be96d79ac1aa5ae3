package verity

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/mr-tron/base58"

	"github.com/xraph/verity/id"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/result"
	"github.com/xraph/verity/schema"
	"github.com/xraph/verity/types"
)

// Submission is the content a producer publishes for an event.
type Submission struct {
	Payload     []byte
	DecodeHint  string
	QuickFields map[string]string
	// Schema, when set, is checked by the format-validation service before
	// the result is accepted.
	Schema string
}

// Fingerprint returns the content fingerprint of a payload.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base58.Encode(sum[:])
}

// ──────────────────────────────────────────────────
// Submission pipeline
// ──────────────────────────────────────────────────

// SubmitResult publishes the single result for an event. It opens the
// challenge window and never finalizes on its own.
func (e *Engine) SubmitResult(ctx context.Context, caller types.Principal, eventID id.EventID, sub Submission) (*result.Result, error) {
	if len(sub.Payload) == 0 {
		return nil, ErrEmptyPayload
	}

	var res *result.Result
	err := e.run(ctx, func(ctx context.Context, p *params.Params, out *outbox) error {
		ev, err := e.store.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		pr, err := e.store.GetProducer(ctx, ev.ProducerID)
		if err != nil {
			return err
		}
		if !pr.OwnedBy(caller) {
			return ErrNotOwner
		}
		now := e.now()
		if now.Before(ev.ScheduledAt) {
			return fmt.Errorf("%w: starts at %s", ErrEventNotStarted, ev.ScheduledAt.UTC().Format(time.RFC3339))
		}
		if ev.HasResult {
			return ErrAlreadySubmitted
		}
		if err := usable(p, pr); err != nil {
			return err
		}
		if sub.Schema != "" {
			if err := e.checkFormat(ctx, sub.Schema, sub.Payload); err != nil {
				return err
			}
		}

		res = &result.Result{
			Entity:           types.NewEntity(now),
			EventID:          ev.ID,
			ProducerID:       pr.ID,
			Submitter:        caller,
			Payload:          append([]byte(nil), sub.Payload...),
			DecodeHint:       sub.DecodeHint,
			Schema:           sub.Schema,
			QuickFields:      maps.Clone(sub.QuickFields),
			Fingerprint:      Fingerprint(sub.Payload),
			Status:           result.StatusSubmitted,
			SubmittedAt:      now,
			FinalizeDeadline: now.Add(p.ChallengeWindow),
		}
		if err := e.store.CreateResult(ctx, res); err != nil {
			return err
		}
		if err := e.markResultSubmitted(ctx, ev); err != nil {
			return err
		}
		submitted := res.Clone()
		out.add(func(ctx context.Context) { e.plugins.EmitResultSubmitted(ctx, submitted) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("result submitted",
		"event_id", eventID.String(),
		"fingerprint", res.Fingerprint,
		"deadline", res.FinalizeDeadline,
	)
	return res, nil
}

func (e *Engine) checkFormat(ctx context.Context, declared string, payload []byte) error {
	ok, err := e.validator.Validate(ctx, declared, payload)
	switch {
	case errors.Is(err, schema.ErrInvalidSchema):
		return ValidationError{Field: "schema", Message: err.Error()}
	case err != nil:
		return fmt.Errorf("%w: %v", ErrOracleFailed, err)
	case !ok:
		return ErrPayloadRejected
	}
	return nil
}

// FinalizeResult makes an undisputed result authoritative once its window
// has elapsed. Anyone may call it. It reports false, with no error, when the
// result was already finalized.
func (e *Engine) FinalizeResult(ctx context.Context, eventID id.EventID) (bool, error) {
	var finalized bool
	err := e.run(ctx, func(ctx context.Context, p *params.Params, out *outbox) error {
		var err error
		finalized, err = e.finalize(ctx, p, eventID, out)
		return err
	})
	return finalized, err
}

func (e *Engine) finalize(ctx context.Context, p *params.Params, eventID id.EventID, out *outbox) (bool, error) {
	res, err := e.store.GetResult(ctx, eventID)
	if err != nil {
		return false, err
	}
	now := e.now()
	switch {
	case res.Status == result.StatusFinalized:
		return false, nil
	case res.Status == result.StatusInvalidated:
		return false, ErrResultInvalidated
	case res.Disputed():
		return false, ErrResultDisputed
	case !res.WindowElapsed(now):
		return false, fmt.Errorf("%w: deadline %s", ErrWindowNotElapsed, res.FinalizeDeadline.UTC().Format(time.RFC3339))
	}

	if err := e.settleResult(ctx, res, result.StatusFinalized); err != nil {
		return false, err
	}
	pr, err := e.store.GetProducer(ctx, res.ProducerID)
	if err != nil {
		return false, err
	}
	if err := e.setReputation(ctx, pr, pr.Reputation+p.ReputationOnFinalize, out); err != nil {
		return false, err
	}
	finalized := res.Clone()
	out.add(func(ctx context.Context) { e.plugins.EmitResultFinalized(ctx, finalized) })
	return true, nil
}

// settleResult moves a result into a terminal status.
func (e *Engine) settleResult(ctx context.Context, res *result.Result, status result.Status) error {
	now := e.now()
	res.Status = status
	if status == result.StatusFinalized {
		res.FinalizedAt = &now
	}
	res.Touch(now)
	return e.store.UpdateResult(ctx, res)
}

// BatchFinalizeResults finalizes every eligible result in eventIDs and
// returns how many were newly finalized. Ineligible entries are skipped.
func (e *Engine) BatchFinalizeResults(ctx context.Context, eventIDs []id.EventID) (int, error) {
	gctx, release, err := e.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	count := 0
	for _, eventID := range eventIDs {
		var (
			out outbox
			ok  bool
		)
		err := e.store.RunInTx(gctx, func(tx context.Context) error {
			p, err := e.currentParams(tx)
			if err != nil {
				return err
			}
			ok, err = e.finalize(tx, p, eventID, &out)
			return err
		})
		if err != nil {
			e.logger.Warn("batch finalize: skipped", "event_id", eventID.String(), "error", err)
			continue
		}
		out.flush(ctx)
		if ok {
			count++
		}
	}
	e.logger.Info("batch finalize", "requested", len(eventIDs), "finalized", count)
	return count, nil
}

// ListPendingResults lists submitted results whose window elapses at or
// before the given time, for a sweeper to pass to BatchFinalizeResults.
func (e *Engine) ListPendingResults(ctx context.Context, before time.Time, limit int) ([]*result.Result, error) {
	results, err := e.store.ListResults(ctx, result.ListOpts{
		Status:         result.StatusSubmitted,
		DeadlineBefore: before,
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		redact(r)
	}
	return results, nil
}

// ResultStatus returns a result's lifecycle state without its content.
func (e *Engine) ResultStatus(ctx context.Context, eventID id.EventID) (*result.Result, error) {
	res, err := e.store.GetResult(ctx, eventID)
	if err != nil {
		return nil, err
	}
	redact(res)
	return res, nil
}

func redact(r *result.Result) {
	r.Payload = nil
	r.QuickFields = nil
}

// ──────────────────────────────────────────────────
// Metered reads
// ──────────────────────────────────────────────────

// GetResultField returns one quick-access field of a finalized result. The
// consumer is charged, or consumes free quota, before the value is returned.
func (e *Engine) GetResultField(ctx context.Context, consumer types.Principal, eventID id.EventID, key string) (string, error) {
	var value string
	err := e.run(ctx, func(ctx context.Context, p *params.Params, out *outbox) error {
		res, err := e.readable(ctx, consumer, eventID)
		if err != nil {
			return err
		}
		v, ok := res.Field(key)
		if !ok {
			return fmt.Errorf("%w: %q", ErrFieldNotFound, key)
		}
		if _, err := e.chargeQuery(ctx, p, consumer, res, out); err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// GetFullResult returns a finalized result including its payload, charging
// the consumer first.
func (e *Engine) GetFullResult(ctx context.Context, consumer types.Principal, eventID id.EventID) (*result.Result, error) {
	var res *result.Result
	err := e.run(ctx, func(ctx context.Context, p *params.Params, out *outbox) error {
		r, err := e.readable(ctx, consumer, eventID)
		if err != nil {
			return err
		}
		if _, err := e.chargeQuery(ctx, p, consumer, r, out); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) readable(ctx context.Context, consumer types.Principal, eventID id.EventID) (*result.Result, error) {
	if err := requirePrincipal(consumer); err != nil {
		return nil, err
	}
	res, err := e.store.GetResult(ctx, eventID)
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case result.StatusFinalized:
		return res, nil
	case result.StatusInvalidated:
		return nil, ErrResultInvalidated
	default:
		return nil, ErrResultNotFinalized
	}
}
