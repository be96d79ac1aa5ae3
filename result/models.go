// Package result defines the Submission Pipeline record: the single result
// published for an event and its finalization state machine.
package result

import (
	"time"

	"github.com/xraph/verity/id"
	"github.com/xraph/verity/types"
)

// Status is the lifecycle stage of a result.
//
//	submitted --window elapsed--> finalized
//	submitted --challenge--> disputed --accept--> invalidated
//	                                  --reject--> finalized
type Status string

const (
	StatusSubmitted   Status = "submitted"
	StatusDisputed    Status = "disputed"
	StatusFinalized   Status = "finalized"
	StatusInvalidated Status = "invalidated"
)

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusFinalized || s == StatusInvalidated
}

type Result struct {
	types.Entity
	EventID          id.EventID        `json:"event_id"`
	ProducerID       id.ProducerID     `json:"producer_id"`
	Submitter        types.Principal   `json:"submitter"`
	Payload          []byte            `json:"payload"`
	DecodeHint       string            `json:"decode_hint,omitempty"`
	Schema           string            `json:"schema,omitempty"`
	QuickFields      map[string]string `json:"quick_fields,omitempty"`
	Fingerprint      string            `json:"fingerprint"`
	Status           Status            `json:"status"`
	DisputeID        id.DisputeID      `json:"dispute_id"`
	SubmittedAt      time.Time         `json:"submitted_at"`
	FinalizeDeadline time.Time         `json:"finalize_deadline"`
	FinalizedAt      *time.Time        `json:"finalized_at,omitempty"`
}

// Finalized reports whether the result is authoritative and readable.
func (r *Result) Finalized() bool { return r.Status == StatusFinalized }

// Disputed reports whether a challenge was ever raised against the result.
func (r *Result) Disputed() bool { return !r.DisputeID.IsNil() }

// WindowElapsed reports whether now is at or past the finalize deadline.
func (r *Result) WindowElapsed(now time.Time) bool {
	return !now.Before(r.FinalizeDeadline)
}

// Field returns a quick-access field.
func (r *Result) Field(key string) (string, bool) {
	v, ok := r.QuickFields[key]
	return v, ok
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (r *Result) Clone() *Result {
	c := *r
	c.Payload = append([]byte(nil), r.Payload...)
	if r.QuickFields != nil {
		c.QuickFields = make(map[string]string, len(r.QuickFields))
		for k, v := range r.QuickFields {
			c.QuickFields[k] = v
		}
	}
	if r.FinalizedAt != nil {
		t := *r.FinalizedAt
		c.FinalizedAt = &t
	}
	return &c
}
