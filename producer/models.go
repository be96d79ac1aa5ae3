// Package producer defines the Registry ledger records: staked producers and
// the events they schedule.
package producer

import (
	"time"

	"github.com/xraph/verity/id"
	"github.com/xraph/verity/types"
)

// Reputation bounds.
const (
	MinReputation     = 0
	MaxReputation     = 1000
	InitialReputation = 500
)

type Producer struct {
	types.Entity
	ID         id.ProducerID   `json:"id"`
	Owner      types.Principal `json:"owner"`
	Stake      types.Money     `json:"stake"`
	Reputation int             `json:"reputation"`
	Active     bool            `json:"active"`
	Banned     bool            `json:"banned"`
	EventCount int64           `json:"event_count"`
}

// OwnedBy reports whether p is the producer's owning principal.
func (pr *Producer) OwnedBy(p types.Principal) bool {
	return !p.IsZero() && pr.Owner == p
}

// AdjustReputation moves reputation by delta, clamped to the valid range.
func (pr *Producer) AdjustReputation(delta int) {
	pr.Reputation = ClampReputation(pr.Reputation + delta)
}

// ClampReputation bounds v to [MinReputation, MaxReputation].
func ClampReputation(v int) int {
	if v < MinReputation {
		return MinReputation
	}
	if v > MaxReputation {
		return MaxReputation
	}
	return v
}

// Event is a scheduled occurrence; at most one result is ever published for it.
// Metadata is opaque to the engine.
type Event struct {
	types.Entity
	ID          id.EventID    `json:"id"`
	ProducerID  id.ProducerID `json:"producer_id"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	Metadata    []byte        `json:"metadata,omitempty"`
	HasResult   bool          `json:"has_result"`
}
