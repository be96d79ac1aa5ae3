// Package dispute defines the Dispute Engine record.
package dispute

import (
	"time"

	"github.com/xraph/verity/id"
	"github.com/xraph/verity/types"
)

type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
)

// Dispute is immutable once Resolved.
type Dispute struct {
	types.Entity
	ID               id.DisputeID    `json:"id"`
	EventID          id.EventID      `json:"event_id"`
	ProducerID       id.ProducerID   `json:"producer_id"`
	Challenger       types.Principal `json:"challenger"`
	Stake            types.Money     `json:"stake"`
	EvidenceRef      string          `json:"evidence_ref,omitempty"`
	Reason           string          `json:"reason"`
	Resolved         bool            `json:"resolved"`
	Outcome          Outcome         `json:"outcome"`
	Resolver         types.Principal `json:"resolver,omitempty"`
	RewardPercent    int             `json:"reward_percent"`
	Slashed          types.Money     `json:"slashed"`
	ChallengerReward types.Money     `json:"challenger_reward"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
}
