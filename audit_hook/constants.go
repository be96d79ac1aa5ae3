package audithook

// Action constants for audit events.
const (
	// Registry actions
	ActionProducerRegistered = "producer.registered"
	ActionProducerStatus     = "producer.status_changed"
	ActionStakeSlashed       = "producer.stake_slashed"
	ActionReputationChanged  = "producer.reputation_changed"
	ActionEventScheduled     = "event.scheduled"

	// Submission actions
	ActionResultSubmitted   = "result.submitted"
	ActionResultFinalized   = "result.finalized"
	ActionResultInvalidated = "result.invalidated"

	// Dispute actions
	ActionDisputeCreated  = "dispute.created"
	ActionDisputeResolved = "dispute.resolved"

	// Billing actions
	ActionBalanceDeposited = "balance.deposited"
	ActionQueryCharged     = "query.charged"
	ActionWithdrawal       = "earnings.withdrawn"
	ActionPoolPayout       = "pool.payout"

	// Admin actions
	ActionParamsUpdated = "params.updated"
)

// Resource constants for audit events.
const (
	ResourceProducer = "producer"
	ResourceEvent    = "event"
	ResourceResult   = "result"
	ResourceDispute  = "dispute"
	ResourceAccount  = "account"
	ResourcePool     = "pool"
	ResourceParams   = "params"
)

// Category constants for audit events.
const (
	CategoryRegistry   = "registry"
	CategorySubmission = "submission"
	CategoryDispute    = "dispute"
	CategoryBilling    = "billing"
	CategoryAdmin      = "admin"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
