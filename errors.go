package verity

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can react without string matching.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthorization
	KindState
	KindEconomic
	KindWindow
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindEconomic:
		return "economic"
	case KindWindow:
		return "window"
	default:
		return "internal"
	}
}

// Error is a typed engine failure. Retryable marks conditions that may clear
// on their own (a window not yet elapsed, a balance not yet topped up).
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	if e.Message == "" {
		return "verity: " + e.Kind.String() + " error"
	}
	return "verity: " + e.Message
}

// Is matches the category sentinels (ErrValidation, ErrState, ...) against
// any error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" {
		return t.Kind == e.Kind
	}
	return t == e
}

func newErr(k Kind, msg string) *Error { return &Error{Kind: k, Message: msg} }

func retryable(k Kind, msg string) *Error {
	return &Error{Kind: k, Message: msg, Retryable: true}
}

// Category sentinels.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrState         = &Error{Kind: KindState}
	ErrEconomic      = &Error{Kind: KindEconomic}
	ErrWindow        = &Error{Kind: KindWindow}
)

var (
	// Validation
	ErrNotFound             = newErr(KindValidation, "not found")
	ErrProducerNotFound     = newErr(KindValidation, "producer not found")
	ErrEventNotFound        = newErr(KindValidation, "event not found")
	ErrResultNotFound       = newErr(KindValidation, "result not found")
	ErrDisputeNotFound      = newErr(KindValidation, "dispute not found")
	ErrAccountNotFound      = newErr(KindValidation, "consumer account not found")
	ErrInvalidAmount        = newErr(KindValidation, "amount must be positive")
	ErrCurrencyMismatch     = newErr(KindValidation, "currency mismatch")
	ErrInvalidReputation    = newErr(KindValidation, "reputation out of range")
	ErrEventNotInFuture     = newErr(KindValidation, "event time must be in the future")
	ErrEmptyPayload         = newErr(KindValidation, "payload is empty")
	ErrPayloadRejected      = newErr(KindValidation, "payload does not match declared schema")
	ErrFieldNotFound        = newErr(KindValidation, "quick-access field not found")
	ErrInvalidRewardPercent = newErr(KindValidation, "reward percent must be within 0..100")
	ErrInvalidParams        = newErr(KindValidation, "invalid protocol parameters")
	ErrSelfReferral         = newErr(KindValidation, "consumer cannot refer itself")
	ErrMissingPrincipal     = newErr(KindValidation, "caller principal is required")
	ErrAmountTooLarge       = newErr(KindValidation, "amount exceeds the supported maximum")

	// Authorization
	ErrNotOwner      = newErr(KindAuthorization, "caller does not own the producer")
	ErrNotAdmin      = newErr(KindAuthorization, "caller is not an administrator")
	ErrNotResolver   = newErr(KindAuthorization, "caller is not an allow-listed resolver")
	ErrSelfChallenge = newErr(KindAuthorization, "producer owner cannot challenge its own result")

	// State
	ErrAlreadyExists      = newErr(KindState, "already exists")
	ErrProducerInactive   = newErr(KindState, "producer is not active")
	ErrProducerBanned     = newErr(KindState, "producer is banned")
	ErrAlreadySubmitted   = newErr(KindState, "result already submitted for event")
	ErrAlreadyFinalized   = newErr(KindState, "result already finalized")
	ErrAlreadyDisputed    = newErr(KindState, "result already disputed")
	ErrResultDisputed     = newErr(KindState, "result is under dispute")
	ErrResultInvalidated  = newErr(KindState, "result was invalidated")
	ErrResultNotFinalized = newErr(KindState, "result is not finalized")
	ErrDisputeResolved    = newErr(KindState, "dispute already resolved")
	ErrReferralIneligible = newErr(KindState, "referral only applies to a first deposit")
	ErrPendingResults     = newErr(KindState, "producer has results inside a challenge window")
	ErrLastAdmin          = newErr(KindState, "cannot remove the last administrator")
	ErrReentrantCall      = newErr(KindState, "re-entrant call rejected")

	// Economic
	ErrStakeBelowMinimum   = newErr(KindEconomic, "stake below minimum")
	ErrWrongStakeAmount    = newErr(KindEconomic, "challenge stake does not match required amount")
	ErrInsufficientBalance = retryable(KindEconomic, "insufficient balance")
	ErrInsufficientStake   = newErr(KindEconomic, "insufficient stake")
	ErrInsufficientPool    = newErr(KindEconomic, "insufficient pool balance")
	ErrNothingToWithdraw   = newErr(KindEconomic, "no pending earnings")
	ErrCollectionFailed    = newErr(KindEconomic, "value collection failed")

	// Window
	ErrEventNotStarted  = retryable(KindWindow, "event has not started")
	ErrWindowNotElapsed = retryable(KindWindow, "challenge window has not elapsed")
	ErrWindowClosed     = newErr(KindWindow, "challenge window has closed")

	// Internal
	ErrStoreClosed     = newErr(KindInternal, "store is closed")
	ErrStoreBusy       = retryable(KindInternal, "store busy")
	ErrTransferFailed  = newErr(KindInternal, "value transfer failed")
	ErrUnfundedPayouts = newErr(KindInternal, "an outbound transferer requires an inbound collector")
	ErrOracleFailed    = newErr(KindInternal, "format validation service failed")
)

// ValidationError is a field-level input failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("verity: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap makes errors.Is(err, ErrValidation) hold.
func (e ValidationError) Unwrap() error { return ErrValidation }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "verity: no errors"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("verity: %d errors occurred", len(e.Errors))
	}
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool { return len(e.Errors) > 0 }

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether the operation may succeed if retried later.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// IsNotFound reports whether err is a missing-record failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrProducerNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrResultNotFound) ||
		errors.Is(err, ErrDisputeNotFound) ||
		errors.Is(err, ErrAccountNotFound)
}
