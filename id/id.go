// Package id defines the identifiers of every verity record.
//
// Identifiers are TypeIDs: a short entity prefix plus a UUIDv7 suffix, e.g.
// "evt_01h2xcejqtf2nbrexx3vqjhp41". The engine treats them as opaque tokens
// and never relies on their internal structure.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the record kind encoded in an ID.
type Prefix string

// Record prefixes.
const (
	PrefixProducer   Prefix = "prod"
	PrefixEvent      Prefix = "evt"
	PrefixDispute    Prefix = "dsp"
	PrefixCharge     Prefix = "chg"
	PrefixDeposit    Prefix = "dep"
	PrefixWithdrawal Prefix = "wd"
	PrefixPayout     Prefix = "pay"
)

// ID is a prefix-qualified, sortable identifier.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates an ID with the given prefix. It panics on an invalid prefix.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses any TypeID string.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and checks its prefix.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// ──────────────────────────────────────────────────
// Per-record aliases
// ──────────────────────────────────────────────────

// ProducerID identifies a staked producer (prefix "prod").
type ProducerID = ID

// EventID identifies a scheduled event and its single result (prefix "evt").
type EventID = ID

// DisputeID identifies a challenge (prefix "dsp").
type DisputeID = ID

// ChargeID identifies a charge receipt (prefix "chg").
type ChargeID = ID

// DepositID identifies a deposit receipt (prefix "dep").
type DepositID = ID

// WithdrawalID identifies an earnings or stake withdrawal (prefix "wd").
type WithdrawalID = ID

// PayoutID identifies an administrative pool payout (prefix "pay").
type PayoutID = ID

func NewProducerID() ID   { return New(PrefixProducer) }
func NewEventID() ID      { return New(PrefixEvent) }
func NewDisputeID() ID    { return New(PrefixDispute) }
func NewChargeID() ID     { return New(PrefixCharge) }
func NewDepositID() ID    { return New(PrefixDeposit) }
func NewWithdrawalID() ID { return New(PrefixWithdrawal) }
func NewPayoutID() ID     { return New(PrefixPayout) }

func ParseProducerID(s string) (ID, error) { return ParseWithPrefix(s, PrefixProducer) }
func ParseEventID(s string) (ID, error)    { return ParseWithPrefix(s, PrefixEvent) }
func ParseDisputeID(s string) (ID, error)  { return ParseWithPrefix(s, PrefixDispute) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil stores NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
