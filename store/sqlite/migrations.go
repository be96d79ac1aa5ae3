package sqlite

import (
	"context"
	"fmt"
)

// migration is one idempotent schema step. Steps run in order inside a
// single transaction and are recorded in verity_migrations.
type migration struct {
	version string
	name    string
	ddl     string
}

var migrations = []migration{
	{"20260301000001", "create_verity_producers", `
CREATE TABLE IF NOT EXISTS verity_producers (
    id          TEXT PRIMARY KEY,
    owner       TEXT NOT NULL,
    currency    TEXT NOT NULL,
    stake       INTEGER NOT NULL DEFAULT 0,
    reputation  INTEGER NOT NULL DEFAULT 500,
    active      INTEGER NOT NULL DEFAULT 1,
    banned      INTEGER NOT NULL DEFAULT 0,
    event_count INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verity_producers_owner ON verity_producers (owner);`},
	{"20260301000002", "create_verity_events", `
CREATE TABLE IF NOT EXISTS verity_events (
    id           TEXT PRIMARY KEY,
    producer_id  TEXT NOT NULL REFERENCES verity_producers (id),
    scheduled_at TEXT NOT NULL,
    metadata     BLOB,
    has_result   INTEGER NOT NULL DEFAULT 0,
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verity_events_producer ON verity_events (producer_id, scheduled_at);`},
	{"20260301000003", "create_verity_results", `
CREATE TABLE IF NOT EXISTS verity_results (
    event_id          TEXT PRIMARY KEY REFERENCES verity_events (id),
    producer_id       TEXT NOT NULL,
    submitter         TEXT NOT NULL,
    payload           BLOB NOT NULL,
    decode_hint       TEXT NOT NULL DEFAULT '',
    schema            TEXT NOT NULL DEFAULT '',
    quick_fields      TEXT NOT NULL DEFAULT '{}',
    fingerprint       TEXT NOT NULL,
    status            TEXT NOT NULL DEFAULT 'submitted',
    dispute_id        TEXT NOT NULL DEFAULT '',
    submitted_at      TEXT NOT NULL,
    finalize_deadline TEXT NOT NULL,
    finalized_at      TEXT,
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verity_results_pending ON verity_results (status, finalize_deadline);`},
	{"20260301000004", "create_verity_disputes", `
CREATE TABLE IF NOT EXISTS verity_disputes (
    id                TEXT PRIMARY KEY,
    event_id          TEXT NOT NULL UNIQUE,
    producer_id       TEXT NOT NULL,
    challenger        TEXT NOT NULL,
    currency          TEXT NOT NULL,
    stake             INTEGER NOT NULL,
    evidence_ref      TEXT NOT NULL DEFAULT '',
    reason            TEXT NOT NULL,
    resolved          INTEGER NOT NULL DEFAULT 0,
    outcome           TEXT NOT NULL DEFAULT 'pending',
    resolver          TEXT NOT NULL DEFAULT '',
    reward_percent    INTEGER NOT NULL DEFAULT 0,
    slashed           INTEGER NOT NULL DEFAULT 0,
    challenger_reward INTEGER NOT NULL DEFAULT 0,
    resolved_at       TEXT,
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL
);`},
	{"20260301000005", "create_verity_accounts", `
CREATE TABLE IF NOT EXISTS verity_accounts (
    consumer           TEXT PRIMARY KEY,
    currency           TEXT NOT NULL,
    cash               INTEGER NOT NULL DEFAULT 0 CHECK (cash >= 0),
    bonus              INTEGER NOT NULL DEFAULT 0 CHECK (bonus >= 0),
    quota_day          TEXT NOT NULL DEFAULT '',
    quota_used         INTEGER NOT NULL DEFAULT 0,
    lifetime_free_used INTEGER NOT NULL DEFAULT 0,
    deposited          INTEGER NOT NULL DEFAULT 0,
    referred_by        TEXT NOT NULL DEFAULT '',
    referral_claimed   INTEGER NOT NULL DEFAULT 0,
    created_at         TEXT NOT NULL,
    updated_at         TEXT NOT NULL
);`},
	{"20260301000006", "create_verity_grants", `
CREATE TABLE IF NOT EXISTS verity_grants (
    consumer   TEXT NOT NULL,
    event_id   TEXT NOT NULL,
    charge_id  TEXT NOT NULL DEFAULT '',
    free       INTEGER NOT NULL DEFAULT 0,
    granted_at TEXT NOT NULL,
    PRIMARY KEY (consumer, event_id)
);`},
	{"20260301000007", "create_verity_earnings", `
CREATE TABLE IF NOT EXISTS verity_earnings (
    producer_id  TEXT PRIMARY KEY,
    currency     TEXT NOT NULL,
    total_earned INTEGER NOT NULL DEFAULT 0,
    pending      INTEGER NOT NULL DEFAULT 0 CHECK (pending >= 0),
    withdrawn    INTEGER NOT NULL DEFAULT 0,
    query_count  INTEGER NOT NULL DEFAULT 0,
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL
);`},
	{"20260301000008", "create_verity_pools", `
CREATE TABLE IF NOT EXISTS verity_pools (
    currency        TEXT PRIMARY KEY,
    treasury        INTEGER NOT NULL DEFAULT 0 CHECK (treasury >= 0),
    challenger_pool INTEGER NOT NULL DEFAULT 0 CHECK (challenger_pool >= 0),
    updated_at      TEXT NOT NULL
);`},
	{"20260301000009", "create_verity_charges", `
CREATE TABLE IF NOT EXISTS verity_charges (
    id               TEXT PRIMARY KEY,
    consumer         TEXT NOT NULL,
    event_id         TEXT NOT NULL,
    producer_id      TEXT NOT NULL,
    currency         TEXT NOT NULL,
    fee              INTEGER NOT NULL DEFAULT 0,
    from_bonus       INTEGER NOT NULL DEFAULT 0,
    from_cash        INTEGER NOT NULL DEFAULT 0,
    producer_share   INTEGER NOT NULL DEFAULT 0,
    protocol_share   INTEGER NOT NULL DEFAULT 0,
    challenger_share INTEGER NOT NULL DEFAULT 0,
    free             INTEGER NOT NULL DEFAULT 0,
    charged_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verity_charges_consumer ON verity_charges (consumer, charged_at);`},
	{"20260301000010", "create_verity_deposits", `
CREATE TABLE IF NOT EXISTS verity_deposits (
    id             TEXT PRIMARY KEY,
    consumer       TEXT NOT NULL,
    currency       TEXT NOT NULL,
    amount         INTEGER NOT NULL,
    volume_bonus   INTEGER NOT NULL DEFAULT 0,
    referral_bonus INTEGER NOT NULL DEFAULT 0,
    referrer       TEXT NOT NULL DEFAULT '',
    referrer_bonus INTEGER NOT NULL DEFAULT 0,
    created_at     TEXT NOT NULL
);`},
	{"20260301000011", "create_verity_withdrawals", `
CREATE TABLE IF NOT EXISTS verity_withdrawals (
    id          TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    producer_id TEXT NOT NULL,
    recipient   TEXT NOT NULL,
    currency    TEXT NOT NULL,
    amount      INTEGER NOT NULL,
    created_at  TEXT NOT NULL
);`},
	{"20260301000012", "create_verity_payouts", `
CREATE TABLE IF NOT EXISTS verity_payouts (
    id         TEXT PRIMARY KEY,
    pool       TEXT NOT NULL,
    recipient  TEXT NOT NULL,
    currency   TEXT NOT NULL,
    amount     INTEGER NOT NULL,
    memo       TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);`},
	{"20260301000013", "create_verity_params", `
CREATE TABLE IF NOT EXISTS verity_params (
    version    INTEGER PRIMARY KEY,
    currency   TEXT NOT NULL,
    body       TEXT NOT NULL,
    updated_by TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL
);`},
}

// Migrate applies pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS verity_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("verity/sqlite: create migrations table: %w", err)
	}

	return s.RunInTx(ctx, func(ctx context.Context) error {
		x := s.x(ctx)
		for _, m := range migrations {
			var n int
			if err := x.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM verity_migrations WHERE version = ?`, m.version,
			).Scan(&n); err != nil {
				return fmt.Errorf("verity/sqlite: check %s: %w", m.name, err)
			}
			if n > 0 {
				continue
			}
			if _, err := x.ExecContext(ctx, m.ddl); err != nil {
				return fmt.Errorf("verity/sqlite: apply %s: %w", m.name, err)
			}
			if _, err := x.ExecContext(ctx,
				`INSERT INTO verity_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
				m.version, m.name, ts(s.now()),
			); err != nil {
				return fmt.Errorf("verity/sqlite: record %s: %w", m.name, err)
			}
		}
		return nil
	})
}
