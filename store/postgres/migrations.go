package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the verity store.
var Migrations = migrate.NewGroup("verity")

func table(name, version, ddl string) *migrate.Migration {
	return &migrate.Migration{
		Name:    "create_" + name,
		Version: version,
		Up: func(ctx context.Context, exec migrate.Executor) error {
			_, err := exec.Exec(ctx, ddl)
			return err
		},
		Down: func(ctx context.Context, exec migrate.Executor) error {
			_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS `+name)
			return err
		},
	}
}

func init() {
	Migrations.MustRegister(
		table("verity_producers", "20260301000001", `
CREATE TABLE IF NOT EXISTS verity_producers (
    id          TEXT PRIMARY KEY,
    owner       TEXT NOT NULL,
    currency    TEXT NOT NULL,
    stake       BIGINT NOT NULL DEFAULT 0,
    reputation  INT NOT NULL DEFAULT 500,
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    banned      BOOLEAN NOT NULL DEFAULT FALSE,
    event_count BIGINT NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_verity_producers_owner ON verity_producers (owner);
`),
		table("verity_events", "20260301000002", `
CREATE TABLE IF NOT EXISTS verity_events (
    id           TEXT PRIMARY KEY,
    producer_id  TEXT NOT NULL REFERENCES verity_producers (id),
    scheduled_at TIMESTAMPTZ NOT NULL,
    metadata     BYTEA,
    has_result   BOOLEAN NOT NULL DEFAULT FALSE,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_verity_events_producer ON verity_events (producer_id, scheduled_at);
`),
		table("verity_results", "20260301000003", `
CREATE TABLE IF NOT EXISTS verity_results (
    event_id          TEXT PRIMARY KEY REFERENCES verity_events (id),
    producer_id       TEXT NOT NULL,
    submitter         TEXT NOT NULL,
    payload           BYTEA NOT NULL,
    decode_hint       TEXT NOT NULL DEFAULT '',
    schema            TEXT NOT NULL DEFAULT '',
    quick_fields      JSONB NOT NULL DEFAULT '{}',
    fingerprint       TEXT NOT NULL,
    status            TEXT NOT NULL DEFAULT 'submitted',
    dispute_id        TEXT NOT NULL DEFAULT '',
    submitted_at      TIMESTAMPTZ NOT NULL,
    finalize_deadline TIMESTAMPTZ NOT NULL,
    finalized_at      TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_verity_results_pending ON verity_results (status, finalize_deadline);
CREATE INDEX IF NOT EXISTS idx_verity_results_producer ON verity_results (producer_id);
`),
		table("verity_disputes", "20260301000004", `
CREATE TABLE IF NOT EXISTS verity_disputes (
    id                TEXT PRIMARY KEY,
    event_id          TEXT NOT NULL,
    producer_id       TEXT NOT NULL,
    challenger        TEXT NOT NULL,
    currency          TEXT NOT NULL,
    stake             BIGINT NOT NULL,
    evidence_ref      TEXT NOT NULL DEFAULT '',
    reason            TEXT NOT NULL,
    resolved          BOOLEAN NOT NULL DEFAULT FALSE,
    outcome           TEXT NOT NULL DEFAULT 'pending',
    resolver          TEXT NOT NULL DEFAULT '',
    reward_percent    INT NOT NULL DEFAULT 0,
    slashed           BIGINT NOT NULL DEFAULT 0,
    challenger_reward BIGINT NOT NULL DEFAULT 0,
    resolved_at       TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_verity_disputes_event ON verity_disputes (event_id);
CREATE INDEX IF NOT EXISTS idx_verity_disputes_challenger ON verity_disputes (challenger);
`),
		table("verity_accounts", "20260301000005", `
CREATE TABLE IF NOT EXISTS verity_accounts (
    consumer           TEXT PRIMARY KEY,
    currency           TEXT NOT NULL,
    cash               BIGINT NOT NULL DEFAULT 0 CHECK (cash >= 0),
    bonus              BIGINT NOT NULL DEFAULT 0 CHECK (bonus >= 0),
    quota_day          TEXT NOT NULL DEFAULT '',
    quota_used         INT NOT NULL DEFAULT 0,
    lifetime_free_used INT NOT NULL DEFAULT 0,
    deposited          BIGINT NOT NULL DEFAULT 0,
    referred_by        TEXT NOT NULL DEFAULT '',
    referral_claimed   BOOLEAN NOT NULL DEFAULT FALSE,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`),
		table("verity_grants", "20260301000006", `
CREATE TABLE IF NOT EXISTS verity_grants (
    consumer   TEXT NOT NULL,
    event_id   TEXT NOT NULL,
    charge_id  TEXT NOT NULL DEFAULT '',
    free       BOOLEAN NOT NULL DEFAULT FALSE,
    granted_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (consumer, event_id)
);
`),
		table("verity_earnings", "20260301000007", `
CREATE TABLE IF NOT EXISTS verity_earnings (
    producer_id  TEXT PRIMARY KEY,
    currency     TEXT NOT NULL,
    total_earned BIGINT NOT NULL DEFAULT 0,
    pending      BIGINT NOT NULL DEFAULT 0 CHECK (pending >= 0),
    withdrawn    BIGINT NOT NULL DEFAULT 0,
    query_count  BIGINT NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`),
		table("verity_pools", "20260301000008", `
CREATE TABLE IF NOT EXISTS verity_pools (
    currency        TEXT PRIMARY KEY,
    treasury        BIGINT NOT NULL DEFAULT 0 CHECK (treasury >= 0),
    challenger_pool BIGINT NOT NULL DEFAULT 0 CHECK (challenger_pool >= 0),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`),
		table("verity_charges", "20260301000009", `
CREATE TABLE IF NOT EXISTS verity_charges (
    id               TEXT PRIMARY KEY,
    consumer         TEXT NOT NULL,
    event_id         TEXT NOT NULL,
    producer_id      TEXT NOT NULL,
    currency         TEXT NOT NULL,
    fee              BIGINT NOT NULL DEFAULT 0,
    from_bonus       BIGINT NOT NULL DEFAULT 0,
    from_cash        BIGINT NOT NULL DEFAULT 0,
    producer_share   BIGINT NOT NULL DEFAULT 0,
    protocol_share   BIGINT NOT NULL DEFAULT 0,
    challenger_share BIGINT NOT NULL DEFAULT 0,
    free             BOOLEAN NOT NULL DEFAULT FALSE,
    charged_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verity_charges_consumer ON verity_charges (consumer, charged_at);
`),
		table("verity_deposits", "20260301000010", `
CREATE TABLE IF NOT EXISTS verity_deposits (
    id             TEXT PRIMARY KEY,
    consumer       TEXT NOT NULL,
    currency       TEXT NOT NULL,
    amount         BIGINT NOT NULL,
    volume_bonus   BIGINT NOT NULL DEFAULT 0,
    referral_bonus BIGINT NOT NULL DEFAULT 0,
    referrer       TEXT NOT NULL DEFAULT '',
    referrer_bonus BIGINT NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verity_deposits_consumer ON verity_deposits (consumer);
`),
		table("verity_withdrawals", "20260301000011", `
CREATE TABLE IF NOT EXISTS verity_withdrawals (
    id          TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    producer_id TEXT NOT NULL,
    recipient   TEXT NOT NULL,
    currency    TEXT NOT NULL,
    amount      BIGINT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verity_withdrawals_producer ON verity_withdrawals (producer_id);
`),
		table("verity_payouts", "20260301000012", `
CREATE TABLE IF NOT EXISTS verity_payouts (
    id         TEXT PRIMARY KEY,
    pool       TEXT NOT NULL,
    recipient  TEXT NOT NULL,
    currency   TEXT NOT NULL,
    amount     BIGINT NOT NULL,
    memo       TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
);
`),
		table("verity_params", "20260301000013", `
CREATE TABLE IF NOT EXISTS verity_params (
    version    INT PRIMARY KEY,
    currency   TEXT NOT NULL,
    body       JSONB NOT NULL,
    updated_by TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL
);
`),
	)
}
