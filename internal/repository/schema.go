package repository

import (
	"context"
	"fmt"
)

// Schema creates the billing tables. Every statement is idempotent.
const Schema = `
CREATE SCHEMA IF NOT EXISTS billing;

CREATE TABLE IF NOT EXISTS billing.payment_plans (
	id                UUID PRIMARY KEY,
	parent_name       TEXT        NOT NULL,
	parent_email      TEXT        NOT NULL DEFAULT '',
	total_amount      BIGINT      NOT NULL CHECK (total_amount > 0),
	installment_count INT         NOT NULL CHECK (installment_count > 0),
	cadence_months    INT         NOT NULL CHECK (cadence_months >= 0),
	plan_type         TEXT        NOT NULL,
	description       TEXT        NOT NULL DEFAULT '',
	start_date        TIMESTAMPTZ NOT NULL,
	revision          BIGINT      NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS billing.installments (
	id                    UUID PRIMARY KEY,
	plan_id               UUID        NOT NULL REFERENCES billing.payment_plans (id),
	installment_number    INT         NOT NULL,
	amount                BIGINT      NOT NULL CHECK (amount > 0),
	due_date              TIMESTAMPTZ NOT NULL,
	status                TEXT        NOT NULL,
	paid_at               TIMESTAMPTZ,
	failed_at             TIMESTAMPTZ,
	is_in_grace_period    BOOLEAN     NOT NULL DEFAULT FALSE,
	grace_period_end      TIMESTAMPTZ,
	reminders_sent        INT         NOT NULL DEFAULT 0 CHECK (reminders_sent >= 0),
	last_reminder_at      TIMESTAMPTZ,
	last_reminder_channel TEXT        NOT NULL DEFAULT '',
	superseded_at         TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS installments_active_plan_idx
	ON billing.installments (plan_id, installment_number)
	WHERE superseded_at IS NULL;
`

// Migrate creates the billing schema if it doesn't exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
