package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Dan9191/installment-service/internal/ledger"
	"github.com/Dan9191/installment-service/internal/models"
)

var (
	ErrPlanNotFound        = errors.New("payment plan not found")
	ErrInstallmentNotFound = errors.New("installment not found")
)

// ScheduleCommit is a computed schedule modification waiting to be written.
// ExpectedRevision and SettledFingerprint are what the caller saw when it
// read the ledger.
type ScheduleCommit struct {
	PlanID             uuid.UUID
	ExpectedRevision   int64
	SettledFingerprint string
	Open               []models.Installment
	Superseded         []uuid.UUID
	At                 time.Time
}

// InstallmentUpdate mutates one installment inside the store's transaction.
type InstallmentUpdate func(models.Installment) (models.Installment, error)

const planColumns = `id, parent_name, parent_email, total_amount, installment_count, cadence_months,
	plan_type, description, start_date, revision, created_at, updated_at`

const installmentColumns = `id, plan_id, installment_number, amount, due_date, status, paid_at, failed_at,
	is_in_grace_period, grace_period_end, reminders_sent, last_reminder_at, last_reminder_channel,
	created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreatePlan stores a plan and its generated ledger in one transaction
func (r *Repository) CreatePlan(ctx context.Context, plan *models.PaymentPlan, rows []models.Installment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO billing.payment_plans (` + planColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = tx.ExecContext(ctx, query,
		plan.ID, plan.ParentName, plan.ParentEmail, plan.TotalAmount, plan.InstallmentCount, plan.CadenceMonths,
		string(plan.PlanType), plan.Description, plan.StartDate, plan.Revision, plan.CreatedAt, plan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}

	for _, inst := range rows {
		if err := insertInstallment(ctx, tx, inst); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit plan: %w", err)
	}
	return nil
}

// GetPlan retrieves a plan by id
func (r *Repository) GetPlan(ctx context.Context, id uuid.UUID) (*models.PaymentPlan, error) {
	query := `SELECT ` + planColumns + ` FROM billing.payment_plans WHERE id = $1`
	plan, err := scanPlan(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find plan: %w", err)
	}
	return plan, nil
}

// ListPlans retrieves every plan ordered by creation time
func (r *Repository) ListPlans(ctx context.Context) ([]models.PaymentPlan, error) {
	query := `SELECT ` + planColumns + ` FROM billing.payment_plans ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []models.PaymentPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, *plan)
	}
	return plans, rows.Err()
}

// ListInstallments retrieves the active installments of a plan
func (r *Repository) ListInstallments(ctx context.Context, planID uuid.UUID) ([]models.Installment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM billing.installments
		WHERE plan_id = $1 AND superseded_at IS NULL
		ORDER BY installment_number`
	return queryInstallments(ctx, r.db, query, planID)
}

// ListActiveInstallments retrieves every active installment of every plan
func (r *Repository) ListActiveInstallments(ctx context.Context) ([]models.Installment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM billing.installments
		WHERE superseded_at IS NULL
		ORDER BY plan_id, installment_number`
	return queryInstallments(ctx, r.db, query)
}

// GetInstallment retrieves an active installment by id
func (r *Repository) GetInstallment(ctx context.Context, id uuid.UUID) (*models.Installment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM billing.installments
		WHERE id = $1 AND superseded_at IS NULL`
	inst, err := scanInstallment(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrInstallmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find installment: %w", err)
	}
	return inst, nil
}

// ReplaceOpenInstallments commits a schedule modification. The plan row is
// locked first so captures and reminder writes on the same plan wait for
// us; the commit is refused if the revision or the settled set moved since
// the caller's read.
func (r *Repository) ReplaceOpenInstallments(ctx context.Context, c ScheduleCommit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var revision int64
	err = tx.QueryRowContext(ctx,
		`SELECT revision FROM billing.payment_plans WHERE id = $1 FOR UPDATE`, c.PlanID).Scan(&revision)
	if err == sql.ErrNoRows {
		return ErrPlanNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock plan: %w", err)
	}
	if revision != c.ExpectedRevision {
		return fmt.Errorf("%w: plan %s is at revision %d, expected %d",
			ledger.ErrConcurrentModification, c.PlanID, revision, c.ExpectedRevision)
	}

	current, err := queryInstallments(ctx, tx, `
		SELECT `+installmentColumns+`
		FROM billing.installments
		WHERE plan_id = $1 AND superseded_at IS NULL`, c.PlanID)
	if err != nil {
		return err
	}
	if ledger.FingerprintOf(current) != c.SettledFingerprint {
		return fmt.Errorf("%w: settled installments of plan %s changed", ledger.ErrConcurrentModification, c.PlanID)
	}

	if len(c.Superseded) > 0 {
		ids := make([]string, len(c.Superseded))
		for i, id := range c.Superseded {
			ids[i] = id.String()
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE billing.installments
			SET superseded_at = $2, updated_at = $2
			WHERE id = ANY($1::uuid[]) AND plan_id = $3`,
			pq.Array(ids), c.At, c.PlanID)
		if err != nil {
			return fmt.Errorf("failed to supersede installments: %w", err)
		}
	}

	for _, inst := range c.Open {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO billing.installments (`+installmentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (id) DO UPDATE SET
				installment_number = EXCLUDED.installment_number,
				amount             = EXCLUDED.amount,
				due_date           = EXCLUDED.due_date,
				is_in_grace_period = EXCLUDED.is_in_grace_period,
				grace_period_end   = EXCLUDED.grace_period_end,
				updated_at         = EXCLUDED.updated_at`,
			installmentArgs(inst)...)
		if err != nil {
			return fmt.Errorf("failed to write installment %s: %w", inst.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE billing.payment_plans SET revision = revision + 1, updated_at = $2 WHERE id = $1`,
		c.PlanID, c.At)
	if err != nil {
		return fmt.Errorf("failed to bump plan revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schedule: %w", err)
	}
	return nil
}

// UpdateInstallment applies fn to one installment under the owning plan's
// row lock and persists the lifecycle fields it changed.
func (r *Repository) UpdateInstallment(ctx context.Context, id uuid.UUID, fn InstallmentUpdate) (*models.Installment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var planID uuid.UUID
	err = tx.QueryRowContext(ctx,
		`SELECT plan_id FROM billing.installments WHERE id = $1`, id).Scan(&planID)
	if err == sql.ErrNoRows {
		return nil, ErrInstallmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find installment: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`SELECT 1 FROM billing.payment_plans WHERE id = $1 FOR UPDATE`, planID); err != nil {
		return nil, fmt.Errorf("failed to lock plan: %w", err)
	}

	current, err := scanInstallment(tx.QueryRowContext(ctx, `
		SELECT `+installmentColumns+`
		FROM billing.installments
		WHERE id = $1 AND superseded_at IS NULL
		FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, ErrInstallmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock installment: %w", err)
	}

	updated, err := fn(*current)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE billing.installments
		SET status = $2, paid_at = $3, failed_at = $4, reminders_sent = $5,
			last_reminder_at = $6, last_reminder_channel = $7, updated_at = $8
		WHERE id = $1`,
		updated.ID, string(updated.Status), updated.PaidAt, updated.FailedAt, updated.RemindersSent,
		updated.LastReminderAt, updated.LastReminderChannel, updated.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update installment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit installment: %w", err)
	}
	return &updated, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryInstallments(ctx context.Context, q queryer, query string, args ...any) ([]models.Installment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	defer rows.Close()

	var out []models.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

func insertInstallment(ctx context.Context, tx *sql.Tx, inst models.Installment) error {
	query := `
		INSERT INTO billing.installments (` + installmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	if _, err := tx.ExecContext(ctx, query, installmentArgs(inst)...); err != nil {
		return fmt.Errorf("failed to create installment %d: %w", inst.InstallmentNumber, err)
	}
	return nil
}

func installmentArgs(inst models.Installment) []any {
	return []any{
		inst.ID, inst.PlanID, inst.InstallmentNumber, inst.Amount, inst.DueDate, string(inst.Status),
		inst.PaidAt, inst.FailedAt, inst.IsInGracePeriod, inst.GracePeriodEnd, inst.RemindersSent,
		inst.LastReminderAt, inst.LastReminderChannel, inst.CreatedAt, inst.UpdatedAt,
	}
}

func scanPlan(s scanner) (*models.PaymentPlan, error) {
	var (
		plan     models.PaymentPlan
		planType string
	)
	err := s.Scan(&plan.ID, &plan.ParentName, &plan.ParentEmail, &plan.TotalAmount, &plan.InstallmentCount,
		&plan.CadenceMonths, &planType, &plan.Description, &plan.StartDate, &plan.Revision,
		&plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	plan.PlanType = models.PlanType(planType)
	return &plan, nil
}

func scanInstallment(s scanner) (*models.Installment, error) {
	var (
		inst   models.Installment
		status string
	)
	err := s.Scan(&inst.ID, &inst.PlanID, &inst.InstallmentNumber, &inst.Amount, &inst.DueDate, &status,
		&inst.PaidAt, &inst.FailedAt, &inst.IsInGracePeriod, &inst.GracePeriodEnd, &inst.RemindersSent,
		&inst.LastReminderAt, &inst.LastReminderChannel, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inst.Status = models.InstallmentStatus(status)
	return &inst, nil
}
