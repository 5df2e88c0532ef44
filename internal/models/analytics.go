package models

import (
	"time"

	"github.com/google/uuid"
)

// ProgressSummary represents the rollup of one plan's ledger at a given instant
type ProgressSummary struct {
	PlanID              uuid.UUID    `json:"plan_id"`
	AsOf                time.Time    `json:"as_of"`
	TotalInstallments   int          `json:"total_installments"`
	PaidInstallments    int          `json:"paid_installments"`
	OverdueInstallments int          `json:"overdue_installments"`
	PendingInstallments int          `json:"pending_installments"`
	FailedInstallments  int          `json:"failed_installments"`
	TotalAmount         int64        `json:"total_amount"`
	PaidAmount          int64        `json:"paid_amount"`
	RemainingAmount     int64        `json:"remaining_amount"`
	OverdueAmount       int64        `json:"overdue_amount"`
	// ProgressPercentage is PaidAmount/TotalAmount*100 rounded half away from
	// zero to two decimals, and 0 when TotalAmount is 0.
	ProgressPercentage  float64      `json:"progress_percentage"`
	NextDue             *Installment `json:"next_due"`
}

// PortfolioSummary represents dashboard-wide figures across all plans
type PortfolioSummary struct {
	AsOf                time.Time `json:"as_of"`
	Plans               int       `json:"plans"`
	CompletedPlans      int       `json:"completed_plans"`
	PlansWithOverdue    int       `json:"plans_with_overdue"`
	OpenInstallments    int       `json:"open_installments"`
	OverdueInstallments int       `json:"overdue_installments"`
	TotalAmount         int64     `json:"total_amount"`
	PaidAmount          int64     `json:"paid_amount"`
	OverdueAmount       int64     `json:"overdue_amount"`
}

// ReminderCandidate is an open installment together with the contact to remind
type ReminderCandidate struct {
	Plan        PaymentPlan       `json:"plan"`
	Installment Installment       `json:"installment"`
	Effective   InstallmentStatus `json:"effective_status"`
}
