package models

import (
	"time"

	"github.com/google/uuid"
)

// PlanType tags how a plan was offered to the parent.
type PlanType string

const (
	PlanTypeFull      PlanType = "full"
	PlanTypeMonthly   PlanType = "monthly"
	PlanTypeQuarterly PlanType = "quarterly"
	PlanTypeCustom    PlanType = "custom"
)

// DefaultCadence returns the cadence in months implied by the plan type.
// Custom plans have no default.
func (t PlanType) DefaultCadence() (int, bool) {
	switch t {
	case PlanTypeFull:
		return 0, true
	case PlanTypeMonthly:
		return 1, true
	case PlanTypeQuarterly:
		return 3, true
	}
	return 0, false
}

// Valid reports whether t is a known plan type.
func (t PlanType) Valid() bool {
	switch t {
	case PlanTypeFull, PlanTypeMonthly, PlanTypeQuarterly, PlanTypeCustom:
		return true
	}
	return false
}

// PaymentPlan represents the installment plan attached to a parent payment record
type PaymentPlan struct {
	ID               uuid.UUID `json:"id"`
	ParentName       string    `json:"parent_name"`
	ParentEmail      string    `json:"parent_email"`
	TotalAmount      int64     `json:"total_amount"`
	InstallmentCount int       `json:"installment_count"`
	CadenceMonths    int       `json:"cadence_months"`
	PlanType         PlanType  `json:"plan_type"`
	Description      string    `json:"description"`
	StartDate        time.Time `json:"start_date"`
	Revision         int64     `json:"revision"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
