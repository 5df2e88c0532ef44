package models

import (
	"time"

	"github.com/google/uuid"
)

// InstallmentStatus is the stored lifecycle state of an installment.
type InstallmentStatus string

const (
	StatusPending InstallmentStatus = "pending"
	StatusPaid    InstallmentStatus = "paid"
	StatusOverdue InstallmentStatus = "overdue"
	StatusFailed  InstallmentStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s InstallmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusOverdue, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s can no longer change.
func (s InstallmentStatus) Terminal() bool {
	return s == StatusPaid || s == StatusFailed
}

// Installment represents a single scheduled payment of a plan.
// Amounts are minor currency units.
type Installment struct {
	ID                  uuid.UUID         `json:"id"`
	PlanID              uuid.UUID         `json:"plan_id"`
	InstallmentNumber   int               `json:"installment_number"`
	Amount              int64             `json:"amount"`
	DueDate             time.Time         `json:"due_date"`
	Status              InstallmentStatus `json:"status"`
	PaidAt              *time.Time        `json:"paid_at,omitempty"`
	FailedAt            *time.Time        `json:"failed_at,omitempty"`
	IsInGracePeriod     bool              `json:"is_in_grace_period"`
	GracePeriodEnd      *time.Time        `json:"grace_period_end,omitempty"`
	RemindersSent       int               `json:"reminders_sent"`
	LastReminderAt      *time.Time        `json:"last_reminder_at,omitempty"`
	LastReminderChannel string            `json:"last_reminder_channel,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// Clone returns a deep copy so callers can't alias the pointer fields.
func (i Installment) Clone() Installment {
	c := i
	c.PaidAt = cloneTime(i.PaidAt)
	c.FailedAt = cloneTime(i.FailedAt)
	c.GracePeriodEnd = cloneTime(i.GracePeriodEnd)
	c.LastReminderAt = cloneTime(i.LastReminderAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
