package ledger

import (
	"time"

	"github.com/Dan9191/installment-service/internal/models"
)

// ClassifyStatus derives the effective status of an installment at now.
// The stored pending/overdue distinction is never trusted: paid and failed
// are terminal, anything else is overdue once its due date has passed and
// no grace window is still running.
func ClassifyStatus(inst models.Installment, now time.Time) models.InstallmentStatus {
	if inst.Status.Terminal() {
		return inst.Status
	}
	if !inst.DueDate.After(now) && !InGracePeriod(inst, now) {
		return models.StatusOverdue
	}
	return models.StatusPending
}

// InGracePeriod reports whether a grace window is active at now. Only the
// window end counts; the stored IsInGracePeriod flag is informational.
func InGracePeriod(inst models.Installment, now time.Time) bool {
	return inst.GracePeriodEnd != nil && inst.GracePeriodEnd.After(now)
}

// IsOpen reports whether an effective status still awaits payment.
func IsOpen(s models.InstallmentStatus) bool {
	return s == models.StatusPending || s == models.StatusOverdue
}

// IsSettled is the complement of IsOpen for known statuses.
func IsSettled(s models.InstallmentStatus) bool {
	return s.Terminal()
}
