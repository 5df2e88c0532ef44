package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/Dan9191/installment-service/internal/models"
	"github.com/Dan9191/installment-service/internal/utils"
)

// CapturePayment moves an open installment to paid as reported by the
// payment gateway.
func CapturePayment(inst models.Installment, paidAt time.Time) (models.Installment, error) {
	if paidAt.IsZero() {
		return inst, fmt.Errorf("%w: paid_at", ErrInvalidTimestamp)
	}
	if inst.Status.Terminal() {
		return inst, fmt.Errorf("%w: installment %s is %s", ErrInstallmentSettled, inst.ID, inst.Status)
	}
	out := inst.Clone()
	out.Status = models.StatusPaid
	out.PaidAt = &paidAt
	out.UpdatedAt = paidAt
	return out, nil
}

// FailPayment records a capture the gateway gave up on. Failed is terminal;
// a retry needs a new installment row.
func FailPayment(inst models.Installment, failedAt time.Time) (models.Installment, error) {
	if failedAt.IsZero() {
		return inst, fmt.Errorf("%w: failed_at", ErrInvalidTimestamp)
	}
	if inst.Status.Terminal() {
		return inst, fmt.Errorf("%w: installment %s is %s", ErrInstallmentSettled, inst.ID, inst.Status)
	}
	out := inst.Clone()
	out.Status = models.StatusFailed
	out.FailedAt = &failedAt
	out.UpdatedAt = failedAt
	return out, nil
}

// RecordReminder counts one confirmed reminder delivery. It must only be
// called once the notification has actually been sent.
func RecordReminder(inst models.Installment, channel string, at time.Time) (models.Installment, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return inst, ErrInvalidChannel
	}
	if at.IsZero() {
		return inst, fmt.Errorf("%w: sent_at", ErrInvalidTimestamp)
	}
	out := inst.Clone()
	out.RemindersSent++
	out.LastReminderAt = &at
	out.LastReminderChannel = channel
	out.UpdatedAt = at
	return out, nil
}

// SettledFingerprint identifies the settled membership of a ledger. Two
// reads with equal fingerprints saw the same paid and failed installments.
func SettledFingerprint(l *Ledger) string {
	return FingerprintOf(l.installments)
}

// FingerprintOf is SettledFingerprint for rows that haven't been loaded
// into a Ledger, such as those re-read inside a store transaction.
func FingerprintOf(rows []models.Installment) string {
	parts := make([]string, 0, len(rows))
	for _, inst := range rows {
		if inst.Status.Terminal() {
			parts = append(parts, inst.ID.String()+":"+string(inst.Status))
		}
	}
	return utils.Fingerprint(parts...)
}
