package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/installment-service/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Progress rolls up a ledger at now. It reads only; calling it repeatedly
// with the same inputs returns identical summaries.
func Progress(l *Ledger, now time.Time) models.ProgressSummary {
	summary := models.ProgressSummary{
		PlanID:            l.planID,
		AsOf:              now,
		TotalInstallments: len(l.installments),
	}

	var next *models.Installment
	for _, inst := range l.installments {
		summary.TotalAmount += inst.Amount

		switch ClassifyStatus(inst, now) {
		case models.StatusPaid:
			summary.PaidInstallments++
			summary.PaidAmount += inst.Amount
			continue
		case models.StatusFailed:
			summary.FailedInstallments++
			continue
		case models.StatusOverdue:
			summary.OverdueInstallments++
			summary.OverdueAmount += inst.Amount
		default:
			summary.PendingInstallments++
		}

		if next == nil || dueBefore(inst, *next) {
			c := inst.Clone()
			next = &c
		}
	}

	summary.RemainingAmount = summary.TotalAmount - summary.PaidAmount
	summary.ProgressPercentage = Percentage(summary.PaidAmount, summary.TotalAmount)
	summary.NextDue = next
	return summary
}

// Percentage returns part/total*100 rounded to two places, or 0 for an
// empty total.
func Percentage(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	pct := decimal.NewFromInt(part).Mul(hundred).Div(decimal.NewFromInt(total)).Round(2)
	return pct.InexactFloat64()
}

func dueBefore(a, b models.Installment) bool {
	if !a.DueDate.Equal(b.DueDate) {
		return a.DueDate.Before(b.DueDate)
	}
	return a.InstallmentNumber < b.InstallmentNumber
}
