package ledger

import (
	"time"

	"github.com/Dan9191/installment-service/internal/models"
)

// Portfolio applies the classifier to every ledger and folds the results
// into one dashboard summary. There is no separately maintained counter.
func Portfolio(ledgers []*Ledger, now time.Time) models.PortfolioSummary {
	out := models.PortfolioSummary{AsOf: now, Plans: len(ledgers)}
	for _, l := range ledgers {
		p := Progress(l, now)
		out.OpenInstallments += p.PendingInstallments + p.OverdueInstallments
		out.OverdueInstallments += p.OverdueInstallments
		out.TotalAmount += p.TotalAmount
		out.PaidAmount += p.PaidAmount
		out.OverdueAmount += p.OverdueAmount
		if p.NextDue == nil {
			out.CompletedPlans++
		}
		if p.OverdueInstallments > 0 {
			out.PlansWithOverdue++
		}
	}
	return out
}
