// Package ledger implements the installment schedule engine: generation,
// status classification, progress rollups and bounded modification of a
// plan's installments. Everything here is pure; persistence lives in the
// repository package.
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Dan9191/installment-service/internal/models"
)

// Ledger is the ordered set of installments belonging to one payment plan.
type Ledger struct {
	planID       uuid.UUID
	revision     int64
	installments []models.Installment
}

// New builds a ledger from persisted rows, failing with ErrMalformedLedger
// when numbering, ordering or per-row invariants don't hold.
func New(planID uuid.UUID, revision int64, installments []models.Installment) (*Ledger, error) {
	rows := make([]models.Installment, len(installments))
	for i, inst := range installments {
		rows[i] = inst.Clone()
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].InstallmentNumber < rows[j].InstallmentNumber
	})

	if err := validate(planID, rows); err != nil {
		return nil, err
	}
	return &Ledger{planID: planID, revision: revision, installments: rows}, nil
}

func validate(planID uuid.UUID, rows []models.Installment) error {
	seenIDs := make(map[uuid.UUID]struct{}, len(rows))
	for i, inst := range rows {
		if inst.PlanID != planID {
			return fmt.Errorf("%w: installment %s belongs to plan %s", ErrMalformedLedger, inst.ID, inst.PlanID)
		}
		if _, dup := seenIDs[inst.ID]; dup {
			return fmt.Errorf("%w: duplicate installment id %s", ErrMalformedLedger, inst.ID)
		}
		seenIDs[inst.ID] = struct{}{}

		if inst.InstallmentNumber < 1 {
			return fmt.Errorf("%w: installment %s has number %d", ErrMalformedLedger, inst.ID, inst.InstallmentNumber)
		}
		if i > 0 {
			prev := rows[i-1]
			if prev.InstallmentNumber == inst.InstallmentNumber {
				return fmt.Errorf("%w: duplicate installment number %d", ErrMalformedLedger, inst.InstallmentNumber)
			}
			if inst.DueDate.Before(prev.DueDate) {
				return fmt.Errorf("%w: installment %d is due before installment %d",
					ErrMalformedLedger, inst.InstallmentNumber, prev.InstallmentNumber)
			}
		}
		if inst.Amount <= 0 {
			return fmt.Errorf("%w: installment %d has amount %d", ErrMalformedLedger, inst.InstallmentNumber, inst.Amount)
		}
		if !inst.Status.Valid() {
			return fmt.Errorf("%w: installment %d has status %q", ErrMalformedLedger, inst.InstallmentNumber, inst.Status)
		}
		if (inst.Status == models.StatusPaid) != (inst.PaidAt != nil) {
			return fmt.Errorf("%w: installment %d status %s disagrees with paid_at", ErrMalformedLedger, inst.InstallmentNumber, inst.Status)
		}
		if inst.RemindersSent < 0 {
			return fmt.Errorf("%w: installment %d has negative reminder count", ErrMalformedLedger, inst.InstallmentNumber)
		}
	}
	return nil
}

// PlanID returns the owning plan.
func (l *Ledger) PlanID() uuid.UUID { return l.planID }

// Revision is bumped on every committed schedule modification.
func (l *Ledger) Revision() int64 { return l.revision }

// Len returns the number of installments.
func (l *Ledger) Len() int { return len(l.installments) }

// Installments returns a copy of the rows ordered by installment number.
func (l *Ledger) Installments() []models.Installment {
	out := make([]models.Installment, len(l.installments))
	for i, inst := range l.installments {
		out[i] = inst.Clone()
	}
	return out
}

// ByNumber looks up an installment by its position.
func (l *Ledger) ByNumber(n int) (models.Installment, bool) {
	idx := sort.Search(len(l.installments), func(i int) bool {
		return l.installments[i].InstallmentNumber >= n
	})
	if idx < len(l.installments) && l.installments[idx].InstallmentNumber == n {
		return l.installments[idx].Clone(), true
	}
	return models.Installment{}, false
}

// ByID looks up an installment by id.
func (l *Ledger) ByID(id uuid.UUID) (models.Installment, bool) {
	for _, inst := range l.installments {
		if inst.ID == id {
			return inst.Clone(), true
		}
	}
	return models.Installment{}, false
}

// PendingOnly returns the installments still open at now, i.e. whose
// effective status is pending or overdue.
func (l *Ledger) PendingOnly(now time.Time) []models.Installment {
	var out []models.Installment
	for _, inst := range l.installments {
		if IsOpen(ClassifyStatus(inst, now)) {
			out = append(out, inst.Clone())
		}
	}
	return out
}

// SortedByDueDate returns the rows ordered by due date, number breaking ties.
func (l *Ledger) SortedByDueDate() []models.Installment {
	out := l.Installments()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].InstallmentNumber < out[j].InstallmentNumber
	})
	return out
}

// TotalAmount sums every installment amount.
func (l *Ledger) TotalAmount() int64 {
	var total int64
	for _, inst := range l.installments {
		total += inst.Amount
	}
	return total
}
