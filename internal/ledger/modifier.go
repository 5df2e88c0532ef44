package ledger

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Dan9191/installment-service/internal/models"
)

// Replacement is one row of a revised schedule. Rows without an
// InstallmentID are appended as new installments.
type Replacement struct {
	InstallmentID     *uuid.UUID `json:"installment_id,omitempty"`
	Amount            int64      `json:"amount"`
	DueDate           time.Time  `json:"due_date"`
	InstallmentNumber int        `json:"installment_number"`
	GracePeriodEnd    *time.Time `json:"grace_period_end,omitempty"`
}

// ModifyOptions tune ModifySchedule.
type ModifyOptions struct {
	// CloseLedger allows a revision that leaves no open installments.
	CloseLedger bool
}

// Modification is the outcome of ModifySchedule, ready to be committed.
type Modification struct {
	Ledger *Ledger
	// Open holds the full revised open set, renumbered.
	Open []models.Installment
	// Superseded lists open rows the revision dropped.
	Superseded []uuid.UUID
	// BaseRevision and SettledFingerprint describe the ledger the
	// modification was computed from; the commit must see the same values.
	BaseRevision       int64
	SettledFingerprint string
}

type openRow struct {
	inst  models.Installment
	order int
	index int
}

// ModifySchedule applies a revised schedule to the open part of a ledger.
// Settled installments (effective status paid or failed) are never touched;
// any attempt to reference one fails the whole call.
func ModifySchedule(l *Ledger, rows []Replacement, now time.Time, opts ModifyOptions) (*Modification, error) {
	var (
		settled      []models.Installment
		open         = make(map[uuid.UUID]models.Installment)
		maxNumber    int
		latestSettle time.Time
	)
	for _, inst := range l.installments {
		if IsSettled(ClassifyStatus(inst, now)) {
			settled = append(settled, inst.Clone())
			if inst.InstallmentNumber > maxNumber {
				maxNumber = inst.InstallmentNumber
			}
			if inst.DueDate.After(latestSettle) {
				latestSettle = inst.DueDate
			}
			continue
		}
		open[inst.ID] = inst.Clone()
	}

	seen := make(map[uuid.UUID]struct{}, len(rows))
	revised := make([]openRow, 0, len(rows))
	for i, row := range rows {
		var inst models.Installment
		if row.InstallmentID == nil {
			inst = models.Installment{
				ID:        uuid.New(),
				PlanID:    l.planID,
				Status:    models.StatusPending,
				CreatedAt: now,
			}
		} else {
			id := *row.InstallmentID
			if _, dup := seen[id]; dup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateReplacement, id)
			}
			seen[id] = struct{}{}

			existing, ok := open[id]
			if !ok {
				if _, isSettled := l.ByID(id); isSettled {
					return nil, fmt.Errorf("%w: %s", ErrImmutableInstallment, id)
				}
				return nil, fmt.Errorf("%w: %s", ErrUnknownInstallment, id)
			}
			inst = existing
		}
		if err := validateReplacement(i, row, latestSettle); err != nil {
			return nil, err
		}

		inst.Amount = row.Amount
		inst.DueDate = DateOf(row.DueDate)
		if row.GracePeriodEnd != nil {
			end := *row.GracePeriodEnd
			inst.IsInGracePeriod = true
			inst.GracePeriodEnd = &end
		}
		inst.UpdatedAt = now

		order := row.InstallmentNumber
		if order <= 0 {
			order = math.MaxInt
		}
		revised = append(revised, openRow{inst: inst, order: order, index: i})
	}

	if len(revised) == 0 && !opts.CloseLedger {
		return nil, ErrEmptyModification
	}

	sort.SliceStable(revised, func(i, j int) bool {
		a, b := revised[i], revised[j]
		if !a.inst.DueDate.Equal(b.inst.DueDate) {
			return a.inst.DueDate.Before(b.inst.DueDate)
		}
		if a.order != b.order {
			return a.order < b.order
		}
		return a.index < b.index
	})

	result := make([]models.Installment, 0, len(settled)+len(revised))
	result = append(result, settled...)
	openRows := make([]models.Installment, 0, len(revised))
	for i, r := range revised {
		r.inst.InstallmentNumber = maxNumber + i + 1
		openRows = append(openRows, r.inst)
		result = append(result, r.inst)
	}

	var superseded []uuid.UUID
	for _, inst := range l.installments {
		if _, ok := open[inst.ID]; !ok {
			continue
		}
		if _, kept := seen[inst.ID]; !kept {
			superseded = append(superseded, inst.ID)
		}
	}

	next, err := New(l.planID, l.revision+1, result)
	if err != nil {
		return nil, err
	}
	return &Modification{
		Ledger:             next,
		Open:               openRows,
		Superseded:         superseded,
		BaseRevision:       l.revision,
		SettledFingerprint: SettledFingerprint(l),
	}, nil
}

func validateReplacement(i int, row Replacement, latestSettled time.Time) error {
	if row.Amount <= 0 {
		return fmt.Errorf("%w: row %d has amount %d", ErrNonPositiveAmount, i, row.Amount)
	}
	if row.DueDate.IsZero() {
		return fmt.Errorf("%w: row %d has no due date", ErrInvalidDueDate, i)
	}
	if DateOf(row.DueDate).Before(latestSettled) {
		return fmt.Errorf("%w: row %d is due %s, before the last settled installment (%s)",
			ErrInvalidDueDate, i, row.DueDate.Format("2006-01-02"), latestSettled.Format("2006-01-02"))
	}
	if row.GracePeriodEnd != nil && row.GracePeriodEnd.Before(row.DueDate) {
		return fmt.Errorf("%w: row %d grace period ends before its due date", ErrInvalidDueDate, i)
	}
	return nil
}
