package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Dan9191/installment-service/internal/models"
)

// ScheduleParams are the plan inputs of the schedule generator.
type ScheduleParams struct {
	PlanID           uuid.UUID
	TotalAmount      int64
	InstallmentCount int
	CadenceMonths    int
	StartDate        time.Time
	// CreatedAt stamps the generated rows; defaults to StartDate when zero.
	CreatedAt time.Time
}

// GenerateSchedule splits the total into InstallmentCount rows due every
// CadenceMonths calendar months from StartDate. The rounding remainder goes
// to the last installment so the amounts always sum to the total.
func GenerateSchedule(p ScheduleParams) (*Ledger, error) {
	switch {
	case p.InstallmentCount <= 0:
		return nil, fmt.Errorf("%w: installment count must be positive, got %d", ErrInvalidScheduleParameters, p.InstallmentCount)
	case p.TotalAmount <= 0:
		return nil, fmt.Errorf("%w: total amount must be positive, got %d", ErrInvalidScheduleParameters, p.TotalAmount)
	case p.CadenceMonths < 0:
		return nil, fmt.Errorf("%w: cadence must not be negative, got %d", ErrInvalidScheduleParameters, p.CadenceMonths)
	case p.StartDate.IsZero():
		return nil, fmt.Errorf("%w: start date is required", ErrInvalidScheduleParameters)
	case p.TotalAmount < int64(p.InstallmentCount):
		return nil, fmt.Errorf("%w: total %d cannot cover %d installments of at least one unit",
			ErrInvalidScheduleParameters, p.TotalAmount, p.InstallmentCount)
	}

	planID := p.PlanID
	if planID == uuid.Nil {
		planID = uuid.New()
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = p.StartDate
	}

	count := int64(p.InstallmentCount)
	base := p.TotalAmount / count
	start := DateOf(p.StartDate)

	rows := make([]models.Installment, 0, p.InstallmentCount)
	for k := 1; k <= p.InstallmentCount; k++ {
		amount := base
		if k == p.InstallmentCount {
			amount = p.TotalAmount - base*(count-1)
		}
		rows = append(rows, models.Installment{
			ID:                uuid.New(),
			PlanID:            planID,
			InstallmentNumber: k,
			Amount:            amount,
			DueDate:           AddMonthsClamped(start, (k-1)*p.CadenceMonths),
			Status:            models.StatusPending,
			CreatedAt:         createdAt,
			UpdatedAt:         createdAt,
		})
	}
	return New(planID, 0, rows)
}

// DateOf truncates t to midnight in its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// AddMonthsClamped adds calendar months to a date, keeping the day of month
// and clamping it to the last day of shorter months (Jan 31 + 1 = Feb 28/29).
// Unlike time.AddDate it never spills into the following month.
func AddMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
