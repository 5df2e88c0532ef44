package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioLedger is the 90000/3/monthly plan from 2024-01-01 with the first
// installment paid.
func scenarioLedger(t *testing.T) *Ledger {
	t.Helper()

	l, err := GenerateSchedule(ScheduleParams{
		TotalAmount:      90000,
		InstallmentCount: 3,
		CadenceMonths:    1,
		StartDate:        date(2024, 1, 1),
	})
	require.NoError(t, err)

	rows := l.Installments()
	rows[0], err = CapturePayment(rows[0], date(2024, 1, 1))
	require.NoError(t, err)

	paid, err := New(l.PlanID(), l.Revision(), rows)
	require.NoError(t, err)
	return paid
}

func TestProgress_Scenario(t *testing.T) {
	l := scenarioLedger(t)

	p := Progress(l, date(2024, 2, 15))
	assert.Equal(t, 3, p.TotalInstallments)
	assert.Equal(t, 1, p.PaidInstallments)
	assert.Equal(t, 1, p.OverdueInstallments)
	assert.Equal(t, 1, p.PendingInstallments)
	assert.Equal(t, int64(90000), p.TotalAmount)
	assert.Equal(t, int64(30000), p.PaidAmount)
	assert.Equal(t, int64(60000), p.RemainingAmount)
	assert.Equal(t, int64(30000), p.OverdueAmount)
	assert.InDelta(t, 33.33, p.ProgressPercentage, 0.0001)

	require.NotNil(t, p.NextDue)
	assert.Equal(t, 2, p.NextDue.InstallmentNumber)
}

func TestProgress_Idempotent(t *testing.T) {
	l := scenarioLedger(t)
	before := l.Installments()

	now := date(2024, 2, 15)
	first := Progress(l, now)
	second := Progress(l, now)

	assert.Equal(t, first, second)
	assert.Equal(t, before, l.Installments())
}

func TestProgress_FullyPaidHasNoNextDue(t *testing.T) {
	l, err := GenerateSchedule(ScheduleParams{
		TotalAmount:      300,
		InstallmentCount: 2,
		CadenceMonths:    1,
		StartDate:        date(2024, 1, 1),
	})
	require.NoError(t, err)

	rows := l.Installments()
	rows[0], err = CapturePayment(rows[0], date(2024, 1, 2))
	require.NoError(t, err)
	rows[1], err = FailPayment(rows[1], date(2024, 2, 2))
	require.NoError(t, err)

	closed, err := New(l.PlanID(), 0, rows)
	require.NoError(t, err)

	p := Progress(closed, date(2024, 6, 1))
	assert.Nil(t, p.NextDue)
	assert.Equal(t, 1, p.PaidInstallments)
	assert.Equal(t, 1, p.FailedInstallments)
	assert.Equal(t, int64(150), p.RemainingAmount)
	assert.InDelta(t, 50.0, p.ProgressPercentage, 0.0001)
}

func TestProgress_EmptyLedger(t *testing.T) {
	l, err := New(uuid.New(), 0, nil)
	require.NoError(t, err)

	p := Progress(l, date(2024, 1, 1))
	assert.Zero(t, p.TotalAmount)
	assert.Zero(t, p.ProgressPercentage)
	assert.Nil(t, p.NextDue)
}

func TestProgress_NextDueTieBreaksOnNumber(t *testing.T) {
	l, err := GenerateSchedule(ScheduleParams{
		TotalAmount:      900,
		InstallmentCount: 3,
		CadenceMonths:    0,
		StartDate:        date(2024, 5, 1),
	})
	require.NoError(t, err)

	p := Progress(l, date(2024, 4, 1))
	require.NotNil(t, p.NextDue)
	assert.Equal(t, 1, p.NextDue.InstallmentNumber)
	assert.Equal(t, 3, p.PendingInstallments)
}

func TestPortfolio(t *testing.T) {
	open := scenarioLedger(t)

	done, err := GenerateSchedule(ScheduleParams{
		TotalAmount:      1000,
		InstallmentCount: 1,
		StartDate:        date(2024, 1, 1),
	})
	require.NoError(t, err)
	rows := done.Installments()
	rows[0], err = CapturePayment(rows[0], date(2024, 1, 1))
	require.NoError(t, err)
	done, err = New(done.PlanID(), 0, rows)
	require.NoError(t, err)

	s := Portfolio([]*Ledger{open, done}, date(2024, 2, 15))
	assert.Equal(t, 2, s.Plans)
	assert.Equal(t, 1, s.CompletedPlans)
	assert.Equal(t, 1, s.PlansWithOverdue)
	assert.Equal(t, 2, s.OpenInstallments)
	assert.Equal(t, 1, s.OverdueInstallments)
	assert.Equal(t, int64(91000), s.TotalAmount)
	assert.Equal(t, int64(31000), s.PaidAmount)
	assert.Equal(t, int64(30000), s.OverdueAmount)
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0.0, Percentage(10, 0))
	assert.Equal(t, 100.0, Percentage(5, 5))
	assert.Equal(t, 66.67, Percentage(2, 3))
	assert.Equal(t, 0.13, Percentage(1, 800), "half rounds away from zero")
}
