package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/installment-service/internal/config"
	"github.com/Dan9191/installment-service/internal/ledger"
	"github.com/Dan9191/installment-service/internal/models"
	"github.com/Dan9191/installment-service/internal/repository"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestService(store Store) *Service {
	return NewService(store, quietLogger(), &config.Config{Location: time.UTC})
}

// racingStore runs beforeCommit between the service's read and its commit.
type racingStore struct {
	*repository.MemoryRepository
	beforeCommit func()
}

func (r *racingStore) ReplaceOpenInstallments(ctx context.Context, c repository.ScheduleCommit) error {
	if r.beforeCommit != nil {
		r.beforeCommit()
	}
	return r.MemoryRepository.ReplaceOpenInstallments(ctx, c)
}

func createScenarioPlan(t *testing.T, svc *Service) *PlanDetail {
	t.Helper()
	detail, err := svc.CreatePlan(context.Background(), PlanRequest{
		ParentName:       "Jane Doe",
		ParentEmail:      "jane@example.com",
		TotalAmount:      90000,
		InstallmentCount: 3,
		PlanType:         models.PlanTypeMonthly,
		StartDate:        date(2024, 1, 1),
	}, date(2024, 1, 1))
	require.NoError(t, err)
	return detail
}

func TestCreatePlan_MonthlyDefaults(t *testing.T) {
	svc := newTestService(repository.NewMemoryRepository())
	detail := createScenarioPlan(t, svc)

	assert.Equal(t, 1, detail.Plan.CadenceMonths)
	assert.Equal(t, int64(0), detail.Plan.Revision)
	require.Len(t, detail.Installments, 3)
	for i, inst := range detail.Installments {
		assert.Equal(t, int64(30000), inst.Amount)
		assert.Equal(t, date(2024, time.Month(i+1), 1), inst.DueDate)
		assert.Equal(t, detail.Plan.ID, inst.PlanID)
	}

	stored, err := svc.GetPlan(context.Background(), detail.Plan.ID)
	require.NoError(t, err)
	assert.Equal(t, detail.Installments, stored.Installments)
}

func TestCreatePlan_PlanTypes(t *testing.T) {
	svc := newTestService(repository.NewMemoryRepository())
	ctx := context.Background()
	now := date(2024, 1, 1)

	full, err := svc.CreatePlan(ctx, PlanRequest{
		ParentName: "A", TotalAmount: 5000, InstallmentCount: 6, PlanType: models.PlanTypeFull,
	}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, full.Plan.InstallmentCount)
	require.Len(t, full.Installments, 1)
	assert.Equal(t, int64(5000), full.Installments[0].Amount)
	assert.Equal(t, now, full.Installments[0].DueDate)

	quarterly, err := svc.CreatePlan(ctx, PlanRequest{
		ParentName: "B", TotalAmount: 4000, InstallmentCount: 4, PlanType: models.PlanTypeQuarterly,
		StartDate: date(2024, 1, 15),
	}, now)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 10, 15), quarterly.Installments[3].DueDate)

	_, err = svc.CreatePlan(ctx, PlanRequest{
		ParentName: "C", TotalAmount: 4000, InstallmentCount: 4, PlanType: models.PlanTypeCustom,
	}, now)
	require.ErrorIs(t, err, ledger.ErrInvalidScheduleParameters)

	two := 2
	custom, err := svc.CreatePlan(ctx, PlanRequest{
		ParentName: "C", TotalAmount: 4000, InstallmentCount: 2, PlanType: models.PlanTypeCustom,
		CadenceMonths: &two, StartDate: date(2024, 1, 31),
	}, now)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 3, 31), custom.Installments[1].DueDate)
}

func TestCreatePlan_Invalid(t *testing.T) {
	svc := newTestService(repository.NewMemoryRepository())
	ctx := context.Background()
	now := date(2024, 1, 1)

	_, err := svc.CreatePlan(ctx, PlanRequest{TotalAmount: 100, InstallmentCount: 1}, now)
	require.ErrorIs(t, err, ErrInvalidPlan)

	_, err = svc.CreatePlan(ctx, PlanRequest{ParentName: "A", TotalAmount: 100, InstallmentCount: 1, PlanType: "weekly"}, now)
	require.ErrorIs(t, err, ErrInvalidPlan)

	_, err = svc.CreatePlan(ctx, PlanRequest{ParentName: "A", TotalAmount: 0, InstallmentCount: 1}, now)
	require.ErrorIs(t, err, ledger.ErrInvalidScheduleParameters)

	plans, err := svc.repo.ListPlans(ctx)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestProgress_CaptureScenario(t *testing.T) {
	svc := newTestService(repository.NewMemoryRepository())
	ctx := context.Background()
	detail := createScenarioPlan(t, svc)

	_, err := svc.RecordPaymentCaptured(ctx, detail.Installments[0].ID, date(2024, 1, 1))
	require.NoError(t, err)

	progress, err := svc.GetProgress(ctx, detail.Plan.ID, date(2024, 2, 15))
	require.NoError(t, err)
	assert.Equal(t, 1, progress.PaidInstallments)
	assert.Equal(t, 1, progress.OverdueInstallments)
	assert.Equal(t, 1, progress.PendingInstallments)
	assert.Equal(t, int64(30000), progress.PaidAmount)
	assert.Equal(t, int64(60000), progress.RemainingAmount)
	assert.Equal(t, 33.33, progress.ProgressPercentage)
	require.NotNil(t, progress.NextDue)
	assert.Equal(t, 2, progress.NextDue.InstallmentNumber)

	view, err := svc.ClassifyInstallment(ctx, detail.Installments[1].ID, date(2024, 2, 15))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, view.StoredStatus)
	assert.Equal(t, models.StatusOverdue, view.EffectiveStatus)

	_, err = svc.RecordPaymentCaptured(ctx, detail.Installments[0].ID, date(2024, 1, 2))
	require.ErrorIs(t, err, ledger.ErrInstallmentSettled)

	_, err = svc.GetProgress(ctx, uuid.New(), date(2024, 2, 15))
	require.ErrorIs(t, err, repository.ErrPlanNotFound)
}

func TestModifySchedule_Applies(t *testing.T) {
	svc := newTestService(repository.NewMemoryRepository())
	ctx := context.Background()
	detail := createScenarioPlan(t, svc)
	_, err := svc.RecordPaymentCaptured(ctx, detail.Installments[0].ID, date(2024, 1, 1))
	require.NoError(t, err)

	third := detail.Installments[2].ID
	out, err := svc.ModifySchedule(ctx, detail.Plan.ID, []ledger.Replacement{
		{Amount: 20000, DueDate: date(2024, 2, 15)},
		{InstallmentID: &third, Amount: 40000, DueDate: date(2024, 3, 15)},
	}, ledger.ModifyOptions{}, date(2024, 1, 20))
	require.NoError(t, err)

	assert.Equal(t, int64(1), out.Plan.Revision)
	require.Len(t, out.Installments, 3)
	assert.Equal(t, detail.Installments[0].ID, out.Installments[0].ID)
	assert.Equal(t, models.StatusPaid, out.Installments[0].Status)
	assert.Equal(t, int64(20000), out.Installments[1].Amount)
	assert.Equal(t, 2, out.Installments[1].InstallmentNumber)
	assert.Equal(t, third, out.Installments[2].ID)
	assert.Equal(t, 3, out.Installments[2].InstallmentNumber)

	_, err = svc.repo.GetInstallment(ctx, detail.Installments[1].ID)
	require.ErrorIs(t, err, repository.ErrInstallmentNotFound)
}

func TestModifySchedule_RejectsPaidRow(t *testing.T) {
	svc := newTestService(repository.NewMemoryRepository())
	ctx := context.Background()
	detail := createScenarioPlan(t, svc)
	paid := detail.Installments[0].ID
	_, err := svc.RecordPaymentCaptured(ctx, paid, date(2024, 1, 1))
	require.NoError(t, err)

	_, err = svc.ModifySchedule(ctx, detail.Plan.ID, []ledger.Replacement{
		{InstallmentID: &paid, Amount: 15000, DueDate: date(2024, 1, 1)},
	}, ledger.ModifyOptions{}, date(2024, 1, 20))
	require.ErrorIs(t, err, ledger.ErrImmutableInstallment)

	after, err := svc.GetPlan(ctx, detail.Plan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.Plan.Revision)
	assert.Equal(t, int64(30000), after.Installments[0].Amount)
}

func TestModifySchedule_ConcurrentCapture(t *testing.T) {
	store := &racingStore{MemoryRepository: repository.NewMemoryRepository()}
	svc := newTestService(store)
	ctx := context.Background()
	detail := createScenarioPlan(t, svc)
	first := detail.Installments[0].ID

	store.beforeCommit = func() {
		_, err := svc.RecordPaymentCaptured(ctx, first, date(2024, 1, 2))
		require.NoError(t, err)
	}

	_, err := svc.ModifySchedule(ctx, detail.Plan.ID, []ledger.Replacement{
		{InstallmentID: &first, Amount: 90000, DueDate: date(2024, 1, 5)},
	}, ledger.ModifyOptions{}, date(2024, 1, 2))
	require.ErrorIs(t, err, ledger.ErrConcurrentModification)

	after, err := svc.GetPlan(ctx, detail.Plan.ID)
	require.NoError(t, err)
	require.Len(t, after.Installments, 3)
	assert.Equal(t, models.StatusPaid, after.Installments[0].Status)
	assert.Equal(t, int64(30000), after.Installments[0].Amount)
	assert.Equal(t, int64(0), after.Plan.Revision)
}

func TestModifySchedule_ConcurrentModification(t *testing.T) {
	store := &racingStore{MemoryRepository: repository.NewMemoryRepository()}
	svc := newTestService(store)
	ctx := context.Background()
	detail := createScenarioPlan(t, svc)
	rows := []ledger.Replacement{{Amount: 90000, DueDate: date(2024, 6, 1)}}

	store.beforeCommit = func() {
		store.beforeCommit = nil
		_, err := svc.ModifySchedule(ctx, detail.Plan.ID, rows, ledger.ModifyOptions{}, date(2024, 1, 2))
		require.NoError(t, err)
	}

	_, err := svc.ModifySchedule(ctx, detail.Plan.ID, rows, ledger.ModifyOptions{}, date(2024, 1, 2))
	require.ErrorIs(t, err, ledger.ErrConcurrentModification)

	after, err := svc.GetPlan(ctx, detail.Plan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), after.Plan.Revision)
	require.Len(t, after.Installments, 1)
}

func TestRecordReminderDispatch(t *testing.T) {
	svc := newTestService(repository.NewMemoryRepository())
	ctx := context.Background()
	detail := createScenarioPlan(t, svc)
	id := detail.Installments[1].ID

	for i := 0; i < 2; i++ {
		_, err := svc.RecordReminderDispatch(ctx, id, "email", date(2024, 1, 29).Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}
	inst, err := svc.RecordReminderDispatch(ctx, id, "sms", date(2024, 1, 30))
	require.NoError(t, err)
	assert.Equal(t, 3, inst.RemindersSent)
	assert.Equal(t, "sms", inst.LastReminderChannel)
	assert.Equal(t, models.StatusPending, inst.Status)

	_, err = svc.RecordReminderDispatch(ctx, id, " ", date(2024, 1, 30))
	require.ErrorIs(t, err, ledger.ErrInvalidChannel)
	_, err = svc.RecordReminderDispatch(ctx, uuid.New(), "email", date(2024, 1, 30))
	require.ErrorIs(t, err, repository.ErrInstallmentNotFound)
}

func TestRecordPaymentFailed(t *testing.T) {
	svc := newTestService(repository.NewMemoryRepository())
	ctx := context.Background()
	detail := createScenarioPlan(t, svc)
	id := detail.Installments[0].ID

	inst, err := svc.RecordPaymentFailed(ctx, id, date(2024, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, inst.Status)

	_, err = svc.RecordPaymentCaptured(ctx, id, date(2024, 1, 4))
	require.ErrorIs(t, err, ledger.ErrInstallmentSettled)

	progress, err := svc.GetProgress(ctx, detail.Plan.ID, date(2024, 1, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, progress.FailedInstallments)
	assert.Equal(t, int64(0), progress.PaidAmount)
}

func TestDashboardAndReminderCandidates(t *testing.T) {
	svc := newTestService(repository.NewMemoryRepository())
	ctx := context.Background()
	first := createScenarioPlan(t, svc)
	second := createScenarioPlan(t, svc)

	for _, inst := range first.Installments {
		_, err := svc.RecordPaymentCaptured(ctx, inst.ID, date(2024, 1, 1))
		require.NoError(t, err)
	}

	summary, err := svc.Dashboard(ctx, date(2024, 1, 30))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Plans)
	assert.Equal(t, 1, summary.CompletedPlans)
	assert.Equal(t, 1, summary.PlansWithOverdue)
	assert.Equal(t, 1, summary.OverdueInstallments)
	assert.Equal(t, int64(90000), summary.PaidAmount)

	candidates, err := svc.ReminderCandidates(ctx, date(2024, 1, 30), 3)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, second.Installments[0].ID, candidates[0].Installment.ID)
	assert.Equal(t, models.StatusOverdue, candidates[0].Effective)
	assert.Equal(t, second.Installments[1].ID, candidates[1].Installment.ID)
	assert.Equal(t, models.StatusPending, candidates[1].Effective)
	assert.Equal(t, "jane@example.com", candidates[1].Plan.ParentEmail)

	candidates, err = svc.ReminderCandidates(ctx, date(2024, 1, 30), 0)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
}

func TestGetProgress_MalformedLedger(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	planID := uuid.New()
	plan := &models.PaymentPlan{ID: planID, ParentName: "X", TotalAmount: 200, InstallmentCount: 2}
	rows := []models.Installment{
		{ID: uuid.New(), PlanID: planID, InstallmentNumber: 1, Amount: 100, DueDate: date(2024, 1, 1), Status: models.StatusPending},
		{ID: uuid.New(), PlanID: planID, InstallmentNumber: 1, Amount: 100, DueDate: date(2024, 2, 1), Status: models.StatusPending},
	}
	require.NoError(t, repo.CreatePlan(ctx, plan, rows))

	_, err := svc.GetProgress(ctx, planID, date(2024, 1, 15))
	require.ErrorIs(t, err, ledger.ErrMalformedLedger)
	_, err = svc.Dashboard(ctx, date(2024, 1, 15))
	require.ErrorIs(t, err, ledger.ErrMalformedLedger)
}

// utcStore hands rows back in UTC, as a database session in UTC does.
type utcStore struct {
	*repository.MemoryRepository
}

func toUTC(rows []models.Installment) []models.Installment {
	for i := range rows {
		rows[i].DueDate = rows[i].DueDate.UTC()
	}
	return rows
}

func (u utcStore) ListInstallments(ctx context.Context, planID uuid.UUID) ([]models.Installment, error) {
	rows, err := u.MemoryRepository.ListInstallments(ctx, planID)
	return toUTC(rows), err
}

func (u utcStore) ListActiveInstallments(ctx context.Context) ([]models.Installment, error) {
	rows, err := u.MemoryRepository.ListActiveInstallments(ctx)
	return toUTC(rows), err
}

func TestReminderCandidates_DueDatesInServiceZone(t *testing.T) {
	msk := time.FixedZone("MSK", 3*3600)
	svc := NewService(utcStore{repository.NewMemoryRepository()}, quietLogger(), &config.Config{Location: msk})
	ctx := context.Background()

	_, err := svc.CreatePlan(ctx, PlanRequest{
		ParentName:       "Jane Doe",
		ParentEmail:      "jane@example.com",
		TotalAmount:      90000,
		InstallmentCount: 3,
		PlanType:         models.PlanTypeMonthly,
		StartDate:        time.Date(2024, 3, 1, 0, 0, 0, 0, msk),
	}, time.Date(2024, 2, 20, 12, 0, 0, 0, msk))
	require.NoError(t, err)

	candidates, err := svc.ReminderCandidates(ctx, time.Date(2024, 2, 28, 12, 0, 0, 0, msk), 3)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	due := candidates[0].Installment.DueDate
	assert.Equal(t, msk, due.Location())
	assert.Equal(t, "2024-03-01", due.Format("2006-01-02"))
}
