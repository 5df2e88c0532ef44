package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Dan9191/installment-service/internal/ledger"
	"github.com/Dan9191/installment-service/internal/models"
)

type memoryInstallment struct {
	models.Installment
	superseded bool
}

// MemoryRepository keeps plans and installments in process memory. One
// mutex stands in for the plan row lock of the Postgres store.
type MemoryRepository struct {
	mu           sync.Mutex
	plans        map[uuid.UUID]models.PaymentPlan
	installments map[uuid.UUID]*memoryInstallment
	order        []uuid.UUID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		plans:        make(map[uuid.UUID]models.PaymentPlan),
		installments: make(map[uuid.UUID]*memoryInstallment),
	}
}

func (m *MemoryRepository) CreatePlan(_ context.Context, plan *models.PaymentPlan, rows []models.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.plans[plan.ID]; ok {
		return fmt.Errorf("failed to create plan: duplicate id %s", plan.ID)
	}
	for _, inst := range rows {
		if _, ok := m.installments[inst.ID]; ok {
			return fmt.Errorf("failed to create installment %d: duplicate id %s", inst.InstallmentNumber, inst.ID)
		}
	}

	m.plans[plan.ID] = *plan
	m.order = append(m.order, plan.ID)
	for _, inst := range rows {
		m.installments[inst.ID] = &memoryInstallment{Installment: inst.Clone()}
	}
	return nil
}

func (m *MemoryRepository) GetPlan(_ context.Context, id uuid.UUID) (*models.PaymentPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, ok := m.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return &plan, nil
}

func (m *MemoryRepository) ListPlans(_ context.Context) ([]models.PaymentPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plans := make([]models.PaymentPlan, 0, len(m.order))
	for _, id := range m.order {
		plans = append(plans, m.plans[id])
	}
	return plans, nil
}

func (m *MemoryRepository) ListInstallments(_ context.Context, planID uuid.UUID) ([]models.Installment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active(planID), nil
}

func (m *MemoryRepository) ListActiveInstallments(_ context.Context) ([]models.Installment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Installment
	for _, id := range m.order {
		out = append(out, m.active(id)...)
	}
	return out, nil
}

func (m *MemoryRepository) GetInstallment(_ context.Context, id uuid.UUID) (*models.Installment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.installments[id]
	if !ok || row.superseded {
		return nil, ErrInstallmentNotFound
	}
	inst := row.Clone()
	return &inst, nil
}

func (m *MemoryRepository) ReplaceOpenInstallments(_ context.Context, c ScheduleCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, ok := m.plans[c.PlanID]
	if !ok {
		return ErrPlanNotFound
	}
	if plan.Revision != c.ExpectedRevision {
		return fmt.Errorf("%w: plan %s is at revision %d, expected %d",
			ledger.ErrConcurrentModification, c.PlanID, plan.Revision, c.ExpectedRevision)
	}
	if ledger.FingerprintOf(m.active(c.PlanID)) != c.SettledFingerprint {
		return fmt.Errorf("%w: settled installments of plan %s changed", ledger.ErrConcurrentModification, c.PlanID)
	}

	for _, id := range c.Superseded {
		if row, ok := m.installments[id]; ok && row.PlanID == c.PlanID {
			row.superseded = true
			row.UpdatedAt = c.At
		}
	}
	for _, inst := range c.Open {
		row, ok := m.installments[inst.ID]
		if !ok {
			m.installments[inst.ID] = &memoryInstallment{Installment: inst.Clone()}
			continue
		}
		// Lifecycle fields stay as stored; only the schedule shape is replaced.
		row.InstallmentNumber = inst.InstallmentNumber
		row.Amount = inst.Amount
		row.DueDate = inst.DueDate
		row.IsInGracePeriod = inst.IsInGracePeriod
		row.GracePeriodEnd = inst.Clone().GracePeriodEnd
		row.UpdatedAt = inst.UpdatedAt
	}

	plan.Revision++
	plan.UpdatedAt = c.At
	m.plans[c.PlanID] = plan
	return nil
}

func (m *MemoryRepository) UpdateInstallment(_ context.Context, id uuid.UUID, fn InstallmentUpdate) (*models.Installment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.installments[id]
	if !ok || row.superseded {
		return nil, ErrInstallmentNotFound
	}
	updated, err := fn(row.Clone())
	if err != nil {
		return nil, err
	}

	row.Status = updated.Status
	row.PaidAt = updated.PaidAt
	row.FailedAt = updated.FailedAt
	row.RemindersSent = updated.RemindersSent
	row.LastReminderAt = updated.LastReminderAt
	row.LastReminderChannel = updated.LastReminderChannel
	row.UpdatedAt = updated.UpdatedAt

	out := row.Clone()
	return &out, nil
}

// active must be called with mu held.
func (m *MemoryRepository) active(planID uuid.UUID) []models.Installment {
	var out []models.Installment
	for _, row := range m.installments {
		if row.PlanID == planID && !row.superseded {
			out = append(out, row.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].InstallmentNumber < out[j].InstallmentNumber
	})
	return out
}
