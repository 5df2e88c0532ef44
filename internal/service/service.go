package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/installment-service/internal/config"
	"github.com/Dan9191/installment-service/internal/ledger"
	"github.com/Dan9191/installment-service/internal/models"
	"github.com/Dan9191/installment-service/internal/repository"
)

var ErrInvalidPlan = errors.New("invalid plan request")

// Store is the persistence the service needs. Both repository.Repository
// and repository.MemoryRepository satisfy it.
type Store interface {
	CreatePlan(ctx context.Context, plan *models.PaymentPlan, rows []models.Installment) error
	GetPlan(ctx context.Context, id uuid.UUID) (*models.PaymentPlan, error)
	ListPlans(ctx context.Context) ([]models.PaymentPlan, error)
	ListInstallments(ctx context.Context, planID uuid.UUID) ([]models.Installment, error)
	ListActiveInstallments(ctx context.Context) ([]models.Installment, error)
	GetInstallment(ctx context.Context, id uuid.UUID) (*models.Installment, error)
	ReplaceOpenInstallments(ctx context.Context, c repository.ScheduleCommit) error
	UpdateInstallment(ctx context.Context, id uuid.UUID, fn repository.InstallmentUpdate) (*models.Installment, error)
}

// PlanRequest describes a new payment plan. A nil CadenceMonths means the
// plan type picks the cadence.
type PlanRequest struct {
	ParentName       string
	ParentEmail      string
	TotalAmount      int64
	InstallmentCount int
	CadenceMonths    *int
	PlanType         models.PlanType
	Description      string
	StartDate        time.Time
}

// PlanDetail is a plan together with its active installments.
type PlanDetail struct {
	Plan         models.PaymentPlan   `json:"plan"`
	Installments []models.Installment `json:"installments"`
}

// StatusView is the effective status of one installment at an instant.
type StatusView struct {
	InstallmentID   uuid.UUID                `json:"installment_id"`
	PlanID          uuid.UUID                `json:"plan_id"`
	StoredStatus    models.InstallmentStatus `json:"stored_status"`
	EffectiveStatus models.InstallmentStatus `json:"effective_status"`
	InGracePeriod   bool                     `json:"in_grace_period"`
	AsOf            time.Time                `json:"as_of"`
}

// Service handles business logic
type Service struct {
	repo Store
	log  *logrus.Logger
	loc  *time.Location
}

// NewService initializes a new service
func NewService(repo Store, log *logrus.Logger, cfg *config.Config) *Service {
	loc := time.UTC
	if cfg != nil && cfg.Location != nil {
		loc = cfg.Location
	}
	return &Service{repo: repo, log: log, loc: loc}
}

// Location is the zone date-only values are interpreted in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// CreatePlan generates the installment schedule for a new plan and stores
// both atomically.
func (s *Service) CreatePlan(ctx context.Context, req PlanRequest, now time.Time) (*PlanDetail, error) {
	req.ParentName = strings.TrimSpace(req.ParentName)
	if req.ParentName == "" {
		return nil, fmt.Errorf("%w: parent name is required", ErrInvalidPlan)
	}
	if req.PlanType == "" {
		req.PlanType = models.PlanTypeMonthly
	}
	if !req.PlanType.Valid() {
		return nil, fmt.Errorf("%w: unknown plan type %q", ErrInvalidPlan, req.PlanType)
	}

	var cadence int
	if req.CadenceMonths != nil {
		cadence = *req.CadenceMonths
	} else {
		var ok bool
		if cadence, ok = req.PlanType.DefaultCadence(); !ok {
			return nil, fmt.Errorf("%w: %s plans need an explicit cadence", ledger.ErrInvalidScheduleParameters, req.PlanType)
		}
	}
	count := req.InstallmentCount
	if req.PlanType == models.PlanTypeFull {
		count = 1
		cadence = 0
	}

	start := req.StartDate
	if start.IsZero() {
		start = now
	}

	l, err := ledger.GenerateSchedule(ledger.ScheduleParams{
		TotalAmount:      req.TotalAmount,
		InstallmentCount: count,
		CadenceMonths:    cadence,
		StartDate:        start.In(s.loc),
		CreatedAt:        now,
	})
	if err != nil {
		return nil, err
	}

	plan := &models.PaymentPlan{
		ID:               l.PlanID(),
		ParentName:       req.ParentName,
		ParentEmail:      strings.TrimSpace(req.ParentEmail),
		TotalAmount:      req.TotalAmount,
		InstallmentCount: count,
		CadenceMonths:    cadence,
		PlanType:         req.PlanType,
		Description:      req.Description,
		StartDate:        ledger.DateOf(start.In(s.loc)),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	rows := l.Installments()
	if err := s.repo.CreatePlan(ctx, plan, rows); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"plan_id":      plan.ID,
		"plan_type":    plan.PlanType,
		"installments": count,
	}).Info("Payment plan created")
	return &PlanDetail{Plan: *plan, Installments: rows}, nil
}

// GetPlan returns a plan with its active installments
func (s *Service) GetPlan(ctx context.Context, id uuid.UUID) (*PlanDetail, error) {
	plan, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	l, err := s.ledgerFor(ctx, plan)
	if err != nil {
		return nil, err
	}
	return &PlanDetail{Plan: *plan, Installments: l.Installments()}, nil
}

// GetLedger loads and validates the ledger of a plan
func (s *Service) GetLedger(ctx context.Context, planID uuid.UUID) (*ledger.Ledger, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	return s.ledgerFor(ctx, plan)
}

// ledgerFor reads the rows after the plan, so a concurrent commit can only
// make the revision look older than the rows, never newer.
func (s *Service) ledgerFor(ctx context.Context, plan *models.PaymentPlan) (*ledger.Ledger, error) {
	rows, err := s.repo.ListInstallments(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	l, err := ledger.New(plan.ID, plan.Revision, s.localize(rows))
	if err != nil {
		s.log.WithField("plan_id", plan.ID).Errorf("Ledger failed validation: %v", err)
		return nil, err
	}
	return l, nil
}

// localize moves due dates into the service zone. The database hands
// dates back in its session zone, which may differ.
func (s *Service) localize(rows []models.Installment) []models.Installment {
	for i := range rows {
		rows[i].DueDate = rows[i].DueDate.In(s.loc)
	}
	return rows
}

// GetProgress rolls up a plan's ledger at now
func (s *Service) GetProgress(ctx context.Context, planID uuid.UUID, now time.Time) (*models.ProgressSummary, error) {
	l, err := s.GetLedger(ctx, planID)
	if err != nil {
		return nil, err
	}
	summary := ledger.Progress(l, now)
	return &summary, nil
}

// ClassifyInstallment reports the effective status of one installment
func (s *Service) ClassifyInstallment(ctx context.Context, id uuid.UUID, now time.Time) (*StatusView, error) {
	inst, err := s.repo.GetInstallment(ctx, id)
	if err != nil {
		return nil, err
	}
	inst.DueDate = inst.DueDate.In(s.loc)
	return &StatusView{
		InstallmentID:   inst.ID,
		PlanID:          inst.PlanID,
		StoredStatus:    inst.Status,
		EffectiveStatus: ledger.ClassifyStatus(*inst, now),
		InGracePeriod:   ledger.InGracePeriod(*inst, now),
		AsOf:            now,
	}, nil
}

// ModifySchedule replaces the open part of a plan's ledger. The change is
// computed from one read and committed only if nothing settled or
// modified the plan in between; otherwise ErrConcurrentModification is
// returned and nothing is written.
func (s *Service) ModifySchedule(ctx context.Context, planID uuid.UUID, rows []ledger.Replacement, opts ledger.ModifyOptions, now time.Time) (*PlanDetail, error) {
	logger := s.log.WithField("plan_id", planID)

	l, err := s.GetLedger(ctx, planID)
	if err != nil {
		return nil, err
	}
	local := make([]ledger.Replacement, len(rows))
	for i, row := range rows {
		row.DueDate = row.DueDate.In(s.loc)
		local[i] = row
	}

	mod, err := ledger.ModifySchedule(l, local, now, opts)
	if err != nil {
		scheduleModificationsTotal.WithLabelValues("rejected").Inc()
		logger.Warnf("Schedule modification rejected: %v", err)
		return nil, err
	}

	err = s.repo.ReplaceOpenInstallments(ctx, repository.ScheduleCommit{
		PlanID:             planID,
		ExpectedRevision:   mod.BaseRevision,
		SettledFingerprint: mod.SettledFingerprint,
		Open:               mod.Open,
		Superseded:         mod.Superseded,
		At:                 now,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrConcurrentModification) {
			scheduleModificationsTotal.WithLabelValues("conflict").Inc()
			logger.Warnf("Schedule modification lost a race: %v", err)
		}
		return nil, err
	}

	scheduleModificationsTotal.WithLabelValues("applied").Inc()
	logger.WithFields(logrus.Fields{
		"open":       len(mod.Open),
		"superseded": len(mod.Superseded),
		"revision":   mod.Ledger.Revision(),
	}).Info("Payment schedule modified")
	return s.GetPlan(ctx, planID)
}

// RecordPaymentCaptured marks an open installment paid
func (s *Service) RecordPaymentCaptured(ctx context.Context, id uuid.UUID, paidAt time.Time) (*models.Installment, error) {
	inst, err := s.repo.UpdateInstallment(ctx, id, func(inst models.Installment) (models.Installment, error) {
		return ledger.CapturePayment(inst, paidAt)
	})
	if err != nil {
		return nil, err
	}
	paymentOutcomesTotal.WithLabelValues("captured").Inc()
	s.log.WithFields(logrus.Fields{
		"plan_id":        inst.PlanID,
		"installment_id": inst.ID,
	}).Info("Payment captured")
	return inst, nil
}

// RecordPaymentFailed marks an open installment failed
func (s *Service) RecordPaymentFailed(ctx context.Context, id uuid.UUID, failedAt time.Time) (*models.Installment, error) {
	inst, err := s.repo.UpdateInstallment(ctx, id, func(inst models.Installment) (models.Installment, error) {
		return ledger.FailPayment(inst, failedAt)
	})
	if err != nil {
		return nil, err
	}
	paymentOutcomesTotal.WithLabelValues("failed").Inc()
	s.log.WithFields(logrus.Fields{
		"plan_id":        inst.PlanID,
		"installment_id": inst.ID,
	}).Warn("Payment failed")
	return inst, nil
}

// RecordReminderDispatch counts a reminder sent for an installment
func (s *Service) RecordReminderDispatch(ctx context.Context, id uuid.UUID, channel string, at time.Time) (*models.Installment, error) {
	inst, err := s.repo.UpdateInstallment(ctx, id, func(inst models.Installment) (models.Installment, error) {
		return ledger.RecordReminder(inst, channel, at)
	})
	if err != nil {
		return nil, err
	}
	remindersRecordedTotal.WithLabelValues(channelLabel(inst.LastReminderChannel)).Inc()
	s.log.WithFields(logrus.Fields{
		"plan_id":        inst.PlanID,
		"installment_id": inst.ID,
		"channel":        inst.LastReminderChannel,
		"reminders_sent": inst.RemindersSent,
	}).Info("Reminder recorded")
	return inst, nil
}

// Dashboard aggregates every plan's ledger at now
func (s *Service) Dashboard(ctx context.Context, now time.Time) (*models.PortfolioSummary, error) {
	plans, ledgers, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	summary := ledger.Portfolio(ledgers, now)
	s.log.Debugf("Dashboard built over %d plans", len(plans))
	return &summary, nil
}

// ReminderCandidates lists open installments that are overdue at now or
// fall due within leadDays of it, earliest first.
func (s *Service) ReminderCandidates(ctx context.Context, now time.Time, leadDays int) ([]models.ReminderCandidate, error) {
	plans, ledgers, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	horizon := ledger.DateOf(now.In(s.loc)).AddDate(0, 0, leadDays+1)

	var out []models.ReminderCandidate
	for i, l := range ledgers {
		for _, inst := range l.SortedByDueDate() {
			status := ledger.ClassifyStatus(inst, now)
			if !ledger.IsOpen(status) {
				continue
			}
			if status == models.StatusPending && !inst.DueDate.Before(horizon) {
				continue
			}
			out = append(out, models.ReminderCandidate{
				Plan:        plans[i],
				Installment: inst,
				Effective:   status,
			})
		}
	}
	return out, nil
}

func (s *Service) loadAll(ctx context.Context) ([]models.PaymentPlan, []*ledger.Ledger, error) {
	plans, err := s.repo.ListPlans(ctx)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.repo.ListActiveInstallments(ctx)
	if err != nil {
		return nil, nil, err
	}
	byPlan := make(map[uuid.UUID][]models.Installment, len(plans))
	for _, inst := range s.localize(rows) {
		byPlan[inst.PlanID] = append(byPlan[inst.PlanID], inst)
	}

	ledgers := make([]*ledger.Ledger, 0, len(plans))
	for _, plan := range plans {
		l, err := ledger.New(plan.ID, plan.Revision, byPlan[plan.ID])
		if err != nil {
			s.log.WithField("plan_id", plan.ID).Errorf("Ledger failed validation: %v", err)
			return nil, nil, err
		}
		ledgers = append(ledgers, l)
	}
	return plans, ledgers, nil
}
