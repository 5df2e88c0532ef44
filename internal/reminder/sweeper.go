package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/installment-service/internal/config"
	"github.com/Dan9191/installment-service/internal/models"
)

var ErrSweepInProgress = errors.New("reminder sweep already running")

// Channel is recorded against installments reminded by the sweep.
const Channel = "email"

// Notifier delivers one reminder.
type Notifier interface {
	SendInstallmentReminder(c models.ReminderCandidate) error
}

// Ledger is the part of the service the sweep reads from and records to.
type Ledger interface {
	ReminderCandidates(ctx context.Context, now time.Time, leadDays int) ([]models.ReminderCandidate, error)
	RecordReminderDispatch(ctx context.Context, id uuid.UUID, channel string, at time.Time) (*models.Installment, error)
}

// Result counts what one sweep did.
type Result struct {
	Candidates int
	Sent       int
	Throttled  int
	Failed     int
}

// Sweeper sends reminders for installments that are overdue or coming due,
// at most once per MinInterval per installment. A reminder is recorded only
// after the notifier accepted it.
type Sweeper struct {
	ledger      Ledger
	notifier    Notifier
	log         *logrus.Logger
	leadDays    int
	minInterval time.Duration
	now         func() time.Time

	// held for the whole of a sweep
	running sync.Mutex
}

func NewSweeper(ledger Ledger, notifier Notifier, log *logrus.Logger, cfg *config.Config) *Sweeper {
	return &Sweeper{
		ledger:      ledger,
		notifier:    notifier,
		log:         log,
		leadDays:    cfg.ReminderLeadDays,
		minInterval: cfg.ReminderMinInterval,
		now:         time.Now,
	}
}

// Schedule registers the sweep on c under the given cron spec. A tick that
// fires while the previous sweep is still running is skipped.
func (s *Sweeper) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	job := cron.FuncJob(func() {
		if _, err := s.Run(ctx); err != nil {
			s.log.Errorf("Reminder sweep failed: %v", err)
		}
	})
	chain := cron.NewChain(cron.SkipIfStillRunning(cron.PrintfLogger(s.log)))
	return c.AddJob(spec, chain.Then(job))
}

// Run performs one sweep at the current time. It returns ErrSweepInProgress
// without doing anything if another sweep is running.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	if !s.running.TryLock() {
		return Result{}, ErrSweepInProgress
	}
	defer s.running.Unlock()

	now := s.now()
	var res Result

	candidates, err := s.ledger.ReminderCandidates(ctx, now, s.leadDays)
	if err != nil {
		return res, err
	}
	res.Candidates = len(candidates)

	for _, c := range candidates {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		logger := s.log.WithFields(logrus.Fields{
			"plan_id":        c.Plan.ID,
			"installment_id": c.Installment.ID,
		})

		if last := c.Installment.LastReminderAt; last != nil && now.Sub(*last) < s.minInterval {
			res.Throttled++
			continue
		}
		if err := s.notifier.SendInstallmentReminder(c); err != nil {
			logger.Warnf("Reminder not delivered: %v", err)
			res.Failed++
			continue
		}
		if _, err := s.ledger.RecordReminderDispatch(ctx, c.Installment.ID, Channel, now); err != nil {
			logger.Errorf("Reminder delivered but not recorded: %v", err)
			res.Failed++
			continue
		}
		res.Sent++
	}

	s.log.WithFields(logrus.Fields{
		"candidates": res.Candidates,
		"sent":       res.Sent,
		"throttled":  res.Throttled,
		"failed":     res.Failed,
	}).Info("Reminder sweep finished")
	return res, nil
}
