package email

import (
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/installment-service/internal/config"
	"github.com/Dan9191/installment-service/internal/models"
	"github.com/Dan9191/installment-service/internal/utils"
)

var ErrNoRecipient = errors.New("plan has no parent email")

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   func(e *email.Email) error
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	s := &Sender{
		cfg:    cfg,
		logger: logger,
	}
	s.send = s.sendSMTP
	return s
}

// SendInstallmentReminder emails the parent about an upcoming or overdue installment
func (s *Sender) SendInstallmentReminder(c models.ReminderCandidate) error {
	e, err := s.buildReminder(c)
	if err != nil {
		return err
	}

	if err := s.send(e); err != nil {
		s.logger.WithField("installment_id", c.Installment.ID).Errorf("Failed to send email to %s: %v", c.Plan.ParentEmail, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.WithField("installment_id", c.Installment.ID).Infof("Email sent to %s: %s", c.Plan.ParentEmail, e.Subject)
	return nil
}

func (s *Sender) buildReminder(c models.ReminderCandidate) (*email.Email, error) {
	to := strings.TrimSpace(c.Plan.ParentEmail)
	if to == "" {
		return nil, fmt.Errorf("%w: plan %s", ErrNoRecipient, c.Plan.ID)
	}

	overdue := c.Effective == models.StatusOverdue
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	if overdue {
		e.Subject = "Overdue Installment Notification"
	} else {
		e.Subject = "Upcoming Installment Reminder"
	}

	due := c.Installment.DueDate.In(s.location()).Format("2006-01-02")
	plan := "your payment plan"
	if c.Plan.Description != "" {
		plan = fmt.Sprintf("%q", c.Plan.Description)
	}

	// Format email body
	body := fmt.Sprintf("Dear %s,\n\n", c.Plan.ParentName)
	if overdue {
		body += fmt.Sprintf(
			"Installment %d of %s for %s was due on %s and is now overdue.\n"+
				"Please make the payment as soon as possible.\n",
			c.Installment.InstallmentNumber, plan, utils.FormatMinor(c.Installment.Amount),
			due,
		)
	} else {
		body += fmt.Sprintf(
			"This is a reminder that installment %d of %s for %s is due on %s.\n",
			c.Installment.InstallmentNumber, plan, utils.FormatMinor(c.Installment.Amount),
			due,
		)
	}
	body += "\nBest regards,\nBilling Office"
	e.Text = []byte(body)
	return e, nil
}

// location is the zone due dates are written in; rows may come back from the
// database in the session zone.
func (s *Sender) location() *time.Location {
	if s.cfg.Location != nil {
		return s.cfg.Location
	}
	return time.UTC
}

func (s *Sender) sendSMTP(e *email.Email) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	return e.Send(addr, auth)
}
