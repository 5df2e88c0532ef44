package email

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/installment-service/internal/config"
	"github.com/Dan9191/installment-service/internal/models"
)

func testSender(send func(*email.Email) error) *Sender {
	log := logrus.New()
	log.SetOutput(io.Discard)
	s := NewSender(&config.Config{SenderEmail: "billing@school.test"}, log)
	s.send = send
	return s
}

func candidate(status models.InstallmentStatus) models.ReminderCandidate {
	return models.ReminderCandidate{
		Plan: models.PaymentPlan{
			ID:          uuid.New(),
			ParentName:  "Jane Doe",
			ParentEmail: "jane@example.com",
			Description: "Spring term",
		},
		Installment: models.Installment{
			ID:                uuid.New(),
			InstallmentNumber: 2,
			Amount:            30050,
			DueDate:           time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		Effective: status,
	}
}

func TestSendInstallmentReminder_Upcoming(t *testing.T) {
	var sent *email.Email
	s := testSender(func(e *email.Email) error {
		sent = e
		return nil
	})

	require.NoError(t, s.SendInstallmentReminder(candidate(models.StatusPending)))
	require.NotNil(t, sent)
	assert.Equal(t, []string{"jane@example.com"}, sent.To)
	assert.Equal(t, "billing@school.test", sent.From)
	assert.Equal(t, "Upcoming Installment Reminder", sent.Subject)
	body := string(sent.Text)
	assert.Contains(t, body, "Dear Jane Doe")
	assert.Contains(t, body, `installment 2 of "Spring term" for 300.50 is due on 2024-02-01`)
}

func TestSendInstallmentReminder_Overdue(t *testing.T) {
	var sent *email.Email
	s := testSender(func(e *email.Email) error {
		sent = e
		return nil
	})

	require.NoError(t, s.SendInstallmentReminder(candidate(models.StatusOverdue)))
	assert.Equal(t, "Overdue Installment Notification", sent.Subject)
	assert.Contains(t, string(sent.Text), "is now overdue")
}

func TestSendInstallmentReminder_DueDateInConfiguredZone(t *testing.T) {
	var sent *email.Email
	log := logrus.New()
	log.SetOutput(io.Discard)
	s := NewSender(&config.Config{SenderEmail: "billing@school.test", Location: time.FixedZone("MSK", 3*3600)}, log)
	s.send = func(e *email.Email) error {
		sent = e
		return nil
	}

	// Midnight Moscow time as a UTC session returns it.
	c := candidate(models.StatusPending)
	c.Installment.DueDate = time.Date(2024, 2, 29, 21, 0, 0, 0, time.UTC)

	require.NoError(t, s.SendInstallmentReminder(c))
	assert.Contains(t, string(sent.Text), "is due on 2024-03-01")
}

func TestSendInstallmentReminder_Errors(t *testing.T) {
	s := testSender(func(*email.Email) error { return errors.New("connection refused") })
	err := s.SendInstallmentReminder(candidate(models.StatusPending))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	c := candidate(models.StatusPending)
	c.Plan.ParentEmail = " "
	called := false
	s = testSender(func(*email.Email) error { called = true; return nil })
	require.ErrorIs(t, s.SendInstallmentReminder(c), ErrNoRecipient)
	assert.False(t, called)
}
