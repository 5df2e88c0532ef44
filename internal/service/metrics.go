package service

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics
var (
	scheduleModificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "installments_schedule_modifications_total",
		Help: "Schedule modifications, labeled by result",
	}, []string{"result"})

	remindersRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "installments_reminders_recorded_total",
		Help: "Reminder dispatches recorded, labeled by channel",
	}, []string{"channel"})

	paymentOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "installments_payment_outcomes_total",
		Help: "Payment outcomes recorded against installments",
	}, []string{"outcome"})
)

// metricChannels bounds the channel label; the channel itself is free text.
var metricChannels = map[string]bool{
	"email": true,
	"sms":   true,
	"push":  true,
	"phone": true,
	"mail":  true,
}

func channelLabel(channel string) string {
	c := strings.ToLower(strings.TrimSpace(channel))
	if metricChannels[c] {
		return c
	}
	return "other"
}
