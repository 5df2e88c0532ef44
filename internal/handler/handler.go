package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/installment-service/internal/ledger"
	"github.com/Dan9191/installment-service/internal/middleware"
	"github.com/Dan9191/installment-service/internal/models"
	"github.com/Dan9191/installment-service/internal/repository"
	"github.com/Dan9191/installment-service/internal/service"
)

type Handler struct {
	svc *service.Service
	log *logrus.Logger
	now func() time.Time
}

func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log, now: time.Now}
}

type createPlanRequest struct {
	ParentName       string          `json:"parent_name"`
	ParentEmail      string          `json:"parent_email"`
	TotalAmount      int64           `json:"total_amount"`
	InstallmentCount int             `json:"installment_count"`
	CadenceMonths    *int            `json:"cadence_months"`
	PlanType         models.PlanType `json:"plan_type"`
	Description      string          `json:"description"`
	StartDate        string          `json:"start_date"`
}

type scheduleRow struct {
	InstallmentID     *uuid.UUID `json:"installment_id"`
	Amount            int64      `json:"amount"`
	DueDate           string     `json:"due_date"`
	InstallmentNumber int        `json:"installment_number"`
	GracePeriodEnd    string     `json:"grace_period_end"`
}

type modifyScheduleRequest struct {
	Rows        []scheduleRow `json:"rows"`
	CloseLedger bool          `json:"close_ledger"`
}

type captureRequest struct {
	PaidAt string `json:"paid_at"`
}

type failureRequest struct {
	FailedAt string `json:"failed_at"`
}

type reminderRequest struct {
	Channel string `json:"channel"`
	SentAt  string `json:"sent_at"`
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreatePlan generates and stores a new payment plan
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := parseTime(req.StartDate, h.svc.Location())
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "INVALID_START_DATE", err.Error())
		return
	}

	detail, err := h.svc.CreatePlan(r.Context(), service.PlanRequest{
		ParentName:       req.ParentName,
		ParentEmail:      req.ParentEmail,
		TotalAmount:      req.TotalAmount,
		InstallmentCount: req.InstallmentCount,
		CadenceMonths:    req.CadenceMonths,
		PlanType:         req.PlanType,
		Description:      req.Description,
		StartDate:        start,
	}, h.now())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.audit(r).WithField("plan_id", detail.Plan.ID).Info("Plan created via API")
	w.Header().Set("Location", fmt.Sprintf("/api/v1/plans/%s", detail.Plan.ID))
	respondJSON(w, http.StatusCreated, detail)
}

// GetPlan returns a plan with its installments
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.svc.GetPlan(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// GetProgress returns the progress summary of a plan
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	at, ok := h.asOf(w, r)
	if !ok {
		return
	}
	summary, err := h.svc.GetProgress(r.Context(), id, at)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// ModifySchedule replaces the open installments of a plan
func (h *Handler) ModifySchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req modifyScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}

	loc := h.svc.Location()
	rows := make([]ledger.Replacement, 0, len(req.Rows))
	for i, row := range req.Rows {
		due, err := parseTime(row.DueDate, loc)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, "INVALID_DUE_DATE", fmt.Sprintf("row %d: %v", i, err))
			return
		}
		replacement := ledger.Replacement{
			InstallmentID:     row.InstallmentID,
			Amount:            row.Amount,
			DueDate:           due,
			InstallmentNumber: row.InstallmentNumber,
		}
		if row.GracePeriodEnd != "" {
			end, err := parseTime(row.GracePeriodEnd, loc)
			if err != nil {
				respondError(w, http.StatusUnprocessableEntity, "INVALID_DUE_DATE", fmt.Sprintf("row %d: %v", i, err))
				return
			}
			replacement.GracePeriodEnd = &end
		}
		rows = append(rows, replacement)
	}

	detail, err := h.svc.ModifySchedule(r.Context(), id, rows, ledger.ModifyOptions{CloseLedger: req.CloseLedger}, h.now())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.audit(r).WithFields(logrus.Fields{
		"plan_id":  id,
		"revision": detail.Plan.Revision,
	}).Info("Schedule modified via API")
	respondJSON(w, http.StatusOK, detail)
}

// GetInstallmentStatus returns the effective status of an installment
func (h *Handler) GetInstallmentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	at, ok := h.asOf(w, r)
	if !ok {
		return
	}
	view, err := h.svc.ClassifyInstallment(r.Context(), id, at)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// CapturePayment records a successful payment
func (h *Handler) CapturePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req captureRequest
	if !h.decode(w, r, &req) {
		return
	}
	paidAt, ok := h.timestamp(w, req.PaidAt)
	if !ok {
		return
	}

	inst, err := h.svc.RecordPaymentCaptured(r.Context(), id, paidAt)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.audit(r).WithField("installment_id", id).Info("Payment capture recorded via API")
	respondJSON(w, http.StatusOK, inst)
}

// FailPayment records a failed payment attempt
func (h *Handler) FailPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req failureRequest
	if !h.decode(w, r, &req) {
		return
	}
	failedAt, ok := h.timestamp(w, req.FailedAt)
	if !ok {
		return
	}

	inst, err := h.svc.RecordPaymentFailed(r.Context(), id, failedAt)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.audit(r).WithField("installment_id", id).Info("Payment failure recorded via API")
	respondJSON(w, http.StatusOK, inst)
}

// RecordReminder records a reminder dispatch
func (h *Handler) RecordReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reminderRequest
	if !h.decode(w, r, &req) {
		return
	}
	sentAt, ok := h.timestamp(w, req.SentAt)
	if !ok {
		return
	}

	inst, err := h.svc.RecordReminderDispatch(r.Context(), id, req.Channel, sentAt)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, inst)
}

// Dashboard returns the portfolio rollup
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	at, ok := h.asOf(w, r)
	if !ok {
		return
	}
	summary, err := h.svc.Dashboard(r.Context(), at)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// Helpers

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "MALFORMED_BODY", "Malformed JSON body")
		return false
	}
	return true
}

func (h *Handler) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		return h.now(), true
	}
	at, err := parseTime(raw, h.svc.Location())
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_TIMESTAMP", err.Error())
		return time.Time{}, false
	}
	return at, true
}

// timestamp parses an optional body timestamp, defaulting to now.
func (h *Handler) timestamp(w http.ResponseWriter, raw string) (time.Time, bool) {
	if raw == "" {
		return h.now(), true
	}
	t, err := parseTime(raw, h.svc.Location())
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "INVALID_TIMESTAMP", err.Error())
		return time.Time{}, false
	}
	return t, true
}

func (h *Handler) audit(r *http.Request) *logrus.Entry {
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		subject = "anonymous"
	}
	return h.log.WithField("actor", subject)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ID", "Invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// parseTime accepts RFC 3339 instants and bare dates, which are read as
// midnight in loc. An empty string yields the zero time.
func parseTime(raw string, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse %q as a date or RFC 3339 timestamp", raw)
	}
	return t, nil
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{service.ErrInvalidPlan, http.StatusUnprocessableEntity, "INVALID_PLAN"},
	{ledger.ErrInvalidScheduleParameters, http.StatusUnprocessableEntity, "INVALID_SCHEDULE_PARAMETERS"},
	{ledger.ErrNonPositiveAmount, http.StatusUnprocessableEntity, "NON_POSITIVE_AMOUNT"},
	{ledger.ErrInvalidDueDate, http.StatusUnprocessableEntity, "INVALID_DUE_DATE"},
	{ledger.ErrUnknownInstallment, http.StatusUnprocessableEntity, "UNKNOWN_INSTALLMENT"},
	{ledger.ErrDuplicateReplacement, http.StatusUnprocessableEntity, "DUPLICATE_INSTALLMENT"},
	{ledger.ErrInvalidTimestamp, http.StatusUnprocessableEntity, "INVALID_TIMESTAMP"},
	{ledger.ErrInvalidChannel, http.StatusUnprocessableEntity, "INVALID_CHANNEL"},
	{ledger.ErrImmutableInstallment, http.StatusConflict, "IMMUTABLE_INSTALLMENT"},
	{ledger.ErrInstallmentSettled, http.StatusConflict, "INSTALLMENT_SETTLED"},
	{ledger.ErrConcurrentModification, http.StatusConflict, "CONCURRENT_MODIFICATION"},
	{ledger.ErrEmptyModification, http.StatusPreconditionRequired, "EMPTY_MODIFICATION"},
	{repository.ErrPlanNotFound, http.StatusNotFound, "PLAN_NOT_FOUND"},
	{repository.ErrInstallmentNotFound, http.StatusNotFound, "INSTALLMENT_NOT_FOUND"},
	{ledger.ErrMalformedLedger, http.StatusInternalServerError, "MALFORMED_LEDGER"},
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			if m.status >= http.StatusInternalServerError {
				h.log.Errorf("Request failed: %v", err)
			}
			respondError(w, m.status, m.code, err.Error())
			return
		}
	}
	h.log.Errorf("Request failed: %v", err)
	respondError(w, http.StatusInternalServerError, "INTERNAL", "Internal Server Error")
}

func respondError(w http.ResponseWriter, code int, errCode, message string) {
	respondJSON(w, code, map[string]string{"error": message, "code": errCode})
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
