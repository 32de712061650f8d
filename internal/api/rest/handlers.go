package rest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fortuna/nightbox/internal/boxscore"
	"github.com/fortuna/nightbox/internal/logging"
	"github.com/fortuna/nightbox/internal/notify"
	"github.com/fortuna/nightbox/internal/report"
)

// SecretHeader carries the shared secret on push requests.
const SecretHeader = "X-Nightbox-Secret"

const maxPushBody = 1 << 20

// SettingsSource provides the run configuration handlers need.
type SettingsSource interface {
	PushSecret(ctx context.Context) (string, error)
	Recipients(ctx context.Context) ([]string, error)
}

// Snapshots stores and retrieves the most recent accepted payloads.
type Snapshots interface {
	StoreLastPush(ctx context.Context, payload boxscore.PushPayload) error
	LastBatch(ctx context.Context) (boxscore.ReportBatch, error)
}

// Handler contains dependencies for HTTP handlers.
type Handler struct {
	settings SettingsSource
	snaps    Snapshots
	notifier notify.Notifier
	trigger  func()
	now      func() time.Time
	logger   *logging.Logger
}

// HandlerConfig wires handler dependencies.
type HandlerConfig struct {
	Settings SettingsSource
	Snaps    Snapshots
	Notifier notify.Notifier
	Trigger  func()
	Now      func() time.Time
	Logger   *logging.Logger
}

// NewHandler creates a new handler.
func NewHandler(cfg HandlerConfig) *Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		settings: cfg.Settings,
		snaps:    cfg.Snaps,
		notifier: cfg.Notifier,
		trigger:  cfg.Trigger,
		now:      now,
		logger:   logger,
	}
}

// HealthCheck handles health check requests.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "nightbox",
	})
}

// ReceivePush accepts scraped box-score rows from the remote scrape
// runner, authenticated by a shared secret compared in constant time.
// Accepted rows are snapshotted and mailed out as a CSV report.
func (h *Handler) ReceivePush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	expected, err := h.settings.PushSecret(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load push secret", err)
		return
	}
	if expected == "" {
		respondError(w, http.StatusServiceUnavailable, "Push secret not configured", nil)
		return
	}
	got := r.Header.Get(SecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
		respondError(w, http.StatusUnauthorized, "Invalid push secret", nil)
		return
	}

	var payload boxscore.PushPayload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPushBody))
	if err := dec.Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid push payload", err)
		return
	}

	if len(payload.Rows) == 0 {
		h.logger.Info("push accepted with no usable rows", "source", payload.Source)
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"accepted": 0,
			"sent":     false,
		})
		return
	}

	if err := h.snaps.StoreLastPush(ctx, payload); err != nil {
		h.logger.Warn("storing push snapshot failed", "error", err)
	}

	csv, err := report.BuildPushCSV(payload.Rows)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to build report", err)
		return
	}

	recipients, err := h.settings.Recipients(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load recipients", err)
		return
	}

	date := h.now().UTC().Format("2006-01-02")
	filename := fmt.Sprintf("player-scores-scrape-%s.csv", date)
	subject := fmt.Sprintf("Nightly box scores (scrape) %s", date)
	body := fmt.Sprintf("Attached: %d scraped box-score rows.", len(payload.Rows))
	if err := h.notifier.SendReport(ctx, recipients, subject, body, filename, csv); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to send report", err)
		return
	}

	h.logger.Info("push report sent", "rows", len(payload.Rows), "source", payload.Source)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"accepted": len(payload.Rows),
		"sent":     true,
	})
}

// LatestBatch returns the most recent resolved batch snapshot.
func (h *Handler) LatestBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.snaps.LastBatch(r.Context())
	if err != nil {
		respondError(w, http.StatusNotFound, "No batch available", err)
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

// TriggerRun kicks off a report run outside the nightly schedule.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		respondError(w, http.StatusServiceUnavailable, "Manual runs not available", nil)
		return
	}
	h.trigger()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "run requested"})
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response.
func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
