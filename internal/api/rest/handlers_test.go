package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/nightbox/internal/boxscore"
	"github.com/fortuna/nightbox/internal/logging"
)

type fakeSettings struct {
	secret     string
	secretErr  error
	recipients []string
}

func (f *fakeSettings) PushSecret(context.Context) (string, error) {
	return f.secret, f.secretErr
}

func (f *fakeSettings) Recipients(context.Context) ([]string, error) {
	return f.recipients, nil
}

type fakeSnapshots struct {
	stored   []boxscore.PushPayload
	batch    boxscore.ReportBatch
	batchErr error
}

func (f *fakeSnapshots) StoreLastPush(_ context.Context, p boxscore.PushPayload) error {
	f.stored = append(f.stored, p)
	return nil
}

func (f *fakeSnapshots) LastBatch(context.Context) (boxscore.ReportBatch, error) {
	return f.batch, f.batchErr
}

type fakeNotifier struct {
	recipients []string
	subject    string
	filename   string
	attachment []byte
	err        error
	calls      int
}

func (f *fakeNotifier) SendReport(_ context.Context, recipients []string, subject, body, filename string, attachment []byte) error {
	f.calls++
	f.recipients = recipients
	f.subject = subject
	f.filename = filename
	f.attachment = attachment
	return f.err
}

func newTestHandler(settings *fakeSettings, snaps *fakeSnapshots, notifier *fakeNotifier) *Handler {
	return NewHandler(HandlerConfig{
		Settings: settings,
		Snaps:    snaps,
		Notifier: notifier,
		Now:      func() time.Time { return time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC) },
		Logger:   logging.NewNop(),
	})
}

func pushRequest(t *testing.T, payload boxscore.PushPayload, secret string) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/push", bytes.NewReader(body))
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	return req
}

func samplePayload() boxscore.PushPayload {
	return boxscore.PushPayload{
		Source:         "flashscore",
		GeneratedAtUTC: "2026-03-14T07:00:00Z",
		Rows: []boxscore.PushRow{
			{Player: "Luka Doncic", GameDate: "2026-03-13", GameURL: "https://www.flashscore.com/match/x/", Minutes: "38", Points: 31, Rebounds: 8, Assists: 11, Steals: 2, Turnovers: 4},
		},
	}
}

func TestReceivePushRejectsMissingSecretConfig(t *testing.T) {
	h := newTestHandler(&fakeSettings{secret: ""}, &fakeSnapshots{}, &fakeNotifier{})
	rec := httptest.NewRecorder()

	h.ReceivePush(rec, pushRequest(t, samplePayload(), "anything"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReceivePushRejectsWrongSecret(t *testing.T) {
	notifier := &fakeNotifier{}
	h := newTestHandler(&fakeSettings{secret: "hunter2"}, &fakeSnapshots{}, notifier)
	rec := httptest.NewRecorder()

	h.ReceivePush(rec, pushRequest(t, samplePayload(), "wrong"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, notifier.calls)
}

func TestReceivePushRejectsInvalidJSON(t *testing.T) {
	h := newTestHandler(&fakeSettings{secret: "hunter2"}, &fakeSnapshots{}, &fakeNotifier{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/push", bytes.NewReader([]byte("{not json")))
	req.Header.Set(SecretHeader, "hunter2")
	rec := httptest.NewRecorder()

	h.ReceivePush(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReceivePushEmptyRowsReportsNotSent(t *testing.T) {
	snaps := &fakeSnapshots{}
	notifier := &fakeNotifier{}
	h := newTestHandler(&fakeSettings{secret: "hunter2"}, snaps, notifier)
	rec := httptest.NewRecorder()

	payload := samplePayload()
	payload.Rows = nil
	h.ReceivePush(rec, pushRequest(t, payload, "hunter2"))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(0), resp["accepted"])
	assert.Equal(t, false, resp["sent"])
	assert.Zero(t, notifier.calls)
	assert.Empty(t, snaps.stored)
}

func TestReceivePushSendsReport(t *testing.T) {
	snaps := &fakeSnapshots{}
	notifier := &fakeNotifier{}
	settings := &fakeSettings{secret: "hunter2", recipients: []string{"coach@example.com"}}
	h := newTestHandler(settings, snaps, notifier)
	rec := httptest.NewRecorder()

	h.ReceivePush(rec, pushRequest(t, samplePayload(), "hunter2"))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["accepted"])
	assert.Equal(t, true, resp["sent"])

	require.Len(t, snaps.stored, 1)
	assert.Equal(t, "flashscore", snaps.stored[0].Source)

	require.Equal(t, 1, notifier.calls)
	assert.Equal(t, []string{"coach@example.com"}, notifier.recipients)
	assert.Equal(t, "player-scores-scrape-2026-03-14.csv", notifier.filename)
	assert.Contains(t, string(notifier.attachment), "Luka Doncic")
}

func TestReceivePushNotifierFailure(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("smtp down")}
	settings := &fakeSettings{secret: "hunter2", recipients: []string{"coach@example.com"}}
	h := newTestHandler(settings, &fakeSnapshots{}, notifier)
	rec := httptest.NewRecorder()

	h.ReceivePush(rec, pushRequest(t, samplePayload(), "hunter2"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLatestBatch(t *testing.T) {
	snaps := &fakeSnapshots{batch: boxscore.ReportBatch{
		Rows: []boxscore.CanonicalStatRow{{PlayerName: "Nikola Jokic", GameID: 4521}},
	}}
	h := newTestHandler(&fakeSettings{}, snaps, &fakeNotifier{})
	rec := httptest.NewRecorder()

	h.LatestBatch(rec, httptest.NewRequest(http.MethodGet, "/api/v1/report/latest", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Nikola Jokic")
}

func TestLatestBatchMissing(t *testing.T) {
	snaps := &fakeSnapshots{batchErr: errors.New("redis: nil")}
	h := newTestHandler(&fakeSettings{}, snaps, &fakeNotifier{})
	rec := httptest.NewRecorder()

	h.LatestBatch(rec, httptest.NewRequest(http.MethodGet, "/api/v1/report/latest", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerRun(t *testing.T) {
	triggered := false
	h := NewHandler(HandlerConfig{
		Settings: &fakeSettings{},
		Snaps:    &fakeSnapshots{},
		Notifier: &fakeNotifier{},
		Trigger:  func() { triggered = true },
		Logger:   logging.NewNop(),
	})
	rec := httptest.NewRecorder()

	h.TriggerRun(rec, httptest.NewRequest(http.MethodPost, "/api/v1/run", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, triggered)
}
