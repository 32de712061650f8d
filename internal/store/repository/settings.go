package repository

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/nightbox/internal/store"
)

// Setting keys persisted in the settings table.
const (
	KeyRecipients = "report_recipients"
	KeyPushSecret = "push_secret"
	KeyReportHour = "report_hour"
)

// SettingsRepository handles run configuration stored in the database.
type SettingsRepository struct {
	db *store.Database
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *store.Database) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the value for a key, or "" when the key is unset.
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.DB().QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = $1", key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "querying setting %s", key)
	}
	return value, nil
}

// Set stores a key-value pair, overwriting any previous value.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.DB().ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return errors.Wrapf(err, "storing setting %s", key)
	}
	return nil
}

// Recipients returns the report recipient addresses. The value is
// stored comma-separated; blank entries are dropped.
func (r *SettingsRepository) Recipients(ctx context.Context) ([]string, error) {
	raw, err := r.Get(ctx, KeyRecipients)
	if err != nil {
		return nil, err
	}
	return SplitRecipients(raw), nil
}

// PushSecret returns the shared secret expected on webhook pushes.
func (r *SettingsRepository) PushSecret(ctx context.Context) (string, error) {
	return r.Get(ctx, KeyPushSecret)
}

// ReportHour returns the configured local hour for the nightly run.
// fallback is used when the setting is unset or malformed.
func (r *SettingsRepository) ReportHour(ctx context.Context, fallback int) (int, error) {
	raw, err := r.Get(ctx, KeyReportHour)
	if err != nil {
		return 0, err
	}
	hour, convErr := strconv.Atoi(strings.TrimSpace(raw))
	if convErr != nil || hour < 0 || hour > 23 {
		return fallback, nil
	}
	return hour, nil
}

// SplitRecipients splits a comma-separated recipient list, trimming
// whitespace and dropping blanks.
func SplitRecipients(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
