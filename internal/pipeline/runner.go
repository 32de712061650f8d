package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/nightbox/internal/boxscore"
	"github.com/fortuna/nightbox/internal/ingest/apisports"
	"github.com/fortuna/nightbox/internal/logging"
	"github.com/fortuna/nightbox/internal/notify"
	"github.com/fortuna/nightbox/internal/report"
)

const msgNoAthletes = "No athletes configured."

// AthleteResolver resolves one athlete's most recent completed game.
type AthleteResolver interface {
	Resolve(ctx context.Context, target boxscore.AthleteTarget) (boxscore.CanonicalStatRow, *boxscore.ResolutionError)
}

// RosterSource lists the athletes to resolve, in report order.
type RosterSource interface {
	List(ctx context.Context) ([]boxscore.AthleteTarget, error)
}

// RunSettings supplies per-run configuration.
type RunSettings interface {
	Recipients(ctx context.Context) ([]string, error)
}

// RunState guards against concurrent runs and keeps the last batch.
type RunState interface {
	AcquireRunLock(ctx context.Context) error
	ReleaseRunLock(ctx context.Context) error
	StoreLastBatch(ctx context.Context, batch boxscore.ReportBatch) error
}

// Config wires runner dependencies. OutputDir is optional; when set,
// each run also writes its CSV there.
type Config struct {
	Resolver  AthleteResolver
	Roster    RosterSource
	Settings  RunSettings
	State     RunState
	Notifier  notify.Notifier
	OutputDir string
	Now       func() time.Time
	Logger    *logging.Logger
}

// Runner executes the nightly resolution pipeline end to end.
type Runner struct {
	resolver  AthleteResolver
	roster    RosterSource
	settings  RunSettings
	state     RunState
	notifier  notify.Notifier
	outputDir string
	now       func() time.Time
	logger    *logging.Logger
}

// NewRunner creates a runner from config.
func NewRunner(cfg Config) *Runner {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		resolver:  cfg.Resolver,
		roster:    cfg.Roster,
		settings:  cfg.Settings,
		state:     cfg.State,
		notifier:  cfg.Notifier,
		outputDir: cfg.OutputDir,
		now:       now,
		logger:    logger,
	}
}

// Run resolves every rostered athlete sequentially, renders the CSV,
// stores the batch snapshot and mails the report. One athlete failing
// never aborts the run; a missing API credential fails the remaining
// athletes without issuing their provider calls.
func (r *Runner) Run(ctx context.Context) (boxscore.ReportBatch, error) {
	var batch boxscore.ReportBatch

	if r.state != nil {
		if err := r.state.AcquireRunLock(ctx); err != nil {
			return batch, err
		}
		defer func() {
			if err := r.state.ReleaseRunLock(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("releasing run lock failed", "error", err)
			}
		}()
	}

	start := r.now()
	batch.GeneratedAt = start.UTC()

	targets, err := r.roster.List(ctx)
	if err != nil {
		return batch, errors.Wrap(err, "load roster")
	}
	if len(targets) == 0 {
		batch.Errors = append(batch.Errors, boxscore.ResolutionError{Messages: []string{msgNoAthletes}})
		return batch, r.finish(ctx, batch)
	}

	credentialGone := false
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		if !target.Resolvable() {
			batch.Errors = append(batch.Errors, boxscore.ResolutionError{
				Label:    target.Label,
				TeamID:   target.TeamID,
				PlayerID: target.PlayerID,
				Messages: []string{"No provider identifiers configured."},
			})
			continue
		}
		if credentialGone {
			batch.Errors = append(batch.Errors, boxscore.ResolutionError{
				Label:    target.Label,
				TeamID:   target.TeamID,
				PlayerID: target.PlayerID,
				Messages: []string{"Skipped: missing API key."},
			})
			continue
		}

		row, resErr := r.resolver.Resolve(ctx, target)
		if resErr != nil {
			batch.Errors = append(batch.Errors, *resErr)
			if apisports.CredentialMissing(resErr) {
				credentialGone = true
			}
			continue
		}
		batch.Rows = append(batch.Rows, row)
	}

	r.logger.Info("batch resolved",
		"athletes", len(targets),
		"rows", len(batch.Rows),
		"errors", len(batch.Errors),
		"duration", time.Since(start),
	)
	return batch, r.finish(ctx, batch)
}

// finish renders, snapshots, archives and mails a completed batch.
func (r *Runner) finish(ctx context.Context, batch boxscore.ReportBatch) error {
	csv, err := report.BuildCSV(batch)
	if err != nil {
		return errors.Wrap(err, "build report")
	}

	if r.state != nil {
		if err := r.state.StoreLastBatch(ctx, batch); err != nil {
			r.logger.Warn("storing batch snapshot failed", "error", err)
		}
	}

	filename := fmt.Sprintf("player-scores-%s.csv", batch.GeneratedAt.Format("2006-01-02"))
	if r.outputDir != "" {
		path := filepath.Join(r.outputDir, filename)
		if err := os.WriteFile(path, csv, 0o644); err != nil {
			r.logger.Warn("writing report file failed", "path", path, "error", err)
		} else {
			r.logger.Info("report written", "path", path)
		}
	}

	if r.notifier == nil {
		return nil
	}
	recipients, err := r.settings.Recipients(ctx)
	if err != nil {
		return errors.Wrap(err, "load recipients")
	}
	subject := fmt.Sprintf("Nightly box scores %s", batch.GeneratedAt.Format("2006-01-02"))
	body := fmt.Sprintf("Attached: %d resolved rows, %d errors.", len(batch.Rows), len(batch.Errors))
	if err := r.notifier.SendReport(ctx, recipients, subject, body, filename, csv); err != nil {
		return errors.Wrap(err, "send report")
	}
	return nil
}
