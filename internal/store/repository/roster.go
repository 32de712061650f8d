package repository

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/nightbox/internal/boxscore"
	"github.com/fortuna/nightbox/internal/store"
)

// RosterRepository handles the tracked-athlete list.
type RosterRepository struct {
	db *store.Database
}

// NewRosterRepository creates a new roster repository.
func NewRosterRepository(db *store.Database) *RosterRepository {
	return &RosterRepository{db: db}
}

// List returns every tracked athlete in display order.
func (r *RosterRepository) List(ctx context.Context) ([]boxscore.AthleteTarget, error) {
	rows, err := r.db.DB().QueryContext(ctx, `
		SELECT label, team_id, player_id, flashscore_slug, flashscore_id
		FROM roster
		ORDER BY position, id
	`)
	if err != nil {
		return nil, errors.Wrap(err, "querying roster")
	}
	defer rows.Close()

	var targets []boxscore.AthleteTarget
	for rows.Next() {
		var t boxscore.AthleteTarget
		if err := rows.Scan(&t.Label, &t.TeamID, &t.PlayerID, &t.FlashscoreSlug, &t.FlashscoreID); err != nil {
			return nil, errors.Wrap(err, "scanning roster row")
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating roster rows")
	}
	return targets, nil
}

// Add appends an athlete to the end of the roster.
func (r *RosterRepository) Add(ctx context.Context, t boxscore.AthleteTarget) error {
	_, err := r.db.DB().ExecContext(ctx, `
		INSERT INTO roster (label, team_id, player_id, flashscore_slug, flashscore_id, position)
		VALUES ($1, $2, $3, $4, $5, COALESCE((SELECT MAX(position) + 1 FROM roster), 0))
	`, t.Label, t.TeamID, t.PlayerID, t.FlashscoreSlug, t.FlashscoreID)
	if err != nil {
		return errors.Wrap(err, "inserting roster row")
	}
	return nil
}

// Remove deletes every roster entry with the given label.
func (r *RosterRepository) Remove(ctx context.Context, label string) error {
	_, err := r.db.DB().ExecContext(ctx, "DELETE FROM roster WHERE label = $1", label)
	if err != nil {
		return errors.Wrap(err, "deleting roster row")
	}
	return nil
}

// Replace swaps the whole roster for the given list in one transaction.
func (r *RosterRepository) Replace(ctx context.Context, targets []boxscore.AthleteTarget) error {
	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin roster replace")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM roster"); err != nil {
		return errors.Wrap(err, "clearing roster")
	}
	for i, t := range targets {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO roster (label, team_id, player_id, flashscore_slug, flashscore_id, position)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, t.Label, t.TeamID, t.PlayerID, t.FlashscoreSlug, t.FlashscoreID, i); err != nil {
			return errors.Wrap(err, "inserting roster row")
		}
	}
	return errors.Wrap(tx.Commit(), "commit roster replace")
}
