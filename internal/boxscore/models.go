package boxscore

import "time"

// AthleteTarget is one configured roster entry. TeamID/PlayerID drive
// the provider resolution path; FlashscoreSlug/FlashscoreID drive the
// browser-scrape path. Identity is (TeamID, PlayerID) for the API path
// and (FlashscoreSlug, FlashscoreID) for the scrape path.
type AthleteTarget struct {
	Label          string
	TeamID         int
	PlayerID       int
	FlashscoreSlug string
	FlashscoreID   string
}

// Resolvable reports whether the target carries the ids the provider
// resolution path requires.
func (t AthleteTarget) Resolvable() bool {
	return t.TeamID > 0 && t.PlayerID > 0
}

// Scrapable reports whether the target carries the identifiers the
// scrape path requires.
func (t AthleteTarget) Scrapable() bool {
	return t.FlashscoreSlug != "" && t.FlashscoreID != ""
}

// ShootingSplit holds one shooting category of a resolved game. All
// fields are display strings: the provider emits made/attempted in a
// mix of numeric and string shapes, and Percentage always carries a
// trailing "%" (blank when attempted is zero or unknown).
type ShootingSplit struct {
	Made       string
	Attempted  string
	Line       string // "M/A", blank unless both sides are present
	Percentage string
}

// CanonicalStatRow is the normalized, shape-independent record for one
// athlete's most recent resolved game. Constructed once per athlete
// per run and never mutated afterwards. Stat fields stay strings
// because upstream minute values arrive in formats like "34:12".
type CanonicalStatRow struct {
	PlayerName string
	TeamName   string
	GameID     int // 0 = unknown

	Points   string
	Rebounds string
	Assists  string
	Minutes  string

	FieldGoals  ShootingSplit
	ThreePoints ShootingSplit
	FreeThrows  ShootingSplit
}

// ResolutionError records one athlete that failed every strategy.
type ResolutionError struct {
	Label    string
	TeamID   int
	PlayerID int
	Messages []string
}

// ReportBatch is the accumulated result of one pipeline run. It owns
// both slices for the duration of report rendering and is not shared
// across runs.
type ReportBatch struct {
	GeneratedAt time.Time
	Rows        []CanonicalStatRow
	Errors      []ResolutionError
}

// PushRow is one scraped game row as carried by the inbound push
// webhook and by the scrape-variant deployment.
type PushRow struct {
	Player    string `json:"player"`
	GameDate  string `json:"game_date"`
	GameURL   string `json:"game_url"`
	Minutes   string `json:"minutes"`
	Points    int    `json:"points"`
	Rebounds  int    `json:"rebounds"`
	Assists   int    `json:"assists"`
	Steals    int    `json:"steals"`
	Turnovers int    `json:"turnovers"`
}

// PushPayload is the JSON body accepted by the push webhook.
type PushPayload struct {
	Source         string    `json:"source,omitempty"`
	GeneratedAtUTC string    `json:"generated_at_utc"`
	Rows           []PushRow `json:"rows"`
}
