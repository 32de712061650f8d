package apisports

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/fortuna/nightbox/internal/boxscore"
	"github.com/fortuna/nightbox/internal/logging"
)

const (
	// teamScanLookbackDays bounds the day-by-day backward scan of the
	// final fallback strategy.
	teamScanLookbackDays = 30

	// dateScanDays covers today plus the two previous calendar days.
	dateScanDays = 3

	errNoRecentStats = "No recent stats found within lookback."
)

// finishedStatuses is the allow-list of terminal game status codes the
// team-game scan accepts. Cancelled/postponed/awarded games are
// excluded: they either carry no player statistics or carry stale
// ones, and reporting them as "most recent game" is misleading.
var finishedStatuses = map[string]bool{
	"FT":  true,
	"AOT": true,
}

// ResolverConfig configures one resolver. Zone drives every "today"
// calculation; Now is overridable for tests and defaults to
// time.Now.
type ResolverConfig struct {
	Client Fetcher
	Zone   *time.Location
	Now    func() time.Time
	Logger *logging.Logger
}

// Resolver finds the single best recent-game stat row for an athlete
// through a layered fallback search: season scan, then recent-date
// scan, then team-game scan. A later strategy only runs once the
// earlier ones are confirmed unusable.
type Resolver struct {
	client Fetcher
	zone   *time.Location
	now    func() time.Time
	logger *logging.Logger
}

func NewResolver(cfg ResolverConfig) *Resolver {
	zone := cfg.Zone
	if zone == nil {
		zone = time.UTC
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{
		client: cfg.Client,
		zone:   zone,
		now:    now,
		logger: logger,
	}
}

// Resolve returns the canonical stat row for the target's most recent
// completed game, or a ResolutionError when every strategy is
// exhausted. A failed provider call only disqualifies that one call;
// only exhaustion is a reportable failure.
func (r *Resolver) Resolve(ctx context.Context, target boxscore.AthleteTarget) (boxscore.CanonicalStatRow, *boxscore.ResolutionError) {
	log := r.logger.With("team_id", target.TeamID, "player_id", target.PlayerID)
	log.Info("stats resolution started")

	playerName, teamName, missingKey := r.lookupNames(ctx, target)
	if missingKey {
		return boxscore.CanonicalStatRow{}, &boxscore.ResolutionError{
			Label:    target.Label,
			TeamID:   target.TeamID,
			PlayerID: target.PlayerID,
			Messages: []string{errMissingAPIKey},
		}
	}

	if row, ok := r.seasonScan(ctx, target, playerName, teamName); ok {
		return row, nil
	}
	if row, ok := r.dateScan(ctx, target, playerName, teamName); ok {
		return row, nil
	}
	if row, ok := r.teamGameScan(ctx, target, playerName, teamName); ok {
		return row, nil
	}

	log.Warn("stats resolution exhausted all strategies")
	return boxscore.CanonicalStatRow{}, &boxscore.ResolutionError{
		Label:    target.Label,
		TeamID:   target.TeamID,
		PlayerID: target.PlayerID,
		Messages: []string{errNoRecentStats},
	}
}

// lookupNames resolves the player and team display names best-effort.
// Absence of a name is not a failure; the only hard signal surfaced
// here is a missing API credential, which dooms the whole resolution.
func (r *Resolver) lookupNames(ctx context.Context, target boxscore.AthleteTarget) (playerName, teamName string, missingKey bool) {
	p := r.client.Fetch(ctx, "/players", url.Values{"id": {strconv.Itoa(target.PlayerID)}})
	if p.MissingCredential() {
		return "", "", true
	}
	if p.Usable() {
		playerName = extractString(p.Response[0], "name")
	}
	if playerName == "" {
		r.logger.Debug("player name lookup empty", "player_id", target.PlayerID)
	}

	t := r.client.Fetch(ctx, "/teams", url.Values{"id": {strconv.Itoa(target.TeamID)}})
	if t.Usable() {
		teamName = extractString(t.Response[0], "name")
	}
	if teamName == "" {
		r.logger.Debug("team name lookup empty", "team_id", target.TeamID)
	}

	return playerName, teamName, false
}

// seasonScan queries season-scoped player statistics for each
// candidate season in order. Rows matching the configured team are
// preferred; among candidates the highest game id wins, since the
// provider issues game ids monotonically and parseable timestamps are
// not reliably present on this endpoint.
func (r *Resolver) seasonScan(ctx context.Context, target boxscore.AthleteTarget, playerName, teamName string) (boxscore.CanonicalStatRow, bool) {
	for _, season := range seasonCandidates(r.now().In(r.zone)) {
		env := r.client.Fetch(ctx, "/games/statistics/players", url.Values{
			"player": {strconv.Itoa(target.PlayerID)},
			"season": {season},
		})

		if !env.Usable() {
			r.logger.Debug("season scan unusable", "season", season, "errors", env.Errors)
			continue
		}
		if env.Results == 0 {
			// The declared count disagrees with the non-empty row list;
			// the list wins but the disagreement is worth surfacing.
			r.logger.Warn("season scan declared zero results with non-empty row list",
				"season", season, "rows", len(env.Response))
		}

		best := bestRowByGameID(env.Response, target.TeamID)
		if best == nil {
			continue
		}

		row := NormalizeRow(best, playerName, teamName)
		r.logger.Info("season scan resolved row",
			"season", season, "game_id", row.GameID, "player", row.PlayerName)
		return row, true
	}
	return boxscore.CanonicalStatRow{}, false
}

// bestRowByGameID picks the row with the highest extractable game id,
// first among rows whose embedded team id matches teamID, then among
// all rows when nothing matched (or team ids are absent).
func bestRowByGameID(rows []map[string]any, teamID int) map[string]any {
	var best map[string]any
	bestID := -1

	for _, row := range rows {
		if id := extractInt(extractMap(row, "team"), "id"); id != 0 && id != teamID {
			continue
		}
		if id := gameID(row); id > bestID {
			bestID = id
			best = row
		}
	}
	if best != nil {
		return best
	}

	for _, row := range rows {
		if id := gameID(row); id > bestID {
			bestID = id
			best = row
		}
	}
	return best
}

// dateScan queries player+date statistics once per day for the most
// recent three calendar days, falling back to the alternate endpoint
// name when the primary is empty or errored for a given date. Across
// every returned row from every day, the latest extractable timestamp
// wins, so recency here is chronological rather than id-based.
func (r *Resolver) dateScan(ctx context.Context, target boxscore.AthleteTarget, playerName, teamName string) (boxscore.CanonicalStatRow, bool) {
	now := r.now().In(r.zone)

	var best map[string]any
	var bestTS int64

	for i := 0; i < dateScanDays; i++ {
		date := now.AddDate(0, 0, -i).Format("2006-01-02")

		env := r.client.Fetch(ctx, "/statistics/players", url.Values{
			"player": {strconv.Itoa(target.PlayerID)},
			"date":   {date},
		})
		if !env.Usable() {
			env = r.client.Fetch(ctx, "/players/statistics", url.Values{
				"id":   {strconv.Itoa(target.PlayerID)},
				"date": {date},
			})
		}
		if !env.Usable() {
			r.logger.Debug("date scan empty", "date", date)
			continue
		}

		for _, row := range env.Response {
			if ts := extractGameTimestamp(row, r.zone); ts > bestTS {
				bestTS = ts
				best = row
			}
		}
	}

	if best == nil {
		return boxscore.CanonicalStatRow{}, false
	}

	row := NormalizeRow(best, playerName, teamName)
	r.logger.Info("date scan resolved row", "timestamp", bestTS, "game_id", row.GameID)
	return row, true
}

// perGameVariant is one endpoint/parameter shape for per-game player
// statistics. Unfiltered variants return every player in the game and
// are filtered client-side by player id.
type perGameVariant struct {
	endpoint string
	keyed    bool
}

var perGameVariants = []perGameVariant{
	{endpoint: "/games/statistics/players", keyed: true},
	{endpoint: "/statistics/players", keyed: true},
	{endpoint: "/games/statistics/players", keyed: false},
	{endpoint: "/statistics/players", keyed: false},
}

// teamGameScan walks backward day by day looking for finished games
// involving the configured team, then tries the per-game stat variants
// in order for each candidate game. The first game yielding a row ends
// the scan.
func (r *Resolver) teamGameScan(ctx context.Context, target boxscore.AthleteTarget, playerName, teamName string) (boxscore.CanonicalStatRow, bool) {
	now := r.now().In(r.zone)
	r.logger.Info("falling back to team game scan", "lookback_days", teamScanLookbackDays)

	for d := 0; d < teamScanLookbackDays; d++ {
		date := now.AddDate(0, 0, -d).Format("2006-01-02")

		games := r.client.Fetch(ctx, "/games", url.Values{
			"team": {strconv.Itoa(target.TeamID)},
			"date": {date},
		})
		if !games.Usable() {
			continue
		}

		for _, game := range games.Response {
			id := extractInt(game, "id")
			if id <= 0 {
				continue
			}
			if short := extractString(extractMap(game, "status"), "short"); short != "" && !finishedStatuses[short] {
				continue
			}

			if row, ok := r.perGameStats(ctx, id, target.PlayerID); ok {
				out := NormalizeRow(row, playerName, teamName)
				if out.GameID == 0 {
					out.GameID = id
				}
				r.logger.Info("team game scan resolved row", "date", date, "game_id", id)
				return out, true
			}
		}
	}

	return boxscore.CanonicalStatRow{}, false
}

// perGameStats tries each endpoint variant in order and stops at the
// first that yields a row for the player.
func (r *Resolver) perGameStats(ctx context.Context, gameID, playerID int) (map[string]any, bool) {
	for _, variant := range perGameVariants {
		params := url.Values{"game": {strconv.Itoa(gameID)}}
		if variant.keyed {
			params.Set("player", strconv.Itoa(playerID))
		}

		env := r.client.Fetch(ctx, variant.endpoint, params)
		if !env.Usable() {
			continue
		}

		if variant.keyed {
			return env.Response[0], true
		}
		for _, row := range env.Response {
			if extractInt(extractMap(row, "player"), "id") == playerID {
				return row, true
			}
		}
	}
	return nil, false
}

// seasonCandidates computes the season identifiers to try for the
// given local time. Basketball seasons span two calendar years:
// January through June belongs to the season that started the previous
// year. Providers accept either "YYYY-YYYY" or a bare year depending
// on league, so both spellings are tried.
func seasonCandidates(now time.Time) []string {
	year := now.Year()
	month := int(now.Month())

	if month >= 1 && month <= 6 {
		prev := year - 1
		return []string{
			fmt.Sprintf("%d-%d", prev, year),
			strconv.Itoa(prev),
			strconv.Itoa(year),
		}
	}

	next := year + 1
	return []string{
		fmt.Sprintf("%d-%d", year, next),
		strconv.Itoa(year),
		strconv.Itoa(next),
	}
}

// extractGameTimestamp pulls a best-effort Unix timestamp out of a
// stat row. Candidate locations in order: game.timestamp, game.date,
// top-level timestamp, top-level date. Unparseable or absent values
// yield 0, which always loses tie-breaks.
func extractGameTimestamp(row map[string]any, zone *time.Location) int64 {
	game := extractMap(row, "game")

	if ts := parseInt64(game["timestamp"]); ts > 0 {
		return ts
	}
	if ts := parseDateString(extractString(game, "date"), zone); ts > 0 {
		return ts
	}
	if ts := parseInt64(row["timestamp"]); ts > 0 {
		return ts
	}
	return parseDateString(extractString(row, "date"), zone)
}

func parseDateString(value string, zone *time.Location) int64 {
	if value == "" {
		return 0
	}

	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if parsed, err := time.ParseInLocation(layout, value, zone); err == nil {
			return parsed.Unix()
		}
	}
	return 0
}
