package apisports

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/nightbox/internal/boxscore"
	"github.com/fortuna/nightbox/internal/logging"
)

// scriptedFetcher returns canned envelopes keyed by endpoint plus
// selected parameters, and records every call it receives.
type scriptedFetcher struct {
	responses map[string]Envelope
	calls     []string
}

func (f *scriptedFetcher) Fetch(_ context.Context, endpoint string, params url.Values) Envelope {
	key := endpoint
	if params != nil {
		if v := params.Get("season"); v != "" {
			key += " season=" + v
		}
		if v := params.Get("date"); v != "" {
			key += " date=" + v
		}
		if v := params.Get("game"); v != "" {
			key += " game=" + v
		}
		if v := params.Get("player"); v != "" {
			key += " player=" + v
		}
		if v := params.Get("id"); v != "" {
			key += " id=" + v
		}
		if v := params.Get("team"); v != "" {
			key += " team=" + v
		}
	}
	f.calls = append(f.calls, key)
	return f.responses[key]
}

func fixedNow() time.Time {
	// mid-March: season candidates are 2025-2026, 2025, 2026
	return time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)
}

func newTestResolver(f Fetcher) *Resolver {
	return NewResolver(ResolverConfig{
		Client: f,
		Zone:   time.UTC,
		Now:    fixedNow,
		Logger: logging.NewNop(),
	})
}

func jokic() boxscore.AthleteTarget {
	return boxscore.AthleteTarget{Label: "N. Jokic", TeamID: 142, PlayerID: 265}
}

func rows(rs ...map[string]any) Envelope {
	return Envelope{Response: rs, Results: len(rs)}
}

func statRow(gameID int, teamID int, points float64) map[string]any {
	row := map[string]any{
		"game":       map[string]any{"id": float64(gameID)},
		"statistics": []any{map[string]any{"points": points}},
	}
	if teamID != 0 {
		row["team"] = map[string]any{"id": float64(teamID)}
	}
	return row
}

func TestResolveSeasonScanPicksHighestGameID(t *testing.T) {
	f := &scriptedFetcher{responses: map[string]Envelope{
		"/games/statistics/players season=2025-2026 player=265": rows(
			statRow(100, 142, 22),
			statRow(101, 142, 31),
			statRow(99, 142, 40),
		),
	}}

	row, resErr := newTestResolver(f).Resolve(context.Background(), jokic())
	require.Nil(t, resErr)

	assert.Equal(t, 101, row.GameID)
	assert.Equal(t, "31", row.Points)
}

func TestResolveSeasonScanPrefersConfiguredTeam(t *testing.T) {
	f := &scriptedFetcher{responses: map[string]Envelope{
		"/games/statistics/players season=2025-2026 player=265": rows(
			statRow(200, 999, 50),
			statRow(150, 142, 18),
		),
	}}

	row, resErr := newTestResolver(f).Resolve(context.Background(), jokic())
	require.Nil(t, resErr)

	assert.Equal(t, 150, row.GameID)
	assert.Equal(t, "18", row.Points)
}

func TestResolveSeasonScanTrustsRowsOverDeclaredCount(t *testing.T) {
	env := rows(statRow(55, 142, 12))
	env.Results = 0
	f := &scriptedFetcher{responses: map[string]Envelope{
		"/games/statistics/players season=2025-2026 player=265": env,
	}}

	row, resErr := newTestResolver(f).Resolve(context.Background(), jokic())
	require.Nil(t, resErr)
	assert.Equal(t, 55, row.GameID)
}

func TestResolveSeasonScanTriesAllCandidates(t *testing.T) {
	f := &scriptedFetcher{responses: map[string]Envelope{
		"/games/statistics/players season=2026 player=265": rows(statRow(77, 142, 25)),
	}}

	row, resErr := newTestResolver(f).Resolve(context.Background(), jokic())
	require.Nil(t, resErr)

	assert.Equal(t, 77, row.GameID)
	assert.Contains(t, f.calls, "/games/statistics/players season=2025-2026 player=265")
	assert.Contains(t, f.calls, "/games/statistics/players season=2025 player=265")
}

func TestSeasonCandidates(t *testing.T) {
	spring := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"2025-2026", "2025", "2026"}, seasonCandidates(spring))

	fall := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"2026-2027", "2026", "2027"}, seasonCandidates(fall))
}

func TestResolveDateScanPicksLatestTimestamp(t *testing.T) {
	older := statRow(10, 142, 15)
	older["game"].(map[string]any)["timestamp"] = float64(1710000000)
	newer := statRow(11, 142, 27)
	newer["game"].(map[string]any)["timestamp"] = float64(1710400000)

	f := &scriptedFetcher{responses: map[string]Envelope{
		"/statistics/players date=2026-03-13 player=265": rows(newer),
		"/statistics/players date=2026-03-12 player=265": rows(older),
	}}

	row, resErr := newTestResolver(f).Resolve(context.Background(), jokic())
	require.Nil(t, resErr)

	assert.Equal(t, 11, row.GameID)
	assert.Equal(t, "27", row.Points)
}

func TestResolveDateScanAlternateEndpoint(t *testing.T) {
	hit := statRow(42, 142, 19)
	hit["game"].(map[string]any)["date"] = "2026-03-14T01:00:00Z"

	f := &scriptedFetcher{responses: map[string]Envelope{
		"/players/statistics date=2026-03-14 id=265": rows(hit),
	}}

	row, resErr := newTestResolver(f).Resolve(context.Background(), jokic())
	require.Nil(t, resErr)

	assert.Equal(t, 42, row.GameID)
	assert.Contains(t, f.calls, "/statistics/players date=2026-03-14 player=265")
}

func TestResolveTeamGameScan(t *testing.T) {
	f := &scriptedFetcher{responses: map[string]Envelope{
		"/games date=2026-03-12 team=142": rows(map[string]any{
			"id":     float64(900),
			"status": map[string]any{"short": "FT"},
		}),
		"/statistics/players game=900 player=265": rows(map[string]any{
			"player":     map[string]any{"id": float64(265), "name": "Nikola Jokic"},
			"statistics": []any{map[string]any{"points": float64(33)}},
		}),
	}}

	row, resErr := newTestResolver(f).Resolve(context.Background(), jokic())
	require.Nil(t, resErr)

	assert.Equal(t, 900, row.GameID)
	assert.Equal(t, "33", row.Points)
	// the first keyed variant was tried and failed before the second hit
	assert.Contains(t, f.calls, "/games/statistics/players game=900 player=265")
	// the unfiltered variants were never needed
	assert.NotContains(t, f.calls, "/games/statistics/players game=900")
	assert.NotContains(t, f.calls, "/statistics/players game=900")
}

func TestResolveTeamGameScanUnfilteredVariantFiltersByPlayer(t *testing.T) {
	f := &scriptedFetcher{responses: map[string]Envelope{
		"/games date=2026-03-14 team=142": rows(map[string]any{
			"id":     float64(901),
			"status": map[string]any{"short": "AOT"},
		}),
		"/games/statistics/players game=901": rows(
			map[string]any{
				"player": map[string]any{"id": float64(111)},
				"points": float64(8),
			},
			map[string]any{
				"player": map[string]any{"id": float64(265)},
				"points": float64(21),
			},
		),
	}}

	row, resErr := newTestResolver(f).Resolve(context.Background(), jokic())
	require.Nil(t, resErr)

	assert.Equal(t, 901, row.GameID)
	assert.Equal(t, "21", row.Points)
}

func TestResolveTeamGameScanSkipsUnfinishedGames(t *testing.T) {
	f := &scriptedFetcher{responses: map[string]Envelope{
		"/games date=2026-03-14 team=142": rows(map[string]any{
			"id":     float64(902),
			"status": map[string]any{"short": "Q4"},
		}),
	}}

	_, resErr := newTestResolver(f).Resolve(context.Background(), jokic())
	require.NotNil(t, resErr)
	assert.NotContains(t, f.calls, "/games/statistics/players game=902 player=265")
}

func TestResolveExhaustionError(t *testing.T) {
	f := &scriptedFetcher{responses: map[string]Envelope{}}

	row, resErr := newTestResolver(f).Resolve(context.Background(), jokic())
	require.NotNil(t, resErr)

	assert.Equal(t, boxscore.CanonicalStatRow{}, row)
	assert.Equal(t, "N. Jokic", resErr.Label)
	assert.Equal(t, []string{"No recent stats found within lookback."}, resErr.Messages)
}

func TestResolveMissingKeyShortCircuits(t *testing.T) {
	f := &scriptedFetcher{responses: map[string]Envelope{
		"/players id=265": {Errors: []string{"Missing API key."}},
	}}

	_, resErr := newTestResolver(f).Resolve(context.Background(), jokic())
	require.NotNil(t, resErr)

	assert.True(t, CredentialMissing(resErr))
	assert.Len(t, f.calls, 1)
}

func TestResolveUsesLookedUpNamesAsFallback(t *testing.T) {
	f := &scriptedFetcher{responses: map[string]Envelope{
		"/players id=265": rows(map[string]any{"name": "Nikola Jokic"}),
		"/teams id=142":   rows(map[string]any{"name": "Denver Nuggets"}),
		"/games/statistics/players season=2025-2026 player=265": rows(map[string]any{
			"game":       map[string]any{"id": float64(60)},
			"statistics": []any{map[string]any{"points": float64(16)}},
		}),
	}}

	row, resErr := newTestResolver(f).Resolve(context.Background(), jokic())
	require.Nil(t, resErr)

	assert.Equal(t, "Nikola Jokic", row.PlayerName)
	assert.Equal(t, "Denver Nuggets", row.TeamName)
}

func TestExtractGameTimestampPriority(t *testing.T) {
	row := map[string]any{
		"game": map[string]any{
			"timestamp": float64(1710000000),
			"date":      "2026-03-14T00:00:00Z",
		},
		"timestamp": float64(5),
	}
	assert.Equal(t, int64(1710000000), extractGameTimestamp(row, time.UTC))

	delete(row["game"].(map[string]any), "timestamp")
	want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC).Unix()
	assert.Equal(t, want, extractGameTimestamp(row, time.UTC))

	delete(row["game"].(map[string]any), "date")
	assert.Equal(t, int64(5), extractGameTimestamp(row, time.UTC))

	assert.Zero(t, extractGameTimestamp(map[string]any{"date": "garbage"}, time.UTC))
}
