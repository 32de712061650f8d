package apisports

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/nightbox/internal/boxscore"
)

func decodeRow(t *testing.T, raw string) map[string]any {
	t.Helper()
	var row map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &row))
	return row
}

func TestNormalizeRowNestedStatisticsArray(t *testing.T) {
	row := decodeRow(t, `{
		"player": {"id": 265, "name": "Nikola Jokic"},
		"team": {"id": 142, "name": "Denver Nuggets"},
		"game": {"id": 4521},
		"statistics": [{
			"points": 28,
			"rebounds": {"total": 14},
			"assists": 9,
			"min": "36:12",
			"field_goals": {"total": 11, "attempts": 18, "percentage": 61},
			"threepoint_goals": {"total": 1, "attempts": 3},
			"freethrows_goals": {"total": 5, "attempts": 6}
		}]
	}`)

	got := NormalizeRow(row, "", "")

	assert.Equal(t, "Nikola Jokic", got.PlayerName)
	assert.Equal(t, "Denver Nuggets", got.TeamName)
	assert.Equal(t, 4521, got.GameID)
	assert.Equal(t, "28", got.Points)
	assert.Equal(t, "14", got.Rebounds)
	assert.Equal(t, "9", got.Assists)
	assert.Equal(t, "36:12", got.Minutes)

	assert.Equal(t, "11/18", got.FieldGoals.Line)
	assert.Equal(t, "61%", got.FieldGoals.Percentage)
	assert.Equal(t, "1/3", got.ThreePoints.Line)
	assert.Equal(t, "33.3%", got.ThreePoints.Percentage)
	assert.Equal(t, "5/6", got.FreeThrows.Line)
	assert.Equal(t, "83.3%", got.FreeThrows.Percentage)
}

func TestNormalizeRowFlatShapeMatchesNested(t *testing.T) {
	nested := decodeRow(t, `{
		"player": {"name": "Jayson Tatum"},
		"game": {"id": 300},
		"statistics": [{"points": "30", "reb": "7", "ast": "5", "fgm": "10", "fga": "22"}]
	}`)
	flat := decodeRow(t, `{
		"player": {"name": "Jayson Tatum"},
		"game": {"id": 300},
		"points": "30", "reb": "7", "ast": "5", "fgm": "10", "fga": "22"
	}`)

	assert.Equal(t, NormalizeRow(nested, "", ""), NormalizeRow(flat, "", ""))
}

func TestNormalizeRowNameFallbacks(t *testing.T) {
	split := decodeRow(t, `{"player": {"firstname": "Luka", "lastname": "Doncic"}}`)
	assert.Equal(t, "Luka Doncic", NormalizeRow(split, "fallback", "").PlayerName)

	empty := decodeRow(t, `{"player": {}}`)
	got := NormalizeRow(empty, "L. Doncic", "Dallas Mavericks")
	assert.Equal(t, "L. Doncic", got.PlayerName)
	assert.Equal(t, "Dallas Mavericks", got.TeamName)
}

func TestNormalizeRowTopLevelIDFallback(t *testing.T) {
	row := decodeRow(t, `{"id": 777, "points": 10}`)
	assert.Equal(t, 777, NormalizeRow(row, "", "").GameID)
}

func TestPickStatNonScalarEncoded(t *testing.T) {
	stats := map[string]any{"points": map[string]any{"total": float64(12)}}
	assert.Equal(t, `{"total":12}`, pickStat(stats, "points"))
}

func TestReboundsTotal(t *testing.T) {
	grouped := map[string]any{"rebounds": map[string]any{"total": float64(11)}}
	assert.Equal(t, "11", reboundsTotal(grouped))

	scalar := map[string]any{"rebounds": float64(8)}
	assert.Equal(t, "8", reboundsTotal(scalar))

	abbreviated := map[string]any{"reb": "6"}
	assert.Equal(t, "6", reboundsTotal(abbreviated))

	assert.Equal(t, "", reboundsTotal(map[string]any{}))
}

func TestShootingSplitDerivedPercentageRounding(t *testing.T) {
	stats := map[string]any{"fgm": float64(7), "fga": float64(13)}
	split := shootingSplit(stats, "field_goals", "fgm", "fga")

	assert.Equal(t, "7/13", split.Line)
	assert.Equal(t, "53.8%", split.Percentage)
}

func TestShootingSplitZeroAttemptsNoPercentage(t *testing.T) {
	stats := map[string]any{"tpm": float64(0), "tpa": float64(0)}
	split := shootingSplit(stats, "threepoint_goals", "tpm", "tpa")

	assert.Equal(t, "0/0", split.Line)
	assert.Equal(t, "", split.Percentage)
}

func TestShootingSplitGroupedPercentageKeepsSuffix(t *testing.T) {
	stats := map[string]any{
		"field_goals": map[string]any{"total": float64(9), "attempts": float64(15), "percentage": "60%"},
	}
	split := shootingSplit(stats, "field_goals", "fgm", "fga")
	assert.Equal(t, "60%", split.Percentage)
}

func TestShootingSplitMissingSideNoLine(t *testing.T) {
	stats := map[string]any{"ftm": float64(4)}
	split := shootingSplit(stats, "freethrows_goals", "ftm", "fta")

	assert.Equal(t, "4", split.Made)
	assert.Equal(t, "", split.Line)
	assert.Equal(t, "", split.Percentage)
}

func TestNormalizeRowEmpty(t *testing.T) {
	got := NormalizeRow(map[string]any{}, "Someone", "Somewhere")
	assert.Equal(t, boxscore.CanonicalStatRow{PlayerName: "Someone", TeamName: "Somewhere"}, got)
}
