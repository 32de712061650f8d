package apisports

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/fortuna/nightbox/internal/boxscore"
)

// NormalizeRow converts one raw provider record into a canonical stat
// row. The provider returns differently-nested payloads for the same
// logical endpoint depending on version and plan tier, so every field
// is extracted through an ordered list of candidate shapes. Callers
// supply defaultPlayer/defaultTeam as fallbacks for rows that omit
// their own identity fields.
func NormalizeRow(row map[string]any, defaultPlayer, defaultTeam string) boxscore.CanonicalStatRow {
	stats := statBlock(row)

	out := boxscore.CanonicalStatRow{
		PlayerName: playerName(row, defaultPlayer),
		TeamName:   teamName(row, defaultTeam),
		GameID:     gameID(row),

		Points:   pickStat(stats, "points", "pts"),
		Rebounds: reboundsTotal(stats),
		Assists:  pickStat(stats, "assists", "ast"),
		Minutes:  pickStat(stats, "min", "minutes"),

		FieldGoals:  shootingSplit(stats, "field_goals", "fgm", "fga"),
		ThreePoints: shootingSplit(stats, "threepoint_goals", "tpm", "tpa"),
		FreeThrows:  shootingSplit(stats, "freethrows_goals", "ftm", "fta"),
	}

	return out
}

// statBlock locates the statistics payload inside a raw row. Three
// shapes exist in the wild, tried in order: a statistics array whose
// first element is a record, a statistics record used directly, and
// rows that carry the stat fields at the top level.
func statBlock(row map[string]any) map[string]any {
	if arr, ok := row["statistics"].([]any); ok && len(arr) > 0 {
		if first, ok := arr[0].(map[string]any); ok {
			return first
		}
	}
	if m, ok := row["statistics"].(map[string]any); ok {
		return m
	}
	if _, ok := row["points"]; ok {
		return row
	}
	if _, ok := row["rebounds"]; ok {
		return row
	}
	return map[string]any{}
}

func playerName(row map[string]any, fallback string) string {
	player := extractMap(row, "player")
	if name := extractString(player, "name"); name != "" {
		return name
	}

	first := extractString(player, "firstname")
	last := extractString(player, "lastname")
	if joined := strings.TrimSpace(first + " " + last); joined != "" {
		return joined
	}

	return fallback
}

func teamName(row map[string]any, fallback string) string {
	if name := extractString(extractMap(row, "team"), "name"); name != "" {
		return name
	}
	return fallback
}

func gameID(row map[string]any) int {
	if id := extractInt(extractMap(row, "game"), "id"); id > 0 {
		return id
	}
	return extractInt(row, "id")
}

// pickStat returns the first present candidate key, stringified.
// Non-scalar values are JSON-encoded rather than dropped so that an
// unexpected shape still surfaces in the report instead of vanishing.
func pickStat(stats map[string]any, keys ...string) string {
	for _, key := range keys {
		value, ok := stats[key]
		if !ok {
			continue
		}
		if s, ok := scalarString(value); ok {
			return s
		}
		if encoded, err := json.Marshal(value); err == nil {
			return string(encoded)
		}
	}
	return ""
}

// reboundsTotal prefers the grouped {total: N} sub-object over a bare
// scalar, then the abbreviated key.
func reboundsTotal(stats map[string]any) string {
	switch reb := stats["rebounds"].(type) {
	case map[string]any:
		if s, ok := scalarString(reb["total"]); ok {
			return s
		}
	case nil:
	default:
		if s, ok := scalarString(reb); ok {
			return s
		}
	}

	if s, ok := scalarString(stats["reb"]); ok {
		return s
	}
	return ""
}

// shootingSplit extracts one shooting category. Flat made/attempted
// keys win; missing sides fall back to the grouped object's
// total/attempts. The percentage comes from the grouped object when
// supplied, otherwise it is derived, and it always ends in "%".
// Zero attempts never produce a percentage.
func shootingSplit(stats map[string]any, groupKey, madeKey, attKey string) boxscore.ShootingSplit {
	var made, att, pct string

	if s, ok := scalarString(stats[madeKey]); ok {
		made = s
	}
	if s, ok := scalarString(stats[attKey]); ok {
		att = s
	}

	if group, ok := stats[groupKey].(map[string]any); ok {
		if made == "" {
			if s, ok := scalarString(group["total"]); ok {
				made = s
			}
		}
		if att == "" {
			if s, ok := scalarString(group["attempts"]); ok {
				att = s
			}
		}
		if s, ok := scalarString(group["percentage"]); ok && s != "" {
			pct = s
		}
	}

	line := ""
	if made != "" && att != "" {
		line = made + "/" + att
	}

	if pct == "" && made != "" && att != "" {
		m, mErr := strconv.ParseFloat(made, 64)
		a, aErr := strconv.ParseFloat(att, 64)
		if mErr == nil && aErr == nil && a > 0 {
			pct = formatPercentage(m / a * 100)
		}
	}

	if pct != "" {
		pct = strings.TrimRight(pct, "%") + "%"
	}

	return boxscore.ShootingSplit{
		Made:       made,
		Attempted:  att,
		Line:       line,
		Percentage: pct,
	}
}

func formatPercentage(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}

// scalarString stringifies scalar JSON values and reports false for
// arrays, objects and nil.
func scalarString(v any) (string, bool) {
	switch value := v.(type) {
	case string:
		return value, true
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(value), true
	case int:
		return strconv.Itoa(value), true
	default:
		return "", false
	}
}

// Shared duck-typed accessors for the provider's untyped payloads.

func extractString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func extractInt(m map[string]any, key string) int {
	if v, ok := m[key]; ok {
		return parseInt(v)
	}
	return 0
}

func extractMap(m map[string]any, key string) map[string]any {
	if v, ok := m[key]; ok {
		if mv, ok := v.(map[string]any); ok {
			return mv
		}
	}
	return map[string]any{}
}

func parseInt(v any) int {
	switch value := v.(type) {
	case float64:
		return int(value)
	case int:
		return value
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(value))
		return i
	default:
		return 0
	}
}

func parseInt64(v any) int64 {
	switch value := v.(type) {
	case float64:
		return int64(value)
	case int:
		return int64(value)
	case int64:
		return value
	case string:
		i, _ := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		return i
	case json.Number:
		i, _ := value.Int64()
		return i
	default:
		return 0
	}
}
