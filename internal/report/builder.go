package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/fortuna/nightbox/internal/boxscore"
)

// columns is the fixed column order of the nightly report. Raw
// made/attempted integers follow the display columns so spreadsheet
// consumers can compute on them directly.
var columns = []string{
	"Player",
	"Team",
	"Game ID",
	"Points",
	"Rebounds",
	"Assists",
	"Minutes",

	"Field Goals",
	"Field Goal Percentage",
	"3 Points",
	"3 Point Percentage",
	"Free Throws",
	"Free Throw Percentage",

	"FGM",
	"FGA",
	"3 Points Made",
	"3 Points Attempt",
	"FTM",
	"FTA",
}

// BuildCSV renders a batch into the nightly CSV. An errors section is
// appended only when errors exist: a blank record, an "ERRORS" header,
// a sub-header row, then one row per failed athlete with its messages
// pipe-joined. A batch with zero data rows still renders.
func BuildCSV(batch boxscore.ReportBatch) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("write report header: %w", err)
	}

	for _, row := range batch.Rows {
		record := []string{
			row.PlayerName,
			row.TeamName,
			strconv.Itoa(row.GameID),
			row.Points,
			row.Rebounds,
			row.Assists,
			row.Minutes,

			row.FieldGoals.Line,
			row.FieldGoals.Percentage,
			row.ThreePoints.Line,
			row.ThreePoints.Percentage,
			row.FreeThrows.Line,
			row.FreeThrows.Percentage,

			row.FieldGoals.Made,
			row.FieldGoals.Attempted,
			row.ThreePoints.Made,
			row.ThreePoints.Attempted,
			row.FreeThrows.Made,
			row.FreeThrows.Attempted,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write report row: %w", err)
		}
	}

	if len(batch.Errors) > 0 {
		if err := writeErrorSection(w, batch.Errors); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush report: %w", err)
	}
	return buf.Bytes(), nil
}

func writeErrorSection(w *csv.Writer, errors []boxscore.ResolutionError) error {
	rows := [][]string{
		{""},
		{"ERRORS"},
		{"Label", "Team ID", "Player ID", "Error"},
	}
	for _, e := range errors {
		rows = append(rows, []string{
			e.Label,
			strconv.Itoa(e.TeamID),
			strconv.Itoa(e.PlayerID),
			strings.Join(e.Messages, " | "),
		})
	}
	for _, record := range rows {
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write error section: %w", err)
		}
	}
	return nil
}

// pushColumns is the column order for reports built from scraped rows
// delivered over the push webhook.
var pushColumns = []string{
	"Player",
	"Game Date",
	"Game URL",
	"Minutes",
	"Points",
	"Rebounds",
	"Assists",
	"Steals",
	"Turnovers",
}

// BuildPushCSV renders webhook rows into the scrape-variant CSV.
func BuildPushCSV(rows []boxscore.PushRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(pushColumns); err != nil {
		return nil, fmt.Errorf("write push header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Player,
			row.GameDate,
			row.GameURL,
			row.Minutes,
			strconv.Itoa(row.Points),
			strconv.Itoa(row.Rebounds),
			strconv.Itoa(row.Assists),
			strconv.Itoa(row.Steals),
			strconv.Itoa(row.Turnovers),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write push row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush push report: %w", err)
	}
	return buf.Bytes(), nil
}
