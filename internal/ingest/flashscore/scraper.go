package flashscore

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/fortuna/nightbox/internal/boxscore"
	"github.com/fortuna/nightbox/internal/logging"
)

// recencyWindowDays accepts games 0 or 1 calendar days in the past.
const recencyWindowDays = 1

// Status classifies a scrape outcome that is not an error.
type Status string

const (
	// StatusUsable means the most recent match falls inside the
	// recency window and its stats were extracted.
	StatusUsable Status = "usable"

	// StatusIgnored means the page loaded and parsed fine but the most
	// recent match is older than the recency window. This is not an
	// error; the athlete simply has nothing to report this run.
	StatusIgnored Status = "ignored"
)

// Result is one athlete's scrape outcome.
type Result struct {
	Status Status
	Reason string // populated for StatusIgnored
	Row    boxscore.PushRow
}

// Scraper resolves an athlete's most recent match row from the public
// stats page. It is the alternative deployment of the resolution
// pipeline: its output is never reconciled against the provider path.
type Scraper struct {
	browser *Browser
	zone    *time.Location
	now     func() time.Time
	logger  *logging.Logger
}

// ScraperConfig configures one Scraper. Zone is the reference calendar
// for the recency window; Now is overridable for tests.
type ScraperConfig struct {
	Browser *Browser
	Zone    *time.Location
	Now     func() time.Time
	Logger  *logging.Logger
}

func NewScraper(cfg ScraperConfig) *Scraper {
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
	return &Scraper{
		browser: cfg.Browser,
		zone:    zone,
		now:     now,
		logger:  logger,
	}
}

// ScrapePlayer loads the target's page, extracts the most recent match
// row and applies the recency filter.
func (s *Scraper) ScrapePlayer(ctx context.Context, target boxscore.AthleteTarget) (Result, error) {
	if !target.Scrapable() {
		return Result{}, fmt.Errorf("target %q has no flashscore identifiers", target.Label)
	}

	html, err := s.browser.FetchPlayerPage(ctx, target.FlashscoreSlug, target.FlashscoreID)
	if err != nil {
		return Result{}, err
	}

	return s.extract(html, target.Label)
}

// extract is the browser-free half of ScrapePlayer, split out so
// parsing and the recency filter are testable against static HTML.
func (s *Scraper) extract(html, label string) (Result, error) {
	match, err := parseLastMatch(html)
	if err != nil {
		return Result{}, err
	}

	gameDate, err := parseMatchDate(match.DateText)
	if err != nil {
		return Result{}, err
	}

	age := daysBehind(gameDate, s.now(), s.zone)
	if age < 0 || age > recencyWindowDays {
		s.logger.Info("scraped game outside recency window",
			"player", label, "game_date", match.DateText, "age_days", age)
		return Result{
			Status: StatusIgnored,
			Reason: fmt.Sprintf("game dated %s is outside the recency window", match.DateText),
		}, nil
	}

	stats, err := mapIconCells(match.Icons)
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("scraped usable game row", "player", label, "game_date", match.DateText)
	return Result{
		Status: StatusUsable,
		Row: boxscore.PushRow{
			Player:    label,
			GameDate:  gameDate.Format("2006-01-02"),
			GameURL:   match.Href,
			Minutes:   stats.minutes,
			Points:    stats.points,
			Rebounds:  stats.rebounds,
			Assists:   stats.assists,
			Steals:    stats.steals,
			Turnovers: stats.turnovers,
		},
	}, nil
}

// lastMatch is the raw extraction from the most recent match row.
type lastMatch struct {
	Href     string
	DateText string
	Icons    []string
}

func parseLastMatch(html string) (lastMatch, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return lastMatch{}, fmt.Errorf("parse player page: %w", err)
	}

	row := doc.Find(lastMatchSelector).First()
	if row.Length() == 0 {
		return lastMatch{}, fmt.Errorf("no match row found on player page")
	}

	out := lastMatch{
		Href:     row.AttrOr("href", ""),
		DateText: strings.TrimSpace(row.Find(".lmTable__date").First().Text()),
	}

	row.Find(".lmTable__icon").Each(func(_ int, cell *goquery.Selection) {
		if text := strings.TrimSpace(cell.Text()); text != "" {
			out.Icons = append(out.Icons, text)
		}
	})

	return out, nil
}

var matchDatePattern = regexp.MustCompile(`^(\d{2})\.(\d{2})\.(\d{2})$`)

// parseMatchDate converts the page's DD.MM.YY date text into a
// day-granularity date. Anything not matching the fixed pattern is an
// error, not an ignore.
func parseMatchDate(text string) (time.Time, error) {
	m := matchDatePattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, fmt.Errorf("invalid match date format %q", text)
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	yy, _ := strconv.Atoi(m[3])
	year := 2000 + yy

	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date.Day() != day || int(date.Month()) != month {
		return time.Time{}, fmt.Errorf("impossible match date %q", text)
	}
	return date, nil
}

// daysBehind returns how many whole calendar days the game date lies
// behind "today" in the reference zone. Negative means the game date
// is in the future.
func daysBehind(gameDate, now time.Time, zone *time.Location) int {
	local := now.In(zone)
	today := civilDays(local.Year(), local.Month(), local.Day())
	game := civilDays(gameDate.Year(), gameDate.Month(), gameDate.Day())
	return today - game
}

func civilDays(year int, month time.Month, day int) int {
	return int(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// iconStats is the positional mapping of the six icon cells. The page
// carries no labels, so the order (minutes, points, rebounds, assists,
// steals, turnovers) is assumed; a markup reorder upstream corrupts
// the mapping silently. Fewer than six cells, or a count cell that is
// not a number (a DNP marker, say), is treated as an error.
type iconStats struct {
	minutes   string
	points    int
	rebounds  int
	assists   int
	steals    int
	turnovers int
}

func mapIconCells(cells []string) (iconStats, error) {
	if len(cells) < 6 {
		return iconStats{}, fmt.Errorf("expected 6 stat cells, got %d", len(cells))
	}
	out := iconStats{minutes: strings.TrimSpace(cells[0])}
	counts := []*int{&out.points, &out.rebounds, &out.assists, &out.steals, &out.turnovers}
	for i, dst := range counts {
		v, err := strconv.Atoi(strings.TrimSpace(cells[i+1]))
		if err != nil {
			return iconStats{}, fmt.Errorf("non-numeric stat cell %d: %q", i+1, cells[i+1])
		}
		*dst = v
	}
	return out, nil
}
