package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fortuna/nightbox/internal/boxscore"
	"github.com/fortuna/nightbox/internal/ingest/flashscore"
	"github.com/fortuna/nightbox/internal/logging"
)

// targetList accepts repeated -player flags of the form label:slug:id.
type targetList []boxscore.AthleteTarget

func (t *targetList) String() string {
	parts := make([]string, 0, len(*t))
	for _, target := range *t {
		parts = append(parts, target.Label)
	}
	return strings.Join(parts, ",")
}

func (t *targetList) Set(value string) error {
	parts := strings.SplitN(value, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return fmt.Errorf("expected label:slug:id, got %q", value)
	}
	*t = append(*t, boxscore.AthleteTarget{
		Label:          parts[0],
		FlashscoreSlug: parts[1],
		FlashscoreID:   parts[2],
	})
	return nil
}

func main() {
	var targets targetList
	var (
		pushURL    = flag.String("push-url", os.Getenv("NIGHTBOX_PUSH_URL"), "push webhook URL")
		pushSecret = flag.String("push-secret", os.Getenv("NIGHTBOX_PUSH_SECRET"), "push webhook shared secret")
		zoneName   = flag.String("timezone", "America/New_York", "zone for the recency window")
		timeout    = flag.Duration("timeout", 10*time.Minute, "overall run timeout")
		logLevel   = flag.String("log-level", "info", "log level")
	)
	flag.Var(&targets, "player", "player to scrape as label:slug:id (repeatable)")
	flag.Parse()

	logger := logging.NewJSON(logging.ParseLevel(*logLevel)).With("service", "nightbox-scrape")
	logging.SetDefault(logger)
	defer logger.Sync()

	if len(targets) == 0 {
		logger.Error("no players given, use -player label:slug:id")
		os.Exit(2)
	}
	if *pushURL == "" {
		logger.Error("no push URL given, use -push-url or NIGHTBOX_PUSH_URL")
		os.Exit(2)
	}

	zone, err := time.LoadLocation(*zoneName)
	if err != nil {
		logger.Error("bad timezone", "zone", *zoneName, "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	browser := flashscore.NewBrowser(logger)
	defer browser.Close()

	scraper := flashscore.NewScraper(flashscore.ScraperConfig{
		Browser: browser,
		Zone:    zone,
		Logger:  logger,
	})

	payload := boxscore.PushPayload{
		Source:         "flashscore",
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339),
	}
	for _, target := range targets {
		result, err := scraper.ScrapePlayer(ctx, target)
		if err != nil {
			logger.Error("scrape failed", "player", target.Label, "error", err)
			continue
		}
		if result.Status != flashscore.StatusUsable {
			logger.Info("scrape ignored", "player", target.Label, "reason", result.Reason)
			continue
		}
		payload.Rows = append(payload.Rows, result.Row)
	}

	pusher := flashscore.NewPushClient(*pushURL, *pushSecret, logger)
	if err := pusher.Push(ctx, payload); err != nil {
		logger.Error("push failed", "error", err)
		os.Exit(1)
	}
	logger.Info("run complete", "players", len(targets), "rows", len(payload.Rows))
}
