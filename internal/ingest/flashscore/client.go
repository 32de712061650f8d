package flashscore

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/fortuna/nightbox/internal/logging"
)

const (
	// BaseURL for public player pages.
	BaseURL = "https://www.flashscore.com/player"

	// UserAgent matches a mainstream desktop browser; the site serves
	// a degraded shell to unknown agents.
	UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// lastMatchSelector addresses the most recent match row. The page
	// renders it client-side, so the browser must wait for it.
	lastMatchSelector = "#last-matches .lmTable a:first-of-type"

	pageTimeout = 30 * time.Second
)

// blockedResources are sub-resource types aborted during page load.
// Neither contributes to the stats markup and both dominate transfer
// time on this page.
var blockedResources = map[network.ResourceType]bool{
	network.ResourceTypeImage: true,
	network.ResourceTypeFont:  true,
}

// Browser drives a shared headless Chrome allocator for player-page
// fetches. One Browser serves a whole scrape run; each fetch gets its
// own tab and bounded timeout.
type Browser struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	logger   *logging.Logger
}

func NewBrowser(logger *logging.Logger) *Browser {
	if logger == nil {
		logger = logging.Default()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(UserAgent),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		allocCtx: allocCtx,
		cancel:   cancel,
		logger:   logger,
	}
}

// Close releases the browser allocator.
func (b *Browser) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}

// FetchPlayerPage loads the public player page and returns its HTML
// once the most recent match row has rendered. Image and font
// sub-resources are blocked for speed.
func (b *Browser) FetchPlayerPage(ctx context.Context, slug, id string) (string, error) {
	url := fmt.Sprintf("%s/%s/%s/", BaseURL, slug, id)

	browserCtx, cancelTab := chromedp.NewContext(b.allocCtx)
	defer cancelTab()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, pageTimeout)
	defer cancelTimeout()

	// The tab context must descend from the allocator, so the caller's
	// cancellation is forwarded to it instead of inherited.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	chromedp.ListenTarget(browserCtx, func(ev any) {
		event, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			tab := chromedp.FromContext(browserCtx)
			exec := cdp.WithExecutor(browserCtx, tab.Target)
			if blockedResources[event.ResourceType] {
				_ = fetch.FailRequest(event.RequestID, network.ErrorReasonBlockedByClient).Do(exec)
				return
			}
			_ = fetch.ContinueRequest(event.RequestID).Do(exec)
		}()
	})

	b.logger.Debug("loading player page", "url", url)

	var html string
	err := chromedp.Run(browserCtx,
		fetch.Enable(),
		chromedp.Navigate(url),
		chromedp.WaitReady(lastMatchSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("load player page %s: %w", url, err)
	}
	if html == "" {
		return "", fmt.Errorf("empty HTML for player page %s", url)
	}

	return html, nil
}
