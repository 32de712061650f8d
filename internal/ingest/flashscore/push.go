package flashscore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fortuna/nightbox/internal/boxscore"
	"github.com/fortuna/nightbox/internal/logging"
)

// SecretHeader authenticates the inbound push. The receiving webhook
// compares it against the stored secret in constant time.
const SecretHeader = "X-Nightbox-Secret"

// PushClient delivers scraped rows to the service's push webhook. The
// scrape-variant deployment typically runs on a separate host from the
// service itself.
type PushClient struct {
	httpClient *http.Client
	url        string
	secret     string
	logger     *logging.Logger
}

func NewPushClient(url, secret string, logger *logging.Logger) *PushClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &PushClient{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		url:        url,
		secret:     secret,
		logger:     logger,
	}
}

// Push POSTs the payload, authenticated by the shared secret header.
func (c *PushClient) Push(ctx context.Context, payload boxscore.PushPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SecretHeader, c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push rejected: status=%d body=%s", resp.StatusCode, respBody)
	}

	c.logger.Info("push delivered", "rows", len(payload.Rows), "status", resp.StatusCode)
	return nil
}
