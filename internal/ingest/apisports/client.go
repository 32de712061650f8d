package apisports

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/fortuna/nightbox/internal/boxscore"
	"github.com/fortuna/nightbox/internal/logging"
)

const (
	// DefaultBaseURL is the API-Basketball v1 base (API-SPORTS).
	DefaultBaseURL = "https://v1.basketball.api-sports.io"

	// authHeader carries the static API credential on every request.
	authHeader = "x-apisports-key"

	defaultTimeout = 15 * time.Second
	maxBodySnippet = 500
)

// Canonical error messages surfaced through Envelope.Errors. The
// resolver matches on errMissingAPIKey to short-circuit a run whose
// credential is absent.
const (
	errMissingAPIKey = "Missing API key."
	errInvalidJSON   = "Invalid JSON response."
)

// Envelope is the decoded provider response. When Errors is non-empty
// the Response field must be treated as absent regardless of content.
type Envelope struct {
	Errors   []string
	Response []map[string]any
	Results  int
}

// Usable reports whether the envelope carries rows a caller may act
// on. The declared Results count is deliberately not consulted here:
// the provider is known to emit counts that disagree with the row
// list, and the list itself is the authoritative signal.
func (e Envelope) Usable() bool {
	return len(e.Errors) == 0 && len(e.Response) > 0
}

// MissingCredential reports whether the envelope is the local
// missing-API-key sentinel produced before any network call.
func (e Envelope) MissingCredential() bool {
	return len(e.Errors) == 1 && e.Errors[0] == errMissingAPIKey
}

// CredentialMissing reports whether a resolution failed for lack of an
// API key. Every later athlete in the same run would fail the same
// way, so callers stop resolving when they see it.
func CredentialMissing(re *boxscore.ResolutionError) bool {
	return re != nil && len(re.Messages) == 1 && re.Messages[0] == errMissingAPIKey
}

// Fetcher is the surface the resolver depends on.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, params url.Values) Envelope
}

// ClientConfig configures the provider client. Zero values fall back
// to defaults; an empty APIKey is allowed and turns every Fetch into
// the missing-credential envelope.
type ClientConfig struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Logger     *logging.Logger
}

// Client issues authenticated GET requests against the statistics
// provider and folds every failure mode into the Envelope contract.
// Retries are never issued for the identical call; fallback happens at
// the resolver layer by trying different endpoints and parameters.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logging.Logger
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = timeout
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		logger:     logger,
	}
}

// Fetch performs one GET against the provider. All failures come back
// as Envelope.Errors; a returned envelope with empty Errors had a 2xx
// status and a decodable JSON body.
func (c *Client) Fetch(ctx context.Context, endpoint string, params url.Values) Envelope {
	endpoint = "/" + strings.TrimLeft(endpoint, "/")

	if c.apiKey == "" {
		c.logger.Warn("provider call skipped: no API key configured", "endpoint", endpoint)
		return Envelope{Errors: []string{errMissingAPIKey}}
	}

	fullURL := c.baseURL + endpoint
	if encoded := params.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return Envelope{Errors: []string{err.Error()}}
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set(authHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("provider request failed", "endpoint", endpoint, "error", err)
		return Envelope{Errors: []string{err.Error()}}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 6<<20))
	if err != nil {
		c.logger.Warn("provider body read failed", "endpoint", endpoint, "error", err)
		return Envelope{Errors: []string{err.Error()}}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("provider non-2xx response",
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"body", abbreviate(string(body), maxBodySnippet),
		)
		return Envelope{Errors: []string{
			fmt.Sprintf("Non-2xx response code: %d (%s)", resp.StatusCode, abbreviate(string(body), maxBodySnippet)),
		}}
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		c.logger.Warn("provider returned invalid JSON", "endpoint", endpoint)
		return Envelope{Errors: []string{errInvalidJSON}}
	}

	env := decodeEnvelope(raw)
	c.logger.Debug("provider call ok",
		"endpoint", endpoint,
		"items", len(env.Response),
		"declared_results", env.Results,
	)
	return env
}

// decodeEnvelope maps the untyped provider body onto Envelope. The
// errors field varies by plan tier: sometimes a list of strings,
// sometimes an object keyed by error kind, sometimes an empty object
// standing in for "no errors".
func decodeEnvelope(raw map[string]any) Envelope {
	env := Envelope{}

	switch errs := raw["errors"].(type) {
	case []any:
		for _, item := range errs {
			if msg := stringify(item); msg != "" {
				env.Errors = append(env.Errors, msg)
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(errs))
		for key := range errs {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if msg := stringify(errs[key]); msg != "" {
				env.Errors = append(env.Errors, key+": "+msg)
			}
		}
	}

	if rows, ok := raw["response"].([]any); ok {
		for _, item := range rows {
			if row, ok := item.(map[string]any); ok {
				env.Response = append(env.Response, row)
			}
		}
	}

	switch results := raw["results"].(type) {
	case float64:
		env.Results = int(results)
	case string:
		fmt.Sscanf(results, "%d", &env.Results)
	}

	return env
}

func stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(value)
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func abbreviate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
