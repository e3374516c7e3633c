package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/koperasi/anomaly-engine/internal/cache"
	"github.com/koperasi/anomaly-engine/internal/models"
)

// LedgerClientConfig configures the cooperative ledger series API.
type LedgerClientConfig struct {
	BaseURL        string
	SeriesPath     string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	SeriesTTL      time.Duration
}

// LedgerClient fetches metric series from the cooperative ledger service.
type LedgerClient struct {
	baseURL        string
	seriesPath     string
	httpClient     *http.Client
	cache          cache.Provider
	seriesTTL      time.Duration
	maxRetries     int
	initialBackoff time.Duration
	logger         *slog.Logger
}

// NewLedgerClient constructs a client targeting the configured ledger instance.
func NewLedgerClient(cfg LedgerClientConfig, cacheProvider cache.Provider, logger *slog.Logger) *LedgerClient {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SeriesTTL < 0 {
		cfg.SeriesTTL = 0
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	return &LedgerClient{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		seriesPath:     cfg.SeriesPath,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		cache:          cacheProvider,
		seriesTTL:      cfg.SeriesTTL,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		logger:         logger,
	}
}

// FetchSeries returns the observations of metric within [start, end] ordered by time.
func (c *LedgerClient) FetchSeries(ctx context.Context, metric string, start, end time.Time) (models.Series, error) {
	if c == nil {
		return nil, fmt.Errorf("ledger client not initialised")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("ledger base URL not configured")
	}
	if metric == "" {
		return nil, fmt.Errorf("metric is required")
	}

	cacheKey := ""
	if c.seriesTTL > 0 {
		cacheKey = seriesCacheKey(metric, start, end)
		if data, err := c.cache.Get(ctx, cacheKey); err == nil {
			var cached models.Series
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	payload := map[string]interface{}{
		"metric": metric,
		"start":  start.UTC().Format(time.RFC3339),
		"end":    end.UTC().Format(time.RFC3339),
	}

	var response struct {
		Series []struct {
			Timestamp time.Time `json:"timestamp"`
			Value     float64   `json:"value"`
		} `json:"series"`
	}

	if err := c.postJSONWithRetry(ctx, c.seriesURL(), payload, &response); err != nil {
		return nil, fmt.Errorf("ledger series request failed: %w", err)
	}

	series := make(models.Series, 0, len(response.Series))
	for _, sample := range response.Series {
		series = append(series, models.Point{Value: sample.Value, Timestamp: sample.Timestamp})
	}

	if cacheKey != "" && len(series) > 0 {
		if data, err := json.Marshal(series); err == nil {
			if err := c.cache.Set(ctx, cacheKey, data, c.seriesTTL); err != nil {
				c.logger.Debug("series cache write failed", slog.String("metric", metric), slog.Any("error", err))
			}
		}
	}
	return series, nil
}

func (c *LedgerClient) seriesURL() string {
	cleaned := "/" + strings.TrimLeft(c.seriesPath, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *LedgerClient) postJSONWithRetry(ctx context.Context, endpoint string, payload any, out any) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithMaxRetries(policy, uint64(c.maxRetries))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := c.postJSON(ctx, endpoint, payload, out)
		if err != nil && !isPermanent(err) {
			c.logger.Debug("ledger request failed", slog.Int("attempt", attempt), slog.Any("error", err))
		}
		return err
	}, b)
}

func (c *LedgerClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("marshal payload: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("ledger returned %s", resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(statusErr)
		}
		return statusErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func isPermanent(err error) bool {
	var permanent *backoff.PermanentError
	return errors.As(err, &permanent)
}

func seriesCacheKey(metric string, start, end time.Time) string {
	return fmt.Sprintf("ledger:series:%s:%d:%d", metric, start.Unix(), end.Unix())
}
