package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohamedkhairy/stock-screener/pkg/logger"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the v3 REST root
	DefaultBaseURL = "https://financialmodelingprep.com/api/v3"

	// DefaultTimeout bounds a single upstream request
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is requests per second across the client
	DefaultRateLimit = 10

	maxErrorBody = 512
)

// Client talks to the Financial Modeling Prep REST API. The API key is
// passed per call so one client can serve runs with different credentials.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit sets the request rate. Zero or less disables pacing.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new FMP client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// get performs a GET request and decodes the JSON body into result.
// endpoint is the low-cardinality name used for metrics and errors.
func (c *Client) get(ctx context.Context, endpoint, path, apiKey string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &RateLimitError{Err: err}
	}

	query := url.Values{}
	for k, v := range params {
		query[k] = append([]string(nil), v...)
	}
	query.Set("apikey", apiKey)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	logger.WithContext(ctx).Debug("FMP request",
		logger.String("endpoint", endpoint),
		logger.String("path", path),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.UpstreamRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	logger.UpstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Endpoint:   endpoint,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}

	return nil
}

// Screener runs the stock screener with the given query parameters
func (c *Client) Screener(ctx context.Context, apiKey string, params url.Values) ([]Record, error) {
	var result []Record
	if err := c.get(ctx, "stock-screener", "/stock-screener", apiKey, params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// HistoricalPrices returns daily bars between from and to, newest first
func (c *Client) HistoricalPrices(ctx context.Context, apiKey, symbol string, from, to time.Time) ([]Bar, error) {
	params := url.Values{}
	params.Set("from", from.Format(DateLayout))
	params.Set("to", to.Format(DateLayout))

	var result historicalResponse
	path := "/historical-price-full/" + url.PathEscape(symbol)
	if err := c.get(ctx, "historical-price-full", path, apiKey, params, &result); err != nil {
		return nil, err
	}
	return result.Historical, nil
}

// TechnicalIndicator returns the values of indicatorType (e.g. "rsi") in
// the order the provider sent them
func (c *Client) TechnicalIndicator(ctx context.Context, apiKey, timeframe, symbol, indicatorType string, period int) ([]IndicatorPoint, error) {
	indicatorType = strings.ToLower(indicatorType)
	params := url.Values{}
	params.Set("type", indicatorType)
	params.Set("period", strconv.Itoa(period))

	var raw []Record
	path := fmt.Sprintf("/technical_indicator/%s/%s", url.PathEscape(timeframe), url.PathEscape(symbol))
	if err := c.get(ctx, "technical_indicator", path, apiKey, params, &raw); err != nil {
		return nil, err
	}

	points := make([]IndicatorPoint, 0, len(raw))
	for _, r := range raw {
		p := IndicatorPoint{Date: r.String("date")}
		if p.Date == "" {
			p.Date = r.String("datetime")
		}
		if v, ok := r.Float(indicatorType); ok {
			p.Value = &v
		}
		points = append(points, p)
	}
	return points, nil
}

// KeyMetricsTTM returns trailing twelve month key metrics
func (c *Client) KeyMetricsTTM(ctx context.Context, apiKey, symbol string) ([]Record, error) {
	params := url.Values{}
	params.Set("limit", "1")

	var result []Record
	if err := c.get(ctx, "key-metrics-ttm", "/key-metrics-ttm/"+url.PathEscape(symbol), apiKey, params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// RatiosTTM returns trailing twelve month financial ratios
func (c *Client) RatiosTTM(ctx context.Context, apiKey, symbol string) ([]Record, error) {
	params := url.Values{}
	params.Set("limit", "1")

	var result []Record
	if err := c.get(ctx, "ratios-ttm", "/ratios-ttm/"+url.PathEscape(symbol), apiKey, params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Profile returns the company profile
func (c *Client) Profile(ctx context.Context, apiKey, symbol string) ([]Record, error) {
	var result []Record
	if err := c.get(ctx, "profile", "/profile/"+url.PathEscape(symbol), apiKey, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}
