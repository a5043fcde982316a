// Package catapi provides the TheCatAPI image search client: one GET per page,
// pagination metadata from the pagination-count header, and tagged errors.
package catapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/cat-gallery/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for TheCatAPI client operations.
var (
	catapiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catapi_requests_total",
		Help: "Total TheCatAPI requests by endpoint and status",
	}, []string{"endpoint", "status"})

	catapiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catapi_request_duration_seconds",
		Help:    "TheCatAPI request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	catapiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catapi_errors_total",
		Help: "Total TheCatAPI errors by class",
	}, []string{"class"})
)

// DefaultBaseURL is the image search endpoint.
const DefaultBaseURL = "https://api.thecatapi.com/v1/images/search"

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 10 << 20

// Client is the TheCatAPI search client.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the search endpoint (default DefaultBaseURL).
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// APIKey is sent as x-api-key when set. Anonymous access works with smaller pages.
	APIKey string

	// Timeout bounds each HTTP request; 0 disables the timeout.
	Timeout time.Duration

	// Redis enables the shared rate limit gate when non-nil.
	Redis *redis.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
	}
}

// New creates a new TheCatAPI client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http(s) (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	logger := log.With().Str("component", "catapi").Logger()

	var rateLimiter *ratelimit.Tracker
	if cfg.Redis != nil {
		rateLimiter = ratelimit.NewTracker(cfg.Redis, logger)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     baseURL,
		rateLimiter: rateLimiter,
		config:      cfg,
		logger:      logger,
	}, nil
}

// Search fetches one page of images. Zero params fields take their defaults.
func (c *Client) Search(ctx context.Context, params SearchParams) (*Response, error) {
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, c.fail(&APIError{
			Class:   ErrorClassClient,
			Message: "invalid search params",
			Err:     err,
		})
	}
	return c.Get(ctx, params.Values())
}

// Get issues a GET against the base endpoint with the given query.
func (c *Client) Get(ctx context.Context, query url.Values) (*Response, error) {
	u := *c.baseURL
	q := u.Query()
	for key, values := range query {
		q[key] = values
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, c.fail(&APIError{
			Class:   ErrorClassClient,
			Message: "create request",
			Err:     err,
		})
	}

	return c.Do(req)
}

// Do performs a request with rate limit gating and error classification.
// The body of a successful response is read fully and the connection released.
func (c *Client) Do(req *http.Request) (*Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		catapiRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			// Redis trouble must not take the gallery down.
			c.logger.Warn().Err(err).Msg("Rate limit check failed, allowing request")
		} else if !allowed {
			catapiRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			return nil, c.fail(&APIError{
				Class:   ErrorClassRateLimit,
				Message: "request not sent",
				Err:     ErrRateLimited,
			})
		}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("x-api-key", c.config.APIKey)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("query", req.URL.RawQuery).
		Msg("Executing TheCatAPI request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		catapiRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, c.fail(&APIError{
			Class:   ErrorClassNetwork,
			Message: "request failed",
			Err:     err,
		})
	}
	defer resp.Body.Close()

	catapiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromResponse(ctx, resp.StatusCode, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	if class := classifyStatus(resp.StatusCode); class != "" {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, c.fail(&APIError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    resp.Status,
		})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.fail(&APIError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		})
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		body:       body,
	}, nil
}

// fail records and logs an APIError before it is returned.
func (c *Client) fail(apiErr *APIError) error {
	catapiErrorsTotal.WithLabelValues(string(apiErr.Class)).Inc()
	c.logger.Warn().
		Int("status", apiErr.StatusCode).
		Str("error_class", string(apiErr.Class)).
		Err(apiErr.Err).
		Msg(apiErr.Message)
	return apiErr
}

// BaseURL returns the configured search endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// PageSource fetches fixed-size search pages for batch fetching.
type PageSource struct {
	Client *Client
	Limit  int
	Order  Order
}

// FetchPage fetches one page and returns its cats and the total page count.
func (s PageSource) FetchPage(ctx context.Context, page int) ([]Cat, int, error) {
	params := SearchParams{Limit: s.Limit, Page: page, Order: s.Order}.WithDefaults()

	resp, err := s.Client.Search(ctx, params)
	if err != nil {
		return nil, 0, err
	}

	totalRows, err := resp.PaginationCount()
	if err != nil {
		return nil, 0, err
	}

	cats, err := resp.Cats()
	if err != nil {
		return nil, 0, err
	}

	return cats, TotalPages(totalRows, params.Limit), nil
}
