// Package catalog is a read-only proxy in front of the TMDB API. It forwards
// an endpoint and its query parameters, adds the API key, and caches
// successful responses.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anonto42/reelshelf/backend/internal/apperrors"
	"github.com/anonto42/reelshelf/backend/internal/repositories"
	"github.com/anonto42/reelshelf/backend/pkg/logger"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 4 << 20

// Options configures a Client
type Options struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64 // requests per second
}

// Client fetches catalog responses through a rate limiter and a circuit
// breaker. The cache is optional.
type Client struct {
	log     *logger.Logger
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	cache   repositories.CatalogResponseRepository
}

// NewClient creates a catalog client. cache may be nil.
func NewClient(opts Options, cache repositories.CatalogResponseRepository, log *logger.Logger) *Client {
	log = log.With("component", "catalog")
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 40
	}
	burst := int(opts.RateLimit)
	if burst < 1 {
		burst = 1
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "tmdb-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// Client errors from the catalog say nothing about its health.
		IsSuccessful: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return se.status < http.StatusInternalServerError && se.status != http.StatusTooManyRequests
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		log:     log,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), burst),
		breaker: breaker,
		cache:   cache,
	}
}

// RequiresAuth reports whether the endpoint exposes per-account data and so
// may only be proxied for a signed-in caller.
func RequiresAuth(endpoint string) bool {
	return strings.Contains(endpoint, "account") || strings.Contains(endpoint, "list")
}

// ValidateEndpoint rejects endpoints that would escape the API base path
func ValidateEndpoint(endpoint string) error {
	switch {
	case endpoint == "":
		return apperrors.InvalidRequest("Missing endpoint parameter", nil)
	case strings.Contains(endpoint, ".."), strings.Contains(endpoint, "://"), strings.HasPrefix(endpoint, "//"):
		return apperrors.InvalidRequest("Invalid endpoint parameter", nil)
	}
	return nil
}

// Fetch returns the JSON body of GET {base}/{endpoint}?{params}&api_key=...
// A 429 from the catalog maps to a 429 error; other upstream failures keep
// their status.
func (c *Client) Fetch(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}
	endpoint = strings.TrimLeft(endpoint, "/")
	key := cacheKey(endpoint, params)

	if c.cache != nil {
		body, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.log.Warn("catalog cache read failed", "key", key, "error", err)
		} else if ok {
			return body, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.Upstream(http.StatusTooManyRequests, "Rate limit exceeded, please try again later", err)
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.get(ctx, endpoint, params)
	})
	if err != nil {
		return nil, c.translate(err)
	}

	if c.cache != nil {
		if err := c.cache.Put(ctx, key, body); err != nil {
			c.log.Warn("catalog cache write failed", "key", key, "error", err)
		}
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	q := forwardParams(params)
	q.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{status: resp.StatusCode, body: string(body)}
	}
	return body, nil
}

func (c *Client) translate(err error) error {
	var se *statusError
	switch {
	case errors.As(err, &se) && se.status == http.StatusTooManyRequests:
		return apperrors.Upstream(http.StatusTooManyRequests, "Rate limit exceeded, please try again later", err)
	case errors.As(err, &se):
		return apperrors.Upstream(se.status, fmt.Sprintf("API error: %d - %s", se.status, se.body), err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.log.Warn("catalog request rejected by circuit breaker", "error", err)
		return apperrors.Upstream(http.StatusServiceUnavailable, "Catalog temporarily unavailable", err)
	default:
		c.log.Error("catalog request failed", "error", err)
		return apperrors.Upstream(http.StatusInternalServerError, "Failed to fetch data from TMDB", err)
	}
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("catalog responded %d", e.status)
}

// cacheKey identifies a request independent of parameter order. The API key
// is never part of it.
func cacheKey(endpoint string, params url.Values) string {
	q := forwardParams(params)
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

// proxyParams never leave the proxy: its own routing parameter and any
// credential, the caller's or ours.
var proxyParams = map[string]bool{
	"endpoint":     true,
	"api_key":      true,
	"access_token": true,
}

// forwardParams copies the caller's query minus the proxy's own parameters
func forwardParams(params url.Values) url.Values {
	q := url.Values{}
	for k, vs := range params {
		if proxyParams[strings.ToLower(k)] {
			continue
		}
		q[k] = append([]string(nil), vs...)
	}
	return q
}
