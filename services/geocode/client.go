// Package geocode resolves free-text place names through a Nominatim search
// endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"weatherstuff/pkg/weatherstuff"

	"golang.org/x/time/rate"
	"resty.dev/v3"
)

const (
	// DefaultBaseURL is the public Nominatim instance.
	DefaultBaseURL   = "https://nominatim.openstreetmap.org"
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "weatherstuff-bot/1.0"
)

// Option mutates geocoder configuration.
type Option func(*Client)

// WithBaseURL sets the Nominatim base URL.
func WithBaseURL(baseURL string) Option {
	return func(client *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			client.baseURL = trimmed
		}
	}
}

// WithTimeout bounds one HTTP request.
func WithTimeout(timeout time.Duration) Option {
	return func(client *Client) {
		if timeout > 0 {
			client.timeout = timeout
		}
	}
}

// WithUserAgent sets the User-Agent header Nominatim requires.
func WithUserAgent(userAgent string) Option {
	return func(client *Client) {
		if userAgent != "" {
			client.userAgent = userAgent
		}
	}
}

// WithRateLimit sets the request rate against the upstream.
func WithRateLimit(perSecond float64) Option {
	return func(client *Client) {
		if perSecond > 0 {
			client.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithStore enables the persistent response cache.
func WithStore(store *Store) Option {
	return func(client *Client) {
		client.store = store
	}
}

// WithLogger sets the geocoder logger.
func WithLogger(logger *slog.Logger) Option {
	return func(client *Client) {
		if logger != nil {
			client.logger = logger
		}
	}
}

// Client implements weatherstuff.Geocoder against Nominatim.
type Client struct {
	baseURL   string
	timeout   time.Duration
	userAgent string
	limiter   *rate.Limiter
	store     *Store
	logger    *slog.Logger

	http *resty.Client
}

// New creates a Nominatim client. Requests are limited to one per second
// unless overridden.
func New(options ...Option) *Client {
	client := &Client{
		baseURL:   DefaultBaseURL,
		timeout:   defaultTimeout,
		userAgent: defaultUserAgent,
		limiter:   rate.NewLimiter(rate.Limit(1), 1),
		logger:    slog.Default(),
	}
	for _, option := range options {
		option(client)
	}

	client.http = resty.New().
		SetBaseURL(client.baseURL).
		SetTimeout(client.timeout).
		SetHeader("User-Agent", client.userAgent).
		SetHeader("Accept", "application/json")

	return client
}

// Close releases HTTP resources. The store is owned by the caller.
func (c *Client) Close() error {
	return c.http.Close()
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Search returns candidate locations for query in upstream rank order.
func (c *Client) Search(ctx context.Context, query string) ([]weatherstuff.Location, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	body, err := c.searchBody(ctx, query)
	if err != nil {
		return nil, err
	}

	locations, err := decodeLocations(body)
	if err != nil {
		return nil, fmt.Errorf("geocode search %q: %w", query, err)
	}

	return locations, nil
}

func (c *Client) searchBody(ctx context.Context, query string) ([]byte, error) {
	cacheKey := strings.ToLower(query)
	if c.store != nil {
		body, ok, err := c.store.Get(ctx, cacheKey)
		switch {
		case err != nil:
			c.logger.WarnContext(ctx, "geocode cache read failed", "query", query, "error", err)
		case ok:
			return body, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("geocode search %q: wait for rate limit: %w", query, err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetQueryParam("format", "jsonv2").
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("geocode search %q: %w", query, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("geocode search %q: status %d", query, resp.StatusCode())
	}

	body := resp.Bytes()
	if c.store != nil {
		if err := c.store.Put(ctx, cacheKey, body); err != nil {
			c.logger.WarnContext(ctx, "geocode cache write failed", "query", query, "error", err)
		}
	}

	return body, nil
}

func decodeLocations(body []byte) ([]weatherstuff.Location, error) {
	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	locations := make([]weatherstuff.Location, 0, len(results))
	for _, result := range results {
		latitude, err := strconv.ParseFloat(result.Lat, 64)
		if err != nil {
			return nil, fmt.Errorf("decode latitude %q: %w", result.Lat, err)
		}
		longitude, err := strconv.ParseFloat(result.Lon, 64)
		if err != nil {
			return nil, fmt.Errorf("decode longitude %q: %w", result.Lon, err)
		}
		locations = append(locations, weatherstuff.Location{
			Latitude:  latitude,
			Longitude: longitude,
			Name:      result.DisplayName,
		})
	}

	return locations, nil
}
