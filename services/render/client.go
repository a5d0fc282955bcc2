// Package render talks to the chart and radar rendering service.
package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"weatherstuff/pkg/weatherstuff"

	"resty.dev/v3"
)

const defaultTimeout = 60 * time.Second

// Forecast is one rendered forecast chart with its annotations.
type Forecast struct {
	// Plot is the encoded chart image.
	Plot []byte
	// Duration is the rendered span in days.
	Duration        float64
	CurrentTemp     float64
	CurrentSummary  string
	Station         string
	StationDistance float64
}

type forecastResponse struct {
	Plot            string  `json:"plot"`
	Duration        float64 `json:"duration"`
	CurrentTemp     float64 `json:"current_temp"`
	CurrentStr      string  `json:"current_str"`
	Station         string  `json:"weather_station"`
	StationDistance float64 `json:"weather_station_distance"`
}

// Option mutates render client configuration.
type Option func(*Client)

// WithTimeout bounds one render request.
func WithTimeout(timeout time.Duration) Option {
	return func(client *Client) {
		if timeout > 0 {
			client.timeout = timeout
		}
	}
}

// Client fetches rendered artifacts.
type Client struct {
	timeout time.Duration
	http    *resty.Client
}

// New creates a render client for baseURL.
func New(baseURL string, options ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("new render client: base url is required")
	}

	client := &Client{timeout: defaultTimeout}
	for _, option := range options {
		option(client)
	}
	client.http = resty.New().
		SetBaseURL(baseURL).
		SetTimeout(client.timeout)

	return client, nil
}

// Close releases HTTP resources.
func (c *Client) Close() error {
	return c.http.Close()
}

// Forecast renders a forecast chart covering days. It returns
// weatherstuff.ErrNoArtifact when no station is close enough.
func (c *Client) Forecast(ctx context.Context, latitude, longitude, days float64) (Forecast, error) {
	var payload forecastResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(coordinateParams(latitude, longitude)).
		SetQueryParam("days", strconv.FormatFloat(days, 'g', -1, 64)).
		SetResult(&payload).
		Get("/forecast")
	if err != nil {
		return Forecast{}, fmt.Errorf("render forecast: %w", err)
	}
	if err := statusError("render forecast", resp); err != nil {
		return Forecast{}, err
	}

	plot, err := base64.StdEncoding.DecodeString(payload.Plot)
	if err != nil {
		return Forecast{}, fmt.Errorf("render forecast: decode plot: %w", err)
	}
	if len(plot) == 0 {
		return Forecast{}, fmt.Errorf("render forecast: %w: empty plot", weatherstuff.ErrNoArtifact)
	}

	return Forecast{
		Plot:            plot,
		Duration:        payload.Duration,
		CurrentTemp:     payload.CurrentTemp,
		CurrentSummary:  payload.CurrentStr,
		Station:         payload.Station,
		StationDistance: payload.StationDistance,
	}, nil
}

// Radar renders the precipitation radar loop as MP4.
func (c *Client) Radar(ctx context.Context, latitude, longitude float64) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(coordinateParams(latitude, longitude)).
		SetHeader("Accept", "video/mp4").
		Get("/radar")
	if err != nil {
		return nil, fmt.Errorf("render radar: %w", err)
	}
	if err := statusError("render radar", resp); err != nil {
		return nil, err
	}

	body := resp.Bytes()
	if len(body) == 0 {
		return nil, fmt.Errorf("render radar: %w: empty animation", weatherstuff.ErrNoArtifact)
	}

	return body, nil
}

func coordinateParams(latitude, longitude float64) map[string]string {
	return map[string]string{
		"lat": strconv.FormatFloat(latitude, 'g', -1, 64),
		"lon": strconv.FormatFloat(longitude, 'g', -1, 64),
	}
}

func statusError(scope string, resp *resty.Response) error {
	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", scope, weatherstuff.ErrNoArtifact)
	case resp.IsError():
		return fmt.Errorf("%s: status %d", scope, code)
	default:
		return nil
	}
}
