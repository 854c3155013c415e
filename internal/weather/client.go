// Package weather fetches Open-Meteo forecasts and turns them into screen content.
package weather

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// DefaultBaseURL is the public Open-Meteo API.
const DefaultBaseURL = "http://api.open-meteo.com"

const (
	currentFields = "temperature_2m,apparent_temperature,is_day,weather_code"
	dailyFields   = "temperature_2m_min,temperature_2m_max,weather_code"
	hourlyFields  = "temperature_2m,precipitation_probability,is_day,weather_code"
	forecastHours = "7"
)

// ClientConfig configures the forecast client.
type ClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// FailureThreshold consecutive failures open the breaker for OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Client fetches forecasts.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Sample]
}

// NewClient creates a forecast client. Zero config fields take defaults.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "aurad/1.0"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 5 * time.Minute
	}

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[*Sample](gobreaker.Settings{
		Name:        "open-meteo",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Forecast circuit breaker state changed")
		},
	})

	return &Client{
		cfg:     cfg,
		http:    &http.Client{},
		breaker: breaker,
	}
}

// ForecastURL builds the request URL for a location.
func (c *Client) ForecastURL(lat, lon float64) string {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("current", currentFields)
	q.Set("daily", dailyFields)
	q.Set("hourly", hourlyFields)
	q.Set("forecast_hours", forecastHours)
	q.Set("timezone", "auto")
	return c.cfg.BaseURL + "/v1/forecast?" + q.Encode()
}

// Fetch performs one forecast request bounded by the configured timeout.
// While the breaker is open it fails fast with gobreaker.ErrOpenState.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) (*Sample, error) {
	return c.breaker.Execute(func() (*Sample, error) {
		return c.fetch(ctx, lat, lon)
	})
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) (*Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	reqURL := c.ForecastURL(lat, lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forecast request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	return ParseSample(resp.Body)
}
