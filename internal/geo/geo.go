// Package geo finds where the device is: IP-based detection and reverse
// geocoding of coordinates into a city and region.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	// ErrNotFound is returned when a lookup yields no usable place.
	ErrNotFound = errors.New("location not found")
	// ErrInvalidCoordinates is returned when a service answers with out-of-range coordinates.
	ErrInvalidCoordinates = errors.New("invalid coordinates received")
	// ErrUnavailable is returned for non-200 responses.
	ErrUnavailable = errors.New("geolocation service unavailable")
)

const (
	DefaultDetectURL    = "https://ipapi.co/json/"
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"
)

// Place is a resolved location.
type Place struct {
	Latitude  float64
	Longitude float64
	City      string
	Region    string
	TimeZone  string
	UTCOffset string
}

// Config configures the geo client.
type Config struct {
	DetectURL    string
	NominatimURL string
	UserAgent    string
	Timeout      time.Duration
}

// Client talks to the IP geolocation and Nominatim services.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	cache   *Cache
}

// NewClient creates a geo client. cache may be nil.
func NewClient(cfg Config, cache *Cache) *Client {
	if cfg.DetectURL == "" {
		cfg.DetectURL = DefaultDetectURL
	}
	if cfg.NominatimURL == "" {
		cfg.NominatimURL = DefaultNominatimURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "aurad/1.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{},
		// Nominatim usage policy: at most one request per second.
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		cache:   cache,
	}
}

func (c *Client) getJSON(ctx context.Context, reqURL string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

type detectResponse struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	City      string   `json:"city"`
	Region    string   `json:"region"`
	Timezone  string   `json:"timezone"`
	UTCOffset string   `json:"utc_offset"`
}

// Detect locates the device from its public IP address.
func (c *Client) Detect(ctx context.Context) (*Place, error) {
	var r detectResponse
	if err := c.getJSON(ctx, c.cfg.DetectURL, &r); err != nil {
		return nil, err
	}
	if r.Latitude == nil || r.Longitude == nil {
		return nil, fmt.Errorf("failed to parse location data: %w", ErrNotFound)
	}
	if *r.Latitude < -90 || *r.Latitude > 90 || *r.Longitude < -180 || *r.Longitude > 180 {
		return nil, ErrInvalidCoordinates
	}

	p := &Place{
		Latitude:  *r.Latitude,
		Longitude: *r.Longitude,
		City:      orUnknown(r.City),
		Region:    orUnknown(r.Region),
		TimeZone:  r.Timezone,
		UTCOffset: r.UTCOffset,
	}
	log.Info().
		Float64("lat", p.Latitude).
		Float64("lon", p.Longitude).
		Str("city", p.City).
		Str("region", p.Region).
		Str("timezone", p.TimeZone).
		Msg("Location detected")
	return p, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

type nominatimResponse struct {
	Error   string `json:"error"`
	Address struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		Hamlet  string `json:"hamlet"`
		County  string `json:"county"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
}

// Reverse resolves coordinates to a city and region, using the cache when
// possible and honouring the Nominatim rate limit otherwise.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (*Place, error) {
	if c.cache != nil {
		if p, ok := c.cache.Get(lat, lon); ok {
			return p, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("format", "json")
	q.Set("zoom", "10")
	q.Set("addressdetails", "1")

	var r nominatimResponse
	if err := c.getJSON(ctx, c.cfg.NominatimURL+"/reverse?"+q.Encode(), &r); err != nil {
		return nil, err
	}
	if r.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, r.Error)
	}

	a := r.Address
	city := firstNonEmpty(a.City, a.Town, a.Village, a.Hamlet, a.County)
	region := firstNonEmpty(a.State, a.Country)
	if city == "" && region == "" {
		return nil, ErrNotFound
	}

	p := &Place{Latitude: lat, Longitude: lon, City: orUnknown(city), Region: orUnknown(region)}
	if c.cache != nil {
		_ = c.cache.Put(p)
	}
	return p, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
