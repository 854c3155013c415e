package weather

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrMalformedPayload covers undecodable JSON, missing fields and short arrays.
	ErrMalformedPayload = errors.New("malformed forecast payload")
	// ErrUnexpectedStatus is returned for any non-200 response.
	ErrUnexpectedStatus = errors.New("unexpected forecast status")
)

// Current is the current-conditions section.
type Current struct {
	Time                string
	Temperature         float64
	ApparentTemperature float64
	IsDay               bool
	WeatherCode         int
}

// Daily is the per-day section, index 0 is today.
type Daily struct {
	Time        []string
	Min         []float64
	Max         []float64
	WeatherCode []int
}

// Hourly is the per-hour section, index 0 is the current hour.
type Hourly struct {
	Time                     []string
	Temperature              []float64
	PrecipitationProbability []float64
	IsDay                    []int
	WeatherCode              []int
}

// Sample is one parsed forecast response.
type Sample struct {
	Current Current
	Daily   Daily
	Hourly  Hourly
}

type wireResponse struct {
	Current *struct {
		Time                string   `json:"time"`
		Temperature         *float64 `json:"temperature_2m"`
		ApparentTemperature *float64 `json:"apparent_temperature"`
		IsDay               *int     `json:"is_day"`
		WeatherCode         *int     `json:"weather_code"`
	} `json:"current"`
	Daily struct {
		Time        []string  `json:"time"`
		Min         []float64 `json:"temperature_2m_min"`
		Max         []float64 `json:"temperature_2m_max"`
		WeatherCode []int     `json:"weather_code"`
	} `json:"daily"`
	Hourly struct {
		Time                     []string  `json:"time"`
		Temperature              []float64 `json:"temperature_2m"`
		PrecipitationProbability []float64 `json:"precipitation_probability"`
		IsDay                    []int     `json:"is_day"`
		WeatherCode              []int     `json:"weather_code"`
	} `json:"hourly"`
}

// ParseSample decodes an Open-Meteo forecast body. The current section is
// required in full; daily and hourly arrays are checked when a view is built.
func ParseSample(r io.Reader) (*Sample, error) {
	var wire wireResponse
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	c := wire.Current
	if c == nil {
		return nil, fmt.Errorf("%w: missing current section", ErrMalformedPayload)
	}
	if c.Temperature == nil || c.ApparentTemperature == nil || c.IsDay == nil || c.WeatherCode == nil {
		return nil, fmt.Errorf("%w: incomplete current section", ErrMalformedPayload)
	}

	return &Sample{
		Current: Current{
			Time:                c.Time,
			Temperature:         *c.Temperature,
			ApparentTemperature: *c.ApparentTemperature,
			IsDay:               *c.IsDay != 0,
			WeatherCode:         *c.WeatherCode,
		},
		Daily: Daily{
			Time:        wire.Daily.Time,
			Min:         wire.Daily.Min,
			Max:         wire.Daily.Max,
			WeatherCode: wire.Daily.WeatherCode,
		},
		Hourly: Hourly{
			Time:                     wire.Hourly.Time,
			Temperature:              wire.Hourly.Temperature,
			PrecipitationProbability: wire.Hourly.PrecipitationProbability,
			IsDay:                    wire.Hourly.IsDay,
			WeatherCode:              wire.Hourly.WeatherCode,
		},
	}, nil
}
