package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eb2tech/aura/internal/display"
	"github.com/eb2tech/aura/internal/state"
)

// Fetcher fetches one forecast sample.
type Fetcher interface {
	Fetch(ctx context.Context, lat, lon float64) (*Sample, error)
}

// SensorPublisher announces the latest readings. Without a broker it does nothing.
type SensorPublisher interface {
	PublishSensorState()
}

// Recorder observes poll outcomes.
type Recorder interface {
	RecordWeatherPoll(success bool, elapsed time.Duration)
}

// Poller runs one weather cycle against the shared state.
type Poller struct {
	fetcher   Fetcher
	renderer  display.Renderer
	publisher SensorPublisher
	recorder  Recorder
}

// NewPoller creates a poller. publisher and recorder may be nil.
func NewPoller(fetcher Fetcher, renderer display.Renderer, publisher SensorPublisher, recorder Recorder) *Poller {
	return &Poller{
		fetcher:   fetcher,
		renderer:  renderer,
		publisher: publisher,
		recorder:  recorder,
	}
}

// Poll fetches, builds and renders one forecast. On any failure the screen
// and the stored readings keep their previous values. The sensor state is
// published whether or not the cycle succeeded.
func (p *Poller) Poll(ctx context.Context, st *state.State) (err error) {
	start := time.Now()
	defer func() {
		if p.recorder != nil {
			p.recorder.RecordWeatherPoll(err == nil, time.Since(start))
		}
		if p.publisher != nil {
			p.publisher.PublishSensorState()
		}
	}()

	loc := st.Location()
	disp := st.Display()

	sample, err := p.fetcher.Fetch(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		log.Error().
			Err(err).
			Float64("lat", loc.Latitude).
			Float64("lon", loc.Longitude).
			Msg("Weather fetch failed")
		return fmt.Errorf("fetch forecast: %w", err)
	}

	view, err := BuildView(sample, Options{
		Fahrenheit: disp.UseFahrenheit,
		SevenDay:   disp.SevenDayForecast,
		Use24Hour:  disp.Show24Hour,
	})
	if err != nil {
		log.Error().Err(err).Msg("Weather payload rejected")
		return fmt.Errorf("build view: %w", err)
	}

	st.SetReadings(sample.Current.Temperature, sample.Current.ApparentTemperature)
	view.Apply(p.renderer)

	log.Info().
		Str("current", view.Current).
		Str("feels_like", view.FeelsLike).
		Str("mode", view.Title).
		Dur("elapsed", time.Since(start)).
		Msg("Weather updated")
	return nil
}
