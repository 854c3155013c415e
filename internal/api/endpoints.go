package api

import (
	"context"

	"github.com/eb2tech/aura/internal/state"
)

func (h *Handler) routes() {
	d := h.dev

	h.post("/setBrightness", func(_ context.Context, f fields) (map[string]any, error) {
		v, err := f.int("value")
		if err != nil {
			return nil, err
		}
		stored, err := d.SetBrightness(v)
		if err != nil {
			return nil, err
		}
		return map[string]any{"value": stored}, nil
	})

	h.post("/setLocation", func(ctx context.Context, f fields) (map[string]any, error) {
		lat, lon, err := f.coordinates()
		if err != nil {
			return nil, err
		}
		return nil, d.SetLocation(ctx, lat, lon)
	})

	h.post("/setClockFormat", func(_ context.Context, f fields) (map[string]any, error) {
		if !f.has("format24") {
			return nil, badRequest("Missing format24 field")
		}
		v, err := f.bool("format24")
		if err != nil {
			return nil, err
		}
		return nil, d.SetClockFormat(v)
	})

	h.post("/setTempFormat", func(ctx context.Context, f fields) (map[string]any, error) {
		v, err := f.bool("useF")
		if err != nil {
			return nil, err
		}
		return nil, d.SetTempUnit(ctx, v)
	})

	h.post("/setForecastMode", func(ctx context.Context, f fields) (map[string]any, error) {
		v, err := f.bool("sevenDay")
		if err != nil {
			return nil, err
		}
		return nil, d.SetForecastMode(ctx, v)
	})

	h.post("/setDimAtTime", func(_ context.Context, f fields) (map[string]any, error) {
		v, err := f.bool("enabled")
		if err != nil {
			return nil, err
		}
		return nil, d.SetDimEnabled(v)
	})

	h.post("/setDimStartTime", func(_ context.Context, f fields) (map[string]any, error) {
		v, err := f.string("startTime")
		if err != nil {
			return nil, err
		}
		return nil, d.SetDimStart(v)
	})

	h.post("/setDimEndTime", func(_ context.Context, f fields) (map[string]any, error) {
		v, err := f.string("endTime")
		if err != nil {
			return nil, err
		}
		return nil, d.SetDimEnd(v)
	})

	h.post("/setDST", func(_ context.Context, f fields) (map[string]any, error) {
		v, err := f.bool("useDST")
		if err != nil {
			return nil, err
		}
		return nil, d.SetUseDST(v)
	})

	for _, kind := range state.BrokerKinds {
		h.brokerRoutes(kind)
	}

	h.post("/detectLocation", func(ctx context.Context, _ fields) (map[string]any, error) {
		p, err := d.DetectLocation(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"latitude":  p.Latitude,
			"longitude": p.Longitude,
			"city":      p.City,
			"region":    p.Region,
		}, nil
	})

	h.post("/reverseGeocode", func(ctx context.Context, f fields) (map[string]any, error) {
		loc := d.State().Location()
		lat, lon := loc.Latitude, loc.Longitude
		if f.has("latitude") || f.has("longitude") {
			var err error
			if lat, lon, err = f.coordinates(); err != nil {
				return nil, err
			}
		}
		p, err := d.ReverseGeocode(ctx, lat, lon)
		if err != nil {
			return nil, err
		}
		return map[string]any{"city": p.City, "region": p.Region}, nil
	})

	h.handle("/settings", h.serveSettings)
	h.handle("/screen.png", h.serveScreen)
	h.handle("/", h.serveIndex)
}

// brokerRoutes registers /setMqttEnabled, /setNatsServer and friends.
func (h *Handler) brokerRoutes(kind state.BrokerKind) {
	d := h.dev
	prefix := "/set" + brokerTitle(kind)

	h.post(prefix+"Enabled", func(_ context.Context, f fields) (map[string]any, error) {
		v, err := f.bool("enabled")
		if err != nil {
			return nil, err
		}
		return nil, d.SetBrokerEnabled(kind, v)
	})
	h.post(prefix+"Server", func(_ context.Context, f fields) (map[string]any, error) {
		v, err := f.string("server")
		if err != nil {
			return nil, err
		}
		return nil, d.SetBrokerServer(kind, v)
	})
	h.post(prefix+"User", func(_ context.Context, f fields) (map[string]any, error) {
		v, err := f.string("username")
		if err != nil {
			return nil, err
		}
		return nil, d.SetBrokerUsername(kind, v)
	})
	h.post(prefix+"Password", func(_ context.Context, f fields) (map[string]any, error) {
		v, err := f.string("password")
		if err != nil {
			return nil, err
		}
		return nil, d.SetBrokerPassword(kind, v)
	})
}

func brokerTitle(kind state.BrokerKind) string {
	switch kind {
	case state.MQTT:
		return "Mqtt"
	case state.NATS:
		return "Nats"
	}
	return string(kind)
}
