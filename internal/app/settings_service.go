package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/eb2tech/aura/internal/api"
	"github.com/eb2tech/aura/internal/config"
	"github.com/eb2tech/aura/internal/device"
	"github.com/eb2tech/aura/internal/display"
	"github.com/eb2tech/aura/internal/metrics"
)

// SettingsService wraps the Settings API HTTP server.
type SettingsService struct {
	cfg    *config.Config
	server *api.Server
}

// NewSettingsService creates a new SettingsService.
func NewSettingsService(cfg *config.Config, dev *device.Device, runner api.Runner, fb *display.Framebuffer, m *metrics.Registry) *SettingsService {
	handler := api.NewHandler(dev, runner, api.Options{
		WebRoot:     cfg.HTTP.WebRoot,
		Framebuffer: fb,
		Recorder:    m,
	})
	return &SettingsService{
		cfg:    cfg,
		server: api.NewServer(cfg.HTTP.Addr(), handler),
	}
}

// Start begins the settings server.
func (s *SettingsService) Start(ctx context.Context) {
	go func() {
		if err := s.server.Run(ctx, s.cfg.GetShutdownTimeout()); err != nil {
			log.Error().Err(err).Msg("Settings server error")
		}
	}()
}
