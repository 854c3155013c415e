// Package api serves the Settings API and the settings page.
package api

import (
	"context"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/eb2tech/aura/internal/device"
	"github.com/eb2tech/aura/internal/display"
)

const maxBodyBytes = 4 << 10

// Runner executes fn on the goroutine that owns the device state.
type Runner interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Recorder counts requests.
type Recorder interface {
	ObserveRequest(endpoint string, status int)
}

// Options holds the optional parts of a Handler.
type Options struct {
	WebRoot     string
	Framebuffer *display.Framebuffer
	Recorder    Recorder
}

// mutation handles one POST endpoint. A non-nil result is merged into the
// {"status":"ok"} response.
type mutation func(ctx context.Context, f fields) (map[string]any, error)

// Handler routes the Settings API.
type Handler struct {
	dev  *device.Device
	loop Runner
	opts Options
	mux  *http.ServeMux
}

// NewHandler creates the API handler.
func NewHandler(dev *device.Device, loop Runner, opts Options) *Handler {
	h := &Handler{
		dev:  dev,
		loop: loop,
		opts: opts,
		mux:  http.NewServeMux(),
	}
	h.routes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// statusWriter remembers the response status for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (h *Handler) handle(pattern string, fn http.HandlerFunc) {
	h.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		fn(sw, r)
		if h.opts.Recorder != nil {
			h.opts.Recorder.ObserveRequest(pattern, sw.status)
		}
	})
}

// post registers a mutation endpoint. The mutation runs on the scheduler loop.
func (h *Handler) post(path string, m mutation) {
	h.handle(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, &Error{Status: http.StatusMethodNotAllowed, Message: "Method not allowed"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, badRequest("Failed to read request body"))
			return
		}
		f, err := parseFields(body)
		if err != nil {
			writeError(w, toError(err))
			return
		}

		var extra map[string]any
		err = h.loop.Do(r.Context(), func(ctx context.Context) error {
			var err error
			extra, err = m(ctx, f)
			return err
		})
		if err != nil {
			apiErr := toError(err)
			event := log.Warn()
			if apiErr.Status >= http.StatusInternalServerError {
				event = log.Error()
			}
			event.Err(err).Str("path", path).Int("status", apiErr.Status).Msg("Settings request failed")
			writeError(w, apiErr)
			return
		}

		resp := map[string]any{"status": "ok"}
		for k, v := range extra {
			resp[k] = v
		}
		log.Debug().Str("path", path).Msg("Settings request applied")
		writeJSON(w, http.StatusOK, resp)
	})
}
