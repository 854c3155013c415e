package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/eb2tech/aura/internal/device"
	"github.com/eb2tech/aura/internal/geo"
	"github.com/eb2tech/aura/internal/scheduler"
	"github.com/eb2tech/aura/internal/state"
)

// Error is a request failure rendered as {"error": Message}.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

func badRequest(format string, args ...any) *Error {
	return &Error{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

var errInvalidJSON = badRequest("Invalid JSON")

// toError maps domain errors onto responses.
func toError(err error) *Error {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, state.ErrInvalidCoordinates):
		return badRequest("Invalid coordinates")
	case errors.Is(err, state.ErrInvalidTime):
		return badRequest("Invalid time format")
	case errors.Is(err, state.ErrInvalidOffset):
		return badRequest("Invalid UTC offset")
	case errors.Is(err, geo.ErrInvalidCoordinates):
		return badRequest("Invalid coordinates received")
	case errors.Is(err, geo.ErrNotFound):
		return &Error{Status: http.StatusInternalServerError, Message: "Failed to parse location data"}
	case errors.Is(err, geo.ErrUnavailable):
		return &Error{Status: http.StatusInternalServerError, Message: "Geolocation service unavailable"}
	case errors.Is(err, device.ErrGeoUnavailable):
		return &Error{Status: http.StatusServiceUnavailable, Message: "Geolocation is not configured"}
	case errors.Is(err, scheduler.ErrLoopStopped):
		return &Error{Status: http.StatusServiceUnavailable, Message: "Device is shutting down"}
	default:
		return &Error{Status: http.StatusInternalServerError, Message: "Failed to save setting"}
	}
}

// fields is a decoded JSON object whose members are read on demand so
// each endpoint can type-check exactly the fields it needs.
type fields map[string]json.RawMessage

func parseFields(body []byte) (fields, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return fields{}, nil
	}
	var f fields
	if err := json.Unmarshal(body, &f); err != nil || f == nil {
		return nil, errInvalidJSON
	}
	return f, nil
}

func (f fields) has(name string) bool {
	raw, ok := f[name]
	return ok && string(raw) != "null"
}

func (f fields) int(name string) (int, error) {
	var n json.Number
	if !f.has(name) || json.Unmarshal(f[name], &n) != nil {
		return 0, badRequest("%s must be an integer value", name)
	}
	if v, err := n.Int64(); err == nil {
		return int(saturate(float64(v))), nil
	}
	// Fractional or out-of-range numbers truncate and saturate.
	v, err := strconv.ParseFloat(n.String(), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, badRequest("%s must be an integer value", name)
	}
	return int(saturate(v)), nil
}

const intFieldLimit = 1 << 31

func saturate(v float64) float64 {
	return math.Trunc(math.Max(-intFieldLimit, math.Min(intFieldLimit, v)))
}

func (f fields) float(name string) (float64, error) {
	var v float64
	if !f.has(name) || json.Unmarshal(f[name], &v) != nil {
		return 0, badRequest("%s must be a number", name)
	}
	return v, nil
}

func (f fields) bool(name string) (bool, error) {
	var v bool
	if !f.has(name) || json.Unmarshal(f[name], &v) != nil {
		return false, badRequest("%s must be a boolean value", name)
	}
	return v, nil
}

func (f fields) string(name string) (string, error) {
	var v string
	if !f.has(name) || json.Unmarshal(f[name], &v) != nil {
		return "", badRequest("%s must be a string value", name)
	}
	return v, nil
}

// coordinates reads latitude and longitude as a unit.
func (f fields) coordinates() (float64, float64, error) {
	lat, errLat := f.float("latitude")
	lon, errLon := f.float("longitude")
	if errLat != nil || errLon != nil {
		return 0, 0, badRequest("Latitude and longitude must be float values")
	}
	return lat, lon, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, e *Error) {
	writeJSON(w, e.Status, map[string]string{"error": e.Message})
}
