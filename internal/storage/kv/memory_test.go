package kv

import (
	"errors"
	"testing"
)

func TestMemoryBucket_TypedReads(t *testing.T) {
	b := NewMemoryBucket("prefs")

	if err := b.StoreAll(map[string]any{
		"brightness":  200,
		"weather_lat": 29.7604,
		"show_24hour": true,
		"time_zone":   "America/Chicago",
	}); err != nil {
		t.Fatalf("StoreAll: %v", err)
	}

	if got, err := Int(b, "brightness", 255); err != nil || got != 200 {
		t.Errorf("Int(brightness) = %d, %v; want 200", got, err)
	}
	if got, err := Float(b, "weather_lat", 0); err != nil || got != 29.7604 {
		t.Errorf("Float(weather_lat) = %v, %v; want 29.7604", got, err)
	}
	if got, err := Bool(b, "show_24hour", false); err != nil || !got {
		t.Errorf("Bool(show_24hour) = %v, %v; want true", got, err)
	}
	if got, err := String(b, "time_zone", ""); err != nil || got != "America/Chicago" {
		t.Errorf("String(time_zone) = %q, %v", got, err)
	}
}

func TestMemoryBucket_MissingKeyReturnsDefault(t *testing.T) {
	b := NewMemoryBucket("prefs")

	if got, err := String(b, "mqtt_server", "fallback"); err != nil || got != "fallback" {
		t.Errorf("String(missing) = %q, %v; want fallback", got, err)
	}
	if got, err := Bool(b, "use_mqtt", true); err != nil || !got {
		t.Errorf("Bool(missing) = %v, %v; want true", got, err)
	}
}

func TestMemoryBucket_WrongTypeIsError(t *testing.T) {
	b := NewMemoryBucket("prefs")
	_ = b.Store("brightness", "bright")

	got, err := Int(b, "brightness", 255)
	if err == nil {
		t.Fatal("expected type error")
	}
	if got != 255 {
		t.Errorf("Int on wrong type = %d, want default 255", got)
	}
}

func TestMemoryBucket_FailWritesLeavesValues(t *testing.T) {
	b := NewMemoryBucket("prefs")
	_ = b.Store("dim_start_time", "22:00")

	b.FailWrites(true)
	err := b.StoreAll(map[string]any{"dim_start_time": "23:00", "dim_end_time": "07:00"})
	if !errors.Is(err, ErrFailedWrite) {
		t.Fatalf("StoreAll error = %v, want ErrFailedWrite", err)
	}

	if got, _ := String(b, "dim_start_time", ""); got != "22:00" {
		t.Errorf("dim_start_time = %q after failed write, want 22:00", got)
	}
	if ok, _ := b.Delete("dim_end_time"); ok {
		t.Error("dim_end_time should not exist after failed write")
	}
}
