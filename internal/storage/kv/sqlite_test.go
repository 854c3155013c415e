package kv

import (
	"math"
	"path/filepath"
	"sort"
	"testing"

	"github.com/eb2tech/aura/internal/db"
)

func newSQLiteBucket(t *testing.T) *SQLiteBucket {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "kv.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewSQLiteBucket(database.DB, "prefs")
}

func TestSQLiteBucket_TypedRoundTrip(t *testing.T) {
	b := newSQLiteBucket(t)

	if err := b.StoreAll(map[string]any{
		"brightness":  200,
		"weather_lat": 29.7604,
		"show_24hour": true,
		"time_zone":   "America/Chicago",
	}); err != nil {
		t.Fatalf("StoreAll: %v", err)
	}

	// Integers come back as JSON numbers; the typed reads restore them.
	if v, _ := b.Get("brightness"); v != float64(200) {
		t.Errorf("Get(brightness) = %#v, want float64(200)", v)
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
	if got, err := Int(b, "missing", 7); err != nil || got != 7 {
		t.Errorf("Int(missing) = %d, %v; want default 7", got, err)
	}
}

func TestSQLiteBucket_StoreAllIsAtomic(t *testing.T) {
	b := newSQLiteBucket(t)

	if err := b.StoreAll(map[string]any{"weather_lat": 1.0, "weather_lon": 2.0}); err != nil {
		t.Fatalf("StoreAll: %v", err)
	}

	// NaN cannot be encoded, so neither coordinate may change.
	if err := b.StoreAll(map[string]any{"weather_lat": 3.0, "weather_lon": math.NaN()}); err == nil {
		t.Fatal("StoreAll with NaN succeeded")
	}
	if got, _ := Float(b, "weather_lat", 0); got != 1.0 {
		t.Errorf("weather_lat = %v, want 1 after failed write", got)
	}
	if got, _ := Float(b, "weather_lon", 0); got != 2.0 {
		t.Errorf("weather_lon = %v, want 2 after failed write", got)
	}
}

func TestSQLiteBucket_KeysDeleteClear(t *testing.T) {
	b := newSQLiteBucket(t)
	other := NewSQLiteBucket(b.db, "other")

	if err := b.StoreAll(map[string]any{"a": 1, "b": 2}); err != nil {
		t.Fatal(err)
	}
	if err := other.Store("a", "x"); err != nil {
		t.Fatal(err)
	}

	keys, err := b.Keys()
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys = %v, want [a b]", keys)
	}

	if existed, err := b.Delete("a"); err != nil || !existed {
		t.Errorf("Delete(a) = %v, %v", existed, err)
	}
	if existed, _ := b.Delete("a"); existed {
		t.Error("second Delete(a) reported existing key")
	}

	if err := b.Clear(); err != nil {
		t.Fatal(err)
	}
	if v, _ := b.Get("b"); v != nil {
		t.Errorf("Get(b) after Clear = %v", v)
	}
	if v, _ := other.Get("a"); v != "x" {
		t.Errorf("Clear touched another bucket: %v", v)
	}
}
