package geo

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Cache provides persistent storage for reverse-geocoded places.
type Cache struct {
	db *sql.DB
}

// NewCache creates a new geo cache backed by SQLite.
func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db}
}

// cacheKey rounds to roughly a kilometre so nearby lookups share an entry.
func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.2f,%.2f", lat, lon)
}

// Get retrieves a cached place for the coordinates.
func (c *Cache) Get(lat, lon float64) (*Place, bool) {
	query := cacheKey(lat, lon)
	var p Place
	err := c.db.QueryRow(`
		SELECT city, region, latitude, longitude
		FROM geocache
		WHERE query = ?
	`, query).Scan(&p.City, &p.Region, &p.Latitude, &p.Longitude)

	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("Failed to read geocache")
		return nil, false
	}

	log.Debug().Str("query", query).Str("city", p.City).Msg("Geocache hit")
	return &p, true
}

// Put stores a reverse-geocoded place.
func (c *Cache) Put(p *Place) error {
	query := cacheKey(p.Latitude, p.Longitude)
	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO geocache (query, city, region, latitude, longitude, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, query, p.City, p.Region, p.Latitude, p.Longitude, time.Now().Unix())

	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("Failed to write geocache")
		return err
	}

	log.Info().Str("query", query).Str("city", p.City).Str("region", p.Region).Msg("Geocache stored")
	return nil
}
