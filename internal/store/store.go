package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Store is the persistence API used by the message router and the REST
// query surface. Read operations never mutate state.
type Store interface {
	// ReplaceByDate stores sub as the canonical extraction for its date,
	// removing any previous extraction and its classes first. It returns
	// once the new extraction row is committed.
	ReplaceByDate(ctx context.Context, sub Submission) (*Extraction, error)

	ExtractionByDate(ctx context.Context, fecha string) (*Extraction, error)
	ClassesByDate(ctx context.Context, fecha string) ([]Class, error)
	ClassesByInstructor(ctx context.Context, instructor string) ([]Class, error)
	ClassesByDateRange(ctx context.Context, from, to string) ([]Class, error)
	RecentExtractions(ctx context.Context, limit int) ([]Extraction, error)
	AggregateStats(ctx context.Context) (Stats, error)

	Close() error
}

// Config selects and tunes a backend.
type Config struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	Retention     int    `yaml:"retention"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
}

// DefaultRetention bounds the memory backend when no retention is configured.
const DefaultRetention = 100

// DefaultRecentLimit is used by RecentExtractions when limit is not positive.
const DefaultRecentLimit = 10

// Open initializes the configured backend.
func Open(cfg Config, log zerolog.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return OpenSQLite(cfg, log)
	case "memory", "mem":
		return NewMemory(cfg.Retention, log), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}
