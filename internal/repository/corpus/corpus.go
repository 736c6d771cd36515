// Package corpus bulk-loads and stores the historical reading corpus used
// for offline training.
package corpus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/smartcity/congestion/internal/domain"
	"github.com/smartcity/congestion/internal/repository/postgres"
)

// insertChunk bounds rows per INSERT; postgres caps bind parameters at 65535
const insertChunk = 1000

// Store reads and writes whole reading ranges
type Store struct {
	db *sqlx.DB
}

// Connect opens a store on a postgres DSN
func Connect(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("corpus: failed to connect: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an open handle
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Load returns every reading with start <= timestamp < end, ordered by
// segment and time. A zero end means no upper bound.
func (s *Store) Load(ctx context.Context, start, end time.Time) ([]domain.Reading, error) {
	query, args := loadQuery(start, end)

	var readings []domain.Reading
	if err := s.db.SelectContext(ctx, &readings, query, args...); err != nil {
		return nil, fmt.Errorf("corpus: failed to load readings: %w", err)
	}
	return readings, nil
}

func loadQuery(start, end time.Time) (string, []any) {
	query := `SELECT ` + postgres.ReadingColumns + `
		FROM traffic_readings
		WHERE timestamp >= $1`
	args := []any{start}
	if !end.IsZero() {
		query += ` AND timestamp < $2`
		args = append(args, end)
	}
	return query + ` ORDER BY road_id, timestamp`, args
}

// Save upserts readings and their segments in one transaction
func (s *Store) Save(ctx context.Context, readings []domain.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("corpus: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, upsertSegmentQuery, segmentsOf(readings)); err != nil {
		return fmt.Errorf("corpus: failed to upsert segments: %w", err)
	}
	for lo := 0; lo < len(readings); lo += insertChunk {
		hi := min(lo+insertChunk, len(readings))
		if _, err := tx.NamedExecContext(ctx, insertReadingQuery, readings[lo:hi]); err != nil {
			return fmt.Errorf("corpus: failed to insert readings: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("corpus: failed to commit: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

const upsertSegmentQuery = `
	INSERT INTO segments (road_id, road_name, segment_name, lat, lon, road_class)
	VALUES (:road_id, :road_name, :segment_name, :lat, :lon, :road_class)
	ON CONFLICT (road_id) DO UPDATE SET
		road_name = EXCLUDED.road_name,
		segment_name = EXCLUDED.segment_name,
		lat = EXCLUDED.lat,
		lon = EXCLUDED.lon,
		road_class = EXCLUDED.road_class`

var insertReadingQuery = `INSERT INTO traffic_readings (` + postgres.ReadingColumns + `)
	VALUES (` + namedPlaceholders(postgres.ReadingColumns) + `)
	ON CONFLICT (road_id, timestamp) DO NOTHING`

// namedPlaceholders turns "a, b" into ":a, :b"
func namedPlaceholders(columns string) string {
	fields := strings.Split(columns, ",")
	for i, f := range fields {
		fields[i] = ":" + strings.TrimSpace(f)
	}
	return strings.Join(fields, ", ")
}

// segmentsOf returns one segment per road id, in first-seen order
func segmentsOf(readings []domain.Reading) []domain.Segment {
	seen := make(map[string]bool)
	var out []domain.Segment
	for _, r := range readings {
		if seen[r.RoadID] {
			continue
		}
		seen[r.RoadID] = true
		out = append(out, domain.Segment{
			RoadID:      r.RoadID,
			RoadName:    r.RoadName,
			SegmentName: r.SegmentName,
			Lat:         r.Lat,
			Lon:         r.Lon,
			RoadClass:   r.RoadClass,
		})
	}
	return out
}
