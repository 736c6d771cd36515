package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartcity/congestion/internal/domain"
	"github.com/smartcity/congestion/pkg/utils"
)

const (
	// DefaultSearchLimit applies when a query carries no limit
	DefaultSearchLimit = 100
	// MaxSearchLimit caps search results
	MaxSearchLimit = 1000
)

// PostgresRepository implements domain.ReadingRepository
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// LatestBefore returns up to limit readings strictly before `before`, oldest first
func (r *PostgresRepository) LatestBefore(ctx context.Context, roadID string, before time.Time, limit int) ([]domain.Reading, error) {
	query := `
		SELECT * FROM (
			SELECT ` + ReadingColumns + `
			FROM traffic_readings
			WHERE road_id = $1 AND timestamp < $2
			ORDER BY timestamp DESC
			LIMIT $3
		) recent
		ORDER BY timestamp ASC
	`

	rows, err := r.pool.Query(ctx, query, roadID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query history: %w", err)
	}
	readings, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.Reading])
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to scan history: %w", err)
	}
	return readings, nil
}

// GetSegment returns segment metadata or domain.ErrSegmentNotFound
func (r *PostgresRepository) GetSegment(ctx context.Context, roadID string) (domain.Segment, error) {
	query := `
		SELECT road_id, road_name, segment_name, lat, lon, road_class
		FROM segments
		WHERE road_id = $1
	`

	var s domain.Segment
	err := r.pool.QueryRow(ctx, query, roadID).Scan(
		&s.RoadID, &s.RoadName, &s.SegmentName, &s.Lat, &s.Lon, &s.RoadClass,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Segment{}, fmt.Errorf("%w: %s", domain.ErrSegmentNotFound, roadID)
	}
	if err != nil {
		return domain.Segment{}, fmt.Errorf("postgres: failed to get segment: %w", err)
	}
	return s, nil
}

// ListSegments returns every segment ordered by road name
func (r *PostgresRepository) ListSegments(ctx context.Context) ([]domain.Segment, error) {
	query := `
		SELECT road_id, road_name, segment_name, lat, lon, road_class
		FROM segments
		ORDER BY road_name, road_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query segments: %w", err)
	}
	segments, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.Segment])
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to scan segments: %w", err)
	}
	return segments, nil
}

// TimeRange returns the earliest and latest reading and the count for a segment
func (r *PostgresRepository) TimeRange(ctx context.Context, roadID string) (domain.TimeRange, error) {
	query := `
		SELECT MIN(timestamp), MAX(timestamp), COUNT(*)
		FROM traffic_readings
		WHERE road_id = $1
	`

	tr := domain.TimeRange{RoadID: roadID}
	err := r.pool.QueryRow(ctx, query, roadID).Scan(&tr.Earliest, &tr.Latest, &tr.TotalReadings)
	if err != nil {
		return domain.TimeRange{}, fmt.Errorf("postgres: failed to query time range: %w", err)
	}
	return tr, nil
}

// SearchReadings filters stored readings, newest first
func (r *PostgresRepository) SearchReadings(ctx context.Context, q domain.ReadingQuery) ([]domain.SearchResult, error) {
	where, args := buildSearchFilter(q)
	query := `
		SELECT road_id, segment_name, road_name, timestamp, congestion_level, congestion_band
		FROM traffic_readings
	` + where + fmt.Sprintf(`
		ORDER BY timestamp DESC
		LIMIT %d
	`, searchLimit(q.Limit))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to search readings: %w", err)
	}
	defer rows.Close()

	results := []domain.SearchResult{}
	for rows.Next() {
		var (
			res   domain.SearchResult
			level float64
		)
		if err := rows.Scan(&res.RoadID, &res.SegmentName, &res.RoadName, &res.Timestamp, &level, &res.CongestionBand); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan search row: %w", err)
		}
		res.CongestionPct = congestionPct(level)
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate search rows: %w", err)
	}
	return results, nil
}

// buildSearchFilter turns a query into a WHERE clause with positional args.
// Congestion bounds arrive in percent and are stored as fractions.
func buildSearchFilter(q domain.ReadingQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.RoadID != "" {
		add("road_id = $%d", q.RoadID)
	}
	if q.StartTime != nil {
		add("timestamp >= $%d", *q.StartTime)
	}
	if q.EndTime != nil {
		add("timestamp < $%d", *q.EndTime)
	}
	if q.MinCongestion != nil {
		add("congestion_level >= $%d", *q.MinCongestion/100)
	}
	if q.MaxCongestion != nil {
		add("congestion_level <= $%d", *q.MaxCongestion/100)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func searchLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSearchLimit
	case limit > MaxSearchLimit:
		return MaxSearchLimit
	default:
		return limit
	}
}

// SaveForecastLog persists a served forecast
func (r *PostgresRepository) SaveForecastLog(ctx context.Context, entry domain.ForecastLog) error {
	query := `
		INSERT INTO forecast_logs (
			id, road_id, reference_time, plus_1h_pct, alert_level,
			anchored, live_pct, horizon_values, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.RoadID, entry.Timestamp, entry.PlusOneHour, entry.AlertLevel,
		entry.Anchored, entry.LivePct, entry.HorizonValues, entry.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save forecast log: %w", err)
	}

	return nil
}

// Health checks database connectivity
func (r *PostgresRepository) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}

func congestionPct(level float64) float64 {
	return utils.RoundTo(level*100, 2)
}
