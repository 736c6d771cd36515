package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ReadingColumns is the column list matching domain.Reading db tags
const ReadingColumns = `road_id, road_name, segment_name, lat, lon, road_class, timestamp,
	hour, day_of_week, is_weekend, month,
	hourly_speed_kph, avg_speed_kph, travel_time_s, free_flow_speed_kph, free_flow_travel_time_s,
	delay_ratio, congestion_level, congestion_band,
	accident_hotspot_score, recent_incident_count, enforcement_violation_pattern, long_term_risk_prior`

// Schema creates the tables used by the forecaster. Readings are keyed by
// (road_id, timestamp) so a segment never holds two readings for one hour.
const Schema = `
CREATE TABLE IF NOT EXISTS segments (
	road_id      TEXT PRIMARY KEY,
	road_name    TEXT NOT NULL DEFAULT '',
	segment_name TEXT NOT NULL DEFAULT '',
	lat          DOUBLE PRECISION NOT NULL,
	lon          DOUBLE PRECISION NOT NULL,
	road_class   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS traffic_readings (
	road_id                       TEXT NOT NULL,
	road_name                     TEXT NOT NULL DEFAULT '',
	segment_name                  TEXT NOT NULL DEFAULT '',
	lat                           DOUBLE PRECISION NOT NULL,
	lon                           DOUBLE PRECISION NOT NULL,
	road_class                    TEXT NOT NULL DEFAULT '',
	timestamp                     TIMESTAMPTZ NOT NULL,
	hour                          INT NOT NULL,
	day_of_week                   INT NOT NULL,
	is_weekend                    INT NOT NULL,
	month                         INT NOT NULL,
	hourly_speed_kph              DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_speed_kph                 DOUBLE PRECISION NOT NULL DEFAULT 0,
	travel_time_s                 DOUBLE PRECISION NOT NULL DEFAULT 0,
	free_flow_speed_kph           DOUBLE PRECISION NOT NULL DEFAULT 0,
	free_flow_travel_time_s       DOUBLE PRECISION NOT NULL DEFAULT 0,
	delay_ratio                   DOUBLE PRECISION NOT NULL DEFAULT 0,
	congestion_level              DOUBLE PRECISION NOT NULL,
	congestion_band               TEXT NOT NULL DEFAULT '',
	accident_hotspot_score        DOUBLE PRECISION NOT NULL DEFAULT 0,
	recent_incident_count         INT NOT NULL DEFAULT 0,
	enforcement_violation_pattern DOUBLE PRECISION NOT NULL DEFAULT 0,
	long_term_risk_prior          DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (road_id, timestamp)
);

CREATE INDEX IF NOT EXISTS traffic_readings_timestamp_idx ON traffic_readings (timestamp DESC);

CREATE TABLE IF NOT EXISTS forecast_logs (
	id             UUID PRIMARY KEY,
	road_id        TEXT NOT NULL,
	reference_time TIMESTAMPTZ NOT NULL,
	plus_1h_pct    DOUBLE PRECISION NOT NULL,
	alert_level    TEXT NOT NULL,
	anchored       BOOLEAN NOT NULL DEFAULT FALSE,
	live_pct       DOUBLE PRECISION,
	horizon_values DOUBLE PRECISION[] NOT NULL,
	generated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema applies Schema; every statement is idempotent
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: failed to apply schema: %w", err)
	}
	return nil
}
