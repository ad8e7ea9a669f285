// Package store persists weather samples, sensor samples, and system events
// in the embedded database, including the multi-tier rolling compaction of
// sensor_log described by the schema's retention rules.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/tommyskogstad/geoloop/internal/database"
	"github.com/tommyskogstad/geoloop/internal/model"
	"gonum.org/v1/gonum/stat"
)

// Store wraps the database connection for the process lifetime; Close
// releases it on shutdown.
type Store struct {
	db *database.DB
}

// New wraps an already-migrated database connection.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// HealthCheck runs a full integrity check against the underlying database.
// Expensive; called from the resource sampler's hourly cadence rather than
// per-request.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

// Stats reports on-disk size and page-level statistics for the underlying
// database file, surfaced alongside the resource sampler's disk/memory log
// line.
func (s *Store) Stats() (*database.Stats, error) {
	return s.db.GetStats()
}

// CheckpointWAL forces a WAL checkpoint. Called after compaction, since a
// bulk delete of raw sensor_log rows leaves the WAL file worth reclaiming.
func (s *Store) CheckpointWAL() error {
	return s.db.WALCheckpoint("")
}

// DatabasePath returns the resolved path of the underlying database file.
func (s *Store) DatabasePath() string {
	return s.db.Path()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func resolveTimestamp(ts *time.Time) string {
	if ts == nil {
		return formatTimestamp(time.Now())
	}
	return formatTimestamp(*ts)
}

// WeatherLogRow is one row of weather_log.
type WeatherLogRow struct {
	ID                  int64    `json:"id"`
	Timestamp           string   `json:"timestamp"`
	AirTemperature      *float64 `json:"air_temperature,omitempty"`
	PrecipitationAmount *float64 `json:"precipitation_amount,omitempty"`
	RelativeHumidity    *float64 `json:"relative_humidity,omitempty"`
	WindSpeed           *float64 `json:"wind_speed,omitempty"`
}

// SensorLogRow is one row of sensor_log.
type SensorLogRow struct {
	ID        int64   `json:"id"`
	Timestamp string  `json:"timestamp"`
	SensorID  string  `json:"sensor_id"`
	Value     float64 `json:"value"`
	Compacted int     `json:"compacted"`
}

// EventRow is one row of system_events.
type EventRow struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	EventType string `json:"event_type"`
	Message   string `json:"message"`
}

// SensorHistoryRow is a pivoted history sample: one optional field per known
// logical sensor, all sharing one timestamp (exact, or a compaction bucket
// boundary when the result was bucketed).
type SensorHistoryRow struct {
	Timestamp  string   `json:"timestamp"`
	LoopInlet  *float64 `json:"loop_inlet,omitempty"`
	LoopOutlet *float64 `json:"loop_outlet,omitempty"`
	HPInlet    *float64 `json:"hp_inlet,omitempty"`
	HPOutlet   *float64 `json:"hp_outlet,omitempty"`
	Tank       *float64 `json:"tank,omitempty"`
}

func (r *SensorHistoryRow) set(sensorID string, value float64) {
	switch sensorID {
	case model.SensorLoopInlet:
		r.LoopInlet = &value
	case model.SensorLoopOutlet:
		r.LoopOutlet = &value
	case model.SensorHPInlet:
		r.HPInlet = &value
	case model.SensorHPOutlet:
		r.HPOutlet = &value
	case model.SensorTank:
		r.Tank = &value
	}
}

// LogWeather records a weather snapshot. A nil timestamp stamps the current
// UTC instant.
func (s *Store) LogWeather(ctx context.Context, snap model.WeatherSnapshot, timestamp *time.Time) error {
	ts := resolveTimestamp(timestamp)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO weather_log (timestamp, temperature, precipitation, humidity, wind_speed) VALUES (?, ?, ?, ?, ?)`,
		ts, snap.AirTemperature, snap.PrecipitationAmount, snap.RelativeHumidity, snap.WindSpeed)
	if err != nil {
		return fmt.Errorf("log weather: %w", err)
	}
	return nil
}

// LogSensor records one sensor reading. A nil timestamp stamps the current
// UTC instant; within one sensor-poll cycle, callers pass the same
// timestamp for every sensor so the cycle's readings align as columns.
func (s *Store) LogSensor(ctx context.Context, sensorID string, value float64, timestamp *time.Time) error {
	ts := resolveTimestamp(timestamp)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sensor_log (timestamp, sensor_id, value, compacted) VALUES (?, ?, ?, 0)`,
		ts, sensorID, value)
	if err != nil {
		return fmt.Errorf("log sensor %s: %w", sensorID, err)
	}
	return nil
}

// LogEvent records a system event.
func (s *Store) LogEvent(ctx context.Context, eventType, message string, timestamp *time.Time) error {
	ts := resolveTimestamp(timestamp)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system_events (timestamp, event_type, message) VALUES (?, ?, ?)`,
		ts, eventType, message)
	if err != nil {
		return fmt.Errorf("log event %s: %w", eventType, err)
	}
	return nil
}

// GetWeatherLog returns the newest limit weather_log rows, newest first.
func (s *Store) GetWeatherLog(ctx context.Context, limit int) ([]WeatherLogRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, temperature, precipitation, humidity, wind_speed FROM weather_log ORDER BY id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("get weather log: %w", err)
	}
	defer rows.Close()

	var out []WeatherLogRow
	for rows.Next() {
		var r WeatherLogRow
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.AirTemperature, &r.PrecipitationAmount, &r.RelativeHumidity, &r.WindSpeed); err != nil {
			return nil, fmt.Errorf("scan weather log row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetSensorLog returns the newest limit sensor_log rows, newest first.
// sensorID == "" returns rows for every sensor.
func (s *Store) GetSensorLog(ctx context.Context, sensorID string, limit int) ([]SensorLogRow, error) {
	query := `SELECT id, timestamp, sensor_id, value, compacted FROM sensor_log`
	args := []interface{}{}
	if sensorID != "" {
		query += ` WHERE sensor_id = ?`
		args = append(args, sensorID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get sensor log: %w", err)
	}
	defer rows.Close()

	var out []SensorLogRow
	for rows.Next() {
		var r SensorLogRow
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.SensorID, &r.Value, &r.Compacted); err != nil {
			return nil, fmt.Errorf("scan sensor log row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetEvents returns the newest limit system_events rows, newest first.
func (s *Store) GetEvents(ctx context.Context, limit int) ([]EventRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, event_type, message FROM system_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var r EventRow
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.EventType, &r.Message); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetHeatingPeriods returns heating_on/heating_off/manual_on/manual_off
// events within the last `hours` hours, ascending by time.
func (s *Store) GetHeatingPeriods(ctx context.Context, hours int) ([]EventRow, error) {
	from := formatTimestamp(time.Now().Add(-time.Duration(hours) * time.Hour))

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, event_type, message FROM system_events
		 WHERE timestamp >= ? AND event_type IN (?, ?, ?, ?)
		 ORDER BY timestamp ASC`,
		from,
		model.EventHeatingOn, model.EventHeatingOff, model.EventManualOn, model.EventManualOff)
	if err != nil {
		return nil, fmt.Errorf("get heating periods: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var r EventRow
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.EventType, &r.Message); err != nil {
			return nil, fmt.Errorf("scan heating period row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type sensorSample struct {
	timestamp string
	sensorID  string
	value     float64
}

// GetSensorHistory returns a time-ordered, pivoted view of sensor_log for
// the last `hours` hours. If limit is 0, or the window's distinct-timestamp
// count doesn't exceed limit, rows are grouped by exact timestamp. Otherwise
// readings are bucketed into hours*3600/limit-second bins and averaged per
// sensor, with the bucket's lower boundary as the row timestamp.
func (s *Store) GetSensorHistory(ctx context.Context, hours int, limit int) ([]SensorHistoryRow, error) {
	from := formatTimestamp(time.Now().Add(-time.Duration(hours) * time.Hour))

	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, sensor_id, value FROM sensor_log WHERE timestamp >= ? ORDER BY timestamp ASC`, from)
	if err != nil {
		return nil, fmt.Errorf("get sensor history: %w", err)
	}
	defer rows.Close()

	var samples []sensorSample
	distinctTimestamps := map[string]struct{}{}
	for rows.Next() {
		var smp sensorSample
		if err := rows.Scan(&smp.timestamp, &smp.sensorID, &smp.value); err != nil {
			return nil, fmt.Errorf("scan sensor history row: %w", err)
		}
		samples = append(samples, smp)
		distinctTimestamps[smp.timestamp] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if limit == 0 || len(distinctTimestamps) <= limit {
		return pivotByExactTimestamp(samples), nil
	}
	return pivotByBucket(samples, hours, limit)
}

// pivotByExactTimestamp groups samples sharing the same full ISO-8601
// timestamp string, matching the invariant that one poll cycle stamps every
// sensor with one shared timestamp.
func pivotByExactTimestamp(samples []sensorSample) []SensorHistoryRow {
	byTimestamp := map[string]*SensorHistoryRow{}
	var order []string

	for _, smp := range samples {
		row, ok := byTimestamp[smp.timestamp]
		if !ok {
			row = &SensorHistoryRow{Timestamp: smp.timestamp}
			byTimestamp[smp.timestamp] = row
			order = append(order, smp.timestamp)
		}
		row.set(smp.sensorID, smp.value)
	}

	sort.Strings(order)
	out := make([]SensorHistoryRow, 0, len(order))
	for _, ts := range order {
		out = append(out, *byTimestamp[ts])
	}
	return out
}

// pivotByBucket buckets samples into hours*3600/limit-second bins keyed by
// integer-divided epoch seconds, then averages each sensor within its bin.
func pivotByBucket(samples []sensorSample, hours, limit int) ([]SensorHistoryRow, error) {
	bucketSeconds := int64(hours) * 3600 / int64(limit)
	if bucketSeconds <= 0 {
		bucketSeconds = 1
	}

	type bucketKey struct {
		bucket   int64
		sensorID string
	}
	values := map[bucketKey][]float64{}
	var bucketOrder []int64
	seenBucket := map[int64]bool{}

	for _, smp := range samples {
		t, err := time.Parse(time.RFC3339, smp.timestamp)
		if err != nil {
			return nil, fmt.Errorf("parse sensor history timestamp %q: %w", smp.timestamp, err)
		}
		bucket := t.Unix() / bucketSeconds
		k := bucketKey{bucket: bucket, sensorID: smp.sensorID}
		values[k] = append(values[k], smp.value)
		if !seenBucket[bucket] {
			seenBucket[bucket] = true
			bucketOrder = append(bucketOrder, bucket)
		}
	}

	sort.Slice(bucketOrder, func(i, j int) bool { return bucketOrder[i] < bucketOrder[j] })

	out := make([]SensorHistoryRow, 0, len(bucketOrder))
	for _, bucket := range bucketOrder {
		ts := time.Unix(bucket*bucketSeconds, 0).UTC()
		row := SensorHistoryRow{Timestamp: formatTimestamp(ts)}
		for _, name := range model.SensorNames {
			vs, ok := values[bucketKey{bucket: bucket, sensorID: name}]
			if !ok {
				continue
			}
			mean := stat.Mean(vs, nil)
			row.set(name, mean)
		}
		out = append(out, row)
	}

	return out, nil
}

// truncateToBucketStart implements the compaction bucket-key rule: truncate
// to the start of the B-minute slot within the timestamp's UTC hour.
func truncateToBucketStart(t time.Time, bucketMinutes int) time.Time {
	minute := (t.Minute() / bucketMinutes) * bucketMinutes
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), minute, 0, 0, time.UTC)
}

// CompactSensorData runs the full rolling-compaction pass in one
// transaction: delete rows older than 7 days, compact [7d,24h) to level 2
// with 30-minute buckets, then compact [24h,1h) to level 1 with 5-minute
// buckets. Idempotent: a second immediate call finds nothing left to
// compact in either window.
func (s *Store) CompactSensorData(ctx context.Context) error {
	now := time.Now().UTC()
	t7d := now.Add(-7 * 24 * time.Hour)
	t24h := now.Add(-24 * time.Hour)
	t1h := now.Add(-1 * time.Hour)

	return database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sensor_log WHERE timestamp < ?`, formatTimestamp(t7d)); err != nil {
			return fmt.Errorf("delete rows older than retention window: %w", err)
		}

		if err := compactWindow(ctx, tx, t7d, t24h, 2, 30); err != nil {
			return fmt.Errorf("compact level 2 window: %w", err)
		}

		if err := compactWindow(ctx, tx, t24h, t1h, 1, 5); err != nil {
			return fmt.Errorf("compact level 1 window: %w", err)
		}

		return nil
	})
}

// compactWindow merges every (bucket, sensor_id) group of rows in
// [from, to) whose compacted level is below level into one bucket-average
// row at that level, then deletes the source rows — all within tx.
func compactWindow(ctx context.Context, tx *sql.Tx, from, to time.Time, level, bucketMinutes int) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, timestamp, sensor_id, value FROM sensor_log WHERE timestamp >= ? AND timestamp < ? AND compacted < ?`,
		formatTimestamp(from), formatTimestamp(to), level)
	if err != nil {
		return fmt.Errorf("select compaction candidates: %w", err)
	}

	type groupKey struct {
		bucket   string
		sensorID string
	}
	groups := map[groupKey][]float64{}
	var ids []int64

	for rows.Next() {
		var id int64
		var ts, sensorID string
		var value float64
		if err := rows.Scan(&id, &ts, &sensorID, &value); err != nil {
			rows.Close()
			return fmt.Errorf("scan compaction candidate: %w", err)
		}

		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			rows.Close()
			return fmt.Errorf("parse compaction candidate timestamp %q: %w", ts, err)
		}

		bucketStart := formatTimestamp(truncateToBucketStart(parsed, bucketMinutes))
		k := groupKey{bucket: bucketStart, sensorID: sensorID}
		groups[k] = append(groups[k], value)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil
	}

	for k, values := range groups {
		mean := stat.Mean(values, nil)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sensor_log (timestamp, sensor_id, value, compacted) VALUES (?, ?, ?, ?)`,
			k.bucket, k.sensorID, mean, level); err != nil {
			return fmt.Errorf("insert compacted bucket row: %w", err)
		}
	}

	placeholders := make([]interface{}, len(ids))
	query := `DELETE FROM sensor_log WHERE id IN (`
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders[i] = id
	}
	query += ")"

	if _, err := tx.ExecContext(ctx, query, placeholders...); err != nil {
		return fmt.Errorf("delete compacted source rows: %w", err)
	}

	return nil
}
