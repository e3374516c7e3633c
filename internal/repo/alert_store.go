package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	_ "modernc.org/sqlite"

	"github.com/koperasi/anomaly-engine/internal/models"
	"github.com/koperasi/anomaly-engine/internal/stats"
	"github.com/koperasi/anomaly-engine/internal/utils"
)

var alertMigrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS alerts (
    id          TEXT PRIMARY KEY,
    metric      TEXT NOT NULL,
    severity    INTEGER NOT NULL,
    confidence  REAL NOT NULL DEFAULT 0,
    summary     TEXT NOT NULL DEFAULT '',
    message     TEXT NOT NULL DEFAULT '',
    anomalies   TEXT NOT NULL DEFAULT '[]',
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_metric_created ON alerts(metric, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at DESC);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS thresholds (
    metric      TEXT PRIMARY KEY,
    spec        TEXT NOT NULL,
    updated_at  INTEGER NOT NULL
);
`,
	},
}

const (
	defaultAlertPageSize = 20
	maxAlertPageSize     = 200
)

// AlertStore persists emitted alerts and operator-set thresholds in SQLite.
type AlertStore struct {
	db *sql.DB
}

// NewAlertStore opens (or creates) the database at path and applies pending migrations.
// Use ":memory:" for an ephemeral store.
func NewAlertStore(path string) (*AlertStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, utils.NewAppError(utils.OpStoreOpen, path, err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, utils.NewAppError(utils.OpStoreOpen, "enable WAL", err)
	}

	s := &AlertStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, utils.NewAppError(utils.OpStoreMigrate, path, err)
	}
	return s, nil
}

func (s *AlertStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range alertMigrations {
		var count int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

// Close checkpoints the WAL and releases the database.
func (s *AlertStore) Close() error {
	var result *multierror.Error
	if _, err := s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		result = multierror.Append(result, fmt.Errorf("checkpoint: %w", err))
	}
	if err := s.db.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close: %w", err))
	}
	return result.ErrorOrNil()
}

// SaveAlert inserts alert, replacing any row with the same ID.
func (s *AlertStore) SaveAlert(ctx context.Context, alert models.Alert) error {
	if alert.ID == "" {
		return utils.NewAppError(utils.OpSaveAlert, "alert id is required", nil)
	}
	anomalies, err := json.Marshal(storableAnomalies(alert.Anomalies))
	if err != nil {
		return utils.NewAppError(utils.OpSaveAlert, "encode anomalies", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO alerts (id, metric, severity, confidence, summary, message, anomalies, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.Metric, int(alert.Severity), alert.Confidence,
		alert.Summary, alert.Message, string(anomalies), alert.Timestamp.UnixMilli())
	if err != nil {
		return utils.NewAppError(utils.OpSaveAlert, alert.ID, err)
	}
	return nil
}

// storableAnomalies returns a copy with every float made finite. An IQR deviation over a
// zero spread is +Inf, which encoding/json rejects.
func storableAnomalies(anomalies []models.Anomaly) []models.Anomaly {
	out := make([]models.Anomaly, len(anomalies))
	for i, a := range anomalies {
		a.Value = stats.Finite(a.Value)
		a.ZScore = stats.Finite(a.ZScore)
		a.Deviation = stats.Finite(a.Deviation)
		a.Bound = stats.Finite(a.Bound)
		a.TrendChange = stats.Finite(a.TrendChange)
		a.SlopeBefore = stats.Finite(a.SlopeBefore)
		a.SlopeAfter = stats.Finite(a.SlopeAfter)
		out[i] = a
	}
	return out
}

// ListAlerts returns stored alerts newest first. Severity filters by minimum severity;
// page tokens are row offsets.
func (s *AlertStore) ListAlerts(ctx context.Context, req models.ListAlertsRequest) (models.ListAlertsResponse, error) {
	limit := req.PageSize
	if limit <= 0 {
		limit = defaultAlertPageSize
	}
	if limit > maxAlertPageSize {
		limit = maxAlertPageSize
	}

	offset := 0
	if req.PageToken != "" {
		v, err := strconv.Atoi(req.PageToken)
		if err != nil || v < 0 {
			return models.ListAlertsResponse{}, utils.NewAppError(utils.OpListAlerts, req.PageToken, utils.ErrInvalidPageToken)
		}
		offset = v
	}

	var (
		clauses []string
		args    []any
	)
	if req.Metric != "" {
		clauses = append(clauses, "metric = ?")
		args = append(args, req.Metric)
	}
	if req.Severity > models.SeverityUnknown {
		clauses = append(clauses, "severity >= ?")
		args = append(args, int(req.Severity))
	}
	if !req.Start.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, req.Start.UnixMilli())
	}
	if !req.End.IsZero() {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, req.End.UnixMilli())
	}

	query := `SELECT id, metric, severity, confidence, summary, message, anomalies, created_at FROM alerts`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	alerts, err := s.queryAlerts(ctx, query, args...)
	if err != nil {
		return models.ListAlertsResponse{}, utils.NewAppError(utils.OpListAlerts, "query", err)
	}

	nextToken := ""
	if len(alerts) == limit {
		nextToken = strconv.Itoa(offset + len(alerts))
	}
	return models.ListAlertsResponse{Alerts: alerts, NextPageToken: nextToken}, nil
}

// AlertsSince returns every alert created at or after since, oldest first.
func (s *AlertStore) AlertsSince(ctx context.Context, since time.Time) ([]models.Alert, error) {
	alerts, err := s.queryAlerts(ctx, `
SELECT id, metric, severity, confidence, summary, message, anomalies, created_at
FROM alerts WHERE created_at >= ? ORDER BY created_at ASC, id ASC`, since.UnixMilli())
	if err != nil {
		return nil, utils.NewAppError(utils.OpAlertsSince, "query", err)
	}
	return alerts, nil
}

func (s *AlertStore) queryAlerts(ctx context.Context, query string, args ...any) ([]models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var (
			alert     models.Alert
			severity  int
			anomalies string
			createdAt int64
		)
		if err := rows.Scan(&alert.ID, &alert.Metric, &severity, &alert.Confidence,
			&alert.Summary, &alert.Message, &anomalies, &createdAt); err != nil {
			return nil, err
		}
		alert.Severity = models.Severity(severity)
		alert.Timestamp = time.UnixMilli(createdAt).UTC()
		if err := json.Unmarshal([]byte(anomalies), &alert.Anomalies); err != nil {
			return nil, fmt.Errorf("decode anomalies of %s: %w", alert.ID, err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// SaveThreshold upserts the threshold for metric.
func (s *AlertStore) SaveThreshold(ctx context.Context, metric string, threshold models.Threshold) error {
	spec, err := json.Marshal(threshold)
	if err != nil {
		return utils.NewAppError(utils.OpSaveThreshold, "encode threshold", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO thresholds (metric, spec, updated_at) VALUES (?, ?, ?)
ON CONFLICT(metric) DO UPDATE SET spec = excluded.spec, updated_at = excluded.updated_at`,
		metric, string(spec), time.Now().UnixMilli())
	if err != nil {
		return utils.NewAppError(utils.OpSaveThreshold, metric, err)
	}
	return nil
}

// LoadThresholds returns every persisted threshold keyed by metric.
func (s *AlertStore) LoadThresholds(ctx context.Context) (map[string]models.Threshold, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT metric, spec FROM thresholds ORDER BY metric`)
	if err != nil {
		return nil, utils.NewAppError(utils.OpLoadThresholds, "query", err)
	}
	defer rows.Close()

	out := make(map[string]models.Threshold)
	for rows.Next() {
		var metric, spec string
		if err := rows.Scan(&metric, &spec); err != nil {
			return nil, utils.NewAppError(utils.OpLoadThresholds, "scan", err)
		}
		var threshold models.Threshold
		if err := json.Unmarshal([]byte(spec), &threshold); err != nil {
			return nil, utils.NewAppError(utils.OpLoadThresholds, metric, err)
		}
		out[metric] = threshold
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.OpLoadThresholds, "iterate", err)
	}
	return out, nil
}
