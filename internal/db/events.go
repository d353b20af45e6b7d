// Package db holds the DuckDB-backed run history: an event log written as
// the pipeline moves genomes and tasks through their states, plus the result
// tables filled by the import command.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // Driver
)

// Event types.
const (
	EventCollected = "collected"
	EventCopyEnd   = "copy_end"
	EventTaskStart = "task_start"
	EventTaskEnd   = "task_end"
	EventParseEnd  = "parse_end"
	EventRunStart  = "run_start"
	EventRunEnd    = "run_end"
	EventCleanup   = "cleanup"
	EventError     = "error"
)

// Subject kinds.
const (
	KindGenome = "genome"
	KindTask   = "task"
	KindRun    = "run"
)

const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS qs_event_log_id_seq;`
const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS qs_event_log (
    log_id          BIGINT PRIMARY KEY DEFAULT nextval('qs_event_log_id_seq'),
    name            VARCHAR NOT NULL,      -- workspace name, task id or run id
    kind            VARCHAR NOT NULL,      -- 'genome', 'task', 'run'
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    source_path     VARCHAR,
    output_path     VARCHAR,
    message         VARCHAR,
    md5_hash        VARCHAR,
    duration_ms     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_qs_event_log_name ON qs_event_log (name, kind);
CREATE INDEX IF NOT EXISTS idx_qs_event_log_event_time ON qs_event_log (event, event_timestamp);
`

// InitializeSchema creates the sequence and tables in dependency order.
func InitializeSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSequenceSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute sequence setup: %w", err)
	}
	_, err = db.Exec(schemaTableSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute table/index setup: %w", err)
	}
	return nil
}

// LogEvent inserts a new event record. A nil db disables history tracking
// (used by tests and by runs with --db-path ""); the insert is then a no-op.
func LogEvent(ctx context.Context, db *sql.DB, name, kind, event, sourcePath, outputPath, message, md5 string, duration *time.Duration) error {
	if db == nil {
		return nil
	}
	query := `
        INSERT INTO qs_event_log (name, kind, event, event_timestamp, source_path, output_path, message, md5_hash, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
    `
	var durationMs sql.NullInt64
	if duration != nil {
		durationMs = sql.NullInt64{Int64: duration.Milliseconds(), Valid: true}
	}

	_, err := db.ExecContext(ctx, query,
		name,
		kind,
		event,
		time.Now().UTC(),
		sql.NullString{String: sourcePath, Valid: sourcePath != ""},
		sql.NullString{String: outputPath, Valid: outputPath != ""},
		sql.NullString{String: message, Valid: message != ""},
		sql.NullString{String: md5, Valid: md5 != ""},
		durationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to log event '%s' for '%s': %w", event, name, err)
	}
	return nil
}

// DisplayHistory queries and prints the event log.
func DisplayHistory(ctx context.Context, db *sql.DB, kindFilter, eventFilter string, limit int) error {
	query := `
        SELECT name, kind, event, event_timestamp, message, duration_ms, source_path, output_path
        FROM qs_event_log
    `
	conditions := []string{}
	args := []any{}
	argCounter := 1

	if kindFilter != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argCounter))
		args = append(args, kindFilter)
		argCounter++
	}
	if eventFilter != "" {
		conditions = append(conditions, fmt.Sprintf("event = $%d", argCounter))
		args = append(args, eventFilter)
		argCounter++
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += fmt.Sprintf(" ORDER BY event_timestamp DESC, log_id DESC LIMIT $%d", argCounter)
	args = append(args, limit)

	fmt.Printf("--- Event Log History (Limit %d) ---\n", limit)
	fmt.Printf("%-40s | %-8s | %-12s | %-25s | %-10s | %s\n", "Name", "Kind", "Event", "Timestamp (UTC)", "DurationMS", "Message/Details")
	fmt.Println(strings.Repeat("-", 130))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query event log: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var name, kind, event string
		var timestamp time.Time
		var message, sourcePath, outputPath sql.NullString
		var durationMs sql.NullInt64
		if err := rows.Scan(&name, &kind, &event, &timestamp, &message, &durationMs, &sourcePath, &outputPath); err != nil {
			return fmt.Errorf("failed to scan event log row: %w", err)
		}

		durationStr := ""
		if durationMs.Valid {
			durationStr = fmt.Sprintf("%d", durationMs.Int64)
		}

		details := message.String
		if sourcePath.Valid && sourcePath.String != "" {
			details += fmt.Sprintf(" (Source: %s)", filepath.Base(sourcePath.String))
		}
		if outputPath.Valid && outputPath.String != "" {
			details += fmt.Sprintf(" (Output: %s)", filepath.Base(outputPath.String))
		}

		fmt.Printf("%-40s | %-8s | %-12s | %-25s | %-10s | %s\n",
			name, kind, event, timestamp.Format(time.RFC3339), durationStr, details)
		count++
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating event log rows: %w", err)
	}
	fmt.Printf("Displayed %d records.\n", count)
	return nil
}
