package db

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// DefaultImportBatchSize bounds how many rows go into one transaction.
const DefaultImportBatchSize = 500

// CreateResultTables creates the assembly-statistics table ("basic") and the
// quality-score table ("supply") with a uniqueness key relating the two.
// uniqueKey must be fasta_file_name or fasta_file_md5.
func CreateResultTables(ctx context.Context, db *sql.DB, basicTable, supplyTable, uniqueKey string) error {
	if uniqueKey != "fasta_file_name" && uniqueKey != "fasta_file_md5" {
		return fmt.Errorf("invalid unique key %q (use fasta_file_name or fasta_file_md5)", uniqueKey)
	}

	basicSQL, supplySQL := resultTableSQL(basicTable, supplyTable, uniqueKey)
	if _, err := db.ExecContext(ctx, basicSQL); err != nil {
		return fmt.Errorf("create table %s: %w", basicTable, err)
	}
	if _, err := db.ExecContext(ctx, supplySQL); err != nil {
		return fmt.Errorf("create table %s: %w", supplyTable, err)
	}
	return nil
}

// resultTableSQL builds the DDL for both result tables. The sequence name is
// derived from the supply table name and quoted like the table itself, so
// names needing quoting stay valid. nextval takes the sequence name as a
// string literal.
func resultTableSQL(basicTable, supplyTable, uniqueKey string) (string, string) {
	basicSQL := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS %s (
        fasta_file_name VARCHAR NOT NULL,
        fasta_file_md5  VARCHAR NOT NULL,
        total_size_bp   BIGINT,
        sequences       INTEGER,
        largest_seq_bp  INTEGER,
        smallest_seq_bp INTEGER,
        n50_bp          INTEGER,
        l50             INTEGER,
        PRIMARY KEY (%s),
        UNIQUE (fasta_file_name),
        UNIQUE (fasta_file_md5)
    );`, quoteIdent(basicTable), uniqueKey)

	seqName := supplyTable + "_id_seq"
	supplySQL := fmt.Sprintf(`
    CREATE SEQUENCE IF NOT EXISTS %s;
    CREATE TABLE IF NOT EXISTS %s (
        id              BIGINT PRIMARY KEY DEFAULT nextval(%s),
        fasta_file_name VARCHAR NOT NULL,
        fasta_file_md5  VARCHAR NOT NULL,
        completeness    DOUBLE,
        contamination   DOUBLE,
        qs              DOUBLE,
        quality_class   VARCHAR,
        FOREIGN KEY (%s) REFERENCES %s (%s)
    );`, quoteIdent(seqName), quoteIdent(supplyTable), quoteLiteral(seqName), uniqueKey, quoteIdent(basicTable), uniqueKey)

	return basicSQL, supplySQL
}

// ImportCSV streams a result CSV into the named table. Column names are
// taken from the CSV header after sanitizing them to SQL-friendly
// identifiers; NA values become NULL. Rows are inserted in batches, each in
// its own transaction, with duplicates on the unique keys ignored.
func ImportCSV(ctx context.Context, db *sql.DB, logger *slog.Logger, table, csvPath string, batchSize int) (int, error) {
	if batchSize < 1 {
		batchSize = DefaultImportBatchSize
	}
	f, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("open csv %s: %w", csvPath, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header %s: %w", csvPath, err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = sanitizeColumn(h)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	insertSQL := fmt.Sprintf(`INSERT OR IGNORE INTO %s (%s) VALUES (%s)`,
		quoteIdent(table), strings.Join(columns, ", "), placeholders)

	total := 0
	batch := make([][]string, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin import transaction: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, insertSQL)
		if err != nil {
			return fmt.Errorf("prepare insert for %s: %w", table, err)
		}
		for _, record := range batch {
			args := make([]any, len(record))
			for i, v := range record {
				if v == "" || v == "NA" {
					args[i] = nil
				} else {
					args[i] = v
				}
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				stmt.Close()
				return fmt.Errorf("insert row into %s: %w", table, err)
			}
		}
		if err := stmt.Close(); err != nil {
			return fmt.Errorf("close insert statement: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit import batch: %w", err)
		}
		total += len(batch)
		logger.Info("Imported batch.", slog.String("table", table), slog.Int("rows_total", total))
		batch = batch[:0]
		return nil
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return total, fmt.Errorf("read csv row in %s: %w", csvPath, err)
		}
		if len(record) != len(columns) {
			logger.Warn("Skipping csv row with wrong field count.",
				slog.String("file", csvPath), slog.Int("fields", len(record)))
			continue
		}
		batch = append(batch, record)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

// sanitizeColumn normalizes CSV headers the way the result writers emit them
// and older tooling expected them (percent markers dropped, spaces and
// dashes to underscores, lower case).
func sanitizeColumn(name string) string {
	s := strings.ReplaceAll(name, "(%)", "")
	s = strings.ReplaceAll(s, "%", "_percent")
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "(", "_")
	s = strings.ReplaceAll(s, ")", "")
	return strings.ToLower(strings.Trim(s, "_"))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
