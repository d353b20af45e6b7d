// Package analyser runs summary reports over imported result tables in
// DuckDB: quality class distribution, per-class completeness and
// contamination summaries, a quality score histogram and an assembly
// ranking when stats columns are present.
package analyser

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// RunAnalysis prints the report suite for the given tables. basicTable must
// exist; the supply table reports are skipped with a warning if the table
// is missing or empty.
func RunAnalysis(ctx context.Context, db *sql.DB, logger *slog.Logger, basicTable, supplyTable string) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get connection from pool: %w", err)
	}
	defer conn.Close()

	var reportErrs error

	logger.Info("Running quality class distribution.")
	if err := classDistribution(ctx, conn, supplyTable); err != nil {
		reportErrs = errors.Join(reportErrs, err)
	}

	logger.Info("Running per-class quality summary.")
	if err := classSummary(ctx, conn, supplyTable); err != nil {
		reportErrs = errors.Join(reportErrs, err)
	}

	logger.Info("Running quality score histogram.")
	if err := scoreHistogram(ctx, conn, supplyTable); err != nil {
		reportErrs = errors.Join(reportErrs, err)
	}

	logger.Info("Running assembly ranking.")
	if err := assemblyRanking(ctx, conn, basicTable, supplyTable); err != nil {
		// The basic table only has stats columns after an import of a
		// stats CSV, so this report is best effort.
		logger.Warn("Assembly ranking skipped.", "error", err)
	}

	return reportErrs
}

// classDistribution counts genomes per quality class, including the
// sentinel class for unclassified inputs.
func classDistribution(ctx context.Context, conn *sql.Conn, supplyTable string) error {
	query := fmt.Sprintf(`
	SELECT quality_class, COUNT(*) AS n
	FROM %s
	GROUP BY quality_class
	ORDER BY n DESC, quality_class;`, quoteIdent(supplyTable))

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("quality class distribution: %w", err)
	}
	defer rows.Close()

	fmt.Println("--- Quality Class Distribution ---")
	fmt.Printf("%-25s | %-10s\n", "Quality Class", "Count")
	fmt.Println(strings.Repeat("-", 38))
	total := int64(0)
	for rows.Next() {
		var class sql.NullString
		var n int64
		if err := rows.Scan(&class, &n); err != nil {
			return fmt.Errorf("scan distribution row: %w", err)
		}
		fmt.Printf("%-25s | %-10d\n", nullStr(class), n)
		total += n
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate distribution rows: %w", err)
	}
	fmt.Println(strings.Repeat("-", 38))
	fmt.Printf("%-25s | %-10d\n", "Total", total)
	fmt.Println()
	return nil
}

// classSummary reports average and extreme completeness, contamination and
// quality score per class, over classified genomes only.
func classSummary(ctx context.Context, conn *sql.Conn, supplyTable string) error {
	query := fmt.Sprintf(`
	SELECT quality_class,
	       AVG(completeness)  AS avg_comp,
	       MIN(completeness)  AS min_comp,
	       AVG(contamination) AS avg_cont,
	       MAX(contamination) AS max_cont,
	       AVG(qs)            AS avg_qs
	FROM %s
	WHERE qs IS NOT NULL
	GROUP BY quality_class
	ORDER BY avg_qs DESC;`, quoteIdent(supplyTable))

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("per-class summary: %w", err)
	}
	defer rows.Close()

	fmt.Println("--- Per-Class Quality Summary (classified only) ---")
	fmt.Printf("%-25s | %-10s | %-10s | %-10s | %-10s | %-10s\n",
		"Quality Class", "Avg Comp", "Min Comp", "Avg Cont", "Max Cont", "Avg QS")
	fmt.Println(strings.Repeat("-", 90))
	for rows.Next() {
		var class sql.NullString
		var avgComp, minComp, avgCont, maxCont, avgQS sql.NullFloat64
		if err := rows.Scan(&class, &avgComp, &minComp, &avgCont, &maxCont, &avgQS); err != nil {
			return fmt.Errorf("scan summary row: %w", err)
		}
		fmt.Printf("%-25s | %-10s | %-10s | %-10s | %-10s | %-10s\n",
			nullStr(class), nullFloat(avgComp), nullFloat(minComp),
			nullFloat(avgCont), nullFloat(maxCont), nullFloat(avgQS))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate summary rows: %w", err)
	}
	fmt.Println()
	return nil
}

// scoreHistogram buckets quality scores in steps of ten. QS can go negative
// when contamination dominates, so everything below zero shares a bucket.
func scoreHistogram(ctx context.Context, conn *sql.Conn, supplyTable string) error {
	query := fmt.Sprintf(`
	SELECT CASE
	         WHEN qs < 0 THEN '< 0'
	         WHEN qs >= 100 THEN '>= 100'
	         ELSE CAST(CAST(FLOOR(qs / 10) * 10 AS INTEGER) AS VARCHAR) || ' - ' ||
	              CAST(CAST(FLOOR(qs / 10) * 10 + 10 AS INTEGER) AS VARCHAR)
	       END AS bucket,
	       MIN(FLOOR(qs / 10)) AS sort_key,
	       COUNT(*) AS n
	FROM %s
	WHERE qs IS NOT NULL
	GROUP BY bucket
	ORDER BY sort_key;`, quoteIdent(supplyTable))

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("quality score histogram: %w", err)
	}
	defer rows.Close()

	fmt.Println("--- Quality Score Histogram ---")
	fmt.Printf("%-12s | %-10s\n", "QS Bucket", "Count")
	fmt.Println(strings.Repeat("-", 25))
	for rows.Next() {
		var bucket sql.NullString
		var sortKey sql.NullFloat64
		var n int64
		if err := rows.Scan(&bucket, &sortKey, &n); err != nil {
			return fmt.Errorf("scan histogram row: %w", err)
		}
		fmt.Printf("%-12s | %-10d\n", nullStr(bucket), n)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate histogram rows: %w", err)
	}
	fmt.Println()
	return nil
}

// assemblyRanking joins quality results against assembly stats and lists
// the top near complete genomes by N50.
func assemblyRanking(ctx context.Context, conn *sql.Conn, basicTable, supplyTable string) error {
	query := fmt.Sprintf(`
	SELECT b.fasta_file_name, b.n50_bp, b.total_size_bp, b.sequences, s.qs, s.quality_class
	FROM %s b
	JOIN %s s ON s.fasta_file_md5 = b.fasta_file_md5
	WHERE s.qs IS NOT NULL AND b.n50_bp IS NOT NULL
	ORDER BY s.qs DESC, b.n50_bp DESC
	LIMIT 20;`, quoteIdent(basicTable), quoteIdent(supplyTable))

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("assembly ranking: %w", err)
	}
	defer rows.Close()

	fmt.Println("--- Top Genomes by Quality Score and N50 (limit 20) ---")
	fmt.Printf("%-40s | %-12s | %-14s | %-10s | %-8s | %-20s\n",
		"Name", "N50 (bp)", "Total (bp)", "Seqs", "QS", "Quality Class")
	fmt.Println(strings.Repeat("-", 118))
	for rows.Next() {
		var name sql.NullString
		var n50, totalBP, seqs sql.NullInt64
		var qs sql.NullFloat64
		var class sql.NullString
		if err := rows.Scan(&name, &n50, &totalBP, &seqs, &qs, &class); err != nil {
			return fmt.Errorf("scan ranking row: %w", err)
		}
		fmt.Printf("%-40s | %-12d | %-14d | %-10d | %-8s | %-20s\n",
			nullStr(name), n50.Int64, totalBP.Int64, seqs.Int64, nullFloat(qs), nullStr(class))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate ranking rows: %w", err)
	}
	fmt.Println()
	return nil
}

func nullStr(s sql.NullString) string {
	if s.Valid {
		return s.String
	}
	return "NULL"
}

func nullFloat(f sql.NullFloat64) string {
	if f.Valid {
		return fmt.Sprintf("%.2f", f.Float64)
	}
	return "NULL"
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
