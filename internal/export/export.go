// Package export converts result CSVs into Parquet files for downstream
// analytics. Column types are inferred from the first data row; sentinel
// and empty values become NULLs in numeric columns.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fazhang/genomeqs/internal/config"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// CSVToParquet reads csvPath and writes a SNAPPY compressed Parquet file
// with the same base name into outDir, returning the written path.
func CSVToParquet(csvPath, outDir string, logger *slog.Logger) (string, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return "", fmt.Errorf("open csv %s: %w", csvPath, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return "", fmt.Errorf("read csv header %s: %w", csvPath, err)
	}

	firstRow, err := r.Read()
	if err == io.EOF {
		return "", fmt.Errorf("csv %s has no data rows", csvPath)
	}
	if err != nil {
		return "", fmt.Errorf("read first csv row %s: %w", csvPath, err)
	}

	meta := inferSchema(header, firstRow)
	logger.Debug("Inferred parquet schema.", slog.String("schema", strings.Join(meta, "], [")))

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create parquet dir %s: %w", outDir, err)
	}
	base := strings.TrimSuffix(filepath.Base(csvPath), filepath.Ext(csvPath))
	outPath := filepath.Join(outDir, base+".parquet")

	fw, err := local.NewLocalFileWriter(outPath)
	if err != nil {
		return "", fmt.Errorf("create parquet file %s: %w", outPath, err)
	}

	pw, err := writer.NewCSVWriter(meta, fw, 4)
	if err != nil {
		fw.Close()
		return "", fmt.Errorf("create parquet writer %s: %w", outPath, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	rows := 0
	row := firstRow
	for {
		if len(row) == len(header) {
			if err := pw.WriteString(toPointers(row, meta)); err != nil {
				logger.Warn("Parquet row write failed, row skipped.",
					slog.Int("row", rows+1), "error", err)
			} else {
				rows++
			}
		} else {
			logger.Warn("Skipping csv row with wrong field count.",
				slog.Int("row", rows+1),
				slog.Int("fields", len(row)),
				slog.Int("expected", len(header)))
		}

		row, err = r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			pw.WriteStop()
			fw.Close()
			return "", fmt.Errorf("read csv row in %s: %w", csvPath, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return "", fmt.Errorf("stop parquet writer %s: %w", outPath, err)
	}
	if err := fw.Close(); err != nil {
		return "", fmt.Errorf("close parquet file %s: %w", outPath, err)
	}

	logger.Info("Exported csv to parquet.",
		slog.String("input", csvPath),
		slog.String("output", outPath),
		slog.Int("rows", rows))
	return outPath, nil
}

// inferSchema builds the parquet-go CSV metadata strings. A column is INT64
// or DOUBLE when the first data row parses as such, BYTE_ARRAY otherwise.
// An empty or sentinel probe value leaves the column as BYTE_ARRAY, which
// loads any later value safely.
func inferSchema(header, firstRow []string) []string {
	meta := make([]string, len(header))
	for i, name := range header {
		clean := cleanColumn(name)
		if clean == "" {
			clean = fmt.Sprintf("column_%d", i)
		}

		val := ""
		if i < len(firstRow) {
			val = firstRow[i]
		}

		typ := "BYTE_ARRAY"
		if val != "" && val != config.SentinelValue {
			if _, err := strconv.ParseInt(val, 10, 64); err == nil {
				typ = "INT64"
			} else if _, err := strconv.ParseFloat(val, 64); err == nil {
				typ = "DOUBLE"
			}
		}

		if typ == "BYTE_ARRAY" {
			meta[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", clean)
		} else {
			meta[i] = fmt.Sprintf("name=%s, type=%s, repetitiontype=OPTIONAL", clean, typ)
		}
	}
	return meta
}

// toPointers maps one csv record to the nullable form WriteString expects.
// Empty and sentinel values in numeric columns become NULL.
func toPointers(row []string, meta []string) []*string {
	ptrs := make([]*string, len(row))
	for i, v := range row {
		isString := strings.Contains(meta[i], "type=BYTE_ARRAY")
		if (v == "" || v == config.SentinelValue) && !isString {
			ptrs[i] = nil
			continue
		}
		val := v
		ptrs[i] = &val
	}
	return ptrs
}

func cleanColumn(name string) string {
	s := strings.ReplaceAll(name, "(%)", "")
	s = strings.ReplaceAll(s, "%", "_percent")
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "(", "_")
	s = strings.ReplaceAll(s, ")", "")
	s = strings.ReplaceAll(s, ".", "_")
	return strings.ToLower(strings.Trim(s, "_"))
}
