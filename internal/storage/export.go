package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

// Exporter writes review records to an output.
type Exporter interface {
	// Name returns the output format identifier.
	Name() string

	// Write appends one record.
	Write(rec types.ReviewRecord) error

	// Close flushes buffered output and releases the file.
	Close() error
}

// --- JSON ---

// JSONExporter writes records as a single JSON array. Records are
// buffered until Close.
type JSONExporter struct {
	w       io.WriteCloser
	records []types.ReviewRecord
	logger  *slog.Logger
}

func NewJSONExporter(w io.WriteCloser, logger *slog.Logger) *JSONExporter {
	return &JSONExporter{
		w:       w,
		records: make([]types.ReviewRecord, 0),
		logger:  logger.With("component", "json_export"),
	}
}

func (e *JSONExporter) Name() string { return "json" }

func (e *JSONExporter) Write(rec types.ReviewRecord) error {
	e.records = append(e.records, rec)
	return nil
}

func (e *JSONExporter) Close() error {
	defer e.w.Close()

	enc := json.NewEncoder(e.w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e.records); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	e.logger.Info("JSON written", "records", len(e.records))
	return nil
}

// --- JSONL ---

// JSONLExporter streams one JSON object per line.
type JSONLExporter struct {
	w      io.WriteCloser
	enc    *json.Encoder
	count  int
	logger *slog.Logger
}

func NewJSONLExporter(w io.WriteCloser, logger *slog.Logger) *JSONLExporter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLExporter{
		w:      w,
		enc:    enc,
		logger: logger.With("component", "jsonl_export"),
	}
}

func (e *JSONLExporter) Name() string { return "jsonl" }

func (e *JSONLExporter) Write(rec types.ReviewRecord) error {
	if err := e.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode JSONL: %w", err)
	}
	e.count++
	return nil
}

func (e *JSONLExporter) Close() error {
	e.logger.Info("JSONL written", "records", e.count)
	return e.w.Close()
}

// --- CSV ---

// CSVHeader is the column order of CSV exports.
var CSVHeader = []string{"id", "product_id", "product_url", "review_hash", "rating", "page_no", "collected_at", "review_text"}

// CSVExporter writes records as CSV rows with a fixed header.
type CSVExporter struct {
	w       io.WriteCloser
	writer  *csv.Writer
	started bool
	count   int
	logger  *slog.Logger
}

func NewCSVExporter(w io.WriteCloser, logger *slog.Logger) *CSVExporter {
	return &CSVExporter{
		w:      w,
		writer: csv.NewWriter(w),
		logger: logger.With("component", "csv_export"),
	}
}

func (e *CSVExporter) Name() string { return "csv" }

func (e *CSVExporter) Write(rec types.ReviewRecord) error {
	if !e.started {
		if err := e.writer.Write(CSVHeader); err != nil {
			return fmt.Errorf("write CSV header: %w", err)
		}
		e.started = true
	}

	rating := ""
	if rec.Rating.Known() {
		rating = strconv.Itoa(int(rec.Rating))
	}
	row := []string{
		strconv.FormatInt(rec.ID, 10),
		strconv.FormatInt(rec.ProductID, 10),
		rec.ProductURL,
		rec.Hash,
		rating,
		strconv.Itoa(rec.PageNo),
		rec.CollectedAt.UTC().Format(time.RFC3339),
		rec.Text,
	}
	if err := e.writer.Write(row); err != nil {
		return fmt.Errorf("write CSV row: %w", err)
	}
	e.count++
	return nil
}

func (e *CSVExporter) Close() error {
	if !e.started {
		_ = e.writer.Write(CSVHeader)
	}
	e.writer.Flush()
	err := e.writer.Error()
	e.logger.Info("CSV written", "records", e.count)
	if cerr := e.w.Close(); err == nil {
		err = cerr
	}
	return err
}

// NewFileExporter creates the exporter for format writing to path. The
// parent directory is created if needed.
func NewFileExporter(format, path string, logger *slog.Logger) (Exporter, error) {
	var build func(io.WriteCloser, *slog.Logger) Exporter
	switch format {
	case "json":
		build = func(w io.WriteCloser, l *slog.Logger) Exporter { return NewJSONExporter(w, l) }
	case "jsonl":
		build = func(w io.WriteCloser, l *slog.Logger) Exporter { return NewJSONLExporter(w, l) }
	case "csv":
		build = func(w io.WriteCloser, l *slog.Logger) Exporter { return NewCSVExporter(w, l) }
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return build(f, logger.With("path", path)), nil
}

// Export streams every stored review into exp and closes it. It returns
// the number of records written.
func Export(ctx context.Context, store Store, exp Exporter) (int, error) {
	n := 0
	err := store.ForEachReview(ctx, func(rec types.ReviewRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := exp.Write(rec); err != nil {
			return err
		}
		n++
		return nil
	})
	if cerr := exp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	return n, nil
}
