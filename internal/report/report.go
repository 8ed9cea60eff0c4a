// Package report records the outcome of a conversion batch as YAML, JSON or
// Parquet.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/epub2zip/internal/config"
	"github.com/lehigh-university-libraries/epub2zip/internal/models"
)

// ErrUnsupportedFormat is returned by Write for unknown extensions.
var ErrUnsupportedFormat = errors.New("unsupported report format")

// Settings is the part of the configuration that shaped the batch.
type Settings struct {
	MaxConcurrentJobs int    `yaml:"max_concurrent_jobs" json:"max_concurrent_jobs"`
	CompressionLevel  int    `yaml:"compression_level" json:"compression_level"`
	BundleName        string `yaml:"bundle_name" json:"bundle_name"`
	OutputDir         string `yaml:"output_dir,omitempty" json:"output_dir,omitempty"`
}

type Summary struct {
	Total      int   `yaml:"total" json:"total"`
	Succeeded  int   `yaml:"succeeded" json:"succeeded"`
	Failed     int   `yaml:"failed" json:"failed"`
	DurationMS int64 `yaml:"duration_ms" json:"duration_ms"`
}

// FileRow is one converted (or failed) input. It doubles as the Parquet
// row schema.
type FileRow struct {
	FileID         string `yaml:"file_id" json:"file_id" parquet:"file_id"`
	OriginalName   string `yaml:"original_name" json:"original_name" parquet:"original_name"`
	OutputName     string `yaml:"output_name" json:"output_name" parquet:"output_name"`
	SequenceNumber int64  `yaml:"sequence_number" json:"sequence_number" parquet:"sequence_number"`
	Success        bool   `yaml:"success" json:"success" parquet:"success"`
	Error          string `yaml:"error,omitempty" json:"error,omitempty" parquet:"error"`
	ErrorKind      string `yaml:"error_kind,omitempty" json:"error_kind,omitempty" parquet:"error_kind"`
	ImageCount     int64  `yaml:"image_count" json:"image_count" parquet:"image_count"`
	Size           int64  `yaml:"size" json:"size" parquet:"size"`
	DurationMS     int64  `yaml:"duration_ms" json:"duration_ms" parquet:"duration_ms"`
	Title          string `yaml:"title,omitempty" json:"title,omitempty" parquet:"title"`
	Authors        string `yaml:"authors,omitempty" json:"authors,omitempty" parquet:"authors"`
	Warnings       int64  `yaml:"warnings" json:"warnings" parquet:"warnings"`
}

type Report struct {
	GeneratedAt time.Time `yaml:"generated_at" json:"generated_at"`
	Config      Settings  `yaml:"config" json:"config"`
	Summary     Summary   `yaml:"summary" json:"summary"`
	Files       []FileRow `yaml:"files" json:"files"`
}

// Build assembles a report from a finished batch.
func Build(summary models.Summary, results []models.ConversionResult, cfg config.Config) Report {
	r := Report{
		GeneratedAt: time.Now().UTC(),
		Config: Settings{
			MaxConcurrentJobs: cfg.MaxConcurrentJobs,
			CompressionLevel:  cfg.CompressionLevel,
			BundleName:        cfg.BundleName,
			OutputDir:         cfg.OutputDir,
		},
		Summary: Summary{
			Total:      summary.Total,
			Succeeded:  summary.Succeeded,
			Failed:     summary.Failed,
			DurationMS: summary.Duration.Milliseconds(),
		},
		Files: make([]FileRow, 0, len(results)),
	}
	for _, res := range results {
		r.Files = append(r.Files, FileRow{
			FileID:         res.FileID,
			OriginalName:   res.OriginalName,
			OutputName:     res.FileName,
			SequenceNumber: int64(res.SequenceNumber),
			Success:        res.Success,
			Error:          res.Error,
			ErrorKind:      res.ErrorKind,
			ImageCount:     int64(res.ImageCount),
			Size:           res.Size,
			DurationMS:     res.Duration.Milliseconds(),
			Title:          res.Metadata.Title,
			Authors:        strings.Join(res.Metadata.Authors, "; "),
			Warnings:       int64(len(res.Warnings)),
		})
	}
	return r
}

// Write saves r to path, choosing the format from the extension.
func Write(path string, r Report) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml", ".json", ".parquet":
	default:
		return fmt.Errorf("%w: %q (supported: .yaml, .yml, .json, .parquet)", ErrUnsupportedFormat, ext)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	switch ext {
	case ".yaml", ".yml":
		err = writeYAML(file, r)
	case ".json":
		err = writeJSON(file, r)
	case ".parquet":
		err = writeParquet(file, r.Files)
	}
	if err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}
	slog.Debug("Wrote report", "path", path, "files", len(r.Files))
	return nil
}

func writeYAML(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return enc.Close()
}

func writeJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return nil
}

func writeParquet(w io.Writer, rows []FileRow) error {
	pw := parquet.NewGenericWriter[FileRow](w)
	if _, err := pw.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return nil
}

// ReadParquet loads the file rows of a Parquet report.
func ReadParquet(path string) ([]FileRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[FileRow](pf)
	defer reader.Close()

	rows := make([]FileRow, 0, pf.NumRows())
	batch := make([]FileRow, 64)
	for {
		n, err := reader.Read(batch)
		rows = append(rows, batch[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return rows, nil
}
