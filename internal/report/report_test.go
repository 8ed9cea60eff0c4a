package report

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/epub2zip/internal/config"
	"github.com/lehigh-university-libraries/epub2zip/internal/models"
)

func sampleReport() Report {
	results := []models.ConversionResult{
		{
			FileID:         "a",
			FileName:       "001.zip",
			OriginalName:   "vol1.epub",
			SequenceNumber: 1,
			Size:           2048,
			ImageCount:     12,
			Metadata:       models.Metadata{Title: "Volume One", Authors: []string{"Ann", "Bo"}},
			Success:        true,
			Duration:       1500 * time.Millisecond,
		},
		{
			FileID:         "b",
			FileName:       "002.zip",
			OriginalName:   "vol2.epub",
			SequenceNumber: 2,
			Warnings:       []string{"mimetype entry missing"},
			Error:          "no images found",
			ErrorKind:      "no_images",
		},
	}
	summary := models.Summary{Total: 2, Succeeded: 1, Failed: 1, Duration: 2 * time.Second}
	return Build(summary, results, config.Default())
}

func TestBuild(t *testing.T) {
	r := sampleReport()

	if r.Summary.Total != 2 || r.Summary.Succeeded != 1 || r.Summary.DurationMS != 2000 {
		t.Errorf("Summary = %+v", r.Summary)
	}
	if r.Config.CompressionLevel != 6 || r.Config.BundleName != "epub_converted_files.zip" {
		t.Errorf("Config = %+v", r.Config)
	}
	if len(r.Files) != 2 {
		t.Fatalf("len(Files) = %d", len(r.Files))
	}
	first := r.Files[0]
	if first.OutputName != "001.zip" || first.Authors != "Ann; Bo" || first.DurationMS != 1500 || first.ImageCount != 12 {
		t.Errorf("Files[0] = %+v", first)
	}
	if second := r.Files[1]; second.Success || second.ErrorKind != "no_images" || second.Warnings != 1 {
		t.Errorf("Files[1] = %+v", second)
	}
}

func TestWriteYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.yaml")
	if err := Write(path, sampleReport()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Report
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if got.Summary.Failed != 1 || len(got.Files) != 2 || got.Files[1].Error != "no images found" {
		t.Errorf("round trip = %+v", got)
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	if err := Write(path, sampleReport()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Report
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got.Files[0].Title != "Volume One" {
		t.Errorf("Files[0].Title = %q", got.Files[0].Title)
	}
}

func TestWriteParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.parquet")
	want := sampleReport()
	if err := Write(path, want); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	rows, err := ReadParquet(path)
	if err != nil {
		t.Fatalf("ReadParquet() error = %v", err)
	}
	if len(rows) != len(want.Files) {
		t.Fatalf("len(rows) = %d, want %d", len(rows), len(want.Files))
	}
	for i := range rows {
		if rows[i] != want.Files[i] {
			t.Errorf("rows[%d] = %+v, want %+v", i, rows[i], want.Files[i])
		}
	}
}

func TestWriteUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	if err := Write(path, sampleReport()); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Write(.csv) error = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("unsupported write created a file")
	}
}
