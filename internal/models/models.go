package models

import "time"

// FileStatus is the lifecycle stage of one uploaded EPUB
type FileStatus string

const (
	StatusWaiting    FileStatus = "waiting"
	StatusProcessing FileStatus = "processing"
	StatusCompleted  FileStatus = "completed"
	StatusError      FileStatus = "error"
)

// Terminal reports whether no further transitions are expected.
func (s FileStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// InputFile represents one user-supplied EPUB in a session registry
type InputFile struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Size       int64      `json:"size"`
	Status     FileStatus `json:"status"`
	OutputName string     `json:"output_name,omitempty"`
	Error      string     `json:"error,omitempty"`
	AddedAt    time.Time  `json:"added_at"`
}

// OutputMapping is the sequencer's decision for one input file
type OutputMapping struct {
	FileID         string `json:"file_id"`
	OriginalName   string `json:"original_name"`
	OutputName     string `json:"output_name"`
	SequenceNumber int    `json:"sequence_number"`
	PrimaryNumber  int64  `json:"primary_number"`
}

// ExtractedImage is an image entry pulled out of an EPUB archive
type ExtractedImage struct {
	OriginalPath string `json:"original_path"`
	FileName     string `json:"file_name"`
	Data         []byte `json:"-"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mime_type"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
}

// Metadata holds best-effort descriptive fields from the package document
type Metadata struct {
	Title      string   `json:"title,omitempty" yaml:"title,omitempty"`
	Authors    []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Language   string   `json:"language,omitempty" yaml:"language,omitempty"`
	Publisher  string   `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Identifier string   `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Version    string   `json:"version,omitempty" yaml:"version,omitempty"`
}

// ConversionResult is the outcome of converting one input file
type ConversionResult struct {
	FileID         string        `json:"file_id"`
	FileName       string        `json:"file_name"`
	OriginalName   string        `json:"original_name"`
	SequenceNumber int           `json:"sequence_number"`
	Archive        []byte        `json:"-"`
	Size           int64         `json:"size"`
	ImageCount     int           `json:"image_count"`
	Metadata       Metadata      `json:"metadata"`
	Warnings       []string      `json:"warnings,omitempty"`
	Success        bool          `json:"success"`
	Error          string        `json:"error,omitempty"`
	ErrorKind      string        `json:"error_kind,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Summary aggregates the outcome of one batch
type Summary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}
