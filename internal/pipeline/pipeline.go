// Package pipeline converts a batch of EPUB files into per-book image
// archives with bounded concurrency and per-file failure isolation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lehigh-university-libraries/epub2zip/internal/archive"
	"github.com/lehigh-university-libraries/epub2zip/internal/epub"
	"github.com/lehigh-university-libraries/epub2zip/internal/models"
	"github.com/lehigh-university-libraries/epub2zip/internal/sequencer"
)

const (
	DefaultMaxConcurrentJobs = 3
	DefaultProgressEvery     = 10
	DefaultProgressInterval  = 50 * time.Millisecond
)

// Config controls batch execution. Zero values select defaults, except
// CompressionLevel where zero means store.
type Config struct {
	MaxConcurrentJobs int
	CompressionLevel  int
	ProgressEvery     int
	ProgressInterval  time.Duration
	MaxEntrySize      int64
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = DefaultProgressEvery
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = DefaultProgressInterval
	}
	if c.MaxEntrySize <= 0 {
		c.MaxEntrySize = archive.DefaultMaxEntrySize
	}
	return c
}

// Job is one file to convert together with its output naming decision.
type Job struct {
	File    models.InputFile
	Data    []byte
	Mapping models.OutputMapping
}

// Observer receives advisory notifications. Callbacks run on job
// goroutines and must be safe for concurrent use. Nil callbacks are skipped.
type Observer struct {
	OnStatus   func(fileID string, status models.FileStatus, err error)
	OnProgress func(fileID string, percent int)
	OnResult   func(result models.ConversionResult)
}

func (o Observer) status(id string, s models.FileStatus, err error) {
	if o.OnStatus != nil {
		notify("status", id, func() { o.OnStatus(id, s, err) })
	}
}

func (o Observer) progress(id string, percent int) {
	if o.OnProgress != nil {
		notify("progress", id, func() { o.OnProgress(id, percent) })
	}
}

func (o Observer) result(r models.ConversionResult) {
	if o.OnResult != nil {
		notify("result", r.FileID, func() { o.OnResult(r) })
	}
}

// notify runs one observer callback. A panicking observer is logged and
// never takes a job or the batch down with it.
func notify(callback, fileID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered panic in conversion observer", "callback", callback, "file_id", fileID, "panic", r)
		}
	}()
	fn()
}

// ExtractFunc pulls images out of one EPUB.
type ExtractFunc func(ctx context.Context, data []byte) (*epub.Extraction, error)

// PackFunc serializes images into one archive.
type PackFunc func(images []models.ExtractedImage, level int, onProgress archive.ProgressFunc) ([]byte, error)

// Pipeline runs at most one batch at a time.
type Pipeline struct {
	cfg     Config
	extract ExtractFunc
	pack    PackFunc
	running atomic.Bool
}

// New creates a pipeline backed by the EPUB extractor and archive builder.
func New(cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	extractor := epub.New(epub.Options{
		MaxEntrySize:    cfg.MaxEntrySize,
		CheckpointEvery: cfg.ProgressEvery,
	})
	return NewForTests(cfg, extractor.Extract, PackImages)
}

// NewForTests creates a pipeline with injected stages.
func NewForTests(cfg Config, extract ExtractFunc, pack PackFunc) *Pipeline {
	return &Pipeline{
		cfg:     cfg.withDefaults(),
		extract: extract,
		pack:    pack,
	}
}

// Running reports whether a batch is in flight.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// PackImages writes images into one archive, renaming colliding file names.
func PackImages(images []models.ExtractedImage, level int, onProgress archive.ProgressFunc) ([]byte, error) {
	b := archive.NewBuilder(level)
	for _, img := range images {
		b.Add(img.FileName, img.Data)
	}
	return b.Bytes(onProgress)
}

// Run converts every job and returns one result per job, in job order.
// Jobs start in job order with at most MaxConcurrentJobs in flight. A
// failing job never stops its siblings; the returned error is ErrBusy or
// the context error when the batch was cut short.
func (p *Pipeline) Run(ctx context.Context, jobs []Job, obs Observer) ([]models.ConversionResult, models.Summary, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, models.Summary{}, ErrBusy
	}
	defer p.running.Store(false)

	start := time.Now()
	jobs = ensureMappings(jobs)
	results := make([]models.ConversionResult, len(jobs))
	dispatched := make([]bool, len(jobs))

	slog.Info("Starting conversion", "files", len(jobs), "concurrency", p.cfg.MaxConcurrentJobs, "level", p.cfg.CompressionLevel)

	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrentJobs)
	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		dispatched[i] = true
		started := make(chan struct{})
		g.Go(func() error {
			obs.status(job.File.ID, models.StatusProcessing, nil)
			slog.Debug("Processing file", "file", job.File.Name, "output", job.Mapping.OutputName)
			close(started)

			res := p.convert(ctx, job, obs)
			results[i] = res
			p.finish(job, res, obs)
			return nil
		})
		// the next job may only start once this one is marked processing
		<-started
	}
	_ = g.Wait()

	for i, job := range jobs {
		if dispatched[i] {
			continue
		}
		res := failedResult(job, &FileError{Kind: KindCancelled, File: job.File.Name, Err: ctx.Err()})
		results[i] = res
		p.finish(job, res, obs)
	}

	summary := Summarize(results, time.Since(start))
	slog.Info("Conversion finished", "succeeded", summary.Succeeded, "failed", summary.Failed, "duration", summary.Duration)
	return results, summary, ctx.Err()
}

func (p *Pipeline) finish(job Job, res models.ConversionResult, obs Observer) {
	if res.Success {
		slog.Debug("Converted file", "file", job.File.Name, "output", res.FileName, "images", res.ImageCount, "bytes", res.Size)
		obs.status(job.File.ID, models.StatusCompleted, nil)
	} else {
		slog.Warn("Conversion failed", "file", job.File.Name, "output", res.FileName, "kind", res.ErrorKind, "err", res.Error)
		obs.status(job.File.ID, models.StatusError, errors.New(res.Error))
	}
	obs.result(res)
}

// convert runs one job. Panics become KindUnexpected failures.
func (p *Pipeline) convert(ctx context.Context, job Job, obs Observer) (res models.ConversionResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered panic in conversion job", "file", job.File.Name, "panic", r)
			res = failedResult(job, &FileError{Kind: KindUnexpected, File: job.File.Name, Err: fmt.Errorf("panic: %v", r)})
		}
		res.Duration = time.Since(start)
	}()

	x, err := p.extract(ctx, job.Data)
	if err != nil {
		kind := KindParseFailed
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			kind = KindCancelled
		}
		return failedResult(job, &FileError{Kind: kind, File: job.File.Name, Err: err})
	}
	if len(x.Images) == 0 {
		return failedResult(job, &FileError{Kind: KindNoImages, File: job.File.Name, Err: ErrNoImages})
	}

	sometimes := rate.Sometimes{First: 1, Every: p.cfg.ProgressEvery, Interval: p.cfg.ProgressInterval}
	onProgress := func(done, total int) {
		if done >= total {
			return
		}
		sometimes.Do(func() { obs.progress(job.File.ID, done*100/total) })
	}
	data, err := p.pack(x.Images, p.cfg.CompressionLevel, onProgress)
	if err != nil {
		return failedResult(job, &FileError{Kind: KindCompressionFailed, File: job.File.Name, Err: err})
	}
	obs.progress(job.File.ID, 100)

	return models.ConversionResult{
		FileID:         job.File.ID,
		FileName:       job.Mapping.OutputName,
		OriginalName:   job.File.Name,
		SequenceNumber: job.Mapping.SequenceNumber,
		Archive:        data,
		Size:           int64(len(data)),
		ImageCount:     len(x.Images),
		Metadata:       x.Metadata,
		Warnings:       x.Warnings,
		Success:        true,
	}
}

func failedResult(job Job, err *FileError) models.ConversionResult {
	return models.ConversionResult{
		FileID:         job.File.ID,
		FileName:       job.Mapping.OutputName,
		OriginalName:   job.File.Name,
		SequenceNumber: job.Mapping.SequenceNumber,
		Error:          err.Error(),
		ErrorKind:      string(err.Kind),
	}
}

// ensureMappings sequences the batch when any job arrives without a name.
func ensureMappings(jobs []Job) []Job {
	complete := true
	for _, j := range jobs {
		if j.Mapping.OutputName == "" {
			complete = false
			break
		}
	}
	if complete {
		return jobs
	}

	files := make([]models.InputFile, len(jobs))
	for i, j := range jobs {
		files[i] = j.File
	}
	byID := sequencer.ByFileID(sequencer.Sequence(files))

	out := make([]Job, len(jobs))
	for i, j := range jobs {
		j.Mapping = byID[j.File.ID]
		out[i] = j
	}
	return out
}

// Summarize counts successes and failures.
func Summarize(results []models.ConversionResult, d time.Duration) models.Summary {
	s := models.Summary{Total: len(results), Duration: d}
	for _, r := range results {
		if r.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}
