// Package session owns the file registry, output mappings and results of
// one conversion session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/epub2zip/internal/archive"
	"github.com/lehigh-university-libraries/epub2zip/internal/classifier"
	"github.com/lehigh-university-libraries/epub2zip/internal/events"
	"github.com/lehigh-university-libraries/epub2zip/internal/models"
	"github.com/lehigh-university-libraries/epub2zip/internal/pipeline"
	"github.com/lehigh-university-libraries/epub2zip/internal/sequencer"
)

var (
	// ErrBusy is returned for operations refused while a batch runs.
	ErrBusy = pipeline.ErrBusy

	ErrEmptyFile       = errors.New("file is empty")
	ErrUnsupportedType = errors.New("only .epub files are supported")
	ErrFileNotFound    = errors.New("file not found in session")
)

// Options configure a new Session.
type Options struct {
	Pipeline   pipeline.Config
	BundleName string
	MaxEvents  int
}

// Upload is a named blob offered to AddFiles.
type Upload struct {
	Name string
	Data []byte
}

// Rejection explains why an upload was not added.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Info is a JSON-friendly snapshot of a session.
type Info struct {
	ID         string             `json:"id"`
	CreatedAt  time.Time          `json:"created_at"`
	Files      []models.InputFile `json:"files"`
	Converting bool               `json:"converting"`
	Summary    *models.Summary    `json:"summary,omitempty"`
}

// Session is safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.RWMutex
	order    []string
	files    map[string]*models.InputFile
	data     map[string][]byte
	mappings map[string]models.OutputMapping
	results  map[string]models.ConversionResult
	summary  *models.Summary

	converting atomic.Bool
	minEvents  int
	bundleName string
	level      int
	bus        *events.Bus
	pipeline   *pipeline.Pipeline
}

// New creates an empty session with its own pipeline.
func New(opts Options) *Session {
	return NewWithPipeline(opts, pipeline.New(opts.Pipeline))
}

// NewWithPipeline creates an empty session driving p.
func NewWithPipeline(opts Options, p *pipeline.Pipeline) *Session {
	bundle := opts.BundleName
	if bundle == "" {
		bundle = archive.DefaultBundleName
	}
	bus := events.NewBus(opts.MaxEvents)
	return &Session{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		files:      make(map[string]*models.InputFile),
		data:       make(map[string][]byte),
		mappings:   make(map[string]models.OutputMapping),
		results:    make(map[string]models.ConversionResult),
		bundleName: bundle,
		level:      opts.Pipeline.CompressionLevel,
		minEvents:  bus.Capacity(),
		bus:        bus,
		pipeline:   p,
	}
}

// AddFile validates and registers one EPUB. Files named .epub whose bytes
// do not carry a ZIP signature are still accepted, with a warning event.
func (s *Session) AddFile(name string, data []byte) (models.InputFile, error) {
	if len(data) == 0 {
		return models.InputFile{}, fmt.Errorf("%s: %w", name, ErrEmptyFile)
	}
	c := classifier.SniffContainer(name, data)
	if !c.Accepted() {
		return models.InputFile{}, fmt.Errorf("%s: %w", name, ErrUnsupportedType)
	}
	if c.Suspicious() {
		slog.Warn("File does not look like a ZIP archive, accepting anyway", "file", name)
		s.bus.Publish(events.Event{
			Type:     events.TypeWarning,
			FileName: name,
			Message:  fmt.Sprintf("%s does not look like a valid EPUB archive; it will be tried anyway", name),
		})
	}

	f := &models.InputFile{
		ID:      uuid.NewString(),
		Name:    name,
		Size:    int64(len(data)),
		Status:  models.StatusWaiting,
		AddedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.order = append(s.order, f.ID)
	s.files[f.ID] = f
	s.data[f.ID] = data
	snapshot := *f
	s.mu.Unlock()

	s.bus.Publish(events.Event{Type: events.TypeStatus, FileID: f.ID, FileName: name, Status: models.StatusWaiting})
	return snapshot, nil
}

// AddFiles registers every acceptable upload. Rejected uploads are returned
// and reported in a single warning event.
func (s *Session) AddFiles(uploads []Upload) ([]models.InputFile, []Rejection) {
	var added []models.InputFile
	var rejected []Rejection
	for _, u := range uploads {
		f, err := s.AddFile(u.Name, u.Data)
		if err != nil {
			reason := err.Error()
			switch {
			case errors.Is(err, ErrEmptyFile):
				reason = ErrEmptyFile.Error()
			case errors.Is(err, ErrUnsupportedType):
				reason = ErrUnsupportedType.Error()
			}
			rejected = append(rejected, Rejection{Name: u.Name, Reason: reason})
			continue
		}
		added = append(added, f)
	}

	if len(rejected) > 0 {
		names := make([]string, len(rejected))
		for i, r := range rejected {
			names[i] = r.Name
		}
		s.bus.Publish(events.Event{
			Type:    events.TypeWarning,
			Message: "Skipped unsupported files: " + strings.Join(names, ", "),
		})
	}
	return added, rejected
}

// RemoveFile drops a file and anything derived from it.
func (s *Session) RemoveFile(id string) error {
	if s.converting.Load() {
		return ErrBusy
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrFileNotFound)
	}
	delete(s.files, id)
	delete(s.data, id)
	delete(s.mappings, id)
	delete(s.results, id)
	s.order = slices.DeleteFunc(s.order, func(x string) bool { return x == id })
	return nil
}

// Clear empties the session.
func (s *Session) Clear() error {
	if s.converting.Load() {
		return ErrBusy
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = nil
	s.files = make(map[string]*models.InputFile)
	s.data = make(map[string][]byte)
	s.mappings = make(map[string]models.OutputMapping)
	s.results = make(map[string]models.ConversionResult)
	s.summary = nil
	return nil
}

// Files returns the registry in insertion order.
func (s *Session) Files() []models.InputFile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.InputFile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.files[id])
	}
	return out
}

// File returns one registered file.
func (s *Session) File(id string) (models.InputFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	if !ok {
		return models.InputFile{}, fmt.Errorf("%s: %w", id, ErrFileNotFound)
	}
	return *f, nil
}

// Plan names every registered file and records the output name on it.
// Mappings are returned in sequence order.
func (s *Session) Plan() []models.OutputMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.planLocked()
}

func (s *Session) planLocked() []models.OutputMapping {
	files := make([]models.InputFile, 0, len(s.order))
	for _, id := range s.order {
		files = append(files, *s.files[id])
	}
	mappings := sequencer.Sequence(files)

	s.mappings = sequencer.ByFileID(mappings)
	for _, m := range mappings {
		s.files[m.FileID].OutputName = m.OutputName
	}
	return mappings
}

// eventsPerFile bounds what one file publishes during a batch: waiting,
// processing, a terminal status, its result and one retained progress event.
const eventsPerFile = 5

// Convert (re)processes every registered file and waits for the batch.
// Previous results are dropped and every file starts again from waiting.
func (s *Session) Convert(ctx context.Context) (models.Summary, error) {
	jobs, err := s.begin()
	if err != nil {
		return models.Summary{}, err
	}
	return s.run(ctx, jobs)
}

// Start is Convert in the background. The busy check and the reset of the
// previous batch happen before Start returns, so a second call made right
// after reports ErrBusy. done, if set, receives the outcome.
func (s *Session) Start(ctx context.Context, done func(models.Summary, error)) error {
	jobs, err := s.begin()
	if err != nil {
		return err
	}
	go func() {
		summary, err := s.run(ctx, jobs)
		if done != nil {
			done(summary, err)
		}
	}()
	return nil
}

// begin claims the session and resets every file to waiting.
func (s *Session) begin() ([]pipeline.Job, error) {
	if !s.converting.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}

	s.mu.Lock()
	s.planLocked()
	jobs := make([]pipeline.Job, 0, len(s.order))
	var reset []events.Event
	for _, id := range s.order {
		f := s.files[id]
		if f.Status != models.StatusWaiting {
			reset = append(reset, events.Event{Type: events.TypeStatus, FileID: f.ID, FileName: f.Name, OutputName: f.OutputName, Status: models.StatusWaiting})
		}
		f.Status = models.StatusWaiting
		f.Error = ""
		jobs = append(jobs, pipeline.Job{File: *f, Data: s.data[id], Mapping: s.mappings[id]})
	}
	s.results = make(map[string]models.ConversionResult)
	s.summary = nil
	s.mu.Unlock()

	s.bus.EnsureCapacity(len(jobs)*eventsPerFile + s.minEvents)
	for _, e := range reset {
		s.bus.Publish(e)
	}
	return jobs, nil
}

// run drives a claimed batch and releases the session when done.
func (s *Session) run(ctx context.Context, jobs []pipeline.Job) (models.Summary, error) {
	defer s.converting.Store(false)

	_, summary, err := s.pipeline.Run(ctx, jobs, s.observer())
	if errors.Is(err, pipeline.ErrBusy) {
		return models.Summary{}, ErrBusy
	}

	s.mu.Lock()
	s.summary = &summary
	s.mu.Unlock()

	s.bus.Publish(events.Event{
		Type:    events.TypeSummary,
		Summary: &summary,
		Message: fmt.Sprintf("%d succeeded, %d failed", summary.Succeeded, summary.Failed),
	})
	if err != nil {
		s.bus.Publish(events.Event{Type: events.TypeError, Message: fmt.Sprintf("conversion interrupted: %v", err)})
	}
	return summary, err
}

func (s *Session) observer() pipeline.Observer {
	return pipeline.Observer{
		OnStatus: func(id string, status models.FileStatus, err error) {
			s.mu.Lock()
			f, ok := s.files[id]
			var name, output string
			if ok {
				f.Status = status
				if err != nil {
					f.Error = err.Error()
				}
				name, output = f.Name, f.OutputName
			}
			s.mu.Unlock()

			e := events.Event{Type: events.TypeStatus, FileID: id, FileName: name, OutputName: output, Status: status}
			if err != nil {
				e.Message = err.Error()
			}
			s.bus.Publish(e)
		},
		OnProgress: func(id string, percent int) {
			s.bus.Publish(events.Event{Type: events.TypeProgress, FileID: id, Percent: percent})
		},
		OnResult: func(r models.ConversionResult) {
			s.mu.Lock()
			if _, ok := s.files[r.FileID]; ok {
				s.results[r.FileID] = r
			}
			s.mu.Unlock()

			msg := fmt.Sprintf("%d images", r.ImageCount)
			if !r.Success {
				msg = r.Error
			}
			s.bus.Publish(events.Event{
				Type:       events.TypeResult,
				FileID:     r.FileID,
				FileName:   r.OriginalName,
				OutputName: r.FileName,
				Message:    msg,
			})
		},
	}
}

// Converting reports whether a batch is in flight.
func (s *Session) Converting() bool {
	return s.converting.Load()
}

// Results returns every result in sequence order.
func (s *Session) Results() []models.ConversionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ConversionResult, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b models.ConversionResult) int {
		return a.SequenceNumber - b.SequenceNumber
	})
	return out
}

// Result returns the result for one file.
func (s *Session) Result(id string) (models.ConversionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return models.ConversionResult{}, fmt.Errorf("%s: %w", id, ErrFileNotFound)
	}
	return r, nil
}

// Successful returns the successful results in sequence order.
func (s *Session) Successful() []models.ConversionResult {
	var out []models.ConversionResult
	for _, r := range s.Results() {
		if r.Success {
			out = append(out, r)
		}
	}
	return out
}

// DownloadAll packages the successful results: the archive itself when
// there is one, a bundle archive when there are several.
func (s *Session) DownloadAll() (archive.Artifact, error) {
	art, err := archive.Aggregate(s.Results(), s.bundleName, s.level)
	if err != nil {
		s.bus.Publish(events.Event{Type: events.TypeError, Message: err.Error()})
		return archive.Artifact{}, err
	}
	return art, nil
}

// Summary returns the outcome of the last batch, if any.
func (s *Session) Summary() (models.Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.summary == nil {
		return models.Summary{}, false
	}
	return *s.summary, true
}

// Events returns events published after seq.
func (s *Session) Events(since int64) []events.Event {
	return s.bus.Since(since)
}

// Bus exposes the event bus for live subscribers.
func (s *Session) Bus() *events.Bus {
	return s.bus
}

// Info snapshots the session.
func (s *Session) Info() Info {
	info := Info{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		Files:      s.Files(),
		Converting: s.Converting(),
	}
	if sum, ok := s.Summary(); ok {
		info.Summary = &sum
	}
	return info
}
