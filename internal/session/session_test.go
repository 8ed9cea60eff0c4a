package session

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/epub2zip/internal/archive"
	"github.com/lehigh-university-libraries/epub2zip/internal/epub"
	"github.com/lehigh-university-libraries/epub2zip/internal/events"
	"github.com/lehigh-university-libraries/epub2zip/internal/models"
	"github.com/lehigh-university-libraries/epub2zip/internal/pipeline"
)

// makeEPUB builds a minimal book holding n JPEG images.
func makeEPUB(t *testing.T, n int) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	write := func(name, data string) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(data)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("mimetype", "application/epub+zip")
	write("META-INF/container.xml", `<container><rootfiles><rootfile full-path="content.opf" media-type="application/oebps-package+xml"/></rootfiles></container>`)
	write("content.opf", `<package version="3.0" xmlns:dc="http://purl.org/dc/elements/1.1/"><metadata><dc:title>T</dc:title></metadata><manifest/></package>`)
	for i := 0; i < n; i++ {
		write(fmt.Sprintf("images/%d.jpg", i), "\xFF\xD8\xFFimage")
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func eventsOfType(evs []events.Event, typ events.Type) []events.Event {
	var out []events.Event
	for _, e := range evs {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestAddFileValidation(t *testing.T) {
	s := New(Options{})

	if _, err := s.AddFile("empty.epub", nil); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("empty file error = %v, want ErrEmptyFile", err)
	}
	if _, err := s.AddFile("notes.txt", []byte("hello")); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("txt error = %v, want ErrUnsupportedType", err)
	}

	f, err := s.AddFile("odd.epub", []byte("not a zip"))
	if err != nil {
		t.Fatalf("lenient accept error = %v", err)
	}
	if f.Status != models.StatusWaiting || f.Size != 9 || f.ID == "" {
		t.Errorf("file = %+v", f)
	}
	if warnings := eventsOfType(s.Events(0), events.TypeWarning); len(warnings) != 1 {
		t.Errorf("warnings = %+v, want one for the suspicious file", warnings)
	}
	if len(s.Files()) != 1 {
		t.Errorf("files = %d, want 1", len(s.Files()))
	}
}

func TestAddFiles(t *testing.T) {
	s := New(Options{})
	added, rejected := s.AddFiles([]Upload{
		{Name: "a.epub", Data: makeEPUB(t, 1)},
		{Name: "b.pdf", Data: []byte("%PDF")},
		{Name: "c.epub", Data: nil},
		{Name: "d.epub", Data: makeEPUB(t, 1)},
	})

	if len(added) != 2 || added[0].Name != "a.epub" || added[1].Name != "d.epub" {
		t.Errorf("added = %+v", added)
	}
	want := []Rejection{
		{Name: "b.pdf", Reason: ErrUnsupportedType.Error()},
		{Name: "c.epub", Reason: ErrEmptyFile.Error()},
	}
	if !reflect.DeepEqual(rejected, want) {
		t.Errorf("rejected = %+v, want %+v", rejected, want)
	}

	warnings := eventsOfType(s.Events(0), events.TypeWarning)
	if len(warnings) != 1 || !strings.Contains(warnings[0].Message, "b.pdf, c.epub") {
		t.Errorf("warnings = %+v", warnings)
	}
}

func TestPlan(t *testing.T) {
	s := New(Options{})
	for _, name := range []string{"ch2.epub", "ch10.epub", "ch1.epub"} {
		if _, err := s.AddFile(name, makeEPUB(t, 1)); err != nil {
			t.Fatalf("AddFile(%s) error = %v", name, err)
		}
	}

	mappings := s.Plan()
	var got []string
	for _, m := range mappings {
		got = append(got, m.OutputName+"="+m.OriginalName)
	}
	want := []string{"001.zip=ch1.epub", "002.zip=ch2.epub", "003.zip=ch10.epub"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("plan = %v, want %v", got, want)
	}

	files := s.Files()
	if files[0].Name != "ch2.epub" || files[0].OutputName != "002.zip" {
		t.Errorf("registry order or output name wrong: %+v", files[0])
	}
}

func TestConvertPartialFailure(t *testing.T) {
	s := New(Options{Pipeline: pipeline.Config{CompressionLevel: 6}})
	for i, n := range []int{2, 0, 1} {
		if _, err := s.AddFile(fmt.Sprintf("vol%d.epub", i+1), makeEPUB(t, n)); err != nil {
			t.Fatalf("AddFile error = %v", err)
		}
	}

	summary, err := s.Convert(context.Background())
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Fatalf("summary = %+v, want 2 succeeded", summary)
	}

	results := s.Results()
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[1].Success || results[1].ErrorKind != string(pipeline.KindNoImages) || results[1].FileName != "002.zip" {
		t.Errorf("second result = %+v", results[1])
	}
	if len(s.Successful()) != 2 {
		t.Errorf("successful = %d, want 2", len(s.Successful()))
	}

	files := s.Files()
	wantStatus := []models.FileStatus{models.StatusCompleted, models.StatusError, models.StatusCompleted}
	for i, f := range files {
		if f.Status != wantStatus[i] {
			t.Errorf("%s status = %s, want %s", f.Name, f.Status, wantStatus[i])
		}
	}
	if !strings.Contains(files[1].Error, "no images") {
		t.Errorf("error = %q", files[1].Error)
	}

	summaries := eventsOfType(s.Events(0), events.TypeSummary)
	if len(summaries) != 1 || summaries[0].Message != "2 succeeded, 1 failed" {
		t.Errorf("summary events = %+v", summaries)
	}
	if got, ok := s.Summary(); !ok || got.Succeeded != 2 {
		t.Errorf("Summary() = %+v, %v", got, ok)
	}

	art, err := s.DownloadAll()
	if err != nil {
		t.Fatalf("DownloadAll() error = %v", err)
	}
	if !art.Wrapped || art.Name != archive.DefaultBundleName || art.Count != 2 {
		t.Fatalf("artifact = %+v", art)
	}
	r, err := archive.Open(art.Data)
	if err != nil {
		t.Fatalf("open bundle: %v", err)
	}
	var names []string
	for _, e := range r.Entries() {
		names = append(names, e.Path)
	}
	if !reflect.DeepEqual(names, []string{"001.zip", "003.zip"}) {
		t.Errorf("bundle entries = %v", names)
	}
}

func TestDownloadAllSingleAndNone(t *testing.T) {
	s := New(Options{})
	if _, err := s.DownloadAll(); !errors.Is(err, archive.ErrNothingToAggregate) {
		t.Errorf("DownloadAll() on empty session error = %v", err)
	}

	f, _ := s.AddFile("only.epub", makeEPUB(t, 3))
	if _, err := s.Convert(context.Background()); err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	art, err := s.DownloadAll()
	if err != nil {
		t.Fatalf("DownloadAll() error = %v", err)
	}
	res, err := s.Result(f.ID)
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if art.Wrapped || art.Name != "001.zip" || !bytes.Equal(art.Data, res.Archive) {
		t.Errorf("artifact = %+v", art)
	}
	if res.ImageCount != 3 || res.Metadata.Title != "T" {
		t.Errorf("result = %+v", res)
	}
}

func TestConvertAgainResets(t *testing.T) {
	s := New(Options{})
	f, _ := s.AddFile("a.epub", makeEPUB(t, 1))
	if _, err := s.Convert(context.Background()); err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if _, err := s.AddFile("b.epub", makeEPUB(t, 1)); err != nil {
		t.Fatalf("AddFile error = %v", err)
	}
	summary, err := s.Convert(context.Background())
	if err != nil {
		t.Fatalf("second Convert() error = %v", err)
	}
	if summary.Total != 2 || summary.Succeeded != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if _, err := s.Result(f.ID); err != nil {
		t.Errorf("Result() error = %v", err)
	}
}

func TestBusyGuards(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	p := pipeline.NewForTests(pipeline.Config{}, func(ctx context.Context, data []byte) (*epub.Extraction, error) {
		entered <- struct{}{}
		<-release
		return &epub.Extraction{Images: []models.ExtractedImage{{FileName: "a.jpg", Data: []byte("x")}}}, nil
	}, pipeline.PackImages)
	s := NewWithPipeline(Options{}, p)
	f, _ := s.AddFile("a.epub", makeEPUB(t, 1))

	done := make(chan error, 1)
	go func() {
		_, err := s.Convert(context.Background())
		done <- err
	}()
	<-entered

	if !s.Converting() {
		t.Error("Converting() = false during a batch")
	}
	if _, err := s.Convert(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("Convert() while busy error = %v", err)
	}
	if err := s.Clear(); !errors.Is(err, ErrBusy) {
		t.Errorf("Clear() while busy error = %v", err)
	}
	if err := s.RemoveFile(f.ID); !errors.Is(err, ErrBusy) {
		t.Errorf("RemoveFile() while busy error = %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Errorf("Clear() error = %v", err)
	}
	if len(s.Files()) != 0 || len(s.Results()) != 0 {
		t.Error("Clear() left state behind")
	}
}

func TestRemoveFile(t *testing.T) {
	s := New(Options{})
	a, _ := s.AddFile("a.epub", makeEPUB(t, 1))
	b, _ := s.AddFile("b.epub", makeEPUB(t, 1))

	if err := s.RemoveFile("missing"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("RemoveFile(missing) error = %v", err)
	}
	if err := s.RemoveFile(a.ID); err != nil {
		t.Fatalf("RemoveFile() error = %v", err)
	}
	files := s.Files()
	if len(files) != 1 || files[0].ID != b.ID {
		t.Errorf("files = %+v", files)
	}
	if _, err := s.File(a.ID); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("File() error = %v", err)
	}
}

func TestStatusEventsFollowLifecycle(t *testing.T) {
	s := New(Options{})
	f, _ := s.AddFile("a.epub", makeEPUB(t, 1))
	if _, err := s.Convert(context.Background()); err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	var statuses []models.FileStatus
	for _, e := range eventsOfType(s.Events(0), events.TypeStatus) {
		if e.FileID == f.ID {
			statuses = append(statuses, e.Status)
		}
	}
	want := []models.FileStatus{models.StatusWaiting, models.StatusProcessing, models.StatusCompleted}
	if !reflect.DeepEqual(statuses, want) {
		t.Errorf("statuses = %v, want %v", statuses, want)
	}

	info := s.Info()
	if info.ID != s.ID || info.Summary == nil || len(info.Files) != 1 || info.Converting {
		t.Errorf("info = %+v", info)
	}

	since := s.Bus().Last()
	if _, err := s.Convert(context.Background()); err != nil {
		t.Fatalf("second Convert() error = %v", err)
	}
	statuses = nil
	for _, e := range eventsOfType(s.Events(since), events.TypeStatus) {
		if e.FileID == f.ID {
			statuses = append(statuses, e.Status)
		}
	}
	if !reflect.DeepEqual(statuses, want) {
		t.Errorf("second run statuses = %v, want %v", statuses, want)
	}
}

func TestStartReportsBusyImmediately(t *testing.T) {
	release := make(chan struct{})
	p := pipeline.NewForTests(pipeline.Config{}, func(ctx context.Context, data []byte) (*epub.Extraction, error) {
		<-release
		return &epub.Extraction{Images: []models.ExtractedImage{{FileName: "a.jpg", Data: []byte("x")}}}, nil
	}, pipeline.PackImages)
	s := NewWithPipeline(Options{}, p)
	if _, err := s.AddFile("a.epub", makeEPUB(t, 1)); err != nil {
		t.Fatalf("AddFile() error = %v", err)
	}

	done := make(chan models.Summary, 1)
	if err := s.Start(context.Background(), func(sum models.Summary, err error) {
		if err != nil {
			t.Errorf("background Convert error = %v", err)
		}
		done <- sum
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !s.Converting() {
		t.Error("Converting() = false right after Start")
	}
	if err := s.Start(context.Background(), nil); !errors.Is(err, ErrBusy) {
		t.Errorf("second Start() error = %v, want ErrBusy", err)
	}

	close(release)
	if sum := <-done; sum.Succeeded != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestHistoryHoldsWholeBatch(t *testing.T) {
	s := New(Options{MaxEvents: 4})
	var ids []string
	for i := 0; i < 6; i++ {
		f, err := s.AddFile(fmt.Sprintf("vol%d.epub", i+1), makeEPUB(t, 1))
		if err != nil {
			t.Fatalf("AddFile() error = %v", err)
		}
		ids = append(ids, f.ID)
	}
	if _, err := s.Convert(context.Background()); err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	evs := s.Events(0)
	completed := make(map[string]bool)
	for _, e := range eventsOfType(evs, events.TypeStatus) {
		if e.Status == models.StatusCompleted {
			completed[e.FileID] = true
		}
	}
	results := make(map[string]bool)
	for _, e := range eventsOfType(evs, events.TypeResult) {
		results[e.FileID] = true
	}
	for _, id := range ids {
		if !completed[id] || !results[id] {
			t.Errorf("file %s lost events: completed=%v result=%v", id, completed[id], results[id])
		}
	}
	if len(eventsOfType(evs, events.TypeSummary)) != 1 {
		t.Error("summary event missing")
	}
}
