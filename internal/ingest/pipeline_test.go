package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"imagesweep/internal/index"
	"imagesweep/internal/models"
)

type fakeFingerprinter struct {
	missing map[string]bool
	fail    map[string]error
	delay   time.Duration

	calls    atomic.Int32
	mu       sync.Mutex
	inFlight int
	peak     int
	seen     map[string]int
}

func newFake() *fakeFingerprinter {
	return &fakeFingerprinter{
		missing: map[string]bool{},
		fail:    map[string]error{},
		seen:    map[string]int{},
	}
}

func (f *fakeFingerprinter) Exists(path string) bool {
	return !f.missing[path]
}

func (f *fakeFingerprinter) Record(ctx context.Context, path string, width int) (models.ImageRecord, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen[path]++
	f.inFlight++
	f.peak = max(f.peak, f.inFlight)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return models.ImageRecord{}, ctx.Err()
		}
	}
	if err := f.fail[path]; err != nil {
		return models.ImageRecord{}, err
	}
	return models.ImageRecord{
		SourceID:  path,
		CreatedAt: time.Unix(0, 0).UTC(),
		Thumbnail: models.Fingerprint{Kind: models.KindPerceptual, Hash: "01", Width: width, Height: 1},
	}, nil
}

func makePaths(n int) []string {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("img-%03d.png", i)
	}
	return paths
}

func collect(t *testing.T, p *Pipeline) []string {
	t.Helper()
	var got []string
	for p.Next() {
		got = append(got, p.Record().SourceID)
	}
	sort.Strings(got)
	return got
}

func TestChunks(t *testing.T) {
	tests := []struct {
		n, size int
		lens    []int
	}{
		{0, 3, nil},
		{1, 3, []int{1}},
		{3, 3, []int{3}},
		{7, 3, []int{3, 3, 1}},
		{4, 1, []int{1, 1, 1, 1}},
		{4, 0, []int{1, 1, 1, 1}},
	}

	for _, tt := range tests {
		chunks := Chunks(makePaths(tt.n), tt.size)
		if len(chunks) != len(tt.lens) {
			t.Errorf("Chunks(%d, %d) gave %d chunks, want %d", tt.n, tt.size, len(chunks), len(tt.lens))
			continue
		}
		for i, c := range chunks {
			if len(c) != tt.lens[i] {
				t.Errorf("Chunks(%d, %d)[%d] has %d paths, want %d", tt.n, tt.size, i, len(c), tt.lens[i])
			}
		}
	}
}

func TestChunks_KeepsOrder(t *testing.T) {
	paths := makePaths(10)
	var joined []string
	for _, c := range Chunks(paths, 4) {
		joined = append(joined, c...)
	}
	for i := range paths {
		if joined[i] != paths[i] {
			t.Fatalf("path %d = %q, want %q", i, joined[i], paths[i])
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	p := New(context.Background(), newFake(), nil)
	defer p.Close()

	if p.batchSize != DefaultBatchSize {
		t.Errorf("batch size = %d, want %d", p.batchSize, DefaultBatchSize)
	}
	if p.width != DefaultThumbnailWidth {
		t.Errorf("width = %d, want %d", p.width, DefaultThumbnailWidth)
	}
	if p.workers != 0 {
		t.Errorf("workers = %d, want 0", p.workers)
	}

	p = New(context.Background(), newFake(), nil, WithBatchSize(0), WithThumbnailWidth(-1), WithWorkers(-2))
	defer p.Close()
	if p.batchSize != DefaultBatchSize || p.width != DefaultThumbnailWidth || p.workers != 0 {
		t.Error("invalid option values should leave the defaults in place")
	}
}

func TestPipeline_YieldsEveryRecord(t *testing.T) {
	paths := makePaths(23)

	for _, size := range []int{1, 2, 5, 23, 500} {
		t.Run(fmt.Sprintf("batch=%d", size), func(t *testing.T) {
			fp := newFake()
			p := New(context.Background(), fp, paths, WithBatchSize(size))

			got := collect(t, p)
			if err := p.Err(); err != nil {
				t.Fatalf("Err() = %v, want nil", err)
			}
			if len(got) != len(paths) {
				t.Fatalf("got %d records, want %d", len(got), len(paths))
			}
			for i := range paths {
				if got[i] != paths[i] {
					t.Errorf("record %d = %q, want %q", i, got[i], paths[i])
				}
			}
			for path, n := range fp.seen {
				if n != 1 {
					t.Errorf("%s fingerprinted %d times, want 1", path, n)
				}
			}
		})
	}
}

func TestPipeline_Empty(t *testing.T) {
	p := New(context.Background(), newFake(), nil)
	if p.Next() {
		t.Error("Next() on an empty pipeline should return false")
	}
	if p.Err() != nil {
		t.Errorf("Err() = %v, want nil", p.Err())
	}
}

func TestPipeline_RepeatedPathsOnce(t *testing.T) {
	fp := newFake()
	p := New(context.Background(), fp, []string{"a.png", "b.png", "a.png", "a.png"}, WithBatchSize(1))

	got := collect(t, p)
	if len(got) != 2 {
		t.Errorf("got %v, want a.png and b.png once each", got)
	}
	if fp.calls.Load() != 2 {
		t.Errorf("Record called %d times, want 2", fp.calls.Load())
	}
}

func TestPipeline_SkipsMissingFiles(t *testing.T) {
	fp := newFake()
	fp.missing["img-001.png"] = true
	fp.missing["img-003.png"] = true

	p := New(context.Background(), fp, makePaths(5), WithBatchSize(2))
	got := collect(t, p)

	want := []string{"img-000.png", "img-002.png", "img-004.png"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if p.Err() != nil {
		t.Errorf("missing files should not be an error, got %v", p.Err())
	}
}

func TestPipeline_LazyStart(t *testing.T) {
	fp := newFake()
	p := New(context.Background(), fp, makePaths(3))
	defer p.Close()

	time.Sleep(10 * time.Millisecond)
	if n := fp.calls.Load(); n != 0 {
		t.Fatalf("Record called %d times before the first Next", n)
	}

	if !p.Next() {
		t.Fatal("Next() = false, want a record")
	}
	if fp.calls.Load() == 0 {
		t.Error("Record should have been called after Next")
	}
}

func TestPipeline_IndexedBeforeYield(t *testing.T) {
	idx := index.New()
	p := New(context.Background(), newFake(), makePaths(12), WithBatchSize(5), WithIndex(idx))

	n := 0
	for p.Next() {
		rec := p.Record()
		if _, ok := idx.Get(rec.SourceID); !ok {
			t.Errorf("%s yielded before it was indexed", rec.SourceID)
		}
		n++
	}
	if idx.Len() != n || n != 12 {
		t.Errorf("index holds %d records after %d yields, want 12", idx.Len(), n)
	}
}

func TestPipeline_ThumbnailWidthPassedThrough(t *testing.T) {
	p := New(context.Background(), newFake(), makePaths(1), WithThumbnailWidth(40))
	if !p.Next() {
		t.Fatal("Next() = false, want a record")
	}
	if w := p.Record().Thumbnail.Width; w != 40 {
		t.Errorf("thumbnail width = %d, want 40", w)
	}
	p.Close()
}

func TestPipeline_ErrorEndsRun(t *testing.T) {
	boom := errors.New("disk on fire")
	fp := newFake()
	fp.fail["img-004.png"] = boom

	p := New(context.Background(), fp, makePaths(10), WithBatchSize(1))
	for p.Next() {
	}

	if !errors.Is(p.Err(), boom) {
		t.Fatalf("Err() = %v, want %v", p.Err(), boom)
	}
	if p.Next() {
		t.Error("Next() after a failure should keep returning false")
	}
	if !errors.Is(p.Err(), boom) {
		t.Error("Err() should keep reporting the failure")
	}
}

func TestPipeline_ErrorReportedOnce(t *testing.T) {
	boom := errors.New("bad file")
	fp := newFake()
	fp.fail["img-000.png"] = boom
	fp.fail["img-001.png"] = boom

	p := New(context.Background(), fp, makePaths(2), WithBatchSize(1))

	var errs int
	for _, err := range p.All() {
		if err != nil {
			errs++
		}
	}
	if errs != 1 {
		t.Errorf("All() yielded %d errors, want 1", errs)
	}
}

func TestPipeline_CancelBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fp := newFake()
	p := New(ctx, fp, makePaths(5))
	if p.Next() {
		t.Error("Next() on a cancelled pipeline should return false")
	}
	if p.Err() != nil {
		t.Errorf("cancellation should not be an error, got %v", p.Err())
	}
}

func TestPipeline_CancelMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fp := newFake()
	fp.delay = time.Millisecond
	p := New(ctx, fp, makePaths(50), WithBatchSize(5))

	if !p.Next() {
		t.Fatal("Next() = false, want a record")
	}
	cancel()

	if p.Next() {
		t.Error("Next() after cancel should return false")
	}
	if p.Err() != nil {
		t.Errorf("cancellation should not be an error, got %v", p.Err())
	}
}

func TestPipeline_WorkerLimit(t *testing.T) {
	fp := newFake()
	fp.delay = 5 * time.Millisecond

	p := New(context.Background(), fp, makePaths(12), WithBatchSize(1), WithWorkers(2))
	got := collect(t, p)

	if len(got) != 12 {
		t.Fatalf("got %d records, want 12", len(got))
	}
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.peak > 2 {
		t.Errorf("%d workers ran at once, want at most 2", fp.peak)
	}
}

func TestPipeline_AllBreakCloses(t *testing.T) {
	p := New(context.Background(), newFake(), makePaths(30), WithBatchSize(3))

	n := 0
	for rec, err := range p.All() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.SourceID == "" {
			t.Error("record without a source")
		}
		n++
		if n == 2 {
			break
		}
	}

	if p.Next() {
		t.Error("Next() after breaking out of All should return false")
	}
	if p.Err() != nil {
		t.Errorf("Err() = %v, want nil", p.Err())
	}
}

func TestPipeline_CloseIsIdempotent(t *testing.T) {
	p := New(context.Background(), newFake(), makePaths(4))
	p.Close()
	p.Close()
	if p.Next() {
		t.Error("Next() after Close should return false")
	}
}
