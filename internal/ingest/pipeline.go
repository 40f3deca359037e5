// Package ingest turns candidate file paths into a lazily produced stream
// of fingerprinted image records.
//
// Paths are split into consecutive chunks of at most BatchSize entries. On
// the first call to Next one goroutine per chunk is started; each walks its
// chunk in order and pushes finished records onto a queue shared by all
// workers. The consumer blocks on that queue until a record arrives or every
// worker has returned. Records therefore come out in completion order, which
// is only fixed within a single chunk.
//
// Cancelling the context ends the sequence without an error. Any other
// failure inside a worker is handed to the consumer on its next pull and
// ends the run.
package ingest

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"imagesweep/internal/index"
	"imagesweep/internal/models"
)

const (
	// DefaultBatchSize is the number of paths handled by one worker
	DefaultBatchSize = 500
	// DefaultThumbnailWidth is the perceptual thumbnail width in pixels
	DefaultThumbnailWidth = 25

	queueSize = 256
)

// ErrQueueProtocol means the queue delivered an item without a record.
// It indicates a bug.
var ErrQueueProtocol = errors.New("ingest: empty queue item")

// Fingerprinter checks for and fingerprints files
type Fingerprinter interface {
	Exists(path string) bool
	Record(ctx context.Context, path string, width int) (models.ImageRecord, error)
}

// Pipeline is a single-pass, forward-only sequence of ImageRecords.
// Next, Record and Err must be called from one goroutine.
type Pipeline struct {
	paths     []string
	batchSize int
	width     int
	workers   int
	fp        Fingerprinter
	index     *index.Index
	log       logrus.FieldLogger

	ctx     context.Context
	cancel  context.CancelFunc
	start   sync.Once
	started bool
	results chan item
	waitErr error // written before results is closed

	failOnce sync.Once
	failed   chan struct{}
	failErr  error // written before failed is closed

	current models.ImageRecord
	err     error
	done    bool
}

type item struct {
	rec models.ImageRecord
	ok  bool
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithBatchSize sets how many paths each worker handles
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithThumbnailWidth sets the perceptual thumbnail width
func WithThumbnailWidth(w int) Option {
	return func(p *Pipeline) {
		if w > 0 {
			p.width = w
		}
	}
}

// WithWorkers caps the number of chunks processed at once.
// Zero, the default, runs every chunk concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.workers = n
		}
	}
}

// WithIndex stores every record in idx before it is handed to the consumer
func WithIndex(idx *index.Index) Option {
	return func(p *Pipeline) {
		p.index = idx
	}
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// New creates a Pipeline over paths. Nothing runs until the first call to
// Next. Repeated paths are fingerprinted once.
func New(ctx context.Context, fp Fingerprinter, paths []string, opts ...Option) *Pipeline {
	p := &Pipeline{
		paths:     uniquePaths(paths),
		batchSize: DefaultBatchSize,
		width:     DefaultThumbnailWidth,
		fp:        fp,
		log:       logrus.StandardLogger(),
		results:   make(chan item, queueSize),
		failed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	return p
}

func uniquePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		if seen[path] {
			continue
		}
		seen[path] = true
		out = append(out, path)
	}
	return out
}

// Chunks splits paths into consecutive slices of at most size entries
func Chunks(paths []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	chunks := make([][]string, 0, (len(paths)+size-1)/size)
	for start := 0; start < len(paths); start += size {
		end := min(start+size, len(paths))
		chunks = append(chunks, paths[start:end])
	}
	return chunks
}

func (p *Pipeline) run() {
	p.started = true
	chunks := Chunks(p.paths, p.batchSize)

	g, gctx := errgroup.WithContext(p.ctx)
	if p.workers > 0 {
		g.SetLimit(p.workers)
	}

	p.log.WithFields(logrus.Fields{
		"paths":  len(p.paths),
		"chunks": len(chunks),
	}).Debug("starting ingestion")

	go func() {
		for i, chunk := range chunks {
			g.Go(func() error {
				return p.work(gctx, i, chunk)
			})
		}
		p.waitErr = g.Wait()
		close(p.results)
	}()
}

// work fingerprints one chunk in order. It returns nil when cancelled.
func (p *Pipeline) work(ctx context.Context, chunk int, paths []string) error {
	log := p.log.WithField("chunk", chunk)
	for _, path := range paths {
		if ctx.Err() != nil {
			return nil
		}
		if !p.fp.Exists(path) {
			log.WithField("path", path).Debug("skipping missing file")
			continue
		}

		rec, err := p.fp.Record(ctx, path, p.width)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			p.fail(err)
			return err
		}

		log.WithField("path", path).Debug("fingerprinted")
		if !p.send(ctx, item{rec: rec, ok: true}) {
			return nil
		}
	}
	return nil
}

// fail records the first worker error for the consumer's next pull
func (p *Pipeline) fail(err error) {
	p.failOnce.Do(func() {
		p.failErr = err
		close(p.failed)
	})
}

func (p *Pipeline) send(ctx context.Context, it item) bool {
	select {
	case p.results <- it:
		return true
	case <-ctx.Done():
		return false
	}
}

// Next advances to the next record, blocking until one is available or the
// sequence ends. It returns false at the end; Err then tells an error apart
// from a normal finish.
func (p *Pipeline) Next() bool {
	if p.done {
		return false
	}
	p.start.Do(p.run)

	select {
	case <-p.failed:
		return p.finish(p.failErr)
	default:
	}
	if p.ctx.Err() != nil {
		return p.finish(nil)
	}

	select {
	case <-p.failed:
		return p.finish(p.failErr)
	case it, open := <-p.results:
		if !open {
			return p.finish(p.endErr())
		}
		if !it.ok {
			return p.finish(ErrQueueProtocol)
		}
		if p.index != nil {
			p.index.Put(it.rec)
		}
		p.current = it.rec
		return true
	case <-p.ctx.Done():
		return p.finish(nil)
	}
}

// endErr decides how a drained queue ends the sequence
func (p *Pipeline) endErr() error {
	select {
	case <-p.failed:
		return p.failErr
	default:
	}
	if p.ctx.Err() != nil {
		return nil
	}
	return p.waitErr
}

func (p *Pipeline) finish(err error) bool {
	p.err = err
	p.current = models.ImageRecord{}
	p.Close()
	return false
}

// Record returns the record Next advanced to
func (p *Pipeline) Record() models.ImageRecord {
	return p.current
}

// Err returns the error that ended the sequence, or nil if it ran to
// completion or was cancelled.
func (p *Pipeline) Err() error {
	return p.err
}

// Close stops the workers and waits for them to exit.
// It is safe to call more than once.
func (p *Pipeline) Close() {
	p.done = true
	p.cancel()
	if !p.started {
		return
	}
	for range p.results {
	}
}

// All adapts the pipeline to a range-over-func sequence. A terminal error
// is yielded once with a zero record. Breaking out of the loop closes the
// pipeline.
func (p *Pipeline) All() iter.Seq2[models.ImageRecord, error] {
	return func(yield func(models.ImageRecord, error) bool) {
		defer p.Close()
		for p.Next() {
			if !yield(p.Record(), nil) {
				return
			}
		}
		if err := p.Err(); err != nil {
			yield(models.ImageRecord{}, err)
		}
	}
}
