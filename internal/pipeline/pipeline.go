package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/refset/prevd-classifier/internal/classifier"
	"github.com/refset/prevd-classifier/internal/config"
	"github.com/refset/prevd-classifier/internal/intake"
	"github.com/refset/prevd-classifier/internal/store"
)

// Engine classifies one row. *classifier.Classifier implements it.
type Engine interface {
	Classify(ctx context.Context, in classifier.Input, sampleCount int) (*classifier.Result, error)
	ModelName() string
	PromptVersion() string
	SystemRubric() string
}

// Publisher forwards events and finished rows, e.g. to Kafka.
type Publisher interface {
	SendEvent(ctx context.Context, key string, event any) error
	SendResult(ctx context.Context, key string, row any) error
}

// Recorder persists runs and rows, e.g. to Postgres.
type Recorder interface {
	SaveRun(ctx context.Context, r store.Run) error
	SaveRow(ctx context.Context, r store.Row) error
}

// LimitError rejects uploads above the synchronous row limit.
type LimitError struct {
	Rows, Max int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("sync mode max rows exceeded (%d > %d)", e.Rows, e.Max)
}

// Options configure a pipeline. Publisher and Recorder are optional.
type Options struct {
	MaxRows      int
	RowRetries   uint64
	RetryBackoff time.Duration
	Publisher    Publisher
	Recorder     Recorder
	Normalizer   *intake.Normalizer
	Logger       *zap.Logger
}

// OptionsFromConfig maps the batch section of cfg onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxRows:      cfg.Batch.MaxRows,
		RowRetries:   cfg.Batch.RowRetries,
		RetryBackoff: cfg.Batch.RetryBackoff,
	}
}

// Pipeline drives batch classification of uploads
type Pipeline struct {
	engine Engine
	opts   Options
	norm   *intake.Normalizer
	log    *zap.Logger
}

// New creates a new pipeline
func New(engine Engine, opts Options) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	norm := opts.Normalizer
	if norm == nil {
		norm = intake.NewNormalizer(intake.DefaultAliases())
	}
	return &Pipeline{
		engine: engine,
		opts:   opts,
		norm:   norm,
		log:    log.Named("pipeline"),
	}
}

// Engine exposes the classifier metadata to boundary layers.
func (p *Pipeline) Engine() Engine { return p.engine }

// Validate checks a job before any event is emitted.
func (p *Pipeline) Validate(job Job) error {
	if job.Upload == nil || len(job.Upload.Rows) == 0 {
		return intake.ErrNoRows
	}
	if p.opts.MaxRows > 0 && len(job.Upload.Rows) > p.opts.MaxRows {
		return &LimitError{Rows: len(job.Upload.Rows), Max: p.opts.MaxRows}
	}
	return nil
}

// Run classifies every row of the job with a pool of workers and streams
// start, progress and complete events to sink. On failure an error event is
// emitted and the error returned.
func (p *Pipeline) Run(ctx context.Context, job Job, sink EventSink) (*Analysis, error) {
	if err := p.Validate(job); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = discardSink{}
	}
	job.SampleCount = config.ClampSampleCount(job.SampleCount)
	job.RowConcurrency = config.ClampRowConcurrency(job.RowConcurrency)

	uploadID := uuid.NewString()
	rows := job.Upload.Rows
	em := &emitter{sink: sink, pub: p.opts.Publisher, uploadID: uploadID, log: p.log}

	p.log.Info("starting classification",
		zap.String("upload", uploadID),
		zap.String("file", job.Filename),
		zap.Int("rows", len(rows)),
		zap.Int("samples", job.SampleCount),
		zap.Int("workers", job.RowConcurrency),
		zap.String("model", p.engine.ModelName()))

	em.emit(ctx, Event{
		Type:           EventStart,
		Filename:       job.Filename,
		TotalRows:      len(rows),
		SampleCount:    job.SampleCount,
		RowConcurrency: job.RowConcurrency,
	})

	if p.opts.Recorder != nil {
		run := store.Run{
			UploadID:       uploadID,
			Filename:       job.Filename,
			ModelName:      p.engine.ModelName(),
			PromptVersion:  p.engine.PromptVersion(),
			SampleCount:    job.SampleCount,
			RowConcurrency: job.RowConcurrency,
			Headers:        job.Upload.Headers,
			TotalRows:      len(rows),
		}
		if err := p.opts.Recorder.SaveRun(ctx, run); err != nil {
			p.log.Warn("failed to save run", zap.String("upload", uploadID), zap.Error(err))
		}
	}

	classified := make([]ClassifiedRow, len(rows))
	var next, processed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for range min(job.RowConcurrency, len(rows)) {
		g.Go(func() error {
			for {
				idx := int(next.Add(1)) - 1
				if idx >= len(rows) {
					return nil
				}
				row, err := p.classifyRow(gctx, job, uploadID, idx+1, rows[idx])
				if err != nil {
					return fmt.Errorf("row %d: %w", idx+1, err)
				}
				classified[idx] = row

				done := int(processed.Add(1))
				em.emit(gctx, Event{
					Type:          EventProgress,
					ProcessedRows: done,
					TotalRows:     len(rows),
					Percent:       math.Round(float64(done)/float64(len(rows))*1000) / 10,
					RowIndex:      idx + 1,
					CurrentLabel:  row.FinalLabel,
				})
			}
		})
	}
	if err := g.Wait(); err != nil {
		p.log.Error("classification failed", zap.String("upload", uploadID), zap.Error(err))
		em.emit(ctx, Event{Type: EventError, Message: err.Error()})
		return nil, err
	}

	analysis := &Analysis{
		UploadID:       uploadID,
		Filename:       job.Filename,
		ModelName:      p.engine.ModelName(),
		RowConcurrency: job.RowConcurrency,
		Headers:        job.Upload.Headers,
		TotalRows:      len(rows),
		ProcessedRows:  len(rows),
		Rows:           classified,
	}
	em.emit(ctx, Event{Type: EventComplete, Payload: analysis})
	p.log.Info("classification complete", zap.String("upload", uploadID), zap.Int("rows", len(rows)))
	return analysis, nil
}

func (p *Pipeline) classifyRow(ctx context.Context, job Job, uploadID string, rowIndex int, row intake.Row) (ClassifiedRow, error) {
	in := classifier.Input{
		RowIndex:   rowIndex,
		Normalized: p.norm.Normalize(row.RawData),
		RawData:    row.RawData,
		RawEntries: row.RawEntries,
		Criteria:   job.Criteria,
	}
	res, err := p.classify(ctx, in, job.SampleCount)
	if err != nil {
		return ClassifiedRow{}, err
	}

	meta := p.runMeta(job.Criteria, job.SampleCount, job.RowConcurrency, res.Latency)
	out := ClassifiedRow{
		ID:         uuid.NewString(),
		RowIndex:   rowIndex,
		RawData:    row.RawData,
		RawEntries: row.RawEntries,
		ModelLabel: res.FinalLabel,
		Result:     res,
		RunMeta:    &meta,
	}
	p.persist(ctx, uploadID, out)
	return out, nil
}

// ClassifyRow classifies a single row with the same rules as a batch job.
func (p *Pipeline) ClassifyRow(ctx context.Context, req RowRequest) (*RowResponse, error) {
	n := req.SampleCount
	if n <= 0 {
		n = classifier.DefaultSampleCount
	}
	n = config.ClampSampleCount(n)

	in := classifier.Input{
		RowIndex:   req.RowIndex,
		Normalized: p.norm.Normalize(req.RawData),
		RawData:    req.RawData,
		RawEntries: req.RawEntries,
		Criteria:   req.Criteria,
	}
	res, err := p.classify(ctx, in, n)
	if err != nil {
		return nil, err
	}

	row := ClassifiedRow{
		ID:         uuid.NewString(),
		ModelLabel: res.FinalLabel,
		Result:     res,
	}
	meta := p.runMeta(req.Criteria, n, 0, res.Latency)

	stored := row
	stored.RowIndex, stored.RawData, stored.RawEntries, stored.RunMeta = req.RowIndex, req.RawData, req.RawEntries, &meta
	p.persist(ctx, "", stored)

	return &RowResponse{Row: row, RunMeta: meta}, nil
}

func (p *Pipeline) runMeta(c classifier.Criteria, n, concurrency int, latency time.Duration) RunMeta {
	return RunMeta{
		ModelName:         p.engine.ModelName(),
		PromptVersion:     p.engine.PromptVersion(),
		SampleCount:       n,
		RowConcurrency:    concurrency,
		Temperature:       classifier.BaseTemperature(n),
		SystemCriteria:    p.engine.SystemRubric(),
		UserCriteria:      optional(c.User),
		CoreValue:         optional(c.CoreValue),
		AbuserCriteria:    optional(c.Abuser),
		DiscoveryCriteria: optional(c.Discovery),
		LatencyMs:         latency.Milliseconds(),
	}
}

// persist forwards a finished row to the optional publisher and recorder.
// Failures are logged; they never fail the classification.
func (p *Pipeline) persist(ctx context.Context, uploadID string, row ClassifiedRow) {
	if p.opts.Publisher != nil {
		if err := p.opts.Publisher.SendResult(ctx, row.ID, row); err != nil {
			p.log.Warn("failed to publish row", zap.String("row", row.ID), zap.Error(err))
		}
	}
	if p.opts.Recorder == nil {
		return
	}
	payload, err := json.Marshal(row)
	if err != nil {
		p.log.Warn("failed to encode row", zap.String("row", row.ID), zap.Error(err))
		return
	}
	rec := store.Row{
		ID:              row.ID,
		UploadID:        uploadID,
		RowIndex:        row.RowIndex,
		ModelLabel:      row.ModelLabel,
		FinalLabel:      row.FinalLabel,
		Confidence:      row.Confidence,
		IsAbuser:        row.IsAbuser,
		IsDiscoveryType: row.IsDiscoveryType,
		Payload:         payload,
	}
	if err := p.opts.Recorder.SaveRow(ctx, rec); err != nil {
		p.log.Warn("failed to save row", zap.String("row", row.ID), zap.Error(err))
	}
}

// emitter serializes events to the sink and mirrors them to the publisher.
type emitter struct {
	mu       sync.Mutex
	sink     EventSink
	pub      Publisher
	uploadID string
	log      *zap.Logger
}

func (e *emitter) emit(ctx context.Context, ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.sink.Emit(ctx, ev); err != nil {
		e.log.Warn("failed to write event", zap.String("type", ev.Type), zap.Error(err))
	}
	if e.pub == nil {
		return
	}
	// Rows travel on the results topic; the event stream only carries the summary.
	if ev.Payload != nil {
		summary := *ev.Payload
		summary.Rows = nil
		ev.Payload = &summary
	}
	if err := e.pub.SendEvent(ctx, e.uploadID, ev); err != nil {
		e.log.Warn("failed to publish event", zap.String("type", ev.Type), zap.Error(err))
	}
}
