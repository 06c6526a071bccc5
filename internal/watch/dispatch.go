package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/linnemanlabs/sentinel/internal/analysis"
	"github.com/linnemanlabs/sentinel/internal/correlation"
)

var tracer = otel.Tracer("github.com/linnemanlabs/sentinel/internal/watch")

// DefaultMaxConcurrent bounds concurrently running analysis tasks.
const DefaultMaxConcurrent = 16

// Analyzer produces an analysis report. *analysis.Selector implements it.
type Analyzer interface {
	Analyze(ctx context.Context, in *analysis.Input) *analysis.Report
}

// Dispatcher runs one detached analysis task per created event. Tasks share no
// mutable state and complete in no particular order.
type Dispatcher struct {
	analyzer Analyzer
	writer   *Writer
	sink     *Sink
	logger   log.Logger
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
}

// NewDispatcher wires the analysis task pipeline. maxConcurrent <= 0 selects
// DefaultMaxConcurrent.
func NewDispatcher(analyzer Analyzer, writer *Writer, sink *Sink, logger log.Logger, maxConcurrent int) *Dispatcher {
	if logger == nil {
		logger = log.Nop()
	}
	if sink == nil {
		sink = NewSink(logger, nil)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Dispatcher{
		analyzer: analyzer,
		writer:   writer,
		sink:     sink,
		logger:   logger,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Dispatch schedules analysis of ev on its own goroutine and returns at once.
// The correlation id in ctx (or a fresh one) is carried into the task; ctx
// cancellation is not.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event, terms []string) {
	ctx, corrID := correlation.Ensure(ctx)

	in := &analysis.Input{
		EventType:   ev.Type,
		Description: ev.Description,
		Metadata:    ev.Metadata.Clone(),
		Terms:       append([]string(nil), terms...),
	}

	d.sink.Dispatched(ctx, ev, corrID)

	d.wg.Add(1)
	go d.run(context.WithoutCancel(ctx), ev.ID, corrID, in)
}

// Stats returns the task counters.
func (d *Dispatcher) Stats() Stats {
	return d.sink.Stats()
}

// Wait blocks until all dispatched tasks have finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("analysis tasks still running: %w", ctx.Err())
	}
}

func (d *Dispatcher) run(ctx context.Context, eventID, corrID string, in *analysis.Input) {
	defer d.wg.Done()

	start := time.Now()

	// a panic is a bug in the task, not a remote failure: fail the task
	defer func() {
		if r := recover(); r != nil {
			d.sink.Failed(ctx, eventID, fmt.Errorf("analysis task panic: %v", r), corrID, time.Since(start))
		}
	}()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.sink.Failed(ctx, eventID, fmt.Errorf("acquire task slot: %w", err), corrID, time.Since(start))
		return
	}
	defer d.sem.Release(1)

	ctx, span := tracer.Start(ctx, "analysis.task", trace.WithAttributes(
		attribute.String("sentinel.event.id", eventID),
		attribute.String("sentinel.correlation.id", corrID),
	))
	defer span.End()

	d.sink.Running(ctx, eventID, corrID, time.Since(start))
	defer d.sink.released()
	span.SetAttributes(attribute.String("sentinel.task.state", string(TaskRunning)))
	span.AddEvent("task.running")

	rep := d.analyzer.Analyze(ctx, in)
	if rep == nil || rep.Result == nil {
		err := errors.New("analyzer returned no result")
		span.SetStatus(codes.Error, err.Error())
		d.sink.Failed(ctx, eventID, err, corrID, time.Since(start))
		return
	}
	span.SetAttributes(
		attribute.String("sentinel.analysis.strategy", string(rep.Strategy)),
		attribute.Bool("sentinel.analysis.demoted", rep.Demoted),
		attribute.String("sentinel.analysis.severity", string(rep.Result.Severity)),
	)

	if err := d.writer.Apply(ctx, eventID, rep.Result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("sentinel.task.state", string(TaskFailed)))
		d.sink.Failed(ctx, eventID, err, corrID, time.Since(start))
		return
	}

	span.SetAttributes(attribute.String("sentinel.task.state", string(TaskSucceeded)))
	d.sink.Succeeded(ctx, eventID, rep, corrID, time.Since(start))
}
