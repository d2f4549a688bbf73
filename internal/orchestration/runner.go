// Package orchestration runs full-refresh syncs from a source endpoint into a sink.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nucleus/ucl-kintone/internal/endpoint"
	"github.com/nucleus/ucl-kintone/internal/observability"
	"github.com/nucleus/ucl-kintone/internal/sink"
)

// DefaultBatchSize is the number of records handed to the sink per Write.
const DefaultBatchSize = 500

// Runner syncs every dataset of a source into a sink, one after another.
type Runner struct {
	Source    endpoint.SourceEndpoint
	Sink      sink.Sink
	Metrics   observability.Metrics
	BatchSize int

	// Limit caps the records read per stream. Zero reads everything.
	Limit int64

	// FailFast stops the run at the first failed stream.
	FailFast bool

	now      func() time.Time
	newRunID func() string
}

// StreamResult is the outcome of one stream within a run.
type StreamResult struct {
	Stream   string
	Records  int64
	Duration time.Duration
	Err      error
}

// RunSummary describes one run.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Streams    []StreamResult
}

// Records returns the number of records written across streams.
func (s *RunSummary) Records() int64 {
	var n int64
	for _, r := range s.Streams {
		n += r.Records
	}
	return n
}

// Err joins the errors of failed streams.
func (s *RunSummary) Err() error {
	var errs []error
	for _, r := range s.Streams {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Stream, r.Err))
		}
	}
	return errors.Join(errs...)
}

// Run executes one full-refresh run. The returned error covers failures
// that prevent the run from starting; per-stream failures are in the summary.
func (r *Runner) Run(ctx context.Context) (*RunSummary, error) {
	if r.Source == nil || r.Sink == nil {
		return nil, fmt.Errorf("runner needs a source and a sink")
	}
	now := r.now
	if now == nil {
		now = time.Now
	}
	newRunID := r.newRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}
	metrics := observability.OrNop(r.Metrics)

	datasets, err := r.Source.ListDatasets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}

	summary := &RunSummary{RunID: newRunID(), StartedAt: now()}
	log.Printf("sync: run %s started with %d stream(s)", summary.RunID, len(datasets))

	for _, ds := range datasets {
		if err := ctx.Err(); err != nil {
			summary.Streams = append(summary.Streams, StreamResult{Stream: ds.ID, Err: err})
			break
		}

		stream := sink.Stream{
			Name:     ds.ID,
			RunID:    summary.RunID,
			LoadDate: summary.StartedAt.UTC().Format("2006-01-02"),
		}
		start := now()
		n, err := r.syncStream(ctx, stream)
		result := StreamResult{Stream: ds.ID, Records: n, Duration: now().Sub(start), Err: err}
		summary.Streams = append(summary.Streams, result)
		metrics.ObserveSync(metricLabel(ds), result.Duration)

		if err != nil {
			log.Printf("sync: run %s stream %s failed after %d record(s): %v", summary.RunID, ds.ID, n, err)
			if r.FailFast {
				break
			}
			continue
		}
		log.Printf("sync: run %s stream %s wrote %d record(s) in %s", summary.RunID, ds.ID, n, result.Duration)
	}

	summary.FinishedAt = now()
	return summary, nil
}

func (r *Runner) syncStream(ctx context.Context, stream sink.Stream) (int64, error) {
	schema, it, err := r.open(ctx, stream.Name)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	if err := r.Sink.Prepare(ctx, stream, schema); err != nil {
		return 0, fmt.Errorf("prepare %s: %w", r.Sink.Name(), err)
	}

	size := r.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	var written int64
	batch := make([]endpoint.Record, 0, size)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.Sink.Write(ctx, stream, batch); err != nil {
			return fmt.Errorf("write %s: %w", r.Sink.Name(), err)
		}
		written += int64(len(batch))
		batch = make([]endpoint.Record, 0, size)
		return nil
	}

	for it.Next() {
		batch = append(batch, it.Value())
		if len(batch) >= size {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	if err := it.Err(); err != nil {
		return written, fmt.Errorf("read: %w", err)
	}
	if err := flush(); err != nil {
		return written, err
	}
	if err := r.Sink.Commit(ctx, stream); err != nil {
		return written, fmt.Errorf("commit %s: %w", r.Sink.Name(), err)
	}
	return written, nil
}

// open returns the stream's schema and records. Sources that can read a
// snapshot discover the schema once for both.
func (r *Runner) open(ctx context.Context, datasetID string) (*endpoint.Schema, endpoint.Iterator[endpoint.Record], error) {
	req := &endpoint.ReadRequest{DatasetID: datasetID, Limit: r.Limit}
	if snap, ok := r.Source.(endpoint.SnapshotReader); ok {
		schema, it, err := snap.ReadSnapshot(ctx, req)
		if err != nil {
			return nil, nil, fmt.Errorf("schema: %w", err)
		}
		return schema, it, nil
	}

	schema, err := r.Source.GetSchema(ctx, datasetID)
	if err != nil {
		return nil, nil, fmt.Errorf("schema: %w", err)
	}
	it, err := r.Source.Read(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("read: %w", err)
	}
	return schema, it, nil
}

func metricLabel(ds *endpoint.Dataset) string {
	if id, ok := ds.Properties["appId"].(string); ok && id != "" {
		return id
	}
	return ds.ID
}
