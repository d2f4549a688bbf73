package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/ucl-kintone/internal/connector/kintone"
	"github.com/nucleus/ucl-kintone/internal/endpoint"
	"github.com/nucleus/ucl-kintone/internal/sink"
)

type recordingSink struct {
	mu        sync.Mutex
	prepared  map[string]*endpoint.Schema
	batches   map[string][]int
	records   map[string][]endpoint.Record
	committed map[string]string
	writeErr  error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		prepared:  map[string]*endpoint.Schema{},
		batches:   map[string][]int{},
		records:   map[string][]endpoint.Record{},
		committed: map[string]string{},
	}
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Prepare(ctx context.Context, stream sink.Stream, schema *endpoint.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepared[stream.Name] = schema
	return nil
}

func (s *recordingSink) Write(ctx context.Context, stream sink.Stream, records []endpoint.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.batches[stream.Name] = append(s.batches[stream.Name], len(records))
	s.records[stream.Name] = append(s.records[stream.Name], records...)
	return nil
}

func (s *recordingSink) Commit(ctx context.Context, stream sink.Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed[stream.Name] = stream.RunID
	return nil
}

func (s *recordingSink) Close() error { return nil }

type recordingMetrics struct {
	mu    sync.Mutex
	syncs []string
}

func (m *recordingMetrics) PageFetched(app string, records int)   {}
func (m *recordingMetrics) RecordsEmitted(app string, n int)      {}
func (m *recordingMetrics) RequestFailed(app string, kind string) {}
func (m *recordingMetrics) ObserveSync(app string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs = append(m.syncs, app)
}

func newSource(t *testing.T, appIDs ...string) *kintone.Connector {
	t.Helper()
	conn, _ := newStubSource(t, false, appIDs...)
	return conn
}

func newStubSource(t *testing.T, includeLabel bool, appIDs ...string) (*kintone.Connector, *kintone.StubServer) {
	t.Helper()
	stub := kintone.NewStubServer()
	fields := map[string]kintone.FieldProperty{
		"name": {Type: "SINGLE_LINE_TEXT", Code: "name", Label: "Name"},
	}
	stub.AddApp("7", "Orders", "", fields, kintone.StubRecords(1200, map[string]string{"name": "SINGLE_LINE_TEXT"},
		func(i int, code string) any { return fmt.Sprintf("order-%d", i) }))

	conn, err := kintone.New(&kintone.Config{
		Domain:            stub.URL(),
		AppIDs:            appIDs,
		AuthType:          kintone.AuthType{Username: kintone.StubUsername, Password: kintone.StubPassword},
		IncludeLabel:      includeLabel,
		RequestsPerSecond: 1000,
		MaxRetries:        1,
		Transport:         stub.Transport(),
	})
	require.NoError(t, err)
	return conn, stub
}

func TestRunner_SyncsAllRecordsInBatches(t *testing.T) {
	out := newRecordingSink()
	metrics := &recordingMetrics{}
	r := &Runner{
		Source:    newSource(t, "7"),
		Sink:      out,
		Metrics:   metrics,
		BatchSize: 300,
		newRunID:  func() string { return "run-1" },
	}

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, summary.Err())

	assert.Equal(t, "run-1", summary.RunID)
	require.Len(t, summary.Streams, 1)
	assert.Equal(t, "PUBLIC_SPACE_APP_7", summary.Streams[0].Stream)
	assert.Equal(t, int64(1200), summary.Records())

	assert.Equal(t, []int{300, 300, 300, 300}, out.batches["PUBLIC_SPACE_APP_7"])
	assert.Equal(t, "run-1", out.committed["PUBLIC_SPACE_APP_7"])
	require.NotNil(t, out.prepared["PUBLIC_SPACE_APP_7"])
	assert.Equal(t, "order-0", out.records["PUBLIC_SPACE_APP_7"][0]["name"])
	assert.Equal(t, []string{"7"}, metrics.syncs)
}

func TestRunner_UnevenFinalBatch(t *testing.T) {
	out := newRecordingSink()
	r := &Runner{Source: newSource(t, "7"), Sink: out, BatchSize: 500}

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, summary.Err())
	assert.Equal(t, []int{500, 500, 200}, out.batches["PUBLIC_SPACE_APP_7"])
	assert.NotEmpty(t, summary.RunID)
}

func TestRunner_FailedStreamDoesNotStopOthers(t *testing.T) {
	out := newRecordingSink()
	r := &Runner{Source: newSource(t, "8", "7"), Sink: out}

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Streams, 2)

	assert.Error(t, summary.Streams[0].Err)
	assert.NoError(t, summary.Streams[1].Err)
	assert.Equal(t, int64(1200), summary.Streams[1].Records)
	assert.ErrorContains(t, summary.Err(), "PUBLIC_SPACE_APP_8")

	var remote *kintone.RemoteRequestError
	assert.True(t, errors.As(summary.Err(), &remote))
	_, committed := out.committed["PUBLIC_SPACE_APP_8"]
	assert.False(t, committed)
}

func TestRunner_FailFast(t *testing.T) {
	r := &Runner{Source: newSource(t, "8", "7"), Sink: newRecordingSink(), FailFast: true}

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Streams, 1)
	assert.Error(t, summary.Err())
}

func TestRunner_WriteFailureSkipsCommit(t *testing.T) {
	out := newRecordingSink()
	out.writeErr = errors.New("disk full")
	r := &Runner{Source: newSource(t, "7"), Sink: out}

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.ErrorContains(t, summary.Err(), "disk full")
	assert.Empty(t, out.committed)
}

func TestRunner_RequiresSourceAndSink(t *testing.T) {
	_, err := (&Runner{}).Run(context.Background())
	assert.Error(t, err)
}

func TestRunner_Limit(t *testing.T) {
	out := newRecordingSink()
	r := &Runner{Source: newSource(t, "7"), Sink: out, Limit: 20, BatchSize: 8}

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, summary.Err())
	assert.Equal(t, int64(20), summary.Records())
	assert.Equal(t, []int{8, 8, 4}, out.batches["PUBLIC_SPACE_APP_7"])
}

func TestRunner_LabelModeDiscoversSchemaOnce(t *testing.T) {
	conn, stub := newStubSource(t, true, "7")
	out := newRecordingSink()
	r := &Runner{Source: conn, Sink: out, Limit: 3}

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, summary.Err())

	assert.Equal(t, 1, stub.Calls("app/form/fields.json"))

	schema := out.prepared["PUBLIC_SPACE_APP_7"]
	require.NotNil(t, schema)
	var names []string
	for _, f := range schema.Fields {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "Name")
	assert.NotContains(t, names, "name")

	records := out.records["PUBLIC_SPACE_APP_7"]
	require.Len(t, records, 3)
	for _, rec := range records {
		for key := range rec {
			assert.Contains(t, names, key, "record key missing from prepared schema")
		}
	}
	assert.Equal(t, "order-0", records[0]["Name"])
}

// plainSource hides every optional capability of the wrapped source.
type plainSource struct{ endpoint.SourceEndpoint }

func TestRunner_PlainSourceUsesSchemaThenRead(t *testing.T) {
	conn, stub := newStubSource(t, true, "7")
	out := newRecordingSink()
	r := &Runner{Source: plainSource{conn}, Sink: out, Limit: 3}

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, summary.Err())
	assert.Equal(t, 2, stub.Calls("app/form/fields.json"))
	assert.Len(t, out.records["PUBLIC_SPACE_APP_7"], 3)
}
