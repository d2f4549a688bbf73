package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/nucleus/ucl-kintone/internal/endpoint"
)

// JSONLSink writes one JSON object per line. With Envelope set each line
// wraps the record with its stream, run id and emit time.
type JSONLSink struct {
	Envelope bool

	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	now    func() time.Time
}

type jsonlEnvelope struct {
	Stream    string          `json:"stream"`
	RunID     string          `json:"run_id"`
	EmittedAt int64           `json:"emitted_at"`
	Data      endpoint.Record `json:"data"`
}

// NewJSONLSink writes to w. If w is an io.Closer it is closed by Close.
func NewJSONLSink(w io.Writer, envelope bool) *JSONLSink {
	s := &JSONLSink{Envelope: envelope, w: bufio.NewWriter(w), now: time.Now}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

func (s *JSONLSink) Name() string { return "jsonl" }

func (s *JSONLSink) Prepare(ctx context.Context, stream Stream, schema *endpoint.Schema) error {
	return nil
}

func (s *JSONLSink) Write(ctx context.Context, stream Stream, records []endpoint.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := json.NewEncoder(s.w)
	for _, rec := range records {
		var v any = rec
		if s.Envelope {
			v = jsonlEnvelope{Stream: stream.Name, RunID: stream.RunID, EmittedAt: s.now().UnixMilli(), Data: rec}
		}
		if err := enc.Encode(v); err != nil {
			return wrapError(CodeWriteFailed, false, err)
		}
	}
	return nil
}

func (s *JSONLSink) Commit(ctx context.Context, stream Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		return err
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
