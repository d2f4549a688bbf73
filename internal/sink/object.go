package sink

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/nucleus/ucl-kintone/internal/endpoint"
)

// Object formats.
const (
	FormatParquet = "parquet"
	FormatJSONLGz = "jsonl.gz"
)

// ObjectStore is the subset of bucket operations the object sink needs.
type ObjectStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// ObjectSink buffers each stream and uploads it as one object on Commit:
// {prefix}/{stream}/dt={date}/run={runID}/part-000000.{format}
type ObjectSink struct {
	store  ObjectStore
	bucket string
	prefix string
	format string

	mu      sync.Mutex
	streams map[string]*objectBuffer
	written []string
}

type objectBuffer struct {
	columns []parquetColumn
	records []endpoint.Record
}

// NewObjectSink creates a sink that writes into bucket.
func NewObjectSink(store ObjectStore, bucket, prefix, format string) (*ObjectSink, error) {
	if bucket == "" {
		return nil, wrapError(CodeBucketNotFound, false, fmt.Errorf("bucket is required"))
	}
	if format == "" {
		format = FormatParquet
	}
	if format != FormatParquet && format != FormatJSONLGz {
		return nil, wrapError(CodeInvalidConfig, false, fmt.Errorf("unsupported format %q", format))
	}
	return &ObjectSink{
		store:   store,
		bucket:  bucket,
		prefix:  prefix,
		format:  format,
		streams: map[string]*objectBuffer{},
	}, nil
}

func (s *ObjectSink) Name() string { return "object" }

// Objects returns the keys uploaded so far.
func (s *ObjectSink) Objects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.written...)
}

func (s *ObjectSink) Prepare(ctx context.Context, stream Stream, schema *endpoint.Schema) error {
	if err := s.store.EnsureBucket(ctx, s.bucket); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[stream.Name] = &objectBuffer{columns: parquetColumns(schema)}
	return nil
}

func (s *ObjectSink) Write(ctx context.Context, stream Stream, records []endpoint.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.streams[stream.Name]
	if !ok {
		return wrapError(CodeWriteFailed, false, fmt.Errorf("stream %s was not prepared", stream.Name))
	}
	buf.records = append(buf.records, records...)
	return nil
}

func (s *ObjectSink) Commit(ctx context.Context, stream Stream) error {
	s.mu.Lock()
	buf, ok := s.streams[stream.Name]
	delete(s.streams, stream.Name)
	s.mu.Unlock()
	if !ok {
		return wrapError(CodeWriteFailed, false, fmt.Errorf("stream %s was not prepared", stream.Name))
	}

	var (
		data        []byte
		err         error
		contentType string
	)
	switch s.format {
	case FormatParquet:
		data, err = encodeParquet(buf.columns, buf.records)
		contentType = "application/vnd.apache.parquet"
	default:
		data, err = encodeJSONLGz(buf.records)
		contentType = "application/gzip"
	}
	if err != nil {
		return wrapError(CodeWriteFailed, false, err)
	}

	key := joinKey(
		s.prefix,
		stream.Name,
		fmt.Sprintf("dt=%s", stream.LoadDate),
		fmt.Sprintf("run=%s", stream.RunID),
		fmt.Sprintf("part-%06d.%s", 0, s.format),
	)
	if err := s.store.PutObject(ctx, s.bucket, key, data, contentType); err != nil {
		return err
	}

	s.mu.Lock()
	s.written = append(s.written, key)
	s.mu.Unlock()
	return nil
}

func (s *ObjectSink) Close() error { return nil }

func encodeJSONLGz(records []endpoint.Record) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			_ = gz.Close()
			return nil, err
		}
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// =============================================================================
// PARQUET
// =============================================================================

// parquetColumn maps a record key to a column name parquet accepts.
type parquetColumn struct {
	Field  string
	Column string
}

var columnUnsafe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// parquetColumns derives one nullable UTF8 column per schema field. Names
// are reduced to [A-Za-z0-9_] and made unique.
func parquetColumns(schema *endpoint.Schema) []parquetColumn {
	if schema == nil {
		return nil
	}
	seen := map[string]int{}
	cols := make([]parquetColumn, 0, len(schema.Fields))
	for i, f := range schema.Fields {
		name := strings.Trim(columnUnsafe.ReplaceAllString(f.Name, "_"), "_")
		if name == "" {
			name = "col_" + strconv.Itoa(i+1)
		}
		if name[0] >= '0' && name[0] <= '9' {
			name = "c_" + name
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 1
		}
		cols = append(cols, parquetColumn{Field: f.Name, Column: name})
	}
	return cols
}

func parquetSchema(cols []parquetColumn) string {
	fields := make([]map[string]string, 0, len(cols))
	for _, c := range cols {
		fields = append(fields, map[string]string{
			"Tag": fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", c.Column),
		})
	}
	out := map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// parquetRow renders a record as the JSON row the writer expects. Strings
// pass through, nulls stay null, everything else is stored as JSON text.
func parquetRow(cols []parquetColumn, rec endpoint.Record) (string, error) {
	row := make(map[string]any, len(cols))
	for _, c := range cols {
		switch v := rec[c.Field].(type) {
		case nil:
			row[c.Column] = nil
		case string:
			row[c.Column] = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			row[c.Column] = string(b)
		}
	}
	b, err := json.Marshal(row)
	return string(b), err
}

func encodeParquet(cols []parquetColumn, records []endpoint.Record) ([]byte, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("parquet output needs a schema with at least one field")
	}

	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(parquetSchema(cols), pfw, 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range records {
		row, err := parquetRow(cols, rec)
		if err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return nil, err
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = pfw.Close()
		return nil, err
	}
	_ = pfw.Close()
	return buf.Bytes(), nil
}
