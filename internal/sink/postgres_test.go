package sink

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nucleus/ucl-kintone/internal/endpoint"
)

func TestPostgresSink_Load(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	s, err := NewPostgresSink(db, "")
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	ctx := context.Background()
	stream := Stream{Name: "PUBLIC_SPACE_APP_7", RunID: "5d0c6c3e-8d5e-4a6b-9a51-1f1d2a3b4c5d"}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS kintone_records (stream TEXT NOT NULL, run_id UUID NOT NULL, record JSONB NOT NULL, loaded_at TIMESTAMPTZ NOT NULL DEFAULT now())")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kintone_records (stream, run_id, record) VALUES ($1,$2,$3),($4,$5,$6)")).
		WithArgs(stream.Name, stream.RunID, `{"a":"1"}`, stream.Name, stream.RunID, `{"a":"2"}`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM kintone_records WHERE stream = $1 AND run_id <> $2")).
		WithArgs(stream.Name, stream.RunID).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectClose()

	if err := s.Prepare(ctx, stream, nil); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := s.Write(ctx, stream, []endpoint.Record{{"a": "1"}, {"a": "2"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write(ctx, stream, nil); err != nil {
		t.Fatalf("empty write: %v", err)
	}
	if err := s.Commit(ctx, stream); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSink_WriteFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	s, _ := NewPostgresSink(db, "raw.kintone")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO raw.kintone")).WillReturnError(errors.New("connection lost"))

	err = s.Write(context.Background(), Stream{Name: "s", RunID: "r"}, []endpoint.Record{{"a": 1}})
	var sinkErr *Error
	if !errors.As(err, &sinkErr) || sinkErr.Code != CodeWriteFailed || !sinkErr.Retryable {
		t.Fatalf("expected retryable write failure, got %v", err)
	}
}

func TestPostgresSink_RejectsBadTable(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	if _, err := NewPostgresSink(db, "records; drop table x"); err == nil {
		t.Fatal("expected invalid table name error")
	}
}
