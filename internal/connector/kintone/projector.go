package kintone

import (
	"github.com/nucleus/ucl-kintone/internal/endpoint"
)

// ProjectRecord flattens one envelope. With a nil labels map every field
// is emitted under its code. Otherwise only the codes in labels are
// emitted, under their display keys, and each must be present in raw.
// index is the record's position in the pass, used for error context.
func ProjectRecord(appID string, index int, raw RawRecord, labels map[string]string) (endpoint.Record, error) {
	if labels == nil {
		out := make(endpoint.Record, len(raw))
		for code, field := range raw {
			out[code] = field.Value
		}
		return out, nil
	}

	out := make(endpoint.Record, len(labels))
	for code, display := range labels {
		field, ok := raw[code]
		if !ok {
			return nil, &MissingFieldError{AppID: appID, FieldKey: code, RecordIndex: index}
		}
		out[display] = field.Value
	}
	return out, nil
}

// recordIterator projects record batches lazily, one record per Next.
type recordIterator struct {
	pages  *RecordPages
	labels map[string]string
	appID  string
	limit  int64

	batch   []RawRecord
	pos     int
	index   int
	emitted int64
	current endpoint.Record
	err     error
	done    bool
}

var _ endpoint.Iterator[endpoint.Record] = (*recordIterator)(nil)

func newRecordIterator(appID string, pages *RecordPages, labels map[string]string, limit int64) *recordIterator {
	return &recordIterator{
		pages:  pages,
		labels: labels,
		appID:  appID,
		limit:  limit,
	}
}

func (it *recordIterator) Next() bool {
	if it.done {
		return false
	}
	if it.limit > 0 && it.emitted >= it.limit {
		it.finish()
		return false
	}

	for it.pos >= len(it.batch) {
		if !it.pages.Next() {
			it.err = it.pages.Err()
			it.finish()
			return false
		}
		it.batch = it.pages.Value()
		it.pos = 0
	}

	rec, err := ProjectRecord(it.appID, it.index, it.batch[it.pos], it.labels)
	if err != nil {
		it.err = err
		it.pages.metrics.RequestFailed(it.appID, errorKind(err))
		it.finish()
		return false
	}

	it.pos++
	it.index++
	it.emitted++
	it.current = rec
	it.pages.metrics.RecordsEmitted(it.appID, 1)
	return true
}

func (it *recordIterator) Value() endpoint.Record {
	return it.current
}

func (it *recordIterator) Err() error {
	return it.err
}

func (it *recordIterator) Close() error {
	it.finish()
	return nil
}

func (it *recordIterator) finish() {
	if it.done {
		return
	}
	it.done = true
	it.current = nil
	it.batch = nil
	_ = it.pages.Close()
}
