package kintone

import (
	"context"
	"log"
	"net/url"

	"github.com/nucleus/ucl-kintone/internal/connector/http"
	"github.com/nucleus/ucl-kintone/internal/observability"
)

// recordStream is the offset-paged record listing of one app.
type recordStream struct {
	appID     string
	condition string
	pageSize  int
}

func (s recordStream) path() string { return "records.json" }

func (s recordStream) params() url.Values {
	return url.Values{"app": {s.appID}, "totalCount": {"true"}}
}

// paginator starts a fresh walk at offset zero. Every walk owns its cursor.
func (s recordStream) paginator(apiPath string) *http.TotalCountPaginator {
	p := http.NewTotalCountPaginator(apiPath, s.params(), s.pageSize)
	p.Condition = s.condition
	return p
}

func parseRecords(resp *http.Response) ([]RawRecord, error) {
	var body recordsResponse
	if err := resp.JSON(&body); err != nil {
		return nil, err
	}
	return body.Records, nil
}

// RecordPages is a lazy, finite sequence of record batches for one app.
// It cannot be restarted; call FetchAllRecords again for a new pass.
type RecordPages struct {
	appID     string
	paginator *http.TotalCountPaginator
	it        *http.PageIterator[RawRecord]
	metrics   observability.Metrics

	offset int
	err    error
}

// FetchAllRecords starts a paging pass over the app's records.
// The first Next always issues a request, so an empty app yields one
// empty batch.
func (c *Connector) FetchAllRecords(ctx context.Context, appID string) *RecordPages {
	s := recordStream{appID: appID, condition: c.config.Query, pageSize: c.config.PageSize}
	p := s.paginator(c.apiPath(s.path()))
	return &RecordPages{
		appID:     appID,
		paginator: p,
		it:        http.NewPageIterator(ctx, c.Client, p, parseRecords),
		metrics:   c.metrics,
	}
}

// Next fetches the next batch.
func (r *RecordPages) Next() bool {
	offset := r.paginator.Cursor().Offset
	if !r.it.Next() {
		if err := r.it.Err(); err != nil && r.err == nil {
			log.Printf("kintone: app %s records at offset %d: %v", r.appID, offset, err)
			r.err = wrapRemote(r.appID, "records", err)
			r.metrics.RequestFailed(r.appID, errorKind(r.err))
		}
		return false
	}
	r.offset = offset
	batch := r.it.Value()
	r.metrics.PageFetched(r.appID, len(batch))
	log.Printf("kintone: app %s page offset=%d records=%d total=%d", r.appID, offset, len(batch), r.paginator.Total())
	return true
}

// Value returns the current batch.
func (r *RecordPages) Value() []RawRecord {
	return r.it.Value()
}

// Offset returns the offset the current batch was requested at.
func (r *RecordPages) Offset() int {
	return r.offset
}

// Total returns the record count reported by the latest response.
func (r *RecordPages) Total() int {
	return r.paginator.Total()
}

// Pages returns the number of batches fetched so far.
func (r *RecordPages) Pages() int {
	return r.paginator.Pages()
}

// Err returns the first failure, classified as *RemoteRequestError or
// *RateLimitError.
func (r *RecordPages) Err() error {
	return r.err
}

// Close stops the pass.
func (r *RecordPages) Close() error {
	return r.it.Close()
}

// CountRecords returns the app's current record count with a one-record
// listing call.
func (c *Connector) CountRecords(ctx context.Context, datasetID string) (int64, error) {
	appID := resolveAppID(datasetID)
	s := recordStream{appID: appID, condition: c.config.Query, pageSize: 1}
	p := s.paginator(c.apiPath(s.path()))

	resp, err := c.Client.Do(ctx, p.FirstPage())
	if err != nil {
		c.metrics.RequestFailed(appID, "remote")
		return 0, wrapRemote(appID, "count", err)
	}
	if _, err := p.NextPage(ctx, resp); err != nil {
		return 0, &RemoteRequestError{AppID: appID, Op: "count", Err: err}
	}
	return int64(p.Total()), nil
}
