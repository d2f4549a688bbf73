package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// =============================================================================
// PAGINATION STRATEGIES
// =============================================================================

// Paginator handles API pagination.
type Paginator interface {
	// FirstPage returns the request for the first page.
	FirstPage() *Request

	// NextPage returns the request for the next page, or nil if done.
	NextPage(ctx context.Context, resp *Response) (*Request, error)
}

// =============================================================================
// TOTAL-COUNT OFFSET PAGINATION
// =============================================================================

// StopOnExactRemainder decides the boundary where the records left from the
// current offset equal the page size exactly. The page just fetched already
// holds them, so the walk stops instead of asking for an empty trailing page.
const StopOnExactRemainder = true

// PageCursor is the client-tracked position of an offset-paged listing.
// It is a value: every walk starts from its own zero-offset cursor.
type PageCursor struct {
	Offset   int
	PageSize int
}

// Advance returns the cursor following c given the total count reported by
// the response for c. ok is false when c was the last page.
func (c PageCursor) Advance(total int) (next PageCursor, ok bool) {
	return c.advance(total, StopOnExactRemainder)
}

func (c PageCursor) advance(total int, stopOnExact bool) (PageCursor, bool) {
	remaining := total - c.Offset
	next := PageCursor{Offset: c.Offset + c.PageSize, PageSize: c.PageSize}
	switch {
	case remaining > c.PageSize:
		return next, true
	case remaining == c.PageSize && !stopOnExact:
		return next, true
	default:
		return PageCursor{}, false
	}
}

// TotalCountPaginator pages an endpoint that reports only a total count.
// The offset lives in a query directive ("limit N offset M") rather than in
// dedicated parameters. Create one per walk; it is not safe to share.
type TotalCountPaginator struct {
	Path        string
	Params      url.Values // static parameters sent with every page
	Condition   string     // optional filter/order clause placed before the directive
	QueryKey    string     // query param name (default: "query")
	QueryFormat string     // directive format (default: "limit %d offset %d")
	TotalKey    string     // JSON key of the total count (default: "totalCount")

	cursor PageCursor
	total  int
	pages  int
}

// NewTotalCountPaginator creates a paginator positioned at offset zero.
func NewTotalCountPaginator(path string, params url.Values, pageSize int) *TotalCountPaginator {
	return &TotalCountPaginator{
		Path:        path,
		Params:      params,
		QueryKey:    "query",
		QueryFormat: "limit %d offset %d",
		TotalKey:    "totalCount",
		cursor:      PageCursor{Offset: 0, PageSize: pageSize},
	}
}

// Cursor returns the position of the page most recently requested.
func (p *TotalCountPaginator) Cursor() PageCursor {
	return p.cursor
}

// Total returns the total count reported by the latest response.
func (p *TotalCountPaginator) Total() int {
	return p.total
}

// Pages returns the number of responses consumed so far.
func (p *TotalCountPaginator) Pages() int {
	return p.pages
}

// FirstPage returns the request for the current cursor.
func (p *TotalCountPaginator) FirstPage() *Request {
	query := url.Values{}
	for k, v := range p.Params {
		query[k] = append([]string(nil), v...)
	}
	directive := fmt.Sprintf(p.QueryFormat, p.cursor.PageSize, p.cursor.Offset)
	if cond := strings.TrimSpace(p.Condition); cond != "" {
		directive = cond + " " + directive
	}
	query.Set(p.QueryKey, directive)
	return &Request{
		Method: "GET",
		Path:   p.Path,
		Query:  query,
	}
}

// NextPage re-reads the total count from resp and returns the next request.
func (p *TotalCountPaginator) NextPage(ctx context.Context, resp *Response) (*Request, error) {
	var data map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	total, err := parseCount(data[p.TotalKey])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.TotalKey, err)
	}
	p.total = total
	p.pages++

	next, ok := p.cursor.Advance(total)
	if !ok {
		return nil, nil
	}
	p.cursor = next
	return p.FirstPage(), nil
}

// parseCount accepts the count as a JSON string ("1200") or number.
func parseCount(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("missing from response")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("invalid count %q", s)
		}
		return n, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("invalid count %s", string(raw))
	}
	return n, nil
}

// =============================================================================
// PAGE ITERATOR
// =============================================================================

// PageIterator fetches one page per Next call and exposes it as a batch.
// A first page is always fetched, so an empty listing yields one empty batch.
type PageIterator[T any] struct {
	ctx          context.Context
	client       *Client
	paginator    Paginator
	parseResults func(resp *Response) ([]T, error)

	current     []T
	nextRequest *Request
	done        bool
	err         error
}

// NewPageIterator creates a page iterator starting at the paginator's first page.
func NewPageIterator[T any](
	ctx context.Context,
	client *Client,
	paginator Paginator,
	parseResults func(resp *Response) ([]T, error),
) *PageIterator[T] {
	return &PageIterator[T]{
		ctx:          ctx,
		client:       client,
		paginator:    paginator,
		parseResults: parseResults,
		nextRequest:  paginator.FirstPage(),
	}
}

// Next fetches the next page. It returns false when done or on error.
func (it *PageIterator[T]) Next() bool {
	if it.done || it.nextRequest == nil {
		return false
	}

	resp, err := it.client.Do(it.ctx, it.nextRequest)
	if err != nil {
		it.fail(err)
		return false
	}

	results, err := it.parseResults(resp)
	if err != nil {
		it.fail(err)
		return false
	}

	nextReq, err := it.paginator.NextPage(it.ctx, resp)
	if err != nil {
		it.fail(err)
		return false
	}

	it.current = results
	it.nextRequest = nextReq
	return true
}

// Value returns the current page.
func (it *PageIterator[T]) Value() []T {
	return it.current
}

// Err returns any error encountered.
func (it *PageIterator[T]) Err() error {
	return it.err
}

// Close stops the iteration.
func (it *PageIterator[T]) Close() error {
	it.done = true
	it.current = nil
	return nil
}

func (it *PageIterator[T]) fail(err error) {
	it.err = err
	it.done = true
	it.current = nil
}
