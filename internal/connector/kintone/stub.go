package kintone

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"

	khttp "github.com/nucleus/ucl-kintone/internal/connector/http"
)

// Stub credentials accepted by StubServer.
const (
	StubUsername = "stub-user"
	StubPassword = "stub-pass"
	StubAPIToken = "stub-token"
)

// StubServer hosts an in-memory kintone API for tests (no network listeners).
// It serves apps.json, space.json, app/form/fields.json and records.json
// under both the public and guest space roots, and records the query of
// every records.json call.
type StubServer struct {
	mu          sync.Mutex
	apps        map[string]*stubApp
	appOrder    []string
	spaces      map[string]bool
	rateLimited bool
	queries     map[string][]string
	calls       map[string]int

	handler   http.Handler
	transport http.RoundTripper
	baseURL   string
}

type stubApp struct {
	app     App
	fields  map[string]FieldProperty
	records []RawRecord
	total   func(call int) int
}

// NewStubServer constructs an empty stub without binding to a port.
func NewStubServer() *StubServer {
	s := &StubServer{
		apps:    map[string]*stubApp{},
		spaces:  map[string]bool{},
		queries: map[string][]string{},
		calls:   map[string]int{},
		baseURL: "https://stub.cybozu.local",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.handler = mux
	s.transport = &stubRoundTripper{handler: mux}
	return s
}

// URL returns the stub base URL (no network listener is used).
func (s *StubServer) URL() string {
	return s.baseURL
}

// Transport returns a RoundTripper that serves requests in-process.
func (s *StubServer) Transport() http.RoundTripper {
	return s.transport
}

// Close is a no-op kept for symmetry with server-backed stubs.
func (s *StubServer) Close() {}

// AddApp registers an app. spaceID may be empty for apps outside spaces.
func (s *StubServer) AddApp(appID, name, spaceID string, fields map[string]FieldProperty, records []RawRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app := App{AppID: appID, Name: name}
	if spaceID != "" {
		id := spaceID
		app.SpaceID = &id
	}
	if _, exists := s.apps[appID]; !exists {
		s.appOrder = append(s.appOrder, appID)
	}
	s.apps[appID] = &stubApp{app: app, fields: fields, records: records}
}

// SetTotalCount overrides the totalCount reported on the n-th (zero based)
// records.json call of an app.
func (s *StubServer) SetTotalCount(appID string, total func(call int) int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if app, ok := s.apps[appID]; ok {
		app.total = total
	}
}

// SetSpaceReadable controls the space.json answer for a space id.
func (s *StubServer) SetSpaceReadable(spaceID string, readable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spaces[spaceID] = readable
}

// SetRateLimited makes every call answer 403 REQUEST_LIMIT_EXCEEDED.
func (s *StubServer) SetRateLimited(limited bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimited = limited
}

// Queries returns the query parameter of every records.json call for an app.
func (s *StubServer) Queries(appID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries[appID]...)
}

// Calls returns how many times the named resource (e.g. "records.json") was requested.
func (s *StubServer) Calls(resource string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[resource]
}

var (
	guestPath      = regexp.MustCompile(`^/k/guest/\d+/v1/`)
	pageDirective  = regexp.MustCompile(`limit (\d+) offset (\d+)\s*$`)
	stubAuthHeader = khttp.HeaderCybozuAuthorization
)

func (s *StubServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rateLimited {
		writeJSON(w, http.StatusForbidden, []map[string]string{{"errorCode": khttp.CodeRequestLimitExceeded, "message": "API call limit exceeded"}})
		return
	}
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "CB_AU01", "id": "stub", "message": DescribeErrorCode("CB_AU01")})
		return
	}

	resource := guestPath.ReplaceAllString(r.URL.Path, "/k/v1/")
	resource = strings.TrimPrefix(resource, "/k/v1/")
	s.calls[resource]++

	q := r.URL.Query()
	switch resource {
	case "apps.json":
		s.handleApps(w, q)
	case "space.json":
		if s.spaces[q.Get("id")] {
			writeJSON(w, http.StatusOK, map[string]any{"id": q.Get("id"), "isGuest": false})
			return
		}
		writeJSON(w, http.StatusForbidden, map[string]string{"code": "CB_NO02", "id": "stub", "message": DescribeErrorCode("CB_NO02")})
	case "app/form/fields.json":
		app, ok := s.apps[q.Get("app")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"code": "GAIA_AP01", "id": "stub", "message": "app not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"properties": app.fields, "revision": "1"})
	case "records.json":
		s.handleRecords(w, q)
	default:
		http.NotFound(w, r)
	}
}

func (s *StubServer) authorized(r *http.Request) bool {
	if tokens := r.Header.Get(khttp.HeaderCybozuAPIToken); tokens != "" {
		for _, t := range strings.Split(tokens, ",") {
			if t == StubAPIToken {
				return true
			}
		}
		return false
	}
	want := khttp.CybozuPassword{Username: StubUsername, Password: StubPassword}
	probe, _ := http.NewRequest(http.MethodGet, s.baseURL, nil)
	want.Apply(probe)
	return r.Header.Get(stubAuthHeader) == probe.Header.Get(stubAuthHeader)
}

func (s *StubServer) handleApps(w http.ResponseWriter, q map[string][]string) {
	limit, offset := 100, 0
	if v := first(q["limit"]); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	if v := first(q["offset"]); v != "" {
		offset, _ = strconv.Atoi(v)
	}

	apps := []App{}
	for i := offset; i < len(s.appOrder) && i < offset+limit; i++ {
		apps = append(apps, s.apps[s.appOrder[i]].app)
	}
	writeJSON(w, http.StatusOK, map[string]any{"apps": apps})
}

func (s *StubServer) handleRecords(w http.ResponseWriter, q map[string][]string) {
	appID := first(q["app"])
	app, ok := s.apps[appID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "GAIA_AP01", "id": "stub", "message": "app not found"})
		return
	}

	query := first(q["query"])
	call := len(s.queries[appID])
	s.queries[appID] = append(s.queries[appID], query)

	m := pageDirective.FindStringSubmatch(query)
	if m == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "CB_VA01", "id": "stub", "message": DescribeErrorCode("CB_VA01")})
		return
	}
	limit, _ := strconv.Atoi(m[1])
	offset, _ := strconv.Atoi(m[2])

	page := []RawRecord{}
	for i := offset; i < len(app.records) && i < offset+limit; i++ {
		page = append(page, app.records[i])
	}
	total := len(app.records)
	if app.total != nil {
		total = app.total(call)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records":    page,
		"totalCount": strconv.Itoa(total),
	})
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StubRecords builds n records with "$id", "$revision" and the given
// field values. value(i, code) returns the value of field code in record i.
func StubRecords(n int, fields map[string]string, value func(i int, code string) any) []RawRecord {
	records := make([]RawRecord, 0, n)
	for i := 0; i < n; i++ {
		rec := RawRecord{
			FieldRecordID:       {Type: "__ID__", Value: strconv.Itoa(i + 1)},
			FieldRecordRevision: {Type: "__REVISION__", Value: "1"},
		}
		for code, tag := range fields {
			rec[code] = FieldValue{Type: tag, Value: value(i, code)}
		}
		records = append(records, rec)
	}
	return records
}

type stubRoundTripper struct {
	handler http.Handler
}

func (rt *stubRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rr := httptest.NewRecorder()
	rt.handler.ServeHTTP(rr, req)
	res := rr.Result()
	res.Request = req
	return res, nil
}
