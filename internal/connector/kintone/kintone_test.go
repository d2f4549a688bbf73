package kintone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/ucl-kintone/internal/endpoint"
)

var stubFieldTags = map[string]string{"name": "SINGLE_LINE_TEXT", "amount": "NUMBER"}

func stubFields() map[string]FieldProperty {
	return map[string]FieldProperty{
		"name":   {Type: "SINGLE_LINE_TEXT", Code: "name", Label: "Name"},
		"amount": {Type: "NUMBER", Code: "amount", Label: "Amount"},
	}
}

func stubValue(i int, code string) any {
	if code == "amount" {
		return fmt.Sprint(i * 10)
	}
	return fmt.Sprintf("%s-%d", code, i)
}

// newStubConnector creates a connector wired to the stub with an app "7"
// holding n records.
func newStubConnector(t *testing.T, n int, mutate func(*Config)) (*Connector, *StubServer) {
	t.Helper()
	stub := NewStubServer()
	stub.AddApp("7", "Orders", "", stubFields(), StubRecords(n, stubFieldTags, stubValue))

	cfg := &Config{
		Domain:            stub.URL(),
		AppIDs:            []string{"7"},
		AuthType:          AuthType{Username: StubUsername, Password: StubPassword},
		RequestsPerSecond: 1000,
		Transport:         stub.Transport(),
	}
	if mutate != nil {
		mutate(cfg)
	}
	conn, err := New(cfg)
	require.NoError(t, err)
	return conn, stub
}

func drain(t *testing.T, it endpoint.Iterator[endpoint.Record]) []endpoint.Record {
	t.Helper()
	defer it.Close()
	var out []endpoint.Record
	for it.Next() {
		out = append(out, it.Value())
	}
	require.NoError(t, it.Err())
	return out
}

func TestFetchAllRecords_1200Records(t *testing.T) {
	conn, stub := newStubConnector(t, 1200, nil)

	pages := conn.FetchAllRecords(context.Background(), "7")
	defer pages.Close()

	var sizes, offsets []int
	for pages.Next() {
		sizes = append(sizes, len(pages.Value()))
		offsets = append(offsets, pages.Offset())
	}
	require.NoError(t, pages.Err())

	assert.Equal(t, []int{500, 500, 200}, sizes)
	assert.Equal(t, []int{0, 500, 1000}, offsets)
	assert.Equal(t, 1200, pages.Total())
	assert.Equal(t, 3, pages.Pages())
	assert.Equal(t, []string{"limit 500 offset 0", "limit 500 offset 500", "limit 500 offset 1000"}, stub.Queries("7"))
}

func TestFetchAllRecords_Empty(t *testing.T) {
	conn, stub := newStubConnector(t, 0, nil)

	pages := conn.FetchAllRecords(context.Background(), "7")
	require.True(t, pages.Next())
	assert.Empty(t, pages.Value())
	assert.False(t, pages.Next())
	require.NoError(t, pages.Err())
	assert.Len(t, stub.Queries("7"), 1)

	it, err := conn.ReadRecords(context.Background(), "7")
	require.NoError(t, err)
	assert.Empty(t, drain(t, it))
}

// Exactly one page of records stops after the first call.
func TestFetchAllRecords_ExactPageSize(t *testing.T) {
	conn, stub := newStubConnector(t, 500, nil)
	recs := drainPages(t, conn.FetchAllRecords(context.Background(), "7"))
	assert.Len(t, recs, 500)
	assert.Equal(t, []string{"limit 500 offset 0"}, stub.Queries("7"))

	conn, stub = newStubConnector(t, 1000, nil)
	recs = drainPages(t, conn.FetchAllRecords(context.Background(), "7"))
	assert.Len(t, recs, 1000)
	assert.Equal(t, []string{"limit 500 offset 0", "limit 500 offset 500"}, stub.Queries("7"))
}

func drainPages(t *testing.T, pages *RecordPages) []RawRecord {
	t.Helper()
	defer pages.Close()
	var out []RawRecord
	for pages.Next() {
		out = append(out, pages.Value()...)
	}
	require.NoError(t, pages.Err())
	return out
}

// Every pass owns its cursor: a second pass starts again at offset zero.
func TestFetchAllRecords_IndependentPasses(t *testing.T) {
	conn, stub := newStubConnector(t, 700, func(c *Config) { c.PageSize = 300 })

	first := conn.FetchAllRecords(context.Background(), "7")
	second := conn.FetchAllRecords(context.Background(), "7")
	require.True(t, first.Next())
	require.True(t, second.Next())
	assert.Equal(t, 0, second.Offset())
	assert.Len(t, drainPages(t, first), 300+100)

	assert.Len(t, drainPages(t, conn.FetchAllRecords(context.Background(), "7")), 700)
	assert.Equal(t, "limit 300 offset 0", stub.Queries("7")[0])
	assert.Equal(t, "limit 300 offset 0", stub.Queries("7")[1])
}

func TestFetchAllRecords_ConditionPrefix(t *testing.T) {
	conn, stub := newStubConnector(t, 3, func(c *Config) { c.Query = `amount > "0" order by $id asc` })
	drainPages(t, conn.FetchAllRecords(context.Background(), "7"))
	assert.Equal(t, []string{`amount > "0" order by $id asc limit 500 offset 0`}, stub.Queries("7"))
}

func TestFetchAllRecords_RateLimited(t *testing.T) {
	conn, stub := newStubConnector(t, 10, nil)
	stub.SetRateLimited(true)

	pages := conn.FetchAllRecords(context.Background(), "7")
	assert.False(t, pages.Next())

	var rateErr *RateLimitError
	require.ErrorAs(t, pages.Err(), &rateErr)
	assert.Equal(t, "7", rateErr.AppID)
	assert.Equal(t, 403, rateErr.StatusCode())

	var remoteErr *RemoteRequestError
	require.ErrorAs(t, pages.Err(), &remoteErr)
	assert.Equal(t, "REQUEST_LIMIT_EXCEEDED", remoteErr.Code())
}

func TestFetchAllRecords_RemoteError(t *testing.T) {
	conn, _ := newStubConnector(t, 10, func(c *Config) { c.AppIDs = []string{"404"} })

	pages := conn.FetchAllRecords(context.Background(), "404")
	assert.False(t, pages.Next())

	var remoteErr *RemoteRequestError
	require.ErrorAs(t, pages.Err(), &remoteErr)
	assert.Equal(t, 404, remoteErr.StatusCode())

	var rateErr *RateLimitError
	assert.False(t, errors.As(pages.Err(), &rateErr))
}

func TestReadRecords_CodeKeys(t *testing.T) {
	conn, _ := newStubConnector(t, 2, nil)

	it, err := conn.ReadRecords(context.Background(), "7")
	require.NoError(t, err)
	recs := drain(t, it)

	require.Len(t, recs, 2)
	assert.Equal(t, endpoint.Record{"$id": "1", "$revision": "1", "name": "name-0", "amount": "0"}, recs[0])
	assert.Equal(t, endpoint.Record{"$id": "2", "$revision": "1", "name": "name-1", "amount": "10"}, recs[1])
}

func TestReadRecords_LabelRoundTrip(t *testing.T) {
	conn, _ := newStubConnector(t, 3, func(c *Config) { c.IncludeLabel = true })
	ctx := context.Background()

	doc, err := conn.GetStreamSchema(ctx, "7")
	require.NoError(t, err)

	it, err := conn.ReadRecords(ctx, "7")
	require.NoError(t, err)
	recs := drain(t, it)
	require.Len(t, recs, 3)

	raw := StubRecords(3, stubFieldTags, stubValue)
	for _, label := range []string{"Name", "Amount"} {
		fragment, ok := doc.Properties.Get(label)
		require.True(t, ok, label)
		for i, rec := range recs {
			assert.Equal(t, raw[i][fragment.DataLabel].Value, rec[label])
		}
	}
	assert.NotContains(t, recs[0], "name")
}

func TestReadRecords_LabelModeMissingField(t *testing.T) {
	conn, stub := newStubConnector(t, 0, func(c *Config) { c.IncludeLabel = true })
	stub.AddApp("7", "Orders", "", stubFields(), []RawRecord{{"$id": {Value: "1"}, "$revision": {Value: "1"}, "name": {Value: "x"}}})

	it, err := conn.ReadRecords(context.Background(), "7")
	require.NoError(t, err)
	assert.False(t, it.Next())

	var missing *MissingFieldError
	require.ErrorAs(t, it.Err(), &missing)
	assert.Equal(t, "amount", missing.FieldKey)
}

func TestReadRecords_TotalShrinksMidPass(t *testing.T) {
	conn, stub := newStubConnector(t, 1200, nil)
	stub.SetTotalCount("7", func(call int) int {
		if call == 0 {
			return 1200
		}
		return 600
	})

	recs := drainPages(t, conn.FetchAllRecords(context.Background(), "7"))
	assert.Len(t, recs, 1000)
	assert.Len(t, stub.Queries("7"), 2)
}

func TestRead_Limit(t *testing.T) {
	conn, stub := newStubConnector(t, 1200, nil)

	it, err := conn.Read(context.Background(), &endpoint.ReadRequest{DatasetID: "PUBLIC_SPACE_APP_7", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, drain(t, it), 10)
	assert.Len(t, stub.Queries("7"), 1)
}

func TestCountRecords(t *testing.T) {
	conn, stub := newStubConnector(t, 1234, nil)

	n, err := conn.CountRecords(context.Background(), "PUBLIC_SPACE_APP_7")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), n)
	assert.Equal(t, []string{"limit 1 offset 0"}, stub.Queries("7"))
}

func TestConnector_GuestSpacePaths(t *testing.T) {
	conn, stub := newStubConnector(t, 2, func(c *Config) { c.GuestSpaceID = "5" })

	assert.Equal(t, "/k/guest/5/v1/records.json", conn.apiPath("records.json"))

	datasets, err := conn.ListDatasets(context.Background())
	require.NoError(t, err)
	require.Len(t, datasets, 1)
	assert.Equal(t, "GUEST_SPACE_5_APP_7", datasets[0].ID)

	it, err := conn.Read(context.Background(), &endpoint.ReadRequest{DatasetID: datasets[0].ID})
	require.NoError(t, err)
	assert.Len(t, drain(t, it), 2)
	assert.Equal(t, 1, stub.Calls("records.json"))
}

func TestConnector_APITokenAuth(t *testing.T) {
	conn, _ := newStubConnector(t, 1, func(c *Config) {
		c.AuthType = AuthType{Option: AuthAPIToken, APIToken: "other, " + StubAPIToken}
	})
	n, err := conn.CountRecords(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestConnector_GetSchema(t *testing.T) {
	conn, _ := newStubConnector(t, 0, func(c *Config) { c.IncludeLabel = true })

	schema, err := conn.GetSchema(context.Background(), "PUBLIC_SPACE_APP_7")
	require.NoError(t, err)
	require.Len(t, schema.Fields, 4)

	assert.Equal(t, "$id", schema.Fields[0].Name)
	assert.Equal(t, "Amount", schema.Fields[2].Name)
	assert.Equal(t, "number", schema.Fields[2].DataType)
	assert.Equal(t, "amount", schema.Fields[2].Comment)
	assert.True(t, schema.Fields[2].Nullable)
	assert.Equal(t, 3, schema.Fields[2].Position)
}

func TestConnector_StreamSchemaDocument(t *testing.T) {
	conn, _ := newStubConnector(t, 0, nil)

	doc, err := conn.GetStreamSchema(context.Background(), "7")
	require.NoError(t, err)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(raw, &parsed))

	assert.Equal(t, JSONSchemaDraft07, parsed["$schema"])
	assert.Equal(t, "object", parsed["type"])
	assert.Equal(t, true, parsed["additionalProperties"])
	props := parsed["properties"].(map[string]any)
	assert.Len(t, props, 4)
	assert.Equal(t, "name", props["name"].(map[string]any)["data_label"])
}

func TestConnector_UnknownFieldTypeFailsDiscovery(t *testing.T) {
	conn, stub := newStubConnector(t, 0, nil)
	fields := stubFields()
	fields["odd"] = FieldProperty{Type: "BOGUS_TYPE", Label: "Odd"}
	stub.AddApp("7", "Orders", "", fields, nil)

	doc, err := conn.GetStreamSchema(context.Background(), "7")
	assert.Nil(t, doc)
	var mapErr *SchemaMappingError
	require.ErrorAs(t, err, &mapErr)
	assert.Equal(t, "BOGUS_TYPE", mapErr.Tag)
}

func TestConnector_RegisteredFactory(t *testing.T) {
	stub := NewStubServer()
	ep, err := endpoint.DefaultRegistry().Create(TemplateID, map[string]any{
		"domain":   stub.URL(),
		"appIds":   []any{"7"},
		"authType": map[string]any{"option": "username_password", "username": StubUsername, "password": StubPassword},
	})
	require.NoError(t, err)
	defer ep.Close()

	assert.Equal(t, TemplateID, ep.ID())
	assert.True(t, ep.GetCapabilities().SupportsCountProbe)
	assert.Equal(t, "Cybozu", ep.GetDescriptor().Vendor)

	_, err = endpoint.DefaultRegistry().Create(TemplateID, map[string]any{"domain": stub.URL()})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestStreamNaming(t *testing.T) {
	assert.Equal(t, "PUBLIC_SPACE_APP_7", StreamName("", "7"))
	assert.Equal(t, "GUEST_SPACE_3_APP_7", StreamName("3", "7"))
	assert.Equal(t, "7", resolveAppID("GUEST_SPACE_3_APP_7"))
	assert.Equal(t, "7", resolveAppID("7"))
}

func TestReadSnapshot_LabelModeSingleDiscovery(t *testing.T) {
	conn, stub := newStubConnector(t, 3, func(c *Config) { c.IncludeLabel = true })

	schema, it, err := conn.ReadSnapshot(context.Background(), &endpoint.ReadRequest{DatasetID: StreamName("", "7")})
	require.NoError(t, err)
	records := drain(t, it)

	require.Len(t, records, 3)
	assert.Equal(t, 1, stub.Calls("app/form/fields.json"))

	fields := map[string]bool{}
	for _, f := range schema.Fields {
		fields[f.Name] = true
	}
	for _, key := range []string{FieldRecordID, FieldRecordRevision, "Name", "Amount"} {
		assert.True(t, fields[key], key)
	}
	for key := range records[0] {
		assert.True(t, fields[key], "record key %q not in schema", key)
	}

	doc, err := conn.GetStreamSchema(context.Background(), "7")
	require.NoError(t, err)
	var names []string
	for _, f := range schema.Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, doc.Properties.Keys(), names)
}

func TestReadSnapshot_UnknownApp(t *testing.T) {
	conn, _ := newStubConnector(t, 1, nil)

	_, _, err := conn.ReadSnapshot(context.Background(), &endpoint.ReadRequest{DatasetID: "PUBLIC_SPACE_APP_99"})
	var remote *RemoteRequestError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "99", remote.AppID)
}
