package kintone

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/url"
	"sort"
)

// Synthetic schema entries present in every app schema.
const (
	FieldRecordID       = "$id"
	FieldRecordRevision = "$revision"
)

// ApplicationSchema maps display keys (field code or label) to fragments.
// Keys keep insertion order so that marshalling is reproducible.
type ApplicationSchema struct {
	keys      []string
	fields    map[string]SchemaFragment
	synthetic map[string]bool
}

// NewApplicationSchema returns a schema seeded with the record id and
// revision entries.
func NewApplicationSchema() *ApplicationSchema {
	s := &ApplicationSchema{
		fields:    make(map[string]SchemaFragment),
		synthetic: make(map[string]bool),
	}
	for _, name := range []string{FieldRecordID, FieldRecordRevision} {
		s.keys = append(s.keys, name)
		s.fields[name] = syntheticFragment(name)
		s.synthetic[name] = true
	}
	return s
}

// Set stores f under key. An existing non-synthetic entry is replaced in
// place and replaced is true. Synthetic entries are never overwritten; ok
// is false in that case.
func (s *ApplicationSchema) Set(key string, f SchemaFragment) (replaced, ok bool) {
	if s.synthetic[key] {
		return false, false
	}
	if _, exists := s.fields[key]; exists {
		s.fields[key] = f
		return true, true
	}
	s.keys = append(s.keys, key)
	s.fields[key] = f
	return false, true
}

// Get returns the fragment stored under key.
func (s *ApplicationSchema) Get(key string) (SchemaFragment, bool) {
	f, ok := s.fields[key]
	return f, ok
}

// Keys returns display keys in insertion order.
func (s *ApplicationSchema) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Len returns the number of entries, synthetic ones included.
func (s *ApplicationSchema) Len() int {
	return len(s.keys)
}

// LabelMap inverts DataLabel: field code to display key.
func (s *ApplicationSchema) LabelMap() map[string]string {
	m := make(map[string]string, len(s.keys))
	for _, key := range s.keys {
		m[s.fields[key].DataLabel] = key
	}
	return m
}

// MarshalJSON writes the entries as an object in insertion order.
func (s *ApplicationSchema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(s.fields[key])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// BuildSchema converts form field definitions into an ApplicationSchema.
// Disabled fields are skipped. Fields are visited in code order, so when two
// labels collide the field with the greater code wins. Any unmapped type
// fails the whole build.
func BuildSchema(appID string, props map[string]FieldProperty, includeLabel bool, types TypeMapper) (*ApplicationSchema, error) {
	codes := make([]string, 0, len(props))
	for code := range props {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	schema := NewApplicationSchema()
	for _, code := range codes {
		prop := props[code]
		if prop.IsDisabled() {
			continue
		}

		fragment, ok := types.Lookup(prop.Type)
		if !ok {
			return nil, &SchemaMappingError{AppID: appID, FieldKey: code, Tag: prop.Type}
		}
		fragment.DataLabel = code

		key := code
		if includeLabel && prop.Label != "" {
			key = prop.Label
		}

		replaced, ok := schema.Set(key, fragment)
		switch {
		case !ok:
			log.Printf("kintone: app %s field %s shadows built-in %s, keeping built-in", appID, code, key)
		case replaced:
			log.Printf("kintone: app %s label %q is shared, field %s replaces the earlier entry", appID, key, code)
		}
	}
	return schema, nil
}

// DiscoverSchema fetches the app's form fields and builds its schema.
func (c *Connector) DiscoverSchema(ctx context.Context, appID string) (*ApplicationSchema, error) {
	props, err := c.fetchFormFields(ctx, appID)
	if err != nil {
		return nil, err
	}
	schema, err := BuildSchema(appID, props, c.config.IncludeLabel, c.types)
	if err != nil {
		c.metrics.RequestFailed(appID, errorKind(err))
		return nil, err
	}
	return schema, nil
}

func (c *Connector) fetchFormFields(ctx context.Context, appID string) (map[string]FieldProperty, error) {
	s := formStream{appID: appID, lang: c.config.Lang}
	resp, err := c.Client.Get(ctx, c.apiPath(s.path()), s.params())
	if err != nil {
		c.metrics.RequestFailed(appID, "remote")
		log.Printf("kintone: app %s form fields: %v", appID, err)
		return nil, wrapRemote(appID, "form fields", err)
	}

	var body formFieldsResponse
	if err := resp.JSON(&body); err != nil {
		return nil, &RemoteRequestError{AppID: appID, Op: "form fields", Err: err}
	}
	return body.Properties, nil
}

// formStream is the single-call form field listing.
type formStream struct {
	appID string
	lang  string
}

func (s formStream) path() string { return "app/form/fields.json" }

func (s formStream) params() url.Values {
	return url.Values{"app": {s.appID}, "lang": {s.lang}}
}
