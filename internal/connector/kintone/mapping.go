package kintone

import (
	"encoding/json"
	"fmt"
)

// TypeList is a JSON-Schema "type" keyword. A single type marshals as a
// bare string, several as an array.
type TypeList []string

func (t TypeList) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

func (t *TypeList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = TypeList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("type keyword: %w", err)
	}
	*t = many
	return nil
}

// Nullable reports whether "null" is one of the types.
func (t TypeList) Nullable() bool {
	for _, v := range t {
		if v == "null" {
			return true
		}
	}
	return false
}

// Primary returns the first non-null type.
func (t TypeList) Primary() string {
	for _, v := range t {
		if v != "null" {
			return v
		}
	}
	return "null"
}

// SchemaFragment is the JSON-Schema description of one field.
// DataLabel always holds the field code, so the origin stays recoverable
// when the fragment is keyed by label.
type SchemaFragment struct {
	Type                 TypeList        `json:"type"`
	Format               string          `json:"format,omitempty"`
	AirbyteType          string          `json:"airbyte_type,omitempty"`
	AirbyteFormat        string          `json:"airbyte_format,omitempty"`
	Items                *SchemaFragment `json:"items,omitempty"`
	AdditionalProperties *bool           `json:"additionalProperties,omitempty"`
	DataLabel            string          `json:"data_label,omitempty"`
}

func (f SchemaFragment) clone() SchemaFragment {
	out := f
	out.Type = append(TypeList(nil), f.Type...)
	if f.Items != nil {
		items := f.Items.clone()
		out.Items = &items
	}
	if f.AdditionalProperties != nil {
		v := *f.AdditionalProperties
		out.AdditionalProperties = &v
	}
	return out
}

// TypeMapper resolves a kintone field type tag to a schema fragment.
type TypeMapper interface {
	Lookup(tag string) (SchemaFragment, bool)
}

// TypeTable is a fixed TypeMapper. Lookups return copies.
type TypeTable map[string]SchemaFragment

// Lookup returns a copy of the fragment for tag.
func (t TypeTable) Lookup(tag string) (SchemaFragment, bool) {
	f, ok := t[tag]
	if !ok {
		return SchemaFragment{}, false
	}
	return f.clone(), true
}

var (
	nullableString  = SchemaFragment{Type: TypeList{"null", "string"}}
	nullableInteger = SchemaFragment{Type: TypeList{"null", "integer"}}
	nullableObject  = SchemaFragment{Type: TypeList{"null", "object"}, AdditionalProperties: boolPtr(true)}
	stringArray     = SchemaFragment{Type: TypeList{"null", "array"}, Items: &SchemaFragment{Type: TypeList{"string"}}}
	nullableArray   = SchemaFragment{Type: TypeList{"null", "array"}, Items: &SchemaFragment{Type: TypeList{"null", "string"}}}
	timestampTZ     = SchemaFragment{Type: TypeList{"null", "string"}, Format: "date-time", AirbyteType: "timestamp_with_timezone"}
)

// DefaultTypeTable returns the mapping for every kintone field type the
// form and record APIs report.
func DefaultTypeTable() TypeTable {
	return TypeTable{
		"__ID__":       nullableInteger,
		"__REVISION__": nullableInteger,

		"RECORD_NUMBER": nullableInteger,
		"CREATOR":       nullableObject,
		"MODIFIER":      nullableObject,
		"CREATED_TIME":  timestampTZ,
		"UPDATED_TIME":  timestampTZ,

		"SINGLE_LINE_TEXT": nullableString,
		"NUMBER":           {Type: TypeList{"null", "number", "string"}},
		"CALC":             nullableString,
		"MULTI_LINE_TEXT":  nullableString,
		"RICH_TEXT":        nullableString,
		"LINK":             nullableString,

		"CHECK_BOX":    stringArray,
		"RADIO_BUTTON": nullableString,
		"DROP_DOWN":    nullableString,
		"MULTI_SELECT": stringArray,

		"FILE": nullableArray,
		"DATE": {Type: TypeList{"null", "string"}, Format: "date", AirbyteType: "string", AirbyteFormat: "%Y-%m-%d"},
		"TIME": {Type: TypeList{"null", "string"}, AirbyteType: "time_without_timezone"},

		"DATETIME": timestampTZ,

		"USER_SELECT":         nullableObject,
		"ORGANIZATION_SELECT": nullableArray,
		"GROUP_SELECT":        nullableArray,

		"CATEGORY":        nullableArray,
		"STATUS":          nullableString,
		"STATUS_ASSIGNEE": nullableObject,
		"SUBTABLE":        nullableArray,
		"REFERENCE_TABLE": nullableObject,
	}
}

// syntheticFragment is the fragment of the "$id" and "$revision" entries.
func syntheticFragment(name string) SchemaFragment {
	f := nullableString.clone()
	f.DataLabel = name
	return f
}

func boolPtr(v bool) *bool { return &v }
