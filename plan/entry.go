package plan

import (
	"encoding/json"
	"fmt"
)

// EntryType is the PlanEntry discriminator carried over the wire.
type EntryType string

const (
	EntryTypeSourceDefinition EntryType = "source_definition"
	EntryTypeLoad             EntryType = "load"
	EntryTypeTransform        EntryType = "transform"
	EntryTypeExport           EntryType = "export"
)

// Entry is the tagged-variant in-process representation of a PlanEntry
// (DESIGN NOTES §9: "dict-as-step" re-architected as a tagged variant with a
// single to_json/from_json boundary). Exactly one of SourceDef/Load/
// Transform/Export is non-nil, selected by Type.
type Entry struct {
	ID        string
	Type      EntryType
	DependsOn []string

	SourceDef *SourceEntry
	Load      *LoadEntry
	Transform *TransformEntry
	Export    *ExportEntry

	// LineNumber is provenance for error messages; not part of the wire format.
	LineNumber int
}

type SourceEntry struct {
	Name                 string
	SourceConnectorType  string
	ProfileConnectorName string
	IsFromProfile        bool
	SyncMode             SyncMode
	CursorField          string
	PrimaryKey           []string
	Params               map[string]interface{}

	// SetupSQL, if non-empty, is executed against the SQL engine before the
	// source is registered (e.g. creating a staging schema).
	SetupSQL string

	// ValidationRules are declarative checks run against the resolved
	// configuration after setup; each rule's "type" key selects the check.
	ValidationRules []map[string]interface{}
}

type LoadEntry struct {
	SourceName          string
	TargetTable         string
	SourceConnectorType string
	Mode                LoadMode
	UpsertKeys          []string
}

type TransformEntry struct {
	TargetTable string
	SQLQuery    string
	IsReplace   bool
}

type ExportEntry struct {
	SourceTable         string
	SourceConnectorType string
	SQLQuery            string
	DestinationURI      string
	Options             map[string]interface{}
}

// wireEntry matches the canonical PlanEntry JSON shape of spec §6.5.
type wireEntry struct {
	ID                   string                 `json:"id"`
	Type                 EntryType              `json:"type"`
	DependsOn            []string               `json:"depends_on"`
	Name                 string                 `json:"name,omitempty"`
	SourceConnectorType  string                 `json:"source_connector_type,omitempty"`
	ProfileConnectorName string                 `json:"profile_connector_name,omitempty"`
	IsFromProfile        bool                   `json:"is_from_profile,omitempty"`
	SyncMode             SyncMode               `json:"sync_mode,omitempty"`
	CursorField          string                 `json:"cursor_field,omitempty"`
	PrimaryKey           []string               `json:"primary_key,omitempty"`
	SourceName           string                 `json:"source_name,omitempty"`
	TargetTable          string                 `json:"target_table,omitempty"`
	Mode                 LoadMode               `json:"mode,omitempty"`
	UpsertKeys           []string               `json:"upsert_keys,omitempty"`
	IsReplace            bool                   `json:"is_replace,omitempty"`
	SourceTable          string                   `json:"source_table,omitempty"`
	Query                interface{}              `json:"query,omitempty"`
	SetupSQL             string                   `json:"setup_sql,omitempty"`
	ValidationRules      []map[string]interface{} `json:"validation_rules,omitempty"`
}

// ToJSON serializes e using the canonical per-type `query` payload shape.
func (e *Entry) ToJSON() ([]byte, error) {
	w := wireEntry{ID: e.ID, Type: e.Type, DependsOn: e.DependsOn}
	if w.DependsOn == nil {
		w.DependsOn = []string{}
	}

	switch e.Type {
	case EntryTypeSourceDefinition:
		s := e.SourceDef
		w.Name = s.Name
		w.SourceConnectorType = s.SourceConnectorType
		w.ProfileConnectorName = s.ProfileConnectorName
		w.IsFromProfile = s.IsFromProfile
		w.SyncMode = s.SyncMode
		w.CursorField = s.CursorField
		w.PrimaryKey = s.PrimaryKey
		w.Query = s.Params
		w.SetupSQL = s.SetupSQL
		w.ValidationRules = s.ValidationRules
	case EntryTypeLoad:
		l := e.Load
		w.Name = l.TargetTable
		w.SourceName = l.SourceName
		w.TargetTable = l.TargetTable
		w.SourceConnectorType = l.SourceConnectorType
		w.Mode = l.Mode
		w.UpsertKeys = l.UpsertKeys
		w.Query = map[string]interface{}{"source_name": l.SourceName, "table_name": l.TargetTable}
	case EntryTypeTransform:
		t := e.Transform
		w.Name = t.TargetTable
		w.IsReplace = t.IsReplace
		// A transform's query is flat SQL text, not a nested object, unlike
		// the other entry types' structured query payloads.
		w.Query = t.SQLQuery
	case EntryTypeExport:
		x := e.Export
		w.SourceTable = x.SourceTable
		w.SourceConnectorType = x.SourceConnectorType
		w.Query = map[string]interface{}{
			"sql_query":        x.SQLQuery,
			"destination_uri":  x.DestinationURI,
			"options":          x.Options,
			"type":             x.SourceConnectorType,
		}
	default:
		return nil, fmt.Errorf("plan: unknown entry type %q", e.Type)
	}

	return json.Marshal(w)
}

// FromJSON reconstructs an Entry from its canonical wire representation.
func FromJSON(data []byte) (*Entry, error) {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}

	e := &Entry{ID: w.ID, Type: w.Type, DependsOn: w.DependsOn}
	queryMap, _ := w.Query.(map[string]interface{})

	switch w.Type {
	case EntryTypeSourceDefinition:
		params, _ := queryMap["params"].(map[string]interface{})
		if params == nil {
			params = queryMap
		}
		e.SourceDef = &SourceEntry{
			Name:                 w.Name,
			SourceConnectorType:  w.SourceConnectorType,
			ProfileConnectorName: w.ProfileConnectorName,
			IsFromProfile:        w.IsFromProfile,
			SyncMode:             w.SyncMode,
			CursorField:          w.CursorField,
			PrimaryKey:           w.PrimaryKey,
			Params:               params,
			SetupSQL:             w.SetupSQL,
			ValidationRules:      w.ValidationRules,
		}
	case EntryTypeLoad:
		e.Load = &LoadEntry{
			SourceName:          w.SourceName,
			TargetTable:         w.TargetTable,
			SourceConnectorType: w.SourceConnectorType,
			Mode:                w.Mode,
			UpsertKeys:          w.UpsertKeys,
		}
	case EntryTypeTransform:
		// A transform's query is flat SQL text, not a nested object.
		sql, _ := w.Query.(string)
		e.Transform = &TransformEntry{
			TargetTable: w.Name,
			SQLQuery:    sql,
			IsReplace:   w.IsReplace,
		}
	case EntryTypeExport:
		sqlQuery, _ := queryMap["sql_query"].(string)
		destURI, _ := queryMap["destination_uri"].(string)
		options, _ := queryMap["options"].(map[string]interface{})
		e.Export = &ExportEntry{
			SourceTable:         w.SourceTable,
			SourceConnectorType: w.SourceConnectorType,
			SQLQuery:            sqlQuery,
			DestinationURI:      destURI,
			Options:             options,
		}
	default:
		return nil, fmt.Errorf("plan: unknown entry type %q", w.Type)
	}

	return e, nil
}
