package builder

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/xcono/relquery/schema"
)

type (
	// CollectionLookup reads column values of client side collections.
	// With wantSet the values of all (or the filtered) rows are returned,
	// otherwise the first value only. indexFilter < 0 means no row filter.
	CollectionLookup interface {
		CollectionValue(collectionID, columnID string, wantSet bool, indexFilter int) (any, bool)
	}

	// VariableStore reads local and global variable values.
	VariableStore interface {
		Variable(variableID string) (any, bool)
	}

	// PresetLookup returns the materialized record id of a preset.
	PresetLookup interface {
		PresetRecordID(presetID string) (int64, bool)
	}

	// Evaluator evaluates expression text of script operands.
	Evaluator interface {
		Evaluate(text string, vars map[string]any) (any, error)
	}

	// Session is the caller identity.
	Session struct {
		LoginID      int64
		LanguageCode string
		RoleIDs      []string
	}

	// JoinRecord is the record currently loaded for a join index.
	JoinRecord struct {
		RecordID int64
	}

	// Context bundles the runtime state filters resolve against. All
	// lookups are read only; nil lookups resolve to neutral defaults.
	Context struct {
		Catalog schema.Catalog

		JoinIndexMap map[int]JoinRecord

		Fields        map[string]any
		FieldsChanged []string
		FieldsInvalid []string

		RecordMayCreate bool
		RecordMayUpdate bool
		RecordMayDelete bool

		GlobalSearch     string
		GlobalSearchDict string

		CollectionIndexFilter map[string]int
		Collections           CollectionLookup
		Variables             VariableStore
		Presets               PresetLookup
		Evaluator             Evaluator

		Session Session

		// Now defaults to time.Now.
		Now func() time.Time
	}
)

func (c *Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Context) fieldChanged(id string) bool {
	return slices.Contains(c.FieldsChanged, id)
}

func (c *Context) fieldInvalid(id string) bool {
	return slices.Contains(c.FieldsInvalid, id)
}

func (c *Context) indexFilter(collectionID string) int {
	if i, ok := c.CollectionIndexFilter[collectionID]; ok {
		return i
	}
	return -1
}

// scriptVars is the environment handed to the evaluator.
func (c *Context) scriptVars() map[string]any {
	fields := make(map[string]any, len(c.Fields))
	for k, v := range c.Fields {
		fields[k] = plainNumber(v)
	}

	var recordID int64
	if r, ok := c.JoinIndexMap[0]; ok {
		recordID = r.RecordID
	}

	roles := c.Session.RoleIDs
	if roles == nil {
		roles = []string{}
	}

	return map[string]any{
		"fields":       fields,
		"login":        c.Session.LoginID,
		"languageCode": c.Session.LanguageCode,
		"roles":        roles,
		"recordId":     recordID,
		"formChanged":  len(c.FieldsChanged) != 0,
		"globalSearch": c.GlobalSearch,
	}
}

// plainNumber converts decoded JSON numbers to int64 or float64.
func plainNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

type (
	// MapCollections is a CollectionLookup over collection rows.
	MapCollections map[string][]map[string]any

	// MapVariables is a VariableStore over a value map.
	MapVariables map[string]any

	// MapPresets is a PresetLookup over a record id map.
	MapPresets map[string]int64
)

// CollectionValue implements CollectionLookup.
func (m MapCollections) CollectionValue(collectionID, columnID string, wantSet bool, indexFilter int) (any, bool) {
	rows, ok := m[collectionID]
	if !ok {
		return nil, false
	}
	if indexFilter >= 0 {
		if indexFilter >= len(rows) {
			rows = nil
		} else {
			rows = rows[indexFilter : indexFilter+1]
		}
	}

	if wantSet {
		values := make([]any, 0, len(rows))
		for _, row := range rows {
			if v, ok := row[columnID]; ok {
				values = append(values, v)
			}
		}
		return values, true
	}

	if len(rows) == 0 {
		return nil, true
	}
	v, ok := rows[0][columnID]
	return v, ok
}

// Variable implements VariableStore.
func (m MapVariables) Variable(variableID string) (any, bool) {
	v, ok := m[variableID]
	return v, ok
}

// PresetRecordID implements PresetLookup.
func (m MapPresets) PresetRecordID(presetID string) (int64, bool) {
	v, ok := m[presetID]
	return v, ok
}
