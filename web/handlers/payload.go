package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/xcono/relquery/builder"
	"github.com/xcono/relquery/schema"
)

// maxBodySize limits request documents.
const maxBodySize = 4 << 20

// Payload is the body of resolve and sql requests.
type Payload struct {
	Query   builder.Query    `json:"query"`
	Columns []builder.Column `json:"columns"`
	Context Snapshot         `json:"context"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
	// ChoiceID selects one of the query choices, empty for none.
	ChoiceID string `json:"choiceId"`
}

// Request builds the execution request of the payload.
func (p Payload) Request(ctx *builder.Context) (*builder.Request, error) {
	return builder.BuildChoiceRequest(p.Query, p.ChoiceID, p.Columns, ctx, p.Limit, p.Offset)
}

// Snapshot is the serializable runtime state filters resolve against.
type Snapshot struct {
	Fields        map[string]any `json:"fields"`
	FieldsChanged []string       `json:"fieldsChanged"`
	FieldsInvalid []string       `json:"fieldsInvalid"`

	LoginID      int64    `json:"loginId"`
	LanguageCode string   `json:"languageCode"`
	RoleIDs      []string `json:"roleIds"`

	// Records maps join indexes to their loaded record id.
	Records         map[int]int64 `json:"records"`
	RecordMayCreate bool          `json:"recordMayCreate"`
	RecordMayUpdate bool          `json:"recordMayUpdate"`
	RecordMayDelete bool          `json:"recordMayDelete"`

	GlobalSearch     string `json:"globalSearch"`
	GlobalSearchDict string `json:"globalSearchDict"`

	Collections           map[string][]map[string]any `json:"collections"`
	CollectionIndexFilter map[string]int              `json:"collectionIndexFilter"`
	Variables             map[string]any              `json:"variables"`
	Presets               map[string]int64            `json:"presets"`
}

// Context converts the snapshot into a resolver context.
func (s Snapshot) Context(catalog schema.Catalog, evaluator builder.Evaluator) *builder.Context {
	records := make(map[int]builder.JoinRecord, len(s.Records))
	for index, id := range s.Records {
		records[index] = builder.JoinRecord{RecordID: id}
	}

	return &builder.Context{
		Catalog:               catalog,
		JoinIndexMap:          records,
		Fields:                s.Fields,
		FieldsChanged:         s.FieldsChanged,
		FieldsInvalid:         s.FieldsInvalid,
		RecordMayCreate:       s.RecordMayCreate,
		RecordMayUpdate:       s.RecordMayUpdate,
		RecordMayDelete:       s.RecordMayDelete,
		GlobalSearch:          s.GlobalSearch,
		GlobalSearchDict:      s.GlobalSearchDict,
		CollectionIndexFilter: s.CollectionIndexFilter,
		Collections:           builder.MapCollections(s.Collections),
		Variables:             builder.MapVariables(s.Variables),
		Presets:               builder.MapPresets(s.Presets),
		Evaluator:             evaluator,
		Session: builder.Session{
			LoginID:      s.LoginID,
			LanguageCode: s.LanguageCode,
			RoleIDs:      s.RoleIDs,
		},
	}
}

// decodeBody decodes a JSON request body, keeping numbers as json.Number.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// isClientError reports errors caused by the request document.
func isClientError(err error) bool {
	for _, target := range []error{
		builder.ErrBracketMismatch,
		builder.ErrUnknownOperator,
		builder.ErrMissingDictionary,
		builder.ErrUnknownChoice,
		builder.ErrExpression,
		builder.ErrUnknownRelation,
		builder.ErrUnknownAttribute,
		builder.ErrUnsupportedOperator,
		builder.ErrUnsupportedAggregator,
		builder.ErrUnsupportedFlavor,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
