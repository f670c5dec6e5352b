package builder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// ErrUnknownContent is returned when decoding an operand with an unknown tag.
var ErrUnknownContent = errors.New("unknown operand content")

// operandJSON is the flat document form written by the builder UI.
type operandJSON struct {
	Content         string          `json:"content"`
	Brackets        int             `json:"brackets"`
	FtsDict         string          `json:"ftsDict,omitempty"`
	AttributeID     *string         `json:"attributeId,omitempty"`
	AttributeIndex  int             `json:"attributeIndex,omitempty"`
	AttributeNested int             `json:"attributeNested,omitempty"`
	AttributeIDNm   *string         `json:"attributeIdNm,omitempty"`
	Value           json.RawMessage `json:"value,omitempty"`
	CollectionID    string          `json:"collectionId,omitempty"`
	ColumnID        string          `json:"columnId,omitempty"`
	FieldID         string          `json:"fieldId,omitempty"`
	PresetID        string          `json:"presetId,omitempty"`
	RoleID          string          `json:"roleId,omitempty"`
	VariableID      string          `json:"variableId,omitempty"`
	NowOffset       int64           `json:"nowOffset,omitempty"`
	Query           *Query          `json:"query,omitempty"`
	QueryAggregator *string         `json:"queryAggregator,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (o Operand) MarshalJSON() ([]byte, error) {
	doc := operandJSON{Brackets: o.Brackets, FtsDict: o.FtsDict}
	if o.Content == nil {
		// an empty operand is a null literal
		doc.Content = ContentValue
		return json.Marshal(doc)
	}
	doc.Content = o.Content.Tag()

	var err error
	switch c := o.Content.(type) {
	case Attribute:
		doc.AttributeID = &c.AttributeID
		doc.AttributeIndex = c.Index
		doc.AttributeNested = c.Nested
		doc.AttributeIDNm = c.AttributeIDNm
	case Value:
		doc.Value, err = json.Marshal(c.Value)
	case Collection:
		doc.CollectionID, doc.ColumnID = c.CollectionID, c.ColumnID
	case Field:
		doc.FieldID = c.FieldID
	case SubQuery:
		q := c.Query
		doc.Query = &q
		doc.QueryAggregator = c.Aggregator
		doc.AttributeID = &c.AttributeID
		doc.AttributeIndex = c.AttributeIndex
	case Preset:
		doc.PresetID = c.PresetID
	case Role:
		doc.RoleID = c.RoleID
	case Variable:
		doc.VariableID = c.VariableID
	case Script:
		doc.Value, err = json.Marshal(c.Text)
	case Now:
		doc.NowOffset = c.Offset
	case Builtin:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownContent, o.Content)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Operand) UnmarshalJSON(data []byte) error {
	var doc operandJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	out := Operand{Brackets: doc.Brackets, FtsDict: doc.FtsDict}

	switch doc.Content {
	case ContentAttribute:
		out.Content = Attribute{
			AttributeID:   deref(doc.AttributeID),
			Index:         doc.AttributeIndex,
			Nested:        doc.AttributeNested,
			AttributeIDNm: doc.AttributeIDNm,
		}
	case ContentValue:
		v, err := decodeValue(doc.Value)
		if err != nil {
			return err
		}
		out.Content = Value{Value: v}
	case ContentCollection:
		out.Content = Collection{CollectionID: doc.CollectionID, ColumnID: doc.ColumnID}
	case ContentField, ContentFieldChanged, ContentFieldValid:
		out.Content = Field{FieldID: doc.FieldID, Kind: FieldKind(doc.Content)}
	case ContentSubQuery:
		var q Query
		if doc.Query != nil {
			q = *doc.Query
		}
		out.Content = SubQuery{
			Query:          q,
			Aggregator:     doc.QueryAggregator,
			AttributeID:    deref(doc.AttributeID),
			AttributeIndex: doc.AttributeIndex,
		}
	case ContentPreset:
		out.Content = Preset{PresetID: doc.PresetID}
	case ContentRole:
		out.Content = Role{RoleID: doc.RoleID}
	case ContentVariable:
		out.Content = Variable{VariableID: doc.VariableID}
	case ContentJavascript:
		var text string
		if len(doc.Value) != 0 {
			if err := json.Unmarshal(doc.Value, &text); err != nil {
				return fmt.Errorf("javascript operand value must be a string: %w", err)
			}
		}
		out.Content = Script{Text: text}
	case ContentNowDate, ContentNowDatetime, ContentNowTime:
		out.Content = Now{Kind: NowKind(doc.Content), Offset: doc.NowOffset}
	default:
		if !slices.Contains(builtins, Builtin(doc.Content)) {
			return fmt.Errorf("%w: %q", ErrUnknownContent, doc.Content)
		}
		out.Content = Builtin(doc.Content)
	}

	*o = out
	return nil
}

// decodeValue keeps numbers as json.Number so literals pass through unchanged.
func decodeValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
