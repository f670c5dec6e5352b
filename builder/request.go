package builder

import (
	"errors"
	"fmt"

	"github.com/xcono/relquery/schema"
)

type (
	// Request is the query execution request consumed by the backend.
	Request struct {
		RelationID  string           `json:"relationId"`
		Joins       []RequestJoin    `json:"joins"`
		Expressions []Expression     `json:"expressions"`
		Filters     []ResolvedFilter `json:"filters"`
		Orders      []Order          `json:"orders"`
		Limit       int              `json:"limit"`
		Offset      int              `json:"offset"`
	}

	// RequestJoin is a join of the request. The source join is never sent.
	RequestJoin struct {
		AttributeID string   `json:"attributeId"`
		Index       int      `json:"index"`
		IndexFrom   int      `json:"indexFrom"`
		Connector   JoinType `json:"connector"`
	}

	// Expression is a result column. Sub-query columns carry Query and
	// aggregate inside it; their own Aggregator stays nil.
	Expression struct {
		AttributeID *string  `json:"attributeId,omitempty"`
		Index       int      `json:"index"`
		Aggregator  *string  `json:"aggregator"`
		GroupBy     bool     `json:"groupBy"`
		Distincted  bool     `json:"distincted"`
		Query       *Request `json:"query,omitempty"`
	}

	// ResolvedFilter is a filter row with both sides resolved.
	ResolvedFilter struct {
		Connector string          `json:"connector"`
		Operator  string          `json:"operator"`
		Index     int             `json:"index"`
		Side0     ResolvedOperand `json:"side0"`
		Side1     ResolvedOperand `json:"side1"`
	}

	// ResolvedOperand holds only what the backend reads: an attribute
	// reference, a value or a sub-query, plus grouping brackets.
	ResolvedOperand struct {
		AttributeID     *string  `json:"attributeId,omitempty"`
		AttributeIndex  int      `json:"attributeIndex"`
		AttributeNested int      `json:"attributeNested"`
		AttributeIDNm   *string  `json:"attributeIdNm,omitempty"`
		Brackets        int      `json:"brackets"`
		Value           any      `json:"value,omitempty"`
		FtsDict         *string  `json:"ftsDict,omitempty"`
		Query           *Request `json:"query,omitempty"`
	}
)

// RequestJoins converts builder joins to request joins, dropping the
// source join.
func RequestJoins(joins []Join) []RequestJoin {
	out := make([]RequestJoin, 0, len(joins))
	for _, j := range joins {
		if j.Index == 0 || j.AttributeID == nil {
			continue
		}
		out = append(out, RequestJoin{
			AttributeID: *j.AttributeID,
			Index:       j.Index,
			IndexFrom:   j.IndexFrom,
			Connector:   j.Connector,
		})
	}
	return out
}

// ErrUnknownChoice is returned when a request names a choice the query
// does not define.
var ErrUnknownChoice = errors.New("unknown choice")

// BuildRequest validates the query filters and converts the query and
// its result columns into a request. This is a save-time operation: it
// resolves and encapsulates every filter set exactly once.
func BuildRequest(q Query, columns []Column, ctx *Context, limit, offset int) (*Request, error) {
	return BuildChoiceRequest(q, "", columns, ctx, limit, offset)
}

// BuildChoiceRequest is BuildRequest with the filters of the selected
// choice added. The query filters and the choice filters are encapsulated
// as separate sets, so a choice always narrows the query result. An empty
// choiceID selects no choice.
func BuildChoiceRequest(q Query, choiceID string, columns []Column, ctx *Context, limit, offset int) (*Request, error) {
	if ctx == nil {
		ctx = &Context{}
	}

	var choice []Filter
	if choiceID != "" {
		c, ok := q.Choice(choiceID)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownChoice, choiceID)
		}
		choice = c.Filters
	}

	if err := validateRequest(q.Filters, choice, columns, ctx.Catalog); err != nil {
		return nil, err
	}

	r := newResolver(ctx)

	filters, err := r.filters(q.Filters, 0)
	if err != nil {
		return nil, err
	}

	if len(choice) != 0 {
		extra, err := r.filters(choice, 0)
		if err != nil {
			return nil, fmt.Errorf("choice %q: %w", choiceID, err)
		}
		filters = append(filters, extra...)
	}

	expressions, err := r.columns(columns)
	if err != nil {
		return nil, err
	}

	return &Request{
		RelationID:  q.RelationID,
		Joins:       RequestJoins(q.Joins),
		Expressions: expressions,
		Filters:     filters,
		Orders:      append([]Order{}, q.Orders...),
		Limit:       limit,
		Offset:      offset,
	}, nil
}

// validateRequest checks every filter set that ends up in the request:
// the query filters, the choice filters and those of sub-query columns.
func validateRequest(filters, choice []Filter, columns []Column, catalog schema.Catalog) error {
	if err := ValidateFilters(filters, catalog); err != nil {
		return err
	}
	if err := ValidateFilters(choice, catalog); err != nil {
		return fmt.Errorf("choice: %w", err)
	}
	for i, c := range columns {
		if !c.SubQuery || c.Query == nil {
			continue
		}
		if err := ValidateFilters(c.Query.Filters, catalog); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
	}
	return nil
}
