package builder

import (
	"errors"
	"fmt"
	"slices"

	"github.com/xcono/relquery/schema"
)

// Filter operators
const (
	OpEQ          = "="           // equals
	OpNEQ         = "<>"          // not equals
	OpLT          = "<"           // less than
	OpGT          = ">"           // greater than
	OpLTE         = "<="          // less than or equal
	OpGTE         = ">="          // greater than or equal
	OpLike        = "LIKE"        // case-sensitive pattern matching
	OpILike       = "ILIKE"       // case-insensitive pattern matching
	OpNotLike     = "NOT LIKE"    // negated LIKE
	OpNotILike    = "NOT ILIKE"   // negated ILIKE
	OpIsNull      = "IS NULL"     // side1 is ignored
	OpIsNotNull   = "IS NOT NULL" // side1 is ignored
	OpAny         = "= ANY"       // in set
	OpAll         = "<> ALL"      // not in set
	OpContains    = "@>"          // array contains
	OpContainedBy = "<@"          // array is contained by
	OpOverlap     = "&&"          // arrays overlap
	OpFullText    = "@@"          // full-text match
)

// Logical connectors
const (
	LogAnd = "AND"
	LogOr  = "OR"
)

// Operators lists every supported filter operator.
var Operators = []string{
	OpEQ, OpNEQ, OpLT, OpGT, OpLTE, OpGTE,
	OpLike, OpILike, OpNotLike, OpNotILike,
	OpIsNull, OpIsNotNull, OpAny, OpAll,
	OpContains, OpContainedBy, OpOverlap, OpFullText,
}

var (
	ErrBracketMismatch   = errors.New("filter brackets do not match")
	ErrUnknownOperator   = errors.New("unknown filter operator")
	ErrMissingDictionary = errors.New("full-text filter requires a dictionary")
)

// Filter is one boolean comparison row. Index scopes the row to a join;
// base filters use index 0.
type Filter struct {
	Connector string  `json:"connector"`
	Operator  string  `json:"operator"`
	Index     int     `json:"index"`
	Side0     Operand `json:"side0"`
	Side1     Operand `json:"side1"`
}

// IsSetOperator reports operators whose right side is a set of values.
// Collection operands resolve to all rows for these operators.
func IsSetOperator(op string) bool {
	return op == OpAny || op == OpAll
}

// IsNullOperator reports operators that take no right side.
func IsNullOperator(op string) bool {
	return op == OpIsNull || op == OpIsNotNull
}

// IsValidOperator reports whether op is a supported operator.
func IsValidOperator(op string) bool {
	return slices.Contains(Operators, op)
}

// NewFilter creates the default filter row for a join index.
func NewFilter(index int) Filter {
	return Filter{
		Connector: LogAnd,
		Operator:  OpEQ,
		Index:     index,
		Side0:     AttributeOperand("", index),
		Side1:     ValueOperand(""),
	}
}

// AddFilter returns a copy of filters with a new default row appended.
func AddFilter(filters []Filter, index int) []Filter {
	return append(cloneFilters(filters), NewFilter(index))
}

// RemoveFilter returns a copy of filters without the given row.
func RemoveFilter(filters []Filter, row int) []Filter {
	out := cloneFilters(filters)
	if row < 0 || row >= len(out) {
		return out
	}
	return append(out[:row], out[row+1:]...)
}

// SetBrackets returns a copy of filters with the bracket count of one side
// of a row replaced. Negative counts are clamped to zero.
func SetBrackets(filters []Filter, row, side, n int) []Filter {
	out := cloneFilters(filters)
	if row < 0 || row >= len(out) {
		return out
	}
	n = max(n, 0)
	if side == 0 {
		out[row].Side0.Brackets = n
	} else {
		out[row].Side1.Brackets = n
	}
	return out
}

// BracketBalance sums the opening (side0) and closing (side1) brackets.
func BracketBalance(filters []Filter) (opening, closing int) {
	for _, f := range filters {
		opening += f.Side0.Brackets
		closing += f.Side1.Brackets
	}
	return opening, closing
}

// ValidateFilters checks a filter set before it may be applied: brackets
// must balance, operators must be known and full-text rows need a
// dictionary. Sub-query filter sets are checked the same way. The catalog
// may be nil.
func ValidateFilters(filters []Filter, catalog schema.Catalog) error {
	if opening, closing := BracketBalance(filters); opening != closing {
		return fmt.Errorf("%w: %d opening, %d closing", ErrBracketMismatch, opening, closing)
	}

	for i, f := range filters {
		if !IsValidOperator(f.Operator) {
			return fmt.Errorf("%w: %q in row %d", ErrUnknownOperator, f.Operator, i)
		}
		if f.Operator == OpFullText && !hasDictionary(f, catalog) {
			return fmt.Errorf("%w: row %d", ErrMissingDictionary, i)
		}
		for _, side := range []Operand{f.Side0, f.Side1} {
			sq, ok := side.Content.(SubQuery)
			if !ok {
				continue
			}
			if err := ValidateFilters(sq.Query.Filters, catalog); err != nil {
				return fmt.Errorf("sub query in row %d: %w", i, err)
			}
		}
	}
	return nil
}

// ApplyFilters validates the filter set and returns a copy safe to store.
func ApplyFilters(filters []Filter, catalog schema.Catalog) ([]Filter, error) {
	if err := ValidateFilters(filters, catalog); err != nil {
		return nil, err
	}
	return cloneFilters(filters), nil
}

// hasDictionary reports whether a full-text row can be matched: the text
// side selects a dictionary, is the global search, or the attribute's
// full-text index uses the simple dictionary.
func hasDictionary(f Filter, catalog schema.Catalog) bool {
	for _, pair := range [][2]Operand{{f.Side0, f.Side1}, {f.Side1, f.Side0}} {
		attr, text := pair[0], pair[1]
		a, ok := attr.Content.(Attribute)
		if !ok {
			continue
		}
		if text.FtsDict != "" || isBuiltin(text, GlobalSearch) {
			return true
		}
		if catalog == nil {
			continue
		}
		meta, ok := catalog.Attribute(a.AttributeID)
		if !ok {
			continue
		}
		relation, ok := catalog.Relation(meta.RelationID)
		if !ok {
			continue
		}
		if idx, ok := relation.FullTextIndex(a.AttributeID); ok && idx.Dictionary == schema.DictionarySimple {
			return true
		}
	}
	return false
}

func isBuiltin(o Operand, b Builtin) bool {
	got, ok := o.Content.(Builtin)
	return ok && got == b
}
