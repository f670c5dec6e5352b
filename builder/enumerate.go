package builder

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xcono/relquery/schema"
)

// ErrInvalidNestedIndexAttributeID is returned for malformed nested keys.
var ErrInvalidNestedIndexAttributeID = errors.New("invalid nested index attribute id")

// NestedIndexAttributeID identifies an attribute of a join at a nesting
// level. Level 0 is the outermost query, every sub-query adds one.
type NestedIndexAttributeID struct {
	Nesting     int
	Index       int
	AttributeID string
}

// String returns the "{nesting}_{index}_{attributeId}" key.
func (n NestedIndexAttributeID) String() string {
	return fmt.Sprintf("%d_%d_%s", n.Nesting, n.Index, n.AttributeID)
}

// ParseNestedIndexAttributeID parses a key produced by String.
func ParseNestedIndexAttributeID(key string) (NestedIndexAttributeID, error) {
	parts := strings.SplitN(key, "_", 3)
	if len(parts) != 3 {
		return NestedIndexAttributeID{}, fmt.Errorf("%w: %q", ErrInvalidNestedIndexAttributeID, key)
	}

	nesting, err := strconv.Atoi(parts[0])
	if err != nil || nesting < 0 {
		return NestedIndexAttributeID{}, fmt.Errorf("%w: bad nesting in %q", ErrInvalidNestedIndexAttributeID, key)
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil || index < 0 {
		return NestedIndexAttributeID{}, fmt.Errorf("%w: bad index in %q", ErrInvalidNestedIndexAttributeID, key)
	}
	if _, err := uuid.Parse(parts[2]); err != nil {
		return NestedIndexAttributeID{}, fmt.Errorf("%w: bad attribute id in %q", ErrInvalidNestedIndexAttributeID, key)
	}

	return NestedIndexAttributeID{Nesting: nesting, Index: index, AttributeID: parts[2]}, nil
}

// EnumerateNestedIndexAttributeIDs lists the key of every attribute of
// every joined relation at the given nesting level, in join order.
// Encrypted attributes cannot be filtered or sorted server side and are
// skipped unless includeEncrypted is set. Joins on unknown relations
// contribute nothing.
func EnumerateNestedIndexAttributeIDs(catalog schema.Catalog, joins []Join, nesting int, includeEncrypted bool) []string {
	out := make([]string, 0)
	for _, j := range joins {
		relation, ok := catalog.Relation(j.RelationID)
		if !ok {
			continue
		}
		for _, a := range relation.Attributes {
			if a.Encrypted && !includeEncrypted {
				continue
			}
			out = append(out, NestedIndexAttributeID{Nesting: nesting, Index: j.Index, AttributeID: a.ID}.String())
		}
	}
	return out
}

// EnumerateAncestorIndexAttributeIDs enumerates the joins of a query and
// all its ancestors, levels[i] being the joins at nesting level i, so
// sub-query filters can reference outer query attributes.
func EnumerateAncestorIndexAttributeIDs(catalog schema.Catalog, levels [][]Join, includeEncrypted bool) []string {
	out := make([]string, 0)
	for nesting, joins := range levels {
		out = append(out, EnumerateNestedIndexAttributeIDs(catalog, joins, nesting, includeEncrypted)...)
	}
	return out
}

// InvalidReferences returns the keys of filter and order attribute
// references that no enumerated attribute matches anymore, for example
// after a join was removed. ancestors holds the joins of the enclosing
// queries, outermost first. Sub-query filters and the attribute a
// sub-query projects are checked one level deeper.
func (q Query) InvalidReferences(catalog schema.Catalog, ancestors [][]Join) []string {
	levels := append(append([][]Join{}, ancestors...), q.Joins)
	nesting := len(levels) - 1

	valid := make(map[string]bool)
	for _, key := range EnumerateAncestorIndexAttributeIDs(catalog, levels, true) {
		valid[key] = true
	}

	var invalid []string
	check := func(key NestedIndexAttributeID) {
		if !valid[key.String()] {
			invalid = append(invalid, key.String())
		}
	}

	for _, f := range q.Filters {
		for _, side := range []Operand{f.Side0, f.Side1} {
			switch c := side.Content.(type) {
			case Attribute:
				if c.AttributeID == "" {
					continue
				}
				check(NestedIndexAttributeID{Nesting: c.Nested, Index: c.Index, AttributeID: c.AttributeID})
			case SubQuery:
				if c.AttributeID != "" {
					projected := NestedIndexAttributeID{Nesting: len(levels), Index: c.AttributeIndex, AttributeID: c.AttributeID}
					if !slices.Contains(EnumerateNestedIndexAttributeIDs(catalog, c.Query.Joins, len(levels), true), projected.String()) {
						invalid = append(invalid, projected.String())
					}
				}
				invalid = append(invalid, c.Query.InvalidReferences(catalog, levels)...)
			}
		}
	}

	for _, o := range q.Orders {
		check(NestedIndexAttributeID{Nesting: nesting, Index: o.Index, AttributeID: o.AttributeID})
	}

	return invalid
}
