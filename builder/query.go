package builder

import (
	clone "github.com/huandu/go-clone"
)

type (
	// Query is the builder-side description of a relational query: a source
	// relation, the joins reachable from it, filters, orders and limits.
	Query struct {
		RelationID string   `json:"relationId"`
		Joins      []Join   `json:"joins"`
		Filters    []Filter `json:"filters"`
		Orders     []Order  `json:"orders"`
		Lookups    []Lookup `json:"lookups"`
		Choices    []Choice `json:"choices"`
		FixedLimit int      `json:"fixedLimit"`
	}

	// Order sorts the result by an attribute of a join.
	Order struct {
		AttributeID string `json:"attributeId"`
		Index       int    `json:"index"`
		Ascending   bool   `json:"ascending"`
	}

	// Lookup names a unique index used to find existing records of a join.
	Lookup struct {
		Index     int    `json:"index"`
		PgIndexID string `json:"pgIndexId"`
	}

	// Choice is a named, user selectable filter set applied on top of the
	// query filters.
	Choice struct {
		ID      string   `json:"id"`
		Name    string   `json:"name"`
		Filters []Filter `json:"filters"`
	}
)

// NewQuery creates a query on the given source relation. The source join
// permits all record mutations.
func NewQuery(relationID string) Query {
	return Query{
		RelationID: relationID,
		Joins: []Join{{
			Index:       0,
			IndexFrom:   -1,
			RelationID:  relationID,
			Connector:   JoinTypeInner,
			ApplyCreate: true,
			ApplyUpdate: true,
			ApplyDelete: true,
		}},
	}
}

// Clone returns a deep copy of the query.
func (q Query) Clone() Query {
	return clone.Clone(q).(Query)
}

// Join returns the join with the given index.
func (q Query) Join(index int) (Join, bool) {
	for _, j := range q.Joins {
		if j.Index == index {
			return j, true
		}
	}
	return Join{}, false
}

// Choice returns the choice with the given id.
func (q Query) Choice(id string) (Choice, bool) {
	for _, c := range q.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

func cloneFilters(filters []Filter) []Filter {
	if filters == nil {
		return nil
	}
	return clone.Clone(filters).([]Filter)
}
