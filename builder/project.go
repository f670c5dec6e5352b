package builder

// Aggregators understood by the backend.
const (
	AggArray = "array"
	AggAvg   = "avg"
	AggCount = "count"
	AggJSON  = "json"
	AggList  = "list"
	AggMax   = "max"
	AggMin   = "min"
	AggSum   = "sum"
)

// Column is a result column of a query, either an attribute of a join or
// a sub-query returning one attribute.
type Column struct {
	AttributeID string  `json:"attributeId"`
	Index       int     `json:"index"`
	Aggregator  *string `json:"aggregator,omitempty"`
	GroupBy     bool    `json:"groupBy"`
	Distincted  bool    `json:"distincted"`
	SubQuery    bool    `json:"subQuery"`
	Query       *Query  `json:"query,omitempty"`
}

// ProjectColumns converts columns to request expressions. The filters of
// sub-query columns are resolved against ctx, and the column aggregator is
// applied inside the sub-query.
func ProjectColumns(columns []Column, ctx *Context) ([]Expression, error) {
	if ctx == nil {
		ctx = &Context{}
	}
	return newResolver(ctx).columns(columns)
}

func (r *resolver) columns(columns []Column) ([]Expression, error) {
	out := make([]Expression, 0, len(columns))
	for _, c := range columns {
		id := c.AttributeID

		if !c.SubQuery || c.Query == nil {
			out = append(out, Expression{
				AttributeID: &id,
				Index:       c.Index,
				Aggregator:  c.Aggregator,
				GroupBy:     c.GroupBy,
				Distincted:  c.Distincted,
			})
			continue
		}

		inner := Expression{
			AttributeID: &id,
			Index:       c.Index,
			Aggregator:  c.Aggregator,
			GroupBy:     c.GroupBy,
			Distincted:  c.Distincted,
		}
		q, err := r.subRequest(*c.Query, []Expression{inner}, 1)
		if err != nil {
			return nil, err
		}
		out = append(out, Expression{
			Index:      c.Index,
			GroupBy:    c.GroupBy,
			Distincted: c.Distincted,
			Query:      q,
		})
	}
	return out, nil
}
