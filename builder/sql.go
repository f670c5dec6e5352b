package builder

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"
	"github.com/xcono/relquery/schema"
)

var (
	ErrUnknownRelation       = errors.New("unknown relation")
	ErrUnknownAttribute      = errors.New("unknown attribute")
	ErrUnsupportedOperator   = errors.New("operator not supported by flavor")
	ErrUnsupportedAggregator = errors.New("aggregator not supported")
	ErrUnsupportedFlavor     = errors.New("unsupported sql flavor")
)

// ParseFlavor maps a flavor name to a sqlbuilder flavor. The empty name
// selects MySQL.
func ParseFlavor(name string) (sqlbuilder.Flavor, error) {
	switch strings.ToLower(name) {
	case "", "mysql":
		return sqlbuilder.MySQL, nil
	case "postgres", "postgresql":
		return sqlbuilder.PostgreSQL, nil
	case "sqlite", "sqlite3":
		return sqlbuilder.SQLite, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFlavor, name)
	}
}

// SQL renders a request as a SELECT statement with bound arguments. Join
// level filters become part of the join condition, base filters form the
// WHERE clause and sub-queries are rendered as correlated sub-selects.
// Table aliases are t{nesting}_{joinIndex}.
func SQL(req *Request, catalog schema.Catalog, flavor sqlbuilder.Flavor) (string, []any, error) {
	r := &sqlRenderer{
		catalog: catalog,
		flavor:  flavor,
		aliases: make(map[int]*JoinAliasManager),
	}

	sb, err := r.selectBuilder(req, 0)
	if err != nil {
		return "", nil, err
	}

	query, args := sb.BuildWithFlavor(flavor)
	return query, args, nil
}

type sqlRenderer struct {
	catalog schema.Catalog
	flavor  sqlbuilder.Flavor
	aliases map[int]*JoinAliasManager
}

func (r *sqlRenderer) alias(nesting, index int) string {
	m, ok := r.aliases[nesting]
	if !ok {
		m = NewJoinAliasManager(fmt.Sprintf("t%d_", nesting))
		r.aliases[nesting] = m
	}
	return m.GetAlias(index)
}

func (r *sqlRenderer) relation(id string) (schema.Relation, error) {
	rel, ok := r.catalog.Relation(id)
	if !ok {
		return schema.Relation{}, fmt.Errorf("%w: %s", ErrUnknownRelation, id)
	}
	return rel, nil
}

func (r *sqlRenderer) attribute(id string) (schema.Attribute, error) {
	a, ok := r.catalog.Attribute(id)
	if !ok {
		return schema.Attribute{}, fmt.Errorf("%w: %s", ErrUnknownAttribute, id)
	}
	return a, nil
}

func (r *sqlRenderer) column(nesting, index int, attributeID string) (string, error) {
	a, err := r.attribute(attributeID)
	if err != nil {
		return "", err
	}
	return r.alias(nesting, index) + "." + a.Name, nil
}

func (r *sqlRenderer) selectBuilder(req *Request, nesting int) (*sqlbuilder.SelectBuilder, error) {
	source, err := r.relation(req.RelationID)
	if err != nil {
		return nil, err
	}

	sb := sqlbuilder.NewSelectBuilder()
	sb.From(sb.As(source.Name, r.alias(nesting, 0)))

	// Relation of each join index, for join conditions.
	relations := map[int]schema.Relation{0: source}

	for _, j := range req.Joins {
		from, ok := relations[j.IndexFrom]
		if !ok {
			return nil, fmt.Errorf("join %d: no join with index %d", j.Index, j.IndexFrom)
		}

		on, target, err := r.joinCondition(j, from, nesting)
		if err != nil {
			return nil, fmt.Errorf("join %d: %w", j.Index, err)
		}
		relations[j.Index] = target

		scoped := filtersFor(req.Filters, j.Index)
		if len(scoped) != 0 {
			cond, err := r.conditions(sb, scoped, nesting)
			if err != nil {
				return nil, fmt.Errorf("join %d: %w", j.Index, err)
			}
			on = append(on, "("+cond+")")
		}

		sb.JoinWithOption(j.Connector.ToSQLJoinOption(), sb.As(target.Name, r.alias(nesting, j.Index)), on...)
	}

	if err := r.selectExpressions(sb, req.Expressions, nesting); err != nil {
		return nil, err
	}

	if base := filtersFor(req.Filters, 0); len(base) != 0 {
		cond, err := r.conditions(sb, base, nesting)
		if err != nil {
			return nil, err
		}
		sb.Where(cond)
	}

	if len(req.Orders) != 0 {
		parts := make([]string, 0, len(req.Orders))
		for _, o := range req.Orders {
			col, err := r.column(nesting, o.Index, o.AttributeID)
			if err != nil {
				return nil, err
			}
			if o.Ascending {
				parts = append(parts, col+" ASC")
			} else {
				parts = append(parts, col+" DESC")
			}
		}
		sb.OrderBy(parts...)
	}

	if req.Limit > 0 {
		sb.Limit(req.Limit)
	}
	if req.Offset > 0 {
		sb.Offset(req.Offset)
	}

	return sb, nil
}

// joinCondition links a join to its parent through the relationship
// attribute, following it outside-in when it is declared on the target.
func (r *sqlRenderer) joinCondition(j RequestJoin, from schema.Relation, nesting int) ([]string, schema.Relation, error) {
	a, err := r.attribute(j.AttributeID)
	if err != nil {
		return nil, schema.Relation{}, err
	}

	targetID, outsideIn, ok := JoinTarget(a, from.ID)
	if !ok {
		return nil, schema.Relation{}, fmt.Errorf("attribute %s is not a relationship", a.Name)
	}
	target, err := r.relation(targetID)
	if err != nil {
		return nil, schema.Relation{}, err
	}

	parent := r.alias(nesting, j.IndexFrom)
	child := r.alias(nesting, j.Index)
	if outsideIn {
		return []string{fmt.Sprintf("%s.%s = %s.%s", child, a.Name, parent, from.PrimaryKeyName())}, target, nil
	}
	return []string{fmt.Sprintf("%s.%s = %s.%s", parent, a.Name, child, target.PrimaryKeyName())}, target, nil
}

func (r *sqlRenderer) selectExpressions(sb *sqlbuilder.SelectBuilder, expressions []Expression, nesting int) error {
	if len(expressions) == 0 {
		sb.Select(r.alias(nesting, 0) + ".*")
		return nil
	}

	cols := make([]string, 0, len(expressions))
	var groupBy []string

	for i, e := range expressions {
		name := fmt.Sprintf("c%d", i)

		if e.Query != nil {
			sub, err := r.selectBuilder(e.Query, nesting+1)
			if err != nil {
				return fmt.Errorf("expression %d: %w", i, err)
			}
			cols = append(cols, sb.As("("+sb.Var(sub)+")", name))
			continue
		}

		if e.AttributeID == nil {
			return fmt.Errorf("expression %d: no attribute", i)
		}
		col, err := r.column(nesting, e.Index, *e.AttributeID)
		if err != nil {
			return fmt.Errorf("expression %d: %w", i, err)
		}
		// an aggregated column is never a grouping key
		if e.GroupBy && e.Aggregator == nil {
			groupBy = append(groupBy, col)
		}

		if e.Aggregator != nil {
			if col, err = r.aggregate(*e.Aggregator, col, e.Distincted); err != nil {
				return fmt.Errorf("expression %d: %w", i, err)
			}
		}
		cols = append(cols, sb.As(col, name))
	}

	sb.Select(cols...)
	if len(groupBy) != 0 {
		sb.GroupBy(groupBy...)
	}
	return nil
}

func (r *sqlRenderer) aggregate(agg, col string, distinct bool) (string, error) {
	arg := col
	if distinct {
		arg = "DISTINCT " + col
	}

	switch agg {
	case AggAvg, AggCount, AggMax, AggMin, AggSum:
		return fmt.Sprintf("%s(%s)", strings.ToUpper(agg), arg), nil
	case AggList:
		switch r.flavor {
		case sqlbuilder.PostgreSQL:
			return fmt.Sprintf("STRING_AGG(%s::TEXT, ', ')", arg), nil
		case sqlbuilder.MySQL:
			return fmt.Sprintf("GROUP_CONCAT(%s SEPARATOR ', ')", arg), nil
		default:
			return fmt.Sprintf("GROUP_CONCAT(%s)", arg), nil
		}
	case AggArray, AggJSON:
		switch r.flavor {
		case sqlbuilder.PostgreSQL:
			if agg == AggArray {
				return fmt.Sprintf("ARRAY_AGG(%s)", arg), nil
			}
			return fmt.Sprintf("JSON_AGG(%s)", arg), nil
		case sqlbuilder.MySQL:
			return fmt.Sprintf("JSON_ARRAYAGG(%s)", col), nil
		default:
			return fmt.Sprintf("JSON_GROUP_ARRAY(%s)", arg), nil
		}
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAggregator, agg)
	}
}

func filtersFor(filters []ResolvedFilter, index int) []ResolvedFilter {
	var out []ResolvedFilter
	for _, f := range filters {
		if f.Index == index {
			out = append(out, f)
		}
	}
	return out
}

// conditions joins filter rows with their connectors and brackets. The
// connector of the first row is dropped.
func (r *sqlRenderer) conditions(sb *sqlbuilder.SelectBuilder, filters []ResolvedFilter, nesting int) (string, error) {
	var buf strings.Builder
	for i, f := range filters {
		cond, err := r.condition(sb, f, nesting)
		if err != nil {
			return "", fmt.Errorf("filter %d: %w", i, err)
		}
		if i != 0 {
			if f.Connector == LogOr {
				buf.WriteString(" OR ")
			} else {
				buf.WriteString(" AND ")
			}
		}
		buf.WriteString(strings.Repeat("(", f.Side0.Brackets))
		buf.WriteString(cond)
		buf.WriteString(strings.Repeat(")", f.Side1.Brackets))
	}
	return buf.String(), nil
}

func (r *sqlRenderer) condition(sb *sqlbuilder.SelectBuilder, f ResolvedFilter, nesting int) (string, error) {
	left, err := r.operand(sb, f.Side0, nesting)
	if err != nil {
		return "", err
	}

	switch {
	case IsNullOperator(f.Operator):
		return left + " " + f.Operator, nil
	case IsSetOperator(f.Operator):
		return r.setCondition(sb, f, left, nesting)
	case f.Operator == OpFullText:
		return r.fullText(sb, f, left, nesting)
	}

	right, err := r.operand(sb, f.Side1, nesting)
	if err != nil {
		return "", err
	}

	switch f.Operator {
	case OpEQ, OpNEQ, OpLT, OpGT, OpLTE, OpGTE, OpLike, OpNotLike:
		return fmt.Sprintf("%s %s %s", left, f.Operator, right), nil
	case OpILike, OpNotILike:
		if r.flavor == sqlbuilder.PostgreSQL {
			return fmt.Sprintf("%s %s %s", left, f.Operator, right), nil
		}
		op := "LIKE"
		if f.Operator == OpNotILike {
			op = "NOT LIKE"
		}
		return fmt.Sprintf("LOWER(%s) %s LOWER(%s)", left, op, right), nil
	case OpContains, OpContainedBy, OpOverlap:
		if r.flavor != sqlbuilder.PostgreSQL {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedOperator, f.Operator)
		}
		return fmt.Sprintf("%s %s %s", left, f.Operator, right), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownOperator, f.Operator)
	}
}

func (r *sqlRenderer) setCondition(sb *sqlbuilder.SelectBuilder, f ResolvedFilter, left string, nesting int) (string, error) {
	not := f.Operator == OpAll

	if f.Side1.Query != nil || f.Side1.AttributeID != nil {
		right, err := r.operand(sb, f.Side1, nesting)
		if err != nil {
			return "", err
		}
		if not {
			return fmt.Sprintf("%s NOT IN %s", left, right), nil
		}
		return fmt.Sprintf("%s IN %s", left, right), nil
	}

	values := valueList(f.Side1.Value)
	if len(values) == 0 {
		if not {
			return "1 = 1", nil
		}
		return "1 = 0", nil
	}

	if r.flavor == sqlbuilder.PostgreSQL {
		if not {
			return fmt.Sprintf("%s <> ALL(%s)", left, sb.Var(pgArray(values))), nil
		}
		return fmt.Sprintf("%s = ANY(%s)", left, sb.Var(pgArray(values))), nil
	}
	if not {
		return fmt.Sprintf("%s NOT IN (%s)", left, sb.Var(sqlbuilder.List(values))), nil
	}
	return fmt.Sprintf("%s IN (%s)", left, sb.Var(sqlbuilder.List(values))), nil
}

func (r *sqlRenderer) fullText(sb *sqlbuilder.SelectBuilder, f ResolvedFilter, left string, nesting int) (string, error) {
	right, err := r.operand(sb, f.Side1, nesting)
	if err != nil {
		return "", err
	}

	switch r.flavor {
	case sqlbuilder.PostgreSQL:
		dict := schema.DictionarySimple
		for _, d := range []*string{f.Side1.FtsDict, f.Side0.FtsDict} {
			if d != nil {
				dict = *d
				break
			}
		}
		return fmt.Sprintf("to_tsvector(CAST(%s AS regconfig), %s) @@ plainto_tsquery(CAST(%s AS regconfig), %s)",
			sb.Var(dict), left, sb.Var(dict), right), nil
	case sqlbuilder.MySQL:
		return fmt.Sprintf("MATCH (%s) AGAINST (%s IN NATURAL LANGUAGE MODE)", left, right), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedOperator, f.Operator)
	}
}

// operand renders an attribute reference, a sub-select or a bound value.
func (r *sqlRenderer) operand(sb *sqlbuilder.SelectBuilder, o ResolvedOperand, nesting int) (string, error) {
	switch {
	case o.Query != nil:
		sub, err := r.selectBuilder(o.Query, nesting+1)
		if err != nil {
			return "", err
		}
		return "(" + sb.Var(sub) + ")", nil
	case o.AttributeID != nil:
		return r.column(o.AttributeNested, o.AttributeIndex, *o.AttributeID)
	default:
		return sb.Var(sqlValue(o.Value)), nil
	}
}

func valueList(v any) []any {
	switch vs := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, 0, len(vs))
		for _, e := range vs {
			out = append(out, sqlValue(e))
		}
		return out
	case []string:
		out := make([]any, 0, len(vs))
		for _, e := range vs {
			out = append(out, e)
		}
		return out
	case []int64:
		out := make([]any, 0, len(vs))
		for _, e := range vs {
			out = append(out, e)
		}
		return out
	default:
		return []any{sqlValue(v)}
	}
}

// sqlValue converts resolved values to driver friendly types.
func sqlValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		return plainNumber(t)
	case int:
		return int64(t)
	default:
		return v
	}
}

// pgArray binds a set of values as a typed PostgreSQL array.
func pgArray(values []any) any {
	ints := make([]int64, 0, len(values))
	floats := make([]float64, 0, len(values))
	strs := make([]string, 0, len(values))
	bools := make([]bool, 0, len(values))

	for _, v := range values {
		switch t := v.(type) {
		case int64:
			ints = append(ints, t)
			floats = append(floats, float64(t))
		case float64:
			floats = append(floats, t)
		case string:
			strs = append(strs, t)
		case bool:
			bools = append(bools, t)
		}
	}

	switch len(values) {
	case len(ints):
		return pq.Array(ints)
	case len(floats):
		return pq.Array(floats)
	case len(strs):
		return pq.Array(strs)
	case len(bools):
		return pq.Array(bools)
	default:
		return pq.Array(values)
	}
}
