package e2e_test

import (
	"database/sql"
	"testing"

	"github.com/huandu/go-sqlbuilder"
	"github.com/stretchr/testify/require"

	"github.com/xcono/relquery/builder"
)

// scenario is a builder document and the rows it selects from the seeded
// test schema. NULL reads as "NULL".
type scenario struct {
	name    string
	query   builder.Query
	columns []builder.Column
	ctx     *builder.Context
	limit   int
	offset  int
	want    [][]string
}

func ptr[T any](v T) *T { return &v }

func scenarios(t *testing.T, f fixture) []scenario {
	var (
		person     = f.rel(t, "person")
		task       = f.rel(t, "task")
		personID   = f.attr(t, "person", "id")
		personName = f.attr(t, "person", "name")
		personAge  = f.attr(t, "person", "age")
		personDept = f.attr(t, "person", "department_id")
		deptName   = f.attr(t, "department", "name")
		taskPerson = f.attr(t, "task", "person_id")
		taskHours  = f.attr(t, "task", "hours")
		taskID     = f.attr(t, "task", "id")
	)

	byID := []builder.Order{{AttributeID: personID, Index: 0, Ascending: true}}
	names := []builder.Column{{AttributeID: personName, Index: 0}}

	withDept := func(connector builder.JoinType) builder.Query {
		q, _, ok := builder.NewQuery(person).AddJoin(f.catalog, 0, personDept, connector)
		require.True(t, ok, "join department")
		return q
	}

	grouped := withDept(builder.JoinTypeInner)
	grouped.Filters = []builder.Filter{{
		Operator: builder.OpGTE,
		Side0:    builder.AttributeOperand(personAge, 0),
		Side1:    builder.ValueOperand(30),
	}}
	grouped.Orders = []builder.Order{{AttributeID: deptName, Index: 1, Ascending: true}}

	joinFilter := withDept(builder.JoinTypeLeft)
	joinFilter.Filters = []builder.Filter{{
		Index:    1,
		Operator: builder.OpEQ,
		Side0:    builder.AttributeOperand(deptName, 1),
		Side1:    builder.ValueOperand("Sales"),
	}}
	joinFilter.Orders = byID

	tasks := builder.NewQuery(task)
	tasks.Filters = []builder.Filter{{
		Operator: builder.OpEQ,
		Side0:    builder.Operand{Content: builder.Attribute{AttributeID: taskPerson, Nested: 1}},
		Side1:    builder.Operand{Content: builder.Attribute{AttributeID: personID, Nested: 0}},
	}}
	counted := builder.NewQuery(person)
	counted.Orders = byID

	busy := builder.NewQuery(task)
	busy.Filters = []builder.Filter{{
		Operator: builder.OpGTE,
		Side0:    builder.Operand{Content: builder.Attribute{AttributeID: taskHours, Nested: 1}},
		Side1:    builder.ValueOperand(5),
	}}

	filtered := func(filters ...builder.Filter) builder.Query {
		q := builder.NewQuery(person)
		q.Filters = filters
		q.Orders = byID
		return q
	}

	return []scenario{
		{
			name:  "grouped inner join",
			query: grouped,
			columns: []builder.Column{
				{AttributeID: deptName, Index: 1, GroupBy: true},
				{AttributeID: personID, Index: 0, Aggregator: ptr(builder.AggCount)},
			},
			want: [][]string{{"Engineering", "1"}, {"Sales", "2"}},
		},
		{
			name:  "join filter stays in the join",
			query: joinFilter,
			columns: []builder.Column{
				{AttributeID: personName, Index: 0},
				{AttributeID: deptName, Index: 1},
			},
			want: [][]string{
				{"Alice", "NULL"}, {"Bob Smith", "NULL"}, {"Carol", "Sales"},
				{"Dave", "NULL"}, {"Eve Wilson", "Sales"},
			},
		},
		{
			name:  "sub-query column",
			query: counted,
			columns: []builder.Column{
				{AttributeID: personName, Index: 0},
				{AttributeID: taskID, Index: 0, Aggregator: ptr(builder.AggCount), SubQuery: true, Query: &tasks},
			},
			want: [][]string{
				{"Alice", "2"}, {"Bob Smith", "1"}, {"Carol", "1"}, {"Dave", "0"}, {"Eve Wilson", "0"},
			},
		},
		{
			name: "sub-query filter",
			query: filtered(builder.Filter{
				Operator: builder.OpAny,
				Side0:    builder.AttributeOperand(personID, 0),
				Side1:    builder.Operand{Content: builder.SubQuery{Query: busy, AttributeID: taskPerson}},
			}),
			columns: names,
			want:    [][]string{{"Alice"}, {"Carol"}},
		},
		{
			name: "in set",
			query: filtered(builder.Filter{
				Operator: builder.OpAny,
				Side0:    builder.AttributeOperand(personID, 0),
				Side1:    builder.ValueOperand([]any{1, 3}),
			}),
			columns: names,
			want:    [][]string{{"Alice"}, {"Carol"}},
		},
		{
			name: "not in set",
			query: filtered(builder.Filter{
				Operator: builder.OpAll,
				Side0:    builder.AttributeOperand(personID, 0),
				Side1:    builder.ValueOperand([]any{1, 2, 3}),
			}),
			columns: names,
			want:    [][]string{{"Dave"}, {"Eve Wilson"}},
		},
		{
			name: "case-insensitive pattern",
			query: filtered(builder.Filter{
				Operator: builder.OpILike,
				Side0:    builder.AttributeOperand(personName, 0),
				Side1:    builder.ValueOperand("%WILSON"),
			}),
			columns: names,
			want:    [][]string{{"Eve Wilson"}},
		},
		{
			name: "full text",
			query: filtered(builder.Filter{
				Operator: builder.OpFullText,
				Side0:    builder.AttributeOperand(personName, 0),
				Side1:    builder.ValueOperand("wilson"),
			}),
			columns: names,
			want:    [][]string{{"Eve Wilson"}},
		},
		{
			name: "variable or login",
			query: filtered(
				builder.Filter{
					Operator: builder.OpGTE,
					Side0:    builder.AttributeOperand(personAge, 0),
					Side1:    builder.Operand{Content: builder.Variable{VariableID: "minAge"}},
				},
				builder.Filter{
					Connector: builder.LogOr,
					Operator:  builder.OpEQ,
					Side0:     builder.AttributeOperand(personID, 0),
					Side1:     builder.Operand{Content: builder.Login},
				},
			),
			columns: names,
			ctx: &builder.Context{
				Variables: builder.MapVariables{"minAge": 40},
				Session:   builder.Session{LoginID: 1},
			},
			want: [][]string{{"Alice"}, {"Dave"}, {"Eve Wilson"}},
		},
		{
			name:    "limit and offset",
			query:   filtered(),
			columns: names,
			limit:   2,
			offset:  1,
			want:    [][]string{{"Bob Smith"}, {"Carol"}},
		},
	}
}

// runScenarios renders every scenario in the flavor and compares the rows
// the database returns.
func runScenarios(t *testing.T, db *sql.DB, f fixture, flavor sqlbuilder.Flavor) {
	for _, sc := range scenarios(t, f) {
		t.Run(sc.name, func(t *testing.T) {
			ctx := sc.ctx
			if ctx == nil {
				ctx = &builder.Context{}
			}
			ctx.Catalog = f.catalog

			req, err := builder.BuildRequest(sc.query, sc.columns, ctx, sc.limit, sc.offset)
			require.NoError(t, err)

			query, args, err := builder.SQL(req, f.catalog, flavor)
			require.NoError(t, err)
			t.Logf("%s %v", query, args)

			rows, err := db.Query(query, args...)
			require.NoError(t, err)
			defer rows.Close()

			cols, err := rows.Columns()
			require.NoError(t, err)

			var got [][]string
			for rows.Next() {
				values := make([]sql.NullString, len(cols))
				dest := make([]any, len(cols))
				for i := range values {
					dest[i] = &values[i]
				}
				require.NoError(t, rows.Scan(dest...))

				row := make([]string, len(cols))
				for i, v := range values {
					row[i] = "NULL"
					if v.Valid {
						row[i] = v.String
					}
				}
				got = append(got, row)
			}
			require.NoError(t, rows.Err())
			require.Equal(t, sc.want, got)
		})
	}
}
