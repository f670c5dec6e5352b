package web

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xcono/relquery/builder"
	"github.com/xcono/relquery/schema"
	"github.com/xcono/relquery/web/handlers"
)

const (
	relPerson     = "10000000-0000-0000-0000-000000000001"
	relDepartment = "10000000-0000-0000-0000-000000000002"
	relTask       = "10000000-0000-0000-0000-000000000003"

	attrPersonID   = "20000000-0000-0000-0000-000000000001"
	attrPersonName = "20000000-0000-0000-0000-000000000002"
	attrPersonAge  = "20000000-0000-0000-0000-000000000003"
	attrPersonDept = "20000000-0000-0000-0000-000000000005"

	attrDeptID   = "20000000-0000-0000-0000-000000000011"
	attrDeptName = "20000000-0000-0000-0000-000000000012"

	attrTaskID     = "20000000-0000-0000-0000-000000000021"
	attrTaskTitle  = "20000000-0000-0000-0000-000000000022"
	attrTaskPerson = "20000000-0000-0000-0000-000000000023"
)

func ptr[T any](v T) *T { return &v }

// setupTestDB creates an in-memory SQLite database matching testCatalog
func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// every connection of an in-memory database is a new database
	db.SetMaxOpenConns(1)

	statements := []string{
		`CREATE TABLE department (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE person (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			age INTEGER,
			department_id INTEGER REFERENCES department(id)
		)`,
		`CREATE TABLE task (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			person_id INTEGER REFERENCES person(id)
		)`,
		`INSERT INTO department (id, name) VALUES (1, 'Engineering'), (2, 'Sales')`,
		`INSERT INTO person (id, name, age, department_id) VALUES
		(1, 'Alice', 25, 1),
		(2, 'Bob Smith', 30, 1),
		(3, 'Carol', 35, 2),
		(4, 'Dave', 40, NULL),
		(5, 'Eve Wilson', 45, 2)`,
		`INSERT INTO task (id, title, person_id) VALUES
		(1, 'Plan', 1),
		(2, 'Build', 1),
		(3, 'Ship', 2),
		(4, 'Sell', 3)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to prepare test database: %v", err)
		}
	}

	return db
}

func testCatalog() *schema.MemCatalog {
	return schema.NewCatalog(
		schema.Relation{
			ID:   relPerson,
			Name: "person",
			Attributes: []schema.Attribute{
				{ID: attrPersonID, Name: "id", Content: schema.ContentInteger},
				{ID: attrPersonName, Name: "name", Content: schema.ContentText},
				{ID: attrPersonAge, Name: "age", Content: schema.ContentInteger, Nullable: true},
				{ID: attrPersonDept, Name: "department_id", Content: schema.ContentRelationshipN1, RelationshipID: ptr(relDepartment), Nullable: true},
			},
		},
		schema.Relation{
			ID:   relDepartment,
			Name: "department",
			Attributes: []schema.Attribute{
				{ID: attrDeptID, Name: "id", Content: schema.ContentInteger},
				{ID: attrDeptName, Name: "name", Content: schema.ContentText},
			},
		},
		schema.Relation{
			ID:   relTask,
			Name: "task",
			Attributes: []schema.Attribute{
				{ID: attrTaskID, Name: "id", Content: schema.ContentInteger},
				{ID: attrTaskTitle, Name: "title", Content: schema.ContentText},
				{ID: attrTaskPerson, Name: "person_id", Content: schema.ContentRelationshipN1, RelationshipID: ptr(relPerson), Nullable: true},
			},
		},
	)
}

// createTestServer serves testCatalog through the production handler
func createTestServer(t *testing.T) *httptest.Server {
	evaluator, err := builder.NewCELEvaluator()
	if err != nil {
		t.Fatalf("Failed to create evaluator: %v", err)
	}
	return httptest.NewServer(NewHandler("relquery-test", testCatalog(), evaluator))
}

func post(t *testing.T, url string, body any) (int, []byte) {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, out
}

// preview fetches the SQL of a payload and runs it.
func preview(t *testing.T, server *httptest.Server, db *sql.DB, payload handlers.Payload) *sql.Rows {
	t.Helper()

	status, body := post(t, server.URL+"/sql?flavor=sqlite", payload)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, body)
	}

	var p handlers.Preview
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("Failed to decode preview: %v", err)
	}

	rows, err := db.Query(p.SQL, p.Args...)
	if err != nil {
		t.Fatalf("Failed to run %q %v: %v", p.SQL, p.Args, err)
	}
	return rows
}

// joinedPersonQuery is person 0 joined to its department 1.
func joinedPersonQuery(t *testing.T) builder.Query {
	q, _, ok := builder.NewQuery(relPerson).AddJoin(testCatalog(), 0, attrPersonDept, builder.JoinTypeLeft)
	if !ok {
		t.Fatal("Failed to join department")
	}
	return q
}

func TestRoot(t *testing.T) {
	server := createTestServer(t)
	defer server.Close()

	resp, err := http.Get(server.URL + "/")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var info map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if info["name"] != "relquery-test" {
		t.Errorf("Expected name relquery-test, got %v", info["name"])
	}
	if ops, ok := info["operators"].([]any); !ok || len(ops) != len(builder.Operators) {
		t.Errorf("Expected %d operators, got %v", len(builder.Operators), info["operators"])
	}
}

func TestRouting(t *testing.T) {
	server := createTestServer(t)
	defer server.Close()

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"unknown endpoint", http.MethodPost, "/select", http.StatusNotFound},
		{"resolve with GET", http.MethodGet, "/resolve", http.StatusMethodNotAllowed},
		{"sql with PUT", http.MethodPut, "/sql", http.StatusMethodNotAllowed},
		{"preflight", http.MethodOptions, "/resolve", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, server.URL+tt.path, nil)
			if err != nil {
				t.Fatalf("Failed to create request: %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("Failed to make request: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, resp.StatusCode)
			}
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
				t.Errorf("Expected CORS header, got %q", got)
			}
		})
	}
}

func TestResolveEndpoint(t *testing.T) {
	server := createTestServer(t)
	defer server.Close()

	q := joinedPersonQuery(t)
	q.Filters = []builder.Filter{
		{
			Operator: builder.OpGTE,
			Side0:    builder.AttributeOperand(attrPersonAge, 0),
			Side1:    builder.Operand{Content: builder.Variable{VariableID: "minAge"}},
		},
		{
			Connector: builder.LogOr,
			Operator:  builder.OpEQ,
			Side0:     builder.AttributeOperand(attrPersonID, 0),
			Side1:     builder.Operand{Content: builder.Login},
		},
	}

	status, body := post(t, server.URL+"/resolve", handlers.Payload{
		Query: q,
		Context: handlers.Snapshot{
			LoginID:   4,
			Variables: map[string]any{"minAge": 30},
		},
		Limit: 10,
	})
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, body)
	}

	var req builder.Request
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("Failed to decode request: %v", err)
	}

	if req.RelationID != relPerson || req.Limit != 10 {
		t.Errorf("Unexpected request header: %+v", req)
	}
	if len(req.Joins) != 1 || req.Joins[0].AttributeID != attrPersonDept || req.Joins[0].IndexFrom != 0 {
		t.Errorf("Unexpected joins: %+v", req.Joins)
	}
	if len(req.Filters) != 2 {
		t.Fatalf("Expected 2 filters, got %d", len(req.Filters))
	}

	first, last := req.Filters[0], req.Filters[1]
	if first.Connector != builder.LogAnd || first.Side0.Brackets != 1 {
		t.Errorf("Expected encapsulated first filter, got %+v", first)
	}
	if last.Connector != builder.LogOr || last.Side1.Brackets != 1 {
		t.Errorf("Expected encapsulated last filter, got %+v", last)
	}
	if v, ok := first.Side1.Value.(float64); !ok || v != 30 {
		t.Errorf("Expected variable value 30, got %v", first.Side1.Value)
	}
	if v, ok := last.Side1.Value.(float64); !ok || v != 4 {
		t.Errorf("Expected login id 4, got %v", last.Side1.Value)
	}
}

func TestResolveEndpointErrors(t *testing.T) {
	server := createTestServer(t)
	defer server.Close()

	unbalanced := builder.NewQuery(relPerson)
	unbalanced.Filters = []builder.Filter{{
		Operator: builder.OpEQ,
		Side0:    builder.Operand{Brackets: 1, Content: builder.Attribute{AttributeID: attrPersonAge}},
		Side1:    builder.ValueOperand(1),
	}}

	badScript := builder.NewQuery(relPerson)
	badScript.Filters = []builder.Filter{{
		Operator: builder.OpEQ,
		Side0:    builder.AttributeOperand(attrPersonAge, 0),
		Side1:    builder.Operand{Content: builder.Script{Text: "1 +"}},
	}}

	tests := []struct {
		name string
		path string
		body any
		hint string
	}{
		{"unbalanced brackets", "/resolve", handlers.Payload{Query: unbalanced}, "query"},
		{"broken script", "/resolve", handlers.Payload{Query: badScript}, "query"},
		{"malformed body", "/resolve", "not a payload", ""},
		{"unknown flavor", "/sql?flavor=oracle", handlers.Payload{Query: builder.NewQuery(relPerson)}, "flavor"},
		{"unknown relation", "/sql?flavor=sqlite", handlers.Payload{Query: builder.NewQuery("unknown")}, "query"},
		{"unknown choice", "/resolve", handlers.Payload{Query: builder.NewQuery(relPerson), ChoiceID: "missing"}, "query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := post(t, server.URL+tt.path, tt.body)
			if status != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d: %s", status, body)
			}

			var resp struct {
				Error string `json:"error"`
				Code  string `json:"code"`
				Hint  string `json:"hint"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				t.Fatalf("Failed to decode error: %v", err)
			}
			if resp.Code != "RQ400" || resp.Error == "" || resp.Hint != tt.hint {
				t.Errorf("Unexpected error response: %s", body)
			}
		})
	}
}

func TestSQLEndpointGroupedJoin(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	server := createTestServer(t)
	defer server.Close()

	q := joinedPersonQuery(t)
	q.Filters = []builder.Filter{{
		Operator: builder.OpGTE,
		Side0:    builder.AttributeOperand(attrPersonAge, 0),
		Side1:    builder.ValueOperand(30),
	}}
	q.Orders = []builder.Order{{AttributeID: attrDeptName, Index: 1, Ascending: true}}

	rows := preview(t, server, db, handlers.Payload{
		Query: q,
		Columns: []builder.Column{
			{AttributeID: attrDeptName, Index: 1, GroupBy: true},
			{AttributeID: attrPersonID, Index: 0, Aggregator: ptr(builder.AggCount)},
		},
	})
	defer rows.Close()

	type group struct {
		name  sql.NullString
		count int64
	}
	var got []group
	for rows.Next() {
		var g group
		if err := rows.Scan(&g.name, &g.count); err != nil {
			t.Fatalf("Failed to scan row: %v", err)
		}
		got = append(got, g)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("Failed to read rows: %v", err)
	}

	want := []group{
		{sql.NullString{}, 1},
		{sql.NullString{String: "Engineering", Valid: true}, 1},
		{sql.NullString{String: "Sales", Valid: true}, 2},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d groups, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Group %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestSQLEndpointSubQueryColumn(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	server := createTestServer(t)
	defer server.Close()

	tasks := builder.NewQuery(relTask)
	tasks.Filters = []builder.Filter{{
		Operator: builder.OpEQ,
		Side0:    builder.Operand{Content: builder.Attribute{AttributeID: attrTaskPerson, Nested: 1}},
		Side1:    builder.Operand{Content: builder.Attribute{AttributeID: attrPersonID, Nested: 0}},
	}}

	q := builder.NewQuery(relPerson)
	q.Orders = []builder.Order{{AttributeID: attrPersonID, Index: 0, Ascending: true}}

	rows := preview(t, server, db, handlers.Payload{
		Query: q,
		Columns: []builder.Column{
			{AttributeID: attrPersonName, Index: 0},
			{AttributeID: attrTaskID, Index: 0, Aggregator: ptr(builder.AggCount), SubQuery: true, Query: &tasks},
		},
	})
	defer rows.Close()

	got := map[string]int64{}
	for rows.Next() {
		var (
			name  string
			count int64
		)
		if err := rows.Scan(&name, &count); err != nil {
			t.Fatalf("Failed to scan row: %v", err)
		}
		got[name] = count
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("Failed to read rows: %v", err)
	}

	want := map[string]int64{"Alice": 2, "Bob Smith": 1, "Carol": 1, "Dave": 0, "Eve Wilson": 0}
	if len(got) != len(want) {
		t.Fatalf("Expected %d people, got %v", len(want), got)
	}
	for name, count := range want {
		if got[name] != count {
			t.Errorf("%s: expected %d tasks, got %d", name, count, got[name])
		}
	}
}

func TestSQLEndpointSetAndPattern(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	server := createTestServer(t)
	defer server.Close()

	tests := []struct {
		name    string
		filters []builder.Filter
		want    []string
	}{
		{
			name: "in set",
			filters: []builder.Filter{{
				Operator: builder.OpAny,
				Side0:    builder.AttributeOperand(attrPersonID, 0),
				Side1:    builder.ValueOperand([]any{1, 3}),
			}},
			want: []string{"Alice", "Carol"},
		},
		{
			name: "empty set matches nothing",
			filters: []builder.Filter{{
				Operator: builder.OpAny,
				Side0:    builder.AttributeOperand(attrPersonID, 0),
				Side1:    builder.ValueOperand([]any{}),
			}},
			want: nil,
		},
		{
			name: "case-insensitive pattern",
			filters: []builder.Filter{{
				Operator: builder.OpILike,
				Side0:    builder.AttributeOperand(attrPersonName, 0),
				Side1:    builder.ValueOperand("%WILSON"),
			}},
			want: []string{"Eve Wilson"},
		},
		{
			name: "bracketed or",
			filters: []builder.Filter{
				{
					Operator: builder.OpIsNull,
					Side0:    builder.Operand{Brackets: 1, Content: builder.Attribute{AttributeID: attrPersonDept}},
				},
				{
					Connector: builder.LogOr,
					Operator:  builder.OpLT,
					Side0:     builder.AttributeOperand(attrPersonAge, 0),
					Side1:     builder.Operand{Brackets: 1, Content: builder.Value{Value: 30}},
				},
				{
					Operator: builder.OpNEQ,
					Side0:    builder.AttributeOperand(attrPersonName, 0),
					Side1:    builder.ValueOperand("Alice"),
				},
			},
			want: []string{"Dave"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := builder.NewQuery(relPerson)
			q.Filters = tt.filters
			q.Orders = []builder.Order{{AttributeID: attrPersonID, Index: 0, Ascending: true}}

			rows := preview(t, server, db, handlers.Payload{
				Query:   q,
				Columns: []builder.Column{{AttributeID: attrPersonName, Index: 0}},
			})
			defer rows.Close()

			var got []string
			for rows.Next() {
				var name string
				if err := rows.Scan(&name); err != nil {
					t.Fatalf("Failed to scan row: %v", err)
				}
				got = append(got, name)
			}
			if err := rows.Err(); err != nil {
				t.Fatalf("Failed to read rows: %v", err)
			}

			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Expected %v, got %v", tt.want, got)
					break
				}
			}
		})
	}
}

func TestEnumerateEndpoint(t *testing.T) {
	server := createTestServer(t)
	defer server.Close()

	q := joinedPersonQuery(t)
	status, body := post(t, server.URL+"/enumerate", handlers.EnumerateRequest{
		Joins: [][]builder.Join{q.Joins, builder.NewQuery(relTask).Joins},
	})
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, body)
	}

	var resp struct {
		Data  [][]string `json:"data"`
		Count int        `json:"count"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(resp.Data) != 2 || resp.Count != 9 {
		t.Fatalf("Expected 2 levels with 9 keys, got %+v", resp)
	}
	if resp.Data[0][0] != "0_0_"+attrPersonID {
		t.Errorf("Expected first key of person, got %s", resp.Data[0][0])
	}
	if resp.Data[0][4] != "0_1_"+attrDeptID {
		t.Errorf("Expected department key at 4, got %s", resp.Data[0][4])
	}
	if resp.Data[1][2] != "1_0_"+attrTaskPerson {
		t.Errorf("Expected task key at level 1, got %s", resp.Data[1][2])
	}
}
