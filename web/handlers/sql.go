package handlers

import (
	"net/http"

	"github.com/xcono/relquery/builder"
	"github.com/xcono/relquery/schema"
	"github.com/xcono/relquery/web/response"
)

// Preview is a rendered SQL statement.
type Preview struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

// SQLHandler renders the SQL a backend would run for a builder document
type SQLHandler struct {
	catalog schema.Catalog
	resolve *ResolveHandler
}

// NewSQLHandler creates a new SQL preview handler
func NewSQLHandler(catalog schema.Catalog, resolve *ResolveHandler) *SQLHandler {
	return &SQLHandler{catalog: catalog, resolve: resolve}
}

// Handle handles POST /sql?flavor=mysql|postgresql|sqlite
func (h *SQLHandler) Handle(w http.ResponseWriter, r *http.Request) {
	flavor, err := builder.ParseFlavor(r.URL.Query().Get("flavor"))
	if err != nil {
		response.WriteValidationError(w, "flavor", err)
		return
	}

	req, ok := h.resolve.build(w, r)
	if !ok {
		return
	}

	sql, args, err := builder.SQL(req, h.catalog, flavor)
	if err != nil {
		writeBuildError(w, err)
		return
	}
	if args == nil {
		args = []any{}
	}

	response.WriteSingle(w, Preview{SQL: sql, Args: args})
}
