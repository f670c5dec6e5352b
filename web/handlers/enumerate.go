package handlers

import (
	"net/http"

	"github.com/xcono/relquery/builder"
	"github.com/xcono/relquery/schema"
	"github.com/xcono/relquery/web/response"
)

// EnumerateRequest lists the joins of a query and its ancestors, the
// outermost query first.
type EnumerateRequest struct {
	Joins            [][]builder.Join `json:"joins"`
	IncludeEncrypted bool             `json:"includeEncrypted"`
}

// EnumerateHandler lists the attributes selectable at each nesting level
type EnumerateHandler struct {
	catalog schema.Catalog
}

// NewEnumerateHandler creates a new enumerate handler
func NewEnumerateHandler(catalog schema.Catalog) *EnumerateHandler {
	return &EnumerateHandler{catalog: catalog}
}

// Handle handles POST /enumerate
func (h *EnumerateHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req EnumerateRequest
	if err := decodeBody(r, &req); err != nil {
		response.WriteBadRequest(w, "Invalid request body", err.Error())
		return
	}

	levels := make([][]string, 0, len(req.Joins))
	count := 0
	for nesting, joins := range req.Joins {
		ids := builder.EnumerateNestedIndexAttributeIDs(h.catalog, joins, nesting, req.IncludeEncrypted)
		levels = append(levels, ids)
		count += len(ids)
	}

	response.WriteSuccess(w, levels, count)
}
