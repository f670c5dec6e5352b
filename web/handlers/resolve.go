package handlers

import (
	"net/http"

	"github.com/xcono/relquery/builder"
	"github.com/xcono/relquery/schema"
	"github.com/xcono/relquery/web/response"
	"github.com/zeromicro/go-zero/core/logx"
)

// ResolveHandler turns builder documents into query execution requests
type ResolveHandler struct {
	catalog   schema.Catalog
	evaluator builder.Evaluator
}

// NewResolveHandler creates a new resolve handler
func NewResolveHandler(catalog schema.Catalog, evaluator builder.Evaluator) *ResolveHandler {
	return &ResolveHandler{catalog: catalog, evaluator: evaluator}
}

// Handle handles POST /resolve
func (h *ResolveHandler) Handle(w http.ResponseWriter, r *http.Request) {
	req, ok := h.build(w, r)
	if !ok {
		return
	}
	response.WriteSingle(w, req)
}

// build decodes the payload and builds the request, writing the error
// response on failure.
func (h *ResolveHandler) build(w http.ResponseWriter, r *http.Request) (*builder.Request, bool) {
	var payload Payload
	if err := decodeBody(r, &payload); err != nil {
		response.WriteBadRequest(w, "Invalid request body", err.Error())
		return nil, false
	}

	ctx := payload.Context.Context(h.catalog, h.evaluator)
	req, err := payload.Request(ctx)
	if err != nil {
		writeBuildError(w, err)
		return nil, false
	}
	return req, true
}

func writeBuildError(w http.ResponseWriter, err error) {
	if isClientError(err) {
		response.WriteValidationError(w, "query", err)
		return
	}
	logx.Errorf("build request: %v", err)
	response.WriteInternalServerError(w, "Failed to build request", err.Error())
}
