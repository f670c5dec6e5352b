package handlers

import (
	"net/http"
	"strings"

	"github.com/xcono/relquery/builder"
	"github.com/xcono/relquery/schema"
	"github.com/xcono/relquery/web/response"
)

// Router handles request routing and delegates to appropriate handlers
type Router struct {
	resolveHandler   *ResolveHandler
	sqlHandler       *SQLHandler
	enumerateHandler *EnumerateHandler
}

// NewRouter creates a new request router
func NewRouter(catalog schema.Catalog, evaluator builder.Evaluator) *Router {
	resolveHandler := NewResolveHandler(catalog, evaluator)

	return &Router{
		resolveHandler:   resolveHandler,
		sqlHandler:       NewSQLHandler(catalog, resolveHandler),
		enumerateHandler: NewEnumerateHandler(catalog),
	}
}

// Handle routes POST /resolve, /sql and /enumerate
func (r *Router) Handle(w http.ResponseWriter, req *http.Request) {
	var handle func(http.ResponseWriter, *http.Request)

	switch strings.Trim(req.URL.Path, "/") {
	case "resolve":
		handle = r.resolveHandler.Handle
	case "sql":
		handle = r.sqlHandler.Handle
	case "enumerate":
		handle = r.enumerateHandler.Handle
	default:
		response.WriteNotFound(w, "Not found", "No endpoint at "+req.URL.Path)
		return
	}

	if req.Method != http.MethodPost {
		response.WriteMethodNotAllowed(w, req.Method)
		return
	}
	handle(w, req)
}
