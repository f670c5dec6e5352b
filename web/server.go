package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/xcono/relquery/builder"
	"github.com/xcono/relquery/schema"
	"github.com/xcono/relquery/web/handlers"
	"github.com/zeromicro/go-zero/core/logx"
)

// StartServer serves the catalog of the named service, or of the first
// configured one if service is empty.
func StartServer(c schema.Config, service string) error {
	name, svc, err := c.LookupService(service)
	if err != nil {
		return err
	}

	catalog, err := schema.LoadCatalog(svc)
	if err != nil {
		return fmt.Errorf("load catalog of service %s: %w", name, err)
	}

	evaluator, err := builder.NewCELEvaluator()
	if err != nil {
		return err
	}

	port := fmt.Sprintf(":%d", c.Port)
	logx.Infof("Starting %s on port %s with catalog of service %s (%d relations)", c.Name, port, name, len(catalog.Relations()))
	logx.Info("Supported endpoints:")
	logx.Info("  POST /resolve    - Resolve a builder query into an execution request")
	logx.Info("  POST /sql        - Preview the SQL of a builder query")
	logx.Info("  POST /enumerate  - List selectable index attribute ids")
	return http.ListenAndServe(port, NewHandler(c.Name, catalog, evaluator))
}

// NewHandler creates the HTTP handler of the service.
func NewHandler(name string, catalog schema.Catalog, evaluator builder.Evaluator) http.Handler {
	router := handlers.NewRouter(catalog, evaluator)

	mux := http.NewServeMux()

	// Add CORS middleware
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept")
		w.Header().Set("Content-Type", "application/json")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		logx.Infof("%s %s", r.Method, r.URL.Path)

		if strings.Trim(r.URL.Path, "/") == "" {
			handleRoot(w, name)
			return
		}
		router.Handle(w, r)
	})

	return mux
}

// handleRoot returns service information
func handleRoot(w http.ResponseWriter, name string) {
	apiInfo := map[string]interface{}{
		"name":        name,
		"description": "Relational query model service",
		"endpoints": map[string]string{
			"POST /resolve":   "Resolve a builder query into an execution request",
			"POST /sql":       "Preview the SQL of a builder query (?flavor=mysql|postgresql|sqlite)",
			"POST /enumerate": "List selectable index attribute ids per nesting level",
		},
		"operators":  builder.Operators,
		"connectors": []string{builder.LogAnd, builder.LogOr},
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(apiInfo)
}
