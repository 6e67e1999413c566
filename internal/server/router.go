package server

import (
	"net/http"
	"strings"
)

// Engine defines the minimal surface the HTTP router needs from the authz
// engine to serve requests: decide an access check, explain a decision, and
// report health.
type Engine interface {
	ServeCheck(http.ResponseWriter, *http.Request)
	ServeExplain(http.ResponseWriter, *http.Request)
	ServeHealth(http.ResponseWriter, *http.Request)
	WriteError(http.ResponseWriter, int, string)
}

// NewEngineHandler wires the HTTP routing facade to the authz engine so the
// lifecycle server owns URL dispatch without embedding routing logic into
// the engine itself.
func NewEngineHandler(e Engine) http.Handler {
	if e == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "engine unavailable", http.StatusServiceUnavailable)
		})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, ok := parseRoute(r.Method, r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}

		switch route {
		case "check":
			e.ServeCheck(w, r)
		case "explain":
			e.ServeExplain(w, r)
		case "healthz":
			e.ServeHealth(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

func parseRoute(method, path string) (string, bool) {
	trimmed := strings.Trim(path, "/")
	switch trimmed {
	case "v1/check":
		if method != http.MethodPost {
			return "", false
		}
		return "check", true
	case "v1/explain":
		if method != http.MethodGet && method != http.MethodPost {
			return "", false
		}
		return "explain", true
	case "health", "healthz":
		if method != http.MethodGet {
			return "", false
		}
		return "healthz", true
	}
	return "", false
}
