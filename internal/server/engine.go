package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/l0p7/repoauthz/internal/authzfile"
	"github.com/l0p7/repoauthz/internal/explain"
	"github.com/l0p7/repoauthz/internal/memocache"
	"github.com/l0p7/repoauthz/internal/metrics"
)

// errAuthzNotLoaded is returned by check when no Authz has been installed yet.
var errAuthzNotLoaded = errors.New("authzfile: configuration not loaded")

// AuthzEngine implements Engine against a hot-reloadable authzfile.Authz,
// backed by a process-local trie cache and an optional out-of-process
// principal-set cache.
type AuthzEngine struct {
	current atomic.Pointer[authzfile.Authz]

	tries      *memocache.TrieCache
	principals memocache.PrincipalCache

	metrics  *metrics.Recorder
	explainR *explain.Renderer
	logger   *slog.Logger
}

// NewAuthzEngine builds an AuthzEngine serving initial until a reload (via
// SetAuthz) replaces it.
func NewAuthzEngine(initial *authzfile.Authz, tries *memocache.TrieCache, principals memocache.PrincipalCache, rec *metrics.Recorder, logger *slog.Logger) (*AuthzEngine, error) {
	renderer, err := explain.NewRenderer()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &AuthzEngine{
		tries:      tries,
		principals: principals,
		metrics:    rec,
		explainR:   renderer,
		logger:     logger,
	}
	e.current.Store(initial)
	return e, nil
}

// SetAuthz installs a freshly loaded Authz, evicting every trie cached under
// the previous version so later lookups recompile against the new rules.
// Intended as the onChange callback passed to authzfile.Watch.
func (e *AuthzEngine) SetAuthz(a *authzfile.Authz) {
	old := e.current.Swap(a)
	if e.tries != nil && old != nil {
		e.tries.DeletePrefix(old.Version() + "/")
	}
	e.metrics.ObserveReload(true)
	e.logger.Info("authz configuration reloaded", slog.String("version", a.Version()))
}

type checkRequest struct {
	Repo      string `json:"repo"`
	Path      string `json:"path"`
	User      string `json:"user"`
	Rights    string `json:"rights"`
	Recursive bool   `json:"recursive"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

// ServeCheck handles POST /v1/check.
func (e *AuthzEngine) ServeCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		e.WriteError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Repo == "" {
		e.WriteError(w, http.StatusBadRequest, "repo is required")
		return
	}

	required, err := authzfile.ParseRights(req.Rights)
	if err != nil {
		e.WriteError(w, http.StatusBadRequest, "invalid rights: "+err.Error())
		return
	}

	var path *string
	if req.Path != "" {
		path = &req.Path
	}

	start := time.Now()
	allowed, err := e.check(req.Repo, path, req.User, required, req.Recursive)
	if err != nil {
		switch {
		case errors.Is(err, errAuthzNotLoaded):
			e.WriteError(w, http.StatusServiceUnavailable, "authz configuration not loaded")
		case authzfile.IsKind(err, authzfile.KindInvalidArgument):
			e.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			e.logger.Error("access check failed", slog.String("repo", req.Repo), slog.Any("error", err))
			e.WriteError(w, http.StatusInternalServerError, "check failed")
		}
		return
	}
	e.metrics.ObserveCheck(req.Repo, allowed, time.Since(start))

	writeJSON(w, http.StatusOK, checkResponse{Allowed: allowed})
}

// ServeExplain handles GET/POST /v1/explain, returning a text/plain report
// of how a check for the given parameters was decided.
func (e *AuthzEngine) ServeExplain(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	repo := q.Get("repo")
	user := q.Get("user")
	path := q.Get("path")
	recursive, _ := strconv.ParseBool(q.Get("recursive"))

	if repo == "" {
		e.WriteError(w, http.StatusBadRequest, "repo is required")
		return
	}
	required, err := authzfile.ParseRights(q.Get("rights"))
	if err != nil {
		e.WriteError(w, http.StatusBadRequest, "invalid rights: "+err.Error())
		return
	}

	authz := e.current.Load()
	if authz == nil {
		e.WriteError(w, http.StatusServiceUnavailable, "authz configuration not loaded")
		return
	}
	principals := authz.Principals(user)
	trie := authz.Compile(repo, principals)

	report := explain.Build(trie, repo, user, path, required, recursive)
	text, err := e.explainR.Render(report)
	if err != nil {
		e.logger.Error("render explain report", slog.Any("error", err))
		e.WriteError(w, http.StatusInternalServerError, "render explain report")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

type healthResponse struct {
	Status      string `json:"status"`
	AuthzLoaded bool   `json:"authzLoaded"`
	Version     string `json:"version,omitempty"`
	CachedTries int    `json:"cachedTries"`
}

// ServeHealth handles GET /healthz.
func (e *AuthzEngine) ServeHealth(w http.ResponseWriter, r *http.Request) {
	authz := e.current.Load()
	resp := healthResponse{Status: "ok", AuthzLoaded: authz != nil}
	if authz != nil {
		resp.Version = authz.Version()
	}
	if e.tries != nil {
		resp.CachedTries = e.tries.Size()
	}
	if authz == nil {
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// WriteError writes a JSON error envelope.
func (e *AuthzEngine) WriteError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (e *AuthzEngine) check(repo string, path *string, user string, required authzfile.Rights, recursive bool) (bool, error) {
	authz := e.current.Load()
	if authz == nil {
		return false, errAuthzNotLoaded
	}

	principals, err := e.resolvePrincipals(authz, user)
	if err != nil {
		return false, err
	}

	trie := e.compileTrie(authz, repo, user, principals)
	return trie.Lookup(path, required, recursive), nil
}

func (e *AuthzEngine) resolvePrincipals(authz *authzfile.Authz, user string) (authzfile.PrincipalSet, error) {
	if e.principals == nil {
		return authz.Principals(user), nil
	}

	ctx := context.Background()
	key := authz.Version() + "/principals/" + user
	start := time.Now()
	entry, hit, err := e.principals.Lookup(ctx, key)
	if err == nil && hit {
		e.metrics.ObserveCacheLookup(metrics.CacheLookupHit, time.Since(start))
		return authzfile.NewPrincipalSetFromMembers(entry.Members), nil
	}
	if err != nil {
		e.metrics.ObserveCacheLookup(metrics.CacheLookupError, time.Since(start))
	} else {
		e.metrics.ObserveCacheLookup(metrics.CacheLookupMiss, time.Since(start))
	}

	principals := authz.Principals(user)
	storeStart := time.Now()
	storeErr := e.principals.Store(ctx, key, memocache.PrincipalEntry{
		Members:   principals.Members(),
		StoredAt:  time.Now(),
		ExpiresAt: time.Now().Add(30 * time.Second),
	})
	if storeErr != nil {
		e.metrics.ObserveCacheStore(metrics.CacheStoreError, time.Since(storeStart))
	} else {
		e.metrics.ObserveCacheStore(metrics.CacheStoreStored, time.Since(storeStart))
	}
	return principals, nil
}

func (e *AuthzEngine) compileTrie(authz *authzfile.Authz, repo, user string, principals authzfile.PrincipalSet) *authzfile.Trie {
	if e.tries == nil {
		return authz.Compile(repo, principals)
	}
	key := authz.Version() + "/" + repo + "/" + user
	if trie, ok := e.tries.Lookup(key); ok {
		return trie
	}
	trie := authz.Compile(repo, principals)
	e.tries.Store(key, trie)
	return trie
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
