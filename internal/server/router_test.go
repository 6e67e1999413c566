package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	checkCalled   bool
	explainCalled bool
	healthCalled  bool
}

func (s *stubEngine) ServeCheck(w http.ResponseWriter, r *http.Request) {
	s.checkCalled = true
	w.WriteHeader(http.StatusOK)
}

func (s *stubEngine) ServeExplain(w http.ResponseWriter, r *http.Request) {
	s.explainCalled = true
	w.WriteHeader(http.StatusOK)
}

func (s *stubEngine) ServeHealth(w http.ResponseWriter, r *http.Request) {
	s.healthCalled = true
	w.WriteHeader(http.StatusOK)
}

func (s *stubEngine) WriteError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
}

func TestRouterDispatchesCheck(t *testing.T) {
	stub := &stubEngine{}
	handler := NewEngineHandler(stub)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/check", http.NoBody)
	handler.ServeHTTP(rr, req)

	require.True(t, stub.checkCalled)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterRejectsWrongMethodForCheck(t *testing.T) {
	stub := &stubEngine{}
	handler := NewEngineHandler(stub)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/check", http.NoBody)
	handler.ServeHTTP(rr, req)

	require.False(t, stub.checkCalled)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterDispatchesExplain(t *testing.T) {
	stub := &stubEngine{}
	handler := NewEngineHandler(stub)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/explain?repo=project", http.NoBody)
	handler.ServeHTTP(rr, req)

	require.True(t, stub.explainCalled)
}

func TestRouterDispatchesHealth(t *testing.T) {
	stub := &stubEngine{}
	handler := NewEngineHandler(stub)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	handler.ServeHTTP(rr, req)

	require.True(t, stub.healthCalled)
}

func TestRouterAcceptsHealthAlias(t *testing.T) {
	stub := &stubEngine{}
	handler := NewEngineHandler(stub)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	handler.ServeHTTP(rr, req)

	require.True(t, stub.healthCalled)
}

func TestRouterNotFoundForUnknownPath(t *testing.T) {
	stub := &stubEngine{}
	handler := NewEngineHandler(stub)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/nope", http.NoBody)
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterServiceUnavailableWhenEngineNil(t *testing.T) {
	handler := NewEngineHandler(nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
