package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagesplit/pagesplit/internal/engine"
	"github.com/pagesplit/pagesplit/internal/store"
)

func setupServer(t *testing.T) (*Server, *store.SQLiteStore) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	eng := engine.New(s)
	return New(s, eng, 0, "", nil), s
}

func createRunning(t *testing.T, s *store.SQLiteStore, name string) {
	t.Helper()
	ctx := context.Background()
	_, err := s.CreateTest(ctx, name, store.TestConfig{})
	require.NoError(t, err)
	require.NoError(t, engine.New(s).Start(ctx, name))
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	} else {
		buf.WriteString("{}")
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, s := setupServer(t)
	createRunning(t, s, "hero")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.TestsCount)
}

func TestVariantEndpoint(t *testing.T) {
	srv, s := setupServer(t)
	createRunning(t, s, "hero")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tests/hero/variant?visitor=visitor-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, []string{"a", "b"}, resp["variant"])

	// Same visitor, same answer.
	again := httptest.NewRecorder()
	srv.Handler().ServeHTTP(again, httptest.NewRequest(http.MethodGet, "/api/tests/hero/variant?visitor=visitor-1", nil))
	var resp2 map[string]string
	require.NoError(t, json.Unmarshal(again.Body.Bytes(), &resp2))
	assert.Equal(t, resp["variant"], resp2["variant"])
}

func TestVariantEndpointRequiresVisitor(t *testing.T) {
	srv, s := setupServer(t)
	createRunning(t, s, "hero")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tests/hero/variant", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVariantEndpointUnknownTest(t *testing.T) {
	srv, _ := setupServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tests/nope/variant?visitor=v1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a", resp["variant"], "unknown tests fail safe to control")
}

func TestVisitEndpoint(t *testing.T) {
	srv, s := setupServer(t)
	createRunning(t, s, "hero")

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/tests/hero/visit", VisitRequest{VisitorID: "visitor-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp VisitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "visitor-1", resp.VisitorID)
	require.NotNil(t, resp.Visitor)
	assert.Equal(t, resp.Variant, resp.Visitor.Variant)
	assert.False(t, resp.Visitor.Converted)

	// The variant endpoint agrees with the recorded assignment.
	vrec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(vrec, httptest.NewRequest(http.MethodGet, "/api/tests/hero/variant?visitor=visitor-1", nil))
	var vresp map[string]string
	require.NoError(t, json.Unmarshal(vrec.Body.Bytes(), &vresp))
	assert.Equal(t, resp.Variant, vresp["variant"])
}

func TestVisitEndpointMintsVisitorID(t *testing.T) {
	srv, s := setupServer(t)
	createRunning(t, s, "hero")

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/tests/hero/visit", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp VisitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.VisitorID, "server mints an id when the caller has none")
	require.NotNil(t, resp.Visitor)
	assert.Equal(t, resp.VisitorID, resp.Visitor.VisitorID)
}

func TestVisitEndpointNotRunning(t *testing.T) {
	srv, s := setupServer(t)
	_, err := s.CreateTest(context.Background(), "draft-test", store.TestConfig{})
	require.NoError(t, err)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/tests/draft-test/visit", VisitRequest{VisitorID: "v1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp VisitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a", resp.Variant)
	assert.Nil(t, resp.Visitor, "nothing is recorded for a draft test")
}

func TestConvertEndpoint(t *testing.T) {
	srv, s := setupServer(t)
	createRunning(t, s, "hero")

	doJSON(t, srv.Handler(), http.MethodPost, "/api/tests/hero/visit", VisitRequest{VisitorID: "visitor-1"})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/tests/hero/convert", ConvertRequest{
		VisitorID:      "visitor-1",
		ConversionData: map[string]any{"goal": "signup"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp["success"])

	// Converting the same visitor again reports false.
	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/tests/hero/convert", ConvertRequest{VisitorID: "visitor-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp["success"])
}

func TestConvertEndpointRequiresVisitorID(t *testing.T) {
	srv, s := setupServer(t)
	createRunning(t, s, "hero")

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/tests/hero/convert", ConvertRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResultsEndpoint(t *testing.T) {
	srv, s := setupServer(t)
	createRunning(t, s, "hero")

	doJSON(t, srv.Handler(), http.MethodPost, "/api/tests/hero/visit", VisitRequest{VisitorID: "visitor-1"})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tests/hero/results", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report engine.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "hero", report.TestID)
	assert.Equal(t, store.StatusRunning, report.Status)
	assert.Equal(t, 1, report.Performance.TotalVisitors)
}

func TestResultsEndpointNotFound(t *testing.T) {
	srv, _ := setupServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tests/missing/results", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Test not found", resp["error"])
}

func TestOptimizeEndpointAuth(t *testing.T) {
	srv, s := setupServer(t)
	createRunning(t, s, "hero")

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/tests/hero/optimize", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/tests/hero/optimize?token="+srv.Token(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.OptimizeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success, "no data yet, nothing to optimize")
}

func TestOptimizeEndpointCookieAuth(t *testing.T) {
	srv, s := setupServer(t)
	createRunning(t, s, "hero")

	req := httptest.NewRequest(http.MethodPost, "/api/tests/hero/optimize", bytes.NewBufferString("{}"))
	req.AddCookie(&http.Cookie{Name: tokenCookieName, Value: srv.Token()})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPICors(t *testing.T) {
	srv, _ := setupServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/tests/hero/variant", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownAction(t *testing.T) {
	srv, _ := setupServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tests/hero/bogus", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
