package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskscope/internal/inspect"
	"taskscope/internal/query"
	"taskscope/internal/store"
	"taskscope/internal/store/storetest"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T, s *storetest.Store) *httptest.Server {
	t.Helper()
	q := query.New(s, nil)
	handler, err := New(Config{
		Assembler: inspect.New(q, nil),
		BasePath:  "/v0",
		Auth:      AuthConfig{JWTSecret: testSecret},
		Now:       func() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func get(t *testing.T, url, token string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestHealthIsOpen(t *testing.T) {
	srv := newTestServer(t, storetest.New())
	res, data := get(t, srv.URL+"/v0/health", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, data)
	}
	if res.Header.Get("X-Request-Id") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestTaskRequiresToken(t *testing.T) {
	srv := newTestServer(t, storetest.New())
	res, data := get(t, srv.URL+"/v0/tasks/t1", "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, data)
	}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Error.Code != "unauthorized" {
		t.Fatalf("unexpected envelope %s", data)
	}

	res, _ = get(t, srv.URL+"/v0/tasks/t1", signToken(t, "wrong-secret", "ops"))
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", res.StatusCode)
	}
	res, _ = get(t, srv.URL+"/v0/tasks/t1", signToken(t, testSecret, ""))
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without subject, got %d", res.StatusCode)
	}
}

func TestTaskView(t *testing.T) {
	s := storetest.New().Seed(store.TableTasks, store.Row{
		"id": "t1", "task_type": "travel_segment", "status": "Complete",
		"created_at": "2025-01-01T10:00:00Z", "params": map[string]any{},
	})
	srv := newTestServer(t, s)
	res, data := get(t, srv.URL+"/v0/tasks/t1", signToken(t, testSecret, "ops"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	var view map[string]any
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	state, ok := view["state"].(map[string]any)
	if !ok || state["status"] != "Complete" {
		t.Fatalf("unexpected state %s", data)
	}
}

func TestAbsentTaskIsEmptyView(t *testing.T) {
	srv := newTestServer(t, storetest.New())
	res, data := get(t, srv.URL+"/v0/tasks/missing", signToken(t, testSecret, "ops"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	var view map[string]any
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view["state"] != nil {
		t.Fatalf("expected null state, got %v", view["state"])
	}
	for _, key := range []string{"logs", "variants", "child_tasks", "dependent_tasks"} {
		list, ok := view[key].([]any)
		if !ok || len(list) != 0 {
			t.Fatalf("expected empty %s, got %v", key, view[key])
		}
	}
}

func TestRecentTasks(t *testing.T) {
	s := storetest.New().Seed(store.TableTasks,
		store.Row{"id": "a", "task_type": "x", "status": "Failed", "error_message": "boom", "created_at": "2025-01-01T10:00:00Z"},
		store.Row{"id": "b", "task_type": "x", "status": "Complete", "created_at": "2025-01-01T11:00:00Z"},
		store.Row{"id": "c", "task_type": "x", "status": "Failed", "created_at": "2024-12-01T11:00:00Z"},
	)
	srv := newTestServer(t, s)
	res, data := get(t, srv.URL+"/v0/tasks?status=Failed&hours=48", signToken(t, testSecret, "ops"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	var summary inspect.TasksSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.TotalCount != 1 || summary.Tasks[0].ID != "a" {
		t.Fatalf("unexpected summary %s", data)
	}
	if len(summary.ErrorSummary) != 1 || summary.ErrorSummary[0].ErrorMessage != "boom" {
		t.Fatalf("unexpected error summary %+v", summary.ErrorSummary)
	}
}

func TestRecentStoreFailureUsesEnvelope(t *testing.T) {
	s := storetest.New().Fail(store.TableTasks, io.ErrUnexpectedEOF)
	srv := newTestServer(t, s)
	res, data := get(t, srv.URL+"/v0/tasks", signToken(t, testSecret, "ops"))
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", res.StatusCode, data)
	}
	if !strings.Contains(string(data), `"code":"internal_error"`) {
		t.Fatalf("unexpected body %s", data)
	}
}

func TestLogsLatestSessionWithoutSessions(t *testing.T) {
	srv := newTestServer(t, storetest.New())
	res, data := get(t, srv.URL+"/v0/logs?latest=true", signToken(t, testSecret, "ops"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	var out inspect.LogsResult
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Message != "No browser sessions found" {
		t.Fatalf("unexpected result %s", data)
	}
}

func TestLogsFilterByTask(t *testing.T) {
	s := storetest.New().Seed(store.TableLogs,
		store.Row{"id": 1, "task_id": "t1", "source_type": "worker", "log_level": "INFO", "message": "start", "timestamp": "2025-01-01T10:00:00Z"},
		store.Row{"id": 2, "task_id": "t2", "source_type": "worker", "log_level": "INFO", "message": "other", "timestamp": "2025-01-01T10:00:01Z"},
	)
	srv := newTestServer(t, s)
	res, data := get(t, srv.URL+"/v0/logs?task_id=t1", signToken(t, testSecret, "ops"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	var out inspect.LogsResult
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Logs) != 1 || out.Logs[0].Message != "start" {
		t.Fatalf("unexpected logs %s", data)
	}
}

func TestOpenAPIDocument(t *testing.T) {
	srv := newTestServer(t, storetest.New())
	res, data := get(t, srv.URL+"/v0/openapi.json", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	paths, _ := doc["paths"].(map[string]any)
	for _, p := range []string{"/v0/health", "/v0/tasks/{task_id}", "/v0/tasks", "/v0/logs"} {
		if _, ok := paths[p]; !ok {
			t.Fatalf("missing path %s in %v", p, paths)
		}
	}
}

func TestOpenAPIDocumentConcurrentFirstRequests(t *testing.T) {
	srv := newTestServer(t, storetest.New())
	bodies := make([][]byte, 6)
	errs := make([]error, 6)
	var wg sync.WaitGroup
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := http.Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				errs[i] = err
				return
			}
			defer res.Body.Close()
			bodies[i], errs[i] = io.ReadAll(res.Body)
		}(i)
	}
	wg.Wait()
	for i := range bodies {
		if errs[i] != nil {
			t.Fatalf("request %d: %v", i, errs[i])
		}
		if !strings.Contains(string(bodies[i]), "bearerAuth") {
			t.Fatalf("request %d: document without security scheme", i)
		}
		if string(bodies[i]) != string(bodies[0]) {
			t.Fatalf("request %d served a different document", i)
		}
	}
}
