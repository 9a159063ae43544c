//go:build e2e

package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/curation-backend/internal/adapter/postgres/assignment"
	"github.com/heartmarshall/curation-backend/internal/adapter/postgres/testhelper"
	"github.com/heartmarshall/curation-backend/internal/adapter/postgres/workitem"
	"github.com/heartmarshall/curation-backend/internal/auth"
	"github.com/heartmarshall/curation-backend/internal/domain"
	"github.com/heartmarshall/curation-backend/internal/service/assignindex"
	assignsvc "github.com/heartmarshall/curation-backend/internal/service/assignment"
	"github.com/heartmarshall/curation-backend/internal/service/workflow"
	"github.com/heartmarshall/curation-backend/internal/store"
	"github.com/heartmarshall/curation-backend/internal/transport/middleware"
	"github.com/heartmarshall/curation-backend/internal/transport/rest"
)

// testServer wraps the full-stack HTTP server for E2E tests.
type testServer struct {
	URL    string
	Client *http.Client
	Pool   *pgxpool.Pool
	Store  *store.Store
	jwt    *auth.JWTManager
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct{ t *testing.T }

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

// setupTestServer bootstraps the application stack on top of a shared
// PostgreSQL container. Tables are truncated so every test starts empty.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	pool := testhelper.SetupTestDB(t)
	_, err := pool.Exec(context.Background(), "TRUNCATE work_items, assignment_index")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(testLogWriter{t}, &slog.HandlerOptions{Level: slog.LevelWarn}))

	st, err := store.New(logger, workitem.New(pool), store.Options{ReadAttempts: 3, ReadRetryDelay: 10 * time.Millisecond})
	require.NoError(t, err)

	policy := domain.DefaultPolicy()
	index := assignindex.NewIndex(logger, assignment.New(pool), st)
	sampler := assignsvc.NewSampler(logger, st, policy, assignsvc.SamplerOptions{})
	orch := assignsvc.NewOrchestrator(logger, st, assignsvc.NewEngine(logger, st), sampler, index, policy, 50)
	engine := workflow.NewEngine(logger, st, index, policy)

	jwtManager := auth.NewJWTManager("e2e-test-secret-key-at-least-32-chars", "curation-e2e", time.Hour)

	router := rest.NewRouter(rest.RouterDeps{
		Logger: logger,
		Items:  rest.NewItemHandler(logger, orch, engine, index, st, policy),
		Admin:  rest.NewAdminHandler(logger, st, sampler),
		Health: rest.NewHealthHandler(st, "postgres", "e2e"),
		Auth:   middleware.Auth(jwtManager),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{
		URL:    srv.URL,
		Client: srv.Client(),
		Pool:   pool,
		Store:  st,
		jwt:    jwtManager,
	}
}

// seed creates n draft items in group with ids 000..n-1.
func (ts *testServer) seed(t *testing.T, group string, n int) []domain.ItemRef {
	t.Helper()
	items := make([]domain.WorkItem, n)
	refs := make([]domain.ItemRef, n)
	now := time.Now()
	for i := range n {
		refs[i] = domain.ItemRef{GroupKey: group, ID: fmt.Sprintf("%03d", i)}
		items[i] = domain.NewDraft(refs[i], "text "+refs[i].ID, []string{"seed"}, nil, now)
	}
	err := ts.Store.CreateMany(context.Background(), items)
	require.NoError(t, err)
	return refs
}

// token issues an access token for user with the given roles.
func (ts *testServer) token(t *testing.T, user string, roles ...domain.Role) string {
	t.Helper()
	if len(roles) == 0 {
		roles = []domain.Role{domain.RoleCurator}
	}
	tok, err := ts.jwt.GenerateAccessToken(user, roles)
	require.NoError(t, err)
	return tok
}

// request performs an HTTP call and decodes the JSON response body.
func (ts *testServer) request(t *testing.T, method, path, token, ifMatch string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if ifMatch != "" {
		req.Header.Set("If-Match", ifMatch)
	}

	resp, err := ts.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func itemPath(ref domain.ItemRef) string {
	return "/api/v1/items/" + url.PathEscape(ref.GroupKey) + "/" + url.PathEscape(ref.ID)
}
