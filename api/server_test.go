package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/DeafMist/knowledge-share/backend/internal/auth"
	"github.com/DeafMist/knowledge-share/backend/internal/elasticsearch"
	"github.com/DeafMist/knowledge-share/backend/internal/logger"
	"github.com/DeafMist/knowledge-share/backend/internal/models"
	"github.com/DeafMist/knowledge-share/backend/internal/processing"
	"github.com/DeafMist/knowledge-share/backend/internal/store"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ArticleEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt models.ArticleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, 0, len(p.events))
	for _, evt := range p.events {
		out = append(out, evt.Type)
	}
	return out
}

type stubSearcher struct {
	ids       []string
	err       error
	healthErr error
	queries   []string
}

func (s *stubSearcher) SearchArticles(_ context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error) {
	s.queries = append(s.queries, params.Query)
	if s.err != nil {
		return nil, s.err
	}
	return &elasticsearch.SearchResult{Total: int64(len(s.ids)), IDs: s.ids}, nil
}

func (s *stubSearcher) Health(context.Context) error { return s.healthErr }

type testEnv struct {
	srv    *server
	h      http.Handler
	events *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "api.db") + "?_pragma=foreign_keys(1)"
	db, err := store.Open(context.Background(), "sqlite", dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	pub := &recordingPublisher{}
	srv := &server{
		log:       logger.Discard(),
		clientURL: "*",
		users:     db,
		articles:  db,
		processor: processing.NewDeterministic(),
		hasher:    auth.NewHasher(bcrypt.MinCost),
		tokens:    auth.NewTokens("test-secret", time.Hour),
		events:    pub,
	}
	return &testEnv{srv: srv, h: srv.routes(), events: pub}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, r)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func requireMessage(t *testing.T, w *httptest.ResponseRecorder, code int, msg string) {
	t.Helper()
	require.Equal(t, code, w.Code, "body: %s", w.Body.String())
	require.Equal(t, msg, decodeBody[messageResponse](t, w).Message)
}

func (e *testEnv) signup(t *testing.T, name string) (string, models.Author) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/auth/signup", signupRequest{
		Username: name, Email: name + "@example.com", Password: "pw-" + name,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	resp := decodeBody[authResponse](t, w)
	return resp.Token, resp.User
}

func (e *testEnv) createArticle(t *testing.T, token string, req createArticleRequest) *models.Article {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/articles", req, token)
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	return decodeBody[articleResponse](t, w).Article
}

func TestRootNotFoundAndCORS(t *testing.T) {
	env := newTestEnv(t)

	requireMessage(t, env.do(t, http.MethodGet, "/", nil, ""), http.StatusOK, "Knowledge Sharing Platform API is running.")
	requireMessage(t, env.do(t, http.MethodGet, "/nope", nil, ""), http.StatusNotFound, "Route not found.")
	requireMessage(t, env.do(t, http.MethodPatch, "/api/articles", nil, ""), http.StatusNotFound, "Route not found.")

	r := httptest.NewRequest(http.MethodOptions, "/api/articles", nil)
	r.Header.Set("Origin", "https://kb.example.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	r.Header.Set("Access-Control-Request-Headers", "Authorization")
	w := httptest.NewRecorder()
	env.h.ServeHTTP(w, r)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	env.srv.search = &stubSearcher{healthErr: errors.New("red")}
	w = env.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "search", decodeBody[map[string]string](t, w)["component"])
}

func TestSignupAndLogin(t *testing.T) {
	env := newTestEnv(t)

	requireMessage(t, env.do(t, http.MethodPost, "/api/auth/signup", signupRequest{Email: "a@example.com"}, ""),
		http.StatusBadRequest, "All fields are required.")
	requireMessage(t, env.do(t, http.MethodPost, "/api/auth/signup", `{"username":`, ""),
		http.StatusBadRequest, "Invalid JSON body.")

	token, user := env.signup(t, "ada")
	require.NotEmpty(t, token)
	require.NotEmpty(t, user.ID)
	require.Equal(t, "ada@example.com", user.Email)

	w := env.do(t, http.MethodPost, "/api/auth/signup", signupRequest{Username: "ada2", Email: "ada@example.com", Password: "x"}, "")
	requireMessage(t, w, http.StatusConflict, "Email already registered.")

	tests := []struct {
		name string
		req  loginRequest
		code int
		msg  string
	}{
		{name: "missing password", req: loginRequest{Email: "ada@example.com"}, code: http.StatusBadRequest, msg: "Email and password are required."},
		{name: "unknown email", req: loginRequest{Email: "nobody@example.com", Password: "x"}, code: http.StatusUnauthorized, msg: "Invalid credentials."},
		{name: "wrong password", req: loginRequest{Email: "ada@example.com", Password: "nope"}, code: http.StatusUnauthorized, msg: "Invalid credentials."},
		{name: "success", req: loginRequest{Email: "ada@example.com", Password: "pw-ada"}, code: http.StatusOK, msg: "Login successful."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/auth/login", tt.req, "")
			requireMessage(t, w, tt.code, tt.msg)
			if tt.code == http.StatusOK {
				resp := decodeBody[authResponse](t, w)
				require.Equal(t, user, resp.User)

				mine := env.do(t, http.MethodGet, "/api/articles/my", nil, resp.Token)
				require.Equal(t, http.StatusOK, mine.Code)
				require.Equal(t, 0, decodeBody[articleListResponse](t, mine).Count)
			}
		})
	}
}

func TestCreateArticle(t *testing.T) {
	env := newTestEnv(t)
	token, user := env.signup(t, "grace")

	requireMessage(t, env.do(t, http.MethodPost, "/api/articles", createArticleRequest{}, ""),
		http.StatusUnauthorized, "Access denied. No token provided.")
	requireMessage(t, env.do(t, http.MethodPost, "/api/articles", createArticleRequest{}, "garbage"),
		http.StatusForbidden, "Invalid or expired token.")
	requireMessage(t, env.do(t, http.MethodPost, "/api/articles", createArticleRequest{Title: "t", Category: "AI"}, token),
		http.StatusBadRequest, "Title, category, and content are required.")
	requireMessage(t, env.do(t, http.MethodPost, "/api/articles", createArticleRequest{Title: "t", Category: "Cooking", Content: "c"}, token),
		http.StatusBadRequest, "Invalid category.")

	plain := env.createArticle(t, token, createArticleRequest{
		Title: "Plain", Category: "Tech", Content: "<p>Hello &amp; welcome</p>", Tags: "intro",
	})
	require.Equal(t, "<p>Hello &amp; welcome</p>", plain.Content)
	require.Equal(t, "Hello & welcome", plain.ShortSummary)
	require.Equal(t, user.ID, plain.UserID)

	improved := env.createArticle(t, token, createArticleRequest{
		Title: "Improved", Category: "AI", Content: "<p>Hello   &amp; world</p>\n", UseAI: true,
	})
	require.Equal(t, "[AI Improved] <p>Hello &amp; world</p>", improved.Content)
	require.Equal(t, "[AI Improved] Hello & world", improved.ShortSummary)

	long := env.createArticle(t, token, createArticleRequest{
		Title: "Long", Category: "DevOps", Content: "<div>" + strings.Repeat("A", 250) + "</div>",
	})
	require.Equal(t, strings.Repeat("A", 197)+"...", long.ShortSummary)

	require.Equal(t, []models.EventType{models.EventArticleCreated, models.EventArticleCreated, models.EventArticleCreated}, env.events.types())
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	env := newTestEnv(t)
	env.events.err = errors.New("broker down")
	token, _ := env.signup(t, "linus")

	env.createArticle(t, token, createArticleRequest{Title: "t", Category: "Backend", Content: "c"})
}

func TestGetAndListArticles(t *testing.T) {
	env := newTestEnv(t)
	adaToken, ada := env.signup(t, "ada")
	graceToken, _ := env.signup(t, "grace")

	k8s := env.createArticle(t, adaToken, createArticleRequest{Title: "Kubernetes", Category: "DevOps", Content: "pods and nodes", Tags: "k8s,ops"})
	env.createArticle(t, graceToken, createArticleRequest{Title: "Transformers", Category: "AI", Content: "attention heads", Tags: "ml"})

	list := decodeBody[articleListResponse](t, env.do(t, http.MethodGet, "/api/articles", nil, ""))
	require.Equal(t, 2, list.Count)
	for _, a := range list.Articles {
		require.NotNil(t, a.Author)
	}

	titles := func(resp articleListResponse) []string {
		out := []string{}
		for _, a := range resp.Articles {
			out = append(out, a.Title)
		}
		return out
	}

	require.Equal(t, []string{"Transformers"}, titles(decodeBody[articleListResponse](t, env.do(t, http.MethodGet, "/api/articles?category=AI", nil, ""))))
	require.Equal(t, []string{"Kubernetes"}, titles(decodeBody[articleListResponse](t, env.do(t, http.MethodGet, "/api/articles?tags=ops", nil, ""))))
	require.Equal(t, []string{"Transformers"}, titles(decodeBody[articleListResponse](t, env.do(t, http.MethodGet, "/api/articles?search=attention", nil, ""))))
	require.Equal(t, []string{"Kubernetes"}, titles(decodeBody[articleListResponse](t, env.do(t, http.MethodGet, "/api/articles/my", nil, adaToken))))

	w := env.do(t, http.MethodGet, "/api/articles/"+k8s.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[articleResponse](t, w).Article
	require.Equal(t, "Kubernetes", got.Title)
	require.Equal(t, &ada, got.Author)

	requireMessage(t, env.do(t, http.MethodGet, "/api/articles/missing", nil, ""), http.StatusNotFound, "Article not found.")
	requireMessage(t, env.do(t, http.MethodGet, "/api/articles/my", nil, ""), http.StatusUnauthorized, "Access denied. No token provided.")
}

func TestListUsesSearchBackend(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup(t, "ada")
	env.createArticle(t, token, createArticleRequest{Title: "Channels", Category: "Backend", Content: "go channels"})
	second := env.createArticle(t, token, createArticleRequest{Title: "Pipelines", Category: "Backend", Content: "unix pipes"})

	search := &stubSearcher{ids: []string{second.ID}}
	env.srv.search = search

	list := decodeBody[articleListResponse](t, env.do(t, http.MethodGet, "/api/articles?search=streams", nil, ""))
	require.Equal(t, 1, list.Count)
	require.Equal(t, second.ID, list.Articles[0].ID)
	require.Equal(t, []string{"streams"}, search.queries)

	search.err = errors.New("timeout")
	list = decodeBody[articleListResponse](t, env.do(t, http.MethodGet, "/api/articles?search=Channels", nil, ""))
	require.Equal(t, 1, list.Count)
	require.Equal(t, "Channels", list.Articles[0].Title)

	list = decodeBody[articleListResponse](t, env.do(t, http.MethodGet, "/api/articles", nil, ""))
	require.Equal(t, 2, list.Count)
	require.Len(t, search.queries, 2)
}

func TestUpdateArticle(t *testing.T) {
	env := newTestEnv(t)
	ownerToken, _ := env.signup(t, "ada")
	otherToken, _ := env.signup(t, "mallory")
	a := env.createArticle(t, ownerToken, createArticleRequest{Title: "Draft", Category: "Tech", Content: "<p>first</p>", Tags: "x"})
	path := "/api/articles/" + a.ID

	requireMessage(t, env.do(t, http.MethodPut, path, map[string]any{"title": "Hijack"}, otherToken),
		http.StatusForbidden, "Forbidden. You are not the author of this article.")
	requireMessage(t, env.do(t, http.MethodPut, "/api/articles/missing", map[string]any{"title": "x"}, ownerToken),
		http.StatusNotFound, "Article not found.")
	requireMessage(t, env.do(t, http.MethodPut, path, map[string]any{"category": "Cooking"}, ownerToken),
		http.StatusBadRequest, "Invalid category.")

	w := env.do(t, http.MethodPut, path, map[string]any{"title": "Final", "tags": ""}, ownerToken)
	requireMessage(t, w, http.StatusOK, "Article updated successfully.")
	updated := decodeBody[articleResponse](t, w).Article
	require.Equal(t, "Final", updated.Title)
	require.Equal(t, "", updated.Tags)
	require.Equal(t, "<p>first</p>", updated.Content)
	require.Equal(t, "first", updated.ShortSummary)

	w = env.do(t, http.MethodPut, path, map[string]any{"content": "  <b>second</b>   take ", "useAI": true, "category": "AI"}, ownerToken)
	require.Equal(t, http.StatusOK, w.Code)
	updated = decodeBody[articleResponse](t, w).Article
	require.Equal(t, "[AI Improved] <b>second</b> take", updated.Content)
	require.Equal(t, "[AI Improved] second take", updated.ShortSummary)
	require.Equal(t, models.CategoryAI, updated.Category)

	w = env.do(t, http.MethodPut, path, map[string]any{"content": ""}, ownerToken)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "[AI Improved] <b>second</b> take", decodeBody[articleResponse](t, w).Article.Content)

	stored := decodeBody[articleResponse](t, env.do(t, http.MethodGet, path, nil, ""))
	require.Equal(t, "Final", stored.Article.Title)
	require.Equal(t, "[AI Improved] second take", stored.Article.ShortSummary)

	require.Equal(t, []models.EventType{
		models.EventArticleCreated, models.EventArticleUpdated, models.EventArticleUpdated, models.EventArticleUpdated,
	}, env.events.types())
}

func TestDeleteArticle(t *testing.T) {
	env := newTestEnv(t)
	ownerToken, _ := env.signup(t, "ada")
	otherToken, _ := env.signup(t, "mallory")
	a := env.createArticle(t, ownerToken, createArticleRequest{Title: "Gone", Category: "Frontend", Content: "c"})
	path := "/api/articles/" + a.ID

	requireMessage(t, env.do(t, http.MethodDelete, path, nil, otherToken),
		http.StatusForbidden, "Forbidden. You are not the author of this article.")
	requireMessage(t, env.do(t, http.MethodDelete, path, nil, ownerToken), http.StatusOK, "Article deleted successfully.")
	requireMessage(t, env.do(t, http.MethodGet, path, nil, ""), http.StatusNotFound, "Article not found.")
	requireMessage(t, env.do(t, http.MethodDelete, path, nil, ownerToken), http.StatusNotFound, "Article not found.")

	env.events.mu.Lock()
	last := env.events.events[len(env.events.events)-1]
	env.events.mu.Unlock()
	require.Equal(t, models.EventArticleDeleted, last.Type)
	require.Equal(t, a.ID, last.ArticleID)
	require.Nil(t, last.Article)
}

func TestAIEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup(t, "ada")

	requireMessage(t, env.do(t, http.MethodPost, "/api/ai/improve", contentRequest{Content: "x"}, ""),
		http.StatusUnauthorized, "Access denied. No token provided.")

	for _, path := range []string{"/api/ai/improve", "/api/ai/summary"} {
		requireMessage(t, env.do(t, http.MethodPost, path, contentRequest{Content: "   "}, token), http.StatusBadRequest, "Content is required.")
		requireMessage(t, env.do(t, http.MethodPost, path, nil, token), http.StatusBadRequest, "Content is required.")
		requireMessage(t, env.do(t, http.MethodPost, path, `{"content": 42}`, token), http.StatusBadRequest, "Invalid JSON body.")
	}

	w := env.do(t, http.MethodPost, "/api/ai/improve", contentRequest{Content: "  hello   world  "}, token)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "[AI Improved] hello world", decodeBody[improveResponse](t, w).Improved)

	w = env.do(t, http.MethodPost, "/api/ai/summary", contentRequest{Content: "<b>x</b>&nbsp;&nbsp;y"}, token)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "x y", decodeBody[summaryResponse](t, w).Summary)
}
