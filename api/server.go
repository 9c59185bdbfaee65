package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/DeafMist/knowledge-share/backend/internal/auth"
	"github.com/DeafMist/knowledge-share/backend/internal/elasticsearch"
	"github.com/DeafMist/knowledge-share/backend/internal/events"
	"github.com/DeafMist/knowledge-share/backend/internal/models"
	"github.com/DeafMist/knowledge-share/backend/internal/processing"
	"github.com/DeafMist/knowledge-share/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type userStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
}

type articleStore interface {
	CreateArticle(ctx context.Context, a *models.Article) error
	Article(ctx context.Context, id string) (*models.Article, error)
	ListArticles(ctx context.Context, f store.ArticleFilter) ([]models.Article, error)
	UpdateArticle(ctx context.Context, a *models.Article) error
	DeleteArticle(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

type articleSearcher interface {
	SearchArticles(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
	Health(ctx context.Context) error
}

type server struct {
	log       *slog.Logger
	clientURL string
	users     userStore
	articles  articleStore
	processor processing.Processor
	hasher    *auth.Hasher
	tokens    *auth.Tokens
	events    events.Publisher
	// search is nil unless article search is served by elasticsearch.
	search articleSearcher
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{s.clientURL},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler)

	notFound := func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "Route not found.")
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	authn := auth.Middleware(s.tokens)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", s.handleSignup)
			r.Post("/login", s.handleLogin)
		})

		r.Route("/articles", func(r chi.Router) {
			r.Get("/", s.handleListArticles)
			r.With(authn).Get("/my", s.handleMyArticles)
			r.Get("/{id}", s.handleGetArticle)
			r.With(authn).Post("/", s.handleCreateArticle)
			r.With(authn).Put("/{id}", s.handleUpdateArticle)
			r.With(authn).Delete("/{id}", s.handleDeleteArticle)
		})

		r.Route("/ai", func(r chi.Router) {
			r.Use(authn)
			r.Post("/improve", s.handleImprove)
			r.Post("/summary", s.handleSummary)
		})
	})

	return r
}

func (s *server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "Knowledge Sharing Platform API is running.")
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.articles.Ping(ctx); err != nil {
		s.log.Warn("database health check failed", slog.Any("err", err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "component": "database"})
		return
	}
	if s.search != nil {
		if err := s.search.Health(ctx); err != nil {
			s.log.Warn("search health check failed", slog.Any("err", err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "component": "search"})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

// internalError logs err and answers with a generic 500.
func (s *server) internalError(w http.ResponseWriter, op string, err error) {
	s.log.Error(op, slog.Any("err", err))
	writeMessage(w, http.StatusInternalServerError, "Internal server error.")
}

// decodeJSON reads the request body into dst. An empty body leaves dst
// untouched. It writes the error response itself and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	err := dec.Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeMessage(w, http.StatusRequestEntityTooLarge, "Request body too large.")
		return false
	}
	writeMessage(w, http.StatusBadRequest, "Invalid JSON body.")
	return false
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
