package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/DeafMist/knowledge-share/backend/internal/auth"
	"github.com/DeafMist/knowledge-share/backend/internal/elasticsearch"
	"github.com/DeafMist/knowledge-share/backend/internal/events"
	"github.com/DeafMist/knowledge-share/backend/internal/models"
	"github.com/DeafMist/knowledge-share/backend/internal/store"
)

const searchLimit = 1000

type createArticleRequest struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Content  string `json:"content"`
	Tags     string `json:"tags"`
	UseAI    bool   `json:"useAI"`
}

// updateArticleRequest uses pointers so absent fields keep their value.
type updateArticleRequest struct {
	Title    *string `json:"title"`
	Category *string `json:"category"`
	Content  *string `json:"content"`
	Tags     *string `json:"tags"`
	UseAI    bool    `json:"useAI"`
}

type articleResponse struct {
	Message string          `json:"message,omitempty"`
	Article *models.Article `json:"article"`
}

type articleListResponse struct {
	Count    int              `json:"count"`
	Articles []models.Article `json:"articles"`
}

func (s *server) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.PrincipalFromContext(r.Context())

	var req createArticleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Title) == "" || req.Category == "" || req.Content == "" {
		writeMessage(w, http.StatusBadRequest, "Title, category, and content are required.")
		return
	}
	category := models.Category(req.Category)
	if !category.Valid() {
		writeMessage(w, http.StatusBadRequest, "Invalid category.")
		return
	}

	content := req.Content
	if req.UseAI {
		content = s.processor.Improve(content)
	}

	article := &models.Article{
		Title:        req.Title,
		Category:     category,
		Content:      content,
		Tags:         req.Tags,
		ShortSummary: s.processor.Summarize(content),
		UserID:       caller.ID,
	}
	if err := s.articles.CreateArticle(r.Context(), article); err != nil {
		s.internalError(w, "create article", err)
		return
	}

	s.publish(r.Context(), models.EventArticleCreated, article.ID, article)
	writeJSON(w, http.StatusCreated, articleResponse{Message: "Article created successfully.", Article: article})
}

func (s *server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ArticleFilter{
		Category: strings.TrimSpace(q.Get("category")),
		Tags:     strings.TrimSpace(q.Get("tags")),
		Search:   strings.TrimSpace(q.Get("search")),
	}

	if s.search != nil && filter.Search != "" {
		ids, err := s.searchIDs(r.Context(), filter.Search)
		if err != nil {
			s.log.Warn("search backend failed, falling back to sql", slog.Any("err", err))
		} else {
			filter.Search = ""
			filter.IDs = ids
		}
	}

	s.writeArticleList(w, r, "list articles", filter)
}

func (s *server) handleMyArticles(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.PrincipalFromContext(r.Context())
	s.writeArticleList(w, r, "my articles", store.ArticleFilter{UserID: caller.ID})
}

func (s *server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	article, ok := s.loadArticle(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, articleResponse{Article: article})
}

func (s *server) handleUpdateArticle(w http.ResponseWriter, r *http.Request) {
	article, ok := s.loadOwnedArticle(w, r)
	if !ok {
		return
	}

	var req updateArticleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Title != nil && strings.TrimSpace(*req.Title) != "" {
		article.Title = *req.Title
	}
	if req.Category != nil {
		category := models.Category(*req.Category)
		if !category.Valid() {
			writeMessage(w, http.StatusBadRequest, "Invalid category.")
			return
		}
		article.Category = category
	}
	if req.Tags != nil {
		article.Tags = *req.Tags
	}
	if req.Content != nil && *req.Content != "" {
		content := *req.Content
		if req.UseAI {
			content = s.processor.Improve(content)
		}
		article.Content = content
		article.ShortSummary = s.processor.Summarize(content)
	}

	if err := s.articles.UpdateArticle(r.Context(), article); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Article not found.")
			return
		}
		s.internalError(w, "update article", err)
		return
	}

	s.publish(r.Context(), models.EventArticleUpdated, article.ID, article)
	writeJSON(w, http.StatusOK, articleResponse{Message: "Article updated successfully.", Article: article})
}

func (s *server) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	article, ok := s.loadOwnedArticle(w, r)
	if !ok {
		return
	}

	if err := s.articles.DeleteArticle(r.Context(), article.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.internalError(w, "delete article", err)
		return
	}

	s.publish(r.Context(), models.EventArticleDeleted, article.ID, nil)
	writeMessage(w, http.StatusOK, "Article deleted successfully.")
}

func (s *server) loadArticle(w http.ResponseWriter, r *http.Request) (*models.Article, bool) {
	article, err := s.articles.Article(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Article not found.")
			return nil, false
		}
		s.internalError(w, "get article", err)
		return nil, false
	}
	return article, true
}

// loadOwnedArticle loads the article and rejects callers that are not its author.
func (s *server) loadOwnedArticle(w http.ResponseWriter, r *http.Request) (*models.Article, bool) {
	article, ok := s.loadArticle(w, r)
	if !ok {
		return nil, false
	}
	caller, _ := auth.PrincipalFromContext(r.Context())
	if article.UserID != caller.ID {
		writeMessage(w, http.StatusForbidden, "Forbidden. You are not the author of this article.")
		return nil, false
	}
	return article, true
}

func (s *server) writeArticleList(w http.ResponseWriter, r *http.Request, op string, filter store.ArticleFilter) {
	articles, err := s.articles.ListArticles(r.Context(), filter)
	if err != nil {
		s.internalError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, articleListResponse{Count: len(articles), Articles: articles})
}

func (s *server) searchIDs(ctx context.Context, query string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.search.SearchArticles(ctx, elasticsearch.SearchParams{Query: query, Size: searchLimit})
	if err != nil {
		return nil, err
	}
	return res.IDs, nil
}

// publish emits an article event. Failures are logged and never fail the request.
func (s *server) publish(ctx context.Context, typ models.EventType, articleID string, article *models.Article) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.events.Publish(ctx, events.NewArticleEvent(typ, articleID, article)); err != nil {
		s.log.Warn("publish article event",
			slog.Any("err", err),
			slog.String("type", string(typ)),
			slog.String("article_id", articleID),
		)
	}
}
