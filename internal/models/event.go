package models

import "time"

// EventType names an article lifecycle change.
type EventType string

const (
	EventArticleCreated EventType = "article.created"
	EventArticleUpdated EventType = "article.updated"
	EventArticleDeleted EventType = "article.deleted"
)

// ArticleEvent is published on the article events topic. Article is nil
// for deletions.
type ArticleEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	ArticleID  string    `json:"articleId"`
	Article    *Article  `json:"article,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
