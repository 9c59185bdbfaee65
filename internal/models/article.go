package models

import "time"

// Category is one of the fixed article categories.
type Category string

const (
	CategoryTech     Category = "Tech"
	CategoryAI       Category = "AI"
	CategoryBackend  Category = "Backend"
	CategoryFrontend Category = "Frontend"
	CategoryDevOps   Category = "DevOps"
)

// Categories lists every accepted category.
var Categories = []Category{CategoryTech, CategoryAI, CategoryBackend, CategoryFrontend, CategoryDevOps}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Article is the stored representation of an article.
type Article struct {
	ID           string    `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	Category     Category  `json:"category" db:"category"`
	Content      string    `json:"content" db:"content"`
	Tags         string    `json:"tags" db:"tags"`
	ShortSummary string    `json:"shortSummary" db:"short_summary"`
	UserID       string    `json:"userId" db:"user_id"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
	Author       *Author   `json:"author,omitempty" db:"author"`
}

// ArticleDocument is the search index projection of an article.
type ArticleDocument struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags"`
	Summary   string    `json:"summary"`
	Content   string    `json:"content"`
	Keywords  []string  `json:"keywords"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
