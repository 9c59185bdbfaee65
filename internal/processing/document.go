package processing

import "github.com/DeafMist/knowledge-share/backend/internal/models"

// Document projects a stored article onto its search index form. Content is
// indexed as plain text and keywords are drawn from the title and body.
func Document(a models.Article, keywordLimit, keywordMinLen int) models.ArticleDocument {
	return models.ArticleDocument{
		ID:        a.ID,
		Title:     a.Title,
		Category:  string(a.Category),
		Tags:      SplitTags(a.Tags),
		Summary:   a.ShortSummary,
		Content:   PlainText(a.Content),
		Keywords:  ExtractKeywords(a.Title+" "+a.Content, keywordLimit, keywordMinLen),
		AuthorID:  a.UserID,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}
