package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/citation-network-service/internal/domain"
)

// CollectionRepository stores user-curated article collections. The network
// builder only reads from it through ListArticles.
type CollectionRepository interface {
	// CreateCollection inserts a collection with a new ID.
	// Returns domain.ErrAlreadyExists if the name is taken and
	// domain.ErrInvalidInput if it is blank.
	CreateCollection(ctx context.Context, name string) (*domain.Collection, error)

	// GetCollection returns a collection with its article count.
	// Returns domain.ErrNotFound if it does not exist.
	GetCollection(ctx context.Context, id uuid.UUID) (*domain.Collection, error)

	// ListCollections returns every collection ordered by name.
	ListCollections(ctx context.Context) ([]*domain.Collection, error)

	// DeleteCollection removes a collection and its articles.
	// Returns domain.ErrNotFound if it does not exist.
	DeleteCollection(ctx context.Context, id uuid.UUID) error

	// AddArticle stores rec in the collection, replacing an earlier copy
	// with the same article ID. Returns domain.ErrNotFound if the collection
	// does not exist and domain.ErrInvalidInput if rec has no ID or title.
	AddArticle(ctx context.Context, collectionID uuid.UUID, rec domain.ArticleRecord) error

	// ListArticles returns the collection's articles in insertion order.
	// Returns domain.ErrNotFound if the collection does not exist.
	ListArticles(ctx context.Context, collectionID uuid.UUID) ([]domain.ArticleRecord, error)

	// RemoveArticle removes one article from the collection.
	// Returns domain.ErrNotFound if the article is not in the collection.
	RemoveArticle(ctx context.Context, collectionID uuid.UUID, articleID string) error
}
