package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helixir/citation-network-service/internal/domain"
)

var _ CollectionRepository = (*PgCollectionRepository)(nil)

// PgCollectionRepository is a PostgreSQL implementation of CollectionRepository.
type PgCollectionRepository struct {
	db DBTX
}

// NewPgCollectionRepository creates a new PostgreSQL collection repository.
func NewPgCollectionRepository(db DBTX) *PgCollectionRepository {
	return &PgCollectionRepository{db: db}
}

const collectionColumns = `c.id, c.name, c.created_at, c.updated_at,
		(SELECT count(*) FROM collection_articles a WHERE a.collection_id = c.id)`

// CreateCollection implements CollectionRepository.
func (r *PgCollectionRepository) CreateCollection(ctx context.Context, name string) (*domain.Collection, error) {
	c, err := domain.NewCollection(name)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO collections (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.db.Exec(ctx, query, c.ID, c.Name, c.CreatedAt, c.UpdatedAt); err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return nil, domain.NewAlreadyExistsError("collection", c.Name)
		}
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return c, nil
}

// GetCollection implements CollectionRepository.
func (r *PgCollectionRepository) GetCollection(ctx context.Context, id uuid.UUID) (*domain.Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections c WHERE c.id = $1`

	c, err := scanCollection(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("collection", id.String())
		}
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return c, nil
}

// ListCollections implements CollectionRepository.
func (r *PgCollectionRepository) ListCollections(ctx context.Context) ([]*domain.Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections c ORDER BY c.name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	collections := make([]*domain.Collection, 0)
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		collections = append(collections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collections: %w", err)
	}
	return collections, nil
}

// DeleteCollection implements CollectionRepository. Articles are removed by
// the ON DELETE CASCADE foreign key.
func (r *PgCollectionRepository) DeleteCollection(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("collection", id.String())
	}
	return nil
}

// AddArticle implements CollectionRepository.
func (r *PgCollectionRepository) AddArticle(ctx context.Context, collectionID uuid.UUID, rec domain.ArticleRecord) error {
	if !rec.Valid() {
		return domain.NewValidationError("article", "id and title are required")
	}
	if rec.IsPlaceholder() {
		return domain.NewValidationError("article", "placeholder records cannot be stored")
	}

	query := `
		INSERT INTO collection_articles (
			collection_id, article_id, title, authors, venue, year,
			abstract, doi, citation_count, keywords
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (collection_id, article_id) DO UPDATE SET
			title = EXCLUDED.title,
			authors = EXCLUDED.authors,
			venue = EXCLUDED.venue,
			year = EXCLUDED.year,
			abstract = EXCLUDED.abstract,
			doi = EXCLUDED.doi,
			citation_count = EXCLUDED.citation_count,
			keywords = EXCLUDED.keywords`

	_, err := r.db.Exec(ctx, query,
		collectionID, rec.ID, rec.Title, nonNil(rec.Authors), rec.Venue, rec.Year,
		rec.Abstract, rec.DOI, rec.CitationCount, nonNil(rec.Keywords),
	)
	if err != nil {
		if pgErrorCode(err) == pgForeignKeyViolation {
			return domain.NewNotFoundError("collection", collectionID.String())
		}
		return fmt.Errorf("failed to add article: %w", err)
	}
	return nil
}

// ListArticles implements CollectionRepository.
func (r *PgCollectionRepository) ListArticles(ctx context.Context, collectionID uuid.UUID) ([]domain.ArticleRecord, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM collections WHERE id = $1)`, collectionID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return nil, domain.NewNotFoundError("collection", collectionID.String())
	}

	query := `
		SELECT article_id, title, authors, venue, year, abstract, doi, citation_count, keywords
		FROM collection_articles
		WHERE collection_id = $1
		ORDER BY added_at, article_id`

	rows, err := r.db.Query(ctx, query, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	articles := make([]domain.ArticleRecord, 0)
	for rows.Next() {
		var (
			id, title, venue, abstract, doi string
			authors, keywords               []string
			year, citations                 int
		)
		if err := rows.Scan(&id, &title, &authors, &venue, &year, &abstract, &doi, &citations, &keywords); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, domain.NewArticleRecord(id, title, authors, venue, year, abstract, doi, citations, keywords))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating articles: %w", err)
	}
	return articles, nil
}

// RemoveArticle implements CollectionRepository.
func (r *PgCollectionRepository) RemoveArticle(ctx context.Context, collectionID uuid.UUID, articleID string) error {
	articleID = strings.TrimSpace(articleID)
	if articleID == "" {
		return domain.NewValidationError("article_id", "must not be empty")
	}

	tag, err := r.db.Exec(ctx,
		`DELETE FROM collection_articles WHERE collection_id = $1 AND article_id = $2`,
		collectionID, articleID)
	if err != nil {
		return fmt.Errorf("failed to remove article: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("article", articleID)
	}
	return nil
}

func scanCollection(row pgx.Row) (*domain.Collection, error) {
	var c domain.Collection
	var count int64
	if err := row.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt, &count); err != nil {
		return nil, err
	}
	c.ArticleCount = int(count)
	return &c, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
