// Package domain provides domain models and business logic for the Citation Network Service.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Collection is a user-curated set of articles. Collection members enter a
// network with ProvenanceCollection.
type Collection struct {
	// ID is the primary key for this collection.
	ID uuid.UUID `json:"id"`

	// Name is the display name, unique per store.
	Name string `json:"name"`

	// ArticleCount is the number of member articles, populated on read.
	ArticleCount int `json:"article_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCollection creates a Collection with a generated ID.
func NewCollection(name string) (*Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewValidationError("name", "must not be empty")
	}
	now := time.Now().UTC()
	return &Collection{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
