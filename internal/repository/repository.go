// Package repository provides data access for the collection store.
//
// Implementations accept a DBTX so they run against the pool or inside a
// transaction obtained from database.DB.WithTransaction:
//
//	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
//	    repo := repository.NewPgCollectionRepository(tx)
//	    return repo.AddArticle(ctx, id, record)
//	})
//
// Methods return domain errors: domain.ErrNotFound for missing rows,
// domain.ErrAlreadyExists for unique violations and domain.ErrInvalidInput
// for rejected arguments. Other database errors are wrapped with %w.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/citation-network-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// PostgreSQL error codes.
const (
	pgUniqueViolation     = "23505" // unique_violation
	pgForeignKeyViolation = "23503" // foreign_key_violation
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
