package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewPostgresRepository connects to dsn through the pgx stdlib driver and
// applies the goose migrations.
func NewPostgresRepository(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunPostgresMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return NewRepository(db, DialectPostgres), nil
}

func isPostgresPermissionError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "42501", "28000", "28P01": // insufficient_privilege, invalid authorization, invalid password
		return true
	}
	return false
}
