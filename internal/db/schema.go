package db

import (
	"context"
	_ "embed"

	"tipkoro/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// ApplySchema creates tables, indexes and row-level security policies. The
// script is idempotent; deployed environments run it through their
// migration pipeline and local runs apply it on start.
func ApplySchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to apply schema", err)
	}
	return nil
}
