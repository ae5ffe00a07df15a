package database

import (
	"context"
	"database/sql"

	"github.com/jask/moneyimport/internal/database/repository"
)

// SeedDefaults ensures the category buckets exist. It is idempotent and safe
// to run on every startup.
func SeedDefaults(ctx context.Context, db *sql.DB, buckets []string) error {
	catRepo := repository.NewCategoryRepo(db)
	existing, err := catRepo.List(ctx)
	if err == nil && len(existing) > 0 {
		return nil
	}
	for idx, name := range buckets {
		cat := repository.Category{ID: repository.CategoryID(name), Name: name, SortOrder: idx}
		if err := catRepo.Upsert(ctx, cat); err != nil {
			return err
		}
	}
	return nil
}
