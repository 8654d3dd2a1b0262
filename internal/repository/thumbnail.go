package repository

import (
	"context"
	"fmt"

	"github.com/recipebook/recipebook/internal/model"
)

// UpsertThumbnail records the thumbnail of a recipe, replacing any previous one.
// It returns the path that was replaced, or "" if there was none.
func (r *Repository) UpsertThumbnail(ctx context.Context, thumb *model.Thumbnail) (string, error) {
	query := `
		WITH previous AS (
			SELECT path FROM recipe_thumbnails WHERE recipe_id = $1
		)
		INSERT INTO recipe_thumbnails (recipe_id, path, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (recipe_id) DO UPDATE
			SET path = EXCLUDED.path, updated_at = EXCLUDED.updated_at
		RETURNING COALESCE((SELECT path FROM previous), '')
	`

	var previous string
	if err := r.pool.QueryRow(ctx, query, thumb.RecipeID, thumb.Path).Scan(&previous); err != nil {
		return "", fmt.Errorf("failed to upsert thumbnail: %w", err)
	}
	return previous, nil
}
