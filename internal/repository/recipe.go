package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/recipebook/recipebook/internal/model"
)

// Common errors for recipe repository operations.
var (
	ErrRecipeNotFound    = errors.New("recipe not found")
	ErrDocumentRefExists = errors.New("document reference already in use")
)

const recipeColumns = `r.id, r.owner_id, r.document_ref, r.created_at, COALESCE(t.path, '')`

// CreateRecipe inserts a recipe row and fills in its ID and CreatedAt.
func (r *Repository) CreateRecipe(ctx context.Context, recipe *model.Recipe) error {
	query := `
		INSERT INTO recipes (owner_id, document_ref)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query, recipe.OwnerID, recipe.DocumentRef).
		Scan(&recipe.ID, &recipe.CreatedAt)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return ErrDocumentRefExists
		}
		return fmt.Errorf("failed to create recipe: %w", err)
	}

	return nil
}

// GetRecipeByID retrieves a recipe with its thumbnail path, if any.
func (r *Repository) GetRecipeByID(ctx context.Context, id int64) (*model.Recipe, error) {
	query := `
		SELECT ` + recipeColumns + `
		FROM recipes r
		LEFT JOIN recipe_thumbnails t ON t.recipe_id = r.id
		WHERE r.id = $1
	`

	recipe, err := scanRecipe(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecipeNotFound
		}
		return nil, fmt.Errorf("failed to get recipe by ID: %w", err)
	}

	return recipe, nil
}

// RecipeExists reports whether a recipe with the ID exists.
func (r *Repository) RecipeExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM recipes WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check recipe: %w", err)
	}
	return exists, nil
}

// GetRecipeOwnerID returns the owner of a recipe.
func (r *Repository) GetRecipeOwnerID(ctx context.Context, id int64) (int64, error) {
	var ownerID int64
	err := r.pool.QueryRow(ctx, `SELECT owner_id FROM recipes WHERE id = $1`, id).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrRecipeNotFound
		}
		return 0, fmt.Errorf("failed to get recipe owner: %w", err)
	}
	return ownerID, nil
}

// DeleteRecipe removes a recipe row. Its thumbnail record goes with it.
func (r *Repository) DeleteRecipe(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM recipes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrRecipeNotFound
	}
	return nil
}

// ListRecipes returns a page of recipes ordered by ascending ID.
func (r *Repository) ListRecipes(ctx context.Context, page Page) ([]*model.Recipe, error) {
	query := `
		SELECT ` + recipeColumns + `
		FROM recipes r
		LEFT JOIN recipe_thumbnails t ON t.recipe_id = r.id
		ORDER BY r.id ASC
		LIMIT $1 OFFSET $2
	`

	return r.queryRecipes(ctx, query, page.Limit, page.Offset)
}

// ListRecipesByOwner returns a page of one user's recipes ordered by ascending ID.
func (r *Repository) ListRecipesByOwner(ctx context.Context, ownerID int64, page Page) ([]*model.Recipe, error) {
	query := `
		SELECT ` + recipeColumns + `
		FROM recipes r
		LEFT JOIN recipe_thumbnails t ON t.recipe_id = r.id
		WHERE r.owner_id = $1
		ORDER BY r.id ASC
		LIMIT $2 OFFSET $3
	`

	return r.queryRecipes(ctx, query, ownerID, page.Limit, page.Offset)
}

func (r *Repository) queryRecipes(ctx context.Context, query string, args ...any) ([]*model.Recipe, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	defer rows.Close()

	var recipes []*model.Recipe
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipe: %w", err)
		}
		recipes = append(recipes, recipe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recipes: %w", err)
	}

	return recipes, nil
}

func scanRecipe(row pgx.Row) (*model.Recipe, error) {
	var recipe model.Recipe
	err := row.Scan(
		&recipe.ID,
		&recipe.OwnerID,
		&recipe.DocumentRef,
		&recipe.CreatedAt,
		&recipe.ThumbnailPath,
	)
	if err != nil {
		return nil, err
	}
	return &recipe, nil
}
