package dto

import "github.com/recipebook/recipebook/internal/model"

// RecipeWriteResponse is returned after a create or edit. ThumbnailError
// is set when the recipe was stored without its thumbnail.
type RecipeWriteResponse struct {
	ID             int64  `json:"id"`
	ThumbnailError string `json:"thumbnail_error,omitempty"`
}

// RecipeListResponse is a page of recipe summaries.
type RecipeListResponse struct {
	Data       []model.RecipeSummary `json:"data"`
	Pagination Pagination            `json:"pagination"`
}

// ToRecipeListResponse wraps summaries with their pagination window.
func ToRecipeListResponse(recipes []model.RecipeSummary, offset, limit int) *RecipeListResponse {
	if recipes == nil {
		recipes = []model.RecipeSummary{}
	}
	return &RecipeListResponse{
		Data:       recipes,
		Pagination: Pagination{Offset: offset, Limit: limit, Count: len(recipes)},
	}
}
