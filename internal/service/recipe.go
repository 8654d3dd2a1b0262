package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/recipebook/recipebook/internal/apperror"
	"github.com/recipebook/recipebook/internal/document"
	"github.com/recipebook/recipebook/internal/metrics"
	"github.com/recipebook/recipebook/internal/model"
	"github.com/recipebook/recipebook/internal/repository"
	"github.com/recipebook/recipebook/internal/thumbnail"
	"github.com/recipebook/recipebook/internal/validation"
)

// RecipeStore is the relational recipe persistence used by RecipeService.
type RecipeStore interface {
	CreateRecipe(ctx context.Context, recipe *model.Recipe) error
	GetRecipeByID(ctx context.Context, id int64) (*model.Recipe, error)
	RecipeExists(ctx context.Context, id int64) (bool, error)
	GetRecipeOwnerID(ctx context.Context, id int64) (int64, error)
	DeleteRecipe(ctx context.Context, id int64) error
	ListRecipes(ctx context.Context, page repository.Page) ([]*model.Recipe, error)
	ListRecipesByOwner(ctx context.Context, ownerID int64, page repository.Page) ([]*model.Recipe, error)
	UpsertThumbnail(ctx context.Context, thumb *model.Thumbnail) (string, error)
}

// UserReader resolves recipe posters.
type UserReader interface {
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
}

// DocumentStore keeps recipe documents outside the database.
type DocumentStore interface {
	Write(ctx context.Context, ref string, doc *model.RecipeDocument) error
	Read(ctx context.Context, ref string) (*model.RecipeDocument, error)
	Delete(ctx context.Context, ref string) error
}

// ThumbnailUpload is a thumbnail as received from the client.
type ThumbnailUpload struct {
	Data        []byte
	ContentType string
	FileName    string
}

// RecipeResult is the outcome of a create or edit. ThumbnailErr is set when
// the recipe was stored but its thumbnail was not.
type RecipeResult struct {
	ID           int64
	ThumbnailErr error
}

// RecipeService orchestrates recipe writes across the database, the
// document store and the thumbnail store. No transaction spans them; a
// failed insert deletes the document it just wrote, and thumbnail failures
// never undo the recipe.
type RecipeService struct {
	recipes      RecipeStore
	users        UserReader
	docs         DocumentStore
	thumbs       thumbnail.Store
	maxThumbSize int64
	store        storeCaller
	metrics      metrics.Recorder
	logger       *slog.Logger
}

// NewRecipeService creates a new RecipeService.
func NewRecipeService(
	recipes RecipeStore,
	users UserReader,
	docs DocumentStore,
	thumbs thumbnail.Store,
	maxThumbSize int64,
	storeTimeout time.Duration,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *RecipeService {
	store := newStoreCaller(storeTimeout, recorder)
	return &RecipeService{
		recipes:      recipes,
		users:        users,
		docs:         docs,
		thumbs:       thumbs,
		maxThumbSize: maxThumbSize,
		store:        store,
		metrics:      store.metrics,
		logger:       logger.With(slog.String("component", "recipe_service")),
	}
}

// Create validates and stores a new recipe owned by the identity.
func (s *RecipeService) Create(ctx context.Context, identity *model.Identity, doc *model.RecipeDocument, upload *ThumbnailUpload) (*RecipeResult, error) {
	if err := validation.Document(doc); err != nil {
		return nil, err
	}
	img, err := s.checkThumbnail(upload)
	if err != nil {
		return nil, err
	}

	ref := document.NewRef(identity.UserID)

	err = s.store.call(ctx, metrics.StoreDocument, "write", func(ctx context.Context) error {
		return s.docs.Write(ctx, ref, doc)
	})
	if err != nil {
		return nil, storeError(apperror.KindFileIoFailure, "could not store recipe document", err)
	}

	recipe := &model.Recipe{OwnerID: identity.UserID, DocumentRef: ref}
	err = s.store.call(ctx, metrics.StoreDatabase, "create_recipe", func(ctx context.Context) error {
		return s.recipes.CreateRecipe(ctx, recipe)
	})
	if err != nil {
		s.compensate(ctx, ref, err)
		return nil, storeError(apperror.KindDbFailure, "could not store recipe", err)
	}

	s.metrics.IncRecipeCreated()
	s.logger.Info("recipe created",
		slog.Int64("recipe_id", recipe.ID),
		slog.Int64("owner_id", recipe.OwnerID),
		slog.String("document_ref", ref),
	)

	result := &RecipeResult{ID: recipe.ID}
	if img != nil {
		result.ThumbnailErr = s.attachThumbnail(ctx, recipe.ID, ref, img)
	}
	return result, nil
}

// compensate deletes the document of a recipe whose row could not be
// inserted. A failure here is logged and never replaces the original error.
func (s *RecipeService) compensate(ctx context.Context, ref string, cause error) {
	err := s.store.call(detached(ctx), metrics.StoreDocument, "delete", func(ctx context.Context) error {
		return s.docs.Delete(ctx, ref)
	})
	if err != nil {
		s.metrics.IncCompensation(metrics.CompensationFailed)
		s.logger.Error("compensation failed, document orphaned",
			slog.String("document_ref", ref),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()),
		)
		return
	}

	s.metrics.IncCompensation(metrics.CompensationOK)
	s.logger.Warn("recipe insert failed, document removed",
		slog.String("document_ref", ref),
		slog.String("cause", cause.Error()),
	)
}

// Edit replaces the document of a recipe owned by the identity. The row is
// never touched, so a failed write leaves the previous document in place.
func (s *RecipeService) Edit(ctx context.Context, identity *model.Identity, id int64, doc *model.RecipeDocument, upload *ThumbnailUpload) (*RecipeResult, error) {
	if err := s.authorize(ctx, identity, id); err != nil {
		return nil, err
	}

	if err := validation.Document(doc); err != nil {
		return nil, err
	}
	img, err := s.checkThumbnail(upload)
	if err != nil {
		return nil, err
	}

	recipe, err := s.loadRecipe(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.store.call(ctx, metrics.StoreDocument, "write", func(ctx context.Context) error {
		return s.docs.Write(ctx, recipe.DocumentRef, doc)
	})
	if err != nil {
		return nil, storeError(apperror.KindFileIoFailure, "could not store recipe document", err)
	}

	s.metrics.IncRecipeEdited()
	s.logger.Info("recipe edited",
		slog.Int64("recipe_id", id),
		slog.Int64("owner_id", identity.UserID),
	)

	result := &RecipeResult{ID: id}
	if img != nil {
		result.ThumbnailErr = s.attachThumbnail(ctx, id, recipe.DocumentRef, img)
	}
	return result, nil
}

// Delete removes a recipe owned by the identity. The row goes first; the
// document and thumbnail are then removed best effort.
func (s *RecipeService) Delete(ctx context.Context, identity *model.Identity, id int64) error {
	if err := s.authorize(ctx, identity, id); err != nil {
		return err
	}

	recipe, err := s.loadRecipe(ctx, id)
	if err != nil {
		return err
	}

	err = s.store.call(ctx, metrics.StoreDatabase, "delete_recipe", func(ctx context.Context) error {
		return s.recipes.DeleteRecipe(ctx, id)
	})
	if err != nil {
		if errors.Is(err, repository.ErrRecipeNotFound) {
			return apperror.New(apperror.KindNotFound, "recipe not found")
		}
		return storeError(apperror.KindDbFailure, "could not delete recipe", err)
	}

	cleanupCtx := detached(ctx)
	err = s.store.call(cleanupCtx, metrics.StoreDocument, "delete", func(ctx context.Context) error {
		return s.docs.Delete(ctx, recipe.DocumentRef)
	})
	if err != nil {
		s.logger.Warn("recipe document not removed",
			slog.Int64("recipe_id", id),
			slog.String("document_ref", recipe.DocumentRef),
			slog.String("error", err.Error()),
		)
	}
	if recipe.ThumbnailPath != "" {
		s.removeThumbnail(cleanupCtx, id, recipe.ThumbnailPath)
	}

	s.logger.Info("recipe deleted",
		slog.Int64("recipe_id", id),
		slog.Int64("owner_id", identity.UserID),
	)
	return nil
}

// authorize checks that the recipe exists and belongs to the identity.
func (s *RecipeService) authorize(ctx context.Context, identity *model.Identity, id int64) error {
	var ownerID int64
	err := s.store.call(ctx, metrics.StoreDatabase, "get_owner", func(ctx context.Context) error {
		var err error
		ownerID, err = s.recipes.GetRecipeOwnerID(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrRecipeNotFound) {
			return apperror.New(apperror.KindNotFound, "recipe not found")
		}
		return storeError(apperror.KindDbFailure, "could not load recipe", err)
	}

	if ownerID != identity.UserID {
		s.logger.Warn("recipe change denied",
			slog.Int64("recipe_id", id),
			slog.Int64("owner_id", ownerID),
			slog.Int64("user_id", identity.UserID),
		)
		return apperror.New(apperror.KindNotOwner, "you do not own this recipe")
	}
	return nil
}

func (s *RecipeService) checkThumbnail(upload *ThumbnailUpload) (*thumbnail.Image, error) {
	if upload == nil {
		return nil, nil
	}
	return thumbnail.Check(upload.ContentType, upload.FileName, upload.Data, s.maxThumbSize)
}

// attachThumbnail stores the image and records it for the recipe. Failures
// are logged and returned for reporting but never undo the recipe.
func (s *RecipeService) attachThumbnail(ctx context.Context, recipeID int64, ref string, img *thumbnail.Image) error {
	name := thumbnail.FileName(document.Suffix(ref), img.Ext)

	var path string
	err := s.store.call(ctx, metrics.StoreThumbnail, "save", func(ctx context.Context) error {
		var err error
		path, err = s.thumbs.Save(ctx, name, img.Data, img.ContentType)
		return err
	})
	if err != nil {
		return s.thumbnailFailed(recipeID, apperror.KindFileIoFailure, "thumbnail could not be stored", err)
	}

	var previous string
	err = s.store.call(ctx, metrics.StoreDatabase, "upsert_thumbnail", func(ctx context.Context) error {
		var err error
		previous, err = s.recipes.UpsertThumbnail(ctx, &model.Thumbnail{RecipeID: recipeID, Path: path})
		return err
	})
	if err != nil {
		return s.thumbnailFailed(recipeID, apperror.KindDbFailure, "thumbnail could not be recorded", err)
	}

	if previous != "" && previous != path {
		s.removeThumbnail(detached(ctx), recipeID, previous)
	}
	return nil
}

func (s *RecipeService) thumbnailFailed(recipeID int64, kind apperror.Kind, message string, err error) error {
	s.metrics.IncThumbnailFailure()
	s.logger.Warn("thumbnail not attached",
		slog.Int64("recipe_id", recipeID),
		slog.String("error", err.Error()),
	)
	return storeError(kind, message, err)
}

func (s *RecipeService) removeThumbnail(ctx context.Context, recipeID int64, path string) {
	err := s.store.call(ctx, metrics.StoreThumbnail, "delete", func(ctx context.Context) error {
		return s.thumbs.Delete(ctx, path)
	})
	if err != nil {
		s.logger.Warn("thumbnail file not removed",
			slog.Int64("recipe_id", recipeID),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// Get returns a recipe with its document and poster.
func (s *RecipeService) Get(ctx context.Context, id int64) (*model.FullRecipe, error) {
	recipe, err := s.loadRecipe(ctx, id)
	if err != nil {
		return nil, err
	}

	doc, err := s.readDocument(ctx, recipe.DocumentRef)
	if err != nil {
		return nil, err
	}

	var poster *model.User
	err = s.store.call(ctx, metrics.StoreDatabase, "get_user", func(ctx context.Context) error {
		var err error
		poster, err = s.users.GetUserByID(ctx, recipe.OwnerID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "recipe poster not found")
		}
		return nil, storeError(apperror.KindDbFailure, "could not load recipe poster", err)
	}

	return &model.FullRecipe{
		ID:          recipe.ID,
		Recipe:      *doc,
		Poster:      poster.Public(),
		DateCreated: recipe.CreatedAt,
		Thumbnail:   recipe.ThumbnailPath,
	}, nil
}

// Exists reports whether a recipe exists.
func (s *RecipeService) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.store.call(ctx, metrics.StoreDatabase, "recipe_exists", func(ctx context.Context) error {
		var err error
		exists, err = s.recipes.RecipeExists(ctx, id)
		return err
	})
	if err != nil {
		return false, storeError(apperror.KindDbFailure, "could not check recipe", err)
	}
	return exists, nil
}

// List returns a page of recipe summaries ordered by ID.
func (s *RecipeService) List(ctx context.Context, page repository.Page) ([]model.RecipeSummary, error) {
	var recipes []*model.Recipe
	err := s.store.call(ctx, metrics.StoreDatabase, "list_recipes", func(ctx context.Context) error {
		var err error
		recipes, err = s.recipes.ListRecipes(ctx, page)
		return err
	})
	if err != nil {
		return nil, storeError(apperror.KindDbFailure, "could not list recipes", err)
	}
	return s.summaries(ctx, recipes), nil
}

// ListByOwner returns a page of one user's recipes ordered by ID.
func (s *RecipeService) ListByOwner(ctx context.Context, ownerID int64, page repository.Page) ([]model.RecipeSummary, error) {
	err := s.store.call(ctx, metrics.StoreDatabase, "get_user", func(ctx context.Context) error {
		_, err := s.users.GetUserByID(ctx, ownerID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "user not found")
		}
		return nil, storeError(apperror.KindDbFailure, "could not load user", err)
	}

	var recipes []*model.Recipe
	err = s.store.call(ctx, metrics.StoreDatabase, "list_recipes_by_owner", func(ctx context.Context) error {
		var err error
		recipes, err = s.recipes.ListRecipesByOwner(ctx, ownerID, page)
		return err
	})
	if err != nil {
		return nil, storeError(apperror.KindDbFailure, "could not list recipes", err)
	}
	return s.summaries(ctx, recipes), nil
}

// summaries builds listing rows. Titles come from the documents and are
// left empty when a document cannot be read.
func (s *RecipeService) summaries(ctx context.Context, recipes []*model.Recipe) []model.RecipeSummary {
	out := make([]model.RecipeSummary, 0, len(recipes))
	for _, r := range recipes {
		summary := model.RecipeSummary{
			ID:        r.ID,
			OwnerID:   r.OwnerID,
			CreatedAt: r.CreatedAt,
			Thumbnail: r.ThumbnailPath,
		}
		if doc, err := s.readDocument(ctx, r.DocumentRef); err == nil {
			summary.Title = doc.Title
		} else {
			s.logger.Debug("recipe title unavailable",
				slog.Int64("recipe_id", r.ID),
				slog.String("error", err.Error()),
			)
		}
		out = append(out, summary)
	}
	return out
}

func (s *RecipeService) loadRecipe(ctx context.Context, id int64) (*model.Recipe, error) {
	var recipe *model.Recipe
	err := s.store.call(ctx, metrics.StoreDatabase, "get_recipe", func(ctx context.Context) error {
		var err error
		recipe, err = s.recipes.GetRecipeByID(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrRecipeNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "recipe not found")
		}
		return nil, storeError(apperror.KindDbFailure, "could not load recipe", err)
	}
	return recipe, nil
}

func (s *RecipeService) readDocument(ctx context.Context, ref string) (*model.RecipeDocument, error) {
	var doc *model.RecipeDocument
	err := s.store.call(ctx, metrics.StoreDocument, "read", func(ctx context.Context) error {
		var err error
		doc, err = s.docs.Read(ctx, ref)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, document.ErrNotFound):
			return nil, apperror.Wrap(apperror.KindNotFound, "recipe document not found", err)
		case errors.Is(err, document.ErrCorrupt):
			return nil, apperror.Wrap(apperror.KindCorrupt, "recipe document is unreadable", err)
		default:
			return nil, storeError(apperror.KindFileIoFailure, "could not read recipe document", err)
		}
	}
	return doc, nil
}
