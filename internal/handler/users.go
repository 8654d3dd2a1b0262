package handler

import (
	"log/slog"
	"net/http"

	"github.com/recipebook/recipebook/internal/auth"
	"github.com/recipebook/recipebook/internal/handler/dto"
	"github.com/recipebook/recipebook/internal/model"
	"github.com/recipebook/recipebook/internal/service"
)

// UserHandler handles account and user endpoints.
type UserHandler struct {
	svc    *service.UserService
	logger *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		svc:    svc,
		logger: logger,
	}
}

// Register handles POST /v1/users/register.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input service.RegisterInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.svc.Register(r.Context(), input)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.RegisterResponse{ID: user.ID, Username: user.Username})
}

// Login handles POST /v1/users/login.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input service.LoginInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	session, err := h.svc.Login(r.Context(), input)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LoginResponse{
		Token:     session.Token,
		ExpiresAt: session.Identity.ExpiresAt,
	})
}

// List handles GET /v1/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := pageQuery(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	users, err := h.svc.ListUsers(r.Context(), page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToUserListResponse(users, page.Offset, page.Limit))
}

// Get handles GET /v1/users/{id}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user.Public())
}

// Verify handles GET /v1/account/verify. It only echoes the identity the
// auth gate attached.
func (h *UserHandler) Verify(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustIdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, verifyResponse(identity))
}

func verifyResponse(identity *model.Identity) dto.VerifyResponse {
	return dto.VerifyResponse{
		UID:       identity.UserID,
		Username:  identity.Username,
		ExpiresAt: identity.ExpiresAt,
	}
}
