package handlers

import (
	"context"
	"net/http"

	"animeshelf/models"
	"animeshelf/services/users"
)

// AccountService is the identity surface used by the HTTP API.
type AccountService interface {
	Authenticator
	Register(ctx context.Context, in users.RegisterInput) (models.Account, error)
	VerifyEmail(ctx context.Context, email, code string) error
	SignIn(ctx context.Context, email, password string) (users.Session, error)
	SignOut(ctx context.Context, sess users.Session) error
	Account(ctx context.Context, id string) (models.Account, error)
}

// AuthHandler serves registration, sign-in and the current account.
type AuthHandler struct {
	users AccountService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(usersService AccountService) *AuthHandler {
	return &AuthHandler{users: usersService}
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account.
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in users.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	acct, err := h.users.Register(r.Context(), in)
	if err != nil {
		serviceError(w, r, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

// Verify confirms an email address with the code that was sent to it.
// POST /api/auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var in verifyRequest
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.users.VerifyEmail(r.Context(), in.Email, in.Code); err != nil {
		serviceError(w, r, "verify", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

// Login exchanges credentials for a session token.
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	sess, err := h.users.SignIn(r.Context(), in.Email, in.Password)
	if err != nil {
		serviceError(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Logout revokes the current session.
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		jsonError(w, unauthenticatedMessage, http.StatusUnauthorized)
		return
	}
	if err := h.users.SignOut(r.Context(), sess); err != nil {
		serviceError(w, r, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the signed-in account.
// GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		jsonError(w, unauthenticatedMessage, http.StatusUnauthorized)
		return
	}
	acct, err := h.users.Account(r.Context(), sess.UserID)
	if err != nil {
		serviceError(w, r, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}
