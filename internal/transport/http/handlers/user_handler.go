package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/vedran77/hadra/internal/domain"
	"github.com/vedran77/hadra/internal/service"
	"github.com/vedran77/hadra/internal/transport/http/middleware"
)

type UserHandler struct {
	userService *service.UserService
	authService *service.AuthService
	logger      *slog.Logger
}

func NewUserHandler(userService *service.UserService, authService *service.AuthService, logger *slog.Logger) *UserHandler {
	return &UserHandler{userService: userService, authService: authService, logger: logger}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.logger.Error("list users", "user_id", middleware.GetUserID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, publicUsers(users))
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetUserByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.Error("get user", "user_id", middleware.GetUserID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	writeJSON(w, http.StatusOK, user.Public())
}

func (h *UserHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := h.authService.GetFriends(r.Context())
	if err != nil {
		h.logger.Error("list friends", "user_id", middleware.GetUserID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, friends)
}

func (h *UserHandler) IsFriend(w http.ResponseWriter, r *http.Request) {
	ok, err := h.authService.IsFriend(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.Error("is friend", "user_id", middleware.GetUserID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_friend": ok})
}

func (h *UserHandler) AddFriend(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.AddFriend(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		} else {
			h.logger.Error("add friend", "user_id", middleware.GetUserID(r.Context()), "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.RemoveFriend(r.Context(), r.PathValue("id")); err != nil {
		h.logger.Error("remove friend", "user_id", middleware.GetUserID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func publicUsers(users []domain.User) []domain.User {
	out := make([]domain.User, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out
}
