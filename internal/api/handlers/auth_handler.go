package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/markdave123-py/prescodata/internal/api/respond"
	"github.com/markdave123-py/prescodata/internal/apperr"
	"github.com/markdave123-py/prescodata/internal/services"
)

type AuthHandler struct {
	users *services.UserService
	rs    *respond.Responder
}

func NewAuthHandler(users *services.UserService, rs *respond.Responder) *AuthHandler {
	return &AuthHandler{users: users, rs: rs}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := h.users.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusCreated, res, nil)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.JSON(w, http.StatusOK, res, nil)
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.rs.Error(w, r, apperr.Wrap(apperr.KindValidation, "Invalid request body", err))
		return req, false
	}
	return req, true
}
