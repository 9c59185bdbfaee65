package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/DeafMist/knowledge-share/backend/internal/auth"
	"github.com/DeafMist/knowledge-share/backend/internal/models"
	"github.com/DeafMist/knowledge-share/backend/internal/store"
)

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Message string        `json:"message"`
	Token   string        `json:"token"`
	User    models.Author `json:"user"`
}

func (s *server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "All fields are required.")
		return
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.internalError(w, "signup", err)
		return
	}

	user := &models.User{Username: req.Username, Email: req.Email, PasswordHash: hash}
	if err := s.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			writeMessage(w, http.StatusConflict, "Email already registered.")
			return
		}
		s.internalError(w, "signup", err)
		return
	}

	token, err := s.tokens.Issue(*user)
	if err != nil {
		s.internalError(w, "signup", err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Message: "User registered successfully.",
		Token:   token,
		User:    user.Public(),
	})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Email and password are required.")
		return
	}

	user, err := s.users.UserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusUnauthorized, "Invalid credentials.")
			return
		}
		s.internalError(w, "login", err)
		return
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeMessage(w, http.StatusUnauthorized, "Invalid credentials.")
			return
		}
		s.internalError(w, "login", err)
		return
	}

	token, err := s.tokens.Issue(*user)
	if err != nil {
		s.internalError(w, "login", err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Message: "Login successful.",
		Token:   token,
		User:    user.Public(),
	})
}
