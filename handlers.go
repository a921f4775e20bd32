package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// maxBodyBytes bounds JSON request bodies on the auth routes.
const maxBodyBytes = 1 << 20

// maxPasswordBytes is the most input bcrypt will consider.
const maxPasswordBytes = 72

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

type profileResponse struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body", ErrValidation)
	}
	return nil
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeBody(w, r, &in); err != nil {
		writeAppError(w, r, err)
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" {
		writeAppError(w, r, fmt.Errorf("%w: name, email and password are required", ErrValidation))
		return
	}
	if len(in.Password) > maxPasswordBytes {
		writeAppError(w, r, fmt.Errorf("%w: password must be at most %d bytes", ErrValidation, maxPasswordBytes))
		return
	}

	hashed, err := hashPassword(in.Password)
	if err != nil {
		writeAppError(w, r, fmt.Errorf("hash password: %w", err))
		return
	}
	user, err := a.DB.CreateUser(r.Context(), &User{
		Name:     in.Name,
		Email:    in.Email,
		Password: hashed,
		Phone:    strings.TrimSpace(in.Phone),
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	token, err := a.Tokens.Issue(user)
	if err != nil {
		writeAppError(w, r, fmt.Errorf("issue token: %w", err))
		return
	}
	slog.Info("user registered", append(reqAttrs(r), "user_id", user.ID)...)
	writeJSON(w, http.StatusOK, tokenResponse{Message: "registration successful", Token: token})
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeBody(w, r, &in); err != nil {
		writeAppError(w, r, err)
		return
	}
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		writeAppError(w, r, fmt.Errorf("%w: email and password are required", ErrValidation))
		return
	}

	user, err := a.DB.GetUserByEmail(r.Context(), in.Email)
	if err != nil {
		writeAppError(w, r, fmt.Errorf("lookup user: %w", err))
		return
	}
	if user == nil || !comparePassword(user.Password, in.Password) {
		writeAppError(w, r, ErrInvalidCredentials)
		return
	}

	token, err := a.Tokens.Issue(user)
	if err != nil {
		writeAppError(w, r, fmt.Errorf("issue token: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Message: "login successful", Token: token})
}

func (a *App) HandleProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeAppError(w, r, ErrMissingToken)
		return
	}
	user, err := a.DB.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		writeAppError(w, r, fmt.Errorf("lookup user: %w", err))
		return
	}
	if user == nil {
		writeAppError(w, r, ErrUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{
		Username: user.Name,
		Email:    user.Email,
		Phone:    user.Phone,
	})
}
