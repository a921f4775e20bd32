package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, src productSource) *App {
	t.Helper()
	if src == nil {
		src = &fakeSource{products: widgets}
	}
	return &App{
		DB:                  NewMemoryDB(),
		Tokens:              NewTokenIssuer([]byte("handler-secret"), time.Hour),
		Products:            NewProductCache(src, time.Minute),
		ProductsRequireAuth: true,
	}
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func register(t *testing.T, h http.Handler, name, email, password, phone string) string {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/api/register", "", registerRequest{Name: name, Email: email, Password: password, Phone: phone})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[tokenResponse](t, w)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestRegister(t *testing.T) {
	app := newTestApp(t, nil)
	h := app.Router()

	token := register(t, h, "Shiza", "shiza@example.com", "s3cret", "0812")

	claims, err := app.Tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "Shiza", claims.Name)
	assert.Equal(t, "shiza@example.com", claims.Email)

	stored, err := app.DB.GetUserByEmail(context.Background(), "shiza@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, claims.UserID, stored.ID)
	assert.NotEqual(t, "s3cret", stored.Password)
	assert.True(t, comparePassword(stored.Password, "s3cret"))
}

func TestRegisterRejects(t *testing.T) {
	app := newTestApp(t, nil)
	h := app.Router()
	register(t, h, "Shiza", "shiza@example.com", "s3cret", "")

	cases := []struct {
		name string
		body interface{}
		code string
	}{
		{"duplicate", registerRequest{Name: "Other", Email: "SHIZA@example.com", Password: "pw"}, "DUPLICATE_EMAIL"},
		{"missing name", registerRequest{Email: "a@example.com", Password: "pw"}, "VALIDATION_ERROR"},
		{"missing email", registerRequest{Name: "A", Password: "pw"}, "VALIDATION_ERROR"},
		{"missing password", registerRequest{Name: "A", Email: "a@example.com"}, "VALIDATION_ERROR"},
		{"password too long", registerRequest{Name: "A", Email: "a@example.com", Password: strings.Repeat("x", maxPasswordBytes+1)}, "VALIDATION_ERROR"},
		{"malformed json", `{"name":`, "VALIDATION_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodPost, "/api/register", "", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decode[APIError](t, w)
			assert.Equal(t, tc.code, resp.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestLogin(t *testing.T) {
	app := newTestApp(t, nil)
	h := app.Router()
	register(t, h, "Shiza", "shiza@example.com", "s3cret", "")

	t.Run("success", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPost, "/api/login", "", loginRequest{Email: "Shiza@Example.com", Password: "s3cret"})
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[tokenResponse](t, w)
		assert.Equal(t, "login successful", resp.Message)

		claims, err := app.Tokens.Verify(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, "shiza@example.com", claims.Email)
	})

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		wrong := doJSON(t, h, http.MethodPost, "/api/login", "", loginRequest{Email: "shiza@example.com", Password: "nope"})
		unknown := doJSON(t, h, http.MethodPost, "/api/login", "", loginRequest{Email: "ghost@example.com", Password: "nope"})

		assert.Equal(t, http.StatusUnauthorized, wrong.Code)
		assert.Equal(t, http.StatusUnauthorized, unknown.Code)
		assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	})

	t.Run("missing fields", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPost, "/api/login", "", loginRequest{Email: "shiza@example.com"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestProfile(t *testing.T) {
	app := newTestApp(t, nil)
	h := app.Router()
	token := register(t, h, "Shiza", "shiza@example.com", "s3cret", "0812")

	t.Run("success", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/api/profile", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[profileResponse](t, w)
		assert.Equal(t, profileResponse{Username: "Shiza", Email: "shiza@example.com", Phone: "0812"}, resp)
		assert.NotContains(t, w.Body.String(), "password")
	})

	t.Run("no token", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/api/profile", "", nil)
		assertUnauthorized(t, w)
	})

	t.Run("unknown user", func(t *testing.T) {
		ghost, err := app.Tokens.Issue(&User{ID: "deleted-user", Name: "Ghost", Email: "ghost@example.com"})
		require.NoError(t, err)

		w := doJSON(t, h, http.MethodGet, "/api/profile", ghost, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "USER_NOT_FOUND", decode[APIError](t, w).Code)
	})
}

func TestProductsRoute(t *testing.T) {
	t.Run("requires a token by default", func(t *testing.T) {
		src := &fakeSource{products: widgets}
		h := newTestApp(t, src).Router()

		w := doJSON(t, h, http.MethodGet, "/api/products", "", nil)
		assertUnauthorized(t, w)
		assert.Zero(t, src.calls.Load())
	})

	t.Run("remote then cache", func(t *testing.T) {
		src := &fakeSource{products: widgets}
		h := newTestApp(t, src).Router()
		token := register(t, h, "Shiza", "shiza@example.com", "s3cret", "")

		w := doJSON(t, h, http.MethodGet, "/api/products", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		first := decode[productsResponse](t, w)
		assert.Equal(t, SourceRemote, first.Source)
		assert.Equal(t, widgets, first.Data)

		w = doJSON(t, h, http.MethodGet, "/api/products", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		second := decode[productsResponse](t, w)
		assert.Equal(t, SourceCache, second.Source)
		assert.Equal(t, widgets, second.Data)
		assert.EqualValues(t, 1, src.calls.Load())
	})

	t.Run("empty list encodes as array", func(t *testing.T) {
		h := newTestApp(t, &fakeSource{}).Router()
		token := register(t, h, "Shiza", "shiza@example.com", "s3cret", "")

		w := doJSON(t, h, http.MethodGet, "/api/products", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"source":"remote","data":[]}`, w.Body.String())
	})

	t.Run("misconfigured upstream", func(t *testing.T) {
		h := newTestApp(t, NewProductFetcher("", "", time.Second)).Router()
		token := register(t, h, "Shiza", "shiza@example.com", "s3cret", "")

		w := doJSON(t, h, http.MethodGet, "/api/products", token, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "UPSTREAM_MISCONFIGURED", decode[APIError](t, w).Code)
	})

	t.Run("upstream down with nothing cached", func(t *testing.T) {
		src := &fakeSource{err: fmt.Errorf("%w: connection refused", ErrUpstreamUnavailable)}
		h := newTestApp(t, src).Router()
		token := register(t, h, "Shiza", "shiza@example.com", "s3cret", "")

		w := doJSON(t, h, http.MethodGet, "/api/products", token, nil)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		resp := decode[APIError](t, w)
		assert.Equal(t, "UPSTREAM_UNAVAILABLE", resp.Code)
		assert.NotContains(t, resp.Message, "connection refused")
	})

	t.Run("open when auth is not required", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[{"name":"Widget","harga":1000,"qty":5}]`))
		}))
		defer upstream.Close()

		app := newTestApp(t, NewProductFetcher(upstream.URL, "partner-token", time.Second))
		app.ProductsRequireAuth = false

		w := doJSON(t, app.Router(), http.MethodGet, "/api/products", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t,
			`{"source":"remote","data":[{"id":"","title":"Widget","price":1000,"stock":5,"image":null,"sold":0}]}`,
			w.Body.String())
	})
}

func TestHealthAndReady(t *testing.T) {
	h := newTestApp(t, nil).Router()

	w := doJSON(t, h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = doJSON(t, h, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ready":true}`, w.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	h := newTestApp(t, nil).Router()

	w := doJSON(t, h, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode[APIError](t, w).Code)
}
