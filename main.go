package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/example/shiza/internal/config"
	"github.com/example/shiza/internal/migrations"
	"github.com/gorilla/mux"
)

type App struct {
	DB             DB
	Tokens         *TokenIssuer
	Products       *ProductCache
	AllowedOrigins []string
	// ProductsRequireAuth gates /api/products behind RequireAuth.
	ProductsRequireAuth bool
	rateLimiter         *RateLimiter
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write json", "error", err)
	}
}

// openDB selects the credential store for the configured adapter.
func openDB(c *cfg.Config) (DB, error) {
	switch c.DBAdapter {
	case "file":
		return NewFileDB(c.UsersFile)
	case "memory":
		slog.Warn("using in-memory user store, registrations are lost on restart")
		return NewMemoryDB(), nil
	case "sqlite":
		return NewSQLiteDB(c.SQLiteFile)
	case "postgres":
		slog.Info("applying database migrations")
		if err := migrations.Up(c.PostgresDSN); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return NewPostgresDB(c.PostgresDSN)
	default:
		return nil, fmt.Errorf("unsupported DB_ADAPTER: %s", c.DBAdapter)
	}
}

// Router wires all routes and middleware.
func (a *App) Router() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})

	r.Use(SecurityHeaders)
	r.Use(a.Logging)
	r.Use(a.CORS)

	r.HandleFunc("/health", a.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", a.HandleReady).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(a.RateLimit)
	api.HandleFunc("/register", a.HandleRegister).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/login", a.HandleLogin).Methods(http.MethodPost, http.MethodOptions)

	protected := api.NewRoute().Subrouter()
	protected.Use(a.RequireAuth)
	protected.HandleFunc("/profile", a.HandleProfile).Methods(http.MethodGet, http.MethodOptions)

	if a.ProductsRequireAuth {
		protected.HandleFunc("/products", a.HandleProducts).Methods(http.MethodGet, http.MethodOptions)
	} else {
		api.HandleFunc("/products", a.HandleProducts).Methods(http.MethodGet, http.MethodOptions)
	}

	return r
}

func main() {
	c, err := cfg.New()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     c.LogLevel,
		AddSource: c.LogLevel == slog.LevelDebug,
	})))

	db, err := openDB(c)
	if err != nil {
		slog.Error("store init", "adapter", c.DBAdapter, "error", err)
		os.Exit(1)
	}
	slog.Info("user store ready", "adapter", c.DBAdapter)

	if !c.UpstreamConfigured() {
		slog.Warn("PRODUCTS_API_URL or PRODUCTS_API_TOKEN not set, /api/products will fail")
	}

	app := &App{
		DB:                  db,
		Tokens:              NewTokenIssuer([]byte(c.JwtSecret), c.TokenTTL),
		Products:            NewProductCache(NewProductFetcher(c.ProductsURL, c.ProductsToken, c.ProductsTimeout), c.ProductsCacheTTL),
		AllowedOrigins:      c.AllowedOrigins,
		ProductsRequireAuth: c.ProductsRequireAuth,
		rateLimiter:         NewRateLimiter(c.RateLimitPerMinute),
	}

	srv := &http.Server{
		Handler:      app.Router(),
		Addr:         ":" + c.Port,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: c.ProductsTimeout + 5*time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
	// close after Shutdown so no in-flight request writes to a closed store
	if closer, ok := app.DB.(interface{ close() error }); ok {
		if err := closer.close(); err != nil {
			slog.Error("closing user store", "error", err)
		}
	}
	slog.Info("server exited properly")
}
