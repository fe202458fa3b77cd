package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"sitebeat/auth"
	"sitebeat/collector"
	"sitebeat/sites"
	"sitebeat/store"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	log := newLogger()

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	siteMgr, err := sites.NewManager(cfg.SitesPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SitesPath).Msg("failed to load site registry")
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
	}
	defer st.Close()

	authService := auth.NewService(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authHandlers := auth.NewHandlers(authService, st, log)
	siteHandlers := sites.NewHandlers(siteMgr, log)
	coll := collector.New(siteMgr, st, log)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Collection endpoint: open to any customer page, rate limited per IP.
	r.Group(func(r chi.Router) {
		r.Use(sites.CollectCORS(siteMgr, log))
		r.Use(httprate.LimitByIP(cfg.CollectRateLimit, time.Minute))
		r.Post("/api/analytics", coll.Collect)
		r.Options("/api/analytics", func(http.ResponseWriter, *http.Request) {})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandlers.Signup)
		r.Post("/login", authHandlers.Login)
		r.Post("/refresh", authHandlers.Refresh)
		r.With(authService.Middleware).Get("/me", authHandlers.Me)
	})

	// Dashboard API, bearer token required.
	r.Group(func(r chi.Router) {
		r.Use(authService.Middleware)

		r.Route("/websites", func(r chi.Router) {
			r.Post("/", siteHandlers.Create)
			r.Get("/", siteHandlers.List)
			r.Get("/{siteID}", siteHandlers.Get)
			r.Delete("/{siteID}", siteHandlers.Delete)
		})

		r.Get("/api/analytics/stats", coll.Stats)
		r.Get("/api/analytics/sessions", coll.Sessions)
		r.Get("/api/analytics/sessions/{sessionID}", coll.Session)
		r.Get("/api/analytics/heatmap/{sessionID}", coll.SessionHeatmap)
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go gracefulShutdown(server, log)

	log.Info().Str("addr", cfg.HTTPAddr).Str("env", cfg.Env).Msg("starting server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}

	if getEnv("LOG_FORMAT", "console") == "json" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger().Level(level)
}

// requestLogger logs one line per request with method, path, status and
// duration.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("remote", r.RemoteAddr).
				Msg("request")
		})
	}
}

// gracefulShutdown handles termination signals and drains in-flight requests.
func gracefulShutdown(server *http.Server, log zerolog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down server")
	}
}
