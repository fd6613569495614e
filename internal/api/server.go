package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ai-game-oneday/ai-game-oneday-server/internal/enhance"
	"github.com/ai-game-oneday/ai-game-oneday-server/internal/graph"
	"github.com/ai-game-oneday/ai-game-oneday-server/internal/history"
	"github.com/ai-game-oneday/ai-game-oneday-server/internal/rembg"
	"github.com/ai-game-oneday/ai-game-oneday-server/internal/workflow"
)

// Generator runs one compiled workflow to a base64-encoded image.
// Implemented by comfy.Client; stubbed in tests.
type Generator interface {
	Generate(ctx context.Context, spec graph.Spec, timeout time.Duration) (string, error)
}

type Server struct {
	secret    string
	timeout   time.Duration
	workflows *workflow.Manager
	engine    Generator
	enhancer  enhance.Enhancer
	rembg     *rembg.Client
	history   history.Repository
}

func NewServer(secret string, timeout time.Duration, workflows *workflow.Manager, engine Generator, enhancer enhance.Enhancer) *Server {
	return &Server{
		secret:    secret,
		timeout:   timeout,
		workflows: workflows,
		engine:    engine,
		enhancer:  enhancer,
	}
}

// SetRembg enables the background-removal post-processing step.
func (s *Server) SetRembg(c *rembg.Client) { s.rembg = c }

// SetHistory enables generation-history recording.
func (s *Server) SetHistory(repo history.Repository) { s.history = repo }

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		// The game client sends a null origin, so the wildcard is required.
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))
	r.Use(securityHeaders)

	r.Get("/", s.status)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/generate-image", s.handleGenerate(assetGeneral))
		r.Post("/generate-fish", s.handleGenerate(assetFish))
		r.Post("/generate-human", s.handleGenerate(assetHuman))
		r.Post("/generate-boat", s.handleGenerate(assetBoat))
		r.Post("/generate-background", s.handleGenerate(assetBackground))
		r.Post("/generate-reaction", s.handleReaction)
		r.Get("/generations", s.listGenerations)
	})

	return r
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "image generation API server is running",
	})
}

// requireAPIKey checks the bearer token against the static API secret.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token != s.secret {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
