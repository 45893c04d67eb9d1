package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/quarry-ai/quarry/internal/answer"
	"github.com/quarry-ai/quarry/internal/api/handlers"
	appMiddleware "github.com/quarry-ai/quarry/internal/api/middlewares"
	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/internal/core"
	"github.com/quarry-ai/quarry/internal/embedcache"
	"github.com/quarry-ai/quarry/internal/ingestion"
	"github.com/quarry-ai/quarry/internal/retriever"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, obj core.ObjectClient, pipeline *ingestion.Pipeline, runner *ingestion.JobRunner, ret *retriever.Retriever, gen *answer.Generator, cache *embedcache.CachedProvider) *Server {
	docHandler := handlers.NewDocumentHandler(db, obj, pipeline, runner, cfg)
	chatHandler := handlers.NewChatHandler(db, gen)
	feedbackHandler := handlers.NewFeedbackHandler(db)
	statsHandler := handlers.NewStatsHandler(db, ret, cache)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(5 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(api chi.Router) {
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))

			protected.Post("/documents/ingest", docHandler.IngestDocument)
			protected.Get("/documents", docHandler.ListDocuments)
			protected.Get("/documents/{id}", docHandler.GetDocument)
			protected.Get("/documents/{id}/download", docHandler.DownloadDocument)
			protected.Delete("/documents/{id}", docHandler.DeleteDocument)
			protected.Get("/jobs/{id}", docHandler.GetJob)

			protected.Post("/chat/query", chatHandler.QueryDocuments)
			protected.Post("/feedback", feedbackHandler.SubmitFeedback)
			protected.Get("/stats", statsHandler.GetStats)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
