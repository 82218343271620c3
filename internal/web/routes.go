package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-search/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	imagesHandler := handlers.NewImagesHandler(s.gallery, s.config.Search.DefaultTolerance)

	s.router.Get("/", handlers.Root)
	s.router.Get("/health", handlers.HealthCheck(s.version))

	images := func(r chi.Router) {
		r.Post("/upload", imagesHandler.Upload)
		r.Post("/search", imagesHandler.Search)
		r.Get("/all", imagesHandler.List)
		r.Get("/stats", imagesHandler.Stats)
		r.Get("/debug", imagesHandler.Debug)
	}

	// The API is reachable with and without the /api prefix.
	s.router.Route("/images", images)
	s.router.Route("/api/images", images)
}
