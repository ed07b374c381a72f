// Package devserver is a local storefront backend used for development and
// integration tests. Data lives in memory; uploads are written to disk.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"storefront/client/internal/logging"
)

const (
	staticImagesPath = "/static/images/"
	shutdownTimeout  = 5 * time.Second
)

// Server serves the storefront REST API.
type Server struct {
	cfg    *Config
	store  *Store
	logger *logging.Logger
	now    func() time.Time
	router chi.Router
}

// NewServer builds the router. cfg must be normalized.
func NewServer(cfg *Config, store *Store, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		cfg:    cfg,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	if store != nil && store.now != nil {
		s.now = store.now
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(s.loggingMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, "OK")
	})
	r.Handle(staticImagesPath+"*", http.StripPrefix(staticImagesPath, http.FileServer(http.Dir(s.cfg.UploadDir))))

	r.Route(s.cfg.APIPrefix, func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(rateLimit(s.cfg.AuthRPS, s.cfg.AuthBurst))
			r.Post("/auth/register", s.handleRegister)
			r.Post("/auth/login", s.handleLogin)
		})

		r.Get("/products", s.handleListProducts)
		r.Get("/products/featured", s.handleFeatured)
		r.Get("/products/{id}", s.handleGetProduct)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/products", s.handleCreateProduct)
			r.Post("/products/upload-image", s.handleUploadImage)
			r.Put("/products/{id}", s.handleUpdateProduct)
			r.Delete("/products/{id}", s.handleDeleteProduct)

			r.Get("/cart", s.handleGetCart)
			r.Post("/cart", s.handleAddToCart)
			r.Put("/cart", s.handleUpdateCart)
			r.Delete("/cart", s.handleRemoveFromCart)

			r.Post("/orders", s.handlePlaceOrder)
			r.Get("/orders", s.handleListOrders)
		})
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SeedUsers registers the accounts listed in the config.
func (s *Server) SeedUsers() error {
	for _, u := range s.cfg.Users {
		if err := s.store.AddUser(u.Email, u.Password, u.Role); err != nil && !errors.Is(err, ErrUserExists) {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("starting dev server on %s (api %s)", s.cfg.ListenAddr, s.cfg.APIPrefix)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Infof("shutting down dev server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Infof("dev server exited")
	return nil
}
