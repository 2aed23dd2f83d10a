package http

import (
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"travelchat/internal/handler"
	"travelchat/internal/httputil"
	mw "travelchat/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	UploadHandler *handler.UploadHandler
	ChatHandler   *handler.ChatHandler
	AdminHandler  *handler.AdminHandler
	HealthHandler *handler.HealthHandler

	// UploadDir is served under /uploads/.
	UploadDir      string
	MetricsHandler http.Handler
	RateLimiter    *mw.RateLimiter
	TrustProxy     bool
	JWTSecret      string
	Logger         *log.Logger
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(mw.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.SecurityHeaders)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "Not found")
	})

	r.Get("/health", cfg.HealthHandler.Health)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	fs := http.StripPrefix("/uploads/", http.FileServer(filesOnly{http.Dir(cfg.UploadDir)}))
	r.Get("/uploads/*", fs.ServeHTTP)

	// Public API, rate limited per client
	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}

		r.Post("/upload", cfg.UploadHandler.Upload)
		r.Get("/upload", cfg.UploadHandler.MethodNotAllowed)
		r.Post("/sri-chatbot", cfg.ChatHandler.Ask)
	})

	// Admin routes exist only when a signing secret is configured
	if cfg.JWTSecret != "" && cfg.AdminHandler != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(mw.AdminMiddleware(cfg.JWTSecret))

			r.Post("/uploads/sign", cfg.AdminHandler.Sign)
			r.Delete("/uploads", cfg.AdminHandler.Delete)
			r.Get("/audit", cfg.AdminHandler.AuditLog)
		})
	}

	return r
}

// filesOnly hides directories so stored names cannot be listed.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
