package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"

	"github.com/rashomon-app/rashomon/internal/config"
	"github.com/rashomon-app/rashomon/internal/database"
	"github.com/rashomon-app/rashomon/internal/ratelimit"
	"github.com/rashomon-app/rashomon/internal/realtime"
	"github.com/rashomon-app/rashomon/internal/stats"
)

type RashomonApp struct {
	log            *log.Logger
	db             database.RashomonRepository
	mux            *http.Server
	broker         realtime.Transport
	stats          stats.StatsProvider
	limiter        ratelimit.Allower
	signingKey     []byte
	allowedOrigins []string

	// overridable in tests
	generateShortId func() (string, error)
}

func NewRashomonApp(mux *http.ServeMux, logger *log.Logger, broker realtime.Transport, db database.RashomonRepository, sp stats.StatsProvider, limiter ratelimit.Allower, cfg *config.Config) *RashomonApp {
	s := &RashomonApp{
		log:             logger,
		db:              db,
		broker:          broker,
		stats:           sp,
		limiter:         limiter,
		signingKey:      cfg.SigningKey,
		allowedOrigins:  cfg.AllowedOrigins,
		generateShortId: shortid.Generate,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.rateLimitMiddleware(s.createAccount))
	mux.HandleFunc("POST /api/auth/login", s.rateLimitMiddleware(s.login))
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("GET /api/contents", s.authMiddleware(s.getContents))
	mux.Handle("POST /api/contents", s.authMiddleware(s.createContent))
	mux.Handle("GET /api/highlights", s.authMiddleware(s.getHighlights))
	mux.Handle("POST /api/highlights", s.authMiddleware(s.createHighlight))
	mux.Handle("GET /api/chat/messages", s.authMiddleware(s.getChatMessages))
	mux.Handle("POST /api/chat/messages", s.authMiddleware(s.rateLimitMiddleware(s.appendChatMessage)))
	mux.Handle("GET /ws/discussion", s.authMiddleware(s.serveDiscussion))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *RashomonApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *RashomonApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
