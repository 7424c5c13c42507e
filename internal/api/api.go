package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jujuling/fanline/internal/line"
	"github.com/jujuling/fanline/internal/models"
	"github.com/jujuling/fanline/internal/ratelimit"
	"github.com/jujuling/fanline/internal/webhook"
)

// Server configuration constants.
const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"
	// defaultAttemptsLimit caps GET /attempts when no limit is given.
	defaultAttemptsLimit = 50
	// maxAttemptsLimit is the hard cap on GET /attempts page size.
	maxAttemptsLimit = 500
	// readTimeout and writeTimeout bound each HTTP exchange.
	readTimeout  = 15 * time.Second
	writeTimeout = 30 * time.Second
)

// SignatureVerifier is the transport subset the webhook endpoint uses to
// authenticate requests.
type SignatureVerifier interface {
	SecretConfigured() bool
	VerifySignature(body []byte, signature string) bool
}

// Pusher is the transport subset the game result endpoint uses.
type Pusher interface {
	Push(ctx context.Context, to string, msgs []line.Message) (string, error)
}

// Store is the persistence subset the API handlers depend on.
type Store interface {
	AddGameSession(s models.GameSession) error
	AddDeliveryAttempt(a models.DeliveryAttempt) error
	MarkDeliveryAttempt(id string, status models.DeliveryStatus, requestID, errorDetail string) error
	ListDeliveryAttempts(limit int) ([]models.DeliveryAttempt, error)
}

// Opts holds server configuration applied via Option functions.
type Opts struct {
	Addr         string
	AssetBaseURL string
}

// Option configures the server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAssetBaseURL sets the base URL for game result images.
func WithAssetBaseURL(url string) Option {
	return func(o *Opts) { o.AssetBaseURL = url }
}

// Server wires the HTTP endpoints to the webhook dispatcher, the drip
// store, and the transport.
type Server struct {
	addr         string
	assetBaseURL string
	verifier     SignatureVerifier
	dispatcher   *webhook.Dispatcher
	store        Store
	limiter      *ratelimit.Limiter
	pusher       Pusher
}

// NewServer creates the API server.
func NewServer(verifier SignatureVerifier, dispatcher *webhook.Dispatcher, st Store, limiter *ratelimit.Limiter, pusher Pusher, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{
		addr:         cfg.Addr,
		assetBaseURL: cfg.AssetBaseURL,
		verifier:     verifier,
		dispatcher:   dispatcher,
		store:        st,
		limiter:      limiter,
		pusher:       pusher,
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/webhook", s.webhookHandler)
	r.Post("/game/push-result", s.gameResultHandler)
	r.Get("/attempts", s.attemptsHandler)
	r.Get("/health", s.healthHandler)
	return r
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	slog.Info("Server.Run: listening", "addr", s.addr)
	return srv.ListenAndServe()
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}
