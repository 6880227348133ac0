package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/codepass"
	"github.com/MrEthical07/codepass/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Service is the engine surface the handlers call. *codepass.Engine
// satisfies it.
type Service interface {
	IssueCode(ctx context.Context, payload codepass.CodePayload) (codepass.CodeDescriptor, error)
	Verify(ctx context.Context, code string) (codepass.VerifyResult, error)
	Validate(ctx context.Context, token string) (*codepass.Claims, error)
	ValidateExistence(ctx context.Context, token string) (bool, error)
	Authenticate(ctx context.Context, token string) (string, error)
	Reissue(ctx context.Context, refreshToken string) (codepass.TokenPair, error)
	AdminLogin(ctx context.Context, loginID, password string) (codepass.TokenPair, error)
}

type Options struct {
	Logger *slog.Logger
	// Metrics is mounted on GET /metrics when set.
	Metrics http.Handler
	Tracer  trace.Tracer
	// AllowedOrigins feeds CORS. Empty disables the CORS middleware.
	AllowedOrigins []string
	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool
	// RequestTimeout bounds each handler. Zero means no timeout.
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

const defaultMaxBodyBytes = 1 << 16

type handlers struct {
	svc     Service
	logger  *slog.Logger
	maxBody int64
}

// NewRouter builds the HTTP handler for svc.
func NewRouter(svc Service, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	h := &handlers{svc: svc, logger: logger, maxBody: maxBody}

	r := chi.NewRouter()
	if opts.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(requestID)
	r.Use(clientIP)
	r.Use(tracing(tracer))
	r.Use(chimw.RequestLogger(&requestLogger{logger: logger}))
	r.Use(chimw.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
			ExposedHeaders:   []string{requestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if opts.RequestTimeout > 0 {
		r.Use(chimw.Timeout(opts.RequestTimeout))
	}

	r.Get("/healthz", health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/code", h.issueCode)
		r.Post("/verify", h.verify)
		r.Post("/validate/token", h.validateToken)
		r.Post("/verify/header", h.verifyHeader)
		r.Post("/reissue", h.reissue)
		r.With(middleware.Guard(svc)).Get("/me", h.me)
	})
	r.Post("/admin/login", h.adminLogin)

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
