package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"gym-subscription-platform/internal/config"
	"gym-subscription-platform/internal/infra/logging"
	"gym-subscription-platform/internal/usecase"
)

type Server struct {
	cfg *config.Config

	purchaseUC usecase.PurchaseUseCase
	webhookUC  usecase.WebhookUseCase
	walletUC   usecase.WalletUseCase
	auth       *AuthManager

	log *zerolog.Logger
	srv *http.Server
}

func NewServer(
	cfg *config.Config,
	purchaseUC usecase.PurchaseUseCase,
	webhookUC usecase.WebhookUseCase,
	walletUC usecase.WalletUseCase,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		cfg:        cfg,
		purchaseUC: purchaseUC,
		webhookUC:  webhookUC,
		walletUC:   walletUC,
		auth:       auth,
		log:        logger,
	}
}

// Router assembles the full handler chain. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.traceMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.HTTP.RequestTimeout))

	if len(s.cfg.HTTP.AllowedOrigins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins:   s.cfg.HTTP.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		})
		r.Use(c.Handler)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/purchases", s.handleInitiatePurchase)
		r.Post("/purchases/cancel", s.handleCancelPurchase)
		r.Post("/webhook/gateway", s.handleGatewayWebhook)
		r.Get("/wallet", s.handleGetWallet)

		// Manual wallet adjustments are admin-only.
		r.With(s.auth.Middleware).Post("/wallet/transactions", s.handleWalletTransaction)
	})

	return r
}

// traceMiddleware carries the chi request id into the logging context and
// logs one line per request.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if reqID := middleware.GetReqID(ctx); reqID != "" {
			ctx = logging.WithTraceID(ctx, reqID)
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		logging.With(ctx, s.log).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Msg("http request")
	})
}

func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.HTTP.Port),
		Handler: s.Router(),
	}
	s.log.Info().Int("port", s.cfg.HTTP.Port).Msg("HTTP server listening")
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
