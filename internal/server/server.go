package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"sync"
	"time"

	"github.com/Nzyazin/paychain/internal/core/gateway"
	"github.com/Nzyazin/paychain/internal/core/handler"
	"github.com/Nzyazin/paychain/internal/core/logger"
	middlWre "github.com/Nzyazin/paychain/internal/core/middleware"
	"github.com/Nzyazin/paychain/internal/core/usecase"
	"github.com/Nzyazin/paychain/pkg/config"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slok/go-http-metrics/metrics"
	"github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"
)

// Chat streams stay open for as long as the model keeps answering.
const writeTimeout = 2 * time.Minute

// httpRecorder registers the HTTP collectors once per process.
var httpRecorder = sync.OnceValue(func() metrics.Recorder {
	return prometheus.NewRecorder(prometheus.Config{})
})

type Server struct {
	cfg        *config.Config
	router     *mux.Router
	handler    http.Handler
	log        logger.Logger
	httpServer *http.Server
	stores     *stores

	paymentHandler   *handler.PaymentHandler
	assistantHandler *handler.AssistantHandler
	ratesHandler     *handler.RatesHandler
}

func NewServer(cfg *config.Config, log logger.Logger) (*Server, error) {
	st, err := openStores(cfg, log)
	if err != nil {
		return nil, err
	}

	validator := handler.NewValidator()

	settler := usecase.SimulatedSettler{Delay: cfg.Settlement.Delay}
	paymentUsecase := usecase.NewPaymentUsecase(st.ledger, st.txlog, settler, cfg.Settlement.Timeout, log)

	limiter := usecase.NewUsageLimiter(st.usage, map[usecase.Scope]int{
		usecase.ScopeChat:     cfg.Limits.ChatDaily,
		usecase.ScopeInsights: cfg.Limits.InsightsDaily,
	}, log)
	gw := gateway.NewClient(cfg.Gateway, &http.Client{}, log)
	assistantUsecase := usecase.NewAssistantUsecase(limiter, gw, st.ledger, st.txlog, log)

	ratesUsecase := usecase.NewRatesUsecase(st.rates, log)

	server := &Server{
		cfg:              cfg,
		log:              log,
		router:           mux.NewRouter(),
		stores:           st,
		paymentHandler:   handler.NewPaymentHandler(paymentUsecase, validator, log),
		assistantHandler: handler.NewAssistantHandler(assistantUsecase, validator, log),
		ratesHandler:     handler.NewRatesHandler(ratesUsecase, log),
	}

	server.router.Use(loggingMiddleware(server.log))

	mw := middleware.New(middleware.Config{
		Recorder: httpRecorder(),
	})

	server.router.Use(func(next http.Handler) http.Handler {
		return std.Handler("", mw, next)
	})

	server.RegisterRoutes()

	// CORS wraps the router so preflight requests never reach route matching.
	server.handler = cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Client-Info", "Apikey", middlWre.IdempotencyHeader},
		ExposedHeaders:   []string{middlWre.IdempotencyHitHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	})(server.router)

	return server, nil
}

func (s *Server) RegisterRoutes() {
	s.router.Use(
		middlWre.WithErrorHandler(s.log),
		middlWre.Recovery(s.log),
	)

	authenticate := middlWre.Authenticate([]byte(s.cfg.Auth.JWTSecret), s.log)
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(authenticate)

	var processPayment http.Handler = http.HandlerFunc(s.paymentHandler.ProcessPayment)
	if s.stores.idempotency != nil {
		processPayment = middlWre.Idempotency(s.stores.idempotency, s.log)(processPayment)
	}
	api.Handle("/payments", processPayment).Methods("POST")
	api.HandleFunc("/transactions", s.paymentHandler.ListTransactions).Methods("GET")
	api.HandleFunc("/transactions/{id}", s.paymentHandler.GetTransaction).Methods("GET")
	api.HandleFunc("/wallets", s.paymentHandler.ListWallets).Methods("GET")
	api.HandleFunc("/chat", s.assistantHandler.Chat).Methods("POST")
	api.HandleFunc("/insights", s.assistantHandler.Insights).Methods("POST")
	api.HandleFunc("/rates", s.ratesHandler.ListRates).Methods("GET")
	api.HandleFunc("/rates/refresh", s.ratesHandler.RefreshRates).Methods("POST")

	s.router.HandleFunc("/health", s.health).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	if s.cfg.PprofEnabled {
		s.router.PathPrefix("/debug/pprof/").Handler(authenticate(http.DefaultServeMux))
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	checks := map[string]string{}
	if s.stores.db != nil {
		checks["postgres"] = "ok"
		if err := s.stores.db.PingContext(ctx); err != nil {
			checks["postgres"] = err.Error()
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}
	if s.stores.rdb != nil {
		checks["redis"] = "ok"
		if err := s.stores.rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{"status": status, "checks": checks})
}

func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       9 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 6 * time.Second,
	}

	s.httpServer = srv

	return srv.ListenAndServe()
}

func (s *Server) RunTLS(addr, certFile, keyFile string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       9 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 6 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
	}

	s.httpServer = srv
	return srv.ListenAndServeTLS(certFile, keyFile)
}

func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	var shutdownErr error

	go func() {
		if s.httpServer != nil {
			err := s.httpServer.Shutdown(ctx)
			if err != nil {
				s.log.Error("failed to shutdown HTTP server", logger.ErrorField("error", err))
				shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
			}
		}

		if err := s.stores.close(s.log); err != nil {
			shutdownErr = err
		}

		close(done)
	}()

	select {
	case <-done:
		return shutdownErr
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func loggingMiddleware(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Info("HTTP request",
				logger.StringField("method", r.Method),
				logger.StringField("path", r.URL.Path),
				logger.StringField("remote_addr", r.RemoteAddr),
				logger.StringField("user_agent", r.UserAgent()),
			)
			next.ServeHTTP(w, r)
		})
	}
}
