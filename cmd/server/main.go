package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"splittab/internal/handler"
	"splittab/internal/ledger"
	"splittab/internal/middleware"
	"splittab/internal/notification"
	"splittab/internal/payment"
	"splittab/internal/repository/postgres"
	"splittab/internal/split"
	"splittab/internal/stellar"
	"splittab/internal/suggestion"
	"splittab/pkg/cache"
	"splittab/pkg/config"
	"splittab/pkg/logger"
	"splittab/pkg/validator"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("splittab")

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting splittab", map[string]interface{}{
		"port":    cfg.Server.Port,
		"horizon": cfg.Horizon.URL,
	})

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
	}
	defer redisCache.Close()

	// Repositories
	splitRepo := postgres.NewSplitRepository(db)
	participantRepo := postgres.NewParticipantRepository(db)
	paymentRepo := postgres.NewPaymentRepository(db)
	suggestionRepo := postgres.NewSuggestionRepository(db)

	// Services
	hub := notification.NewHub(log)
	oracle := stellar.NewHorizonOracle(cfg.Horizon.URL, cfg.Horizon.Timeout, log)
	ledgerService := ledger.NewService(db, log)
	paymentService := payment.NewService(paymentRepo, participantRepo, ledgerService, oracle, hub, log)
	splitService := split.NewService(splitRepo, participantRepo, hub, log)
	suggestionService := suggestion.NewService(
		suggestionRepo, ledgerService, ledgerService, oracle, hub, redisCache, log, cfg.Settlement)
	defer suggestionService.Stop()

	// Handlers
	val := validator.New()
	paymentHandler := handler.NewPaymentHandler(paymentService, paymentRepo, val, log)
	splitHandler := handler.NewSplitHandler(splitService, val, log)
	settlementHandler := handler.NewSettlementHandler(suggestionService, val, log)
	systemHandler := handler.NewSystemHandler(db, redisCache.Client(), log)

	r := mux.NewRouter()

	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)
	r.Use(middleware.BodyLimit(1 << 20))
	r.Use(middleware.NewRateLimiter(redisCache.Client(), 150, time.Minute).Limit)

	r.HandleFunc("/health", systemHandler.Health).Methods("GET")
	r.HandleFunc("/ready", systemHandler.Ready).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/ws", hub.ServeWS).Methods("GET")

	authMW := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	idemMW := middleware.NewIdempotencyMiddleware(redisCache.Client(), 24*time.Hour, log)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMW.Authenticate)
	api.Use(middleware.NewRateLimiter(redisCache.Client(), 60, time.Minute).Limit)

	// Splits
	api.HandleFunc("/splits", splitHandler.Create).Methods("POST")
	api.HandleFunc("/splits", splitHandler.List).Methods("GET")
	api.HandleFunc("/splits/{splitId}", splitHandler.Get).Methods("GET")
	api.HandleFunc("/splits/{splitId}/join", splitHandler.Join).Methods("POST")
	api.HandleFunc("/splits/{splitId}/payments", paymentHandler.GetBySplit).Methods("GET")

	// Payments: idempotency guard on the pipeline entry point.
	api.Handle("/payments/submit", idemMW.Require(http.HandlerFunc(paymentHandler.Submit))).Methods("POST")

	// Settlement
	api.HandleFunc("/settlement/suggestions", settlementHandler.GetSuggestion).Methods("GET")
	api.HandleFunc("/settlement/suggestions/refresh", settlementHandler.Refresh).Methods("POST")
	api.HandleFunc("/settlement/suggestions/snooze", settlementHandler.Snooze).Methods("POST")
	api.HandleFunc("/settlement/net-position", settlementHandler.NetPosition).Methods("GET")
	api.HandleFunc("/settlement/steps/{stepId}/complete", settlementHandler.CompleteStep).Methods("PUT")

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server listening", map[string]interface{}{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}
