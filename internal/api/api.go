package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/susu3304/chipledger/internal/config"
	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/settlement"
)

type API struct {
	router    *mux.Router
	ledger    *ledger.Ledger
	engine    *settlement.Engine
	config    *config.Config
	log       *zap.Logger
	jwtSecret []byte
}

func New(cfg *config.Config, l *ledger.Ledger, e *settlement.Engine, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	api := &API{
		router:    mux.NewRouter(),
		ledger:    l,
		engine:    e,
		config:    cfg,
		log:       log,
		jwtSecret: []byte(cfg.JWTSecret),
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	// Public endpoints
	a.router.HandleFunc("/api/health", a.handleHealth).Methods("GET")
	if a.config.MetricsEnabled {
		a.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/sessions/{session_id}/buyins", a.handleSubmitBuyIn).Methods("POST")
	protected.HandleFunc("/sessions/{session_id}/buyins", a.handleListBuyIns).Methods("GET")
	protected.HandleFunc("/sessions/{session_id}/pool", a.handlePool).Methods("GET")
	protected.HandleFunc("/buyins/{buyin_id}/decision", a.handleDecide).Methods("POST")
	protected.HandleFunc("/groups/{group_id}/balances", a.handleBalances).Methods("GET")
	protected.HandleFunc("/groups/{group_id}/settlements", a.handleRecordSettlement).Methods("POST")
	protected.HandleFunc("/groups/{group_id}/leaderboard", a.handleLeaderboard).Methods("GET")
}

// Handler returns the router wrapped in CORS handling.
func (a *API) Handler() http.Handler {
	// Note: When AllowedOrigins is "*", AllowCredentials must be false
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}
	return cors.New(corsOptions).Handler(a.router)
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (a *API) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.config.WebBind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("API server listening", zap.String("addr", "http://"+a.config.WebBind))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
