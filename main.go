package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/selfauth/selfauth/internal/authorize"
	"github.com/selfauth/selfauth/internal/config"
	"github.com/selfauth/selfauth/internal/exchange"
	"github.com/selfauth/selfauth/internal/httpclient"
	"github.com/selfauth/selfauth/internal/logging"
	"github.com/selfauth/selfauth/internal/store"
	"github.com/selfauth/selfauth/internal/token"
)

// App holds everything the HTTP handlers share. It is built once by newApp.
type App struct {
	cfg          *config.Config
	db           store.DB
	tokens       *token.Manager
	exchange     *exchange.Exchanger
	auth         *authorize.Service
	loginLimiter *RateLimiter
	log          *zap.Logger
}

func newApp(c *config.Config, db store.DB, log *zap.Logger) *App {
	exchangeClient := httpclient.New(httpclient.Options{
		Timeout:        c.ExchangeTimeout,
		ConnectTimeout: c.ConnectTimeout,
		MaxRedirects:   exchange.MaxRedirects,
	})
	metadataClient := httpclient.New(httpclient.Options{
		Timeout:        c.MetadataTimeout,
		ConnectTimeout: c.ConnectTimeout,
	})

	return &App{
		cfg: c,
		db:  db,
		tokens: token.NewManager(db,
			token.WithRevokeAfter(c.RevokeAfter),
			token.WithHashCost(c.BcryptCost),
			token.WithLogger(log.Named("token")),
		),
		exchange: exchange.New(db, exchangeClient, log.Named("exchange")),
		auth: authorize.NewService(db, c.AuthEndpoint(), c.Issuer,
			authorize.WithLogger(log.Named("authorize")),
			authorize.WithMetadataFetcher(&authorize.HTTPMetadataFetcher{Client: metadataClient, Log: log.Named("clientinfo")}),
			authorize.WithAudit(c.AuditLoginFailure, c.AuditLoginSuccess),
		),
		loginLimiter: NewRateLimiter(c.LoginRatePerMinute),
		log:          log,
	}
}

func (a *App) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(SecurityHeaders)
	r.Use(a.Logging)
	r.Use(a.CORS)

	r.HandleFunc("/health", a.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", a.HandleReady).Methods(http.MethodGet)
	r.HandleFunc("/.well-known/oauth-authorization-server", a.HandleMetadata).Methods(http.MethodGet, http.MethodOptions)

	// Method dispatch happens in the handlers so that other methods get 405
	// with the Allow header the protocol expects.
	r.HandleFunc(a.cfg.TokenPath, a.HandleToken)
	r.HandleFunc(a.cfg.AuthPath, a.HandleAuthorize)
	return r
}

func main() {
	c, err := config.New()
	if err != nil {
		// logger config is part of Config; fall back to a default logger
		zap.Must(zap.NewProduction()).Fatal("config", zap.Error(err))
	}

	log, err := logging.New(c.LogLevel, c.LogFormat)
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("logger", zap.Error(err))
	}
	defer log.Sync()

	db, err := store.Open(c, log)
	if err != nil {
		log.Fatal("storage", zap.Error(err))
	}

	app := newApp(c, db, log)
	srv := &http.Server{
		Handler:      app.routes(),
		Addr:         ":" + c.Port,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: time.Minute,
	}

	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("issuer", c.Issuer))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		log.Warn("closing storage", zap.Error(err))
	}
	log.Info("server exited")
}
