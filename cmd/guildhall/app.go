package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/guildhall/internal/db"
	"github.com/nkiryanov/guildhall/internal/handlers"
	"github.com/nkiryanov/guildhall/internal/logger"
	"github.com/nkiryanov/guildhall/internal/ratelimit"
	"github.com/nkiryanov/guildhall/internal/repository"
	"github.com/nkiryanov/guildhall/internal/repository/mongodb"
	"github.com/nkiryanov/guildhall/internal/repository/postgres"
	"github.com/nkiryanov/guildhall/internal/service/auth"
	"github.com/nkiryanov/guildhall/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/guildhall/internal/service/user"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger  logger.Logger
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (app *ServerApp, err error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app = &ServerApp{ListenAddr: c.ListenAddr, logger: logger}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	// Connect to the database and run migrations if any
	storage, err := app.openStorage(ctx, c.DatabaseDSN)
	if err != nil {
		return app, err
	}

	limitStore, err := app.openRateLimitStore(ctx, c.RedisURL)
	if err != nil {
		return app, err
	}

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		AccessSecret:  c.AccessSecret,
		RefreshSecret: c.RefreshSecret,
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
	})
	if err != nil {
		return app, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	userService := user.NewService(auth.DefaultHasher, storage.User())
	authService, err := auth.NewService(auth.Config{
		SecureCookies: c.IsProduction(),
		Logger:        logger,
	}, tokenManager, userService)
	if err != nil {
		return app, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	app.Handler = handlers.NewRouter(authService, userService, handlers.Limits{
		Store:       limitStore,
		MaxRequests: c.RateLimitMax,
		Window:      c.RateLimitWindow,
	}, logger)

	return app, nil
}

func (s *ServerApp) openStorage(ctx context.Context, dsn string) (repository.Storage, error) {
	if db.IsMongoDSN(dsn) {
		database, err := db.ConnectMongo(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to mongo. Err: %w", err)
		}
		s.closers = append(s.closers, func() { _ = database.Client().Disconnect(context.Background()) })

		storage, err := mongodb.NewStorage(ctx, database)
		if err != nil {
			return nil, fmt.Errorf("error while preparing mongo collections. Err: %w", err)
		}
		s.logger.Info("Using mongo storage", "database", database.Name())
		return storage, nil
	}

	pool, err := db.ConnectAndMigrate(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	s.closers = append(s.closers, pool.Close)
	s.logger.Info("Using postgres storage")

	return postgres.NewStorage(pool), nil
}

// Redis backed counters if url set, otherwise in process ones
func (s *ServerApp) openRateLimitStore(ctx context.Context, url string) (ratelimit.Store, error) {
	if url == "" {
		s.logger.Warn("REDIS_URL not set, rate limit counters are kept in memory")
		return ratelimit.NewMemoryStore(), nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url. Err: %w", err)
	}
	rdb := redis.NewClient(opts)
	s.closers = append(s.closers, func() { _ = rdb.Close() })

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cant connect to redis. Err: %w", err)
	}

	return ratelimit.NewRedisStore(rdb), nil
}

// Close releases connections in reverse order of opening
func (s *ServerApp) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
