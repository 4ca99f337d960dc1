package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/queuedesk/internal/db"
	"github.com/nkiryanov/queuedesk/internal/handlers"
	"github.com/nkiryanov/queuedesk/internal/logger"
	"github.com/nkiryanov/queuedesk/internal/ratelimit"
	"github.com/nkiryanov/queuedesk/internal/repository/postgres"
	"github.com/nkiryanov/queuedesk/internal/service/auth"
	"github.com/nkiryanov/queuedesk/internal/service/auth/credential"
	"github.com/nkiryanov/queuedesk/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/queuedesk/internal/service/sweeper"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger  logger.Logger
	sweeper *sweeper.Sweeper

	// Release resources in reverse order
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (_ *ServerApp, err error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, logger: l}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	// Load keys first: no reason to touch db if tokens could not be signed
	privateKey, publicKey, err := credential.LoadKeys(c.PrivateKeyPath, c.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("error while loading JWT keys. Err: %w", err)
	}
	codec, err := credential.New(credential.Config{
		PrivateKey: privateKey,
		PublicKey:  publicKey,
		Issuer:     c.Issuer,
		Audience:   c.Audience,
		TTL:        c.AccessTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating credential codec. Err: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app.closers = append(app.closers, pool.Close)

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	tokens, err := tokenmanager.New(tokenmanager.Config{RefreshTTL: c.RefreshTTL}, codec, storage, l)
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	if c.RevokeOnReplay {
		tokens.SetReplayHook(revokeOnReplay(tokens, l))
	}

	authService, err := auth.NewService(auth.Config{CookieSecure: c.CookieSecure}, tokens, codec, storage.User())
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	limiter, err := app.newLimiter(ctx, c)
	if err != nil {
		return nil, err
	}

	app.Handler = handlers.NewRouter(authService, limiter, handlers.RouterConfig{TrustProxy: c.TrustProxy}, l)
	app.sweeper = sweeper.New(c.SweepInterval, tokens, l)

	return app, nil
}

func (s *ServerApp) newLimiter(ctx context.Context, c *Config) (ratelimit.Limiter, error) {
	cfg := ratelimit.Config{Max: c.RateLimitMax, Window: c.RateLimitWindow}

	var client redis.UniversalClient
	if c.RedisURL != "" {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url. Err: %w", err)
		}
		rc := redis.NewClient(opts)
		s.closers = append(s.closers, func() { _ = rc.Close() })
		client = rc
	}

	return ratelimit.NewFromRedis(ctx, client, cfg, s.logger), nil
}

// Replayed refresh token means it was stolen: every session of the user is closed
func revokeOnReplay(tokens *tokenmanager.TokenManager, l logger.Logger) tokenmanager.ReplayHook {
	return func(ctx context.Context, userID uuid.UUID) {
		n, err := tokens.RevokeAll(ctx, userID)
		if err != nil {
			l.Error("Failed to revoke sessions on replay", "error", err, "user_id", userID)
			return
		}
		l.Warn("security event", "event", "sessions_revoked_on_replay", "user_id", userID, "revoked", n)
	}
}

// Close releases db and redis connections
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

	sweeperStopped := s.sweeper.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
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
	<-sweeperStopped

	return err
}
