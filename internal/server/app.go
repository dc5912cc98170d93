// Package server wires configuration, storage, the session services and the
// gRPC transport into a runnable application.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/observe"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/federation"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/gophauth/internal/server/grpc"
)

const (
	serviceName         = "gophauth"
	federationTimeout   = 10 * time.Second
	shutdownGracePeriod = 5 * time.Second
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	tracing *observe.Tracing
	ledger  *services.Ledger
	server  *gs.GRPCServer

	// cancels background work started by NewApp, such as JWKS refreshes
	stopBackground context.CancelFunc
}

// NewApp opens the store, applies migrations, builds every service and
// creates the bootstrap admin when a password for it is configured. Logs go
// to out.
func NewApp(ctx context.Context, c *config.Config, out io.Writer) (app *App, err error) {
	logger := logging.NewJSONLogger(out, c.LogLevel)
	if c.SecretKey == config.DefaultSecretKey {
		logger.Warn(ctx, "default signing secret in use, set GOPHAUTH_SECRET_KEY outside development")
	}

	tracing, err := observe.NewTracing(observe.TracingConfig{ServiceName: serviceName, Stdout: c.TraceStdout, Writer: out})
	if err != nil {
		return nil, fmt.Errorf("tracing init error: %w", err)
	}

	db, repos, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	defer func() {
		if err != nil {
			_ = db.Close()
		}
	}()

	if err := repos.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("db migrations error: %w", err)
	}

	codec, err := auth.NewCodec(auth.CodecConfig{
		Secret: []byte(c.SecretKey),
		Issuer: c.Issuer,
		Method: c.SigningMethod,
	})
	if err != nil {
		return nil, fmt.Errorf("token codec error: %w", err)
	}

	creds, err := services.NewCredentialVerifier(db, repos, c.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("credential verifier error: %w", err)
	}

	bg, stopBackground := context.WithCancel(context.Background())
	defer func() {
		if err != nil {
			stopBackground()
		}
	}()

	verifier, err := buildVerifier(bg, c, logger)
	if err != nil {
		return nil, fmt.Errorf("federation init error: %w", err)
	}

	ledger := services.NewLedger(db, repos, logger)
	provisioner := services.NewProvisioner(db, repos, c.DefaultRole, c.BcryptCost, services.NewLogNotifier(logger), logger)
	accounts := services.NewAccountService(db, repos, c.DefaultRole, c.BcryptCost, logger)

	deps := services.SessionDeps{
		DB:                    db,
		Repos:                 repos,
		Codec:                 codec,
		Credentials:           creds,
		Provisioner:           provisioner,
		Ledger:                ledger,
		Verifier:              verifier,
		Logger:                logger,
		Tracer:                tracing.Tracer(serviceName),
		TokenTTL:              c.AccessTokenValidityDuration,
		StrictRefreshRotation: c.StrictRefreshRotation,
	}
	if exchanger := buildExchanger(c, verifier); exchanger != nil {
		deps.Exchanger = exchanger
	}
	sessions := services.NewSessionService(deps)

	if c.Bootstrap.Password != "" {
		if _, _, err := accounts.EnsureAdmin(ctx, c.Bootstrap.Username, c.Bootstrap.Email, c.Bootstrap.Password); err != nil {
			return nil, fmt.Errorf("bootstrap admin error: %w", err)
		}
	} else {
		logger.Warn(ctx, "no bootstrap admin password configured, skipping admin account")
	}

	return &App{
		config:         c,
		logger:         logger,
		db:             db,
		tracing:        tracing,
		ledger:         ledger,
		server:         gs.NewGRPCServer(c.EndpointAddrGRPC, logger, sessions, accounts, tracing.Provider()),
		stopBackground: stopBackground,
	}, nil
}

// buildVerifier prefers Google when a client ID is configured, then a
// generic OIDC issuer. Without either, federated login is disabled.
func buildVerifier(ctx context.Context, c *config.Config, logger logging.Logger) (federation.Verifier, error) {
	switch {
	case c.Google.ClientID != "":
		return federation.NewGoogleVerifier(c.Google.ClientID, federationTimeout)
	case c.OIDC.JWKSURL != "":
		v, err := federation.NewJWKSVerifier(ctx, federation.JWKSConfig{
			Name:        c.OIDC.Name,
			Issuer:      c.OIDC.Issuer,
			JWKSURL:     c.OIDC.JWKSURL,
			Audience:    c.OIDC.Audience,
			HTTPTimeout: federationTimeout,
		})
		if err != nil {
			return nil, err
		}
		if err := v.Warmup(ctx); err != nil {
			// keys are fetched again on first use
			logger.Warn(ctx, "jwks warmup failed", "error", err)
		}
		return v, nil
	default:
		return nil, nil
	}
}

// buildExchanger returns nil unless the Google code flow is fully configured.
func buildExchanger(c *config.Config, verifier federation.Verifier) *federation.Exchanger {
	g := c.Google
	if g.ClientID == "" || g.ClientSecret == "" || g.RedirectURL == "" || verifier == nil {
		return nil
	}
	return federation.NewGoogleExchanger(g.ClientID, g.ClientSecret, g.RedirectURL, verifier)
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// Run serves gRPC and sweeps the ledger until ctx is done, a signal arrives
// or either of them fails. Resources are released before it returns.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(ctx, cancelFunc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.server.Run(gctx)
	})
	g.Go(func() error {
		return app.ledger.RunSweeper(gctx, app.config.SweepInterval)
	})

	runErr := g.Wait()
	if runErr != nil {
		app.logger.Error(ctx, "app stopped with error", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	return errors.Join(runErr, app.Close(shutdownCtx))
}

// Close releases the store, background refreshes and the tracer provider.
func (app *App) Close(ctx context.Context) error {
	app.stopBackground()
	return errors.Join(app.tracing.Shutdown(ctx), app.db.Close())
}
