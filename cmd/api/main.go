package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/lockbox/internal/auth"
	"github.com/BradenHooton/lockbox/internal/background"
	"github.com/BradenHooton/lockbox/internal/config"
	"github.com/BradenHooton/lockbox/internal/database"
	"github.com/BradenHooton/lockbox/internal/handlers"
	middlewareCustom "github.com/BradenHooton/lockbox/internal/middleware"
	"github.com/BradenHooton/lockbox/internal/repositories"
	"github.com/BradenHooton/lockbox/internal/repositories/memory"
	"github.com/BradenHooton/lockbox/internal/routes"
	"github.com/BradenHooton/lockbox/internal/services"
	"github.com/BradenHooton/lockbox/pkg/cryptox"
	pkghttp "github.com/BradenHooton/lockbox/pkg/http"
	pkglogger "github.com/BradenHooton/lockbox/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// storage is the repository set for the configured driver
type storage struct {
	users          services.UserRepository
	accounts       services.AccountRepository
	keys           services.PublicKeyRepository
	accountInvites services.AccountInviteRepository
	loginInvites   services.LoginInviteRepository
	sessions       auth.SessionRepository
	cleanup        map[string]background.ExpiredDeleter
	health         handlers.HealthChecker
	close          func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("db_driver", cfg.Database.Driver),
		slog.String("email_provider", cfg.Email.Provider),
	)

	ctx := context.Background()

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.close()

	appKeys, err := ensureAppKeyPair(cfg.Crypto, logger)
	if err != nil {
		logger.Error("failed to load application keypair", slog.Any("error", err))
		os.Exit(1)
	}

	vault, err := cryptox.NewVault(cryptox.VaultConfig{
		Passphrase: cfg.Crypto.SymmetricPassphrase,
		Salt:       cfg.Crypto.Salt,
		Pepper:     cfg.Crypto.Pepper,
	})
	if err != nil {
		logger.Error("failed to initialize vault", slog.Any("error", err))
		os.Exit(1)
	}

	mailer, err := newMailer(ctx, cfg.Email, logger)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Timing delay for failed protocol steps
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Session.FailureDelayMs,
		RandomDelayMs: cfg.Session.FailureJitterMs,
	})

	sessionManager := auth.NewSessionManager(
		store.sessions, store.users, store.accounts, store.keys,
		appKeys, vault, auditLogger, logger,
		auth.SessionConfig{DefaultTTL: cfg.Session.DefaultTTL, MaxTTL: cfg.Session.MaxTTL},
	)

	// Initialize services
	publicKeyService := services.NewPublicKeyService(store.keys, store.users, store.accounts, auditLogger, logger, cfg.Session.PublicKeyTTL)
	provisioningService := services.NewProvisioningService(
		store.users, store.accounts, store.accountInvites, publicKeyService, sessionManager,
		appKeys, mailer, auditLogger, logger,
		services.ProvisioningConfig{InviteTTL: cfg.Session.AccountInviteTTL},
	)
	loginService := services.NewLoginService(
		store.users, store.loginInvites, publicKeyService, sessionManager,
		appKeys, vault, timingDelay, auditLogger, logger, cfg.Session.LoginInviteTTL,
	)
	accountService := services.NewAccountService(store.accounts, store.users, store.keys, auditLogger, logger)
	userService := services.NewUserService(store.users, store.accounts, store.keys, logger)

	// Initialize handlers
	h := routes.Handlers{
		Auth:       handlers.NewAuthHandler(provisioningService, loginService, appKeys.PublicKeyPEM()),
		PublicKeys: handlers.NewPublicKeyHandler(publicKeyService),
		Accounts:   handlers.NewAccountHandler(accountService),
		Users:      handlers.NewUserHandler(userService),
	}

	ipConfig := pkghttp.ParseTrustedProxies(cfg.Server.TrustedProxies)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.RequestMeta(ipConfig))
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.CORSAllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, cfg.Server.Env))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, h, sessionManager,
		middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.AuthRateLimitPerMinute, IPConfig: ipConfig},
		middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.APIRateLimitPerMinute, IPConfig: ipConfig},
	)
	router.Get("/health", handlers.Health(store.health))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(store.cleanup, logger, cfg.Session.CleanupInterval)
	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// openStorage connects the configured driver. The memory driver keeps all
// state in process and reports "memory" on /health.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("using in-memory storage; state is lost on restart")
		mem := memory.NewStore()
		return &storage{
			users:          mem.Users(),
			accounts:       mem.Accounts(),
			keys:           mem.PublicKeys(),
			accountInvites: mem.AccountInvites(),
			loginInvites:   mem.LoginInvites(),
			sessions:       mem.Sessions(),
			cleanup: map[string]background.ExpiredDeleter{
				"sessions":        mem.Sessions(),
				"account_invites": mem.AccountInvites(),
				"login_invites":   mem.LoginInvites(),
				"public_keys":     mem.PublicKeys(),
			},
			close: func() {},
		}, nil
	}

	if cfg.Database.Migrate {
		if err := database.Migrate(ctx, cfg.Database.DSN(), logger); err != nil {
			return nil, err
		}
	}

	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	sessions := repositories.NewSessionRepository(db)
	accountInvites := repositories.NewAccountInviteRepository(db)
	loginInvites := repositories.NewLoginInviteRepository(db)
	keys := repositories.NewPublicKeyRepository(db)

	return &storage{
		users:          repositories.NewUserRepository(db),
		accounts:       repositories.NewAccountRepository(db),
		keys:           keys,
		accountInvites: accountInvites,
		loginInvites:   loginInvites,
		sessions:       sessions,
		cleanup: map[string]background.ExpiredDeleter{
			"sessions":        sessions,
			"account_invites": accountInvites,
			"login_invites":   loginInvites,
			"public_keys":     keys,
		},
		health: db,
		close:  db.Close,
	}, nil
}

// ensureAppKeyPair loads the application keypair, generating and saving one
// on first start
func ensureAppKeyPair(c config.CryptoConfig, logger *slog.Logger) (*cryptox.KeyService, error) {
	var pair *cryptox.KeyPair
	var err error

	if cryptox.KeyPairExists(c.KeyDir, c.AppKeyName) {
		pair, err = cryptox.LoadKeyPair(c.KeyDir, c.AppKeyName, c.PrivateKeyPassphrase)
		if err != nil {
			return nil, err
		}
		logger.Info("application keypair loaded", slog.String("dir", c.KeyDir))
	} else {
		logger.Info("generating application keypair", slog.Int("bits", c.KeyBits))
		pair, err = cryptox.GenerateKeyPair(c.KeyBits)
		if err != nil {
			return nil, err
		}
		if err := cryptox.SaveKeyPair(c.KeyDir, c.AppKeyName, pair, c.PrivateKeyPassphrase); err != nil {
			return nil, err
		}
	}

	keys, err := cryptox.NewKeyService(pair)
	if err != nil {
		return nil, err
	}

	fp, err := cryptox.Fingerprint(keys.PublicKey())
	if err == nil {
		logger.Info("application key ready", slog.String("fingerprint", pkglogger.Fingerprint(fp)))
	}
	return keys, nil
}

func newMailer(ctx context.Context, c config.EmailConfig, logger *slog.Logger) (services.InviteMailer, error) {
	switch c.Provider {
	case "ses":
		return services.NewAWSSESEmailService(ctx, c.AWSRegion, c.FromAddress, c.InviteURLBase, logger)
	case "log":
		return services.NewLogEmailService(c.InviteURLBase, logger), nil
	default:
		return nil, fmt.Errorf("unknown EMAIL_PROVIDER %q", c.Provider)
	}
}
