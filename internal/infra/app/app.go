package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/config"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/database"
	kafkainfra "github.com/SYSUMSC/hackreg-t1-backend/internal/infra/kafka"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/logger"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/mailer"
	redisinfra "github.com/SYSUMSC/hackreg-t1-backend/internal/infra/redis"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/security"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/storage"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/telemetry"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/repository/memory"
	mongorepo "github.com/SYSUMSC/hackreg-t1-backend/internal/repository/mongodb"
	postgresrepo "github.com/SYSUMSC/hackreg-t1-backend/internal/repository/postgres"
	redisrepo "github.com/SYSUMSC/hackreg-t1-backend/internal/repository/redis"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/transport/http/handlers"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/transport/http/middleware"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/transport/http/routes"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	resets *usecase.PasswordResetService

	// closers release external resources in reverse order of acquisition.
	closers []closer
}

type closer struct {
	name  string
	close func(ctx context.Context) error
}

// stores is the persistence chosen by storage.driver.
type stores struct {
	accounts port.AccountRepository
	resets   port.PasswordResetRepository
	ping     handlers.ReadinessCheck
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	if err := a.build(ctx); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *Application) build(ctx context.Context) error {
	cfg := a.cfg
	log := a.logger

	metricsProvider, err := telemetry.Attach(cfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.onClose("tracer", tracer.Shutdown)

	readiness := make(map[string]handlers.ReadinessCheck)

	st, err := a.buildStores(ctx)
	if err != nil {
		return err
	}
	readiness["storage"] = st.ping

	limiterStore, err := a.buildLimiterStore(ctx, readiness)
	if err != nil {
		return err
	}
	limiters, err := usecase.NewRateLimiters(limiterStore, LimiterPolicies(cfg.RateLimit)...)
	if err != nil {
		return fmt.Errorf("init rate limiters: %w", err)
	}
	limiters.Each(func(l *usecase.RateLimiter) {
		l.WithObserver(metricsProvider)
		if cfg.RateLimit.Disabled {
			l.Disable()
		}
	})
	if cfg.RateLimit.Disabled {
		log.Warn("rate limiting is disabled")
	}

	keys, err := security.NewFileKeyProvider(cfg.JWT.PrivateKeyPath, cfg.JWT.PublicKeyPath)
	if err != nil {
		return fmt.Errorf("init key provider: %w", err)
	}
	tokens, err := security.NewSessionTokenManager(keys, cfg.JWT.Issuer, cfg.JWT.SessionTTL)
	if err != nil {
		return fmt.Errorf("init session tokens: %w", err)
	}

	hasher, err := security.NewArgon2Hasher(port.Argon2Params{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return fmt.Errorf("configure argon2: %w", err)
	}

	passwordPolicy := security.NewPasswordPolicy(security.PasswordPolicyConfig{
		MinLength:           cfg.Password.MinLength,
		MaxLength:           cfg.Password.MaxLength,
		MinCharacterClasses: cfg.Password.MinCharacterClasses,
		MinStrengthScore:    cfg.Password.MinStrengthScore,
	})

	mail, err := a.buildMailer()
	if err != nil {
		return err
	}

	submissions, err := a.buildSubmissionStore(ctx)
	if err != nil {
		return err
	}

	events := a.buildEventPublisher()

	sessions := usecase.NewSessionService(tokens, st.accounts)
	a.resets = usecase.NewPasswordResetService(
		st.accounts,
		st.resets,
		hasher,
		mail,
		usecase.ResetMailTemplate{Subject: cfg.PasswordReset.Subject, HTML: cfg.PasswordReset.HTML},
		events,
		log,
	).WithTTL(cfg.PasswordReset.MailDuration)

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: metricsProvider.Registerer()})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	engine, err := routes.Register(routes.Dependencies{
		Config: cfg,
		Logger: log,
		Services: routes.ServiceSet{
			Auth:          usecase.NewAuthService(st.accounts, hasher, sessions, limiters, events, log),
			PasswordReset: a.resets,
			Sessions:      sessions,
			Signup:        usecase.NewSignupService(st.accounts, log),
			Submission:    usecase.NewSubmissionService(submissions, events, cfg.Submission.FileSizeLimitBytes(), log),
		},
		Limiters:       limiters,
		Validator:      usecase.NewRequestValidator(),
		PasswordPolicy: passwordPolicy,
		JWKS:           tokens,
		Metrics:        httpMetrics,
		MetricsHandler: metricsProvider.Handler(),
		Readiness:      readiness,
	})
	if err != nil {
		return fmt.Errorf("init routes: %w", err)
	}
	a.engine = engine
	return nil
}

func (a *Application) buildStores(ctx context.Context) (stores, error) {
	cfg := a.cfg
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres, a.logger)
		if err != nil {
			return stores{}, fmt.Errorf("init postgres: %w", err)
		}
		a.onClose("postgres", func(context.Context) error {
			pool.Close()
			return nil
		})
		if cfg.Postgres.AutoMigrate {
			if err := database.Migrate(ctx, pool, a.logger); err != nil {
				return stores{}, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		repos := postgresrepo.NewRepositories(pool)
		return stores{accounts: repos.Accounts, resets: repos.PasswordResets, ping: pool.Ping}, nil

	case "mongo":
		client, err := database.NewMongoClient(ctx, cfg.Mongo, a.logger)
		if err != nil {
			return stores{}, fmt.Errorf("init mongo: %w", err)
		}
		a.onClose("mongo", client.Close)
		repos, err := mongorepo.NewRepositories(ctx, client.Database())
		if err != nil {
			return stores{}, fmt.Errorf("init mongo repositories: %w", err)
		}
		return stores{accounts: repos.Accounts, resets: repos.PasswordResets, ping: client.Ping}, nil

	default:
		a.logger.Warn("using in-memory storage, data is lost on restart")
		accounts := memory.NewAccountRepository()
		return stores{accounts: accounts, resets: memory.NewPasswordResetRepository(), ping: accounts.Ping}, nil
	}
}

func (a *Application) buildLimiterStore(ctx context.Context, readiness map[string]handlers.ReadinessCheck) (port.RateLimitStore, error) {
	if a.cfg.RateLimit.Backend != "redis" {
		return memory.NewRateLimitStore(), nil
	}
	client, err := redisinfra.NewClient(ctx, a.cfg.Redis, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	a.onClose("redis", func(context.Context) error { return client.Close() })
	readiness["redis"] = client.Ping
	return redisrepo.NewRateLimitStore(client.Client(), client.KeyPrefix()), nil
}

func (a *Application) buildMailer() (port.Mailer, error) {
	if !a.cfg.SMTP.Enabled {
		a.logger.Info("smtp disabled, reset emails are logged only")
		return mailer.NewLogMailer(a.logger), nil
	}
	m, err := mailer.NewSMTPMailer(a.cfg.SMTP, a.cfg.MailFrom(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("init smtp mailer: %w", err)
	}
	return m, nil
}

func (a *Application) buildSubmissionStore(ctx context.Context) (port.SubmissionStore, error) {
	cfg := a.cfg.Submission
	if cfg.Backend == "s3" {
		s, err := storage.NewS3Store(ctx, cfg.S3, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init s3 store: %w", err)
		}
		return s, nil
	}
	s, err := storage.NewLocalStore(cfg.UploadDir, cfg.TempDir, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init upload dir: %w", err)
	}
	return s, nil
}

func (a *Application) buildEventPublisher() port.EventPublisher {
	if len(a.cfg.Kafka.Brokers) == 0 {
		a.logger.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(a.logger)
	}
	producer, err := kafkainfra.NewProducer(a.cfg.Kafka, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(a.logger)
	}
	a.onClose("kafka", func(context.Context) error { return producer.Close() })
	a.logger.Info("kafka event publisher initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, a.cfg.App, a.logger)
}

// LimiterPolicies maps the configured budgets onto limiter namespaces.
func LimiterPolicies(cfg config.RateLimitSettings) []domain.RateLimitPolicy {
	policy := func(namespace string, s config.LimiterSettings) domain.RateLimitPolicy {
		return domain.RateLimitPolicy{Namespace: namespace, Points: s.Points, Duration: s.Duration}
	}
	return []domain.RateLimitPolicy{
		policy(usecase.NamespaceLoginByEmailAndIP, cfg.LoginByEmailAndIP),
		policy(usecase.NamespaceLoginByIP, cfg.LoginByIP),
		policy(usecase.NamespaceAuthRelated, cfg.AuthRelated),
		policy(usecase.NamespaceSignupRelated, cfg.SignupRelated),
		policy(usecase.NamespaceSubmitRelated, cfg.SubmitRelated),
	}
}

// Handler exposes the configured engine.
func (a *Application) Handler() http.Handler {
	return a.engine
}

func (a *Application) onClose(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

func (a *Application) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(ctx); err != nil {
			a.logger.Warn("close resource failed", zap.String("resource", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: a.cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting hackreg API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("storage", a.cfg.Storage.Driver),
		zap.String("rate_limit_backend", a.cfg.RateLimit.Backend),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case runErr = <-serverErrCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown server: %w", err)
	}
	if a.resets != nil {
		a.resets.Wait()
	}
	a.close(shutdownCtx)
	return runErr
}
