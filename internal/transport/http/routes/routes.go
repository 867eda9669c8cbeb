package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/config"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/transport/http/handlers"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/transport/http/middleware"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth          *usecase.AuthService
	PasswordReset *usecase.PasswordResetService
	Sessions      *usecase.SessionService
	Signup        *usecase.SignupService
	Submission    *usecase.SubmissionService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config         *config.AppConfig
	Logger         *zap.Logger
	Services       ServiceSet
	Limiters       *usecase.RateLimiters
	Validator      *validator.Validate
	PasswordPolicy port.PasswordPolicyValidator
	JWKS           handlers.JWKSSource
	Metrics        *middleware.HTTPMetrics
	MetricsHandler http.Handler
	Readiness      map[string]handlers.ReadinessCheck
	// Now is the clock time windows are checked against. Defaults to time.Now.
	Now func() time.Time
}

// ErrInvalidRoute is returned for unknown paths and methods.
var ErrInvalidRoute = domain.NewValidationFailed("invalid method or path", nil, nil)

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) (*gin.Engine, error) {
	cfg := deps.Config
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.MaxMultipartMemory = 8 << 20

	if err := configureProxies(r, cfg.HTTP); err != nil {
		return nil, err
	}

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Tracing())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.Metrics.Handler())
	if len(cfg.HTTP.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(cfg.HTTP.AllowedOrigins))
	}
	r.Use(middleware.RequestTimeout(cfg.HTTP.RequestTimeout))

	r.NoRoute(invalidRoute)
	r.NoMethod(invalidRoute)

	healthOptions := make([]handlers.HealthOption, 0, len(deps.Readiness))
	for name, check := range deps.Readiness {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck(name, check))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)
	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}
	if deps.JWKS != nil {
		r.GET("/.well-known/jwks.json", handlers.NewJWKSHandler(deps.JWKS).Keys)
	}

	p := newPipelines(deps)
	access := func(pipeline *usecase.AccessPipeline) gin.HandlerFunc {
		return middleware.Access(pipeline, middleware.AccessOptions{CookieName: cfg.JWT.CookieName, Now: deps.Now})
	}
	jsonBody := middleware.BodyLimit(cfg.HTTP.MaxBodyBytes)

	cookie := handlers.SessionCookie{Name: cfg.JWT.CookieName, Secure: cfg.App.IsProduction()}
	authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Services.PasswordReset, cookie)

	auth := r.Group("/auth")
	{
		auth.POST("/register", jsonBody, access(p.register), authHandler.Register)
		auth.POST("/login", jsonBody, access(p.login), authHandler.Login)
		auth.POST("/logout", authHandler.Logout)
		auth.POST("/reset", jsonBody, access(p.reset), authHandler.RequestReset)
		auth.POST("/confirm", jsonBody, access(p.confirm), authHandler.ConfirmReset)
	}

	signupHandler := handlers.NewSignupHandler(deps.Services.Signup)
	signup := r.Group("/signup")
	{
		signup.GET("/fetch", access(p.signupFetch), signupHandler.Fetch)
		signup.POST("/update", jsonBody, access(p.signupUpdate), signupHandler.Update)
	}

	submissionHandler := handlers.NewSubmissionHandler(deps.Services.Submission)
	r.POST("/submit", access(p.submit), submissionHandler.Submit)

	return r, nil
}

func invalidRoute(c *gin.Context) {
	middleware.AbortWithError(c, ErrInvalidRoute)
}

func configureProxies(r *gin.Engine, cfg config.HTTPSettings) error {
	if !cfg.TrustProxy {
		return r.SetTrustedProxies(nil)
	}
	return r.SetTrustedProxies(cfg.TrustedProxies)
}

// pipelines holds the guard chain of every guarded route.
type pipelines struct {
	register     *usecase.AccessPipeline
	login        *usecase.AccessPipeline
	reset        *usecase.AccessPipeline
	confirm      *usecase.AccessPipeline
	signupFetch  *usecase.AccessPipeline
	signupUpdate *usecase.AccessPipeline
	submit       *usecase.AccessPipeline
}

func newPipelines(deps Dependencies) pipelines {
	cfg := deps.Config
	limiters := deps.Limiters
	validate := deps.Validator
	policy := deps.PasswordPolicy

	validation := func(newPayload func() any) *usecase.ValidationGuard {
		return usecase.NewValidationGuard(validate, policy, newPayload)
	}
	authGuard := usecase.NewAuthGuard(deps.Services.Sessions)

	signupWindow := usecase.NewWindowGuard(domain.TimeWindow{
		Start:           cfg.Signup.StartTime,
		End:             cfg.Signup.EndTime,
		TooEarlyMessage: "signup not yet open",
		TooLateMessage:  "signup closed",
	})
	submissionWindow := usecase.NewWindowGuard(domain.TimeWindow{
		Start:           cfg.Submission.StartTime,
		End:             cfg.Submission.EndTime,
		TooEarlyMessage: "submission not yet open",
		TooLateMessage:  "submission closed",
	})

	authRelated := usecase.NewRateLimitGuard(limiters.AuthRelated, usecase.PayloadEmailAndIPKey)
	signupRelated := usecase.NewRateLimitGuard(limiters.SignupRelated, usecase.AccountEmailKey)

	return pipelines{
		register: usecase.PublicPipeline(
			validation(func() any { return &usecase.RegisterRequest{} }),
			authRelated,
		),
		// Login consumes its limiters inside the usecase, depending on why it failed.
		login: usecase.PublicPipeline(
			validation(func() any { return &usecase.LoginRequest{} }),
			nil,
		),
		reset: usecase.PublicPipeline(
			validation(func() any { return &usecase.ResetRequest{} }),
			authRelated,
		),
		confirm: usecase.PublicPipeline(
			validation(func() any { return &usecase.ConfirmResetRequest{} }),
			authRelated,
		),
		signupFetch: usecase.ProtectedPipeline(nil, authGuard, signupRelated, nil),
		signupUpdate: usecase.ProtectedPipeline(
			signupWindow,
			authGuard,
			signupRelated,
			validation(func() any { return &usecase.UpdateSignupRequest{} }),
		),
		submit: usecase.ProtectedPipeline(
			submissionWindow,
			authGuard,
			usecase.NewRateLimitGuard(limiters.SubmitRelated, usecase.AccountEmailKey),
			nil,
		),
	}
}
