package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

type AppConfig struct {
	App           AppSettings           `mapstructure:"app"`
	HTTP          HTTPSettings          `mapstructure:"http"`
	Storage       StorageSettings       `mapstructure:"storage"`
	Postgres      PostgresSettings      `mapstructure:"postgres"`
	Mongo         MongoSettings         `mapstructure:"mongo"`
	Redis         RedisSettings         `mapstructure:"redis"`
	RateLimit     RateLimitSettings     `mapstructure:"rate_limit"`
	JWT           JWTSettings           `mapstructure:"jwt"`
	PasswordReset PasswordResetSettings `mapstructure:"password_reset"`
	SMTP          SMTPSettings          `mapstructure:"smtp"`
	Signup        WindowSettings        `mapstructure:"signup"`
	Submission    SubmissionSettings    `mapstructure:"submission"`
	Kafka         KafkaSettings         `mapstructure:"kafka"`
	Telemetry     TelemetrySettings     `mapstructure:"telemetry"`
	Argon2        Argon2Settings        `mapstructure:"argon2"`
	Password      PasswordSettings      `mapstructure:"password"`
}

type AppSettings struct {
	Name     string `mapstructure:"name" validate:"required"`
	Env      string `mapstructure:"env" validate:"oneof=development production test"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	LogLevel string `mapstructure:"log_level"`
}

// IsProduction reports whether the service runs with production defaults.
func (a AppSettings) IsProduction() bool {
	return a.Env == "production"
}

// HTTPSettings configures the public HTTP listener.
type HTTPSettings struct {
	// TrustProxy enables X-Forwarded-For handling for the listed proxies.
	TrustProxy        bool          `mapstructure:"trust_proxy"`
	TrustedProxies    []string      `mapstructure:"trusted_proxies"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes" validate:"gt=0"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
}

type StorageSettings struct {
	Driver string `mapstructure:"driver" validate:"oneof=postgres mongo memory"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	AutoMigrate       bool          `mapstructure:"auto_migrate"`
}

type MongoSettings struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// LimiterSettings is the budget of one limiter namespace.
type LimiterSettings struct {
	Points   int           `mapstructure:"points" validate:"gt=0"`
	Duration time.Duration `mapstructure:"duration" validate:"gt=0"`
}

// RateLimitSettings configures the limiter store and every namespace budget.
type RateLimitSettings struct {
	Backend           string          `mapstructure:"backend" validate:"oneof=redis memory"`
	Disabled          bool            `mapstructure:"disabled"`
	LoginByEmailAndIP LimiterSettings `mapstructure:"login_by_email_and_ip"`
	LoginByIP         LimiterSettings `mapstructure:"login_by_ip"`
	AuthRelated       LimiterSettings `mapstructure:"auth_related"`
	SignupRelated     LimiterSettings `mapstructure:"signup_related"`
	SubmitRelated     LimiterSettings `mapstructure:"submit_related"`
}

type JWTSettings struct {
	PrivateKeyPath string        `mapstructure:"private_key_path" validate:"required"`
	PublicKeyPath  string        `mapstructure:"public_key_path" validate:"required"`
	Issuer         string        `mapstructure:"issuer" validate:"required"`
	SessionTTL     time.Duration `mapstructure:"session_ttl" validate:"gt=0"`
	CookieName     string        `mapstructure:"cookie_name" validate:"required"`
}

// PasswordResetSettings configures reset secrets and the reset email.
type PasswordResetSettings struct {
	// MailDuration is how long an emailed secret stays valid, 1 to 60 minutes.
	MailDuration time.Duration `mapstructure:"mail_duration"`
	TemplateFile string        `mapstructure:"template_file"`
	From         string        `mapstructure:"from"`
	Subject      string        `mapstructure:"subject"`
	HTML         string        `mapstructure:"html"`
}

type SMTPSettings struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host" validate:"required_if=Enabled true"`
	Port     int    `mapstructure:"port" validate:"required_if=Enabled true,max=65535"`
	Secure   bool   `mapstructure:"secure"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// WindowSettings bounds when a route accepts requests. End is exclusive.
type WindowSettings struct {
	StartTime time.Time `mapstructure:"start_time"`
	EndTime   time.Time `mapstructure:"end_time"`
}

type SubmissionSettings struct {
	WindowSettings  `mapstructure:",squash"`
	Backend         string     `mapstructure:"backend" validate:"oneof=local s3"`
	FileSizeLimitMB int64      `mapstructure:"file_size_limit_mb" validate:"gt=0"`
	UploadDir       string     `mapstructure:"upload_dir"`
	TempDir         string     `mapstructure:"temp_dir"`
	S3              S3Settings `mapstructure:"s3"`
}

// FileSizeLimitBytes converts the configured limit to bytes.
func (s SubmissionSettings) FileSizeLimitBytes() int64 {
	return s.FileSizeLimitMB << 20
}

type S3Settings struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// KafkaSettings configures Kafka producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate" validate:"min=0,max=1"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// PasswordSettings tunes the password policy applied to new passwords.
type PasswordSettings struct {
	MinLength           int `mapstructure:"min_length"`
	MaxLength           int `mapstructure:"max_length"`
	MinCharacterClasses int `mapstructure:"min_character_classes"`
	MinStrengthScore    int `mapstructure:"min_strength_score" validate:"min=0,max=4"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("HACKREG")

	setDefaults(v)

	if err := bindEnvs(v, envKeys); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.StringToTimeHookFunc(time.RFC3339),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.loadMailTemplate(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints and the relations between fields.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	if c.PasswordReset.MailDuration < time.Minute || c.PasswordReset.MailDuration > time.Hour {
		errs = append(errs, errors.New("password_reset.mail_duration must be between 1 and 60 minutes"))
	}
	if c.PasswordReset.MailDuration%time.Minute != 0 {
		errs = append(errs, errors.New("password_reset.mail_duration must be a whole number of minutes"))
	}
	if !c.Signup.StartTime.Before(c.Signup.EndTime) {
		errs = append(errs, errors.New("signup.start_time must be before signup.end_time"))
	}
	if !c.Submission.StartTime.Before(c.Submission.EndTime) {
		errs = append(errs, errors.New("submission.start_time must be before submission.end_time"))
	}
	switch c.Storage.Driver {
	case "postgres":
		if c.Postgres.Host == "" || c.Postgres.Database == "" {
			errs = append(errs, errors.New("postgres.host and postgres.database are required for the postgres driver"))
		}
	case "mongo":
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			errs = append(errs, errors.New("mongo.uri and mongo.database are required for the mongo driver"))
		}
	}
	if c.RateLimit.Backend == "redis" && c.Redis.Host == "" {
		errs = append(errs, errors.New("redis.host is required for the redis limiter backend"))
	}
	switch c.Submission.Backend {
	case "local":
		if c.Submission.UploadDir == "" {
			errs = append(errs, errors.New("submission.upload_dir is required for the local backend"))
		}
	case "s3":
		if c.Submission.S3.Bucket == "" || c.Submission.S3.Region == "" {
			errs = append(errs, errors.New("submission.s3.bucket and submission.s3.region are required for the s3 backend"))
		}
	}
	if c.SMTP.Enabled && c.PasswordReset.HTML == "" {
		errs = append(errs, errors.New("password_reset.html or password_reset.template_file is required when smtp is enabled"))
	}
	return errors.Join(errs...)
}

// mailTemplateFile mirrors the JSON template file layout.
type mailTemplateFile struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// loadMailTemplate fills empty template fields from password_reset.template_file.
func (c *AppConfig) loadMailTemplate() error {
	path := c.PasswordReset.TemplateFile
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read mail template: %w", err)
	}
	var tpl mailTemplateFile
	if err := json.Unmarshal(data, &tpl); err != nil {
		return fmt.Errorf("parse mail template %s: %w", path, err)
	}
	if c.PasswordReset.From == "" {
		c.PasswordReset.From = tpl.From
	}
	if c.PasswordReset.Subject == "" {
		c.PasswordReset.Subject = tpl.Subject
	}
	if c.PasswordReset.HTML == "" {
		c.PasswordReset.HTML = tpl.HTML
	}
	return nil
}

// MailFrom resolves the sender address, substituting ${SMTP_USER}.
func (c *AppConfig) MailFrom() string {
	from := c.PasswordReset.From
	if from == "" {
		from = "${SMTP_USER}"
	}
	return strings.ReplaceAll(from, "${SMTP_USER}", c.SMTP.User)
}

var envKeys = []string{
	"app.name",
	"app.env",
	"app.host",
	"app.port",
	"app.log_level",
	"http.trust_proxy",
	"http.trusted_proxies",
	"http.request_timeout",
	"http.read_header_timeout",
	"http.shutdown_timeout",
	"http.max_body_bytes",
	"http.allowed_origins",
	"storage.driver",
	"postgres.host",
	"postgres.port",
	"postgres.user",
	"postgres.password",
	"postgres.database",
	"postgres.ssl_mode",
	"postgres.max_conns",
	"postgres.min_conns",
	"postgres.max_conn_lifetime",
	"postgres.max_conn_idle_time",
	"postgres.health_check_period",
	"postgres.auto_migrate",
	"mongo.uri",
	"mongo.database",
	"mongo.connect_timeout",
	"redis.host",
	"redis.port",
	"redis.db",
	"redis.password",
	"redis.tls_enabled",
	"redis.key_prefix",
	"rate_limit.backend",
	"rate_limit.disabled",
	"rate_limit.login_by_email_and_ip.points",
	"rate_limit.login_by_email_and_ip.duration",
	"rate_limit.login_by_ip.points",
	"rate_limit.login_by_ip.duration",
	"rate_limit.auth_related.points",
	"rate_limit.auth_related.duration",
	"rate_limit.signup_related.points",
	"rate_limit.signup_related.duration",
	"rate_limit.submit_related.points",
	"rate_limit.submit_related.duration",
	"jwt.private_key_path",
	"jwt.public_key_path",
	"jwt.issuer",
	"jwt.session_ttl",
	"jwt.cookie_name",
	"password_reset.mail_duration",
	"password_reset.template_file",
	"password_reset.from",
	"password_reset.subject",
	"password_reset.html",
	"smtp.enabled",
	"smtp.host",
	"smtp.port",
	"smtp.secure",
	"smtp.user",
	"smtp.password",
	"signup.start_time",
	"signup.end_time",
	"submission.start_time",
	"submission.end_time",
	"submission.backend",
	"submission.file_size_limit_mb",
	"submission.upload_dir",
	"submission.temp_dir",
	"submission.s3.bucket",
	"submission.s3.prefix",
	"submission.s3.region",
	"submission.s3.endpoint",
	"submission.s3.access_key_id",
	"submission.s3.secret_access_key",
	"submission.s3.use_path_style",
	"kafka.brokers",
	"kafka.topic_prefix",
	"kafka.async",
	"telemetry.otlp_endpoint",
	"telemetry.service_name",
	"telemetry.sampling_rate",
	"argon2.memory",
	"argon2.iterations",
	"argon2.parallelism",
	"argon2.salt_length",
	"argon2.key_length",
	"password.min_length",
	"password.max_length",
	"password.min_character_classes",
	"password.min_strength_score",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "hackreg")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.log_level", "")

	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("http.trusted_proxies", []string{})
	v.SetDefault("http.request_timeout", "10s")
	v.SetDefault("http.read_header_timeout", "5s")
	v.SetDefault("http.shutdown_timeout", "15s")
	v.SetDefault("http.max_body_bytes", 8<<10)
	v.SetDefault("http.allowed_origins", []string{})

	v.SetDefault("storage.driver", "postgres")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "hackreg")
	v.SetDefault("postgres.password", "hackreg_password")
	v.SetDefault("postgres.database", "hackreg")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.auto_migrate", true)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "hackreg")
	v.SetDefault("mongo.connect_timeout", "10s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "hackreg:ratelimit")

	v.SetDefault("rate_limit.backend", "redis")
	v.SetDefault("rate_limit.disabled", false)
	v.SetDefault("rate_limit.login_by_email_and_ip.points", 5)
	v.SetDefault("rate_limit.login_by_email_and_ip.duration", "1h")
	v.SetDefault("rate_limit.login_by_ip.points", 50)
	v.SetDefault("rate_limit.login_by_ip.duration", "1h")
	v.SetDefault("rate_limit.auth_related.points", 5)
	v.SetDefault("rate_limit.auth_related.duration", "1m")
	v.SetDefault("rate_limit.signup_related.points", 30)
	v.SetDefault("rate_limit.signup_related.duration", "1m")
	v.SetDefault("rate_limit.submit_related.points", 5)
	v.SetDefault("rate_limit.submit_related.duration", "1m")

	v.SetDefault("jwt.private_key_path", "./secrets/private.pem")
	v.SetDefault("jwt.public_key_path", "./secrets/public.pem")
	v.SetDefault("jwt.issuer", "hackreg")
	v.SetDefault("jwt.session_ttl", "12h")
	v.SetDefault("jwt.cookie_name", "Authorization")

	v.SetDefault("password_reset.mail_duration", "10m")
	v.SetDefault("password_reset.template_file", "")
	v.SetDefault("password_reset.from", "")
	v.SetDefault("password_reset.subject", "")
	v.SetDefault("password_reset.html", "")

	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 465)
	v.SetDefault("smtp.secure", true)
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.password", "")

	v.SetDefault("signup.start_time", "2000-01-01T00:00:00Z")
	v.SetDefault("signup.end_time", "2100-01-01T00:00:00Z")
	v.SetDefault("submission.start_time", "2000-01-01T00:00:00Z")
	v.SetDefault("submission.end_time", "2100-01-01T00:00:00Z")
	v.SetDefault("submission.backend", "local")
	v.SetDefault("submission.file_size_limit_mb", 50)
	v.SetDefault("submission.upload_dir", "./uploads")
	v.SetDefault("submission.temp_dir", "")
	v.SetDefault("submission.s3.bucket", "")
	v.SetDefault("submission.s3.prefix", "submissions")
	v.SetDefault("submission.s3.region", "")
	v.SetDefault("submission.s3.endpoint", "")
	v.SetDefault("submission.s3.access_key_id", "")
	v.SetDefault("submission.s3.secret_access_key", "")
	v.SetDefault("submission.s3.use_path_style", false)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "hackreg")
	v.SetDefault("kafka.async", true)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "hackreg")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 2)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("password.min_length", 8)
	v.SetDefault("password.max_length", 30)
	v.SetDefault("password.min_character_classes", 2)
	v.SetDefault("password.min_strength_score", 2)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "HACKREG_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
