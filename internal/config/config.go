package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPolicyHolder),
)

// Config holds application configuration.
type Config struct {
	AppName          string
	AppVersion       string
	Environment      string
	HTTPAddr         string
	AuthCookieSecure bool
	AuthJWTSecret    string
	IPSalt           string
	FrontendURL      string

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	OAuth2ClientID     string
	OAuth2ClientSecret string
	OAuth2RedirectURI  string
	AdminEmails        []string

	Stripe    StripeConfig
	Convert   ConvertConfig
	RateLimit RateLimitConfig
	Janitor   JanitorConfig
}

// TelemetryConfig follows the OTEL_* variable names where one exists.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	UnitAmount    int64
	ProductName   string
	Description   string
	Interval      string
}

type ConvertConfig struct {
	WorkDir    string
	FFmpegPath string
}

type RateLimitConfig struct {
	Enabled            bool
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	ConvertRate        float64
	ConvertBurst       int
	ConvertLockSeconds int
}

type JanitorConfig struct {
	Enabled     bool
	Schedule    string
	MaxAgeHours int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	return Config{
		AppName:          getenv("APP_SERVICE", "talechto"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		HTTPAddr:         getenv("HTTP_ADDR", ":3000"),
		AuthCookieSecure: authCookieSecure,
		AuthJWTSecret:    strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		IPSalt:           getenv("IP_SALT", "test"),
		FrontendURL:      strings.TrimRight(getenv("FRONTEND_URL", "http://localhost:5173"), "/"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "talechto"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "talechto.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		OAuth2ClientID:     strings.TrimSpace(getenv("GOOGLE_CLIENT_ID", "")),
		OAuth2ClientSecret: strings.TrimSpace(getenv("GOOGLE_CLIENT_SECRET", "")),
		OAuth2RedirectURI:  strings.TrimSpace(getenv("AUTH_REDIRECT_URI", "")),
		AdminEmails:        getenvList("ADMIN_EMAILS"),

		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", environment == "production"),
			OTLPEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
			OTLPProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			Currency:      strings.ToLower(getenv("STRIPE_PRICE_CURRENCY", "eur")),
			UnitAmount:    getenvInt64("STRIPE_PRICE_UNIT_AMOUNT", 250),
			ProductName:   getenv("STRIPE_PRICE_PRODUCT_NAME", "Talechto Premium Pass"),
			Description:   getenv("STRIPE_PRICE_DESCRIPTION", "Unlimited conversions and no file size limit"),
			Interval:      getenv("STRIPE_PRICE_INTERVAL", "month"),
		},
		Convert: ConvertConfig{
			WorkDir:    getenv("CONVERT_WORKDIR", "./temp"),
			FFmpegPath: getenv("FFMPEG_PATH", "ffmpeg"),
		},
		RateLimit: RateLimitConfig{
			Enabled:            getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:          strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			RedisPassword:      getenv("REDIS_PASSWORD", ""),
			RedisDB:            getenvInt("REDIS_DB", 0),
			ConvertRate:        getenvFloat("RATE_LIMIT_CONVERT_RATE", 0.5),
			ConvertBurst:       getenvInt("RATE_LIMIT_CONVERT_BURST", 3),
			ConvertLockSeconds: getenvInt("RATE_LIMIT_CONVERT_LOCK_SECONDS", 120),
		},
		Janitor: JanitorConfig{
			Enabled:     getenvBool("JANITOR_ENABLED", true),
			Schedule:    getenv("JANITOR_SCHEDULE", "*/15 * * * *"),
			MaxAgeHours: getenvInt("JANITOR_MAX_AGE_HOURS", 1),
		},
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsAdminEmail matches case-insensitively against ADMIN_EMAILS.
func (c Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, admin := range c.AdminEmails {
		if admin == email {
			return true
		}
	}
	return false
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	return int(getenvInt64(key, int64(def)))
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
