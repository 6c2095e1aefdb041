package configs

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// devSessionSecret hanya untuk STORAGE=memory di mesin developer.
const devSessionSecret = "secret"

var ErrInsecureSessionSecret = errors.New("SESSION_SECRET must be set to a non-default value")

type Config struct {
	AppPort int
	BaseURL string
	Storage string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBNameTest string

	RedisHost     string
	RedisPort     int
	RedisPassword string

	SessionSecret string
	SessionTTL    time.Duration
	CookieSecure  bool

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	MailFrom string

	LogDir       string
	RateLimitMax int

	AdminEmail    string
	AdminPassword string
}

// DefaultSessionSecret reports whether sessions would be signed with the
// built-in development key.
func (c Config) DefaultSessionSecret() bool {
	return c.SessionSecret == "" || c.SessionSecret == devSessionSecret
}

// CheckSessionSecret refuses the development key outside in-memory mode.
func (c Config) CheckSessionSecret() error {
	if c.DefaultSessionSecret() && c.Storage != StorageMemory {
		return ErrInsecureSessionSecret
	}
	return nil
}

// GoogleEnabled is true when both OAuth client credentials are configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func (c Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func LoadConfig() Config {
	// Muat file .env
	if err := godotenv.Load(); err != nil {
		// Hanya log jika tidak dalam mode test
		if os.Getenv("GO_ENV") != "test" {
			log.Println("No .env file found, using default values")
		}
	}

	appPort := getEnvInt("APP_PORT", 3004)
	baseURL := strings.TrimRight(getEnv("BASE_URL", "http://localhost:"+strconv.Itoa(appPort)), "/")

	return Config{
		AppPort: appPort,
		BaseURL: baseURL,
		Storage: strings.ToLower(getEnv("STORAGE", StoragePostgres)),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 10501),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBNameTest: os.Getenv("DB_NAME_TEST"),

		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		SessionSecret: getEnv("SESSION_SECRET", devSessionSecret),
		SessionTTL:    30 * 24 * time.Hour,
		CookieSecure:  getEnvBool("COOKIE_SECURE", false),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", baseURL+"/api/auth/google/callback"),

		SMTPHost: os.Getenv("SMTP_HOST"),
		SMTPPort: getEnvInt("SMTP_PORT", 587),
		SMTPUser: os.Getenv("SMTP_USER"),
		SMTPPass: os.Getenv("SMTP_PASS"),
		MailFrom: getEnv("MAIL_FROM", "TaskSync <no-reply@tasksync.local>"),

		LogDir:       getEnv("LOG_DIR", "logs"),
		RateLimitMax: getEnvInt("RATE_LIMIT_MAX", 100),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
}
