package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/measure"
	"github.com/joho/godotenv"
)

// Load reads the .env file specified by FASTINF_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("FASTINF_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; the process environment still applies.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func MigrationsPath() string {
	p := os.Getenv("MIGRATIONS_PATH")
	if p == "" {
		return "migrations"
	}
	return p
}

// APIKey is the bearer token required on /v1 routes. Empty disables auth.
func APIKey() string {
	return os.Getenv("FASTINF_API_KEY")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// RunRetention is how long stored runs are kept. Defaults to 7 days.
func RunRetention() time.Duration {
	return duration("RUN_RETENTION", 7*24*time.Hour)
}

// ExpirerInterval is the period of the run expirer. Defaults to 1 hour.
func ExpirerInterval() time.Duration {
	return duration("EXPIRER_INTERVAL", time.Hour)
}

// RequestMaxMessages caps the message budget of one HTTP inference request.
// Defaults to 1,000,000.
func RequestMaxMessages() int {
	n, err := strconv.Atoi(os.Getenv("FASTINF_REQUEST_MAX_MESSAGES"))
	if err != nil || n <= 0 {
		return 1_000_000
	}
	return n
}

// RequestMaxDuration caps the wall-clock budget of one HTTP inference
// request. Defaults to 30 seconds.
func RequestMaxDuration() time.Duration {
	return duration("FASTINF_REQUEST_MAX_DURATION", 30*time.Second)
}

// Inference returns the propagation defaults, starting from
// domain.DefaultInferenceConfig and overriding whatever FASTINF_* variables
// are set to valid values.
func Inference() domain.InferenceConfig {
	cfg := domain.DefaultInferenceConfig()

	if q := strings.ToLower(os.Getenv("FASTINF_QUEUE")); domain.ValidQueueType(q) && q != string(domain.QueueManual) {
		cfg.Queue = domain.QueueType(q)
	}
	if n, err := strconv.Atoi(os.Getenv("FASTINF_UPDATE_SIZE")); err == nil && n >= 0 {
		cfg.UpdateSize = n
	}
	if s, err := strconv.ParseFloat(os.Getenv("FASTINF_SMOOTHING"), 64); err == nil && s >= 0 && s < 1 {
		cfg.Smoothing = s
	}
	if th, err := strconv.ParseFloat(os.Getenv("FASTINF_THRESHOLD"), 64); err == nil && th >= 0 {
		cfg.Threshold = th
	}
	if c, err := measure.ParseCompare(os.Getenv("FASTINF_COMPARE")); err == nil {
		cfg.Compare = c
	}
	if w, err := measure.ParseNorm(os.Getenv("FASTINF_WEIGHT")); err == nil {
		cfg.Weight = w
	}
	if p := strings.ToLower(os.Getenv("FASTINF_INIT")); domain.ValidInitPolicy(p) {
		cfg.Init = domain.InitPolicy(p)
	}
	if seed, err := strconv.ParseInt(os.Getenv("FASTINF_SEED"), 10, 64); err == nil {
		cfg.Seed = seed
	}
	if n, err := strconv.Atoi(os.Getenv("FASTINF_MAX_MESSAGES")); err == nil && n > 0 {
		cfg.MaxMessages = n
	}
	if secs, err := strconv.ParseFloat(os.Getenv("FASTINF_MAX_SECONDS"), 64); err == nil && secs > 0 {
		cfg.MaxDuration = time.Duration(secs * float64(time.Second))
	}
	cfg.MaxProduct = boolean("FASTINF_MAX_PRODUCT", cfg.MaxProduct)
	cfg.LogSpace = boolean("FASTINF_LOG_SPACE", cfg.LogSpace)
	cfg.LogSmooth = boolean("FASTINF_LOG_SMOOTH", cfg.LogSmooth)

	return cfg
}

func duration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func boolean(key string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return b
}
