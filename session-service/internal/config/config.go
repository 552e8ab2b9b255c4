package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"mestrai-server/session-service/internal/ai"
	"mestrai-server/shared/utils"
)

// Хранилища журнала сессии.
const (
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageMemory   = "memory"
)

// Провайдеры моделей повествования.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config содержит конфигурацию Session Service
type Config struct {
	// Настройки сервера
	Port        string `envconfig:"SESSION_SERVER_PORT" default:"8090"`
	Env         string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// Хранилище журнала: postgres, sqlite или memory
	Storage    string `envconfig:"STORAGE_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"mestrai.db"`
	// Кампании для sqlite и memory: в этих режимах их больше неоткуда взять
	SeedFile string `envconfig:"SEED_FILE"`

	// Настройки PostgreSQL
	DBHost     string `envconfig:"DB_HOST"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER"`
	DBName     string `envconfig:"DB_NAME"`
	DBSSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	// Секретное поле БЕЗ envconfig тега
	DBPassword string

	// Redis для общего окна лимитов; пусто - окно в памяти процесса
	RedisAddr string `envconfig:"REDIS_ADDR"`
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`

	// RabbitMQ для рассылки событий между экземплярами; пусто - только локально
	RabbitMQURL string `envconfig:"RABBITMQ_URL"`

	// Лимиты
	RateLimit       int           `envconfig:"RATE_LIMIT_PER_WINDOW" default:"20"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`

	// Оркестратор
	MaxContinuationDepth int           `envconfig:"MAX_CONTINUATION_DEPTH" default:"2"`
	ExchangeTimeout      time.Duration `envconfig:"EXCHANGE_TIMEOUT" default:"2m"`
	InvokerMinDelay      time.Duration `envconfig:"INVOKER_MIN_DELAY" default:"500ms"`
	HistoryTokenBudget   int           `envconfig:"HISTORY_TOKEN_BUDGET" default:"6000"`
	TokenEncoding        string        `envconfig:"TOKEN_ENCODING" default:"cl100k_base"`
	TargetsFile          string        `envconfig:"TARGETS_FILE"`

	// Иллюстрации
	ImageBaseURL string        `envconfig:"IMAGE_BASE_URL"`
	ImageTimeout time.Duration `envconfig:"IMAGE_TIMEOUT" default:"60s"`
	ImageAPIKey  string

	// Трассировка
	TracingEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Секреты
	JWTSecret  string
	GroqAPIKey string

	Targets []TargetConfig `ignored:"true"`
}

// TargetConfig - одна модель в ранжированном списке.
type TargetConfig struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// TargetsFile - формат файла TARGETS_FILE.
type TargetsFile struct {
	Targets []TargetConfig `yaml:"targets"`
}

// DefaultTargets - три модели Groq в порядке приоритета.
func DefaultTargets() []TargetConfig {
	models := []string{"llama-3.3-70b-versatile", "qwen-2.5-72b-instruct", "llama-3.1-8b-instant"}
	out := make([]TargetConfig, 0, len(models))
	for _, m := range models {
		out = append(out, TargetConfig{Provider: ProviderOpenAI, Model: m, BaseURL: ai.GroqBaseURL, Timeout: 60 * time.Second})
	}
	return out
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LoadConfig загружает конфигурацию из .env, переменных окружения, секретов и файла моделей.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load session-service config: %w", err)
	}
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))

	var err error
	if cfg.JWTSecret, err = utils.ReadSecretOrEnv("jwt_secret", "JWT_SECRET"); err != nil {
		return nil, err
	}
	if cfg.Storage == StoragePostgres {
		if cfg.DBPassword, err = utils.ReadSecretOrEnv("db_password", "DB_PASSWORD"); err != nil {
			return nil, err
		}
	}
	// Необязательные секреты
	cfg.GroqAPIKey, _ = utils.ReadSecretOrEnv("groq_api_key", "GROQ_API_KEY")
	cfg.ImageAPIKey, _ = utils.ReadSecretOrEnv("pollinations_key", "POLLINATIONS_KEY")

	if cfg.Targets, err = LoadTargets(cfg.TargetsFile); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadTargets читает YAML со списком моделей. Пустой путь - модели по умолчанию.
func LoadTargets(path string) ([]TargetConfig, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTargets(), nil
	}
	var file TargetsFile
	if err := cleanenv.ReadConfig(path, &file); err != nil {
		return nil, fmt.Errorf("failed to read targets file %s: %w", path, err)
	}
	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("targets file %s lists no models", path)
	}
	for i := range file.Targets {
		t := &file.Targets[i]
		t.Provider = strings.ToLower(strings.TrimSpace(t.Provider))
		if t.Provider == "" {
			t.Provider = ProviderOpenAI
		}
		if t.Timeout <= 0 {
			t.Timeout = 60 * time.Second
		}
		if t.Provider == ProviderOpenAI && t.BaseURL == "" {
			t.BaseURL = ai.GroqBaseURL
		}
	}
	return file.Targets, nil
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage {
	case StoragePostgres:
		if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
			errs = append(errs, errors.New("postgres storage requires DB_HOST, DB_USER and DB_NAME"))
		}
	case StorageSQLite, StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage))
	}
	if c.RateLimit <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("rate limit and window must be positive"))
	}
	for i, t := range c.Targets {
		if strings.TrimSpace(t.Model) == "" {
			errs = append(errs, fmt.Errorf("target %d has no model", i))
		}
		switch t.Provider {
		case ProviderOpenAI:
			if c.GroqAPIKey == "" {
				errs = append(errs, fmt.Errorf("target %d (%s) needs GROQ_API_KEY", i, t.Model))
			}
		case ProviderOllama:
			if t.BaseURL == "" {
				errs = append(errs, fmt.Errorf("target %d (%s) needs base_url", i, t.Model))
			}
		default:
			errs = append(errs, fmt.Errorf("target %d has unknown provider %q", i, t.Provider))
		}
	}
	return errors.Join(errs...)
}

// Log пишет сводку конфигурации без секретов.
func (c *Config) Log(logger *zap.Logger) {
	names := make([]string, 0, len(c.Targets))
	for _, t := range c.Targets {
		names = append(names, t.Provider+"/"+t.Model)
	}
	logger.Info("Session service configuration loaded",
		zap.String("port", c.Port),
		zap.String("env", c.Env),
		zap.String("storage", c.Storage),
		zap.String("db", fmt.Sprintf("postgres://%s:***@%s:%s/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)),
		zap.Bool("redis", c.RedisAddr != ""),
		zap.Bool("rabbitmq", c.RabbitMQURL != ""),
		zap.Int("rate_limit", c.RateLimit),
		zap.Duration("rate_window", c.RateLimitWindow),
		zap.Int("max_continuation_depth", c.MaxContinuationDepth),
		zap.Strings("targets", names),
		zap.Bool("tracing", c.TracingEndpoint != ""),
	)
}
