package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/emberio/hearth/internal/provider/openai"
)

// Config represents the gateway configuration. It is built once at process
// start and passed by reference into each component's constructor; request
// paths never read the environment.
type Config struct {
	Server   ServerConfig
	CORS     CORSConfig
	Fallback FallbackConfig
	Cache    CacheConfig
	Echo     EchoConfig
	OpenAI   openai.Config `envPrefix:"OPENAI_"`
	Compat   openai.Config `envPrefix:"COMPAT_"`
}

// EchoConfig controls the deterministic in-process provider. When enabled
// it joins the chain at the lowest priority as a safety net; exhaustion then
// only happens if it is explicitly disabled again at runtime.
type EchoConfig struct {
	Enabled bool `env:"ECHO_ENABLED" envDefault:"false"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"300"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// FallbackConfig controls the fallback engine. With Enabled false the
// candidate list collapses to the primary provider, for strict-cost-control
// deployments.
type FallbackConfig struct {
	Enabled               bool `env:"FALLBACK_ENABLED"         envDefault:"true"`
	CostOptimize          bool `env:"FALLBACK_COST_OPTIMIZE"   envDefault:"false"`
	DegradedEnabled       bool `env:"FALLBACK_DEGRADED"        envDefault:"false"`
	AttemptTimeoutSeconds int  `env:"FALLBACK_ATTEMPT_TIMEOUT" envDefault:"30"`
}

// CacheConfig controls the response cache. Backend selects the store:
// "memory" (default) or "redis". TaskTypes, when set, restricts caching to
// the listed task types; empty means cache everything.
type CacheConfig struct {
	Backend    string   `env:"CACHE_BACKEND"    envDefault:"memory"`
	MaxBytes   int64    `env:"CACHE_MAX_BYTES"  envDefault:"67108864"`
	TTLSeconds int      `env:"CACHE_TTL"        envDefault:"3600"`
	TaskTypes  []string `env:"CACHE_TASK_TYPES" envSeparator:","`

	RedisAddr     string `env:"CACHE_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"CACHE_REDIS_PASSWORD"`
	RedisDB       int    `env:"CACHE_REDIS_DB"       envDefault:"0"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*FallbackConfig
	*CacheConfig
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	if cfg.Compat.Name == "" {
		cfg.Compat.Name = "compat"
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		dig.Out{},
		&cfg.Server,
		&cfg.CORS,
		&cfg.Fallback,
		&cfg.Cache,
	}
}
