package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Temporal  TemporalConfig  `yaml:"temporal" mapstructure:"temporal"`
	Apollo    ApolloConfig    `yaml:"apollo" mapstructure:"apollo"`
	Lemlist   LemlistConfig   `yaml:"lemlist" mapstructure:"lemlist"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Ranking   RankingConfig   `yaml:"ranking" mapstructure:"ranking"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// TemporalConfig configures the task-queue client and worker.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// ApolloConfig holds the company/people enrichment vendor settings.
type ApolloConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	SearchPerPage int     `yaml:"search_per_page" mapstructure:"search_per_page"`
}

// LemlistConfig holds the outbound campaign vendor settings.
type LemlistConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	SequenceFile string `yaml:"sequence_file" mapstructure:"sequence_file"`
}

// AnthropicConfig holds Anthropic API settings for the LLM collaborators.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// RankingConfig selects the decision-maker ranking oracle.
type RankingConfig struct {
	// Oracle is "llm" or "comparator". The comparator is deterministic:
	// has-headline desc, seniority rank desc.
	Oracle string `yaml:"oracle" mapstructure:"oracle"`
}

// PipelineConfig configures stage behavior.
type PipelineConfig struct {
	StageTimeoutSecs  int `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`
	StageMaxAttempts  int `yaml:"stage_max_attempts" mapstructure:"stage_max_attempts"`
	PeopleChunkSize   int `yaml:"people_chunk_size" mapstructure:"people_chunk_size"`
	EnrichConcurrency int `yaml:"enrich_concurrency" mapstructure:"enrich_concurrency"`

	// DocumentsDir is where candidate resume/transcript text files live.
	DocumentsDir string `yaml:"documents_dir" mapstructure:"documents_dir"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PLACEMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secrets default to empty so env-only values bind through
	// Unmarshal.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("apollo.key", "")
	v.SetDefault("lemlist.key", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "placement-pipeline")
	v.SetDefault("apollo.base_url", "https://api.apollo.io/api/v1")
	v.SetDefault("apollo.rate_per_sec", 2.0)
	v.SetDefault("apollo.search_per_page", 20)
	v.SetDefault("lemlist.base_url", "https://api.lemlist.com/api")
	v.SetDefault("lemlist.sequence_file", "sequences.yaml")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("ranking.oracle", "comparator")
	v.SetDefault("pipeline.stage_timeout_secs", 300)
	v.SetDefault("pipeline.stage_max_attempts", 3)
	v.SetDefault("pipeline.people_chunk_size", 10)
	v.SetDefault("pipeline.enrich_concurrency", 4)
	v.SetDefault("pipeline.documents_dir", "./documents")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the keys required by a command scope are present.
// Scope is "serve", "worker", or "migrate".
func (c *Config) Validate(scope string) error {
	if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}

	switch scope {
	case "worker":
		if c.Apollo.Key == "" {
			return eris.New("config: apollo.key is required for the worker")
		}
		if c.Lemlist.Key == "" {
			return eris.New("config: lemlist.key is required for the worker")
		}
		if c.Anthropic.Key == "" {
			return eris.New("config: anthropic.key is required for the worker")
		}
	case "serve", "migrate":
		// Store settings above are sufficient.
	default:
		return eris.Errorf("config: unknown validation scope %q", scope)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
