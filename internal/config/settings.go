package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/allofdaniel/shopping-helper/internal/common"
	"github.com/allofdaniel/shopping-helper/internal/llm"
	"github.com/allofdaniel/shopping-helper/internal/service"
)

// LLMSettings holds the completion client and its throttling configuration.
type LLMSettings struct {
	Client       llm.Config
	Retry        service.RetryOptions
	CacheTTL     time.Duration
	RateLimit    int // requests per minute
	RateCapacity int
}

// LoadLLMSettings loads completion settings from Viper and environment variables.
// It follows this precedence:
// 1. Viper configuration (from config file or SHOPHELPER_ env vars)
// 2. Provider environment variables (OPENAI_API_KEY, ANTHROPIC_API_KEY)
// 3. Default values
func LoadLLMSettings() (*LLMSettings, error) {
	provider := strings.ToLower(viper.GetString("llm.provider"))
	if provider == "" {
		provider = "openai"
	}

	settings := &LLMSettings{
		Client: llm.Config{
			Provider:    provider,
			Model:       viper.GetString("llm.model"),
			BaseURL:     viper.GetString("llm.base_url"),
			Temperature: viper.GetFloat64("llm.temperature"),
			MaxTokens:   viper.GetInt("llm.max_tokens"),
			Timeout:     viper.GetDuration("llm.timeout"),
		},
		Retry:        service.DefaultRetryOptions(viper.GetDuration("llm.retry_delay")),
		RateLimit:    viper.GetInt("llm.rate_limit"),
		RateCapacity: viper.GetInt("llm.rate_capacity"),
		CacheTTL:     viper.GetDuration("llm.cache_ttl"),
	}
	if n := viper.GetInt("llm.max_retries"); n > 0 {
		settings.Retry.MaxAttempts = n
	}
	if settings.Retry.InitialDelay <= 0 {
		settings.Retry.InitialDelay = time.Second
	}
	if settings.RateLimit <= 0 {
		settings.RateLimit = 30
	}
	if settings.RateCapacity <= 0 {
		settings.RateCapacity = 5
	}

	switch provider {
	case "openai":
		settings.Client.APIKey = viper.GetString("llm.openai_api_key")
		if settings.Client.APIKey == "" {
			settings.Client.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	case "anthropic":
		settings.Client.APIKey = viper.GetString("llm.anthropic_api_key")
		if settings.Client.APIKey == "" {
			settings.Client.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	default:
		return nil, fmt.Errorf("%w: unsupported llm.provider %q", common.ErrInvalidConfig, provider)
	}

	if settings.Client.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key for provider %s", common.ErrMissingConfig, provider)
	}

	return settings, nil
}

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StorageSettings selects and locates the persistence backend.
type StorageSettings struct {
	Driver      string
	Path        string
	DatabaseURL string
	MaxConns    int32 // postgres pool size; pgx default when zero
}

// LoadStorageSettings loads the storage backend configuration.
func LoadStorageSettings() (*StorageSettings, error) {
	settings := &StorageSettings{
		Driver:      strings.ToLower(viper.GetString("storage.driver")),
		Path:        ExpandPath(viper.GetString("storage.path")),
		DatabaseURL: viper.GetString("storage.database_url"),
		MaxConns:    viper.GetInt32("storage.max_conns"),
	}
	if settings.Driver == "" {
		settings.Driver = DriverSQLite
	}

	switch settings.Driver {
	case DriverSQLite:
		if settings.Path == "" {
			settings.Path = filepath.Join(DataDir(), appName+".db")
		}
	case DriverPostgres:
		if settings.DatabaseURL == "" {
			settings.DatabaseURL = os.Getenv("DATABASE_URL")
		}
		if settings.DatabaseURL == "" {
			return nil, fmt.Errorf("%w: storage.database_url is required for postgres", common.ErrMissingConfig)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported storage.driver %q", common.ErrInvalidConfig, settings.Driver)
	}
	return settings, nil
}

// CollectSettings sizes the collection worker pools.
type CollectSettings struct {
	TranscriptWorkers int
	MatchWorkers      int
	CallTimeout       time.Duration
}

// LoadCollectSettings reads collection settings; zero values mean "use the default".
func LoadCollectSettings() CollectSettings {
	return CollectSettings{
		TranscriptWorkers: viper.GetInt("collect.transcript_workers"),
		MatchWorkers:      viper.GetInt("collect.match_workers"),
		CallTimeout:       viper.GetDuration("collect.call_timeout"),
	}
}
