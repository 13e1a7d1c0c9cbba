package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allofdaniel/shopping-helper/internal/common"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	t.Setenv("SHOPHELPER_TEST_DIR", "/tmp/shop")

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, "data.db"), ExpandPath("~/data.db"))
	assert.Equal(t, "/tmp/shop/data.db", ExpandPath("$SHOPHELPER_TEST_DIR/data.db"))
	assert.Equal(t, "~user/data.db", ExpandPath("~user/data.db"))
}

func TestAppDirs(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
	assert.Equal(t, "/tmp/xdg-config/shophelper", ConfigDir())
	assert.Equal(t, "/tmp/xdg-data/shophelper", DataDir())

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("XDG_DATA_HOME", "")
	assert.Equal(t, filepath.Join(home, ".local", "share", "shophelper"), DataDir())
}

func TestLoadDomains(t *testing.T) {
	t.Run("built-ins", func(t *testing.T) {
		domains, err := LoadDomains("")
		require.NoError(t, err)
		d, err := Domain(domains, "daiso")
		require.NoError(t, err)
		assert.Equal(t, "다이소", d.DisplayName)
		assert.Equal(t, DefaultPriceTolerance, d.PriceTolerance)
	})

	t.Run("file overrides and adds", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "domains.yaml")
		content := `
domains:
  - name: daiso
    display_name: 다이소
    keywords: [다이소]
    price_min: 500
    price_max: 5000
  - name: oliveyoung
    display_name: 올리브영
    keywords: [올리브영, 올영]
    stopwords: [올리브영]
    variants:
      - [선크림, 선크림, 썬크림]
    category_map:
      스킨케어: [기초화장품]
    price_tolerance: 0.15
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		domains, err := LoadDomains(path)
		require.NoError(t, err)

		daiso := domains["daiso"]
		assert.Equal(t, 500, daiso.PriceMin)
		assert.Equal(t, DefaultPriceTolerance, daiso.PriceTolerance)
		assert.Empty(t, daiso.Stopwords, "file profile replaces the built-in")

		oy, err := Domain(domains, "oliveyoung")
		require.NoError(t, err)
		assert.Equal(t, []string{"올리브영", "올영"}, oy.Keywords)
		assert.Equal(t, 0.15, oy.PriceTolerance)
		assert.Equal(t, []string{"기초화장품"}, oy.CategoryMap["스킨케어"])

		_, ok := domains["costco"]
		assert.True(t, ok, "untouched built-ins survive")
	})

	t.Run("invalid profiles", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "domains.yaml")
		require.NoError(t, os.WriteFile(path, []byte("domains:\n  - display_name: nameless\n"), 0o600))
		_, err := LoadDomains(path)
		assert.ErrorIs(t, err, common.ErrInvalidConfig)

		require.NoError(t, os.WriteFile(path, []byte("domains: [\n"), 0o600))
		_, err = LoadDomains(path)
		assert.Error(t, err)

		_, err = LoadDomains(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("unknown domain", func(t *testing.T) {
		_, err := Domain(DefaultDomains(), "nowhere")
		assert.ErrorIs(t, err, common.ErrInvalidConfig)
	})
}

func TestLoadLLMSettings(t *testing.T) {
	t.Cleanup(viper.Reset)

	t.Run("openai from env fallback", func(t *testing.T) {
		viper.Reset()
		t.Setenv("OPENAI_API_KEY", "sk-test")
		viper.Set("llm.retry_delay", 2*time.Second)

		s, err := LoadLLMSettings()
		require.NoError(t, err)
		assert.Equal(t, "openai", s.Client.Provider)
		assert.Equal(t, "sk-test", s.Client.APIKey)
		assert.Equal(t, 3, s.Retry.MaxAttempts)
		assert.Equal(t, 2*time.Second, s.Retry.InitialDelay)
		assert.Equal(t, 30, s.RateLimit)
		assert.Equal(t, 5, s.RateCapacity)
	})

	t.Run("viper key wins", func(t *testing.T) {
		viper.Reset()
		t.Setenv("ANTHROPIC_API_KEY", "env-key")
		viper.Set("llm.provider", "Anthropic")
		viper.Set("llm.anthropic_api_key", "config-key")
		viper.Set("llm.max_retries", 5)

		s, err := LoadLLMSettings()
		require.NoError(t, err)
		assert.Equal(t, "config-key", s.Client.APIKey)
		assert.Equal(t, 5, s.Retry.MaxAttempts)
	})

	t.Run("missing key", func(t *testing.T) {
		viper.Reset()
		t.Setenv("OPENAI_API_KEY", "")
		_, err := LoadLLMSettings()
		assert.ErrorIs(t, err, common.ErrMissingConfig)
	})

	t.Run("unknown provider", func(t *testing.T) {
		viper.Reset()
		viper.Set("llm.provider", "mystery")
		_, err := LoadLLMSettings()
		assert.ErrorIs(t, err, common.ErrInvalidConfig)
	})
}

func TestLoadStorageSettings(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Reset()
	s, err := LoadStorageSettings()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, s.Driver)
	assert.Equal(t, filepath.Join(DataDir(), "shophelper.db"), s.Path)

	viper.Reset()
	t.Setenv("DATABASE_URL", "")
	viper.Set("storage.driver", "postgres")
	_, err = LoadStorageSettings()
	assert.ErrorIs(t, err, common.ErrMissingConfig)

	viper.Set("storage.database_url", "postgres://localhost/shop")
	s, err = LoadStorageSettings()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/shop", s.DatabaseURL)

	viper.Reset()
	viper.Set("storage.driver", "mongo")
	_, err = LoadStorageSettings()
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}
