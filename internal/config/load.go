package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override: LS_SERVER_PORT=9090.
const EnvPrefix = "LS"

// Load reads configuration from defaults, an optional YAML file, and the
// environment. An empty configPath searches the standard locations; a
// missing file there is not an error.
func Load(configPath string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("logsentinel")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/logsentinel")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Well-known names used by existing deployments.
	for key, env := range map[string]string{
		"loki.url":                   "LOKI_URL",
		"plugins.llm.openai.api_key": "OPENAI_API_KEY",
		"plugins.webhook.url":        "DISCORD_WEBHOOK_URL",
	} {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}

// SetDefaults registers every default the binary relies on.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.dsn", "./data/logsentinel.db")

	v.SetDefault("loki.url", "http://localhost:3100")
	v.SetDefault("loki.timeout", "15s")
	v.SetDefault("loki.step", "30s")
	v.SetDefault("loki.limit", 5000)

	v.SetDefault("plugins.collector.enabled", true)
	v.SetDefault("plugins.collector.interval", "15m")
	v.SetDefault("plugins.collector.window", "15m")
	v.SetDefault("plugins.collector.schedule", false)
	v.SetDefault("plugins.collector.failed_login_query", `{job="app"} |= "login_failed" | json`)
	v.SetDefault("plugins.collector.server_error_query", `{job="apache"} |~ " 5\\d\\d "`)

	v.SetDefault("plugins.insight.enabled", true)
	v.SetDefault("plugins.insight.backend", "file")
	v.SetDefault("plugins.insight.state_path", "./data/model_state.json")
	v.SetDefault("plugins.insight.ewma_alpha", 0.3)
	v.SetDefault("plugins.insight.max_identities", 10000)
	v.SetDefault("plugins.insight.identity_idle_ttl", "720h")
	v.SetDefault("plugins.insight.zscore_threshold", 2.0)
	v.SetDefault("plugins.insight.server_error_floor", 5)
	v.SetDefault("plugins.insight.identity_floor", 10)
	v.SetDefault("plugins.insight.identity_sigma", 3.0)
	v.SetDefault("plugins.insight.identity_min_std", 1.0)
	v.SetDefault("plugins.insight.verdict_retention", "720h")
	v.SetDefault("plugins.insight.maintenance_interval", "1h")

	v.SetDefault("plugins.llm.enabled", true)
	v.SetDefault("plugins.llm.provider", "openai")
	v.SetDefault("plugins.llm.openai.model", "gpt-4o-mini")
	v.SetDefault("plugins.llm.openai.timeout", "30s")
	v.SetDefault("plugins.llm.openai.base_url", "https://api.openai.com")
	v.SetDefault("plugins.llm.openai.max_retries", 1)
	v.SetDefault("plugins.llm.openai.retry_backoff", "2s")
	v.SetDefault("plugins.llm.ping_interval", "1m")

	v.SetDefault("plugins.report.enabled", true)
	v.SetDefault("plugins.report.web_file", "./data/summary.txt")
	v.SetDefault("plugins.report.stdout", true)
	v.SetDefault("plugins.report.window_label", "last 15 minutes")

	v.SetDefault("plugins.webhook.enabled", true)
	v.SetDefault("plugins.webhook.url", "")
	v.SetDefault("plugins.webhook.timeout", "10s")
	v.SetDefault("plugins.webhook.rate_per_minute", 30)
}
