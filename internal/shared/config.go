package shared

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	AppEnv         string
	LogLevel       string
	HTTPAddr       string
	MetricsAddr    string
	MySQLDSN       string
	RedisAddr      string
	RedisDB        int
	RedisPass      string
	CacheTTL       time.Duration
	WebhookURL     string
	WebhookSecret  string
	WebhookTimeout time.Duration
	WebhookRPS     int
	PublicBaseURL  string
	GeocoderURL    string
	AdminToken     string
	SearchCooldown time.Duration
	EnrichWorkers  int
}

func defaults(v *viper.Viper) {
	v.SetDefault("app_env", "prod")
	v.SetDefault("log_level", "info")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("mysql_dsn", "root:root@tcp(localhost:3306)/telos?parseTime=true&charset=utf8mb4,utf8&loc=UTC")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("cache_ttl_seconds", 900)
	v.SetDefault("webhook_url", "")
	v.SetDefault("webhook_secret", "")
	v.SetDefault("webhook_timeout_seconds", 30)
	v.SetDefault("webhook_rps", 2)
	v.SetDefault("public_base_url", "http://localhost:8080")
	v.SetDefault("geocoder_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("admin_token", "")
	v.SetDefault("search_cooldown_seconds", 600)
	v.SetDefault("enrich_workers", 4)
}

// Load reads CONFIG_FILE (if set) and then environment variables, which win.
// Keys are the lower-case form of the env names, e.g. mysql_dsn / MYSQL_DSN.
func Load() Config { return LoadFile("") }

// LoadFile is Load with an explicit config file that overrides CONFIG_FILE.
func LoadFile(path string) Config {
	v := viper.New()
	defaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config_file")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("config file not loaded, using env and defaults")
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) Config {
	c := Config{
		AppEnv:         v.GetString("app_env"),
		LogLevel:       v.GetString("log_level"),
		HTTPAddr:       v.GetString("http_addr"),
		MetricsAddr:    v.GetString("metrics_addr"),
		MySQLDSN:       v.GetString("mysql_dsn"),
		RedisAddr:      v.GetString("redis_addr"),
		RedisPass:      v.GetString("redis_password"),
		RedisDB:        v.GetInt("redis_db"),
		CacheTTL:       time.Duration(v.GetInt("cache_ttl_seconds")) * time.Second,
		WebhookURL:     v.GetString("webhook_url"),
		WebhookSecret:  v.GetString("webhook_secret"),
		WebhookTimeout: time.Duration(v.GetInt("webhook_timeout_seconds")) * time.Second,
		WebhookRPS:     v.GetInt("webhook_rps"),
		PublicBaseURL:  strings.TrimRight(v.GetString("public_base_url"), "/"),
		GeocoderURL:    strings.TrimRight(v.GetString("geocoder_url"), "/"),
		AdminToken:     v.GetString("admin_token"),
		SearchCooldown: time.Duration(v.GetInt("search_cooldown_seconds")) * time.Second,
		EnrichWorkers:  v.GetInt("enrich_workers"),
	}
	if c.WebhookURL == "" {
		log.Warn().Msg("WEBHOOK_URL is empty; city search fallback will serve mock data only")
	}
	if c.WebhookURL != "" && c.WebhookSecret == "" {
		log.Warn().Msg("WEBHOOK_SECRET is empty; webhook callbacks will be rejected")
	}
	if c.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN is empty; admin routes are disabled")
	}
	if c.EnrichWorkers <= 0 {
		c.EnrichWorkers = 1
	}
	return c
}
