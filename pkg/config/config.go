package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hugh/zerogap/pkg/util"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Poll      PollConfig
	Notify    NotifyConfig
	Redis     RedisConfig
	Journal   JournalConfig
	Reports   ReportsConfig
	Schedule  ScheduleConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

type ServerConfig struct {
	Host     string
	Port     int
	Env      string
	LogLevel string
}

type BackendConfig struct {
	URL            string
	TimeoutSeconds int
}

type PollConfig struct {
	IntervalMS     int
	HistoryDelayMS int
	HistoryLimit   int
}

type NotifyConfig struct {
	DismissMS    int
	Failures     bool
	RedisChannel string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JournalConfig struct {
	Driver string
	DSN    string
}

type ReportsConfig struct {
	Dir          string
	S3Bucket     string
	S3Region     string
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	S3Prefix     string
	S3RoleARN    string
	S3ExternalID string
}

type ScheduleConfig struct {
	Cron    string
	Target  string
	Threads int
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

type CORSConfig struct {
	AllowedOrigins []string
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (b *BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

func (p *PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMS) * time.Millisecond
}

func (p *PollConfig) HistoryDelay() time.Duration {
	return time.Duration(p.HistoryDelayMS) * time.Millisecond
}

func (n *NotifyConfig) DismissAfter() time.Duration {
	return time.Duration(n.DismissMS) * time.Millisecond
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Enabled is false when no Redis host is configured.
func (r *RedisConfig) Enabled() bool {
	return r.Host != ""
}

func (j *JournalConfig) Enabled() bool {
	return j.Driver != ""
}

func (r *ReportsConfig) ArchiveEnabled() bool {
	return r.S3Bucket != ""
}

func (s *ScheduleConfig) Enabled() bool {
	return s.Cron != ""
}

func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom reads configuration into v, which may already carry bound flags.
func LoadFrom(v *viper.Viper) (*Config, error) {
	// Set defaults
	v.SetDefault("SERVER_HOST", "127.0.0.1")
	v.SetDefault("SERVER_PORT", 8090)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("BACKEND_URL", "http://localhost:5000/api")
	v.SetDefault("BACKEND_TIMEOUT_SECONDS", 30)
	v.SetDefault("POLL_INTERVAL_MS", 2000)
	v.SetDefault("HISTORY_REFRESH_DELAY_MS", 500)
	v.SetDefault("HISTORY_LIMIT", 10)
	v.SetDefault("NOTIFY_DISMISS_MS", 5000)
	v.SetDefault("NOTIFY_FAILURES", false)
	v.SetDefault("NOTIFY_REDIS_CHANNEL", "zerogap:notifications")
	v.SetDefault("REDIS_HOST", "")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JOURNAL_DRIVER", "")
	v.SetDefault("JOURNAL_DSN", "")
	v.SetDefault("REPORTS_DIR", "./reports")
	v.SetDefault("REPORTS_S3_BUCKET", "")
	v.SetDefault("REPORTS_S3_REGION", "us-east-1")
	v.SetDefault("REPORTS_S3_ENDPOINT", "")
	v.SetDefault("REPORTS_S3_ACCESS_KEY", "")
	v.SetDefault("REPORTS_S3_SECRET_KEY", "")
	v.SetDefault("REPORTS_S3_PREFIX", "reports")
	v.SetDefault("REPORTS_S3_ROLE_ARN", "")
	v.SetDefault("REPORTS_S3_EXTERNAL_ID", "")
	v.SetDefault("SCHEDULE_CRON", "")
	v.SetDefault("SCHEDULE_TARGET", "")
	v.SetDefault("SCHEDULE_THREADS", 5)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:     v.GetString("SERVER_HOST"),
			Port:     v.GetInt("SERVER_PORT"),
			Env:      v.GetString("SERVER_ENV"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		Backend: BackendConfig{
			URL:            strings.TrimRight(v.GetString("BACKEND_URL"), "/"),
			TimeoutSeconds: v.GetInt("BACKEND_TIMEOUT_SECONDS"),
		},
		Poll: PollConfig{
			IntervalMS:     v.GetInt("POLL_INTERVAL_MS"),
			HistoryDelayMS: v.GetInt("HISTORY_REFRESH_DELAY_MS"),
			HistoryLimit:   v.GetInt("HISTORY_LIMIT"),
		},
		Notify: NotifyConfig{
			DismissMS:    v.GetInt("NOTIFY_DISMISS_MS"),
			Failures:     v.GetBool("NOTIFY_FAILURES"),
			RedisChannel: v.GetString("NOTIFY_REDIS_CHANNEL"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		Journal: JournalConfig{
			Driver: strings.ToLower(v.GetString("JOURNAL_DRIVER")),
			DSN:    v.GetString("JOURNAL_DSN"),
		},
		Reports: ReportsConfig{
			Dir:          v.GetString("REPORTS_DIR"),
			S3Bucket:     v.GetString("REPORTS_S3_BUCKET"),
			S3Region:     v.GetString("REPORTS_S3_REGION"),
			S3Endpoint:   v.GetString("REPORTS_S3_ENDPOINT"),
			S3AccessKey:  v.GetString("REPORTS_S3_ACCESS_KEY"),
			S3SecretKey:  v.GetString("REPORTS_S3_SECRET_KEY"),
			S3Prefix:     v.GetString("REPORTS_S3_PREFIX"),
			S3RoleARN:    v.GetString("REPORTS_S3_ROLE_ARN"),
			S3ExternalID: v.GetString("REPORTS_S3_EXTERNAL_ID"),
		},
		Schedule: ScheduleConfig{
			Cron:    v.GetString("SCHEDULE_CRON"),
			Target:  v.GetString("SCHEDULE_TARGET"),
			Threads: v.GetInt("SCHEDULE_THREADS"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings that would only fail later at first use.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid BACKEND_URL %q", c.Backend.URL)
	}

	switch c.Journal.Driver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported JOURNAL_DRIVER %q", c.Journal.Driver)
	}
	if c.Journal.Enabled() && c.Journal.DSN == "" {
		return fmt.Errorf("JOURNAL_DSN is required when JOURNAL_DRIVER is set")
	}

	if c.Schedule.Enabled() {
		if err := util.ValidateCronExpr(c.Schedule.Cron); err != nil {
			return fmt.Errorf("SCHEDULE_CRON: %w", err)
		}
		if strings.TrimSpace(c.Schedule.Target) == "" {
			return fmt.Errorf("SCHEDULE_TARGET is required when SCHEDULE_CRON is set")
		}
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
