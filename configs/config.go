package configs

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type RateRule struct {
	Limit  int64         `koanf:"limit"`
	Window time.Duration `koanf:"window"`
}

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		HTTPAddr string `koanf:"http_addr"`
		LogLevel string `koanf:"log_level"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout  time.Duration `koanf:"read_timeout"`
		WriteTimeout time.Duration `koanf:"write_timeout"`
		IdleTimeout  time.Duration `koanf:"idle_timeout"`
	} `koanf:"http"`

	MySQL struct {
		DSN             string        `koanf:"dsn"`
		MaxOpenConns    int           `koanf:"max_open_conns"`
		MaxIdleConns    int           `koanf:"max_idle_conns"`
		ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	} `koanf:"mysql"`

	Redis struct {
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
		// ExpiryEvents enables the keyspace-notification listener. Off when
		// the deployment's Redis has no notify-keyspace-events support; the
		// periodic sweep then carries cancellation alone.
		ExpiryEvents bool `koanf:"expiry_events"`
	} `koanf:"redis"`

	Order struct {
		// PendingTimeout is how long an unpaid order may stay PENDING.
		PendingTimeout time.Duration `koanf:"pending_timeout"`
		// SweepInterval is the fallback scan period.
		SweepInterval time.Duration `koanf:"sweep_interval"`
	} `koanf:"order"`

	Cache struct {
		TTL time.Duration `koanf:"ttl"`
	} `koanf:"cache"`

	RateLimit struct {
		CreateOrder RateRule `koanf:"create_order"`
		PayOrder    RateRule `koanf:"pay_order"`
		ClaimCoupon RateRule `koanf:"claim_coupon"`
	} `koanf:"ratelimit"`

	Rabbit struct {
		URL string `koanf:"url"`
	} `koanf:"rabbitmq"`

	Kafka struct {
		Brokers        []string `koanf:"brokers"`
		TopicStatus    string   `koanf:"topic_status"`
		TopicBroadcast string   `koanf:"topic_broadcast"`
		GroupID        string   `koanf:"group_id"`
	} `koanf:"kafka"`

	Security struct {
		JWTSecret string        `koanf:"jwt_secret"`
		Issuer    string        `koanf:"issuer"`
		Audience  string        `koanf:"audience"`
		TTL       time.Duration `koanf:"ttl"`
	} `koanf:"security"`
}

func Load(pathDir, envName string) (Config, error) {
	k := koanf.New(".")
	// 1) base
	if err := k.Load(file.Provider(fmt.Sprintf("%s/base.yaml", pathDir)), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}

	// 2) env override (dev/staging/prod). Optional: allow missing for local runs.
	_ = k.Load(file.Provider(fmt.Sprintf("%s/%s.yaml", pathDir, envName)), yaml.Parser())

	// 3) environment variables override (prefix MALLCORE_, nested with __)
	// e.g. MALLCORE_MYSQL__DSN, MALLCORE_REDIS__PASSWORD
	if err := k.Load(env.Provider("MALLCORE_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "MALLCORE_")
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Order.PendingTimeout == 0 {
		c.Order.PendingTimeout = 30 * time.Minute
	}
	if c.Order.SweepInterval == 0 {
		c.Order.SweepInterval = 5 * time.Minute
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = time.Hour
	}
	if c.RateLimit.CreateOrder.Limit == 0 {
		c.RateLimit.CreateOrder = RateRule{Limit: 10, Window: time.Minute}
	}
	if c.RateLimit.PayOrder.Limit == 0 {
		c.RateLimit.PayOrder = RateRule{Limit: 20, Window: time.Minute}
	}
	if c.RateLimit.ClaimCoupon.Limit == 0 {
		c.RateLimit.ClaimCoupon = RateRule{Limit: 5, Window: time.Minute}
	}
}

func (c Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return fmt.Errorf("app.http_addr required")
	}
	if c.MySQL.DSN == "" {
		return fmt.Errorf("mysql.dsn required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr required")
	}
	if c.Order.SweepInterval >= c.Order.PendingTimeout {
		return fmt.Errorf("order.sweep_interval must be shorter than order.pending_timeout")
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret required")
	}
	return nil
}
