// Package config loads the per-process runtime configuration shared by
// every BreezeChat service binary (cmd/userd, cmd/filed, cmd/transmitd,
// cmd/storaged, cmd/speechd): log level/format, the coordination/registry
// identity this instance publishes itself under, and the dependency
// store addresses named in spec.md §6. Grounded on the viper defaults +
// env-override shape of the teacher pack's go-server-3 config loader
// (adred-codev-ws_poc), adapted from a single flat struct to one
// mapstructure section per external dependency.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of knobs a BreezeChat service process reads at
// startup. Not every field is relevant to every binary; each cmd/*
// entrypoint reads only the sections it needs.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Log       LogConfig       `mapstructure:"log"`
	Coord     CoordConfig     `mapstructure:"coordination"`
	Relational RelationalConfig `mapstructure:"relational"`
	Search    SearchConfig    `mapstructure:"search"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RPC       RPCConfig       `mapstructure:"rpc"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Email     EmailConfig     `mapstructure:"email"`
	Speech    SpeechConfig    `mapstructure:"speech"`
	User      UserConfig      `mapstructure:"user"`
	TLS       TLSConfig       `mapstructure:"tls"`
}

// TLSConfig enables transport encryption between BreezeChat service
// processes via pkg/security, off by default for local/dev deployment
// where the fabric runs on a trusted network.
type TLSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	CertDir string `mapstructure:"cert_dir"` // holds node.crt/node.key, see pkg/security
}

// UserConfig configures User Core's (cmd/userd) password-hashing salt.
type UserConfig struct {
	PasswordSalt string `mapstructure:"password_salt"`
}

// ServiceConfig identifies this process instance for registry/discovery
// and for the request logs it emits (spec.md §2's service_id/instance_id).
type ServiceConfig struct {
	Name         string `mapstructure:"name"`          // e.g. "user", "transmit"
	InstanceName string `mapstructure:"instance_name"` // unique within Name
	ListenAddr   string `mapstructure:"listen_addr"`   // host:port this process binds
	PublicAddr   string `mapstructure:"public_addr"`   // host:port other services dial; defaults to listen_addr
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// CoordConfig configures the etcd-backed coordination client (C1) used by
// both Registry (C2) and Discovery (C3).
type CoordConfig struct {
	Endpoints  []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	LeaseTTL   int64         `mapstructure:"lease_ttl_seconds"`
}

type RelationalConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type SearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
}

type BrokerConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
	Queue    string `mapstructure:"queue"`
}

type BlobConfig struct {
	Root string `mapstructure:"root"`
}

// CacheConfig configures the bbolt-backed verification-code/session cache
// (pkg/verifcache), local to whichever process owns it (User Core).
type CacheConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type RPCConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	Endpoint   string `mapstructure:"endpoint"`
}

// ClassifierConfig configures the two-stage text-moderation port (pkg/classifier).
type ClassifierConfig struct {
	ChannelURL string `mapstructure:"channel_url"`
	LLMURL     string `mapstructure:"llm_url"`
}

// EmailConfig configures the SMTP verification-code sender (pkg/email).
type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	From     string `mapstructure:"from"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// SpeechConfig configures the ASR port (pkg/speech).
type SpeechConfig struct {
	URL string `mapstructure:"url"`
}

// Load reads configuration from environment variables (prefixed
// BREEZECHAT_, nested keys joined with "_") and an optional config file
// named "breezechat" on the current directory or ./config, falling back to
// the defaults below. serviceName only seeds the service.name default; the
// env-var prefix is shared across all binaries, so BREEZECHAT_SERVICE_NAME
// always wins if set explicitly.
func Load(serviceName string) (Config, error) {
	v := viper.New()

	v.SetDefault("service.name", serviceName)
	v.SetDefault("service.instance_name", serviceName+"-1")
	v.SetDefault("service.listen_addr", "0.0.0.0:9000")
	v.SetDefault("service.public_addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("coordination.endpoints", []string{"127.0.0.1:2379"})
	v.SetDefault("coordination.dial_timeout", 5*time.Second)
	v.SetDefault("coordination.lease_ttl_seconds", int64(10))

	v.SetDefault("relational.dsn", "breezechat:breezechat@tcp(127.0.0.1:3306)/breezechat?parseTime=true")
	v.SetDefault("relational.max_open_conns", 10)
	v.SetDefault("relational.max_idle_conns", 5)
	v.SetDefault("relational.conn_max_lifetime", time.Hour)

	v.SetDefault("search.addresses", []string{"http://127.0.0.1:9200"})

	v.SetDefault("broker.url", "nats://127.0.0.1:4222")
	v.SetDefault("broker.exchange", "breezechat")
	v.SetDefault("broker.queue", "storage-consumer")

	v.SetDefault("blob.root", "./data/blobs")

	v.SetDefault("cache.data_dir", "./data/cache")

	v.SetDefault("rpc.timeout", 10*time.Second)
	v.SetDefault("rpc.max_retries", 3)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", ":9095")
	v.SetDefault("metrics.endpoint", "/metrics")

	v.SetDefault("classifier.channel_url", "http://127.0.0.1:8301/classify/channel")
	v.SetDefault("classifier.llm_url", "")

	v.SetDefault("email.host", "smtp.example.com")
	v.SetDefault("email.port", "587")
	v.SetDefault("email.from", "noreply@breezechat.example.com")

	v.SetDefault("speech.url", "http://127.0.0.1:8302/asr")

	v.SetDefault("user.password_salt", "breezechat-dev-salt")

	v.SetDefault("tls.enabled", false)
	v.SetDefault("tls.cert_dir", "./data/certs")

	v.SetConfigName("breezechat")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("BREEZECHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.Service.PublicAddr == "" {
		cfg.Service.PublicAddr = cfg.Service.ListenAddr
	}

	return cfg, nil
}
