// Package config loads bridge settings from .env, an optional
// configs/config.yml and the process environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Bus drivers.
const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

type Config struct {
	Bus      Bus
	TV       TV
	Cert     Cert
	DB       DB
	Server   Server
	Log      Log
	Auth     Auth
	Dispatch Dispatch
}

type Bus struct {
	Driver       string
	URL          string
	ClientID     string
	PublishKey   string // Redis ACL username
	SubscribeKey string // Redis ACL password
}

type TV struct {
	Host         string
	ADBPort      int
	PairingPort  int
	ADBServer    string
	PollInterval time.Duration
}

type Cert struct{ Path string }

type DB struct{ Path string }

type Server struct {
	Host string
	Port string
}

// Addr returns host:port for the HTTP listener.
func (s Server) Addr() string { return net.JoinHostPort(s.Host, s.Port) }

type Log struct{ Level string }

type Auth struct{ Secret string }

type Dispatch struct {
	// InputMacro overrides the remote_input prefix, as "KEY:delay" steps.
	InputMacro []string
	QueueSize  int
}

// env bindings; the key is the viper path, the value the variable name.
var envBindings = map[string]string{
	"bus.driver":           "BUS_DRIVER",
	"bus.url":              "BUS_URL",
	"bus.client_id":        "BUS_CLIENT_ID",
	"bus.publish_key":      "BUS_PUBLISH_KEY",
	"bus.subscribe_key":    "BUS_SUBSCRIBE_KEY",
	"tv.host":              "TV_HOST",
	"tv.adb_port":          "TV_ADB_PORT",
	"tv.pairing_port":      "TV_PAIRING_PORT",
	"tv.adb_server":        "ADB_SERVER",
	"tv.poll_interval":     "TV_POLL_INTERVAL",
	"cert.path":            "CERT_PATH",
	"db.path":              "DB_PATH",
	"server.host":          "SERVER_HOST",
	"server.port":          "SERVER_PORT",
	"log.level":            "LOG_LEVEL",
	"auth.secret":          "AUTH_SECRET",
	"dispatch.input_macro": "DISPATCH_INPUT_MACRO",
	"dispatch.queue_size":  "DISPATCH_QUEUE_SIZE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bus.driver", DriverRedis)
	v.SetDefault("tv.host", "192.168.1.163")
	v.SetDefault("tv.adb_port", 5555)
	v.SetDefault("tv.pairing_port", 6467)
	v.SetDefault("tv.adb_server", "127.0.0.1:5037")
	v.SetDefault("tv.poll_interval", "2s")
	v.SetDefault("cert.path", "cert.json")
	v.SetDefault("db.path", "app.db")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "3000")
	v.SetDefault("log.level", "info")
	v.SetDefault("dispatch.queue_size", 16)
}

// Load reads .env (if present) into the environment, then resolves the
// configuration from configDir/config.yml and env vars.
func Load(configDir string) (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper resolves a Config from v after applying defaults and env bindings.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	for key, name := range envBindings {
		if err := v.BindEnv(key, name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}

	cfg := &Config{
		Bus: Bus{
			Driver:       strings.ToLower(strings.TrimSpace(v.GetString("bus.driver"))),
			URL:          v.GetString("bus.url"),
			ClientID:     v.GetString("bus.client_id"),
			PublishKey:   v.GetString("bus.publish_key"),
			SubscribeKey: v.GetString("bus.subscribe_key"),
		},
		TV: TV{
			Host:         v.GetString("tv.host"),
			ADBPort:      v.GetInt("tv.adb_port"),
			PairingPort:  v.GetInt("tv.pairing_port"),
			ADBServer:    v.GetString("tv.adb_server"),
			PollInterval: v.GetDuration("tv.poll_interval"),
		},
		Cert:   Cert{Path: v.GetString("cert.path")},
		DB:     DB{Path: v.GetString("db.path")},
		Server: Server{Host: v.GetString("server.host"), Port: v.GetString("server.port")},
		Log:    Log{Level: v.GetString("log.level")},
		Auth:   Auth{Secret: v.GetString("auth.secret")},
		Dispatch: Dispatch{
			InputMacro: stringList(v.Get("dispatch.input_macro")),
			QueueSize:  v.GetInt("dispatch.queue_size"),
		},
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// stringList accepts a YAML list or a comma separated env value.
func stringList(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case nil:
		return nil
	case string:
		parts = strings.Split(val, ",")
	case []string:
		parts = val
	case []any:
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
	default:
		parts = []string{fmt.Sprint(val)}
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func validate(cfg *Config) error {
	switch cfg.Bus.Driver {
	case DriverRedis:
		required := map[string]string{
			"BUS_URL":       cfg.Bus.URL,
			"BUS_CLIENT_ID": cfg.Bus.ClientID,
		}
		for name, value := range required {
			if value == "" {
				return fmt.Errorf("%s is required", name)
			}
		}
	case DriverMemory:
	default:
		return fmt.Errorf("BUS_DRIVER must be %q or %q, got %q", DriverRedis, DriverMemory, cfg.Bus.Driver)
	}

	if cfg.TV.Host == "" {
		return errors.New("TV_HOST is required")
	}
	for name, port := range map[string]int{"TV_ADB_PORT": cfg.TV.ADBPort, "TV_PAIRING_PORT": cfg.TV.PairingPort} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%s must be a valid port, got %d", name, port)
		}
	}
	if p, err := strconv.Atoi(cfg.Server.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("SERVER_PORT must be a valid port, got %q", cfg.Server.Port)
	}
	if cfg.TV.PollInterval <= 0 {
		return fmt.Errorf("TV_POLL_INTERVAL must be positive, got %s", cfg.TV.PollInterval)
	}
	if cfg.Dispatch.QueueSize <= 0 {
		return fmt.Errorf("DISPATCH_QUEUE_SIZE must be positive, got %d", cfg.Dispatch.QueueSize)
	}
	return nil
}
