package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/nidhogg/xoxo/internal/provider"
)

// Config is the top-level configuration structure.
type Config struct {
	Server        ServerConfig       `json:"server"`
	Persona       string             `json:"persona"` // built-in id or path to a JSON profile
	Conversation  ConversationConfig `json:"conversation"`
	Registry      RegistryConfig     `json:"registry"`
	Transport     TransportConfig    `json:"transport"`
	Responder     ResponderConfig    `json:"responder"`
	Providers     []provider.Config  `json:"providers"`
	Transcript    TranscriptConfig   `json:"transcript"`
	Gateway       GatewayConfig      `json:"gateway"`
	Database      DatabaseConfig     `json:"database"`
	MigrationsDir string             `json:"migrations_dir"`
}

type ServerConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	PublicURL string `json:"public_url"` // URL other agents reach us at; derived from host/port when empty
	LogLevel  string `json:"log_level"`
}

type ConversationConfig struct {
	InitialDelay Duration `json:"initial_delay"`
	PartnerDelay Duration `json:"partner_delay"`
	RoundDelay   Duration `json:"round_delay"`
	IdleDelay    Duration `json:"idle_delay"`
}

type RegistryConfig struct {
	Type         string          `json:"type"` // mongo|static
	Mongo        MongoConfig     `json:"mongo"`
	ActiveWindow Duration        `json:"active_window"`
	PollInterval Duration        `json:"poll_interval"`
	RetryDelay   Duration        `json:"retry_delay"`
	Static       []PartnerConfig `json:"static"`
}

type MongoConfig struct {
	URI        string `json:"uri"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

type PartnerConfig struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

type TransportConfig struct {
	Timeout Duration `json:"timeout"`
}

type ResponderConfig struct {
	Type         string `json:"type"` // canned|llm
	Model        string `json:"model"`
	HistoryLimit int    `json:"history_limit"`
}

type TranscriptConfig struct {
	Dir string `json:"dir"`
}

type GatewayConfig struct {
	Slack   SlackGatewayConfig   `json:"slack"`
	Discord DiscordGatewayConfig `json:"discord"`
}

type SlackGatewayConfig struct {
	Enabled   bool   `json:"enabled"`
	BotToken  string `json:"bot_token"`
	ChannelID string `json:"channel_id"`
	IconEmoji string `json:"icon_emoji"`
}

type DiscordGatewayConfig struct {
	Enabled    bool   `json:"enabled"`
	BotToken   string `json:"bot_token"`
	ChannelID  string `json:"channel_id"`
	WebhookURL string `json:"webhook_url"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type Neo4jConfig struct {
	URI      string  `json:"uri"`
	User     string  `json:"user"`
	Password string  `json:"password"`
	Boost    float64 `json:"boost"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// Duration is a time.Duration written as a string such as "30s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable references
// and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal([]byte(expandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// expandEnv substitutes ${VAR} and ${VAR:default} with environment values.
func expandEnv(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		return parts[2]
	})
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 10003
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = fmt.Sprintf("http://%s:%d/", c.Server.Host, c.Server.Port)
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Persona == "" {
		c.Persona = "ana"
	}

	conv := &c.Conversation
	setDefault(&conv.InitialDelay, 30*time.Second)
	setDefault(&conv.PartnerDelay, 5*time.Second)
	setDefault(&conv.RoundDelay, 5*time.Second)
	setDefault(&conv.IdleDelay, 60*time.Second)

	if c.Registry.Type == "" {
		if c.Registry.Mongo.URI != "" {
			c.Registry.Type = "mongo"
		} else {
			c.Registry.Type = "static"
		}
	}
	if c.Registry.Mongo.Database == "" {
		c.Registry.Mongo.Database = "xoxo"
	}
	if c.Registry.Mongo.Collection == "" {
		c.Registry.Mongo.Collection = "agents"
	}
	setDefault(&c.Registry.ActiveWindow, time.Hour)
	setDefault(&c.Registry.PollInterval, 300*time.Second)
	setDefault(&c.Registry.RetryDelay, 60*time.Second)

	setDefault(&c.Transport.Timeout, 60*time.Second)

	if c.Responder.Type == "" {
		c.Responder.Type = "canned"
	}
	if c.Responder.HistoryLimit == 0 {
		c.Responder.HistoryLimit = 20
	}
	if c.Transcript.Dir == "" {
		c.Transcript.Dir = "."
	}
	if c.MigrationsDir == "" {
		c.MigrationsDir = "migrations"
	}
}

func setDefault(d *Duration, v time.Duration) {
	if *d == 0 {
		*d = Duration(v)
	}
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Registry.Type {
	case "static":
	case "mongo":
		if c.Registry.Mongo.URI == "" {
			return fmt.Errorf("registry.mongo.uri is required for the mongo registry")
		}
	default:
		return fmt.Errorf("unknown registry type %q", c.Registry.Type)
	}
	switch c.Responder.Type {
	case "canned":
	case "llm":
		if len(c.Providers) == 0 {
			return fmt.Errorf("the llm responder needs at least one provider")
		}
	default:
		return fmt.Errorf("unknown responder type %q", c.Responder.Type)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}
