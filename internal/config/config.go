// Package config loads keychat's JSON configuration. A missing file yields
// defaults, and zero fields in a parsed file are back-filled from the
// defaults, so both binaries start with no file at all.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// EnvFile names the environment variable consulted when no --config flag is given.
const EnvFile = "KEYCHAT_CONFIG"

// Duration is a time.Duration written as a Go duration string ("10s") in JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	// relay
	ListenAddr       string   `json:"listen_addr"`
	RedisAddr        string   `json:"redis_addr"`
	RedisDB          int      `json:"redis_db"`
	RedisPassword    string   `json:"redis_password"`
	InboxTTL         Duration `json:"inbox_ttl"`
	MongoURI         string   `json:"mongo_uri"`
	MongoDatabase    string   `json:"mongo_database"`
	HandshakeTimeout Duration `json:"handshake_timeout"`
	WriteTimeout     Duration `json:"write_timeout"`
	MaxMessageBytes  int64    `json:"max_message_bytes"`

	// client
	ServerURL string `json:"server_url"`
	LocalDB   string `json:"local_db"`

	LogLevel string `json:"log_level"`
}

func Default() *Config {
	return &Config{
		ListenAddr:       "localhost:9090",
		RedisAddr:        "localhost:6379",
		InboxTTL:         Duration(48 * time.Hour),
		MongoURI:         "mongodb://localhost:27017",
		MongoDatabase:    "keychat",
		HandshakeTimeout: Duration(10 * time.Second),
		WriteTimeout:     Duration(5 * time.Second),
		MaxMessageBytes:  64 << 10,
		ServerURL:        "ws://localhost:9090/ws",
		LocalDB:          "keychat.db",
		LogLevel:         "info",
	}
}

// Path returns flag if set, else the value of KEYCHAT_CONFIG.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(EnvFile)
}

// Load reads the file at path. Defaults are returned when path is empty or
// the file does not exist. A file that exists but cannot be read or parsed
// also yields defaults, together with the error so the caller can report it.
func Load(path string) (*Config, error) {
	def := Default()
	if path == "" {
		return def, nil
	}

	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return def, fmt.Errorf("parse config %s: %w", path, err)
	}

	c.fill(def)
	return &c, nil
}

func (c *Config) fill(def *Config) {
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.RedisAddr == "" {
		c.RedisAddr = def.RedisAddr
	}
	if c.InboxTTL <= 0 {
		c.InboxTTL = def.InboxTTL
	}
	if c.MongoURI == "" {
		c.MongoURI = def.MongoURI
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = def.MongoDatabase
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = def.MaxMessageBytes
	}
	if c.ServerURL == "" {
		c.ServerURL = def.ServerURL
	}
	if c.LocalDB == "" {
		c.LocalDB = def.LocalDB
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}
