// Package config reads ownerdash settings from viper: a YAML file, OWNERDASH_
// environment variables and bound command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "OWNERDASH"

type Backend struct {
	URL     string
	Timeout time.Duration
}

type Feed struct {
	Driver  string // kafka|confluent|replay|none
	Brokers string
	Topic   string
	Group   string
	// ReplayFile is a JSONL file of order events for the replay driver.
	ReplayFile     string
	ReplayInterval time.Duration
}

type Cache struct {
	Driver string // memory|pebble
	Dir    string
}

type Notify struct {
	Sinks []string // log|file|kafka
	File  string
	Topic string
}

type Config struct {
	Backend  Backend
	Feed     Feed
	Cache    Cache
	Notify   Notify
	HTTPAddr string
	Resync   time.Duration
	LogLevel string
	LogFmt   string
}

// SetDefaults registers defaults and environment lookup on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend.url", "http://localhost:8080")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("feed.driver", "none")
	v.SetDefault("feed.brokers", "localhost:9092")
	v.SetDefault("feed.topic", "orders.updates")
	v.SetDefault("feed.group", "ownerdash")
	v.SetDefault("feed.replay_interval", 500*time.Millisecond)
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.dir", "./data/cache")
	v.SetDefault("notify.sinks", []string{"log"})
	v.SetDefault("notify.file", "./data/notifications.jsonl")
	v.SetDefault("notify.topic", "orders.new")
	v.SetDefault("http.addr", ":8090")
	v.SetDefault("views.resync", time.Duration(0))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads and validates the settings held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Backend: Backend{
			URL:     v.GetString("backend.url"),
			Timeout: v.GetDuration("backend.timeout"),
		},
		Feed: Feed{
			Driver:  strings.ToLower(v.GetString("feed.driver")),
			Brokers: v.GetString("feed.brokers"),
			Topic:   v.GetString("feed.topic"),
			Group:   v.GetString("feed.group"),

			ReplayFile:     v.GetString("feed.replay_file"),
			ReplayInterval: v.GetDuration("feed.replay_interval"),
		},
		Cache: Cache{
			Driver: strings.ToLower(v.GetString("cache.driver")),
			Dir:    v.GetString("cache.dir"),
		},
		Notify: Notify{
			Sinks: sinks(v.GetStringSlice("notify.sinks")),
			File:  v.GetString("notify.file"),
			Topic: v.GetString("notify.topic"),
		},
		HTTPAddr: v.GetString("http.addr"),
		Resync:   v.GetDuration("views.resync"),
		LogLevel: v.GetString("logging.level"),
		LogFmt:   v.GetString("logging.format"),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive, got %s", c.Backend.Timeout)
	}
	switch c.Feed.Driver {
	case "none":
	case "kafka", "confluent":
		if c.Feed.Brokers == "" || c.Feed.Topic == "" {
			return fmt.Errorf("feed.driver %s needs feed.brokers and feed.topic", c.Feed.Driver)
		}
	case "replay":
		if c.Feed.ReplayFile == "" {
			return fmt.Errorf("feed.driver replay needs feed.replay_file")
		}
	default:
		return fmt.Errorf("invalid feed.driver: %s", c.Feed.Driver)
	}
	switch c.Cache.Driver {
	case "memory":
	case "pebble":
		if c.Cache.Dir == "" {
			return fmt.Errorf("cache.driver pebble needs cache.dir")
		}
	default:
		return fmt.Errorf("invalid cache.driver: %s", c.Cache.Driver)
	}
	for _, s := range c.Notify.Sinks {
		switch s {
		case "log", "file", "kafka":
		default:
			return fmt.Errorf("invalid notify sink: %s", s)
		}
	}
	if c.Resync < 0 {
		return fmt.Errorf("views.resync must not be negative")
	}
	return nil
}

// HasSink reports whether the named notification sink is enabled.
func (c Config) HasSink(name string) bool {
	for _, s := range c.Notify.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// sinks accepts both a YAML list and a comma separated env value.
func sinks(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
