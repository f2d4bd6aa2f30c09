package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config describes one device's connection to the demo sync server.
type Config struct {
	ServerURL       string `toml:"server_url"`
	DeviceID        string `toml:"device_id"`
	JWTSecret       string `toml:"jwt_secret"`
	DBPath          string `toml:"db_path"`
	TokenTTLHr      int    `toml:"token_ttl_hours"`
	PollIntervalSec int    `toml:"poll_interval_seconds"`
}

func defaultConfig() Config {
	return Config{
		ServerURL:  "http://localhost:8080",
		DeviceID:   "demo-device",
		JWTSecret:  "change-me",
		DBPath:     "syncdemo-client.db",
		TokenTTLHr: 24,
		// PollIntervalSec defaults to 0: StaticSource is used and the demo is
		// always considered online. Set it to have the client actually probe
		// the server over HTTP to decide reachability.
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("syncdemo: decode config %s: %w", path, err)
	}
	return cfg, nil
}
