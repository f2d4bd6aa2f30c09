// Package server is the demo sync server: an HTTP implementation of the
// push/pull wire contract backed by SQLite, used to exercise the client
// packages (queue, push, pull, orchestrator) end to end.
package server

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is loaded from a TOML file at startup.
type Config struct {
	ListenAddr   string `toml:"listen_addr"`
	DatabasePath string `toml:"database_path"`
	JWTSecret    string `toml:"jwt_secret"`
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8080",
		DatabasePath: "syncdemo-server.db",
		JWTSecret:    "change-me",
	}
}

// LoadConfig reads path and overlays it onto DefaultConfig. A missing file
// is not an error; the caller runs with defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("server: decode config %s: %w", path, err)
	}
	return cfg, nil
}
