// Command syncdemo-server runs the demo push/pull HTTP endpoint the
// syncdemo client talks to.
package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"

	"github.com/loonylabs-dev/react-native-offline-sync/internal/jwtauth"
	"github.com/loonylabs-dev/react-native-offline-sync/server"
)

func main() {
	configPath := flag.String("config", "syncdemo-server.toml", "path to server config")
	flag.Parse()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		slog.Error("syncdemo-server: load config", "error", err)
		os.Exit(1)
	}

	db, err := server.OpenDB(cfg.DatabasePath)
	if err != nil {
		slog.Error("syncdemo-server: open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	notes := server.NewNoteStore(db)
	auth := jwtauth.New(cfg.JWTSecret)
	srv := server.New(notes, auth)

	slog.Info("syncdemo-server: listening", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, srv.Handler()); err != nil {
		slog.Error("syncdemo-server: serve", "error", err)
		os.Exit(1)
	}
}
