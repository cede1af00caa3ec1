package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/sniffctl/internal/config"
	"github.com/danmuck/sniffctl/internal/decoders"
	"github.com/danmuck/sniffctl/internal/observability"
	"github.com/danmuck/sniffctl/internal/server"
	"github.com/rs/zerolog/log"
)

func main() {
	observability.InitLogger("sniffd")
	configPath := flag.String("config", "cmd/sniffd/config.toml", "service config path")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load sniffd config")
	}

	registry, err := decoders.NewRegistry()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register decoders")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, registry)
	log.Info().
		Str("name", srv.Name).
		Str("addr", srv.Addr).
		Int("decoders", len(registry.ListMetadata())).
		Msg("sniffd started")
	if err := srv.Serve(ctx); err != nil {
		log.Fatal().Err(err).Msg("sniffd stopped")
	}
}

// loadConfig reads path, falling back to defaults when the file is absent.
func loadConfig(path string) (config.ServerConfig, error) {
	cfg, err := config.LoadServerConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", path).Msg("config not found, using defaults")
		return config.DefaultServerConfig(), nil
	}
	return cfg, err
}
