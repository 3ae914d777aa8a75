// Package main is the entry point for the offlined daemon, which hosts the
// offline-resilience core (cache, sync queue, memory manager) behind a
// loopback diagnostics server.
package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/nexinvo/offline-core/config"
	"github.com/nexinvo/offline-core/internal/app"
	httpx "github.com/nexinvo/offline-core/internal/http"
	"github.com/nexinvo/offline-core/internal/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.LogLevel, cfg.Server.LogPretty)
	gin.SetMode(gin.ReleaseMode)

	core, err := app.Initialize(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Initialization error")
	}
	defer core.Close()

	handler := httpx.NewHandler(core.Queue(), core.Memory(), core.Documents())
	server := app.NewServer(httpx.NewRouter(handler), cfg.Server.Addr)

	if err := server.Run(); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
}
