// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/lancerane/CSVConverter-GCP/internal/api"
	"github.com/lancerane/CSVConverter-GCP/internal/app"
	"github.com/lancerane/CSVConverter-GCP/internal/config"
	"github.com/lancerane/CSVConverter-GCP/pkg/logger"
)

func main() {
	cliApp := &cli.App{
		Name:  "server",
		Usage: "Serve the binary log to CSV conversion trigger",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "address",
				Usage:   "Address to listen on",
				EnvVars: []string{"SERVER_ADDRESS"},
			},
			&cli.StringFlag{
				Name:    "port",
				Usage:   "Port to listen on",
				EnvVars: []string{"PORT"},
			},
		},
		Action: serve,
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server failed")
	}
}

func serve(c *cli.Context) error {
	// Load configuration
	cfg := config.Load()
	if c.IsSet("address") {
		cfg.Server.Address = c.String("address")
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.String("port")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Initialize logger
	logger.Configure(cfg.Server.Mode, cfg.Server.LogFormat)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	pipe, err := app.New(c.Context, cfg, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := pipe.Close(); err != nil {
			logger.Log.Error().Err(err).Msg("Failed to release resources")
		}
	}()

	services := &api.Services{
		Runner:  pipe.Orchestrator,
		Metrics: pipe.Metrics.Handler(),
	}
	if pipe.History != nil {
		services.History = pipe.History
	}
	router := api.NewRouter(services, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Address, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.Log.Info().Str("addr", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-quit:
	}
	logger.Log.Info().Msg("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return err
	}

	logger.Log.Info().Msg("Server exiting")
	return nil
}
