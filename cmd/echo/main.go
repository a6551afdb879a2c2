package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/rafald1/distributed-system/internal/config"
	"github.com/rafald1/distributed-system/internal/logging"
	"github.com/rafald1/distributed-system/internal/telemetry"
	"github.com/rafald1/distributed-system/pkg/echo"
	"github.com/rafald1/distributed-system/pkg/node"
)

func main() {
	cfgPath := flag.String("config", "", "optional TOML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if addr := cfg.Telemetry.Addr; addr != "" {
		go func() {
			if err := telemetry.Serve(addr); err != nil {
				logger.Warn("metrics listener failed", zap.String("addr", addr), zap.Error(err))
			}
		}()
	}

	r := node.NewRunner(node.Config{
		Codec:   echo.NewCodec(),
		Handler: echo.New(logger.Named("echo")),
		Logger:  logger,
	})
	if err := r.Run(context.Background(), os.Stdin, os.Stdout); err != nil {
		logger.Error("node terminated", zap.Error(err))
		os.Exit(1)
	}
}
