package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/ghgate/ghgate/internal/config"
	"github.com/ghgate/ghgate/internal/dispatch"
	"github.com/ghgate/ghgate/internal/mcpserver"
	"github.com/ghgate/ghgate/internal/tools"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env-file", "", "load environment variables from this file before reading config")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ghgate %s\n", version)
		return 0
	}

	// stdout belongs to the MCP stream; logs and the audit control channel
	// go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			logger.Error("load env file failed", "path", *envFile, "err", err)
			return 1
		}
	} else {
		godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "err", err)
		return 1
	}
	logger.Info("effective config", "config", cfg.String())

	reg := dispatch.NewRegistry()
	if err := tools.Register(reg); err != nil {
		logger.Error("tool registration failed", "err", err)
		return 1
	}

	dispatcher := dispatch.New(cfg, reg, logger)

	srv, err := mcpserver.New(dispatcher, reg, version)
	if err != nil {
		logger.Error("mcp server init failed", "err", err)
		return 1
	}

	logger.Info("ghgate serving on stdio", "tools", len(reg.Names()), "version", version)
	if err := mcpserver.ServeStdio(srv); err != nil {
		logger.Error("stdio server exited", "err", err)
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}
