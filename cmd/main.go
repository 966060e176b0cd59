// @path cmd/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Protocol-Lattice/lattice-studio/src"
	"github.com/Protocol-Lattice/lattice-studio/src/api"
	"github.com/Protocol-Lattice/lattice-studio/src/config"
	"github.com/Protocol-Lattice/lattice-studio/src/logging"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults to $STUDIO_CONFIG)")
	flag.Parse()

	fmt.Println("🎬 Initializing Lattice Studio...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("❌ Invalid configuration:", err)
		os.Exit(1)
	}

	// The alternate screen owns the terminal, so logs go to a file.
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "studio.log"
	}
	logger, err := logging.New(cfg.LogLevel, logFile)
	if err != nil {
		fmt.Println("❌ Failed to open log:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	client, err := api.New(cfg.BaseURL,
		api.WithCredentials(api.StaticToken(cfg.Token)),
		api.WithTimeout(cfg.RequestTimeout),
		api.WithLogger(logger.Named("api")),
	)
	if err != nil {
		fmt.Println("❌ Failed to create API client:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := src.NewModel(ctx, src.Deps{
		Config:  cfg,
		Logger:  logger,
		Backend: client,
		Assets:  client,
		Fetcher: client,
	})
	logger.Info("studio started", zap.String("backend", cfg.BaseURL), zap.String("model", cfg.VideoModel))

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
