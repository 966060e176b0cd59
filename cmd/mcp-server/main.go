package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Protocol-Lattice/lattice-studio/src/api"
	"github.com/Protocol-Lattice/lattice-studio/src/config"
	"github.com/Protocol-Lattice/lattice-studio/src/logging"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults to $STUDIO_CONFIG)")
	addr := flag.String("http", "", "serve MCP over SSE on this address instead of stdio, e.g. :8090")
	origins := flag.String("origins", "*", "allowed CORS origin for the SSE transport")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	// stdout carries the stdio protocol, so logs never go there.
	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer logger.Sync()

	client, err := api.New(cfg.BaseURL,
		api.WithCredentials(api.StaticToken(cfg.Token)),
		api.WithTimeout(cfg.RequestTimeout),
		api.WithLogger(logger.Named("api")),
	)
	if err != nil {
		log.Fatalf("API client error: %v", err)
	}

	s := server.NewMCPServer(
		"Lattice Studio MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	newStudioTools(client, client, cfg.Video(), cfg.AvatarID, logger).register(s)

	if *addr == "" {
		if err := server.ServeStdio(s); err != nil {
			log.Fatalf("Server error: %v", err)
		}
		return
	}
	if err := serveHTTP(s, *addr, *origins, logger); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func newRouter(s *server.MCPServer, baseURL string) (*mux.Router, *server.SSEServer) {
	sse := server.NewSSEServer(s, server.WithBaseURL(baseURL))
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(sse)
	return r, sse
}

func serveHTTP(s *server.MCPServer, addr, origins string, logger *zap.Logger) error {
	r, sse := newRouter(s, "http://"+hostFor(addr))

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{origins}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	handler := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		handlers.LoggingHandler(os.Stderr, cors(r)),
	)

	// WriteTimeout stays unset: SSE streams are long-lived.
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mcp sse server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sse.Shutdown(shutdownCtx); err != nil {
		logger.Warn("sse shutdown", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// hostFor turns a listen address such as ":8090" into a dialable host.
func hostFor(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
