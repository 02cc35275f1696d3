package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Napageneral/recall/internal/contacts"
	"github.com/Napageneral/recall/internal/query"
	"github.com/Napageneral/recall/internal/tools"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		forceStdio bool
		forceHTTP  bool
		addr       string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over MCP (stdio when launched by a client, otherwise HTTP)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.HTTPAddr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc := query.New(cfg, logger)
			if cfg.Stores.WatchContacts {
				go func() {
					if err := svc.Contacts().Watch(ctx, contacts.DefaultDebounce); err != nil && !errors.Is(err, context.Canceled) {
						logger.Warn().Err(err).Msg("contacts watcher stopped")
					}
				}()
			}

			s := server.NewMCPServer(
				cfg.Server.Name,
				cfg.Server.Version,
				server.WithToolCapabilities(true),
			)
			if err := tools.NewHandler(svc, logger).RegisterTools(s); err != nil {
				return err
			}

			if useStdio(forceStdio, forceHTTP) {
				logger.Info().Str("messages_db", cfg.Stores.MessagesDB).Msg("serving MCP over stdio")
				return server.ServeStdio(s)
			}

			streamSrv := server.NewStreamableHTTPServer(
				s,
				server.WithEndpointPath("/mcp"),
				server.WithHeartbeatInterval(30*time.Second),
			)
			srv := &http.Server{
				Addr:         cfg.Server.HTTPAddr,
				Handler:      streamSrv,
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 0, // streaming responses
				IdleTimeout:  120 * time.Second,
			}

			shutdownComplete := make(chan struct{})
			go func() {
				defer close(shutdownComplete)
				<-ctx.Done()
				logger.Info().Msg("shutting down HTTP server")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error().Err(err).Msg("HTTP server shutdown")
				}
				if err := streamSrv.Shutdown(shutdownCtx); err != nil {
					logger.Error().Err(err).Msg("MCP server shutdown")
				}
			}()

			logger.Info().Str("addr", "http://"+cfg.Server.HTTPAddr+"/mcp").Msg("serving MCP over streamable HTTP")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				stop()
				<-shutdownComplete
				return err
			}
			<-shutdownComplete
			return nil
		},
	}
	cmd.Flags().BoolVar(&forceStdio, "stdio", false, "Force the stdio transport")
	cmd.Flags().BoolVar(&forceHTTP, "http", false, "Force the HTTP transport")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default from config)")
	return cmd
}

// useStdio picks the transport: flags first, then MCP_STDIO / MCP_HTTP, then
// stdio whenever stdin is not a terminal (the process was launched by a client).
func useStdio(forceStdio, forceHTTP bool) bool {
	switch {
	case forceStdio:
		return true
	case forceHTTP:
		return false
	case os.Getenv("MCP_STDIO") == "true":
		return true
	case os.Getenv("MCP_HTTP") == "true":
		return false
	}
	fd := os.Stdin.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}
