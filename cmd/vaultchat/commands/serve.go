package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultchat/vaultchat/internal/config"
	"github.com/vaultchat/vaultchat/internal/conversation"
	"github.com/vaultchat/vaultchat/internal/event"
	"github.com/vaultchat/vaultchat/internal/export"
	"github.com/vaultchat/vaultchat/internal/knowledge"
	"github.com/vaultchat/vaultchat/internal/logging"
	"github.com/vaultchat/vaultchat/internal/mode"
	"github.com/vaultchat/vaultchat/internal/permission"
	"github.com/vaultchat/vaultchat/internal/provider"
	"github.com/vaultchat/vaultchat/internal/server"
	"github.com/vaultchat/vaultchat/internal/storage"
	"github.com/vaultchat/vaultchat/internal/stream"
	"github.com/vaultchat/vaultchat/internal/token"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vaultchat server",
	Long: `Start the HTTP/WebSocket server. Assistant responses stream out as
server-sent events on /event and over /ws.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, services, err := buildServices(cmd.Context())
	if err != nil {
		return err
	}

	port := cfg.Port
	if servePort != 0 {
		port = servePort
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Port = port

	srv := server.New(serverConfig, services)

	// Keep the knowledge index fresh while the server runs.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if len(cfg.Vaults) > 0 {
		if _, err := services.Knowledge.Reindex(watchCtx); err != nil {
			logging.Warn().Err(err).Msg("initial knowledge index failed")
		}
		go func() {
			if err := services.Knowledge.Watch(watchCtx); err != nil {
				logging.Warn().Err(err).Msg("vault watcher stopped")
			}
		}()
	}

	go func() {
		logging.Info().Int("port", port).Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	return nil
}

// buildServices loads configuration and wires up the application services.
func buildServices(ctx context.Context) (*config.Config, *server.Services, error) {
	dir, err := getWorkDir()
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if prettyLogs {
		cfg.PrettyLogs = true
	}

	logging.Init(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Pretty: cfg.PrettyLogs,
	})

	if err := os.MkdirAll(cfg.StorageDir(), 0o755); err != nil {
		return nil, nil, err
	}

	store := storage.New(cfg.StorageDir())
	bus := event.NewBus()

	conversations := conversation.NewService(store, bus)
	permissions := permission.NewManager(store, bus)
	knowledgeSvc := knowledge.NewService(cfg.Vaults, bus)
	tokens := token.NewEstimator()
	exportSvc := export.NewService(cfg.Vaults, conversations)

	modes, err := mode.NewRegistry(cfg.ModesFile)
	if err != nil {
		return nil, nil, err
	}

	var prov provider.Provider
	anthropic, err := provider.NewAnthropicProvider(ctx, &provider.AnthropicConfig{Model: cfg.Model})
	if err != nil {
		logging.Warn().Err(err).Msg("anthropic provider unavailable, falling back to echo")
		prov = provider.NewEchoProvider()
	} else {
		prov = anthropic
	}

	controller := stream.NewController(streamConfig(cfg), stream.NewRegistry())

	return cfg, &server.Services{
		AppConfig:     cfg,
		Bus:           bus,
		Conversations: conversations,
		Knowledge:     knowledgeSvc,
		Permissions:   permissions,
		Tokens:        tokens,
		Modes:         modes,
		Export:        exportSvc,
		Provider:      prov,
		Controller:    controller,
	}, nil
}

// streamConfig maps the config file's streaming knobs onto the delivery
// engine's defaults.
func streamConfig(cfg *config.Config) stream.Config {
	sc := stream.DefaultConfig()
	if cfg.Streaming.MinChunkSize > 0 {
		sc.MinChunkSize = cfg.Streaming.MinChunkSize
	}
	if cfg.Streaming.MaxDelayMS > 0 {
		sc.MaxDelay = cfg.Streaming.MaxDelay()
	}
	if cfg.Streaming.RetryAttempts > 0 {
		sc.RetryAttempts = cfg.Streaming.RetryAttempts
	}
	if cfg.Streaming.RetryDelayMS > 0 {
		sc.RetryDelay = cfg.Streaming.RetryDelay()
	}
	if cfg.Streaming.TypingSpeedMS > 0 {
		sc.TypingSpeed = cfg.Streaming.TypingSpeed()
	}
	return sc
}
