package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/studioflow/orchestrator/internal/agent"
	"github.com/studioflow/orchestrator/internal/api"
	"github.com/studioflow/orchestrator/internal/engine"
	"github.com/studioflow/orchestrator/internal/event"
	"github.com/studioflow/orchestrator/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:   "orchestrator",
		Short: "Human-in-the-loop design workflow orchestrator",
	}
	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			return serve(configFile)
		},
	}
	cmd.Flags().Int("port", 8080, "HTTP listen port")
	cmd.Flags().String("config", "", "optional config file")
	_ = viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	return cmd
}

func initConfig(configFile string) error {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("database.url", "")
	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("gemini.model", agent.DefaultGeminiModel)
	viper.SetDefault("workflow.max_revision_rounds", 0)

	viper.SetEnvPrefix("orchestrator")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func serve(configFile string) error {
	if err := initConfig(configFile); err != nil {
		return err
	}

	sugar, err := newLogger(viper.GetString("log.level"))
	if err != nil {
		return err
	}
	defer sugar.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Snapshot store: Postgres when configured, memory otherwise.
	var st store.Store
	if connStr := viper.GetString("database.url"); connStr != "" {
		st, err = store.NewPostgres(ctx, connStr, sugar)
		if err != nil {
			return fmt.Errorf("connect store: %w", err)
		}
	} else {
		sugar.Info("No database configured, using in-memory store")
		st = store.NewMemory()
	}
	defer st.Close()

	// 2. Event bus.
	bus := event.NewBus(sugar)

	// 3. Agent registry: Gemini when a key is present, mock otherwise.
	registry := agent.NewRegistry()
	registry.Register(agent.NewMockAgent())
	var reviewer agent.Reviewer = agent.NewMockReviewer()
	if apiKey := viper.GetString("gemini.api_key"); apiKey != "" {
		gemini, err := agent.NewGeminiAgent(ctx, apiKey, viper.GetString("gemini.model"), sugar)
		if err != nil {
			return fmt.Errorf("create gemini agent: %w", err)
		}
		registry.Register(gemini)
		for _, role := range []string{"manager", "senior", "visual", "junior"} {
			registry.MapRole(role, "gemini")
		}
		reviewer = agent.NewAgentReviewer(gemini)
	} else {
		sugar.Warn("No Gemini API key configured, running with the mock agent")
	}

	// 4. Workflow graph and session manager.
	graph, err := engine.DefaultGraph()
	if err != nil {
		return fmt.Errorf("load workflow: %w", err)
	}
	manager, err := engine.NewManager(engine.Config{
		Graph:             graph,
		Handlers:          engine.DefaultHandlers(),
		Agents:            registry,
		Reviewer:          reviewer,
		Store:             st,
		Bus:               bus,
		Logger:            sugar,
		MaxRevisionRounds: viper.GetInt("workflow.max_revision_rounds"),
	})
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}
	manager.Start(ctx)

	// 5. HTTP server.
	addr := fmt.Sprintf(":%d", viper.GetInt("server.port"))
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewServer(manager, sugar).Handler(),
	}

	go func() {
		sugar.Infof("Orchestrator HTTP server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("Failed to serve: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	sugar.Info("Server stopped")
	return nil
}
