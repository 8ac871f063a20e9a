package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/civicnav/civicnav/internal/api"
	"github.com/civicnav/civicnav/internal/config"
	"github.com/civicnav/civicnav/internal/engine"
	"github.com/civicnav/civicnav/internal/intent"
	"github.com/civicnav/civicnav/internal/pipeline"
	"github.com/civicnav/civicnav/internal/reranking"
	"github.com/civicnav/civicnav/internal/retrieval"
	"github.com/civicnav/civicnav/internal/search"
	"github.com/civicnav/civicnav/internal/storage"
	"github.com/civicnav/civicnav/internal/synthesis"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (and optionally the MCP stdio server)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio only",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server, backend and knowledge base status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools on stdin/stdout")
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// stack is the assembled answering pipeline and its collaborators.
type stack struct {
	store   *storage.Store
	service *api.Service
}

func (st *stack) Close() {
	if err := st.store.Close(); err != nil {
		slog.Warn("closing storage", "error", err)
	}
}

// buildStack connects to the inference backend, opens storage and wires the
// pipeline stages together.
func buildStack(ctx context.Context, cfg config.Config) (*stack, error) {
	eng, err := engine.Detect(engine.DetectConfig{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("detecting inference engine: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, cfg.LLM.ChatModel, cfg.LLM.EmbedModel, os.Stderr); err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	reranker := reranking.NewReranker(eng, cfg.LLM.ChatModel, cfg.Retrieval.RerankEnabled, cfg.Retrieval.RerankTimeout)
	searchSvc := search.NewLocal(store, reranker)

	classifier := intent.NewClassifier(eng, cfg.LLM.ChatModel, cfg.Intent.Timeout)
	retriever := retrieval.NewHybridRetriever(
		retrieval.NewEmbedder(eng, cfg.LLM.EmbedModel),
		searchSvc,
		retrieval.Options{TopK: cfg.Retrieval.TopK, FilterConfidence: cfg.Retrieval.FilterConfidence},
	)
	synthesizer := synthesis.NewSynthesizer(eng, cfg.LLM.ChatModel, synthesis.Options{
		ContextChars: cfg.Synthesis.ContextChars,
		SnippetChars: cfg.Synthesis.SnippetChars,
		Temperature:  cfg.Synthesis.Temperature,
		MaxTokens:    cfg.Synthesis.MaxTokens,
	}, synthesis.NewRankMarkerExtractor(cfg.Synthesis.SnippetChars))

	svc := api.NewService(api.Deps{
		Pipeline: pipeline.New(classifier, retriever, synthesizer),
		Search:   searchSvc,
		Feedback: store,
		LLM:      eng,
		Version:  version,
	})
	return &stack{store: store, service: svc}, nil
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "civicnav version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.Server.APIToken == "" {
		slog.Warn("no API token configured; /api routes are unauthenticated")
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(st.service, api.HandlerOptions{
			Token:     cfg.Server.APIToken,
			StaticDir: cfg.Server.StaticDir,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(st.service, version)
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("civicnav listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runMCP serves only the MCP tools. Stdout belongs to the protocol, so logs
// and model pull progress go to stderr.
func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	stdioSrv := server.NewStdioServer(api.NewMCPServer(st.service, version))
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func showStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	health, err := call[api.HealthResponse](checkCtx, client, http.MethodGet, "/health", nil)
	if err != nil {
		printStatus("Server", "unavailable (%v)", err)
	} else {
		printStatus("Server", "%s on port %d (version %s)", health.Status, cfg.Server.Port, health.Version)
		printStatus("LLM", "%s", health.Services["llm"])
		printStatus("Search", "%s", health.Services["search"])
	}

	printStatus("Provider", "%s at %s", cfg.LLM.Provider, cfg.LLM.BaseURL)
	printStatus("Chat model", "%s", cfg.LLM.ChatModel)
	printStatus("Embed model", "%s", cfg.LLM.EmbedModel)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		printStatus("Knowledge base", "unavailable (%v)", err)
	} else {
		defer store.Close()
		if counts, err := store.Counts(ctx); err == nil {
			printStatus("Entries", "%d (%d with vectors)", counts.Entries, counts.Vectors)
			printStatus("Feedback", "%d", counts.Feedback)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
