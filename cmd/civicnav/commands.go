package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/civicnav/civicnav/internal/api"
	"github.com/civicnav/civicnav/internal/config"
	"github.com/civicnav/civicnav/internal/domain"
	"github.com/civicnav/civicnav/internal/engine"
	"github.com/civicnav/civicnav/internal/ingest"
	"github.com/civicnav/civicnav/internal/retrieval"
	"github.com/civicnav/civicnav/internal/storage"
)

// --- query ---

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question about city services",
	Long: `Ask a natural language question. The running server classifies it,
searches the knowledge base and answers with citations.

Examples:
  civicnav query "When is trash pickup on Oak Street?"
  civicnav query --verbose "How do I apply for a building permit?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		asJSON, _ := cmd.Flags().GetBool("json")
		session, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		answer, err := askQuestion(cmd.Context(), client, api.QueryRequest{
			Query:     strings.Join(args, " "),
			SessionID: session,
		})
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(answer)
		}
		renderAnswer(os.Stdout, answer, verbose)
		return nil
	},
}

func init() {
	queryCmd.Flags().Bool("verbose", false, "show the reasoning of each pipeline stage")
	queryCmd.Flags().Bool("json", false, "print the raw JSON response")
	queryCmd.Flags().String("session", "", "session ID (UUID) to associate with the query")
}

func askQuestion(ctx context.Context, client *apiClient, req api.QueryRequest) (answerView, error) {
	return call[answerView](ctx, client, http.MethodPost, "/api/query", req)
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <terms>",
	Short: "Search the knowledge base without generating an answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topK, _ := cmd.Flags().GetInt("top-k")
		category, _ := cmd.Flags().GetString("category")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		result, err := call[api.SearchResponse](cmd.Context(), client, http.MethodPost, "/api/search", api.SearchRequest{
			Query:    strings.Join(args, " "),
			TopK:     &topK,
			Category: category,
		})
		if err != nil {
			return err
		}
		renderResults(os.Stdout, result.Results)
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("top-k", 5, "maximum number of results (1-20)")
	searchCmd.Flags().String("category", "", "restrict to one category ("+strings.Join(domain.CategoryNames(), ", ")+")")
}

// --- categories ---

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List service categories with entry counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		result, err := call[api.CategoriesResponse](cmd.Context(), client, http.MethodGet, "/api/categories", nil)
		if err != nil {
			return err
		}
		if len(result.Categories) == 0 {
			fmt.Println("The knowledge base is empty. Add entries with: civicnav index <files>")
			return nil
		}
		for _, c := range result.Categories {
			fmt.Printf("  %-10s %d\n", colorize(colorBold, c.Name), c.Count)
		}
		return nil
	},
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback <answer-id> <rating>",
	Short: "Rate an answer from 1 (poor) to 5 (excellent)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rating int
		if _, err := fmt.Sscanf(args[1], "%d", &rating); err != nil {
			return fmt.Errorf("rating must be a number from 1 to 5")
		}
		comment, _ := cmd.Flags().GetString("comment")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		result, err := call[api.FeedbackResponse](cmd.Context(), client, http.MethodPost, "/api/feedback", api.FeedbackRequest{
			AnswerID: args[0],
			Rating:   rating,
			Comment:  comment,
		})
		if err != nil {
			return err
		}
		printSuccess("Feedback %s %s", result.ID, result.Status)
		return nil
	},
}

func init() {
	feedbackCmd.Flags().String("comment", "", "optional comment (at most 500 characters)")
}

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index <file>...",
	Short: "Load knowledge entries from JSON, PDF, HTML or text files",
	Long: `Load knowledge entries into the local knowledge base and embed them.

JSON files hold an array of entries with id, title, content, category,
service_type, department and updated_date. Other documents become one or more
entries and need --category.

Examples:
  civicnav index data/entries.json
  civicnav index --category permit --department "Planning" guides/permits.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		meta, err := indexMetadata(cmd)
		if err != nil {
			return err
		}
		noEmbed, _ := cmd.Flags().GetBool("no-embed")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)
		ctx := cmd.Context()

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		var embedder ingest.BatchEmbedder
		if noEmbed {
			printWarning("Skipping embeddings; entries will only match keyword search")
		} else {
			eng, err := engine.Detect(engine.DetectConfig{
				Provider: cfg.LLM.Provider,
				BaseURL:  cfg.LLM.BaseURL,
				APIKey:   cfg.LLM.APIKey,
			})
			if err != nil {
				return fmt.Errorf("detecting inference engine: %w", err)
			}
			if err := engine.EnsureReady(ctx, eng, "", cfg.LLM.EmbedModel, os.Stderr); err != nil {
				return err
			}
			embedder = retrieval.NewEmbedder(eng, cfg.LLM.EmbedModel)
		}

		report, err := indexFiles(ctx, ingest.NewIndexer(store, embedder), args, meta, time.Now())
		if err != nil {
			return err
		}
		for _, s := range report.Skipped {
			printWarning("Skipped %s (%s): %s", s.ID, s.Title, s.Reason)
		}
		printSuccess("Indexed %d entries in %s", report.Indexed, report.Duration.Round(time.Millisecond))
		return nil
	},
}

func init() {
	indexCmd.Flags().String("category", "", "category for non-JSON documents ("+strings.Join(domain.CategoryNames(), ", ")+")")
	indexCmd.Flags().String("department", "", "department for non-JSON documents")
	indexCmd.Flags().String("service-type", "", "service type for non-JSON documents")
	indexCmd.Flags().String("updated", "", "last update date (YYYY-MM-DD) for non-JSON documents; defaults to today")
	indexCmd.Flags().Bool("no-embed", false, "store entries without vectors")
}

func indexMetadata(cmd *cobra.Command) (ingest.Metadata, error) {
	var meta ingest.Metadata
	if raw, _ := cmd.Flags().GetString("category"); raw != "" {
		c, err := domain.ParseCategory(raw)
		if err != nil {
			return meta, err
		}
		meta.Category = c
	}
	meta.Department, _ = cmd.Flags().GetString("department")
	meta.ServiceType, _ = cmd.Flags().GetString("service-type")
	if raw, _ := cmd.Flags().GetString("updated"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return meta, fmt.Errorf("--updated must be YYYY-MM-DD: %w", err)
		}
		meta.UpdatedDate = t
	}
	return meta, nil
}

// indexFiles loads every path and indexes the combined entries in one run.
// A file that fails to load aborts the run before anything is stored.
func indexFiles(ctx context.Context, ix *ingest.Indexer, paths []string, meta ingest.Metadata, now time.Time) (ingest.Report, error) {
	var entries []domain.KnowledgeEntry
	for _, p := range paths {
		printStep("Loading %s", p)
		loaded, err := ingest.LoadFile(p, meta, now)
		if err != nil {
			return ingest.Report{}, fmt.Errorf("loading %s: %w", p, err)
		}
		entries = append(entries, loaded...)
	}
	return ix.Index(ctx, entries)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "$"+k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> <value>",
	Short: "Store llm.api_key or server.api_token in the secrets file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetSecret(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Stored secret %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
