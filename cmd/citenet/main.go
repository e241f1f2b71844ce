// Package main provides citenet, a command-line client for resolving
// articles, exploring neighborhoods and assembling citation networks
// without running the API server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/helixir/citation-network-service/internal/app"
	"github.com/helixir/citation-network-service/internal/config"
	"github.com/helixir/citation-network-service/internal/domain"
	"github.com/helixir/citation-network-service/internal/network"
	"github.com/helixir/citation-network-service/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	envFile  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "citenet",
		Short:         "Explore PubMed citation networks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading configuration")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level for diagnostics on stderr")

	root.AddCommand(
		newResolveCmd(opts),
		newRelatedCmd(opts),
		newNetworkCmd(opts),
	)
	return root
}

// withApp loads configuration, wires the components and runs fn. Logs go to
// stderr so stdout carries only the JSON result.
func withApp(ctx context.Context, opts *rootOptions, database bool, fn func(*app.App) error) error {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", opts.envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg := observability.DefaultLoggingConfig()
	logCfg.Level = opts.logLevel
	logCfg.Format = "console"
	logCfg.Output = "stderr"
	logger := observability.NewLogger(logCfg)

	a, err := app.New(ctx, cfg, logger.With().Str("component", "citenet").Logger(), app.Options{Database: database})
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Close(context.Background())
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn().Err(err).Msg("shutdown error")
		}
	}()

	return fn(a)
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve ID...",
		Short: "Fetch article records by PubMed ID",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, false, func(a *app.App) error {
				records := a.Resolver.Resolve(cmd.Context(), args)
				if records == nil {
					records = []domain.ArticleRecord{}
				}
				return printJSON(cmd.OutOrStdout(), records)
			})
		},
	}
}

func newRelatedCmd(opts *rootOptions) *cobra.Command {
	var (
		relation string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "related ID",
		Short: "List papers citing or cited by an article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rel, err := domain.ParseRelationType(relation)
			if err != nil {
				return err
			}
			if limit < 0 {
				return domain.NewValidationError("limit", "must not be negative")
			}
			return withApp(cmd.Context(), opts, false, func(a *app.App) error {
				return printJSON(cmd.OutOrStdout(), a.Discovery.FindRelated(cmd.Context(), args[0], rel, limit))
			})
		},
	}
	cmd.Flags().StringVar(&relation, "relation", string(domain.RelationCitations), "citations or references")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum related papers (0 uses the configured default)")
	return cmd
}

func newNetworkCmd(opts *rootOptions) *cobra.Command {
	var (
		limit      int
		relations  []string
		collection string
		rank       bool
	)
	cmd := &cobra.Command{
		Use:   "network [ID...]",
		Short: "Assemble a citation network around source articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := network.BuildRequest{SourceIDs: args, Limit: limit, Rank: rank}
			for _, r := range relations {
				rel, err := domain.ParseRelationType(r)
				if err != nil {
					return err
				}
				req.Relations = append(req.Relations, rel)
			}
			if collection != "" {
				id, err := uuid.Parse(collection)
				if err != nil {
					return domain.NewValidationError("collection", "must be a valid UUID")
				}
				req.CollectionID = &id
			}
			if len(args) == 0 && req.CollectionID == nil {
				return domain.NewValidationError("source_ids", "pass at least one ID or --collection")
			}

			return withApp(cmd.Context(), opts, req.CollectionID != nil, func(a *app.App) error {
				graph, validation, err := a.Builder.Build(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"network":    graph,
					"validation": validation,
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "related papers per source and relation (0 uses the configured default)")
	cmd.Flags().StringSliceVar(&relations, "relation", nil, "relations to follow (default citations,references)")
	cmd.Flags().StringVar(&collection, "collection", "", "include the articles of a stored collection")
	cmd.Flags().BoolVar(&rank, "rank", false, "order nodes by relevance to the first source")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
