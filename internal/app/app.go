// Package app wires the citation network components from configuration.
// The API server and the CLI share it so both see the same cached resolver,
// discovery cascade and builder.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/helixir/citation-network-service/internal/cache"
	"github.com/helixir/citation-network-service/internal/config"
	"github.com/helixir/citation-network-service/internal/database"
	"github.com/helixir/citation-network-service/internal/discovery"
	"github.com/helixir/citation-network-service/internal/domain"
	"github.com/helixir/citation-network-service/internal/embedding"
	"github.com/helixir/citation-network-service/internal/network"
	"github.com/helixir/citation-network-service/internal/observability"
	"github.com/helixir/citation-network-service/internal/papersources"
	"github.com/helixir/citation-network-service/internal/papersources/openalex"
	"github.com/helixir/citation-network-service/internal/papersources/pubmed"
	"github.com/helixir/citation-network-service/internal/ranking"
	"github.com/helixir/citation-network-service/internal/repository"
	"github.com/helixir/citation-network-service/internal/resolver"
)

// Cache names, used as metric labels and snapshot keys.
const (
	RecordCacheName  = "records"
	RelatedCacheName = "related"
)

// Options selects optional parts of the wiring.
type Options struct {
	// Database connects the collection store when cfg.Database.Enabled.
	Database bool
	// Registerer receives the metrics; nil uses a private registry.
	Registerer prometheus.Registerer
}

// App holds the wired components.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *observability.Metrics

	Provider     papersources.Provider
	RecordCache  *cache.Cache[domain.ArticleRecord]
	RelatedCache *cache.Cache[discovery.Result]
	Resolver     *cache.CachedResolver
	Discovery    *cache.CachedDiscovery
	Ranker       *ranking.Engine
	Builder      *network.Builder

	// DB and Collections are nil when the collection store is disabled.
	DB          *database.DB
	Collections repository.CollectionRepository

	snapshots *cache.SQLiteSnapshotStore
}

// New builds every component. Nothing is started; call Start for the cache
// background loops.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*App, error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(cfg.Metrics.Namespace, reg),
	}

	provider, err := providers(cfg, a.Metrics).Get(cfg.Provider)
	if err != nil {
		return nil, err
	}
	a.Provider = provider

	var store cache.SnapshotStore
	if cfg.Cache.SnapshotPath != "" {
		s, err := cache.OpenSQLiteSnapshotStore(cfg.Cache.SnapshotPath)
		if err != nil {
			// Caches still work without persistence.
			logger.Warn().
				Err(err).
				Str("path", cfg.Cache.SnapshotPath).
				Msg("cache snapshot store unavailable, caching in memory only")
		} else {
			a.snapshots = s
			store = s
		}
	}
	a.RecordCache = cache.New[domain.ArticleRecord](cacheConfig(cfg.Cache, RecordCacheName), store, logger, a.Metrics)
	a.RelatedCache = cache.New[discovery.Result](cacheConfig(cfg.Cache, RelatedCacheName), store, logger, a.Metrics)

	base := resolver.New(a.Provider, resolver.Config{
		BatchSize:            cfg.Resolver.BatchSize,
		MaxConcurrentBatches: cfg.Resolver.MaxConcurrentBatches,
		BatchTimeout:         cfg.Resolver.BatchTimeout,
	}, logger, a.Metrics)
	a.Resolver = cache.NewCachedResolver(base, a.RecordCache)

	extractor := discovery.DefaultLexicon()
	if cfg.Discovery.LexiconPath != "" {
		lex, err := discovery.LoadLexicon(cfg.Discovery.LexiconPath)
		if err != nil {
			a.closeStore()
			return nil, fmt.Errorf("load lexicon: %w", err)
		}
		extractor = lex
	}
	strategies := discovery.DefaultStrategies(a.Provider, a.Resolver, extractor, cfg.Discovery.PlaceholderCount, logger)
	engine := discovery.NewEngine(a.Resolver, strategies, discovery.Config{
		OverFetchFactor:  cfg.Discovery.OverFetchFactor,
		StepTimeout:      cfg.Discovery.StepTimeout,
		DefaultLimit:     cfg.Discovery.DefaultLimit,
		MaxLimit:         cfg.Discovery.MaxLimit,
		BatchConcurrency: cfg.Discovery.BatchConcurrency,
	}, logger, a.Metrics)
	a.Discovery = cache.NewCachedDiscovery(engine, a.RelatedCache, cfg.Discovery.BatchConcurrency)

	rankOpts := []ranking.Option{}
	if cfg.Embedding.Enabled {
		embedder, err := embedding.NewProvider(embedding.FactoryConfig{
			Provider:   cfg.Embedding.Provider,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
			OpenAI: embedding.OpenAIConfig{
				APIKey:  cfg.Embedding.OpenAI.APIKey,
				BaseURL: cfg.Embedding.OpenAI.BaseURL,
			},
		})
		if err != nil {
			a.closeStore()
			return nil, fmt.Errorf("create embedding provider: %w", err)
		}
		rankOpts = append(rankOpts, ranking.WithEnricher(ranking.NewEnricher(embedder, logger, a.Metrics)))
		logger.Info().Str("provider", embedder.Name()).Str("model", embedder.Model()).Msg("embedding enrichment enabled")
	}
	a.Ranker = ranking.NewEngine(ranking.Config{
		ContentWeight:       cfg.Ranking.ContentWeight,
		CollaborativeWeight: cfg.Ranking.CollaborativeWeight,
		TemporalWeight:      cfg.Ranking.TemporalWeight,
		CitationCap:         cfg.Ranking.CitationCap,
		VenueCap:            cfg.Ranking.VenueCap,
		HIndexCap:           cfg.Ranking.HIndexCap,
		HalfLifeYears:       cfg.Ranking.HalfLifeYears,
	}, logger, a.Metrics, rankOpts...)

	var collections network.CollectionReader
	if opts.Database && cfg.Database.Enabled {
		db, err := database.New(ctx, &cfg.Database, logger)
		if err != nil {
			a.closeStore()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.DB = db
		repo := repository.NewPgCollectionRepository(db)
		a.Collections = repo
		collections = repo
	}

	a.Builder = network.NewBuilder(collections, a.Discovery, a.Resolver, a.Ranker, network.Config{
		DefaultLimit: cfg.Network.DefaultLimit,
		MaxSources:   cfg.Network.MaxSources,
		Concurrency:  cfg.Network.Concurrency,
		DropDangling: cfg.Network.DropDangling,
	}, logger, a.Metrics)

	return a, nil
}

// Migrate applies pending migrations when a database is connected.
func (a *App) Migrate() error {
	if a.DB == nil {
		return nil
	}
	migrator, err := database.NewMigrator(a.DB, a.Config.Database.MigrationPath, a.Logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			a.Logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()
	return migrator.Up()
}

// Start restores cache snapshots and starts the cache background loops.
func (a *App) Start(ctx context.Context) error {
	if err := a.RecordCache.Start(ctx); err != nil {
		return fmt.Errorf("start record cache: %w", err)
	}
	if err := a.RelatedCache.Start(ctx); err != nil {
		return fmt.Errorf("start related cache: %w", err)
	}
	return nil
}

// Close stops the caches, writing their final snapshots, then releases the
// snapshot store and the database pool.
func (a *App) Close(ctx context.Context) error {
	errs := []error{
		a.RecordCache.Shutdown(ctx),
		a.RelatedCache.Shutdown(ctx),
		a.closeStore(),
	}
	a.DB.Close()
	return errors.Join(errs...)
}

func (a *App) closeStore() error {
	if a.snapshots == nil {
		return nil
	}
	err := a.snapshots.Close()
	a.snapshots = nil
	return err
}

// providers registers every supported backend. Clients are cheap to build
// and make no requests until used.
func providers(cfg *config.Config, observer papersources.RequestObserver) *papersources.Registry {
	r := papersources.NewRegistry()
	r.Register(config.ProviderPubMed, pubmed.New(pubmed.Config{
		BaseURL:    cfg.PubMed.BaseURL,
		APIKey:     cfg.PubMed.APIKey,
		Tool:       cfg.PubMed.Tool,
		Email:      cfg.PubMed.Email,
		Timeout:    cfg.PubMed.Timeout,
		RateLimit:  cfg.PubMed.RateLimit,
		MaxRetries: cfg.PubMed.MaxRetries,
	}, pubmed.WithObserver(observer)))
	r.Register(config.ProviderOpenAlex, openalex.New(openalex.Config{
		BaseURL:    cfg.OpenAlex.BaseURL,
		Email:      cfg.OpenAlex.Email,
		Timeout:    cfg.OpenAlex.Timeout,
		RateLimit:  cfg.OpenAlex.RateLimit,
		MaxRetries: cfg.OpenAlex.MaxRetries,
	}, openalex.WithObserver(observer)))
	return r
}

func cacheConfig(c config.CacheConfig, name string) cache.Config {
	return cache.Config{
		Name:             name,
		DefaultTTL:       c.DefaultTTL,
		MaxEntries:       c.MaxEntries,
		MaxBytes:         c.MaxBytes,
		SweepInterval:    c.SweepInterval,
		SnapshotInterval: c.SnapshotInterval,
		SnapshotSize:     c.SnapshotSize,
	}
}
