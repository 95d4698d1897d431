package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vbonduro/lostfound/internal/config"
	"github.com/vbonduro/lostfound/internal/db"
	"github.com/vbonduro/lostfound/internal/domain"
	"github.com/vbonduro/lostfound/internal/embedding"
	"github.com/vbonduro/lostfound/internal/embedding/clip"
	"github.com/vbonduro/lostfound/internal/embedding/openai"
	"github.com/vbonduro/lostfound/internal/lifecycle"
	"github.com/vbonduro/lostfound/internal/logging"
	"github.com/vbonduro/lostfound/internal/metrics"
	"github.com/vbonduro/lostfound/internal/photostore/local"
	"github.com/vbonduro/lostfound/internal/query"
	"github.com/vbonduro/lostfound/internal/search"
	"github.com/vbonduro/lostfound/internal/service"
	"github.com/vbonduro/lostfound/internal/store"
	"github.com/vbonduro/lostfound/internal/store/postgres"
	"github.com/vbonduro/lostfound/internal/web"
)

// itemStore is satisfied by both the sqlite and the postgres item stores.
type itemStore interface {
	search.ItemFinder
	lifecycle.ItemTransitioner
	Create(ctx context.Context, item *domain.Item) (*domain.Item, error)
	Update(ctx context.Context, id int64, u domain.ItemUpdate) (*domain.Item, error)
	List(ctx context.Context, spec query.Spec, opts query.ListOptions) ([]*domain.Item, error)
	Count(ctx context.Context, spec query.Spec) (int, error)
}

var (
	cfg     *config.Config
	logger  *slog.Logger
	cleanup = func() {}

	retentionFlag string
)

var rootCmd = &cobra.Command{
	Use:   "lostfound",
	Short: "Campus lost-and-found catalog with text and image search",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env file is fine; the environment may be set directly.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger, cleanup, err = logging.New(cfg.LogLevel, cfg.LogFile)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		cleanup()
	},
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic expiry sweep (default)",
	RunE:  runServe,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Archive expired active items once and exit",
	RunE:  runSweep,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE:  runMigrate,
}

func init() {
	sweepCmd.Flags().StringVar(&retentionFlag, "retention", "", `age after which active items are archived, e.g. "14d" (default RETENTION_WINDOW)`)
	rootCmd.AddCommand(serveCmd, sweepCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, items, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open database", "driver", cfg.DBDriver, "error", err)
		return err
	}
	defer closeDB(database)

	embedder, err := newEmbedder(cfg)
	if err != nil {
		logger.Error("failed to initialize embedder", "error", err)
		return err
	}

	photoStg, err := local.NewLocalPhotoStore(cfg.PhotoPath, cfg.PublicBaseURL)
	if err != nil {
		logger.Error("failed to initialize photo store", "error", err)
		return err
	}

	m := metrics.New(nil)
	lc := lifecycle.NewManager(items, cfg.RetentionWindow,
		lifecycle.WithMetrics(m), lifecycle.WithLogger(logging.Component(logger, "lifecycle")))
	itemService := service.NewItemService(items, lc, embedder, photoStg, m, logging.Component(logger, "items"))
	engine := search.NewEngine(items, embedder, m, logging.Component(logger, "search"))
	server := web.NewServer(itemService, engine, lc, m, logging.Component(logger, "http"), web.WithHealthCheck(database.PingContext))

	go lc.Run(ctx, cfg.SweepInterval)

	if err := server.ListenAndServe(ctx, cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		return err
	}
	return nil
}

func runSweep(cmd *cobra.Command, _ []string) error {
	var retention time.Duration
	if retentionFlag != "" {
		d, err := config.ParseDuration(retentionFlag)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid --retention %q", retentionFlag)
		}
		retention = d
	}

	database, items, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open database", "driver", cfg.DBDriver, "error", err)
		return err
	}
	defer closeDB(database)

	lc := lifecycle.NewManager(items, cfg.RetentionWindow, lifecycle.WithLogger(logging.Component(logger, "lifecycle")))
	refs, err := lc.SweepExpired(cmd.Context(), retention)
	if err != nil {
		logger.Error("sweep failed", "error", err)
		return err
	}
	logger.Info("sweep complete", "archived", len(refs))
	return nil
}

func runMigrate(_ *cobra.Command, _ []string) error {
	database, _, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to migrate database", "driver", cfg.DBDriver, "error", err)
		return err
	}
	defer closeDB(database)

	version, dirty, err := db.Version(database)
	if err != nil {
		return err
	}
	logger.Info("database schema up to date", "driver", cfg.DBDriver, "version", version, "dirty", dirty)
	return nil
}

// openStore opens the configured database, applying migrations.
func openStore(cfg *config.Config) (*sql.DB, itemStore, error) {
	switch cfg.DBDriver {
	case "postgres":
		database, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return database, postgres.NewItemStore(database), nil
	default:
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return database, store.NewItemStore(database), nil
	}
}

// newEmbedder builds the embedding provider chain. Images always go to the
// CLIP service; text goes there too unless an OpenAI-compatible backend is
// configured.
func newEmbedder(cfg *config.Config) (embedding.Provider, error) {
	clipEmbedder := clip.NewClipEmbedder(cfg.AIServiceURL, cfg.EmbeddingTimeout)

	var provider embedding.Provider = clipEmbedder
	if cfg.EmbeddingTextBackend == "openai" {
		logger.Info("using OpenAI text embeddings", "model", cfg.OpenAIEmbeddingModel)
		provider = embedding.Split{
			Text:  openai.NewTextEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIEmbeddingModel, cfg.EmbeddingTimeout),
			Image: clipEmbedder,
		}
	} else {
		logger.Info("using CLIP embeddings", "host", cfg.AIServiceURL)
	}
	return embedding.NewCached(provider, cfg.EmbeddingCacheSize)
}

func closeDB(database *sql.DB) {
	if err := database.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
}
