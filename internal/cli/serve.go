package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/botrt/botrt/internal/config"
	"github.com/botrt/botrt/internal/kb"
	"github.com/botrt/botrt/internal/kv"
	"github.com/botrt/botrt/internal/llm"
	"github.com/botrt/botrt/internal/scheduler"
	"github.com/botrt/botrt/internal/script"
	"github.com/botrt/botrt/internal/session"
	"github.com/botrt/botrt/internal/storage"
	"github.com/botrt/botrt/internal/watcher"
)

var (
	serveTenants []string
	serveVerbose bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot runtime: watcher, scheduler, and compactor",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringSliceVarP(&serveTenants, "tenant", "t", nil, "Tenant (bot) to serve; repeatable")
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "Debug logging")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	printHeader("botrt runtime")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config warning: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}
	logger := newLogger(serveVerbose)

	if len(serveTenants) == 0 {
		return fmt.Errorf("at least one --tenant is required")
	}

	store, err := session.NewStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	kvStore := openKV(cfg, logger)
	defer kvStore.Close()

	botCfg := config.NewBotConfigService(store.DB(), kvStore)
	ctxCache := session.NewContextCache(kvStore, 0, logger)
	broker := session.NewInputBroker()

	base := llm.NewOpenAIProvider(cfg.Provider.APIKey, cfg.Provider.APIBase,
		cfg.Provider.Model, cfg.Provider.EmbeddingModel)
	provider := llm.NewCachedProvider(base, kvStore, botCfg, cfg.GenCache, logger)

	var indexer watcher.DocumentIndexer
	if cfg.Vector.URL != "" {
		ix, err := kb.NewIndexer(cfg.Vector, base, logger)
		if err != nil {
			logger.Warn("vector store unavailable, documents will not be indexed", "error", err)
		} else {
			indexer = ix
		}
	}

	compiler := script.NewCompiler(store, logger)
	registry := script.NewRegistry()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	if cfg.Watcher.Enabled {
		objStore, err := storage.NewMinioStore(cfg.Storage)
		if err != nil {
			return err
		}
		w := watcher.New(objStore, compiler, indexer, botCfg,
			cfg.Watcher, cfg.Paths.WorkDir, serveTenants, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(cfg.Scheduler, store, registry, ctxCache, broker,
			cfg.Paths.WorkDir, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Run(ctx)
		}()

		compactor := scheduler.NewCompactor(store, provider, botCfg, cfg.Scheduler, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			compactor.Run(ctx)
		}()
	}

	color.Green("Serving %d tenant(s). Ctrl+C to stop.\n", len(serveTenants))
	<-ctx.Done()
	logger.Info("shutting down")
	wg.Wait()
	return nil
}

// openKV connects to redis, falling back to the in-memory store when no
// address is configured.
func openKV(cfg *config.Config, logger *slog.Logger) kv.Store {
	if cfg.Cache.Addr == "" {
		logger.Warn("no cache address configured, using in-memory store")
		return kv.NewMemoryStore()
	}
	return kv.NewRedisStore(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
