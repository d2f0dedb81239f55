package cli

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/botrt/botrt/internal/config"
	"github.com/botrt/botrt/internal/llm"
	"github.com/botrt/botrt/internal/session"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the generation cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry and hit counts",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop cached completions, optionally for one model",
	RunE:  runCacheClear,
}

var cacheClearModel string

func init() {
	cacheClearCmd.Flags().StringVarP(&cacheClearModel, "model", "m", "", "Only clear entries for this model")
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

// openCache builds a cache handle from config without the serve wiring.
func openCache() (*llm.CachedProvider, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(false)

	store, err := session.NewStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	kvStore := openKV(cfg, logger)
	botCfg := config.NewBotConfigService(store.DB(), kvStore)

	base := llm.NewOpenAIProvider(cfg.Provider.APIKey, cfg.Provider.APIBase,
		cfg.Provider.Model, cfg.Provider.EmbeddingModel)
	cache := llm.NewCachedProvider(base, kvStore, botCfg, cfg.GenCache, logger)

	cleanup := func() {
		kvStore.Close()
		store.Close()
	}
	return cache, cleanup, nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	printHeader("Generation cache")
	cache, cleanup, err := openCache()
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := cache.Stats(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Entries:    %d\n", stats.Entries)
	fmt.Printf("Total hits: %d\n", stats.TotalHits)
	fmt.Printf("Total size: %d bytes\n", stats.TotalSize)
	if len(stats.ByModel) > 0 {
		fmt.Println("By model:")
		models := make([]string, 0, len(stats.ByModel))
		for m := range stats.ByModel {
			models = append(models, m)
		}
		sort.Strings(models)
		for _, m := range models {
			fmt.Printf("  %-30s %d\n", m, stats.ByModel[m])
		}
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cache, cleanup, err := openCache()
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := cache.Clear(cmd.Context(), cacheClearModel)
	if err != nil {
		return err
	}
	if cacheClearModel != "" {
		color.Green("Cleared %d cached completion(s) for %s.\n", n, cacheClearModel)
		return nil
	}
	color.Green("Cleared %d cached completion(s).\n", n)
	return nil
}
