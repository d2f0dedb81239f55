package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/botrt/botrt/internal/config"
	"github.com/botrt/botrt/internal/kb"
	"github.com/botrt/botrt/internal/llm"
)

var (
	kbTenant   string
	kbCategory string
	kbLimit    int
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Query the knowledge base",
}

var kbSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed documents for a tenant",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runKBSearch,
}

var kbRemoveCmd = &cobra.Command{
	Use:   "remove <document>",
	Short: "Remove an indexed document's chunks for a tenant",
	Args:  cobra.ExactArgs(1),
	RunE:  runKBRemove,
}

func init() {
	kbSearchCmd.Flags().StringVarP(&kbTenant, "tenant", "t", "", "Tenant (bot) to search")
	kbSearchCmd.Flags().StringVarP(&kbCategory, "category", "c", "default", "Knowledge base category")
	kbSearchCmd.Flags().IntVarP(&kbLimit, "limit", "n", 5, "Max results")
	kbSearchCmd.MarkFlagRequired("tenant")
	kbRemoveCmd.Flags().StringVarP(&kbTenant, "tenant", "t", "", "Tenant (bot) to modify")
	kbRemoveCmd.Flags().StringVarP(&kbCategory, "category", "c", "default", "Knowledge base category")
	kbRemoveCmd.MarkFlagRequired("tenant")
	kbCmd.AddCommand(kbSearchCmd)
	kbCmd.AddCommand(kbRemoveCmd)
	rootCmd.AddCommand(kbCmd)
}

func runKBSearch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(false)

	base := llm.NewOpenAIProvider(cfg.Provider.APIKey, cfg.Provider.APIBase,
		cfg.Provider.Model, cfg.Provider.EmbeddingModel)
	indexer, err := kb.NewIndexer(cfg.Vector, base, logger)
	if err != nil {
		return err
	}
	defer indexer.Close()

	query := strings.Join(args, " ")
	results, err := indexer.Search(cmd.Context(), kbTenant, kbCategory, query, kbLimit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s\n   %s\n", i+1, r.Score, r.Document, r.Text)
	}
	return nil
}

func runKBRemove(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(false)

	base := llm.NewOpenAIProvider(cfg.Provider.APIKey, cfg.Provider.APIBase,
		cfg.Provider.Model, cfg.Provider.EmbeddingModel)
	indexer, err := kb.NewIndexer(cfg.Vector, base, logger)
	if err != nil {
		return err
	}
	defer indexer.Close()

	if err := indexer.DeleteDocument(cmd.Context(), kbTenant, kbCategory, args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed %s from %s\n", args[0], kb.CollectionName(kbTenant, kbCategory))
	return nil
}
