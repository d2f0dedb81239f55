package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/botrt/botrt/internal/config"
	"github.com/botrt/botrt/internal/session"
)

var (
	sessionsTenant string
	sessionsLimit  int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored conversations",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions for a tenant",
	RunE:  runSessionsList,
}

var sessionsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show stored conversation volume",
	RunE:  runSessionsStats,
}

func init() {
	sessionsListCmd.Flags().StringVarP(&sessionsTenant, "tenant", "t", "", "Tenant (bot) to list")
	sessionsListCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Max sessions to show")
	sessionsListCmd.MarkFlagRequired("tenant")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsStatsCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openStore() (*session.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return session.NewStore(cfg.Database.Path)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.RecentSessions(cmd.Context(), sessionsTenant, sessionsLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return nil
	}
	for _, s := range sessions {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %-24s  %3d msgs  %s\n",
			s.ID, title, s.MessageSeq, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runSessionsStats(cmd *cobra.Command, args []string) error {
	printHeader("Session store")
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Sessions: %d\n", stats.TotalSessions)
	fmt.Printf("Messages: %d\n", stats.TotalMessages)
	fmt.Printf("Users:    %d\n", stats.TotalUsers)
	return nil
}
