package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/botrt/botrt/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"  _           _       _\n" +
		" | |__   ___ | |_ _ __| |_\n" +
		" | '_ \\ / _ \\| __| '__| __|\n" +
		" | |_) | (_) | |_| |  | |_\n" +
		" |_.__/ \\___/ \\__|_|   \\__|\n"
)

var rootCmd = &cobra.Command{
	Use:   "botrt",
	Short: "botrt - bot execution runtime",
	Long:  color.CyanString(logo) + "\nA multi-tenant bot execution runtime: dialog scripts, sessions, scheduling, and cached generation.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("botrt %s\n", version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func printHeader(title string) {
	color.Cyan("%s\n", title)
}
