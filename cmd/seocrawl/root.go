package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seocrawl",
		Short: "Polite SEO crawler for websites",
		Long: `seocrawl crawls a website breadth-first and reports what search engines see:
status codes, titles, meta descriptions, headings, canonical links and broken pages.

It honors robots.txt, limits the request rate per host, retries transient
failures with backoff and caches responses (file, memory or redis).

Settings are read from .seocrawl.yaml (see "seocrawl init"); flags override them.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .seocrawl.yaml in current or home directory)")
	cmd.PersistentFlags().String("log-format", "text", "Log format: text or json")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewRobotsCmd())
	cmd.AddCommand(NewCacheCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
