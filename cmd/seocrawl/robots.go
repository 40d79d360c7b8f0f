package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/seocrawl/internal/robots"
)

// NewRobotsCmd creates the robots command.
func NewRobotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "robots <url>...",
		Short: "Show how robots.txt applies to URLs",
		Long: `Robots fetches the robots.txt of each URL's site and prints whether the URL
may be crawled, the Crawl-delay and the sitemaps it lists.

The same HTTP client settings, rate limit and cache as "seocrawl crawl" are used.

Examples:
  seocrawl robots https://example.com/private/page
  seocrawl robots -A chrome https://example.com/`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRobotsCmd,
	}

	cmd.Flags().StringP("user-agent", "A", "", "User-Agent string or preset to match rules for")
	cmd.Flags().Bool("no-cache", false, "Disable the response cache")

	return cmd
}

func runRobotsCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyCrawlFlags(cmd.Flags(), cfg); err != nil {
		return err
	}
	if err := cfg.ValidateSettings(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return err
	}

	cm, err := newCacheManager(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	if cm != nil {
		defer cm.Close()
	}

	client, err := newClient(cfg, cm, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}
	defer client.Close()

	gate := robots.NewGate(client, robots.WithLogger(logger))
	ua := resolveUserAgent(cfg.HTTP.UserAgent)

	for i, rawURL := range args {
		if i > 0 {
			fmt.Fprintln(cmd.OutOrStdout())
		}
		if err := printRobots(cmd.Context(), cmd.OutOrStdout(), gate, rawURL, ua); err != nil {
			return err
		}
	}
	return nil
}

func printRobots(ctx context.Context, w io.Writer, gate *robots.Gate, rawURL, ua string) error {
	domain, ok := robots.Domain(rawURL)
	if !ok {
		return fmt.Errorf("invalid URL: %s", rawURL)
	}

	rules := gate.RuleSet(ctx, rawURL)

	fmt.Fprintf(w, "URL:         %s\n", rawURL)
	fmt.Fprintf(w, "robots.txt:  %s/robots.txt", domain)
	switch {
	case rules.Available:
		fmt.Fprintln(w)
	case rules.StatusCode != 0:
		fmt.Fprintf(w, " (status %d, everything allowed)\n", rules.StatusCode)
	default:
		fmt.Fprintln(w, " (unreachable, everything allowed)")
	}

	verdict := "allowed"
	if !gate.IsAllowed(ctx, rawURL, ua) {
		verdict = "disallowed"
	}
	fmt.Fprintf(w, "Verdict:     %s\n", verdict)

	if d := gate.CrawlDelay(ctx, rawURL, ua); d > 0 {
		fmt.Fprintf(w, "Crawl-delay: %s\n", d)
	}
	if sitemaps := gate.Sitemaps(ctx, rawURL); len(sitemaps) > 0 {
		fmt.Fprintf(w, "Sitemaps:    %s\n", strings.Join(sitemaps, "\n             "))
	}
	return nil
}
