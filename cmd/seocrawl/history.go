package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nao1215/seocrawl/internal/config"
	"github.com/nao1215/seocrawl/internal/crawler"
	"github.com/nao1215/seocrawl/internal/database"
	"github.com/nao1215/seocrawl/internal/report"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [url]",
		Short: "List stored crawls and compare them",
		Long: `History works on the crawls stored with "seocrawl crawl --save".

Without flags it reports the newest crawl of the URL together with the changes
since the crawl before it: new and removed pages, status code changes and
pages whose content changed.

Examples:
  # List every stored crawl
  seocrawl history --list

  # List the crawls of one site
  seocrawl history --list https://example.com/

  # Compare the two newest crawls of a site
  seocrawl history https://example.com/

  # Compare the newest crawl with a specific older one, as JSON
  seocrawl history --with 5f0c... --json https://example.com/`,
		Args: cobra.MaximumNArgs(1),
	}

	opts := &historyOptions{}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runHistoryCmd(cmd, args, opts)
	}

	f := cmd.Flags()
	f.BoolVarP(&opts.list, "list", "l", false, "List stored crawls")
	f.IntVarP(&opts.limit, "limit", "n", 20, "Maximum number of crawls to list (0 = all)")
	f.StringVar(&opts.with, "with", "", "Compare with this session id instead of the previous crawl")
	f.StringVar(&opts.del, "delete", "", "Delete the session with this id")
	f.BoolVarP(&opts.json, "json", "j", false, "Output the comparison as JSON")
	f.BoolVarP(&opts.markdown, "markdown", "m", false, "Output the comparison as Markdown")
	f.StringVar(&opts.dataDir, "data-dir", "", "Session database directory (default: XDG data directory)")

	return cmd
}

// historyOptions holds the history command flags.
type historyOptions struct {
	list     bool
	limit    int
	with     string
	del      string
	json     bool
	markdown bool
	dataDir  string
}

func runHistoryCmd(cmd *cobra.Command, args []string, opts *historyOptions) error {
	if opts.json && opts.markdown {
		return config.ErrConflictingReportFormats
	}

	// Validate arguments before opening the database.
	var startURL string
	if len(args) == 1 {
		u, err := crawler.NormalizeURL(args[0])
		if err != nil {
			return fmt.Errorf("%w: %s", crawler.ErrInvalidStartURL, args[0])
		}
		startURL = u
	}
	if !opts.list && opts.del == "" && startURL == "" {
		return errors.New("a URL is required (use --list to see stored crawls)")
	}

	dataDir := opts.dataDir
	if dataDir == "" {
		dataDir = config.XDGDataDir()
	}
	db, err := database.Open(dataDir, database.Options{CreateIfNotExists: false})
	if err != nil {
		if errors.Is(err, database.ErrDatabaseNotFound) {
			return errNoDatabase
		}
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case opts.del != "":
		if err := db.DeleteSession(ctx, opts.del); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted session %s\n", opts.del)
		return nil
	case opts.list:
		return listSessions(ctx, out, db, startURL, opts.limit)
	}

	var w report.Writer // nil prints the diff as JSON
	switch {
	case opts.markdown:
		w = report.NewMarkdownWriter(out)
	case !opts.json:
		w = report.NewTextWriter(out)
	}
	return compareHistory(ctx, out, db, startURL, opts.with, w)
}

func listSessions(ctx context.Context, out io.Writer, db *database.SessionDB, startURL string, limit int) error {
	sessions, err := db.ListSessions(ctx, startURL, limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No stored crawls.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATE\tPAGES\tERRORS\tSTART URL")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			s.ID,
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			s.State,
			s.Stats.PagesCrawled,
			s.Stats.Errors,
			s.StartURL,
		)
	}
	return tw.Flush()
}

// compareHistory reports the newest crawl of startURL against withID, or
// against the crawl before it. A nil writer prints the diff as JSON.
func compareHistory(ctx context.Context, out io.Writer, db *database.SessionDB, startURL, withID string, w report.Writer) error {
	sessions, err := db.ListSessions(ctx, startURL, 2)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return fmt.Errorf("%w for %s", database.ErrSessionNotFound, startURL)
	}
	newest := sessions[0]

	oldID := withID
	if oldID == "" {
		if len(sessions) < 2 {
			return fmt.Errorf("only one stored crawl of %s; nothing to compare", startURL)
		}
		oldID = sessions[1].ID
	}

	diff, err := db.CompareSessions(ctx, oldID, newest.ID)
	if err != nil {
		return err
	}

	if w == nil {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(diff)
	}

	results, err := db.GetResults(ctx, newest.ID)
	if err != nil {
		return err
	}
	_, err = w.Write(&report.Report{
		Stats:     newest.Stats,
		Results:   results,
		SessionID: newest.ID,
		Diff:      diff,
	})
	return err
}
