package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/hitoshi/listingwatch/internal/config"
	"github.com/hitoshi/listingwatch/internal/model"
	"github.com/hitoshi/listingwatch/internal/repository"
)

// runCreate は検索を作成して初回チェックを行い、IDと新着件数を出力する。
func runCreate(cfg *config.Config, out io.Writer, args []string) error {
	opts, err := parseCreateFlags(args)
	if err != nil {
		return err
	}
	// ブラウザを起動する前に検索条件を検証する
	if err := opts.Spec.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(cfg, slog.Default(), resolverPrompt)
	if err != nil {
		return err
	}
	defer c.Close()

	id, count, err := c.tracker.CreateSearch(ctx, opts.Spec, opts.Pages)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s\t%d new\n", id, count)
	return nil
}

// runCheck は指定した検索、または全アクティブ検索をチェックし、新着を出力する。
func runCheck(cfg *config.Config, out io.Writer, args []string) error {
	opts, err := parseCheckFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(cfg, slog.Default(), resolverPrompt)
	if err != nil {
		return err
	}
	defer c.Close()

	if opts.All {
		items, err := c.tracker.CheckAllActive(ctx)
		printItems(out, items)
		return err
	}

	result, err := c.tracker.Check(ctx, opts.SearchID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "outcome=%s fetched=%d new=%d duplicates=%d\n",
		result.Outcome, result.Fetched, len(result.NewItems), result.Duplicates)
	if result.Err != nil {
		fmt.Fprintf(out, "error: %v\n", result.Err)
	}
	printItems(out, result.NewItems)
	return nil
}

// runList は検索の一覧を集計付きで、または指定検索の掲載を出力する。
// ブラウザは起動しない。
func runList(cfg *config.Config, out io.Writer, args []string) error {
	opts, err := parseListFlags(args)
	if err != nil {
		return err
	}

	db, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if opts.Items != "" {
		if _, err := store.Searches().FindByID(ctx, opts.Items); err != nil {
			return err
		}
		items, err := store.Items().ListBySearch(ctx, opts.Items, false)
		if err != nil {
			return err
		}
		printItems(out, items)
		return nil
	}
	return listSearches(ctx, store, out, opts.All)
}

func listSearches(ctx context.Context, store repository.Store, out io.Writer, all bool) error {
	list := store.Searches().ListActive
	if all {
		list = store.Searches().ListAll
	}
	searches, err := list(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tACTIVE\tTOTAL\tUNSEEN\tLAST CHECKED")
	for _, s := range searches {
		stats, err := store.Searches().Stats(ctx, s.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%d\t%s\n",
			s.ID, s.Name, s.Active, stats.Total, stats.Unseen, formatChecked(stats.LastCheckedAt))
	}
	return tw.Flush()
}

func printItems(out io.Writer, items []*model.Item) {
	for _, it := range items {
		fmt.Fprintf(out, "%s | %s | %s | %s\n", it.Title, it.Price, it.PublishedText, it.URL)
	}
}

func formatChecked(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04")
}
