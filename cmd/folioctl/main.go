package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/folio/folio-backend/internal/app"
	"github.com/folio/folio-backend/internal/cache"
	"github.com/folio/folio-backend/internal/config"
	"github.com/folio/folio-backend/internal/db"
	"github.com/folio/folio-backend/internal/log"
)

func main() {
	root := &cobra.Command{
		Use:           "folioctl",
		Short:         "Administrative commands for the Folio publication engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(sweepCommand(), seedCommand(), revisionsCommand())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withApp builds the engine from the environment, runs fn and tears it down.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App, logger *zap.SugaredLogger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	return fn(ctx, a, logger)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Publish every scheduled post that is due and send its notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, logger *zap.SugaredLogger) error {
				res, _ := a.Scheduler.Tick(ctx)
				notified := a.Dispatcher.Drain(ctx)
				fmt.Printf("due=%d promoted=%d skipped=%d failed=%d notified=%d\n",
					res.Due, res.Promoted, res.Skipped, res.Failed, notified)
				return nil
			})
		},
	}
}

func seedCommand() *cobra.Command {
	var author string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the sample posts, skipping slugs that already exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, logger *zap.SugaredLogger) error {
				n, err := db.SeedPosts(ctx, a.DB, author, time.Now().UTC())
				if err != nil {
					return err
				}
				if err := a.Cache.InvalidateByTag(ctx, cache.TagPosts); err != nil {
					logger.Warnw("Cache invalidation failed after seeding", "error", err)
				}
				fmt.Printf("seeded %d posts\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&author, "author", "seed-author", "author id for the seeded posts")
	return cmd
}

func revisionsCommand() *cobra.Command {
	revisions := &cobra.Command{
		Use:   "revisions",
		Short: "Inspect and restore post revisions",
	}

	list := &cobra.Command{
		Use:   "list [post id]",
		Short: "List a post's revisions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, logger *zap.SugaredLogger) error {
				revs, err := a.Posts.Revisions(ctx, args[0])
				if err != nil {
					return err
				}
				for _, r := range revs {
					fmt.Printf("#%d\t%s\t%s\t%s\t%s\n", r.RevisionNumber, r.ID,
						r.CreatedAt.Format(time.RFC3339), r.CreatedBy, r.Note)
				}
				return nil
			})
		},
	}

	diff := &cobra.Command{
		Use:   "diff [from revision id] [to revision id]",
		Short: "Print the line diff between two revisions of a post",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, logger *zap.SugaredLogger) error {
				d, err := a.Posts.Diff(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}

	var actor string
	restore := &cobra.Command{
		Use:   "restore [post id] [revision id]",
		Short: "Roll a post back to a revision, snapshotting the current text first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, logger *zap.SugaredLogger) error {
				post, err := a.Posts.Restore(ctx, args[0], args[1], actor)
				if err != nil {
					return err
				}
				fmt.Printf("restored %s (%s)\n", post.ID, post.Slug)
				return nil
			})
		},
	}
	restore.Flags().StringVar(&actor, "actor", "folioctl", "user recorded on the pre-restore revision")

	revisions.AddCommand(list, diff, restore)
	return revisions
}
