package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"storyfeed/internal/app"
	"storyfeed/internal/config"
	"storyfeed/internal/feed"
	"storyfeed/internal/model"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readConfig loads the config file at the default (or env-overridden) path.
func readConfig() (*config.Config, error) {
	paths, err := app.DefaultPaths()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(paths.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// withApp creates a StoryApp for operation, runs fn, and closes the app.
// The outcome of fn is recorded in the operation log.
func withApp(cmd *cobra.Command, operation string, args []string, fn func(ctx context.Context, a *app.StoryApp) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := readConfig()
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	unlock, _ := cmd.Flags().GetBool("unlock")
	metricsFile, _ := cmd.Flags().GetString("metrics-file")

	opts := app.Options{
		Operation:  operation,
		Parameters: strings.Join(args, " "),
		Verbose:    verbose,
	}
	if verbose {
		opts.Console = cmd.ErrOrStderr()
	}
	if unlock {
		opts.Passphrase, err = promptPassphrase(cmd.ErrOrStderr(), "Passphrase: ")
		if err != nil {
			return err
		}
	}

	a, err := app.NewStoryApp(ctx, cfg, opts)
	if err != nil {
		return fmt.Errorf("initializing app: %w", err)
	}
	defer a.Close()

	err = fn(ctx, a)
	a.Finish(err)

	if metricsFile != "" {
		if merr := a.WriteMetrics(metricsFile); merr != nil && err == nil {
			err = merr
		}
	}
	return err
}

// withStory is withApp for commands whose first argument is a story ID
// or a unique prefix of one.
func withStory(cmd *cobra.Command, operation string, args []string, fn func(ctx context.Context, a *app.StoryApp, id string) error) error {
	return withApp(cmd, operation, args, func(ctx context.Context, a *app.StoryApp) error {
		id, err := a.ResolveStoryID(args[0])
		if err != nil {
			return err
		}
		return fn(ctx, a, id)
	})
}

func promptPassphrase(w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printStories(w io.Writer, stories []*model.Story) {
	if len(stories) == 0 {
		fmt.Fprintln(w, "No stories.")
		return
	}
	for _, st := range stories {
		fmt.Fprintf(w, "%s  %-8s  %s  %3d likes  %3d comments  %s\n",
			shortID(st.ID),
			st.Status,
			st.CreatedAt.Format("2006-01-02 15:04"),
			st.LikeCount,
			st.CommentCount,
			st.Title,
		)
	}
}

func printStory(w io.Writer, st *model.Story, liked, bookmarked bool) {
	fmt.Fprintf(w, "%s\n", st.Title)
	author := st.AuthorDisplayName
	if st.AuthorDisplayRole != "" {
		author += " (" + st.AuthorDisplayRole + ")"
	}
	fmt.Fprintf(w, "by %s, %s\n", author, st.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "id: %s  status: %s  attempt: %d\n", st.ID, st.Status, st.AttemptCount)
	if len(st.RejectedNorms) > 0 {
		norms := make([]string, len(st.RejectedNorms))
		for i, n := range st.RejectedNorms {
			norms[i] = string(n)
		}
		fmt.Fprintf(w, "rejected for: %s\n", strings.Join(norms, ", "))
	}
	if len(st.TargetAudiences) > 0 {
		fmt.Fprintf(w, "audiences: %s\n", strings.Join(st.TargetAudiences, ", "))
	}
	flags := ""
	if liked {
		flags += "  [liked]"
	}
	if bookmarked {
		flags += "  [bookmarked]"
	}
	fmt.Fprintf(w, "%d likes  %d comments  %d reports%s\n\n", st.LikeCount, st.CommentCount, st.ReportCount, flags)
	fmt.Fprintln(w, st.Body)
}

func printStaleNotice(w io.Writer, a *app.StoryApp) {
	if a.Store().Stale() {
		fmt.Fprintln(w, "(offline: showing saved stories)")
	}
}

var rootCmd = &cobra.Command{
	Use:           "storyfeed",
	Short:         "Moderated community story feed",
	SilenceUsage:  true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(paths.BaseDir)
		if err := config.Init(paths.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration initialized at %s\n", paths.ConfigPath)
		fmt.Fprintf(out, "Base Dir: %s\n", paths.BaseDir)
		fmt.Fprintln(out, "Run 'storyfeed migrate' to create the database.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Base Dir:    %s\n", cfg.BaseDir)
		fmt.Fprintf(out, "Log Dir:     %s\n", cfg.LogDir)
		fmt.Fprintf(out, "User:        %s (%s)\n", cfg.Session.UserID, cfg.Session.Role)
		fmt.Fprintf(out, "Moderator:   %v\n", cfg.Session.Moderator)
		fmt.Fprintf(out, "Remote:      %s\n", cfg.Remote.Type)
		fmt.Fprintf(out, "Cache:       %s\n", cfg.Cache.Type)
		fmt.Fprintf(out, "Encryption:  %s\n", cfg.Encryption.Type)
		fmt.Fprintf(out, "Moderation:  %s\n", cfg.Moderation.Type)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage cache encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the cache encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		passphrase, err := promptPassphrase(cmd.ErrOrStderr(), "New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassphrase(cmd.ErrOrStderr(), "Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := app.SetupKeys(cfg.Encryption, passphrase); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Keys written to %s\n", cfg.Encryption.PublicKeyPath)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		if err := app.MigrateRemote(cfg.Remote); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date.")
		return nil
	},
}

// listing commands
var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "List the stories visible to you",
	RunE: func(cmd *cobra.Command, args []string) error {
		sortBy, _ := cmd.Flags().GetString("sort")
		var mode feed.SortMode
		switch sortBy {
		case "newest":
			mode = feed.SortNewest
		case "popular":
			mode = feed.SortPopular
		default:
			return fmt.Errorf("unknown sort %q (want newest or popular)", sortBy)
		}

		return withApp(cmd, "feed", args, func(ctx context.Context, a *app.StoryApp) error {
			out := cmd.OutOrStdout()
			printStaleNotice(out, a)
			printStories(out, a.Store().List(feed.ListOptions{Mode: feed.ModeFeed, Sort: mode}))
			return nil
		})
	},
}

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "List your own stories in any status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "mine", args, func(ctx context.Context, a *app.StoryApp) error {
			out := cmd.OutOrStdout()
			printStaleNotice(out, a)
			printStories(out, a.Store().List(feed.ListOptions{Mode: feed.ModeMine}))
			return nil
		})
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List stories awaiting moderation and reported stories",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "queue", args, func(ctx context.Context, a *app.StoryApp) error {
			store := a.Store()
			if !store.Session().Moderator {
				return fmt.Errorf("the moderation queue is only available to moderators")
			}

			var pending []*model.Story
			for _, st := range store.List(feed.ListOptions{Mode: feed.ModeModeration}) {
				if st.Status == model.StatusPending {
					pending = append(pending, st)
				}
			}

			out := cmd.OutOrStdout()
			printStaleNotice(out, a)
			fmt.Fprintln(out, "Pending:")
			printStories(out, pending)
			fmt.Fprintln(out, "\nReported:")
			printStories(out, store.ReportQueue())
			return nil
		})
	},
}

var bookmarksCmd = &cobra.Command{
	Use:   "bookmarks",
	Short: "List your bookmarked stories",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "bookmarks", args, func(ctx context.Context, a *app.StoryApp) error {
			printStories(cmd.OutOrStdout(), a.Store().Bookmarks())
			return nil
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show STORY_ID",
	Short: "Show a story and its comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStory(cmd, "show", args, func(ctx context.Context, a *app.StoryApp, id string) error {
			store := a.Store()
			st, ok := store.Open(id)
			if !ok {
				return fmt.Errorf("story not found: %s", id)
			}

			out := cmd.OutOrStdout()
			printStory(out, st, store.IsLiked(id), store.IsBookmarked(id))

			comments, err := store.LoadComments(ctx, id)
			if err != nil {
				return err
			}
			if len(comments) > 0 {
				fmt.Fprintln(out, "\nComments:")
			}
			for _, c := range comments {
				fmt.Fprintf(out, "  %s  %s: %s\n", shortID(c.ID), c.AuthorDisplayName, c.Body)
			}
			return nil
		})
	},
}

// authoring commands
var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a story for moderation",
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		body, _ := cmd.Flags().GetString("body")
		anonymous, _ := cmd.Flags().GetBool("anonymous")
		audiences, _ := cmd.Flags().GetStringSlice("audience")
		topics, _ := cmd.Flags().GetStringSlice("topic")

		return withApp(cmd, "submit", args, func(ctx context.Context, a *app.StoryApp) error {
			st, err := a.Store().CreateStory(ctx, model.StoryDraft{
				Title:           title,
				Body:            body,
				Anonymous:       anonymous,
				TargetAudiences: audiences,
				TaggedTopics:    topics,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s for review.\n", shortID(st.ID))
			return nil
		})
	},
}

var editCmd = &cobra.Command{
	Use:   "edit STORY_ID",
	Short: "Edit a pending story, or resubmit a rejected one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		body, _ := cmd.Flags().GetString("body")

		return withStory(cmd, "edit", args, func(ctx context.Context, a *app.StoryApp, id string) error {
			st, err := a.Store().EditStory(ctx, id, title, body)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s, attempt %d).\n", shortID(st.ID), st.Status, st.AttemptCount)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete STORY_ID",
	Short: "Delete a story",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStory(cmd, "delete", args, func(ctx context.Context, a *app.StoryApp, id string) error {
			if err := a.Store().DeleteStory(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", shortID(id))
			return nil
		})
	},
}

// moderation commands

// storyAction builds a single-argument command that runs action on a story
// and prints done on success.
func storyAction(use, short, done string, action func(ctx context.Context, s *feed.StoryStore, id string) error) *cobra.Command {
	name := strings.Fields(use)[0]
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStory(cmd, name, args, func(ctx context.Context, a *app.StoryApp, id string) error {
				if err := action(ctx, a.Store(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), done+"\n", shortID(id))
				return nil
			})
		},
	}
}

var approveCmd = storyAction("approve STORY_ID", "Publish a pending story", "Approved %s.",
	func(ctx context.Context, s *feed.StoryStore, id string) error { return s.ApproveStory(ctx, id) })

var revokeCmd = storyAction("revoke STORY_ID", "Return a reported story to the moderation queue", "Revoked %s.",
	func(ctx context.Context, s *feed.StoryStore, id string) error { return s.RevokeStory(ctx, id) })

var dismissCmd = storyAction("dismiss STORY_ID", "Dismiss the reports on a story", "Dismissed reports on %s.",
	func(ctx context.Context, s *feed.StoryStore, id string) error { return s.DismissReports(ctx, id) })

var likeCmd = storyAction("like STORY_ID", "Like a story", "Liked %s.",
	func(ctx context.Context, s *feed.StoryStore, id string) error { return s.Like(ctx, id) })

var unlikeCmd = storyAction("unlike STORY_ID", "Remove your like", "Unliked %s.",
	func(ctx context.Context, s *feed.StoryStore, id string) error { return s.Unlike(ctx, id) })

var bookmarkCmd = storyAction("bookmark STORY_ID", "Save a story for offline reading", "Bookmarked %s.",
	func(ctx context.Context, s *feed.StoryStore, id string) error { return s.Bookmark(ctx, id) })

var unbookmarkCmd = storyAction("unbookmark STORY_ID", "Remove a bookmark", "Removed bookmark on %s.",
	func(ctx context.Context, s *feed.StoryStore, id string) error { return s.Unbookmark(ctx, id) })

var rejectCmd = &cobra.Command{
	Use:   "reject STORY_ID",
	Short: "Reject a pending story, citing the norms it breaks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, _ := cmd.Flags().GetStringSlice("norm")
		norms := make([]model.Norm, len(names))
		for i, n := range names {
			norms[i] = model.Norm(n)
		}

		return withStory(cmd, "reject", args, func(ctx context.Context, a *app.StoryApp, id string) error {
			if err := a.Store().RejectStory(ctx, id, norms); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rejected %s.\n", shortID(id))
			return nil
		})
	},
}

var reportCmd = &cobra.Command{
	Use:   "report STORY_ID",
	Short: "Report a story to the moderators",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		details, _ := cmd.Flags().GetString("details")

		return withStory(cmd, "report", args, func(ctx context.Context, a *app.StoryApp, id string) error {
			if err := a.Store().ReportStory(ctx, id, reason, details); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Thanks, a moderator will take a look.")
			return nil
		})
	},
}

// comment commands
var commentsCmd = &cobra.Command{
	Use:   "comments STORY_ID",
	Short: "List the comments on a story",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStory(cmd, "comments", args, func(ctx context.Context, a *app.StoryApp, id string) error {
			comments, err := a.Store().LoadComments(ctx, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(comments) == 0 {
				fmt.Fprintln(out, "No comments.")
				return nil
			}
			for _, c := range comments {
				fmt.Fprintf(out, "%s  %s  %s: %s\n", shortID(c.ID), c.CreatedAt.Format("2006-01-02 15:04"), c.AuthorDisplayName, c.Body)
			}
			return nil
		})
	},
}

var commentCmd = &cobra.Command{
	Use:   "comment STORY_ID TEXT",
	Short: "Comment on a story",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		anonymous, _ := cmd.Flags().GetBool("anonymous")

		return withStory(cmd, "comment", args, func(ctx context.Context, a *app.StoryApp, id string) error {
			c, err := a.Store().AddComment(ctx, id, args[1], anonymous)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Posted comment %s.\n", shortID(c.ID))
			return nil
		})
	},
}

var uncommentCmd = &cobra.Command{
	Use:   "uncomment STORY_ID COMMENT_ID",
	Short: "Delete a comment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStory(cmd, "uncomment", args, func(ctx context.Context, a *app.StoryApp, id string) error {
			store := a.Store()
			comments, err := store.LoadComments(ctx, id)
			if err != nil {
				return err
			}
			commentID := args[1]
			for _, c := range comments {
				if strings.HasPrefix(c.ID, args[1]) {
					commentID = c.ID
					break
				}
			}
			if err := store.DeleteComment(ctx, id, commentID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted comment %s.\n", shortID(commentID))
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().Bool("unlock", false, "Prompt for the passphrase to read the encrypted cache")
	rootCmd.PersistentFlags().String("metrics-file", "", "Write Prometheus metrics to this file on exit")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	keysCmd.AddCommand(keysInitCmd)

	feedCmd.Flags().StringP("sort", "s", "newest", "Sort order: newest or popular")

	submitCmd.Flags().StringP("title", "t", "", "Story title")
	submitCmd.Flags().StringP("body", "b", "", "Story text")
	submitCmd.Flags().Bool("anonymous", false, "Post without your name and role")
	submitCmd.Flags().StringSlice("audience", nil, "Limit to audiences (Students, Parents, School Staff)")
	submitCmd.Flags().StringSlice("topic", nil, "Tag a topic")

	editCmd.Flags().StringP("title", "t", "", "New title")
	editCmd.Flags().StringP("body", "b", "", "New text")

	rejectCmd.Flags().StringSlice("norm", nil, "Violated norm (repeatable)")
	rejectCmd.MarkFlagRequired("norm")

	reportCmd.Flags().StringP("reason", "r", "", "Why the story should be reviewed")
	reportCmd.Flags().String("details", "", "Optional details for the moderators")

	commentCmd.Flags().Bool("anonymous", false, "Comment without your name and role")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(feedCmd, mineCmd, queueCmd, bookmarksCmd, showCmd)
	rootCmd.AddCommand(submitCmd, editCmd, deleteCmd)
	rootCmd.AddCommand(approveCmd, rejectCmd, revokeCmd, dismissCmd)
	rootCmd.AddCommand(reportCmd, likeCmd, unlikeCmd, bookmarkCmd, unbookmarkCmd)
	rootCmd.AddCommand(commentsCmd, commentCmd, uncommentCmd)
}
