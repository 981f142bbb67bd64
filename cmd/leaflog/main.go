package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"leaflog/internal/bootstrap"
	"leaflog/internal/platform/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dataPath string

	root := &cobra.Command{
		Use:           "leaflog",
		Short:         "Reading progress and reward tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dataPath, "data", ".", "data directory")

	root.AddCommand(newBookCmd(&dataPath))
	root.AddCommand(newSessionCmd(&dataPath))
	root.AddCommand(newProfileCmd(&dataPath))
	root.AddCommand(newSyncCmd(&dataPath))
	root.AddCommand(newSnapshotCmd(&dataPath))
	return root
}

func loadApp(dataPath string) (*bootstrap.App, error) {
	cfg, err := config.New(dataPath)
	if err != nil {
		return nil, err
	}
	return bootstrap.New(cfg)
}

func newBookCmd(dataPath *string) *cobra.Command {
	book := &cobra.Command{Use: "book", Short: "Manage the book catalog"}

	var title, author string
	var pages int
	add := &cobra.Command{
		Use:   "add --title <title>",
		Short: "Add a book to the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(title) == "" {
				return fmt.Errorf("--title is required")
			}
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			out, err := app.BookCLI.AddBook(context.Background(), title, author, pages)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added %q (%s)\n", out.Title, out.ID)
			return nil
		},
	}
	add.Flags().StringVar(&title, "title", "", "book title")
	add.Flags().StringVar(&author, "author", "", "book author")
	add.Flags().IntVar(&pages, "pages", 0, "total pages (0 when unknown)")
	book.AddCommand(add)

	book.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List catalog books",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			books, err := app.BookCLI.ListBooks(context.Background())
			if err != nil {
				return err
			}
			if len(books) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no books")
				return nil
			}
			for _, b := range books {
				pageInfo := "unknown length"
				if b.TotalPages > 0 {
					pageInfo = fmt.Sprintf("%d pages", b.TotalPages)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", b.ID, b.Title, b.Author, pageInfo)
			}
			return nil
		},
	})

	book.AddCommand(&cobra.Command{
		Use:   "show <book-id>",
		Short: "Show one book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			b, err := app.BookCLI.GetBook(context.Background(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "id: %s\ntitle: %s\nauthor: %s\npages: %d\nadded: %s\n",
				b.ID, b.Title, b.Author, b.TotalPages, humanize.Time(b.AddedAt))
			return nil
		},
	})

	return book
}

func newSessionCmd(dataPath *string) *cobra.Command {
	session := &cobra.Command{Use: "session", Short: "Reading session lifecycle"}

	var startPage int
	var origin string
	var takeover bool
	start := &cobra.Command{
		Use:   "start <book-id>",
		Short: "Start a reading session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			out, err := app.SessionCLI.Start(context.Background(), args[0], startPage, origin, takeover)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "reading %q from page %d (session %s)\n", out.BookTitle, out.StartPage, out.ID)
			return nil
		},
	}
	start.Flags().IntVar(&startPage, "page", 0, "starting page")
	start.Flags().StringVar(&origin, "origin", "", "surface the session starts on: primary|companion")
	start.Flags().BoolVar(&takeover, "takeover", false, "discard an existing active session and start fresh")
	session.AddCommand(start)

	session.AddCommand(&cobra.Command{
		Use:   "pause",
		Short: "Pause the active session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			out, err := app.SessionCLI.Pause(context.Background())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "paused at page %d, %d min on the clock\n", out.CurrentPage, out.ElapsedMinutes)
			return nil
		},
	})

	session.AddCommand(&cobra.Command{
		Use:   "resume",
		Short: "Resume the paused session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			out, err := app.SessionCLI.Resume(context.Background())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "resumed at page %d\n", out.CurrentPage)
			return nil
		},
	})

	var delta int
	page := &cobra.Command{
		Use:   "page [target]",
		Short: "Move the bookmark to a page, or nudge it with --delta",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			if len(args) == 1 {
				target, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("page target must be a number: %q", args[0])
				}
				out, err := app.SessionCLI.SetPage(ctx, target)
				if err != nil {
					return err
				}
				printPage(cmd, out.CurrentPage, out.TotalPages, out.ProjectedPoints)
				return nil
			}
			if delta == 0 {
				return fmt.Errorf("give a page target or a non-zero --delta")
			}
			out, err := app.SessionCLI.Nudge(ctx, delta)
			if err != nil {
				return err
			}
			printPage(cmd, out.CurrentPage, out.TotalPages, out.ProjectedPoints)
			return nil
		},
	}
	page.Flags().IntVar(&delta, "delta", 0, "relative page adjustment")
	session.AddCommand(page)

	session.AddCommand(&cobra.Command{
		Use:   "finish",
		Short: "Finish the active session and bank the reward",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			out, err := app.SessionCLI.Finish(context.Background())
			if err != nil {
				return err
			}
			if !out.Applied {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "nothing to finish")
				return nil
			}
			s := out.Session
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "finished: %d pages in %d min, +%d points\n", s.PagesRead, s.DurationMinutes, s.PointsAwarded)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "streak %d (best %d), %s points total, level %d\n",
				out.Profile.CurrentStreak, out.Profile.LongestStreak, humanize.Comma(int64(out.Profile.TotalPoints)), out.Profile.Level)
			for _, a := range out.NewAchievements {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "achievement unlocked: %s\n", a)
			}
			return nil
		},
	})

	session.AddCommand(&cobra.Command{
		Use:   "discard",
		Short: "Throw the active session away without reward or history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			out, err := app.SessionCLI.Discard(context.Background())
			if err != nil {
				return err
			}
			if !out.Discarded {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "nothing to discard")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "discarded session %s\n", out.SessionID)
			return nil
		},
	})

	session.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the active session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			out, err := app.SessionCLI.Status(context.Background())
			if err != nil {
				return err
			}
			state := "reading"
			if out.Paused {
				state = "paused"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %q, started %s\n", state, out.BookTitle, humanize.Time(out.StartedAt))
			pageInfo := fmt.Sprintf("page %d", out.CurrentPage)
			if out.TotalPages > 0 {
				pageInfo = fmt.Sprintf("page %d/%d", out.CurrentPage, out.TotalPages)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s, %d min, %d points if finished now\n", pageInfo, out.ElapsedMinutes, out.ProjectedPoints)
			return nil
		},
	})

	session.AddCommand(&cobra.Command{
		Use:   "expire",
		Short: "Discard the active session when it idled past the threshold",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			out, err := app.SessionCLI.AutoExpire(context.Background())
			if err != nil {
				return err
			}
			if !out.Expired {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no stale session")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "expired session %s\n", out.SessionID)
			return nil
		},
	})

	return session
}

func printPage(cmd *cobra.Command, current, total, projected int) {
	if total > 0 {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d, %d points if finished now\n", current, total, projected)
		return
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "page %d, %d points if finished now\n", current, projected)
}

func newProfileCmd(dataPath *string) *cobra.Command {
	profile := &cobra.Command{Use: "profile", Short: "Reward profile and history"}

	profile.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show streak, points, and level",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			out, err := app.SessionCLI.Profile(context.Background())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "streak: %d (best %d)\npoints: %s\nlevel: %d\n",
				out.CurrentStreak, out.LongestStreak, humanize.Comma(int64(out.TotalPoints)), out.Level)
			if !out.LastReadDate.IsZero() {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "last read: %s\n", out.LastReadDate.Format("2006-01-02"))
			}
			return nil
		},
	})

	profile.AddCommand(&cobra.Command{
		Use:   "history",
		Short: "List finished sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			history, err := app.SessionCLI.History(context.Background())
			if err != nil {
				return err
			}
			if len(history) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no finished sessions")
				return nil
			}
			for _, s := range history {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d pages\t%d min\t+%d points\n",
					s.EndedAt.Format("2006-01-02 15:04"), s.BookID, s.PagesRead, s.DurationMinutes, s.PointsAwarded)
			}
			return nil
		},
	})

	profile.AddCommand(&cobra.Command{
		Use:   "recompute",
		Short: "Rebuild streak and points from the full history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			out, err := app.SessionCLI.Recompute(context.Background())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "recomputed: streak %d (best %d), %s points\n",
				out.CurrentStreak, out.LongestStreak, humanize.Comma(int64(out.TotalPoints)))
			return nil
		},
	})

	return profile
}

func newSyncCmd(dataPath *string) *cobra.Command {
	sync := &cobra.Command{Use: "sync", Short: "Cross-surface sync channel"}

	daemon := &cobra.Command{Use: "daemon", Short: "Manage the sync daemon"}
	runDaemon := func(_ *cobra.Command, _ []string) error {
		app, err := loadApp(*dataPath)
		if err != nil {
			return err
		}
		return app.SyncCLI.RunDaemon(context.Background())
	}
	daemon.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon in the foreground",
		RunE:  runDaemon,
	})
	daemon.AddCommand(&cobra.Command{
		Use:    "__run",
		Hidden: true,
		RunE:   runDaemon,
	})
	daemon.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the sync daemon in the background",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			status, err := app.SyncCLI.StartDaemon(context.Background())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "daemon running, pid %d\n", status.PID)
			return nil
		},
	})
	daemon.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the sync daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			if err := app.SyncCLI.StopDaemon(context.Background()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "daemon stopped")
			return nil
		},
	})
	daemon.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show daemon and channel status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			status, err := app.SyncCLI.Status(context.Background())
			if err != nil {
				return err
			}
			printStatus(cmd, status.Running, status.PID, status.Online, status.PeerCount, status.QueuedMessages, status.LastSyncAt, status.ListenAddrs)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "counters invalid_auth=%d pair_mismatch=%d unauthenticated=%d decode_errors=%d send_errors=%d reconnect_attempts=%d reconnect_successes=%d\n",
				status.Counters.InvalidAuthTag,
				status.Counters.PairMismatch,
				status.Counters.UnauthenticatedPeer,
				status.Counters.DecodeErrors,
				status.Counters.SendErrors,
				status.Counters.ReconnectAttempts,
				status.Counters.ReconnectSuccesses,
			)
			return nil
		},
	})
	sync.AddCommand(daemon)

	var surface string
	pair := &cobra.Command{Use: "pair", Short: "Manage device pairing"}
	pairInit := &cobra.Command{
		Use:   "init",
		Short: "Create pairing material for this device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			out, err := app.SyncCLI.PairInit(context.Background(), surface)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pair=%s surface=%s device=%s\nkey=%s\n", out.PairID, out.Surface, out.DeviceID, out.KeyBase64)
			return nil
		},
	}
	pairInit.Flags().StringVar(&surface, "surface", "primary", "which surface this device is: primary|companion")
	pair.AddCommand(pairInit)
	pair.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show pairing material",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			out, err := app.SyncCLI.PairShow(context.Background())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pair=%s surface=%s device=%s created=%s\nkey=%s\n",
				out.PairID, out.Surface, out.DeviceID, humanize.Time(out.CreatedAt), out.KeyBase64)
			return nil
		},
	})
	sync.AddCommand(pair)

	var peerAddr, peerID string
	peer := &cobra.Command{Use: "peer", Short: "Manage companion addresses"}
	addPeer := &cobra.Command{
		Use:   "add --addr <multiaddr>",
		Short: "Add the companion's dial address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(peerAddr) == "" {
				return fmt.Errorf("--addr is required")
			}
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			out, err := app.SyncCLI.AddPeer(context.Background(), peerAddr)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "peer added: %s %s\n", out.PeerID, out.Address)
			return nil
		},
	}
	addPeer.Flags().StringVar(&peerAddr, "addr", "", "companion multiaddr")
	peer.AddCommand(addPeer)
	removePeer := &cobra.Command{
		Use:   "remove --peer-id <id>",
		Short: "Remove a companion address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(peerID) == "" {
				return fmt.Errorf("--peer-id is required")
			}
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			if err := app.SyncCLI.RemovePeer(context.Background(), peerID); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "peer removed: %s\n", peerID)
			return nil
		},
	}
	removePeer.Flags().StringVar(&peerID, "peer-id", "", "peer id")
	peer.AddCommand(removePeer)
	peer.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List companion addresses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			peers, err := app.SyncCLI.ListPeers(context.Background())
			if err != nil {
				return err
			}
			if len(peers) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no peers configured")
				return nil
			}
			for _, item := range peers {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", item.PeerID, item.Address)
			}
			return nil
		},
	})
	sync.AddCommand(peer)

	sync.AddCommand(&cobra.Command{
		Use:   "now",
		Short: "Flush queued messages and republish local state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			out, err := app.SyncCLI.SyncNow(context.Background())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "sent %d messages\n", out.Flushed)
			return nil
		},
	})

	var activityLimit int
	var activityKind string
	activity := &cobra.Command{
		Use:   "activity",
		Short: "Show the sync audit log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			events, err := app.SyncCLI.Activity(context.Background(), activityLimit, activityKind)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no sync activity")
				return nil
			}
			for _, event := range events {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", event.OccurredAt.Format(time.RFC3339), event.Kind, event.Detail)
			}
			return nil
		},
	}
	activity.Flags().IntVar(&activityLimit, "tail", 50, "entries to show from the end")
	activity.Flags().StringVar(&activityKind, "kind", "", "filter by kind: sent|received|queued|dropped|reconciled|fault")
	sync.AddCommand(activity)

	return sync
}

func printStatus(cmd *cobra.Command, running bool, pid int, online bool, peers, queued int, lastSyncAt time.Time, listenAddrs []string) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "running=%t pid=%d online=%t peers=%d queued=%d\n", running, pid, online, peers, queued)
	if !lastSyncAt.IsZero() {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "last sync %s\n", humanize.Time(lastSyncAt))
	}
	for _, addr := range listenAddrs {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), addr)
	}
}

func newSnapshotCmd(dataPath *string) *cobra.Command {
	snapshot := &cobra.Command{Use: "snapshot", Short: "Status snapshot for external consumers"}

	printSnapshot := func(cmd *cobra.Command, active, paused bool, title string, current, total, todayPoints, streak int) {
		if !active {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "idle")
		} else {
			state := "reading"
			if paused {
				state = "paused"
			}
			if total > 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %q page %d/%d\n", state, title, current, total)
			} else {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %q page %d\n", state, title, current)
			}
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "today: %d points, streak %d\n", todayPoints, streak)
	}

	snapshot.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Rebuild and write the snapshot file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			out, err := app.SnapshotCLI.Export(context.Background())
			if err != nil {
				return err
			}
			printSnapshot(cmd, out.Active, out.Paused, out.BookTitle, out.CurrentPage, out.TotalPages, out.TodayPoints, out.Streak)
			return nil
		},
	})

	snapshot.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the last exported snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*dataPath)
			if err != nil {
				return err
			}
			out, err := app.SnapshotCLI.Show(context.Background())
			if err != nil {
				return err
			}
			printSnapshot(cmd, out.Active, out.Paused, out.BookTitle, out.CurrentPage, out.TotalPages, out.TodayPoints, out.Streak)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "generated %s\n", humanize.Time(out.GeneratedAt))
			return nil
		},
	})

	return snapshot
}
