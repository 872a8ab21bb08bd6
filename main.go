package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/example/studyflow/internal/bot"
	"github.com/example/studyflow/internal/config"
	"github.com/example/studyflow/internal/database"
	"github.com/example/studyflow/internal/engine"
	"github.com/example/studyflow/internal/excel"
	"github.com/example/studyflow/internal/lessons"
	"github.com/example/studyflow/internal/logging"
	"github.com/example/studyflow/internal/scheduler"
	"github.com/example/studyflow/pkg/models"
)

// app holds the wiring shared by every command
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *database.DB
	engine *engine.Engine
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(ctx, cfg.Database(), logger)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(engine.Options{
		Catalog:       lessons.Default(),
		Content:       database.NewItemRepository(db),
		States:        database.NewMemoryStateRepository(db),
		Snapshots:     database.NewSnapshotRepository(db),
		Progress:      database.NewCompletionRepository(db),
		Gate:          cfg.Gate(),
		QualityPolicy: cfg.QualityPolicy,
		Logger:        logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, db: db, engine: eng}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "studyflow",
		Short:        "Spaced-repetition lessons over Telegram",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), importCmd(), stateCmd(), statsCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the reminder scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.db.Close()

			api, err := bot.NewAPI(a.cfg.TelegramToken)
			if err != nil {
				return err
			}
			a.logger.Info("authorized on account", "username", api.Self.UserName)

			users := database.NewUserRepository(a.db)
			b := bot.New(api, a.engine, users, bot.DefaultConfig(), a.logger)

			reminders := scheduler.New(scheduler.Config{
				StartHour: a.cfg.NotificationStartHour,
				EndHour:   a.cfg.NotificationEndHour,
				Interval:  a.cfg.ReminderInterval,
			}, users, a.engine, b, a.logger)
			if err := reminders.Start(ctx); err != nil {
				return err
			}
			defer reminders.Stop()

			if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.logger.Info("shutdown complete")
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	cfg := excel.DefaultImportConfig()
	cmd := &cobra.Command{
		Use:   "import <file.xlsx|file.csv>",
		Short: "Import lesson items from a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.db.Close()

			cfg.FilePath = args[0]
			cfg.Catalog = a.engine.Lessons()
			res, err := excel.ImportItems(cmd.Context(), database.NewItemRepository(a.db), cfg)
			if err != nil {
				return err
			}
			a.logger.Info("import finished",
				"file", cfg.FilePath,
				"processed", res.TotalProcessed,
				"created", res.Created,
				"updated", res.Updated,
				"errors", len(res.Errors))
			for _, e := range res.Errors {
				fmt.Fprintln(cmd.ErrOrStderr(), e)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.SheetName, "sheet", "", "sheet to read (default: first sheet)")
	cmd.Flags().IntVar(&cfg.StartRow, "start-row", cfg.StartRow, "first data row, 1-based")
	return cmd
}

func stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state <user-id> [lesson-id]",
		Short: "Print a stored session snapshot; without a lesson, the live one",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.db.Close()

			var snap *models.SessionSnapshot
			if len(args) == 2 {
				lessonID, err := strconv.Atoi(args[1])
				if err != nil {
					return errors.Errorf("invalid lesson id %q", args[1])
				}
				snap, err = a.engine.GetSessionState(cmd.Context(), args[0], lessonID)
				if err != nil {
					return err
				}
			} else if snap, err = a.engine.LiveSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			if snap == nil {
				return errors.New("no session found")
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <user-id>",
		Short: "Print a learner's statistics, unlocks and per-module workload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.db.Close()

			user := args[0]
			stats, err := a.engine.Stats(ctx, user)
			if err != nil {
				return err
			}
			unlocks, err := a.engine.Unlocks(ctx, user)
			if err != nil {
				return err
			}

			type workload struct {
				Due int `json:"due"`
				New int `json:"new"`
			}
			modules := map[models.ModuleType]workload{}
			for _, m := range []models.ModuleType{models.ModuleLetter, models.ModuleWord, models.ModuleSentence, models.ModuleArticle} {
				due, err := a.engine.DueItems(ctx, user, m)
				if err != nil {
					return err
				}
				fresh, err := a.engine.NewItems(ctx, user, m, 0)
				if err != nil {
					return err
				}
				modules[m] = workload{Due: len(due), New: len(fresh)}
			}

			return printJSON(cmd.OutOrStdout(), map[string]any{
				"statistics": stats,
				"unlocks":    unlocks,
				"modules":    modules,
			})
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
