package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/autosendmail/autosendmail/internal/config"
	"github.com/autosendmail/autosendmail/internal/generator"
	"github.com/autosendmail/autosendmail/internal/logger"
	"github.com/autosendmail/autosendmail/internal/mailer"
	"github.com/autosendmail/autosendmail/internal/notifier"
	"github.com/autosendmail/autosendmail/internal/scheduler"
	"github.com/autosendmail/autosendmail/internal/task"
)

var rootCmd = &cobra.Command{
	Use:   "autosend",
	Short: "AI-generated scheduled mail daemon",
	RunE:  runDaemon,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler until interrupted",
	RunE:  runDaemon,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and print each job's next fire time",
	RunE:  runValidate,
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Fire a single account's task immediately, ignoring its schedule",
	RunE:  runOnce,
}

var onceAccount string

func init() {
	onceCmd.Flags().StringVar(&onceAccount, "account", "", "name of the account to fire")
	_ = onceCmd.MarkFlagRequired("account")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(onceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the optional .env file, the configuration and the logger.
func setup() (*config.Config, *logger.Logger, error) {
	// A missing .env is fine; containers pass real environment variables.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	return cfg, log, nil
}

// buildRunner wires the shared generator, mailer and notifier into a
// task runner. One set of instances serves every account.
func buildRunner(cfg *config.Config, log *logger.Logger) *task.Runner {
	gen := generator.New(cfg.AI, log)
	m := mailer.New(cfg.ResendAPIKey, log)
	tg := notifier.NewTelegram(cfg.TGBotToken, cfg.TGChatID, log)
	return task.NewRunner(gen, m, tg, log)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	log.Info().
		Str("model", cfg.AI.Model).
		Int("accounts", len(cfg.Accounts)).
		Msg("starting autosend")

	runner := buildRunner(cfg, log)
	sched, err := scheduler.New(cfg, runner.Run, log)
	if err != nil {
		return fmt.Errorf("failed to build scheduler: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.Run(ctx); err != nil {
		return err
	}

	log.Info().Msg("shutdown complete")
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	sched, err := scheduler.New(cfg, func(context.Context, config.Account) {}, log)
	if err != nil {
		return fmt.Errorf("failed to build scheduler: %w", err)
	}

	fmt.Printf("configuration OK: %d account(s)\n", len(cfg.Accounts))
	for _, e := range sched.Entries() {
		fmt.Printf("  %-30s cron=%-16q next=%s\n", e.ID, e.Cron, e.Next.Format("2006-01-02 15:04 MST"))
	}
	return nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	for _, acc := range cfg.Accounts {
		if acc.Name == onceAccount {
			buildRunner(cfg, log).Run(cmd.Context(), acc)
			return nil
		}
	}
	return fmt.Errorf("unknown account %q", onceAccount)
}
