package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"foresight/internal/config"
	"foresight/internal/dashboard"
	"foresight/internal/objectstore"
	"foresight/internal/redis"
	"foresight/internal/storage"
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

const checkTimeout = 5 * time.Second

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify configuration and backend connectivity",
	Long: `Check the deployment by verifying:
  • Configuration is complete
  • The database opens and answers
  • Redis answers, when configured
  • The object store can be constructed
  • The Dashboard API is reachable`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Println(sectionStyle.Render("Foresight Health Check"))
		fmt.Println()

		failed := 0
		for i, step := range checkSteps(cfg) {
			fmt.Println(infoStyle.Render(fmt.Sprintf("Step %d: %s...", i+1, step.name)))
			ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
			detail, warn, err := step.run(ctx)
			cancel()
			switch {
			case err != nil:
				failed++
				fmt.Println(errorStyle.Render("❌ "+step.name+" failed:"), err)
			case warn:
				fmt.Println(warningStyle.Render("⚠️  " + detail))
			default:
				fmt.Println(successStyle.Render("✅ " + detail))
			}
			fmt.Println()
		}

		if failed > 0 {
			return fmt.Errorf("%d check(s) failed", failed)
		}
		fmt.Println(successStyle.Render("All checks passed"))
		return nil
	},
}

type checkStep struct {
	name string
	// run returns a detail line, whether it is only a warning, and an error on failure.
	run func(ctx context.Context) (string, bool, error)
}

func checkSteps(cfg *config.Config) []checkStep {
	return []checkStep{
		{name: "Validating configuration", run: func(ctx context.Context) (string, bool, error) {
			if err := cfg.Validate(); err != nil {
				return "", false, err
			}
			if _, err := cfg.Identity.Secret(); err != nil {
				return "", false, err
			}
			return "Configuration is valid", false, nil
		}},
		{name: "Checking database", run: func(ctx context.Context) (string, bool, error) {
			db, err := storage.Open(cfg.BasicConfig.Database, cfg)
			if err != nil {
				return "", false, err
			}
			defer db.Close()
			if err := db.PingContext(ctx); err != nil {
				return "", false, err
			}
			return fmt.Sprintf("Database %s answers", storage.Normalize(cfg.BasicConfig.Database)), false, nil
		}},
		{name: "Checking redis", run: func(ctx context.Context) (string, bool, error) {
			if !cfg.Redis.Enabled() {
				return "Redis not configured, updates stay in-process", true, nil
			}
			rdb, err := redis.NewRedisClient(cfg)
			if err != nil {
				return "", false, err
			}
			defer rdb.Close()
			return fmt.Sprintf("Redis at %s answers", cfg.Redis.Host), false, nil
		}},
		{name: "Checking object store", run: func(ctx context.Context) (string, bool, error) {
			if _, err := objectstore.New(ctx, cfg); err != nil {
				return "", false, err
			}
			return fmt.Sprintf("Object store %q is ready", cfg.ObjectStore.Driver), false, nil
		}},
		{name: "Checking Dashboard API", run: func(ctx context.Context) (string, bool, error) {
			status, err := dashboard.NewClient(cfg.Dashboard.BaseURL, checkTimeout).Ping(ctx)
			if err != nil {
				return "", false, err
			}
			if status >= 500 {
				return fmt.Sprintf("Dashboard API reachable but answered %d", status), true, nil
			}
			return fmt.Sprintf("Dashboard API reachable (%d)", status), false, nil
		}},
	}
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
