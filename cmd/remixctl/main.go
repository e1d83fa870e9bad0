// cmd/remixctl/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/javajoker/remix-engine/internal/config"
	"github.com/javajoker/remix-engine/internal/database"
	"github.com/javajoker/remix-engine/internal/services"
)

var rootCmd = &cobra.Command{
	Use:   "remixctl",
	Short: "Operator tool for the remix engine",
	Long: `remixctl runs maintenance tasks against the remix engine database.

Examples:
  remixctl migrate                          # Apply schema migrations
  remixctl verify <template-id>             # Recompute a template's lineage hashes
  remixctl dead-letters ls                  # List open royalty dead letters
  remixctl dead-letters redrive <id>        # Retry a dead-lettered event
  remixctl drain                            # Run every ledger consumer to the head
  remixctl token --user <id> --role admin   # Mint a bearer token`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(deadLettersCmd)
	rootCmd.AddCommand(drainCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// openDatabase loads configuration and connects with the schema migrated.
func openDatabase() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := database.RunMigrations(db); err != nil {
		database.Close(db)
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return cfg, db, nil
}

// withEngine runs fn against a fully wired engine and closes it afterwards.
func withEngine(fn func(engine *services.Engine) error) error {
	cfg, db, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close(db)

	engine, err := services.NewEngine(db, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	return fn(engine)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
