// cmd/remixctl/commands.go
package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/javajoker/remix-engine/internal/config"
	"github.com/javajoker/remix-engine/internal/database"
	"github.com/javajoker/remix-engine/internal/services"
	"github.com/javajoker/remix-engine/internal/utils"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openDatabase()
		if err != nil {
			return err
		}
		database.Close(db)
		logrus.Info("Migrations applied")
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <template-id>",
	Short: "Recompute and check a template's lineage hashes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid template id %q: %w", args[0], err)
		}

		return withEngine(func(engine *services.Engine) error {
			result, err := engine.Lineage.VerifyChain(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}

var deadLettersCmd = &cobra.Command{
	Use:   "dead-letters",
	Short: "Inspect and redrive royalty dead letters",
}

var includeRedriven bool

var deadLettersListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List dead-lettered usage events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(engine *services.Engine) error {
			params := utils.DefaultPagination()
			params.Limit = 100
			letters, total, err := engine.Royalties.DeadLetters(cmd.Context(), services.DeadLetterParams{
				PaginationParams: params,
				IncludeRedriven:  includeRedriven,
			})
			if err != nil {
				return err
			}
			logrus.WithField("total", total).Debug("Dead letters loaded")
			return printJSON(letters)
		})
	},
}

var deadLettersRedriveCmd = &cobra.Command{
	Use:   "redrive <dead-letter-id>",
	Short: "Retry royalty distribution for a dead-lettered event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid dead letter id %q: %w", args[0], err)
		}

		return withEngine(func(engine *services.Engine) error {
			entries, err := engine.Royalties.Redrive(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(entries)
		})
	},
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Run the royalty consumer until it reaches the ledger head",
	Long: `Processes every usage event past the royalty cursor and exits.
Useful for catching up after a deploy with consumers disabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(engine *services.Engine) error {
			if err := engine.RoyaltyConsumer.Drain(cmd.Context()); err != nil {
				return err
			}
			stats, err := engine.Ledger.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(stats)
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(engine *services.Engine) error {
			stats, err := engine.Ledger.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(stats)
		})
	},
}

var (
	tokenUser string
	tokenRole string
	tokenTTL  int
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token signed with the configured JWT secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		userID := uuid.New()
		if tokenUser != "" {
			if userID, err = uuid.Parse(tokenUser); err != nil {
				return fmt.Errorf("invalid user id %q: %w", tokenUser, err)
			}
		}

		switch tokenRole {
		case utils.RoleCreator, utils.RoleService, utils.RoleAdmin:
		default:
			return fmt.Errorf("unknown role %q", tokenRole)
		}

		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.JWT.AccessTokenTTL
		}

		utils.SetJWTSecret(cfg.JWT.SecretKey)
		token, err := utils.GenerateJWT(userID, tokenRole, ttl)
		if err != nil {
			return err
		}

		return printJSON(map[string]interface{}{
			"user_id":   userID,
			"role":      tokenRole,
			"ttl_hours": ttl,
			"token":     token,
		})
	},
}

func init() {
	deadLettersListCmd.Flags().BoolVar(&includeRedriven, "all", false, "Include dead letters that were already redriven")
	deadLettersCmd.AddCommand(deadLettersListCmd)
	deadLettersCmd.AddCommand(deadLettersRedriveCmd)

	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User id (random when empty)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", utils.RoleCreator, "Role: creator, service or admin")
	tokenCmd.Flags().IntVar(&tokenTTL, "ttl", 0, "Lifetime in hours (defaults to JWT_ACCESS_TTL)")
}
