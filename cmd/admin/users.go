package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/nutrition-bot/internal/analytics"
	"github.com/nutrition-bot/internal/clock"
	"github.com/nutrition-bot/internal/logging"
	"github.com/nutrition-bot/internal/service"
	"github.com/nutrition-bot/internal/storage"
	"github.com/nutrition-bot/internal/types"
	"github.com/spf13/cobra"
)

var revokePremium bool

var limitsCmd = &cobra.Command{
	Use:   "limits USER_ID",
	Short: "Show what a user may analyze right now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		return withStores(cmd.Context(), func(s *stores) error {
			limits := service.NewLimitEvaluator(s.users, s.events, cfg.Limits.DailyTextLimit, nil, logging.GetGlobalLogger()).
				EvaluateLimits(cmd.Context(), userID, clock.System().Now())
			user, err := s.users.GetByID(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"user":   user,
				"limits": limits,
			})
		})
	},
}

var activateCmd = &cobra.Command{
	Use:   "activate USER_ID CODE",
	Short: "Activate a promo code for a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		return withStores(cmd.Context(), func(s *stores) error {
			trial := service.NewTrialService(service.TrialServiceConfig{
				Users:  s.users,
				Plans:  s.plans,
				Logger: logging.GetGlobalLogger(),
			})
			ctx := analytics.WithPlatform(cmd.Context(), types.PlatformAdmin)
			if !trial.ActivateByPromoCode(ctx, userID, args[1]) {
				return fmt.Errorf("promo code %q was not activated for user %d", args[1], userID)
			}
			user, err := s.users.GetByID(ctx, userID)
			if err != nil {
				return err
			}
			fmt.Printf("Activated %s for user %d, premium until %s\n",
				service.NormalizePromoCode(args[1]), userID, user.PremiumExpiresAt.UTC().Format("2006-01-02 15:04:05Z"))
			return nil
		})
	},
}

var grantCmd = &cobra.Command{
	Use:   "grant USER_ID",
	Short: "Set the explicit premium flag on a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		return withStores(cmd.Context(), func(s *stores) error {
			users := service.NewUserService(s.users, nil, logging.GetGlobalLogger())
			if !users.SetPremiumFlag(cmd.Context(), userID, !revokePremium) {
				return fmt.Errorf("failed to update user %d", userID)
			}
			fmt.Printf("User %d premium flag set to %v\n", userID, !revokePremium)
			return nil
		})
	},
}

func init() {
	grantCmd.Flags().BoolVar(&revokePremium, "revoke", false, "clear the premium flag instead of setting it")
}

type stores struct {
	users  *storage.UserRepository
	plans  *storage.PlanRepository
	events *storage.AnalysisEventRepository
}

func withStores(ctx context.Context, fn func(*stores) error) error {
	db, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(&stores{
		users:  storage.NewUserRepository(db),
		plans:  storage.NewPlanRepository(db),
		events: storage.NewAnalysisEventRepository(db),
	})
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
