package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/nutrition-bot/internal/models"
	"github.com/nutrition-bot/internal/service"
	"github.com/spf13/cobra"
)

var (
	planPromo    string
	planName     string
	planPrice    int64
	planDays     int
	planInactive bool
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List subscription plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStores(cmd.Context(), func(s *stores) error {
			var (
				plans []*models.SubscriptionPlan
				err   error
			)
			if code := service.NormalizePromoCode(planPromo); code != "" {
				plans, err = s.plans.ListByPromoCode(cmd.Context(), code)
			} else {
				plans, err = s.plans.List(cmd.Context())
			}
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPRICE\tDAYS\tPROMO\tACTIVE")
			for _, p := range plans {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%v\n", p.ID, p.Name, p.Price, p.DurationDays, p.PromoCode, p.IsActive)
			}
			return w.Flush()
		})
	},
}

var plansAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a subscription plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		if planName == "" || planDays <= 0 {
			return fmt.Errorf("--name and a positive --days are required")
		}
		return withStores(cmd.Context(), func(s *stores) error {
			plan := &models.SubscriptionPlan{
				Name:         planName,
				Price:        planPrice,
				DurationDays: planDays,
				PromoCode:    service.NormalizePromoCode(planPromo),
				IsActive:     !planInactive,
			}
			if err := s.plans.Create(cmd.Context(), plan); err != nil {
				return err
			}
			fmt.Printf("Created plan %d (%s)\n", plan.ID, plan.Name)
			return nil
		})
	},
}

func init() {
	plansCmd.PersistentFlags().StringVar(&planPromo, "promo", "", "promo code filter, or the code of a new plan")
	plansAddCmd.Flags().StringVar(&planName, "name", "", "display name")
	plansAddCmd.Flags().Int64Var(&planPrice, "price", 0, "price in Telegram Stars; 0 makes the plan a free trial")
	plansAddCmd.Flags().IntVar(&planDays, "days", 0, "premium days granted")
	plansAddCmd.Flags().BoolVar(&planInactive, "inactive", false, "create the plan disabled")
	plansCmd.AddCommand(plansAddCmd)
}
