package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pharmhunter/internal/model"
	"github.com/sells-group/pharmhunter/internal/planner"
)

var (
	planParams paramFlags
	planJSON   bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview the queries and domains each discovery round would use",
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := planParams.params()
		if err != nil {
			return err
		}
		p, err := loadPlanner()
		if err != nil {
			return err
		}

		rounds := planRounds(p, params)
		if planJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(rounds); err != nil {
				return eris.Wrap(err, "encode plan")
			}
			return nil
		}
		formatPlan(cmd.OutOrStdout(), rounds)
		return nil
	},
}

func planRounds(p *planner.Planner, params model.HuntParams) []planner.RoundPlan {
	rounds := make([]planner.RoundPlan, 0, params.MaxRounds)
	for i := 1; i <= params.MaxRounds; i++ {
		rounds = append(rounds, p.Round(i, params))
	}
	return rounds
}

func init() {
	planParams.register(planCmd.Flags())
	planCmd.Flags().BoolVar(&planJSON, "json", false, "print the plan as JSON")
	rootCmd.AddCommand(planCmd)
}
