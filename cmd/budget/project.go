package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/becauseimclever/budgetexperiment/internal/cli"
	"github.com/becauseimclever/budgetexperiment/internal/model"
	"github.com/becauseimclever/budgetexperiment/internal/recurrence"
	"github.com/becauseimclever/budgetexperiment/internal/service"
)

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project recurring rules into calendar occurrences",
		Long: `Expand every active recurrence rule (or a single rule) over a date
window, applying per-date skips and modifications, and print the
resulting occurrences in effective-date order.`,
		RunE: runProject,
	}

	cmd.Flags().String("start", "", "window start date (YYYY-MM-DD, required)")
	cmd.Flags().String("end", "", "window end date (YYYY-MM-DD, required)")
	cmd.Flags().Int64("rule", 0, "project only this rule id")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

func runProject(cmd *cobra.Command, _ []string) error {
	startArg, _ := cmd.Flags().GetString("start")
	endArg, _ := cmd.Flags().GetString("end")
	ruleID, _ := cmd.Flags().GetInt64("rule")

	start, err := parseDate(startArg)
	if err != nil {
		return err
	}
	end, err := parseDate(endArg)
	if err != nil {
		return err
	}
	window := service.DateRange{Start: start, End: end}

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	var rules []model.ProjectableRule
	if ruleID != 0 {
		rule, err := store.GetRule(ctx, ruleID)
		if err != nil {
			return fmt.Errorf("failed to load rule %d: %w", ruleID, err)
		}
		rules = append(rules, rule)
	} else {
		rules, err = store.ListRules(ctx)
		if err != nil {
			return fmt.Errorf("failed to list rules: %w", err)
		}
	}

	clock := service.SystemClock{}
	projector := recurrence.NewProjector()
	today := clock.Today()

	lists := make([][]model.ProjectedOccurrence, 0, len(rules))
	for _, rule := range rules {
		rec := rule.Recurrence()
		exceptions, err := store.GetExceptions(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("failed to load exceptions for rule %d: %w", rec.ID, err)
		}
		realized, err := store.GetRealizedDates(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("failed to load realizations for rule %d: %w", rec.ID, err)
		}

		occs, err := projector.Project(rule, exceptions, realized, window, today)
		if err != nil {
			return fmt.Errorf("failed to project rule %d: %w", rec.ID, err)
		}
		if len(occs) > 0 {
			lists = append(lists, occs)
		}
	}

	merged := recurrence.Merge(lists...)

	fmt.Println(cli.FormatTitle(fmt.Sprintf("Projected occurrences %s to %s",
		start.Format(dateLayout), end.Format(dateLayout))))
	fmt.Println(cli.RenderOccurrenceTable(merged))
	fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("%d occurrence(s)", len(merged))))

	return nil
}
