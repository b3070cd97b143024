package main

import (
	"fmt"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/becauseimclever/budgetexperiment/internal/cli"
	"github.com/becauseimclever/budgetexperiment/internal/common"
	"github.com/becauseimclever/budgetexperiment/internal/recurrence"
	"github.com/becauseimclever/budgetexperiment/internal/service"
)

func realizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realize [rule-id scheduled-date]",
		Short: "Turn projected occurrences into concrete transactions",
		Long: `Materialize a single projected occurrence as a persisted transaction
(or transfer pair), or sweep every past-due occurrence with --past-due.

Each occurrence realizes independently: in a sweep, one failure never
aborts the rest.`,
		RunE: runRealize,
	}

	cmd.Flags().Bool("past-due", false, "realize every unrealized occurrence whose date has elapsed")
	cmd.Flags().Bool("list", false, "with --past-due, list without realizing")
	cmd.Flags().String("amount", "", "override the occurrence amount")
	cmd.Flags().String("description", "", "override the occurrence description")

	return cmd
}

func runRealize(cmd *cobra.Command, args []string) error {
	pastDue, _ := cmd.Flags().GetBool("past-due")

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	realizer := recurrence.NewRealizer(store, service.SystemClock{})

	if pastDue {
		listOnly, _ := cmd.Flags().GetBool("list")
		return runRealizePastDue(cmd, realizer, listOnly)
	}

	if len(args) != 2 {
		return fmt.Errorf("expected arguments: rule-id scheduled-date (or use --past-due)")
	}
	return runRealizeSingle(cmd, realizer, args)
}

func runRealizeSingle(cmd *cobra.Command, realizer *recurrence.Realizer, args []string) error {
	ruleID, err := parseRuleID(args[0])
	if err != nil {
		return err
	}
	scheduledDate, err := parseDate(args[1])
	if err != nil {
		return err
	}

	var overrideAmount *decimal.Decimal
	if arg, _ := cmd.Flags().GetString("amount"); arg != "" {
		amount, err := parseAmount(arg)
		if err != nil {
			return err
		}
		overrideAmount = &amount
	}
	var overrideDescription *string
	if arg, _ := cmd.Flags().GetString("description"); arg != "" {
		overrideDescription = &arg
	}

	result, err := realizer.Realize(cmd.Context(), ruleID, scheduledDate, overrideAmount, overrideDescription)
	if err != nil {
		return err
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Realized rule %d on %s: %s %s (%s)",
		ruleID,
		result.EffectiveDate.Format(dateLayout),
		result.Amount.StringFixed(2),
		result.Description,
		strings.Join(result.TransactionIDs, ", "))))

	return nil
}

func runRealizePastDue(cmd *cobra.Command, realizer *recurrence.Realizer, listOnly bool) error {
	ctx := cmd.Context()

	due, err := realizer.PastDue(ctx)
	if err != nil {
		return fmt.Errorf("failed to compute past-due occurrences: %w", err)
	}
	if len(due) == 0 {
		fmt.Println(cli.FormatSuccess("Nothing is past due."))
		return nil
	}

	if listOnly {
		fmt.Println(cli.FormatTitle("Past-due occurrences"))
		fmt.Println(cli.RenderOccurrenceTable(due))
		return nil
	}

	items := make([]recurrence.RealizeItem, len(due))
	for i, occ := range due {
		items[i] = recurrence.RealizeItem{RuleID: occ.RuleID, ScheduledDate: occ.ScheduledDate}
	}

	bar := progressbar.NewOptions(len(items),
		progressbar.OptionSetDescription("Realizing past-due occurrences"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	outcomes := make([]recurrence.RealizeOutcome, 0, len(items))
	for _, item := range items {
		result, err := realizer.Realize(ctx, item.RuleID, item.ScheduledDate, nil, nil)
		outcomes = append(outcomes, recurrence.RealizeOutcome{Item: item, Result: result, Err: err})
		_ = bar.Add(1)
	}

	var failed int
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failed++
			common.LogError(outcome.Err, "failed to realize occurrence", common.Fields{
				"rule_id":        outcome.Item.RuleID,
				"scheduled_date": outcome.Item.ScheduledDate.Format(dateLayout),
			})
			fmt.Println(cli.FormatError(fmt.Sprintf("rule %d on %s: %v",
				outcome.Item.RuleID,
				outcome.Item.ScheduledDate.Format(dateLayout),
				outcome.Err)))
		}
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Realized %d of %d past-due occurrence(s)",
		len(outcomes)-failed, len(outcomes))))
	if failed > 0 {
		return fmt.Errorf("%d occurrence(s) failed to realize", failed)
	}
	return nil
}
