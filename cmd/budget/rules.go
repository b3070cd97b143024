package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/becauseimclever/budgetexperiment/internal/cli"
	"github.com/becauseimclever/budgetexperiment/internal/common"
	"github.com/becauseimclever/budgetexperiment/internal/model"
	"github.com/becauseimclever/budgetexperiment/internal/recurrence"
	"github.com/becauseimclever/budgetexperiment/internal/service"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage recurrence rules and their per-date exceptions",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesPauseCmd())
	cmd.AddCommand(rulesResumeCmd())
	cmd.AddCommand(rulesSkipCmd())
	cmd.AddCommand(rulesModifyCmd())
	cmd.AddCommand(rulesUnskipCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all recurrence rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			rules, err := store.ListRules(ctx)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}

			fmt.Println(cli.FormatTitle("Recurrence rules"))
			for _, rule := range rules {
				rec := rule.Recurrence()
				status := "active"
				if rec.IsPaused {
					status = "paused"
				}
				fmt.Printf("  %d  %-11s %s %s x%d from %s [%s] %s\n",
					rec.ID,
					rule.Kind(),
					rule.ScheduledAmount().StringFixed(2),
					rec.Frequency,
					rec.Interval,
					rec.AnchorDate.Format(dateLayout),
					status,
					rule.ScheduledDescription())
			}
			fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("%d rule(s)", len(rules))))
			return nil
		},
	}
}

func rulesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a recurring transaction or transfer rule",
		Long: `Create a recurrence rule. The default kind is a single recurring
transaction against --account; pass --from and --to instead to create
a recurring transfer between two accounts.

End conditions are mutually exclusive: give --end-date or
--max-occurrences, never both.`,
		RunE: runRulesAdd,
	}

	cmd.Flags().String("account", "", "account for a transaction rule")
	cmd.Flags().String("from", "", "source account for a transfer rule")
	cmd.Flags().String("to", "", "destination account for a transfer rule")
	cmd.Flags().String("amount", "", "per-occurrence amount (required)")
	cmd.Flags().String("description", "", "per-occurrence description (required)")
	cmd.Flags().String("frequency", "monthly", "daily, weekly, biweekly, monthly, quarterly, or yearly")
	cmd.Flags().Int("interval", 1, "repeat every N frequency units")
	cmd.Flags().String("anchor", "", "anchor date the schedule counts from (YYYY-MM-DD, required)")
	cmd.Flags().String("end-date", "", "last date the schedule may produce")
	cmd.Flags().Int("max-occurrences", 0, "stop after this many scheduled dates")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("anchor")

	return cmd
}

func runRulesAdd(cmd *cobra.Command, _ []string) error {
	amountArg, _ := cmd.Flags().GetString("amount")
	description, _ := cmd.Flags().GetString("description")
	frequency, _ := cmd.Flags().GetString("frequency")
	interval, _ := cmd.Flags().GetInt("interval")
	anchorArg, _ := cmd.Flags().GetString("anchor")
	endDateArg, _ := cmd.Flags().GetString("end-date")
	maxOccurrences, _ := cmd.Flags().GetInt("max-occurrences")
	account, _ := cmd.Flags().GetString("account")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")

	amount, err := parseAmount(amountArg)
	if err != nil {
		return err
	}
	anchor, err := parseDate(anchorArg)
	if err != nil {
		return err
	}

	rec := model.RecurrenceRule{
		Frequency:  model.Frequency(strings.ToLower(frequency)),
		Interval:   interval,
		AnchorDate: anchor,
	}
	if endDateArg != "" {
		endDate, err := parseDate(endDateArg)
		if err != nil {
			return err
		}
		rec.EndDate = &endDate
	}
	if maxOccurrences > 0 {
		rec.MaxOccurrences = &maxOccurrences
	}

	var rule model.ProjectableRule
	switch {
	case from != "" || to != "":
		rule = &model.TransferRule{
			SourceAccountID:      from,
			DestinationAccountID: to,
			Description:          description,
			Amount:               amount,
			RecurrenceRule:       rec,
		}
	default:
		rule = &model.TransactionRule{
			AccountID:      account,
			Description:    description,
			Amount:         amount,
			RecurrenceRule: rec,
		}
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	id, err := store.SaveRule(ctx, rule)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Created %s rule %d", rule.Kind(), id)))
	return nil
}

func rulesPauseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pause <rule-id>",
		Short: "Pause a rule so it stops producing occurrences",
		Long: `Pause a rule. Projection suppresses every occurrence from the pause
point forward; occurrences before it are unaffected. By default the
pause point is today; override it with --from.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ruleID, err := parseRuleID(args[0])
			if err != nil {
				return err
			}

			pausedAt := service.SystemClock{}.Today()
			if arg, _ := cmd.Flags().GetString("from"); arg != "" {
				pausedAt, err = parseDate(arg)
				if err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			if err := store.SetRulePaused(ctx, ruleID, true, &pausedAt); err != nil {
				return fmt.Errorf("failed to pause rule %d: %w", ruleID, err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Paused rule %d from %s",
				ruleID, pausedAt.Format(dateLayout))))
			return nil
		},
	}

	cmd.Flags().String("from", "", "pause point (YYYY-MM-DD, default today)")
	return cmd
}

func rulesResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <rule-id>",
		Short: "Resume a paused rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ruleID, err := parseRuleID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			if err := store.SetRulePaused(ctx, ruleID, false, nil); err != nil {
				return fmt.Errorf("failed to resume rule %d: %w", ruleID, err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Resumed rule %d", ruleID)))
			return nil
		},
	}
}

func rulesSkipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skip <rule-id> <scheduled-date>",
		Short: "Skip one scheduled occurrence",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ruleID, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			scheduledDate, err := parseDate(args[1])
			if err != nil {
				return err
			}

			exc := model.OccurrenceException{
				RuleID:        ruleID,
				ScheduledDate: scheduledDate,
				Kind:          model.ExceptionSkipped,
			}
			return saveException(cmd, ruleID, &exc,
				fmt.Sprintf("Skipping rule %d on %s", ruleID, scheduledDate.Format(dateLayout)))
		},
	}
}

func rulesModifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modify <rule-id> <scheduled-date>",
		Short: "Override one scheduled occurrence",
		Long: `Override the amount, description, or date of a single scheduled
occurrence without touching the rule itself. At least one override is
required. A moved date must not collide with another occurrence of the
same rule.`,
		Args: cobra.ExactArgs(2),
		RunE: runRulesModify,
	}

	cmd.Flags().String("amount", "", "override amount for this occurrence")
	cmd.Flags().String("description", "", "override description for this occurrence")
	cmd.Flags().String("date", "", "move this occurrence to another date")

	return cmd
}

func runRulesModify(cmd *cobra.Command, args []string) error {
	ruleID, err := parseRuleID(args[0])
	if err != nil {
		return err
	}
	scheduledDate, err := parseDate(args[1])
	if err != nil {
		return err
	}

	exc := model.OccurrenceException{
		RuleID:        ruleID,
		ScheduledDate: scheduledDate,
		Kind:          model.ExceptionModified,
	}

	if arg, _ := cmd.Flags().GetString("amount"); arg != "" {
		var amount decimal.Decimal
		if amount, err = parseAmount(arg); err != nil {
			return err
		}
		exc.OverrideAmount = &amount
	}
	if arg, _ := cmd.Flags().GetString("description"); arg != "" {
		exc.OverrideDescription = &arg
	}
	if arg, _ := cmd.Flags().GetString("date"); arg != "" {
		var overrideDate time.Time
		if overrideDate, err = parseDate(arg); err != nil {
			return err
		}
		exc.OverrideDate = &overrideDate
	}

	return saveException(cmd, ruleID, &exc,
		fmt.Sprintf("Modified rule %d on %s", ruleID, scheduledDate.Format(dateLayout)))
}

// saveException validates an exception against the rule's schedule and
// existing exceptions, then persists it.
func saveException(cmd *cobra.Command, ruleID int64, exc *model.OccurrenceException, successMsg string) error {
	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	rule, err := store.GetRule(ctx, ruleID)
	if err != nil {
		return fmt.Errorf("failed to load rule %d: %w", ruleID, err)
	}
	existing, err := store.GetExceptions(ctx, ruleID)
	if err != nil {
		return fmt.Errorf("failed to load exceptions for rule %d: %w", ruleID, err)
	}

	if err := recurrence.ValidateExceptionOverride(rule, existing, exc); err != nil {
		return common.NewUserError(
			fmt.Sprintf("cannot apply this exception to rule %d", ruleID), err)
	}
	if err := store.SaveExceptionOverride(ctx, exc); err != nil {
		return fmt.Errorf("failed to save exception: %w", err)
	}

	fmt.Println(cli.FormatSuccess(successMsg))
	return nil
}

func rulesUnskipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unskip <rule-id> <scheduled-date>",
		Short: "Remove the exception on one scheduled occurrence",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ruleID, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			scheduledDate, err := parseDate(args[1])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			if err := store.DeleteException(ctx, ruleID, scheduledDate); err != nil {
				return fmt.Errorf("failed to delete exception: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Restored rule %d on %s to its natural schedule",
				ruleID, scheduledDate.Format(dateLayout))))
			return nil
		},
	}
}
