package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/becauseimclever/budgetexperiment/internal/cli"
	"github.com/becauseimclever/budgetexperiment/internal/config"
	"github.com/becauseimclever/budgetexperiment/internal/model"
	"github.com/becauseimclever/budgetexperiment/internal/reconcile"
	"github.com/becauseimclever/budgetexperiment/internal/recurrence"
	"github.com/becauseimclever/budgetexperiment/internal/service"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Match actual transactions against projected occurrences",
		Long: `Score unmatched transactions against the projected schedule within
amount and date tolerances, then review the resulting suggestions:
accept, reject, link manually, or unlink a previously accepted match.`,
	}

	cmd.AddCommand(reconcileSuggestCmd())
	cmd.AddCommand(reconcilePendingCmd())
	cmd.AddCommand(reconcileAcceptCmd())
	cmd.AddCommand(reconcileRejectCmd())
	cmd.AddCommand(reconcileBulkAcceptCmd())
	cmd.AddCommand(reconcileLinkCmd())
	cmd.AddCommand(reconcileUnlinkCmd())
	cmd.AddCommand(reconcileHistoryCmd())

	return cmd
}

func reconcileSuggestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Generate pending match suggestions for a date window",
		RunE:  runReconcileSuggest,
	}

	cmd.Flags().String("start", "", "window start date (YYYY-MM-DD, required)")
	cmd.Flags().String("end", "", "window end date (YYYY-MM-DD, required)")
	cmd.Flags().String("account", "", "limit to transactions in this account")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

func runReconcileSuggest(cmd *cobra.Command, _ []string) error {
	startArg, _ := cmd.Flags().GetString("start")
	endArg, _ := cmd.Flags().GetString("end")
	accountID, _ := cmd.Flags().GetString("account")

	start, err := parseDate(startArg)
	if err != nil {
		return err
	}
	end, err := parseDate(endArg)
	if err != nil {
		return err
	}
	window := service.DateRange{Start: start, End: end}

	tolerances, err := config.Tolerances()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	transactions, err := store.FindUnmatched(ctx, window, accountID)
	if err != nil {
		return fmt.Errorf("failed to load unmatched transactions: %w", err)
	}

	occurrences, err := projectWindow(cmd, store, window)
	if err != nil {
		return err
	}

	accepted, err := store.ListAcceptedMatches(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accepted matches: %w", err)
	}

	finder := reconcile.NewFinder(tolerances)
	candidates := finder.FindCandidates(transactions, occurrences, accepted)

	manager := reconcile.NewManager(store, service.SystemClock{}, config.MinConfidence())
	created, err := manager.CreateSuggested(ctx, candidates)
	if err != nil {
		return fmt.Errorf("failed to create suggestions: %w", err)
	}

	fmt.Println(cli.FormatTitle("New suggestions"))
	fmt.Println(cli.RenderMatchTable(created))
	return nil
}

// projectWindow expands every rule over the window, realized dates included
// so already-materialized occurrences still participate in matching.
func projectWindow(cmd *cobra.Command, store service.Storage, window service.DateRange) ([]model.ProjectedOccurrence, error) {
	ctx := cmd.Context()

	rules, err := store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	clock := service.SystemClock{}
	projector := recurrence.NewProjector()
	today := clock.Today()

	lists := make([][]model.ProjectedOccurrence, 0, len(rules))
	for _, rule := range rules {
		rec := rule.Recurrence()
		exceptions, err := store.GetExceptions(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load exceptions for rule %d: %w", rec.ID, err)
		}
		realized, err := store.GetRealizedDates(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load realizations for rule %d: %w", rec.ID, err)
		}

		occs, err := projector.Project(rule, exceptions, realized, window, today)
		if err != nil {
			return nil, fmt.Errorf("failed to project rule %d: %w", rec.ID, err)
		}
		if len(occs) > 0 {
			lists = append(lists, occs)
		}
	}

	return recurrence.Merge(lists...), nil
}

func reconcilePendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List pending match suggestions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			manager := reconcile.NewManager(store, service.SystemClock{}, config.MinConfidence())
			pending, err := manager.PendingSuggestions(ctx)
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatTitle("Pending suggestions"))
			fmt.Println(cli.RenderMatchTable(pending))
			return nil
		},
	}
}

func reconcileAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <match-id>",
		Short: "Accept a pending match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, func(manager *reconcile.Manager) error {
				if err := manager.Accept(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Println(cli.FormatSuccess(fmt.Sprintf("Accepted match %s", args[0])))
				return nil
			})
		},
	}
}

func reconcileRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <match-id>",
		Short: "Reject a pending match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, func(manager *reconcile.Manager) error {
				if err := manager.Reject(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Println(cli.FormatSuccess(fmt.Sprintf("Rejected match %s", args[0])))
				return nil
			})
		},
	}
}

func reconcileBulkAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bulk-accept <match-id>...",
		Short: "Accept several pending matches, each independently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, func(manager *reconcile.Manager) error {
				outcomes := manager.BulkAccept(cmd.Context(), args)

				var failed int
				for _, outcome := range outcomes {
					if outcome.Err != nil {
						failed++
						fmt.Println(cli.FormatError(fmt.Sprintf("%s: %v", outcome.MatchID, outcome.Err)))
					} else {
						fmt.Println(cli.FormatSuccess(fmt.Sprintf("Accepted %s", outcome.MatchID)))
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d match(es) failed to accept", failed, len(outcomes))
				}
				return nil
			})
		},
	}
}

func reconcileLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <transaction-id> <rule-id> <scheduled-date>",
		Short: "Manually link a transaction to a projected occurrence",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ruleID, err := parseRuleID(args[1])
			if err != nil {
				return err
			}
			scheduledDate, err := parseDate(args[2])
			if err != nil {
				return err
			}

			return withManager(cmd, func(manager *reconcile.Manager) error {
				ref := model.InstanceRef{RuleID: ruleID, ScheduledDate: scheduledDate}
				match, err := manager.CreateManual(cmd.Context(), args[0], ref)
				if err != nil {
					return err
				}
				fmt.Println(cli.FormatSuccess(fmt.Sprintf("Linked %s to rule %d on %s (match %s)",
					args[0], ruleID, scheduledDate.Format(dateLayout), match.ID)))
				return nil
			})
		},
	}
}

func reconcileUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <match-id>",
		Short: "Detach an accepted match, freeing both sides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, func(manager *reconcile.Manager) error {
				if err := manager.Unlink(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Println(cli.FormatSuccess(fmt.Sprintf("Unlinked match %s", args[0])))
				return nil
			})
		},
	}
}

func reconcileHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <transaction-id>",
		Short: "List every match ever recorded for a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, func(manager *reconcile.Manager) error {
				matches, err := manager.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Println(cli.FormatTitle(fmt.Sprintf("Match history for %s", args[0])))
				fmt.Println(cli.RenderMatchTable(matches))
				return nil
			})
		},
	}
}

// withManager opens storage, builds a match manager, and runs fn against it.
func withManager(cmd *cobra.Command, fn func(*reconcile.Manager) error) error {
	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	manager := reconcile.NewManager(store, service.SystemClock{}, config.MinConfidence())
	return fn(manager)
}
