package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/streamwatch/internal/api"
	"github.com/rickgao/streamwatch/internal/connection"
	"github.com/rickgao/streamwatch/internal/eventsub"
)

func newReconcileCmd(flags *globalFlags) *cobra.Command {
	var (
		once      bool
		maxCycles int
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile EventSub subscriptions against followed channels",
		Long:  "Runs pool reconciliation cycles. With --once it converges (stops when a cycle creates no session), prints the pool and exits; otherwise it keeps reconciling until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(flags)
			if err != nil {
				return err
			}
			a.logStart("reconcile")

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			manager := a.newManager()
			// Nothing consumes envelopes here; drain so sessions never block.
			go func() {
				for range manager.Messages() {
				}
			}()

			if !once {
				manager.Start(ctx)
				<-ctx.Done()
				return stopAll(a.logger, shutdownTimeout, manager)
			}

			results := converge(ctx, manager, maxCycles, a.cfg.Reconciler.RetryInterval)
			printCycles(cmd.OutOrStdout(), results)
			printSessions(cmd.OutOrStdout(), manager.Sessions())

			subs, err := a.client.GetSubscriptions(ctx, api.GetSubscriptionsOptions{Type: eventsub.SubscriptionStreamOnline})
			if err != nil {
				a.logger.Warn("failed to list subscriptions", "error", err)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "server: %d subscriptions, cost %d/%d\n",
					subs.Total, subs.TotalCost, subs.MaxTotalCost)
			}
			return stopAll(a.logger, shutdownTimeout, manager)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "converge once, print the pool and exit")
	cmd.Flags().IntVar(&maxCycles, "max-cycles", 20, "cycle limit for --once")

	return cmd
}

// converge runs cycles until one creates no session, maxCycles is reached,
// or ctx is done. Sessions need time to be welcomed, so cycles that created
// one are followed by a retryInterval wait.
func converge(ctx context.Context, m connection.Manager, maxCycles int, retryInterval time.Duration) []connection.CycleResult {
	var results []connection.CycleResult
	for range maxCycles {
		result := m.Reconcile(ctx)
		results = append(results, result)
		if !result.SessionCreated || ctx.Err() != nil {
			break
		}

		select {
		case <-ctx.Done():
			return results
		case <-time.After(retryInterval):
		}
	}
	return results
}

func printCycles(w io.Writer, results []connection.CycleResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CYCLE\tDESIRED\tCURRENT\tADDED\tREMOVED\tFAILED\tNEW SESSION\tERROR")
	for i, r := range results {
		errText := "-"
		if r.Err != nil {
			errText = r.Err.Error()
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%t\t%s\n",
			i+1, r.Desired, r.Current, r.Added, r.Removed,
			r.FailedAdds+r.FailedRemovals, r.SessionCreated, errText)
	}
	tw.Flush()
}

func printSessions(w io.Writer, sessions []connection.Info) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSESSION\tSTATE\tSUBS\tCOST")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d/%d\n",
			s.ID, s.SessionID, s.State, s.Subscriptions, s.TotalCost, s.MaxCost)
	}
	tw.Flush()
}
