package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/streamwatch/internal/api"
)

func newFollowedCmd(flags *globalFlags) *cobra.Command {
	var liveOnly bool

	cmd := &cobra.Command{
		Use:   "followed",
		Short: "List followed channels and which are live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			userID, err := a.source.UserID(ctx)
			if err != nil {
				return err
			}

			streams, err := a.client.GetAllFollowedStreams(ctx, userID)
			if err != nil {
				return fmt.Errorf("get followed streams: %w", err)
			}

			var channels []api.FollowedChannel
			if !liveOnly {
				channels, err = a.client.GetAllFollowedChannels(ctx, userID)
				if err != nil {
					return fmt.Errorf("get followed channels: %w", err)
				}
			}

			printFollowed(cmd.OutOrStdout(), channels, streams, time.Now())
			return nil
		},
	}

	cmd.Flags().BoolVar(&liveOnly, "live", false, "only list live channels")
	return cmd
}

// printFollowed lists live streams first, then offline channels.
func printFollowed(w io.Writer, channels []api.FollowedChannel, streams []api.Stream, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tSTATUS\tUPTIME\tGAME\tTITLE")

	live := make(map[string]bool, len(streams))
	for _, s := range streams {
		live[s.UserID] = true
		fmt.Fprintf(tw, "%s\tlive\t%s\t%s\t%s\n",
			s.UserName, now.Sub(s.StartedAt).Truncate(time.Minute), s.GameName, s.Title)
	}
	for _, ch := range channels {
		if live[ch.BroadcasterID] {
			continue
		}
		fmt.Fprintf(tw, "%s\toffline\t-\t-\t-\n", ch.BroadcasterName)
	}
	tw.Flush()
}
