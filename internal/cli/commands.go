package cli

import (
	"github.com/spf13/cobra"

	"github.com/contest-leaderboard/internal/domain"
	"github.com/contest-leaderboard/internal/kafka"
)

func newCreateCommand(opts *RootOptions) *cobra.Command {
	var req domain.CreateContestRequest

	cmd := &cobra.Command{
		Use:     "create <name>",
		Short:   "Create a contest with a random problem set",
		Example: `  contestctl create "Friday Round" --duration 2h --by alice --count 5 --min 1200 --max 1800`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			return send(opts, cmd, kafka.CreateContest{CreateContestRequest: req})
		},
	}

	cmd.Flags().StringVar(&req.Duration, "duration", "1h", "contest duration, e.g. 90m, 2h, 1d")
	cmd.Flags().StringVar(&req.CreatedBy, "by", "", "id of the creating user")
	cmd.Flags().IntVar(&req.Count, "count", 5, "number of problems")
	cmd.Flags().IntVar(&req.MinRating, "min", 800, "minimum problem rating")
	cmd.Flags().IntVar(&req.MaxRating, "max", 3500, "maximum problem rating")
	_ = cmd.MarkFlagRequired("by")

	return cmd
}

func newJoinCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join <contest-id> <user-id>",
		Short: "Join a contest that has not started yet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseContestID(args[0])
			if err != nil {
				return err
			}
			return send(opts, cmd, kafka.JoinContest{ContestID: id, UserID: args[1]})
		},
	}
}

func newLeaveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "leave <contest-id> <user-id>",
		Short: "Leave a contest that has not started yet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseContestID(args[0])
			if err != nil {
				return err
			}
			return send(opts, cmd, kafka.LeaveContest{ContestID: id, UserID: args[1]})
		},
	}
}

// newContestCommand builds a command whose only argument is a contest id
func newContestCommand(opts *RootOptions, use, short string, build func(int64) kafka.Command) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <contest-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseContestID(args[0])
			if err != nil {
				return err
			}
			return send(opts, cmd, build(id))
		},
	}
}

func newActivateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <contest-id> <channel-id>",
		Short: "Post a live leaderboard for a running contest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseContestID(args[0])
			if err != nil {
				return err
			}
			return send(opts, cmd, kafka.ActivateLeaderboard{ContestID: id, ChannelID: args[1]})
		},
	}
}

func newLinkCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "link <user-id> <handle>",
		Short: "Link a user to their judge handle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(opts, cmd, kafka.LinkHandle{UserID: args[0], Handle: args[1]})
		},
	}
}
