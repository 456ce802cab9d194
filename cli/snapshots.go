package cli

import (
	"github.com/spf13/cobra"
)

func NewSnapshotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots [list|view]",
		Short: "Snapshots manager",
		Long:  `List and view stored parameter snapshots.`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots",
		Long:  `List stored snapshots in epoch order.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			page, err := hsdk.ListSnapshots(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	viewCmd := &cobra.Command{
		Use:   "view <epoch|latest>",
		Short: "View snapshot",
		Long:  `View the snapshot of an epoch, or the newest one.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			if args[0] == "latest" {
				s, err := hsdk.LatestSnapshot()
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, s)

				return
			}

			epoch, err := parseUint(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			s, err := hsdk.GetSnapshot(epoch)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, s)
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(viewCmd)

	cmd.PersistentFlags().Uint64VarP(
		&defOffset,
		"offset",
		"o",
		defOffset,
		"Offset",
	)

	cmd.PersistentFlags().Uint64VarP(
		&defLimit,
		"limit",
		"l",
		defLimit,
		"Limit",
	)

	return cmd
}
