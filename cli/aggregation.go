package cli

import (
	"encoding/json"
	"os"

	"github.com/absmach/hyperfold/pkg/sdk"
	"github.com/spf13/cobra"
)

func NewAggregationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregation [status|submit|gradients]",
		Short: "Aggregation manager",
		Long:  `Inspect partial aggregations, submit a local gradient or list completed ones.`,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Aggregation status",
		Long:  `Show the contributors and batch totals of every layer in the current epoch.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			status, err := hsdk.AggregationStatus()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, status)
		},
	}

	submitCmd := &cobra.Command{
		Use:   "submit <gradient.json>",
		Short: "Submit gradient",
		Long: `Submit the gradient in a JSON file to a worker.

Example file:
  {"epoch": 0, "layer_index": 0, "weight_gradient": [0.1, 0.2], "bias_gradient": [0.3], "batch_size": 32}`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			var g sdk.Gradient
			if err := json.Unmarshal(data, &g); err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			res, err := hsdk.SubmitGradient(g)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, res)
		},
	}

	gradientsCmd := &cobra.Command{
		Use:   "gradients <epoch>",
		Short: "Completed gradients",
		Long:  `List the layer gradients a parameter server completed in an epoch.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			epoch, err := parseUint(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			page, err := hsdk.ListGradients(epoch)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	cmd.AddCommand(statusCmd)
	cmd.AddCommand(submitCmd)
	cmd.AddCommand(gradientsCmd)

	return cmd
}

func NewEpochsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "epochs [advance]",
		Short: "Epochs manager",
		Long:  `Advance the epoch of a node.`,
	}

	advanceCmd := &cobra.Command{
		Use:   "advance <epoch>",
		Short: "Advance epoch",
		Long:  `Advance the node to the given epoch. Lower epochs are ignored.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			epoch, err := parseUint(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			current, err := hsdk.AdvanceEpoch(epoch)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, map[string]uint64{"epoch": current})
		},
	}

	cmd.AddCommand(advanceCmd)

	return cmd
}
