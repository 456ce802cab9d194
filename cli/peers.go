package cli

import (
	"github.com/absmach/hyperfold/pkg/sdk"
	"github.com/spf13/cobra"
)

func NewPeersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peers [list|add]",
		Short: "Peers manager",
		Long:  `List the live peers of a node or register a new one.`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List peers",
		Long:  `List the live peers known to the node.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			page, err := hsdk.ListPeers()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <id> <host:port> [worker|ps]",
		Short: "Add peer",
		Long: `Register a peer with the node. The role defaults to parameter server.

Examples:
  hyperfold-cli peers add ps-a 10.0.0.1:7000
  hyperfold-cli peers add worker-7 10.0.0.7:7000 worker`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 2 || len(args) > 3 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			role := "parameter_server"
			if len(args) == 3 {
				role = args[2]
			}

			if err := hsdk.AddPeer(sdk.Peer{ID: args[0], Address: args[1], Role: role}); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd)
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(addCmd)

	return cmd
}

func NewTopologyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Show topology",
		Long:  `Show the parent and children of the node in the aggregation tree.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			topo, err := hsdk.Topology()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, topo)
		},
	}
}

func NewInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show node info",
		Long:  `Show the identity, role and epoch of the node.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			info, err := hsdk.Info()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, info)
		},
	}
}
