package main

import (
	"log"

	"github.com/absmach/hyperfold/cli"
	"github.com/absmach/hyperfold/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	nodeURL         = "http://localhost:9010"
	tlsVerification = false
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hyperfold-cli",
		Short: "Hyperfold CLI",
		Long:  `Hyperfold CLI is a command line interface for inspecting and driving Hyperfold nodes.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			sdkConf := sdk.Config{
				NodeURL:         nodeURL,
				TLSVerification: tlsVerification,
			}
			s := sdk.NewSDK(sdkConf)
			cli.SetSDK(s)
		},
	}

	rootCmd.AddCommand(cli.NewInfoCmd())
	rootCmd.AddCommand(cli.NewPeersCmd())
	rootCmd.AddCommand(cli.NewTopologyCmd())
	rootCmd.AddCommand(cli.NewAggregationCmd())
	rootCmd.AddCommand(cli.NewEpochsCmd())
	rootCmd.AddCommand(cli.NewSnapshotsCmd())

	rootCmd.PersistentFlags().StringVarP(
		&nodeURL,
		"node-url",
		"u",
		nodeURL,
		"Node HTTP API URL",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&tlsVerification,
		"tls-verification",
		"t",
		tlsVerification,
		"Verify TLS certificates",
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
