package cmd

import (
	"fmt"

	"github.com/encodeous/dvr/state"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validate a network description",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := state.LoadNetworkConfig(configPath)
		if err != nil {
			panic(err)
		}
		links, err := cfg.ExpandLinks()
		if err != nil {
			panic(err)
		}
		fmt.Printf("Network is valid: %d routers, %d links, %d events, heartbeat %d ms\n",
			len(cfg.Routers), len(links), len(cfg.Events), cfg.Heartbeat)
		for _, l := range links {
			fmt.Printf("  %s <-> %s, cost %d, latency %d ms\n", l.A, l.B, l.Cost, l.Latency)
		}
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
