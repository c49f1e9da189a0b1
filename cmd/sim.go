package cmd

import (
	"fmt"
	"log/slog"

	"github.com/encodeous/dvr/core"
	"github.com/encodeous/dvr/netsim"
	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
	"github.com/spf13/cobra"
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Simulate the network",
	Long:  `Runs the network in a deterministic discrete-event simulation and prints the final state of every router.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := state.LoadNetworkConfig(configPath)
		if err != nil {
			panic(err)
		}
		level := slog.LevelInfo
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}
		logger, err := core.NewLogger("sim", level, cfg.LogPath)
		if err != nil {
			panic(err)
		}

		n, err := netsim.FromConfig(*cfg, logger)
		if err != nil {
			panic(err)
		}
		until, _ := cmd.Flags().GetInt64("until")
		if until == 0 {
			until = cfg.Duration
		}
		n.RunUntil(until)

		for _, id := range n.Routers() {
			fmt.Println(n.Router(id))
		}
		for _, t := range n.Traces {
			fmt.Println(t)
		}
		fmt.Printf("t=%d ms, routing packets: %d, data packets: %d, lost in flight: %d, converged: %t\n",
			n.Now, n.Sent[protocol.KindRouting], n.Sent[protocol.KindData], n.Lost, n.Converged())
	},
	GroupID: "dvr",
}

func init() {
	rootCmd.AddCommand(simCmd)
	simCmd.Flags().BoolP("verbose", "v", false, "Log every router event")
	simCmd.Flags().Int64P("until", "u", 0, "Virtual time to stop at in ms, overrides duration_ms")
}
