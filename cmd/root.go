package cmd

import (
	"os"

	"github.com/encodeous/dvr/state"
	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dvr",
	Short: "Distance vector routing playground",
	Long: `dvr runs networks of distance vector routers, either live with one goroutine per router,
or in a deterministic discrete-event simulation.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Configure a network",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "dvr",
		Title: "Run a network",
	})
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", state.NetworkConfigPath, "network description")
}
