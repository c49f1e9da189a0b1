package cmd

import (
	"fmt"
	"os"

	"github.com/encodeous/dvr/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample network description",
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(configPath); err == nil && !force {
			fmt.Printf("%s already exists, use --force to overwrite it\n", configPath)
			os.Exit(-1)
		}

		out, err := yaml.Marshal(state.SampleNetwork())
		if err != nil {
			panic(err)
		}
		err = os.WriteFile(configPath, out, 0600)
		if err != nil {
			panic(err)
		}
		fmt.Printf("Wrote %s\n", configPath)
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")
}
