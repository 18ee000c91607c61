package cmd

import (
	"os"

	"github.com/encodeous/rplof/state"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rplof",
	Short: "RPL latency objective function toolkit",
	Long: `rplof implements the latency objective function of a low-power mesh routing protocol.
It replays scenarios through a reference routing engine and inspects ranks and metric containers.`,
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
		Title: "Configuration",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "of",
		Title: "Objective Function Commands",
	})
	rootCmd.PersistentFlags().BoolVar(&state.DBG_assert, "assert", state.DBG_assert, "panic on objective function contract violations")
}
