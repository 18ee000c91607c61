package cmd

import (
	"fmt"
	"os"

	"github.com/encodeous/rplof/core"
	"github.com/encodeous/rplof/state"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively create a node configuration",
	Run: func(cmd *cobra.Command, args []string) {
		id := promptDefaultStr("node id", "node1", state.NameValidator)
		addr := promptLinkAddr("link address", "00:12:4b:00:00:00:00:01")
		of := promptSelect("objective function", core.Objectives(), state.DefaultObjective)

		nodeCfg := state.NodeCfg{
			Id:        state.NodeId(id),
			Addr:      addr,
			Objective: state.ObjectiveCfg{Name: of},
		}
		nodeCfg.ApplyDefaults()
		err := state.NodeConfigValidator(&nodeCfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid node config: %v\n", err)
			os.Exit(1)
		}

		out, err := yaml.Marshal(&nodeCfg)
		if err != nil {
			panic(err)
		}
		path := safeSaveFile(cmd.Flag("output").Value.String(), "node config")
		err = os.WriteFile(path, out, 0600)
		if err != nil {
			panic(err)
		}
		fmt.Printf("Wrote node config to %s\n", path)
	},
	GroupID: "init",
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the default configuration of an objective function",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := state.ObjectiveCfg{Name: cmd.Flag("of").Value.String()}
		cfg.ApplyDefaults()
		if _, err := core.NewObjective(cfg, state.NewSystemClock(), discardLogger()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		out, err := yaml.Marshal(&cfg)
		if err != nil {
			panic(err)
		}
		fmt.Print(string(out))
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)

	initCmd.Flags().StringP("output", "o", "node.yaml", "where to write the node config")
	configCmd.Flags().String("of", state.DefaultObjective, "objective function name")
}
