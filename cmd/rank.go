package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/encodeous/rplof/core"
	"github.com/encodeous/rplof/state"
	"github.com/spf13/cobra"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func parseUint16(name, s string) uint16 {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s %q: %v\n", name, s, err)
		os.Exit(1)
	}
	return uint16(v)
}

var rankCmd = &cobra.Command{
	Use:   "rank [parent-rank] [link-metric]",
	Short: "Compute the rank of a node from its parent's rank and the link metric towards it",
	Long: `Compute the rank of a node from its parent's rank and the link metric towards it.
The link metric is an ETX scaled by 128. A parent rank of 0 means there is no parent.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		parentRank := parseUint16("parent rank", args[0])
		linkMetric := parseUint16("link metric", args[1])
		base, _ := cmd.Flags().GetUint16("base")

		cfg := state.ObjectiveCfg{Name: cmd.Flag("of").Value.String()}
		of, err := core.NewObjective(cfg, state.NewSystemClock(), discardLogger())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		var p *state.Parent
		if parentRank != 0 {
			p = &state.Parent{Rank: state.Rank(parentRank), LinkMetric: linkMetric}
		}
		fmt.Println(of.CalculateRank(p, state.Rank(base)))
	},
	GroupID: "of",
}

func init() {
	rootCmd.AddCommand(rankCmd)

	rankCmd.Flags().Uint16("base", 0, "base rank, 0 uses the parent's rank")
	rankCmd.Flags().String("of", state.DefaultObjective, "objective function name")
}
