package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/encodeous/rplof/state"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var mcCmd = &cobra.Command{
	Use:     "mc",
	Short:   "Encode and decode DAG metric containers",
	GroupID: "of",
}

var mcDecodeCmd = &cobra.Command{
	Use:   "decode [hex]",
	Short: "Decode a metric container from hex",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		raw, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(args[0]), " ", ""))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid hex: %v\n", err)
			os.Exit(1)
		}
		mc := state.MetricContainer{}
		err = mc.UnmarshalBinary(raw)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		out, err := yaml.Marshal(&mc)
		if err != nil {
			panic(err)
		}
		fmt.Print(string(out))
		fmt.Println("#", mc.String())
	},
}

var mcEncodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode the metric container a node would advertise",
	Run: func(cmd *cobra.Command, args []string) {
		etx, _ := cmd.Flags().GetUint16("etx")
		latency, _ := cmd.Flags().GetUint16("latency")
		etxOnly, _ := cmd.Flags().GetBool("etx-only")

		mc := state.MetricContainer{
			Type:    state.MCTypeETX,
			Flags:   state.MCFlagP,
			Aggr:    state.MCAggrAdditive,
			Length:  4,
			ETX:     etx,
			Latency: latency,
		}
		if etxOnly {
			mc.Length = 2
			mc.Latency = 0
		}
		raw, err := mc.MarshalBinary()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hex.EncodeToString(raw))
	},
}

func init() {
	rootCmd.AddCommand(mcCmd)
	mcCmd.AddCommand(mcDecodeCmd)
	mcCmd.AddCommand(mcEncodeCmd)

	mcEncodeCmd.Flags().Uint16("etx", 0, "path ETX scaled by 128")
	mcEncodeCmd.Flags().Uint16("latency", 0, "path latency in milliseconds")
	mcEncodeCmd.Flags().Bool("etx-only", false, "encode the 2 byte container used by mrhof")
}
