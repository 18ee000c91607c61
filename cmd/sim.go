package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/encodeous/rplof/core"
	"github.com/encodeous/rplof/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var simCmd = &cobra.Command{
	Use:   "sim [scenario.yaml]",
	Short: "Replay a scenario through the routing engine and print the resulting state",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sc, err := core.LoadScenario(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		level := slog.LevelInfo
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}
		logPath, _ := cmd.Flags().GetString("log-path")
		if logPath != "" {
			sc.Node.LogPath = logPath
		}
		logger, err := core.NewLogger(sc.Node.Id, sc.Node.LogPath, level)
		if err != nil {
			panic(err)
		}
		core.SetupDebugging()

		var traceCh chan any
		printed := make(chan struct{})
		if ok, _ := cmd.Flags().GetBool("trace"); ok {
			traceCh = make(chan any, 256)
			go func() {
				defer close(printed)
				for ev := range traceCh {
					switch ev := ev.(type) {
					case core.TraceEvent:
						fmt.Println(ev.String())
					case core.TraceFlushed:
						return
					}
				}
			}()
		} else {
			close(printed)
		}

		rep, err := core.RunScenario(sc, logger, traceCh)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		<-printed

		out, err := yaml.Marshal(rep)
		if err != nil {
			panic(err)
		}
		fmt.Print(string(out))
	},
	GroupID: "of",
}

func init() {
	rootCmd.AddCommand(simCmd)

	simCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	simCmd.Flags().BoolP("trace", "t", false, "Print every router event")
	simCmd.Flags().String("log-path", "", "Also write logs to this file")
	simCmd.Flags().BoolVar(&state.DBG_log_samples, "lsamples", false, "Log every latency sample")
	simCmd.Flags().BoolVar(&state.DBG_debug, "debug", false, "Serve pprof and metrics on "+state.DebugAddr)
}
