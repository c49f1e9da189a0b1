package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/encodeous/dvr/core"
	"github.com/encodeous/dvr/state"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the network live",
	Long:  `Runs every router of the network in this process, one goroutine each, until the duration elapses or Ctrl+C.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := state.LoadNetworkConfig(configPath)
		if err != nil {
			panic(err)
		}

		level := slog.LevelInfo
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}
		logPath, _ := cmd.Flags().GetString("log")
		if logPath == "" {
			logPath = cfg.LogPath
		}
		logger, err := core.NewLogger("dvr", level, logPath)
		if err != nil {
			panic(err)
		}

		if addr, _ := cmd.Flags().GetString("debug"); addr != "" {
			core.ServeDebug(addr, logger)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		duration, _ := cmd.Flags().GetDuration("duration")
		if duration == 0 && cfg.Duration != 0 {
			duration = time.Duration(cfg.Duration) * time.Millisecond
		}
		if duration != 0 {
			var c context.CancelFunc
			ctx, c = context.WithTimeout(ctx, duration)
			defer c()
		}

		f, err := core.Start(ctx, *cfg, logger)
		if err != nil {
			panic(err)
		}

		watchDone := make(chan struct{})
		if ok, _ := cmd.Flags().GetBool("watch"); ok {
			events := make(chan any, state.EventBufferSize)
			f.Events.Register(events)
			go func() {
				for {
					select {
					case ev := <-events:
						if re := ev.(core.RouteEvent); re.Event == core.RouteChanged || re.Event.IsWarning() {
							fmt.Println(re)
						}
					case <-watchDone:
						return
					}
				}
			}()
		}

		logger.Info("network is running. To gracefully exit, send SIGINT or Ctrl+C.")
		<-ctx.Done()
		f.Stop(errors.New("shutting down"))
		dumps := f.Wait()
		close(watchDone)

		for _, id := range slices.Sorted(maps.Keys(dumps)) {
			fmt.Println(dumps[id])
		}
	},
	GroupID: "dvr",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().BoolP("watch", "w", false, "Print route changes and warnings as they happen")
	runCmd.Flags().DurationP("duration", "d", 0, "Stop after this long, overrides duration_ms")
	runCmd.Flags().StringP("log", "l", "", "Also write logs to this file, overrides log_path")
	runCmd.Flags().String("debug", "", "Serve expvar and /debug/metrics on this address")
}
