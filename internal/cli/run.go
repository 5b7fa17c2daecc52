package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/frameloop/internal/config"
	"github.com/me/frameloop/internal/debugserver"
	"github.com/me/frameloop/internal/graphfile"
	"github.com/me/frameloop/pkg/model"
	"github.com/me/frameloop/pkg/sched"
)

func newRunCmd() *cobra.Command {
	var (
		flagFrames    int
		flagWorkers   int
		flagTraceDB   string
		flagDebugAddr string
		flagConfig    string
	)

	cmd := &cobra.Command{
		Use:   "run <graph.yaml>",
		Short: "Run a YAML task graph for a number of frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if flagConfig != "" {
				loaded, err := config.Load(flagConfig)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if flagWorkers > 0 {
				cfg.Workers = flagWorkers
			}
			if flagTraceDB != "" {
				cfg.TraceDB = flagTraceDB
			}
			if flagDebugAddr != "" {
				cfg.DebugAddr = flagDebugAddr
			}

			graph, err := graphfile.Load(args[0])
			if err != nil {
				return err
			}

			m, err := sched.New(sched.Config{Workers: cfg.Workers, TraceDB: cfg.TraceDB}, logger)
			if err != nil {
				return err
			}
			defer m.Shutdown()

			// Surface graph-build and task errors as they happen.
			go func() {
				for err := range m.Errs() {
					logger.Error("engine error", "error", err)
				}
			}()

			if cfg.DebugAddr != "" {
				dbg := debugserver.New(cfg.DebugAddr, m, logger)
				go func() {
					if err := dbg.Start(); err != nil {
						logger.Error("debug server", "error", err)
					}
				}()
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					dbg.Shutdown(ctx)
				}()
			}

			if _, err := graphfile.Install(m, graph); err != nil {
				return err
			}

			start := time.Now()
			for frame := 1; frame <= flagFrames; frame++ {
				var watch <-chan any
				if graph.Watch != "" {
					watch, err = m.WatchType(model.Named(graph.Watch))
					if err != nil {
						return err
					}
				}

				m.Run()
				for _, p := range graph.Provide {
					m.ProvideValue(model.Named(p.Name), p.Value)
				}

				if watch != nil {
					v, ok := <-watch
					if !ok {
						return fmt.Errorf("engine shut down before frame %d finished", frame)
					}
					fmt.Printf("frame %d: %s = %v\n", frame, graph.Watch, v)
				}
			}

			stats := m.Stats()
			elapsed := time.Since(start)
			fmt.Printf("ran %s frames, %s dispatches in %s\n",
				humanize.Comma(int64(flagFrames)),
				humanize.Comma(int64(stats.Dispatches)),
				elapsed.Round(time.Millisecond),
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&flagFrames, "frames", 1, "Number of frames to run")
	cmd.Flags().IntVar(&flagWorkers, "workers", 0, "Worker pool size (overrides config)")
	cmd.Flags().StringVar(&flagTraceDB, "trace-db", "", "Record a SQLite execution trace at this path")
	cmd.Flags().StringVar(&flagDebugAddr, "debug-addr", "", "Serve debug stats on this address")
	cmd.Flags().StringVar(&flagConfig, "config", "", "YAML config file")

	return cmd
}
