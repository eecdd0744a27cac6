package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jbaileyhandle/quarry/pkg/engine"
)

// benchCmd measures alloc/release throughput against one context's
// pool. A query pass pre-sizes the pool first so the measured loop
// exercises the constant-time reuse path, not growth.
func benchCmd() *cli.Command {
	var (
		sizesArg string
		warmup   int64
		cycles   int64
	)

	flags := append([]cli.Flag{}, commonDeviceFlags()...)
	flags = append(flags, loggingFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "sizes",
			Aliases:     []string{"s"},
			Usage:       "comma-separated sub-buffer sizes per cycle",
			Value:       "4096,65536",
			Destination: &sizesArg,
		},
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup cycles",
			Value:       100,
			Destination: &warmup,
		},
		&cli.Int64Flag{
			Name:        "cycles",
			Aliases:     []string{"n"},
			Usage:       "number of measured cycles",
			Value:       100000,
			Destination: &cycles,
		},
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Benchmark scratch alloc/release cycles",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := LoadConfig()
			applyCommonConfig(cmd, cfg)
			log := newLog()

			requests, err := parseSizeRequests([]string{sizesArg})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			sizes := requests[0]

			ectx, err := engine.New(
				engine.WithDevice(deviceKind, int(deviceIndex)),
				engine.WithLogger(log),
			)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: create context: %v", err), 1)
			}
			defer func() { _ = ectx.Close() }()

			// Pre-size the pool from a query pass so the measured loop
			// never grows.
			if st := ectx.StartSizeQuery(); st != engine.StatusSuccess {
				return cli.Exit(fmt.Sprintf("error: start size query: %s", st), 1)
			}
			_ = ectx.SetOptimalSize(sizes...)
			required, _ := ectx.StopSizeQuery()
			if cfg.PoolSize != nil && *cfg.PoolSize > required {
				required = *cfg.PoolSize
			}
			if err := ectx.SetDeviceMemorySize(required); err != nil {
				return cli.Exit(fmt.Sprintf("error: size pool: %v", err), 1)
			}

			cycle := func() error {
				mem, err := ectx.Malloc(sizes...)
				if err != nil {
					return err
				}
				mem.Release()
				return nil
			}

			for i := int64(0); i < warmup; i++ {
				if err := cycle(); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup cycle %d: %v", i+1, err), 1)
				}
			}

			startEvent, stopEvent := ectx.Events()
			stream := ectx.Stream()
			if err := startEvent.Record(stream); err != nil {
				return cli.Exit(fmt.Sprintf("error: record start event: %v", err), 1)
			}
			wallStart := time.Now()
			for i := int64(0); i < cycles; i++ {
				if err := cycle(); err != nil {
					return cli.Exit(fmt.Sprintf("error: cycle %d: %v", i+1, err), 1)
				}
			}
			wall := time.Since(wallStart)
			if err := stopEvent.Record(stream); err != nil {
				return cli.Exit(fmt.Sprintf("error: record stop event: %v", err), 1)
			}
			span, err := stopEvent.Since(startEvent)
			if err != nil {
				span = wall
			}

			stats := ectx.MemoryStats()
			fmt.Println("=== Quarry Bench ===")
			fmt.Printf("Device:     %s\n", ectx.Device().Name)
			fmt.Printf("CPUs:       %d\n", runtime.NumCPU())
			fmt.Printf("Sizes:      %v\n", sizes)
			fmt.Printf("Pool:       %d bytes\n", stats.PoolSize)
			fmt.Printf("Cycles:     %d\n", cycles)
			fmt.Printf("Wall:       %s\n", wall.Round(time.Microsecond))
			fmt.Printf("Stream:     %s\n", span.Round(time.Microsecond))
			if wall > 0 {
				fmt.Printf("Throughput: %.0f cycles/s\n", float64(cycles)/wall.Seconds())
			}
			fmt.Printf("Grows:      %d (peak request %d bytes)\n", stats.Grows, stats.PeakRequest)
			return nil
		},
	}
}
