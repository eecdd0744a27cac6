package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/jbaileyhandle/quarry/pkg/engine"
)

// probeCmd runs one full size-query pass without allocating anything:
// each --request is one operation's comma-separated sub-buffer sizes,
// and the output is the pool size a real run would need.
func probeCmd() *cli.Command {
	var asJSON bool

	flags := append([]cli.Flag{}, commonDeviceFlags()...)
	flags = append(flags, loggingFlags()...)
	flags = append(flags,
		&cli.StringSliceFlag{
			Name:    "request",
			Aliases: []string{"r"},
			Usage:   "comma-separated sub-buffer sizes for one operation (repeatable)",
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "emit the result as JSON",
			Destination: &asJSON,
		},
	)

	return &cli.Command{
		Name:  "probe",
		Usage: "Compute the pool size a workload's scratch requests need",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyCommonConfig(cmd, LoadConfig())
			log := newLog()

			rawRequests := cmd.StringSlice("request")
			if len(rawRequests) == 0 {
				return cli.Exit("error: at least one --request is required", 1)
			}
			requests, err := parseSizeRequests(rawRequests)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			ectx, err := engine.New(
				engine.WithDevice(deviceKind, int(deviceIndex)),
				engine.WithLogger(log),
			)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: create context: %v", err), 1)
			}
			defer func() { _ = ectx.Close() }()

			if st := ectx.StartSizeQuery(); st != engine.StatusSuccess {
				return cli.Exit(fmt.Sprintf("error: start size query: %s", st), 1)
			}
			statuses := make([]string, 0, len(requests))
			for _, sizes := range requests {
				st := ectx.SetOptimalSize(sizes...)
				if st != engine.StatusSizeIncreased && st != engine.StatusSizeUnchanged {
					return cli.Exit(fmt.Sprintf("error: register sizes %v: %s", sizes, st), 1)
				}
				statuses = append(statuses, st.String())
			}
			required, st := ectx.StopSizeQuery()
			if st != engine.StatusSuccess {
				return cli.Exit(fmt.Sprintf("error: stop size query: %s", st), 1)
			}

			if asJSON {
				out, err := json.MarshalIndent(map[string]any{
					"device":        ectx.Device(),
					"required_size": required,
					"statuses":      statuses,
				}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("Device:        %s\n", ectx.Device().Name)
			fmt.Printf("Requests:      %d\n", len(requests))
			for i, sizes := range requests {
				fmt.Printf("  %-3d %v -> %s\n", i+1, sizes, statuses[i])
			}
			fmt.Printf("Required pool: %d bytes\n", required)
			return nil
		},
	}
}

// parseSizeRequests turns ["100,200", "4096"] into [[100 200] [4096]].
func parseSizeRequests(raw []string) ([][]int64, error) {
	requests := make([][]int64, 0, len(raw))
	for _, r := range raw {
		var sizes []int64
		for _, field := range strings.Split(r, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			n, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid size %q in request %q", field, r)
			}
			if n < 0 {
				return nil, fmt.Errorf("negative size %d in request %q", n, r)
			}
			sizes = append(sizes, n)
		}
		if len(sizes) == 0 {
			return nil, fmt.Errorf("request %q contains no sizes", r)
		}
		requests = append(requests, sizes)
	}
	return requests, nil
}
