package main

import (
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jbaileyhandle/quarry/internal/logger"
)

var (
	deviceKind  string
	deviceIndex int64
	logLevel    string
	logFormat   string
	debug       bool
)

func commonDeviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "device",
			Aliases:     []string{"d"},
			Usage:       "device backend (auto, host, cuda)",
			Value:       "auto",
			Destination: &deviceKind,
		},
		&cli.Int64Flag{
			Name:        "device-index",
			Aliases:     []string{"i"},
			Usage:       "device index",
			Value:       0,
			Destination: &deviceIndex,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func newLog() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	switch logFormat {
	case "json":
		return logger.JSON(os.Stderr, level)
	case "text":
		return logger.Text(os.Stderr, level)
	default:
		return logger.Pretty(os.Stderr, level)
	}
}
