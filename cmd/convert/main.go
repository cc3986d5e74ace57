package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/lancerane/CSVConverter-GCP/internal/config"
	"github.com/lancerane/CSVConverter-GCP/pkg/logger"
)

func newDelimiterFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "delimiter",
		Usage:   "CSV field delimiter (one character)",
		Value:   ",",
		EnvVars: []string{"CSV_DELIMITER"},
	}
}

func newStrictFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:    "strict",
		Usage:   "Fail logs that do not end with an end marker or at a frame boundary",
		EnvVars: []string{"PIPELINE_STRICT"},
	}
}

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "db-url",
		Usage:   "Run history database connection string",
		EnvVars: []string{"DATABASE_URL"},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "convert",
		Usage: "Convert binary sensor logs to CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			logger.SetLevel(c.String("log-level"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "tree",
				Usage:     "Convert every .bin log below a local directory, writing each CSV next to it",
				ArgsUsage: "<dir>",
				Flags: []cli.Flag{
					newDelimiterFlag(),
					newStrictFlag(),
				},
				Action: convertTree,
			},
			{
				Name:  "run",
				Usage: "Run the bucket pipeline once using the environment configuration",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "bucket",
						Usage:   "Bucket to read logs from and write CSVs to",
						EnvVars: []string{"BUCKET_NAME"},
					},
					&cli.StringFlag{
						Name:    "prefix",
						Usage:   "Key prefix of the logs to convert",
						EnvVars: []string{"SOURCE_PREFIX"},
					},
					&cli.IntFlag{
						Name:    "workers",
						Usage:   "Number of files processed at once",
						EnvVars: []string{"PIPELINE_WORKERS"},
					},
				},
				Action: runOnce,
			},
			{
				Name:  "history",
				Usage: "Show recent runs, or the files of one run",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.StringFlag{
						Name:    "driver",
						Usage:   "database/sql driver (postgres or pgx)",
						Value:   "pgx",
						EnvVars: []string{"DB_DRIVER"},
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of runs to show",
						Value: 20,
					},
					&cli.Int64Flag{
						Name:  "run",
						Usage: "Show the files of this run",
					},
					&cli.BoolFlag{
						Name:  "failed",
						Usage: "List keys whose latest attempt failed",
					},
				},
				Action: showHistory,
			},
			{
				Name:      "encode-sample",
				Usage:     "Write a synthetic binary log for testing",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "records",
						Usage: "Number of records to write",
						Value: 100,
					},
					&cli.BoolFlag{
						Name:  "no-end-marker",
						Usage: "Stop at the last data frame instead of writing an end frame",
					},
					&cli.Int64Flag{
						Name:  "seed",
						Usage: "Seed for the generated sensor values",
						Value: 1,
					},
				},
				Action: encodeSample,
			},
		},
	}
}

// loadConfig applies the flags set on the command line on top of the
// environment configuration.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Load()
	if c.IsSet("bucket") {
		cfg.Pipeline.Bucket = c.String("bucket")
	}
	if c.IsSet("prefix") {
		cfg.Pipeline.Prefix = c.String("prefix")
	}
	if c.IsSet("workers") {
		cfg.Pipeline.Workers = c.Int("workers")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
