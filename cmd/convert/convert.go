package main

import (
	"fmt"
	"unicode/utf8"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/lancerane/CSVConverter-GCP/internal/app"
	"github.com/lancerane/CSVConverter-GCP/internal/csvconv"
	"github.com/lancerane/CSVConverter-GCP/pkg/logger"
)

func delimiter(c *cli.Context) (rune, error) {
	d := c.String("delimiter")
	if utf8.RuneCountInString(d) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", d)
	}
	r, _ := utf8.DecodeRuneInString(d)
	return r, nil
}

func convertTree(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowSubcommandHelp(c)
	}
	delim, err := delimiter(c)
	if err != nil {
		return err
	}

	results, err := csvconv.ConvertTree(afero.NewOsFs(), c.Args().First(), csvconv.Options{
		Delimiter: delim,
		Strict:    c.Bool("strict"),
	})
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			logger.Log.Error().Err(r.Err).Str("file", r.Source).Msg("Conversion failed")
			continue
		}
		event := logger.Log.Info()
		if !r.Result.End.Clean() {
			event = logger.Log.Warn()
		}
		event.
			Str("file", r.Artifact).
			Int("rows", r.Result.Rows).
			Int("frames", r.Result.Frames).
			Stringer("end", r.Result.End).
			Msg("Converted")
	}

	fmt.Fprintf(c.App.Writer, "%d of %d files converted\n", len(results)-failed, len(results))
	if failed > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

func runOnce(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	pipe, err := app.New(c.Context, cfg, nil)
	if err != nil {
		return err
	}
	defer pipe.Close()

	report, err := pipe.Orchestrator.Run(c.Context)
	if err != nil {
		fmt.Fprintf(c.App.ErrWriter, "Error: %v\n", err)
		return cli.Exit("", 1)
	}

	for _, o := range report.Failed() {
		fmt.Fprintf(c.App.Writer, "failed\t%s\t%s\t%v\n", o.Key, o.Stage, o.Err)
	}
	fmt.Fprintln(c.App.Writer, report.Summary())
	if report.Succeeded != report.Total {
		return cli.Exit("", 1)
	}
	return nil
}
