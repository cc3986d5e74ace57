package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lancerane/CSVConverter-GCP/internal/config"
	"github.com/lancerane/CSVConverter-GCP/internal/repository/postgres"
)

var errNoDatabase = errors.New("no database configured: set --db-url or DATABASE_URL")

func showHistory(c *cli.Context) error {
	if c.String("db-url") == "" {
		return errNoDatabase
	}

	db, err := postgres.NewDB(c.Context, config.DatabaseConfig{
		Driver: c.String("driver"),
		URL:    c.String("db-url"),
	})
	if err != nil {
		return err
	}
	defer db.Close()

	repo := postgres.NewRunRepository(db)
	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	defer w.Flush()

	switch {
	case c.Bool("failed"):
		keys, err := repo.FailedKeys(c.Context)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(w, k)
		}

	case c.IsSet("run"):
		files, err := repo.ListFiles(c.Context, c.Int64("run"))
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "KEY\tSTATUS\tSTAGE\tROWS\tEND\tDURATION\tERROR")
		for _, f := range files {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				f.ObjectKey, f.Status, f.Stage, f.RowsWritten, f.EndReason,
				time.Duration(f.DurationMS)*time.Millisecond, f.ErrorMessage)
		}

	default:
		runs, err := repo.ListRuns(c.Context, c.Int("limit"))
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tSTARTED\tBUCKET\tPREFIX\tSTATUS\tCONVERTED\tROWS\tERROR")
		for _, r := range runs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d/%d\t%d\t%s\n",
				r.ID, r.StartedAt.Local().Format(time.DateTime), r.Bucket, r.Prefix, r.Status,
				r.Converted, r.TotalFiles, r.TotalRows, r.ErrorMessage)
		}
	}
	return nil
}
