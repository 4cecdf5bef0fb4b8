package main

import (
	"fmt"
	"os"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"meterscan/process/cliflags"
	"meterscan/process/report"
	"meterscan/process/scandir"
)

func main() {
	fs := ff.NewFlagSet("report")
	var (
		username = fs.StringLong("username", "admin", "username to report for")
		month    = fs.StringLong("month", time.Now().UTC().Format("2006-01"), "month to report (YYYY-MM)")
		list     = fs.BoolLong("list", "list matching scans")
		dsn      = fs.StringLong("dsn", "", "Postgres DSN (default DB_DSN)")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix(cliflags.EnvPrefix)); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	gdb, err := scandir.OpenDB(*dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if _, err := report.Run(gdb, os.Stdout, *username, *month, *list); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
