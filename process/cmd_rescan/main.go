package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"meterscan/process/cliflags"
	"meterscan/process/rescan"
	"meterscan/process/scandir"
)

// Re-runs recognition for a user's failed or unaccepted scans, e.g. after a
// cloud key was fixed or with a different policy.
func main() {
	fs := ff.NewFlagSet("rescan")
	var (
		username = fs.StringLong("username", "admin", "user whose scans to retry")
		base     = fs.StringLong("upload-base", "uploads", "directory holding <username>/<file> captures")
		apply    = fs.BoolLong("apply", "write updates (default is a dry run)")
		dsn      = fs.StringLong("dsn", "", "Postgres DSN (default DB_DSN)")
	)
	engineFlags := cliflags.Register(fs)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix(cliflags.EnvPrefix)); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := scandir.OpenDB(*dsn)
	if err != nil {
		log.Fatal(err)
	}
	p, closeEngine, err := engineFlags.Pipeline(ctx)
	if err != nil {
		log.Fatalf("ocr: %v", err)
	}
	defer closeEngine()

	n, err := rescan.Run(ctx, gdb, p, *base, *username, !*apply, os.Stdout)
	if err != nil {
		log.Printf("rescan: %v", err)
		return
	}
	log.Printf("rescan done, %d scans updated", n)
}
