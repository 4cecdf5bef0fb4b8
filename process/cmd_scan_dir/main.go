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
	"meterscan/process/scandir"
)

// Scans a directory of meter captures for one user, records each scan and can
// keep watching for new files.
func main() {
	fs := ff.NewFlagSet("scan-dir")
	var (
		dir          = fs.StringLong("dir", "public/meters", "directory to scan for captures")
		username     = fs.StringLong("user", "admin", "user the scans belong to")
		dsn          = fs.StringLong("dsn", "", "Postgres DSN (default DB_DSN)")
		dryRun       = fs.BoolLong("dry-run", "skip all DB queries and writes; just list files")
		simulateOCR  = fs.BoolLong("simulate-ocr", "in dry-run, also run OCR and print the results")
		watch        = fs.BoolLong("watch", "watch the directory for new files after the initial pass")
		workers      = fs.IntLong("workers", 0, "worker pool size (default NumCPU)")
		keep         = fs.BoolLong("keep", "leave accepted files in place instead of moving them")
		processedDir = fs.StringLong("processed-dir", "", "where accepted files go (default: processed next to --dir)")
		verbose      = fs.BoolLong("verbose", "verbose per-file logging")
	)
	engineFlags := cliflags.Register(fs)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix(cliflags.EnvPrefix)); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *dryRun {
		if !*simulateOCR {
			if err := scandir.DryRun(ctx, *dir, nil, os.Stdout); err != nil {
				log.Fatalf("dry-run: %v", err)
			}
			return
		}
		p, closeEngine, err := engineFlags.Pipeline(ctx)
		if err != nil {
			log.Fatalf("ocr: %v", err)
		}
		defer closeEngine()
		if err := scandir.DryRun(ctx, *dir, p, os.Stdout); err != nil {
			log.Printf("dry-run: %v", err)
		}
		return
	}

	gdb, err := scandir.OpenDB(*dsn)
	if err != nil {
		log.Fatal(err)
	}
	user, err := scandir.ResolveUser(gdb, *username)
	if err != nil {
		log.Fatal(err)
	}
	p, closeEngine, err := engineFlags.Pipeline(ctx)
	if err != nil {
		log.Fatalf("ocr: %v", err)
	}
	defer closeEngine()

	s := scandir.New(scandir.DBStore{DB: gdb}, user.ID, p, scandir.Options{
		Dir:          *dir,
		ProcessedDir: *processedDir,
		Workers:      *workers,
		Move:         !*keep,
		Verbose:      *verbose,
	})
	if err := s.Preload(); err != nil {
		log.Printf("WARN %v", err)
	}
	s.Run(ctx)
	if *watch {
		if err := s.Watch(ctx); err != nil {
			log.Printf("watch failed: %v", err)
		}
	}
}
