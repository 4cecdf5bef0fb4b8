package scandir

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"meterscan/pkg/scan"
)

// DryRun lists the candidate files in dir without touching the database. With
// a pipeline it also scans each file and prints what would be recorded.
func DryRun(ctx context.Context, dir string, p *scan.Pipeline, w io.Writer) error {
	files := ListImageFiles(dir)
	fmt.Fprintf(w, "Dry-run: %d candidate files in %s\n", len(files), dir)
	for _, name := range files {
		if p == nil {
			fmt.Fprintln(w, name)
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		res, err := p.ScanBytes(ctx, data, mimeFromExt(name))
		if err != nil {
			fmt.Fprintf(w, "%s\tFAILED\t%v\n", name, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\taccepted=%v\n", name, res.Text, res.Accepted)
	}
	return nil
}
