// Package rescan re-runs recognition for recorded scans that failed or were
// not accepted, using the captures kept under the upload directory.
package rescan

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gorm.io/gorm"

	"meterscan/models"
	"meterscan/pkg/scan"
)

// Pending returns the user's failed or unaccepted scans, oldest first.
func Pending(gdb *gorm.DB, userID uint) ([]models.Scan, error) {
	var rows []models.Scan
	err := gdb.Where("user_id = ? AND (failed = ? OR accepted = ?)", userID, true, false).
		Order("id").Find(&rows).Error
	return rows, err
}

// One rescans rec from the capture at path. It reports whether the result
// differs from what was stored; rec is updated in place either way.
func One(ctx context.Context, p *scan.Pipeline, rec *models.Scan, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	before := *rec
	res, err := p.ScanBytes(ctx, data, rec.ContentType)
	rec.Record(p.Backend(), p.Options(), res, err)
	changed := before.Text != rec.Text || before.Accepted != rec.Accepted || before.Failed != rec.Failed
	return changed, nil
}

// Run rescans every pending scan of username whose capture is stored at
// base/<username>/<file>. With dry set nothing is written.
func Run(ctx context.Context, gdb *gorm.DB, p *scan.Pipeline, base, username string, dry bool, w io.Writer) (int, error) {
	var user models.User
	if err := gdb.Where("username = ?", username).First(&user).Error; err != nil {
		return 0, fmt.Errorf("user not found: %w", err)
	}
	rows, err := Pending(gdb, user.ID)
	if err != nil {
		return 0, fmt.Errorf("query: %w", err)
	}
	updated := 0
	for i := range rows {
		if ctx.Err() != nil {
			break
		}
		rec := &rows[i]
		old := rec.Text
		changed, err := One(ctx, p, rec, filepath.Join(base, username, rec.FileName))
		if err != nil {
			log.Printf("WARN %v", err)
			continue
		}
		if !changed {
			continue
		}
		if dry {
			fmt.Fprintf(w, "DRY: would update scan id=%d file=%s old=%q new=%q accepted=%v\n", rec.ID, rec.FileName, old, rec.Text, rec.Accepted)
			continue
		}
		if err := gdb.Save(rec).Error; err != nil {
			log.Printf("failed update scan %s: %v", rec.FileName, err)
			continue
		}
		updated++
		fmt.Fprintf(w, "updated scan id=%d file=%s text=%q accepted=%v\n", rec.ID, rec.FileName, rec.Text, rec.Accepted)
	}
	return updated, nil
}
