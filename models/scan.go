package models

import (
	"time"

	"meterscan/pkg/ocr"
	"meterscan/pkg/scan"
)

// Scan records one recognition run over an uploaded or watched image. Failed
// scans are kept with their reason so they can be reviewed and retried.
type Scan struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	UserID      uint   `gorm:"index;not null;uniqueIndex:idx_scan_user_file"`
	FileName    string `gorm:"size:255;not null;uniqueIndex:idx_scan_user_file"`
	StorePath   string `gorm:"column:store_path;size:512"`
	ContentType string `gorm:"size:128"`

	Backend   string `gorm:"size:32;index"`
	Mode      string `gorm:"size:32"`
	Policy    string `gorm:"size:64"`
	Threshold int
	MinLength int

	RawText  string `gorm:"type:text"`
	Text     string `gorm:"size:512"`
	Accepted bool   `gorm:"default:false;index"`

	Failed       bool   `gorm:"default:false;index"`
	FailedReason string `gorm:"size:255"`

	Width      int
	Height     int
	DurationMS int64
}

// Record copies a pipeline outcome into s, replacing any earlier result.
func (s *Scan) Record(backend string, opts scan.Options, res *scan.Result, err error) {
	s.Backend = backend
	s.Mode = opts.Mode.String()
	s.Policy = opts.Policy.ID()
	s.Threshold = opts.Threshold
	s.MinLength = opts.MinLength
	if err != nil || res == nil {
		s.Failed = true
		if err != nil {
			s.FailedReason = ocr.Snippet(err.Error(), 200)
		}
		s.RawText, s.Text, s.Accepted = "", "", false
		s.Width, s.Height, s.DurationMS = 0, 0, 0
		return
	}
	s.Failed, s.FailedReason = false, ""
	s.RawText = res.RawText
	s.Text = res.Text
	s.Accepted = res.Accepted
	s.Width, s.Height = res.Width, res.Height
	s.DurationMS = res.Duration.Milliseconds()
}
