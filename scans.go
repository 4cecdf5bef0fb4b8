package main

import (
	"bytes"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"meterscan/models"
	"meterscan/pkg/digits"
	"meterscan/pkg/frame"
	"meterscan/pkg/ocr"
	"meterscan/pkg/scan"

	"github.com/gin-gonic/gin"
)

const maxUploadSize = 10 << 20

// scanParams are the per-request overrides of the configured scan options.
type scanParams struct {
	Mode      string
	Policy    string
	Threshold string
	MinLength string
	Raw       string
}

func formScanParams(c *gin.Context) scanParams {
	return scanParams{
		Mode:      c.PostForm("mode"),
		Policy:    c.PostForm("policy"),
		Threshold: c.PostForm("threshold"),
		MinLength: c.PostForm("min_length"),
		Raw:       c.PostForm("raw"),
	}
}

// apply overlays the non-empty params on opts.
func (p scanParams) apply(opts scan.Options) (scan.Options, error) {
	if p.Mode != "" {
		mode, err := digits.ParseMode(p.Mode)
		if err != nil {
			return opts, err
		}
		opts.Mode = mode
	}
	if p.Policy != "" {
		policy, err := digits.Lookup(p.Policy)
		if err != nil {
			return opts, err
		}
		opts.Policy = policy
	}
	if p.Threshold != "" {
		t, err := strconv.Atoi(p.Threshold)
		if err != nil || t < 0 || t > 255 {
			return opts, errors.New("threshold must be an integer in 0..255")
		}
		opts.Threshold = t
	}
	if p.MinLength != "" {
		n, err := strconv.Atoi(p.MinLength)
		if err != nil || n < 0 {
			return opts, errors.New("min_length must be a non-negative integer")
		}
		opts.MinLength = n
	}
	if p.Raw != "" {
		raw, err := strconv.ParseBool(p.Raw)
		if err != nil {
			return opts, errors.New("raw must be a boolean")
		}
		opts.SkipPreprocess = raw
	}
	return opts, nil
}

// readUpload returns the "file" form field's bytes, enforcing the size limit.
func readUpload(c *gin.Context) (*multipart.FileHeader, []byte, bool) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file missing"})
		return nil, nil, false
	}
	if file.Size > maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large (max 10MB)"})
		return nil, nil, false
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file unreadable"})
		return nil, nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadSize+1))
	if err != nil || len(data) > maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file unreadable"})
		return nil, nil, false
	}
	return file, data, true
}

type policyView struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Version  int        `json:"version"`
	CaseFold bool       `json:"case_fold"`
	Default  bool       `json:"default"`
	Rules    []ruleView `json:"rules"`
}

type ruleView struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func listPoliciesHandler(c *gin.Context) {
	var out []policyView
	for _, id := range digits.PolicyIDs() {
		p := digits.Policies[id]
		v := policyView{ID: id, Name: p.Name, Version: p.Version, CaseFold: p.CaseFold, Default: p == digits.DefaultPolicy}
		for _, r := range p.Rules {
			v.Rules = append(v.Rules, ruleView{From: r.From, To: string(r.To)})
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, out)
}

func normalizeHandler(c *gin.Context) {
	var req struct {
		Text      string `json:"text"`
		Mode      string `json:"mode"`
		Policy    string `json:"policy"`
		MinLength *int   `json:"min_length"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	opts, err := scanParams{Mode: req.Mode, Policy: req.Policy}.apply(scanDefaults)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.MinLength != nil {
		opts.MinLength = *req.MinLength
	}
	text := digits.NormalizeWith(req.Text, opts.Mode, opts.Policy)
	c.JSON(http.StatusOK, gin.H{
		"text":     text,
		"accepted": digits.Sufficient(text, opts.MinLength),
		"mode":     opts.Mode.String(),
		"policy":   opts.Policy.ID(),
	})
}

// preprocessHandler returns the binarized image the engines would receive.
func preprocessHandler(c *gin.Context) {
	opts, err := formScanParams(c).apply(scanDefaults)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	file, data, ok := readUpload(c)
	if !ok {
		return
	}
	f, err := frame.Decode(bytes.NewReader(data), file.Header.Get("Content-Type"))
	if err != nil {
		log.Printf("WARN preprocess %s: %v", file.Filename, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "capture error"})
		return
	}
	bin, err := f.Fit(opts.MaxWidth).Binarize(opts.Threshold)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "capture error"})
		return
	}
	png, err := bin.EncodePNG()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encode failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// createScanHandler stores the upload under the user's directory, runs the
// pipeline and records the outcome. Re-uploading a file name rescans it.
func createScanHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	opts, err := formScanParams(c).apply(scanDefaults)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	file, data, ok := readUpload(c)
	if !ok {
		return
	}
	engine, err := engines.get(c.PostForm("backend"))
	if err != nil {
		if errors.Is(err, ocr.ErrUnknownEngine) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Printf("OCR backend unavailable: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "ocr backend unavailable"})
		return
	}

	name := filepath.Base(file.Filename)
	dir := filepath.Join(uploadBaseDir(), user.Username)
	if err := os.MkdirAll(dir, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mkdir failed"})
		return
	}
	fullPath := filepath.Join(dir, name)
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}

	ct := file.Header.Get("Content-Type")
	rec := models.Scan{
		UserID:      user.ID,
		FileName:    name,
		StorePath:   filepath.ToSlash(filepath.Join(user.Username, name)),
		ContentType: ct,
	}
	res, scanErr := scan.New(engine, opts).ScanBytes(c.Request.Context(), data, ct)
	rec.Record(engine.Name(), opts, res, scanErr)
	if err := saveScan(&rec); err != nil {
		log.Printf("SCAN save %s/%s: %v", user.Username, name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db save failed"})
		return
	}
	if scanErr != nil {
		log.Printf("SCAN %s/%s failed: %v", user.Username, name, scanErr)
		if errors.Is(scanErr, scan.ErrCapture) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "capture error", "id": rec.ID})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "recognition failed", "id": rec.ID})
		return
	}
	log.Printf("SCAN %s/%s backend=%s text=%q accepted=%v", user.Username, name, rec.Backend, rec.Text, rec.Accepted)
	c.JSON(http.StatusOK, rec)
}

// saveScan inserts rec, or overwrites the user's earlier scan of the same file.
func saveScan(rec *models.Scan) error {
	var existing models.Scan
	if err := db.Where("user_id = ? AND file_name = ?", rec.UserID, rec.FileName).First(&existing).Error; err == nil {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	}
	return db.Save(rec).Error
}

// listScansHandler returns the newest scans; admin sees all users.
func listScansHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	q := db.Model(&models.Scan{})
	if c.GetString("role") != roleAdmin {
		q = q.Where("user_id = ?", user.ID)
	}
	switch strings.ToLower(c.Query("status")) {
	case "accepted":
		q = q.Where("accepted = ?", true)
	case "failed":
		q = q.Where("failed = ?", true)
	}
	var items []models.Scan
	if err := q.Order("id desc").Limit(200).Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func getScanHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var rec models.Scan
	if err := db.First(&rec, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if c.GetString("role") != roleAdmin && rec.UserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// scanSummaryHandler returns per-month scan counts.
func scanSummaryHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	type monthRow struct {
		Month    string `json:"month"`
		Total    int64  `json:"total"`
		Accepted int64  `json:"accepted"`
		Failed   int64  `json:"failed"`
	}
	q := db.Model(&models.Scan{})
	if c.GetString("role") != roleAdmin {
		q = q.Where("user_id = ?", user.ID)
	}
	results := []monthRow{}
	err := q.Select("to_char(created_at, 'YYYY-MM') AS month, count(*) AS total, " +
		"sum(CASE WHEN accepted THEN 1 ELSE 0 END) AS accepted, " +
		"sum(CASE WHEN failed THEN 1 ELSE 0 END) AS failed").
		Group("month").Order("month").Scan(&results).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, results)
}
