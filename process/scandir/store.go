package scandir

import (
	"fmt"
	"os"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"meterscan/models"
)

// Store records scans for the directory runner.
type Store interface {
	// AcceptedFiles lists the file names with an accepted scan for userID.
	AcceptedFiles(userID uint) ([]string, error)
	// Save inserts rec or replaces the user's earlier scan of the same file.
	Save(rec *models.Scan) error
}

// DBStore is the Postgres-backed Store.
type DBStore struct {
	DB *gorm.DB
}

// OpenDB connects to dsn, falling back to DB_DSN.
func OpenDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		return nil, fmt.Errorf("DB_DSN must be set to run this tool")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return gdb, nil
}

// ResolveUser finds the user owning the scans, "admin" when username is empty.
func ResolveUser(gdb *gorm.DB, username string) (models.User, error) {
	if username == "" {
		username = "admin"
	}
	var u models.User
	if err := gdb.Where("username = ?", username).First(&u).Error; err != nil {
		return u, fmt.Errorf("user %q not found: %w", username, err)
	}
	return u, nil
}

func (s DBStore) AcceptedFiles(userID uint) ([]string, error) {
	var names []string
	err := s.DB.Model(&models.Scan{}).
		Where("user_id = ? AND accepted = ?", userID, true).
		Pluck("file_name", &names).Error
	return names, err
}

func (s DBStore) Save(rec *models.Scan) error {
	var existing models.Scan
	if err := s.DB.Where("user_id = ? AND file_name = ?", rec.UserID, rec.FileName).First(&existing).Error; err == nil {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	}
	err := s.DB.Save(rec).Error
	if isUniqueConstraintError(err) {
		// a concurrent run created it first; retry as an update
		if err2 := s.DB.Where("user_id = ? AND file_name = ?", rec.UserID, rec.FileName).First(&existing).Error; err2 == nil {
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
			return s.DB.Save(rec).Error
		}
	}
	return err
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "already exists")
}
