package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/yourusername/manga-dl-go/internal/domain"
)

// ErrRecordNotFound is returned when a job record does not exist
var ErrRecordNotFound = errors.New("job record not found")

// filterColumns are the columns FindAll accepts as filters
var filterColumns = map[string]bool{
	"state":     true,
	"outcome":   true,
	"source_id": true,
	"comic_id":  true,
	"format":    true,
}

// SQLiteJobRepository implements JobHistoryRepository using SQLite
type SQLiteJobRepository struct {
	db *gorm.DB
}

// NewSQLiteJobRepository creates a new SQLite repository
func NewSQLiteJobRepository(dbPath string) (*SQLiteJobRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.JobRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteJobRepository{db: db}, nil
}

// Save inserts a record or replaces an existing one
func (r *SQLiteJobRepository) Save(record *domain.JobRecord) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		UpdateAll: true,
	}).Create(record).Error
}

// UpdateState stores the latest polled state of a job
func (r *SQLiteJobRepository) UpdateState(job domain.DownloadJob) error {
	result := r.db.Model(&domain.JobRecord{}).
		Where("job_id = ?", job.JobID).
		Updates(map[string]interface{}{
			"state":    job.LastKnownState,
			"progress": job.Progress(),
			"message":  job.Message,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.Save(domain.NewJobRecord(job))
	}
	return nil
}

// MarkOutcome stores the final outcome of a job. For a retrieved job detail
// is the artifact location, otherwise it replaces the message when set.
func (r *SQLiteJobRepository) MarkOutcome(jobID string, outcome domain.JobOutcome, detail string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"outcome":     outcome,
		"finished_at": &now,
	}
	if outcome == domain.OutcomeRetrieved {
		updates["artifact_location"] = detail
	} else if detail != "" {
		updates["message"] = detail
	}

	result := r.db.Model(&domain.JobRecord{}).Where("job_id = ?", jobID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, jobID)
	}
	return nil
}

// FindByID finds a record by job ID
func (r *SQLiteJobRepository) FindByID(jobID string) (*domain.JobRecord, error) {
	var record domain.JobRecord
	err := r.db.First(&record, "job_id = ?", jobID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, jobID)
		}
		return nil, err
	}
	return &record, nil
}

// FindActive finds records without an outcome, oldest first
func (r *SQLiteJobRepository) FindActive() ([]*domain.JobRecord, error) {
	var records []*domain.JobRecord
	err := r.db.Where("outcome = ?", domain.OutcomeActive).
		Order("enqueued_at ASC").
		Find(&records).Error
	return records, err
}

// FindAll finds records with optional filters, newest first
func (r *SQLiteJobRepository) FindAll(filters map[string]interface{}, limit int) ([]*domain.JobRecord, error) {
	var records []*domain.JobRecord
	query := r.db

	for key, value := range filters {
		if !filterColumns[key] {
			return nil, fmt.Errorf("unsupported filter: %s", key)
		}
		query = query.Where(fmt.Sprintf("%s = ?", key), value)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Order("enqueued_at DESC").Find(&records).Error
	return records, err
}

// GetStats returns history statistics
func (r *SQLiteJobRepository) GetStats() (*domain.HistoryStats, error) {
	stats := &domain.HistoryStats{}

	if err := r.db.Model(&domain.JobRecord{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	outcomeCounts := []struct {
		Outcome domain.JobOutcome
		Count   int64
	}{}

	if err := r.db.Model(&domain.JobRecord{}).
		Select("outcome, count(*) as count").
		Group("outcome").
		Scan(&outcomeCounts).Error; err != nil {
		return nil, err
	}

	for _, oc := range outcomeCounts {
		switch oc.Outcome {
		case domain.OutcomeActive:
			stats.Active = oc.Count
		case domain.OutcomeRetrieved:
			stats.Retrieved = oc.Count
		case domain.OutcomeRetrievalFailed:
			stats.RetrievalFailed = oc.Count
		case domain.OutcomeFailed:
			stats.Failed = oc.Count
		case domain.OutcomeCancelled:
			stats.Cancelled = oc.Count
		}
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteJobRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
