package history

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"lucarne/internal/config"
)

// CaptureEvent is one successful capture. The table is an auxiliary
// cache for UI history queries; the filesystem stays the source of
// truth and the table can be rebuilt from it.
type CaptureEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Camera    string    `gorm:"index:idx_camera_time" json:"camera"`
	Timestamp time.Time `gorm:"index:idx_camera_time" json:"timestamp"`
	Path      string    `json:"path"`
	SSIM      float64   `json:"ssim"`
	IntervalS float64   `json:"interval_s"`
	ExposureS float64   `json:"exposure_s"`
	ISO       int       `json:"iso"`
	Mode      string    `json:"mode"`
}

// Service owns the sqlite capture log. A nil *Service is valid and
// ignores all calls, so callers need no enabled-checks.
type Service struct {
	db            *gorm.DB
	retentionDays int
	stopChan      chan struct{}
}

// NewService opens (and migrates) the database. Returns nil when the
// history section is disabled.
func NewService(cfg config.HistoryConfig) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	db, err := gorm.Open(sqlite.Open(cfg.File), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.AutoMigrate(&CaptureEvent{}); err != nil {
		return nil, fmt.Errorf("migrate history db: %w", err)
	}

	return &Service{
		db:            db,
		retentionDays: cfg.RetentionDays,
		stopChan:      make(chan struct{}),
	}, nil
}

// Start launches the daily retention pruner.
func (s *Service) Start() {
	if s == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		s.prune()
		for {
			select {
			case <-ticker.C:
				s.prune()
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Stop halts the pruner. The database handle is shared by in-flight
// requests and is left to the process exit.
func (s *Service) Stop() {
	if s == nil {
		return
	}
	close(s.stopChan)
}

// Record inserts one capture event. Failures are logged, not returned;
// a broken history cache must never fail a capture.
func (s *Service) Record(ev CaptureEvent) {
	if s == nil {
		return
	}
	if err := s.db.Create(&ev).Error; err != nil {
		log.Warnf("History insert failed: %v", err)
	}
}

// Recent returns the newest events for one camera, newest first.
func (s *Service) Recent(ctx context.Context, camera string, limit int) ([]CaptureEvent, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var events []CaptureEvent
	err := s.db.WithContext(ctx).
		Where("camera = ?", camera).
		Order("timestamp desc").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (s *Service) prune() {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	res := s.db.Where("timestamp < ?", cutoff).Delete(&CaptureEvent{})
	if res.Error != nil {
		log.Warnf("History prune failed: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Infof("History prune removed %d events older than %s", res.RowsAffected, cutoff.Format("2006-01-02"))
	}
}
