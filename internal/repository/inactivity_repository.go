package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"platewatch/internal/domain/radar"
)

type InactivityRow struct {
	CameraKey      string    `gorm:"primaryKey"`
	Company        string    `gorm:"primaryKey"`
	Date           time.Time `gorm:"primaryKey"`
	InactiveHours  float64
	Over1h         bool
	Over3h         bool
	Over6h         bool
	Over12h        bool
	FullDay        bool
	ReadCount      int
	AvgLatencyS    float64
	MedianLatencyS float64
	UpdatedAt      time.Time
}

func (InactivityRow) TableName() string {
	return "camera_inactivity"
}

// InactivityRepository maintains the only incrementally merged output.
// Rows are keyed by (camera_key, company, date) and replaced in full on
// conflict: a touched day is recomputed from scratch, never accumulated,
// so reprocessing can never double-count hours.
type InactivityRepository struct {
	db *gorm.DB
}

func NewInactivityRepository(database *gorm.DB) *InactivityRepository {
	return &InactivityRepository{db: database}
}

// UpsertBatch writes the recomputed camera-day rows. Untouched partitions
// are simply absent from records and stay as they were.
func (r *InactivityRepository) UpsertBatch(ctx context.Context, records []radar.InactivityRecord) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now()
	rows := make([]InactivityRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, InactivityRow{
			CameraKey:      rec.CameraKey,
			Company:        rec.Company,
			Date:           rec.Date,
			InactiveHours:  rec.InactiveHours,
			Over1h:         rec.Over1h,
			Over3h:         rec.Over3h,
			Over6h:         rec.Over6h,
			Over12h:        rec.Over12h,
			FullDay:        rec.FullDay,
			ReadCount:      rec.ReadCount,
			AvgLatencyS:    rec.AvgLatencyS,
			MedianLatencyS: rec.MedianLatencyS,
			UpdatedAt:      now,
		})
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "camera_key"}, {Name: "company"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"inactive_hours", "over_1h", "over_3h", "over_6h", "over_12h",
				"full_day", "read_count", "avg_latency_s", "median_latency_s", "updated_at",
			}),
		}).
		CreateInBatches(rows, 500).Error
	if err != nil {
		return fmt.Errorf("upsert inactivity records: %w", err)
	}
	return nil
}

// List returns camera-day rows filtered by camera and date range.
func (r *InactivityRepository) List(ctx context.Context, cameraKey string, from, to *time.Time, limit int) ([]InactivityRow, error) {
	query := r.db.WithContext(ctx).Order("date DESC, camera_key ASC")
	if cameraKey != "" {
		query = query.Where("camera_key = ?", cameraKey)
	}
	if from != nil {
		query = query.Where("date >= ?", *from)
	}
	if to != nil {
		query = query.Where("date <= ?", *to)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []InactivityRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list inactivity records: %w", err)
	}
	return rows, nil
}
