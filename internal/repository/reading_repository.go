package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"platewatch/internal/domain/radar"
)

type ReadingRow struct {
	ID          int64 `gorm:"primaryKey"`
	CameraID    string
	Plate       string
	VehicleType string
	Speed       float64
	ObservedAt  time.Time
	CapturedAt  time.Time
	Company     string
	Lat         *float64
	Lon         *float64
}

func (ReadingRow) TableName() string {
	return "radar_readings"
}

// ReadingRepository reads the append-only raw reading store. The store is
// owned by the ingestion boundary; this engine never writes to it.
type ReadingRepository struct {
	db *gorm.DB
}

func NewReadingRepository(database *gorm.DB) *ReadingRepository {
	return &ReadingRepository{db: database}
}

// FetchWindow loads raw readings observed within [from, to), ordered by
// observation time.
func (r *ReadingRepository) FetchWindow(ctx context.Context, from, to time.Time) ([]radar.RawReading, error) {
	var rows []ReadingRow
	err := r.db.WithContext(ctx).
		Where("observed_at >= ? AND observed_at < ?", from, to).
		Order("observed_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch reading window: %w", err)
	}

	readings := make([]radar.RawReading, 0, len(rows))
	for _, row := range rows {
		readings = append(readings, radar.RawReading{
			CameraID:    row.CameraID,
			Plate:       row.Plate,
			VehicleType: row.VehicleType,
			Speed:       row.Speed,
			ObservedAt:  row.ObservedAt,
			CapturedAt:  row.CapturedAt,
			Company:     row.Company,
			Lat:         row.Lat,
			Lon:         row.Lon,
		})
	}
	return readings, nil
}

// FirstSeen returns the earliest observation time per camera identifier,
// over all history. Used to bound each camera's lifetime for inactivity
// accounting. The map is keyed by the raw camera_id column; callers must
// resolve the keys to the codcet before joining against normalized data.
func (r *ReadingRepository) FirstSeen(ctx context.Context) (map[string]time.Time, error) {
	type firstSeenRow struct {
		CameraID string
		First    time.Time
	}
	var rows []firstSeenRow
	err := r.db.WithContext(ctx).
		Model(&ReadingRow{}).
		Select("camera_id, MIN(observed_at) AS first").
		Where("camera_id <> ''").
		Group("camera_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch first-seen times: %w", err)
	}

	out := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		out[row.CameraID] = row.First
	}
	return out, nil
}

// Insert appends raw readings. Only the seeding tool uses this; production
// readings arrive through the ingestion boundary.
func (r *ReadingRepository) Insert(ctx context.Context, readings []radar.RawReading) error {
	rows := make([]ReadingRow, 0, len(readings))
	for _, reading := range readings {
		rows = append(rows, ReadingRow{
			CameraID:    reading.CameraID,
			Plate:       reading.Plate,
			VehicleType: reading.VehicleType,
			Speed:       reading.Speed,
			ObservedAt:  reading.ObservedAt,
			CapturedAt:  reading.CapturedAt,
			Company:     reading.Company,
			Lat:         reading.Lat,
			Lon:         reading.Lon,
		})
	}
	if err := r.db.WithContext(ctx).CreateInBatches(rows, 500).Error; err != nil {
		return fmt.Errorf("insert readings: %w", err)
	}
	return nil
}
