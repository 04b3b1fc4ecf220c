package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"platewatch/internal/domain/radar"
)

type CameraRow struct {
	CameraKey string `gorm:"primaryKey"`
	Company   string
	Lat       float64
	Lon       float64
}

func (CameraRow) TableName() string {
	return "cameras"
}

type CameraCodeRow struct {
	RawID     string `gorm:"primaryKey"`
	CameraKey string
}

func (CameraCodeRow) TableName() string {
	return "camera_codes"
}

type VehicleTypeLabelRow struct {
	RawLabel  string `gorm:"primaryKey"`
	Canonical string
}

func (VehicleTypeLabelRow) TableName() string {
	return "vehicle_type_labels"
}

// Catalog is a point-in-time snapshot of the external equipment catalog:
// camera positions and companies, the raw-identifier mapping, and the
// provider vehicle-type vocabulary.
type Catalog struct {
	Cameras      map[string]radar.Camera
	CameraCodes  map[string]string
	VehicleTypes map[string]string
}

// CatalogRepository reads reference data owned by the external catalog.
type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(database *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: database}
}

// Load fetches the whole catalog. Catalog unavailability is fatal for a
// run, so errors propagate instead of yielding a partial snapshot.
func (r *CatalogRepository) Load(ctx context.Context) (*Catalog, error) {
	var cameraRows []CameraRow
	if err := r.db.WithContext(ctx).Find(&cameraRows).Error; err != nil {
		return nil, fmt.Errorf("load cameras: %w", err)
	}

	var codeRows []CameraCodeRow
	if err := r.db.WithContext(ctx).Find(&codeRows).Error; err != nil {
		return nil, fmt.Errorf("load camera codes: %w", err)
	}

	var labelRows []VehicleTypeLabelRow
	if err := r.db.WithContext(ctx).Find(&labelRows).Error; err != nil {
		return nil, fmt.Errorf("load vehicle type labels: %w", err)
	}

	catalog := &Catalog{
		Cameras:      make(map[string]radar.Camera, len(cameraRows)),
		CameraCodes:  make(map[string]string, len(codeRows)),
		VehicleTypes: make(map[string]string, len(labelRows)),
	}
	for _, row := range cameraRows {
		catalog.Cameras[row.CameraKey] = radar.Camera{
			Key:     row.CameraKey,
			Company: row.Company,
			Lat:     row.Lat,
			Lon:     row.Lon,
		}
	}
	for _, row := range codeRows {
		catalog.CameraCodes[row.RawID] = row.CameraKey
	}
	for _, row := range labelRows {
		catalog.VehicleTypes[row.RawLabel] = row.Canonical
	}
	return catalog, nil
}
