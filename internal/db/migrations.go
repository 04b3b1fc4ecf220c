package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	// Raw readings. Owned by the ingestion boundary; created here so
	// local and dev environments work out of the box. Assumed
	// deduplicated by exact-field equality upstream.
	`CREATE TABLE IF NOT EXISTS radar_readings (
		id              BIGSERIAL PRIMARY KEY,
		camera_id       TEXT NOT NULL DEFAULT '',
		plate           TEXT NOT NULL DEFAULT '',
		vehicle_type    TEXT NOT NULL DEFAULT '',
		speed           NUMERIC(7,2) NOT NULL DEFAULT 0,
		observed_at     TIMESTAMPTZ NOT NULL,
		captured_at     TIMESTAMPTZ NOT NULL,
		company         TEXT NOT NULL DEFAULT '',
		lat             DOUBLE PRECISION,
		lon             DOUBLE PRECISION
	);`,
	`CREATE INDEX IF NOT EXISTS idx_radar_readings_captured_at ON radar_readings(captured_at);`,
	`CREATE INDEX IF NOT EXISTS idx_radar_readings_observed_at ON radar_readings(observed_at);`,
	`CREATE INDEX IF NOT EXISTS idx_radar_readings_plate ON radar_readings(plate, observed_at);`,

	// Camera catalog. Mutated only by the external equipment catalog.
	`CREATE TABLE IF NOT EXISTS cameras (
		camera_key      TEXT PRIMARY KEY,
		company         TEXT NOT NULL DEFAULT '',
		lat             DOUBLE PRECISION NOT NULL DEFAULT 0,
		lon             DOUBLE PRECISION NOT NULL DEFAULT 0
	);`,

	// Raw provider identifier -> internal camera key (codcet).
	`CREATE TABLE IF NOT EXISTS camera_codes (
		raw_id          TEXT PRIMARY KEY,
		camera_key      TEXT NOT NULL
	);`,

	// Provider vocabulary -> canonical vehicle category.
	`CREATE TABLE IF NOT EXISTS vehicle_type_labels (
		raw_label       TEXT PRIMARY KEY,
		canonical       TEXT NOT NULL
	);`,

	// Per-camera trust scores. Fully replaced per window each run. The
	// column is window_label, not window: WINDOW is a reserved word in
	// postgres and cannot appear as an unquoted identifier.
	`CREATE TABLE IF NOT EXISTS camera_trust_scores (
		camera_key        TEXT NOT NULL,
		window_label      TEXT NOT NULL,
		total_reads       INT NOT NULL,
		frequent_plates   INT NOT NULL,
		accuracy          DOUBLE PRECISION NOT NULL,
		reread_confidence DOUBLE PRECISION NOT NULL,
		median_confidence DOUBLE PRECISION NOT NULL,
		computed_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (camera_key, window_label)
	);`,

	// Per-plate clone scores. A live signal: fully replaced each run,
	// never kept as history.
	`CREATE TABLE IF NOT EXISTS clone_scores (
		plate                  TEXT PRIMARY KEY,
		score                  DOUBLE PRECISION NOT NULL,
		flagged                BOOLEAN NOT NULL,
		breakdown              JSONB,
		computed_at            TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_clone_scores_flagged ON clone_scores(flagged) WHERE flagged;`,

	// Per camera-day inactivity and latency. Upserted with full row
	// replacement; the only incrementally maintained output.
	`CREATE TABLE IF NOT EXISTS camera_inactivity (
		camera_key       TEXT NOT NULL,
		company          TEXT NOT NULL,
		date             DATE NOT NULL,
		inactive_hours   DOUBLE PRECISION NOT NULL,
		over_1h          BOOLEAN NOT NULL,
		over_3h          BOOLEAN NOT NULL,
		over_6h          BOOLEAN NOT NULL,
		over_12h         BOOLEAN NOT NULL,
		full_day         BOOLEAN NOT NULL,
		read_count       INT NOT NULL,
		avg_latency_s    DOUBLE PRECISION NOT NULL,
		median_latency_s DOUBLE PRECISION NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (camera_key, company, date)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_camera_inactivity_date ON camera_inactivity(date);`,
}

func runMigrations(database *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := database.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
