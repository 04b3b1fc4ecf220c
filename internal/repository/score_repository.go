package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"platewatch/internal/domain/radar"
)

type TrustScoreRow struct {
	CameraKey        string `gorm:"primaryKey"`
	WindowLabel      string `gorm:"primaryKey"`
	TotalReads       int
	FrequentPlates   int
	Accuracy         float64
	RereadConfidence float64
	MedianConfidence float64
	ComputedAt       time.Time
}

func (TrustScoreRow) TableName() string {
	return "camera_trust_scores"
}

type CloneScoreRow struct {
	Plate      string `gorm:"primaryKey"`
	Score      float64
	Flagged    bool
	Breakdown  datatypes.JSON
	ComputedAt time.Time
}

func (CloneScoreRow) TableName() string {
	return "clone_scores"
}

// cloneBreakdown is the JSONB payload consumers see alongside the score.
type cloneBreakdown struct {
	TypeChanges          int     `json:"type_changes"`
	TypeChangesTrusted   int     `json:"type_changes_trusted"`
	InconsistentSegments int     `json:"inconsistent_segments"`
	DistinctTypes        int     `json:"distinct_types"`
	DistinctTypesTrusted int     `json:"distinct_types_trusted"`
	MaxPlausibleSpeed    float64 `json:"max_plausible_speed"`
	MaxImpliedSpeed      float64 `json:"max_implied_speed"`
	SegmentsConsidered   int     `json:"segments_considered"`
}

// ScoreRepository persists the two fully-replaced outputs: camera trust
// scores (per window) and clone scores (per run). Each replacement commits
// atomically so consumers never observe a partially written snapshot.
type ScoreRepository struct {
	db *gorm.DB
}

func NewScoreRepository(database *gorm.DB) *ScoreRepository {
	return &ScoreRepository{db: database}
}

// ReplaceTrustWindow swaps the trust scores for one window in a single
// transaction.
func (r *ScoreRepository) ReplaceTrustWindow(ctx context.Context, window string, scores []radar.TrustScore) error {
	now := time.Now()
	rows := make([]TrustScoreRow, 0, len(scores))
	for _, s := range scores {
		rows = append(rows, TrustScoreRow{
			CameraKey:        s.CameraKey,
			WindowLabel:      s.Window,
			TotalReads:       s.TotalReads,
			FrequentPlates:   s.FrequentPlates,
			Accuracy:         s.Accuracy,
			RereadConfidence: s.RereadConfidence,
			MedianConfidence: s.MedianConfidence,
			ComputedAt:       now,
		})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("window_label = ?", window).Delete(&TrustScoreRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("replace trust scores for window %s: %w", window, err)
	}
	return nil
}

// ReplaceCloneScores swaps the full clone-score table. The table is a live
// signal, not a ledger, so the previous run's rows are dropped wholesale.
func (r *ScoreRepository) ReplaceCloneScores(ctx context.Context, scores []radar.CloneScore) error {
	now := time.Now()
	rows := make([]CloneScoreRow, 0, len(scores))
	for _, s := range scores {
		breakdown, err := json.Marshal(cloneBreakdown{
			TypeChanges:          s.TypeChanges,
			TypeChangesTrusted:   s.TypeChangesTrusted,
			InconsistentSegments: s.InconsistentSegments,
			DistinctTypes:        s.DistinctTypes,
			DistinctTypesTrusted: s.DistinctTypesTrusted,
			MaxPlausibleSpeed:    s.MaxPlausibleSpeed,
			MaxImpliedSpeed:      s.MaxImpliedSpeed,
			SegmentsConsidered:   s.SegmentsConsidered,
		})
		if err != nil {
			return fmt.Errorf("marshal breakdown for plate %s: %w", s.Plate, err)
		}
		rows = append(rows, CloneScoreRow{
			Plate:      s.Plate,
			Score:      s.Score,
			Flagged:    s.Flagged,
			Breakdown:  datatypes.JSON(breakdown),
			ComputedAt: now,
		})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&CloneScoreRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("replace clone scores: %w", err)
	}
	return nil
}

// ListTrustScores returns the trust scores for a window, every camera.
func (r *ScoreRepository) ListTrustScores(ctx context.Context, window string) ([]TrustScoreRow, error) {
	var rows []TrustScoreRow
	query := r.db.WithContext(ctx).Order("camera_key ASC")
	if window != "" {
		query = query.Where("window_label = ?", window)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list trust scores: %w", err)
	}
	return rows, nil
}

// ListCloneScores returns clone scores ordered by score, optionally only
// the flagged ones.
func (r *ScoreRepository) ListCloneScores(ctx context.Context, flaggedOnly bool, limit int) ([]CloneScoreRow, error) {
	query := r.db.WithContext(ctx).Order("score DESC")
	if flaggedOnly {
		query = query.Where("flagged")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []CloneScoreRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list clone scores: %w", err)
	}
	return rows, nil
}
