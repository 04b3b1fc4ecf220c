package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"platewatch/internal/clone"
	"platewatch/internal/config"
	"platewatch/internal/domain/radar"
	"platewatch/internal/inactivity"
	"platewatch/internal/movement"
	"platewatch/internal/normalizer"
	"platewatch/internal/notify"
	"platewatch/internal/report"
	"platewatch/internal/repository"
	"platewatch/internal/runlock"
	"platewatch/internal/storage"
	"platewatch/internal/trust"
)

const runLockTTL = 30 * time.Minute

// Engine executes one scoring run: load the reading window, normalize,
// fan out the three independent scorers, join, aggregate clone scores, and
// commit each output atomically. Failed runs leave previously committed
// outputs untouched.
type Engine struct {
	cfg        *config.Config
	readings   *repository.ReadingRepository
	catalog    *repository.CatalogRepository
	scores     *repository.ScoreRepository
	inactivity *repository.InactivityRepository
	locker     runlock.Locker
	notifier   *notify.Notifier
	snapshots  *storage.SnapshotStore
	log        zerolog.Logger
}

func NewEngine(
	cfg *config.Config,
	readings *repository.ReadingRepository,
	catalog *repository.CatalogRepository,
	scores *repository.ScoreRepository,
	inactivityRepo *repository.InactivityRepository,
	locker runlock.Locker,
	notifier *notify.Notifier,
	snapshots *storage.SnapshotStore,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		cfg:        cfg,
		readings:   readings,
		catalog:    catalog,
		scores:     scores,
		inactivity: inactivityRepo,
		locker:     locker,
		notifier:   notifier,
		snapshots:  snapshots,
		log:        log,
	}
}

// RunResult summarizes a completed run.
type RunResult struct {
	RunID             uuid.UUID
	WindowFrom        time.Time
	WindowTo          time.Time
	ReadingsAccepted  int
	ReadingsRejected  int
	CamerasScored     int
	SegmentsBuilt     int
	PlatesScored      int
	PlatesFlagged     int
	InactivityUpserts int
}

// Run executes one batch. Returns runlock.ErrAlreadyRunning when another
// run holds the lock; callers treat that as a skip, not a failure.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	lock, err := e.locker.Obtain(ctx, runLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := lock.Release(context.Background()); releaseErr != nil {
			e.log.Warn().Err(releaseErr).Msg("failed to release run lock")
		}
	}()

	runID := uuid.New()
	now := time.Now().UTC()
	windowTo := now
	windowFrom := now.Add(-time.Duration(e.cfg.Engine.WindowHours) * time.Hour)

	result, err := e.run(ctx, runID, windowFrom, windowTo)
	if err != nil {
		e.log.Error().Err(err).
			Str("run_id", runID.String()).
			Time("window_from", windowFrom).
			Time("window_to", windowTo).
			Msg("run failed")
		e.publishSummary(ctx, runID, windowFrom, windowTo, result, err)
		return nil, err
	}

	e.publishSummary(ctx, runID, windowFrom, windowTo, result, nil)
	return result, nil
}

func (e *Engine) run(ctx context.Context, runID uuid.UUID, windowFrom, windowTo time.Time) (*RunResult, error) {
	result := &RunResult{RunID: runID, WindowFrom: windowFrom, WindowTo: windowTo}

	// Catalog or feed unavailability is fatal: no partial commits.
	catalog, err := e.catalog.Load(ctx)
	if err != nil {
		return result, fmt.Errorf("load catalog: %w", err)
	}
	firstSeen, err := e.readings.FirstSeen(ctx)
	if err != nil {
		return result, fmt.Errorf("load first-seen times: %w", err)
	}

	// One fetch covers both the analysis window and the wider
	// inactivity lookback.
	lookbackFrom := startOfDay(windowTo.AddDate(0, 0, -e.cfg.Engine.InactivityLookbackDays))
	fetchFrom := windowFrom
	if lookbackFrom.Before(fetchFrom) {
		fetchFrom = lookbackFrom
	}
	raws, err := e.readings.FetchWindow(ctx, fetchFrom, windowTo)
	if err != nil {
		return result, fmt.Errorf("fetch readings: %w", err)
	}

	norm := normalizer.New(e.normalizerOptions(catalog))
	normRes := norm.Normalize(raws)
	result.ReadingsAccepted = len(normRes.Readings)
	result.ReadingsRejected = normRes.TotalRejected()
	e.logRejections(normRes)

	analysis := readingsSince(normRes.Readings, windowFrom)

	var (
		trustScores []radar.TrustScore
		moveRes     movement.Result
		inactive    []radar.InactivityRecord
	)

	// Trust, movement, and inactivity share the normalized set read-only
	// and run concurrently; clone aggregation waits on the join barrier.
	var g errgroup.Group
	g.Go(func() error {
		trustScores = trust.Score(analysis, trust.Options{
			FrequentPlateThreshold: e.cfg.Engine.FrequentPlateThreshold,
			RereadWindow:           e.cfg.Engine.RereadWindow,
			Window:                 windowLabel(windowFrom),
		})
		return nil
	})
	g.Go(func() error {
		moveRes = movement.Build(analysis, movement.Options{
			MaxGap:             e.cfg.Engine.MaxSegmentGap,
			SpeedFloorSeconds:  e.cfg.Engine.SpeedFloorSeconds,
			ClockSkewTolerance: e.cfg.Engine.ClockSkewTolerance,
		})
		return nil
	})
	g.Go(func() error {
		inactive = inactivity.Compute(normRes.Readings, cameraMeta(catalog, firstSeen), inactivity.Options{
			WindowStart:      lookbackFrom,
			WindowEnd:        windowTo,
			IncrementalSince: windowTo.Add(-e.cfg.Engine.ReprocessLookback),
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return result, err
	}

	trusted := trust.TrustedSet(trustScores, e.cfg.Engine.TrustAccuracyCutoff)
	cloneScores := clone.Aggregate(analysis, moveRes.Segments, moveRes.MaxPlausibleSpeed, trusted, clone.Options{
		Threshold: e.cfg.Engine.CloneScoreThreshold,
		Weights: clone.Weights{
			DistinctTypesTrusted: e.cfg.Engine.CloneWeightDistinctTypes,
			InconsistentSegments: e.cfg.Engine.CloneWeightInconsistent,
			TypeChangesTrusted:   e.cfg.Engine.CloneWeightTypeTrusted,
			TypeChanges:          e.cfg.Engine.CloneWeightTypeTotal,
		},
	})

	result.CamerasScored = len(trustScores)
	result.SegmentsBuilt = len(moveRes.Segments)
	result.PlatesScored = len(cloneScores)
	result.InactivityUpserts = len(inactive)
	for _, s := range cloneScores {
		if s.Flagged {
			result.PlatesFlagged++
		}
	}

	// Commit order matters only for observability; each replacement is
	// atomic on its own and a failure here aborts before the next one.
	if err := e.scores.ReplaceTrustWindow(ctx, windowLabel(windowFrom), trustScores); err != nil {
		return result, err
	}
	if err := e.scores.ReplaceCloneScores(ctx, cloneScores); err != nil {
		return result, err
	}
	if err := e.inactivity.UpsertBatch(ctx, inactive); err != nil {
		return result, err
	}

	e.exportSnapshots(ctx, runID, windowTo, inactive, cloneScores)

	if err := e.notifier.PublishCloneAlerts(ctx, runID.String(), cloneScores); err != nil {
		e.log.Warn().Err(err).Msg("failed to publish clone alerts")
	}

	e.log.Info().
		Str("run_id", runID.String()).
		Int("readings_accepted", result.ReadingsAccepted).
		Int("readings_rejected", result.ReadingsRejected).
		Int("cameras_scored", result.CamerasScored).
		Int("segments_built", result.SegmentsBuilt).
		Int("plates_scored", result.PlatesScored).
		Int("plates_flagged", result.PlatesFlagged).
		Int("inactivity_upserts", result.InactivityUpserts).
		Msg("run completed")

	return result, nil
}

func (e *Engine) normalizerOptions(catalog *repository.Catalog) normalizer.Options {
	denylist := make(map[string]struct{}, len(e.cfg.Engine.PlateDenylist))
	for _, p := range e.cfg.Engine.PlateDenylist {
		denylist[strings.ToUpper(p)] = struct{}{}
	}
	posFromReading := make(map[string]struct{}, len(e.cfg.Engine.PositionFromReading))
	for _, c := range e.cfg.Engine.PositionFromReading {
		posFromReading[strings.ToUpper(c)] = struct{}{}
	}
	return normalizer.Options{
		ClockSkewTolerance:  e.cfg.Engine.ClockSkewTolerance,
		PlateDenylist:       denylist,
		VehicleTypes:        catalog.VehicleTypes,
		CameraKeys:          catalog.CameraCodes,
		Cameras:             catalog.Cameras,
		PositionFromReading: posFromReading,
	}
}

// cameraMeta brings the per-camera first-seen times into the codcet key
// space. FirstSeen is keyed by the raw camera_id column while normalized
// readings and the catalog use the resolved codcet, so raw ids are mapped
// through the same resolution the normalizer applies. Unresolvable ids are
// dropped; several raw ids mapping to one codcet keep the earliest time.
func cameraMeta(catalog *repository.Catalog, firstSeen map[string]time.Time) map[string]inactivity.CameraMeta {
	meta := make(map[string]inactivity.CameraMeta, len(firstSeen))
	for rawID, first := range firstSeen {
		key := normalizer.ResolveCameraKey(rawID, catalog.CameraCodes)
		if key == "" {
			continue
		}
		m, ok := meta[key]
		if !ok || first.Before(m.FirstSeen) {
			m.FirstSeen = first
		}
		if cam, found := catalog.Cameras[key]; found {
			m.Company = cam.Company
		}
		meta[key] = m
	}
	return meta
}

func (e *Engine) logRejections(res normalizer.Result) {
	if res.TotalRejected() == 0 {
		return
	}
	event := e.log.Warn().Int("total_rejected", res.TotalRejected())
	for reason, count := range res.Rejected {
		event = event.Int(string(reason), count)
	}
	event.Msg("rejected malformed readings")
}

// exportSnapshots uploads the run artifacts when an object store is
// configured. Export failures are logged, not fatal: the run's outputs are
// already committed.
func (e *Engine) exportSnapshots(ctx context.Context, runID uuid.UUID, windowTo time.Time, inactive []radar.InactivityRecord, cloneScores []radar.CloneScore) {
	if e.snapshots == nil {
		return
	}
	datePrefix := windowTo.Format("2006-01-02")

	workbook, err := report.BuildInactivityWorkbook(inactive)
	if err != nil {
		e.log.Warn().Err(err).Msg("failed to build inactivity workbook")
	} else {
		key := fmt.Sprintf("reports/%s/inactivity.xlsx", datePrefix)
		if _, err := e.snapshots.Upload(ctx, key, workbook.Bytes(),
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"); err != nil {
			e.log.Warn().Err(err).Str("key", key).Msg("failed to upload inactivity workbook")
		}
	}

	type flaggedPlate struct {
		Plate                string  `json:"plate"`
		Score                float64 `json:"score"`
		TypeChanges          int     `json:"type_changes"`
		TypeChangesTrusted   int     `json:"type_changes_trusted"`
		InconsistentSegments int     `json:"inconsistent_segments"`
		DistinctTypesTrusted int     `json:"distinct_types_trusted"`
		MaxImpliedSpeed      float64 `json:"max_implied_speed"`
	}
	flagged := make([]flaggedPlate, 0)
	for _, s := range cloneScores {
		if !s.Flagged {
			continue
		}
		flagged = append(flagged, flaggedPlate{
			Plate:                s.Plate,
			Score:                s.Score,
			TypeChanges:          s.TypeChanges,
			TypeChangesTrusted:   s.TypeChangesTrusted,
			InconsistentSegments: s.InconsistentSegments,
			DistinctTypesTrusted: s.DistinctTypesTrusted,
			MaxImpliedSpeed:      s.MaxImpliedSpeed,
		})
	}
	payload, err := json.Marshal(flagged)
	if err != nil {
		e.log.Warn().Err(err).Msg("failed to marshal flagged plates")
		return
	}
	key := fmt.Sprintf("reports/%s/clone-candidates-%s.json", datePrefix, runID.String())
	if _, err := e.snapshots.Upload(ctx, key, payload, "application/json"); err != nil {
		e.log.Warn().Err(err).Str("key", key).Msg("failed to upload clone candidates")
	}
}

func (e *Engine) publishSummary(ctx context.Context, runID uuid.UUID, from, to time.Time, result *RunResult, runErr error) {
	summary := notify.RunSummary{
		RunID:      runID.String(),
		Status:     "completed",
		WindowFrom: from,
		WindowTo:   to,
	}
	if runErr != nil {
		summary.Status = "failed"
		summary.Error = runErr.Error()
	}
	if result != nil {
		summary.ReadingsAccepted = result.ReadingsAccepted
		summary.ReadingsRejected = result.ReadingsRejected
		summary.CamerasScored = result.CamerasScored
		summary.SegmentsBuilt = result.SegmentsBuilt
		summary.PlatesScored = result.PlatesScored
		summary.PlatesFlagged = result.PlatesFlagged
		summary.InactivityUpserts = result.InactivityUpserts
	}
	if err := e.notifier.PublishSummary(ctx, summary); err != nil {
		e.log.Warn().Err(err).Msg("failed to publish run summary")
	}
}

func readingsSince(readings []radar.Reading, from time.Time) []radar.Reading {
	out := make([]radar.Reading, 0, len(readings))
	for _, r := range readings {
		if !r.ObservedAt.Before(from) {
			out = append(out, r)
		}
	}
	return out
}

func windowLabel(from time.Time) string {
	return from.Format("2006-01-02")
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
