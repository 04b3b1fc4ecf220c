package clone

import (
	"math"
	"reflect"
	"testing"
	"time"

	"platewatch/internal/domain/radar"
)

var t0 = time.Date(2024, 5, 30, 8, 0, 0, 0, time.UTC)

func trustedSet(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

func reading(camera, plate, vtype string) radar.Reading {
	return radar.Reading{
		CameraKey:   camera,
		Plate:       plate,
		VehicleType: vtype,
		ObservedAt:  t0,
		CapturedAt:  t0,
	}
}

func segment(plate, from, to string, typeFrom, typeTo string, implied float64) radar.MovementSegment {
	return radar.MovementSegment{
		Plate:        plate,
		CameraFrom:   from,
		CameraTo:     to,
		From:         t0,
		To:           t0.Add(time.Minute),
		ImpliedSpeed: implied,
		TypeFrom:     typeFrom,
		TypeTo:       typeTo,
		TypeChanged:  typeFrom != typeTo,
	}
}

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// One infeasible trusted segment with a type change: the score must carry
// every component yet stay below the default threshold. Single-segment
// evidence alone cannot flag a plate.
func TestAggregateSingleSegmentStaysBelowThreshold(t *testing.T) {
	readings := []radar.Reading{
		reading("C1", "ABC1234", "CAR"),
		reading("C2", "ABC1234", "TRUCK"),
	}
	segments := []radar.MovementSegment{
		segment("ABC1234", "C1", "C2", "CAR", "TRUCK", 600),
	}
	ceilings := map[string]float64{"ABC1234": 150}

	scores := Aggregate(readings, segments, ceilings, trustedSet("C1", "C2"), Options{})
	if len(scores) != 1 {
		t.Fatalf("got %d scores, want 1", len(scores))
	}
	s := scores[0]

	want := 1.0/3.0 + 1.0/10.0 + 1.0/4.0 + 1.0/8.0
	if !almost(s.Score, want) {
		t.Errorf("Score = %v, want %v", s.Score, want)
	}
	floor := 1.0/4.0 + 1.0/10.0 + 1.0/8.0
	if s.Score < floor {
		t.Errorf("Score = %v, want >= %v", s.Score, floor)
	}
	if s.Flagged {
		t.Errorf("Flagged = true; a single segment must not clear the default threshold")
	}
	if s.InconsistentSegments != 1 || s.TypeChangesTrusted != 1 || s.TypeChanges != 1 || s.DistinctTypesTrusted != 2 {
		t.Errorf("breakdown = %+v, want 1/1/1/2", s)
	}
}

func TestAggregateCorroboratedEvidenceFlags(t *testing.T) {
	readings := []radar.Reading{
		reading("C1", "ABC1234", "CAR"),
		reading("C2", "ABC1234", "TRUCK"),
		reading("C3", "ABC1234", "CAR"),
	}
	segments := []radar.MovementSegment{
		segment("ABC1234", "C1", "C2", "CAR", "TRUCK", 600),
		segment("ABC1234", "C2", "C3", "TRUCK", "CAR", 480),
	}
	ceilings := map[string]float64{"ABC1234": 150}

	scores := Aggregate(readings, segments, ceilings, trustedSet("C1", "C2", "C3"), Options{})
	s := scores[0]

	// (2-1)/3 + 2/10 + 2/4 + 2/8 = 1.2833...
	want := 1.0/3.0 + 2.0/10.0 + 2.0/4.0 + 2.0/8.0
	if !almost(s.Score, want) {
		t.Errorf("Score = %v, want %v", s.Score, want)
	}
	if !s.Flagged {
		t.Errorf("Flagged = false, want true at score %v > 1.0", s.Score)
	}
}

func TestAggregateIdempotent(t *testing.T) {
	readings := []radar.Reading{
		reading("C1", "ABC1234", "CAR"),
		reading("C2", "ABC1234", "TRUCK"),
		reading("C1", "XYZ9876", "CAR"),
		reading("C2", "XYZ9876", "CAR"),
	}
	segments := func() []radar.MovementSegment {
		return []radar.MovementSegment{
			segment("ABC1234", "C1", "C2", "CAR", "TRUCK", 600),
			segment("XYZ9876", "C1", "C2", "CAR", "CAR", 80),
		}
	}
	ceilings := map[string]float64{"ABC1234": 150, "XYZ9876": 150}
	trusted := trustedSet("C1", "C2")

	first := Aggregate(readings, segments(), ceilings, trusted, Options{})
	second := Aggregate(readings, segments(), ceilings, trusted, Options{})

	if !reflect.DeepEqual(first, second) {
		t.Errorf("two runs over identical input disagree:\n%+v\n%+v", first, second)
	}
}

func TestAggregateMonotonicInInfeasibleSegments(t *testing.T) {
	readings := []radar.Reading{
		reading("C1", "ABC1234", "CAR"),
		reading("C2", "ABC1234", "CAR"),
	}
	ceilings := map[string]float64{"ABC1234": 150}
	trusted := trustedSet("C1", "C2")

	segments := []radar.MovementSegment{
		segment("ABC1234", "C1", "C2", "CAR", "CAR", 400),
	}
	before := Aggregate(readings, segments, ceilings, trusted, Options{})[0].Score

	segments = append(segments, segment("ABC1234", "C2", "C1", "CAR", "CAR", 500))
	after := Aggregate(readings, segments, ceilings, trusted, Options{})[0].Score

	if after < before {
		t.Errorf("score decreased from %v to %v after adding an infeasible segment", before, after)
	}
	if !almost(after-before, 1.0/10.0) {
		t.Errorf("score delta = %v, want exactly one inconsistent-segment weight (0.1)", after-before)
	}
}

func TestAggregateWithoutTrustedCoverage(t *testing.T) {
	// No trusted cameras anywhere: the trusted components contribute
	// zero, the untrusted type-change signal still counts.
	readings := []radar.Reading{
		reading("C1", "ABC1234", "CAR"),
		reading("C2", "ABC1234", "TRUCK"),
	}
	segments := []radar.MovementSegment{
		segment("ABC1234", "C1", "C2", "CAR", "TRUCK", 600),
	}
	ceilings := map[string]float64{"ABC1234": 150}

	scores := Aggregate(readings, segments, ceilings, trustedSet(), Options{})
	s := scores[0]

	if !almost(s.Score, 1.0/8.0) {
		t.Errorf("Score = %v, want %v (type change only)", s.Score, 1.0/8.0)
	}
	if s.InconsistentSegments != 0 || s.TypeChangesTrusted != 0 || s.DistinctTypesTrusted != 0 {
		t.Errorf("trusted components should be zero without coverage: %+v", s)
	}
	if s.Score < 0 {
		t.Errorf("missing components must never push the score negative")
	}
}

func TestAggregateGateRequiresTrustedEnds(t *testing.T) {
	// Infeasible speed over one untrusted camera: no inconsistent
	// segment is counted.
	readings := []radar.Reading{
		reading("C1", "ABC1234", "CAR"),
		reading("C9", "ABC1234", "CAR"),
	}
	segments := []radar.MovementSegment{
		segment("ABC1234", "C1", "C9", "CAR", "CAR", 900),
	}
	ceilings := map[string]float64{"ABC1234": 150}

	scores := Aggregate(readings, segments, ceilings, trustedSet("C1"), Options{})
	if scores[0].InconsistentSegments != 0 {
		t.Errorf("InconsistentSegments = %d, want 0 (C9 untrusted)", scores[0].InconsistentSegments)
	}
	if segments[0].BothTrusted {
		t.Errorf("segment marked BothTrusted with an untrusted end")
	}
}

func TestAggregateSkipsQuietPlates(t *testing.T) {
	readings := []radar.Reading{
		reading("C1", "QUIET01", "CAR"),
		reading("C1", radar.PlateUndetected, "CAR"),
	}

	scores := Aggregate(readings, nil, nil, trustedSet("C1"), Options{})
	if len(scores) != 0 {
		t.Errorf("got %d scores, want 0 (single type, no segments, sentinel excluded)", len(scores))
	}
}

func TestAggregateConfigurableThreshold(t *testing.T) {
	readings := []radar.Reading{
		reading("C1", "ABC1234", "CAR"),
		reading("C2", "ABC1234", "TRUCK"),
	}
	segments := []radar.MovementSegment{
		segment("ABC1234", "C1", "C2", "CAR", "TRUCK", 600),
	}
	ceilings := map[string]float64{"ABC1234": 150}

	scores := Aggregate(readings, segments, ceilings, trustedSet("C1", "C2"), Options{Threshold: 0.5})
	if !scores[0].Flagged {
		t.Errorf("Flagged = false, want true with threshold lowered to 0.5")
	}
}
