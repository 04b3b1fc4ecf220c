package trust

import (
	"math"
	"testing"
	"time"

	"platewatch/internal/domain/radar"
)

var t0 = time.Date(2024, 5, 30, 8, 0, 0, 0, time.UTC)

func reading(camera, plate, vtype string, offset time.Duration) radar.Reading {
	return radar.Reading{
		CameraKey:   camera,
		Plate:       plate,
		VehicleType: vtype,
		ObservedAt:  t0.Add(offset),
		CapturedAt:  t0.Add(offset + 2*time.Second),
		Company:     "ACME",
	}
}

func scoreFor(t *testing.T, scores []radar.TrustScore, camera string) radar.TrustScore {
	t.Helper()
	for _, s := range scores {
		if s.CameraKey == camera {
			return s
		}
	}
	t.Fatalf("no score for camera %s", camera)
	return radar.TrustScore{}
}

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScoreAccuracySingleTypeError(t *testing.T) {
	// Plate ABC1234 reads as CAR three times at C1 and once as TRUCK,
	// and no other camera ever saw it as TRUCK. That single read is a
	// misclassification charged against C1.
	readings := []radar.Reading{
		reading("C1", "ABC1234", "CAR", 0),
		reading("C1", "ABC1234", "CAR", 10*time.Minute),
		reading("C1", "ABC1234", "CAR", 20*time.Minute),
		reading("C1", "ABC1234", "TRUCK", 30*time.Minute),
		reading("C2", "ABC1234", "CAR", 40*time.Minute),
	}

	scores := Score(readings, Options{Window: "test"})
	c1 := scoreFor(t, scores, "C1")

	if !almost(c1.Accuracy, 1-1.0/4.0) {
		t.Errorf("C1 accuracy = %v, want %v", c1.Accuracy, 1-1.0/4.0)
	}

	c2 := scoreFor(t, scores, "C2")
	if !almost(c2.Accuracy, 1) {
		t.Errorf("C2 accuracy = %v, want 1", c2.Accuracy)
	}
}

func TestScoreTypeCorroboratedElsewhereIsNotAnError(t *testing.T) {
	// Both of C1's type reads are corroborated by other cameras, so
	// neither is a one-off: the plate genuinely shows up as both types
	// across the network (a real change or a fleet-wide confusion).
	readings := []radar.Reading{
		reading("C1", "ABC1234", "CAR", 0),
		reading("C1", "ABC1234", "TRUCK", 10*time.Minute),
		reading("C2", "ABC1234", "TRUCK", 20*time.Minute),
		reading("C3", "ABC1234", "CAR", 30*time.Minute),
	}

	scores := Score(readings, Options{Window: "test"})
	c1 := scoreFor(t, scores, "C1")
	if !almost(c1.Accuracy, 1) {
		t.Errorf("C1 accuracy = %v, want 1", c1.Accuracy)
	}
}

func TestScoreUncorroboratedSingleReadIsCharged(t *testing.T) {
	// C1 saw the plate as CAR exactly once and nowhere else in the network
	// did the plate appear as CAR. That read is a one-off misclassification
	// charged against C1 even though C1's TRUCK read is corroborated.
	readings := []radar.Reading{
		reading("C1", "ABC1234", "CAR", 0),
		reading("C1", "ABC1234", "TRUCK", 10*time.Minute),
		reading("C2", "ABC1234", "TRUCK", 20*time.Minute),
	}

	scores := Score(readings, Options{Window: "test"})
	c1 := scoreFor(t, scores, "C1")
	want := 1 - 1.0/2.0
	if !almost(c1.Accuracy, want) {
		t.Errorf("C1 accuracy = %v, want %v", c1.Accuracy, want)
	}
}

func TestScoreFastRereads(t *testing.T) {
	// Three reads of the same plate 20s apart: two fall inside the 60s
	// reread window of their predecessor.
	readings := []radar.Reading{
		reading("C1", "ABC1234", "CAR", 0),
		reading("C1", "ABC1234", "CAR", 20*time.Second),
		reading("C1", "ABC1234", "CAR", 40*time.Second),
		reading("C1", "XYZ9876", "CAR", 10*time.Minute),
	}

	scores := Score(readings, Options{Window: "test"})
	c1 := scoreFor(t, scores, "C1")
	want := 1 - 2.0/4.0
	if !almost(c1.RereadConfidence, want) {
		t.Errorf("RereadConfidence = %v, want %v", c1.RereadConfidence, want)
	}
}

func TestScoreMedianConfidence(t *testing.T) {
	// Plate counts at C1: A=1, B=1, C=4. Median is 1, one plate above it,
	// six total reads.
	readings := []radar.Reading{
		reading("C1", "AAA1111", "CAR", 0),
		reading("C1", "BBB2222", "CAR", 10*time.Minute),
		reading("C1", "CCC3333", "CAR", 20*time.Minute),
		reading("C1", "CCC3333", "CAR", 30*time.Minute),
		reading("C1", "CCC3333", "CAR", 40*time.Minute),
		reading("C1", "CCC3333", "CAR", 50*time.Minute),
	}

	scores := Score(readings, Options{Window: "test"})
	c1 := scoreFor(t, scores, "C1")
	want := 1 - 1.0/6.0
	if !almost(c1.MedianConfidence, want) {
		t.Errorf("MedianConfidence = %v, want %v", c1.MedianConfidence, want)
	}
}

func TestScoreFrequentPlates(t *testing.T) {
	var readings []radar.Reading
	for i := 0; i < 12; i++ {
		readings = append(readings, reading("C1", "AAA1111", "CAR", time.Duration(i)*5*time.Minute))
	}
	readings = append(readings, reading("C1", "BBB2222", "CAR", time.Hour))

	scores := Score(readings, Options{Window: "test", FrequentPlateThreshold: 10})
	c1 := scoreFor(t, scores, "C1")
	if c1.FrequentPlates != 1 {
		t.Errorf("FrequentPlates = %d, want 1", c1.FrequentPlates)
	}
}

func TestScoreCameraWithNoQualifyingReadsIsAbsent(t *testing.T) {
	readings := []radar.Reading{
		{CameraKey: "C1", Plate: radar.PlateUndetected, VehicleType: "CAR", ObservedAt: t0, CapturedAt: t0},
		{CameraKey: "", Plate: "ABC1234", VehicleType: "CAR", ObservedAt: t0, CapturedAt: t0},
	}

	scores := Score(readings, Options{Window: "test"})
	if len(scores) != 0 {
		t.Errorf("got %d scores, want 0 (undetected plates and keyless readings do not qualify)", len(scores))
	}
}

func TestTrustedSet(t *testing.T) {
	scores := []radar.TrustScore{
		{CameraKey: "GOOD", Accuracy: 0.99, RereadConfidence: 0.98},
		{CameraKey: "ECHOING", Accuracy: 0.99, RereadConfidence: 0.50},
		{CameraKey: "CONFUSED", Accuracy: 0.60, RereadConfidence: 0.99},
	}

	trusted := TrustedSet(scores, 0.95)
	if _, ok := trusted["GOOD"]; !ok {
		t.Errorf("GOOD should be trusted")
	}
	if _, ok := trusted["ECHOING"]; ok {
		t.Errorf("ECHOING should not be trusted (same-speed echo anomalies)")
	}
	if _, ok := trusted["CONFUSED"]; ok {
		t.Errorf("CONFUSED should not be trusted (type inconsistency)")
	}
	if _, ok := trusted["UNSCORED"]; ok {
		t.Errorf("a camera with no score is never trusted")
	}
}
