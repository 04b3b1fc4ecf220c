package movement

import (
	"math"
	"testing"
	"time"

	"platewatch/internal/domain/radar"
)

var t0 = time.Date(2024, 5, 30, 8, 0, 0, 0, time.UTC)

// positioned returns a reading roughly km kilometers north of the origin.
func positioned(camera, plate, vtype string, offset time.Duration, km float64) radar.Reading {
	return radar.Reading{
		CameraKey:   camera,
		Plate:       plate,
		VehicleType: vtype,
		ObservedAt:  t0.Add(offset),
		CapturedAt:  t0.Add(offset + time.Second),
		Lat:         -22.9 + km/111.195,
		Lon:         -43.2,
		HasPosition: true,
	}
}

func TestBuildSegmentOrderingAndBounds(t *testing.T) {
	readings := []radar.Reading{
		positioned("C3", "ABC1234", "CAR", 4*time.Minute, 2),
		positioned("C1", "ABC1234", "CAR", 0, 0),
		positioned("C2", "ABC1234", "CAR", 2*time.Minute, 1),
		// 10 minutes after the previous read: outside the 300s bound.
		positioned("C4", "ABC1234", "CAR", 14*time.Minute, 3),
	}

	res := Build(readings, Options{})
	// Sliding window pairs: (C1,C2), (C1,C3), (C2,C3). C4 pairs with
	// nothing within the bound.
	if len(res.Segments) != 3 {
		t.Fatalf("got %d segments, want 3: %+v", len(res.Segments), res.Segments)
	}
	for _, s := range res.Segments {
		if !s.From.Before(s.To) {
			t.Errorf("segment %s->%s: t_from %v not before t_to %v", s.CameraFrom, s.CameraTo, s.From, s.To)
		}
		if s.To.Sub(s.From) >= 300*time.Second {
			t.Errorf("segment %s->%s spans %v, want < 300s", s.CameraFrom, s.CameraTo, s.To.Sub(s.From))
		}
	}
}

func TestBuildImpliedSpeedScenario(t *testing.T) {
	// Two readings 10 km apart, 60 seconds apart: implied speed ~600 km/h.
	readings := []radar.Reading{
		positioned("C1", "ABC1234", "CAR", 0, 0),
		positioned("C2", "ABC1234", "TRUCK", 60*time.Second, 10),
	}

	res := Build(readings, Options{})
	if len(res.Segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(res.Segments))
	}
	s := res.Segments[0]
	if math.Abs(s.ImpliedSpeed-600) > 15 {
		t.Errorf("ImpliedSpeed = %.1f km/h, want ~600", s.ImpliedSpeed)
	}
	if !s.TypeChanged {
		t.Errorf("TypeChanged = false, want true (CAR -> TRUCK)")
	}
}

func TestBuildSpeedFloor(t *testing.T) {
	// 5 km in 5 seconds. Naively 3600 km/h; with the 30s floor the
	// implied speed drops to 600 km/h.
	readings := []radar.Reading{
		positioned("C1", "ABC1234", "CAR", 0, 0),
		positioned("C2", "ABC1234", "CAR", 5*time.Second, 5),
	}

	res := Build(readings, Options{})
	if len(res.Segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(res.Segments))
	}
	got := res.Segments[0].ImpliedSpeed
	if math.Abs(got-600) > 15 {
		t.Errorf("ImpliedSpeed = %.1f km/h, want ~600 (30s floor applied)", got)
	}
}

func TestBuildSpeedFloorFromClockSkew(t *testing.T) {
	// With a 30s per-reading skew tolerance the pair floor is 60s, which
	// beats the 30s default.
	readings := []radar.Reading{
		positioned("C1", "ABC1234", "CAR", 0, 0),
		positioned("C2", "ABC1234", "CAR", 5*time.Second, 5),
	}

	res := Build(readings, Options{ClockSkewTolerance: 30 * time.Second})
	got := res.Segments[0].ImpliedSpeed
	if math.Abs(got-300) > 10 {
		t.Errorf("ImpliedSpeed = %.1f km/h, want ~300 (60s skew floor)", got)
	}
}

func TestBuildMaxPlausibleSpeed(t *testing.T) {
	readings := []radar.Reading{
		positioned("C1", "SLOWCAR", "CAR", 0, 0),
		positioned("C1", "FASTCAR", "CAR", 0, 0),
	}
	readings[0].Speed = 40
	readings[1].Speed = 170

	res := Build(readings, Options{})
	if got := res.MaxPlausibleSpeed["SLOWCAR"]; got != 150 {
		t.Errorf("SLOWCAR ceiling = %v, want 150 (baseline)", got)
	}
	if got := res.MaxPlausibleSpeed["FASTCAR"]; got != 200 {
		t.Errorf("FASTCAR ceiling = %v, want 200 (observed 170 + 30)", got)
	}
}

func TestBuildSkipsSentinelAndUnpositionedReadings(t *testing.T) {
	unpositioned := positioned("C2", "ABC1234", "CAR", time.Minute, 1)
	unpositioned.HasPosition = false

	readings := []radar.Reading{
		positioned("C1", radar.PlateUndetected, "CAR", 0, 0),
		positioned("C2", radar.PlateUndetected, "CAR", time.Minute, 1),
		positioned("C1", "ABC1234", "CAR", 0, 0),
		unpositioned,
	}

	res := Build(readings, Options{})
	if len(res.Segments) != 0 {
		t.Errorf("got %d segments, want 0: %+v", len(res.Segments), res.Segments)
	}
}

func TestBuildPairCountWithinWindow(t *testing.T) {
	// Five readings 60s apart with a 300s bound.
	var readings []radar.Reading
	for i := 0; i < 5; i++ {
		readings = append(readings, positioned("C1", "ABC1234", "CAR", time.Duration(i)*time.Minute, float64(i)))
	}

	res := Build(readings, Options{})
	// Every ordered pair spans 60..240s, all inside the 300s bound:
	// 4+3+2+1 = 10 segments.
	if len(res.Segments) != 10 {
		t.Errorf("got %d segments, want 10", len(res.Segments))
	}
}
