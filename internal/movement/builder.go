package movement

import (
	"sort"
	"time"

	"platewatch/internal/domain/radar"
	"platewatch/internal/geo"
)

// Options tunes segment construction. Zero values get defaults.
type Options struct {
	// MaxGap is the maximum elapsed time between the two readings of a
	// segment. Pairs further apart carry no kinematic signal.
	MaxGap time.Duration

	// SpeedFloorSeconds guards the implied-speed division against
	// near-simultaneous reads. The effective floor is the larger of this
	// and twice the clock-skew tolerance of the pair.
	SpeedFloorSeconds float64

	// ClockSkewTolerance is the per-reading timestamp tolerance; a pair
	// combines two of them.
	ClockSkewTolerance time.Duration
}

const (
	defaultMaxGap            = 300 * time.Second
	defaultSpeedFloorSeconds = 30.0

	// baselineMaxSpeed and speedMargin define the per-plate plausible
	// ceiling: max(150, fastest observed read + 30). Data-driven so
	// legitimately fast vehicles are not over-flagged.
	baselineMaxSpeed = 150.0
	speedMargin      = 30.0
)

func (o *Options) applyDefaults() {
	if o.MaxGap == 0 {
		o.MaxGap = defaultMaxGap
	}
	if o.SpeedFloorSeconds == 0 {
		o.SpeedFloorSeconds = defaultSpeedFloorSeconds
	}
}

func (o Options) floorSeconds() float64 {
	skew := 2 * o.ClockSkewTolerance.Seconds()
	if skew > o.SpeedFloorSeconds {
		return skew
	}
	return o.SpeedFloorSeconds
}

// Result carries the segments plus the per-plate plausible speed ceilings
// the clone aggregator gates on.
type Result struct {
	Segments          []radar.MovementSegment
	MaxPlausibleSpeed map[string]float64
}

// Build enumerates, per plate, the chronologically ordered reading pairs
// within MaxGap and computes the kinematics each pair implies. Readings are
// sorted once per plate and paired through a sliding window, so the cost is
// bounded by the readings that actually fall within MaxGap of each other
// rather than by all pairs.
//
// Undetected plates and readings without a resolved position are skipped:
// neither can support a displacement argument.
func Build(readings []radar.Reading, opts Options) Result {
	opts.applyDefaults()

	byPlate := make(map[string][]radar.Reading)
	maxSpeed := make(map[string]float64)
	for _, r := range readings {
		if !r.PlateDetected() {
			continue
		}
		if r.Speed > maxSpeed[r.Plate] {
			maxSpeed[r.Plate] = r.Speed
		}
		if !r.HasPosition {
			continue
		}
		byPlate[r.Plate] = append(byPlate[r.Plate], r)
	}

	ceilings := make(map[string]float64, len(maxSpeed))
	for plate, observed := range maxSpeed {
		ceilings[plate] = plausibleCeiling(observed)
	}

	floor := opts.floorSeconds()
	var segments []radar.MovementSegment
	for plate, group := range byPlate {
		sort.Slice(group, func(i, j int) bool { return group[i].ObservedAt.Before(group[j].ObservedAt) })
		segments = append(segments, pairWithinWindow(plate, group, opts.MaxGap, floor)...)
	}

	sort.Slice(segments, func(i, j int) bool {
		if segments[i].Plate != segments[j].Plate {
			return segments[i].Plate < segments[j].Plate
		}
		if !segments[i].From.Equal(segments[j].From) {
			return segments[i].From.Before(segments[j].From)
		}
		return segments[i].To.Before(segments[j].To)
	})

	return Result{Segments: segments, MaxPlausibleSpeed: ceilings}
}

func plausibleCeiling(observed float64) float64 {
	if c := observed + speedMargin; c > baselineMaxSpeed {
		return c
	}
	return baselineMaxSpeed
}

func pairWithinWindow(plate string, group []radar.Reading, maxGap time.Duration, floorSeconds float64) []radar.MovementSegment {
	var segments []radar.MovementSegment
	for i := 0; i < len(group)-1; i++ {
		from := group[i]
		for j := i + 1; j < len(group); j++ {
			to := group[j]
			elapsed := to.ObservedAt.Sub(from.ObservedAt)
			if elapsed >= maxGap {
				break
			}
			if elapsed <= 0 {
				continue
			}
			segments = append(segments, makeSegment(plate, from, to, elapsed, floorSeconds))
		}
	}
	return segments
}

func makeSegment(plate string, from, to radar.Reading, elapsed time.Duration, floorSeconds float64) radar.MovementSegment {
	distance := geo.Haversine(from.Lat, from.Lon, to.Lat, to.Lon)

	seconds := elapsed.Seconds()
	if seconds < floorSeconds {
		seconds = floorSeconds
	}

	return radar.MovementSegment{
		Plate:        plate,
		CameraFrom:   from.CameraKey,
		CameraTo:     to.CameraKey,
		From:         from.ObservedAt,
		To:           to.ObservedAt,
		DistanceM:    distance,
		ImpliedSpeed: 3.6 * distance / seconds,
		TypeFrom:     from.VehicleType,
		TypeTo:       to.VehicleType,
		TypeChanged:  from.VehicleType != to.VehicleType,
	}
}
