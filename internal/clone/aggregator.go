package clone

import (
	"sort"

	"platewatch/internal/domain/radar"
)

// Weights are the linear coefficients of the clone score. They are an
// empirically tuned heuristic, not a fit classifier: each signal needs
// multiple corroborating occurrences before it can dominate. Carried as
// configuration so they can be recalibrated without a release.
type Weights struct {
	DistinctTypesTrusted float64
	InconsistentSegments float64
	TypeChangesTrusted   float64
	TypeChanges          float64
}

// DefaultWeights mirror score = (distinct_types_trusted-1)/3 +
// inconsistent/10 + type_changes_trusted/4 + type_changes/8.
func DefaultWeights() Weights {
	return Weights{
		DistinctTypesTrusted: 1.0 / 3.0,
		InconsistentSegments: 1.0 / 10.0,
		TypeChangesTrusted:   1.0 / 4.0,
		TypeChanges:          1.0 / 8.0,
	}
}

// Options tunes the aggregator.
type Options struct {
	// Threshold is the score above which a plate is flagged.
	Threshold float64
	Weights   Weights
}

const defaultThreshold = 1.0

func (o *Options) applyDefaults() {
	if o.Threshold == 0 {
		o.Threshold = defaultThreshold
	}
	if o.Weights == (Weights{}) {
		o.Weights = DefaultWeights()
	}
}

type plateAccum struct {
	typeChanges          int
	typeChangesTrusted   int
	inconsistentSegments int
	segments             int
	maxImplied           float64
	types                map[string]struct{}
	typesTrusted         map[string]struct{}
}

// Aggregate combines per-plate kinematic inconsistencies, vehicle-type
// volatility, and camera trust into one score per plate and applies the
// decision threshold. Segments are annotated in place with the trusted flag
// so callers can persist or export the evidence.
//
// A plate without trusted-camera coverage simply contributes zero on the
// trusted components; its remaining signals still count.
func Aggregate(
	readings []radar.Reading,
	segments []radar.MovementSegment,
	ceilings map[string]float64,
	trusted map[string]struct{},
	opts Options,
) []radar.CloneScore {
	opts.applyDefaults()

	accums := make(map[string]*plateAccum)
	accumFor := func(plate string) *plateAccum {
		acc, ok := accums[plate]
		if !ok {
			acc = &plateAccum{
				types:        make(map[string]struct{}),
				typesTrusted: make(map[string]struct{}),
			}
			accums[plate] = acc
		}
		return acc
	}

	for _, r := range readings {
		if !r.PlateDetected() {
			continue
		}
		acc := accumFor(r.Plate)
		acc.types[r.VehicleType] = struct{}{}
		if _, ok := trusted[r.CameraKey]; ok {
			acc.typesTrusted[r.VehicleType] = struct{}{}
		}
	}

	for i := range segments {
		s := &segments[i]
		_, fromTrusted := trusted[s.CameraFrom]
		_, toTrusted := trusted[s.CameraTo]
		s.BothTrusted = fromTrusted && toTrusted

		acc := accumFor(s.Plate)
		acc.segments++
		if s.ImpliedSpeed > acc.maxImplied {
			acc.maxImplied = s.ImpliedSpeed
		}
		if s.TypeChanged {
			acc.typeChanges++
			if s.BothTrusted {
				acc.typeChangesTrusted++
			}
		}
		// The displacement gate: only infeasible speed over two trusted
		// cameras counts as an inconsistent segment.
		if s.BothTrusted && s.ImpliedSpeed > ceilings[s.Plate] {
			acc.inconsistentSegments++
		}
	}

	scores := make([]radar.CloneScore, 0, len(accums))
	for plate, acc := range accums {
		// Plates with a single observed type and no segments carry no
		// anomaly evidence at all; skip the noise.
		if acc.segments == 0 && len(acc.types) < 2 {
			continue
		}
		scores = append(scores, scorePlate(plate, acc, ceilings[plate], opts))
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Plate < scores[j].Plate
	})
	return scores
}

func scorePlate(plate string, acc *plateAccum, ceiling float64, opts Options) radar.CloneScore {
	w := opts.Weights

	// Missing trusted coverage contributes zero, never a penalty.
	trustedTypes := len(acc.typesTrusted)
	typeSpread := float64(trustedTypes - 1)
	if typeSpread < 0 {
		typeSpread = 0
	}

	score := typeSpread*w.DistinctTypesTrusted +
		float64(acc.inconsistentSegments)*w.InconsistentSegments +
		float64(acc.typeChangesTrusted)*w.TypeChangesTrusted +
		float64(acc.typeChanges)*w.TypeChanges

	return radar.CloneScore{
		Plate:                plate,
		Score:                score,
		Flagged:              score > opts.Threshold,
		TypeChanges:          acc.typeChanges,
		TypeChangesTrusted:   acc.typeChangesTrusted,
		InconsistentSegments: acc.inconsistentSegments,
		DistinctTypes:        len(acc.types),
		DistinctTypesTrusted: trustedTypes,
		MaxPlausibleSpeed:    ceiling,
		MaxImpliedSpeed:      acc.maxImplied,
		SegmentsConsidered:   acc.segments,
	}
}
