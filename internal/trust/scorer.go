package trust

import (
	"sort"
	"time"

	"platewatch/internal/domain/radar"
	"platewatch/internal/stats"
)

// Options tunes the trust scorer. Zero values are replaced by defaults.
type Options struct {
	// FrequentPlateThreshold is the read count above which a plate is
	// "frequently seen" at a camera within the window.
	FrequentPlateThreshold int

	// RereadWindow is the gap under which a repeat read of the same plate
	// at the same camera counts as a sensor echo.
	RereadWindow time.Duration

	// Window labels the scored period, e.g. "2024-05-30".
	Window string
}

const (
	defaultFrequentPlateThreshold = 10
	defaultRereadWindow           = 60 * time.Second
)

func (o *Options) applyDefaults() {
	if o.FrequentPlateThreshold == 0 {
		o.FrequentPlateThreshold = defaultFrequentPlateThreshold
	}
	if o.RereadWindow == 0 {
		o.RereadWindow = defaultRereadWindow
	}
}

type plateKey struct {
	plate string
	vtype string
}

type cameraAccum struct {
	total      int
	plateReads map[string][]time.Time
	plateTypes map[plateKey]int
}

// Score computes one TrustScore per camera with at least one qualifying
// read in the window. Qualifying reads are those with a detected plate and
// a resolved camera key; a camera with none yields no score at all, so
// downstream consumers treat it as unknown rather than fully trusted or
// fully suspect.
func Score(readings []radar.Reading, opts Options) []radar.TrustScore {
	opts.applyDefaults()

	// Global (plate, type) occurrence counts anchor the single-error
	// detection: a type reported exactly once anywhere for a plate is a
	// one-off misclassification, not a real vehicle change.
	globalTypes := make(map[plateKey]int)
	cameras := make(map[string]*cameraAccum)

	for _, r := range readings {
		if r.CameraKey == "" || !r.PlateDetected() {
			continue
		}
		pk := plateKey{plate: r.Plate, vtype: r.VehicleType}
		globalTypes[pk]++

		acc, ok := cameras[r.CameraKey]
		if !ok {
			acc = &cameraAccum{
				plateReads: make(map[string][]time.Time),
				plateTypes: make(map[plateKey]int),
			}
			cameras[r.CameraKey] = acc
		}
		acc.total++
		acc.plateReads[r.Plate] = append(acc.plateReads[r.Plate], r.ObservedAt)
		acc.plateTypes[pk]++
	}

	scores := make([]radar.TrustScore, 0, len(cameras))
	for key, acc := range cameras {
		scores = append(scores, scoreCamera(key, acc, globalTypes, opts))
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].CameraKey < scores[j].CameraKey })
	return scores
}

func scoreCamera(key string, acc *cameraAccum, globalTypes map[plateKey]int, opts Options) radar.TrustScore {
	total := float64(acc.total)

	singleErrors := countSingleTypeErrors(acc, globalTypes)
	rereads := countFastRereads(acc.plateReads, opts.RereadWindow)

	counts := make([]int, 0, len(acc.plateReads))
	frequent := 0
	for _, times := range acc.plateReads {
		counts = append(counts, len(times))
		if len(times) > opts.FrequentPlateThreshold {
			frequent++
		}
	}
	median := stats.MedianInt(counts)
	aboveMedian := 0
	for _, c := range counts {
		if float64(c) > median {
			aboveMedian++
		}
	}

	return radar.TrustScore{
		CameraKey:        key,
		Window:           opts.Window,
		TotalReads:       acc.total,
		FrequentPlates:   frequent,
		Accuracy:         1 - float64(singleErrors)/total,
		RereadConfidence: 1 - float64(rereads)/total,
		MedianConfidence: 1 - float64(aboveMedian)/total,
	}
}

// countSingleTypeErrors counts reads where this camera reported a vehicle
// type for a plate exactly once, the plate was seen with that type nowhere
// else, and the camera also saw the plate with some other type. That
// combination is the signature of a one-off misclassification.
func countSingleTypeErrors(acc *cameraAccum, globalTypes map[plateKey]int) int {
	distinctTypes := make(map[string]int)
	for pk := range acc.plateTypes {
		distinctTypes[pk.plate]++
	}

	errors := 0
	for pk, count := range acc.plateTypes {
		if count != 1 {
			continue
		}
		if distinctTypes[pk.plate] < 2 {
			continue
		}
		if globalTypes[pk] != 1 {
			continue
		}
		errors++
	}
	return errors
}

// countFastRereads counts reads arriving within the reread window of the
// previous read of the same plate at the same camera. Echoing sensors
// produce long runs of these.
func countFastRereads(plateReads map[string][]time.Time, window time.Duration) int {
	rereads := 0
	for _, times := range plateReads {
		if len(times) < 2 {
			continue
		}
		sorted := make([]time.Time, len(times))
		copy(sorted, times)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
		for i := 1; i < len(sorted); i++ {
			if sorted[i].Sub(sorted[i-1]) <= window {
				rereads++
			}
		}
	}
	return rereads
}

// TrustedSet returns the camera keys whose score clears the accuracy cutoff
// on both anomaly classes: type inconsistency (accuracy) and sensor echo
// (reread confidence). Cameras without a score are never trusted.
func TrustedSet(scores []radar.TrustScore, cutoff float64) map[string]struct{} {
	trusted := make(map[string]struct{}, len(scores))
	for _, s := range scores {
		if s.Accuracy > cutoff && s.RereadConfidence > cutoff {
			trusted[s.CameraKey] = struct{}{}
		}
	}
	return trusted
}
