package radar

import (
	"time"
)

// PlateUndetected is the sentinel stored when a camera fired but OCR could
// not read a plate. It keeps the fixed 7-character width so group-by
// semantics over the plate column stay intact.
const PlateUndetected = "-------"

// RawReading is a reading exactly as delivered by the feed, before any
// validation. Position may be absent for providers that rely on the catalog.
type RawReading struct {
	CameraID    string
	Plate       string
	VehicleType string
	Speed       float64
	ObservedAt  time.Time
	CapturedAt  time.Time
	Company     string
	Lat         *float64
	Lon         *float64
}

// Reading is a canonical, validated reading. CameraKey is the stable
// internal camera key (codcet) resolved by the normalizer. Immutable once
// emitted.
type Reading struct {
	CameraKey   string
	Plate       string
	VehicleType string
	Speed       float64
	ObservedAt  time.Time
	CapturedAt  time.Time
	Company     string
	Lat         float64
	Lon         float64
	HasPosition bool
}

// PlateDetected reports whether the reading carries a real plate rather
// than the undetected sentinel.
func (r Reading) PlateDetected() bool {
	return r.Plate != PlateUndetected
}

// Latency is the capture delay for the reading. Negative values mean the
// sensor clock ran ahead of the ingestion clock.
func (r Reading) Latency() time.Duration {
	return r.CapturedAt.Sub(r.ObservedAt)
}

// Camera is a catalog entry. Owned by the external equipment catalog; this
// engine only reads it.
type Camera struct {
	Key     string
	Company string
	Lat     float64
	Lon     float64
}

// TrustScore is the per-camera reliability score over a window. All three
// ratios live in [0,1]; higher is better. A camera with no qualifying reads
// in the window gets no TrustScore at all rather than a defaulted one.
type TrustScore struct {
	CameraKey        string
	Window           string
	TotalReads       int
	FrequentPlates   int
	Accuracy         float64
	RereadConfidence float64
	MedianConfidence float64
}

// MovementSegment is an ordered pair of readings of the same plate within
// the segment time bound, with the kinematics the pair implies.
type MovementSegment struct {
	Plate        string
	CameraFrom   string
	CameraTo     string
	From         time.Time
	To           time.Time
	DistanceM    float64
	ImpliedSpeed float64
	TypeFrom     string
	TypeTo       string
	TypeChanged  bool
	BothTrusted  bool
}

// CloneScore is the per-plate anomaly score with its component breakdown.
// Recomputed in full each run; it is a live signal, not a ledger.
type CloneScore struct {
	Plate                string
	Score                float64
	Flagged              bool
	TypeChanges          int
	TypeChangesTrusted   int
	InconsistentSegments int
	DistinctTypes        int
	DistinctTypesTrusted int
	MaxPlausibleSpeed    float64
	MaxImpliedSpeed      float64
	SegmentsConsidered   int
}

// InactivityRecord summarizes one camera-day: total hours with no readings,
// independent exceedance flags, and capture-latency statistics. Keyed by
// (CameraKey, Company, Date); upserted with full replacement of the row.
type InactivityRecord struct {
	CameraKey      string
	Company        string
	Date           time.Time
	InactiveHours  float64
	Over1h         bool
	Over3h         bool
	Over6h         bool
	Over12h        bool
	FullDay        bool
	ReadCount      int
	AvgLatencyS    float64
	MedianLatencyS float64
}
