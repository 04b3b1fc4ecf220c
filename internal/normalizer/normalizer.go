package normalizer

import (
	"strings"
	"time"
	"unicode"

	"platewatch/internal/domain/radar"
)

// RejectReason classifies why a raw reading was dropped.
type RejectReason string

const (
	RejectNonCausalTimestamps RejectReason = "non_causal_timestamps"
	RejectMissingTimestamps   RejectReason = "missing_timestamps"
	RejectBadCameraID         RejectReason = "bad_camera_id"
	RejectNoCameraNoPosition  RejectReason = "no_camera_no_position"
	RejectBadPlate            RejectReason = "bad_plate"
	RejectDenylistedPlate     RejectReason = "denylisted_plate"
)

const plateLength = 7

// Options carries the lookup tables and tolerances the normalizer needs.
// All of them come from configuration or the external camera catalog.
type Options struct {
	// ClockSkewTolerance bounds how far captured_at may precede
	// observed_at before the reading is treated as a clock error.
	ClockSkewTolerance time.Duration

	// PlateDenylist holds known-bad OCR artifacts, already uppercased.
	PlateDenylist map[string]struct{}

	// VehicleTypes maps raw provider labels to canonical categories.
	VehicleTypes map[string]string

	// CameraKeys maps raw provider camera identifiers to the stable
	// internal key (codcet).
	CameraKeys map[string]string

	// Cameras is the catalog keyed by codcet, used to resolve positions.
	Cameras map[string]radar.Camera

	// PositionFromReading names the companies whose readings carry an
	// authoritative position that overrides the catalog.
	PositionFromReading map[string]struct{}
}

// VehicleTypeUnknown is assigned when a provider label has no mapping.
const VehicleTypeUnknown = "UNKNOWN"

// Result is the outcome of normalizing one batch.
type Result struct {
	Readings []radar.Reading
	Rejected map[RejectReason]int
}

// TotalRejected sums rejections across reasons.
func (r Result) TotalRejected() int {
	total := 0
	for _, n := range r.Rejected {
		total += n
	}
	return total
}

// Normalizer turns heterogeneous raw readings into the canonical stream.
// It is a pure transform: bad rows are counted and skipped, never aborting
// the batch, and nothing outside the returned Result is touched.
type Normalizer struct {
	opts Options
}

func New(opts Options) *Normalizer {
	return &Normalizer{opts: opts}
}

// Normalize validates and canonicalizes a batch of raw readings.
func (n *Normalizer) Normalize(raws []radar.RawReading) Result {
	res := Result{
		Readings: make([]radar.Reading, 0, len(raws)),
		Rejected: make(map[RejectReason]int),
	}

	for _, raw := range raws {
		reading, reason, ok := n.normalizeOne(raw)
		if !ok {
			res.Rejected[reason]++
			continue
		}
		res.Readings = append(res.Readings, reading)
	}

	return res
}

func (n *Normalizer) normalizeOne(raw radar.RawReading) (radar.Reading, RejectReason, bool) {
	if raw.ObservedAt.IsZero() || raw.CapturedAt.IsZero() {
		return radar.Reading{}, RejectMissingTimestamps, false
	}
	// Sensor clocks may run slightly ahead of ingestion; anything beyond
	// the tolerance is a clock error, not a real event.
	if raw.CapturedAt.Before(raw.ObservedAt.Add(-n.opts.ClockSkewTolerance)) {
		return radar.Reading{}, RejectNonCausalTimestamps, false
	}

	rawID := strings.TrimSpace(raw.CameraID)
	if containsAlpha(rawID) {
		return radar.Reading{}, RejectBadCameraID, false
	}

	key := n.resolveCameraKey(rawID)
	hasReadingPos := raw.Lat != nil && raw.Lon != nil
	if key == "" && !hasReadingPos {
		return radar.Reading{}, RejectNoCameraNoPosition, false
	}

	plate, reason, ok := n.normalizePlate(raw.Plate)
	if !ok {
		return radar.Reading{}, reason, false
	}

	reading := radar.Reading{
		CameraKey:   key,
		Plate:       plate,
		VehicleType: n.canonicalVehicleType(raw.VehicleType),
		Speed:       raw.Speed,
		ObservedAt:  raw.ObservedAt,
		CapturedAt:  raw.CapturedAt,
		Company:     strings.ToUpper(strings.TrimSpace(raw.Company)),
	}
	if reading.Speed < 0 {
		reading.Speed = 0
	}

	n.resolvePosition(&reading, raw, hasReadingPos)

	return reading, "", true
}

func (n *Normalizer) resolveCameraKey(rawID string) string {
	return ResolveCameraKey(rawID, n.opts.CameraKeys)
}

// ResolveCameraKey maps a raw provider identifier to the internal codcet.
// Newer providers send the internal key directly as 9-10 digits; those are
// left-padded to the canonical 10-digit form. Returns "" when the identifier
// cannot be resolved. Anything keyed by camera_id in the raw store must go
// through this before being joined against normalized readings or the
// catalog, both of which are codcet-keyed.
func ResolveCameraKey(rawID string, codes map[string]string) string {
	rawID = strings.TrimSpace(rawID)
	if rawID == "" || containsAlpha(rawID) {
		return ""
	}
	if key, ok := codes[rawID]; ok {
		return key
	}
	if len(rawID) == 9 || len(rawID) == 10 {
		return leftPad(rawID, 10)
	}
	return ""
}

func (n *Normalizer) normalizePlate(raw string) (string, RejectReason, bool) {
	plate := strings.TrimSpace(raw)
	plate = strings.ReplaceAll(plate, " ", "")
	plate = strings.ReplaceAll(plate, "-", "")
	plate = strings.ToUpper(plate)

	if plate == "" {
		return radar.PlateUndetected, "", true
	}
	if len(plate) != plateLength {
		return "", RejectBadPlate, false
	}
	if _, bad := n.opts.PlateDenylist[plate]; bad {
		return "", RejectDenylistedPlate, false
	}
	return plate, "", true
}

func (n *Normalizer) canonicalVehicleType(raw string) string {
	label := strings.ToUpper(strings.TrimSpace(raw))
	if label == "" {
		return VehicleTypeUnknown
	}
	if canonical, ok := n.opts.VehicleTypes[label]; ok {
		return canonical
	}
	return VehicleTypeUnknown
}

// resolvePosition picks between the reading's own position and the catalog
// position, per provider. Companies in PositionFromReading send their own
// coordinates, which take precedence over the catalog.
func (n *Normalizer) resolvePosition(reading *radar.Reading, raw radar.RawReading, hasReadingPos bool) {
	_, readingWins := n.opts.PositionFromReading[reading.Company]

	if hasReadingPos && (readingWins || reading.CameraKey == "") {
		reading.Lat = *raw.Lat
		reading.Lon = *raw.Lon
		reading.HasPosition = true
		return
	}

	if cam, ok := n.opts.Cameras[reading.CameraKey]; ok {
		reading.Lat = cam.Lat
		reading.Lon = cam.Lon
		reading.HasPosition = true
		return
	}

	if hasReadingPos {
		reading.Lat = *raw.Lat
		reading.Lon = *raw.Lon
		reading.HasPosition = true
	}
}

func containsAlpha(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func leftPad(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}
