// Package detect implements the blow classification heuristics and the
// cooldown gate between emitted events.
//
// A blow into the microphone reads as broadband bass-heavy noise with a
// sudden onset and no harmonic structure. Five conjunctive criteria encode
// that signature; a single sensitivity knob scales all thresholds.
package detect

import "github.com/petems/blowsense/internal/spectrum"

const (
	// DefaultSensitivity is the classification sensitivity used when the
	// host does not configure one. Lower values are more permissive.
	DefaultSensitivity = 0.3

	// thresholdScale converts sensitivity into the byte amplitude scale
	// of spectrum frames.
	thresholdScale = 255.0

	// Per-criterion factors applied to the base threshold.
	lowFreqFactor   = 1.2
	broadbandFactor = 0.8
	volumeFactor    = 0.7

	// maxHarmonicPeaks is the peak count at or above which a frame is
	// treated as tonal content (speech, music) rather than breath noise.
	maxHarmonicPeaks = 5

	// minOnsetDelta is the volume rise over the previous tick required to
	// count as a sudden onset.
	minOnsetDelta = 15.0
)

// Threshold returns the base amplitude threshold for a sensitivity.
func Threshold(sensitivity float64) float64 {
	return thresholdScale * sensitivity
}

// Classify reports whether one frame's features look like a blow, given the
// previous tick's average volume. All comparisons are strictly greater;
// boundary values do not trigger. The returned volumeChange is the onset
// delta for this tick; the caller persists features.AvgVolume as the next
// previousVolume.
func Classify(f spectrum.FeatureSet, previousVolume, sensitivity float64) (isBlowing bool, volumeChange float64) {
	threshold := Threshold(sensitivity)
	volumeChange = f.AvgVolume - previousVolume

	isLowFreqStrong := f.LowAvg > threshold*lowFreqFactor
	isBroadband := (f.LowAvg+f.MidAvg+f.HighAvg)/3 > threshold*broadbandFactor
	isNotHarmonic := f.PeakCount < maxHarmonicPeaks
	hasVolume := f.AvgVolume > threshold*volumeFactor
	hasSuddenOnset := volumeChange > minOnsetDelta

	isBlowing = isLowFreqStrong && isBroadband && isNotHarmonic && hasVolume && hasSuddenOnset
	return isBlowing, volumeChange
}
