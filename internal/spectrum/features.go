package spectrum

import "fmt"

const (
	// Band boundary fractions partition [0,N) into low/mid/high ranges.
	lowBandFraction  = 0.15
	midBandFraction  = 0.35
	highBandFraction = 0.55

	// peakDelta is how far a bin must rise above both neighbours to count
	// as a harmonic spike (absolute amplitude units).
	peakDelta = 30

	// MinBins is the smallest frame size for which all three bands are
	// guaranteed non-empty.
	MinBins = 20
)

// FeatureSet summarizes one Frame for classification.
type FeatureSet struct {
	LowAvg    float64
	MidAvg    float64
	HighAvg   float64
	PeakCount int
	AvgVolume float64
}

// Extractor computes a FeatureSet from frames of a fixed bin count.
type Extractor struct {
	bins     int
	lowBand  int
	midBand  int
	highBand int
}

// NewExtractor returns an extractor for frames of the given bin count.
func NewExtractor(bins int) (*Extractor, error) {
	if bins < MinBins {
		return nil, fmt.Errorf("spectrum: %d bins is below the minimum of %d", bins, MinBins)
	}
	return &Extractor{
		bins:     bins,
		lowBand:  int(float64(bins) * lowBandFraction),
		midBand:  int(float64(bins) * midBandFraction),
		highBand: int(float64(bins) * highBandFraction),
	}, nil
}

// Bins returns the frame size this extractor expects.
func (e *Extractor) Bins() int { return e.bins }

// Bands returns the low/mid/high boundary indices.
func (e *Extractor) Bands() (low, mid, high int) {
	return e.lowBand, e.midBand, e.highBand
}

// Extract computes band averages, harmonic peak count and overall volume
// for one frame. len(frame) must equal Bins().
func (e *Extractor) Extract(frame Frame) FeatureSet {
	var lowSum, midSum, highSum, totalEnergy float64
	peaks := 0

	for i := 0; i < e.bins; i++ {
		v := float64(frame[i])
		totalEnergy += v

		switch {
		case i < e.lowBand:
			lowSum += v
		case i < e.midBand:
			midSum += v
		case i < e.highBand:
			highSum += v
		}

		// Interior bins only: a spike above both neighbours marks
		// tonal content (speech harmonics), not breath noise.
		if i > 0 && i < e.bins-1 {
			if int(frame[i]) > int(frame[i-1])+peakDelta && int(frame[i]) > int(frame[i+1])+peakDelta {
				peaks++
			}
		}
	}

	return FeatureSet{
		LowAvg:    lowSum / float64(e.lowBand),
		MidAvg:    midSum / float64(e.midBand-e.lowBand),
		HighAvg:   highSum / float64(e.highBand-e.midBand),
		PeakCount: peaks,
		AvgVolume: totalEnergy / float64(e.bins),
	}
}
