package detect

import (
	"time"

	"github.com/petems/blowsense/internal/spectrum"
)

// Record captures the classifier inputs behind one fired event, for
// diagnostic sinks.
type Record struct {
	At           time.Time `json:"at"`
	LowAvg       float64   `json:"low_avg"`
	MidAvg       float64   `json:"mid_avg"`
	HighAvg      float64   `json:"high_avg"`
	AvgVolume    float64   `json:"avg_volume"`
	PeakCount    int       `json:"peak_count"`
	VolumeChange float64   `json:"volume_change"`
	Threshold    float64   `json:"threshold"`
}

// NewRecord assembles a diagnostic record for a fired event.
func NewRecord(at time.Time, f spectrum.FeatureSet, volumeChange, sensitivity float64) Record {
	return Record{
		At:           at,
		LowAvg:       f.LowAvg,
		MidAvg:       f.MidAvg,
		HighAvg:      f.HighAvg,
		AvgVolume:    f.AvgVolume,
		PeakCount:    f.PeakCount,
		VolumeChange: volumeChange,
		Threshold:    Threshold(sensitivity),
	}
}
