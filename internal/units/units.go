// Package units provides shared date parsing and numeric precision helpers
// for reading records.
package units

import (
	"math"
	"time"
)

// WholeDays returns the whole-day difference between from and to. Partial
// days truncate toward zero.
func WholeDays(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}

// Round2 rounds v to 2 decimal places, the precision used for reading
// rates and means throughout the pipeline.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
