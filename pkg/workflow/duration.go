// Whole-second interval between two timestamps
// Used by both the gauges and the step summary so they always agree
package workflow

import "time"

// Duration returns end-start in whole seconds. Sub-second remainders are
// truncated toward zero, so Duration(a, b) == -Duration(b, a). The result
// may be negative; callers decide what a negative interval means.
func Duration(start, end time.Time) int64 {
	return int64(end.Sub(start) / time.Second)
}
