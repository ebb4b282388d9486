// Package timeutil computes MADS timecodes and the broker-relative timecode
// offset the agent and settings service use (spec §4.7). Timestamp
// formatting lives in wire (ISOFormat).
package timeutil

import "time"

// Timecode returns frames-since-epoch at the given frame-rate: the number
// of seconds since the Unix epoch multiplied by fps, as a floating point
// value. It is the common time reference agents align their publishes to.
func Timecode(t time.Time, fps float64) float64 {
	return float64(t.UnixNano()) / float64(time.Second) * fps
}

// Offset computes the fixed offset an agent caches at init so that every
// timecode it subsequently publishes lives on the broker's clock: the
// broker's reported timecode minus the agent's own timecode for the same
// instant (spec §4.7, §9 Open Question iv — broker-minus-local).
func Offset(brokerTimecode, localTimecode float64) float64 {
	return brokerTimecode - localTimecode
}

// Apply shifts a locally computed timecode by a cached offset.
func Apply(localTimecode, offset float64) float64 {
	return localTimecode + offset
}
