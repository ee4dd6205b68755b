// Package trace writes and reads the tick trace: one zstd-compressed JSON
// line per executed tick, rotated into a new file every UTC hour.
//
// The trace is telemetry. It records what happened on each tick but is not
// enough to resume an episode.
package trace
