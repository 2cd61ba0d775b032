package util

import (
	"strings"
	"time"
)

// RunStampLayout is the second-resolution layout used for run directory names.
const RunStampLayout = "20060102150405"

// RunStamp formats t in UTC with second resolution.
func RunStamp(t time.Time) string {
	return t.UTC().Format(RunStampLayout)
}

// ParseRunStamp parses a run directory name, ignoring any "-N" collision suffix.
func ParseRunStamp(name string) (time.Time, error) {
	if idx := strings.IndexByte(name, '-'); idx >= 0 {
		name = name[:idx]
	}
	return time.ParseInLocation(RunStampLayout, name, time.UTC)
}
