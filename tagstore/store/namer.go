package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timestampLayout renders a time down to milliseconds without separators: YYYYMMDDhhmmssfff.
const timestampLayout = "20060102150405.000"

// Namer produces the base name, without extension, for a file created at now.
type Namer func(now time.Time) string

// TimestampNamer is the default: a millisecond timestamp followed by a random UUID,
// so two saves in the same millisecond still get distinct files.
func TimestampNamer(now time.Time) string {
	return fmt.Sprintf("%s-%s", formatTimestamp(now), uuid.NewString())
}

// PlainTimestampNamer reproduces bare timestamp names. Saves within the same
// millisecond collide; the colliding Save fails instead of overwriting.
func PlainTimestampNamer(now time.Time) string {
	return formatTimestamp(now)
}

func formatTimestamp(t time.Time) string {
	s := t.Format(timestampLayout)
	// drop the '.' the layout needs to express fractional seconds
	return s[:14] + s[15:]
}
